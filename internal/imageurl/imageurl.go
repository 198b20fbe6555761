// Package imageurl rewrites storage object URLs to the image transform
// endpoint.
package imageurl

import (
	"strconv"
	"strings"
)

const (
	objectPath = "/storage/v1/object/public/"
	renderPath = "/storage/v1/render/image/public/"
)

// Options are the transform parameters. Zero values are omitted.
type Options struct {
	Width   int
	Height  int
	Quality int
	// Format is one of webp, jpg, png, avif or origin.
	Format string
	// Resize is one of cover, contain or fill.
	Resize string
}

// Optimize returns the transform URL for a public storage object. Other URLs
// are returned unchanged.
func Optimize(url string, opts Options) string {
	if !strings.Contains(url, objectPath) {
		return url
	}
	out := strings.Replace(url, objectPath, renderPath, 1)

	var params []string
	if opts.Width > 0 {
		params = append(params, "width="+strconv.Itoa(opts.Width))
	}
	if opts.Height > 0 {
		params = append(params, "height="+strconv.Itoa(opts.Height))
	}
	if opts.Quality > 0 {
		params = append(params, "quality="+strconv.Itoa(opts.Quality))
	}
	if opts.Format != "" {
		params = append(params, "format="+opts.Format)
	}
	if opts.Resize != "" {
		params = append(params, "resize="+opts.Resize)
	}
	if len(params) == 0 {
		return out
	}
	sep := "?"
	if strings.Contains(out, "?") {
		sep = "&"
	}
	return out + sep + strings.Join(params, "&")
}
