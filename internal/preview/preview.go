// Package preview answers social-media crawlers with Open Graph markup for
// novel pages so link previews show the novel cover.
package preview

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"regexp"
	"strings"
	"text/template"
	"time"
	"unicode"

	"go.uber.org/zap"

	"github.com/JakeFAU/rayin-translation/internal/activity"
	"github.com/JakeFAU/rayin-translation/internal/library"
	"github.com/JakeFAU/rayin-translation/internal/logging"
	"github.com/JakeFAU/rayin-translation/internal/metrics"
)

var botAgents = []string{
	"facebookexternalhit",
	"facebot",
	"twitterbot",
	"linkedinbot",
	"slackbot",
	"discordbot",
	"whatsapp",
	"telegrambot",
	"googlebot",
	"bingbot",
	"applebot",
	"pinterestbot",
	"redditbot",
	"embedly",
	"showyoubot",
	"outbrain",
	"vkshare",
	"w3c_validator",
	"kakaotalk-scrap",
	"naverbot",
	"yandexbot",
	"rogerbot",
	"seznambot",
}

// DetectBot returns the crawler name found in userAgent, or "" for
// ordinary browsers.
func DetectBot(userAgent string) string {
	lower := strings.ToLower(userAgent)
	for _, bot := range botAgents {
		if strings.Contains(lower, bot) {
			return bot
		}
	}
	return ""
}

var attrEscaper = strings.NewReplacer("&", "&amp;", `"`, "&quot;", "<", "&lt;", ">", "&gt;")

// Escape makes s safe inside a double-quoted HTML attribute.
func Escape(s string) string {
	return attrEscaper.Replace(s)
}

var newlineRuns = regexp.MustCompile(`\n+`)

// TrimDescription flattens newlines and cuts s to limit characters on a word
// boundary, appending an ellipsis when cut.
func TrimDescription(s string, limit int) string {
	clean := strings.TrimSpace(newlineRuns.ReplaceAllString(s, " "))
	runes := []rune(clean)
	if len(runes) <= limit {
		return clean
	}
	cut := string(runes[:limit])
	if i := strings.LastIndexFunc(cut, unicode.IsSpace); i >= 0 {
		cut = strings.TrimRightFunc(cut[:i], unicode.IsSpace)
	}
	return cut + "…"
}

// Lookup loads a novel by slug.
type Lookup interface {
	GetNovelBySlug(ctx context.Context, slug string) (library.Novel, error)
}

// Config tunes the preview responses.
type Config struct {
	SiteName string
	// LogoPath is joined to the origin when a novel has no cover.
	LogoPath string
	// Origin overrides the request-derived scheme and host.
	Origin string
	// TrustProxy honors X-Forwarded-Proto and X-Forwarded-Host when Origin
	// is unset. Leave it off unless a proxy overwrites those headers.
	TrustProxy    bool
	LookupTimeout time.Duration
}

// Handler renders previews for crawlers and passes everything else on.
type Handler struct {
	lookup  Lookup
	cfg     Config
	clock   library.Clock
	emitter activity.Emitter
	logger  *zap.Logger
}

// New builds a Handler.
func New(lookup Lookup, cfg Config, clock library.Clock, emitter activity.Emitter, logger *zap.Logger) *Handler {
	if cfg.SiteName == "" {
		cfg.SiteName = "Rayin Translation"
	}
	if cfg.LogoPath == "" {
		cfg.LogoPath = "/Logo%20Rayin%20Translation.png"
	}
	if cfg.LookupTimeout <= 0 {
		cfg.LookupTimeout = 3 * time.Second
	}
	if emitter == nil {
		emitter = activity.Nop{}
	}
	return &Handler{
		lookup:  lookup,
		cfg:     cfg,
		clock:   clock,
		emitter: emitter,
		logger:  logging.For(logger, logging.CategoryPreview),
	}
}

// novelSlug returns the slug of a /novel/{slug} path. Deeper paths such as
// chapter pages do not match.
func novelSlug(path string) (string, bool) {
	var parts []string
	for _, p := range strings.Split(path, "/") {
		if p != "" {
			parts = append(parts, p)
		}
	}
	if len(parts) != 2 || parts[0] != "novel" {
		return "", false
	}
	return parts[1], true
}

// Middleware intercepts crawler requests for novel pages.
func (h *Handler) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			next.ServeHTTP(w, r)
			return
		}
		bot := DetectBot(r.UserAgent())
		if bot == "" {
			next.ServeHTTP(w, r)
			return
		}
		slug, ok := novelSlug(r.URL.Path)
		if !ok {
			next.ServeHTTP(w, r)
			return
		}

		page, err := h.render(r, slug)
		if err != nil {
			outcome := "error"
			if errors.Is(err, library.ErrNotFound) {
				outcome = "miss"
			} else {
				h.logger.Warn("preview fell through", zap.String("slug", slug), zap.String("bot", bot), zap.Error(err))
			}
			h.record(bot, slug, outcome)
			next.ServeHTTP(w, r)
			return
		}

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Header().Set("Cache-Control", "public, max-age=3600, s-maxage=86400")
		w.WriteHeader(http.StatusOK)
		if r.Method == http.MethodGet {
			_, _ = w.Write(page)
		}
		h.record(bot, slug, "served")
	})
}

func (h *Handler) record(bot, slug, outcome string) {
	metrics.ObserveBotPreview(bot, outcome)
	evt := activity.Event{Kind: activity.KindBotPreview, Slug: slug, Note: bot + ":" + outcome, Failed: outcome == "error"}
	if h.clock != nil {
		evt.TS = h.clock.Now()
	}
	h.emitter.Emit(evt)
}

func (h *Handler) origin(r *http.Request) string {
	if h.cfg.Origin != "" {
		return strings.TrimRight(h.cfg.Origin, "/")
	}
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	host := r.Host
	if !h.cfg.TrustProxy {
		return scheme + "://" + host
	}
	if proto := strings.TrimSpace(strings.Split(r.Header.Get("X-Forwarded-Proto"), ",")[0]); proto == "http" || proto == "https" {
		scheme = proto
	}
	if fwd := strings.TrimSpace(strings.Split(r.Header.Get("X-Forwarded-Host"), ",")[0]); fwd != "" {
		host = fwd
	}
	return scheme + "://" + host
}

type pageData struct {
	Title       string
	Author      string
	Description string
	Image       string
	URL         string
	SiteName    string
}

func (h *Handler) render(r *http.Request, slug string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(r.Context(), h.cfg.LookupTimeout)
	defer cancel()
	novel, err := h.lookup.GetNovelBySlug(ctx, slug)
	if err != nil {
		return nil, err
	}

	origin := h.origin(r)
	data := pageData{
		Title:       novel.Title,
		Author:      novel.DisplayAuthor(),
		Description: TrimDescription(novel.Synopsis, 200),
		Image:       novel.ImageURL,
		URL:         origin + r.URL.RequestURI(),
		SiteName:    h.cfg.SiteName,
	}
	if data.Title == "" {
		data.Title = h.cfg.SiteName
	}
	if data.Description == "" {
		data.Description = "Read " + novel.Title + " translated to English at " + h.cfg.SiteName
	}
	if data.Image == "" {
		data.Image = origin + h.cfg.LogoPath
	}

	var buf bytes.Buffer
	if err := pageTemplate.Execute(&buf, data); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

var pageTemplate = template.Must(template.New("preview").Funcs(template.FuncMap{"esc": Escape}).Parse(`<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="UTF-8">
  <title>{{esc .Title}} — {{esc .SiteName}}</title>
  <meta name="description" content="{{esc .Description}}">

  <meta property="og:type" content="book">
  <meta property="og:url" content="{{esc .URL}}">
  <meta property="og:title" content="{{esc .Title}}">
  <meta property="og:description" content="{{esc .Description}}">
  <meta property="og:image" content="{{esc .Image}}">
  <meta property="og:image:width" content="600">
  <meta property="og:image:height" content="900">
  <meta property="og:site_name" content="{{esc .SiteName}}">
  {{- if .Author}}
  <meta property="book:author" content="{{esc .Author}}">
  {{- end}}

  <meta name="twitter:card" content="summary_large_image">
  <meta name="twitter:title" content="{{esc .Title}}">
  <meta name="twitter:description" content="{{esc .Description}}">
  <meta name="twitter:image" content="{{esc .Image}}">

  <meta http-equiv="refresh" content="0;url={{esc .URL}}">
</head>
<body>
  <h1>{{esc .Title}}</h1>
  <p>{{esc .Description}}</p>
  <p><a href="{{esc .URL}}">Read on {{esc .SiteName}}</a></p>
</body>
</html>
`))
