// Package source fetches raw chapter text from a web page so it can be pasted
// into the translator.
package source

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"

	"github.com/JakeFAU/rayin-translation/internal/library"
	"github.com/JakeFAU/rayin-translation/internal/logging"
)

// Config controls collector behavior.
type Config struct {
	UserAgent    string
	Timeout      time.Duration
	MaxBodyBytes int
	// Transport overrides the HTTP transport, mainly for tests.
	Transport http.RoundTripper
}

// Request names the page and the part of it holding the chapter text.
type Request struct {
	URL string `json:"url"`
	// Selector picks the elements holding the text. Defaults to body.
	Selector string `json:"selector"`
	// TitleSelector optionally picks the chapter title.
	TitleSelector string `json:"title_selector,omitempty"`
}

// Result is the extracted text.
type Result struct {
	URL        string        `json:"url"`
	Title      string        `json:"title,omitempty"`
	Text       string        `json:"text"`
	Paragraphs int           `json:"paragraphs"`
	StatusCode int           `json:"status_code"`
	Duration   time.Duration `json:"duration"`
}

// Importer extracts text with a Colly collector.
type Importer struct {
	cfg       Config
	transport http.RoundTripper
	logger    *zap.Logger
}

// New builds an Importer.
func New(cfg Config, logger *zap.Logger) *Importer {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 5 << 20
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "rayin-importer/1.0"
	}
	transport := cfg.Transport
	if transport == nil {
		transport = newHTTPTransport()
	}
	return &Importer{cfg: cfg, transport: transport, logger: logging.For(logger, logging.CategoryFetch)}
}

func validate(req Request) (Request, error) {
	u, err := url.Parse(strings.TrimSpace(req.URL))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return req, library.Invalid("source url must be an absolute http(s) url")
	}
	req.URL = u.String()
	req.Selector = strings.TrimSpace(req.Selector)
	if req.Selector == "" {
		req.Selector = "body"
	}
	return req, nil
}

// Import fetches req.URL and returns the text under req.Selector. Elements
// containing <p> children yield one paragraph per <p>; others yield their
// whole text. Paragraphs are separated by blank lines.
func (i *Importer) Import(ctx context.Context, req Request) (Result, error) {
	req, err := validate(req)
	if err != nil {
		return Result{}, err
	}

	var (
		result     = Result{URL: req.URL}
		paragraphs []string
		fetchErr   error
		start      = time.Now()
	)
	collector := colly.NewCollector(
		colly.StdlibContext(ctx),
		colly.DetectCharset(),
		colly.UserAgent(i.cfg.UserAgent),
		colly.MaxBodySize(i.cfg.MaxBodyBytes),
		colly.AllowURLRevisit(),
	)
	collector.SetRequestTimeout(i.cfg.Timeout)
	collector.WithTransport(i.transport)

	collector.OnResponse(func(r *colly.Response) {
		result.StatusCode = r.StatusCode
	})
	if req.TitleSelector != "" {
		collector.OnHTML(req.TitleSelector, func(e *colly.HTMLElement) {
			if result.Title == "" {
				result.Title = strings.TrimSpace(e.Text)
			}
		})
	}
	collector.OnHTML(req.Selector, func(e *colly.HTMLElement) {
		var found bool
		e.ForEach("p", func(_ int, p *colly.HTMLElement) {
			found = true
			if text := strings.TrimSpace(p.Text); text != "" {
				paragraphs = append(paragraphs, text)
			}
		})
		if !found {
			if text := strings.TrimSpace(e.Text); text != "" {
				paragraphs = append(paragraphs, text)
			}
		}
	})
	collector.OnError(func(r *colly.Response, err error) {
		if r != nil {
			result.StatusCode = r.StatusCode
		}
		fetchErr = err
	})

	if err := runCollector(ctx, collector, req.URL, &fetchErr); err != nil {
		i.logger.Warn("source import failed", zap.String("url", req.URL), zap.Error(err))
		return Result{}, err
	}
	result.Duration = time.Since(start)
	if len(paragraphs) == 0 {
		return Result{}, library.Invalid("no text matched selector %q", req.Selector)
	}
	result.Paragraphs = len(paragraphs)
	result.Text = strings.Join(paragraphs, "\n\n")
	i.logger.Info("source imported",
		zap.String("url", req.URL),
		zap.Int("paragraphs", result.Paragraphs),
		zap.Duration("duration", result.Duration),
	)
	return result, nil
}

func runCollector(ctx context.Context, collector *colly.Collector, target string, fetchErr *error) error {
	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(target)
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("source fetch canceled: %w", ctx.Err())
	case err := <-done:
		if err != nil {
			return fmt.Errorf("source visit failed: %w", err)
		}
		if *fetchErr != nil {
			return fmt.Errorf("source response failed: %w", *fetchErr)
		}
		return nil
	}
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          20,
		IdleConnTimeout:       90 * time.Second,
	}
}
