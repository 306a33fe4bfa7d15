// Package collydownload implements linkpreview.Downloader using gocolly.
package collydownload

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"net"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/JakeFAU/linkpreview/internal/linkpreview"
)

// DefaultFilename names downloads whose URL and headers carry no usable name.
const DefaultFilename = "thumbnail"

// ErrTooLarge is returned when a body exceeds Config.MaxBytes. The same URL
// would fail again, so it wraps linkpreview.ErrInvalidURL.
var ErrTooLarge = fmt.Errorf("%w: body exceeds size limit", linkpreview.ErrInvalidURL)

// Config controls collector behavior.
type Config struct {
	UserAgent     string
	RespectRobots bool
	Timeout       time.Duration
	// MaxBytes caps the body size; larger bodies fail with ErrTooLarge
	// instead of being cut short. Zero keeps colly's default.
	MaxBytes int
}

// Downloader fetches single files with a Colly collector.
type Downloader struct {
	cfg           Config
	baseCollector *colly.Collector
}

type collectorHooks interface {
	OnResponse(colly.ResponseCallback)
	OnError(colly.ErrorCallback)
}

// New builds a Downloader.
func New(cfg Config) *Downloader {
	opts := []colly.CollectorOption{
		colly.Async(false),
		colly.AllowURLRevisit(),
	}
	if cfg.MaxBytes > 0 {
		// colly truncates silently at the limit; one extra byte exposes overflow.
		opts = append(opts, colly.MaxBodySize(cfg.MaxBytes+1))
	}
	c := colly.NewCollector(opts...)
	c.WithTransport(newHTTPTransport())
	return &Downloader{cfg: cfg, baseCollector: c}
}

// Download GETs rawURL and returns its body. URLs that can never be fetched
// (unparseable, non-http scheme, no host, disallowed by robots.txt) return an
// error wrapping linkpreview.ErrInvalidURL.
func (d *Downloader) Download(ctx context.Context, rawURL string) (linkpreview.Download, error) {
	if err := validateURL(rawURL); err != nil {
		return linkpreview.Download{}, err
	}
	var (
		result   linkpreview.Download
		fetchErr error
	)
	collector := d.buildCollector(&result, &fetchErr)
	if err := runCollector(ctx, collector, rawURL, &fetchErr); err != nil {
		return linkpreview.Download{}, err
	}
	return result, nil
}

func (d *Downloader) buildCollector(result *linkpreview.Download, fetchErr *error) *colly.Collector {
	collector := d.baseCollector.Clone()
	if d.cfg.UserAgent != "" {
		collector.UserAgent = d.cfg.UserAgent
	}
	collector.IgnoreRobotsTxt = !d.cfg.RespectRobots
	// Clone shares the visited-URL store; re-downloads must still be allowed.
	collector.AllowURLRevisit = true
	timeout := d.cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	collector.SetRequestTimeout(timeout)
	configureCollectorHooks(collector, d.cfg.MaxBytes, result, fetchErr)
	return collector
}

func configureCollectorHooks(hooks collectorHooks, maxBytes int, result *linkpreview.Download, fetchErr *error) {
	hooks.OnResponse(func(r *colly.Response) {
		if maxBytes > 0 && len(r.Body) > maxBytes {
			*fetchErr = fmt.Errorf("%w: more than %d bytes", ErrTooLarge, maxBytes)
			return
		}
		body := append([]byte(nil), r.Body...)
		contentType := ""
		if r.Headers != nil {
			contentType = r.Headers.Get("Content-Type")
		}
		if contentType == "" {
			contentType = http.DetectContentType(body)
		}
		*result = linkpreview.Download{
			URL:         r.Request.URL.String(),
			Filename:    filenameFor(r),
			ContentType: contentType,
			Body:        body,
		}
	})

	hooks.OnError(func(r *colly.Response, err error) {
		if r != nil && r.StatusCode != 0 {
			*fetchErr = fmt.Errorf("status %d: %w", r.StatusCode, err)
			return
		}
		*fetchErr = err
	})
}

func runCollector(ctx context.Context, collector *colly.Collector, rawURL string, fetchErr *error) error {
	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(rawURL)
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("download canceled: %w", ctx.Err())
	case err := <-done:
		if errors.Is(err, colly.ErrRobotsTxtBlocked) {
			return fmt.Errorf("%w: %s blocked by robots.txt", linkpreview.ErrInvalidURL, rawURL)
		}
		if *fetchErr != nil {
			return fmt.Errorf("colly response failed: %w", *fetchErr)
		}
		if err != nil {
			return fmt.Errorf("colly visit failed: %w", err)
		}
		return nil
	}
}

func validateURL(rawURL string) error {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return fmt.Errorf("%w: %v", linkpreview.ErrInvalidURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%w: unsupported scheme %q", linkpreview.ErrInvalidURL, u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("%w: missing host in %q", linkpreview.ErrInvalidURL, rawURL)
	}
	return nil
}

// filenameFor prefers the Content-Disposition filename, then the last URL
// path segment.
func filenameFor(r *colly.Response) string {
	if r.Headers != nil {
		if _, params, err := mime.ParseMediaType(r.Headers.Get("Content-Disposition")); err == nil {
			if name := cleanFilename(params["filename"]); name != "" {
				return name
			}
		}
	}
	if r.Request != nil && r.Request.URL != nil {
		if name := cleanFilename(r.Request.URL.Path); name != "" {
			return name
		}
	}
	return DefaultFilename
}

func cleanFilename(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	base := path.Base(strings.TrimSpace(name))
	switch base {
	case ".", "/", "..", "":
		return ""
	}
	return base
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
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
