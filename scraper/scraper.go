package scraper

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/aluiziolira/dbl-equipment-scraper/config"
	"github.com/aluiziolira/dbl-equipment-scraper/parser"
	"github.com/gocolly/colly/v2"
)

const (
	ctxKeyStart  = "start"
	ctxKeyBody   = "body"
	ctxKeyStatus = "status"
)

// Fetcher downloads one page at a time through a synchronous colly
// collector and hands back the parsed markup.
type Fetcher struct {
	cfg       *config.Config
	collector *colly.Collector
	Metrics   *Metrics
}

// NewFetcher builds a fetcher configured from cfg. A nil metrics value
// disables instrumentation.
func NewFetcher(cfg *config.Config, metrics *Metrics) (*Fetcher, error) {
	parsed, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if parsed.Host == "" {
		return nil, fmt.Errorf("base url must include a host")
	}

	collector := colly.NewCollector(
		colly.AllowedDomains(parsed.Hostname()),
		colly.UserAgent(cfg.UserAgent),
		colly.AllowURLRevisit(),
	)

	collector.SetRequestTimeout(cfg.FetchTimeout)
	collector.IgnoreRobotsTxt = true
	// colly truncates bodies over the cap without an error; the listing must arrive whole.
	collector.MaxBodySize = 0
	collector.WithTransport(&http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   cfg.FetchTimeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        10,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	})

	f := &Fetcher{
		cfg:       cfg,
		collector: collector,
		Metrics:   metrics,
	}
	f.configureHandlers()
	return f, nil
}

func (f *Fetcher) configureHandlers() {
	f.collector.OnRequest(func(r *colly.Request) {
		r.Ctx.Put(ctxKeyStart, time.Now())
		slog.Debug("fetching page", slog.String("url", r.URL.String()))
	})

	f.collector.OnResponse(func(r *colly.Response) {
		r.Ctx.Put(ctxKeyBody, r.Body)
		f.observe(r.Ctx)
	})

	f.collector.OnError(func(r *colly.Response, err error) {
		if r == nil || r.Ctx == nil {
			return
		}
		r.Ctx.Put(ctxKeyStatus, r.StatusCode)
		f.observe(r.Ctx)
	})
}

func (f *Fetcher) observe(ctx *colly.Context) {
	if start, ok := ctx.GetAny(ctxKeyStart).(time.Time); ok {
		f.Metrics.ObserveDuration(time.Since(start))
	}
}

// Fetch downloads pageURL and parses it. phase is PhaseList or PhaseDetail
// and labels the request in the metrics. Every failure, including non-2xx
// statuses, comes back as a *FetchError wrapping a classified error.
func (f *Fetcher) Fetch(ctx context.Context, phase, pageURL string) (parser.Markup, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.Metrics.IncRequest(phase)

	reqCtx := colly.NewContext()
	hdr := http.Header{}
	hdr.Set("User-Agent", f.cfg.UserAgent)
	hdr.Set("Accept", "text/html,application/xhtml+xml")

	if err := f.collector.Request(http.MethodGet, pageURL, nil, reqCtx, hdr); err != nil {
		status, _ := reqCtx.GetAny(ctxKeyStatus).(int)
		classified := classifyError(err, status)
		f.Metrics.IncError(ErrorTypeLabel(classified))
		slog.Warn("request error",
			slog.String("url", pageURL),
			slog.String("phase", phase),
			slog.String("category", ErrorTypeLabel(classified)),
			slog.Any("error", err),
		)
		return nil, &FetchError{Phase: phase, URL: pageURL, Err: classified}
	}

	body, ok := reqCtx.GetAny(ctxKeyBody).([]byte)
	if !ok {
		return nil, &FetchError{Phase: phase, URL: pageURL, Err: errors.New("empty response")}
	}
	doc, err := parser.ParseHTML(bytes.NewReader(body))
	if err != nil {
		return nil, &FetchError{Phase: phase, URL: pageURL, Err: err}
	}
	return doc, nil
}

func classifyError(err error, statusCode int) error {
	if err == nil && statusCode == 0 {
		return nil
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return ErrTimeout{Err: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ErrTimeout{Err: err}
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return ErrConnection{Err: err}
	}

	if statusCode != 0 {
		wrapped := err
		if wrapped == nil {
			wrapped = fmt.Errorf("http status %d", statusCode)
		}
		switch statusCode {
		case http.StatusForbidden:
			return ErrForbidden{Err: wrapped}
		case http.StatusNotFound:
			return ErrNotFound{Err: wrapped}
		case http.StatusTooManyRequests:
			return ErrRateLimited{Err: wrapped}
		}
		if statusCode >= http.StatusInternalServerError {
			return ErrServer{Status: statusCode, Err: wrapped}
		}
	}

	if err == nil {
		return nil
	}
	return err
}
