package scraper

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
	"testing"

	"github.com/aluiziolira/dbl-equipment-scraper/config"
	"github.com/jarcoal/httpmock"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		statusCode int
		expected   string
	}{
		{name: "nil", err: nil, statusCode: 0, expected: "unknown"},
		{name: "context timeout", err: context.DeadlineExceeded, statusCode: 0, expected: "timeout"},
		{name: "net timeout", err: &net.DNSError{IsTimeout: true}, statusCode: 0, expected: "timeout"},
		{name: "connection", err: &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")}, statusCode: 0, expected: "connection"},
		{name: "forbidden", err: nil, statusCode: http.StatusForbidden, expected: "forbidden"},
		{name: "not found", err: nil, statusCode: http.StatusNotFound, expected: "not_found"},
		{name: "rate limited", err: nil, statusCode: http.StatusTooManyRequests, expected: "rate_limited"},
		{name: "server error", err: errors.New("Bad Gateway"), statusCode: http.StatusBadGateway, expected: "server_error"},
		{name: "other", err: errors.New("some other error"), statusCode: 0, expected: "other"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ErrorTypeLabel(classifyError(tt.err, tt.statusCode)); got != tt.expected {
				t.Fatalf("classifyError(%v, %d) = %q, want %q", tt.err, tt.statusCode, got, tt.expected)
			}
		})
	}
}

func newTestFetcher(t *testing.T) (*Fetcher, *httpmock.MockTransport) {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.BaseURL = "http://example.test"

	f, err := NewFetcher(cfg, NewMetrics())
	if err != nil {
		t.Fatalf("new fetcher: %v", err)
	}
	transport := httpmock.NewMockTransport()
	f.collector.WithTransport(transport)
	return f, transport
}

func htmlResponder(body string) httpmock.Responder {
	resp := httpmock.NewStringResponse(http.StatusOK, body)
	resp.Header.Set("Content-Type", "text/html; charset=utf-8")
	return httpmock.ResponderFromResponse(resp)
}

func TestFetcherParsesPageAndSendsUserAgent(t *testing.T) {
	f, transport := newTestFetcher(t)

	var gotAgent string
	transport.RegisterResponder("GET", "http://example.test/equip/1", func(req *http.Request) (*http.Response, error) {
		gotAgent = req.Header.Get("User-Agent")
		resp := httpmock.NewStringResponse(http.StatusOK, "<html><body><h2>Armor</h2></body></html>")
		resp.Header.Set("Content-Type", "text/html")
		return resp, nil
	})

	doc, err := f.Fetch(context.Background(), PhaseDetail, "http://example.test/equip/1")
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	h2, ok := doc.First("h2")
	if !ok || h2.Text("") != "Armor" {
		t.Fatalf("expected h2 Armor in fetched page")
	}
	if gotAgent != config.DefaultConfig().UserAgent {
		t.Fatalf("user agent = %q", gotAgent)
	}
	if got := testutil.ToFloat64(f.Metrics.RequestsTotal.WithLabelValues(PhaseDetail)); got != 1 {
		t.Fatalf("detail requests = %v, want 1", got)
	}
}

func TestFetcherReadsBodiesPastTenMiB(t *testing.T) {
	f, transport := newTestFetcher(t)
	page := "<html><body>" + strings.Repeat("<p>x</p>", 11<<20/8) + `<a href="/equip/999">last</a></body></html>`
	transport.RegisterResponder("GET", "http://example.test/equipment", htmlResponder(page))

	doc, err := f.Fetch(context.Background(), PhaseList, "http://example.test/equipment")
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	links := doc.LinksWithPrefix("/equip/")
	if len(links) != 1 {
		t.Fatalf("found %d detail links, want the trailing /equip/999", len(links))
	}
}

func TestFetcherErrorCarriesPhaseAndURL(t *testing.T) {
	f, transport := newTestFetcher(t)
	transport.RegisterResponder("GET", "http://example.test/equip/4", httpmock.NewStringResponder(http.StatusNotFound, ""))

	_, err := f.Fetch(context.Background(), PhaseDetail, "http://example.test/equip/4")
	var fetchErr *FetchError
	if !errors.As(err, &fetchErr) {
		t.Fatalf("expected *FetchError, got %T (%v)", err, err)
	}
	if fetchErr.Phase != PhaseDetail || fetchErr.URL != "http://example.test/equip/4" {
		t.Fatalf("fetch error = %+v", fetchErr)
	}
	var notFound ErrNotFound
	if !errors.As(err, &notFound) {
		t.Fatalf("expected ErrNotFound inside %v", err)
	}
	if !strings.HasPrefix(err.Error(), "detail page http://example.test/equip/4: not_found") {
		t.Fatalf("message = %q", err.Error())
	}
}

func TestFetcherRevisitsSameURL(t *testing.T) {
	f, transport := newTestFetcher(t)
	transport.RegisterResponder("GET", "http://example.test/equipment", htmlResponder("<p>list</p>"))

	for i := 0; i < 2; i++ {
		if _, err := f.Fetch(context.Background(), PhaseList, "http://example.test/equipment"); err != nil {
			t.Fatalf("fetch %d: %v", i, err)
		}
	}
}

func TestFetcherHTTPStatusClassification(t *testing.T) {
	tests := []struct {
		status   int
		expected string
	}{
		{status: http.StatusTooManyRequests, expected: "rate_limited"},
		{status: http.StatusForbidden, expected: "forbidden"},
		{status: http.StatusNotFound, expected: "not_found"},
		{status: http.StatusServiceUnavailable, expected: "server_error"},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			f, transport := newTestFetcher(t)
			transport.RegisterResponder("GET", "http://example.test/equip/9", httpmock.NewStringResponder(tt.status, ""))

			_, err := f.Fetch(context.Background(), PhaseDetail, "http://example.test/equip/9")
			if err == nil {
				t.Fatalf("expected error for status %d", tt.status)
			}
			if got := ErrorTypeLabel(err); got != tt.expected {
				t.Fatalf("label = %q, want %q (err %v)", got, tt.expected, err)
			}
			if got := testutil.ToFloat64(f.Metrics.ErrorsTotal.WithLabelValues(tt.expected)); got != 1 {
				t.Fatalf("errors_total{%s} = %v, want 1", tt.expected, got)
			}
		})
	}
}

func TestFetcherConnectionError(t *testing.T) {
	f, transport := newTestFetcher(t)
	transport.RegisterResponder("GET", "http://example.test/equip/5",
		httpmock.NewErrorResponder(&net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")}))

	_, err := f.Fetch(context.Background(), PhaseDetail, "http://example.test/equip/5")
	if got := ErrorTypeLabel(err); got != "connection" {
		t.Fatalf("label = %q, want connection (err %v)", got, err)
	}
}

func TestFetcherCancelledContext(t *testing.T) {
	f, _ := newTestFetcher(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := f.Fetch(ctx, PhaseList, "http://example.test/equipment"); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestNewFetcherRejectsHostlessURL(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.BaseURL = "/relative"
	if _, err := NewFetcher(cfg, nil); err == nil {
		t.Fatalf("expected error for base url without host")
	}
}

func TestMetricsNilSafe(t *testing.T) {
	var m *Metrics
	m.IncRequest("list")
	m.IncItem("enriched")
	m.IncError("timeout")
	m.ObserveDuration(0)
}
