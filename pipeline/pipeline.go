package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/aluiziolira/dbl-equipment-scraper/config"
	"github.com/aluiziolira/dbl-equipment-scraper/models"
	"github.com/aluiziolira/dbl-equipment-scraper/parser"
	"github.com/aluiziolira/dbl-equipment-scraper/scraper"
	"github.com/google/uuid"
)

var (
	// ErrListingUnavailable aborts a run whose listing page could not be
	// fetched. Nothing is written in that case.
	ErrListingUnavailable = errors.New("pipeline: listing page unavailable")
	// ErrInterrupted is returned when the context ends mid-run.
	ErrInterrupted = errors.New("pipeline: run interrupted")
)

// Fetcher retrieves and parses one page.
type Fetcher interface {
	Fetch(ctx context.Context, phase, url string) (parser.Markup, error)
}

// OutputWriter defines the interface for data output. Write is called once
// per run with the whole collection.
type OutputWriter interface {
	Write(records []*models.Equipment) error
	Close() error
	Validate() error
}

// Driver runs the listing → detail → write sequence, one item at a time.
type Driver struct {
	cfg      *config.Config
	fetcher  Fetcher
	writer   OutputWriter
	metrics  *scraper.Metrics
	progress io.Writer

	sleep   func(context.Context, time.Duration) error
	extract func(parser.Markup, *models.Equipment) *models.Equipment
}

// Option customises a Driver.
type Option func(*Driver)

// WithMetrics counts item outcomes on m.
func WithMetrics(m *scraper.Metrics) Option {
	return func(d *Driver) { d.metrics = m }
}

// WithProgress sends the per-item progress lines to w instead of stdout.
func WithProgress(w io.Writer) Option {
	return func(d *Driver) { d.progress = w }
}

// NewDriver builds a driver for cfg.
func NewDriver(cfg *config.Config, fetcher Fetcher, writer OutputWriter, opts ...Option) *Driver {
	d := &Driver{
		cfg:      cfg,
		fetcher:  fetcher,
		writer:   writer,
		progress: os.Stdout,
		sleep:    sleepContext,
		extract:  parser.Extract,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Run executes the whole extraction and writes the collection once. Only a
// listing failure or an interruption stops the run early; per-item failures
// are folded into the result.
func (d *Driver) Run(ctx context.Context) (*models.RunResult, error) {
	result := models.NewRunResult(uuid.NewString())
	logger := slog.With(slog.String("run_id", result.RunID))

	listURL := d.cfg.ListURL()
	logger.Info("fetching listing", slog.String("url", listURL))
	listing, err := d.fetcher.Fetch(ctx, scraper.PhaseList, listURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrListingUnavailable, err)
	}

	items, err := parser.Discover(listing, d.cfg.BaseURL, d.cfg.DetailPathPrefix)
	if err != nil {
		return nil, fmt.Errorf("discover items: %w", err)
	}
	result.Discovered = len(items)
	logger.Info("listing parsed", slog.Int("items", len(items)))

	for i, item := range items {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInterrupted, err)
		}

		fmt.Fprintf(d.progress, "[%d/%d] extracting id %s...\n", i+1, len(items), item.ID)
		res := d.processItem(ctx, item, result)
		result.Apply(res)
		d.metrics.IncItem(res.Outcome.String())
		if res.Outcome == models.OutcomeSkipped {
			logger.Error("item skipped", slog.String("id", item.ID), slog.String("reason", res.Reason))
		}

		if i < len(items)-1 {
			if err := d.sleep(ctx, d.cfg.InterItemDelay); err != nil {
				return nil, fmt.Errorf("%w: %w", ErrInterrupted, err)
			}
		}
	}

	result.EndTime = time.Now()
	if err := d.writer.Write(result.Records); err != nil {
		return result, fmt.Errorf("write output: %w", err)
	}
	logger.Info("run complete",
		slog.Int("written", len(result.Records)),
		slog.Int("degraded", result.Degraded),
		slog.Int("skipped", result.Skipped),
	)
	return result, nil
}

func (d *Driver) processItem(ctx context.Context, item models.Listing, result *models.RunResult) (res models.ItemResult) {
	defer func() {
		if r := recover(); r != nil {
			res = models.Skipped(item.ID, fmt.Sprint(r))
		}
	}()

	basic := models.NewBasicEquipment(item)
	doc, err := d.fetcher.Fetch(ctx, scraper.PhaseDetail, item.URL)
	if err != nil {
		category := scraper.ErrorTypeLabel(err)
		result.RecordFailure(item.URL, category)
		slog.Warn("detail unavailable, keeping listing data",
			slog.String("id", item.ID),
			slog.String("category", category),
			slog.Any("error", err),
		)
		return models.Degraded(d.extract(nil, basic), err.Error())
	}
	return models.Enriched(d.extract(doc, basic))
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
