package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/couchcryptid/quake-map-service/internal/catalog"
	"github.com/couchcryptid/quake-map-service/internal/domain"
	"github.com/couchcryptid/quake-map-service/internal/observability"
)

// SourceFetcher retrieves a raw source document.
type SourceFetcher interface {
	Fetch(ctx context.Context, name, location string) ([]byte, error)
}

// Decoder turns the two raw documents into a catalog snapshot.
type Decoder interface {
	Decode(quakeDoc, plateDoc []byte) (catalog.Snapshot, error)
}

// Loader installs a decoded snapshot.
type Loader interface {
	Replace(s catalog.Snapshot)
}

// QuakePublisher forwards loaded quakes downstream.
type QuakePublisher interface {
	PublishQuakes(ctx context.Context, quakes []domain.Quake) error
}

// Sources names the two documents the pipeline loads.
type Sources struct {
	QuakeURL string
	PlateURL string
}

const (
	initialBackoff = 200 * time.Millisecond
	maxBackoff     = 5 * time.Second
)

// Pipeline orchestrates the fetch-decode-replace cycle.
type Pipeline struct {
	fetcher   SourceFetcher
	decoder   Decoder
	loader    Loader
	publisher QuakePublisher
	sources   Sources
	refresh   time.Duration
	logger    *slog.Logger
	metrics   *observability.Metrics
	ready     atomic.Bool
}

// New creates a Pipeline. publisher may be nil. A refresh of zero loads once.
func New(f SourceFetcher, d Decoder, l Loader, publisher QuakePublisher, sources Sources, refresh time.Duration, logger *slog.Logger, metrics *observability.Metrics) *Pipeline {
	return &Pipeline{
		fetcher:   f,
		decoder:   d,
		loader:    l,
		publisher: publisher,
		sources:   sources,
		refresh:   refresh,
		logger:    logger,
		metrics:   metrics,
	}
}

// CheckReadiness returns nil once a load has succeeded.
func (p *Pipeline) CheckReadiness(_ context.Context) error {
	if !p.ready.Load() {
		return errors.New("pipeline has not completed a load yet")
	}
	return nil
}

// Ready reports whether a load has succeeded.
func (p *Pipeline) Ready() bool { return p.ready.Load() }

// Run loads the sources, retrying failures with exponential backoff, then
// reloads every refresh interval until the context is cancelled.
func (p *Pipeline) Run(ctx context.Context) error {
	p.logger.Info("pipeline started",
		"quake_source", p.sources.QuakeURL,
		"plate_source", p.sources.PlateURL,
		"refresh", p.refresh,
	)
	p.metrics.PipelineRunning.Set(1)
	defer p.metrics.PipelineRunning.Set(0)

	backoff := initialBackoff
	for {
		if err := p.LoadOnce(ctx); err != nil {
			if ctx.Err() != nil {
				p.logger.Info("pipeline stopping", "reason", ctx.Err())
				return nil
			}
			p.metrics.CatalogLoadErrors.Inc()
			p.logger.Error("load failed", "error", err, "retry_in", backoff)
			if !sleepWithContext(ctx, backoff) {
				return nil
			}
			backoff = nextBackoff(backoff, maxBackoff)
			continue
		}
		backoff = initialBackoff

		if p.refresh <= 0 {
			return nil
		}
		if !sleepWithContext(ctx, p.refresh) {
			p.logger.Info("pipeline stopping", "reason", ctx.Err())
			return nil
		}
	}
}

// LoadOnce fetches and decodes both documents and replaces the catalog.
func (p *Pipeline) LoadOnce(ctx context.Context) error {
	start := time.Now()

	quakeDoc, err := p.fetcher.Fetch(ctx, "quakes", p.sources.QuakeURL)
	if err != nil {
		return err
	}
	plateDoc, err := p.fetcher.Fetch(ctx, "plates", p.sources.PlateURL)
	if err != nil {
		return err
	}

	snap, err := p.decoder.Decode(quakeDoc, plateDoc)
	if err != nil {
		return fmt.Errorf("decode sources: %w", err)
	}

	p.loader.Replace(snap)
	p.ready.Store(true)
	p.metrics.PlatesLoaded.Set(float64(len(snap.Plates)))
	p.metrics.LoadDuration.Observe(time.Since(start).Seconds())

	if snap.Rejected > 0 {
		p.logger.Warn("quake features excluded", "count", snap.Rejected)
	}
	p.logger.Info("catalog loaded",
		"quakes", len(snap.Quakes),
		"plates", len(snap.Plates),
		"rejected", snap.Rejected,
		"duration", time.Since(start),
	)

	if p.publisher != nil {
		if err := p.publisher.PublishQuakes(ctx, snap.Quakes); err != nil {
			// The catalog is already serving the new data; publishing is best effort.
			p.logger.Error("publish quakes failed", "error", err)
		}
	}
	return nil
}

func nextBackoff(current, maxBackoff time.Duration) time.Duration {
	next := current * 2
	if next > maxBackoff {
		return maxBackoff
	}
	return next
}

func sleepWithContext(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
