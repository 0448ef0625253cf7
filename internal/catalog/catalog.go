// Package catalog holds the in-memory earthquake and plate-boundary data the
// service answers from. A catalog is replaced wholesale on every reload.
package catalog

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/couchcryptid/quake-map-service/internal/domain"
	"github.com/couchcryptid/quake-map-service/internal/observability"
)

// Snapshot is one complete load of both source documents.
type Snapshot struct {
	Quakes   []domain.Quake
	Plates   []domain.Plate
	Rejected int
	LoadedAt time.Time
}

// Catalog serves the current snapshot and its timeline.
type Catalog struct {
	mu         sync.RWMutex
	snapshot   *Snapshot
	timeline   *domain.Timeline
	generation uint64
	listeners  []func(*domain.Timeline)

	loc     *time.Location
	frames  *frameCache
	metrics *observability.Metrics
}

// New creates an empty catalog. Days are evaluated in loc (UTC when nil).
func New(loc *time.Location, frameCacheSize int, metrics *observability.Metrics) *Catalog {
	if loc == nil {
		loc = time.UTC
	}
	return &Catalog{
		timeline: domain.NewTimeline(nil, loc),
		loc:      loc,
		frames:   newFrameCache(frameCacheSize),
		metrics:  metrics,
	}
}

// OnReplace registers fn to be called with the new timeline after every Replace.
func (c *Catalog) OnReplace(fn func(*domain.Timeline)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listeners = append(c.listeners, fn)
}

// Replace swaps in a new snapshot, rebuilding the timeline and dropping cached frames.
func (c *Catalog) Replace(s Snapshot) {
	tl := domain.NewTimeline(s.Quakes, c.loc)

	c.mu.Lock()
	c.snapshot = &s
	c.timeline = tl
	c.generation++
	listeners := make([]func(*domain.Timeline), len(c.listeners))
	copy(listeners, c.listeners)
	c.mu.Unlock()

	c.frames.reset()

	c.metrics.CatalogReloads.Inc()
	c.metrics.QuakesLoaded.Set(float64(len(s.Quakes)))
	c.metrics.QuakesRejected.Set(float64(s.Rejected))
	c.metrics.TimelineDays.Set(float64(tl.Len()))

	for _, fn := range listeners {
		fn(tl)
	}
}

// Loaded reports whether a snapshot has been installed.
func (c *Catalog) Loaded() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snapshot != nil
}

// CheckReadiness returns nil once the first snapshot is loaded.
func (c *Catalog) CheckReadiness(_ context.Context) error {
	if !c.Loaded() {
		return errors.New("catalog has not been loaded yet")
	}
	return nil
}

// Snapshot returns the current snapshot and whether one is loaded.
func (c *Catalog) Snapshot() (Snapshot, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.snapshot == nil {
		return Snapshot{}, false
	}
	return *c.snapshot, true
}

// Timeline returns the current timeline. It is never nil.
func (c *Catalog) Timeline() *domain.Timeline {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.timeline
}

// Location returns the location timeline days are evaluated in.
func (c *Catalog) Location() *time.Location { return c.loc }

// Quakes returns the time-sorted events of the current snapshot.
func (c *Catalog) Quakes() []domain.Quake {
	return c.Timeline().Quakes()
}

// Plates returns the plate boundaries of the current snapshot.
func (c *Catalog) Plates() []domain.Plate {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.snapshot == nil {
		return nil
	}
	return c.snapshot.Plates
}

// Frame returns the filtered frame for index under mode, using the frame cache.
func (c *Catalog) Frame(mode domain.Mode, index int) (domain.Frame, error) {
	c.mu.RLock()
	tl := c.timeline
	key := frameKey{generation: c.generation, mode: mode, index: index}
	c.mu.RUnlock()

	if f, ok := c.frames.get(key); ok {
		c.metrics.FrameCache.WithLabelValues("hit").Inc()
		return f, nil
	}
	c.metrics.FrameCache.WithLabelValues("miss").Inc()

	f, err := tl.Frame(mode, index)
	if err != nil {
		return domain.Frame{}, err
	}
	c.frames.put(key, f)
	return f, nil
}
