// Package playback animates the timeline: a single repeating timer advances
// the current day index and each change is pushed to subscribers.
package playback

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/quake-map-service/internal/domain"
	"github.com/couchcryptid/quake-map-service/internal/observability"
)

// ErrInvalidSpeed is returned for a speed multiplier outside Speeds.
var ErrInvalidSpeed = errors.New("unsupported playback speed")

// Speeds are the accepted speed multipliers.
var Speeds = []float64{0.5, 1, 2, 4}

// Status is the player state.
type Status string

const (
	StatusStopped Status = "stopped"
	StatusPlaying Status = "playing"
	StatusPaused  Status = "paused"
)

func (s Status) gauge() float64 {
	switch s {
	case StatusPlaying:
		return 1
	case StatusPaused:
		return 2
	default:
		return 0
	}
}

// FrameSource supplies timeline frames. *catalog.Catalog satisfies it.
type FrameSource interface {
	Timeline() *domain.Timeline
	Frame(mode domain.Mode, index int) (domain.Frame, error)
}

// FrameSink receives every frame the player emits.
type FrameSink interface {
	PublishFrame(ctx context.Context, f domain.Frame) error
}

// State is a point-in-time view of the player.
type State struct {
	Status     Status      `json:"status"`
	Index      int         `json:"index"`
	Length     int         `json:"length"`
	Date       *time.Time  `json:"date,omitempty"`
	Mode       domain.Mode `json:"mode"`
	Speed      float64     `json:"speed"`
	Loop       bool        `json:"loop"`
	IntervalMS int64       `json:"interval_ms"`
}

// Options configures a Player.
type Options struct {
	// BaseInterval is the tick interval at speed 1.
	BaseInterval time.Duration
	Loop         bool
	Mode         domain.Mode
	Sink         FrameSink
	Clock        clockwork.Clock
}

// Player drives timeline animation.
type Player struct {
	source  FrameSource
	sink    FrameSink
	clock   clockwork.Clock
	base    time.Duration
	logger  *slog.Logger
	metrics *observability.Metrics

	mu     sync.Mutex
	status Status
	index  int
	length int
	mode   domain.Mode
	speed  float64
	loop   bool
	ticker clockwork.Ticker
	done   chan struct{}
	closed bool

	subMu  sync.Mutex
	subs   map[int]chan domain.Frame
	nextID int

	sinkCh   chan domain.Frame
	sinkDone chan struct{}
}

const sinkBuffer = 64

// NewPlayer creates a stopped player at index 0 over the source's current timeline.
func NewPlayer(source FrameSource, opts Options, logger *slog.Logger, metrics *observability.Metrics) *Player {
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.BaseInterval <= 0 {
		opts.BaseInterval = time.Second
	}
	if opts.Mode == "" {
		opts.Mode = domain.ModeCumulative
	}
	p := &Player{
		source:  source,
		sink:    opts.Sink,
		clock:   opts.Clock,
		base:    opts.BaseInterval,
		logger:  logger,
		metrics: metrics,
		status:  StatusStopped,
		length:  source.Timeline().Len(),
		mode:    opts.Mode,
		speed:   1,
		loop:    opts.Loop,
		subs:    make(map[int]chan domain.Frame),
	}
	if p.sink != nil {
		p.sinkCh = make(chan domain.Frame, sinkBuffer)
		p.sinkDone = make(chan struct{})
		go p.drainSink()
	}
	metrics.PlaybackState.Set(p.status.gauge())
	return p
}

// State returns the current player state.
func (p *Player) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stateLocked()
}

func (p *Player) stateLocked() State {
	s := State{
		Status:     p.status,
		Index:      p.index,
		Length:     p.length,
		Mode:       p.mode,
		Speed:      p.speed,
		Loop:       p.loop,
		IntervalMS: p.interval().Milliseconds(),
	}
	if d, err := p.source.Timeline().DateAt(p.index); err == nil {
		s.Date = &d
	}
	return s
}

func (p *Player) interval() time.Duration {
	return time.Duration(float64(p.base) / p.speed)
}

// Play starts the timer. Playing from the stopped end of the timeline restarts at 0.
func (p *Player) Play() State {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed || p.length == 0 || p.status == StatusPlaying {
		return p.stateLocked()
	}
	if p.status == StatusStopped && p.index >= p.length-1 {
		p.index = 0
		p.emitLocked()
	}
	p.setStatusLocked(StatusPlaying)
	p.startTickerLocked()
	return p.stateLocked()
}

// Pause stops the timer and keeps the current index.
func (p *Player) Pause() State {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.status == StatusPlaying {
		p.stopTickerLocked()
		p.setStatusLocked(StatusPaused)
	}
	return p.stateLocked()
}

// Toggle switches between playing and paused.
func (p *Player) Toggle() State {
	if p.State().Status == StatusPlaying {
		return p.Pause()
	}
	return p.Play()
}

// Step pauses and moves the index by n, clamped to the timeline.
func (p *Player) Step(n int) State {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed || p.length == 0 {
		return p.stateLocked()
	}
	p.stopTickerLocked()
	p.setStatusLocked(StatusPaused)
	p.moveLocked(clamp(p.index+n, 0, p.length-1))
	return p.stateLocked()
}

// Seek moves to index i. A playing player keeps playing from there and a
// stopped one becomes paused.
func (p *Player) Seek(i int) (State, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return p.stateLocked(), nil
	}
	if i < 0 || i >= p.length {
		return p.stateLocked(), fmt.Errorf("%w: %d not in [0,%d)", domain.ErrIndexOutOfRange, i, p.length)
	}
	if p.status == StatusStopped {
		p.setStatusLocked(StatusPaused)
	}
	p.moveLocked(i)
	return p.stateLocked(), nil
}

// SetMode changes the filtering mode and re-emits the current frame.
func (p *Player) SetMode(m domain.Mode) (State, error) {
	if _, err := domain.ParseMode(string(m)); err != nil || m == "" {
		return p.State(), fmt.Errorf("%w: %q", domain.ErrUnknownMode, m)
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.mode != m {
		p.mode = m
		p.emitLocked()
	}
	return p.stateLocked(), nil
}

// SetSpeed changes the speed multiplier. A running timer is reset to the new interval.
func (p *Player) SetSpeed(speed float64) (State, error) {
	if !validSpeed(speed) {
		return p.State(), fmt.Errorf("%w: %v", ErrInvalidSpeed, speed)
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	p.speed = speed
	if p.ticker != nil {
		p.ticker.Reset(p.interval())
	}
	return p.stateLocked(), nil
}

// SetLoop toggles wrap-around at the end of the timeline.
func (p *Player) SetLoop(loop bool) State {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.loop = loop
	return p.stateLocked()
}

// Reset stops the timer and rewinds to index 0 over tl. It is registered with
// the catalog so a reload never leaves the player pointing past the new range.
func (p *Player) Reset(tl *domain.Timeline) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return
	}
	p.stopTickerLocked()
	p.length = tl.Len()
	p.index = 0
	if p.length == 0 {
		p.setStatusLocked(StatusStopped)
		return
	}
	p.setStatusLocked(StatusPaused)
	p.emitLocked()
}

// Subscribe returns a channel of emitted frames and a function to release it.
// Frames are dropped for a subscriber whose buffer is full.
func (p *Player) Subscribe(buffer int) (<-chan domain.Frame, func()) {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan domain.Frame, buffer)

	p.subMu.Lock()
	if p.subs == nil {
		p.subMu.Unlock()
		close(ch)
		return ch, func() {}
	}
	id := p.nextID
	p.nextID++
	p.subs[id] = ch
	p.subMu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			p.subMu.Lock()
			if _, ok := p.subs[id]; ok {
				delete(p.subs, id)
				close(ch)
			}
			p.subMu.Unlock()
		})
	}
}

// Run blocks until ctx is done, then closes the player.
func (p *Player) Run(ctx context.Context) {
	<-ctx.Done()
	p.Close()
}

// Close stops the timer, flushes the sink, and closes every subscriber channel.
func (p *Player) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.stopTickerLocked()
	p.closed = true
	p.setStatusLocked(StatusStopped)
	p.mu.Unlock()

	if p.sinkCh != nil {
		close(p.sinkCh)
		<-p.sinkDone
	}

	p.subMu.Lock()
	for _, ch := range p.subs {
		close(ch)
	}
	p.subs = nil
	p.subMu.Unlock()
}

// tick advances one day. done identifies the timer that fired so a tick
// racing with a stop and restart is discarded.
func (p *Player) tick(done <-chan struct{}) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.status != StatusPlaying || p.done != done {
		return
	}
	p.metrics.PlaybackTicks.Inc()

	next := p.index + 1
	if next >= p.length {
		if !p.loop {
			p.stopTickerLocked()
			p.setStatusLocked(StatusStopped)
			return
		}
		next = 0
	}
	p.moveLocked(next)
}

func (p *Player) moveLocked(i int) {
	if i == p.index {
		return
	}
	p.index = i
	p.emitLocked()
}

func (p *Player) setStatusLocked(s Status) {
	p.status = s
	p.metrics.PlaybackState.Set(s.gauge())
}

func (p *Player) startTickerLocked() {
	p.ticker = p.clock.NewTicker(p.interval())
	p.done = make(chan struct{})
	go p.run(p.ticker, p.done)
}

func (p *Player) stopTickerLocked() {
	if p.ticker == nil {
		return
	}
	p.ticker.Stop()
	close(p.done)
	p.ticker = nil
	p.done = nil
}

func (p *Player) run(t clockwork.Ticker, done <-chan struct{}) {
	for {
		select {
		case <-done:
			return
		case <-t.Chan():
			p.tick(done)
		}
	}
}

// emitLocked builds the current frame and fans it out. Callers hold p.mu so
// frames reach subscribers in index order.
func (p *Player) emitLocked() {
	if p.closed {
		return
	}
	f, err := p.source.Frame(p.mode, p.index)
	if err != nil {
		p.logger.Warn("playback frame unavailable", "index", p.index, "mode", p.mode, "error", err)
		return
	}

	p.subMu.Lock()
	for _, ch := range p.subs {
		select {
		case ch <- f:
		default:
		}
	}
	p.subMu.Unlock()

	if p.sinkCh != nil {
		select {
		case p.sinkCh <- f:
		default:
			p.logger.Warn("frame sink backlog full, dropping frame", "index", f.Index)
		}
	}
}

func (p *Player) drainSink() {
	defer close(p.sinkDone)
	for f := range p.sinkCh {
		if err := p.sink.PublishFrame(context.Background(), f); err != nil {
			p.logger.Error("publish frame failed", "index", f.Index, "error", err)
		}
	}
}

func validSpeed(s float64) bool {
	for _, v := range Speeds {
		if v == s {
			return true
		}
	}
	return false
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
