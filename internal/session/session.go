// Package session runs one practice session: it owns the detector, the
// scorer, the stats and the schedule, and drives them from a single event
// loop.
//
// The loop selects over analysis frames from an [audio.Source], synthetic
// hits submitted through [Session.SubmitHit] or [Session.Tap], a periodic
// missed-note sweep, and stop/cancel signals. All mutation happens on that
// goroutine; readers use the snapshot methods, which are safe for concurrent
// use.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/MrWong99/drumcoach/internal/analysis"
	"github.com/MrWong99/drumcoach/internal/observe"
	"github.com/MrWong99/drumcoach/internal/onset"
	"github.com/MrWong99/drumcoach/internal/schedule"
	"github.com/MrWong99/drumcoach/internal/scoring"
	"github.com/MrWong99/drumcoach/internal/stats"
	"github.com/MrWong99/drumcoach/pkg/audio"
	"github.com/MrWong99/drumcoach/pkg/types"
)

// ErrAlreadyStarted is returned by [Session.Run] when called more than once.
var ErrAlreadyStarted = errors.New("session: already started")

const (
	defaultSubscriberBuffer = 64
	hitQueueSize            = 64
)

// EndReason tells why a session stopped.
type EndReason string

const (
	EndStopped    EndReason = "stopped"
	EndCancelled  EndReason = "cancelled"
	EndInputEnded EndReason = "input_ended"
	EndDuration   EndReason = "duration"
	EndNoteLimit  EndReason = "note_limit"
	EndComplete   EndReason = "complete"
	EndNoInput    EndReason = "no_input"
)

// Clock returns the current time. Session time is measured from the value it
// returns when [Session.Run] starts.
type Clock func() time.Time

// Result is the state of a session. Reason is empty while it is running.
type Result struct {
	ID       string            `json:"id"`
	Reason   EndReason         `json:"reason,omitempty"`
	Stats    stats.TimingStats `json:"stats"`
	Accuracy int               `json:"accuracy"`
	Notes    []schedule.Note   `json:"notes"`
	Elapsed  time.Duration     `json:"elapsed"`
}

// Option configures a [Session].
type Option func(*Session)

// WithClock replaces the wall clock, mainly for tests.
func WithClock(c Clock) Option {
	return func(s *Session) {
		if c != nil {
			s.clock = c
		}
	}
}

// WithMetrics sets the metrics the session records to. Default:
// [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Session) {
		if m != nil {
			s.metrics = m
		}
	}
}

// WithID sets the identifier used in logs and results.
func WithID(id string) Option {
	return func(s *Session) {
		s.id = id
	}
}

// WithSubscriberBuffer sets the channel capacity of each subscriber.
// Default: 64.
func WithSubscriberBuffer(n int) Option {
	return func(s *Session) {
		if n > 0 {
			s.subBuffer = n
		}
	}
}

// input is a hit submitted from outside the audio path.
type input struct {
	hit types.DetectedHit

	// inst is used as the inferred instrument when known is set.
	inst  types.Instrument
	known bool

	// stamp replaces hit.Time with the session time at processing.
	stamp bool
}

// Session is the explicit state of one run. Create one with [New] and call
// [Session.Run] exactly once.
type Session struct {
	id        string
	cfg       Config
	clock     Clock
	metrics   *observe.Metrics
	subBuffer int

	detector *onset.Detector
	scorer   *scoring.Scorer
	stats    *stats.Aggregator

	hits     chan input
	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}

	// lastFrame holds the latest frame timestamp in seconds as float64 bits.
	lastFrame atomic.Uint64

	mu      sync.Mutex
	started bool
	start   time.Time
	reason  EndReason
	elapsed time.Duration
	subs    map[int]chan scoring.Event
	nextSub int
}

// New validates cfg and builds a session over notes.
func New(cfg Config, notes []schedule.Note, opts ...Option) (*Session, error) {
	if cfg.SweepInterval == 0 {
		cfg.SweepInterval = DefaultSweepInterval
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if len(notes) == 0 {
		return nil, errors.New("session: schedule has no notes")
	}

	agg := stats.NewAggregator()
	scorer, err := scoring.New(cfg.Scoring, schedule.New(notes), agg)
	if err != nil {
		return nil, err
	}

	s := &Session{
		cfg:       cfg,
		clock:     time.Now,
		metrics:   observe.DefaultMetrics(),
		subBuffer: defaultSubscriberBuffer,
		detector:  onset.NewDetector(cfg.Detector),
		scorer:    scorer,
		stats:     agg,
		hits:      make(chan input, hitQueueSize),
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
		subs:      make(map[int]chan scoring.Event),
	}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// Config returns the session configuration.
func (s *Session) Config() Config { return s.cfg }

// Run starts src (which may be nil for hit-only sessions) and processes events
// until an end condition is met. It returns the final result. An error is
// returned when the session was already started or src could not start; in
// the latter case the session ends with [EndNoInput].
func (s *Session) Run(ctx context.Context, src audio.Source) (Result, error) {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return Result{}, ErrAlreadyStarted
	}
	s.started = true
	s.mu.Unlock()

	ctx, span := observe.StartSpan(ctx, "session.run",
		trace.WithAttributes(
			attribute.String("session.id", s.id),
			attribute.Int("session.notes", len(s.scorer.Notes())),
			attribute.String("scoring.matching", string(s.cfg.Scoring.Matching)),
			attribute.String("scoring.strictness", string(s.cfg.Scoring.Strictness)),
		),
	)
	defer span.End()
	log := observe.Logger(ctx).With("session_id", s.id)

	var frames <-chan audio.AudioFrame
	if src != nil {
		var err error
		if frames, err = src.Start(ctx); err != nil {
			s.finish(EndNoInput)
			span.RecordError(err)
			return s.Result(), fmt.Errorf("session: start input: %w", err)
		}
		defer func() {
			if err := src.Close(); err != nil {
				log.Warn("failed to close audio source", "err", err)
			}
			// A source may still be blocked sending when the loop quits early.
			go audio.Drain(frames)
		}()
	}

	s.mu.Lock()
	s.start = s.clock()
	s.mu.Unlock()

	s.metrics.ActiveSessions.Add(ctx, 1)
	defer s.metrics.ActiveSessions.Add(ctx, -1)

	log.Info("session started",
		"notes", len(s.scorer.Notes()),
		"matching", s.cfg.Scoring.Matching,
		"strictness", s.cfg.Scoring.Strictness,
		"audio", src != nil,
	)

	reason := s.loop(ctx, frames)
	s.finish(reason)

	res := s.Result()
	span.SetAttributes(
		attribute.String("session.end_reason", string(reason)),
		attribute.Int("session.accuracy", res.Accuracy),
	)
	log.Info("session ended",
		"reason", reason,
		"accuracy", res.Accuracy,
		"perfect", res.Stats.PerfectHits,
		"good", res.Stats.GoodHits,
		"missed", res.Stats.MissedHits,
		"best_streak", res.Stats.BestStreak,
	)
	return res, nil
}

// loop is the single goroutine that mutates session state. Stop and
// cancellation win over queued frames and hits.
func (s *Session) loop(ctx context.Context, frames <-chan audio.AudioFrame) EndReason {
	ticker := time.NewTicker(s.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		if reason, ok := s.halted(ctx); ok {
			return reason
		}
		select {
		case <-ctx.Done():
			return EndCancelled
		case <-s.stop:
			return EndStopped
		case f, ok := <-frames:
			if reason, stopped := s.halted(ctx); stopped {
				return reason
			}
			if !ok {
				// Input is over: nothing left can be answered.
				s.sweep(ctx, math.Inf(1))
				return EndInputEnded
			}
			s.onFrame(ctx, f)
		case in := <-s.hits:
			if reason, stopped := s.halted(ctx); stopped {
				return reason
			}
			s.onInput(ctx, in)
		case <-ticker.C:
			s.sweep(ctx, s.now())
		}

		if reason, ok := s.ended(); ok {
			return reason
		}
	}
}

// halted reports, without blocking, whether Stop was called or ctx is done.
func (s *Session) halted(ctx context.Context) (EndReason, bool) {
	select {
	case <-s.stop:
		return EndStopped, true
	case <-ctx.Done():
		return EndCancelled, true
	default:
		return "", false
	}
}

func (s *Session) onFrame(ctx context.Context, f audio.AudioFrame) {
	begin := time.Now()
	at := f.Timestamp.Seconds()
	if at > math.Float64frombits(s.lastFrame.Load()) {
		s.lastFrame.Store(math.Float64bits(at))
	}

	m := analysis.Analyze(f, s.cfg.Bands)
	hit, ok := s.detector.Push(m, at)
	s.metrics.RecordFrameAnalysis(ctx, time.Since(begin))
	if ok {
		s.score(ctx, hit, s.cfg.Detector.Instruments.Infer(hit))
	}
	s.sweep(ctx, s.now())
}

func (s *Session) onInput(ctx context.Context, in input) {
	if in.stamp {
		in.hit.Time = s.now()
	}
	inst := in.inst
	if !in.known {
		inst = s.cfg.Detector.Instruments.Infer(in.hit)
	}
	s.score(ctx, in.hit, inst)
}

func (s *Session) score(ctx context.Context, hit types.DetectedHit, inst types.Instrument) {
	s.metrics.RecordOnset(ctx, inst.String())
	if ev, ok := s.scorer.OnHit(hit, inst); ok {
		s.publish(ctx, ev)
		return
	}
	slog.Debug("hit discarded", "session_id", s.id, "time", hit.Time, "instrument", inst)
}

// sweep reports overdue notes as missed. With a note limit it evaluates no
// more notes than the limit leaves.
func (s *Session) sweep(ctx context.Context, now float64) {
	limit := 0
	if s.cfg.NoteLimit > 0 {
		limit = s.cfg.NoteLimit - s.scorer.Evaluated()
		if limit <= 0 {
			return
		}
	}
	for _, ev := range s.scorer.SweepLimit(now, limit) {
		s.publish(ctx, ev)
	}
}

// ended checks the end conditions other than stop and input. Sweeps never
// evaluate past NoteLimit.
func (s *Session) ended() (EndReason, bool) {
	if s.cfg.NoteLimit > 0 && s.scorer.Evaluated() >= s.cfg.NoteLimit {
		return EndNoteLimit, true
	}
	if s.scorer.Done() {
		return EndComplete, true
	}
	if s.cfg.Duration > 0 && s.now() >= s.cfg.Duration.Seconds() {
		return EndDuration, true
	}
	return "", false
}

// now returns the session time in seconds: wall time since start, or the
// latest frame timestamp when input runs ahead of the clock (unpaced replay).
func (s *Session) now() float64 {
	s.mu.Lock()
	var wall float64
	if !s.start.IsZero() {
		wall = s.clock().Sub(s.start).Seconds()
	}
	s.mu.Unlock()
	return max(wall, math.Float64frombits(s.lastFrame.Load()))
}

// Elapsed returns the current session time.
func (s *Session) Elapsed() time.Duration {
	s.mu.Lock()
	ended, elapsed := s.reason != "", s.elapsed
	s.mu.Unlock()
	if ended {
		return elapsed
	}
	return seconds(s.now())
}

func seconds(f float64) time.Duration {
	return time.Duration(f * float64(time.Second))
}

func (s *Session) publish(ctx context.Context, ev scoring.Event) {
	matched := ev.NoteIndex >= 0 && ev.Verdict != scoring.VerdictMissed
	s.metrics.RecordVerdict(ctx, ev.Verdict.String(), ev.Outcome.String(), ev.SignedErrorMs, matched)

	s.mu.Lock()
	defer s.mu.Unlock()
	for id, ch := range s.subs {
		select {
		case ch <- ev:
		default:
			slog.Warn("subscriber too slow, dropping event",
				"session_id", s.id,
				"subscriber", id,
				"note_index", ev.NoteIndex,
			)
		}
	}
}

// finish records the end reason, closes subscriber channels and marks the
// session done.
func (s *Session) finish(reason EndReason) {
	elapsed := seconds(s.now())

	s.mu.Lock()
	s.reason = reason
	s.elapsed = elapsed
	for _, ch := range s.subs {
		close(ch)
	}
	s.subs = nil
	s.mu.Unlock()

	close(s.done)
}

// SubmitHit queues a synthetic hit; its Time is in session seconds and its
// instrument is inferred like a detected one. It reports false when the
// session has ended or the queue is full.
func (s *Session) SubmitHit(hit types.DetectedHit) bool {
	return s.submit(input{hit: hit})
}

// Tap queues a hit on inst at the current session time, skipping inference.
func (s *Session) Tap(inst types.Instrument) bool {
	return s.submit(input{
		hit:   types.DetectedHit{Amplitude: 1, IsHiHat: inst == types.HiHat || inst == types.OpenHat},
		inst:  inst,
		known: true,
		stamp: true,
	})
}

func (s *Session) submit(in input) bool {
	select {
	case <-s.done:
		return false
	default:
	}
	select {
	case s.hits <- in:
		return true
	default:
		slog.Warn("hit queue full, dropping hit", "session_id", s.id)
		return false
	}
}

// Stop ends the session. Hits still queued are discarded. Safe to call more
// than once and before Run.
func (s *Session) Stop() {
	s.stopOnce.Do(func() { close(s.stop) })
}

// Done is closed once the session has ended.
func (s *Session) Done() <-chan struct{} { return s.done }

// Subscribe returns a channel receiving every scoring event from now on and a
// function that unsubscribes. The channel is closed when the session ends or
// on unsubscribe. A subscriber that falls behind loses events.
func (s *Session) Subscribe() (<-chan scoring.Event, func()) {
	ch := make(chan scoring.Event, s.subBuffer)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.subs == nil {
		close(ch)
		return ch, func() {}
	}
	id := s.nextSub
	s.nextSub++
	s.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			if c, ok := s.subs[id]; ok {
				close(c)
				delete(s.subs, id)
			}
		})
	}
}

// Stats returns the current counters.
func (s *Session) Stats() stats.TimingStats { return s.stats.Snapshot() }

// Notes returns the schedule with current verdicts.
func (s *Session) Notes() []schedule.Note { return s.scorer.Notes() }

// Result returns the session state; final once [Session.Done] is closed.
func (s *Session) Result() Result {
	st := s.stats.Snapshot()
	s.mu.Lock()
	reason := s.reason
	s.mu.Unlock()
	return Result{
		ID:       s.id,
		Reason:   reason,
		Stats:    st,
		Accuracy: st.Accuracy(),
		Notes:    s.scorer.Notes(),
		Elapsed:  s.Elapsed(),
	}
}
