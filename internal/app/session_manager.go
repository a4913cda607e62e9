package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/MrWong99/drumcoach/internal/config"
	"github.com/MrWong99/drumcoach/internal/observe"
	"github.com/MrWong99/drumcoach/internal/schedule"
	"github.com/MrWong99/drumcoach/internal/scoring"
	"github.com/MrWong99/drumcoach/internal/session"
	"github.com/MrWong99/drumcoach/internal/stats"
	"github.com/MrWong99/drumcoach/pkg/audio"
	"github.com/MrWong99/drumcoach/pkg/types"
)

var (
	// ErrSessionActive is returned by [SessionManager.Start] while a session
	// is running.
	ErrSessionActive = errors.New("app: a session is already active")

	// ErrNoSession is returned when an operation needs a session and there
	// is none, running or finished.
	ErrNoSession = errors.New("app: no active session")
)

// StartRequest overrides the configured session for one run. Zero fields
// keep the configured value. Setting any of Notes, Pattern or Preset
// replaces the configured schedule as a whole.
type StartRequest struct {
	Preset  string             `json:"preset,omitempty"`
	BPM     int                `json:"bpm,omitempty"`
	Loops   int                `json:"loops,omitempty"`
	Pattern map[string]string  `json:"pattern,omitempty"`
	Notes   []config.NoteEntry `json:"notes,omitempty"`

	// Source and Path select the audio input.
	Source string `json:"source,omitempty"`
	Path   string `json:"path,omitempty"`
	Paced  *bool  `json:"paced,omitempty"`

	Matching   scoring.Matching   `json:"matching,omitempty"`
	Strictness scoring.Strictness `json:"strictness,omitempty"`

	Duration  Duration `json:"duration,omitempty"`
	NoteLimit int      `json:"note_limit,omitempty"`
}

// Duration is a [time.Duration] that reads from JSON either as a duration
// string such as "30s" or as integer nanoseconds, and writes as a string.
type Duration time.Duration

// UnmarshalJSON implements [json.Unmarshaler].
func (d *Duration) UnmarshalJSON(b []byte) error {
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	switch v := v.(type) {
	case string:
		parsed, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("app: duration: %w", err)
		}
		*d = Duration(parsed)
	case float64:
		*d = Duration(time.Duration(v))
	default:
		return fmt.Errorf("app: duration must be a string or a number, got %s", b)
	}
	return nil
}

// MarshalJSON implements [json.Marshaler].
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// SessionInfo holds metadata about the current or last session.
type SessionInfo struct {
	SessionID  string             `json:"session_id"`
	Label      string             `json:"label"`
	Source     string             `json:"source"`
	Notes      int                `json:"notes"`
	Matching   scoring.Matching   `json:"matching"`
	Strictness scoring.Strictness `json:"strictness"`
	StartedAt  time.Time          `json:"started_at"`
	Active     bool               `json:"active"`
}

// SessionManager runs practice sessions one at a time.
// All exported methods are safe for concurrent use.
type SessionManager struct {
	mu     sync.Mutex
	active bool
	info   SessionInfo
	sess   *session.Session
	cancel context.CancelFunc

	// last is the most recent session, kept after it ends so its result
	// stays readable.
	last *session.Session

	// inputErr is the error of the most recent failed input start.
	inputErr error

	config   func() *config.Config
	registry *config.Registry
	metrics  *observe.Metrics
}

// SessionManagerConfig holds all dependencies for a [SessionManager].
type SessionManagerConfig struct {
	// Config returns the configuration new sessions are built from. It is
	// called on every Start so reloaded configs apply to the next session.
	Config func() *config.Config

	// Registry builds audio sources by name.
	Registry *config.Registry

	// Metrics is passed to every session. Nil means [observe.DefaultMetrics].
	Metrics *observe.Metrics
}

// NewSessionManager creates a SessionManager with the given dependencies.
func NewSessionManager(cfg SessionManagerConfig) *SessionManager {
	sm := &SessionManager{
		config:   cfg.Config,
		registry: cfg.Registry,
		metrics:  cfg.Metrics,
	}
	if sm.config == nil {
		sm.config = config.Default
	}
	if sm.registry == nil {
		sm.registry = config.NewRegistry()
	}
	if sm.metrics == nil {
		sm.metrics = observe.DefaultMetrics()
	}
	return sm
}

// Start builds a session from the current config merged with req, opens its
// audio input and runs it in the background until it ends or [Stop] is
// called. The session does not inherit ctx's cancellation; ctx only scopes
// the start itself.
//
// Returns [ErrSessionActive] if a session is running, an error wrapping
// [audio.ErrNoInput] if the input cannot be opened and
// [config.ErrSourceNotRegistered] for unknown sources.
func (sm *SessionManager) Start(ctx context.Context, req StartRequest) (SessionInfo, error) {
	return sm.start(ctx, req, nil)
}

// Follow starts a session like [SessionManager.Start] and blocks until it
// ends, passing every scoring event to onEvent. Cancelling ctx stops the
// session unless it has already ended. It returns the final result.
func (sm *SessionManager) Follow(ctx context.Context, req StartRequest, onEvent func(scoring.Event)) (session.Result, error) {
	var (
		sess   *session.Session
		events <-chan scoring.Event
		cancel func()
	)
	_, err := sm.start(ctx, req, func(s *session.Session) {
		sess = s
		events, cancel = s.Subscribe()
	})
	if err != nil {
		return session.Result{}, err
	}
	defer cancel()

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return sess.Result(), nil
			}
			if onEvent != nil {
				onEvent(ev)
			}
		case <-ctx.Done():
			// Stopping a session that ended on its own is a no-op.
			sess.Stop()
			select {
			case <-sess.Done():
			case <-time.After(stopTimeout):
				return sess.Result(), fmt.Errorf("app: wait for session stop: %w", context.DeadlineExceeded)
			}
			sm.release(sess)
			return sess.Result(), nil
		}
	}
}

// start launches a session. attach, when set, sees the session before it runs.
func (sm *SessionManager) start(ctx context.Context, req StartRequest, attach func(*session.Session)) (SessionInfo, error) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if sm.active {
		return SessionInfo{}, fmt.Errorf("%w (id=%s)", ErrSessionActive, sm.info.SessionID)
	}

	ctx, span := observe.StartSpan(ctx, "session.start")
	defer span.End()

	cfg := sm.config()
	input, sessCfg, tuning := merge(cfg, req)
	if err := tuning.Validate(); err != nil {
		return SessionInfo{}, fmt.Errorf("app: invalid session config: %w", err)
	}
	notes, err := sessCfg.Schedule()
	if err != nil {
		return SessionInfo{}, fmt.Errorf("app: build schedule: %w", err)
	}

	label := scheduleLabel(sessCfg)
	id := fmt.Sprintf("session-%s-%s", sanitizeName(label), uuid.NewString()[:8])

	sess, err := session.New(tuning, notes,
		session.WithID(id),
		session.WithMetrics(sm.metrics),
	)
	if err != nil {
		return SessionInfo{}, fmt.Errorf("app: create session: %w", err)
	}

	sessCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))

	var src audio.Source
	if input.Source != config.SourceNone {
		src, err = sm.openSource(sessCtx, input, notes)
		if err != nil {
			cancel()
			span.RecordError(err)
			return SessionInfo{}, err
		}
	}
	sm.inputErr = nil

	sm.active = true
	sm.sess = sess
	sm.last = sess
	sm.cancel = cancel
	sm.info = SessionInfo{
		SessionID:  id,
		Label:      label,
		Source:     input.Source,
		Notes:      len(notes),
		Matching:   tuning.Scoring.Matching,
		Strictness: tuning.Scoring.Strictness,
		StartedAt:  time.Now().UTC(),
		Active:     true,
	}

	if attach != nil {
		attach(sess)
	}
	go sm.run(sessCtx, sess, src)

	observe.Logger(ctx).Info("session started",
		"session_id", id,
		"label", label,
		"source", input.Source,
		"notes", len(notes),
	)
	return sm.info, nil
}

// openSource builds and starts the audio input. A failure is remembered for
// the readiness check.
func (sm *SessionManager) openSource(ctx context.Context, input config.InputConfig, notes []schedule.Note) (audio.Source, error) {
	src, err := sm.registry.CreateSource(config.SourceRequest{Input: input, Notes: notes})
	if err != nil {
		return nil, fmt.Errorf("app: create source: %w", err)
	}
	frames, err := src.Start(ctx)
	if err != nil {
		_ = src.Close()
		sm.inputErr = err
		return nil, fmt.Errorf("app: start input: %w", err)
	}
	return &openedSource{Source: src, frames: frames}, nil
}

// run drives sess to completion and clears the active slot.
func (sm *SessionManager) run(ctx context.Context, sess *session.Session, src audio.Source) {
	res, err := sess.Run(ctx, src)
	if err != nil {
		slog.Warn("session run failed", "session_id", sess.ID(), "err", err)
	}

	sm.release(sess)
	slog.Info("session finished", "session_id", sess.ID(), "reason", res.Reason, "accuracy", res.Accuracy)
}

// release frees the active slot if sess still holds it.
func (sm *SessionManager) release(sess *session.Session) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	if sm.sess != sess {
		return
	}
	sm.active = false
	sm.sess = nil
	sm.info.Active = false
	if sm.cancel != nil {
		sm.cancel()
		sm.cancel = nil
	}
}

// Stop ends the active session and waits for it to finish or for ctx to
// expire. It returns the final result.
//
// Returns [ErrNoSession] if no session is active.
func (sm *SessionManager) Stop(ctx context.Context) (session.Result, error) {
	sm.mu.Lock()
	sess := sm.sess
	sm.mu.Unlock()
	if sess == nil {
		return session.Result{}, ErrNoSession
	}

	sess.Stop()
	select {
	case <-sess.Done():
	case <-ctx.Done():
		return sess.Result(), fmt.Errorf("app: wait for session stop: %w", ctx.Err())
	}
	sm.release(sess)
	return sess.Result(), nil
}

// IsActive reports whether a session is currently running.
func (sm *SessionManager) IsActive() bool {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return sm.active
}

// Info returns metadata about the current or most recent session.
// Returns the zero value if there has been none.
func (sm *SessionManager) Info() SessionInfo {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return sm.info
}

// current returns the running session or, failing that, the last one.
func (sm *SessionManager) current() (*session.Session, error) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	if sm.last == nil {
		return nil, ErrNoSession
	}
	return sm.last, nil
}

// Result returns the running or most recent session's result.
func (sm *SessionManager) Result() (session.Result, error) {
	sess, err := sm.current()
	if err != nil {
		return session.Result{}, err
	}
	return sess.Result(), nil
}

// Stats returns the running or most recent session's counters.
func (sm *SessionManager) Stats() (stats.TimingStats, error) {
	sess, err := sm.current()
	if err != nil {
		return stats.TimingStats{}, err
	}
	return sess.Stats(), nil
}

// Notes returns the running or most recent session's schedule with verdicts.
func (sm *SessionManager) Notes() ([]schedule.Note, error) {
	sess, err := sm.current()
	if err != nil {
		return nil, err
	}
	return sess.Notes(), nil
}

// Subscribe attaches to the running session's event stream. The returned
// channel closes when the session ends or cancel is called. The stats
// function reads the live counters of the same session.
func (sm *SessionManager) Subscribe() (events <-chan scoring.Event, cancel func(), snapshot func() stats.TimingStats, err error) {
	sm.mu.Lock()
	sess := sm.sess
	sm.mu.Unlock()
	if sess == nil {
		return nil, nil, nil, ErrNoSession
	}
	events, cancel = sess.Subscribe()
	return events, cancel, sess.Stats, nil
}

// Tap submits a hit of inst at the current session time, as a UI drum pad
// would.
func (sm *SessionManager) Tap(inst types.Instrument) error {
	sm.mu.Lock()
	sess := sm.sess
	sm.mu.Unlock()
	if sess == nil {
		return ErrNoSession
	}
	if !inst.IsValid() {
		return fmt.Errorf("app: cannot tap %v", inst)
	}
	if !sess.Tap(inst) {
		return errors.New("app: hit dropped")
	}
	return nil
}

// CheckInput is a readiness probe: it fails while the most recent start
// could not open its audio input.
func (sm *SessionManager) CheckInput(_ context.Context) error {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	if sm.inputErr != nil {
		return fmt.Errorf("not running: %w", sm.inputErr)
	}
	return nil
}

// merge applies req on top of cfg.
func merge(cfg *config.Config, req StartRequest) (config.InputConfig, config.SessionConfig, session.Config) {
	input := cfg.Input
	if req.Source != "" {
		input.Source = req.Source
	}
	if req.Path != "" {
		input.Path = req.Path
	}
	if req.Paced != nil {
		input.Paced = *req.Paced
	}

	sessCfg := cfg.Session
	if len(req.Notes) > 0 || len(req.Pattern) > 0 || req.Preset != "" {
		sessCfg.Notes = req.Notes
		sessCfg.Pattern = req.Pattern
		sessCfg.Preset = req.Preset
		sessCfg.BPM = req.BPM
		sessCfg.Loops = req.Loops
	} else {
		if req.BPM != 0 {
			sessCfg.BPM = req.BPM
		}
		if req.Loops != 0 {
			sessCfg.Loops = req.Loops
		}
	}
	if req.Duration != 0 {
		sessCfg.Duration = time.Duration(req.Duration)
	}
	if req.NoteLimit != 0 {
		sessCfg.NoteLimit = req.NoteLimit
	}

	c := *cfg
	c.Session = sessCfg
	tuning := c.Tuning()
	if req.Matching != "" {
		tuning.Scoring.Matching = req.Matching
	}
	if req.Strictness != "" {
		tuning.Scoring.Strictness = req.Strictness
	}
	return input, sessCfg, tuning
}

// scheduleLabel names the schedule form a session config resolves to.
func scheduleLabel(s config.SessionConfig) string {
	switch {
	case len(s.Notes) > 0:
		return "notes"
	case len(s.Pattern) > 0:
		return "pattern"
	default:
		return s.Preset
	}
}

// sanitizeName replaces spaces with hyphens and lowercases a name
// for use in session IDs.
func sanitizeName(name string) string {
	name = strings.ToLower(name)
	name = strings.ReplaceAll(name, " ", "-")
	return name
}

// openedSource hands an already started source to [session.Session.Run].
type openedSource struct {
	audio.Source
	frames <-chan audio.AudioFrame
}

func (o *openedSource) Start(context.Context) (<-chan audio.AudioFrame, error) {
	return o.frames, nil
}
