// Command drumcoach is the rhythm practice trainer. It either serves the HTTP
// and WebSocket surface or replays one recording through a session and prints
// the result.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hako/durafmt"

	"github.com/MrWong99/drumcoach/internal/app"
	"github.com/MrWong99/drumcoach/internal/config"
	"github.com/MrWong99/drumcoach/internal/observe"
	"github.com/MrWong99/drumcoach/internal/schedule"
	"github.com/MrWong99/drumcoach/internal/scoring"
	"github.com/MrWong99/drumcoach/pkg/audio"
	"github.com/MrWong99/drumcoach/pkg/audio/synth"
	"github.com/MrWong99/drumcoach/pkg/audio/wavfile"
)

// version is set at build time via -ldflags.
var version = "dev"

var shortUnits, _ = durafmt.DefaultUnitsCoder.Decode("y:yrs,wk:wks,d:d,h:h,m:m,s:s,ms:ms,us:us")

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "", "path to the YAML configuration file (built-in defaults when empty)")
	replay := flag.String("replay", "", "replay a WAV file through one session and print the result")
	synthetic := flag.Bool("synthetic", false, "replay synthetic clicks of the schedule through one session (one note per chord is missed)")
	preset := flag.String("preset", "", "built-in exercise to practise (see -presets)")
	listPresets := flag.Bool("presets", false, "list the built-in exercises and exit")
	serve := flag.Bool("serve", false, "serve the HTTP API (default unless -replay or -synthetic is given)")
	flag.Parse()

	if *listPresets {
		printPresets(os.Stdout)
		return 0
	}

	// ── Load configuration ────────────────────────────────────────────────────
	cfg := config.Default()
	if *configPath != "" {
		var err error
		cfg, err = config.Load(*configPath)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				fmt.Fprintf(os.Stderr, "drumcoach: config file %q not found\n", *configPath)
			} else {
				fmt.Fprintf(os.Stderr, "drumcoach: %v\n", err)
			}
			return 1
		}
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	level := new(slog.LevelVar)
	level.Set(cfg.Server.LogLevel.Level())
	slog.SetDefault(newLogger(level))

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	provider, err := observe.InitProvider(ctx, observe.ProviderConfig{ServiceVersion: version})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := provider.Shutdown(shutdownCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()
	metrics := observe.DefaultMetrics()

	// ── Source registry ───────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinSources(reg)

	req := app.StartRequest{Preset: *preset}
	switch {
	case *replay != "":
		req.Source, req.Path = config.SourceWAV, *replay
	case *synthetic:
		req.Source = config.SourceSynthetic
	}
	if req.Source != "" && !*serve {
		return replaySession(ctx, cfg, reg, metrics, req)
	}

	// ── Config watcher (optional) ─────────────────────────────────────────────
	var (
		application *app.App
		watcher     *config.Watcher
	)
	if *configPath != "" {
		watcher, err = config.NewWatcher(*configPath, func(old, new *config.Config) {
			application.OnConfigChange(old, new)
		})
		if err != nil {
			slog.Error("failed to start config watcher", "err", err)
			return 1
		}
	}

	opts := []app.Option{
		app.WithRegistry(reg),
		app.WithMetrics(metrics),
		app.WithProvider(provider),
		app.WithLogLevel(level),
	}
	if watcher != nil {
		opts = append(opts, app.WithWatcher(watcher))
	}
	application, err = app.New(cfg, opts...)
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}

	slog.Info("drumcoach starting",
		"version", version,
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
		"sources", reg.SourceNames(),
	)

	if err := application.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// replaySession runs one session to completion, printing every event and a
// final summary to stdout.
func replaySession(ctx context.Context, cfg *config.Config, reg *config.Registry, metrics *observe.Metrics, req app.StartRequest) int {
	paced := false
	req.Paced = &paced

	sm := app.NewSessionManager(app.SessionManagerConfig{
		Config:   func() *config.Config { return cfg },
		Registry: reg,
		Metrics:  metrics,
	})
	res, err := sm.Follow(ctx, req, func(ev scoring.Event) {
		printEvent(os.Stdout, ev)
	})
	if err != nil {
		slog.Error("session failed", "err", err)
		return 1
	}
	info := sm.Info()
	fmt.Printf("\n%s: %d notes (%s, %s)\n", info.Label, info.Notes, info.Matching, info.Strictness)
	st := res.Stats
	fmt.Printf("ended: %s after %s\n", res.Reason, durafmt.Parse(res.Elapsed).LimitFirstN(2).Format(shortUnits))
	fmt.Printf("accuracy %d%%  perfect %d  good %d  missed %d  best streak %d\n",
		res.Accuracy, st.PerfectHits, st.GoodHits, st.MissedHits, st.BestStreak)
	return 0
}

func printEvent(w io.Writer, ev scoring.Event) {
	switch ev.Verdict {
	case scoring.VerdictMissed:
		fmt.Fprintf(w, "%8.3fs  %-8s %s\n", ev.Note.Time, ev.Note.Instrument, ev.Verdict)
	case scoring.VerdictStray:
		fmt.Fprintf(w, "%8.3fs  %-8s %s\n", ev.HitTime, ev.Detected, ev.Verdict)
	default:
		fmt.Fprintf(w, "%8.3fs  %-8s %-16s %+7.1fms  (played %s)\n",
			ev.Note.Time, ev.Note.Instrument, ev.Verdict, ev.SignedErrorMs, ev.Detected)
	}
}

func printPresets(w io.Writer) {
	for _, p := range schedule.Presets() {
		if p.BPM > 0 {
			fmt.Fprintf(w, "%-12s %3d bpm  %s\n", p.Name, p.BPM, p.Description)
		} else {
			fmt.Fprintf(w, "%-12s          %s\n", p.Name, p.Description)
		}
	}
}

// ── Source wiring ─────────────────────────────────────────────────────────────

// registerBuiltinSources registers the audio sources that ship with drumcoach.
func registerBuiltinSources(reg *config.Registry) {
	reg.RegisterSource(config.SourceWAV, func(req config.SourceRequest) (audio.Source, error) {
		if req.Input.Path == "" {
			return nil, fmt.Errorf("wav source: %w: input.path is empty", audio.ErrNoInput)
		}
		return wavfile.New(req.Input.Path,
			wavfile.WithFrameSize(req.Input.FrameSize),
			wavfile.WithTickHz(req.Input.TickHz),
			wavfile.WithPaced(req.Input.Paced),
		), nil
	})

	reg.RegisterSource(config.SourceSynthetic, func(req config.SourceRequest) (audio.Source, error) {
		clicks := make([]synth.Click, len(req.Notes))
		for i, n := range req.Notes {
			clicks[i] = synth.Click{Time: n.Time, Instrument: n.Instrument}
		}
		return synth.New(clicks,
			synth.WithFrameSize(req.Input.FrameSize),
			synth.WithPaced(req.Input.Paced),
		), nil
	})
}

// newLogger creates a [*slog.Logger] writing text to stderr at the level held
// by lv, which config reloads may change.
func newLogger(lv *slog.LevelVar) *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lv}))
}
