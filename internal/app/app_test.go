package app_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/MrWong99/drumcoach/internal/app"
	"github.com/MrWong99/drumcoach/internal/config"
	"github.com/MrWong99/drumcoach/pkg/audio"
	audiomock "github.com/MrWong99/drumcoach/pkg/audio/mock"
)

func newTestApp(t *testing.T, src *audiomock.Source, opts ...app.Option) *app.App {
	t.Helper()
	opts = append([]app.Option{app.WithRegistry(sourceRegistry(src))}, opts...)
	a, err := app.New(testConfig(), opts...)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = a.Shutdown(ctx)
	})
	return a
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r *http.Request
	if body == "" {
		r = httptest.NewRequest(method, path, nil)
	} else {
		r = httptest.NewRequest(method, path, strings.NewReader(body))
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	return w
}

func TestNew_NilConfig(t *testing.T) {
	t.Parallel()
	if _, err := app.New(nil); err == nil {
		t.Fatal("New(nil) succeeded, want error")
	}
}

func TestApp_SessionLifecycle(t *testing.T) {
	t.Parallel()

	a := newTestApp(t, &audiomock.Source{HoldOpen: true})
	h := a.Handler()

	if w := do(t, h, http.MethodGet, "/api/session", ""); w.Code != http.StatusNotFound {
		t.Errorf("GET before start: status = %d, want 404", w.Code)
	}

	w := do(t, h, http.MethodPost, "/api/session", `{"matching":"sequential"}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("POST: status = %d, want 201; body %s", w.Code, w.Body)
	}
	var info app.SessionInfo
	if err := json.NewDecoder(w.Body).Decode(&info); err != nil {
		t.Fatalf("decode info: %v", err)
	}
	if !info.Active || info.Notes != 3 || info.Matching != "sequential" {
		t.Errorf("info = %+v", info)
	}

	if w := do(t, h, http.MethodPost, "/api/session", ""); w.Code != http.StatusConflict {
		t.Errorf("second POST: status = %d, want 409", w.Code)
	}

	if w := do(t, h, http.MethodPost, "/api/session/hits", `{"instrument":"bass drum"}`); w.Code != http.StatusAccepted {
		t.Errorf("tap: status = %d, want 202; body %s", w.Code, w.Body)
	}

	w = do(t, h, http.MethodGet, "/api/session", "")
	if w.Code != http.StatusOK {
		t.Fatalf("GET: status = %d, want 200", w.Code)
	}
	var status struct {
		Info   app.SessionInfo `json:"info"`
		Result struct {
			ID    string `json:"id"`
			Notes []any  `json:"notes"`
		} `json:"result"`
	}
	if err := json.NewDecoder(w.Body).Decode(&status); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if status.Result.ID != info.SessionID || len(status.Result.Notes) != 3 {
		t.Errorf("status = %+v", status)
	}

	w = do(t, h, http.MethodDelete, "/api/session", "")
	if w.Code != http.StatusOK {
		t.Fatalf("DELETE: status = %d, want 200; body %s", w.Code, w.Body)
	}
	var res struct {
		Reason string `json:"reason"`
	}
	if err := json.NewDecoder(w.Body).Decode(&res); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if res.Reason != "stopped" {
		t.Errorf("reason = %q, want stopped", res.Reason)
	}

	if w := do(t, h, http.MethodDelete, "/api/session", ""); w.Code != http.StatusNotFound {
		t.Errorf("second DELETE: status = %d, want 404", w.Code)
	}
}

func TestApp_StartErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		src    *audiomock.Source
		body   string
		status int
	}{
		{
			name:   "malformed body",
			src:    &audiomock.Source{},
			body:   `{"preset":`,
			status: http.StatusBadRequest,
		},
		{
			name:   "unknown source",
			src:    &audiomock.Source{},
			body:   `{"source":"turntable"}`,
			status: http.StatusBadRequest,
		},
		{
			name:   "unknown preset",
			src:    &audiomock.Source{},
			body:   `{"preset":"polka"}`,
			status: http.StatusBadRequest,
		},
		{
			name:   "no input",
			src:    &audiomock.Source{StartError: fmt.Errorf("mock: %w", audio.ErrNoInput)},
			body:   `{}`,
			status: http.StatusServiceUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			a := newTestApp(t, tt.src)
			w := do(t, a.Handler(), http.MethodPost, "/api/session", tt.body)
			if w.Code != tt.status {
				t.Errorf("status = %d, want %d; body %s", w.Code, tt.status, w.Body)
			}
			var body map[string]string
			if err := json.NewDecoder(w.Body).Decode(&body); err != nil || body["error"] == "" {
				t.Errorf("error body = %v (%v)", body, err)
			}
		})
	}
}

func TestApp_StartWithDurationString(t *testing.T) {
	t.Parallel()

	a := newTestApp(t, &audiomock.Source{HoldOpen: true})
	h := a.Handler()

	if w := do(t, h, http.MethodPost, "/api/session", `{"duration":"soon"}`); w.Code != http.StatusBadRequest {
		t.Errorf("bad duration: status = %d, want 400", w.Code)
	}
	if w := do(t, h, http.MethodPost, "/api/session", `{"duration":"30s"}`); w.Code != http.StatusCreated {
		t.Errorf("duration string: status = %d, want 201; body %s", w.Code, w.Body)
	}
}

func TestApp_TapErrors(t *testing.T) {
	t.Parallel()

	a := newTestApp(t, &audiomock.Source{HoldOpen: true})
	h := a.Handler()

	if w := do(t, h, http.MethodPost, "/api/session/hits", `{"instrument":"kick"}`); w.Code != http.StatusConflict {
		t.Errorf("tap without session: status = %d, want 409", w.Code)
	}

	if w := do(t, h, http.MethodPost, "/api/session", ""); w.Code != http.StatusCreated {
		t.Fatalf("POST: status = %d", w.Code)
	}
	if w := do(t, h, http.MethodPost, "/api/session/hits", `{"instrument":"cowbell"}`); w.Code != http.StatusBadRequest {
		t.Errorf("unknown instrument: status = %d, want 400", w.Code)
	}
	if w := do(t, h, http.MethodPost, "/api/session/hits", `not json`); w.Code != http.StatusBadRequest {
		t.Errorf("bad body: status = %d, want 400", w.Code)
	}
}

func TestApp_Presets(t *testing.T) {
	t.Parallel()

	a := newTestApp(t, &audiomock.Source{})
	w := do(t, a.Handler(), http.MethodGet, "/api/presets", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var presets []struct {
		Name    string            `json:"name"`
		BPM     int               `json:"bpm"`
		Pattern map[string]string `json:"pattern"`
		Notes   []any             `json:"notes"`
	}
	if err := json.NewDecoder(w.Body).Decode(&presets); err != nil {
		t.Fatalf("decode: %v", err)
	}
	var rock bool
	for _, p := range presets {
		if p.Pattern == nil && len(p.Notes) == 0 {
			t.Errorf("preset %q has neither pattern nor notes", p.Name)
		}
		if p.Name == "rock" {
			rock = true
			if p.BPM == 0 || p.Pattern["kick"] == "" {
				t.Errorf("rock = %+v, want bpm and kick row", p)
			}
		}
	}
	if !rock {
		t.Error("rock preset missing")
	}
}

func TestApp_HealthAndMetrics(t *testing.T) {
	t.Parallel()

	a := newTestApp(t, &audiomock.Source{StartError: fmt.Errorf("mock: %w", audio.ErrNoInput)})
	h := a.Handler()

	if w := do(t, h, http.MethodGet, "/healthz", ""); w.Code != http.StatusOK {
		t.Errorf("healthz: status = %d", w.Code)
	}
	if w := do(t, h, http.MethodGet, "/readyz", ""); w.Code != http.StatusOK {
		t.Errorf("readyz before failure: status = %d, body %s", w.Code, w.Body)
	}

	do(t, h, http.MethodPost, "/api/session", "")
	w := do(t, h, http.MethodGet, "/readyz", "")
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("readyz after input failure: status = %d, want 503", w.Code)
	}
	if !strings.Contains(w.Body.String(), "input") {
		t.Errorf("readyz body %s does not name the input check", w.Body)
	}

	if w := do(t, h, http.MethodGet, "/metrics", ""); w.Code != http.StatusOK {
		t.Errorf("metrics: status = %d", w.Code)
	}
}

func TestApp_EventsWithoutSession(t *testing.T) {
	t.Parallel()

	a := newTestApp(t, &audiomock.Source{})
	srv := httptest.NewServer(a.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/session/events")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("status = %d, want 409", resp.StatusCode)
	}
}

func TestApp_OnConfigChange(t *testing.T) {
	t.Parallel()

	lv := new(slog.LevelVar)
	a := newTestApp(t, &audiomock.Source{}, app.WithLogLevel(lv))

	old := testConfig()
	updated := testConfig()
	updated.Server.LogLevel = config.LogDebug
	updated.Scoring.GraceWindow = 0.3

	a.OnConfigChange(old, updated)
	if lv.Level() != slog.LevelDebug {
		t.Errorf("level = %v, want debug", lv.Level())
	}
}

func TestApp_RunAndShutdown(t *testing.T) {
	t.Parallel()

	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	a := newTestApp(t, &audiomock.Source{HoldOpen: true}, app.WithListener(l))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	url := "http://" + l.Addr().String()
	resp, err := http.Post(url+"/api/session", "application/json", bytes.NewBufferString(`{}`))
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("POST status = %d, want 201", resp.StatusCode)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil && !errors.Is(err, context.Canceled) {
			t.Errorf("Run() error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	if a.Manager().IsActive() {
		t.Error("session still active after shutdown")
	}

	// Shutdown after Run is a no-op.
	if err := a.Shutdown(context.Background()); err != nil {
		t.Errorf("second Shutdown() error: %v", err)
	}
}
