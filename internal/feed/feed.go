// Package feed streams scoring events of the running session to WebSocket
// clients, one JSON message per event, each carrying the counters after the
// event was recorded.
package feed

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/coder/websocket"

	"github.com/MrWong99/drumcoach/internal/scoring"
	"github.com/MrWong99/drumcoach/internal/stats"
)

// writeTimeout bounds a single message write to a slow client.
const writeTimeout = 5 * time.Second

// Message types.
const (
	TypeEvent = "event"
	TypeEnd   = "end"
)

// Message is one WebSocket frame sent to clients.
type Message struct {
	Type     string            `json:"type"`
	Event    *scoring.Event    `json:"event,omitempty"`
	Stats    stats.TimingStats `json:"stats"`
	Accuracy int               `json:"accuracy"`
}

// Source yields the event stream of the running session. The stats function
// reads the counters of the same session.
type Source interface {
	Subscribe() (events <-chan scoring.Event, cancel func(), snapshot func() stats.TimingStats, err error)
}

// Option configures a [Handler].
type Option func(*Handler)

// WithAcceptOptions sets the WebSocket accept options, e.g. allowed origins.
func WithAcceptOptions(opts *websocket.AcceptOptions) Option {
	return func(h *Handler) {
		h.accept = opts
	}
}

// Handler upgrades requests to WebSocket and forwards events until the
// session ends or the client leaves.
type Handler struct {
	src    Source
	accept *websocket.AcceptOptions
}

// NewHandler returns a Handler streaming from src.
func NewHandler(src Source, opts ...Option) *Handler {
	h := &Handler{src: src}
	for _, o := range opts {
		o(h)
	}
	return h
}

// ServeHTTP implements [http.Handler]. Without a running session it answers
// 409 Conflict before upgrading.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	events, cancel, snapshot, err := h.src.Subscribe()
	if err != nil {
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}
	defer cancel()

	conn, err := websocket.Accept(w, r, h.accept)
	if err != nil {
		slog.Debug("feed: websocket accept failed", "err", err)
		return
	}
	defer conn.CloseNow()

	// Clients only listen; CloseRead handles their close frames and cancels
	// ctx when they go away.
	ctx := conn.CloseRead(r.Context())

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				st := snapshot()
				if err := write(ctx, conn, Message{Type: TypeEnd, Stats: st, Accuracy: st.Accuracy()}); err != nil {
					return
				}
				conn.Close(websocket.StatusNormalClosure, "session ended")
				return
			}
			st := snapshot()
			if err := write(ctx, conn, Message{Type: TypeEvent, Event: &ev, Stats: st, Accuracy: st.Accuracy()}); err != nil {
				if !errors.Is(err, context.Canceled) {
					slog.Debug("feed: write failed", "err", err)
				}
				return
			}
		}
	}
}

func write(ctx context.Context, conn *websocket.Conn, msg Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return conn.Write(ctx, websocket.MessageText, data)
}
