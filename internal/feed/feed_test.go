package feed_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/MrWong99/drumcoach/internal/feed"
	"github.com/MrWong99/drumcoach/internal/schedule"
	"github.com/MrWong99/drumcoach/internal/scoring"
	"github.com/MrWong99/drumcoach/internal/stats"
	"github.com/MrWong99/drumcoach/pkg/types"
)

type fakeSource struct {
	mu        sync.Mutex
	events    chan scoring.Event
	agg       *stats.Aggregator
	err       error
	cancelled bool
}

func (f *fakeSource) Subscribe() (<-chan scoring.Event, func(), func() stats.TimingStats, error) {
	if f.err != nil {
		return nil, nil, nil, f.err
	}
	return f.events, func() {
		f.mu.Lock()
		f.cancelled = true
		f.mu.Unlock()
	}, f.agg.Snapshot, nil
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func readMessage(t *testing.T, ctx context.Context, conn *websocket.Conn) feed.Message {
	t.Helper()
	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var msg feed.Message
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("unmarshal %s: %v", data, err)
	}
	return msg
}

func TestHandler_StreamsEventsAndEnd(t *testing.T) {
	t.Parallel()
	src := &fakeSource{events: make(chan scoring.Event, 4), agg: stats.NewAggregator()}
	srv := httptest.NewServer(feed.NewHandler(src))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, wsURL(srv), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.CloseNow()

	src.agg.Record(types.OutcomePerfect)
	src.events <- scoring.Event{
		NoteIndex: 0,
		Note:      schedule.Identity{Time: 0.25, Instrument: types.HiHat, Index: 0},
		Verdict:   scoring.VerdictPerfect,
		Outcome:   types.OutcomePerfect,
		HitTime:   0.26,
		Detected:  types.HiHat,
	}

	msg := readMessage(t, ctx, conn)
	if msg.Type != feed.TypeEvent || msg.Event == nil {
		t.Fatalf("message = %+v, want event", msg)
	}
	if msg.Event.Verdict != scoring.VerdictPerfect || msg.Event.Note.Time != 0.25 || msg.Event.Detected != types.HiHat {
		t.Errorf("event = %+v", msg.Event)
	}
	if msg.Stats.PerfectHits != 1 || msg.Accuracy != 100 {
		t.Errorf("stats = %+v accuracy = %d", msg.Stats, msg.Accuracy)
	}

	src.agg.Record(types.OutcomeMissed)
	close(src.events)

	msg = readMessage(t, ctx, conn)
	if msg.Type != feed.TypeEnd || msg.Event != nil {
		t.Fatalf("message = %+v, want end", msg)
	}
	if msg.Stats.TotalHits != 2 || msg.Accuracy != 50 {
		t.Errorf("final stats = %+v accuracy = %d", msg.Stats, msg.Accuracy)
	}

	_, _, err = conn.Read(ctx)
	if websocket.CloseStatus(err) != websocket.StatusNormalClosure {
		t.Errorf("close status = %v, want normal closure (err %v)", websocket.CloseStatus(err), err)
	}
}

func TestHandler_NoSession(t *testing.T) {
	t.Parallel()
	src := &fakeSource{err: errors.New("app: no active session")}
	srv := httptest.NewServer(feed.NewHandler(src))
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusConflict)
	}
}

func TestHandler_ClientLeaveUnsubscribes(t *testing.T) {
	t.Parallel()
	src := &fakeSource{events: make(chan scoring.Event), agg: stats.NewAggregator()}
	srv := httptest.NewServer(feed.NewHandler(src))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, wsURL(srv), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	conn.Close(websocket.StatusNormalClosure, "bye")

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		src.mu.Lock()
		done := src.cancelled
		src.mu.Unlock()
		if done {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Error("handler did not unsubscribe after the client left")
}
