package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/quillpress/quill/internal/engine"
)

type staticCounter struct {
	total, pending int
	err            error
}

func (c staticCounter) Count(ctx context.Context) (int, error)        { return c.total, c.err }
func (c staticCounter) CountPending(ctx context.Context) (int, error) { return c.pending, c.err }

func startServer(t *testing.T) *Server {
	t.Helper()

	server := NewServer(&Config{Host: "127.0.0.1", Port: 0})
	if err := server.Start(); err != nil {
		t.Fatalf("Failed to start server: %v", err)
	}
	t.Cleanup(func() {
		if err := server.Stop(); err != nil {
			t.Errorf("Failed to stop server: %v", err)
		}
	})
	return server
}

func dial(t *testing.T, ctx context.Context, server *Server) *websocket.Conn {
	t.Helper()

	conn, _, err := websocket.Dial(ctx, "ws://"+server.GetAddr()+"/ws", nil)
	if err != nil {
		t.Fatalf("Failed to connect WebSocket: %v", err)
	}
	t.Cleanup(func() { conn.Close(websocket.StatusNormalClosure, "") })
	return conn
}

func readMessage(t *testing.T, ctx context.Context, conn *websocket.Conn) Message {
	t.Helper()

	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("Failed to read message: %v", err)
	}
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("Failed to unmarshal message: %v", err)
	}
	return msg
}

// readUntil skips messages until one of the given type arrives.
func readUntil(t *testing.T, ctx context.Context, conn *websocket.Conn, typ MessageType) Message {
	t.Helper()

	for {
		msg := readMessage(t, ctx, conn)
		if msg.Type == typ {
			return msg
		}
	}
}

func TestServerStartStop(t *testing.T) {
	server := startServer(t)

	if addr := server.GetAddr(); addr == "" {
		t.Fatal("Server address is empty")
	}

	resp, err := http.Get("http://" + server.GetAddr() + "/health")
	if err != nil {
		t.Fatalf("Health check failed: %v", err)
	}
	defer resp.Body.Close()

	var health map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		t.Fatalf("Failed to decode health: %v", err)
	}
	if health["status"] != "ok" {
		t.Errorf("Expected status ok, got %v", health["status"])
	}
}

func TestRootNotFound(t *testing.T) {
	server := startServer(t)

	resp, err := http.Get("http://" + server.GetAddr() + "/nope")
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	resp.Body.Close()

	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("Expected 404, got %d", resp.StatusCode)
	}
}

func TestWebSocketWelcome(t *testing.T) {
	server := startServer(t)
	NewHandler(server, staticCounter{total: 5, pending: 2}, nil).RefreshStats(context.Background())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn := dial(t, ctx, server)
	msg := readMessage(t, ctx, conn)
	if msg.Type != MessageTypeStats {
		t.Fatalf("Expected welcome message type %s, got %s", MessageTypeStats, msg.Type)
	}

	var stats StatsData
	if err := json.Unmarshal(msg.Data, &stats); err != nil {
		t.Fatalf("Failed to unmarshal stats: %v", err)
	}
	if stats.Total != 5 || stats.Pending != 2 || stats.Confirmed != 3 {
		t.Errorf("Unexpected stats: %+v", stats)
	}

	if count := server.ClientCount(); count != 1 {
		t.Errorf("Expected 1 client, got %d", count)
	}
}

func TestHandlerBroadcastsEngineEvents(t *testing.T) {
	server := startServer(t)
	handler := NewHandler(server, staticCounter{total: 1}, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn := dial(t, ctx, server)
	readMessage(t, ctx, conn) // welcome

	handler.Observe(engine.Event{Kind: engine.EventState, State: engine.StatePushingPending})
	msg := readUntil(t, ctx, conn, MessageTypeSyncState)
	var state SyncStateData
	if err := json.Unmarshal(msg.Data, &state); err != nil {
		t.Fatalf("Failed to unmarshal state: %v", err)
	}
	if state.State != "pushing" {
		t.Errorf("Expected state pushing, got %q", state.State)
	}

	handler.Observe(engine.Event{Kind: engine.EventPushed, LocalID: "abc", ServerID: 7})
	msg = readUntil(t, ctx, conn, MessageTypeArticleUpdate)
	var update ArticleUpdateData
	if err := json.Unmarshal(msg.Data, &update); err != nil {
		t.Fatalf("Failed to unmarshal update: %v", err)
	}
	if update.Action != "pushed" || update.LocalID != "abc" || update.ServerID != 7 {
		t.Errorf("Unexpected update: %+v", update)
	}

	handler.Observe(engine.Event{Kind: engine.EventPushFailed, LocalID: "def", Err: engine.ErrAuthRequired})
	msg = readUntil(t, ctx, conn, MessageTypeArticleUpdate)
	update = ArticleUpdateData{}
	if err := json.Unmarshal(msg.Data, &update); err != nil {
		t.Fatalf("Failed to unmarshal update: %v", err)
	}
	if update.Action != "push_failed" || update.Error == "" {
		t.Errorf("Unexpected update: %+v", update)
	}
}

func TestHandlerSyncComplete(t *testing.T) {
	server := startServer(t)
	handler := NewHandler(server, staticCounter{total: 4, pending: 1}, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn := dial(t, ctx, server)
	readMessage(t, ctx, conn)

	started := time.Date(2026, 6, 1, 8, 0, 0, 0, time.UTC)
	handler.Observe(engine.Event{
		Kind: engine.EventPassComplete,
		Result: &engine.Result{
			OK:       true,
			Pulled:   3,
			Pushed:   1,
			Merged:   2,
			Failures: []engine.PushFailure{{LocalID: "x", Err: errors.New("boom")}},
			Started:  started,
		},
	})

	msg := readUntil(t, ctx, conn, MessageTypeSyncComplete)
	var done SyncCompleteData
	if err := json.Unmarshal(msg.Data, &done); err != nil {
		t.Fatalf("Failed to unmarshal summary: %v", err)
	}
	if !done.OK || done.Pushed != 1 || done.Merged != 2 || len(done.Failed) != 1 {
		t.Errorf("Unexpected summary: %+v", done)
	}

	readUntil(t, ctx, conn, MessageTypeStats)
	stats := handler.GetStats()
	if !stats.LastSync.Equal(started) || !stats.LastSyncOK {
		t.Errorf("Last sync not recorded: %+v", stats)
	}
	if stats.Total != 4 || stats.Confirmed != 3 {
		t.Errorf("Unexpected stats: %+v", stats)
	}
}

func TestHandlerCounterError(t *testing.T) {
	server := NewServer(nil)
	handler := NewHandler(server, staticCounter{total: 9, err: errors.New("disk gone")}, nil)

	handler.RefreshStats(context.Background())

	if stats := handler.GetStats(); stats.Total != 0 {
		t.Errorf("Stats should be untouched on error, got %+v", stats)
	}
}
