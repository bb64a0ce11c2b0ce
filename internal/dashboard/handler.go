package dashboard

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/quillpress/quill/internal/engine"
)

// ArticleUpdateData describes a change to one article during a pass
type ArticleUpdateData struct {
	LocalID  string `json:"local_id,omitempty"`
	ServerID int64  `json:"server_id,omitempty"`
	Action   string `json:"action"` // pushed, merged, push_failed
	Error    string `json:"error,omitempty"`
}

// SyncStateData carries the engine phase
type SyncStateData struct {
	State string `json:"state"`
}

// SyncCompleteData summarises a finished pass
type SyncCompleteData struct {
	OK           bool          `json:"ok"`
	AuthRequired bool          `json:"auth_required,omitempty"`
	Pulled       int           `json:"pulled"`
	Pushed       int           `json:"pushed"`
	Merged       int           `json:"merged"`
	Failed       []string      `json:"failed,omitempty"`
	Error        string        `json:"error,omitempty"`
	Duration     time.Duration `json:"duration"`
}

// StatsData contains store statistics
type StatsData struct {
	Total      int       `json:"total"`
	Pending    int       `json:"pending"`
	Confirmed  int       `json:"confirmed"`
	LastSync   time.Time `json:"last_sync"`
	LastSyncOK bool      `json:"last_sync_ok"`
}

// Counter reports store totals. *store.Store satisfies it.
type Counter interface {
	Count(ctx context.Context) (int, error)
	CountPending(ctx context.Context) (int, error)
}

// Handler turns engine events into dashboard messages.
type Handler struct {
	server  *Server
	counter Counter
	logger  *zap.Logger

	mu    sync.Mutex
	stats StatsData
}

// NewHandler creates a handler broadcasting through server. counter may be
// nil, in which case stats only carry the last sync outcome.
func NewHandler(server *Server, counter Counter, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}

	h := &Handler{
		server:  server,
		counter: counter,
		logger:  logger.Named("dashboard"),
	}
	server.SetWelcome(h.statsMessage)
	return h
}

// Observe is an engine.Observer.
func (h *Handler) Observe(ev engine.Event) {
	switch ev.Kind {
	case engine.EventState:
		h.send(MessageTypeSyncState, ev.Time, SyncStateData{State: ev.State.String()})

	case engine.EventPushed:
		h.send(MessageTypeArticleUpdate, ev.Time, ArticleUpdateData{
			LocalID:  ev.LocalID,
			ServerID: ev.ServerID,
			Action:   "pushed",
		})

	case engine.EventMerged:
		h.send(MessageTypeArticleUpdate, ev.Time, ArticleUpdateData{
			LocalID:  ev.LocalID,
			ServerID: ev.ServerID,
			Action:   "merged",
		})

	case engine.EventPushFailed:
		data := ArticleUpdateData{LocalID: ev.LocalID, Action: "push_failed"}
		if ev.Err != nil {
			data.Error = ev.Err.Error()
		}
		h.send(MessageTypeArticleUpdate, ev.Time, data)

	case engine.EventPassComplete:
		if ev.Result != nil {
			h.OnSyncComplete(ev.Result)
		}
	}
}

// OnSyncComplete broadcasts a pass summary followed by fresh stats.
func (h *Handler) OnSyncComplete(res *engine.Result) {
	data := SyncCompleteData{
		OK:           res.OK,
		AuthRequired: res.AuthRequired,
		Pulled:       res.Pulled,
		Pushed:       res.Pushed,
		Merged:       res.Merged,
		Failed:       res.Pending(),
		Duration:     res.Duration,
	}
	if res.Err != nil {
		data.Error = res.Err.Error()
	}
	h.send(MessageTypeSyncComplete, time.Time{}, data)

	h.mu.Lock()
	h.stats.LastSync = res.Started
	h.stats.LastSyncOK = res.OK
	h.mu.Unlock()

	h.RefreshStats(context.Background())
}

// RefreshStats reloads store totals and broadcasts them.
func (h *Handler) RefreshStats(ctx context.Context) {
	if h.counter != nil {
		total, err := h.counter.Count(ctx)
		if err != nil {
			h.logger.Warn("failed to count articles", zap.Error(err))
			return
		}
		pending, err := h.counter.CountPending(ctx)
		if err != nil {
			h.logger.Warn("failed to count pending articles", zap.Error(err))
			return
		}

		h.mu.Lock()
		h.stats.Total = total
		h.stats.Pending = pending
		h.stats.Confirmed = total - pending
		h.mu.Unlock()
	}

	h.server.Broadcast(h.statsMessage())
}

// GetStats returns the current statistics
func (h *Handler) GetStats() StatsData {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.stats
}

func (h *Handler) statsMessage() Message {
	stats := h.GetStats()
	data, _ := json.Marshal(stats)
	return Message{Type: MessageTypeStats, Timestamp: time.Now(), Data: data}
}

func (h *Handler) send(typ MessageType, at time.Time, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		h.logger.Warn("failed to marshal message", zap.String("type", string(typ)), zap.Error(err))
		return
	}
	h.server.Broadcast(Message{Type: typ, Timestamp: at, Data: data})
}
