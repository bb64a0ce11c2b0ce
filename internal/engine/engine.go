package engine

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/quillpress/quill/internal/article"
	"github.com/quillpress/quill/internal/netcheck"
	"github.com/quillpress/quill/internal/store"
)

// Config holds configuration for the engine.
type Config struct {
	// PushPacing is waited before every push attempt, retries included.
	PushPacing time.Duration

	// RetryBase is the backoff before the first retry of a 503; it doubles
	// for every further retry up to RetryMax.
	RetryBase time.Duration
	RetryMax  time.Duration

	// MaxRetries bounds the retries of one article within a pass.
	MaxRetries int

	// SyncOnCreate runs a pass right after Create when the device is online.
	SyncOnCreate bool

	// Confirm selects how a pushed article is confirmed locally.
	Confirm ConfirmMode

	// Logger for engine activity (default: no-op).
	Logger *zap.Logger

	// Observer, when set, receives progress events.
	Observer Observer
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		PushPacing:   200 * time.Millisecond,
		RetryBase:    2 * time.Second,
		RetryMax:     30 * time.Second,
		MaxRetries:   5,
		SyncOnCreate: true,
		Confirm:      ConfirmReplace,
	}
}

// Engine runs sync passes. It is safe for concurrent use, but passes never
// overlap.
type Engine struct {
	store  Store
	remote Remote
	probe  netcheck.Probe
	config *Config
	logger *zap.Logger

	running atomic.Bool
	state   atomic.Int32

	lastMu sync.Mutex
	last   *Result

	sleep func(ctx context.Context, d time.Duration) error
	now   func() time.Time
}

// New creates an engine.
//
// The store, the remote and the connectivity probe are required. A nil
// config uses DefaultConfig().
func New(st Store, rm Remote, probe netcheck.Probe, config *Config) (*Engine, error) {
	if st == nil {
		return nil, fmt.Errorf("store cannot be nil")
	}
	if rm == nil {
		return nil, fmt.Errorf("remote cannot be nil")
	}
	if probe == nil {
		return nil, fmt.Errorf("connectivity probe cannot be nil")
	}
	if config == nil {
		config = DefaultConfig()
	}
	if config.MaxRetries < 0 {
		return nil, fmt.Errorf("max retries cannot be negative (got %d)", config.MaxRetries)
	}
	switch config.Confirm {
	case "":
		config.Confirm = ConfirmReplace
	case ConfirmInPlace, ConfirmReplace:
	default:
		return nil, fmt.Errorf("unknown confirm mode %q", config.Confirm)
	}

	logger := config.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Engine{
		store:  st,
		remote: rm,
		probe:  probe,
		config: config,
		logger: logger,
		sleep:  sleepContext,
		now:    time.Now,
	}, nil
}

// State returns the phase of the running pass, or the outcome of the last one.
func (e *Engine) State() State {
	return State(e.state.Load())
}

// Running reports whether a pass is in flight.
func (e *Engine) Running() bool {
	return e.running.Load()
}

// LastResult returns the result of the most recent completed pass, or nil.
func (e *Engine) LastResult() *Result {
	e.lastMu.Lock()
	defer e.lastMu.Unlock()
	return e.last
}

// Create authors a new article locally and, when configured and online,
// runs a sync pass straight away.
//
// Creation succeeds whenever the store accepts the write, regardless of
// connectivity. The returned result is nil when no pass ran; a failed pass
// is reported through the result, not the error.
func (e *Engine) Create(ctx context.Context, title, body string) (string, *Result, error) {
	draft, err := article.NewDraft(title, body, e.now())
	if err != nil {
		return "", nil, fmt.Errorf("invalid article: %w", err)
	}

	localID, err := e.store.Put(ctx, draft)
	if err != nil {
		return "", nil, fmt.Errorf("failed to save article: %w", err)
	}
	e.logger.Info("article saved", zap.String("local_id", localID), zap.String("title", draft.Title))

	if !e.config.SyncOnCreate || !e.probe.Online(ctx) {
		return localID, nil, nil
	}

	res, _ := e.Sync(ctx)
	return localID, res, nil
}

// Sync runs one pull, push, merge pass.
//
// The returned Result is never nil. The error is non-nil exactly when
// Result.OK is false and carries the reason: ErrSyncInProgress, ErrOffline,
// a remote fault from the pull, a *store.StorageFault, or a context error.
func (e *Engine) Sync(ctx context.Context) (*Result, error) {
	res := &Result{Started: e.now()}

	if !e.running.CompareAndSwap(false, true) {
		res.Err = ErrSyncInProgress
		return res, ErrSyncInProgress
	}
	defer e.running.Store(false)

	defer func() {
		res.Duration = e.now().Sub(res.Started)
		e.lastMu.Lock()
		e.last = res
		e.lastMu.Unlock()
		e.emit(Event{Kind: EventPassComplete, State: e.State(), Result: res})
	}()

	if !e.probe.Online(ctx) {
		e.logger.Info("sync skipped: device offline")
		return e.fail(res, ErrOffline)
	}

	e.logger.Info("starting sync pass")

	// Pull
	e.setState(StatePullingRemote)
	remoteRecords, err := e.remote.FetchAll(ctx)
	if err != nil {
		e.logger.Warn("pull failed, aborting pass", zap.Error(err))
		return e.fail(res, fmt.Errorf("failed to fetch remote records: %w", err))
	}
	res.Pulled = len(remoteRecords)

	// Push
	e.setState(StatePushingPending)
	confirmed, err := e.pushPending(ctx, res)
	if err != nil {
		e.salvage(ctx, res, confirmed)
		return e.fail(res, err)
	}

	// Merge
	e.setState(StateMergingRemote)
	if err := e.merge(ctx, res, append(remoteRecords, confirmed...)); err != nil {
		return e.fail(res, err)
	}

	res.OK = true
	e.setState(StateDone)
	res.Articles = e.snapshot(ctx)

	e.logger.Info("sync pass complete",
		zap.Int("pulled", res.Pulled),
		zap.Int("pushed", res.Pushed),
		zap.Int("merged", res.Merged),
		zap.Int("failed", len(res.Failures)),
		zap.Bool("auth_required", res.AuthRequired),
	)
	return res, nil
}

// merge inserts every record whose server id is not yet held locally.
func (e *Engine) merge(ctx context.Context, res *Result, records []article.Remote) error {
	for _, r := range records {
		localID, inserted, err := e.store.InsertConfirmed(ctx, r)
		if err != nil {
			e.logger.Error("merge failed", zap.Int64("server_id", r.ID), zap.Error(err))
			return fmt.Errorf("failed to merge server record %d: %w", r.ID, err)
		}
		if !inserted {
			continue
		}

		res.Merged++
		e.logger.Debug("merged server record", zap.Int64("server_id", r.ID), zap.String("local_id", localID))
		e.emit(Event{Kind: EventMerged, State: StateMergingRemote, LocalID: localID, ServerID: r.ID})
	}
	return nil
}

// salvage inserts the server copies of articles pushed before the pass was
// aborted. It runs even when ctx is cancelled.
func (e *Engine) salvage(ctx context.Context, res *Result, confirmed []article.Remote) {
	if len(confirmed) == 0 {
		return
	}
	if err := e.merge(context.WithoutCancel(ctx), res, confirmed); err != nil {
		e.logger.Error("failed to keep pushed articles after abort",
			zap.Int("count", len(confirmed)),
			zap.Error(err),
		)
	}
}

// snapshot lists the store after a pass, newest first. A failure here does
// not undo the pass and is only logged.
func (e *Engine) snapshot(ctx context.Context) []*article.Article {
	articles, err := e.store.List(ctx)
	if err != nil {
		e.logger.Warn("failed to list articles after sync", zap.Error(err))
		return nil
	}
	SortNewestFirst(articles)
	return articles
}

func (e *Engine) fail(res *Result, err error) (*Result, error) {
	res.OK = false
	res.Err = err
	e.setState(StateFailed)
	return res, err
}

func (e *Engine) setState(s State) {
	e.state.Store(int32(s))
	e.emit(Event{Kind: EventState, State: s})
}

func (e *Engine) emit(ev Event) {
	if e.config.Observer == nil {
		return
	}
	if ev.Time.IsZero() {
		ev.Time = e.now()
	}
	e.config.Observer(ev)
}

// SortNewestFirst orders articles by creation time, newest first, breaking
// ties by local id so the order is stable.
func SortNewestFirst(articles []*article.Article) {
	sort.SliceStable(articles, func(i, j int) bool {
		if !articles[i].CreatedAt.Equal(articles[j].CreatedAt) {
			return articles[i].CreatedAt.After(articles[j].CreatedAt)
		}
		return articles[i].LocalID < articles[j].LocalID
	})
}

// IsStorageFault reports whether a pass failed because of the local store.
func IsStorageFault(err error) bool {
	return store.IsStorageFault(err)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
