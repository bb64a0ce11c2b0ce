package daemon

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/quillpress/quill/internal/engine"
)

// Syncer runs a sync pass. *engine.Engine satisfies it.
type Syncer interface {
	Sync(ctx context.Context) (*engine.Result, error)
}

// Config holds configuration for the daemon.
type Config struct {
	// Interval is how often a pass runs regardless of local changes.
	// Zero disables the periodic pass.
	Interval time.Duration

	// DebounceInterval is how long the store must be quiet after a change
	// before a pass runs. This batches the writes of one `quill add`.
	DebounceInterval time.Duration

	// SyncOnStart runs a pass before watching begins.
	SyncOnStart bool

	// Logger for daemon activity (default: no-op).
	Logger *zap.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Interval:         time.Minute,
		DebounceInterval: 500 * time.Millisecond,
		SyncOnStart:      true,
	}
}

// Daemon runs sync passes on a timer and whenever the store changes.
type Daemon struct {
	syncer Syncer
	dbPath string
	config *Config
	logger *zap.Logger

	watcher *StoreWatcher

	changeMu    sync.Mutex
	lastChange  time.Time // zero when nothing is queued
	lastPassEnd time.Time

	passes atomic.Int64

	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// New creates a daemon with default configuration.
//
// The daemon requires:
//   - syncer: the engine running the passes
//   - dbPath: path of the store database to watch
//
// Use Start() to begin watching and syncing.
func New(syncer Syncer, dbPath string) (*Daemon, error) {
	return NewWithConfig(syncer, dbPath, DefaultConfig())
}

// NewWithConfig creates a daemon with custom configuration.
func NewWithConfig(syncer Syncer, dbPath string, config *Config) (*Daemon, error) {
	if syncer == nil {
		return nil, fmt.Errorf("syncer cannot be nil")
	}
	if dbPath == "" {
		return nil, fmt.Errorf("dbPath cannot be empty")
	}
	if config == nil {
		config = DefaultConfig()
	}
	if config.DebounceInterval <= 0 {
		return nil, fmt.Errorf("debounce interval must be positive (got %s)", config.DebounceInterval)
	}
	if config.Interval < 0 {
		return nil, fmt.Errorf("interval cannot be negative (got %s)", config.Interval)
	}

	logger := config.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	watcher, err := NewStoreWatcher()
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Daemon{
		syncer:  syncer,
		dbPath:  dbPath,
		config:  config,
		logger:  logger.Named("daemon"),
		watcher: watcher,
		ctx:     ctx,
		cancel:  cancel,
	}, nil
}

// Start begins the daemon's operation.
//
// The daemon will:
//  1. Run an initial pass (when SyncOnStart is set)
//  2. Start watching the store file
//  3. Run a pass once changes have settled for DebounceInterval
//  4. Run a pass every Interval
//
// This blocks until ctx is cancelled or Stop is called.
func (d *Daemon) Start(ctx context.Context) error {
	d.logger.Info("starting daemon",
		zap.String("db", d.dbPath),
		zap.Duration("interval", d.config.Interval),
		zap.Duration("debounce", d.config.DebounceInterval),
	)

	// Cancelling ctx also aborts a pass that is already running.
	release := context.AfterFunc(ctx, d.cancel)
	defer release()

	if d.config.SyncOnStart {
		d.RunPass("startup")
	}
	if d.ctx.Err() != nil {
		return d.shutdown(ctx)
	}

	if err := d.watcher.Start(d.dbPath); err != nil {
		return fmt.Errorf("failed to watch store: %w", err)
	}

	d.wg.Add(2)
	go d.watchStoreEvents()
	go d.processChangeQueue()

	if d.config.Interval > 0 {
		d.wg.Add(1)
		go d.periodicSync()
	}

	<-d.ctx.Done()
	return d.shutdown(ctx)
}

func (d *Daemon) shutdown(ctx context.Context) error {
	if ctx.Err() != nil {
		d.logger.Info("shutdown signal received")
	}
	return d.Stop()
}

// Stop gracefully shuts down the daemon, waiting for a running pass.
func (d *Daemon) Stop() error {
	var err error
	d.stopOnce.Do(func() {
		d.logger.Info("stopping daemon")
		d.cancel()

		if cerr := d.watcher.Stop(); cerr != nil {
			err = cerr
			d.logger.Warn("error closing watcher", zap.Error(cerr))
		}

		d.wg.Wait()
		d.logger.Info("daemon stopped", zap.Int64("passes", d.passes.Load()))
	})
	return err
}

// Passes returns the number of passes the daemon has started.
func (d *Daemon) Passes() int64 {
	return d.passes.Load()
}

// RunPass runs one sync pass now. Failures are logged, never returned: the
// daemon keeps going and the next trigger retries.
func (d *Daemon) RunPass(reason string) {
	d.passes.Add(1)
	d.logger.Debug("running sync pass", zap.String("reason", reason))

	res, err := d.syncer.Sync(d.ctx)

	d.changeMu.Lock()
	d.lastPassEnd = time.Now()
	d.changeMu.Unlock()

	switch {
	case err == nil:
		fields := []zap.Field{
			zap.String("reason", reason),
			zap.Int("pushed", res.Pushed),
			zap.Int("merged", res.Merged),
			zap.Int("failed", len(res.Failures)),
		}
		if res.AuthRequired {
			d.logger.Warn("sync pass complete, server requires authentication", fields...)
		} else {
			d.logger.Info("sync pass complete", fields...)
		}
	case errors.Is(err, engine.ErrSyncInProgress):
		d.logger.Debug("sync pass skipped, another pass is running", zap.String("reason", reason))
	case errors.Is(err, engine.ErrOffline):
		d.logger.Info("sync pass skipped, device offline", zap.String("reason", reason))
	case errors.Is(err, context.Canceled):
		d.logger.Debug("sync pass cancelled", zap.String("reason", reason))
	default:
		d.logger.Warn("sync pass failed", zap.String("reason", reason), zap.Error(err))
	}
}

// watchStoreEvents queues store changes.
func (d *Daemon) watchStoreEvents() {
	defer d.wg.Done()

	for {
		select {
		case <-d.ctx.Done():
			return

		case event, ok := <-d.watcher.Events():
			if !ok {
				return
			}
			d.logger.Debug("store event", zap.String("op", event.Op.String()), zap.String("path", event.Path))
			d.queueChange(time.Now())

		case err, ok := <-d.watcher.Errors():
			if !ok {
				return
			}
			d.logger.Warn("watcher error", zap.Error(err))
		}
	}
}

// queueChange records a store change seen at the given time.
func (d *Daemon) queueChange(at time.Time) {
	d.changeMu.Lock()
	defer d.changeMu.Unlock()

	d.lastChange = at
}

// processChangeQueue runs a pass for settled changes.
func (d *Daemon) processChangeQueue() {
	defer d.wg.Done()

	ticker := time.NewTicker(d.config.DebounceInterval / 2)
	defer ticker.Stop()

	for {
		select {
		case <-d.ctx.Done():
			return

		case <-ticker.C:
			if d.takeSettledChange(time.Now()) {
				d.RunPass("store changed")
			}
		}
	}
}

// takeSettledChange reports whether a queued change has been quiet for the
// debounce interval, and dequeues it. Changes seen before the last pass
// ended are the pass's own writes and are dropped.
func (d *Daemon) takeSettledChange(now time.Time) bool {
	d.changeMu.Lock()
	defer d.changeMu.Unlock()

	if d.lastChange.IsZero() {
		return false
	}
	if !d.lastChange.After(d.lastPassEnd) {
		d.lastChange = time.Time{}
		return false
	}
	if now.Sub(d.lastChange) < d.config.DebounceInterval {
		return false
	}

	d.lastChange = time.Time{}
	return true
}

// periodicSync runs a pass every Interval.
func (d *Daemon) periodicSync() {
	defer d.wg.Done()

	ticker := time.NewTicker(d.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-d.ctx.Done():
			return

		case <-ticker.C:
			d.RunPass("interval")
		}
	}
}
