package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/quillpress/quill/internal/article"
	"github.com/quillpress/quill/internal/remote"
)

// pushPending pushes every pending article in order. Per-article failures
// are recorded in res and do not stop the loop; a storage fault or a
// cancelled pass context does. In ConfirmReplace mode the returned records
// are the server copies to insert during the merge. They are returned on
// the error paths too, since their pending copies are already gone.
func (e *Engine) pushPending(ctx context.Context, res *Result) ([]article.Remote, error) {
	pending, err := e.store.Pending(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending articles: %w", err)
	}
	if len(pending) == 0 {
		return nil, nil
	}

	e.logger.Info("pushing pending articles", zap.Int("count", len(pending)))

	var confirmed []article.Remote
	for i, a := range pending {
		serverID, err := e.pushOne(ctx, a)
		if err != nil {
			// A request timeout is a per-article network fault; only the
			// pass's own context ends the loop.
			if ctx.Err() != nil {
				return confirmed, fmt.Errorf("push interrupted: %w", err)
			}

			e.logger.Warn("failed to push article", zap.String("local_id", a.LocalID), zap.Error(err))
			e.recordFailure(res, a.LocalID, err)

			if errors.Is(err, ErrAuthRequired) {
				// Every later push would be refused the same way.
				res.AuthRequired = true
				for _, rest := range pending[i+1:] {
					e.recordFailure(res, rest.LocalID, fmt.Errorf("%w: not attempted", ErrAuthRequired))
				}
				break
			}
			continue
		}

		r, err := e.confirm(ctx, a, serverID)
		if err != nil {
			// The server now holds this article while the local copy is
			// still pending; the pass cannot continue safely.
			e.logger.Error("pushed article could not be confirmed locally",
				zap.String("local_id", a.LocalID),
				zap.Int64("server_id", serverID),
				zap.Error(err),
			)
			return confirmed, fmt.Errorf("failed to confirm article %s as server record %d: %w", a.LocalID, serverID, err)
		}
		if r != nil {
			confirmed = append(confirmed, *r)
		}

		res.Pushed++
		e.logger.Debug("pushed article", zap.String("local_id", a.LocalID), zap.Int64("server_id", serverID))
		e.emit(Event{Kind: EventPushed, State: StatePushingPending, LocalID: a.LocalID, ServerID: serverID})
	}

	return confirmed, nil
}

// pushOne creates the article on the server, retrying 503 responses with
// exponential backoff.
func (e *Engine) pushOne(ctx context.Context, a *article.Article) (int64, error) {
	for retries := 0; ; retries++ {
		if err := e.sleep(ctx, e.config.PushPacing); err != nil {
			return 0, err
		}

		id, err := e.remote.CreateOne(ctx, a.Title, a.Body)
		switch {
		case err == nil:
			return id, nil

		case remote.IsAuth(err):
			return 0, fmt.Errorf("%w: %v", ErrAuthRequired, err)

		case remote.IsTransient(err):
			if retries >= e.config.MaxRetries {
				return 0, fmt.Errorf("%w after %d retries: %v", ErrRetriesExhausted, retries, err)
			}
			delay := e.backoff(retries + 1)
			e.logger.Info("server overloaded, backing off",
				zap.String("local_id", a.LocalID),
				zap.Int("retry", retries+1),
				zap.Duration("delay", delay),
			)
			if err := e.sleep(ctx, delay); err != nil {
				return 0, err
			}

		default:
			return 0, err
		}
	}
}

// confirm applies the configured confirmation to a pushed article.
func (e *Engine) confirm(ctx context.Context, a *article.Article, serverID int64) (*article.Remote, error) {
	switch e.config.Confirm {
	case ConfirmReplace:
		if err := e.store.Remove(ctx, a.LocalID); err != nil {
			return nil, err
		}
		return &article.Remote{
			ID:        serverID,
			Title:     a.Title,
			Content:   a.Body,
			CreatedAt: a.CreatedAt,
		}, nil

	default:
		updated := a.Clone()
		updated.SetServerID(serverID)
		if _, err := e.store.Put(ctx, updated); err != nil {
			return nil, err
		}
		return nil, nil
	}
}

// backoff returns the wait before the n-th retry (n >= 1): RetryBase
// doubled n-1 times, capped at RetryMax.
func (e *Engine) backoff(n int) time.Duration {
	d := e.config.RetryBase
	max := e.config.RetryMax
	for i := 1; i < n; i++ {
		if max > 0 && d >= max {
			break
		}
		d *= 2
	}
	if max > 0 && d > max {
		d = max
	}
	return d
}

func (e *Engine) recordFailure(res *Result, localID string, err error) {
	res.Failures = append(res.Failures, PushFailure{LocalID: localID, Err: err})
	e.emit(Event{Kind: EventPushFailed, State: StatePushingPending, LocalID: localID, Err: err})
}
