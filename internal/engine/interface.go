package engine

import (
	"context"

	"github.com/quillpress/quill/internal/article"
)

// Store is the part of the local record store the engine needs.
// *store.Store satisfies it.
type Store interface {
	// Put inserts (no LocalID) or overwrites an article.
	Put(ctx context.Context, a *article.Article) (string, error)

	// List returns every local article.
	List(ctx context.Context) ([]*article.Article, error)

	// Pending returns the articles without a server id.
	Pending(ctx context.Context) ([]*article.Article, error)

	// Remove deletes an article; unknown ids are not an error.
	Remove(ctx context.Context, localID string) error

	// InsertConfirmed stores a server record unless its id is already held
	// locally.
	InsertConfirmed(ctx context.Context, r article.Remote) (localID string, inserted bool, err error)
}

// Remote is the sync endpoint. *remote.Client satisfies it.
type Remote interface {
	// FetchAll returns the server's authoritative record set.
	FetchAll(ctx context.Context) ([]article.Remote, error)

	// CreateOne creates a record and returns the server-assigned id.
	CreateOne(ctx context.Context, title, content string) (int64, error)
}

// State is the phase of the current (or last) sync pass.
type State int32

const (
	StateIdle State = iota
	StatePullingRemote
	StatePushingPending
	StateMergingRemote
	StateDone
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePullingRemote:
		return "pulling"
	case StatePushingPending:
		return "pushing"
	case StateMergingRemote:
		return "merging"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// ConfirmMode selects what happens to a local article after its push
// succeeds.
type ConfirmMode string

const (
	// ConfirmReplace deletes the pushed copy and inserts the server's
	// version (built from the returned id) during the merge phase of the
	// same pass. This is the default.
	ConfirmReplace ConfirmMode = "replace"

	// ConfirmInPlace records the server id on the pushed article, which
	// keeps its local id.
	ConfirmInPlace ConfirmMode = "in-place"
)
