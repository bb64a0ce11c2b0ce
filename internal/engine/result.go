package engine

import (
	"errors"
	"time"

	"github.com/quillpress/quill/internal/article"
)

var (
	// ErrOffline is returned when the connectivity probe reports no network.
	ErrOffline = errors.New("device is offline")

	// ErrSyncInProgress is returned when a pass is already running.
	ErrSyncInProgress = errors.New("sync already in progress")

	// ErrAuthRequired marks a push refused with 401 or 403.
	ErrAuthRequired = errors.New("authentication required")

	// ErrRetriesExhausted marks a push that kept getting 503 past the retry bound.
	ErrRetriesExhausted = errors.New("server overloaded, retries exhausted")
)

// PushFailure is an article left pending by a pass.
type PushFailure struct {
	LocalID string
	Err     error
}

// Result describes one sync pass.
type Result struct {
	// OK is true when the pull succeeded and the pass ran to completion.
	// Articles that failed to push do not make a pass fail.
	OK bool

	// AuthRequired is set when the server refused our credentials.
	AuthRequired bool

	Pulled   int
	Pushed   int
	Merged   int
	Failures []PushFailure

	Started  time.Time
	Duration time.Duration

	// Err is the reason a pass failed, nil when OK.
	Err error

	// Articles is the local record set after the pass, newest first.
	Articles []*article.Article
}

// Pending returns the local ids left pending by push failures.
func (r *Result) Pending() []string {
	ids := make([]string, 0, len(r.Failures))
	for _, f := range r.Failures {
		ids = append(ids, f.LocalID)
	}
	return ids
}

// EventKind identifies an Event.
type EventKind string

const (
	EventState        EventKind = "state"
	EventPushed       EventKind = "pushed"
	EventPushFailed   EventKind = "push_failed"
	EventMerged       EventKind = "merged"
	EventPassComplete EventKind = "pass_complete"
)

// Event is emitted to the Observer as a pass progresses.
type Event struct {
	Kind     EventKind
	State    State
	LocalID  string
	ServerID int64
	Err      error
	Result   *Result
	Time     time.Time
}

// Observer receives engine events. It is called synchronously from the
// pass and must not block.
type Observer func(Event)
