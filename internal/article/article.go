// Package article defines the record types shared by the local store, the
// remote client and the sync engine.
package article

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

// MaxTitleLength bounds the title of a draft, in runes.
const MaxTitleLength = 500

// Article is a record as it lives on this device.
//
// A record is pending while ServerID is nil and confirmed once the remote
// system has assigned it an identifier. ServerID is never cleared.
type Article struct {
	// LocalID is assigned by the store on first insert. Empty before that.
	LocalID string `json:"local_id,omitempty"`

	// ServerID is the identifier assigned by the server on creation.
	ServerID *int64 `json:"server_id,omitempty"`

	Title     string    `json:"title"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
}

// NewDraft builds a pending article from user input.
// Title and body are trimmed and normalised to NFC before validation.
func NewDraft(title, body string, now time.Time) (*Article, error) {
	a := &Article{
		Title:     normalize(title),
		Body:      normalize(body),
		CreatedAt: now.UTC(),
	}
	if err := a.Validate(); err != nil {
		return nil, err
	}
	return a, nil
}

// FromRemote builds a confirmed article from a server record.
func FromRemote(r Remote) *Article {
	id := r.ID
	return &Article{
		ServerID:  &id,
		Title:     r.Title,
		Body:      r.Content,
		CreatedAt: r.CreatedAt,
	}
}

// Validate checks the fields a user must supply when authoring.
func (a *Article) Validate() error {
	if strings.TrimSpace(a.Title) == "" {
		return fmt.Errorf("title is required")
	}
	if n := utf8.RuneCountInString(a.Title); n > MaxTitleLength {
		return fmt.Errorf("title must be %d characters or less (got %d)", MaxTitleLength, n)
	}
	if strings.TrimSpace(a.Body) == "" {
		return fmt.Errorf("body is required")
	}
	if a.CreatedAt.IsZero() {
		return fmt.Errorf("created_at is required")
	}
	return nil
}

// IsPending reports whether the server has not yet confirmed the article.
func (a *Article) IsPending() bool {
	return a.ServerID == nil
}

// SetServerID marks the article as confirmed. An existing server id is kept.
func (a *Article) SetServerID(id int64) {
	if a.ServerID != nil {
		return
	}
	a.ServerID = &id
}

// Clone returns a deep copy.
func (a *Article) Clone() *Article {
	c := *a
	if a.ServerID != nil {
		id := *a.ServerID
		c.ServerID = &id
	}
	return &c
}

// String returns a short human readable identity, used in logs.
func (a *Article) String() string {
	if a.ServerID != nil {
		return fmt.Sprintf("%s (server #%d)", a.LocalID, *a.ServerID)
	}
	return fmt.Sprintf("%s (pending)", a.LocalID)
}

func normalize(s string) string {
	return norm.NFC.String(strings.TrimSpace(s))
}
