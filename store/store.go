// Package store persists conversation threads between turns.
//
// A Thread is the accumulated message history of one caller-identified
// conversation. Implementations live in the memory, sqlite, redis and
// postgres subpackages and share optimistic versioning: Save succeeds only
// if the stored version still equals the version the caller loaded, so two
// writers cannot silently overwrite each other.
package store

import (
	"context"
	"errors"
	"slices"
	"time"
)

var (
	// ErrThreadNotFound is returned by Load and Delete for unknown thread ids.
	ErrThreadNotFound = errors.New("thread not found")

	// ErrVersionConflict is returned by Save when the thread changed since it was loaded.
	ErrVersionConflict = errors.New("thread version conflict")
)

// Role tags the author of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Message is one entry of a conversation.
type Message struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Thread is the persisted state of one conversation.
type Thread struct {
	ID        string    `json:"id"`
	Messages  []Message `json:"messages"`
	UpdatedAt time.Time `json:"updated_at"`
	// Version counts successful saves. A new thread has version 0.
	Version int `json:"version"`
}

// NewThread returns an empty, never-saved thread.
func NewThread(id string) *Thread {
	return &Thread{ID: id, Messages: []Message{}}
}

// Clone returns a deep copy of t.
func (t *Thread) Clone() *Thread {
	c := *t
	c.Messages = slices.Clone(t.Messages)
	if c.Messages == nil {
		c.Messages = []Message{}
	}
	return &c
}

// ThreadStore loads and saves threads by id.
type ThreadStore interface {
	// Load returns ErrThreadNotFound when id was never saved.
	Load(ctx context.Context, id string) (*Thread, error)

	// Save stores t if its Version matches the stored one, then increments
	// t.Version and sets t.UpdatedAt. Otherwise it returns ErrVersionConflict.
	Save(ctx context.Context, t *Thread) error

	Delete(ctx context.Context, id string) error

	// List returns thread ids in ascending order.
	List(ctx context.Context) ([]string, error)

	Close() error
}
