// Copyright 2024-2026 Aiku AI

package conversation

import (
	"context"
	"time"
)

// Identity is a person who can be mentioned and notified.
type Identity struct {
	ID          string `json:"id" yaml:"id"`
	DisplayName string `json:"display_name" yaml:"display_name"`
	Address     string `json:"address" yaml:"address"`
}

// AuthorContext describes who is submitting content.
type AuthorContext struct {
	Name string `json:"name"`
}

// ContentItem is a persisted post or reply. Posts have an empty ParentID.
type ContentItem struct {
	ID         string    `json:"id"`
	ParentID   string    `json:"parent_id,omitempty"`
	ScopeID    string    `json:"scope_id"`
	Body       string    `json:"body"`
	AuthorName string    `json:"author_name"`
	CreatedAt  time.Time `json:"created_at"`
}

// IsReply reports whether the item is a reply to a post.
func (c *ContentItem) IsReply() bool {
	return c.ParentID != ""
}

// NotificationEvent is a single notification for one recipient about one
// content item. It is never stored.
type NotificationEvent struct {
	Recipient   Identity
	Source      ContentItem
	GeneratedAt time.Time
}

// DeliveryOutcome is the result of handing one NotificationEvent to the
// notifier. Err is nil on success and a *DeliveryError otherwise.
type DeliveryOutcome struct {
	Event NotificationEvent
	Err   error
}

// ContentStore persists posts and replies.
type ContentStore interface {
	CreatePost(ctx context.Context, scopeID string, author AuthorContext, body string) (*ContentItem, error)
	CreateReply(ctx context.Context, parentID string, author AuthorContext, body string) (*ContentItem, error)
	// ListThread returns the posts of a scope, newest first.
	ListThread(ctx context.Context, scopeID string) ([]*ContentItem, error)
	// ListReplies returns the replies to a post, oldest first.
	ListReplies(ctx context.Context, parentID string) ([]*ContentItem, error)
}

// DirectorySource loads the identities that can be mentioned.
type DirectorySource interface {
	LoadDirectory(ctx context.Context) ([]Identity, error)
}

// Notifier delivers a rendered message to an address.
type Notifier interface {
	Send(ctx context.Context, address, subject, body string, isHTML bool) error
}

// NotifierFunc adapts a function to the Notifier interface.
type NotifierFunc func(ctx context.Context, address, subject, body string, isHTML bool) error

func (f NotifierFunc) Send(ctx context.Context, address, subject, body string, isHTML bool) error {
	return f(ctx, address, subject, body, isHTML)
}
