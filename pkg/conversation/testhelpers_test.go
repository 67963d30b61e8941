// Copyright 2024-2026 Aiku AI

package conversation

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"
)

// sentMessage is a notification captured by mockNotifier.
type sentMessage struct {
	Address string
	Subject string
	Body    string
	HTML    bool
}

// mockNotifier captures sent notifications for test assertions.
type mockNotifier struct {
	mu   sync.Mutex
	sent []sentMessage

	// Fail maps addresses to the error returned when sending to them.
	Fail map[string]error
	// Delay is applied to every send.
	Delay time.Duration
}

func newMockNotifier() *mockNotifier {
	return &mockNotifier{Fail: make(map[string]error)}
}

func (m *mockNotifier) Send(ctx context.Context, address, subject, body string, isHTML bool) error {
	if m.Delay > 0 {
		select {
		case <-time.After(m.Delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err, ok := m.Fail[address]; ok {
		return err
	}
	m.sent = append(m.sent, sentMessage{Address: address, Subject: subject, Body: body, HTML: isHTML})
	return nil
}

func (m *mockNotifier) Sent() []sentMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]sentMessage, len(m.sent))
	copy(cp, m.sent)
	return cp
}

func (m *mockNotifier) Addresses() []string {
	var out []string
	for _, msg := range m.Sent() {
		out = append(out, msg.Address)
	}
	slices.Sort(out)
	return out
}

// memStore is an in-memory ContentStore.
type memStore struct {
	mu    sync.Mutex
	items []*ContentItem
	seq   int

	// Err, when set, is returned by every write.
	Err error
}

func newMemStore() *memStore {
	return &memStore{}
}

func (s *memStore) add(item *ContentItem) *ContentItem {
	s.seq++
	item.ID = fmt.Sprintf("item-%d", s.seq)
	item.CreatedAt = time.Unix(int64(s.seq), 0)
	s.items = append(s.items, item)
	cp := *item
	return &cp
}

func (s *memStore) CreatePost(_ context.Context, scopeID string, author AuthorContext, body string) (*ContentItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	return s.add(&ContentItem{ScopeID: scopeID, AuthorName: author.Name, Body: body}), nil
}

func (s *memStore) CreateReply(_ context.Context, parentID string, author AuthorContext, body string) (*ContentItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	for _, item := range s.items {
		if item.ID == parentID && !item.IsReply() {
			return s.add(&ContentItem{ParentID: parentID, ScopeID: item.ScopeID, AuthorName: author.Name, Body: body}), nil
		}
	}
	return nil, fmt.Errorf("reply to %s: %w", parentID, ErrParentNotFound)
}

func (s *memStore) ListThread(_ context.Context, scopeID string) ([]*ContentItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*ContentItem
	for i := len(s.items) - 1; i >= 0; i-- {
		if item := s.items[i]; item.ScopeID == scopeID && !item.IsReply() {
			out = append(out, item)
		}
	}
	return out, nil
}

func (s *memStore) ListReplies(_ context.Context, parentID string) ([]*ContentItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*ContentItem
	for _, item := range s.items {
		if item.ParentID == parentID {
			out = append(out, item)
		}
	}
	return out, nil
}

func (s *memStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

// failingSource is a DirectorySource that always fails.
type failingSource struct{}

func (failingSource) LoadDirectory(context.Context) ([]Identity, error) {
	return nil, errors.New("directory offline")
}

func testDirectory() *Directory {
	return NewDirectory([]Identity{
		{ID: "u1", DisplayName: "Jane Doe", Address: "jane@example.com"},
		{ID: "u2", DisplayName: "Bob", Address: "bob@example.com"},
		{ID: "u3", DisplayName: "Alice", Address: "alice@x.com"},
		{ID: "u4", DisplayName: "Jack Black", Address: "jack@example.com"},
	})
}

func containsAll(s string, subs ...string) bool {
	for _, sub := range subs {
		if !strings.Contains(s, sub) {
			return false
		}
	}
	return true
}
