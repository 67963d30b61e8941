// Copyright 2024-2026 Aiku AI

package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/vfs"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/aiku/threadtag/pkg/conversation"
)

// Key layout:
//
//	item:<id>                         -> JSON ContentItem
//	scope:<n>:<scope>:post:<ts>:<id>    -> id
//	post:<n>:<parent>:reply:<ts>:<id>   -> id
//
// <n> is the byte length of the ID that follows it, so no scope or parent ID
// can be a key prefix of another. <ts> is a zero-padded millisecond timestamp
// so keys sort by creation time.

func itemKey(id string) []byte {
	return []byte("item:" + id)
}

func lengthPrefixed(id string) string {
	return strconv.Itoa(len(id)) + ":" + id
}

func postPrefix(scopeID string) string {
	return "scope:" + lengthPrefixed(scopeID) + ":post:"
}

func replyPrefix(parentID string) string {
	return "post:" + lengthPrefixed(parentID) + ":reply:"
}

func indexKey(prefix string, item *conversation.ContentItem) []byte {
	return []byte(fmt.Sprintf("%s%020d:%s", prefix, item.CreatedAt.UnixMilli(), item.ID))
}

// PebbleStore is a ContentStore on an embedded Pebble database.
type PebbleStore struct {
	db    *pebble.DB
	log   zerolog.Logger
	clock clock
}

var _ conversation.ContentStore = (*PebbleStore)(nil)

// OpenPebble opens the database at path. A nil fs uses the OS filesystem.
func OpenPebble(path string, fs vfs.FS, log zerolog.Logger) (*PebbleStore, error) {
	opts := &pebble.Options{}
	if fs != nil {
		opts.FS = fs
	}
	db, err := pebble.Open(path, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open pebble at %s: %w", path, err)
	}
	return &PebbleStore{
		db:  db,
		log: log.With().Str("component", "pebble").Logger(),
	}, nil
}

func (s *PebbleStore) Close() error {
	return s.db.Close()
}

func (s *PebbleStore) write(item *conversation.ContentItem, index []byte) error {
	data, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("failed to marshal item: %w", err)
	}
	b := s.db.NewBatch()
	defer b.Close()
	if err = b.Set(itemKey(item.ID), data, nil); err != nil {
		return err
	}
	if err = b.Set(index, []byte(item.ID), nil); err != nil {
		return err
	}
	return b.Commit(pebble.Sync)
}

func (s *PebbleStore) get(id string) (*conversation.ContentItem, error) {
	value, closer, err := s.db.Get(itemKey(id))
	if err != nil {
		return nil, err
	}
	defer closer.Close()
	var item conversation.ContentItem
	if err = json.Unmarshal(value, &item); err != nil {
		return nil, fmt.Errorf("failed to unmarshal item %s: %w", id, err)
	}
	return &item, nil
}

func (s *PebbleStore) CreatePost(_ context.Context, scopeID string, author conversation.AuthorContext, body string) (*conversation.ContentItem, error) {
	item := &conversation.ContentItem{
		ID:         uuid.NewString(),
		ScopeID:    scopeID,
		Body:       body,
		AuthorName: author.Name,
		CreatedAt:  s.clock.next(),
	}
	if err := s.write(item, indexKey(postPrefix(scopeID), item)); err != nil {
		return nil, fmt.Errorf("failed to save post: %w", err)
	}
	return item, nil
}

func (s *PebbleStore) CreateReply(_ context.Context, parentID string, author conversation.AuthorContext, body string) (*conversation.ContentItem, error) {
	parent, err := s.get(parentID)
	if errors.Is(err, pebble.ErrNotFound) || (err == nil && parent.IsReply()) {
		return nil, fmt.Errorf("reply to %s: %w", parentID, conversation.ErrParentNotFound)
	} else if err != nil {
		return nil, fmt.Errorf("failed to get parent post: %w", err)
	}
	item := &conversation.ContentItem{
		ID:         uuid.NewString(),
		ParentID:   parentID,
		ScopeID:    parent.ScopeID,
		Body:       body,
		AuthorName: author.Name,
		CreatedAt:  s.clock.next(),
	}
	if err = s.write(item, indexKey(replyPrefix(parentID), item)); err != nil {
		return nil, fmt.Errorf("failed to save reply: %w", err)
	}
	return item, nil
}

func (s *PebbleStore) ListThread(_ context.Context, scopeID string) ([]*conversation.ContentItem, error) {
	return s.list(postPrefix(scopeID), true)
}

func (s *PebbleStore) ListReplies(_ context.Context, parentID string) ([]*conversation.ContentItem, error) {
	return s.list(replyPrefix(parentID), false)
}

func (s *PebbleStore) list(prefix string, newestFirst bool) ([]*conversation.ContentItem, error) {
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: []byte(prefix),
		UpperBound: []byte(prefix + "\xff"),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create iterator: %w", err)
	}
	defer iter.Close()

	var ids []string
	if newestFirst {
		for iter.Last(); iter.Valid(); iter.Prev() {
			ids = append(ids, string(iter.Value()))
		}
	} else {
		for iter.First(); iter.Valid(); iter.Next() {
			ids = append(ids, string(iter.Value()))
		}
	}
	if err = iter.Error(); err != nil {
		return nil, fmt.Errorf("failed to iterate %s: %w", prefix, err)
	}

	items := make([]*conversation.ContentItem, 0, len(ids))
	for _, id := range ids {
		item, err := s.get(id)
		if err != nil {
			s.log.Warn().Err(err).Str("item_id", id).Msg("Dangling index entry")
			continue
		}
		items = append(items, item)
	}
	return items, nil
}
