// Copyright 2024-2026 Aiku AI

// Package store provides content stores for posts and replies.
package store

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/aiku/threadtag/pkg/conversation"
)

// Store is a closable content store.
type Store interface {
	conversation.ContentStore
	io.Closer
}

// Open opens the store of the given type: "sqlite3", "postgres" or "pebble".
func Open(ctx context.Context, typ, uri string, log zerolog.Logger) (Store, error) {
	switch typ {
	case "sqlite3", "sqlite":
		return OpenSQL(ctx, "sqlite3", uri, log)
	case "postgres", "pgx":
		return OpenSQL(ctx, "postgres", uri, log)
	case "pebble":
		return OpenPebble(uri, nil, log)
	default:
		return nil, fmt.Errorf("unknown database type %q", typ)
	}
}

// clock hands out strictly increasing millisecond timestamps so that items
// created in the same millisecond keep their creation order.
type clock struct {
	mu   sync.Mutex
	last int64
	now  func() time.Time
}

func (c *clock) next() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := time.Now
	if c.now != nil {
		now = c.now
	}
	ms := now().UnixMilli()
	if ms <= c.last {
		ms = c.last + 1
	}
	c.last = ms
	return time.UnixMilli(ms)
}
