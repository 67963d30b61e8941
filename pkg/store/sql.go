// Copyright 2024-2026 Aiku AI

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
	"go.mau.fi/util/dbutil"

	"github.com/aiku/threadtag/pkg/conversation"
	"github.com/aiku/threadtag/pkg/store/upgrades"
)

const (
	insertItemQuery = `
		INSERT INTO content_item (id, parent_id, scope_id, body, author_name, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	getPostScopeQuery = `
		SELECT scope_id FROM content_item WHERE id=$1 AND parent_id=''
	`
	listThreadQuery = `
		SELECT id, parent_id, scope_id, body, author_name, created_at
		FROM content_item WHERE scope_id=$1 AND parent_id=''
		ORDER BY created_at DESC, id DESC
	`
	listRepliesQuery = `
		SELECT id, parent_id, scope_id, body, author_name, created_at
		FROM content_item WHERE parent_id=$1
		ORDER BY created_at ASC, id ASC
	`
)

// SQLStore is a ContentStore on SQLite or Postgres.
type SQLStore struct {
	db    *dbutil.Database
	clock clock
}

var _ conversation.ContentStore = (*SQLStore)(nil)

// OpenSQL opens uri with the given dialect ("sqlite3" or "postgres") and
// upgrades the schema.
func OpenSQL(ctx context.Context, dialect, uri string, log zerolog.Logger) (*SQLStore, error) {
	driver := "sqlite3"
	if dialect == "postgres" {
		driver = "pgx"
	}
	rawDB, err := sql.Open(driver, uri)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if driver == "sqlite3" {
		// SQLite allows a single writer.
		rawDB.SetMaxOpenConns(1)
	}
	db, err := dbutil.NewWithDB(rawDB, dialect)
	if err != nil {
		_ = rawDB.Close()
		return nil, fmt.Errorf("failed to wrap database: %w", err)
	}
	db.Log = dbutil.ZeroLogger(log.With().Str("component", "database").Logger())
	return NewSQLStore(ctx, db)
}

// NewSQLStore upgrades the schema of db and returns a store on it.
func NewSQLStore(ctx context.Context, db *dbutil.Database) (*SQLStore, error) {
	db.UpgradeTable = upgrades.Table
	if err := db.Upgrade(ctx); err != nil {
		return nil, fmt.Errorf("failed to upgrade database: %w", err)
	}
	return &SQLStore{db: db}, nil
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}

func (s *SQLStore) insert(ctx context.Context, item *conversation.ContentItem) error {
	_, err := s.db.Exec(ctx, insertItemQuery,
		item.ID, item.ParentID, item.ScopeID, item.Body, item.AuthorName, item.CreatedAt.UnixMilli())
	return err
}

func (s *SQLStore) CreatePost(ctx context.Context, scopeID string, author conversation.AuthorContext, body string) (*conversation.ContentItem, error) {
	item := &conversation.ContentItem{
		ID:         uuid.NewString(),
		ScopeID:    scopeID,
		Body:       body,
		AuthorName: author.Name,
		CreatedAt:  s.clock.next(),
	}
	if err := s.insert(ctx, item); err != nil {
		return nil, fmt.Errorf("failed to insert post: %w", err)
	}
	return item, nil
}

func (s *SQLStore) CreateReply(ctx context.Context, parentID string, author conversation.AuthorContext, body string) (*conversation.ContentItem, error) {
	var scopeID string
	err := s.db.QueryRow(ctx, getPostScopeQuery, parentID).Scan(&scopeID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("reply to %s: %w", parentID, conversation.ErrParentNotFound)
	} else if err != nil {
		return nil, fmt.Errorf("failed to get parent post: %w", err)
	}
	item := &conversation.ContentItem{
		ID:         uuid.NewString(),
		ParentID:   parentID,
		ScopeID:    scopeID,
		Body:       body,
		AuthorName: author.Name,
		CreatedAt:  s.clock.next(),
	}
	if err = s.insert(ctx, item); err != nil {
		return nil, fmt.Errorf("failed to insert reply: %w", err)
	}
	return item, nil
}

func (s *SQLStore) ListThread(ctx context.Context, scopeID string) ([]*conversation.ContentItem, error) {
	return s.list(ctx, listThreadQuery, scopeID)
}

func (s *SQLStore) ListReplies(ctx context.Context, parentID string) ([]*conversation.ContentItem, error) {
	return s.list(ctx, listRepliesQuery, parentID)
}

func (s *SQLStore) list(ctx context.Context, query string, arg string) ([]*conversation.ContentItem, error) {
	rows, err := s.db.Query(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("failed to query items: %w", err)
	}
	defer rows.Close()
	var items []*conversation.ContentItem
	for rows.Next() {
		var item conversation.ContentItem
		var createdAt int64
		if err = rows.Scan(&item.ID, &item.ParentID, &item.ScopeID, &item.Body, &item.AuthorName, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan item: %w", err)
		}
		item.CreatedAt = time.UnixMilli(createdAt)
		items = append(items, &item)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate items: %w", err)
	}
	return items, nil
}
