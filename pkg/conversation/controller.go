// Copyright 2024-2026 Aiku AI

package conversation

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
)

// ControllerConfig configures a Controller.
type ControllerConfig struct {
	Store      ContentStore
	Dispatcher *Dispatcher
	// Directory is the session snapshot. Nil means empty.
	Directory *Directory
	Metrics   *Metrics
	Log       zerolog.Logger
	// OnOutcome, if set, is called once per delivery outcome from the
	// dispatch goroutine.
	OnOutcome func(DeliveryOutcome)
}

// Controller coordinates one conversation session: it validates and
// persists submissions, then dispatches notifications for them in the
// background. The directory snapshot is fixed for the controller's lifetime.
type Controller struct {
	store      ContentStore
	dispatcher *Dispatcher
	dir        *Directory
	metrics    *Metrics
	log        zerolog.Logger
	onOutcome  func(DeliveryOutcome)

	wg       sync.WaitGroup
	inflight atomic.Int64
}

// NewController creates a Controller.
func NewController(cfg ControllerConfig) *Controller {
	c := &Controller{
		store:      cfg.Store,
		dispatcher: cfg.Dispatcher,
		dir:        cfg.Directory,
		metrics:    cfg.Metrics,
		log:        cfg.Log.With().Str("component", "controller").Logger(),
		onOutcome:  cfg.OnOutcome,
	}
	if c.dir == nil {
		c.dir = EmptyDirectory()
	}
	if c.metrics == nil {
		c.metrics = NewMetrics(nil)
	}
	if c.dispatcher == nil {
		c.dispatcher = NewDispatcher(DispatcherConfig{Metrics: c.metrics, Log: cfg.Log})
	}
	return c
}

// StartSession loads the directory from src and returns a controller bound to
// that snapshot. A directory failure is logged and yields an empty snapshot.
func StartSession(ctx context.Context, src DirectorySource, cfg ControllerConfig) *Controller {
	cfg.Directory = LoadDirectory(ctx, src, cfg.Log.With().Str("component", "directory").Logger())
	return NewController(cfg)
}

// Directory returns the session snapshot.
func (c *Controller) Directory() *Directory {
	return c.dir
}

// SubmitPost persists a new post in scopeID and dispatches notifications for
// its mentions. Delivery failures are never returned.
func (c *Controller) SubmitPost(ctx context.Context, scopeID string, author AuthorContext, body string) (*ContentItem, error) {
	item, err := c.persistPost(ctx, scopeID, author, body)
	if err != nil {
		return nil, err
	}
	c.dispatchAsync(ctx, item)
	return item, nil
}

// SubmitReply persists a reply to parentID and dispatches notifications for
// its mentions. Delivery failures are never returned.
func (c *Controller) SubmitReply(ctx context.Context, parentID string, author AuthorContext, body string) (*ContentItem, error) {
	item, err := c.persistReply(ctx, parentID, author, body)
	if err != nil {
		return nil, err
	}
	c.dispatchAsync(ctx, item)
	return item, nil
}

func (c *Controller) persistPost(ctx context.Context, scopeID string, author AuthorContext, body string) (*ContentItem, error) {
	if strings.TrimSpace(body) == "" {
		c.metrics.Submissions.WithLabelValues("post", "invalid").Inc()
		return nil, ErrEmptyContent
	}
	item, err := c.store.CreatePost(ctx, scopeID, author, body)
	if err != nil {
		c.metrics.Submissions.WithLabelValues("post", "store_error").Inc()
		c.log.Err(err).Str("scope_id", scopeID).Msg("Failed to persist post")
		return nil, asStoreError("create post", err)
	}
	c.metrics.Submissions.WithLabelValues("post", "persisted").Inc()
	c.log.Debug().Str("item_id", item.ID).Str("scope_id", scopeID).Msg("Persisted post")
	return item, nil
}

func (c *Controller) persistReply(ctx context.Context, parentID string, author AuthorContext, body string) (*ContentItem, error) {
	if strings.TrimSpace(body) == "" {
		c.metrics.Submissions.WithLabelValues("reply", "invalid").Inc()
		return nil, ErrEmptyContent
	}
	item, err := c.store.CreateReply(ctx, parentID, author, body)
	if err != nil {
		c.metrics.Submissions.WithLabelValues("reply", "store_error").Inc()
		c.log.Err(err).Str("parent_id", parentID).Msg("Failed to persist reply")
		return nil, asStoreError("create reply", err)
	}
	c.metrics.Submissions.WithLabelValues("reply", "persisted").Inc()
	c.log.Debug().Str("item_id", item.ID).Str("parent_id", parentID).Msg("Persisted reply")
	return item, nil
}

func asStoreError(op string, err error) error {
	var storeErr *StoreError
	if errors.As(err, &storeErr) {
		return err
	}
	return &StoreError{Op: op, Err: err}
}

// dispatchAsync runs the dispatch in the background. Cancelling the request
// context does not stop it.
func (c *Controller) dispatchAsync(ctx context.Context, item *ContentItem) {
	ctx = context.WithoutCancel(ctx)
	c.wg.Add(1)
	c.inflight.Add(1)
	go func() {
		defer c.wg.Done()
		defer c.inflight.Add(-1)
		c.report(c.dispatcher.Dispatch(ctx, item, c.dir))
	}()
}

func (c *Controller) report(outcomes []DeliveryOutcome) {
	if c.onOutcome == nil {
		return
	}
	for _, outcome := range outcomes {
		c.onOutcome(outcome)
	}
}

// Wait blocks until all background dispatches have finished.
func (c *Controller) Wait() {
	c.wg.Wait()
}

// Idle reports whether no background dispatch is running.
func (c *Controller) Idle() bool {
	return c.inflight.Load() == 0
}

// TextChanged returns the suggestions for the mention under the cursor.
func (c *Controller) TextChanged(text string, cursor int) []Suggestion {
	return Suggest(text, cursor, c.dir)
}

// SuggestionSelected inserts displayName for the mention spanning
// [atIndex, cursor) and returns the new text and cursor.
func (c *Controller) SuggestionSelected(text string, atIndex, cursor int, displayName string) (string, int) {
	return ApplySuggestion(text, atIndex, cursor, displayName)
}

// Thread lists the posts of scopeID, newest first.
func (c *Controller) Thread(ctx context.Context, scopeID string) ([]*ContentItem, error) {
	items, err := c.store.ListThread(ctx, scopeID)
	if err != nil {
		return nil, asStoreError("list thread", err)
	}
	return items, nil
}

// Replies lists the replies to postID, oldest first.
func (c *Controller) Replies(ctx context.Context, postID string) ([]*ContentItem, error) {
	items, err := c.store.ListReplies(ctx, postID)
	if err != nil {
		return nil, asStoreError("list replies", err)
	}
	return items, nil
}
