// Copyright 2024-2026 Aiku AI

package conversation

import (
	"context"
)

// State is a composer lifecycle state.
type State int

const (
	StateEditing State = iota
	StateSubmitting
	StatePersisted
	StateDispatching
	StateDone
)

func (s State) String() string {
	switch s {
	case StateEditing:
		return "editing"
	case StateSubmitting:
		return "submitting"
	case StatePersisted:
		return "persisted"
	case StateDispatching:
		return "dispatching"
	case StateDone:
		return "done"
	default:
		return "unknown"
	}
}

// Composer tracks one post or reply being written. It is not safe for
// concurrent use.
type Composer struct {
	ctrl     *Controller
	scopeID  string
	parentID string
	author   AuthorContext

	state       State
	text        string
	cursor      int
	suggestions []Suggestion

	// OnTransition, if set, is called on every state change.
	OnTransition func(from, to State)
}

// NewPostComposer returns a composer for a new post in scopeID.
func (c *Controller) NewPostComposer(scopeID string, author AuthorContext) *Composer {
	return &Composer{ctrl: c, scopeID: scopeID, author: author}
}

// NewReplyComposer returns a composer for a reply to parentID.
func (c *Controller) NewReplyComposer(parentID string, author AuthorContext) *Composer {
	return &Composer{ctrl: c, parentID: parentID, author: author}
}

func (cp *Composer) State() State              { return cp.state }
func (cp *Composer) Text() string              { return cp.text }
func (cp *Composer) Cursor() int               { return cp.cursor }
func (cp *Composer) Suggestions() []Suggestion { return cp.suggestions }

func (cp *Composer) transition(to State) {
	from := cp.state
	cp.state = to
	if cp.OnTransition != nil {
		cp.OnTransition(from, to)
	}
}

// TextChanged records the current text and cursor and refreshes the
// suggestions.
func (cp *Composer) TextChanged(text string, cursor int) []Suggestion {
	cp.text = text
	cp.cursor = clampCursor(text, cursor)
	cp.suggestions = cp.ctrl.TextChanged(text, cp.cursor)
	return cp.suggestions
}

// Select applies s to the text and hides the suggestions.
func (cp *Composer) Select(s Suggestion) {
	cp.text, cp.cursor = ApplySuggestion(cp.text, s.Start, s.End, s.DisplayName)
	cp.suggestions = nil
}

// Submit persists the text and dispatches notifications synchronously. On a
// validation or store error the composer returns to editing with the text
// intact. On success it resets to an empty editing state.
func (cp *Composer) Submit(ctx context.Context) (*ContentItem, []DeliveryOutcome, error) {
	cp.transition(StateSubmitting)
	var item *ContentItem
	var err error
	if cp.parentID != "" {
		item, err = cp.ctrl.persistReply(ctx, cp.parentID, cp.author, cp.text)
	} else {
		item, err = cp.ctrl.persistPost(ctx, cp.scopeID, cp.author, cp.text)
	}
	if err != nil {
		cp.transition(StateEditing)
		return nil, nil, err
	}
	cp.transition(StatePersisted)

	cp.transition(StateDispatching)
	outcomes := cp.ctrl.dispatcher.Dispatch(context.WithoutCancel(ctx), item, cp.ctrl.dir)
	cp.ctrl.report(outcomes)
	cp.transition(StateDone)

	cp.text = ""
	cp.cursor = 0
	cp.suggestions = nil
	cp.transition(StateEditing)
	return item, outcomes, nil
}
