// Copyright 2024-2026 Remi Philippe
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

// Package matrix delivers notifications as Matrix direct messages.
package matrix

import (
	"context"
	"fmt"
	"html"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"maunium.net/go/mautrix"
	"maunium.net/go/mautrix/event"
	"maunium.net/go/mautrix/id"

	"github.com/aiku/threadtag/pkg/conversation"
	"github.com/aiku/threadtag/pkg/conversation/textfmt"
)

// Config holds the Matrix bot account settings.
type Config struct {
	HomeserverURL string
	UserID        string
	AccessToken   string
	Timeout       time.Duration
}

// Notifier sends notices to Matrix users from a bot account, opening a
// direct chat with each recipient on first use. Addresses are MXIDs.
type Notifier struct {
	client *mautrix.Client
	log    zerolog.Logger

	mu    sync.Mutex
	rooms map[id.UserID]id.RoomID
}

var _ conversation.Notifier = (*Notifier)(nil)

// NewNotifier creates a notifier from cfg.
func NewNotifier(cfg Config, log zerolog.Logger) (*Notifier, error) {
	client, err := mautrix.NewClient(cfg.HomeserverURL, id.UserID(cfg.UserID), cfg.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create matrix client: %w", err)
	}
	if cfg.Timeout > 0 {
		client.Client.Timeout = cfg.Timeout
	}
	return &Notifier{
		client: client,
		log:    log.With().Str("component", "matrix_notifier").Logger(),
		rooms:  make(map[id.UserID]id.RoomID),
	}, nil
}

func parseAddress(address string) (id.UserID, error) {
	userID := id.UserID(address)
	if _, _, err := userID.Parse(); err != nil {
		return "", fmt.Errorf("%w: %q is not a Matrix user ID", conversation.ErrUnsupportedAddress, address)
	}
	return userID, nil
}

func (n *Notifier) directRoom(ctx context.Context, userID id.UserID) (id.RoomID, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if roomID, ok := n.rooms[userID]; ok {
		return roomID, nil
	}
	resp, err := n.client.CreateRoom(ctx, &mautrix.ReqCreateRoom{
		Preset:   "trusted_private_chat",
		IsDirect: true,
		Invite:   []id.UserID{userID},
	})
	if err != nil {
		return "", fmt.Errorf("failed to create direct room: %w", err)
	}
	n.rooms[userID] = resp.RoomID
	n.log.Debug().
		Str("user_id", userID.String()).
		Str("room_id", resp.RoomID.String()).
		Msg("Created direct room")
	return resp.RoomID, nil
}

// MessageContent builds the notice content for a notification.
func MessageContent(userID id.UserID, subject, body string, isHTML bool) *event.MessageEventContent {
	content := &event.MessageEventContent{
		MsgType:  event.MsgNotice,
		Mentions: &event.Mentions{UserIDs: []id.UserID{userID}},
	}
	if !isHTML {
		content.Body = body
		if subject != "" {
			content.Body = subject + "\n\n" + body
		}
		return content
	}
	content.Format = event.FormatHTML
	content.FormattedBody = body
	content.Body = textfmt.Plain(body)
	if subject != "" {
		content.FormattedBody = "<h4>" + html.EscapeString(subject) + "</h4>" + body
		content.Body = subject + "\n\n" + content.Body
	}
	return content
}

func (n *Notifier) Send(ctx context.Context, address, subject, body string, isHTML bool) error {
	userID, err := parseAddress(address)
	if err != nil {
		return err
	}
	roomID, err := n.directRoom(ctx, userID)
	if err != nil {
		return err
	}
	resp, err := n.client.SendMessageEvent(ctx, roomID, event.EventMessage, MessageContent(userID, subject, body, isHTML))
	if err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}
	n.log.Debug().
		Str("room_id", roomID.String()).
		Str("event_id", resp.EventID.String()).
		Msg("Sent notice")
	return nil
}
