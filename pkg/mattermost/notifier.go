// Copyright 2024-2026 Remi Philippe
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package mattermost

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/mattermost/mattermost/server/public/model"
	"github.com/rs/zerolog"

	"github.com/aiku/threadtag/pkg/conversation"
	"github.com/aiku/threadtag/pkg/conversation/textfmt"
)

// Notifier delivers notifications as direct messages from the bot account
// the client is authenticated as. Addresses are Mattermost user IDs or
// emails.
type Notifier struct {
	client *model.Client4
	log    zerolog.Logger

	mu       sync.Mutex
	botID    string
	channels map[string]string
}

var _ conversation.Notifier = (*Notifier)(nil)

// NewNotifier creates a notifier from cfg.
func NewNotifier(cfg Config, log zerolog.Logger) *Notifier {
	return &Notifier{
		client:   NewClient(cfg),
		log:      log.With().Str("component", "mattermost_notifier").Logger(),
		channels: make(map[string]string),
	}
}

func (n *Notifier) me(ctx context.Context) (string, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.botID != "" {
		return n.botID, nil
	}
	me, _, err := n.client.GetMe(ctx, "")
	if err != nil {
		return "", fmt.Errorf("failed to get bot user: %w", err)
	}
	n.botID = me.Id
	return n.botID, nil
}

func (n *Notifier) resolveUser(ctx context.Context, address string) (string, error) {
	switch {
	case model.IsValidId(address):
		return address, nil
	case strings.Contains(address, "@") && !strings.HasPrefix(address, "@"):
		user, _, err := n.client.GetUserByEmail(ctx, address, "")
		if err != nil {
			return "", fmt.Errorf("failed to look up user by email: %w", err)
		}
		return user.Id, nil
	default:
		return "", fmt.Errorf("%w: %q is not a Mattermost user ID or email", conversation.ErrUnsupportedAddress, address)
	}
}

func (n *Notifier) directChannel(ctx context.Context, botID, userID string) (string, error) {
	n.mu.Lock()
	channelID, ok := n.channels[userID]
	n.mu.Unlock()
	if ok {
		return channelID, nil
	}
	channel, _, err := n.client.CreateDirectChannel(ctx, botID, userID)
	if err != nil {
		return "", fmt.Errorf("failed to open direct channel: %w", err)
	}
	n.mu.Lock()
	n.channels[userID] = channel.Id
	n.mu.Unlock()
	return channel.Id, nil
}

// FormatMessage builds the markdown post for a notification.
func FormatMessage(subject, body string, isHTML bool) string {
	if isHTML {
		body = textfmt.Markdown(body)
	}
	if subject == "" {
		return body
	}
	return "#### " + subject + "\n\n" + body
}

func (n *Notifier) Send(ctx context.Context, address, subject, body string, isHTML bool) error {
	userID, err := n.resolveUser(ctx, address)
	if err != nil {
		return err
	}
	botID, err := n.me(ctx)
	if err != nil {
		return err
	}
	channelID, err := n.directChannel(ctx, botID, userID)
	if err != nil {
		return err
	}
	post, _, err := n.client.CreatePost(ctx, &model.Post{
		ChannelId: channelID,
		Message:   FormatMessage(subject, body, isHTML),
	})
	if err != nil {
		return fmt.Errorf("failed to create post: %w", err)
	}
	n.log.Debug().
		Str("user_id", userID).
		Str("channel_id", channelID).
		Str("post_id", post.Id).
		Msg("Sent direct message")
	return nil
}
