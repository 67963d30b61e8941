// Copyright 2024-2026 Remi Philippe
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package mattermost

import (
	"context"
	"fmt"

	"github.com/mattermost/mattermost/server/public/model"
	"github.com/rs/zerolog"

	"github.com/aiku/threadtag/pkg/conversation"
)

const defaultPerPage = 200

// DirectorySource lists the active human users of a Mattermost server as
// mentionable identities. The address of each identity is the user's email.
type DirectorySource struct {
	client  *model.Client4
	names   *Displaynamer
	perPage int
	log     zerolog.Logger
}

var _ conversation.DirectorySource = (*DirectorySource)(nil)

// NewDirectorySource creates a directory source from cfg.
func NewDirectorySource(cfg Config, log zerolog.Logger) (*DirectorySource, error) {
	names, err := NewDisplaynamer(cfg.DisplaynameTemplate)
	if err != nil {
		return nil, fmt.Errorf("failed to parse displayname template: %w", err)
	}
	perPage := cfg.PerPage
	if perPage <= 0 {
		perPage = defaultPerPage
	}
	return &DirectorySource{
		client:  NewClient(cfg),
		names:   names,
		perPage: perPage,
		log:     log.With().Str("component", "mattermost_directory").Logger(),
	}, nil
}

func (d *DirectorySource) LoadDirectory(ctx context.Context) ([]conversation.Identity, error) {
	var identities []conversation.Identity
	skipped := 0
	for page := 0; ; page++ {
		users, _, err := d.client.GetUsers(ctx, page, d.perPage, "")
		if err != nil {
			return nil, fmt.Errorf("failed to list users (page %d): %w", page, err)
		}
		for _, u := range users {
			if u.DeleteAt != 0 || u.IsBot || u.Email == "" {
				skipped++
				continue
			}
			identities = append(identities, conversation.Identity{
				ID:          u.Id,
				DisplayName: d.names.Format(paramsFromUser(u)),
				Address:     u.Email,
			})
		}
		if len(users) < d.perPage {
			break
		}
	}
	d.log.Debug().
		Int("identities", len(identities)).
		Int("skipped", skipped).
		Msg("Loaded Mattermost users")
	return identities, nil
}
