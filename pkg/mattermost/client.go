// Copyright 2024-2026 Remi Philippe
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

// Package mattermost resolves mentionable identities from a Mattermost
// server and delivers notifications as bot direct messages.
package mattermost

import (
	"strings"
	"text/template"
	"time"

	"github.com/mattermost/mattermost/server/public/model"
)

// DefaultDisplaynameTemplate renders "First Last", falling back to the
// username when either part is missing.
const DefaultDisplaynameTemplate = `{{if and .FirstName .LastName}}{{.FirstName}} {{.LastName}}{{else}}{{.Username}}{{end}}`

// Config holds the Mattermost connection settings.
type Config struct {
	ServerURL           string
	Token               string
	DisplaynameTemplate string
	// PerPage is the page size used when listing users.
	PerPage int
	Timeout time.Duration
}

// NewClient returns an API client authenticated with cfg.Token.
func NewClient(cfg Config) *model.Client4 {
	client := model.NewAPIv4Client(strings.TrimRight(cfg.ServerURL, "/"))
	client.SetToken(cfg.Token)
	if cfg.Timeout > 0 {
		client.HTTPClient.Timeout = cfg.Timeout
	}
	return client
}

// DisplaynameParams holds the parameters for rendering the displayname template.
type DisplaynameParams struct {
	Username  string
	Nickname  string
	FirstName string
	LastName  string
}

func paramsFromUser(u *model.User) DisplaynameParams {
	return DisplaynameParams{
		Username:  u.Username,
		Nickname:  u.Nickname,
		FirstName: u.FirstName,
		LastName:  u.LastName,
	}
}

// Displaynamer renders display names from a template.
type Displaynamer struct {
	tmpl *template.Template
}

// NewDisplaynamer parses src, using DefaultDisplaynameTemplate when empty.
func NewDisplaynamer(src string) (*Displaynamer, error) {
	if src == "" {
		src = DefaultDisplaynameTemplate
	}
	tmpl, err := template.New("displayname").Parse(src)
	if err != nil {
		return nil, err
	}
	return &Displaynamer{tmpl: tmpl}, nil
}

// Format renders the display name for params, falling back to the username
// when the template fails or renders blank.
func (d *Displaynamer) Format(params DisplaynameParams) string {
	if d == nil || d.tmpl == nil {
		return params.Username
	}
	var sb strings.Builder
	if err := d.tmpl.Execute(&sb, params); err != nil {
		return params.Username
	}
	name := strings.TrimSpace(sb.String())
	if name == "" {
		return params.Username
	}
	return name
}
