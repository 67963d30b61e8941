// Copyright 2024-2026 Aiku AI

package conversation

import (
	"context"
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

// StaticSource is a DirectorySource backed by a fixed list of identities.
type StaticSource []Identity

func (s StaticSource) LoadDirectory(_ context.Context) ([]Identity, error) {
	out := make([]Identity, len(s))
	copy(out, s)
	return out, nil
}

// FileSource is a DirectorySource that reads a YAML list of identities from
// disk on every load, so edits are picked up on reload.
type FileSource string

func (f FileSource) LoadDirectory(_ context.Context) ([]Identity, error) {
	data, err := os.ReadFile(string(f))
	if err != nil {
		return nil, fmt.Errorf("failed to read directory file: %w", err)
	}
	var identities []Identity
	if err = yaml.Unmarshal(data, &identities); err != nil {
		return nil, fmt.Errorf("failed to parse directory file: %w", err)
	}
	return identities, nil
}

// LogNotifier is a Notifier that only logs messages. It is useful for
// development and dry runs.
type LogNotifier struct {
	Log zerolog.Logger
}

func (n LogNotifier) Send(_ context.Context, address, subject, body string, isHTML bool) error {
	n.Log.Info().
		Str("address", address).
		Str("subject", subject).
		Bool("html", isHTML).
		Str("body", body).
		Msg("Notification (log only)")
	return nil
}
