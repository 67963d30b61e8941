// Copyright 2024-2026 Aiku AI

package conversation

import (
	"context"
	"strings"

	"github.com/rs/zerolog"
)

// Directory is an immutable, ordered snapshot of the identities known to a
// session. It is safe for concurrent reads; a reload builds a new Directory.
type Directory struct {
	identities []Identity
	// folded holds the lower-cased display names, index-aligned with
	// identities, for substring matching on every keystroke.
	folded []string
}

// NewDirectory builds a snapshot from identities. Entries without a display
// name are dropped since they can never be mentioned. Order is preserved.
func NewDirectory(identities []Identity) *Directory {
	d := &Directory{
		identities: make([]Identity, 0, len(identities)),
		folded:     make([]string, 0, len(identities)),
	}
	for _, ident := range identities {
		if strings.TrimSpace(ident.DisplayName) == "" {
			continue
		}
		d.identities = append(d.identities, ident)
		d.folded = append(d.folded, strings.ToLower(ident.DisplayName))
	}
	return d
}

// EmptyDirectory returns a snapshot with no identities.
func EmptyDirectory() *Directory {
	return &Directory{}
}

// Len returns the number of identities in the snapshot.
func (d *Directory) Len() int {
	if d == nil {
		return 0
	}
	return len(d.identities)
}

// Identities returns a copy of the snapshot contents.
func (d *Directory) Identities() []Identity {
	if d == nil {
		return nil
	}
	out := make([]Identity, len(d.identities))
	copy(out, d.identities)
	return out
}

// Resolve maps a mention token to an identity by exact, case-insensitive
// display name comparison. When several identities share the name the first
// one in directory order wins; use Matches to detect that case.
func (d *Directory) Resolve(token string) (Identity, bool) {
	if d == nil {
		return Identity{}, false
	}
	name := strings.TrimSpace(token)
	if name == "" {
		return Identity{}, false
	}
	for _, ident := range d.identities {
		if strings.EqualFold(ident.DisplayName, name) {
			return ident, true
		}
	}
	return Identity{}, false
}

// Matches returns every identity whose display name equals token, ignoring
// case, in directory order.
func (d *Directory) Matches(token string) []Identity {
	if d == nil {
		return nil
	}
	name := strings.TrimSpace(token)
	if name == "" {
		return nil
	}
	var out []Identity
	for _, ident := range d.identities {
		if strings.EqualFold(ident.DisplayName, name) {
			out = append(out, ident)
		}
	}
	return out
}

// LoadDirectory fetches a snapshot from src. A nil source or a load failure
// yields an empty directory; failures are logged, never returned.
func LoadDirectory(ctx context.Context, src DirectorySource, log zerolog.Logger) *Directory {
	if src == nil {
		log.Warn().Msg("No directory source configured, mentions will not resolve")
		return EmptyDirectory()
	}
	identities, err := src.LoadDirectory(ctx)
	if err != nil {
		log.Error().Err(&DirectoryError{Err: err}).Msg("Directory unavailable, continuing with empty directory")
		return EmptyDirectory()
	}
	dir := NewDirectory(identities)
	log.Info().Int("identities", dir.Len()).Msg("Loaded directory snapshot")
	return dir
}
