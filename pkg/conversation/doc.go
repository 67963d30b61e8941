// Copyright 2024-2026 Aiku AI

// Package conversation implements threaded posts and replies with inline
// @-mention notifications.
//
// # Core Types
//
// [Controller] owns one session: a [Directory] snapshot loaded at start, a
// [ContentStore] for persistence and a [Dispatcher] that notifies every
// distinct identity mentioned in a persisted item. [Composer] tracks a single
// post or reply from editing through dispatch.
//
// Mentions are "@Display Name" spans terminated by a comma, a newline, another
// '@' or the end of the text; see package mention. Names resolve by exact,
// case-insensitive display name. When two identities share a display name the
// first one in directory order is notified.
//
// # Sub-packages
//
//   - mention extracts mention tokens from text.
//   - htmlfmt renders bodies as notification HTML.
//   - textfmt converts notification HTML back to markdown or plain text.
package conversation
