// Copyright 2024-2026 Aiku AI

package conversation

import (
	"errors"
	"fmt"
)

var (
	// ErrEmptyContent is returned when a post or reply body is empty or
	// whitespace only. Nothing is persisted.
	ErrEmptyContent = errors.New("content cannot be empty")
	// ErrParentNotFound is returned by stores when a reply targets a post
	// that does not exist.
	ErrParentNotFound = errors.New("parent post not found")
	// ErrUnsupportedAddress is returned by notifiers that cannot deliver to
	// the given kind of address.
	ErrUnsupportedAddress = errors.New("unsupported address")
)

// StoreError wraps a content store failure. Submissions that fail with a
// StoreError are not dispatched.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("failed to %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// DirectoryError wraps a directory source failure. The session continues
// with an empty directory.
type DirectoryError struct {
	Err error
}

func (e *DirectoryError) Error() string {
	return fmt.Sprintf("failed to load directory: %v", e.Err)
}

func (e *DirectoryError) Unwrap() error {
	return e.Err
}

// DeliveryError is the per-recipient failure recorded in a DeliveryOutcome.
type DeliveryError struct {
	RecipientID string
	Address     string
	Err         error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("failed to notify %s: %v", e.Address, e.Err)
}

func (e *DeliveryError) Unwrap() error {
	return e.Err
}

var errNoNotifier = errors.New("no notifier configured")
