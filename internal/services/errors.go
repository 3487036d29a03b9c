// Package services defines the business logic for channels, memberships,
// messages, and user profiles — the protected façade over the raw stores.
// This file centralizes common service-level error values so that they can
// be consistently returned by service methods and checked by callers.
//
// These errors are intended for internal use by the service layer; translation
// into user-facing messages or HTTP status codes is performed at the
// handler layer.
//
// A deliberate asymmetry: writes surface ErrUnauthorized as an explicit
// denial, while reads never do — an unauthorized read degrades to an empty
// or filtered result (often mapped to ErrNotFound), because leaking the
// existence of private data through an error signal is itself a disclosure.
package services

import "errors"

var (
	// ErrUnauthorized is returned when a write is rejected by the access
	// kernel. It is never used on read paths.
	ErrUnauthorized = errors.New("not authorized")

	// ErrNotFound indicates that the requested channel, user, or message
	// does not exist — or is not visible to the caller, which reads report
	// identically on purpose.
	ErrNotFound = errors.New("not found")

	// ErrDuplicateName is returned when creating or renaming a channel to a
	// name that already exists.
	ErrDuplicateName = errors.New("channel name already exists")

	// ErrDuplicateMembership is returned when adding a user to a channel
	// they already belong to.
	ErrDuplicateMembership = errors.New("membership already exists")

	// ErrInvalidTarget is returned for a message with zero or two targets:
	// exactly one of channel/recipient must be addressed.
	ErrInvalidTarget = errors.New("message must target exactly one of channel or recipient")

	// ErrEmptyContent is returned when a send request carries no content.
	ErrEmptyContent = errors.New("message content is empty")

	// ErrTooLong is returned when message content exceeds the configured
	// rune limit.
	ErrTooLong = errors.New("message content too long")

	// ErrEmptyName is returned when a channel create/rename carries no name
	// after normalization.
	ErrEmptyName = errors.New("channel name is empty")

	// ErrInvalidRole is returned for a membership role outside
	// {admin, member}.
	ErrInvalidRole = errors.New("role must be admin or member")

	// ErrInvalidStatus is returned for a presence status outside
	// {online, away, offline}.
	ErrInvalidStatus = errors.New("status must be online, away, or offline")
)
