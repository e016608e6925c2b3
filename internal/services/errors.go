// Package services implements the mutation orchestrators for accounts and
// relationships. This file centralizes common service-level error values so
// that they can be consistently returned by service methods and checked by
// callers with errors.Is.
//
// These errors carry stable domain codes; translation into transport-level
// responses belongs to whatever dispatch layer embeds this engine.
package services

import "errors"

// Validation errors.
var (
	// ErrInvalidParameter is returned for missing or malformed input and is
	// surfaced to the caller verbatim.
	ErrInvalidParameter = errors.New("invalid parameter")

	// ErrUsernamePolicy is returned when a username does not match the
	// account naming policy (a ten-digit phone number).
	ErrUsernamePolicy = errors.New("username does not match policy")

	// ErrPasswordPolicy is returned when a password is too weak.
	ErrPasswordPolicy = errors.New("password does not match policy")

	// ErrNamePolicy is returned when a display name contains characters
	// outside the allowed set.
	ErrNamePolicy = errors.New("name does not match policy")
)

// Conflict errors.
var (
	// ErrUserAlreadyExists is returned when registering an identifier that
	// is already taken.
	ErrUserAlreadyExists = errors.New("user already exists")

	// ErrAlreadyExists is returned when a relationship edge already exists
	// for the pair, in either direction.
	ErrAlreadyExists = errors.New("already exists")

	// ErrWasBlocked is returned when a blocked pair suppresses a new friend
	// request.
	ErrWasBlocked = errors.New("was blocked")

	// ErrInProgress is returned when a conflicting mutation currently holds
	// the advisory lock for the same resource.
	ErrInProgress = errors.New("operation in progress")
)

// Permission errors.
var (
	// ErrPermissionDenied is returned when the actor is not authorized for
	// the requested transition.
	ErrPermissionDenied = errors.New("user does not have permission")
)

// Not-found errors.
var (
	// ErrUserNotFound indicates the referenced account does not exist or is
	// not active.
	ErrUserNotFound = errors.New("user not found")

	// ErrObjectNotFound indicates the referenced record does not exist.
	ErrObjectNotFound = errors.New("object not found")
)

// Credential errors.
var (
	// ErrInvalidCredential is returned for an unknown identifier or a
	// non-matching password; callers cannot distinguish the two cases.
	ErrInvalidCredential = errors.New("invalid client credential")

	// ErrInvalidAccountStatus rejects logins to disabled accounts.
	ErrInvalidAccountStatus = errors.New("invalid account status")

	// ErrIncorrectOldPassword rejects a password change whose proof of the
	// current password fails.
	ErrIncorrectOldPassword = errors.New("incorrect old password")

	// ErrPasswordNotChanged rejects password updates that keep the
	// password identical.
	ErrPasswordNotChanged = errors.New("password has not been changed")
)
