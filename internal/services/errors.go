// Package services defines the business logic for complaint intake, status
// triage, statistics and operator accounts. This file centralizes the
// service-level error values so callers can branch with errors.Is.
//
// Translation into user-facing messages or HTTP status codes is performed at
// the handler layer.
package services

import (
	"errors"
	"fmt"
)

// ErrValidation is the parent of every input validation failure. Nothing is
// persisted when a validation error is returned.
var ErrValidation = errors.New("validation failed")

// Validation errors.
var (
	// ErrMissingContent: no text, image or audio was supplied.
	ErrMissingContent = fmt.Errorf("%w: a description, photo or voice note is required", ErrValidation)

	// ErrMissingLocation: the location field is empty.
	ErrMissingLocation = fmt.Errorf("%w: location is required", ErrValidation)

	// ErrInvalidContact: the contact e-mail is malformed.
	ErrInvalidContact = fmt.Errorf("%w: contact email is invalid", ErrValidation)

	// ErrUnsupportedMedia: an upload is not an image/audio file of the expected kind.
	ErrUnsupportedMedia = fmt.Errorf("%w: unsupported media type", ErrValidation)

	// ErrInvalidStatus: the requested status is not a member of the enum.
	ErrInvalidStatus = fmt.Errorf("%w: unknown status", ErrValidation)

	// ErrInvalidFilter: a list/stats filter value is outside its enum.
	ErrInvalidFilter = fmt.Errorf("%w: invalid filter", ErrValidation)

	// ErrTooLong: free text exceeds the configured limit.
	ErrTooLong = fmt.Errorf("%w: text too long", ErrValidation)

	// ErrWeakPassword: a registration password is shorter than MinPasswordLen.
	ErrWeakPassword = fmt.Errorf("%w: password must be at least %d characters", ErrValidation, MinPasswordLen)
)

// Domain errors.
var (
	// ErrComplaintNotFound indicates the tracking ID does not exist.
	ErrComplaintNotFound = errors.New("complaint not found")

	// ErrInvalidTransition is returned when the target status is valid but not
	// reachable from the current status.
	ErrInvalidTransition = errors.New("status transition not allowed")

	// ErrTrackingIDExhausted is returned when every generated tracking ID
	// collided with an existing complaint.
	ErrTrackingIDExhausted = errors.New("could not allocate a unique tracking id")

	// ErrInvalidCredentials covers an unknown username and a wrong password alike.
	ErrInvalidCredentials = errors.New("invalid username or password")

	// ErrEmailTaken is returned when registering an address that already has
	// an account.
	ErrEmailTaken = errors.New("an account with this email already exists")

	// ErrAccountGone is returned when a citizen token outlives its account.
	ErrAccountGone = errors.New("account no longer exists")
)
