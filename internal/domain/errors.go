package domain

import "errors"

var (
	// ErrRequestNotFound is returned when no record exists for a request id
	ErrRequestNotFound = errors.New("colorize request not found")

	// ErrRequestFinalized is returned when a terminal transition targets a
	// record that already left processing
	ErrRequestFinalized = errors.New("colorize request already finalized")

	// ErrInvalidJobMessage is returned for queue messages that cannot be decoded
	ErrInvalidJobMessage = errors.New("invalid job message")
)
