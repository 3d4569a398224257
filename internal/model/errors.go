package model

import "errors"

var (
	// ErrTicketNotFound is returned by ticket stores for unknown ids or numbers.
	ErrTicketNotFound = errors.New("ticket not found")
	// ErrUserNotFound is returned by the user directory for unknown users.
	ErrUserNotFound = errors.New("user not found")
)
