package reconcile

import "errors"

var (
	ErrUnavailable        = errors.New("equipment unavailable")
	ErrSessionNotFound    = errors.New("session not found")
	ErrSessionExists      = errors.New("session already exists")
	ErrAlreadyMember      = errors.New("equipment already in session")
	ErrNotMember          = errors.New("equipment not in session")
	ErrAssignmentNotFound = errors.New("assignment not found")
	ErrAlreadyReturned    = errors.New("assignment already returned")
	ErrNoFeed             = errors.New("no feed to reconcile")
)
