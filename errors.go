package main

import "errors"

// Boundary error taxonomy. Callers match with errors.Is so the transport
// layer can map each class to a distinct client signal: InvalidRequest and
// Conflict resolve to a generic retry, ErrArenaNotFound tells the client
// its session is stale and it should re-queue.
var (
	// ErrInvalidRequest covers malformed game requests: unknown username,
	// unsupported mode or type.
	ErrInvalidRequest = errors.New("invalid game request")

	// ErrNotFound is returned when a lobby entry is absent.
	ErrNotFound = errors.New("not found")

	// ErrArenaNotFound is returned for input addressed to an arena that was
	// never created or has already been deleted.
	ErrArenaNotFound = errors.New("arena not found")

	// ErrArenaClosed is returned for input reaching an arena after it
	// completed or was abandoned but before the registry dropped it.
	ErrArenaClosed = errors.New("arena is closed")

	// ErrAlreadyStarted guards against double Start calls restarting the
	// countdown.
	ErrAlreadyStarted = errors.New("arena already started")

	// ErrArenaNotStarted is returned for input reaching an arena still
	// waiting for its second player.
	ErrArenaNotStarted = errors.New("arena not started")

	// ErrConflict signals a matchmaking race that could not be resolved,
	// such as losing the waiting slot twice in a row.
	ErrConflict = errors.New("conflicting request")

	// ErrNameTaken is returned at login when the username belongs to a live
	// session.
	ErrNameTaken = errors.New("username already in use")
)
