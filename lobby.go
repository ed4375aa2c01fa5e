package main

import (
	"log"
	"sync"
)

// lobbyKey identifies one waiting slot: players only match when they ask
// for the same game in the same mode.
type lobbyKey struct {
	gameID int
	mode   GameMode
}

// lobbyEntry is a parked multiplayer request. The placeholder id lets the
// waiting client listen for the match before a real arena exists.
type lobbyEntry struct {
	username      string
	placeholderID int
}

// Lobby pairs multiplayer requests in-process. A key holds at most one
// waiter; the second join for the key always drains it, so two concurrent
// joins can never both observe an empty slot.
type Lobby struct {
	mu      sync.Mutex
	waiting map[lobbyKey]lobbyEntry
}

// NewLobby returns an empty lobby.
func NewLobby() *Lobby {
	return &Lobby{waiting: make(map[lobbyKey]lobbyEntry)}
}

// JoinOutcome reports whether a join parked the caller or matched it with
// the waiter already parked on the key.
type JoinOutcome struct {
	Matched       bool
	Waiter        string // username of the parked player, when matched
	PlaceholderID int    // id the parked caller listens on, when waiting
}

// Join parks the caller or drains the key. Re-joining a key the caller
// already waits on returns the original placeholder instead of matching a
// player against themselves.
func (l *Lobby) Join(gameID int, mode GameMode, username string, placeholderID int) JoinOutcome {
	l.mu.Lock()
	defer l.mu.Unlock()

	key := lobbyKey{gameID: gameID, mode: mode}
	if entry, ok := l.waiting[key]; ok {
		if entry.username == username {
			return JoinOutcome{PlaceholderID: entry.placeholderID}
		}
		delete(l.waiting, key)
		log.Printf("[LOBBY] Matched %s with %s on game %d (%s)", username, entry.username, gameID, mode)
		return JoinOutcome{Matched: true, Waiter: entry.username}
	}

	l.waiting[key] = lobbyEntry{username: username, placeholderID: placeholderID}
	log.Printf("[LOBBY] %s waiting on game %d (%s)", username, gameID, mode)
	return JoinOutcome{PlaceholderID: placeholderID}
}

// Cancel removes the caller's parked entry for a game, whatever the mode.
// Cancelling when nothing is parked reports ErrNotFound.
func (l *Lobby) Cancel(gameID int, username string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, mode := range []GameMode{ModeSimple, ModeFree} {
		key := lobbyKey{gameID: gameID, mode: mode}
		if entry, ok := l.waiting[key]; ok && entry.username == username {
			delete(l.waiting, key)
			log.Printf("[LOBBY] %s cancelled wait on game %d (%s)", username, gameID, mode)
			return nil
		}
	}
	return ErrNotFound
}

// CancelUser drops every entry parked by a user, used on disconnect.
func (l *Lobby) CancelUser(username string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for key, entry := range l.waiting {
		if entry.username == username {
			delete(l.waiting, key)
			log.Printf("[LOBBY] Dropped %s from game %d (%s) on disconnect", username, key.gameID, key.mode)
		}
	}
}
