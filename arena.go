package main

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/Syn92/Projet-Integrateur-Log2990/server/diff"
)

// arenaState tracks the match lifecycle. Completed and Abandoned are
// terminal: once reached, every further input is rejected.
type arenaState int

const (
	StateAwaitingStart arenaState = iota
	StateActive
	StateCompleted
	StateAbandoned
)

func (s arenaState) String() string {
	switch s {
	case StateAwaitingStart:
		return "awaiting_start"
	case StateActive:
		return "active"
	case StateCompleted:
		return "completed"
	case StateAbandoned:
		return "abandoned"
	}
	return "unknown"
}

// ClickStatus is the closed set of click outcomes.
type ClickStatus int

const (
	ClickHit ClickStatus = iota
	ClickMiss
	ClickPenalized
)

func (s ClickStatus) String() string {
	switch s {
	case ClickHit:
		return "hit"
	case ClickMiss:
		return "miss"
	case ClickPenalized:
		return "penalized"
	}
	return "unknown"
}

// ClickResult is what a validated click reports back to the player.
type ClickResult struct {
	Status        ClickStatus
	ClusterKey    int
	Pixels        []diff.Position
	Remaining     int
	GameOver      bool
	Winner        string
	PenaltyMillis int64
}

// Game-over reasons sent to clients.
const (
	ReasonAllFound     = "all_found"
	ReasonTimeout      = "timeout"
	ReasonDisconnected = "opponent_disconnected"
	ReasonShutdown     = "shutdown"
)

// Arena is one live match: its players, the cluster ground truth, the
// countdown and the per-player penalty flags. All state is guarded by mu
// and only ever mutated by input events and the arena's own ticks.
type Arena struct {
	id      int
	gameID  int
	mode    GameMode
	manager *GameManager

	mu       sync.Mutex
	state    arenaState
	players  []*Client
	duel     bool
	clusters map[int]diff.Cluster
	found    map[int]bool
	index    map[int]int // y*width+x -> cluster key, built once
	width    int

	timeLeft        int
	penaltyUntil    map[string]time.Time
	penaltyCooldown time.Duration
	closeCh         chan struct{}
	stopped         bool
}

// NewArena builds an arena in AwaitingStart with a pixel->cluster index so
// click validation never rescans the cluster list.
func NewArena(id, gameID int, mode GameMode, players []*Client, clusters []diff.Cluster,
	width, duration int, penaltyCooldown time.Duration, manager *GameManager) *Arena {

	a := &Arena{
		id:              id,
		gameID:          gameID,
		mode:            mode,
		manager:         manager,
		state:           StateAwaitingStart,
		players:         append([]*Client(nil), players...),
		duel:            len(players) > 1,
		clusters:        make(map[int]diff.Cluster, len(clusters)),
		found:           make(map[int]bool),
		index:           make(map[int]int),
		width:           width,
		timeLeft:        duration,
		penaltyUntil:    make(map[string]time.Time),
		penaltyCooldown: penaltyCooldown,
		closeCh:         make(chan struct{}),
	}

	for _, cluster := range clusters {
		a.clusters[cluster.Key] = cluster
		for _, p := range cluster.Pixels {
			a.index[p.Y*width+p.X] = cluster.Key
		}
	}
	return a
}

// ID returns the arena id.
func (a *Arena) ID() int { return a.id }

// State returns the current lifecycle state.
func (a *Arena) State() arenaState {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// TimeLeft returns the remaining countdown in seconds.
func (a *Arena) TimeLeft() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.timeLeft
}

// ClusterCount returns the number of differences in this arena.
func (a *Arena) ClusterCount() int {
	return len(a.clusters)
}

// PlayerNames returns the usernames in join order.
func (a *Arena) PlayerNames() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	names := make([]string, len(a.players))
	for i, p := range a.players {
		names[i] = p.username
	}
	return names
}

// HasPlayer reports whether the username plays in this arena.
func (a *Arena) HasPlayer(username string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.isPlayerLocked(username)
}

func (a *Arena) isPlayerLocked(username string) bool {
	for _, p := range a.players {
		if p.username == username {
			return true
		}
	}
	return false
}

// Start activates the arena and launches the countdown. Calling it twice
// returns ErrAlreadyStarted and never restarts the timer.
func (a *Arena) Start() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.state != StateAwaitingStart {
		return ErrAlreadyStarted
	}
	a.state = StateActive
	go a.run()
	log.Printf("[ARENA] Arena %d active: game %d, %d clusters, %d players", a.id, a.gameID, len(a.clusters), len(a.players))
	return nil
}

// run drives the countdown. The close channel stops it deterministically;
// a tick that raced the close is discarded inside tick by the state check.
func (a *Arena) run() {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-a.closeCh:
			return
		case <-ticker.C:
			a.tick()
		}
	}
}

// tick decrements the countdown and finishes the match on expiry.
func (a *Arena) tick() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.state != StateActive {
		return // stale tick after completion
	}

	a.timeLeft--
	if a.timeLeft <= 0 {
		a.timeLeft = 0
		a.finishLocked(ReasonTimeout, "")
		return
	}
	a.broadcastLocked(encodeMessage(MsgTypeTimerUpdate, timerPayload{TimeLeft: a.timeLeft}))
}

// SubmitInput validates one click. Input from anyone but the arena's own
// players is rejected outright. A hit marks the cluster found exactly
// once; a miss (including a click on an already-found cluster) puts the
// player on penalty; input while on penalty is rejected without stacking a
// fresh cooldown.
func (a *Arena) SubmitInput(username string, pos diff.Position) (ClickResult, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	switch a.state {
	case StateCompleted, StateAbandoned:
		return ClickResult{}, ErrArenaClosed
	case StateAwaitingStart:
		return ClickResult{}, ErrArenaNotStarted
	}

	if !a.isPlayerLocked(username) {
		return ClickResult{}, fmt.Errorf("%s does not play in arena %d: %w", username, a.id, ErrInvalidRequest)
	}

	now := time.Now()
	if until, ok := a.penaltyUntil[username]; ok {
		if now.Before(until) {
			return ClickResult{Status: ClickPenalized, ClusterKey: -1}, nil
		}
		delete(a.penaltyUntil, username)
	}

	key, ok := a.clusterAt(pos)
	if !ok || a.found[key] {
		a.penaltyUntil[username] = now.Add(a.penaltyCooldown)
		return ClickResult{
			Status:        ClickMiss,
			ClusterKey:    -1,
			PenaltyMillis: a.penaltyCooldown.Milliseconds(),
		}, nil
	}

	a.found[key] = true
	remaining := len(a.clusters) - len(a.found)
	result := ClickResult{
		Status:     ClickHit,
		ClusterKey: key,
		Pixels:     a.clusters[key].Pixels,
		Remaining:  remaining,
	}

	a.notifyOthersLocked(username, result)

	if remaining == 0 {
		result.GameOver = true
		result.Winner = username
		a.finishLocked(ReasonAllFound, username)
	}
	return result, nil
}

// clusterAt resolves a click position to a cluster key in O(1).
func (a *Arena) clusterAt(pos diff.Position) (int, bool) {
	if pos.X < 0 || pos.X >= a.width || pos.Y < 0 {
		return 0, false
	}
	key, ok := a.index[pos.Y*a.width+pos.X]
	return key, ok
}

// RemovePlayer handles a disconnect. The sole player leaving abandons the
// arena; in a duel the remaining player is declared winner. Removing a
// player from an already-closed arena is a no-op so teardown never fails.
func (a *Arena) RemovePlayer(username string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.state == StateCompleted || a.state == StateAbandoned {
		return
	}

	kept := a.players[:0]
	for _, p := range a.players {
		if p.username != username {
			kept = append(kept, p)
		}
	}
	a.players = kept

	if len(a.players) == 0 {
		a.state = StateAbandoned
		a.stopLocked()
		log.Printf("[ARENA] Arena %d abandoned: last player %s left", a.id, username)
		a.scheduleDeleteLocked()
		return
	}

	if a.duel {
		a.finishLocked(ReasonDisconnected, a.players[0].username)
	}
}

// Shutdown force-closes a still-running arena during explicit teardown.
func (a *Arena) Shutdown() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.state == StateCompleted || a.state == StateAbandoned {
		return
	}
	a.state = StateAbandoned
	a.stopLocked()
	a.broadcastLocked(encodeMessage(MsgTypeGameOver, gameOverPayload{Reason: ReasonShutdown}))
	log.Printf("[ARENA] Arena %d shut down", a.id)
}

// finishLocked completes the match exactly once: terminal state, timer
// stopped, players told, registry cleanup scheduled. Callers hold mu.
func (a *Arena) finishLocked(reason, winner string) {
	a.state = StateCompleted
	a.stopLocked()
	a.broadcastLocked(encodeMessage(MsgTypeGameOver, gameOverPayload{Reason: reason, Winner: winner}))
	log.Printf("[ARENA] Arena %d completed (%s), winner=%q", a.id, reason, winner)
	a.scheduleDeleteLocked()
}

// stopLocked makes sure the countdown goroutine exits and never comes back.
func (a *Arena) stopLocked() {
	if !a.stopped {
		a.stopped = true
		close(a.closeCh)
	}
}

// scheduleDeleteLocked removes the arena from the manager registry outside
// the arena lock.
func (a *Arena) scheduleDeleteLocked() {
	if a.manager != nil {
		go a.manager.DeleteArena(a.id)
	}
}

// notifyOthersLocked repaints a found difference on every other player's
// screen. Sends are non-blocking so a stuck client cannot stall the arena.
func (a *Arena) notifyOthersLocked(finder string, result ClickResult) {
	msg := encodeMessage(MsgTypeClickResult, clickResultPayload{
		Status:     result.Status.String(),
		ClusterKey: result.ClusterKey,
		Pixels:     result.Pixels,
		Remaining:  result.Remaining,
		FoundBy:    finder,
	})
	for _, p := range a.players {
		if p.username == finder {
			continue
		}
		a.sendLocked(p, msg)
	}
}

func (a *Arena) broadcastLocked(msg []byte) {
	if msg == nil {
		return
	}
	for _, p := range a.players {
		a.sendLocked(p, msg)
	}
}

// sendLocked resolves the player's current connection through the manager
// registry, so a reconnect that superseded the handle the arena was built
// with still receives broadcasts. The stored handle is the fallback.
func (a *Arena) sendLocked(p *Client, msg []byte) {
	if a.manager != nil && a.manager.deliver(p.username, msg) {
		return
	}
	p.trySend(msg)
}
