package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/Syn92/Projet-Integrateur-Log2990/server/diff"
)

const (
	defaultGameDuration    = 120 // seconds
	defaultPenaltyCooldown = time.Second
	defaultAssetBaseURL    = "http://localhost:8081/asset/image"

	arenaBuildTimeout = 15 * time.Second
	firstArenaID      = 1000
)

// OutcomeStatus tags the result of a game request.
type OutcomeStatus int

const (
	OutcomeSuccess OutcomeStatus = iota
	OutcomeWaiting
)

// RequestOutcome is what AnalyseRequest reports back: a live arena id, or
// a placeholder id the caller listens on while waiting for an opponent.
type RequestOutcome struct {
	Status  OutcomeStatus
	ArenaID int
}

// pendingPark remembers where a user is parked in the Redis match queue so
// cancel and disconnect can find the entry without scanning keys.
type pendingPark struct {
	gameID int
	mode   GameMode
}

// GameManager owns every shared registry: live connections by username,
// active arenas by id, and the lobby. All registry mutation goes through
// its mutex, so two concurrent joins can never both grab an empty slot.
type GameManager struct {
	register   chan *Client
	unregister chan *Client

	mu      sync.Mutex
	users   map[string]*Client
	arenas  map[int]*Arena
	lobby   *Lobby
	pending map[string]pendingPark
	nextID  int

	loader          BitmapLoader
	assetBaseURL    string
	gameDuration    int
	penaltyCooldown time.Duration
}

// NewGameManager builds a manager with its registries empty. Tunables come
// from the environment with sane defaults.
func NewGameManager(loader BitmapLoader) *GameManager {
	return &GameManager{
		register:        make(chan *Client),
		unregister:      make(chan *Client),
		users:           make(map[string]*Client),
		arenas:          make(map[int]*Arena),
		lobby:           NewLobby(),
		pending:         make(map[string]pendingPark),
		nextID:          firstArenaID,
		loader:          loader,
		assetBaseURL:    envString("ASSET_BASE_URL", defaultAssetBaseURL),
		gameDuration:    envInt("GAME_DURATION_SECONDS", defaultGameDuration),
		penaltyCooldown: time.Duration(envInt("PENALTY_COOLDOWN_MS", int(defaultPenaltyCooldown/time.Millisecond))) * time.Millisecond,
	}
}

// Run processes connect and disconnect events from the websocket pumps.
func (m *GameManager) Run() {
	for {
		select {
		case client := <-m.register:
			m.SubscribeConnection(client.username, client)
		case client := <-m.unregister:
			m.UnsubscribeConnection(client.id, client.username)
			client.closeSend()
		}
	}
}

// SubscribeConnection registers a live connection for a username. A newer
// handle supersedes any previous one (reconnects win).
func (m *GameManager) SubscribeConnection(username string, client *Client) {
	m.mu.Lock()
	old, hadOld := m.users[username]
	m.users[username] = client
	m.mu.Unlock()

	if hadOld && old != client {
		old.closeSend()
		log.Printf("[GM] Connection for %s superseded", username)
	}
	log.Printf("[GM] %s connected (handle %s)", username, client.id)
}

// IsNameAvailable reports whether a username is free among live sessions.
func (m *GameManager) IsNameAvailable(username string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, taken := m.users[username]
	return !taken
}

// deliver queues a message on the connection currently registered for the
// username. Reports false when the user has no live session. Releases the
// registry lock before sending; arenas call this while holding their own
// mutex, so nothing here may call back into an arena.
func (m *GameManager) deliver(username string, msg []byte) bool {
	if msg == nil {
		return false
	}
	m.mu.Lock()
	client, ok := m.users[username]
	m.mu.Unlock()
	if !ok {
		return false
	}
	client.trySend(msg)
	return true
}

// UnsubscribeConnection removes a connection, drops any lobby wait and
// forwards the disconnect to the user's arena. A stale handle (already
// superseded by a reconnect) is ignored.
func (m *GameManager) UnsubscribeConnection(handleID, username string) {
	m.mu.Lock()
	current, ok := m.users[username]
	if !ok || current.id != handleID {
		m.mu.Unlock()
		return
	}
	delete(m.users, username)

	park, parked := m.pending[username]
	delete(m.pending, username)

	// Snapshot the arenas before touching their locks: arena sends go back
	// through deliver, which needs the registry lock.
	arenas := make([]*Arena, 0, len(m.arenas))
	for _, a := range m.arenas {
		arenas = append(arenas, a)
	}
	m.mu.Unlock()

	m.lobby.CancelUser(username)
	if parked && IsRedisAvailable() {
		if _, err := CancelWaiter(park.gameID, park.mode, username); err != nil {
			log.Printf("[GM] Failed to drop %s from match queue: %v", username, err)
		}
	}
	for _, a := range arenas {
		if a.HasPlayer(username) {
			a.RemovePlayer(username)
			break
		}
	}
	log.Printf("[GM] %s disconnected", username)
}

// AnalyseRequest validates a game request and either spawns an arena
// (single player), or routes the caller through matchmaking (duel).
func (m *GameManager) AnalyseRequest(req GameRequest) (RequestOutcome, error) {
	m.mu.Lock()
	requester, known := m.users[req.Username]
	m.mu.Unlock()

	if !known {
		return RequestOutcome{}, fmt.Errorf("unknown username %q: %w", req.Username, ErrInvalidRequest)
	}

	switch req.Type {
	case TypeSinglePlayer:
		arena, err := m.createArena(req.GameID, req.Mode, requester)
		if err != nil {
			return RequestOutcome{}, err
		}
		return RequestOutcome{Status: OutcomeSuccess, ArenaID: arena.ID()}, nil
	case TypeMultiPlayer:
		return m.joinMultiplayer(req, requester)
	}
	return RequestOutcome{}, fmt.Errorf("unsupported game type %q: %w", req.Type, ErrInvalidRequest)
}

// createArena loads the bitmap pair, derives the cluster ground truth and
// registers a started arena. The arena only becomes discoverable after the
// clusters exist, so a click can never race the asset load.
func (m *GameManager) createArena(gameID int, mode GameMode, players ...*Client) (*Arena, error) {
	ctx, cancel := context.WithTimeout(context.Background(), arenaBuildTimeout)
	defer cancel()

	original, err := m.loader.Load(ctx, originalAssetURL(m.assetBaseURL, gameID))
	if err != nil {
		return nil, fmt.Errorf("game %d: %w", gameID, err)
	}
	modified, err := m.loader.Load(ctx, modifiedAssetURL(m.assetBaseURL, gameID))
	if err != nil {
		return nil, fmt.Errorf("game %d: %w", gameID, err)
	}

	mask, err := diff.BuildDiffMask(original.Pixels, modified.Pixels)
	if err != nil {
		return nil, fmt.Errorf("game %d: %w", gameID, err)
	}
	counter, err := diff.NewCounter(mask, original.Width)
	if err != nil {
		return nil, fmt.Errorf("game %d: %w", gameID, err)
	}
	clusters := counter.FindClusters()
	if len(clusters) == 0 {
		return nil, fmt.Errorf("game %d has no differences: %w", gameID, ErrInvalidRequest)
	}

	m.mu.Lock()
	id := m.nextID
	m.nextID++
	arena := NewArena(id, gameID, mode, players, clusters, original.Width,
		m.gameDuration, m.penaltyCooldown, m)
	m.arenas[id] = arena
	m.mu.Unlock()

	if err := arena.Start(); err != nil {
		return nil, err
	}
	m.notifyGameStart(arena)
	return arena, nil
}

// joinMultiplayer pairs the caller with a waiting opponent, going through
// the shared match queue when Redis is up and the in-process lobby
// otherwise.
func (m *GameManager) joinMultiplayer(req GameRequest, requester *Client) (RequestOutcome, error) {
	if IsRedisAvailable() {
		return m.joinViaQueue(req, requester)
	}

	outcome := m.lobby.Join(req.GameID, req.Mode, req.Username, m.allocateID())
	if !outcome.Matched {
		return RequestOutcome{Status: OutcomeWaiting, ArenaID: outcome.PlaceholderID}, nil
	}

	m.mu.Lock()
	waiter, ok := m.users[outcome.Waiter]
	m.mu.Unlock()
	if !ok {
		// Waiter vanished between parking and matching; park the caller.
		parked := m.lobby.Join(req.GameID, req.Mode, req.Username, m.allocateID())
		return RequestOutcome{Status: OutcomeWaiting, ArenaID: parked.PlaceholderID}, nil
	}

	arena, err := m.createArena(req.GameID, req.Mode, waiter, requester)
	if err != nil {
		waiter.trySend(encodeMessage(MsgTypeError, errorPayload{Code: "retry", Message: "match setup failed"}))
		return RequestOutcome{}, err
	}
	return RequestOutcome{Status: OutcomeSuccess, ArenaID: arena.ID()}, nil
}

// joinViaQueue is the Redis-backed path: claim the parked waiter for the
// key or park the caller. Entries whose player is not connected to this
// pod are stale (see DESIGN notes on multi-instance pairing) and dropped.
func (m *GameManager) joinViaQueue(req GameRequest, requester *Client) (RequestOutcome, error) {
	for attempt := 0; attempt < 2; attempt++ {
		entry, err := ClaimWaiter(req.GameID, req.Mode)
		if err != nil {
			log.Printf("[GM] Match queue unavailable (%v), using in-process lobby", err)
			return m.joinInProcess(req, requester)
		}

		if entry != nil && entry.Username == req.Username {
			// Re-join by the same player keeps the original slot.
			if ok, _ := ParkWaiter(req.GameID, req.Mode, *entry); ok {
				return RequestOutcome{Status: OutcomeWaiting, ArenaID: entry.PlaceholderID}, nil
			}
			continue
		}

		if entry != nil {
			m.mu.Lock()
			waiter, ok := m.users[entry.Username]
			delete(m.pending, entry.Username)
			m.mu.Unlock()
			if !ok {
				log.Printf("[GM] Dropping stale queue entry for %s (game %d)", entry.Username, req.GameID)
				continue
			}

			arena, err := m.createArena(req.GameID, req.Mode, waiter, requester)
			if err != nil {
				waiter.trySend(encodeMessage(MsgTypeError, errorPayload{Code: "retry", Message: "match setup failed"}))
				return RequestOutcome{}, err
			}
			announceMatch(req.GameID, req.Mode, entry.Username, req.Username, arena.ID())
			return RequestOutcome{Status: OutcomeSuccess, ArenaID: arena.ID()}, nil
		}

		placeholder := m.allocateID()
		parked, err := ParkWaiter(req.GameID, req.Mode, ParkedEntry{
			Username:      req.Username,
			PodID:         GetPodID(),
			PlaceholderID: placeholder,
			ParkedAt:      time.Now().Unix(),
		})
		if err != nil {
			log.Printf("[GM] Match queue unavailable (%v), using in-process lobby", err)
			return m.joinInProcess(req, requester)
		}
		if parked {
			m.mu.Lock()
			m.pending[req.Username] = pendingPark{gameID: req.GameID, mode: req.Mode}
			m.mu.Unlock()
			return RequestOutcome{Status: OutcomeWaiting, ArenaID: placeholder}, nil
		}
		// Lost the slot to a concurrent park; claim it on the next pass.
	}
	return RequestOutcome{}, fmt.Errorf("matchmaking for game %d: %w", req.GameID, ErrConflict)
}

// joinInProcess is the fallback used when the shared queue errors mid-join.
func (m *GameManager) joinInProcess(req GameRequest, requester *Client) (RequestOutcome, error) {
	outcome := m.lobby.Join(req.GameID, req.Mode, req.Username, m.allocateID())
	if !outcome.Matched {
		return RequestOutcome{Status: OutcomeWaiting, ArenaID: outcome.PlaceholderID}, nil
	}

	m.mu.Lock()
	waiter, ok := m.users[outcome.Waiter]
	m.mu.Unlock()
	if !ok {
		parked := m.lobby.Join(req.GameID, req.Mode, req.Username, m.allocateID())
		return RequestOutcome{Status: OutcomeWaiting, ArenaID: parked.PlaceholderID}, nil
	}

	arena, err := m.createArena(req.GameID, req.Mode, waiter, requester)
	if err != nil {
		return RequestOutcome{}, err
	}
	return RequestOutcome{Status: OutcomeSuccess, ArenaID: arena.ID()}, nil
}

// OnPlayerInput routes a click to its arena. An unknown or already-deleted
// arena reports ErrArenaNotFound so the client can tell stale state from a
// wrong guess.
func (m *GameManager) OnPlayerInput(input PlayerInput) (ClickResult, error) {
	m.mu.Lock()
	arena, ok := m.arenas[input.ArenaID]
	m.mu.Unlock()

	if !ok {
		return ClickResult{}, fmt.Errorf("arena %d: %w", input.ArenaID, ErrArenaNotFound)
	}
	return arena.SubmitInput(input.Username, input.Position)
}

// DeleteArena removes an arena from the registry; subsequent input reports
// ErrArenaNotFound. A still-running arena is shut down first.
func (m *GameManager) DeleteArena(arenaID int) {
	m.mu.Lock()
	arena, ok := m.arenas[arenaID]
	delete(m.arenas, arenaID)
	m.mu.Unlock()

	if ok {
		arena.Shutdown()
		log.Printf("[GM] Arena %d deleted", arenaID)
	}
}

// CancelRequest withdraws a pending multiplayer wait.
func (m *GameManager) CancelRequest(gameID int, username string) error {
	m.mu.Lock()
	park, parked := m.pending[username]
	if parked && park.gameID == gameID {
		delete(m.pending, username)
	}
	m.mu.Unlock()

	if parked && park.gameID == gameID && IsRedisAvailable() {
		removed, err := CancelWaiter(park.gameID, park.mode, username)
		if err == nil && removed {
			return nil
		}
		if err != nil {
			log.Printf("[GM] Match queue cancel failed for %s: %v", username, err)
		}
	}
	return m.lobby.Cancel(gameID, username)
}

// ArenaFor returns the registered arena, if any. Used by tests and the
// status endpoint.
func (m *GameManager) ArenaFor(arenaID int) (*Arena, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	arena, ok := m.arenas[arenaID]
	return arena, ok
}

func (m *GameManager) allocateID() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.nextID
	m.nextID++
	return id
}

// notifyGameStart tells every player in the arena that the match is live.
func (m *GameManager) notifyGameStart(arena *Arena) {
	players := arena.PlayerNames()
	msg := encodeMessage(MsgTypeGameStart, gameStartPayload{
		ArenaID:      arena.ID(),
		GameID:       arena.gameID,
		Mode:         arena.mode,
		Players:      players,
		ClusterCount: arena.ClusterCount(),
		TimeLeft:     arena.TimeLeft(),
	})

	for _, name := range players {
		m.deliver(name, msg)
	}
}

// HandleMatchAnnouncement reacts to a match published on the shared queue.
// When another pod claimed a waiter parked by this one, the local client is
// told its match started; matches made locally already got their start
// message.
func (m *GameManager) HandleMatchAnnouncement(a MatchAnnouncement) {
	log.Printf("[GM] Match announced: game %d (%s), %s vs %s -> arena %d on %s",
		a.GameID, a.Mode, a.Waiter, a.Joiner, a.ArenaID, a.HostPodID)
	if a.HostPodID == GetPodID() {
		return
	}

	m.mu.Lock()
	client, ok := m.users[a.Waiter]
	if ok {
		delete(m.pending, a.Waiter)
	}
	m.mu.Unlock()
	if !ok {
		return
	}

	client.trySend(encodeMessage(MsgTypeGameStart, gameStartPayload{
		ArenaID: a.ArenaID,
		GameID:  a.GameID,
		Mode:    a.Mode,
		Players: []string{a.Waiter, a.Joiner},
	}))
}

// handleMessage dispatches one inbound websocket message.
func (m *GameManager) handleMessage(client *Client, raw []byte) {
	var msg wireMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		log.Printf("[GM] Invalid message from %s: %v", client.username, err)
		client.trySend(encodeMessage(MsgTypeError, errorPayload{Code: "retry", Message: "malformed message"}))
		return
	}

	switch msg.Type {
	case MsgTypeGameRequest:
		m.handleGameRequest(client, msg.Payload)
	case MsgTypeClick:
		m.handleClick(client, msg.Payload)
	case MsgTypeCancelRequest:
		m.handleCancel(client, msg.Payload)
	default:
		log.Printf("[GM] Unknown message type %q from %s", msg.Type, client.username)
	}
}

func (m *GameManager) handleGameRequest(client *Client, payload json.RawMessage) {
	var p gameRequestPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		client.trySend(encodeMessage(MsgTypeError, errorPayload{Code: "invalid_request", Message: "malformed game request"}))
		return
	}

	req, err := NewGameRequest(client.username, p.GameID, p.Mode, p.Type)
	if err != nil {
		client.trySend(encodeMessage(MsgTypeError, errorPayload{Code: errorCode(err), Message: err.Error()}))
		return
	}

	outcome, err := m.AnalyseRequest(req)
	if err != nil {
		client.trySend(encodeMessage(MsgTypeError, errorPayload{Code: errorCode(err), Message: err.Error()}))
		return
	}
	if outcome.Status == OutcomeWaiting {
		client.trySend(encodeMessage(MsgTypeWaiting, waitingPayload{ArenaID: outcome.ArenaID}))
	}
	// On success the GAME_START broadcast already reached the caller.
}

func (m *GameManager) handleClick(client *Client, payload json.RawMessage) {
	var p clickPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		client.trySend(encodeMessage(MsgTypeError, errorPayload{Code: "invalid_request", Message: "malformed click"}))
		return
	}

	result, err := m.OnPlayerInput(PlayerInput{
		ArenaID:  p.ArenaID,
		Username: client.username,
		Position: diff.Position{X: p.X, Y: p.Y},
	})
	if err != nil {
		client.trySend(encodeMessage(MsgTypeError, errorPayload{Code: errorCode(err), Message: err.Error()}))
		return
	}

	client.trySend(encodeMessage(MsgTypeClickResult, clickResultPayload{
		Status:     result.Status.String(),
		ClusterKey: result.ClusterKey,
		Pixels:     result.Pixels,
		Remaining:  result.Remaining,
		GameOver:   result.GameOver,
		Winner:     result.Winner,
	}))
	if result.Status == ClickMiss {
		client.trySend(encodeMessage(MsgTypePenalty, penaltyPayload{Millis: result.PenaltyMillis}))
	}
}

func (m *GameManager) handleCancel(client *Client, payload json.RawMessage) {
	var p cancelPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		client.trySend(encodeMessage(MsgTypeError, errorPayload{Code: "invalid_request", Message: "malformed cancel"}))
		return
	}

	if err := m.CancelRequest(p.GameID, client.username); err != nil {
		client.trySend(encodeMessage(MsgTypeError, errorPayload{Code: errorCode(err), Message: err.Error()}))
		return
	}
	client.trySend(encodeMessage(MsgTypeCancelled, cancelPayload{GameID: p.GameID}))
}

// errorCode maps the error taxonomy to the wire. Anything unexpected
// resolves to the generic retry signal.
func errorCode(err error) string {
	switch {
	case errors.Is(err, ErrArenaNotFound), errors.Is(err, ErrArenaClosed):
		return "arena_not_found"
	case errors.Is(err, ErrInvalidRequest), errors.Is(err, diff.ErrInvalidDimensions),
		errors.Is(err, diff.ErrDimensionMismatch):
		return "invalid_request"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrConflict), errors.Is(err, ErrAlreadyStarted), errors.Is(err, ErrArenaNotStarted):
		return "conflict"
	default:
		return "retry"
	}
}
