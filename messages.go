package main

import (
	"encoding/json"
	"log"

	"github.com/Syn92/Projet-Integrateur-Log2990/server/diff"
)

// Message types exchanged over the websocket.
const (
	MsgTypeGameRequest   = "GAME_REQUEST"
	MsgTypeClick         = "CLICK"
	MsgTypeCancelRequest = "CANCEL_REQUEST"

	MsgTypeWaiting     = "WAITING"
	MsgTypeCancelled   = "REQUEST_CANCELLED"
	MsgTypeGameStart   = "GAME_START"
	MsgTypeClickResult = "CLICK_RESULT"
	MsgTypePenalty     = "PENALTY"
	MsgTypeTimerUpdate = "TIMER_UPDATE"
	MsgTypeGameOver    = "GAME_OVER"
	MsgTypeError       = "ERROR"
)

// wireMessage is the inbound envelope; the payload is decoded per type.
type wireMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// outMessage is the outbound envelope.
type outMessage struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload,omitempty"`
}

// encodeMessage marshals an outbound message. Payloads are plain structs,
// so a marshal failure is a programming error; log it and drop the message
// rather than killing the connection.
func encodeMessage(msgType string, payload interface{}) []byte {
	data, err := json.Marshal(outMessage{Type: msgType, Payload: payload})
	if err != nil {
		log.Printf("[WS] ERROR: failed to encode %s message: %v", msgType, err)
		return nil
	}
	return data
}

// GameMode selects which difference ruleset the arena plays.
type GameMode string

const (
	ModeSimple GameMode = "simple"
	ModeFree   GameMode = "free"
)

// GameType selects solo play or a duel.
type GameType string

const (
	TypeSinglePlayer GameType = "singlePlayer"
	TypeMultiPlayer  GameType = "multiPlayer"
)

// GameRequest asks the manager to spawn or join a game. Built through
// NewGameRequest so an instance always carries a valid mode and type.
type GameRequest struct {
	Username string   `json:"username"`
	GameID   int      `json:"gameId"`
	Mode     GameMode `json:"mode"`
	Type     GameType `json:"type"`
}

// NewGameRequest validates the raw request fields.
func NewGameRequest(username string, gameID int, mode GameMode, gameType GameType) (GameRequest, error) {
	if username == "" || gameID < 0 {
		return GameRequest{}, ErrInvalidRequest
	}
	if mode != ModeSimple && mode != ModeFree {
		return GameRequest{}, ErrInvalidRequest
	}
	if gameType != TypeSinglePlayer && gameType != TypeMultiPlayer {
		return GameRequest{}, ErrInvalidRequest
	}
	return GameRequest{Username: username, GameID: gameID, Mode: mode, Type: gameType}, nil
}

// gameRequestPayload is the inbound GAME_REQUEST body; the username comes
// from the authenticated connection, never from the payload.
type gameRequestPayload struct {
	GameID int      `json:"gameId"`
	Mode   GameMode `json:"mode"`
	Type   GameType `json:"type"`
}

// clickPayload is the inbound CLICK body.
type clickPayload struct {
	ArenaID int `json:"arenaId"`
	X       int `json:"x"`
	Y       int `json:"y"`
}

// cancelPayload is the inbound CANCEL_REQUEST body.
type cancelPayload struct {
	GameID int `json:"gameId"`
}

// PlayerInput is a click routed to an arena.
type PlayerInput struct {
	ArenaID  int
	Username string
	Position diff.Position
}

type waitingPayload struct {
	ArenaID int `json:"arenaId"`
}

type gameStartPayload struct {
	ArenaID      int      `json:"arenaId"`
	GameID       int      `json:"gameId"`
	Mode         GameMode `json:"mode"`
	Players      []string `json:"players"`
	ClusterCount int      `json:"clusterCount"`
	TimeLeft     int      `json:"timeLeft"`
}

type clickResultPayload struct {
	Status     string          `json:"status"`
	ClusterKey int             `json:"clusterKey"`
	Pixels     []diff.Position `json:"pixels,omitempty"`
	Remaining  int             `json:"remaining"`
	GameOver   bool            `json:"gameOver"`
	Winner     string          `json:"winner,omitempty"`
	FoundBy    string          `json:"foundBy,omitempty"`
}

type penaltyPayload struct {
	Millis int64 `json:"millis"`
}

type timerPayload struct {
	TimeLeft int `json:"timeLeft"`
}

type gameOverPayload struct {
	Reason string `json:"reason"`
	Winner string `json:"winner,omitempty"`
}

type errorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
