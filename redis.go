package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/Syn92/Projet-Integrateur-Log2990/server/mocks"
	"github.com/redis/go-redis/v9"
)

// The match queue lets several server pods share one waiting room. Each
// (gameId, mode) key holds at most one parked entry: parking uses SetNX
// and claiming uses GetDel, so two concurrent joins can never both see an
// empty slot. Matched pairs are homed on the claiming pod; deployments
// with more than one pod need sticky routing so both players of a key
// reach the same pod.

// ParkedEntry is one player waiting in the shared match queue.
type ParkedEntry struct {
	Username      string `json:"username"`
	PodID         string `json:"podId"`
	PlaceholderID int    `json:"placeholderId"`
	ParkedAt      int64  `json:"parkedAt"`
}

// MatchAnnouncement is published via Pub/Sub when a pair is matched, so
// every pod can observe matchmaking activity.
type MatchAnnouncement struct {
	GameID    int      `json:"gameId"`
	Mode      GameMode `json:"mode"`
	Waiter    string   `json:"waiter"`
	Joiner    string   `json:"joiner"`
	ArenaID   int      `json:"arenaId"`
	HostPodID string   `json:"hostPodId"`
}

var (
	redisClient  *redis.Client
	redisCtx     = context.Background()
	podID        string
	useMockQueue bool
)

const (
	lobbyKeyPrefix     = "spotit:lobby:"
	matchNotifyChannel = "spotit:match:notify"
	waiterTTL          = 60 * time.Second // parked players auto-expire
)

// InitRedis initializes the Redis/Valkey connection, or switches to the
// in-memory mock when USE_MOCKS is set.
func InitRedis() error {
	useMockQueue = mocks.IsMockMode()

	if useMockQueue {
		log.Println("[REDIS] Running in MOCK MODE - using in-memory match queue")
		podID = mocks.GetMockQueue().GetPodID()
		return nil
	}

	redisAddr := os.Getenv("REDIS_ENDPOINT")
	if redisAddr == "" {
		redisAddr = "localhost:6379" // Default for local dev
	}

	hostname, _ := os.Hostname()
	podID = fmt.Sprintf("%s_%d", hostname, time.Now().UnixNano())

	redisClient = redis.NewClient(&redis.Options{
		Addr:         redisAddr,
		Password:     "",
		DB:           0,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
	})

	if _, err := redisClient.Ping(redisCtx).Result(); err != nil {
		log.Printf("Warning: Redis connection failed: %v. Using in-process lobby.", err)
		return err
	}

	log.Printf("Connected to Redis/Valkey at %s (Pod: %s)", redisAddr, podID)
	return nil
}

func waiterKey(gameID int, mode GameMode) string {
	return fmt.Sprintf("%s%d:%s", lobbyKeyPrefix, gameID, mode)
}

// ParkWaiter stores the entry for its key unless the slot is taken.
// Returns false when another player already waits there.
func ParkWaiter(gameID int, mode GameMode, entry ParkedEntry) (bool, error) {
	if useMockQueue {
		return mocks.GetMockQueue().Park(waiterKey(gameID, mode), mocks.ParkedEntry{
			Username:      entry.Username,
			PodID:         entry.PodID,
			PlaceholderID: entry.PlaceholderID,
			ParkedAt:      entry.ParkedAt,
		}), nil
	}

	if redisClient == nil {
		return false, fmt.Errorf("redis not initialized")
	}

	entryJSON, err := json.Marshal(entry)
	if err != nil {
		return false, err
	}

	parked, err := redisClient.SetNX(redisCtx, waiterKey(gameID, mode), string(entryJSON), waiterTTL).Result()
	if err != nil {
		return false, err
	}
	if parked {
		log.Printf("[REDIS] Parked %s on game %d (%s)", entry.Username, gameID, mode)
	}
	return parked, nil
}

// ClaimWaiter atomically takes the parked entry for the key, leaving the
// slot empty. Returns nil when nobody waits there.
func ClaimWaiter(gameID int, mode GameMode) (*ParkedEntry, error) {
	if useMockQueue {
		mockEntry := mocks.GetMockQueue().Claim(waiterKey(gameID, mode))
		if mockEntry == nil {
			return nil, nil
		}
		return &ParkedEntry{
			Username:      mockEntry.Username,
			PodID:         mockEntry.PodID,
			PlaceholderID: mockEntry.PlaceholderID,
			ParkedAt:      mockEntry.ParkedAt,
		}, nil
	}

	if redisClient == nil {
		return nil, fmt.Errorf("redis not initialized")
	}

	entryJSON, err := redisClient.GetDel(redisCtx, waiterKey(gameID, mode)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var entry ParkedEntry
	if err := json.Unmarshal([]byte(entryJSON), &entry); err != nil {
		return nil, err
	}
	log.Printf("[REDIS] Claimed waiter %s on game %d (%s)", entry.Username, gameID, mode)
	return &entry, nil
}

// CancelWaiter removes the parked entry when it belongs to the user.
// Reports whether something was removed.
func CancelWaiter(gameID int, mode GameMode, username string) (bool, error) {
	if useMockQueue {
		return mocks.GetMockQueue().Cancel(waiterKey(gameID, mode), username), nil
	}

	if redisClient == nil {
		return false, fmt.Errorf("redis not initialized")
	}

	key := waiterKey(gameID, mode)
	entryJSON, err := redisClient.GetDel(redisCtx, key).Result()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	var entry ParkedEntry
	if err := json.Unmarshal([]byte(entryJSON), &entry); err != nil {
		return false, err
	}
	if entry.Username != username {
		// Someone else's entry; put it back. Losing it to a concurrent
		// park here just means that player re-queues.
		redisClient.SetNX(redisCtx, key, entryJSON, waiterTTL)
		return false, nil
	}

	log.Printf("[REDIS] Cancelled wait for %s on game %d (%s)", username, gameID, mode)
	return true, nil
}

// announceMatch publishes a fire-and-forget match notification.
func announceMatch(gameID int, mode GameMode, waiter, joiner string, arenaID int) {
	announcement := MatchAnnouncement{
		GameID:    gameID,
		Mode:      mode,
		Waiter:    waiter,
		Joiner:    joiner,
		ArenaID:   arenaID,
		HostPodID: podID,
	}

	if useMockQueue {
		data, _ := json.Marshal(announcement)
		mocks.GetMockQueue().Publish(string(data))
		return
	}

	if redisClient == nil {
		return
	}

	data, err := json.Marshal(announcement)
	if err != nil {
		return
	}
	if err := redisClient.Publish(redisCtx, matchNotifyChannel, string(data)).Err(); err != nil {
		log.Printf("[REDIS] Failed to publish match announcement: %v", err)
	}
}

// SubscribeMatches invokes the handler for every match announced by any
// pod. Blocks; run it on its own goroutine.
func SubscribeMatches(handler func(MatchAnnouncement)) {
	if useMockQueue {
		ch := mocks.GetMockQueue().Subscribe()
		for msg := range ch {
			var announcement MatchAnnouncement
			if err := json.Unmarshal([]byte(msg), &announcement); err != nil {
				continue
			}
			handler(announcement)
		}
		return
	}

	if redisClient == nil {
		log.Println("Redis not available, skipping match subscription")
		return
	}

	pubsub := redisClient.Subscribe(redisCtx, matchNotifyChannel)
	defer pubsub.Close()

	for msg := range pubsub.Channel() {
		var announcement MatchAnnouncement
		if err := json.Unmarshal([]byte(msg.Payload), &announcement); err != nil {
			log.Printf("[REDIS] Failed to parse match announcement: %v", err)
			continue
		}
		handler(announcement)
	}
}

// IsRedisAvailable returns true if the shared match queue can be used
// (a live Redis connection, or mock mode).
func IsRedisAvailable() bool {
	if useMockQueue {
		return true
	}
	if redisClient == nil {
		return false
	}
	_, err := redisClient.Ping(redisCtx).Result()
	return err == nil
}

// GetPodID returns the unique identifier for this pod.
func GetPodID() string {
	return podID
}
