// Package mocks provides in-memory stand-ins for external services so the
// server can run and be tested without a live Redis, selected with the
// USE_MOCKS environment variable.
package mocks

import (
	"log"
	"sync"
	"time"
)

// WaiterTTL is the time after which a parked player is considered stale.
const WaiterTTL = 60 * time.Second

// ParkedEntry mirrors the match-queue entry stored in Redis.
type ParkedEntry struct {
	Username      string `json:"username"`
	PodID         string `json:"podId"`
	PlaceholderID int    `json:"placeholderId"`
	ParkedAt      int64  `json:"parkedAt"`
}

// MockQueue is an in-memory replacement for the Redis match queue: one
// parked entry per lobby key, plus a Pub/Sub channel for announcements.
type MockQueue struct {
	mu          sync.Mutex
	waiting     map[string]ParkedEntry
	subscribers []chan string
	podID       string
}

var mockQueueInstance *MockQueue
var mockQueueOnce sync.Once

// GetMockQueue returns the singleton mock queue instance.
func GetMockQueue() *MockQueue {
	mockQueueOnce.Do(func() {
		mockQueueInstance = newMockQueue("mock-pod-local")
		log.Println("[MOCK] In-memory match queue initialized for local development")
	})
	return mockQueueInstance
}

func newMockQueue(podID string) *MockQueue {
	return &MockQueue{
		waiting: make(map[string]ParkedEntry),
		podID:   podID,
	}
}

// GetPodID returns the mock pod ID.
func (m *MockQueue) GetPodID() string {
	return m.podID
}

// Park stores the entry unless the key already holds a live waiter.
func (m *MockQueue) Park(key string, entry ParkedEntry) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.waiting[key]; ok && !stale(existing) {
		return false
	}
	m.waiting[key] = entry
	log.Printf("[MOCK] Parked %s on %s", entry.Username, key)
	return true
}

// Claim takes and removes the waiter for the key, nil when empty.
func (m *MockQueue) Claim(key string) *ParkedEntry {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.waiting[key]
	if !ok {
		return nil
	}
	delete(m.waiting, key)
	if stale(entry) {
		log.Printf("[MOCK] Dropped stale waiter %s on %s", entry.Username, key)
		return nil
	}
	return &entry
}

// Cancel removes the entry when it belongs to the user.
func (m *MockQueue) Cancel(key, username string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.waiting[key]
	if !ok || entry.Username != username {
		return false
	}
	delete(m.waiting, key)
	log.Printf("[MOCK] Cancelled wait for %s on %s", username, key)
	return true
}

// WaitingCount returns the number of parked players (for tests).
func (m *MockQueue) WaitingCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.waiting)
}

// Publish sends an announcement to all subscribers.
func (m *MockQueue) Publish(msg string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, sub := range m.subscribers {
		select {
		case sub <- msg:
		default:
			// Channel full, skip
		}
	}
}

// Subscribe returns a channel of published announcements.
func (m *MockQueue) Subscribe() chan string {
	m.mu.Lock()
	defer m.mu.Unlock()

	ch := make(chan string, 16)
	m.subscribers = append(m.subscribers, ch)
	return ch
}

func stale(entry ParkedEntry) bool {
	return time.Now().Unix()-entry.ParkedAt >= int64(WaiterTTL.Seconds())
}
