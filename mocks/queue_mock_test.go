package mocks

import (
	"testing"
	"time"
)

// newTestMockQueue creates a fresh MockQueue instance for testing.
func newTestMockQueue() *MockQueue {
	return newMockQueue("test-pod")
}

func entry(username string) ParkedEntry {
	return ParkedEntry{
		Username:      username,
		PodID:         "test-pod",
		PlaceholderID: 1,
		ParkedAt:      time.Now().Unix(),
	}
}

func TestParkAndClaim(t *testing.T) {
	queue := newTestMockQueue()

	if !queue.Park("lobby:1:simple", entry("frank")) {
		t.Fatal("Park on an empty key should succeed")
	}

	claimed := queue.Claim("lobby:1:simple")
	if claimed == nil {
		t.Fatal("Claim should return the parked entry")
	}
	if claimed.Username != "frank" {
		t.Errorf("Expected frank, got %s", claimed.Username)
	}

	if queue.Claim("lobby:1:simple") != nil {
		t.Error("Second claim should find the slot empty")
	}
}

func TestParkRefusesOccupiedSlot(t *testing.T) {
	queue := newTestMockQueue()

	queue.Park("lobby:1:simple", entry("frank"))
	if queue.Park("lobby:1:simple", entry("franky")) {
		t.Error("Park should refuse a key that already holds a waiter")
	}

	claimed := queue.Claim("lobby:1:simple")
	if claimed == nil || claimed.Username != "frank" {
		t.Errorf("Expected the original waiter frank, got %+v", claimed)
	}
}

func TestKeysAreIndependent(t *testing.T) {
	queue := newTestMockQueue()

	queue.Park("lobby:1:simple", entry("frank"))
	if !queue.Park("lobby:1:free", entry("franky")) {
		t.Error("A different mode should be a different slot")
	}
	if !queue.Park("lobby:2:simple", entry("michel")) {
		t.Error("A different game should be a different slot")
	}
	if queue.WaitingCount() != 3 {
		t.Errorf("Expected 3 waiters, got %d", queue.WaitingCount())
	}
}

func TestCancel(t *testing.T) {
	queue := newTestMockQueue()

	queue.Park("lobby:1:simple", entry("frank"))

	if queue.Cancel("lobby:1:simple", "franky") {
		t.Error("Cancel should refuse another player's entry")
	}
	if !queue.Cancel("lobby:1:simple", "frank") {
		t.Error("Cancel should remove the owner's entry")
	}
	if queue.Cancel("lobby:1:simple", "frank") {
		t.Error("Cancel on an empty slot should report nothing removed")
	}
}

func TestClaimDropsStaleEntry(t *testing.T) {
	queue := newTestMockQueue()

	old := entry("frank")
	old.ParkedAt = time.Now().Add(-2 * WaiterTTL).Unix()
	queue.Park("lobby:1:simple", old)

	if claimed := queue.Claim("lobby:1:simple"); claimed != nil {
		t.Errorf("Expected stale entry to be dropped, got %+v", claimed)
	}
}

func TestStaleWaiterIsReplaced(t *testing.T) {
	queue := newTestMockQueue()

	old := entry("frank")
	old.ParkedAt = time.Now().Add(-2 * WaiterTTL).Unix()
	queue.Park("lobby:1:simple", old)

	if !queue.Park("lobby:1:simple", entry("franky")) {
		t.Error("Park should replace a stale waiter")
	}

	claimed := queue.Claim("lobby:1:simple")
	if claimed == nil || claimed.Username != "franky" {
		t.Errorf("Expected franky, got %+v", claimed)
	}
}

func TestPublishReachesSubscribers(t *testing.T) {
	queue := newTestMockQueue()

	ch := queue.Subscribe()
	queue.Publish(`{"arenaId":1000}`)

	select {
	case msg := <-ch:
		if msg != `{"arenaId":1000}` {
			t.Errorf("Unexpected message: %s", msg)
		}
	case <-time.After(time.Second):
		t.Fatal("Expected a published message")
	}
}
