package mocks

import (
	"log"
	"sync"
)

// MockResultFeed mimics the capped Redis list holding recently finished
// races. Entries are stored as the same JSON strings the real feed uses.
type MockResultFeed struct {
	mu      sync.RWMutex
	entries []string
}

var mockFeedInstance *MockResultFeed
var mockFeedOnce sync.Once

// GetMockResultFeed returns the singleton in-memory feed.
func GetMockResultFeed() *MockResultFeed {
	mockFeedOnce.Do(func() {
		mockFeedInstance = &MockResultFeed{entries: make([]string, 0)}
		log.Println("[MOCK] In-memory results feed initialized for local development")
	})
	return mockFeedInstance
}

// Push prepends an entry and trims the feed to cap, mirroring LPUSH + LTRIM.
func (m *MockResultFeed) Push(entry string, cap int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.entries = append([]string{entry}, m.entries...)
	if cap > 0 && len(m.entries) > cap {
		m.entries = m.entries[:cap]
	}
	return nil
}

// Range returns up to limit entries, newest first.
func (m *MockResultFeed) Range(limit int) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if limit <= 0 || limit > len(m.entries) {
		limit = len(m.entries)
	}
	out := make([]string, limit)
	copy(out, m.entries[:limit])
	return out
}

// Len reports the current feed size.
func (m *MockResultFeed) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}
