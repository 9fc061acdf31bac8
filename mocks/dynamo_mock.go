package mocks

import (
	"log"
	"sort"
	"sync"
	"time"
)

// MockRaceDB provides an in-memory mock for the DynamoDB race tables.
type MockRaceDB struct {
	mu      sync.RWMutex
	racers  map[string]Racer
	records []RaceRecord
}

// Racer mirrors db.Racer for the mock store.
type Racer struct {
	UserID  string `json:"userId"`
	Email   string `json:"email"`
	Name    string `json:"name"`
	Picture string `json:"picture"`
	Wins    int    `json:"wins"`
	Races   int    `json:"races"`
}

// RaceRecord mirrors db.RaceRecord for the mock store.
type RaceRecord struct {
	RaceID       string  `json:"raceId"`
	PlayerID     string  `json:"playerId"`
	Timestamp    int64   `json:"timestamp"`
	Won          bool    `json:"won"`
	WinnerID     string  `json:"winnerId"`
	Opponent     string  `json:"opponent"`
	Reason       string  `json:"reason"`
	FinishTimeMs float64 `json:"finishTimeMs"`
	PlayerName   string  `json:"playerName"`
	OpponentName string  `json:"opponentName"`
}

var mockRaceDBInstance *MockRaceDB
var mockRaceDBOnce sync.Once

// GetMockRaceDB returns the singleton mock database.
func GetMockRaceDB() *MockRaceDB {
	mockRaceDBOnce.Do(func() {
		mockRaceDBInstance = &MockRaceDB{
			racers:  make(map[string]Racer),
			records: make([]RaceRecord, 0),
		}
		mockRaceDBInstance.seedData()
		log.Println("[MOCK] In-memory race database initialized for local development")
	})
	return mockRaceDBInstance
}

// seedData adds sample data for local testing.
func (m *MockRaceDB) seedData() {
	sampleRacers := []Racer{
		{UserID: "mock-user-1", Email: "alice@example.com", Name: "Alice Swift", Wins: 14, Races: 20},
		{UserID: "mock-user-2", Email: "bob@example.com", Name: "Bob Vertigo", Wins: 9, Races: 18},
		{UserID: "mock-user-3", Email: "charlie@example.com", Name: "Charlie Updraft", Wins: 3, Races: 11},
	}
	for _, r := range sampleRacers {
		m.racers[r.UserID] = r
	}

	now := time.Now().Unix()
	m.records = append(m.records, RaceRecord{
		RaceID: "mock-race-1", PlayerID: "mock-user-1", Timestamp: now - 3600,
		Won: true, WinnerID: "mock-user-1", Opponent: "mock-user-2",
		Reason: "reached_top", FinishTimeMs: 41250,
		PlayerName: "Alice Swift", OpponentName: "Bob Vertigo",
	})
}

// SaveRacer creates or updates a racer profile without touching stats.
func (m *MockRaceDB) SaveRacer(racer Racer) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.racers[racer.UserID]; ok {
		existing.Name = racer.Name
		existing.Picture = racer.Picture
		existing.Email = racer.Email
		m.racers[racer.UserID] = existing
		return nil
	}
	m.racers[racer.UserID] = racer
	return nil
}

// GetRacer looks a racer up by user id; nil when unknown.
func (m *MockRaceDB) GetRacer(userID string) (*Racer, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	r, ok := m.racers[userID]
	if !ok {
		return nil, nil
	}
	return &r, nil
}

// UpdateRacerStats bumps the race counter and, on a win, the win counter.
func (m *MockRaceDB) UpdateRacerStats(userID string, won bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	r := m.racers[userID]
	r.UserID = userID
	r.Races++
	if won {
		r.Wins++
	}
	m.racers[userID] = r
	return nil
}

// SaveResult appends a per-player race record.
func (m *MockRaceDB) SaveResult(rec RaceRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.records = append(m.records, rec)
	return nil
}

// GetLeaderboard returns the top racers by wins, descending.
func (m *MockRaceDB) GetLeaderboard(limit int) ([]Racer, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	racers := make([]Racer, 0, len(m.racers))
	for _, r := range m.racers {
		racers = append(racers, r)
	}
	sort.Slice(racers, func(i, j int) bool {
		return racers[i].Wins > racers[j].Wins
	})
	if limit > 0 && len(racers) > limit {
		racers = racers[:limit]
	}
	return racers, nil
}

// GetRaceHistory returns a racer's records, newest first.
func (m *MockRaceDB) GetRaceHistory(userID string, limit int) ([]RaceRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	history := make([]RaceRecord, 0)
	for _, rec := range m.records {
		if rec.PlayerID == userID {
			history = append(history, rec)
		}
	}
	sort.Slice(history, func(i, j int) bool {
		return history[i].Timestamp > history[j].Timestamp
	})
	if limit > 0 && len(history) > limit {
		history = history[:limit]
	}
	return history, nil
}
