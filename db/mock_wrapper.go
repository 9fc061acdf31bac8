package db

import (
	"log"

	"github.com/skyrace-game/backend/mocks"
)

// useMocks indicates whether to use the in-memory database instead of AWS.
var useMocks bool

// InitWithMocks initializes the persistence layer, honoring USE_MOCKS.
func InitWithMocks() {
	useMocks = mocks.IsMockMode()

	if useMocks {
		log.Println("[DB] Running in MOCK MODE - using in-memory database")
		mocks.GetMockRaceDB()
	} else {
		Init()
	}
}

// SaveRacerWithMock saves a racer profile (mock or real).
func SaveRacerWithMock(racer Racer) error {
	if useMocks {
		return mocks.GetMockRaceDB().SaveRacer(mocks.Racer{
			UserID:  racer.UserID,
			Email:   racer.Email,
			Name:    racer.Name,
			Picture: racer.Picture,
			Wins:    racer.Wins,
			Races:   racer.Races,
		})
	}
	return SaveRacer(racer)
}

// GetRacerWithMock retrieves a racer (mock or real).
func GetRacerWithMock(userID string) (*Racer, error) {
	if useMocks {
		mockRacer, err := mocks.GetMockRaceDB().GetRacer(userID)
		if err != nil || mockRacer == nil {
			return nil, err
		}
		return &Racer{
			UserID:  mockRacer.UserID,
			Email:   mockRacer.Email,
			Name:    mockRacer.Name,
			Picture: mockRacer.Picture,
			Wins:    mockRacer.Wins,
			Races:   mockRacer.Races,
		}, nil
	}
	return GetRacer(userID)
}

// UpdateRacerStatsWithMock bumps career counters (mock or real).
func UpdateRacerStatsWithMock(userID string, won bool) error {
	if useMocks {
		return mocks.GetMockRaceDB().UpdateRacerStats(userID, won)
	}
	return UpdateRacerStats(userID, won)
}

// SaveResultWithMock stores one per-player race record (mock or real).
func SaveResultWithMock(rec RaceRecord) error {
	if useMocks {
		return mocks.GetMockRaceDB().SaveResult(mocks.RaceRecord{
			RaceID:       rec.RaceID,
			PlayerID:     rec.PlayerID,
			Timestamp:    rec.Timestamp,
			Won:          rec.Won,
			WinnerID:     rec.WinnerID,
			Opponent:     rec.Opponent,
			Reason:       rec.Reason,
			FinishTimeMs: rec.FinishTimeMs,
			PlayerName:   rec.PlayerName,
			OpponentName: rec.OpponentName,
		})
	}
	return SaveResult(rec)
}

// GetLeaderboardWithMock retrieves the leaderboard (mock or real).
func GetLeaderboardWithMock(limit int) ([]Racer, error) {
	if useMocks {
		mockRacers, err := mocks.GetMockRaceDB().GetLeaderboard(limit)
		if err != nil {
			return nil, err
		}
		racers := make([]Racer, 0, len(mockRacers))
		for _, m := range mockRacers {
			racers = append(racers, Racer{
				UserID:  m.UserID,
				Email:   m.Email,
				Name:    m.Name,
				Picture: m.Picture,
				Wins:    m.Wins,
				Races:   m.Races,
			})
		}
		return racers, nil
	}
	return GetLeaderboard(limit)
}

// GetRaceHistoryWithMock retrieves a racer's history (mock or real).
func GetRaceHistoryWithMock(userID string, limit int32) ([]RaceRecord, error) {
	if useMocks {
		mockRecs, err := mocks.GetMockRaceDB().GetRaceHistory(userID, int(limit))
		if err != nil {
			return nil, err
		}
		records := make([]RaceRecord, 0, len(mockRecs))
		for _, m := range mockRecs {
			records = append(records, RaceRecord{
				RaceID:       m.RaceID,
				PlayerID:     m.PlayerID,
				Timestamp:    m.Timestamp,
				Won:          m.Won,
				WinnerID:     m.WinnerID,
				Opponent:     m.Opponent,
				Reason:       m.Reason,
				FinishTimeMs: m.FinishTimeMs,
				PlayerName:   m.PlayerName,
				OpponentName: m.OpponentName,
			})
		}
		return records, nil
	}
	return GetRaceHistory(userID, limit)
}
