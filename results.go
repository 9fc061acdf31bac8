package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/skyrace-game/backend/db"
	"github.com/skyrace-game/backend/mocks"
)

var (
	redisClient  *redis.Client
	ctx          = context.Background()
	useMockRedis bool
)

const (
	recentResultsKey = "skyrace:results:recent"
	recentResultsCap = 50
)

// FeedEntry is one finished race on the recent-results feed.
type FeedEntry struct {
	RaceID       string  `json:"raceId"`
	WinnerID     string  `json:"winnerId"`
	WinnerName   string  `json:"winnerName,omitempty"`
	LoserID      string  `json:"loserId,omitempty"`
	LoserName    string  `json:"loserName,omitempty"`
	Reason       string  `json:"reason"`
	WinnerTimeMs float64 `json:"winnerTimeMs,omitempty"`
	FinishedAt   int64   `json:"finishedAt"`
}

// InitRedis connects to Redis/Valkey for the results feed, falling back to
// the in-memory mock when USE_MOCKS is set or the connection fails.
func InitRedis() error {
	useMockRedis = mocks.IsMockMode()

	if useMockRedis {
		Log.Infof("[REDIS] running in MOCK MODE - results feed kept in memory")
		mocks.GetMockResultFeed()
		return nil
	}

	redisAddr := os.Getenv("REDIS_ENDPOINT")
	if redisAddr == "" {
		redisAddr = "localhost:6379" // default for local dev
	}

	redisClient = redis.NewClient(&redis.Options{
		Addr:         redisAddr,
		Password:     "",
		DB:           0,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
	})

	if _, err := redisClient.Ping(ctx).Result(); err != nil {
		Log.Warnf("[REDIS] connection failed: %v - falling back to in-memory feed", err)
		redisClient = nil
		useMockRedis = true
		mocks.GetMockResultFeed()
		return err
	}

	Log.Infof("[REDIS] connected to %s", redisAddr)
	return nil
}

// PushRecentResult prepends a finished race to the capped feed.
func PushRecentResult(entry FeedEntry) error {
	entryJSON, err := json.Marshal(entry)
	if err != nil {
		return err
	}

	if useMockRedis {
		return mocks.GetMockResultFeed().Push(string(entryJSON), recentResultsCap)
	}
	if redisClient == nil {
		return fmt.Errorf("redis not initialized")
	}

	pipe := redisClient.TxPipeline()
	pipe.LPush(ctx, recentResultsKey, string(entryJSON))
	pipe.LTrim(ctx, recentResultsKey, 0, recentResultsCap-1)
	_, err = pipe.Exec(ctx)
	return err
}

// GetRecentResults returns up to limit of the most recently finished races,
// newest first.
func GetRecentResults(limit int) ([]FeedEntry, error) {
	if limit <= 0 || limit > recentResultsCap {
		limit = recentResultsCap
	}

	var raw []string
	var err error
	if useMockRedis {
		raw = mocks.GetMockResultFeed().Range(limit)
	} else {
		if redisClient == nil {
			return nil, fmt.Errorf("redis not initialized")
		}
		raw, err = redisClient.LRange(ctx, recentResultsKey, 0, int64(limit-1)).Result()
		if err != nil {
			return nil, err
		}
	}

	entries := make([]FeedEntry, 0, len(raw))
	for _, s := range raw {
		var e FeedEntry
		if err := json.Unmarshal([]byte(s), &e); err != nil {
			continue
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// raceRecorder is the production ResultRecorder: career stats and history go
// to DynamoDB, the recent feed to Redis. All of it happens off the room's
// goroutine, and failures only cost the record, never the match.
type raceRecorder struct{}

func (raceRecorder) RecordResult(res RaceResult) {
	go func() {
		if err := PushRecentResult(FeedEntry{
			RaceID:       res.RaceID,
			WinnerID:     res.WinnerUserID,
			WinnerName:   res.WinnerName,
			LoserID:      res.LoserUserID,
			LoserName:    res.LoserName,
			Reason:       res.Reason,
			WinnerTimeMs: res.WinnerTimeMs,
			FinishedAt:   res.FinishedAt,
		}); err != nil {
			Log.Warnf("[RESULTS] failed to push %s to recent feed: %v", res.RaceID, err)
		}

		winnerRec := db.RaceRecord{
			RaceID:       res.RaceID,
			PlayerID:     res.WinnerUserID,
			PlayerName:   res.WinnerName,
			Opponent:     res.LoserUserID,
			OpponentName: res.LoserName,
			Timestamp:    res.FinishedAt,
			Won:          true,
			WinnerID:     res.WinnerUserID,
			Reason:       res.Reason,
			FinishTimeMs: res.WinnerTimeMs,
		}
		if err := db.SaveResultWithMock(winnerRec); err != nil {
			Log.Warnf("[RESULTS] failed to save winner record for %s: %v", res.RaceID, err)
		}
		db.UpdateRacerStatsWithMock(res.WinnerUserID, true)

		if res.LoserUserID != "" {
			loserRec := db.RaceRecord{
				RaceID:       res.RaceID,
				PlayerID:     res.LoserUserID,
				PlayerName:   res.LoserName,
				Opponent:     res.WinnerUserID,
				OpponentName: res.WinnerName,
				Timestamp:    res.FinishedAt,
				Won:          false,
				WinnerID:     res.WinnerUserID,
				Reason:       res.Reason,
			}
			if err := db.SaveResultWithMock(loserRec); err != nil {
				Log.Warnf("[RESULTS] failed to save loser record for %s: %v", res.RaceID, err)
			}
			db.UpdateRacerStatsWithMock(res.LoserUserID, false)
		}
	}()
}
