package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/joho/godotenv"

	"github.com/skyrace-game/backend/db"
)

func main() {
	if err := godotenv.Load(); err != nil {
		fmt.Println("No .env file found, reading environment variables directly")
	}

	if err := InitLogger("skyrace.log"); err != nil {
		panic(err)
	}
	defer SyncLogger()

	// Persistence for finished races; live rooms stay in memory only.
	db.InitWithMocks()
	if err := InitRedis(); err != nil {
		Log.Warnf("results feed degraded: %v", err)
	}
	initAuth()

	registry := NewRoomRegistry(raceRecorder{})
	server := NewGameServer(registry)
	go server.Run()

	// Safety-net sweep for rooms that emptied without normal eviction.
	sched, err := gocron.NewScheduler()
	if err != nil {
		Log.Fatalf("failed to create scheduler: %v", err)
	}
	if _, err := sched.NewJob(
		gocron.DurationJob(cleanupInterval*time.Minute),
		gocron.NewTask(registry.CleanupEmptyRooms),
	); err != nil {
		Log.Fatalf("failed to schedule room sweep: %v", err)
	}
	sched.Start()
	defer func() { _ = sched.Shutdown() }()

	mux := http.NewServeMux()

	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		serveWs(server, w, r)
	})

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})

	mux.HandleFunc("/api/stats", func(w http.ResponseWriter, r *http.Request) {
		setCORSHeaders(w, "GET, OPTIONS")
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(registry.Stats())
	})

	mux.HandleFunc("/api/leaderboard", func(w http.ResponseWriter, r *http.Request) {
		setCORSHeaders(w, "GET, OPTIONS")
		racers, err := db.GetLeaderboardWithMock(queryLimit(r, 10))
		if err != nil {
			Log.Warnf("[API] leaderboard lookup failed: %v", err)
			http.Error(w, "leaderboard unavailable", http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(racers)
	})

	mux.HandleFunc("/api/recent", func(w http.ResponseWriter, r *http.Request) {
		setCORSHeaders(w, "GET, OPTIONS")
		entries, err := GetRecentResults(queryLimit(r, 20))
		if err != nil {
			Log.Warnf("[API] recent results lookup failed: %v", err)
			http.Error(w, "recent results unavailable", http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(entries)
	})

	mux.HandleFunc("/api/history", func(w http.ResponseWriter, r *http.Request) {
		setCORSHeaders(w, "GET, OPTIONS")
		userID := r.URL.Query().Get("user")
		if userID == "" {
			http.Error(w, "missing user query parameter", http.StatusBadRequest)
			return
		}
		records, err := db.GetRaceHistoryWithMock(userID, int32(queryLimit(r, 20)))
		if err != nil {
			Log.Warnf("[API] history lookup failed for %s: %v", userID, err)
			http.Error(w, "history unavailable", http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(records)
	})

	mux.HandleFunc("/auth/google/login", handleGoogleLogin)
	mux.HandleFunc("/auth/google/callback", handleGoogleCallback)
	mux.HandleFunc("/auth/guest", handleGuestLogin)
	mux.HandleFunc("/auth/verify", handleVerifySession)
	mux.HandleFunc("/auth/logout", handleLogout)

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	srv := &http.Server{Addr: ":" + port, Handler: mux}

	go func() {
		Log.Infof("skyrace server listening on :%s", port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			Log.Fatalf("listen: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	Log.Info("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		Log.Warnf("http shutdown: %v", err)
	}
}

// queryLimit parses ?limit=N with a default and a sane upper bound.
func queryLimit(r *http.Request, def int) int {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return def
	}
	if n > 100 {
		return 100
	}
	return n
}
