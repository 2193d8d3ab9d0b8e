// Package admin exposes a small read-only HTTP surface over a storage
// engine's own internal counters — cache occupancy, replacer state, hash
// table depth — the way the teacher's server package exposes connection and
// query counters. It is an observability surface, not a query layer: there
// is nothing here that can mutate engine state.
package admin

import (
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
)

// StatsFunc collects a fresh snapshot of whatever counters the caller wants
// exposed. It is called on every /stats request and on every tick of
// /stats/stream, so it should be cheap.
type StatsFunc func() (map[string]any, error)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// New builds the admin router. stats is called to produce each snapshot;
// interval governs how often /stats/stream pushes a new one.
func New(stats StatsFunc, interval time.Duration) http.Handler {
	if interval <= 0 {
		interval = time.Second
	}

	r := chi.NewRouter()
	r.Get("/stats", handleStats(stats))
	r.Get("/stats/stream", handleStatsStream(stats, interval))
	return r
}

func handleStats(stats StatsFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snapshot, err := stats()
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(snapshot); err != nil {
			log.Printf("admin: encode stats: %v", err)
		}
	}
}

func handleStatsStream(stats StatsFunc, interval time.Duration) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Printf("admin: upgrade: %v", err)
			return
		}
		defer conn.Close()

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		// Detect client disconnect by draining whatever it sends (this
		// endpoint is push-only, so anything received just signals the
		// connection is still readable).
		closed := make(chan struct{})
		go func() {
			defer close(closed)
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()

		for {
			select {
			case <-closed:
				return
			case <-ticker.C:
				snapshot, err := stats()
				if err != nil {
					conn.WriteJSON(map[string]any{"error": err.Error()})
					continue
				}
				if err := conn.WriteJSON(snapshot); err != nil {
					return
				}
			}
		}
	}
}
