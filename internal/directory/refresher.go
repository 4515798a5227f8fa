package directory

import (
	"context"
	"log"
	"time"

	"clearcall/internal/models"

	"github.com/go-redis/redis/v8"
)

// presenceKey is a hash of user id -> status, written by the presence
// service. We only read peers; our own heartbeat is the one write.
const presenceKey = "presence"

// Refresher periodically pulls peer presence into the directory and
// heartbeats our own status, going offline on shutdown.
type Refresher struct {
	rdb    *redis.Client
	dir    *Directory
	selfID string
	every  time.Duration
}

func NewRefresher(rdb *redis.Client, dir *Directory, selfID string) *Refresher {
	return &Refresher{rdb: rdb, dir: dir, selfID: selfID, every: 30 * time.Second}
}

// Run blocks until ctx is cancelled.
func (r *Refresher) Run(ctx context.Context) {
	r.tick(ctx)
	ticker := time.NewTicker(r.every)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			r.tick(ctx)
		case <-ctx.Done():
			r.goOffline()
			return
		}
	}
}

func (r *Refresher) tick(ctx context.Context) {
	if err := r.rdb.HSet(ctx, presenceKey, r.selfID, string(models.StatusOnline)).Err(); err != nil {
		log.Printf("[Presence] Heartbeat failed: %v", err)
	}
	statuses, err := r.rdb.HGetAll(ctx, presenceKey).Result()
	if err != nil {
		log.Printf("[Presence] Refresh failed: %v", err)
		return
	}
	for id, status := range statuses {
		if id == r.selfID {
			continue
		}
		r.dir.SetStatus(id, models.UserStatus(status))
	}
}

func (r *Refresher) goOffline() {
	// The outer context is already cancelled at this point.
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := r.rdb.HSet(ctx, presenceKey, r.selfID, string(models.StatusOffline)).Err(); err != nil {
		log.Printf("[Presence] Offline write failed: %v", err)
	}
}
