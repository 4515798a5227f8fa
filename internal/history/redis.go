package history

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"clearcall/internal/models"

	"github.com/go-redis/redis/v8"
)

const (
	rowKeyPrefix = "call:"
	recentKey    = "calls:recent"
	maxRecent    = 500
)

// RedisStore keeps one JSON row per call plus a capped recency list.
type RedisStore struct {
	rdb *redis.Client
}

func NewRedisStore(addr string) *RedisStore {
	opt, err := redis.ParseURL(addr)
	var rdb *redis.Client
	if err != nil {
		rdb = redis.NewClient(&redis.Options{Addr: addr})
	} else {
		rdb = redis.NewClient(opt)
	}
	return &RedisStore{rdb: rdb}
}

// NewRedisStoreFromClient shares an existing client.
func NewRedisStoreFromClient(rdb *redis.Client) *RedisStore {
	return &RedisStore{rdb: rdb}
}

func (s *RedisStore) SaveRinging(ctx context.Context, row models.HistoryRow) error {
	if err := s.put(ctx, row); err != nil {
		return err
	}
	if err := s.rdb.LPush(ctx, recentKey, row.ID).Err(); err != nil {
		return err
	}
	return s.rdb.LTrim(ctx, recentKey, 0, maxRecent-1).Err()
}

func (s *RedisStore) MarkActive(ctx context.Context, callerID, receiverID string, start time.Time) (string, error) {
	row, err := s.findRinging(ctx, callerID, receiverID)
	if err != nil {
		return "", err
	}
	row.Status = models.CallActive
	row.StartTime = start
	return row.ID, s.put(ctx, *row)
}

func (s *RedisStore) Finish(ctx context.Context, row models.HistoryRow) error {
	return s.put(ctx, row)
}

func (s *RedisStore) FinishRinging(ctx context.Context, callerID, receiverID string, row models.HistoryRow) error {
	existing, err := s.findRinging(ctx, callerID, receiverID)
	if err != nil {
		return err
	}
	row.ID = existing.ID
	return s.put(ctx, row)
}

func (s *RedisStore) Recent(ctx context.Context, limit int) ([]models.HistoryRow, error) {
	if limit <= 0 || limit > maxRecent {
		limit = maxRecent
	}
	ids, err := s.rdb.LRange(ctx, recentKey, 0, int64(limit-1)).Result()
	if err != nil {
		return nil, err
	}
	rows := make([]models.HistoryRow, 0, len(ids))
	for _, id := range ids {
		row, err := s.get(ctx, id)
		if err != nil {
			log.Printf("[History] Skipping unreadable row %s: %v", id, err)
			continue
		}
		rows = append(rows, *row)
	}
	return rows, nil
}

// findRinging scans the recency list for rows in ringing state matching
// the pair. The single-call-slot invariant makes the tuple unique; more
// than one match means corrupted state, so we refuse to guess.
func (s *RedisStore) findRinging(ctx context.Context, callerID, receiverID string) (*models.HistoryRow, error) {
	ids, err := s.rdb.LRange(ctx, recentKey, 0, maxRecent-1).Result()
	if err != nil {
		return nil, err
	}
	var match *models.HistoryRow
	for _, id := range ids {
		row, err := s.get(ctx, id)
		if err != nil {
			continue
		}
		if row.Status == models.CallRinging && row.CallerID == callerID && row.ReceiverID == receiverID {
			if match != nil {
				return nil, fmt.Errorf("multiple ringing rows for %s -> %s", callerID, receiverID)
			}
			match = row
		}
	}
	if match == nil {
		return nil, fmt.Errorf("no ringing row for %s -> %s", callerID, receiverID)
	}
	return match, nil
}

func (s *RedisStore) put(ctx context.Context, row models.HistoryRow) error {
	data, err := json.Marshal(row)
	if err != nil {
		return err
	}
	return s.rdb.Set(ctx, rowKeyPrefix+row.ID, data, 0).Err()
}

func (s *RedisStore) get(ctx context.Context, id string) (*models.HistoryRow, error) {
	data, err := s.rdb.Get(ctx, rowKeyPrefix+id).Result()
	if err == redis.Nil {
		return nil, fmt.Errorf("row %s not found", id)
	} else if err != nil {
		return nil, err
	}
	var row models.HistoryRow
	if err := json.Unmarshal([]byte(data), &row); err != nil {
		return nil, err
	}
	return &row, nil
}
