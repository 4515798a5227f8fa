package history

import (
	"context"
	"fmt"
	"sync"
	"time"

	"clearcall/internal/models"
)

// MemoryStore is the in-process fallback used when no redis is configured,
// and by tests.
type MemoryStore struct {
	mu   sync.RWMutex
	rows []models.HistoryRow // newest first
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) SaveRinging(ctx context.Context, row models.HistoryRow) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows = append([]models.HistoryRow{row}, s.rows...)
	return nil
}

func (s *MemoryStore) MarkActive(ctx context.Context, callerID, receiverID string, start time.Time) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx, err := s.findRingingLocked(callerID, receiverID)
	if err != nil {
		return "", err
	}
	s.rows[idx].Status = models.CallActive
	s.rows[idx].StartTime = start
	return s.rows[idx].ID, nil
}

func (s *MemoryStore) Finish(ctx context.Context, row models.HistoryRow) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.rows {
		if s.rows[i].ID == row.ID {
			s.rows[i] = row
			return nil
		}
	}
	s.rows = append([]models.HistoryRow{row}, s.rows...)
	return nil
}

func (s *MemoryStore) FinishRinging(ctx context.Context, callerID, receiverID string, row models.HistoryRow) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx, err := s.findRingingLocked(callerID, receiverID)
	if err != nil {
		return err
	}
	row.ID = s.rows[idx].ID
	s.rows[idx] = row
	return nil
}

func (s *MemoryStore) Recent(ctx context.Context, limit int) ([]models.HistoryRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if limit <= 0 || limit > len(s.rows) {
		limit = len(s.rows)
	}
	return append([]models.HistoryRow(nil), s.rows[:limit]...), nil
}

func (s *MemoryStore) findRingingLocked(callerID, receiverID string) (int, error) {
	found := -1
	for i := range s.rows {
		r := s.rows[i]
		if r.Status == models.CallRinging && r.CallerID == callerID && r.ReceiverID == receiverID {
			if found >= 0 {
				return -1, fmt.Errorf("multiple ringing rows for %s -> %s", callerID, receiverID)
			}
			found = i
		}
	}
	if found < 0 {
		return -1, fmt.Errorf("no ringing row for %s -> %s", callerID, receiverID)
	}
	return found, nil
}
