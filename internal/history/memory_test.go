package history

import (
	"context"
	"testing"
	"time"

	"clearcall/internal/models"
)

func ringingRow(id, caller, receiver string, start time.Time) models.HistoryRow {
	return models.HistoryRow{
		ID:         id,
		CallerID:   caller,
		ReceiverID: receiver,
		Type:       models.CallAudio,
		StartTime:  start,
		Status:     models.CallRinging,
	}
}

func TestMarkActiveUpdatesUniqueRingingRow(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	start := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)

	store.SaveRinging(ctx, ringingRow("r1", "u1", "u2", start))

	connected := start.Add(6 * time.Second)
	id, err := store.MarkActive(ctx, "u1", "u2", connected)
	if err != nil {
		t.Fatalf("MarkActive: %v", err)
	}
	if id != "r1" {
		t.Fatalf("MarkActive returned id %q, want r1", id)
	}

	rows, _ := store.Recent(ctx, 0)
	if rows[0].Status != models.CallActive {
		t.Fatalf("row status %s, want active", rows[0].Status)
	}
	if !rows[0].StartTime.Equal(connected) {
		t.Fatal("start time not reset to connection time")
	}
}

func TestMarkActiveNoRingingRow(t *testing.T) {
	store := NewMemoryStore()
	if _, err := store.MarkActive(context.Background(), "u1", "u2", time.Now()); err == nil {
		t.Fatal("expected error with no ringing row")
	}
}

func TestMarkActiveAmbiguousMatchRefused(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	start := time.Now()
	store.SaveRinging(ctx, ringingRow("r1", "u1", "u2", start))
	store.SaveRinging(ctx, ringingRow("r2", "u1", "u2", start))

	if _, err := store.MarkActive(ctx, "u1", "u2", time.Now()); err == nil {
		t.Fatal("expected refusal on ambiguous tuple match")
	}
	// Neither row was touched.
	rows, _ := store.Recent(ctx, 0)
	for _, r := range rows {
		if r.Status != models.CallRinging {
			t.Fatalf("row %s modified despite ambiguity", r.ID)
		}
	}
}

func TestMarkActiveIgnoresOtherTuples(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	start := time.Now()
	store.SaveRinging(ctx, ringingRow("r1", "u1", "u2", start))
	store.SaveRinging(ctx, ringingRow("r2", "u3", "u2", start))

	id, err := store.MarkActive(ctx, "u1", "u2", time.Now())
	if err != nil {
		t.Fatalf("MarkActive: %v", err)
	}
	if id != "r1" {
		t.Fatalf("matched row %q, want r1", id)
	}
}

func TestFinishRingingKeepsRowID(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	start := time.Now()
	store.SaveRinging(ctx, ringingRow("r1", "u1", "u2", start))

	end := start.Add(20 * time.Second)
	missed := models.HistoryRow{
		ID:         "local-id",
		CallerID:   "u1",
		ReceiverID: "u2",
		Type:       models.CallAudio,
		StartTime:  start,
		EndTime:    end,
		Status:     models.CallMissed,
	}
	if err := store.FinishRinging(ctx, "u1", "u2", missed); err != nil {
		t.Fatalf("FinishRinging: %v", err)
	}
	rows, _ := store.Recent(ctx, 0)
	if rows[0].ID != "r1" {
		t.Fatalf("row id replaced with %q, want r1 preserved", rows[0].ID)
	}
	if rows[0].Status != models.CallMissed || rows[0].Duration != 0 {
		t.Fatalf("row not finalized as missed: %+v", rows[0])
	}
}

func TestFinishByIDUpdatesInPlace(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	start := time.Now()
	store.SaveRinging(ctx, ringingRow("r1", "u1", "u2", start))

	end := start.Add(65 * time.Second)
	done := models.HistoryRow{
		ID:         "r1",
		CallerID:   "u1",
		ReceiverID: "u2",
		Type:       models.CallAudio,
		StartTime:  start,
		EndTime:    end,
		Duration:   65,
		Status:     models.CallEnded,
	}
	if err := store.Finish(ctx, done); err != nil {
		t.Fatalf("Finish: %v", err)
	}
	rows, _ := store.Recent(ctx, 0)
	if len(rows) != 1 {
		t.Fatalf("Finish duplicated the row: %d rows", len(rows))
	}
	if rows[0].Status != models.CallEnded || rows[0].Duration != 65 {
		t.Fatalf("row not updated: %+v", rows[0])
	}
}

func TestFinishUnknownIDInserts(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	row := models.HistoryRow{ID: "never-saved", Status: models.CallMissed}
	if err := store.Finish(ctx, row); err != nil {
		t.Fatalf("Finish: %v", err)
	}
	rows, _ := store.Recent(ctx, 0)
	if len(rows) != 1 || rows[0].ID != "never-saved" {
		t.Fatalf("unexpected rows: %+v", rows)
	}
}

func TestRecentNewestFirstAndLimited(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	start := time.Now()
	store.SaveRinging(ctx, ringingRow("r1", "u1", "u2", start))
	store.SaveRinging(ctx, ringingRow("r2", "u1", "u2", start.Add(time.Minute)))
	store.SaveRinging(ctx, ringingRow("r3", "u1", "u2", start.Add(2*time.Minute)))

	rows, err := store.Recent(ctx, 2)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(rows) != 2 || rows[0].ID != "r3" || rows[1].ID != "r2" {
		t.Fatalf("unexpected order: %+v", rows)
	}
}
