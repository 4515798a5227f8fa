package history

import (
	"context"
	"time"

	"clearcall/internal/models"
)

// Store is the call-history persistence consumed by the synchronizer.
// Rows are append-only apart from two updates: the self-initiated path
// finalizes by primary id, the answer/decline path finalizes by the
// (caller, receiver, ringing) tuple because the inbound side never holds
// the authoritative row id. A failed write is logged by the caller and
// never rolls back the call itself.
type Store interface {
	// SaveRinging writes the provisional row created at call start.
	SaveRinging(ctx context.Context, row models.HistoryRow) error
	// MarkActive flips the unique ringing row for the pair to active with
	// a fresh start time reflecting connection, not offer, time. Returns
	// the row id so the answering side can finalize by id later.
	MarkActive(ctx context.Context, callerID, receiverID string, start time.Time) (string, error)
	// Finish finalizes a row by primary id.
	Finish(ctx context.Context, row models.HistoryRow) error
	// FinishRinging finalizes the unique ringing row for the pair.
	FinishRinging(ctx context.Context, callerID, receiverID string, row models.HistoryRow) error
	// Recent returns terminal and in-flight rows, newest first.
	Recent(ctx context.Context, limit int) ([]models.HistoryRow, error)
}
