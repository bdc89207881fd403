package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"escrowline/internal/repo"
)

// Writer appends orchestrator outcomes to the audit log. A Writer with no
// Repo is a no-op, so the engine works without a workspace database.
type Writer struct {
	Repo *repo.Repo
	Now  func() time.Time
}

type Payload map[string]any

// Outcome labels for audit rows.
const (
	OutcomeConfirmed = "confirmed"
	OutcomePresumed  = "presumed"
	OutcomeFailed    = "failed"
)

func (w Writer) Append(ctx context.Context, action, txID, actor, outcome, errText string, payload Payload) error {
	if w.Repo == nil {
		return nil
	}
	now := time.Now
	if w.Now != nil {
		now = w.Now
	}
	if payload == nil {
		payload = Payload{}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal audit payload: %w", err)
	}
	return w.Repo.InsertAuditEvent(ctx, repo.AuditEvent{
		ID:            uuid.New().String(),
		TS:            now().UTC().Format(time.RFC3339Nano),
		Action:        action,
		TransactionID: txID,
		Actor:         actor,
		Outcome:       outcome,
		Error:         errText,
		PayloadJSON:   string(data),
	})
}
