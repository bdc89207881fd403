package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"escrowline/internal/domain"
)

// Repo persists normalized transactions and the action audit log in the
// workspace cache database. Transactions are stored whole as JSON; the
// indexed columns exist for listing and filtering only.
type Repo struct {
	DB *sql.DB
}

var ErrNotFound = errors.New("not found")

// AuditEvent is one recorded orchestrator outcome. Outcome distinguishes a
// backend-confirmed state from a presumed (optimistically patched) one.
type AuditEvent struct {
	ID            string `json:"id"`
	TS            string `json:"ts" format:"date-time"`
	Action        string `json:"action"`
	TransactionID string `json:"transaction_id"`
	Actor         string `json:"actor"`
	Outcome       string `json:"outcome" enum:"confirmed,presumed,failed"`
	Error         string `json:"error,omitempty"`
	PayloadJSON   string `json:"payload_json,omitempty"`
}

func (r Repo) UpsertTransaction(ctx context.Context, t domain.Transaction) error {
	payload, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("marshal transaction %s: %w", t.ID, err)
	}
	now := time.Now().UTC().Format(time.RFC3339)
	_, err = r.DB.ExecContext(ctx, `INSERT INTO transactions(id,kind,status,sender,created_at,payload_json,updated_at)
		VALUES (?,?,?,?,?,?,?)
		ON CONFLICT(id) DO UPDATE SET kind=excluded.kind,status=excluded.status,sender=excluded.sender,
			created_at=excluded.created_at,payload_json=excluded.payload_json,updated_at=excluded.updated_at`,
		t.ID, string(t.Kind), string(t.Status), t.From, t.CreatedAt, string(payload), now)
	return err
}

func (r Repo) GetTransaction(ctx context.Context, id string) (domain.Transaction, error) {
	var payload string
	err := r.DB.QueryRowContext(ctx, `SELECT payload_json FROM transactions WHERE id=?`, id).Scan(&payload)
	if err == sql.ErrNoRows {
		return domain.Transaction{}, ErrNotFound
	}
	if err != nil {
		return domain.Transaction{}, err
	}
	return unmarshalTransaction(payload)
}

func (r Repo) ListTransactions(ctx context.Context) ([]domain.Transaction, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT payload_json FROM transactions ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.Transaction
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		t, err := unmarshalTransaction(payload)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (r Repo) DeleteTransaction(ctx context.Context, id string) error {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM transactions WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) InsertAuditEvent(ctx context.Context, e AuditEvent) error {
	if e.PayloadJSON == "" {
		e.PayloadJSON = "{}"
	}
	_, err := r.DB.ExecContext(ctx, `INSERT INTO audit_events(id,ts,action,transaction_id,actor,outcome,error,payload_json)
		VALUES (?,?,?,?,?,?,?,?)`,
		e.ID, e.TS, e.Action, e.TransactionID, e.Actor, e.Outcome, nullable(e.Error), e.PayloadJSON)
	return err
}

// LatestAuditEvents returns the newest events, optionally filtered to one
// transaction id.
func (r Repo) LatestAuditEvents(ctx context.Context, limit int, txID string) ([]AuditEvent, error) {
	if limit <= 0 {
		limit = 20
	}
	query := `SELECT id,ts,action,transaction_id,actor,outcome,COALESCE(error,''),payload_json FROM audit_events`
	args := []any{}
	if txID != "" {
		query += ` WHERE transaction_id=?`
		args = append(args, txID)
	}
	query += ` ORDER BY ts DESC LIMIT ?`
	args = append(args, limit)
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []AuditEvent
	for rows.Next() {
		var e AuditEvent
		if err := rows.Scan(&e.ID, &e.TS, &e.Action, &e.TransactionID, &e.Actor, &e.Outcome, &e.Error, &e.PayloadJSON); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func unmarshalTransaction(payload string) (domain.Transaction, error) {
	var t domain.Transaction
	if err := json.Unmarshal([]byte(payload), &t); err != nil {
		return domain.Transaction{}, fmt.Errorf("unmarshal cached transaction: %w", err)
	}
	return t, nil
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
