package server

import (
	"time"

	"escrowline/internal/domain"
	"escrowline/internal/engine"
	"escrowline/internal/lifecycle"
)

// TransactionView is a normalized transaction plus the per-actor derived
// state the UI consumes: lifecycle step, permission set, and aggregates.
type TransactionView struct {
	Transaction    domain.Transaction `json:"transaction"`
	Step           int                `json:"step"`
	CanCancel      bool               `json:"can_cancel"`
	Controls       lifecycle.Controls `json:"controls"`
	TotalAllocated float64            `json:"total_allocated"`
	RecipientCount int                `json:"recipient_count"`
	YourShare      lifecycle.Share    `json:"your_share"`
}

type TransactionListResponse struct {
	Items []TransactionView `json:"items"`
}

// ActionResponse reports the reconciled result of a mutating action.
// Confirmed=false marks a presumed (optimistically patched) state; Error
// carries the single surfaced failure when the backend call itself failed.
type ActionResponse struct {
	Transaction domain.Transaction `json:"transaction"`
	Confirmed   bool               `json:"confirmed"`
	Error       string             `json:"error,omitempty"`
}

func viewOf(t domain.Transaction, actor string, rs lifecycle.Resolver, now time.Time) TransactionView {
	return TransactionView{
		Transaction:    t,
		Step:           lifecycle.Step(t, now),
		CanCancel:      lifecycle.CanCancel(t),
		Controls:       rs.ControlsFor(t, actor, now),
		TotalAllocated: lifecycle.TotalAllocated(t),
		RecipientCount: lifecycle.UniqueRecipientCount(t),
		YourShare:      lifecycle.UserShare(t, lifecycle.CanonicalIdentity(actor)),
	}
}

func actionResponse(out engine.Outcome, err error) ActionResponse {
	resp := ActionResponse{Transaction: out.Transaction, Confirmed: out.Confirmed}
	if err != nil {
		resp.Error = err.Error()
	}
	return resp
}
