package lifecycle

import "escrowline/internal/domain"

// Share is a recipient's cut of the escrowed funds.
type Share struct {
	Amount     int64   `json:"amount,string"`
	Percentage float64 `json:"percentage"`
}

// TotalAllocated returns the transaction's allocated amount in display
// units. It reads the stored total rather than recomputing recipient
// shares; the backend's total is authoritative.
func TotalAllocated(t domain.Transaction) float64 {
	return float64(t.Amount) / domain.UnitsPerCoin
}

// UniqueRecipientCount counts distinct recipient identities. For milestone
// escrows this spans every milestone, not just the first.
func UniqueRecipientCount(t domain.Transaction) int {
	if t.Kind != domain.KindMilestone {
		return len(t.To)
	}
	if t.Milestone == nil {
		return 0
	}
	seen := make(map[string]bool)
	for _, m := range t.Milestone.Milestones {
		for _, r := range m.Recipients {
			seen[r.Principal] = true
		}
	}
	return len(seen)
}

// UserShare returns the share for the given identity, zero-valued when the
// identity is not a recipient.
func UserShare(t domain.Transaction, principal string) Share {
	if r, ok := t.FindRecipient(principal); ok {
		return Share{Amount: r.Amount, Percentage: r.Percentage}
	}
	return Share{}
}
