package lifecycle

import (
	"time"

	"escrowline/internal/domain"
)

// Step numbers drive the UI progress indicator. Basic escrows walk a short
// ladder; milestone escrows walk contract signing, client approval, start,
// then one step per released payment, clamped at 6.
const maxStep = 6

// Step derives the numeric lifecycle step from a normalized transaction.
// Deterministic and pure; now feeds the milestone started check.
func Step(t domain.Transaction, now time.Time) int {
	if t.Kind == domain.KindMilestone {
		return milestoneStep(t, now)
	}
	switch t.Status {
	case domain.StatusReleased:
		return 3
	case domain.StatusConfirmed:
		return 2
	default:
		// Pending, Cancelled, Refund and anything unknown sit at the start.
		return 0
	}
}

func milestoneStep(t domain.Transaction, now time.Time) int {
	switch t.Status {
	case domain.StatusReleased:
		return maxStep
	case domain.StatusPending, domain.StatusConfirmed:
		// Both pre-activation states walk the same ladder. The original
		// behaves identically for the two; preserved as observed, not
		// assumed intentional.
	default:
		return 0
	}

	signed := allSigned(t)
	approved := signed && clientApproved(t)
	if !signed {
		return 0
	}
	if !approved {
		return 1
	}

	first, ok := t.FirstMilestone()
	if !ok || now.UnixNano() < first.StartDate {
		return 2
	}
	step := 3 + first.ReleasedCount()
	if step > maxStep {
		step = maxStep
	}
	return step
}

// allSigned reports whether every contract-signing recipient has signed.
func allSigned(t domain.Transaction) bool {
	if t.Milestone == nil || len(t.Milestone.Recipients) == 0 {
		return false
	}
	for _, r := range t.Milestone.Recipients {
		if r.SignedContractAt == nil {
			return false
		}
	}
	return true
}

// clientApproved reports whether the client has approved every signed
// contract. Approval without a signature is a data fault and counts as
// unapproved.
func clientApproved(t domain.Transaction) bool {
	if t.Milestone == nil || len(t.Milestone.Recipients) == 0 {
		return false
	}
	for _, r := range t.Milestone.Recipients {
		if r.ClientApprovedSignedContractAt == nil || r.SignedContractAt == nil {
			return false
		}
	}
	return true
}

// CanCancel reports cancellation eligibility: only while Pending, before
// any release, and before any first-milestone recipient has approved. One
// approval disables cancellation for good, regardless of later declines.
func CanCancel(t domain.Transaction) bool {
	if t.Status != domain.StatusPending {
		return false
	}
	if t.ReleasedAt != nil {
		return false
	}
	if t.Kind == domain.KindMilestone {
		first, ok := t.FirstMilestone()
		if !ok {
			return true
		}
		if first.ReleasedCount() > 0 {
			return false
		}
		for _, r := range first.Recipients {
			if r.ApprovedAt != nil {
				return false
			}
		}
		return true
	}
	for _, r := range t.To {
		if r.ApprovedAt != nil || r.Status == domain.RecipientApproved {
			return false
		}
	}
	return true
}
