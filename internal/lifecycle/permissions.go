package lifecycle

import (
	"strings"
	"time"

	"escrowline/internal/domain"
	"escrowline/internal/wire"
)

// Resolver derives role and permission state for an acting identity.
type Resolver struct {
	// LegacyOwnerPrefix, when set, treats a transaction whose id carries
	// the prefix and which has no recipients as sender-owned. This papers
	// over a data-migration gap in old records; it is off by default and
	// should not be treated as a permanent rule.
	LegacyOwnerPrefix string
}

// Controls is the per-actor permission set the UI renders from.
type Controls struct {
	IsSender   bool `json:"is_sender"`
	HasActed   bool `json:"has_acted"`
	CanApprove bool `json:"can_approve"`
	CanDecline bool `json:"can_decline"`
	CanRelease bool `json:"can_release"`
	CanRefund  bool `json:"can_refund"`
	CanEdit    bool `json:"can_edit"`
	CanCancel  bool `json:"can_cancel"`
}

// IsSender compares the acting identity against the transaction sender by
// value, after canonicalizing both sides. Stray bracket characters from
// double-encoded wire values are stripped before comparing.
func (rs Resolver) IsSender(t domain.Transaction, identity string) bool {
	from := CanonicalIdentity(t.From)
	actor := CanonicalIdentity(identity)
	if from != "" && from == actor {
		return true
	}
	if rs.LegacyOwnerPrefix != "" && strings.HasPrefix(t.ID, rs.LegacyOwnerPrefix) && len(t.To) == 0 {
		return true
	}
	return false
}

// HasActed reports whether the identity's recipient entry already carries a
// decision: a non-pending status, or an approval/decline timestamp.
func (rs Resolver) HasActed(t domain.Transaction, identity string) bool {
	r, ok := t.FindRecipient(CanonicalIdentity(identity))
	if !ok {
		return false
	}
	if r.ApprovedAt != nil || r.DeclinedAt != nil {
		return true
	}
	return r.Status != domain.RecipientPending && r.Status != domain.RecipientNoAction
}

// ControlsFor derives the full permission set for the identity. Approve and
// decline are recipient-side; release, refund, edit and cancel are
// sender-side. Sender and eligible-recipient are mutually exclusive.
func (rs Resolver) ControlsFor(t domain.Transaction, identity string, now time.Time) Controls {
	c := Controls{
		IsSender: rs.IsSender(t, identity),
		HasActed: rs.HasActed(t, identity),
	}
	_, isRecipient := t.FindRecipient(CanonicalIdentity(identity))
	if !c.IsSender && isRecipient && !c.HasActed && !t.Status.Terminal() {
		c.CanApprove = true
		c.CanDecline = true
	}
	if c.IsSender {
		if t.Status == domain.StatusConfirmed {
			c.CanRelease = true
			c.CanRefund = true
		}
		if t.Status == domain.StatusPending && CanCancel(t) {
			c.CanEdit = true
			c.CanCancel = true
		}
	}
	return c
}

// CanonicalIdentity resolves then strips bracket and brace characters that
// leak in from double-encoded wire values.
func CanonicalIdentity(v string) string {
	s := wire.ResolvePrincipal(v)
	return strings.Trim(s, "[]{}\" ")
}
