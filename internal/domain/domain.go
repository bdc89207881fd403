package domain

// Kind selects the escrow product variant.
type Kind string

const (
	KindBasic     Kind = "basic"
	KindMilestone Kind = "milestone"
)

// Status is the canonical transaction lifecycle status.
type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusReleased  Status = "released"
	StatusCancelled Status = "cancelled"
	StatusDeclined  Status = "declined"
	StatusRefund    Status = "refund"
	StatusUnknown   Status = "unknown"
)

// RecipientStatus tracks a single recipient's decision on a basic escrow.
type RecipientStatus string

const (
	RecipientPending  RecipientStatus = "pending"
	RecipientApproved RecipientStatus = "approved"
	RecipientDeclined RecipientStatus = "declined"
	RecipientNoAction RecipientStatus = "no_action"
)

// Product titles. Legacy basic records sometimes carry the milestone label;
// the normalizer substitutes the basic one.
const (
	BasicProductLabel     = "Basic Escrow"
	MilestoneProductLabel = "Milestone Escrow"
)

// UnitsPerCoin converts smallest-unit amounts into display units.
const UnitsPerCoin = 100_000_000

// Transaction is the canonical normalized escrow record. Timestamps are
// nanosecond integers serialized as strings to survive the JSON boundary
// without precision loss.
type Transaction struct {
	ID          string         `json:"id"`
	Index       int64          `json:"index,string"`
	Kind        Kind           `json:"kind" enum:"basic,milestone"`
	Title       string         `json:"title,omitempty"`
	Status      Status         `json:"status" enum:"pending,confirmed,released,cancelled,declined,refund,unknown"`
	From        string         `json:"from"`
	To          []Recipient    `json:"to,omitempty"`
	Amount      int64          `json:"amount,string"`
	CreatedAt   int64          `json:"created_at,string"`
	ConfirmedAt *int64         `json:"confirmed_at,omitempty,string"`
	CancelledAt *int64         `json:"cancelled_at,omitempty,string"`
	RefundedAt  *int64         `json:"refunded_at,omitempty,string"`
	ReleasedAt  *int64         `json:"released_at,omitempty,string"`
	ReadAt      *int64         `json:"read_at,omitempty,string"`
	Milestone   *MilestoneData `json:"milestone,omitempty"`
}

// Recipient is one party entitled to a share of the escrowed funds.
type Recipient struct {
	Principal  string          `json:"principal"`
	Amount     int64           `json:"amount,string"`
	Percentage float64         `json:"percentage"`
	Status     RecipientStatus `json:"status" enum:"pending,approved,declined,no_action"`
	ApprovedAt *int64          `json:"approved_at,omitempty,string"`
	DeclinedAt *int64          `json:"declined_at,omitempty,string"`
	ReadAt     *int64          `json:"read_at,omitempty,string"`
}

// MilestoneData carries the scheduled-release variant: the payment plan plus
// the contract-signing ledger, which is distinct from per-milestone payment
// recipients.
type MilestoneData struct {
	Milestones             []Milestone        `json:"milestones"`
	Recipients             []SigningRecipient `json:"recipients"`
	ContractFileID         string             `json:"contract_file_id,omitempty"`
	ClientApprovedSignedAt *int64             `json:"client_approved_signed_at,omitempty,string"`
}

// Milestone is one funded tranche with its own recipients and payout plan.
type Milestone struct {
	ID              string           `json:"id"`
	Allocation      int64            `json:"allocation,string"`
	Duration        int64            `json:"duration,string"`
	StartDate       int64            `json:"start_date,string"`
	EndDate         int64            `json:"end_date,string"`
	Recipients      []Recipient      `json:"recipients,omitempty"`
	ReleasePayments []ReleasePayment `json:"release_payments,omitempty"`
}

// ReleasePayment is one scheduled payout within a milestone. Payments are
// 1-indexed; a payment is released iff ReleasedAt is set.
type ReleasePayment struct {
	Index      int    `json:"index"`
	Amount     int64  `json:"amount,string"`
	DueDate    *int64 `json:"due_date,omitempty,string"`
	ReleasedAt *int64 `json:"released_at,omitempty,string"`
}

// SigningRecipient is a party's contract-signing state. Client approval is
// only valid once that party has signed.
type SigningRecipient struct {
	Principal                      string `json:"principal"`
	SignedContractAt               *int64 `json:"signed_contract_at,omitempty,string"`
	ClientApprovedSignedContractAt *int64 `json:"client_approved_signed_contract_at,omitempty,string"`
}

// FirstMilestone returns the first milestone of the plan, if any.
func (t Transaction) FirstMilestone() (Milestone, bool) {
	if t.Milestone == nil || len(t.Milestone.Milestones) == 0 {
		return Milestone{}, false
	}
	return t.Milestone.Milestones[0], true
}

// FindRecipient looks up a recipient entry by principal.
func (t Transaction) FindRecipient(principal string) (Recipient, bool) {
	for _, r := range t.To {
		if r.Principal == principal {
			return r, true
		}
	}
	return Recipient{}, false
}

// Terminal reports whether the status admits no further transitions.
func (s Status) Terminal() bool {
	switch s {
	case StatusReleased, StatusCancelled, StatusDeclined, StatusRefund:
		return true
	}
	return false
}

// ReleasedCount returns the number of released payments in the plan.
func (m Milestone) ReleasedCount() int {
	n := 0
	for _, p := range m.ReleasePayments {
		if p.ReleasedAt != nil {
			n++
		}
	}
	return n
}
