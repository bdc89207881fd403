package lifecycle

import (
	"testing"
	"time"

	"escrowline/internal/domain"
)

func i64(v int64) *int64 { return &v }

func basicTx(status domain.Status) domain.Transaction {
	return domain.Transaction{
		ID:     "tx-b",
		Kind:   domain.KindBasic,
		Status: status,
		From:   "sender",
		To: []domain.Recipient{
			{Principal: "alice", Status: domain.RecipientPending},
		},
		Amount:    100 * domain.UnitsPerCoin,
		CreatedAt: 1,
	}
}

// milestoneTx builds a milestone escrow with two scheduled payments and one
// signing recipient, in the given progress state.
func milestoneTx(status domain.Status, signed, approved bool, started bool, released int) domain.Transaction {
	start := int64(1_000)
	if !started {
		start = time.Now().Add(24 * time.Hour).UnixNano()
	}
	payments := []domain.ReleasePayment{
		{Index: 1, Amount: 50 * domain.UnitsPerCoin},
		{Index: 2, Amount: 50 * domain.UnitsPerCoin},
	}
	for i := 0; i < released && i < len(payments); i++ {
		payments[i].ReleasedAt = i64(int64(i) + 10)
	}
	sr := domain.SigningRecipient{Principal: "carol"}
	if signed {
		sr.SignedContractAt = i64(5)
	}
	if approved {
		sr.ClientApprovedSignedContractAt = i64(6)
	}
	return domain.Transaction{
		ID:     "tx-m",
		Kind:   domain.KindMilestone,
		Status: status,
		From:   "sender",
		Amount: 100 * domain.UnitsPerCoin,
		To: []domain.Recipient{
			{Principal: "carol", Status: domain.RecipientPending},
		},
		Milestone: &domain.MilestoneData{
			Milestones: []domain.Milestone{{
				ID:              "m-1",
				Allocation:      100 * domain.UnitsPerCoin,
				StartDate:       start,
				Recipients:      []domain.Recipient{{Principal: "carol", Status: domain.RecipientPending}},
				ReleasePayments: payments,
			}},
			Recipients: []domain.SigningRecipient{sr},
		},
		CreatedAt: 1,
	}
}

func TestStepBasic(t *testing.T) {
	now := time.Now()
	cases := []struct {
		status domain.Status
		want   int
	}{
		{domain.StatusPending, 0},
		{domain.StatusConfirmed, 2},
		{domain.StatusReleased, 3},
		{domain.StatusCancelled, 0},
		{domain.StatusRefund, 0},
		{domain.StatusUnknown, 0},
	}
	for _, tc := range cases {
		if got := Step(basicTx(tc.status), now); got != tc.want {
			t.Errorf("basic %s: step = %d, want %d", tc.status, got, tc.want)
		}
	}
}

func TestStepMilestoneLadder(t *testing.T) {
	now := time.Now()
	cases := []struct {
		name string
		tx   domain.Transaction
		want int
	}{
		{"unsigned", milestoneTx(domain.StatusPending, false, false, false, 0), 0},
		{"signed not approved", milestoneTx(domain.StatusPending, true, false, false, 0), 1},
		{"approved not started", milestoneTx(domain.StatusPending, true, true, false, 0), 2},
		{"started no release", milestoneTx(domain.StatusPending, true, true, true, 0), 3},
		{"one released", milestoneTx(domain.StatusPending, true, true, true, 1), 4},
		{"two released", milestoneTx(domain.StatusPending, true, true, true, 2), 5},
		{"released status", milestoneTx(domain.StatusReleased, true, true, true, 2), 6},
		{"cancelled", milestoneTx(domain.StatusCancelled, true, true, true, 1), 0},
	}
	for _, tc := range cases {
		if got := Step(tc.tx, now); got != tc.want {
			t.Errorf("%s: step = %d, want %d", tc.name, got, tc.want)
		}
	}
}

// Pending and Confirmed walk the same milestone ladder.
func TestStepMilestoneConfirmedMatchesPending(t *testing.T) {
	now := time.Now()
	for released := 0; released <= 2; released++ {
		p := Step(milestoneTx(domain.StatusPending, true, true, true, released), now)
		c := Step(milestoneTx(domain.StatusConfirmed, true, true, true, released), now)
		if p != c {
			t.Fatalf("released=%d: pending step %d != confirmed step %d", released, p, c)
		}
	}
}

func TestStepMilestoneClampedAtMax(t *testing.T) {
	tx := milestoneTx(domain.StatusPending, true, true, true, 2)
	first := tx.Milestone.Milestones[0]
	first.ReleasePayments = append(first.ReleasePayments,
		domain.ReleasePayment{Index: 3, ReleasedAt: i64(1)},
		domain.ReleasePayment{Index: 4, ReleasedAt: i64(2)},
	)
	tx.Milestone.Milestones[0] = first
	if got := Step(tx, time.Now()); got != 6 {
		t.Fatalf("step = %d, want clamp at 6", got)
	}
}

func TestClientApprovalRequiresSignature(t *testing.T) {
	// Approval stamps without matching signatures are a data fault and
	// must not advance the ladder.
	tx := milestoneTx(domain.StatusPending, false, true, true, 0)
	if got := Step(tx, time.Now()); got != 0 {
		t.Fatalf("step = %d, want 0 for approval without signature", got)
	}
}

func TestCanCancelBasic(t *testing.T) {
	tx := basicTx(domain.StatusPending)
	if !CanCancel(tx) {
		t.Fatal("pending with no approvals should be cancellable")
	}
	tx.To[0].ApprovedAt = i64(1)
	if CanCancel(tx) {
		t.Fatal("approval should disable cancellation")
	}
	// A later decline does not restore it.
	tx.To[0].Status = domain.RecipientDeclined
	tx.To[0].DeclinedAt = i64(2)
	if CanCancel(tx) {
		t.Fatal("cancellation must stay disabled after a decline follows an approval")
	}

	if CanCancel(basicTx(domain.StatusConfirmed)) {
		t.Fatal("non-pending status should not be cancellable")
	}
	rel := basicTx(domain.StatusPending)
	rel.ReleasedAt = i64(1)
	if CanCancel(rel) {
		t.Fatal("released funds should not be cancellable")
	}
}

func TestCanCancelMilestone(t *testing.T) {
	tx := milestoneTx(domain.StatusPending, false, false, false, 0)
	if !CanCancel(tx) {
		t.Fatal("fresh milestone escrow should be cancellable")
	}
	tx.Milestone.Milestones[0].Recipients[0].ApprovedAt = i64(1)
	if CanCancel(tx) {
		t.Fatal("first-milestone approval should disable cancellation")
	}
	if CanCancel(milestoneTx(domain.StatusPending, true, true, true, 1)) {
		t.Fatal("a released payment should disable cancellation")
	}
}
