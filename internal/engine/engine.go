package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"escrowline/internal/config"
	"escrowline/internal/domain"
	"escrowline/internal/events"
	"escrowline/internal/ledger"
	"escrowline/internal/lifecycle"
	"escrowline/internal/normalize"
	"escrowline/internal/notify"
	"escrowline/internal/retry"
	"escrowline/internal/store"
)

// Engine orchestrates the five state-changing escrow operations against the
// ledger, reconciling local state through a bounded-retry re-fetch and
// falling back to a deterministic optimistic patch when confirmation cannot
// be read. The store is only ever written here and by Sync.
type Engine struct {
	Ledger   ledger.Ledger
	Notifier notify.Notifier
	Store    store.Store
	Audit    events.Writer
	Config   *config.Config
	Now      func() time.Time

	mu       sync.Mutex
	inflight map[string]string
	fetching map[string]bool
}

func New(l ledger.Ledger, n notify.Notifier, s store.Store, audit events.Writer, cfg *config.Config) *Engine {
	if n == nil {
		n = notify.Nop{}
	}
	return &Engine{
		Ledger:   l,
		Notifier: n,
		Store:    s,
		Audit:    audit,
		Config:   cfg,
		Now:      time.Now,
		inflight: make(map[string]string),
		fetching: make(map[string]bool),
	}
}

var (
	// ErrActionInFlight rejects a second concurrent action on one transaction.
	ErrActionInFlight = errors.New("action already in flight for transaction")
	// ErrFetchInFlight rejects a re-entrant detail fetch.
	ErrFetchInFlight = errors.New("fetch already in flight for transaction")
	// ErrRecipientNotFound aborts an approval whose acting identity matches
	// no recipient entry; no backend call is made and no patch applied.
	ErrRecipientNotFound = errors.New("acting identity is not a recipient")
)

// Outcome is the reconciled result of one action. Confirmed is true when
// the transaction was re-read from the ledger after the mutation; false
// means the value is a presumed optimistic patch.
type Outcome struct {
	Transaction domain.Transaction `json:"transaction"`
	Confirmed   bool               `json:"confirmed"`
}

func (e *Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

// action bundles the per-operation differences behind the shared flow.
type action struct {
	name     string
	precheck func(t domain.Transaction, actor string) error
	mutate   func(ctx context.Context, t domain.Transaction, actor string) error
	patch    func(t *domain.Transaction, actor string, now int64)
	notified func(t domain.Transaction, actor string) []string
}

// Release releases the escrowed funds. For a milestone escrow the ledger
// releases the next scheduled payment; the optimistic patch mirrors that.
func (e *Engine) Release(ctx context.Context, actor, txID string) (Outcome, error) {
	return e.run(ctx, actor, txID, action{
		name: "release",
		mutate: func(ctx context.Context, t domain.Transaction, _ string) error {
			return e.Ledger.Release(ctx, t.ID)
		},
		patch:    patchRelease,
		notified: recipientPrincipals,
	})
}

// Cancel cancels a still-pending escrow.
func (e *Engine) Cancel(ctx context.Context, actor, txID string) (Outcome, error) {
	return e.run(ctx, actor, txID, action{
		name: "cancel",
		mutate: func(ctx context.Context, t domain.Transaction, actor string) error {
			return e.Ledger.Cancel(ctx, senderOf(t, actor), t.ID)
		},
		patch: func(t *domain.Transaction, _ string, now int64) {
			t.Status = domain.StatusCancelled
			t.CancelledAt = &now
		},
		notified: recipientPrincipals,
	})
}

// Refund returns the escrowed funds to the sender.
func (e *Engine) Refund(ctx context.Context, actor, txID string) (Outcome, error) {
	return e.run(ctx, actor, txID, action{
		name: "refund",
		mutate: func(ctx context.Context, t domain.Transaction, actor string) error {
			return e.Ledger.Refund(ctx, senderOf(t, actor), t.ID)
		},
		patch: func(t *domain.Transaction, _ string, now int64) {
			t.Status = domain.StatusRefund
			t.RefundedAt = &now
		},
		notified: recipientPrincipals,
	})
}

// Approve records the acting recipient's approval. The acting identity must
// match a recipient entry; otherwise the action aborts before any backend
// call, since no safe terminal state is known.
func (e *Engine) Approve(ctx context.Context, actor, txID string) (Outcome, error) {
	return e.run(ctx, actor, txID, action{
		name: "approve",
		precheck: func(t domain.Transaction, actor string) error {
			if _, ok := t.FindRecipient(lifecycle.CanonicalIdentity(actor)); !ok {
				return fmt.Errorf("approve %s: %w", t.ID, ErrRecipientNotFound)
			}
			return nil
		},
		mutate: func(ctx context.Context, t domain.Transaction, actor string) error {
			return e.Ledger.Approve(ctx, t.From, t.ID, lifecycle.CanonicalIdentity(actor))
		},
		patch: func(t *domain.Transaction, actor string, now int64) {
			stampRecipient(t, actor, domain.RecipientApproved, now)
		},
		notified: senderPrincipal,
	})
}

// Decline records the acting recipient's refusal. The ledger addresses
// declines by positional index rather than id.
func (e *Engine) Decline(ctx context.Context, actor, txID string) (Outcome, error) {
	return e.run(ctx, actor, txID, action{
		name: "decline",
		mutate: func(ctx context.Context, t domain.Transaction, actor string) error {
			return e.Ledger.Decline(ctx, t.From, t.Index, lifecycle.CanonicalIdentity(actor))
		},
		patch: func(t *domain.Transaction, actor string, now int64) {
			stampRecipient(t, actor, domain.RecipientDeclined, now)
			if allDeclined(*t) {
				t.Status = domain.StatusDeclined
			}
		},
		notified: senderPrincipal,
	})
}

// run executes the shared flow: guard, mutate, notify, re-fetch with retry,
// reconcile. Exactly one error is surfaced per failed logical action.
func (e *Engine) run(ctx context.Context, actor, txID string, a action) (Outcome, error) {
	if err := e.acquire(txID, a.name); err != nil {
		return Outcome{}, err
	}
	defer e.release(txID)

	ctx, cancel := context.WithTimeout(ctx, e.Config.ActionTimeout())
	defer cancel()

	cur, err := e.current(ctx, actor, txID)
	if err != nil {
		return Outcome{}, fmt.Errorf("%s %s: %w", a.name, txID, err)
	}
	if a.precheck != nil {
		if err := a.precheck(cur, actor); err != nil {
			e.audit(ctx, a.name, txID, actor, events.OutcomeFailed, err)
			return Outcome{}, err
		}
	}

	if mutErr := a.mutate(ctx, cur, actor); mutErr != nil {
		// The mutation may still have landed; leave the UI out of the
		// stale pending state but report the failure once.
		out := e.applyPatch(cur, actor, a)
		e.audit(ctx, a.name, txID, actor, events.OutcomePresumed, mutErr)
		return out, fmt.Errorf("%s %s: %w", a.name, txID, mutErr)
	}

	e.notifyAll(ctx, cur, actor, a)

	if fresh, err := e.refetch(ctx, actor, txID); err == nil {
		e.Store.Set(fresh)
		e.audit(ctx, a.name, txID, actor, events.OutcomeConfirmed, nil)
		return Outcome{Transaction: fresh, Confirmed: true}, nil
	} else {
		// Confirmation read failed after the mutation succeeded; resolve
		// silently with the presumed terminal state.
		log.Printf("engine: %s %s: confirmation fetch exhausted: %v", a.name, txID, err)
	}
	out := e.applyPatch(cur, actor, a)
	e.audit(ctx, a.name, txID, actor, events.OutcomePresumed, nil)
	return out, nil
}

func (e *Engine) applyPatch(cur domain.Transaction, actor string, a action) Outcome {
	patched := cur
	a.patch(&patched, actor, e.now().UnixNano())
	e.Store.Set(patched)
	return Outcome{Transaction: patched, Confirmed: false}
}

// current reads the transaction from the store, falling back to a direct
// ledger read for ids not cached yet.
func (e *Engine) current(ctx context.Context, actor, txID string) (domain.Transaction, error) {
	if t, ok := e.Store.Get(txID); ok {
		return t, nil
	}
	raw, err := e.Ledger.Get(ctx, actor, txID)
	if err != nil {
		return domain.Transaction{}, err
	}
	return normalize.Normalize(raw), nil
}

// Fetch re-reads and normalizes one transaction, updating the store. A
// second fetch for the same id while one is outstanding is rejected.
func (e *Engine) Fetch(ctx context.Context, actor, txID string) (domain.Transaction, error) {
	t, err := e.refetch(ctx, actor, txID)
	if err != nil {
		return domain.Transaction{}, err
	}
	e.Store.Set(t)
	return t, nil
}

func (e *Engine) refetch(ctx context.Context, actor, txID string) (domain.Transaction, error) {
	e.mu.Lock()
	if e.fetching[txID] {
		e.mu.Unlock()
		return domain.Transaction{}, fmt.Errorf("fetch %s: %w", txID, ErrFetchInFlight)
	}
	e.fetching[txID] = true
	e.mu.Unlock()
	defer func() {
		e.mu.Lock()
		delete(e.fetching, txID)
		e.mu.Unlock()
	}()

	var fresh domain.Transaction
	err := retry.Do(ctx, e.Config.Retry.Attempts, e.Config.RetryDelay(), func(ctx context.Context) error {
		raw, err := e.Ledger.Get(ctx, actor, txID)
		if err != nil {
			return err
		}
		fresh = normalize.Normalize(raw)
		if err := fresh.Validate(); err != nil {
			log.Printf("engine: fetched %s violates invariants: %v", txID, err)
		}
		return nil
	})
	if err != nil {
		return domain.Transaction{}, err
	}
	return fresh, nil
}

// Sync pulls a page of the actor's transactions, normalizes and dedups
// them, and publishes the batch to the store.
func (e *Engine) Sync(ctx context.Context, actor string, offset, limit int) ([]domain.Transaction, error) {
	raws, err := e.Ledger.List(ctx, actor, offset, limit)
	if err != nil {
		return nil, fmt.Errorf("sync: %w", err)
	}
	batch := normalize.Batch(raws)
	for _, t := range batch {
		e.Store.Set(t)
	}
	return batch, nil
}

func (e *Engine) acquire(txID, name string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if held, ok := e.inflight[txID]; ok {
		return fmt.Errorf("%s while %s in flight for %s: %w", name, held, txID, ErrActionInFlight)
	}
	e.inflight[txID] = name
	return nil
}

func (e *Engine) release(txID string) {
	e.mu.Lock()
	delete(e.inflight, txID)
	e.mu.Unlock()
}

// notifyAll delivers one notification per affected counterparty. Failures
// are logged and never fail the action.
func (e *Engine) notifyAll(ctx context.Context, t domain.Transaction, actor string, a action) {
	for _, p := range a.notified(t, actor) {
		if p == "" {
			continue
		}
		n := notify.Notification{
			Recipient:     p,
			Action:        a.name,
			TransactionID: t.ID,
			Title:         t.Title,
			Actor:         actor,
		}
		if err := e.Notifier.Notify(ctx, n); err != nil {
			log.Printf("engine: notify %s about %s %s: %v", p, a.name, t.ID, err)
		}
	}
}

func (e *Engine) audit(ctx context.Context, action, txID, actor, outcome string, cause error) {
	errText := ""
	if cause != nil {
		errText = cause.Error()
	}
	if err := e.Audit.Append(ctx, action, txID, actor, outcome, errText, nil); err != nil {
		log.Printf("engine: audit %s %s: %v", action, txID, err)
	}
}

// --- helpers ---

func senderOf(t domain.Transaction, actor string) string {
	if t.From != "" {
		return t.From
	}
	return lifecycle.CanonicalIdentity(actor)
}

func recipientPrincipals(t domain.Transaction, _ string) []string {
	out := make([]string, 0, len(t.To))
	for _, r := range t.To {
		out = append(out, r.Principal)
	}
	return out
}

func senderPrincipal(t domain.Transaction, _ string) []string {
	return []string{t.From}
}

func stampRecipient(t *domain.Transaction, actor string, status domain.RecipientStatus, now int64) {
	principal := lifecycle.CanonicalIdentity(actor)
	to := make([]domain.Recipient, len(t.To))
	copy(to, t.To)
	for i := range to {
		if to[i].Principal != principal {
			continue
		}
		to[i].Status = status
		if status == domain.RecipientApproved {
			to[i].ApprovedAt = &now
		} else {
			to[i].DeclinedAt = &now
		}
	}
	t.To = to
}

func allDeclined(t domain.Transaction) bool {
	if len(t.To) == 0 {
		return false
	}
	for _, r := range t.To {
		if r.Status != domain.RecipientDeclined {
			return false
		}
	}
	return true
}

func patchRelease(t *domain.Transaction, _ string, now int64) {
	if t.Kind == domain.KindMilestone && t.Milestone != nil && len(t.Milestone.Milestones) > 0 {
		ms := make([]domain.Milestone, len(t.Milestone.Milestones))
		copy(ms, t.Milestone.Milestones)
		first := ms[0]
		payments := make([]domain.ReleasePayment, len(first.ReleasePayments))
		copy(payments, first.ReleasePayments)
		for i := range payments {
			if payments[i].ReleasedAt == nil {
				payments[i].ReleasedAt = &now
				break
			}
		}
		first.ReleasePayments = payments
		ms[0] = first
		md := *t.Milestone
		md.Milestones = ms
		t.Milestone = &md
		if first.ReleasedCount() == len(payments) && len(payments) > 0 {
			t.Status = domain.StatusReleased
			t.ReleasedAt = &now
		}
		return
	}
	t.Status = domain.StatusReleased
	t.ReleasedAt = &now
}
