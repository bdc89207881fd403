package ledger

import "context"

// Record is one raw backend record, kept untyped because the ledger's wire
// shapes are inconsistent across call sites; internal/wire and
// internal/normalize own the decoding.
type Record = map[string]any

// Ledger is the remote canister surface: five mutations plus paginated and
// single-record reads. Its consensus semantics are assumed correct; it is
// treated as an opaque RPC collaborator.
type Ledger interface {
	List(ctx context.Context, actor string, offset, limit int) ([]Record, error)
	Get(ctx context.Context, actor, txID string) (Record, error)
	Release(ctx context.Context, txID string) error
	Cancel(ctx context.Context, sender, txID string) error
	Refund(ctx context.Context, sender, txID string) error
	Approve(ctx context.Context, sender, txID, recipient string) error
	Decline(ctx context.Context, sender string, txIndex int64, recipient string) error
}
