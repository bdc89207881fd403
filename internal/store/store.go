package store

import (
	"sort"
	"sync"

	"escrowline/internal/domain"
)

// Store is the application state store for normalized transactions. The
// orchestrator and normalizer are its only writers; everything else reads.
// Set is write-serialized: one logical mutation in, one derived read out.
type Store interface {
	Get(id string) (domain.Transaction, bool)
	List() []domain.Transaction
	Set(tx domain.Transaction)
	Subscribe(fn func(domain.Transaction)) (cancel func())
}

// Memory is the in-process Store.
type Memory struct {
	mu   sync.RWMutex
	txs  map[string]domain.Transaction
	subs map[int]func(domain.Transaction)
	next int
}

func NewMemory() *Memory {
	return &Memory{
		txs:  make(map[string]domain.Transaction),
		subs: make(map[int]func(domain.Transaction)),
	}
}

func (s *Memory) Get(id string) (domain.Transaction, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.txs[id]
	return t, ok
}

func (s *Memory) List() []domain.Transaction {
	s.mu.RLock()
	out := make([]domain.Transaction, 0, len(s.txs))
	for _, t := range s.txs {
		out = append(out, t)
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt > out[j].CreatedAt })
	return out
}

// Set replaces the stored value for the transaction's id. A write that
// would drop an already-confirmed or terminal record back to Pending is
// ignored: status never revisits Pending once past it.
func (s *Memory) Set(tx domain.Transaction) {
	s.mu.Lock()
	if !Admissible(s.txs[tx.ID], tx) {
		s.mu.Unlock()
		return
	}
	s.txs[tx.ID] = tx
	subs := make([]func(domain.Transaction), 0, len(s.subs))
	for _, fn := range s.subs {
		subs = append(subs, fn)
	}
	s.mu.Unlock()
	for _, fn := range subs {
		fn(tx)
	}
}

func (s *Memory) Subscribe(fn func(domain.Transaction)) (cancel func()) {
	s.mu.Lock()
	id := s.next
	s.next++
	s.subs[id] = fn
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}
}

// Admissible reports whether next may replace prev for the same id.
func Admissible(prev, next domain.Transaction) bool {
	if prev.ID == "" {
		return true
	}
	if next.Status == domain.StatusPending && (prev.Status == domain.StatusConfirmed || prev.Status.Terminal()) {
		return false
	}
	return true
}
