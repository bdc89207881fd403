package store

import (
	"context"
	"log"
	"sync"

	"escrowline/internal/domain"
	"escrowline/internal/repo"
)

// DB is a Store that persists through the workspace cache database while
// keeping subscriber fan-out in process. Reads come from the repo so the
// CLI sees state written by a running server.
type DB struct {
	Repo repo.Repo

	mu   sync.Mutex
	subs map[int]func(domain.Transaction)
	next int
}

func NewDB(r repo.Repo) *DB {
	return &DB{Repo: r, subs: make(map[int]func(domain.Transaction))}
}

func (s *DB) Get(id string) (domain.Transaction, bool) {
	t, err := s.Repo.GetTransaction(context.Background(), id)
	if err != nil {
		return domain.Transaction{}, false
	}
	return t, true
}

func (s *DB) List() []domain.Transaction {
	out, err := s.Repo.ListTransactions(context.Background())
	if err != nil {
		log.Printf("store: list transactions: %v", err)
		return nil
	}
	return out
}

func (s *DB) Set(tx domain.Transaction) {
	if prev, ok := s.Get(tx.ID); ok && !Admissible(prev, tx) {
		return
	}
	if err := s.Repo.UpsertTransaction(context.Background(), tx); err != nil {
		log.Printf("store: persist transaction %s: %v", tx.ID, err)
		return
	}
	s.mu.Lock()
	subs := make([]func(domain.Transaction), 0, len(s.subs))
	for _, fn := range s.subs {
		subs = append(subs, fn)
	}
	s.mu.Unlock()
	for _, fn := range subs {
		fn(tx)
	}
}

func (s *DB) Subscribe(fn func(domain.Transaction)) (cancel func()) {
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
