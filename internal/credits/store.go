package credits

import (
	"context"
	"sort"
	"sync"
)

// Store persists balances and the ledger. Debit never takes a balance below
// zero and never applies a partial amount.
type Store interface {
	Balance(ctx context.Context, orgID string) (Balance, error)
	Debit(ctx context.Context, e Entry) (*Transaction, error)
	Grant(ctx context.Context, e Entry) (*Transaction, error)
	Ledger(ctx context.Context, orgID string, limit int) ([]Transaction, error)
}

// MemoryStore keeps balances in process.
type MemoryStore struct {
	mu       sync.Mutex
	balances map[string]Balance
	ledger   []Transaction
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{balances: make(map[string]Balance)}
}

func (s *MemoryStore) Balance(_ context.Context, orgID string) (Balance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.balances[orgID]
	if !ok {
		return Balance{OrgID: orgID}, nil
	}
	return b, nil
}

func (s *MemoryStore) Debit(_ context.Context, e Entry) (*Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b := s.balances[e.OrgID]
	if b.Balance < e.Amount {
		return nil, ErrInsufficientCredits
	}
	b.OrgID = e.OrgID
	b.Balance -= e.Amount
	b.UpdatedAt = e.CreatedAt
	s.balances[e.OrgID] = b
	return s.append(e, KindDebit, -e.Amount, b.Balance), nil
}

func (s *MemoryStore) Grant(_ context.Context, e Entry) (*Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b := s.balances[e.OrgID]
	b.OrgID = e.OrgID
	b.Balance += e.Amount
	b.UpdatedAt = e.CreatedAt
	s.balances[e.OrgID] = b
	return s.append(e, KindGrant, e.Amount, b.Balance), nil
}

func (s *MemoryStore) Ledger(_ context.Context, orgID string, limit int) ([]Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Transaction
	for _, tx := range s.ledger {
		if tx.OrgID == orgID {
			out = append(out, tx)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// append must be called with mu held.
func (s *MemoryStore) append(e Entry, kind Kind, amount, after int) *Transaction {
	tx := Transaction{
		ID:            e.ID,
		OrgID:         e.OrgID,
		Amount:        amount,
		BalanceAfter:  after,
		Kind:          kind,
		ReferenceType: e.Reference.Type,
		ReferenceID:   e.Reference.ID,
		CreatedAt:     e.CreatedAt,
		CreatedBy:     e.CreatedBy,
	}
	s.ledger = append(s.ledger, tx)
	return &tx
}
