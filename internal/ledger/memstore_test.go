package ledger

import (
	"context"
	"sort"
	"sync"
	"time"
)

// memStore is an in-memory Store used by engine tests. A single mutex stands
// in for the per-account row lock; unit-of-work semantics are real: writes
// are staged on the tx and applied only when fn succeeds.
type memStore struct {
	mu       sync.Mutex
	balances map[int]*Balance
	entries  []*Entry
	nextID   int64
}

func newMemStore() *memStore {
	return &memStore{
		balances: make(map[int]*Balance),
		nextID:   1,
	}
}

func (s *memStore) GetBalance(_ context.Context, accountID int) (*Balance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.balances[accountID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *b
	return &cp, nil
}

func (s *memStore) History(_ context.Context, accountID, limit, offset int) ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if limit <= 0 {
		limit = 50
	}

	var out []Entry
	for i := len(s.entries) - 1; i >= 0; i-- {
		if s.entries[i].AccountID == accountID {
			out = append(out, *s.entries[i])
		}
	}
	if offset >= len(out) {
		return []Entry{}, nil
	}
	out = out[offset:]
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *memStore) AccountsWithExpiredLots(_ context.Context, now time.Time) ([]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	seen := map[int]bool{}
	for _, en := range s.entries {
		if en.CreditClass == ClassFree && en.RemainingAmount > 0 &&
			en.ExpiresAt != nil && !en.ExpiresAt.After(now) {
			seen[en.AccountID] = true
		}
	}

	ids := make([]int, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids, nil
}

func (s *memStore) WithAccount(ctx context.Context, accountID int, fn func(tx AccountTx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &memTx{
		store:     s,
		accountID: accountID,
		remaining: make(map[int64]int),
	}
	if err := fn(tx); err != nil {
		return err
	}

	tx.commit()
	return nil
}

type memTx struct {
	store     *memStore
	accountID int

	balance   *Balance // staged create/update
	created   bool
	remaining map[int64]int // staged lot decrements
	appended  []*Entry
}

func (t *memTx) Balance() (*Balance, error) {
	if t.balance != nil {
		cp := *t.balance
		return &cp, nil
	}
	b, ok := t.store.balances[t.accountID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *b
	return &cp, nil
}

func (t *memTx) CreateBalance(b *Balance) error {
	cp := *b
	t.balance = &cp
	t.created = true
	return nil
}

func (t *memTx) UpdateBalance(b *Balance) error {
	cp := *b
	t.balance = &cp
	return nil
}

func (t *memTx) lots(filter func(*Entry) bool) []Entry {
	var out []Entry
	for _, en := range t.store.entries {
		if en.AccountID != t.accountID {
			continue
		}
		cp := *en
		if staged, ok := t.remaining[en.ID]; ok {
			cp.RemainingAmount = staged
		}
		if filter(&cp) {
			out = append(out, cp)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

func (t *memTx) EarningLots(class CreditClass, now time.Time) ([]Entry, error) {
	return t.lots(func(en *Entry) bool {
		return en.IsEarning() && en.CreditClass == class && en.RemainingAmount > 0 &&
			(en.ExpiresAt == nil || en.ExpiresAt.After(now))
	}), nil
}

func (t *memTx) ExpiredLots(now time.Time) ([]Entry, error) {
	return t.lots(func(en *Entry) bool {
		return en.CreditClass == ClassFree && en.RemainingAmount > 0 &&
			en.ExpiresAt != nil && !en.ExpiresAt.After(now)
	}), nil
}

func (t *memTx) SetRemaining(entryID int64, remaining int) error {
	t.remaining[entryID] = remaining
	return nil
}

func (t *memTx) AppendEntry(e *Entry) error {
	cp := *e
	cp.ID = t.store.nextID
	t.store.nextID++
	e.ID = cp.ID
	t.appended = append(t.appended, &cp)
	return nil
}

func (t *memTx) commit() {
	if t.balance != nil {
		cp := *t.balance
		t.store.balances[t.accountID] = &cp
	}
	for id, remaining := range t.remaining {
		for _, en := range t.store.entries {
			if en.ID == id {
				en.RemainingAmount = remaining
			}
		}
	}
	t.store.entries = append(t.store.entries, t.appended...)
}
