package ledger

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"proledger/internal/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	logger.Init()
	os.Exit(m.Run())
}

var testNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func newTestEngine(store *memStore) *Engine {
	e := NewEngine(store)
	e.now = func() time.Time { return testNow }
	return e
}

// seedLot plants an earning entry and grows the balance pools directly,
// bypassing the engine, so tests control lot layout precisely.
func seedLot(s *memStore, accountID int, class CreditClass, kind EntryKind, amount int, createdAt time.Time, expiresAt *time.Time) *Entry {
	b, ok := s.balances[accountID]
	if !ok {
		b = &Balance{AccountID: accountID, CreatedAt: createdAt, UpdatedAt: createdAt}
		s.balances[accountID] = b
	}

	en := &Entry{
		ID:              s.nextID,
		AccountID:       accountID,
		Kind:            kind,
		CreditClass:     class,
		Amount:          amount,
		BalanceBefore:   b.TotalBalance,
		BalanceAfter:    b.TotalBalance + amount,
		ExpiresAt:       expiresAt,
		RemainingAmount: amount,
		CreatedAt:       createdAt,
	}
	s.nextID++
	s.entries = append(s.entries, en)

	b.TotalBalance += amount
	b.LifetimeEarned += amount
	if class == ClassFree {
		b.FreeCredits += amount
	} else {
		b.PaidCredits += amount
	}
	return en
}

func assertInvariants(t *testing.T, s *memStore, accountID int, now time.Time) {
	t.Helper()

	b, ok := s.balances[accountID]
	require.True(t, ok)

	assert.Equal(t, b.TotalBalance, b.FreeCredits+b.PaidCredits,
		"total must equal free+paid")

	freeSum, paidSum := 0, 0
	for _, en := range s.entries {
		if en.AccountID != accountID || !en.IsEarning() {
			continue
		}
		if en.CreditClass == ClassFree {
			if en.ExpiresAt == nil || en.ExpiresAt.After(now) {
				freeSum += en.RemainingAmount
			}
		} else {
			paidSum += en.RemainingAmount
		}
	}
	assert.Equal(t, freeSum, b.FreeCredits, "free pool must equal unexpired free lot remainders")
	assert.Equal(t, paidSum, b.PaidCredits, "paid pool must equal paid lot remainders")
}

func TestGetOrCreateBalanceWelcomeBonus(t *testing.T) {
	store := newMemStore()
	engine := newTestEngine(store)
	ctx := context.Background()

	bal, err := engine.GetOrCreateBalance(ctx, 1)
	require.NoError(t, err)

	assert.Equal(t, WelcomeBonusCredits, bal.TotalBalance)
	assert.Equal(t, WelcomeBonusCredits, bal.FreeCredits)
	assert.Equal(t, 0, bal.PaidCredits)
	assert.Equal(t, WelcomeBonusCredits, bal.LifetimeEarned)

	require.Len(t, store.entries, 1)
	entry := store.entries[0]
	assert.Equal(t, KindBonus, entry.Kind)
	assert.Equal(t, ClassFree, entry.CreditClass)
	assert.Equal(t, WelcomeBonusCredits, entry.RemainingAmount)
	require.NotNil(t, entry.ExpiresAt)
	assert.Equal(t, testNow.AddDate(0, WelcomeBonusMonths, 0), *entry.ExpiresAt)

	assertInvariants(t, store, 1, testNow)
}

func TestGetOrCreateBalanceIsIdempotent(t *testing.T) {
	store := newMemStore()
	engine := newTestEngine(store)
	ctx := context.Background()

	first, err := engine.GetOrCreateBalance(ctx, 1)
	require.NoError(t, err)

	second, err := engine.GetOrCreateBalance(ctx, 1)
	require.NoError(t, err)

	assert.Equal(t, first.TotalBalance, second.TotalBalance)
	assert.Len(t, store.entries, 1, "welcome bonus must be granted once")
}

func TestAddCredits(t *testing.T) {
	t.Run("Paid purchase", func(t *testing.T) {
		store := newMemStore()
		engine := newTestEngine(store)

		bal, entry, err := engine.AddCredits(context.Background(), 1, 25, ClassPaid, "Starter package", nil, Metadata{"package_id": "starter"})
		require.NoError(t, err)

		// Welcome bonus (10 free) plus the purchase.
		assert.Equal(t, 35, bal.TotalBalance)
		assert.Equal(t, 25, bal.PaidCredits)
		assert.Equal(t, KindPurchase, entry.Kind)
		assert.Equal(t, 25, entry.RemainingAmount)
		assert.Nil(t, entry.ExpiresAt)
		require.NotNil(t, bal.LastPurchaseAt)

		assertInvariants(t, store, 1, testNow)
	})

	t.Run("Invalid amount", func(t *testing.T) {
		store := newMemStore()
		engine := newTestEngine(store)

		_, _, err := engine.AddCredits(context.Background(), 1, 0, ClassPaid, "nope", nil, nil)
		assert.ErrorIs(t, err, ErrInvalidAmount)
		assert.Empty(t, store.entries, "no I/O on invalid input")
	})

	t.Run("Paid class rejects expiry", func(t *testing.T) {
		store := newMemStore()
		engine := newTestEngine(store)

		expiry := testNow.Add(24 * time.Hour)
		_, _, err := engine.AddCredits(context.Background(), 1, 5, ClassPaid, "nope", &expiry, nil)
		assert.ErrorIs(t, err, ErrPaidExpiry)
	})
}

func TestSpendCreditsFIFO(t *testing.T) {
	store := newMemStore()
	engine := newTestEngine(store)

	lotA := seedLot(store, 1, ClassFree, KindBonus, 5, testNow.Add(-2*time.Hour), nil)
	lotB := seedLot(store, 1, ClassFree, KindBonus, 5, testNow.Add(-1*time.Hour), nil)

	bal, entry, err := engine.SpendCredits(context.Background(), 1, 7, "Claimed lead", nil)
	require.NoError(t, err)

	assert.Equal(t, 0, findEntry(store, lotA.ID).RemainingAmount)
	assert.Equal(t, 3, findEntry(store, lotB.ID).RemainingAmount)
	assert.Equal(t, 3, bal.FreeCredits)
	assert.Equal(t, -7, entry.Amount)
	assert.Equal(t, 10, entry.BalanceBefore)
	assert.Equal(t, 3, entry.BalanceAfter)

	assertInvariants(t, store, 1, testNow)
}

func TestSpendCreditsFreeBeforePaid(t *testing.T) {
	store := newMemStore()
	engine := newTestEngine(store)

	seedLot(store, 1, ClassFree, KindBonus, 2, testNow.Add(-2*time.Hour), nil)
	seedLot(store, 1, ClassPaid, KindPurchase, 10, testNow.Add(-1*time.Hour), nil)

	bal, entry, err := engine.SpendCredits(context.Background(), 1, 5, "Claimed lead", nil)
	require.NoError(t, err)

	assert.Equal(t, 0, bal.FreeCredits)
	assert.Equal(t, 7, bal.PaidCredits)
	assert.Equal(t, ClassPaid, entry.CreditClass)
	assert.Equal(t, 2, entry.Metadata["free_spent"])
	assert.Equal(t, 3, entry.Metadata["paid_spent"])

	assertInvariants(t, store, 1, testNow)
}

func TestSpendCreditsFreePoolOnly(t *testing.T) {
	store := newMemStore()
	engine := newTestEngine(store)

	seedLot(store, 1, ClassFree, KindBonus, 10, testNow.Add(-time.Hour), nil)

	_, entry, err := engine.SpendCredits(context.Background(), 1, 4, "Claimed lead", nil)
	require.NoError(t, err)

	assert.Equal(t, ClassFree, entry.CreditClass)
	assert.Equal(t, 0, entry.Metadata["paid_spent"])
}

func TestSpendCreditsInsufficient(t *testing.T) {
	store := newMemStore()
	engine := newTestEngine(store)

	seedLot(store, 1, ClassFree, KindBonus, 4, testNow.Add(-time.Hour), nil)

	_, _, err := engine.SpendCredits(context.Background(), 1, 5, "Claimed lead", nil)
	require.Error(t, err)

	var insufficient *InsufficientCreditsError
	require.ErrorAs(t, err, &insufficient)
	assert.Equal(t, 4, insufficient.Have)
	assert.Equal(t, 5, insufficient.Need)

	// Nothing changed.
	assert.Equal(t, 4, store.balances[1].TotalBalance)
	require.Len(t, store.entries, 1)
	assert.Equal(t, 4, store.entries[0].RemainingAmount)
	assertInvariants(t, store, 1, testNow)
}

func TestSpendCreditsInvalidAmount(t *testing.T) {
	store := newMemStore()
	engine := newTestEngine(store)

	_, _, err := engine.SpendCredits(context.Background(), 1, -1, "nope", nil)
	assert.ErrorIs(t, err, ErrInvalidAmount)
}

func TestSpendCreditsSkipsExpiredUnsweptLots(t *testing.T) {
	store := newMemStore()
	engine := newTestEngine(store)

	// 5 free credits that expired an hour ago but haven't been swept yet:
	// the aggregate balance still counts them, allocation must not.
	expired := testNow.Add(-time.Hour)
	seedLot(store, 1, ClassFree, KindBonus, 5, testNow.Add(-48*time.Hour), &expired)
	seedLot(store, 1, ClassPaid, KindPurchase, 3, testNow.Add(-time.Hour), nil)

	_, _, err := engine.SpendCredits(context.Background(), 1, 6, "Claimed lead", nil)
	require.Error(t, err)

	var insufficient *InsufficientCreditsError
	require.ErrorAs(t, err, &insufficient)
	assert.Equal(t, 3, insufficient.Have)
}

func TestRefundCredits(t *testing.T) {
	store := newMemStore()
	engine := newTestEngine(store)

	bal, entry, err := engine.RefundCredits(context.Background(), 1, 5, "Claim failed downstream", Metadata{"lead_id": "lead-42"})
	require.NoError(t, err)

	assert.Equal(t, KindRefund, entry.Kind)
	assert.Equal(t, ClassPaid, entry.CreditClass)
	assert.Nil(t, entry.ExpiresAt, "refunds never expire")
	assert.Equal(t, 5, entry.RemainingAmount)
	assert.Equal(t, 5, bal.PaidCredits)

	assertInvariants(t, store, 1, testNow)
}

func TestExpireEntries(t *testing.T) {
	store := newMemStore()
	engine := newTestEngine(store)

	expired := testNow.Add(-time.Minute)
	future := testNow.Add(24 * time.Hour)

	seedLot(store, 1, ClassFree, KindBonus, 5, testNow.Add(-48*time.Hour), &expired)
	seedLot(store, 1, ClassFree, KindBonus, 3, testNow.Add(-24*time.Hour), &future)
	seedLot(store, 2, ClassFree, KindBonus, 7, testNow.Add(-48*time.Hour), &expired)
	seedLot(store, 2, ClassPaid, KindPurchase, 4, testNow.Add(-48*time.Hour), nil)

	result, err := engine.ExpireEntries(context.Background(), testNow)
	require.NoError(t, err)

	assert.Equal(t, 2, result.ExpiredEntries)
	assert.Equal(t, 12, result.TotalExpired)

	assert.Equal(t, 3, store.balances[1].TotalBalance)
	assert.Equal(t, 3, store.balances[1].FreeCredits)
	assert.Equal(t, 4, store.balances[2].TotalBalance)
	assert.Equal(t, 0, store.balances[2].FreeCredits)
	assert.Equal(t, 4, store.balances[2].PaidCredits)

	assertInvariants(t, store, 1, testNow)
	assertInvariants(t, store, 2, testNow)

	// One expiry entry per affected lot.
	expiryCount := 0
	for _, en := range store.entries {
		if en.Kind == KindExpiry {
			expiryCount++
			assert.Negative(t, en.Amount)
		}
	}
	assert.Equal(t, 2, expiryCount)
}

func TestExpireEntriesIdempotent(t *testing.T) {
	store := newMemStore()
	engine := newTestEngine(store)

	expired := testNow.Add(-time.Minute)
	seedLot(store, 1, ClassFree, KindBonus, 5, testNow.Add(-48*time.Hour), &expired)

	first, err := engine.ExpireEntries(context.Background(), testNow)
	require.NoError(t, err)
	assert.Equal(t, 1, first.ExpiredEntries)

	second, err := engine.ExpireEntries(context.Background(), testNow)
	require.NoError(t, err)
	assert.Equal(t, 0, second.ExpiredEntries)
	assert.Equal(t, 0, second.TotalExpired)
}

func TestConcurrentSpendRace(t *testing.T) {
	store := newMemStore()
	engine := newTestEngine(store)

	seedLot(store, 1, ClassPaid, KindPurchase, 5, testNow.Add(-time.Hour), nil)

	var wg sync.WaitGroup
	results := make(chan error, 2)

	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, err := engine.SpendCredits(context.Background(), 1, 5, "Claimed lead", nil)
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	var successes, failures int
	for err := range results {
		if err == nil {
			successes++
		} else {
			require.True(t, IsInsufficientCredits(err))
			failures++
		}
	}

	assert.Equal(t, 1, successes, "exactly one spend must win")
	assert.Equal(t, 1, failures)
	assert.Equal(t, 0, store.balances[1].TotalBalance)
	assertInvariants(t, store, 1, testNow)
}

func TestHistory(t *testing.T) {
	store := newMemStore()
	engine := newTestEngine(store)
	ctx := context.Background()

	_, _, err := engine.AddCredits(ctx, 1, 20, ClassPaid, "Starter package", nil, nil)
	require.NoError(t, err)
	_, _, err = engine.SpendCredits(ctx, 1, 5, "Claimed lead", nil)
	require.NoError(t, err)

	entries, err := engine.History(ctx, 1, 10, 0)
	require.NoError(t, err)

	// Newest first: the spend entry leads, the bonus is last.
	require.Len(t, entries, 3)
	assert.Equal(t, KindSpend, entries[0].Kind)
}

func findEntry(s *memStore, id int64) *Entry {
	for _, en := range s.entries {
		if en.ID == id {
			return en
		}
	}
	return nil
}
