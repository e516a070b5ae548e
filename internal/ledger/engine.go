package ledger

import (
	"context"
	"errors"
	"time"

	"proledger/internal/logger"
	"proledger/internal/metrics"
)

// Engine implements the credit ledger operations. Every mutating operation is
// one unit of work over the Store; the engine never observes partially
// applied state.
type Engine struct {
	store Store
	now   func() time.Time
}

func NewEngine(store Store) *Engine {
	return &Engine{
		store: store,
		now:   time.Now,
	}
}

// GetOrCreateBalance returns the account's balance, creating it with the
// welcome bonus on first access.
func (e *Engine) GetOrCreateBalance(ctx context.Context, accountID int) (*Balance, error) {
	var bal *Balance
	err := e.store.WithAccount(ctx, accountID, func(tx AccountTx) error {
		b, err := e.ensureBalance(tx, accountID)
		if err != nil {
			return err
		}
		bal = b
		return nil
	})
	if err != nil {
		return nil, err
	}
	return bal, nil
}

// ensureBalance lazily creates the balance with the one-time welcome bonus.
// Callers hold the account lock via tx.
func (e *Engine) ensureBalance(tx AccountTx, accountID int) (*Balance, error) {
	b, err := tx.Balance()
	if err == nil {
		return b, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	now := e.now()
	expiresAt := now.AddDate(0, WelcomeBonusMonths, 0)

	b = &Balance{
		AccountID:      accountID,
		TotalBalance:   WelcomeBonusCredits,
		FreeCredits:    WelcomeBonusCredits,
		LifetimeEarned: WelcomeBonusCredits,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := tx.CreateBalance(b); err != nil {
		return nil, err
	}

	entry := &Entry{
		AccountID:       accountID,
		Kind:            KindBonus,
		CreditClass:     ClassFree,
		Amount:          WelcomeBonusCredits,
		BalanceBefore:   0,
		BalanceAfter:    WelcomeBonusCredits,
		Description:     "Welcome bonus",
		ExpiresAt:       &expiresAt,
		RemainingAmount: WelcomeBonusCredits,
		CreatedAt:       now,
	}
	if err := tx.AppendEntry(entry); err != nil {
		return nil, err
	}

	logger.Info("balance created with welcome bonus",
		"account_id", accountID,
		"credits", WelcomeBonusCredits,
	)
	metrics.RecordCreditsAdded(string(KindBonus), string(ClassFree), WelcomeBonusCredits)

	return b, nil
}

// AddCredits adds an earning entry and grows the matching pool. Free-class
// entries may carry an expiry; paid-class entries must not.
func (e *Engine) AddCredits(ctx context.Context, accountID, amount int, class CreditClass, description string, expiresAt *time.Time, meta Metadata) (*Balance, *Entry, error) {
	if amount <= 0 {
		return nil, nil, ErrInvalidAmount
	}
	if class == ClassPaid && expiresAt != nil {
		return nil, nil, ErrPaidExpiry
	}

	kind := KindBonus
	if class == ClassPaid {
		kind = KindPurchase
	}

	return e.addEntry(ctx, accountID, amount, kind, class, description, expiresAt, meta)
}

// RefundCredits returns credits as a non-expiring paid-class earning entry.
func (e *Engine) RefundCredits(ctx context.Context, accountID, amount int, reason string, meta Metadata) (*Balance, *Entry, error) {
	if amount <= 0 {
		return nil, nil, ErrInvalidAmount
	}

	bal, entry, err := e.addEntry(ctx, accountID, amount, KindRefund, ClassPaid, reason, nil, meta)
	if err != nil {
		return nil, nil, err
	}
	metrics.RecordRefund()
	return bal, entry, nil
}

func (e *Engine) addEntry(ctx context.Context, accountID, amount int, kind EntryKind, class CreditClass, description string, expiresAt *time.Time, meta Metadata) (*Balance, *Entry, error) {
	var (
		bal   *Balance
		entry *Entry
	)

	err := e.store.WithAccount(ctx, accountID, func(tx AccountTx) error {
		b, err := e.ensureBalance(tx, accountID)
		if err != nil {
			return err
		}

		now := e.now()
		balanceBefore := b.TotalBalance

		b.TotalBalance += amount
		b.LifetimeEarned += amount
		if class == ClassFree {
			b.FreeCredits += amount
		} else {
			b.PaidCredits += amount
		}
		if kind == KindPurchase {
			b.LastPurchaseAt = &now
		}
		b.UpdatedAt = now

		if err := tx.UpdateBalance(b); err != nil {
			return err
		}

		en := &Entry{
			AccountID:       accountID,
			Kind:            kind,
			CreditClass:     class,
			Amount:          amount,
			BalanceBefore:   balanceBefore,
			BalanceAfter:    b.TotalBalance,
			Description:     description,
			ExpiresAt:       expiresAt,
			RemainingAmount: amount,
			Metadata:        meta,
			CreatedAt:       now,
		}
		if err := tx.AppendEntry(en); err != nil {
			return err
		}

		bal, entry = b, en
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	logger.Info("credits added",
		"account_id", accountID,
		"amount", amount,
		"kind", kind,
		"class", class,
	)
	metrics.RecordCreditsAdded(string(kind), string(class), amount)

	return bal, entry, nil
}

// SpendCredits deducts credits via FIFO allocation: free lots before paid
// lots, oldest lot first within each class. The whole spend commits or none
// of it does.
func (e *Engine) SpendCredits(ctx context.Context, accountID, amount int, description string, meta Metadata) (*Balance, *Entry, error) {
	if amount <= 0 {
		return nil, nil, ErrInvalidAmount
	}

	var (
		bal   *Balance
		entry *Entry
	)

	err := e.store.WithAccount(ctx, accountID, func(tx AccountTx) error {
		b, err := e.ensureBalance(tx, accountID)
		if err != nil {
			return err
		}

		if b.TotalBalance < amount {
			return &InsufficientCreditsError{Have: b.TotalBalance, Need: amount}
		}

		now := e.now()

		freeLots, err := tx.EarningLots(ClassFree, now)
		if err != nil {
			return err
		}
		paidLots, err := tx.EarningLots(ClassPaid, now)
		if err != nil {
			return err
		}

		// Expired-but-unswept free lots are excluded here, so the
		// allocator may still come up short even though the aggregate
		// balance looked sufficient.
		alloc, err := Allocate(toLots(freeLots), toLots(paidLots), amount)
		if err != nil {
			return err
		}

		for _, d := range alloc.Deductions {
			if err := tx.SetRemaining(d.EntryID, d.NewRemaining); err != nil {
				return err
			}
		}

		balanceBefore := b.TotalBalance
		b.TotalBalance -= amount
		b.FreeCredits -= alloc.FreeSpent
		b.PaidCredits -= alloc.PaidSpent
		b.LifetimeSpent += amount
		b.LastSpendAt = &now
		b.UpdatedAt = now

		if err := tx.UpdateBalance(b); err != nil {
			return err
		}

		spendMeta := Metadata{}
		for k, v := range meta {
			spendMeta[k] = v
		}
		spendMeta["free_spent"] = alloc.FreeSpent
		spendMeta["paid_spent"] = alloc.PaidSpent

		en := &Entry{
			AccountID:     accountID,
			Kind:          KindSpend,
			CreditClass:   alloc.SpendClass(),
			Amount:        -amount,
			BalanceBefore: balanceBefore,
			BalanceAfter:  b.TotalBalance,
			Description:   description,
			Metadata:      spendMeta,
			CreatedAt:     now,
		}
		if err := tx.AppendEntry(en); err != nil {
			return err
		}

		bal, entry = b, en
		return nil
	})
	if err != nil {
		if IsInsufficientCredits(err) {
			metrics.RecordSpendFailure("insufficient_credits")
		} else {
			metrics.RecordSpendFailure("storage")
		}
		return nil, nil, err
	}

	logger.Info("credits spent",
		"account_id", accountID,
		"amount", amount,
		"balance", bal.TotalBalance,
	)
	metrics.RecordSpend(amount)

	return bal, entry, nil
}

// ExpireEntries zeroes every free lot whose expiry has passed, one unit of
// work per account. Re-running with the same now is a no-op.
func (e *Engine) ExpireEntries(ctx context.Context, now time.Time) (*ExpiryResult, error) {
	accountIDs, err := e.store.AccountsWithExpiredLots(ctx, now)
	if err != nil {
		return nil, err
	}

	result := &ExpiryResult{}
	var sweepErrs []error

	for _, accountID := range accountIDs {
		expired, total, err := e.expireAccount(ctx, accountID, now)
		if err != nil {
			logger.Error("expiry failed for account",
				"account_id", accountID,
				"error", err,
			)
			sweepErrs = append(sweepErrs, err)
			continue
		}
		result.ExpiredEntries += expired
		result.TotalExpired += total
	}

	metrics.RecordExpirySweep(result.TotalExpired)

	return result, errors.Join(sweepErrs...)
}

func (e *Engine) expireAccount(ctx context.Context, accountID int, now time.Time) (expired, total int, err error) {
	err = e.store.WithAccount(ctx, accountID, func(tx AccountTx) error {
		expired, total = 0, 0

		b, err := tx.Balance()
		if err != nil {
			return err
		}

		lots, err := tx.ExpiredLots(now)
		if err != nil {
			return err
		}

		for _, lot := range lots {
			amount := lot.RemainingAmount
			if err := tx.SetRemaining(lot.ID, 0); err != nil {
				return err
			}

			balanceBefore := b.TotalBalance
			b.TotalBalance -= amount
			b.FreeCredits -= amount
			b.UpdatedAt = now

			en := &Entry{
				AccountID:     accountID,
				Kind:          KindExpiry,
				CreditClass:   ClassFree,
				Amount:        -amount,
				BalanceBefore: balanceBefore,
				BalanceAfter:  b.TotalBalance,
				Description:   "Expired promotional credits",
				Metadata:      Metadata{"source_entry_id": lot.ID},
				CreatedAt:     now,
			}
			if err := tx.AppendEntry(en); err != nil {
				return err
			}

			expired++
			total += amount
		}

		if len(lots) == 0 {
			return nil
		}
		return tx.UpdateBalance(b)
	})
	if err != nil {
		return 0, 0, err
	}
	return expired, total, nil
}

// History returns the account's ledger entries, newest first.
func (e *Engine) History(ctx context.Context, accountID, limit, offset int) ([]Entry, error) {
	return e.store.History(ctx, accountID, limit, offset)
}

func toLots(entries []Entry) []Lot {
	lots := make([]Lot, 0, len(entries))
	for _, en := range entries {
		lots = append(lots, Lot{
			EntryID:   en.ID,
			Class:     en.CreditClass,
			Remaining: en.RemainingAmount,
		})
	}
	return lots
}
