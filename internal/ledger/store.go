package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

// Store owns the physical representation of balances and ledger entries.
// WithAccount is the atomic unit of work: everything done through the
// AccountTx lands together or not at all, serialized per account.
type Store interface {
	GetBalance(ctx context.Context, accountID int) (*Balance, error)
	History(ctx context.Context, accountID, limit, offset int) ([]Entry, error)
	AccountsWithExpiredLots(ctx context.Context, now time.Time) ([]int, error)
	WithAccount(ctx context.Context, accountID int, fn func(tx AccountTx) error) error
}

// AccountTx is the view of one account inside a unit of work. Balance takes
// the per-account lock; the other methods assume it is held.
type AccountTx interface {
	Balance() (*Balance, error)
	CreateBalance(b *Balance) error
	UpdateBalance(b *Balance) error
	EarningLots(class CreditClass, now time.Time) ([]Entry, error)
	ExpiredLots(now time.Time) ([]Entry, error)
	SetRemaining(entryID int64, remaining int) error
	AppendEntry(e *Entry) error
}

const (
	maxTxAttempts  = 3
	retryBaseDelay = 25 * time.Millisecond
)

type PostgresStore struct {
	db *sqlx.DB
}

func NewStore(db *sqlx.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) GetBalance(ctx context.Context, accountID int) (*Balance, error) {
	b := &Balance{}
	err := s.db.GetContext(ctx, b, `SELECT * FROM balances WHERE account_id = $1`, accountID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return b, nil
}

func (s *PostgresStore) History(ctx context.Context, accountID, limit, offset int) ([]Entry, error) {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	entries := []Entry{}
	err := s.db.SelectContext(ctx, &entries,
		`SELECT * FROM ledger_entries WHERE account_id = $1 ORDER BY created_at DESC, id DESC LIMIT $2 OFFSET $3`,
		accountID, limit, offset)
	if err != nil {
		return nil, err
	}

	return entries, nil
}

func (s *PostgresStore) AccountsWithExpiredLots(ctx context.Context, now time.Time) ([]int, error) {
	ids := []int{}
	err := s.db.SelectContext(ctx, &ids, `
		SELECT DISTINCT account_id
		FROM ledger_entries
		WHERE credit_class = 'free'
		  AND remaining_amount > 0
		  AND expires_at IS NOT NULL
		  AND expires_at <= $1
		ORDER BY account_id
	`, now)
	if err != nil {
		return nil, err
	}
	return ids, nil
}

// WithAccount runs fn inside a transaction. Per-account serialization comes
// from the row lock taken by accountTx.Balance (SELECT ... FOR UPDATE), so
// concurrent operations on one account block each other while different
// accounts proceed in parallel. Serialization conflicts and the
// first-access insert race are retried with backoff up to maxTxAttempts.
func (s *PostgresStore) WithAccount(ctx context.Context, accountID int, fn func(tx AccountTx) error) error {
	var lastErr error

	for attempt := 0; attempt < maxTxAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(retryBaseDelay << (attempt - 1)):
			}
		}

		err := s.runTx(ctx, accountID, fn)
		if err == nil {
			return nil
		}
		if !isRetryable(err) {
			return err
		}
		lastErr = err
	}

	return fmt.Errorf("%w: gave up after %d attempts: %v", ErrConflict, maxTxAttempts, lastErr)
}

func (s *PostgresStore) runTx(ctx context.Context, accountID int, fn func(tx AccountTx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := fn(&accountTx{ctx: ctx, tx: tx, accountID: accountID}); err != nil {
		return err
	}

	return tx.Commit()
}

// isRetryable covers serialization failures, deadlocks and the duplicate-key
// race when two transactions lazily create the same balance row.
func isRetryable(err error) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return false
	}
	switch pqErr.Code {
	case "40001", "40P01", "23505":
		return true
	}
	return false
}

type accountTx struct {
	ctx       context.Context
	tx        *sqlx.Tx
	accountID int
}

func (t *accountTx) Balance() (*Balance, error) {
	b := &Balance{}
	err := t.tx.QueryRowxContext(t.ctx,
		`SELECT * FROM balances WHERE account_id = $1 FOR UPDATE`,
		t.accountID,
	).StructScan(b)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return b, nil
}

func (t *accountTx) CreateBalance(b *Balance) error {
	_, err := t.tx.ExecContext(t.ctx, `
		INSERT INTO balances (account_id, total_balance, free_credits, paid_credits,
		                      lifetime_earned, lifetime_spent, last_purchase_at, last_spend_at,
		                      created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, b.AccountID, b.TotalBalance, b.FreeCredits, b.PaidCredits,
		b.LifetimeEarned, b.LifetimeSpent, b.LastPurchaseAt, b.LastSpendAt,
		b.CreatedAt, b.UpdatedAt)
	return err
}

func (t *accountTx) UpdateBalance(b *Balance) error {
	_, err := t.tx.ExecContext(t.ctx, `
		UPDATE balances
		SET total_balance = $1, free_credits = $2, paid_credits = $3,
		    lifetime_earned = $4, lifetime_spent = $5,
		    last_purchase_at = $6, last_spend_at = $7, updated_at = $8
		WHERE account_id = $9
	`, b.TotalBalance, b.FreeCredits, b.PaidCredits,
		b.LifetimeEarned, b.LifetimeSpent,
		b.LastPurchaseAt, b.LastSpendAt, b.UpdatedAt, b.AccountID)
	return err
}

func (t *accountTx) EarningLots(class CreditClass, now time.Time) ([]Entry, error) {
	entries := []Entry{}
	err := t.tx.SelectContext(t.ctx, &entries,
		`SELECT * FROM ledger_entries WHERE account_id = $1 AND credit_class = $2 AND kind IN ('bonus', 'purchase', 'refund') AND remaining_amount > 0 AND (expires_at IS NULL OR expires_at > $3) ORDER BY created_at, id`,
		t.accountID, class, now)
	if err != nil {
		return nil, err
	}
	return entries, nil
}

func (t *accountTx) ExpiredLots(now time.Time) ([]Entry, error) {
	entries := []Entry{}
	err := t.tx.SelectContext(t.ctx, &entries,
		`SELECT * FROM ledger_entries WHERE account_id = $1 AND credit_class = 'free' AND remaining_amount > 0 AND expires_at IS NOT NULL AND expires_at <= $2 ORDER BY created_at, id`,
		t.accountID, now)
	if err != nil {
		return nil, err
	}
	return entries, nil
}

func (t *accountTx) SetRemaining(entryID int64, remaining int) error {
	_, err := t.tx.ExecContext(t.ctx,
		`UPDATE ledger_entries SET remaining_amount = $1 WHERE id = $2`,
		remaining, entryID)
	return err
}

func (t *accountTx) AppendEntry(e *Entry) error {
	return t.tx.QueryRowxContext(t.ctx, `
		INSERT INTO ledger_entries (account_id, kind, credit_class, amount,
		                            balance_before, balance_after, description,
		                            expires_at, remaining_amount, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id
	`, e.AccountID, e.Kind, e.CreditClass, e.Amount,
		e.BalanceBefore, e.BalanceAfter, e.Description,
		e.ExpiresAt, e.RemainingAmount, e.Metadata, e.CreatedAt).Scan(&e.ID)
}
