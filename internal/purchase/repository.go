package purchase

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"
)

var (
	ErrPurchaseNotFound = errors.New("purchase not found")
	// ErrNotPending means the status transition lost to an earlier one.
	ErrNotPending   = errors.New("purchase is not pending")
	ErrNotCompleted = errors.New("purchase is not completed")
)

type Repository interface {
	Create(ctx context.Context, accountID int, pkg Package, paymentRef string) (*Purchase, error)
	GetByPaymentRef(ctx context.Context, paymentRef string) (*Purchase, error)
	ListByAccount(ctx context.Context, accountID int) ([]Purchase, error)
	CompletePending(ctx context.Context, paymentRef string) (*Purchase, error)
	FailPending(ctx context.Context, paymentRef string) (*Purchase, error)
	RevertToPending(ctx context.Context, paymentRef string) error
	RefundCompleted(ctx context.Context, paymentRef string) (*Purchase, error)
}

type PostgresRepository struct {
	db *sqlx.DB
}

func NewRepository(db *sqlx.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, accountID int, pkg Package, paymentRef string) (*Purchase, error) {
	p := &Purchase{}
	err := r.db.QueryRowxContext(ctx, `
		INSERT INTO purchases (account_id, package_id, credits, price_cents, status, payment_ref)
		VALUES ($1, $2, $3, $4, 'pending', $5)
		RETURNING id, account_id, package_id, credits, price_cents, status, payment_ref, created_at, updated_at
	`, accountID, pkg.ID, pkg.Credits, pkg.PriceCents, paymentRef).StructScan(p)
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (r *PostgresRepository) GetByPaymentRef(ctx context.Context, paymentRef string) (*Purchase, error) {
	p := &Purchase{}
	err := r.db.GetContext(ctx, p, `SELECT * FROM purchases WHERE payment_ref = $1`, paymentRef)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrPurchaseNotFound
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (r *PostgresRepository) ListByAccount(ctx context.Context, accountID int) ([]Purchase, error) {
	purchases := []Purchase{}
	err := r.db.SelectContext(ctx, &purchases, `
		SELECT * FROM purchases
		WHERE account_id = $1
		ORDER BY created_at DESC
	`, accountID)
	if err != nil {
		return nil, err
	}
	return purchases, nil
}

// CompletePending atomically claims the pending -> completed transition.
// Exactly one caller wins under duplicate webhook delivery; losers get
// ErrNotPending and must inspect the current status.
func (r *PostgresRepository) CompletePending(ctx context.Context, paymentRef string) (*Purchase, error) {
	return r.transition(ctx, paymentRef, StatusPending, StatusCompleted)
}

func (r *PostgresRepository) FailPending(ctx context.Context, paymentRef string) (*Purchase, error) {
	return r.transition(ctx, paymentRef, StatusPending, StatusFailed)
}

func (r *PostgresRepository) RefundCompleted(ctx context.Context, paymentRef string) (*Purchase, error) {
	p, err := r.transition(ctx, paymentRef, StatusCompleted, StatusRefunded)
	if errors.Is(err, ErrNotPending) {
		return nil, ErrNotCompleted
	}
	return p, err
}

// RevertToPending undoes a claimed completion whose crediting failed, so the
// next webhook retry can run the whole unit again.
func (r *PostgresRepository) RevertToPending(ctx context.Context, paymentRef string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE purchases
		SET status = 'pending', updated_at = NOW()
		WHERE payment_ref = $1 AND status = 'completed'
	`, paymentRef)
	return err
}

func (r *PostgresRepository) transition(ctx context.Context, paymentRef string, from, to Status) (*Purchase, error) {
	p := &Purchase{}
	err := r.db.QueryRowxContext(ctx, `
		UPDATE purchases
		SET status = $1, updated_at = NOW()
		WHERE payment_ref = $2 AND status = $3
		RETURNING id, account_id, package_id, credits, price_cents, status, payment_ref, created_at, updated_at
	`, to, paymentRef, from).StructScan(p)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotPending
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}
