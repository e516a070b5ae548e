package claim

import (
	"context"
	"errors"

	"github.com/jmoiron/sqlx"

	"proledger/internal/db"
)

var ErrAlreadyClaimed = errors.New("lead already claimed by this account")

type Repository interface {
	CreateClaim(ctx context.Context, accountID int, leadID string, costCredits int) (*Claim, error)
	ListByAccount(ctx context.Context, accountID int) ([]Claim, error)
	HasClaim(ctx context.Context, accountID int, leadID string) (bool, error)
}

type PostgresRepository struct {
	db *sqlx.DB
}

func NewRepository(db *sqlx.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) CreateClaim(ctx context.Context, accountID int, leadID string, costCredits int) (*Claim, error) {
	cl := &Claim{}
	err := r.db.QueryRowxContext(ctx, `
		INSERT INTO lead_claims (account_id, lead_id, cost_credits)
		VALUES ($1, $2, $3)
		RETURNING id, account_id, lead_id, cost_credits, created_at
	`, accountID, leadID, costCredits).StructScan(cl)
	if err != nil {
		return nil, err
	}
	return cl, nil
}

func (r *PostgresRepository) ListByAccount(ctx context.Context, accountID int) ([]Claim, error) {
	claims := []Claim{}
	err := r.db.SelectContext(ctx, &claims, `
		SELECT * FROM lead_claims
		WHERE account_id = $1
		ORDER BY created_at DESC
	`, accountID)
	if err != nil {
		return nil, err
	}
	return claims, nil
}

func (r *PostgresRepository) HasClaim(ctx context.Context, accountID int, leadID string) (bool, error) {
	return db.Exists(ctx, r.db,
		`SELECT EXISTS(SELECT 1 FROM lead_claims WHERE account_id = $1 AND lead_id = $2)`,
		accountID, leadID)
}
