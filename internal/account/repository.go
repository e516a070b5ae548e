package account

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"proledger/internal/db"
)

var ErrAccountNotFound = errors.New("account not found")

type Repository interface {
	Create(ctx context.Context, name, email, passwordHash, role string) (*Account, error)
	FindByEmail(ctx context.Context, email string) (*Account, error)
	FindByID(ctx context.Context, id int) (*Account, error)
	EmailExists(ctx context.Context, email string) (bool, error)
}

type PostgresRepository struct {
	db *sqlx.DB
}

func NewRepository(db *sqlx.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, name, email, passwordHash, role string) (*Account, error) {
	a := &Account{}
	err := r.db.QueryRowxContext(ctx, `
		INSERT INTO accounts (name, email, password_hash, role)
		VALUES ($1, $2, $3, $4)
		RETURNING id, name, email, password_hash, role, created_at, updated_at
	`, name, email, passwordHash, role).StructScan(a)
	if err != nil {
		return nil, err
	}
	return a, nil
}

func (r *PostgresRepository) FindByEmail(ctx context.Context, email string) (*Account, error) {
	a := &Account{}
	err := r.db.GetContext(ctx, a, `SELECT * FROM accounts WHERE email = $1`, email)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrAccountNotFound
	}
	if err != nil {
		return nil, err
	}
	return a, nil
}

func (r *PostgresRepository) FindByID(ctx context.Context, id int) (*Account, error) {
	a := &Account{}
	err := r.db.GetContext(ctx, a, `SELECT * FROM accounts WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrAccountNotFound
	}
	if err != nil {
		return nil, err
	}
	return a, nil
}

func (r *PostgresRepository) EmailExists(ctx context.Context, email string) (bool, error) {
	return db.Exists(ctx, r.db,
		`SELECT EXISTS(SELECT 1 FROM accounts WHERE email = $1)`, email)
}
