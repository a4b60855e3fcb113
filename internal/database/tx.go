package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

// Tx is the handle repositories run statements on.
// Both *sqlx.Tx and *sqlx.DB satisfy it; a nil Tx means "no transaction".
type Tx interface {
	sqlx.ExtContext
}

// TxManager runs a function inside one database transaction
type TxManager interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

// SQLTxManager is the sqlx-backed TxManager
type SQLTxManager struct {
	db *sqlx.DB
}

// NewTxManager creates a new SQLTxManager
func NewTxManager(db *sqlx.DB) *SQLTxManager {
	return &SQLTxManager{db: db}
}

// WithinTx begins a transaction, runs fn and commits when fn returns nil.
// Any error from fn rolls the transaction back and is returned unchanged.
func (m *SQLTxManager) WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	tx, err := m.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(ctx, tx); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// pick returns tx when set, otherwise the pool
func pick(db *sqlx.DB, tx Tx) sqlx.ExtContext {
	if tx != nil {
		return tx
	}
	return db
}

const uniqueViolation = "23505"

// IsUniqueViolation reports whether err is a unique-constraint violation
// from either PostgreSQL driver
func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == uniqueViolation
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code) == uniqueViolation
	}
	return false
}
