package balance

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// PostgresLedger keeps balances in a single table and enforces the
// non-negative invariant with conditional updates inside transactions.
type PostgresLedger struct {
	pool *pgxpool.Pool
}

func NewPostgresLedger(pool *pgxpool.Pool) *PostgresLedger {
	return &PostgresLedger{pool: pool}
}

// EnsureSchema creates the balances table if it does not exist yet.
func (l *PostgresLedger) EnsureSchema(ctx context.Context) error {
	_, err := l.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS balances (
			user_address TEXT PRIMARY KEY,
			amount       NUMERIC(30,10) NOT NULL DEFAULT 0 CHECK (amount >= 0)
		)`)
	return err
}

func (l *PostgresLedger) GetBalance(ctx context.Context, user string) (decimal.Decimal, error) {
	var amount string
	err := l.pool.QueryRow(ctx,
		`SELECT amount::text FROM balances WHERE user_address = $1`, user).Scan(&amount)
	if errors.Is(err, pgx.ErrNoRows) {
		return decimal.Zero, nil
	}
	if err != nil {
		return decimal.Zero, err
	}
	return decimal.NewFromString(amount)
}

// Debit subtracts amount if the user holds at least that much. The
// conditional WHERE makes the check-and-subtract a single atomic statement.
func (l *PostgresLedger) Debit(ctx context.Context, user string, amount decimal.Decimal) (bool, error) {
	if amount.IsNegative() {
		return false, nil
	}
	tag, err := l.pool.Exec(ctx, `
		UPDATE balances SET amount = amount - $2::numeric
		WHERE user_address = $1 AND amount >= $2::numeric`,
		user, amount.String())
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (l *PostgresLedger) Credit(ctx context.Context, user string, amount decimal.Decimal) (bool, error) {
	if amount.IsNegative() {
		return false, nil
	}
	_, err := l.pool.Exec(ctx, `
		INSERT INTO balances (user_address, amount) VALUES ($1, $2::numeric)
		ON CONFLICT (user_address) DO UPDATE SET amount = balances.amount + EXCLUDED.amount`,
		user, amount.String())
	if err != nil {
		return false, err
	}
	return true, nil
}

// Transfer moves amount from one account to another in a single transaction.
func (l *PostgresLedger) Transfer(ctx context.Context, from, to string, amount decimal.Decimal) (bool, error) {
	if amount.IsNegative() {
		return false, nil
	}
	tx, err := l.pool.Begin(ctx)
	if err != nil {
		return false, err
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		UPDATE balances SET amount = amount - $2::numeric
		WHERE user_address = $1 AND amount >= $2::numeric`,
		from, amount.String())
	if err != nil {
		return false, err
	}
	if tag.RowsAffected() != 1 {
		return false, nil
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO balances (user_address, amount) VALUES ($1, $2::numeric)
		ON CONFLICT (user_address) DO UPDATE SET amount = balances.amount + EXCLUDED.amount`,
		to, amount.String())
	if err != nil {
		return false, err
	}

	return true, tx.Commit(ctx)
}
