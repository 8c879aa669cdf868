package postgres

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/xenking/burger-ledger/internal/domain/account"
)

const (
	// Rows are locked in id order so concurrent transfers cannot deadlock.
	lockAccountsSQL = `SELECT id, balance FROM accounts
	WHERE id = ANY($1) ORDER BY id FOR UPDATE`

	adjustBalanceSQL = `UPDATE accounts SET balance = balance + $2 WHERE id = $1`

	upsertAccountSQL = `INSERT INTO accounts (id, balance) VALUES ($1, $2)
	ON CONFLICT (id) DO UPDATE SET balance = EXCLUDED.balance`
)

var _ account.Transferrer = (*AccountRepository)(nil)

// AccountRepository keeps account balances in PostgreSQL.
type AccountRepository struct {
	pool *pgxpool.Pool
}

// NewAccountRepository returns an AccountRepository that uses the given pool.
func NewAccountRepository(pool *pgxpool.Pool) *AccountRepository {
	return &AccountRepository{pool: pool}
}

// Transfer moves amount between two accounts. It joins the transaction in
// ctx when there is one.
func (r *AccountRepository) Transfer(ctx context.Context, from, to account.ID, amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return account.ErrInvalidAmount
	}

	return pgx.BeginFunc(ctx, conn(ctx, r.pool), func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, lockAccountsSQL, []string{string(from), string(to)})
		if err != nil {
			return errors.Wrap(err, "lock accounts")
		}
		balances := make(map[account.ID]decimal.Decimal, 2)
		for rows.Next() {
			var (
				id      string
				balance decimal.Decimal
			)
			if err := rows.Scan(&id, &balance); err != nil {
				rows.Close()
				return errors.Wrap(err, "scan account")
			}
			balances[account.ID(id)] = balance
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return errors.Wrap(err, "iterate accounts")
		}

		src, ok := balances[from]
		if !ok {
			return errors.Wrapf(account.ErrAccountNotFound, "%s", from)
		}
		if _, ok := balances[to]; !ok {
			return errors.Wrapf(account.ErrAccountNotFound, "%s", to)
		}
		if src.LessThan(amount) {
			return account.ErrInsufficientFunds
		}
		if from == to {
			return nil
		}

		if _, err := tx.Exec(ctx, adjustBalanceSQL, string(from), amount.Neg()); err != nil {
			return errors.Wrapf(err, "debit %s", from)
		}
		if _, err := tx.Exec(ctx, adjustBalanceSQL, string(to), amount); err != nil {
			return errors.Wrapf(err, "credit %s", to)
		}
		return nil
	})
}

// Balance returns the balance of id.
func (r *AccountRepository) Balance(ctx context.Context, id account.ID) (decimal.Decimal, error) {
	var balance decimal.Decimal
	err := conn(ctx, r.pool).QueryRow(ctx, `SELECT balance FROM accounts WHERE id = $1`, string(id)).Scan(&balance)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return decimal.Zero, account.ErrAccountNotFound
		}
		return decimal.Zero, errors.Wrapf(err, "get balance of %s", id)
	}
	return balance, nil
}

// Upsert creates id or resets its balance.
func (r *AccountRepository) Upsert(ctx context.Context, id account.ID, balance decimal.Decimal) error {
	if _, err := conn(ctx, r.pool).Exec(ctx, upsertAccountSQL, string(id), balance); err != nil {
		return errors.Wrapf(err, "upsert account %s", id)
	}
	return nil
}
