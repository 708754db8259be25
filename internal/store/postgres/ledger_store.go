package postgres

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/lotterykeeper/internal/domain"
)

// LedgerStore implements domain.Ledger on the accounts table. Entries are
// credited to the house account; Transfer moves funds out of it in a single
// transaction so a failed payout leaves every balance untouched.
type LedgerStore struct {
	pool  *pgxpool.Pool
	house common.Address
}

// NewLedgerStore creates a ledger paying out of house.
func NewLedgerStore(pool *pgxpool.Pool, house common.Address) *LedgerStore {
	return &LedgerStore{pool: pool, house: house}
}

// House returns the account entries are credited to.
func (s *LedgerStore) House() common.Address {
	return s.house
}

// Credit adds amount to account.
func (s *LedgerStore) Credit(ctx context.Context, account common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return fmt.Errorf("postgres: invalid credit amount %v", amount)
	}
	err := withTx(ctx, s.pool, func(tx pgx.Tx) error {
		if err := addBalance(ctx, tx, account, amount); err != nil {
			return err
		}
		return recordLedger(ctx, tx, "credit", account, nil, amount)
	})
	if err != nil {
		return fmt.Errorf("postgres: credit %s: %w", account.Hex(), err)
	}
	return nil
}

// Transfer moves amount from the house account to to. The house row is
// locked for the duration of the transaction.
func (s *LedgerStore) Transfer(ctx context.Context, to common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return fmt.Errorf("postgres: invalid transfer amount %v", amount)
	}
	err := withTx(ctx, s.pool, func(tx pgx.Tx) error {
		var raw string
		err := tx.QueryRow(ctx,
			`SELECT balance::text FROM accounts WHERE address = $1 FOR UPDATE`, s.house.Hex(),
		).Scan(&raw)
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("house account %s: %w", s.house.Hex(), domain.ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("lock house account: %w", err)
		}
		house, err := parseNumeric(raw)
		if err != nil {
			return err
		}
		if house.Cmp(amount) < 0 {
			return fmt.Errorf("house balance %s below %s", house, amount)
		}

		var frozen bool
		err = tx.QueryRow(ctx,
			`SELECT frozen FROM accounts WHERE address = $1`, to.Hex(),
		).Scan(&frozen)
		if err != nil && !errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("read account %s: %w", to.Hex(), err)
		}
		if frozen {
			return fmt.Errorf("account %s is frozen", to.Hex())
		}

		if _, err := tx.Exec(ctx,
			`UPDATE accounts SET balance = balance - $2::numeric, updated_at = NOW() WHERE address = $1`,
			s.house.Hex(), numeric(amount),
		); err != nil {
			return fmt.Errorf("debit house: %w", err)
		}
		if err := addBalance(ctx, tx, to, amount); err != nil {
			return err
		}
		return recordLedger(ctx, tx, "payout", to, &s.house, amount)
	})
	if err != nil {
		return fmt.Errorf("postgres: transfer to %s: %w", to.Hex(), err)
	}
	return nil
}

// Balance returns the balance of account; unknown accounts hold zero.
func (s *LedgerStore) Balance(ctx context.Context, account common.Address) (*big.Int, error) {
	var raw string
	err := s.pool.QueryRow(ctx,
		`SELECT balance::text FROM accounts WHERE address = $1`, account.Hex(),
	).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return new(big.Int), nil
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: balance of %s: %w", account.Hex(), err)
	}
	return parseNumeric(raw)
}

// SetFrozen marks account so that transfers to it fail.
func (s *LedgerStore) SetFrozen(ctx context.Context, account common.Address, frozen bool) error {
	const query = `
		INSERT INTO accounts (address, frozen) VALUES ($1, $2)
		ON CONFLICT (address) DO UPDATE SET frozen = EXCLUDED.frozen, updated_at = NOW()`
	if _, err := s.pool.Exec(ctx, query, account.Hex(), frozen); err != nil {
		return fmt.Errorf("postgres: set frozen %s: %w", account.Hex(), err)
	}
	return nil
}

func addBalance(ctx context.Context, tx pgx.Tx, account common.Address, amount *big.Int) error {
	const query = `
		INSERT INTO accounts (address, balance) VALUES ($1, $2::numeric)
		ON CONFLICT (address) DO UPDATE
		SET balance = accounts.balance + EXCLUDED.balance, updated_at = NOW()`
	if _, err := tx.Exec(ctx, query, account.Hex(), numeric(amount)); err != nil {
		return fmt.Errorf("credit %s: %w", account.Hex(), err)
	}
	return nil
}

func recordLedger(ctx context.Context, tx pgx.Tx, kind string, account common.Address, counterparty *common.Address, amount *big.Int) error {
	var cp *string
	if counterparty != nil {
		h := counterparty.Hex()
		cp = &h
	}
	if _, err := tx.Exec(ctx,
		`INSERT INTO ledger_entries (kind, account, counterparty, amount) VALUES ($1, $2, $3, $4::numeric)`,
		kind, account.Hex(), cp, numeric(amount),
	); err != nil {
		return fmt.Errorf("record %s ledger entry: %w", kind, err)
	}
	return nil
}

var _ domain.Ledger = (*LedgerStore)(nil)
