package postgres

import (
	"context"
	"errors"
	"fmt"

	"credit-mint-engine/internal/core/domain"

	"github.com/jackc/pgx/v5"
)

const walletColumns = `owner_id, balance, locked_balance, version, created_at, updated_at`

// WalletRepo implements ports.WalletRepository. Every mutation is one
// conditional UPDATE; a failed precondition matches no row and returns nil.
type WalletRepo struct {
	pool Pool
}

// NewWalletRepo creates a new WalletRepo.
func NewWalletRepo(pool Pool) *WalletRepo {
	return &WalletRepo{pool: pool}
}

// Ensure creates the wallet if missing and returns the current row.
func (r *WalletRepo) Ensure(ctx context.Context, ownerID string, initialBalance int64) (*domain.Wallet, error) {
	query := `INSERT INTO credit_wallets (owner_id, balance, locked_balance, version, created_at, updated_at)
		VALUES ($1, $2, 0, 0, NOW(), NOW())
		ON CONFLICT (owner_id) DO NOTHING`

	if _, err := r.pool.Exec(ctx, query, ownerID, initialBalance); err != nil {
		return nil, fmt.Errorf("ensure wallet: %w", err)
	}

	w, err := r.Get(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	if w == nil {
		return nil, fmt.Errorf("ensure wallet: row for %s vanished", ownerID)
	}
	return w, nil
}

// Get fetches a wallet by owner. Returns nil, nil if absent.
func (r *WalletRepo) Get(ctx context.Context, ownerID string) (*domain.Wallet, error) {
	query := `SELECT ` + walletColumns + ` FROM credit_wallets WHERE owner_id = $1`
	return scanWallet(r.pool.QueryRow(ctx, query, ownerID), "get wallet")
}

// Lock reserves amount: balance -= amount, locked += amount, only if balance >= amount.
func (r *WalletRepo) Lock(ctx context.Context, ownerID string, amount int64) (*domain.Wallet, error) {
	query := `UPDATE credit_wallets
		SET balance = balance - $2, locked_balance = locked_balance + $2, version = version + 1, updated_at = NOW()
		WHERE owner_id = $1 AND balance >= $2
		RETURNING ` + walletColumns
	return scanWallet(r.pool.QueryRow(ctx, query, ownerID, amount), "lock wallet")
}

// Settle consumes reserved credits: locked -= amount, only if locked >= amount.
func (r *WalletRepo) Settle(ctx context.Context, ownerID string, amount int64) (*domain.Wallet, error) {
	query := `UPDATE credit_wallets
		SET locked_balance = locked_balance - $2, version = version + 1, updated_at = NOW()
		WHERE owner_id = $1 AND locked_balance >= $2
		RETURNING ` + walletColumns
	return scanWallet(r.pool.QueryRow(ctx, query, ownerID, amount), "settle wallet")
}

// Release returns reserved credits: balance += amount, locked -= amount, only if locked >= amount.
func (r *WalletRepo) Release(ctx context.Context, ownerID string, amount int64) (*domain.Wallet, error) {
	query := `UPDATE credit_wallets
		SET balance = balance + $2, locked_balance = locked_balance - $2, version = version + 1, updated_at = NOW()
		WHERE owner_id = $1 AND locked_balance >= $2
		RETURNING ` + walletColumns
	return scanWallet(r.pool.QueryRow(ctx, query, ownerID, amount), "release wallet")
}

// Deposit inserts the ledger entry and credits the wallet in a single
// statement. A reused idempotency key inserts nothing and credits nothing.
func (r *WalletRepo) Deposit(ctx context.Context, e *domain.LedgerEntry) (*domain.Wallet, error) {
	meta, err := marshalMeta(e.Meta)
	if err != nil {
		return nil, err
	}

	query := `WITH entry AS (
			INSERT INTO ledger_entries (id, owner_id, kind, amount, direction, reference_id, idempotency_key, meta, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			ON CONFLICT (idempotency_key) DO NOTHING
			RETURNING owner_id, amount
		)
		UPDATE credit_wallets w
		SET balance = w.balance + entry.amount, version = w.version + 1, updated_at = NOW()
		FROM entry
		WHERE w.owner_id = entry.owner_id
		RETURNING w.owner_id, w.balance, w.locked_balance, w.version, w.created_at, w.updated_at`

	return scanWallet(r.pool.QueryRow(ctx, query,
		e.ID, e.OwnerID, string(e.Kind), e.Amount, string(e.Direction),
		e.ReferenceID, e.IdempotencyKey, meta, e.CreatedAt,
	), "deposit")
}

// Transfer moves out.Amount from out.OwnerID to in.OwnerID and appends both
// entries in one transaction. Both rows are locked in owner order first so
// opposing transfers cannot deadlock.
func (r *WalletRepo) Transfer(ctx context.Context, out, in *domain.LedgerEntry) (*domain.Wallet, *domain.Wallet, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("begin transfer: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx,
		`SELECT owner_id FROM credit_wallets WHERE owner_id = ANY($1) ORDER BY owner_id FOR UPDATE`,
		[]string{out.OwnerID, in.OwnerID},
	); err != nil {
		return nil, nil, fmt.Errorf("lock transfer wallets: %w", err)
	}

	for _, e := range []*domain.LedgerEntry{out, in} {
		inserted, err := appendLedgerEntry(ctx, tx, e)
		if err != nil {
			return nil, nil, err
		}
		if !inserted {
			return nil, nil, domain.ErrDuplicateLedgerKey
		}
	}

	from, err := scanWallet(tx.QueryRow(ctx, `UPDATE credit_wallets
		SET balance = balance - $2, version = version + 1, updated_at = NOW()
		WHERE owner_id = $1 AND balance >= $2
		RETURNING `+walletColumns, out.OwnerID, out.Amount), "debit wallet")
	if err != nil || from == nil {
		return nil, nil, err
	}

	to, err := scanWallet(tx.QueryRow(ctx, `UPDATE credit_wallets
		SET balance = balance + $2, version = version + 1, updated_at = NOW()
		WHERE owner_id = $1
		RETURNING `+walletColumns, in.OwnerID, in.Amount), "credit wallet")
	if err != nil {
		return nil, nil, err
	}
	if to == nil {
		return nil, nil, fmt.Errorf("credit wallet: %s not found", in.OwnerID)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, nil, fmt.Errorf("commit transfer: %w", err)
	}
	return from, to, nil
}

func scanWallet(row pgx.Row, op string) (*domain.Wallet, error) {
	w := &domain.Wallet{}
	err := row.Scan(&w.OwnerID, &w.Balance, &w.LockedBalance, &w.Version, &w.CreatedAt, &w.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return w, nil
}
