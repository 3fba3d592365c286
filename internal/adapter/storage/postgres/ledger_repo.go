package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"credit-mint-engine/internal/core/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

const ledgerColumns = `id, owner_id, kind, amount, direction, reference_id, idempotency_key, meta, created_at`

// LedgerRepo implements ports.LedgerRepository. The table is append-only.
type LedgerRepo struct {
	pool Pool
}

// NewLedgerRepo creates a new LedgerRepo.
func NewLedgerRepo(pool Pool) *LedgerRepo {
	return &LedgerRepo{pool: pool}
}

// Append inserts the entry. A reused idempotency key inserts nothing and returns false.
func (r *LedgerRepo) Append(ctx context.Context, e *domain.LedgerEntry) (bool, error) {
	return appendLedgerEntry(ctx, r.pool, e)
}

type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

func appendLedgerEntry(ctx context.Context, db execer, e *domain.LedgerEntry) (bool, error) {
	meta, err := marshalMeta(e.Meta)
	if err != nil {
		return false, err
	}

	query := `INSERT INTO ledger_entries (` + ledgerColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (idempotency_key) DO NOTHING`

	tag, err := db.Exec(ctx, query,
		e.ID, e.OwnerID, string(e.Kind), e.Amount, string(e.Direction),
		e.ReferenceID, e.IdempotencyKey, meta, e.CreatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("append ledger entry: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// GetByIdempotencyKey fetches an entry by key. Returns nil, nil if absent.
func (r *LedgerRepo) GetByIdempotencyKey(ctx context.Context, key string) (*domain.LedgerEntry, error) {
	query := `SELECT ` + ledgerColumns + ` FROM ledger_entries WHERE idempotency_key = $1`

	e, err := scanLedgerEntry(r.pool.QueryRow(ctx, query, key))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get ledger entry: %w", err)
	}
	return e, nil
}

// ListByOwner returns the owner's most recent entries, newest first.
func (r *LedgerRepo) ListByOwner(ctx context.Context, ownerID string, limit int) ([]domain.LedgerEntry, error) {
	query := `SELECT ` + ledgerColumns + ` FROM ledger_entries
		WHERE owner_id = $1 ORDER BY created_at DESC, id LIMIT $2`

	rows, err := r.pool.Query(ctx, query, ownerID, limit)
	if err != nil {
		return nil, fmt.Errorf("list ledger entries: %w", err)
	}
	defer rows.Close()

	entries := make([]domain.LedgerEntry, 0)
	for rows.Next() {
		e, err := scanLedgerEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan ledger row: %w", err)
		}
		entries = append(entries, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate ledger rows: %w", err)
	}
	return entries, nil
}

// marshalMeta encodes a meta map for a JSONB column. Nil encodes as {}.
func marshalMeta(meta map[string]string) ([]byte, error) {
	if meta == nil {
		return []byte("{}"), nil
	}
	b, err := json.Marshal(meta)
	if err != nil {
		return nil, fmt.Errorf("marshal meta: %w", err)
	}
	return b, nil
}

func scanLedgerEntry(row pgx.Row) (*domain.LedgerEntry, error) {
	var (
		e    domain.LedgerEntry
		meta []byte
	)
	err := row.Scan(&e.ID, &e.OwnerID, &e.Kind, &e.Amount, &e.Direction,
		&e.ReferenceID, &e.IdempotencyKey, &meta, &e.CreatedAt)
	if err != nil {
		return nil, err
	}
	if len(meta) > 0 {
		if err := json.Unmarshal(meta, &e.Meta); err != nil {
			return nil, fmt.Errorf("decode ledger meta: %w", err)
		}
	}
	return &e, nil
}
