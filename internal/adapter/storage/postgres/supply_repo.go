package postgres

import (
	"context"
	"errors"
	"fmt"

	"credit-mint-engine/internal/core/domain"

	"github.com/jackc/pgx/v5"
)

const (
	supplyEventColumns = `mint_id, recipient_id, amount, reason, category, external_ref, caller,
	request_timestamp, nonce, checksum, created_at`

	constraintSupplyMintID = "supply_mint_events_mint_id_key"
	constraintSupplyNonce  = "supply_mint_events_nonce_key"
)

// SupplyRepo implements ports.SupplyRepository.
type SupplyRepo struct {
	pool Pool
}

// NewSupplyRepo creates a new SupplyRepo.
func NewSupplyRepo(pool Pool) *SupplyRepo {
	return &SupplyRepo{pool: pool}
}

// CreateCounter inserts the counter at zero issuance if it does not exist.
func (r *SupplyRepo) CreateCounter(ctx context.Context, id string, cap int64) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO supply_counters (id, cap, total_issued, updated_at) VALUES ($1, $2, 0, NOW())
		 ON CONFLICT (id) DO NOTHING`,
		id, cap,
	)
	if err != nil {
		return fmt.Errorf("create supply counter: %w", err)
	}
	return nil
}

// GetCounter fetches a counter. Returns nil, nil if absent.
func (r *SupplyRepo) GetCounter(ctx context.Context, id string) (*domain.SupplyCounter, error) {
	row := r.pool.QueryRow(ctx, `SELECT id, cap, total_issued, updated_at FROM supply_counters WHERE id = $1`, id)
	c, err := scanCounter(row)
	if err != nil {
		return nil, fmt.Errorf("get supply counter: %w", err)
	}
	return c, nil
}

// RaiseCap sets a higher cap. Lowering is refused at the row level.
func (r *SupplyRepo) RaiseCap(ctx context.Context, id string, cap int64) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE supply_counters SET cap = $2, updated_at = NOW() WHERE id = $1 AND cap < $2`,
		id, cap,
	)
	if err != nil {
		return fmt.Errorf("raise supply cap: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("supply counter %s not raised to %d", id, cap)
	}
	return nil
}

// Increment adds amount if nobody else moved the counter since it was read
// and the new total stays within the cap. Returns nil, nil otherwise.
func (r *SupplyRepo) Increment(ctx context.Context, id string, expectedTotal, amount int64) (*domain.SupplyCounter, error) {
	row := r.pool.QueryRow(ctx,
		`UPDATE supply_counters SET total_issued = total_issued + $3, updated_at = NOW()
		 WHERE id = $1 AND total_issued = $2 AND total_issued + $3 <= cap
		 RETURNING id, cap, total_issued, updated_at`,
		id, expectedTotal, amount,
	)
	c, err := scanCounter(row)
	if err != nil {
		return nil, fmt.Errorf("increment supply counter: %w", err)
	}
	return c, nil
}

// Decrement rolls back an increment.
func (r *SupplyRepo) Decrement(ctx context.Context, id string, amount int64) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE supply_counters SET total_issued = total_issued - $2, updated_at = NOW()
		 WHERE id = $1 AND total_issued >= $2`,
		id, amount,
	)
	if err != nil {
		return fmt.Errorf("decrement supply counter: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("supply counter %s cannot be decremented by %d", id, amount)
	}
	return nil
}

// GetEvent fetches a mint event by id. Returns nil, nil if absent.
func (r *SupplyRepo) GetEvent(ctx context.Context, mintID string) (*domain.SupplyMintEvent, error) {
	var e domain.SupplyMintEvent
	err := r.pool.QueryRow(ctx,
		`SELECT `+supplyEventColumns+` FROM supply_mint_events WHERE mint_id = $1`, mintID,
	).Scan(
		&e.MintID, &e.RecipientID, &e.Amount, &e.Reason, &e.Category, &e.ExternalRef, &e.Caller,
		&e.RequestTimestamp, &e.Nonce, &e.Checksum, &e.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get supply mint event: %w", err)
	}
	return &e, nil
}

// CreateEvent records a mint event, mapping unique violations to domain errors.
func (r *SupplyRepo) CreateEvent(ctx context.Context, e *domain.SupplyMintEvent) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO supply_mint_events (`+supplyEventColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		e.MintID, e.RecipientID, e.Amount, string(e.Reason), e.Category, e.ExternalRef, e.Caller,
		e.RequestTimestamp, e.Nonce, e.Checksum, e.CreatedAt,
	)
	switch {
	case err == nil:
		return nil
	case IsUniqueViolation(err, constraintSupplyMintID):
		return domain.ErrDuplicateMintID
	case IsUniqueViolation(err, constraintSupplyNonce):
		return domain.ErrDuplicateNonce
	default:
		return fmt.Errorf("insert supply mint event: %w", err)
	}
}

func scanCounter(row pgx.Row) (*domain.SupplyCounter, error) {
	c := &domain.SupplyCounter{}
	if err := row.Scan(&c.ID, &c.Cap, &c.TotalIssued, &c.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return c, nil
}
