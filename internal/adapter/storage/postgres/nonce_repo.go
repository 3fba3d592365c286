package postgres

import (
	"context"
	"fmt"
)

// NonceRepo implements ports.NonceRepository on the request_nonces table.
type NonceRepo struct {
	pool Pool
}

// NewNonceRepo creates a new NonceRepo.
func NewNonceRepo(pool Pool) *NonceRepo {
	return &NonceRepo{pool: pool}
}

// Claim records the nonce. It returns false if the nonce was seen before.
func (r *NonceRepo) Claim(ctx context.Context, nonce, caller string) (bool, error) {
	tag, err := r.pool.Exec(ctx,
		`INSERT INTO request_nonces (nonce, caller, created_at) VALUES ($1, $2, NOW())
		 ON CONFLICT (nonce) DO NOTHING`,
		nonce, caller,
	)
	if err != nil {
		return false, fmt.Errorf("claim nonce: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}
