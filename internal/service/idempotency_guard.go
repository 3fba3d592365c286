package service

import (
	"context"
	"encoding/json"
	"time"

	"credit-mint-engine/internal/core/domain"
	"credit-mint-engine/internal/core/ports"
	"credit-mint-engine/pkg/apperror"

	"github.com/rs/zerolog"
)

// IdempotencyGuard decides whether a mint request is new, a replay, or a
// duplicate of one still running. Redis is a cache in front of Postgres;
// Postgres decides.
type IdempotencyGuard struct {
	requests ports.MintRequestRepository
	receipts ports.ReceiptRepository
	cache    ports.ReceiptCache
	ttl      time.Duration
	log      zerolog.Logger

	// resume finishes a request found settled but not completed.
	resume func(ctx context.Context, req *domain.MintRequest) (*ports.MintResult, error)
}

// NewIdempotencyGuard creates a guard. cache may be nil.
func NewIdempotencyGuard(
	requests ports.MintRequestRepository,
	receipts ports.ReceiptRepository,
	cache ports.ReceiptCache,
	ttl time.Duration,
	log zerolog.Logger,
) *IdempotencyGuard {
	return &IdempotencyGuard{
		requests: requests,
		receipts: receipts,
		cache:    cache,
		ttl:      ttl,
		log:      log,
	}
}

// Lookup returns the replayed result of a completed request, nil if the key
// is free (or its last attempt failed), or ALREADY_IN_PROGRESS.
func (g *IdempotencyGuard) Lookup(ctx context.Context, ownerID, key string) (*ports.MintResult, error) {
	if receipt := g.cached(ctx, ownerID, key); receipt != nil {
		return resultFromReceipt(receipt, true), nil
	}

	existing, err := g.requests.GetByKey(ctx, ownerID, key)
	if err != nil {
		return nil, apperror.InternalError(err)
	}
	if existing == nil {
		return nil, nil
	}
	return g.resolve(ctx, existing)
}

// Begin claims the key for req. It returns the claimed request, or a replay
// when the key already completed, or ALREADY_IN_PROGRESS.
func (g *IdempotencyGuard) Begin(ctx context.Context, req *domain.MintRequest) (*domain.MintRequest, *ports.MintResult, error) {
	claimed, err := g.requests.Claim(ctx, req)
	if err != nil {
		return nil, nil, apperror.InternalError(err)
	}
	if claimed != nil {
		return claimed, nil, nil
	}

	// Another request holds the key.
	existing, err := g.requests.GetByKey(ctx, req.OwnerID, req.IdempotencyKey)
	if err != nil {
		return nil, nil, apperror.InternalError(err)
	}
	if existing == nil {
		return nil, nil, apperror.ErrAlreadyInProgress()
	}
	replay, err := g.resolve(ctx, existing)
	if err != nil {
		return nil, nil, err
	}
	if replay == nil {
		// Failed between our claim and the re-read; the caller may retry.
		return nil, nil, apperror.ErrAlreadyInProgress()
	}
	return nil, replay, nil
}

// Complete caches the receipt for fast replays. Cache errors are logged only.
func (g *IdempotencyGuard) Complete(ctx context.Context, key string, receipt *domain.Receipt) {
	if g.cache == nil {
		return
	}
	raw, err := json.Marshal(receipt)
	if err != nil {
		g.log.Warn().Err(err).Str("token_id", receipt.TokenID).Msg("receipt cache encode failed")
		return
	}
	if err := g.cache.Set(ctx, cacheKey(receipt.OwnerID, key), raw, g.ttl); err != nil {
		g.log.Warn().Err(err).Str("idempotency_key", key).Msg("receipt cache set failed")
	}
}

func (g *IdempotencyGuard) resolve(ctx context.Context, existing *domain.MintRequest) (*ports.MintResult, error) {
	switch existing.Status {
	case domain.MintStatusCompleted:
		receipt, err := g.receipts.GetByMintRequestID(ctx, existing.ID)
		if err != nil {
			return nil, apperror.InternalError(err)
		}
		if receipt == nil {
			// Completed without a receipt cannot happen; receipts are written first.
			return nil, apperror.InternalError(nil)
		}
		return resultFromReceipt(receipt, true), nil
	case domain.MintStatusFailed:
		return nil, nil
	default:
		if existing.Stage == domain.StageSettled && g.resume != nil {
			return g.resume(ctx, existing)
		}
		return nil, apperror.ErrAlreadyInProgress()
	}
}

func (g *IdempotencyGuard) cached(ctx context.Context, ownerID, key string) *domain.Receipt {
	if g.cache == nil {
		return nil
	}
	raw, err := g.cache.Get(ctx, cacheKey(ownerID, key))
	if err != nil {
		g.log.Warn().Err(err).Str("idempotency_key", key).Msg("receipt cache unavailable, falling back to database")
		return nil
	}
	if raw == nil {
		return nil
	}
	var receipt domain.Receipt
	if err := json.Unmarshal(raw, &receipt); err != nil {
		g.log.Warn().Err(err).Str("idempotency_key", key).Msg("discarding undecodable cached receipt")
		return nil
	}
	return &receipt
}

func cacheKey(ownerID, key string) string {
	return ownerID + ":" + key
}

func resultFromReceipt(r *domain.Receipt, replayed bool) *ports.MintResult {
	return &ports.MintResult{
		MintRequestID:   r.MintRequestID,
		TokenID:         r.TokenID,
		ArtifactRef:     r.ArtifactRef(),
		TransactionHash: r.TransactionHash,
		PriceCredits:    r.PriceCredits,
		MintedAt:        r.CreatedAt,
		Replayed:        replayed,
	}
}
