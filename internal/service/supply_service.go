package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"credit-mint-engine/config"
	"credit-mint-engine/internal/core/domain"
	"credit-mint-engine/internal/core/ports"
	"credit-mint-engine/pkg/apperror"

	"github.com/rs/zerolog"
)

const entitySupplyMint = "supply_mint"

// SupplyServiceImpl implements ports.SupplyService.
type SupplyServiceImpl struct {
	repo  ports.SupplyRepository
	audit ports.AuditService
	cfg   config.SupplyConfig
	log   zerolog.Logger
	now   func() time.Time
}

// NewSupplyService creates a new SupplyServiceImpl.
func NewSupplyService(repo ports.SupplyRepository, audit ports.AuditService, cfg config.SupplyConfig, log zerolog.Logger) *SupplyServiceImpl {
	return &SupplyServiceImpl{
		repo:  repo,
		audit: audit,
		cfg:   cfg,
		log:   log,
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// Mint issues amount to the recipient if the counter stays within its cap.
// A known mintId replays the stored event.
func (s *SupplyServiceImpl) Mint(ctx context.Context, req ports.SupplyMintRequest) (*ports.SupplyMintResult, error) {
	if err := validateSupplyMint(req); err != nil {
		return nil, err
	}

	existing, err := s.repo.GetEvent(ctx, req.MintID)
	if err != nil {
		return nil, apperror.InternalError(err)
	}
	if existing != nil {
		return s.replay(ctx, existing)
	}

	counter, err := s.ensureCounter(ctx)
	if err != nil {
		return nil, err
	}
	if !counter.Fits(req.Amount) {
		s.log.Warn().
			Str("mint_id", req.MintID).
			Int64("amount", req.Amount).
			Int64("total_issued", counter.TotalIssued).
			Int64("cap", counter.Cap).
			Msg("supply cap would be exceeded")
		return nil, apperror.ErrSupplyCapExceeded()
	}

	updated, err := s.repo.Increment(ctx, counter.ID, counter.TotalIssued, req.Amount)
	if err != nil {
		return nil, apperror.InternalError(err)
	}
	if updated == nil {
		return nil, apperror.ErrConcurrentRetry()
	}

	event := &domain.SupplyMintEvent{
		MintID:           req.MintID,
		RecipientID:      req.RecipientID,
		Amount:           req.Amount,
		Reason:           req.Reason,
		Category:         req.Category,
		ExternalRef:      req.ExternalRef,
		Caller:           req.Caller,
		RequestTimestamp: req.RequestTimestamp,
		Nonce:            req.Nonce,
		CreatedAt:        s.now().Truncate(time.Millisecond),
	}
	event.Checksum = event.ComputeChecksum()

	if err := s.repo.CreateEvent(ctx, event); err != nil {
		s.compensate(ctx, counter.ID, req.Amount)
		switch {
		case errors.Is(err, domain.ErrDuplicateMintID):
			prior, getErr := s.repo.GetEvent(ctx, req.MintID)
			if getErr != nil {
				return nil, apperror.InternalError(getErr)
			}
			if prior == nil {
				return nil, apperror.InternalError(fmt.Errorf("mint %s conflicted but was not found", req.MintID))
			}
			return s.replay(ctx, prior)
		case errors.Is(err, domain.ErrDuplicateNonce):
			return nil, apperror.ErrReplayDetected()
		default:
			return nil, apperror.InternalError(err)
		}
	}

	s.audit.Record(ctx, domain.NewAuditEvent(req.Caller, domain.AuditSupplyMint, entitySupplyMint, req.MintID, map[string]string{
		"recipientId": req.RecipientID,
		"amount":      strconv.FormatInt(req.Amount, 10),
		"reason":      string(req.Reason),
		"checksum":    event.Checksum,
	}))

	s.log.Info().
		Str("mint_id", req.MintID).
		Str("recipient_id", req.RecipientID).
		Int64("amount", req.Amount).
		Int64("total_issued", updated.TotalIssued).
		Msg("supply minted")

	return &ports.SupplyMintResult{
		Event:            event,
		SupplyCap:        updated.Cap,
		TotalIssuedAfter: updated.TotalIssued,
	}, nil
}

func validateSupplyMint(req ports.SupplyMintRequest) error {
	if !domain.ValidMintID(req.MintID) {
		return apperror.Validation("mintId must match ^[A-Za-z0-9._:-]{20,96}$")
	}
	if !domain.ValidRecipientID(req.RecipientID) {
		return apperror.Validation("recipientId must match ^[A-Za-z0-9._:@-]{6,128}$")
	}
	if req.Amount <= 0 {
		return apperror.Validation("amount must be a positive integer")
	}
	if _, ok := domain.ParseMintReason(string(req.Reason)); !ok {
		return apperror.Validation("reason is not supported")
	}
	if len(req.Category) > domain.MaxCategoryLen {
		return apperror.Validation("category is too long")
	}
	if len(req.ExternalRef) > domain.MaxExternalRefLen {
		return apperror.Validation("externalRef is too long")
	}
	if strings.TrimSpace(req.Nonce) == "" {
		return apperror.Validation("nonce is required")
	}
	return nil
}

// ensureCounter creates the counter on first use and applies a raised cap.
// Lowering the cap below what is configured in storage is refused.
func (s *SupplyServiceImpl) ensureCounter(ctx context.Context) (*domain.SupplyCounter, error) {
	if s.cfg.Cap <= 0 {
		return nil, apperror.ErrConfigMissing("supply.cap")
	}
	if err := s.repo.CreateCounter(ctx, s.cfg.CounterID, s.cfg.Cap); err != nil {
		return nil, apperror.InternalError(err)
	}

	counter, err := s.repo.GetCounter(ctx, s.cfg.CounterID)
	if err != nil {
		return nil, apperror.InternalError(err)
	}
	if counter == nil {
		return nil, apperror.InternalError(fmt.Errorf("supply counter %s missing after create", s.cfg.CounterID))
	}

	switch {
	case s.cfg.Cap < counter.Cap:
		return nil, s.capDecreased(counter)
	case s.cfg.Cap > counter.Cap:
		if err := s.repo.RaiseCap(ctx, counter.ID, s.cfg.Cap); err != nil {
			// Another instance may have raised it first.
			current, getErr := s.repo.GetCounter(ctx, s.cfg.CounterID)
			if getErr != nil || current == nil || current.Cap < s.cfg.Cap {
				return nil, apperror.InternalError(err)
			}
			if current.Cap > s.cfg.Cap {
				return nil, s.capDecreased(current)
			}
			return current, nil
		}
		s.log.Info().Int64("from", counter.Cap).Int64("to", s.cfg.Cap).Msg("supply cap raised")
		counter.Cap = s.cfg.Cap
	}
	return counter, nil
}

func (s *SupplyServiceImpl) capDecreased(counter *domain.SupplyCounter) error {
	s.log.Error().
		Int64("configured_cap", s.cfg.Cap).
		Int64("stored_cap", counter.Cap).
		Msg("configured supply cap is below the stored cap")
	return apperror.ErrServerMisconfigured("SUPPLY_CAP_CANNOT_DECREASE", nil)
}

func (s *SupplyServiceImpl) compensate(ctx context.Context, id string, amount int64) {
	if err := s.repo.Decrement(context.WithoutCancel(ctx), id, amount); err != nil {
		s.log.Error().Err(err).Str("counter_id", id).Int64("amount", amount).Msg("failed to compensate supply counter")
	}
}

func (s *SupplyServiceImpl) replay(ctx context.Context, event *domain.SupplyMintEvent) (*ports.SupplyMintResult, error) {
	result := &ports.SupplyMintResult{Event: event, Replayed: true}
	counter, err := s.repo.GetCounter(ctx, s.cfg.CounterID)
	if err != nil {
		return nil, apperror.InternalError(err)
	}
	if counter != nil {
		result.SupplyCap = counter.Cap
		result.TotalIssuedAfter = counter.TotalIssued
	}
	return result, nil
}
