package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"credit-mint-engine/config"
	"credit-mint-engine/internal/core/domain"
	"credit-mint-engine/internal/core/ports"
	"credit-mint-engine/pkg/apperror"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	entityMintRequest = "mint_request"
	maxTitleRunes     = 80

	finalizeAttempts = 3
	finalizeBackoff  = 50 * time.Millisecond
)

// MintServiceImpl implements ports.MintService.
//
// The flow is lock, generate, persist, settle. Every balance change is a
// single conditional update, so there is no long-lived database transaction
// spanning the generator call. Any failure before settlement is compensated:
// the draft asset is burned and the lock released.
type MintServiceImpl struct {
	wallets   ports.WalletRepository
	ledger    ports.LedgerRepository
	requests  ports.MintRequestRepository
	assets    ports.AssetRepository
	receipts  ports.ReceiptRepository
	generator ports.ArtifactGenerator
	guard     *IdempotencyGuard
	audit     ports.AuditService
	cfg       config.MintConfig
	log       zerolog.Logger
	now       func() time.Time
	backoff   time.Duration
}

// NewMintService creates a new MintServiceImpl.
func NewMintService(
	wallets ports.WalletRepository,
	ledger ports.LedgerRepository,
	requests ports.MintRequestRepository,
	assets ports.AssetRepository,
	receipts ports.ReceiptRepository,
	generator ports.ArtifactGenerator,
	guard *IdempotencyGuard,
	audit ports.AuditService,
	cfg config.MintConfig,
	log zerolog.Logger,
) *MintServiceImpl {
	s := &MintServiceImpl{
		wallets:   wallets,
		ledger:    ledger,
		requests:  requests,
		assets:    assets,
		receipts:  receipts,
		generator: generator,
		guard:     guard,
		audit:     audit,
		cfg:       cfg,
		log:       log,
		// Postgres keeps microseconds; a replay must match the first response.
		now:       func() time.Time { return time.Now().UTC().Truncate(time.Microsecond) },
		backoff:   finalizeBackoff,
	}
	guard.resume = s.resume
	return s
}

// mintRun tracks what a single attempt has done so far, for compensation.
type mintRun struct {
	req       *domain.MintRequest
	locked    bool
	persisted bool
	tokenID   string
}

// Mint runs one credit mint. A reused idempotency key returns the original
// result without charging again.
func (s *MintServiceImpl) Mint(ctx context.Context, in ports.MintRequest) (*ports.MintResult, error) {
	if err := validateMintInput(in); err != nil {
		return nil, err
	}

	price := s.cfg.DefaultPrice
	if in.PriceCredits != nil {
		price = *in.PriceCredits
	}

	now := s.now()
	key := strings.TrimSpace(in.IdempotencyKey)
	if key == "" {
		key = domain.NewIdempotencyKey(in.OwnerID, now)
	} else {
		replay, err := s.guard.Lookup(ctx, in.OwnerID, key)
		if err != nil {
			return nil, err
		}
		if replay != nil {
			if replay.Replayed {
				s.log.Info().Str("owner_id", in.OwnerID).Str("idempotency_key", key).Msg("mint replayed")
			}
			return replay, nil
		}
	}

	req, replay, err := s.guard.Begin(ctx, &domain.MintRequest{
		ID:               uuid.New(),
		OwnerID:          in.OwnerID,
		IdempotencyKey:   key,
		DraftAssetID:     uuid.New(),
		Description:      in.Description,
		PriceCredits:     price,
		Nonce:            domain.NewNonce(),
		RequestTimestamp: now,
		Status:           domain.MintStatusProcessing,
		Stage:            domain.StageReceived,
		Attempts:         1,
		CreatedAt:        now,
		UpdatedAt:        now,
	})
	if err != nil {
		return nil, err
	}
	if replay != nil {
		return replay, nil
	}

	run := &mintRun{req: req}
	s.audit.Record(ctx, domain.NewAuditEvent(req.OwnerID, domain.AuditMintInitiated, entityMintRequest, req.ID.String(), map[string]string{
		"idempotencyKey": key,
		"priceCredits":   strconv.FormatInt(price, 10),
		"attempt":        strconv.Itoa(req.Attempts),
	}))

	if _, err := s.wallets.Ensure(ctx, req.OwnerID, s.cfg.DefaultBalance); err != nil {
		return nil, s.abort(ctx, run, domain.StageLockFailed, apperror.InternalError(err))
	}

	if req.PriceCredits > 0 {
		wallet, err := s.wallets.Lock(ctx, req.OwnerID, req.PriceCredits)
		if err != nil {
			return nil, s.abort(ctx, run, domain.StageLockFailed, apperror.InternalError(err))
		}
		if wallet == nil {
			return nil, s.abort(ctx, run, domain.StageLockFailed, apperror.ErrInsufficientBalance())
		}
		run.locked = true
		s.appendLedger(ctx, req, domain.LedgerKindLock, domain.LockLedgerKey(req.ID, req.Attempts))
	}
	s.advance(ctx, req, domain.StageLocked)
	s.advance(ctx, req, domain.StageGenerating)

	artifact, err := s.generate(ctx, in)
	if err != nil {
		return nil, s.abort(ctx, run, domain.StageGenerationFailed, err)
	}

	asset := s.buildAsset(req, in, artifact)
	if err := s.assets.Create(ctx, asset); err != nil {
		return nil, s.abort(ctx, run, domain.StagePersistFailed, apperror.InternalError(err))
	}
	run.persisted = true
	run.tokenID = asset.TokenID
	s.advance(ctx, req, domain.StagePersisted)

	// Past this point the work is committed to; a client disconnect must not
	// leave credits locked.
	ctx = context.WithoutCancel(ctx)

	if req.PriceCredits > 0 {
		wallet, err := s.wallets.Settle(ctx, req.OwnerID, req.PriceCredits)
		if err != nil || wallet == nil {
			if err == nil {
				err = fmt.Errorf("locked balance below %d", req.PriceCredits)
			}
			return nil, s.abort(ctx, run, domain.StagePersistFailed, apperror.InternalError(err))
		}
		run.locked = false
	}
	if err := s.requests.UpdateStage(ctx, req.ID, domain.StageSettled); err != nil {
		s.log.Error().Err(err).
			Str("mint_request_id", req.ID.String()).
			Msg("settled stage not recorded, request cannot be resumed by a retry")
	}

	return s.finalize(ctx, req, asset)
}

// Preview runs the generator for an owner without touching the wallet, the
// ledger or asset storage.
func (s *MintServiceImpl) Preview(ctx context.Context, in ports.PreviewRequest) (*ports.Artifact, error) {
	req := ports.MintRequest{
		OwnerID:      strings.TrimSpace(in.OwnerID),
		Description:  in.Description,
		StyleHint:    in.StyleHint,
		CategoryHint: in.CategoryHint,
	}
	if err := validateMintInput(req); err != nil {
		return nil, err
	}

	artifact, err := s.generate(ctx, req)
	if err != nil {
		s.log.Warn().Err(err).Str("owner_id", req.OwnerID).Msg("preview generation failed")
		return nil, err
	}
	if artifact.ContentType == "" {
		artifact.ContentType = "image/png"
	}

	s.log.Info().
		Str("owner_id", req.OwnerID).
		Int("bytes", len(artifact.Data)).
		Msg("preview generated")
	return artifact, nil
}

func validateMintInput(in ports.MintRequest) error {
	if strings.TrimSpace(in.OwnerID) == "" {
		return apperror.Validation("ownerId is required")
	}
	if len(in.OwnerID) > domain.MaxOwnerIDLen {
		return apperror.Validation("ownerId is too long")
	}
	if strings.TrimSpace(in.Description) == "" {
		return apperror.Validation("description is required")
	}
	if utf8.RuneCountInString(in.Description) > domain.MaxDescriptionLen {
		return apperror.Validation("description is too long")
	}
	if len(in.IdempotencyKey) > domain.MaxIdempotencyLen {
		return apperror.Validation("idempotencyKey is too long")
	}
	if in.PriceCredits != nil && *in.PriceCredits < 0 {
		return apperror.Validation("priceCredits must be >= 0")
	}
	return nil
}

// generate calls the generator under the configured deadline. Errors that are
// not already classified become GENERATION_FAILED.
func (s *MintServiceImpl) generate(ctx context.Context, in ports.MintRequest) (*ports.Artifact, error) {
	genCtx, cancel := context.WithTimeout(ctx, s.cfg.GenerationTimeout)
	defer cancel()

	artifact, err := s.generator.Generate(genCtx, ports.ArtifactPrompt{
		Description:  in.Description,
		StyleHint:    in.StyleHint,
		CategoryHint: in.CategoryHint,
	})
	if err != nil {
		var appErr *apperror.AppError
		if errors.As(err, &appErr) && appErr.Kind == apperror.KindServerMisconfigured {
			return nil, appErr
		}
		return nil, apperror.ErrGenerationFailed(err)
	}
	if artifact == nil || len(artifact.Data) == 0 {
		return nil, apperror.ErrGenerationFailed(errors.New("generator returned no content"))
	}
	return artifact, nil
}

func (s *MintServiceImpl) buildAsset(req *domain.MintRequest, in ports.MintRequest, artifact *ports.Artifact) *domain.Asset {
	tokenID := domain.NewTokenID(s.now())
	contentType := artifact.ContentType
	if contentType == "" {
		contentType = "image/png"
	}
	return &domain.Asset{
		ID:            req.DraftAssetID,
		TokenID:       tokenID,
		OwnerID:       req.OwnerID,
		MintRequestID: req.ID,
		CollectionID:  s.cfg.CollectionID,
		Chain:         s.cfg.Chain,
		Title:         assetTitle(in.Description),
		Description:   in.Description,
		Content:       artifact.Data,
		ContentType:   contentType,
		Attributes:    in.Attributes,
		Status:        domain.AssetStatusDraft,
		MetadataURI:   domain.MetadataURI(tokenID),
		CreatedAt:     s.now(),
	}
}

func assetTitle(description string) string {
	title := strings.Join(strings.Fields(description), " ")
	if utf8.RuneCountInString(title) <= maxTitleRunes {
		return title
	}
	return string([]rune(title)[:maxTitleRunes-3]) + "..."
}

// abort compensates whatever run has done and records the failure. It returns
// cause, or SERVER_MISCONFIGURED if locked credits could not be released.
func (s *MintServiceImpl) abort(ctx context.Context, run *mintRun, stage domain.MintStage, cause error) error {
	ctx = context.WithoutCancel(ctx)
	req := run.req
	errorKind := string(apperror.KindOf(cause))
	result := cause

	if run.persisted {
		if err := s.assets.UpdateStatus(ctx, run.tokenID, domain.AssetStatusBurned); err != nil {
			s.log.Warn().Err(err).Str("token_id", run.tokenID).Msg("failed to burn draft asset")
		}
	}

	if run.locked {
		wallet, err := s.wallets.Release(ctx, req.OwnerID, req.PriceCredits)
		if err != nil || wallet == nil {
			s.log.Error().Err(err).
				Str("owner_id", req.OwnerID).
				Int64("amount", req.PriceCredits).
				Str("mint_request_id", req.ID.String()).
				Msg("failed to release locked credits")
			errorKind = domain.ErrorKindFundsStuck
			result = apperror.ErrServerMisconfigured("Locked credits could not be released", cause)
		} else {
			s.appendLedger(ctx, req, domain.LedgerKindUnlock, domain.UnlockLedgerKey(req.ID, req.Attempts))
		}
	}

	if err := s.requests.MarkFailed(ctx, req.ID, stage, errorKind); err != nil {
		s.log.Error().Err(err).Str("mint_request_id", req.ID.String()).Msg("failed to mark mint request failed")
	}

	s.audit.Record(ctx, domain.NewAuditEvent(req.OwnerID, domain.AuditMintFailed, entityMintRequest, req.ID.String(), map[string]string{
		"stage":     string(stage),
		"errorKind": errorKind,
	}))

	s.log.Warn().Err(cause).
		Str("owner_id", req.OwnerID).
		Str("mint_request_id", req.ID.String()).
		Str("stage", string(stage)).
		Msg("mint aborted")

	return result
}

// advance records stage progress. It is informational, so failures only warn.
func (s *MintServiceImpl) advance(ctx context.Context, req *domain.MintRequest, stage domain.MintStage) {
	if err := s.requests.UpdateStage(ctx, req.ID, stage); err != nil {
		s.log.Warn().Err(err).Str("mint_request_id", req.ID.String()).Str("stage", string(stage)).Msg("failed to record mint stage")
	}
}

// appendLedger writes a lock or unlock entry. The balance change has already
// happened, so a failure here is logged rather than returned.
func (s *MintServiceImpl) appendLedger(ctx context.Context, req *domain.MintRequest, kind domain.LedgerKind, key string) {
	entry := domain.NewLedgerEntry(req.OwnerID, kind, req.PriceCredits, req.ID.String(), key, map[string]string{
		"idempotencyKey": req.IdempotencyKey,
	})
	if _, err := s.ledger.Append(ctx, entry); err != nil {
		s.log.Warn().Err(err).Str("mint_request_id", req.ID.String()).Str("kind", string(kind)).Msg("failed to append ledger entry")
	}
}

// finalize records the spend, marks the asset minted, stores the receipt and
// completes the request. Credits are settled by now, so there is nothing to
// compensate: each step is idempotent and the whole sequence is retried here,
// and again by resume on a later request with the same key.
func (s *MintServiceImpl) finalize(ctx context.Context, req *domain.MintRequest, asset *domain.Asset) (*ports.MintResult, error) {
	var err error
	for attempt := 1; attempt <= finalizeAttempts; attempt++ {
		var result *ports.MintResult
		if result, err = s.finalizeOnce(ctx, req, asset); err == nil {
			return result, nil
		}
		s.log.Warn().Err(err).
			Str("mint_request_id", req.ID.String()).
			Int("attempt", attempt).
			Msg("mint finalization failed")
		if attempt < finalizeAttempts {
			time.Sleep(time.Duration(attempt) * s.backoff)
		}
	}

	s.log.Error().Err(err).
		Str("owner_id", req.OwnerID).
		Str("mint_request_id", req.ID.String()).
		Int64("amount", req.PriceCredits).
		Msg("mint settled but not finalized, left resumable")
	return nil, apperror.InternalError(err)
}

func (s *MintServiceImpl) finalizeOnce(ctx context.Context, req *domain.MintRequest, asset *domain.Asset) (*ports.MintResult, error) {
	var spendID *uuid.UUID
	if req.PriceCredits > 0 {
		entry, err := s.recordSpend(ctx, req)
		if err != nil {
			return nil, fmt.Errorf("record spend: %w", err)
		}
		spendID = &entry.ID
	}

	if err := s.assets.UpdateStatus(ctx, asset.TokenID, domain.AssetStatusMinted); err != nil {
		return nil, fmt.Errorf("mark asset minted: %w", err)
	}

	mintedAt := s.now()
	receipt := &domain.Receipt{
		ID:              uuid.New(),
		MintRequestID:   req.ID,
		OwnerID:         req.OwnerID,
		TokenID:         asset.TokenID,
		TransactionHash: domain.SyntheticTxHash(req.OwnerID, asset.TokenID, req.PriceCredits, mintedAt),
		PriceCredits:    req.PriceCredits,
		LedgerEntryID:   spendID,
		MetadataURI:     asset.MetadataURI,
		Chain:           asset.Chain,
		CreatedAt:       mintedAt,
	}
	inserted, err := s.receipts.Create(ctx, receipt)
	if err != nil {
		return nil, fmt.Errorf("store receipt: %w", err)
	}
	if !inserted {
		// An earlier attempt stored it; answer with that one.
		if receipt, err = s.receipts.GetByMintRequestID(ctx, req.ID); err != nil {
			return nil, fmt.Errorf("load receipt: %w", err)
		}
		if receipt == nil {
			return nil, fmt.Errorf("receipt for %s conflicted but was not found", req.ID)
		}
	}

	if err := s.requests.MarkCompleted(ctx, req.ID); err != nil {
		return nil, fmt.Errorf("mark mint completed: %w", err)
	}

	s.audit.Record(ctx, domain.NewAuditEvent(req.OwnerID, domain.AuditMintSucceeded, entityMintRequest, req.ID.String(), map[string]string{
		"tokenId":         receipt.TokenID,
		"transactionHash": receipt.TransactionHash,
		"priceCredits":    strconv.FormatInt(req.PriceCredits, 10),
	}))
	s.guard.Complete(ctx, req.IdempotencyKey, receipt)

	s.log.Info().
		Str("owner_id", req.OwnerID).
		Str("token_id", receipt.TokenID).
		Int64("price", req.PriceCredits).
		Msg("mint completed")

	return resultFromReceipt(receipt, !inserted), nil
}

// resume finishes a request that was settled but never completed.
func (s *MintServiceImpl) resume(ctx context.Context, req *domain.MintRequest) (*ports.MintResult, error) {
	ctx = context.WithoutCancel(ctx)
	asset, err := s.assets.GetByID(ctx, req.DraftAssetID)
	if err != nil {
		return nil, apperror.InternalError(err)
	}
	if asset == nil {
		return nil, apperror.InternalError(fmt.Errorf("settled mint %s has no asset", req.ID))
	}
	s.log.Info().
		Str("owner_id", req.OwnerID).
		Str("mint_request_id", req.ID.String()).
		Msg("resuming settled mint")
	return s.finalize(ctx, req, asset)
}

func (s *MintServiceImpl) recordSpend(ctx context.Context, req *domain.MintRequest) (*domain.LedgerEntry, error) {
	entry := domain.NewLedgerEntry(req.OwnerID, domain.LedgerKindSpend, req.PriceCredits, req.ID.String(), domain.SpendLedgerKey(req.ID), map[string]string{
		"idempotencyKey": req.IdempotencyKey,
	})
	inserted, err := s.ledger.Append(ctx, entry)
	if err != nil {
		return nil, err
	}
	if inserted {
		return entry, nil
	}
	existing, err := s.ledger.GetByIdempotencyKey(ctx, entry.IdempotencyKey)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, fmt.Errorf("spend entry %s conflicted but was not found", entry.IdempotencyKey)
	}
	return existing, nil
}
