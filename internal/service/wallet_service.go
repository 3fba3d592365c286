package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"credit-mint-engine/internal/core/domain"
	"credit-mint-engine/internal/core/ports"
	"credit-mint-engine/pkg/apperror"

	"github.com/rs/zerolog"
)

const (
	defaultLedgerLimit = 50
	maxLedgerLimit     = 200
	entityWallet       = "wallet"
)

// WalletServiceImpl implements ports.WalletService.
type WalletServiceImpl struct {
	wallets        ports.WalletRepository
	ledger         ports.LedgerRepository
	audit          ports.AuditService
	defaultBalance int64
	log            zerolog.Logger
}

// NewWalletService creates a new WalletServiceImpl. New wallets start with defaultBalance.
func NewWalletService(
	wallets ports.WalletRepository,
	ledger ports.LedgerRepository,
	audit ports.AuditService,
	defaultBalance int64,
	log zerolog.Logger,
) *WalletServiceImpl {
	return &WalletServiceImpl{
		wallets:        wallets,
		ledger:         ledger,
		audit:          audit,
		defaultBalance: defaultBalance,
		log:            log,
	}
}

// GetWallet returns the owner's wallet, creating it on first sight.
func (s *WalletServiceImpl) GetWallet(ctx context.Context, ownerID string) (*domain.Wallet, error) {
	ownerID = strings.TrimSpace(ownerID)
	if ownerID == "" {
		return nil, apperror.Validation("ownerId is required")
	}
	w, err := s.wallets.Ensure(ctx, ownerID, s.defaultBalance)
	if err != nil {
		return nil, apperror.InternalError(err)
	}
	return w, nil
}

// ListLedger returns the most recent entries. limit is clamped to 1..200, default 50.
func (s *WalletServiceImpl) ListLedger(ctx context.Context, ownerID string, limit int) ([]domain.LedgerEntry, error) {
	ownerID = strings.TrimSpace(ownerID)
	if ownerID == "" {
		return nil, apperror.Validation("ownerId is required")
	}
	if limit <= 0 {
		limit = defaultLedgerLimit
	}
	if limit > maxLedgerLimit {
		limit = maxLedgerLimit
	}

	entries, err := s.ledger.ListByOwner(ctx, ownerID, limit)
	if err != nil {
		return nil, apperror.InternalError(err)
	}
	if entries == nil {
		entries = []domain.LedgerEntry{}
	}
	return entries, nil
}

// Deposit credits the wallet once per idempotency key. A repeated key returns
// the original entry and the current wallet.
func (s *WalletServiceImpl) Deposit(ctx context.Context, req ports.DepositRequest) (*ports.DepositResult, error) {
	req.OwnerID = strings.TrimSpace(req.OwnerID)
	req.IdempotencyKey = strings.TrimSpace(req.IdempotencyKey)
	if req.OwnerID == "" {
		return nil, apperror.Validation("ownerId is required")
	}
	if req.Amount <= 0 {
		return nil, apperror.Validation("amount must be a positive integer")
	}
	if req.IdempotencyKey == "" {
		return nil, apperror.Validation("idempotencyKey is required")
	}

	if _, err := s.wallets.Ensure(ctx, req.OwnerID, s.defaultBalance); err != nil {
		return nil, apperror.InternalError(err)
	}

	meta := map[string]string{}
	if req.Caller != "" {
		meta["caller"] = req.Caller
	}
	if req.Note != "" {
		meta["note"] = req.Note
	}
	entry := domain.NewLedgerEntry(req.OwnerID, domain.LedgerKindDeposit, req.Amount, req.IdempotencyKey, domain.DepositLedgerKey(req.IdempotencyKey), meta)

	wallet, err := s.wallets.Deposit(ctx, entry)
	if err != nil {
		return nil, apperror.InternalError(err)
	}
	if wallet == nil {
		return s.replayDeposit(ctx, req, entry.IdempotencyKey)
	}

	s.audit.Record(ctx, domain.NewAuditEvent(req.Caller, domain.AuditDeposit, entityWallet, req.OwnerID, map[string]string{
		"amount":         strconv.FormatInt(req.Amount, 10),
		"idempotencyKey": req.IdempotencyKey,
		"ledgerEntryId":  entry.ID.String(),
	}))

	s.log.Info().
		Str("owner_id", req.OwnerID).
		Int64("amount", req.Amount).
		Str("idempotency_key", req.IdempotencyKey).
		Msg("deposit applied")

	return &ports.DepositResult{Entry: entry, Wallet: wallet}, nil
}

func (s *WalletServiceImpl) replayDeposit(ctx context.Context, req ports.DepositRequest, ledgerKey string) (*ports.DepositResult, error) {
	existing, err := s.ledger.GetByIdempotencyKey(ctx, ledgerKey)
	if err != nil {
		return nil, apperror.InternalError(err)
	}
	if existing == nil {
		return nil, apperror.InternalError(fmt.Errorf("deposit %s conflicted but no entry exists", ledgerKey))
	}
	if existing.OwnerID != req.OwnerID {
		return nil, apperror.Validation("idempotencyKey was already used for another owner")
	}

	wallet, err := s.wallets.Get(ctx, req.OwnerID)
	if err != nil {
		return nil, apperror.InternalError(err)
	}
	if wallet == nil {
		return nil, apperror.ErrNotFound("Wallet")
	}
	return &ports.DepositResult{Entry: existing, Wallet: wallet, Replayed: true}, nil
}

// Transfer moves spendable credits from one owner to another once per
// idempotency key. Locked credits cannot be transferred.
func (s *WalletServiceImpl) Transfer(ctx context.Context, req ports.TransferRequest) (*ports.TransferResult, error) {
	req.FromOwnerID = strings.TrimSpace(req.FromOwnerID)
	req.ToOwnerID = strings.TrimSpace(req.ToOwnerID)
	req.IdempotencyKey = strings.TrimSpace(req.IdempotencyKey)
	if err := validateTransfer(req); err != nil {
		return nil, err
	}

	for _, owner := range []string{req.FromOwnerID, req.ToOwnerID} {
		if _, err := s.wallets.Ensure(ctx, owner, s.defaultBalance); err != nil {
			return nil, apperror.InternalError(err)
		}
	}

	out := domain.NewLedgerEntry(req.FromOwnerID, domain.LedgerKindTransferOut, req.Amount, req.IdempotencyKey,
		domain.TransferOutLedgerKey(req.IdempotencyKey), transferMeta(req, req.ToOwnerID))
	in := domain.NewLedgerEntry(req.ToOwnerID, domain.LedgerKindTransferIn, req.Amount, req.IdempotencyKey,
		domain.TransferInLedgerKey(req.IdempotencyKey), transferMeta(req, req.FromOwnerID))

	from, to, err := s.wallets.Transfer(ctx, out, in)
	switch {
	case errors.Is(err, domain.ErrDuplicateLedgerKey):
		return s.replayTransfer(ctx, req)
	case err != nil:
		return nil, apperror.InternalError(err)
	case from == nil:
		s.log.Warn().
			Str("from_owner_id", req.FromOwnerID).
			Int64("amount", req.Amount).
			Msg("transfer refused, insufficient balance")
		return nil, apperror.ErrInsufficientBalance()
	}

	s.audit.Record(ctx, domain.NewAuditEvent(req.Caller, domain.AuditTransfer, entityWallet, req.FromOwnerID, map[string]string{
		"toOwnerId":      req.ToOwnerID,
		"amount":         strconv.FormatInt(req.Amount, 10),
		"idempotencyKey": req.IdempotencyKey,
		"ledgerEntryId":  out.ID.String(),
	}))

	s.log.Info().
		Str("from_owner_id", req.FromOwnerID).
		Str("to_owner_id", req.ToOwnerID).
		Int64("amount", req.Amount).
		Str("idempotency_key", req.IdempotencyKey).
		Msg("transfer applied")

	return &ports.TransferResult{Out: out, In: in, FromWallet: from, ToWallet: to}, nil
}

func validateTransfer(req ports.TransferRequest) error {
	switch {
	case req.FromOwnerID == "":
		return apperror.Validation("fromOwnerId is required")
	case req.ToOwnerID == "":
		return apperror.Validation("toOwnerId is required")
	case req.FromOwnerID == req.ToOwnerID:
		return apperror.Validation("cannot transfer to self")
	case req.Amount <= 0:
		return apperror.Validation("amount must be a positive integer")
	case req.IdempotencyKey == "":
		return apperror.Validation("idempotencyKey is required")
	}
	return nil
}

func transferMeta(req ports.TransferRequest, counterparty string) map[string]string {
	meta := map[string]string{"counterparty": counterparty}
	if req.Caller != "" {
		meta["caller"] = req.Caller
	}
	if req.Note != "" {
		meta["note"] = req.Note
	}
	return meta
}

func (s *WalletServiceImpl) replayTransfer(ctx context.Context, req ports.TransferRequest) (*ports.TransferResult, error) {
	out, err := s.ledger.GetByIdempotencyKey(ctx, domain.TransferOutLedgerKey(req.IdempotencyKey))
	if err != nil {
		return nil, apperror.InternalError(err)
	}
	in, err := s.ledger.GetByIdempotencyKey(ctx, domain.TransferInLedgerKey(req.IdempotencyKey))
	if err != nil {
		return nil, apperror.InternalError(err)
	}
	if out == nil || in == nil {
		return nil, apperror.InternalError(fmt.Errorf("transfer %s conflicted but its entries are missing", req.IdempotencyKey))
	}
	if out.OwnerID != req.FromOwnerID || in.OwnerID != req.ToOwnerID || out.Amount != req.Amount {
		return nil, apperror.Validation("idempotencyKey was already used for another transfer")
	}

	from, err := s.wallets.Get(ctx, req.FromOwnerID)
	if err != nil {
		return nil, apperror.InternalError(err)
	}
	to, err := s.wallets.Get(ctx, req.ToOwnerID)
	if err != nil {
		return nil, apperror.InternalError(err)
	}
	if from == nil || to == nil {
		return nil, apperror.ErrNotFound("Wallet")
	}
	return &ports.TransferResult{Out: out, In: in, FromWallet: from, ToWallet: to, Replayed: true}, nil
}
