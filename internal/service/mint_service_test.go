package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"credit-mint-engine/config"
	"credit-mint-engine/internal/core/domain"
	"credit-mint-engine/internal/core/ports"
	"credit-mint-engine/internal/core/ports/mocks"
	"credit-mint-engine/pkg/apperror"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

type mintTestDeps struct {
	svc       *MintServiceImpl
	wallets   *mocks.MockWalletRepository
	ledger    *mocks.MockLedgerRepository
	requests  *mocks.MockMintRequestRepository
	assets    *mocks.MockAssetRepository
	receipts  *mocks.MockReceiptRepository
	generator *mocks.MockArtifactGenerator
	audit     *mocks.MockAuditService
	actions   []domain.AuditAction
}

func setupMintService(t *testing.T) *mintTestDeps {
	ctrl := gomock.NewController(t)
	d := &mintTestDeps{
		wallets:   mocks.NewMockWalletRepository(ctrl),
		ledger:    mocks.NewMockLedgerRepository(ctrl),
		requests:  mocks.NewMockMintRequestRepository(ctrl),
		assets:    mocks.NewMockAssetRepository(ctrl),
		receipts:  mocks.NewMockReceiptRepository(ctrl),
		generator: mocks.NewMockArtifactGenerator(ctrl),
		audit:     mocks.NewMockAuditService(ctrl),
	}
	guard := NewIdempotencyGuard(d.requests, d.receipts, nil, time.Hour, newTestLogger())
	d.svc = NewMintService(
		d.wallets, d.ledger, d.requests, d.assets, d.receipts, d.generator, guard, d.audit,
		config.MintConfig{GenerationTimeout: time.Second, CollectionID: "GENESIS_01", Chain: "INTERNAL"},
		newTestLogger(),
	)
	d.svc.backoff = 0
	d.audit.EXPECT().Record(gomock.Any(), gomock.Any()).
		Do(func(_ context.Context, e *domain.AuditEvent) { d.actions = append(d.actions, e.Action) }).
		AnyTimes()
	d.requests.EXPECT().UpdateStage(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil).AnyTimes()
	return d
}

// expectClaimAndLock wires the happy path up to a successful lock.
func (d *mintTestDeps) expectClaimAndLock(owner, key string, price int64) *domain.MintRequest {
	var claimed domain.MintRequest
	d.requests.EXPECT().GetByKey(gomock.Any(), owner, key).Return(nil, nil)
	d.requests.EXPECT().Claim(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, m *domain.MintRequest) (*domain.MintRequest, error) {
			claimed = *m
			return m, nil
		})
	d.wallets.EXPECT().Ensure(gomock.Any(), owner, int64(0)).Return(&domain.Wallet{OwnerID: owner, Balance: 1000}, nil)
	d.wallets.EXPECT().Lock(gomock.Any(), owner, price).Return(&domain.Wallet{OwnerID: owner, Balance: 1000 - price, LockedBalance: price}, nil)
	return &claimed
}

func TestMintService_PersistFailureCompensates(t *testing.T) {
	d := setupMintService(t)
	claimed := d.expectClaimAndLock("u1", "k1", 500)

	var appended []domain.LedgerKind
	d.ledger.EXPECT().Append(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, e *domain.LedgerEntry) (bool, error) {
			appended = append(appended, e.Kind)
			return true, nil
		}).Times(2)
	d.generator.EXPECT().Generate(gomock.Any(), gomock.Any()).Return(&ports.Artifact{Data: []byte("png")}, nil)
	d.assets.EXPECT().Create(gomock.Any(), gomock.Any()).Return(errors.New("disk full"))
	d.wallets.EXPECT().Release(gomock.Any(), "u1", int64(500)).Return(&domain.Wallet{OwnerID: "u1", Balance: 1000}, nil)
	d.requests.EXPECT().MarkFailed(gomock.Any(), gomock.Any(), domain.StagePersistFailed, string(apperror.KindInternal)).
		DoAndReturn(func(_ context.Context, id uuid.UUID, _ domain.MintStage, _ string) error {
			assert.Equal(t, claimed.ID, id)
			return nil
		})

	_, err := d.svc.Mint(context.Background(), mintInput("u1", "k1", 500))
	require.Error(t, err)
	assert.Equal(t, apperror.KindInternal, apperror.KindOf(err))
	assert.Equal(t, []domain.LedgerKind{domain.LedgerKindLock, domain.LedgerKindUnlock}, appended)
	assert.Equal(t, []domain.AuditAction{domain.AuditMintInitiated, domain.AuditMintFailed}, d.actions)
}

func TestMintService_SettleFailureBurnsDraft(t *testing.T) {
	d := setupMintService(t)
	d.expectClaimAndLock("u1", "k1", 500)

	d.ledger.EXPECT().Append(gomock.Any(), gomock.Any()).Return(true, nil).Times(2)
	d.generator.EXPECT().Generate(gomock.Any(), gomock.Any()).Return(&ports.Artifact{Data: []byte("png")}, nil)
	d.assets.EXPECT().Create(gomock.Any(), gomock.Any()).Return(nil)
	d.wallets.EXPECT().Settle(gomock.Any(), "u1", int64(500)).Return(nil, errors.New("conn reset"))
	d.assets.EXPECT().UpdateStatus(gomock.Any(), gomock.Any(), domain.AssetStatusBurned).Return(nil)
	d.wallets.EXPECT().Release(gomock.Any(), "u1", int64(500)).Return(&domain.Wallet{OwnerID: "u1", Balance: 1000}, nil)
	d.requests.EXPECT().MarkFailed(gomock.Any(), gomock.Any(), domain.StagePersistFailed, gomock.Any()).Return(nil)

	_, err := d.svc.Mint(context.Background(), mintInput("u1", "k1", 500))
	require.Error(t, err)
	assert.Equal(t, 1, countAction(d.actions, domain.AuditMintFailed))
}

func TestMintService_SpendFailureRetriedThenLeftResumable(t *testing.T) {
	d := setupMintService(t)
	d.expectClaimAndLock("u1", "k1", 500)

	spendCalls := 0
	d.ledger.EXPECT().Append(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, e *domain.LedgerEntry) (bool, error) {
			if e.Kind == domain.LedgerKindSpend {
				spendCalls++
				return false, errors.New("conn reset")
			}
			return true, nil
		}).Times(1 + finalizeAttempts)
	d.generator.EXPECT().Generate(gomock.Any(), gomock.Any()).Return(&ports.Artifact{Data: []byte("png")}, nil)
	d.assets.EXPECT().Create(gomock.Any(), gomock.Any()).Return(nil)
	d.wallets.EXPECT().Settle(gomock.Any(), "u1", int64(500)).Return(&domain.Wallet{OwnerID: "u1", Balance: 500}, nil)
	// No Release and no MarkFailed: the credits are already spent.

	_, err := d.svc.Mint(context.Background(), mintInput("u1", "k1", 500))
	require.Error(t, err)
	assert.Equal(t, apperror.KindInternal, apperror.KindOf(err))
	assert.Equal(t, finalizeAttempts, spendCalls)
	assert.Equal(t, []domain.AuditAction{domain.AuditMintInitiated}, d.actions)
}

func TestMintService_ReceiptFailureRecoversInPlace(t *testing.T) {
	d := setupMintService(t)
	d.expectClaimAndLock("u1", "k1", 500)

	spends := 0
	d.ledger.EXPECT().Append(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, e *domain.LedgerEntry) (bool, error) {
			if e.Kind == domain.LedgerKindSpend {
				spends++
				return spends == 1, nil
			}
			return true, nil
		}).Times(3)
	d.ledger.EXPECT().GetByIdempotencyKey(gomock.Any(), gomock.Any()).
		Return(domain.NewLedgerEntry("u1", domain.LedgerKindSpend, 500, "ref", "spend-x", nil), nil)
	d.generator.EXPECT().Generate(gomock.Any(), gomock.Any()).Return(&ports.Artifact{Data: []byte("png")}, nil)
	d.assets.EXPECT().Create(gomock.Any(), gomock.Any()).Return(nil)
	d.wallets.EXPECT().Settle(gomock.Any(), "u1", int64(500)).Return(&domain.Wallet{OwnerID: "u1", Balance: 500}, nil)
	d.assets.EXPECT().UpdateStatus(gomock.Any(), gomock.Any(), domain.AssetStatusMinted).Return(nil).Times(2)
	gomock.InOrder(
		d.receipts.EXPECT().Create(gomock.Any(), gomock.Any()).Return(false, errors.New("conn reset")),
		d.receipts.EXPECT().Create(gomock.Any(), gomock.Any()).Return(true, nil),
	)
	d.requests.EXPECT().MarkCompleted(gomock.Any(), gomock.Any()).Return(nil)

	res, err := d.svc.Mint(context.Background(), mintInput("u1", "k1", 500))
	require.NoError(t, err)
	assert.False(t, res.Replayed)
	assert.Equal(t, 1, countAction(d.actions, domain.AuditMintSucceeded))
}

func TestMintService_StoredReceiptWinsOverNewOne(t *testing.T) {
	d := setupMintService(t)
	claimed := d.expectClaimAndLock("u1", "k1", 500)

	stored := &domain.Receipt{ID: uuid.New(), OwnerID: "u1", TokenID: "MINT-1-0123456789abcdef", TransactionHash: "0xstored", PriceCredits: 500}
	d.ledger.EXPECT().Append(gomock.Any(), gomock.Any()).Return(true, nil).Times(2)
	d.generator.EXPECT().Generate(gomock.Any(), gomock.Any()).Return(&ports.Artifact{Data: []byte("png")}, nil)
	d.assets.EXPECT().Create(gomock.Any(), gomock.Any()).Return(nil)
	d.wallets.EXPECT().Settle(gomock.Any(), "u1", int64(500)).Return(&domain.Wallet{OwnerID: "u1", Balance: 500}, nil)
	d.assets.EXPECT().UpdateStatus(gomock.Any(), gomock.Any(), domain.AssetStatusMinted).Return(nil)
	d.receipts.EXPECT().Create(gomock.Any(), gomock.Any()).Return(false, nil)
	d.receipts.EXPECT().GetByMintRequestID(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, id uuid.UUID) (*domain.Receipt, error) {
			assert.Equal(t, claimed.ID, id)
			return stored, nil
		})
	d.requests.EXPECT().MarkCompleted(gomock.Any(), gomock.Any()).Return(nil)

	res, err := d.svc.Mint(context.Background(), mintInput("u1", "k1", 500))
	require.NoError(t, err)
	assert.Equal(t, "0xstored", res.TransactionHash)
}

func TestMintService_SpendConflictReusesEntry(t *testing.T) {
	d := setupMintService(t)
	d.expectClaimAndLock("u1", "k1", 500)

	existing := domain.NewLedgerEntry("u1", domain.LedgerKindSpend, 500, "ref", "spend-x", nil)
	d.ledger.EXPECT().Append(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, e *domain.LedgerEntry) (bool, error) {
			return e.Kind != domain.LedgerKindSpend, nil
		}).Times(2)
	d.ledger.EXPECT().GetByIdempotencyKey(gomock.Any(), gomock.Any()).Return(existing, nil)
	d.generator.EXPECT().Generate(gomock.Any(), gomock.Any()).Return(&ports.Artifact{Data: []byte("png")}, nil)
	d.assets.EXPECT().Create(gomock.Any(), gomock.Any()).Return(nil)
	d.wallets.EXPECT().Settle(gomock.Any(), "u1", int64(500)).Return(&domain.Wallet{OwnerID: "u1", Balance: 500}, nil)
	d.assets.EXPECT().UpdateStatus(gomock.Any(), gomock.Any(), domain.AssetStatusMinted).Return(nil)
	d.receipts.EXPECT().Create(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, r *domain.Receipt) (bool, error) {
			require.NotNil(t, r.LedgerEntryID)
			assert.Equal(t, existing.ID, *r.LedgerEntryID)
			return true, nil
		})
	d.requests.EXPECT().MarkCompleted(gomock.Any(), gomock.Any()).Return(nil)

	res, err := d.svc.Mint(context.Background(), mintInput("u1", "k1", 500))
	require.NoError(t, err)
	assert.Equal(t, []domain.AuditAction{domain.AuditMintInitiated, domain.AuditMintSucceeded}, d.actions)
	assert.Equal(t, int64(500), res.PriceCredits)
}

func TestMintService_CancelledAfterPersistStillSettles(t *testing.T) {
	d := setupMintService(t)
	d.expectClaimAndLock("u1", "k1", 500)
	ctx, cancel := context.WithCancel(context.Background())

	d.ledger.EXPECT().Append(gomock.Any(), gomock.Any()).Return(true, nil).Times(2)
	d.generator.EXPECT().Generate(gomock.Any(), gomock.Any()).Return(&ports.Artifact{Data: []byte("png")}, nil)
	d.assets.EXPECT().Create(gomock.Any(), gomock.Any()).
		DoAndReturn(func(context.Context, *domain.Asset) error {
			cancel()
			return nil
		})
	d.wallets.EXPECT().Settle(gomock.Any(), "u1", int64(500)).
		DoAndReturn(func(c context.Context, owner string, amount int64) (*domain.Wallet, error) {
			assert.NoError(t, c.Err(), "settlement runs detached from the client")
			return &domain.Wallet{OwnerID: owner, Balance: 500}, nil
		})
	d.assets.EXPECT().UpdateStatus(gomock.Any(), gomock.Any(), domain.AssetStatusMinted).Return(nil)
	d.receipts.EXPECT().Create(gomock.Any(), gomock.Any()).Return(true, nil)
	d.requests.EXPECT().MarkCompleted(gomock.Any(), gomock.Any()).Return(nil)

	_, err := d.svc.Mint(ctx, mintInput("u1", "k1", 500))
	assert.NoError(t, err)
}

func TestAssetTitle(t *testing.T) {
	assert.Equal(t, "a short idea", assetTitle("  a   short\nidea "))

	long := assetTitle(strings.Repeat("word ", 50))
	assert.Equal(t, maxTitleRunes, len([]rune(long)))
	assert.True(t, strings.HasSuffix(long, "..."))
}

func countAction(actions []domain.AuditAction, want domain.AuditAction) int {
	n := 0
	for _, a := range actions {
		if a == want {
			n++
		}
	}
	return n
}

func TestMintService_PreviewChargesNothing(t *testing.T) {
	d := setupMintService(t)

	d.generator.EXPECT().Generate(gomock.Any(), ports.ArtifactPrompt{Description: "a brass owl", StyleHint: "noir"}).
		DoAndReturn(func(ctx context.Context, _ ports.ArtifactPrompt) (*ports.Artifact, error) {
			_, hasDeadline := ctx.Deadline()
			assert.True(t, hasDeadline)
			return &ports.Artifact{Data: []byte{0x89, 'P', 'N', 'G'}}, nil
		})

	art, err := d.svc.Preview(context.Background(), ports.PreviewRequest{OwnerID: " user-1 ", Description: "a brass owl", StyleHint: "noir"})
	require.NoError(t, err)
	assert.Equal(t, "image/png", art.ContentType)
	assert.Empty(t, d.actions)
}

func TestMintService_PreviewErrors(t *testing.T) {
	t.Run("validation", func(t *testing.T) {
		d := setupMintService(t)
		_, err := d.svc.Preview(context.Background(), ports.PreviewRequest{OwnerID: "user-1", Description: "  "})
		assert.Equal(t, apperror.KindValidation, apperror.KindOf(err))
	})

	t.Run("generator failure", func(t *testing.T) {
		d := setupMintService(t)
		d.generator.EXPECT().Generate(gomock.Any(), gomock.Any()).Return(nil, errors.New("quota"))
		_, err := d.svc.Preview(context.Background(), ports.PreviewRequest{OwnerID: "user-1", Description: "owl"})
		assert.Equal(t, apperror.KindGenerationFailed, apperror.KindOf(err))
	})

	t.Run("missing key", func(t *testing.T) {
		d := setupMintService(t)
		d.generator.EXPECT().Generate(gomock.Any(), gomock.Any()).Return(nil, apperror.ErrConfigMissing("generator.api_key"))
		_, err := d.svc.Preview(context.Background(), ports.PreviewRequest{OwnerID: "user-1", Description: "owl"})
		assert.Equal(t, apperror.KindServerMisconfigured, apperror.KindOf(err))
	})
}
