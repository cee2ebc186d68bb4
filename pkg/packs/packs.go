package packs

import (
	"context"
	"math/big"
	"math/rand"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/wicketlabs/pavilion/internal/config"
	"github.com/wicketlabs/pavilion/pkg/ledger"
	"github.com/wicketlabs/pavilion/pkg/metrics"
	"github.com/wicketlabs/pavilion/pkg/metrics/metricsTypes"
	"github.com/wicketlabs/pavilion/pkg/storage"
	"go.uber.org/zap"
)

var (
	// ErrWrongPaymentAmount rejects a payment that is not exactly the
	// configured pack price.
	ErrWrongPaymentAmount = errors.New("payment amount does not match pack price")
	// ErrEmptyCatalog means the chain has no pack catalog configured.
	ErrEmptyCatalog = errors.New("pack catalog is empty")
)

// PackAllocation is the recorded outcome of one pack purchase.
type PackAllocation struct {
	PurchaseId   string
	BuyerAddress string
	TokenMints   []string
	TransferRefs []string
}

// PackAllocator draws a weighted-random basket of player tokens for a
// fixed-price payment and transfers them from the vault. The rand source is
// injected so draws are deterministic in tests.
type PackAllocator struct {
	logger       *zap.Logger
	store        storage.TournamentStore
	ledger       ledger.Ledger
	sink         *metrics.MetricsSink
	globalConfig *config.Config
	rng          *rand.Rand
}

func NewPackAllocator(
	store storage.TournamentStore,
	lg ledger.Ledger,
	sink *metrics.MetricsSink,
	cfg *config.Config,
	source rand.Source,
	l *zap.Logger,
) *PackAllocator {
	return &PackAllocator{
		logger:       l,
		store:        store,
		ledger:       lg,
		sink:         sink,
		globalConfig: cfg,
		rng:          rand.New(source),
	}
}

// AllocatePack draws the pack contents, transfers each drawn token to the
// buyer and records the purchase. The caller has already settled and
// verified the buyer's payment on the ledger; paymentRef is its transaction
// reference, kept for audit, and the claimed amount must match the
// configured pack price exactly.
//
// Transfers run sequentially; if one fails mid-pack the purchase is not
// recorded and the error names the transfers that already went out so they
// can be reconciled by hand.
func (pa *PackAllocator) AllocatePack(ctx context.Context, buyerAddress string, paymentAmount string, paymentRef string) (*PackAllocation, error) {
	if buyerAddress == "" {
		return nil, ledger.ErrInvalidAddress
	}

	price, ok := new(big.Int).SetString(pa.globalConfig.PacksConfig.Price, 10)
	if !ok || price.Sign() <= 0 {
		return nil, errors.Errorf("invalid pack price '%s'", pa.globalConfig.PacksConfig.Price)
	}
	paid, ok := new(big.Int).SetString(paymentAmount, 10)
	if !ok {
		return nil, errors.Errorf("invalid payment amount '%s'", paymentAmount)
	}
	if paid.Cmp(price) != 0 {
		return nil, ErrWrongPaymentAmount
	}

	drawn, err := pa.drawTokens()
	if err != nil {
		return nil, err
	}

	transferRefs := make([]string, 0, len(drawn))
	for _, tokenMint := range drawn {
		res := pa.ledger.Transfer(ctx, buyerAddress, pa.globalConfig.PacksConfig.TokenAmount, tokenMint)
		if !res.Success {
			pa.logger.Sugar().Errorw("Pack transfer failed mid-allocation",
				zap.String("buyerAddress", buyerAddress),
				zap.String("tokenMint", tokenMint),
				zap.Strings("completedTransferRefs", transferRefs),
				zap.Error(res.Err),
			)
			return nil, errors.Wrapf(res.Err, "pack transfer of '%s' failed after %d completed transfers", tokenMint, len(transferRefs))
		}
		transferRefs = append(transferRefs, res.TransactionRef)
	}

	purchase := &storage.PackPurchase{
		Id:            uuid.New().String(),
		BuyerAddress:  buyerAddress,
		PaymentAmount: paymentAmount,
		PaymentRef:    paymentRef,
		TokenMints:    drawn,
		TransferRefs:  transferRefs,
	}
	if _, err := pa.store.InsertPackPurchase(ctx, purchase); err != nil {
		return nil, errors.Wrap(err, "failed to record pack purchase")
	}

	pa.sink.Incr(metricsTypes.Metric_Incr_PackAllocated, nil, 1)
	pa.logger.Sugar().Infow("Allocated pack",
		zap.String("purchaseId", purchase.Id),
		zap.String("buyerAddress", buyerAddress),
		zap.Strings("tokenMints", drawn),
	)

	return &PackAllocation{
		PurchaseId:   purchase.Id,
		BuyerAddress: buyerAddress,
		TokenMints:   drawn,
		TransferRefs: transferRefs,
	}, nil
}

// drawTokens picks TokenCount mints from the chain's catalog without
// replacement, each draw proportional to the remaining entries' weights.
func (pa *PackAllocator) drawTokens() ([]string, error) {
	catalog := pa.globalConfig.GetPackCatalog()
	if len(catalog) == 0 {
		return nil, ErrEmptyCatalog
	}

	count := pa.globalConfig.PacksConfig.TokenCount
	if count <= 0 {
		count = 1
	}
	if count > len(catalog) {
		count = len(catalog)
	}

	remaining := make([]config.PackCatalogEntry, len(catalog))
	copy(remaining, catalog)

	drawn := make([]string, 0, count)
	for len(drawn) < count {
		totalWeight := 0
		for _, entry := range remaining {
			if entry.Weight > 0 {
				totalWeight += entry.Weight
			}
		}
		if totalWeight == 0 {
			return nil, errors.New("pack catalog has no positive weights")
		}

		roll := pa.rng.Intn(totalWeight)
		for i, entry := range remaining {
			if entry.Weight <= 0 {
				continue
			}
			roll -= entry.Weight
			if roll < 0 {
				drawn = append(drawn, entry.TokenMint)
				remaining = append(remaining[:i], remaining[i+1:]...)
				break
			}
		}
	}
	return drawn, nil
}
