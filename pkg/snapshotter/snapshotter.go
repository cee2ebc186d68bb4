package snapshotter

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/wicketlabs/pavilion/internal/config"
	"github.com/wicketlabs/pavilion/pkg/ledger"
	"github.com/wicketlabs/pavilion/pkg/metrics"
	"github.com/wicketlabs/pavilion/pkg/metrics/metricsTypes"
	"github.com/wicketlabs/pavilion/pkg/storage"
	orderedmap "github.com/wk8/go-ordered-map/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// DefaultSourceAddress is the SPL token program snapshots are read from
// when the caller does not name one.
const DefaultSourceAddress = "TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA"

const defaultQueryLimit = 4

// SnapshotEngine captures the point-in-time holder view for a tournament
// phase and persists it under the one-snapshot-per-(tournament, type)
// guarantee.
type SnapshotEngine struct {
	logger       *zap.Logger
	store        storage.TournamentStore
	ledger       ledger.Ledger
	sink         *metrics.MetricsSink
	globalConfig *config.Config
}

func NewSnapshotEngine(
	store storage.TournamentStore,
	lg ledger.Ledger,
	sink *metrics.MetricsSink,
	cfg *config.Config,
	l *zap.Logger,
) *SnapshotEngine {
	return &SnapshotEngine{
		logger:       l,
		store:        store,
		ledger:       lg,
		sink:         sink,
		globalConfig: cfg,
	}
}

// CaptureResult is the persisted snapshot plus the tokens whose holder
// query failed. A non-empty FailedTokens means the snapshot is degraded and
// the caller may decide to compensate.
type CaptureResult struct {
	Snapshot     *storage.Snapshot
	FailedTokens []string
}

type tokenHolders struct {
	tokenMint string
	holders   []*ledger.HolderBalance
	err       error
}

// CaptureSnapshot queries every eligible token's holders, normalizes them
// into the canonical holdings payload and persists the snapshot. Capture is
// a one-time event per (tournament, type); a second call fails with
// storage.ErrDuplicateSnapshot.
func (se *SnapshotEngine) CaptureSnapshot(
	ctx context.Context,
	tournamentId uint64,
	snapshotType storage.SnapshotType,
	sourceAddress string,
) (*CaptureResult, error) {
	captureStart := time.Now()

	tournament, err := se.store.GetTournament(ctx, tournamentId)
	if err != nil {
		return nil, err
	}

	if _, err := se.store.GetSnapshot(ctx, tournamentId, snapshotType); err == nil {
		return nil, storage.ErrDuplicateSnapshot
	} else if !errors.Is(err, storage.ErrSnapshotNotFound) {
		return nil, err
	}

	if sourceAddress == "" {
		sourceAddress = DefaultSourceAddress
	}

	tokens := se.resolveEligibleTokens(tournament)
	if len(tokens) == 0 {
		return nil, fmt.Errorf("no eligible tokens to snapshot for tournament '%d'", tournamentId)
	}

	slot, err := se.ledger.GetCurrentLedgerPosition(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read ledger position: %w", err)
	}

	// POST_MATCH must never be stamped behind PRE_MATCH.
	if snapshotType == storage.SnapshotType_PostMatch {
		pre, err := se.store.GetSnapshot(ctx, tournamentId, storage.SnapshotType_PreMatch)
		if err == nil && slot < pre.Slot {
			return nil, fmt.Errorf("ledger position '%d' is behind the PRE_MATCH snapshot slot '%d'", slot, pre.Slot)
		}
	}

	results := se.queryHolders(ctx, tokens)

	holdings, failedTokens := se.normalizeHoldings(tokens, results)
	if len(failedTokens) == len(tokens) {
		return nil, fmt.Errorf("all '%d' token holder queries failed for tournament '%d'", len(tokens), tournamentId)
	}

	snapshot := &storage.Snapshot{
		TournamentId:     tournamentId,
		SnapshotType:     snapshotType,
		SourceAddress:    sourceAddress,
		Slot:             slot,
		FailedTokenCount: len(failedTokens),
		TakenAt:          time.Now().UTC(),
		Holdings:         holdings,
	}

	inserted, err := se.store.InsertSnapshot(ctx, snapshot)
	if err != nil {
		return nil, err
	}

	se.sink.Incr(metricsTypes.Metric_Incr_SnapshotCaptured, []metricsTypes.MetricsLabel{
		{Name: "snapshotType", Value: string(snapshotType)},
	}, 1)
	se.sink.Timing(metricsTypes.Metric_Timing_SnapshotCapture, time.Since(captureStart), nil)

	totalBalance, err := se.store.GetSnapshotTotalBalance(ctx, inserted.Id)
	if err != nil {
		se.logger.Sugar().Errorw("Failed to sum captured balances",
			zap.Uint64("snapshotId", inserted.Id),
			zap.Error(err),
		)
		totalBalance = "unknown"
	}

	se.logger.Sugar().Infow("Captured snapshot",
		zap.Uint64("tournamentId", tournamentId),
		zap.String("snapshotType", string(snapshotType)),
		zap.Uint64("slot", slot),
		zap.Int("holdings", len(holdings)),
		zap.String("totalBalance", totalBalance),
		zap.Strings("failedTokens", failedTokens),
	)

	return &CaptureResult{
		Snapshot:     inserted,
		FailedTokens: failedTokens,
	}, nil
}

// resolveEligibleTokens returns the tournament's frozen token list, falling
// back to the chain default set, always excluding the utility/payment mint.
func (se *SnapshotEngine) resolveEligibleTokens(tournament *storage.Tournament) []string {
	candidates := tournament.EligibleTokens
	if len(candidates) == 0 {
		candidates = se.globalConfig.GetDefaultEligibleTokens()
	}

	utilityMint := se.globalConfig.GetUtilityTokenMint()
	tokens := make([]string, 0, len(candidates))
	for _, t := range candidates {
		if t == utilityMint {
			continue
		}
		tokens = append(tokens, t)
	}
	return tokens
}

// queryHolders runs the per-token holder queries concurrently. Each query
// is independent and read-only, so a failure in one never aborts the rest.
func (se *SnapshotEngine) queryHolders(ctx context.Context, tokens []string) []*tokenHolders {
	limit := se.globalConfig.LedgerConfig.QueryLimit
	if limit <= 0 {
		limit = defaultQueryLimit
	}

	results := make([]*tokenHolders, len(tokens))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for i, tokenMint := range tokens {
		i, tokenMint := i, tokenMint
		g.Go(func() error {
			holders, err := se.ledger.ListHoldersWithBalances(gctx, tokenMint)
			mu.Lock()
			results[i] = &tokenHolders{tokenMint: tokenMint, holders: holders, err: err}
			mu.Unlock()
			if err != nil {
				se.sink.Incr(metricsTypes.Metric_Incr_SnapshotTokenFailed, nil, 1)
				se.logger.Sugar().Errorw("Failed to query token holders",
					zap.String("tokenMint", tokenMint),
					zap.Error(err),
				)
			}
			return nil
		})
	}
	// Workers never return errors; failures are carried in the results.
	_ = g.Wait()

	return results
}

// normalizeHoldings folds the raw query results into the canonical payload:
// token order as resolved, holders as returned by the adapter, one row per
// (holder, token), infrastructure addresses dropped.
func (se *SnapshotEngine) normalizeHoldings(tokens []string, results []*tokenHolders) ([]storage.SnapshotHolding, []string) {
	excluded := make(map[string]bool)
	for _, a := range se.globalConfig.GetProtocolAddresses() {
		excluded[a] = true
	}

	type holdingKey struct {
		holder    string
		tokenMint string
	}

	om := orderedmap.New[holdingKey, string]()
	failedTokens := make([]string, 0)

	for _, res := range results {
		if res == nil {
			continue
		}
		if res.err != nil {
			failedTokens = append(failedTokens, res.tokenMint)
			continue
		}
		for _, h := range res.holders {
			if excluded[h.Address] {
				continue
			}
			if h.Balance == "" || h.Balance == "0" {
				continue
			}
			om.Set(holdingKey{holder: h.Address, tokenMint: res.tokenMint}, h.Balance)
		}
	}

	holdings := make([]storage.SnapshotHolding, 0, om.Len())
	for pair := om.Oldest(); pair != nil; pair = pair.Next() {
		holdings = append(holdings, storage.SnapshotHolding{
			HolderAddress: pair.Key.holder,
			TokenMint:     pair.Key.tokenMint,
			Balance:       pair.Value,
		})
	}
	return holdings, failedTokens
}
