package distributor

import (
	"context"
	"math/big"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/pkg/errors"
	"github.com/wicketlabs/pavilion/internal/config"
	"github.com/wicketlabs/pavilion/pkg/ledger"
	"github.com/wicketlabs/pavilion/pkg/metrics"
	"github.com/wicketlabs/pavilion/pkg/metrics/metricsTypes"
	"github.com/wicketlabs/pavilion/pkg/rewards"
	"github.com/wicketlabs/pavilion/pkg/storage"
	"go.uber.org/zap"
)

const (
	// DistributionType_ProportionalHoldings is the only policy currently in
	// use: shares proportional to retained snapshot holdings.
	DistributionType_ProportionalHoldings = "PROPORTIONAL_HOLDINGS"

	defaultBatchSize     = 5
	defaultBatchCooldown = 2 * time.Second
)

// RecipientResult is the per-recipient outcome of one distribution run.
type RecipientResult struct {
	Address        string
	Amount         string
	Status         storage.RewardStatus
	TransactionRef string
	Error          string
}

// DistributionResult is the complete summary of a distribute call. Partial
// transfer failures are recorded here, never raised as errors.
type DistributionResult struct {
	TournamentId     uint64
	RewardPoolId     string
	Successful       int
	Failed           int
	Skipped          int
	TotalDistributed *big.Int
	Details          []*RecipientResult
}

// Distributor executes reward payouts: it records the full distribution
// intent first, then works through PENDING rows in bounded batches so the
// sender account's sequencing is never overrun.
type Distributor struct {
	logger       *zap.Logger
	store        storage.TournamentStore
	ledger       ledger.Ledger
	calculator   *rewards.RewardsCalculator
	sink         *metrics.MetricsSink
	clock        clockwork.Clock
	globalConfig *config.Config
}

func NewDistributor(
	store storage.TournamentStore,
	lg ledger.Ledger,
	calculator *rewards.RewardsCalculator,
	sink *metrics.MetricsSink,
	clock clockwork.Clock,
	cfg *config.Config,
	l *zap.Logger,
) *Distributor {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Distributor{
		logger:       l,
		store:        store,
		ledger:       lg,
		calculator:   calculator,
		sink:         sink,
		clock:        clock,
		globalConfig: cfg,
	}
}

// Distribute pays out totalRewardAmount to the tournament's eligible
// holders. Re-invoking for a tournament that already has a reward pool
// resumes it: COMPLETED recipients are never transferred to again, FAILED
// ones are not retried, and a fully settled pool is a no-op that returns
// the recorded summary.
func (d *Distributor) Distribute(ctx context.Context, tournamentId uint64, totalRewardAmount *big.Int) (*DistributionResult, error) {
	runStart := d.clock.Now()

	pool, err := d.store.GetRewardPoolForTournament(ctx, tournamentId)
	if err != nil && !errors.Is(err, storage.ErrRewardPoolNotFound) {
		return nil, err
	}

	if pool == nil {
		pool, err = d.recordIntent(ctx, tournamentId, totalRewardAmount)
		if err != nil {
			return nil, err
		}
	} else {
		recorded, ok := new(big.Int).SetString(pool.TotalAmount, 10)
		if !ok {
			return nil, errors.Errorf("reward pool '%s' has invalid total amount '%s'", pool.Id, pool.TotalAmount)
		}
		if recorded.Cmp(totalRewardAmount) != 0 {
			return nil, errors.Errorf("reward pool for tournament '%d' was recorded with total '%s', refusing to resume with '%s'",
				tournamentId, pool.TotalAmount, totalRewardAmount.String())
		}
		d.logger.Sugar().Infow("Reward pool already exists, resuming distribution",
			zap.Uint64("tournamentId", tournamentId),
			zap.String("rewardPoolId", pool.Id),
		)
	}

	userRewards, err := d.store.ListUserRewards(ctx, pool.Id)
	if err != nil {
		return nil, err
	}

	// A crash between the PROCESSING mark and the status write leaves the
	// transfer outcome unknown. Those rows are settled as FAILED rather
	// than re-transferred, since a retry could double-pay.
	for _, r := range userRewards {
		if r.Status == storage.RewardStatus_Processing {
			if err := d.store.UpdateUserRewardStatus(ctx, r.Id, storage.RewardStatus_Failed, r.TransactionRef,
				"outcome unknown, interrupted mid-transfer in a previous run"); err != nil {
				return nil, err
			}
			r.Status = storage.RewardStatus_Failed
			r.ErrorDetail = "outcome unknown, interrupted mid-transfer in a previous run"
		}
	}

	pending := make([]*storage.UserReward, 0, len(userRewards))
	for _, r := range userRewards {
		if r.Status == storage.RewardStatus_Pending {
			pending = append(pending, r)
		}
	}

	if err := d.transferPending(ctx, pool, pending); err != nil {
		return nil, err
	}

	result, err := d.summarize(ctx, pool)
	if err != nil {
		return nil, err
	}

	d.sink.Timing(metricsTypes.Metric_Timing_DistributionRun, d.clock.Since(runStart), nil)

	d.logger.Sugar().Infow("Distribution run complete",
		zap.Uint64("tournamentId", tournamentId),
		zap.String("rewardPoolId", pool.Id),
		zap.Int("successful", result.Successful),
		zap.Int("failed", result.Failed),
		zap.Int("skipped", result.Skipped),
		zap.String("totalDistributed", result.TotalDistributed.String()),
	)
	return result, nil
}

// recordIntent calculates the reward set and durably records the pool plus
// one row per eligible recipient before any transfer is attempted.
func (d *Distributor) recordIntent(ctx context.Context, tournamentId uint64, totalRewardAmount *big.Int) (*storage.RewardPool, error) {
	set, err := d.calculator.CalculateRewardsForTournament(ctx, tournamentId, totalRewardAmount)
	if err != nil {
		return nil, err
	}

	pool := &storage.RewardPool{
		Id:                uuid.New().String(),
		TournamentId:      tournamentId,
		TotalAmount:       totalRewardAmount.String(),
		DistributedAmount: "0",
		DistributionType:  DistributionType_ProportionalHoldings,
		TokenMint:         d.globalConfig.RewardsConfig.TokenMint,
	}

	userRewards := make([]*storage.UserReward, 0, len(set.Eligible))
	for _, share := range set.Eligible {
		status := storage.RewardStatus_Pending
		errorDetail := ""
		if share.Skipped {
			status = storage.RewardStatus_Skipped
			errorDetail = "below minimum payout threshold"
		}
		userRewards = append(userRewards, &storage.UserReward{
			RecipientAddress: share.Address,
			Amount:           share.Amount.String(),
			Status:           status,
			ErrorDetail:      errorDetail,
		})
	}

	inserted, err := d.store.InsertRewardPoolWithRewards(ctx, pool, userRewards)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to record distribution intent for tournament '%d'", tournamentId)
	}
	return inserted, nil
}

// transferPending works through the PENDING rows in bounded batches with a
// cooldown between batches. Each recipient's outcome is isolated and
// written atomically; one failure never blocks the rest.
func (d *Distributor) transferPending(ctx context.Context, pool *storage.RewardPool, pending []*storage.UserReward) error {
	batchSize := d.globalConfig.RewardsConfig.BatchSize
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	cooldown := d.globalConfig.RewardsConfig.BatchCooldown
	if cooldown <= 0 {
		cooldown = defaultBatchCooldown
	}

	for start := 0; start < len(pending); start += batchSize {
		end := start + batchSize
		if end > len(pending) {
			end = len(pending)
		}
		batch := pending[start:end]

		requests := make([]*ledger.TransferRequest, 0, len(batch))
		for _, r := range batch {
			if err := d.store.UpdateUserRewardStatus(ctx, r.Id, storage.RewardStatus_Processing, "", ""); err != nil {
				return err
			}
			requests = append(requests, &ledger.TransferRequest{
				ToAddress: r.RecipientAddress,
				Amount:    r.Amount,
				TokenMint: pool.TokenMint,
			})
			d.sink.Incr(metricsTypes.Metric_Incr_TransferAttempted, nil, 1)
		}

		results, err := ledger.BatchTransfer(ctx, d.ledger, requests, batchSize)
		if err != nil {
			return err
		}

		for i, res := range results {
			r := batch[i]
			if res != nil && res.Success {
				if err := d.store.UpdateUserRewardStatus(ctx, r.Id, storage.RewardStatus_Completed, res.TransactionRef, ""); err != nil {
					return err
				}
				if err := d.store.AddDistributedAmount(ctx, pool.Id, r.Amount); err != nil {
					return err
				}
				d.sink.Incr(metricsTypes.Metric_Incr_TransferSucceeded, nil, 1)
				continue
			}

			detail := "transfer failed"
			txRef := ""
			if res != nil {
				if res.Err != nil {
					detail = res.Err.Error()
				}
				txRef = res.TransactionRef
			}
			if err := d.store.UpdateUserRewardStatus(ctx, r.Id, storage.RewardStatus_Failed, txRef, detail); err != nil {
				return err
			}
			d.sink.Incr(metricsTypes.Metric_Incr_TransferFailed, nil, 1)
			d.logger.Sugar().Errorw("Reward transfer failed",
				zap.String("recipient", r.RecipientAddress),
				zap.String("amount", r.Amount),
				zap.String("error", detail),
			)
		}

		if end < len(pending) {
			d.clock.Sleep(cooldown)
		}
	}
	return nil
}

// summarize reads back the pool's rows and folds them into the result.
func (d *Distributor) summarize(ctx context.Context, pool *storage.RewardPool) (*DistributionResult, error) {
	userRewards, err := d.store.ListUserRewards(ctx, pool.Id)
	if err != nil {
		return nil, err
	}

	result := &DistributionResult{
		TournamentId:     pool.TournamentId,
		RewardPoolId:     pool.Id,
		TotalDistributed: big.NewInt(0),
		Details:          make([]*RecipientResult, 0, len(userRewards)),
	}

	for _, r := range userRewards {
		switch r.Status {
		case storage.RewardStatus_Completed:
			result.Successful++
			amount, ok := new(big.Int).SetString(r.Amount, 10)
			if ok {
				result.TotalDistributed.Add(result.TotalDistributed, amount)
			}
		case storage.RewardStatus_Failed:
			result.Failed++
		case storage.RewardStatus_Skipped:
			result.Skipped++
		}
		result.Details = append(result.Details, &RecipientResult{
			Address:        r.RecipientAddress,
			Amount:         r.Amount,
			Status:         r.Status,
			TransactionRef: r.TransactionRef,
			Error:          r.ErrorDetail,
		})
	}
	return result, nil
}
