package distributor

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/wicketlabs/pavilion/internal/config"
	"github.com/wicketlabs/pavilion/internal/logger"
	"github.com/wicketlabs/pavilion/internal/tests"
	"github.com/wicketlabs/pavilion/pkg/ledger"
	"github.com/wicketlabs/pavilion/pkg/ledger/memLedger"
	"github.com/wicketlabs/pavilion/pkg/rewards"
	"github.com/wicketlabs/pavilion/pkg/storage"
	"github.com/wicketlabs/pavilion/pkg/storage/gormStore"
)

const rewardMint = "CRKTrwd11111111111111111111111111111111111"

func setup(t *testing.T) (storage.TournamentStore, *memLedger.MemLedger, *Distributor, *config.Config) {
	cfg := tests.GetConfig()
	cfg.RewardsConfig.TokenMint = rewardMint
	cfg.RewardsConfig.BatchSize = 2
	cfg.RewardsConfig.BatchCooldown = time.Millisecond

	l, _ := logger.NewLogger(&logger.LoggerConfig{Debug: cfg.Debug})

	grm, err := tests.GetSqliteDatabaseConnection(l)
	if err != nil {
		t.Fatal(err)
	}
	store := gormStore.NewGormTournamentStore(grm, l)

	ml := memLedger.NewMemLedger("vault", cfg.GetProtocolAddresses())
	ml.SetBalance("vault", rewardMint, big.NewInt(1_000_000))

	rc, err := rewards.NewRewardsCalculator(store, cfg, l)
	if err != nil {
		t.Fatal(err)
	}

	dist := NewDistributor(store, ml, rc, nil, nil, cfg, l)

	return store, ml, dist, cfg
}

// seedTournament persists a tournament with a stable pre/post holding pair.
func seedTournament(t *testing.T, store storage.TournamentStore, balances map[string]string) *storage.Tournament {
	ctx := context.Background()
	tournament, err := store.InsertTournament(ctx, &storage.Tournament{
		Name:   "The Ashes",
		TeamA:  "AUS",
		TeamB:  "ENG",
		Status: storage.TournamentStatus_Completed,
	})
	if err != nil {
		t.Fatal(err)
	}

	holdings := make([]storage.SnapshotHolding, 0, len(balances))
	for address, balance := range balances {
		holdings = append(holdings, storage.SnapshotHolding{
			HolderAddress: address,
			TokenMint:     "mintA",
			Balance:       balance,
		})
	}

	_, err = store.InsertSnapshot(ctx, &storage.Snapshot{
		TournamentId: tournament.Id,
		SnapshotType: storage.SnapshotType_PreMatch,
		Slot:         100,
		Holdings:     holdings,
	})
	if err != nil {
		t.Fatal(err)
	}
	_, err = store.InsertSnapshot(ctx, &storage.Snapshot{
		TournamentId: tournament.Id,
		SnapshotType: storage.SnapshotType_PostMatch,
		Slot:         200,
		Holdings:     holdings,
	})
	if err != nil {
		t.Fatal(err)
	}
	return tournament
}

func Test_Distribute(t *testing.T) {
	ctx := context.Background()

	t.Run("Should pay proportional shares and record the distributed total", func(t *testing.T) {
		store, ml, dist, _ := setup(t)
		tournament := seedTournament(t, store, map[string]string{
			"addressA": "30",
			"addressB": "70",
		})

		result, err := dist.Distribute(ctx, tournament.Id, big.NewInt(1000))
		assert.Nil(t, err)

		assert.Equal(t, 2, result.Successful)
		assert.Equal(t, 0, result.Failed)
		assert.Equal(t, 0, result.Skipped)
		assert.Equal(t, "1000", result.TotalDistributed.String())
		assert.Equal(t, result.Successful+result.Failed+result.Skipped, len(result.Details))

		balance, _ := ml.GetBalance(ctx, "addressA", rewardMint)
		assert.Equal(t, "300", balance)
		balance, _ = ml.GetBalance(ctx, "addressB", rewardMint)
		assert.Equal(t, "700", balance)

		pool, err := store.GetRewardPoolForTournament(ctx, tournament.Id)
		assert.Nil(t, err)
		assert.Equal(t, "1000", pool.DistributedAmount)
	})

	t.Run("Should isolate one failing recipient from the rest", func(t *testing.T) {
		store, ml, dist, _ := setup(t)
		tournament := seedTournament(t, store, map[string]string{
			"addressA": "10",
			"addressB": "10",
			"addressC": "10",
		})
		ml.FailTransferTo("addressB", ledger.NewNetworkError(errors.New("rpc unavailable")))

		result, err := dist.Distribute(ctx, tournament.Id, big.NewInt(300))
		assert.Nil(t, err)

		assert.Equal(t, 2, result.Successful)
		assert.Equal(t, 1, result.Failed)
		assert.Equal(t, 0, result.Skipped)

		userRewards, err := store.ListUserRewards(ctx, result.RewardPoolId)
		assert.Nil(t, err)
		for _, r := range userRewards {
			if r.RecipientAddress == "addressB" {
				assert.Equal(t, storage.RewardStatus_Failed, r.Status)
				assert.Contains(t, r.ErrorDetail, "rpc unavailable")
			} else {
				assert.Equal(t, storage.RewardStatus_Completed, r.Status)
				assert.NotEmpty(t, r.TransactionRef)
			}
		}
	})

	t.Run("Should never pay a recipient twice across re-invocations", func(t *testing.T) {
		store, ml, dist, _ := setup(t)
		tournament := seedTournament(t, store, map[string]string{
			"addressA": "30",
			"addressB": "70",
		})

		first, err := dist.Distribute(ctx, tournament.Id, big.NewInt(1000))
		assert.Nil(t, err)
		assert.Equal(t, 2, first.Successful)
		transfersAfterFirst := ml.TransferCount()

		second, err := dist.Distribute(ctx, tournament.Id, big.NewInt(1000))
		assert.Nil(t, err)
		assert.Equal(t, 2, second.Successful)
		assert.Equal(t, "1000", second.TotalDistributed.String())
		assert.Equal(t, transfersAfterFirst, ml.TransferCount())

		balance, _ := ml.GetBalance(ctx, "addressA", rewardMint)
		assert.Equal(t, "300", balance)
	})

	t.Run("Should not retry failed recipients on resume", func(t *testing.T) {
		store, ml, dist, _ := setup(t)
		tournament := seedTournament(t, store, map[string]string{
			"addressA": "50",
			"addressB": "50",
		})
		ml.FailTransferTo("addressB", ledger.NewNetworkError(errors.New("rpc unavailable")))

		first, err := dist.Distribute(ctx, tournament.Id, big.NewInt(100))
		assert.Nil(t, err)
		assert.Equal(t, 1, first.Failed)

		second, err := dist.Distribute(ctx, tournament.Id, big.NewInt(100))
		assert.Nil(t, err)
		assert.Equal(t, 1, second.Successful)
		assert.Equal(t, 1, second.Failed)

		// the injected fault is one-shot; the count staying at 1 proves no retry happened
		balance, _ := ml.GetBalance(ctx, "addressB", rewardMint)
		assert.Equal(t, "0", balance)
	})

	t.Run("Should record below-threshold shares as skipped without transferring", func(t *testing.T) {
		store, ml, dist, cfg := setup(t)
		cfg.RewardsConfig.MinPayout = "50"

		l, _ := logger.NewLogger(&logger.LoggerConfig{Debug: false})
		rc, err := rewards.NewRewardsCalculator(store, cfg, l)
		assert.Nil(t, err)
		dist = NewDistributor(store, ml, rc, nil, nil, cfg, l)

		tournament := seedTournament(t, store, map[string]string{
			"addressA": "990",
			"addressB": "10",
		})

		result, err := dist.Distribute(ctx, tournament.Id, big.NewInt(1000))
		assert.Nil(t, err)

		assert.Equal(t, 1, result.Successful)
		assert.Equal(t, 1, result.Skipped)
		assert.Equal(t, "990", result.TotalDistributed.String())

		balance, _ := ml.GetBalance(ctx, "addressB", rewardMint)
		assert.Equal(t, "0", balance)
	})

	t.Run("Should skip a zero share instead of submitting a doomed transfer", func(t *testing.T) {
		store, ml, dist, _ := setup(t)
		tournament := seedTournament(t, store, map[string]string{
			"addressA": "1",
			"addressB": "1",
		})

		result, err := dist.Distribute(ctx, tournament.Id, big.NewInt(1))
		assert.Nil(t, err)

		assert.Equal(t, 1, result.Successful)
		assert.Equal(t, 0, result.Failed)
		assert.Equal(t, 1, result.Skipped)
		assert.Equal(t, 1, ml.TransferCount())

		userRewards, err := store.ListUserRewards(ctx, result.RewardPoolId)
		assert.Nil(t, err)
		for _, r := range userRewards {
			if r.Amount == "0" {
				assert.Equal(t, storage.RewardStatus_Skipped, r.Status)
			}
		}
	})

	t.Run("Should refuse to resume with a different total amount", func(t *testing.T) {
		store, ml, dist, _ := setup(t)
		tournament := seedTournament(t, store, map[string]string{
			"addressA": "30",
			"addressB": "70",
		})

		_, err := dist.Distribute(ctx, tournament.Id, big.NewInt(1000))
		assert.Nil(t, err)
		transfersAfterFirst := ml.TransferCount()

		_, err = dist.Distribute(ctx, tournament.Id, big.NewInt(999))
		assert.NotNil(t, err)
		assert.Contains(t, err.Error(), "recorded with total '1000'")
		assert.Equal(t, transfersAfterFirst, ml.TransferCount())
	})

	t.Run("Should cool down between batches", func(t *testing.T) {
		store, ml, _, cfg := setup(t)
		cfg.RewardsConfig.BatchCooldown = 5 * time.Second

		l, _ := logger.NewLogger(&logger.LoggerConfig{Debug: false})
		rc, err := rewards.NewRewardsCalculator(store, cfg, l)
		assert.Nil(t, err)
		clock := clockwork.NewFakeClock()
		dist := NewDistributor(store, ml, rc, nil, clock, cfg, l)

		tournament := seedTournament(t, store, map[string]string{
			"addressA": "10",
			"addressB": "10",
			"addressC": "10",
		})

		type outcome struct {
			result *DistributionResult
			err    error
		}
		done := make(chan outcome, 1)
		go func() {
			result, err := dist.Distribute(ctx, tournament.Id, big.NewInt(300))
			done <- outcome{result, err}
		}()

		// batch size 2: the first batch lands, then the run parks on the cooldown
		clock.BlockUntil(1)
		assert.Equal(t, 2, ml.TransferCount())

		clock.Advance(5 * time.Second)
		out := <-done
		assert.Nil(t, out.err)
		assert.Equal(t, 3, out.result.Successful)
		assert.Equal(t, 3, ml.TransferCount())
	})

	t.Run("Should settle interrupted PROCESSING rows as failed without transferring", func(t *testing.T) {
		store, ml, dist, _ := setup(t)
		tournament := seedTournament(t, store, map[string]string{
			"addressA": "100",
		})

		poolId := uuid.New().String()
		_, err := store.InsertRewardPoolWithRewards(ctx, &storage.RewardPool{
			Id:                poolId,
			TournamentId:      tournament.Id,
			TotalAmount:       "1000",
			DistributedAmount: "0",
			DistributionType:  DistributionType_ProportionalHoldings,
			TokenMint:         rewardMint,
		}, []*storage.UserReward{
			{RecipientAddress: "addressA", Amount: "1000", Status: storage.RewardStatus_Pending},
		})
		assert.Nil(t, err)

		userRewards, err := store.ListUserRewards(ctx, poolId)
		assert.Nil(t, err)
		err = store.UpdateUserRewardStatus(ctx, userRewards[0].Id, storage.RewardStatus_Processing, "", "")
		assert.Nil(t, err)

		result, err := dist.Distribute(ctx, tournament.Id, big.NewInt(1000))
		assert.Nil(t, err)

		assert.Equal(t, 0, result.Successful)
		assert.Equal(t, 1, result.Failed)
		assert.Equal(t, 0, ml.TransferCount())

		userRewards, err = store.ListUserRewards(ctx, poolId)
		assert.Nil(t, err)
		assert.Equal(t, storage.RewardStatus_Failed, userRewards[0].Status)
		assert.Contains(t, userRewards[0].ErrorDetail, "outcome unknown")
	})

	t.Run("Should surface the missing snapshot phase", func(t *testing.T) {
		store, _, dist, _ := setup(t)
		tournament, err := store.InsertTournament(ctx, &storage.Tournament{
			Name:   "No Snapshots Yet",
			TeamA:  "SA",
			TeamB:  "PAK",
			Status: storage.TournamentStatus_Ongoing,
		})
		assert.Nil(t, err)

		_, err = dist.Distribute(ctx, tournament.Id, big.NewInt(1000))
		var missing *rewards.MissingSnapshotError
		assert.ErrorAs(t, err, &missing)
	})
}
