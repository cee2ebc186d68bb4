package rewards

import (
	"context"
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/wicketlabs/pavilion/internal/config"
	"github.com/wicketlabs/pavilion/internal/logger"
	"github.com/wicketlabs/pavilion/internal/tests"
	"github.com/wicketlabs/pavilion/pkg/storage"
	"github.com/wicketlabs/pavilion/pkg/storage/gormStore"
	"go.uber.org/zap"
)

func setup() (storage.TournamentStore, *config.Config, *zap.Logger, error) {
	cfg := tests.GetConfig()

	l, _ := logger.NewLogger(&logger.LoggerConfig{Debug: cfg.Debug})

	grm, err := tests.GetSqliteDatabaseConnection(l)
	if err != nil {
		return nil, nil, nil, err
	}

	return gormStore.NewGormTournamentStore(grm, l), cfg, l, nil
}

func makeSnapshot(tournamentId uint64, snapshotType storage.SnapshotType, slot uint64, holdings []storage.SnapshotHolding) *storage.Snapshot {
	return &storage.Snapshot{
		TournamentId: tournamentId,
		SnapshotType: snapshotType,
		Slot:         slot,
		Holdings:     holdings,
	}
}

func holding(address string, tokenMint string, balance string) storage.SnapshotHolding {
	return storage.SnapshotHolding{
		HolderAddress: address,
		TokenMint:     tokenMint,
		Balance:       balance,
	}
}

func Test_RewardsCalculator(t *testing.T) {
	store, cfg, l, err := setup()
	if err != nil {
		t.Fatal(err)
	}

	rc, err := NewRewardsCalculator(store, cfg, l)
	assert.Nil(t, err)

	const mint = "PLYRkoh1iGLNoFNzhbJcStc4Xu63VTtTgnZGJGAGDS5"

	t.Run("Should give the full pool to the remaining holder when the other exits", func(t *testing.T) {
		pre := makeSnapshot(1, storage.SnapshotType_PreMatch, 100, []storage.SnapshotHolding{
			holding("addressA", mint, "500"),
			holding("addressB", mint, "500"),
		})
		post := makeSnapshot(1, storage.SnapshotType_PostMatch, 200, []storage.SnapshotHolding{
			holding("addressA", mint, "500"),
			holding("addressB", mint, "0"),
		})

		set, err := rc.CalculateRewards(pre, post, big.NewInt(1000))
		assert.Nil(t, err)

		assert.Equal(t, 1, len(set.Eligible))
		assert.Equal(t, "addressA", set.Eligible[0].Address)
		assert.Equal(t, "1000", set.Eligible[0].Amount.String())
		assert.Equal(t, []string{"addressB"}, set.IneligibleAddresses)
	})

	t.Run("Should split proportionally to retained holdings", func(t *testing.T) {
		pre := makeSnapshot(1, storage.SnapshotType_PreMatch, 100, []storage.SnapshotHolding{
			holding("addressA", mint, "30"),
			holding("addressB", mint, "70"),
		})
		post := makeSnapshot(1, storage.SnapshotType_PostMatch, 200, []storage.SnapshotHolding{
			holding("addressA", mint, "30"),
			holding("addressB", mint, "70"),
		})

		set, err := rc.CalculateRewards(pre, post, big.NewInt(1000))
		assert.Nil(t, err)

		assert.Equal(t, 2, len(set.Eligible))
		assert.Equal(t, "300", set.Eligible[0].Amount.String())
		assert.Equal(t, "700", set.Eligible[1].Amount.String())
	})

	t.Run("Should weight mid-match sellers by the retained portion only", func(t *testing.T) {
		pre := makeSnapshot(1, storage.SnapshotType_PreMatch, 100, []storage.SnapshotHolding{
			holding("addressA", mint, "100"),
			holding("addressB", mint, "100"),
		})
		post := makeSnapshot(1, storage.SnapshotType_PostMatch, 200, []storage.SnapshotHolding{
			holding("addressA", mint, "100"),
			holding("addressB", mint, "50"),
		})

		set, err := rc.CalculateRewards(pre, post, big.NewInt(300))
		assert.Nil(t, err)

		assert.Equal(t, "200", set.Eligible[0].Amount.String())
		assert.Equal(t, "100", set.Eligible[1].Amount.String())
	})

	t.Run("Should ignore holdings acquired after the pre-match snapshot", func(t *testing.T) {
		pre := makeSnapshot(1, storage.SnapshotType_PreMatch, 100, []storage.SnapshotHolding{
			holding("addressA", mint, "100"),
		})
		post := makeSnapshot(1, storage.SnapshotType_PostMatch, 200, []storage.SnapshotHolding{
			holding("addressA", mint, "100"),
			holding("addressB", mint, "100000"),
		})

		set, err := rc.CalculateRewards(pre, post, big.NewInt(1000))
		assert.Nil(t, err)

		assert.Equal(t, 1, len(set.Eligible))
		assert.Equal(t, "addressA", set.Eligible[0].Address)
		assert.Equal(t, "1000", set.Eligible[0].Amount.String())
	})

	t.Run("Should hand the rounding remainder to the largest holder and never exceed the total", func(t *testing.T) {
		pre := makeSnapshot(1, storage.SnapshotType_PreMatch, 100, []storage.SnapshotHolding{
			holding("addressA", mint, "1"),
			holding("addressB", mint, "1"),
			holding("addressC", mint, "1"),
		})
		post := makeSnapshot(1, storage.SnapshotType_PostMatch, 200, []storage.SnapshotHolding{
			holding("addressA", mint, "1"),
			holding("addressB", mint, "1"),
			holding("addressC", mint, "1"),
		})

		set, err := rc.CalculateRewards(pre, post, big.NewInt(100))
		assert.Nil(t, err)

		sum := big.NewInt(0)
		for _, share := range set.Eligible {
			sum.Add(sum, share.Amount)
		}
		assert.Equal(t, "100", sum.String())
		// equal weights: lexically smallest address takes the remainder
		assert.Equal(t, "34", set.Eligible[0].Amount.String())
		assert.Equal(t, "33", set.Eligible[1].Amount.String())
		assert.Equal(t, "33", set.Eligible[2].Amount.String())
	})

	t.Run("Should skip shares floored to zero even without a threshold", func(t *testing.T) {
		pre := makeSnapshot(1, storage.SnapshotType_PreMatch, 100, []storage.SnapshotHolding{
			holding("addressA", mint, "1"),
			holding("addressB", mint, "1"),
		})
		post := makeSnapshot(1, storage.SnapshotType_PostMatch, 200, []storage.SnapshotHolding{
			holding("addressA", mint, "1"),
			holding("addressB", mint, "1"),
		})

		set, err := rc.CalculateRewards(pre, post, big.NewInt(1))
		assert.Nil(t, err)
		assert.Equal(t, 2, len(set.Eligible))
		assert.Equal(t, "1", set.Eligible[0].Amount.String())
		assert.False(t, set.Eligible[0].Skipped)
		assert.Equal(t, "0", set.Eligible[1].Amount.String())
		assert.True(t, set.Eligible[1].Skipped)
	})

	t.Run("Should produce identical output across runs", func(t *testing.T) {
		pre := makeSnapshot(1, storage.SnapshotType_PreMatch, 100, []storage.SnapshotHolding{
			holding("addressC", mint, "17"),
			holding("addressA", mint, "41"),
			holding("addressB", mint, "23"),
		})
		post := makeSnapshot(1, storage.SnapshotType_PostMatch, 200, []storage.SnapshotHolding{
			holding("addressB", mint, "23"),
			holding("addressC", mint, "11"),
			holding("addressA", mint, "41"),
		})

		first, err := rc.CalculateRewards(pre, post, big.NewInt(99999))
		assert.Nil(t, err)
		second, err := rc.CalculateRewards(pre, post, big.NewInt(99999))
		assert.Nil(t, err)

		assert.Equal(t, len(first.Eligible), len(second.Eligible))
		for i := range first.Eligible {
			assert.Equal(t, first.Eligible[i].Address, second.Eligible[i].Address)
			assert.Equal(t, first.Eligible[i].Amount.String(), second.Eligible[i].Amount.String())
			assert.Equal(t, first.Eligible[i].Weight.String(), second.Eligible[i].Weight.String())
		}
	})

	t.Run("Should sum weights across multiple eligible tokens", func(t *testing.T) {
		otherMint := "PLYRgu1AxB8ZvMb4SbiSXXxIGzGvQTNnBLeGY2VYmfj"
		pre := makeSnapshot(1, storage.SnapshotType_PreMatch, 100, []storage.SnapshotHolding{
			holding("addressA", mint, "10"),
			holding("addressA", otherMint, "20"),
			holding("addressB", mint, "30"),
		})
		post := makeSnapshot(1, storage.SnapshotType_PostMatch, 200, []storage.SnapshotHolding{
			holding("addressA", mint, "10"),
			holding("addressA", otherMint, "20"),
			holding("addressB", mint, "30"),
		})

		set, err := rc.CalculateRewards(pre, post, big.NewInt(600))
		assert.Nil(t, err)

		assert.Equal(t, "30", set.Eligible[0].Weight.String())
		assert.Equal(t, "300", set.Eligible[0].Amount.String())
		assert.Equal(t, "300", set.Eligible[1].Amount.String())
	})

	t.Run("Should reject a non-positive total", func(t *testing.T) {
		pre := makeSnapshot(1, storage.SnapshotType_PreMatch, 100, nil)
		post := makeSnapshot(1, storage.SnapshotType_PostMatch, 200, nil)

		_, err := rc.CalculateRewards(pre, post, big.NewInt(0))
		assert.NotNil(t, err)
		_, err = rc.CalculateRewards(pre, post, nil)
		assert.NotNil(t, err)
	})

	t.Run("Should reject a snapshot pair in the wrong order", func(t *testing.T) {
		pre := makeSnapshot(1, storage.SnapshotType_PreMatch, 100, nil)
		post := makeSnapshot(1, storage.SnapshotType_PostMatch, 200, nil)

		_, err := rc.CalculateRewards(post, pre, big.NewInt(100))
		assert.NotNil(t, err)
	})

	t.Run("Should reject a post-match slot behind the pre-match slot", func(t *testing.T) {
		pre := makeSnapshot(1, storage.SnapshotType_PreMatch, 300, nil)
		post := makeSnapshot(1, storage.SnapshotType_PostMatch, 200, nil)

		_, err := rc.CalculateRewards(pre, post, big.NewInt(100))
		assert.NotNil(t, err)
	})
}

func Test_RewardsCalculatorMinPayout(t *testing.T) {
	store, cfg, l, err := setup()
	if err != nil {
		t.Fatal(err)
	}
	cfg.RewardsConfig.MinPayout = "50"

	rc, err := NewRewardsCalculator(store, cfg, l)
	assert.Nil(t, err)

	const mint = "PLYRkoh1iGLNoFNzhbJcStc4Xu63VTtTgnZGJGAGDS5"

	pre := makeSnapshot(1, storage.SnapshotType_PreMatch, 100, []storage.SnapshotHolding{
		holding("addressA", mint, "990"),
		holding("addressB", mint, "10"),
	})
	post := makeSnapshot(1, storage.SnapshotType_PostMatch, 200, []storage.SnapshotHolding{
		holding("addressA", mint, "990"),
		holding("addressB", mint, "10"),
	})

	set, err := rc.CalculateRewards(pre, post, big.NewInt(1000))
	assert.Nil(t, err)

	assert.False(t, set.Eligible[0].Skipped)
	assert.True(t, set.Eligible[1].Skipped)
	assert.Equal(t, "10", set.Eligible[1].Amount.String())
}

func Test_CalculateRewardsForTournament(t *testing.T) {
	store, cfg, l, err := setup()
	if err != nil {
		t.Fatal(err)
	}

	rc, err := NewRewardsCalculator(store, cfg, l)
	assert.Nil(t, err)

	ctx := context.Background()

	tournament, err := store.InsertTournament(ctx, &storage.Tournament{
		Name:   "IPL Final",
		TeamA:  "CSK",
		TeamB:  "MI",
		Status: storage.TournamentStatus_Upcoming,
	})
	assert.Nil(t, err)

	const mint = "PLYRkoh1iGLNoFNzhbJcStc4Xu63VTtTgnZGJGAGDS5"

	t.Run("Should name the missing pre-match snapshot", func(t *testing.T) {
		_, err := rc.CalculateRewardsForTournament(ctx, tournament.Id, big.NewInt(1000))
		assert.NotNil(t, err)

		var missing *MissingSnapshotError
		assert.ErrorAs(t, err, &missing)
		assert.Equal(t, storage.SnapshotType_PreMatch, missing.SnapshotType)
	})

	t.Run("Should name the missing post-match snapshot", func(t *testing.T) {
		_, err := store.InsertSnapshot(ctx, makeSnapshot(tournament.Id, storage.SnapshotType_PreMatch, 100, []storage.SnapshotHolding{
			holding("addressA", mint, "100"),
		}))
		assert.Nil(t, err)

		_, err = rc.CalculateRewardsForTournament(ctx, tournament.Id, big.NewInt(1000))
		var missing *MissingSnapshotError
		assert.ErrorAs(t, err, &missing)
		assert.Equal(t, storage.SnapshotType_PostMatch, missing.SnapshotType)
	})

	t.Run("Should calculate from persisted snapshots", func(t *testing.T) {
		_, err := store.InsertSnapshot(ctx, makeSnapshot(tournament.Id, storage.SnapshotType_PostMatch, 200, []storage.SnapshotHolding{
			holding("addressA", mint, "100"),
		}))
		assert.Nil(t, err)

		set, err := rc.CalculateRewardsForTournament(ctx, tournament.Id, big.NewInt(1000))
		assert.Nil(t, err)
		assert.Equal(t, 1, len(set.Eligible))
		assert.Equal(t, "1000", set.Eligible[0].Amount.String())
	})
}
