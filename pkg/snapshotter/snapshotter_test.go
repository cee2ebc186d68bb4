package snapshotter

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/wicketlabs/pavilion/internal/config"
	"github.com/wicketlabs/pavilion/internal/logger"
	"github.com/wicketlabs/pavilion/internal/tests"
	"github.com/wicketlabs/pavilion/pkg/ledger/memLedger"
	"github.com/wicketlabs/pavilion/pkg/storage"
	"github.com/wicketlabs/pavilion/pkg/storage/gormStore"
)

func setup() (storage.TournamentStore, *memLedger.MemLedger, *SnapshotEngine, *config.Config, error) {
	cfg := tests.GetConfig()

	l, _ := logger.NewLogger(&logger.LoggerConfig{Debug: cfg.Debug})

	grm, err := tests.GetSqliteDatabaseConnection(l)
	if err != nil {
		return nil, nil, nil, nil, err
	}
	store := gormStore.NewGormTournamentStore(grm, l)

	ml := memLedger.NewMemLedger("vault", cfg.GetProtocolAddresses())

	se := NewSnapshotEngine(store, ml, nil, cfg, l)

	return store, ml, se, cfg, nil
}

func insertTournament(t *testing.T, store storage.TournamentStore, eligibleTokens []string) *storage.Tournament {
	tournament, err := store.InsertTournament(context.Background(), &storage.Tournament{
		Name:           "Test Series",
		TeamA:          "ENG",
		TeamB:          "NZ",
		Status:         storage.TournamentStatus_Upcoming,
		EligibleTokens: eligibleTokens,
	})
	if err != nil {
		t.Fatal(err)
	}
	return tournament
}

func Test_CaptureSnapshot(t *testing.T) {
	ctx := context.Background()

	t.Run("Should capture holders of the frozen token list", func(t *testing.T) {
		store, ml, se, _, err := setup()
		if err != nil {
			t.Fatal(err)
		}
		tournament := insertTournament(t, store, []string{"mintA", "mintB"})

		ml.SetBalance("addressA", "mintA", big.NewInt(30))
		ml.SetBalance("addressB", "mintA", big.NewInt(70))
		ml.SetBalance("addressA", "mintB", big.NewInt(5))

		result, err := se.CaptureSnapshot(ctx, tournament.Id, storage.SnapshotType_PreMatch, "")
		assert.Nil(t, err)
		assert.Empty(t, result.FailedTokens)
		assert.Equal(t, DefaultSourceAddress, result.Snapshot.SourceAddress)
		assert.Equal(t, 3, len(result.Snapshot.Holdings))

		fetched, err := store.GetSnapshot(ctx, tournament.Id, storage.SnapshotType_PreMatch)
		assert.Nil(t, err)
		assert.Equal(t, 3, len(fetched.Holdings))
		assert.Equal(t, 0, fetched.FailedTokenCount)
	})

	t.Run("Should refuse a second capture of the same phase", func(t *testing.T) {
		store, ml, se, _, err := setup()
		if err != nil {
			t.Fatal(err)
		}
		tournament := insertTournament(t, store, []string{"mintA"})
		ml.SetBalance("addressA", "mintA", big.NewInt(30))

		_, err = se.CaptureSnapshot(ctx, tournament.Id, storage.SnapshotType_PreMatch, "")
		assert.Nil(t, err)

		_, err = se.CaptureSnapshot(ctx, tournament.Id, storage.SnapshotType_PreMatch, "")
		assert.ErrorIs(t, err, storage.ErrDuplicateSnapshot)
	})

	t.Run("Should exclude protocol infrastructure addresses", func(t *testing.T) {
		store, ml, se, cfg, err := setup()
		if err != nil {
			t.Fatal(err)
		}
		protocol := cfg.GetProtocolAddresses()
		if len(protocol) == 0 {
			t.Fatal("expected protocol addresses for the test chain")
		}
		tournament := insertTournament(t, store, []string{"mintA"})

		ml.SetBalance("addressA", "mintA", big.NewInt(30))
		ml.SetBalance(protocol[0], "mintA", big.NewInt(1000000))

		result, err := se.CaptureSnapshot(ctx, tournament.Id, storage.SnapshotType_PreMatch, "")
		assert.Nil(t, err)
		assert.Equal(t, 1, len(result.Snapshot.Holdings))
		assert.Equal(t, "addressA", result.Snapshot.Holdings[0].HolderAddress)
	})

	t.Run("Should exclude the utility mint from the default set", func(t *testing.T) {
		store, ml, se, cfg, err := setup()
		if err != nil {
			t.Fatal(err)
		}
		utilityMint := cfg.GetUtilityTokenMint()
		tournament := insertTournament(t, store, nil)

		defaults := cfg.GetDefaultEligibleTokens()
		if len(defaults) == 0 {
			t.Fatal("expected default eligible tokens for the test chain")
		}
		ml.SetBalance("addressA", defaults[0], big.NewInt(30))
		ml.SetBalance("addressA", utilityMint, big.NewInt(9999))

		result, err := se.CaptureSnapshot(ctx, tournament.Id, storage.SnapshotType_PreMatch, "")
		assert.Nil(t, err)
		for _, h := range result.Snapshot.Holdings {
			assert.NotEqual(t, utilityMint, h.TokenMint)
		}
		assert.Equal(t, 1, len(result.Snapshot.Holdings))
	})

	t.Run("Should tolerate partial token query failures and count them", func(t *testing.T) {
		store, ml, se, _, err := setup()
		if err != nil {
			t.Fatal(err)
		}
		tournament := insertTournament(t, store, []string{"mintA", "mintB"})

		ml.SetBalance("addressA", "mintA", big.NewInt(30))
		ml.SetBalance("addressA", "mintB", big.NewInt(40))
		ml.FailQueriesFor("mintB", errors.New("rpc unavailable"))

		result, err := se.CaptureSnapshot(ctx, tournament.Id, storage.SnapshotType_PreMatch, "")
		assert.Nil(t, err)
		assert.Equal(t, []string{"mintB"}, result.FailedTokens)
		assert.Equal(t, 1, result.Snapshot.FailedTokenCount)
		assert.Equal(t, 1, len(result.Snapshot.Holdings))
	})

	t.Run("Should fail when every token query fails", func(t *testing.T) {
		store, ml, se, _, err := setup()
		if err != nil {
			t.Fatal(err)
		}
		tournament := insertTournament(t, store, []string{"mintA", "mintB"})

		ml.FailQueriesFor("mintA", errors.New("rpc unavailable"))
		ml.FailQueriesFor("mintB", errors.New("rpc unavailable"))

		_, err = se.CaptureSnapshot(ctx, tournament.Id, storage.SnapshotType_PreMatch, "")
		assert.NotNil(t, err)

		_, err = store.GetSnapshot(ctx, tournament.Id, storage.SnapshotType_PreMatch)
		assert.ErrorIs(t, err, storage.ErrSnapshotNotFound)
	})

	t.Run("Should stamp the post-match snapshot at or after the pre-match slot", func(t *testing.T) {
		store, ml, se, _, err := setup()
		if err != nil {
			t.Fatal(err)
		}
		tournament := insertTournament(t, store, []string{"mintA"})
		ml.SetBalance("addressA", "mintA", big.NewInt(30))

		pre, err := se.CaptureSnapshot(ctx, tournament.Id, storage.SnapshotType_PreMatch, "")
		assert.Nil(t, err)

		ml.AdvanceSlot(50)

		post, err := se.CaptureSnapshot(ctx, tournament.Id, storage.SnapshotType_PostMatch, "")
		assert.Nil(t, err)
		assert.True(t, post.Snapshot.Slot >= pre.Snapshot.Slot)
	})

	t.Run("Should fail for an unknown tournament", func(t *testing.T) {
		_, _, se, _, err := setup()
		if err != nil {
			t.Fatal(err)
		}
		_, err = se.CaptureSnapshot(ctx, 99999, storage.SnapshotType_PreMatch, "")
		assert.ErrorIs(t, err, storage.ErrTournamentNotFound)
	})
}
