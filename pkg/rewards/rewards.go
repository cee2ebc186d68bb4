package rewards

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sort"

	"github.com/wicketlabs/pavilion/internal/config"
	"github.com/wicketlabs/pavilion/pkg/storage"
	"go.uber.org/zap"
)

// MissingSnapshotError names the snapshot phase that has not been captured.
type MissingSnapshotError struct {
	TournamentId uint64
	SnapshotType storage.SnapshotType
}

func (e *MissingSnapshotError) Error() string {
	return fmt.Sprintf("missing %s snapshot for tournament '%d'", e.SnapshotType, e.TournamentId)
}

// RewardShare is one address's computed allocation. Skipped shares fell
// below the minimum payout threshold: they are reported, never transferred,
// and their amount stays in the pool.
type RewardShare struct {
	Address string
	Weight  *big.Int
	Amount  *big.Int
	Skipped bool
}

// RewardSet is the full deterministic output of a reward calculation.
// Eligible is ordered by address ascending.
type RewardSet struct {
	TournamentId        uint64
	TotalAmount         *big.Int
	TotalEligibleWeight *big.Int
	Eligible            []*RewardShare
	IneligibleAddresses []string
}

// RewardsCalculator derives eligibility and proportional shares from a
// PRE_MATCH / POST_MATCH snapshot pair.
//
// Continuity rule: an address is eligible iff for at least one eligible
// token min(preBalance, postBalance) > 0, i.e. it held the token before the
// match and did not fully exit it. The weight is the sum of those minima
// across tokens, in raw units. Holdings acquired only after PRE_MATCH earn
// nothing; holdings sold mid-match count only for the retained portion.
type RewardsCalculator struct {
	logger       *zap.Logger
	store        storage.TournamentStore
	globalConfig *config.Config

	minPayout *big.Int
}

func NewRewardsCalculator(
	store storage.TournamentStore,
	cfg *config.Config,
	l *zap.Logger,
) (*RewardsCalculator, error) {
	minPayout := big.NewInt(0)
	if cfg.RewardsConfig.MinPayout != "" {
		parsed, ok := new(big.Int).SetString(cfg.RewardsConfig.MinPayout, 10)
		if !ok || parsed.Sign() < 0 {
			return nil, fmt.Errorf("invalid minimum payout '%s'", cfg.RewardsConfig.MinPayout)
		}
		minPayout = parsed
	}
	return &RewardsCalculator{
		logger:       l,
		store:        store,
		globalConfig: cfg,
		minPayout:    minPayout,
	}, nil
}

// CalculateRewardsForTournament loads the tournament's snapshot pair and
// computes the reward set. Fails with MissingSnapshotError naming the
// absent phase.
func (rc *RewardsCalculator) CalculateRewardsForTournament(ctx context.Context, tournamentId uint64, totalRewardAmount *big.Int) (*RewardSet, error) {
	pre, err := rc.store.GetSnapshot(ctx, tournamentId, storage.SnapshotType_PreMatch)
	if err != nil {
		if errors.Is(err, storage.ErrSnapshotNotFound) {
			return nil, &MissingSnapshotError{TournamentId: tournamentId, SnapshotType: storage.SnapshotType_PreMatch}
		}
		return nil, err
	}
	post, err := rc.store.GetSnapshot(ctx, tournamentId, storage.SnapshotType_PostMatch)
	if err != nil {
		if errors.Is(err, storage.ErrSnapshotNotFound) {
			return nil, &MissingSnapshotError{TournamentId: tournamentId, SnapshotType: storage.SnapshotType_PostMatch}
		}
		return nil, err
	}

	return rc.CalculateRewards(pre, post, totalRewardAmount)
}

// CalculateRewards is pure: the same snapshot pair and total always produce
// an identical RewardSet, independent of run order.
func (rc *RewardsCalculator) CalculateRewards(pre *storage.Snapshot, post *storage.Snapshot, totalRewardAmount *big.Int) (*RewardSet, error) {
	if totalRewardAmount == nil || totalRewardAmount.Sign() <= 0 {
		return nil, fmt.Errorf("total reward amount must be positive, got '%v'", totalRewardAmount)
	}
	if pre.SnapshotType != storage.SnapshotType_PreMatch || post.SnapshotType != storage.SnapshotType_PostMatch {
		return nil, fmt.Errorf("snapshot pair is not (PRE_MATCH, POST_MATCH)")
	}
	if post.Slot < pre.Slot {
		return nil, fmt.Errorf("POST_MATCH slot '%d' precedes PRE_MATCH slot '%d'", post.Slot, pre.Slot)
	}

	preHoldings, err := holdingsByAddress(pre)
	if err != nil {
		return nil, fmt.Errorf("invalid PRE_MATCH holdings: %w", err)
	}
	postHoldings, err := holdingsByAddress(post)
	if err != nil {
		return nil, fmt.Errorf("invalid POST_MATCH holdings: %w", err)
	}

	// Address order is fixed lexically so the output never depends on map
	// iteration or arrival order.
	addresses := make([]string, 0, len(preHoldings))
	for address := range preHoldings {
		addresses = append(addresses, address)
	}
	sort.Strings(addresses)

	eligible := make([]*RewardShare, 0, len(addresses))
	ineligible := make([]string, 0)
	totalWeight := big.NewInt(0)

	for _, address := range addresses {
		weight := continuityWeight(preHoldings[address], postHoldings[address])
		if weight.Sign() == 0 {
			ineligible = append(ineligible, address)
			continue
		}
		eligible = append(eligible, &RewardShare{
			Address: address,
			Weight:  weight,
			Amount:  big.NewInt(0),
		})
		totalWeight.Add(totalWeight, weight)
	}

	set := &RewardSet{
		TournamentId:        pre.TournamentId,
		TotalAmount:         new(big.Int).Set(totalRewardAmount),
		TotalEligibleWeight: totalWeight,
		Eligible:            eligible,
		IneligibleAddresses: ineligible,
	}

	if len(eligible) == 0 {
		return set, nil
	}

	// share = total * weight / totalWeight, floored per address. The
	// rounding remainder goes to the largest-weight holder (lexically
	// smallest on ties, since Eligible is address-ordered) so the
	// distributed sum never exceeds the total.
	distributed := big.NewInt(0)
	var largest *RewardShare
	for _, share := range eligible {
		amount := new(big.Int).Mul(totalRewardAmount, share.Weight)
		amount.Quo(amount, totalWeight)
		share.Amount = amount
		distributed.Add(distributed, amount)

		if largest == nil || share.Weight.Cmp(largest.Weight) > 0 {
			largest = share
		}
	}

	remainder := new(big.Int).Sub(totalRewardAmount, distributed)
	if remainder.Sign() > 0 {
		largest.Amount.Add(largest.Amount, remainder)
	}

	// a share floored to zero can never be transferred, threshold or not
	for _, share := range eligible {
		if share.Amount.Sign() == 0 || share.Amount.Cmp(rc.minPayout) < 0 {
			share.Skipped = true
		}
	}

	return set, nil
}

// holdingsByAddress decodes a snapshot payload into address -> token ->
// balance, rejecting any balance that is not a base-10 integer.
func holdingsByAddress(snapshot *storage.Snapshot) (map[string]map[string]*big.Int, error) {
	out := make(map[string]map[string]*big.Int)
	for _, h := range snapshot.Holdings {
		balance, ok := new(big.Int).SetString(h.Balance, 10)
		if !ok {
			return nil, fmt.Errorf("holding '%s'/'%s' has non-integer balance '%s'", h.HolderAddress, h.TokenMint, h.Balance)
		}
		if balance.Sign() <= 0 {
			continue
		}
		if _, ok := out[h.HolderAddress]; !ok {
			out[h.HolderAddress] = make(map[string]*big.Int)
		}
		out[h.HolderAddress][h.TokenMint] = balance
	}
	return out, nil
}

// continuityWeight sums min(pre, post) across tokens the address held in
// both snapshots.
func continuityWeight(pre map[string]*big.Int, post map[string]*big.Int) *big.Int {
	weight := big.NewInt(0)
	if len(pre) == 0 || len(post) == 0 {
		return weight
	}
	for tokenMint, preBalance := range pre {
		postBalance, ok := post[tokenMint]
		if !ok {
			continue
		}
		if preBalance.Cmp(postBalance) <= 0 {
			weight.Add(weight, preBalance)
		} else {
			weight.Add(weight, postBalance)
		}
	}
	return weight
}
