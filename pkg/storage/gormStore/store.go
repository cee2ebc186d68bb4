package gormStore

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"regexp"
	"time"

	"github.com/wicketlabs/pavilion/pkg/storage"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormTournamentStore implements storage.TournamentStore on top of gorm.
// The same implementation backs postgres in production and in-memory sqlite
// in tests.
type GormTournamentStore struct {
	Db     *gorm.DB
	Logger *zap.Logger
}

func NewGormTournamentStore(db *gorm.DB, l *zap.Logger) *GormTournamentStore {
	return &GormTournamentStore{
		Db:     db,
		Logger: l,
	}
}

var duplicateKeyRegex = regexp.MustCompile(`duplicate key value violates unique constraint|UNIQUE constraint failed`)

func isDuplicateKeyError(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, gorm.ErrDuplicatedKey) || duplicateKeyRegex.MatchString(err.Error())
}

func (s *GormTournamentStore) InsertTournament(ctx context.Context, t *storage.Tournament) (*storage.Tournament, error) {
	res := s.Db.WithContext(ctx).Model(&storage.Tournament{}).Clauses(clause.Returning{}).Create(t)
	if res.Error != nil {
		return nil, fmt.Errorf("failed to insert tournament '%s': %w", t.Name, res.Error)
	}
	return t, nil
}

func (s *GormTournamentStore) GetTournament(ctx context.Context, id uint64) (*storage.Tournament, error) {
	var t storage.Tournament
	res := s.Db.WithContext(ctx).First(&t, "id = ?", id)
	if res.Error != nil {
		if errors.Is(res.Error, gorm.ErrRecordNotFound) {
			return nil, storage.ErrTournamentNotFound
		}
		return nil, res.Error
	}
	return &t, nil
}

func (s *GormTournamentStore) UpdateTournamentStatus(ctx context.Context, id uint64, status storage.TournamentStatus) error {
	res := s.Db.WithContext(ctx).Model(&storage.Tournament{}).Where("id = ?", id).Update("status", status)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return storage.ErrTournamentNotFound
	}
	return nil
}

// InsertSnapshot persists the snapshot row and its holdings in one
// transaction. A second capture for the same (tournament, type) violates the
// unique constraint and surfaces as ErrDuplicateSnapshot.
func (s *GormTournamentStore) InsertSnapshot(ctx context.Context, snapshot *storage.Snapshot) (*storage.Snapshot, error) {
	// work on a copy so key backfill never leaks into the caller's slice
	holdings := make([]storage.SnapshotHolding, len(snapshot.Holdings))
	copy(holdings, snapshot.Holdings)
	snapshot.Holdings = nil
	snapshot.CreatedAt = time.Now().UTC()

	err := s.Db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if res := tx.Model(&storage.Snapshot{}).Clauses(clause.Returning{}).Create(snapshot); res.Error != nil {
			return res.Error
		}
		for i := range holdings {
			holdings[i].SnapshotId = snapshot.Id
			holdings[i].HoldingIndex = i
		}
		if len(holdings) > 0 {
			if res := tx.CreateInBatches(holdings, 500); res.Error != nil {
				return res.Error
			}
		}
		return nil
	})
	if err != nil {
		if isDuplicateKeyError(err) {
			return nil, storage.ErrDuplicateSnapshot
		}
		return nil, fmt.Errorf("failed to insert snapshot for tournament '%d': %w", snapshot.TournamentId, err)
	}
	snapshot.Holdings = holdings
	return snapshot, nil
}

func (s *GormTournamentStore) GetSnapshot(ctx context.Context, tournamentId uint64, snapshotType storage.SnapshotType) (*storage.Snapshot, error) {
	var snapshot storage.Snapshot
	res := s.Db.WithContext(ctx).
		Preload("Holdings", func(db *gorm.DB) *gorm.DB {
			return db.Order("holding_index asc")
		}).
		Where("tournament_id = ? and snapshot_type = ?", tournamentId, snapshotType).
		First(&snapshot)
	if res.Error != nil {
		if errors.Is(res.Error, gorm.ErrRecordNotFound) {
			return nil, storage.ErrSnapshotNotFound
		}
		return nil, res.Error
	}
	return &snapshot, nil
}

// GetSnapshotTotalBalance sums a snapshot's holding balances with the
// sum_big aggregate, which both backends provide for numeric-string columns.
func (s *GormTournamentStore) GetSnapshotTotalBalance(ctx context.Context, snapshotId uint64) (string, error) {
	var total string
	res := s.Db.WithContext(ctx).
		Raw(`select cast(coalesce(sum_big(balance), '0') as varchar) from snapshot_holdings where snapshot_id = ?`, snapshotId).
		Scan(&total)
	if res.Error != nil {
		return "", fmt.Errorf("failed to sum balances for snapshot '%d': %w", snapshotId, res.Error)
	}
	return total, nil
}

func (s *GormTournamentStore) ListSnapshotsForTournament(ctx context.Context, tournamentId uint64) ([]*storage.Snapshot, error) {
	snapshots := make([]*storage.Snapshot, 0)
	res := s.Db.WithContext(ctx).
		Preload("Holdings", func(db *gorm.DB) *gorm.DB {
			return db.Order("holding_index asc")
		}).
		Where("tournament_id = ?", tournamentId).
		Order("snapshot_type asc").
		Find(&snapshots)
	if res.Error != nil {
		return nil, res.Error
	}
	return snapshots, nil
}

// InsertRewardPoolWithRewards records the distribution intent: pool plus one
// PENDING row per recipient, all before any transfer is attempted.
func (s *GormTournamentStore) InsertRewardPoolWithRewards(ctx context.Context, pool *storage.RewardPool, rewards []*storage.UserReward) (*storage.RewardPool, error) {
	pool.CreatedAt = time.Now().UTC()
	err := s.Db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if res := tx.Model(&storage.RewardPool{}).Clauses(clause.Returning{}).Create(pool); res.Error != nil {
			return res.Error
		}
		for _, r := range rewards {
			r.RewardPoolId = pool.Id
		}
		if len(rewards) > 0 {
			if res := tx.CreateInBatches(rewards, 500); res.Error != nil {
				return res.Error
			}
		}
		return nil
	})
	if err != nil {
		if isDuplicateKeyError(err) {
			return nil, storage.ErrRewardPoolExists
		}
		return nil, fmt.Errorf("failed to insert reward pool for tournament '%d': %w", pool.TournamentId, err)
	}
	return pool, nil
}

func (s *GormTournamentStore) GetRewardPoolForTournament(ctx context.Context, tournamentId uint64) (*storage.RewardPool, error) {
	var pool storage.RewardPool
	res := s.Db.WithContext(ctx).Where("tournament_id = ?", tournamentId).First(&pool)
	if res.Error != nil {
		if errors.Is(res.Error, gorm.ErrRecordNotFound) {
			return nil, storage.ErrRewardPoolNotFound
		}
		return nil, res.Error
	}
	return &pool, nil
}

func (s *GormTournamentStore) ListUserRewards(ctx context.Context, rewardPoolId string) ([]*storage.UserReward, error) {
	rewards := make([]*storage.UserReward, 0)
	res := s.Db.WithContext(ctx).
		Where("reward_pool_id = ?", rewardPoolId).
		Order("recipient_address asc").
		Find(&rewards)
	if res.Error != nil {
		return nil, res.Error
	}
	return rewards, nil
}

// UpdateUserRewardStatus writes status, transaction reference and error
// detail atomically, refusing backward transitions.
func (s *GormTournamentStore) UpdateUserRewardStatus(ctx context.Context, id uint64, status storage.RewardStatus, transactionRef string, errorDetail string) error {
	return s.Db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var current storage.UserReward
		if res := tx.First(&current, "id = ?", id); res.Error != nil {
			return res.Error
		}
		if !current.Status.CanTransition(status) {
			return fmt.Errorf("%w: '%s' -> '%s' for reward '%d'", storage.ErrInvalidTransition, current.Status, status, id)
		}
		updates := map[string]interface{}{
			"status":          status,
			"transaction_ref": transactionRef,
			"error_detail":    errorDetail,
			"updated_at":      time.Now().UTC(),
		}
		return tx.Model(&storage.UserReward{}).Where("id = ?", id).Updates(updates).Error
	})
}

func (s *GormTournamentStore) AddDistributedAmount(ctx context.Context, rewardPoolId string, amount string) error {
	delta, ok := new(big.Int).SetString(amount, 10)
	if !ok {
		return fmt.Errorf("invalid amount '%s'", amount)
	}
	return s.Db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var pool storage.RewardPool
		if res := tx.First(&pool, "id = ?", rewardPoolId); res.Error != nil {
			if errors.Is(res.Error, gorm.ErrRecordNotFound) {
				return storage.ErrRewardPoolNotFound
			}
			return res.Error
		}
		distributed, ok := new(big.Int).SetString(pool.DistributedAmount, 10)
		if !ok {
			distributed = big.NewInt(0)
		}
		distributed.Add(distributed, delta)
		return tx.Model(&storage.RewardPool{}).
			Where("id = ?", rewardPoolId).
			Update("distributed_amount", distributed.String()).Error
	})
}

func (s *GormTournamentStore) InsertPackPurchase(ctx context.Context, p *storage.PackPurchase) (*storage.PackPurchase, error) {
	p.CreatedAt = time.Now().UTC()
	res := s.Db.WithContext(ctx).Model(&storage.PackPurchase{}).Clauses(clause.Returning{}).Create(p)
	if res.Error != nil {
		return nil, fmt.Errorf("failed to insert pack purchase for buyer '%s': %w", p.BuyerAddress, res.Error)
	}
	return p, nil
}

func (s *GormTournamentStore) ListPackPurchases(ctx context.Context, buyerAddress string) ([]*storage.PackPurchase, error) {
	purchases := make([]*storage.PackPurchase, 0)
	res := s.Db.WithContext(ctx).
		Where("buyer_address = ?", buyerAddress).
		Order("created_at asc").
		Find(&purchases)
	if res.Error != nil {
		return nil, res.Error
	}
	return purchases, nil
}
