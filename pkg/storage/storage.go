package storage

import (
	"context"
	"errors"
	"time"
)

type TournamentStatus string

const (
	TournamentStatus_Upcoming  TournamentStatus = "UPCOMING"
	TournamentStatus_Ongoing   TournamentStatus = "ONGOING"
	TournamentStatus_Completed TournamentStatus = "COMPLETED"
	TournamentStatus_Cancelled TournamentStatus = "CANCELLED"
)

type SnapshotType string

const (
	SnapshotType_PreMatch  SnapshotType = "PRE_MATCH"
	SnapshotType_PostMatch SnapshotType = "POST_MATCH"
)

type RewardStatus string

const (
	RewardStatus_Pending    RewardStatus = "PENDING"
	RewardStatus_Processing RewardStatus = "PROCESSING"
	RewardStatus_Completed  RewardStatus = "COMPLETED"
	RewardStatus_Failed     RewardStatus = "FAILED"
	// RewardStatus_Skipped marks a share below the minimum payout
	// threshold: reported, never transferred, amount retained in the pool.
	RewardStatus_Skipped RewardStatus = "SKIPPED"
)

// rewardStatusRank orders statuses so transitions only ever move forward.
var rewardStatusRank = map[RewardStatus]int{
	RewardStatus_Pending:    0,
	RewardStatus_Processing: 1,
	RewardStatus_Completed:  2,
	RewardStatus_Failed:     2,
	RewardStatus_Skipped:    2,
}

// CanTransition reports whether a reward status change moves forward.
func (s RewardStatus) CanTransition(to RewardStatus) bool {
	return rewardStatusRank[to] > rewardStatusRank[s]
}

var (
	ErrTournamentNotFound = errors.New("tournament not found")
	ErrSnapshotNotFound   = errors.New("snapshot not found")
	ErrDuplicateSnapshot  = errors.New("snapshot already exists for tournament and type")
	ErrRewardPoolExists   = errors.New("reward pool already exists for tournament")
	ErrRewardPoolNotFound = errors.New("reward pool not found")
	ErrInvalidTransition  = errors.New("reward status may not move backward")
)

type Tournament struct {
	Id       uint64 `gorm:"primaryKey;autoIncrement"`
	Name     string
	TeamA    string
	TeamB    string
	Status   TournamentStatus
	MatchRef string
	// EligibleTokens is the token-mint list frozen before snapshot capture.
	// Empty means "use the chain's default set".
	EligibleTokens []string `gorm:"serializer:json"`
	ScheduledAt    time.Time
	CreatedAt      time.Time
}

type Snapshot struct {
	Id           uint64       `gorm:"primaryKey;autoIncrement"`
	TournamentId uint64       `gorm:"uniqueIndex:uniq_snapshot_tournament_type"`
	SnapshotType SnapshotType `gorm:"uniqueIndex:uniq_snapshot_tournament_type"`
	// SourceAddress is the token program the holdings were read from.
	SourceAddress string
	// Slot is the ledger position the snapshot was stamped with. POST_MATCH
	// slot is never below PRE_MATCH slot for the same tournament.
	Slot uint64
	// FailedTokenCount is the number of eligible tokens whose holder query
	// failed during capture. Non-zero marks a degraded snapshot.
	FailedTokenCount int
	TakenAt          time.Time
	CreatedAt        time.Time

	Holdings []SnapshotHolding `gorm:"foreignKey:SnapshotId"`
}

type SnapshotHolding struct {
	Id         uint64 `gorm:"primaryKey;autoIncrement"`
	SnapshotId uint64 `gorm:"index"`
	// HoldingIndex keeps the canonical payload order stable across reads.
	HoldingIndex  int
	HolderAddress string
	TokenMint     string
	// Balance is the raw integer amount in ledger-native precision, stored
	// as a numeric string to survive any driver without loss.
	Balance string
}

type RewardPool struct {
	Id           string `gorm:"primaryKey"`
	TournamentId uint64 `gorm:"uniqueIndex:uniq_reward_pool_tournament"`
	TotalAmount  string
	// DistributedAmount accumulates the sum of COMPLETED transfer amounts.
	DistributedAmount string
	DistributionType  string
	TokenMint         string
	CreatedAt         time.Time
}

type UserReward struct {
	Id               uint64 `gorm:"primaryKey;autoIncrement"`
	RewardPoolId     string `gorm:"uniqueIndex:uniq_reward_pool_recipient"`
	RecipientAddress string `gorm:"uniqueIndex:uniq_reward_pool_recipient"`
	Amount           string
	Status           RewardStatus
	TransactionRef   string
	ErrorDetail      string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

type PackPurchase struct {
	Id            string `gorm:"primaryKey"`
	BuyerAddress  string
	PaymentAmount string
	PaymentRef    string
	TokenMints    []string `gorm:"serializer:json"`
	TransferRefs  []string `gorm:"serializer:json"`
	CreatedAt     time.Time
}

// TournamentStore is the persistence boundary for tournaments, snapshots
// and reward bookkeeping. Snapshots are create-only; reward rows are
// create-then-status-update with forward-only transitions.
type TournamentStore interface {
	InsertTournament(ctx context.Context, t *Tournament) (*Tournament, error)
	GetTournament(ctx context.Context, id uint64) (*Tournament, error)
	UpdateTournamentStatus(ctx context.Context, id uint64, status TournamentStatus) error

	InsertSnapshot(ctx context.Context, snapshot *Snapshot) (*Snapshot, error)
	GetSnapshot(ctx context.Context, tournamentId uint64, snapshotType SnapshotType) (*Snapshot, error)
	ListSnapshotsForTournament(ctx context.Context, tournamentId uint64) ([]*Snapshot, error)
	GetSnapshotTotalBalance(ctx context.Context, snapshotId uint64) (string, error)

	InsertRewardPoolWithRewards(ctx context.Context, pool *RewardPool, rewards []*UserReward) (*RewardPool, error)
	GetRewardPoolForTournament(ctx context.Context, tournamentId uint64) (*RewardPool, error)
	ListUserRewards(ctx context.Context, rewardPoolId string) ([]*UserReward, error)
	UpdateUserRewardStatus(ctx context.Context, id uint64, status RewardStatus, transactionRef string, errorDetail string) error
	AddDistributedAmount(ctx context.Context, rewardPoolId string, amount string) error

	InsertPackPurchase(ctx context.Context, p *PackPurchase) (*PackPurchase, error)
	ListPackPurchases(ctx context.Context, buyerAddress string) ([]*PackPurchase, error)
}
