package solanaLedger

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	ata "github.com/gagliardetto/solana-go/programs/associated-token-account"
	"github.com/gagliardetto/solana-go/programs/token"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/mr-tron/base58"
	"github.com/wicketlabs/pavilion/pkg/ledger"
	"go.uber.org/zap"
)

const tokenAccountDataSize = 165

// SolanaLedger implements the Ledger capability against a Solana RPC node.
// Outgoing transfers are signed by the configured sender keypair; holder
// enumeration walks the SPL token accounts of a mint.
type SolanaLedger struct {
	client *rpc.Client
	logger *zap.Logger

	sender solana.PrivateKey

	// infraAddresses are protocol-owned wallets excluded from holder
	// enumeration.
	infraAddresses map[string]bool

	// confirmationTimeout bounds the wait for transaction finality.
	confirmationTimeout time.Duration
}

type SolanaLedgerConfig struct {
	RpcUrl              string
	SenderKeyPath       string
	InfraAddresses      []string
	ConfirmationTimeout time.Duration
}

func NewSolanaLedger(cfg *SolanaLedgerConfig, l *zap.Logger) (*SolanaLedger, error) {
	sender, err := solana.PrivateKeyFromSolanaKeygenFile(cfg.SenderKeyPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load sender keypair from '%s': %w", cfg.SenderKeyPath, err)
	}

	infra := make(map[string]bool, len(cfg.InfraAddresses))
	for _, a := range cfg.InfraAddresses {
		infra[a] = true
	}

	timeout := cfg.ConfirmationTimeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	return &SolanaLedger{
		client:              rpc.New(cfg.RpcUrl),
		logger:              l,
		sender:              sender,
		infraAddresses:      infra,
		confirmationTimeout: timeout,
	}, nil
}

func parseAddress(address string) (solana.PublicKey, error) {
	decoded, err := base58.Decode(address)
	if err != nil || len(decoded) != solana.PublicKeyLength {
		return solana.PublicKey{}, fmt.Errorf("%w: '%s'", ledger.ErrInvalidAddress, address)
	}
	return solana.PublicKeyFromBase58(address)
}

func (s *SolanaLedger) ListHoldersWithBalances(ctx context.Context, tokenMint string) ([]*ledger.HolderBalance, error) {
	mint, err := parseAddress(tokenMint)
	if err != nil {
		return nil, err
	}

	resp, err := s.client.GetProgramAccountsWithOpts(ctx, solana.TokenProgramID, &rpc.GetProgramAccountsOpts{
		Commitment: rpc.CommitmentFinalized,
		Filters: []rpc.RPCFilter{
			{DataSize: tokenAccountDataSize},
			{Memcmp: &rpc.RPCFilterMemcmp{Offset: 0, Bytes: mint.Bytes()}},
		},
	})
	if err != nil {
		return nil, ledger.NewNetworkError(err)
	}

	// A wallet can own several token accounts for the same mint; fold them
	// into one balance per owner.
	totals := make(map[string]uint64)
	order := make([]string, 0)
	for _, keyed := range resp {
		var account token.Account
		if err := bin.NewBinDecoder(keyed.Account.Data.GetBinary()).Decode(&account); err != nil {
			s.logger.Sugar().Warnw("Failed to decode token account",
				zap.String("account", keyed.Pubkey.String()),
				zap.Error(err),
			)
			continue
		}
		if account.Amount == 0 {
			continue
		}
		owner := account.Owner.String()
		if s.infraAddresses[owner] {
			continue
		}
		if _, seen := totals[owner]; !seen {
			order = append(order, owner)
		}
		totals[owner] += account.Amount
	}

	holders := make([]*ledger.HolderBalance, 0, len(order))
	for _, owner := range order {
		holders = append(holders, &ledger.HolderBalance{
			Address: owner,
			Balance: strconv.FormatUint(totals[owner], 10),
		})
	}
	return holders, nil
}

func (s *SolanaLedger) GetBalance(ctx context.Context, address string, tokenMint string) (string, error) {
	owner, err := parseAddress(address)
	if err != nil {
		return "", err
	}
	mint, err := parseAddress(tokenMint)
	if err != nil {
		return "", err
	}

	tokenAccount, _, err := solana.FindAssociatedTokenAddress(owner, mint)
	if err != nil {
		return "", fmt.Errorf("failed to derive token account for '%s': %w", address, err)
	}

	balance, err := s.client.GetTokenAccountBalance(ctx, tokenAccount, rpc.CommitmentFinalized)
	if err != nil {
		// A wallet with no token account simply holds zero.
		if strings.Contains(err.Error(), "could not find account") {
			return "0", nil
		}
		return "", ledger.NewNetworkError(err)
	}
	return balance.Value.Amount, nil
}

func (s *SolanaLedger) Transfer(ctx context.Context, toAddress string, amount string, tokenMint string) *ledger.TransferResult {
	value, err := strconv.ParseUint(amount, 10, 64)
	if err != nil {
		return &ledger.TransferResult{Success: false, Err: fmt.Errorf("invalid amount '%s': %w", amount, err)}
	}
	if value == 0 {
		return &ledger.TransferResult{Success: false, Err: ledger.ErrZeroAmount}
	}

	recipient, err := parseAddress(toAddress)
	if err != nil {
		return &ledger.TransferResult{Success: false, Err: err}
	}
	mint, err := parseAddress(tokenMint)
	if err != nil {
		return &ledger.TransferResult{Success: false, Err: err}
	}

	sourceAccount, _, err := solana.FindAssociatedTokenAddress(s.sender.PublicKey(), mint)
	if err != nil {
		return &ledger.TransferResult{Success: false, Err: err}
	}
	destAccount, _, err := solana.FindAssociatedTokenAddress(recipient, mint)
	if err != nil {
		return &ledger.TransferResult{Success: false, Err: err}
	}

	instructions := make([]solana.Instruction, 0, 2)

	// Self-heal a missing destination token account by prepending its
	// creation to the transfer transaction.
	if _, err := s.client.GetAccountInfo(ctx, destAccount); err != nil {
		createIx, buildErr := ata.NewCreateInstruction(
			s.sender.PublicKey(),
			recipient,
			mint,
		).ValidateAndBuild()
		if buildErr != nil {
			return &ledger.TransferResult{Success: false, Err: fmt.Errorf("%w: failed to build account creation: %v", ledger.ErrAccountNotFound, buildErr)}
		}
		instructions = append(instructions, createIx)
	}

	transferIx, err := token.NewTransferInstruction(
		value,
		sourceAccount,
		destAccount,
		s.sender.PublicKey(),
		[]solana.PublicKey{},
	).ValidateAndBuild()
	if err != nil {
		return &ledger.TransferResult{Success: false, Err: err}
	}
	instructions = append(instructions, transferIx)

	blockhash, err := s.client.GetLatestBlockhash(ctx, rpc.CommitmentFinalized)
	if err != nil {
		return &ledger.TransferResult{Success: false, Err: ledger.NewNetworkError(err)}
	}

	tx, err := solana.NewTransaction(
		instructions,
		blockhash.Value.Blockhash,
		solana.TransactionPayer(s.sender.PublicKey()),
	)
	if err != nil {
		return &ledger.TransferResult{Success: false, Err: err}
	}

	if _, err := tx.Sign(func(key solana.PublicKey) *solana.PrivateKey {
		if key.Equals(s.sender.PublicKey()) {
			return &s.sender
		}
		return nil
	}); err != nil {
		return &ledger.TransferResult{Success: false, Err: err}
	}

	signature, err := s.client.SendTransactionWithOpts(ctx, tx, rpc.TransactionOpts{
		SkipPreflight:       false,
		PreflightCommitment: rpc.CommitmentFinalized,
	})
	if err != nil {
		return &ledger.TransferResult{Success: false, Err: classifySendError(err)}
	}

	if err := s.awaitConfirmation(ctx, signature); err != nil {
		return &ledger.TransferResult{Success: false, TransactionRef: signature.String(), Err: err}
	}

	return &ledger.TransferResult{Success: true, TransactionRef: signature.String()}
}

// awaitConfirmation models the bounded SUBMITTED -> CONFIRMED | TIMED_OUT
// wait: poll signature status with exponential backoff until finality or
// the configured timeout.
func (s *SolanaLedger) awaitConfirmation(ctx context.Context, signature solana.Signature) error {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 500 * time.Millisecond
	policy.MaxInterval = 5 * time.Second
	policy.MaxElapsedTime = s.confirmationTimeout

	var failedOnLedger error
	err := backoff.Retry(func() error {
		statuses, err := s.client.GetSignatureStatuses(ctx, true, signature)
		if err != nil {
			return err
		}
		if len(statuses.Value) == 0 || statuses.Value[0] == nil {
			return fmt.Errorf("signature '%s' not yet visible", signature)
		}
		status := statuses.Value[0]
		if status.Err != nil {
			failedOnLedger = fmt.Errorf("transaction failed on-ledger: %v", status.Err)
			return backoff.Permanent(failedOnLedger)
		}
		if status.ConfirmationStatus == rpc.ConfirmationStatusFinalized ||
			status.ConfirmationStatus == rpc.ConfirmationStatusConfirmed {
			return nil
		}
		return fmt.Errorf("signature '%s' not yet confirmed", signature)
	}, backoff.WithContext(policy, ctx))

	if err != nil {
		if failedOnLedger != nil {
			return failedOnLedger
		}
		return ledger.ErrConfirmationTimeout
	}
	return nil
}

func (s *SolanaLedger) GetCurrentLedgerPosition(ctx context.Context) (uint64, error) {
	slot, err := s.client.GetSlot(ctx, rpc.CommitmentFinalized)
	if err != nil {
		return 0, ledger.NewNetworkError(err)
	}
	return slot, nil
}

func classifySendError(err error) error {
	msg := err.Error()
	switch {
	case strings.Contains(msg, "insufficient funds"), strings.Contains(msg, "insufficient lamports"):
		return ledger.ErrInsufficientBalance
	case strings.Contains(msg, "AccountNotFound"), strings.Contains(msg, "could not find account"):
		return ledger.ErrAccountNotFound
	default:
		return ledger.NewNetworkError(err)
	}
}
