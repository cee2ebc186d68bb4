package ledger

import (
	"context"
	"errors"
	"fmt"
)

// HolderBalance is one holder of a token with its raw integer balance.
type HolderBalance struct {
	Address string
	Balance string
}

// TransferResult carries the outcome of a single transfer submission.
type TransferResult struct {
	Success        bool
	TransactionRef string
	Err            error
}

// TransferRequest is one outgoing payment in a batch.
type TransferRequest struct {
	ToAddress string
	Amount    string
	TokenMint string
}

var (
	// ErrInsufficientBalance is fatal for the transfer that hit it.
	ErrInsufficientBalance = errors.New("insufficient balance")
	// ErrInvalidAddress is fatal; the recipient must be skipped.
	ErrInvalidAddress = errors.New("invalid address")
	// ErrAccountNotFound means the destination account does not exist and
	// the adapter could not create it.
	ErrAccountNotFound = errors.New("account not found")
	// ErrZeroAmount rejects transfers of zero tokens outright.
	ErrZeroAmount = errors.New("transfer amount must be greater than zero")
	// ErrConfirmationTimeout marks a transfer whose confirmation never
	// arrived within the bounded wait. The transaction may still have
	// succeeded on-ledger; callers must not blindly retry.
	ErrConfirmationTimeout = errors.New("confirmation timeout, transaction may have succeeded on-ledger")
)

// NetworkError wraps a transient ledger failure. Callers may retry.
type NetworkError struct {
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("ledger network error: %v", e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

func NewNetworkError(err error) *NetworkError {
	return &NetworkError{Err: err}
}

// IsTransient reports whether an error is worth retrying at all.
func IsTransient(err error) bool {
	var ne *NetworkError
	return errors.As(err, &ne)
}

// Ledger is the capability contract over the underlying token ledger. The
// snapshot engine, calculator and distributor take it as an injected
// dependency so a deterministic in-memory ledger can stand in during tests.
type Ledger interface {
	// ListHoldersWithBalances enumerates every address holding a non-zero
	// balance of the token, excluding the adapter's own infrastructure
	// addresses.
	ListHoldersWithBalances(ctx context.Context, tokenMint string) ([]*HolderBalance, error)

	// GetBalance returns the raw integer balance, "0" if the address holds
	// nothing.
	GetBalance(ctx context.Context, address string, tokenMint string) (string, error)

	// Transfer sends amount raw units of the token from the configured
	// sender to toAddress, creating any missing recipient account
	// structures. A zero amount is an error, not a no-op.
	Transfer(ctx context.Context, toAddress string, amount string, tokenMint string) *TransferResult

	// GetCurrentLedgerPosition returns the monotonic slot/block used to
	// stamp snapshots.
	GetCurrentLedgerPosition(ctx context.Context) (uint64, error)
}
