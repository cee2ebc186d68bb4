package memLedger

import (
	"context"
	"fmt"
	"math/big"
	"sort"
	"sync"

	"github.com/mr-tron/base58"
	"github.com/wicketlabs/pavilion/pkg/ledger"
)

// MemLedger is a deterministic in-memory Ledger used by tests and local
// runs. Holder enumeration is sorted by address so results are reproducible.
type MemLedger struct {
	mu sync.Mutex

	// balances[tokenMint][address]
	balances map[string]map[string]*big.Int

	// infraAddresses never appear as holders.
	infraAddresses map[string]bool

	senderAddress string
	slot          uint64

	// transferFaults injects a one-shot error for the given recipient.
	transferFaults map[string]error
	// queryFaults fails ListHoldersWithBalances for the given token.
	queryFaults map[string]error

	transferCount int
}

func NewMemLedger(senderAddress string, infraAddresses []string) *MemLedger {
	infra := make(map[string]bool, len(infraAddresses))
	for _, a := range infraAddresses {
		infra[a] = true
	}
	return &MemLedger{
		balances:       make(map[string]map[string]*big.Int),
		infraAddresses: infra,
		senderAddress:  senderAddress,
		slot:           1,
		transferFaults: make(map[string]error),
		queryFaults:    make(map[string]error),
	}
}

// SetBalance seeds a holding. Used by tests and by pack vault setup.
func (m *MemLedger) SetBalance(address string, tokenMint string, amount *big.Int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.balances[tokenMint]; !ok {
		m.balances[tokenMint] = make(map[string]*big.Int)
	}
	m.balances[tokenMint][address] = new(big.Int).Set(amount)
}

// AdvanceSlot moves the ledger position forward.
func (m *MemLedger) AdvanceSlot(n uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.slot += n
}

// FailTransferTo injects an error for the next transfer to the address.
func (m *MemLedger) FailTransferTo(address string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.transferFaults[address] = err
}

// FailQueriesFor makes holder enumeration fail for the token.
func (m *MemLedger) FailQueriesFor(tokenMint string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queryFaults[tokenMint] = err
}

// TransferCount reports how many transfers actually executed.
func (m *MemLedger) TransferCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.transferCount
}

func (m *MemLedger) ListHoldersWithBalances(ctx context.Context, tokenMint string) ([]*ledger.HolderBalance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err, ok := m.queryFaults[tokenMint]; ok {
		return nil, ledger.NewNetworkError(err)
	}

	holders := make([]*ledger.HolderBalance, 0)
	for address, balance := range m.balances[tokenMint] {
		if m.infraAddresses[address] || balance.Sign() == 0 {
			continue
		}
		holders = append(holders, &ledger.HolderBalance{
			Address: address,
			Balance: balance.String(),
		})
	}
	sort.Slice(holders, func(i, j int) bool {
		return holders[i].Address < holders[j].Address
	})
	return holders, nil
}

func (m *MemLedger) GetBalance(ctx context.Context, address string, tokenMint string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	balance, ok := m.balances[tokenMint][address]
	if !ok {
		return "0", nil
	}
	return balance.String(), nil
}

func (m *MemLedger) Transfer(ctx context.Context, toAddress string, amount string, tokenMint string) *ledger.TransferResult {
	m.mu.Lock()
	defer m.mu.Unlock()

	if toAddress == "" {
		return &ledger.TransferResult{Success: false, Err: ledger.ErrInvalidAddress}
	}

	value, ok := new(big.Int).SetString(amount, 10)
	if !ok || value.Sign() < 0 {
		return &ledger.TransferResult{Success: false, Err: fmt.Errorf("invalid amount '%s'", amount)}
	}
	if value.Sign() == 0 {
		return &ledger.TransferResult{Success: false, Err: ledger.ErrZeroAmount}
	}

	if err, ok := m.transferFaults[toAddress]; ok {
		delete(m.transferFaults, toAddress)
		return &ledger.TransferResult{Success: false, Err: err}
	}

	senderBalance, ok := m.balances[tokenMint][m.senderAddress]
	if !ok || senderBalance.Cmp(value) < 0 {
		return &ledger.TransferResult{Success: false, Err: ledger.ErrInsufficientBalance}
	}

	// Recipient account structures are created transparently.
	if _, ok := m.balances[tokenMint][toAddress]; !ok {
		m.balances[tokenMint][toAddress] = big.NewInt(0)
	}

	senderBalance.Sub(senderBalance, value)
	m.balances[tokenMint][toAddress].Add(m.balances[tokenMint][toAddress], value)

	m.slot++
	m.transferCount++

	ref := base58.Encode([]byte(fmt.Sprintf("memtx-%d-%s-%s", m.slot, toAddress, amount)))
	return &ledger.TransferResult{Success: true, TransactionRef: ref}
}

func (m *MemLedger) GetCurrentLedgerPosition(ctx context.Context) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.slot, nil
}
