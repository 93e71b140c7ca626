// Package blockchaintest provides an in-memory blockchain.Client for tests.
package blockchaintest

import (
	"context"
	"sync"

	"github.com/gagliardetto/solana-go"

	"github.com/hxuan190/sponsor-relay/internal/domain"
	"github.com/hxuan190/sponsor-relay/internal/relay/adapters/blockchain"
)

// Chain is a scriptable fake chain. Zero value is usable; fields may be set
// before the fake is shared between goroutines.
type Chain struct {
	mu sync.Mutex

	Blockhash            solana.Hash
	LastValidBlockHeight uint64
	Slot                 uint64
	BlockhashErr         error

	Height    uint64
	HeightErr error

	Accounts map[solana.PublicKey]*blockchain.Account
	Fees     []uint64

	Simulation    *domain.SimulationResult
	SimulationErr error

	SendErr error

	// Statuses are returned one per SignatureStatus call; the last one repeats.
	Statuses  []*blockchain.SignatureStatus
	StatusErr error

	blockhashCalls int
	statusCalls    int
	sent           []*solana.Transaction
	simulated      int
}

func New() *Chain {
	return &Chain{
		Blockhash:            solana.Hash(solana.NewWallet().PublicKey()),
		LastValidBlockHeight: 1_000,
		Slot:                 500,
		Height:               900,
		Accounts:             make(map[solana.PublicKey]*blockchain.Account),
	}
}

var _ blockchain.Client = (*Chain)(nil)

func (c *Chain) LatestBlockhash(ctx context.Context) (*blockchain.BlockReference, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.blockhashCalls++
	if c.BlockhashErr != nil {
		return nil, c.BlockhashErr
	}
	return &blockchain.BlockReference{
		Blockhash:            c.Blockhash,
		LastValidBlockHeight: c.LastValidBlockHeight,
		Slot:                 c.Slot,
	}, nil
}

func (c *Chain) BlockHeight(ctx context.Context) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.Height, c.HeightErr
}

func (c *Chain) SetHeight(h uint64) {
	c.mu.Lock()
	c.Height = h
	c.mu.Unlock()
}

func (c *Chain) GetAccount(ctx context.Context, address solana.PublicKey) (*blockchain.Account, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if acc, ok := c.Accounts[address]; ok {
		return acc, nil
	}
	return nil, blockchain.ErrAccountNotFound
}

func (c *Chain) RecentPrioritizationFees(ctx context.Context, accounts []solana.PublicKey) ([]uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]uint64(nil), c.Fees...), nil
}

func (c *Chain) Simulate(ctx context.Context, tx *solana.Transaction) (*domain.SimulationResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.simulated++
	if c.SimulationErr != nil {
		return nil, c.SimulationErr
	}
	if c.Simulation != nil {
		return c.Simulation, nil
	}
	return &domain.SimulationResult{Success: true, ComputeUnitsConsumed: 120_000}, nil
}

func (c *Chain) Send(ctx context.Context, tx *solana.Transaction) (solana.Signature, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.SendErr != nil {
		return solana.Signature{}, c.SendErr
	}
	c.sent = append(c.sent, tx)
	return tx.Signatures[0], nil
}

func (c *Chain) SignatureStatus(ctx context.Context, sig solana.Signature) (*blockchain.SignatureStatus, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.statusCalls++
	if c.StatusErr != nil {
		return nil, c.StatusErr
	}
	if len(c.Statuses) == 0 {
		return nil, nil
	}
	idx := c.statusCalls - 1
	if idx >= len(c.Statuses) {
		idx = len(c.Statuses) - 1
	}
	return c.Statuses[idx], nil
}

func (c *Chain) Sent() []*solana.Transaction {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*solana.Transaction(nil), c.sent...)
}

func (c *Chain) SimulationCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.simulated
}

func (c *Chain) BlockhashCalls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.blockhashCalls
}

func (c *Chain) StatusCalls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.statusCalls
}

// Confirmed is a landed status at the given slot.
func Confirmed(slot uint64) *blockchain.SignatureStatus {
	return &blockchain.SignatureStatus{Slot: slot, ConfirmationStatus: "confirmed"}
}
