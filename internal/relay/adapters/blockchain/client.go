package blockchain

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"

	"github.com/hxuan190/sponsor-relay/internal/domain"
)

var ErrAccountNotFound = errors.New("account not found")

// BlockReference is a recent blockhash and the last block height at which a
// transaction referencing it is still accepted.
type BlockReference struct {
	Blockhash            solana.Hash
	LastValidBlockHeight uint64
	Slot                 uint64
}

type Account struct {
	Owner    solana.PublicKey
	Lamports uint64
	Data     []byte
}

// SignatureStatus is nil when the cluster has not seen the signature yet.
type SignatureStatus struct {
	Slot               uint64
	ConfirmationStatus string
	Err                string
}

func (s *SignatureStatus) Landed() bool {
	return s.ConfirmationStatus == string(rpc.ConfirmationStatusConfirmed) ||
		s.ConfirmationStatus == string(rpc.ConfirmationStatusFinalized)
}

// Client is the read-only chain handle shared by every relay component.
type Client interface {
	LatestBlockhash(ctx context.Context) (*BlockReference, error)
	BlockHeight(ctx context.Context) (uint64, error)
	GetAccount(ctx context.Context, address solana.PublicKey) (*Account, error)
	RecentPrioritizationFees(ctx context.Context, accounts []solana.PublicKey) ([]uint64, error)
	Simulate(ctx context.Context, tx *solana.Transaction) (*domain.SimulationResult, error)
	Send(ctx context.Context, tx *solana.Transaction) (solana.Signature, error)
	SignatureStatus(ctx context.Context, sig solana.Signature) (*SignatureStatus, error)
}

// RPCClient implements Client on top of a JSON-RPC endpoint.
type RPCClient struct {
	rpc        *rpc.Client
	commitment rpc.CommitmentType
	maxRetries uint
}

func NewRPCClient(endpoint string, commitment rpc.CommitmentType, maxRetries uint) *RPCClient {
	if commitment == "" {
		commitment = rpc.CommitmentConfirmed
	}
	return &RPCClient{
		rpc:        rpc.New(endpoint),
		commitment: commitment,
		maxRetries: maxRetries,
	}
}

func (c *RPCClient) LatestBlockhash(ctx context.Context) (*BlockReference, error) {
	res, err := c.rpc.GetLatestBlockhash(ctx, rpc.CommitmentFinalized)
	if err != nil {
		return nil, err
	}
	return &BlockReference{
		Blockhash:            res.Value.Blockhash,
		LastValidBlockHeight: res.Value.LastValidBlockHeight,
		Slot:                 res.Context.Slot,
	}, nil
}

func (c *RPCClient) BlockHeight(ctx context.Context) (uint64, error) {
	return c.rpc.GetBlockHeight(ctx, c.commitment)
}

func (c *RPCClient) GetAccount(ctx context.Context, address solana.PublicKey) (*Account, error) {
	res, err := c.rpc.GetAccountInfo(ctx, address)
	if err != nil {
		if errors.Is(err, rpc.ErrNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}
	if res == nil || res.Value == nil {
		return nil, ErrAccountNotFound
	}
	return &Account{
		Owner:    res.Value.Owner,
		Lamports: res.Value.Lamports,
		Data:     res.Value.Data.GetBinary(),
	}, nil
}

func (c *RPCClient) RecentPrioritizationFees(ctx context.Context, accounts []solana.PublicKey) ([]uint64, error) {
	res, err := c.rpc.GetRecentPrioritizationFees(ctx, accounts)
	if err != nil {
		return nil, err
	}
	fees := make([]uint64, 0, len(res))
	for _, fee := range res {
		fees = append(fees, fee.PrioritizationFee)
	}
	return fees, nil
}

func (c *RPCClient) Simulate(ctx context.Context, tx *solana.Transaction) (*domain.SimulationResult, error) {
	res, err := c.rpc.SimulateTransactionWithOpts(ctx, tx, &rpc.SimulateTransactionOpts{
		SigVerify:  true,
		Commitment: c.commitment,
	})
	if err != nil {
		return nil, err
	}

	sim := &domain.SimulationResult{
		Success: res.Value.Err == nil,
		Logs:    res.Value.Logs,
	}
	if res.Value.UnitsConsumed != nil {
		sim.ComputeUnitsConsumed = *res.Value.UnitsConsumed
	}
	if res.Value.Err != nil {
		sim.Error = fmt.Sprintf("%v", res.Value.Err)
		classifySimulationError(sim)
	}
	return sim, nil
}

func (c *RPCClient) Send(ctx context.Context, tx *solana.Transaction) (solana.Signature, error) {
	maxRetries := c.maxRetries
	return c.rpc.SendTransactionWithOpts(ctx, tx, rpc.TransactionOpts{
		// simulated already with signature verification
		SkipPreflight:       true,
		PreflightCommitment: c.commitment,
		MaxRetries:          &maxRetries,
	})
}

func (c *RPCClient) SignatureStatus(ctx context.Context, sig solana.Signature) (*SignatureStatus, error) {
	res, err := c.rpc.GetSignatureStatuses(ctx, true, sig)
	if err != nil {
		return nil, err
	}
	if res == nil || len(res.Value) == 0 || res.Value[0] == nil {
		return nil, nil
	}

	st := res.Value[0]
	status := &SignatureStatus{
		Slot:               st.Slot,
		ConfirmationStatus: string(st.ConfirmationStatus),
	}
	if st.Err != nil {
		status.Err = fmt.Sprintf("%v", st.Err)
	}
	return status, nil
}

func classifySimulationError(sim *domain.SimulationResult) {
	msg := strings.ToLower(sim.Error)
	sim.InsufficientFunds = strings.Contains(msg, "insufficient") || strings.Contains(msg, "not enough")
	sim.SlippageExceeded = strings.Contains(msg, "slippage")
	sim.BlockhashNotFound = strings.Contains(msg, "blockhashnotfound") || strings.Contains(msg, "blockhash not found")

	if !sim.SlippageExceeded {
		for _, line := range sim.Logs {
			if strings.Contains(line, "SlippageToleranceExceeded") || strings.Contains(line, "ExceededSlippage") {
				sim.SlippageExceeded = true
				break
			}
		}
	}
}

// IsBlockhashError reports whether an RPC error says the referenced blockhash
// is no longer accepted.
func IsBlockhashError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "blockhash not found") || strings.Contains(msg, "blockhashnotfound")
}
