package priority

import (
	"context"

	"github.com/gagliardetto/solana-go"

	"github.com/hxuan190/sponsor-relay/internal/metrics"
	"github.com/hxuan190/sponsor-relay/internal/relay/adapters/blockchain"
)

const (
	DefaultComputeUnits = 200000
	MaxComputeUnits     = 1400000

	// DefaultMaxPrice caps the compute unit price the relay is willing to pay
	DefaultMaxPrice = 1000000

	maxFeeAccounts = 8
)

type Options struct {
	Urgency  Urgency
	MaxPrice uint64
}

// Service decides the compute budget of sponsored transactions. The relay pays
// the priority fee, so the price is always capped.
type Service struct {
	feeCalculator *FeeCalculator
	urgency       Urgency
	maxPrice      uint64
}

func NewService(chain blockchain.Client, opts Options) *Service {
	if opts.MaxPrice == 0 {
		opts.MaxPrice = DefaultMaxPrice
	}
	return &Service{
		feeCalculator: NewFeeCalculator(chain),
		urgency:       opts.Urgency,
		maxPrice:      opts.MaxPrice,
	}
}

// PriorityConfig holds the computed priority settings for a transaction
type PriorityConfig struct {
	ComputeUnits     uint32
	PriorityFee      uint64 // microLamports per CU
	TotalFeeLamports uint64
	Urgency          Urgency
	// PriceFromRoute is set when the route's own price was kept (possibly capped).
	PriceFromRoute bool
}

// GetPriorityConfig merges the route's compute budget with the relay policy:
// route values are kept but the price is capped, a missing price comes from
// recent network fees and a missing limit gets DefaultComputeUnits.
func (s *Service) GetPriorityConfig(ctx context.Context, route *RouteBudget, accounts []solana.PublicKey) *PriorityConfig {
	cfg := &PriorityConfig{
		ComputeUnits: DefaultComputeUnits,
		Urgency:      s.urgency,
	}

	if route != nil && route.Units != nil {
		cfg.ComputeUnits = min(*route.Units, MaxComputeUnits)
	}

	if route != nil && route.Price != nil {
		cfg.PriorityFee = *route.Price
		cfg.PriceFromRoute = true
	} else {
		cfg.PriorityFee = s.feeCalculator.GetOptimalFee(ctx, s.urgency, limitAccounts(accounts)).FeePerCU
	}
	cfg.PriorityFee = min(cfg.PriorityFee, s.maxPrice)

	cfg.TotalFeeLamports = uint64(cfg.ComputeUnits) * cfg.PriorityFee / 1000000
	metrics.PriorityFee.Set(float64(cfg.PriorityFee))
	return cfg
}

// BuildPriorityInstructions creates the compute budget instructions; route
// instructions other than limit and price are appended unchanged.
func (s *Service) BuildPriorityInstructions(config *PriorityConfig, route *RouteBudget) []solana.Instruction {
	instructions := make([]solana.Instruction, 0, 2)
	instructions = append(instructions,
		NewSetComputeUnitLimitInstruction(config.ComputeUnits),
		NewSetComputeUnitPriceInstruction(config.PriorityFee),
	)
	if route != nil {
		instructions = append(instructions, route.Other...)
	}
	return instructions
}

// WritableAccounts returns the writable accounts of ixs, skipping exclude,
// limited to what the fee RPC accepts cheaply.
func WritableAccounts(ixs []solana.Instruction, exclude ...solana.PublicKey) []solana.PublicKey {
	seen := make(map[solana.PublicKey]struct{}, maxFeeAccounts)
	for _, pk := range exclude {
		seen[pk] = struct{}{}
	}

	accounts := make([]solana.PublicKey, 0, maxFeeAccounts)
	for _, ix := range ixs {
		for _, meta := range ix.Accounts() {
			if !meta.IsWritable {
				continue
			}
			if _, ok := seen[meta.PublicKey]; ok {
				continue
			}
			seen[meta.PublicKey] = struct{}{}
			accounts = append(accounts, meta.PublicKey)
			if len(accounts) == maxFeeAccounts {
				return accounts
			}
		}
	}
	return accounts
}

func limitAccounts(accounts []solana.PublicKey) []solana.PublicKey {
	if len(accounts) > maxFeeAccounts {
		return accounts[:maxFeeAccounts]
	}
	return accounts
}
