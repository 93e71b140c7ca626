package priority

import (
	"context"
	"slices"
	"strings"

	"github.com/gagliardetto/solana-go"

	"github.com/hxuan190/sponsor-relay/internal/relay/adapters/blockchain"
)

// Urgency represents the priority level for a transaction
type Urgency uint8

const (
	// UrgencyLow uses p50 (median) priority fee
	UrgencyLow Urgency = iota
	// UrgencyMedium uses p75 priority fee
	UrgencyMedium
	// UrgencyHigh uses p90 priority fee
	UrgencyHigh
	// UrgencyExtreme uses p99 priority fee
	UrgencyExtreme
)

func ParseUrgency(s string) Urgency {
	switch strings.ToLower(s) {
	case "low":
		return UrgencyLow
	case "high":
		return UrgencyHigh
	case "extreme":
		return UrgencyExtreme
	default:
		return UrgencyMedium
	}
}

func (u Urgency) String() string {
	switch u {
	case UrgencyLow:
		return "low"
	case UrgencyHigh:
		return "high"
	case UrgencyExtreme:
		return "extreme"
	default:
		return "medium"
	}
}

// DefaultFees are fallback fees when RPC fails (microLamports per CU)
var DefaultFees = map[Urgency]uint64{
	UrgencyLow:     1000,
	UrgencyMedium:  10000,
	UrgencyHigh:    100000,
	UrgencyExtreme: 1000000,
}

const minFeePerCU = 100

// FeeCalculator picks a compute unit price from recent network fees.
type FeeCalculator struct {
	chain blockchain.Client
}

func NewFeeCalculator(chain blockchain.Client) *FeeCalculator {
	return &FeeCalculator{chain: chain}
}

// PriorityFeeResult holds the calculated fee information
type PriorityFeeResult struct {
	FeePerCU    uint64 // microLamports per compute unit
	Urgency     Urgency
	Percentile  int
	SampleCount int
}

// GetOptimalFee never fails; without samples it falls back to DefaultFees.
func (f *FeeCalculator) GetOptimalFee(ctx context.Context, urgency Urgency, accounts []solana.PublicKey) *PriorityFeeResult {
	percentile := getPercentileForUrgency(urgency)
	fallback := &PriorityFeeResult{
		FeePerCU:   DefaultFees[urgency],
		Urgency:    urgency,
		Percentile: percentile,
	}

	recent, err := f.chain.RecentPrioritizationFees(ctx, accounts)
	if err != nil {
		return fallback
	}

	fees := make([]uint64, 0, len(recent))
	for _, fee := range recent {
		if fee > 0 {
			fees = append(fees, fee)
		}
	}
	if len(fees) == 0 {
		return fallback
	}

	slices.Sort(fees)
	feePerCU := max(calculatePercentile(fees, percentile), minFeePerCU)

	return &PriorityFeeResult{
		FeePerCU:    feePerCU,
		Urgency:     urgency,
		Percentile:  percentile,
		SampleCount: len(fees),
	}
}

func getPercentileForUrgency(urgency Urgency) int {
	switch urgency {
	case UrgencyLow:
		return 50
	case UrgencyMedium:
		return 75
	case UrgencyHigh:
		return 90
	case UrgencyExtreme:
		return 99
	default:
		return 75
	}
}

// calculatePercentile returns the linearly interpolated value at percentile.
func calculatePercentile(sorted []uint64, percentile int) uint64 {
	if len(sorted) == 0 {
		return 0
	}
	if percentile <= 0 {
		return sorted[0]
	}
	if percentile >= 100 {
		return sorted[len(sorted)-1]
	}

	k := float64(percentile) / 100.0 * float64(len(sorted)-1)
	f := int(k)
	c := min(f+1, len(sorted)-1)

	d := k - float64(f)
	return uint64(float64(sorted[f])*(1-d) + float64(sorted[c])*d)
}
