package domain

import (
	"time"

	"github.com/gagliardetto/solana-go"
)

// RouteHop is one leg of an aggregator route plan.
type RouteHop struct {
	Protocol     string
	AmmKey       string
	InputMint    solana.PublicKey
	OutputMint   solana.PublicKey
	InputAmount  uint64
	OutputAmount uint64
	FeeAmount    uint64
	FeeMint      solana.PublicKey
	Percent      uint8
}

// Quote is a priced route for a SwapIntent. It is immutable once produced and
// must not be used after ValidUntil.
type Quote struct {
	InputMint       solana.PublicKey
	OutputMint      solana.PublicKey
	RoutePlan       []RouteHop
	InputAmount     uint64
	OutputAmount    uint64
	MinOutputAmount uint64
	SlippageBps     uint16
	PriceImpactBps  uint32
	ContextSlot     uint64

	FetchedAt  time.Time
	ValidUntil time.Time

	// Raw is the aggregator payload the quote was decoded from. It is sent back
	// verbatim when requesting swap instructions.
	Raw []byte
}

func (q *Quote) Expired(now time.Time) bool {
	return !now.Before(q.ValidUntil)
}

// Protocols returns the venue labels of the route plan in execution order.
func (q *Quote) Protocols() []string {
	labels := make([]string, 0, len(q.RoutePlan))
	for _, hop := range q.RoutePlan {
		labels = append(labels, hop.Protocol)
	}
	return labels
}

// RouteInstructions are the instructions an aggregator returns for a quote,
// grouped the way they have to be ordered in the transaction.
type RouteInstructions struct {
	ComputeBudget []solana.Instruction
	Setup         []solana.Instruction
	Swap          solana.Instruction
	Cleanup       []solana.Instruction
	LookupTables  []solana.PublicKey
}
