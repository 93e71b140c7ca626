// Package fee decides the platform fee charged on a sponsored swap.
package fee

import (
	"github.com/gagliardetto/solana-go"
	"github.com/holiman/uint256"

	"github.com/hxuan190/sponsor-relay/internal/domain"
	"github.com/hxuan190/sponsor-relay/internal/metrics"
)

const BpsDenominator = 10_000

type Config struct {
	BuyBps       uint16
	SellBps      uint16
	MinTradeSize uint64
	Recipient    solana.PublicKey
	// QuoteMints are the assets a trade is priced in. Spending one of them is
	// a buy.
	QuoteMints []solana.PublicKey
}

type Policy struct {
	cfg        Config
	quoteMints map[solana.PublicKey]struct{}
}

func NewPolicy(cfg Config) *Policy {
	mints := make(map[solana.PublicKey]struct{}, len(cfg.QuoteMints))
	for _, m := range cfg.QuoteMints {
		mints[m] = struct{}{}
	}
	return &Policy{cfg: cfg, quoteMints: mints}
}

func (p *Policy) Side(intent domain.SwapIntent) domain.TradeSide {
	if _, ok := p.quoteMints[intent.InputMint]; ok {
		return domain.SideBuy
	}
	return domain.SideSell
}

// Decide computes the fee on the quote's input amount. Swaps are exact-in, so
// a nil quote sizes the fee on intent.Amount, which is the same gross amount.
// It has no side effects besides metrics.
func (p *Policy) Decide(intent domain.SwapIntent, quote *domain.Quote) domain.FeeDecision {
	amount := intent.Amount
	if quote != nil {
		amount = quote.InputAmount
	}

	decision := domain.FeeDecision{
		FeeRecipient: p.cfg.Recipient,
		Side:         p.Side(intent),
	}

	if amount >= p.cfg.MinTradeSize {
		decision.FeeBps = p.cfg.SellBps
		if decision.Side == domain.SideBuy {
			decision.FeeBps = p.cfg.BuyBps
		}
		decision.FeeAmount = Amount(amount, decision.FeeBps)
		decision.Applies = decision.FeeAmount > 0 && !p.cfg.Recipient.IsZero()
	}

	applies := "false"
	if decision.Applies {
		applies = "true"
	}
	metrics.FeeDecisions.WithLabelValues(decision.Side.String(), applies).Inc()
	return decision
}

// Amount is floor(amount * bps / 10000) without intermediate overflow.
func Amount(amount uint64, bps uint16) uint64 {
	if amount == 0 || bps == 0 {
		return 0
	}
	v := new(uint256.Int).Mul(uint256.NewInt(amount), uint256.NewInt(uint64(bps)))
	v.Div(v, uint256.NewInt(BpsDenominator))
	return v.Uint64()
}
