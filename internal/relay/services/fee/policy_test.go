package fee

import (
	"math"
	"testing"

	"github.com/gagliardetto/solana-go"

	"github.com/hxuan190/sponsor-relay/internal/domain"
)

var (
	usdc      = solana.MustPublicKeyFromBase58("EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v")
	bonk      = solana.MustPublicKeyFromBase58("DezXAZ8z7PnrnRJjz3wXBoRgixCa6xjnB7YaB1pPB263")
	recipient = solana.NewWallet().PublicKey()
)

func testPolicy() *Policy {
	return NewPolicy(Config{
		BuyBps:       100,
		SellBps:      50,
		MinTradeSize: 1_000_000,
		Recipient:    recipient,
		QuoteMints:   []solana.PublicKey{solana.SolMint, usdc},
	})
}

func TestDecide(t *testing.T) {
	tests := []struct {
		name        string
		input       solana.PublicKey
		output      solana.PublicKey
		amount      uint64
		wantSide    domain.TradeSide
		wantBps     uint16
		wantAmount  uint64
		wantApplies bool
	}{
		{"buy with sol", solana.SolMint, bonk, 100_000_000, domain.SideBuy, 100, 1_000_000, true},
		{"sell into usdc", bonk, usdc, 100_000_000, domain.SideSell, 50, 500_000, true},
		{"below minimum", solana.SolMint, bonk, 999_999, domain.SideBuy, 0, 0, false},
		{"at minimum", bonk, usdc, 1_000_000, domain.SideSell, 50, 5_000, true},
		{"sell below minimum", bonk, usdc, 1_000_000 - 1, domain.SideSell, 0, 0, false},
	}

	p := testPolicy()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			intent := domain.SwapIntent{InputMint: tt.input, OutputMint: tt.output, Amount: tt.amount}
			got := p.Decide(intent, &domain.Quote{InputAmount: tt.amount})

			if got.Side != tt.wantSide {
				t.Errorf("side = %s, want %s", got.Side, tt.wantSide)
			}
			if got.FeeBps != tt.wantBps {
				t.Errorf("bps = %d, want %d", got.FeeBps, tt.wantBps)
			}
			if got.FeeAmount != tt.wantAmount {
				t.Errorf("amount = %d, want %d", got.FeeAmount, tt.wantAmount)
			}
			if got.Applies != tt.wantApplies {
				t.Errorf("applies = %v, want %v", got.Applies, tt.wantApplies)
			}
			if !got.FeeRecipient.Equals(recipient) {
				t.Errorf("recipient = %s", got.FeeRecipient)
			}
		})
	}
}

func TestDecideWithoutRecipientNeverApplies(t *testing.T) {
	p := NewPolicy(Config{BuyBps: 100, SellBps: 100})
	got := p.Decide(domain.SwapIntent{InputMint: bonk, OutputMint: usdc, Amount: 1_000_000_000}, nil)
	if got.Applies {
		t.Fatal("fee must not apply without a recipient")
	}
	if got.FeeAmount != 10_000_000 {
		t.Fatalf("fee amount = %d", got.FeeAmount)
	}
}

func TestAmountDoesNotOverflow(t *testing.T) {
	got := Amount(math.MaxUint64, 10_000)
	if got != math.MaxUint64 {
		t.Fatalf("got %d", got)
	}
	if got := Amount(math.MaxUint64, 5_000); got != math.MaxUint64/2 {
		t.Fatalf("got %d, want %d", got, uint64(math.MaxUint64/2))
	}
}

func BenchmarkDecide(b *testing.B) {
	p := testPolicy()
	intent := domain.SwapIntent{InputMint: solana.SolMint, OutputMint: bonk, Amount: 123_456_789}
	quote := &domain.Quote{InputAmount: 123_456_789}
	b.ReportAllocs()
	for b.Loop() {
		_ = p.Decide(intent, quote)
	}
}
