package broadcast

import (
	"context"
	"errors"
	"testing"
	"time"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/system"

	"github.com/hxuan190/sponsor-relay/internal/domain"
	"github.com/hxuan190/sponsor-relay/internal/relay/adapters/blockchain"
	"github.com/hxuan190/sponsor-relay/internal/relay/adapters/blockchain/blockchaintest"
	"github.com/hxuan190/sponsor-relay/internal/relay/retry"
)

var fastPoll = retry.Policy{BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond, Multiplier: 2}

type fixture struct {
	chain     *blockchaintest.Chain
	feePayer  solana.PrivateKey
	requester solana.PrivateKey
	rec       domain.UnsignedTransactionRecord
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		chain:     blockchaintest.New(),
		feePayer:  solana.NewWallet().PrivateKey,
		requester: solana.NewWallet().PrivateKey,
	}

	ix := system.NewTransferInstruction(1_000, f.requester.PublicKey(), solana.NewWallet().PublicKey()).Build()
	tx, err := solana.NewTransaction([]solana.Instruction{ix}, f.chain.Blockhash, solana.TransactionPayer(f.feePayer.PublicKey()))
	if err != nil {
		t.Fatalf("NewTransaction: %v", err)
	}
	msg, err := tx.Message.MarshalBinary()
	if err != nil {
		t.Fatalf("MarshalBinary: %v", err)
	}

	f.rec = domain.UnsignedTransactionRecord{
		CorrelationID:        "c0ffee",
		Message:              msg,
		FeePayer:             f.feePayer.PublicKey(),
		Requester:            f.requester.PublicKey(),
		Blockhash:            f.chain.Blockhash,
		LastValidBlockHeight: f.chain.LastValidBlockHeight,
	}
	return f
}

func (f *fixture) submitter(simulate bool, timeout time.Duration) *Submitter {
	return NewSubmitter(Options{
		Chain:    f.chain,
		FeePayer: f.feePayer,
		Poll:     fastPoll,
		Timeout:  timeout,
		Simulate: simulate,
	})
}

func (f *fixture) sign(t *testing.T, msg []byte) []byte {
	t.Helper()
	sig, err := f.requester.Sign(msg)
	if err != nil {
		t.Fatal(err)
	}
	return sig[:]
}

func TestSubmitConfirmed(t *testing.T) {
	f := newFixture(t)
	f.chain.Statuses = []*blockchain.SignatureStatus{nil, {Slot: 776, ConfirmationStatus: "processed"}, blockchaintest.Confirmed(777)}

	res := f.submitter(true, time.Second).Submit(context.Background(), f.rec, f.sign(t, f.rec.Message))
	if res.Err != nil {
		t.Fatalf("unexpected error %v", res.Err)
	}
	if res.Status != domain.StatusConfirmed || res.Slot != 777 || res.CorrelationID != "c0ffee" {
		t.Fatalf("unexpected result %+v", res)
	}

	sent := f.chain.Sent()
	if len(sent) != 1 {
		t.Fatalf("sent %d transactions, want 1", len(sent))
	}
	if err := sent[0].VerifySignatures(); err != nil {
		t.Fatalf("broadcast transaction signatures: %v", err)
	}
	if res.TransactionID != sent[0].Signatures[0] {
		t.Fatal("transaction id must be the fee payer signature")
	}
	if f.chain.SimulationCount() != 1 {
		t.Fatalf("simulated %d times", f.chain.SimulationCount())
	}
}

func TestSubmitAcceptsSignedTransaction(t *testing.T) {
	f := newFixture(t)
	f.chain.Statuses = []*blockchain.SignatureStatus{blockchaintest.Confirmed(10)}

	var msg solana.Message
	if err := msg.UnmarshalWithDecoder(bin.NewBinDecoder(f.rec.Message)); err != nil {
		t.Fatal(err)
	}
	sig, _ := f.requester.Sign(f.rec.Message)
	// the wallet signs its own slot and leaves the fee payer's empty
	tx := &solana.Transaction{Message: msg, Signatures: []solana.Signature{{}, sig}}
	raw, err := tx.MarshalBinary()
	if err != nil {
		t.Fatal(err)
	}

	res := f.submitter(false, time.Second).Submit(context.Background(), f.rec, raw)
	if res.Status != domain.StatusConfirmed {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestSubmitSignatureMismatchNeverBroadcasts(t *testing.T) {
	tests := []struct {
		name   string
		signed func(f *fixture, t *testing.T) []byte
	}{
		{
			name: "signature over another message",
			signed: func(f *fixture, t *testing.T) []byte {
				other := append([]byte(nil), f.rec.Message...)
				other[len(other)-1] ^= 0xff
				return f.sign(t, other)
			},
		},
		{
			name: "signed by someone else",
			signed: func(f *fixture, t *testing.T) []byte {
				sig, _ := solana.NewWallet().PrivateKey.Sign(f.rec.Message)
				return sig[:]
			},
		},
		{
			name: "garbage",
			signed: func(f *fixture, t *testing.T) []byte {
				return []byte{1, 2, 3}
			},
		},
		{
			name: "transaction with another message",
			signed: func(f *fixture, t *testing.T) []byte {
				ix := system.NewTransferInstruction(5, f.requester.PublicKey(), solana.NewWallet().PublicKey()).Build()
				tx, err := solana.NewTransaction([]solana.Instruction{ix}, f.chain.Blockhash, solana.TransactionPayer(f.feePayer.PublicKey()))
				if err != nil {
					t.Fatal(err)
				}
				tx.Signatures = make([]solana.Signature, 2)
				raw, err := tx.MarshalBinary()
				if err != nil {
					t.Fatal(err)
				}
				return raw
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			res := f.submitter(true, time.Second).Submit(context.Background(), f.rec, tt.signed(f, t))
			if !errors.Is(res.Err, domain.ErrSignatureMismatch) {
				t.Fatalf("err = %v, want SignatureMismatch", res.Err)
			}
			if res.Broadcast() || len(f.chain.Sent()) != 0 || f.chain.SimulationCount() != 0 {
				t.Fatal("mismatched signature must never reach the chain")
			}
			if domain.Recommend(res.Err) != domain.RecommendDoNotRetry {
				t.Fatal("signature mismatch must not be retried")
			}
		})
	}
}

type expiringChain struct {
	*blockchaintest.Chain
}

func (c expiringChain) Send(ctx context.Context, tx *solana.Transaction) (solana.Signature, error) {
	sig, err := c.Chain.Send(ctx, tx)
	c.SetHeight(c.LastValidBlockHeight + 1)
	return sig, err
}

func TestSubmitFailures(t *testing.T) {
	tests := []struct {
		name     string
		setup    func(f *fixture)
		simulate bool
		timeout  time.Duration
		want     error
		sent     int
	}{
		{
			name:  "block reference expired before send",
			setup: func(f *fixture) { f.chain.SetHeight(f.chain.LastValidBlockHeight + 1) },
			want:  domain.ErrBlockReferenceExpired,
		},
		{
			name:     "simulation rejects",
			setup:    func(f *fixture) { f.chain.Simulation = &domain.SimulationResult{Error: "custom program error: 0x1771", SlippageExceeded: true} },
			simulate: true,
			want:     domain.ErrBroadcastRejected,
		},
		{
			name:     "simulation blockhash not found",
			setup:    func(f *fixture) { f.chain.Simulation = &domain.SimulationResult{Error: "BlockhashNotFound", BlockhashNotFound: true} },
			simulate: true,
			want:     domain.ErrBlockReferenceExpired,
		},
		{
			name:  "send with stale blockhash",
			setup: func(f *fixture) { f.chain.SendErr = errors.New("Transaction simulation failed: Blockhash not found") },
			want:  domain.ErrBlockReferenceExpired,
		},
		{
			name:  "send error",
			setup: func(f *fixture) { f.chain.SendErr = errors.New("node is behind") },
			want:  domain.ErrBroadcastRejected,
		},
		{
			name: "execution error",
			setup: func(f *fixture) {
				f.chain.Statuses = []*blockchain.SignatureStatus{{Slot: 9, ConfirmationStatus: "confirmed", Err: "InstructionError"}}
			},
			want: domain.ErrTransactionFailed,
			sent: 1,
		},
		{
			name:    "never lands",
			setup:   func(f *fixture) {},
			timeout: 30 * time.Millisecond,
			want:    domain.ErrConfirmationTimeout,
			sent:    1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			tt.setup(f)
			timeout := tt.timeout
			if timeout == 0 {
				timeout = time.Second
			}
			res := f.submitter(tt.simulate, timeout).Submit(context.Background(), f.rec, f.sign(t, f.rec.Message))
			if !errors.Is(res.Err, tt.want) {
				t.Fatalf("err = %v, want %v", res.Err, tt.want)
			}
			if res.Status != domain.StatusFailed {
				t.Fatalf("status = %s", res.Status)
			}
			if got := len(f.chain.Sent()); got != tt.sent {
				t.Fatalf("sent %d transactions, want %d", got, tt.sent)
			}
		})
	}
}

func TestSubmitExpiresWhilePolling(t *testing.T) {
	f := newFixture(t)
	s := NewSubmitter(Options{Chain: expiringChain{f.chain}, FeePayer: f.feePayer, Poll: fastPoll, Timeout: time.Second})

	res := s.Submit(context.Background(), f.rec, f.sign(t, f.rec.Message))
	if !errors.Is(res.Err, domain.ErrBlockReferenceExpired) {
		t.Fatalf("err = %v, want BlockReferenceExpired", res.Err)
	}
	if !res.Broadcast() {
		t.Fatal("transaction was sent, its id must be reported")
	}
	if len(f.chain.Sent()) != 1 {
		t.Fatal("expired transactions are never re-sent")
	}
}
