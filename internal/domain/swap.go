package domain

import (
	"time"

	"github.com/gagliardetto/solana-go"
)

// SwapIntent is what a caller wants to trade. Amount is in the input asset's
// smallest unit.
type SwapIntent struct {
	InputMint      solana.PublicKey
	OutputMint     solana.PublicKey
	Amount         uint64
	SlippageBpsMax uint16
	Requester      solana.PublicKey
}

// WithAmount returns a copy of the intent for a different input amount.
func (i SwapIntent) WithAmount(amount uint64) SwapIntent {
	i.Amount = amount
	return i
}

type TradeSide uint8

const (
	SideSell TradeSide = iota
	SideBuy
)

func (s TradeSide) String() string {
	if s == SideBuy {
		return "buy"
	}
	return "sell"
}

// FeeDecision is the platform fee outcome for one intent. FeeAmount is in the
// input asset's smallest unit.
type FeeDecision struct {
	FeeBps       uint16
	FeeRecipient solana.PublicKey
	Applies      bool
	Side         TradeSide
	FeeAmount    uint64
}

// UnsignedTransactionRecord is a built message waiting for the requester's
// signature. Only the registry sets Consumed, exactly once.
type UnsignedTransactionRecord struct {
	CorrelationID        string
	Message              []byte
	FeePayer             solana.PublicKey
	Requester            solana.PublicKey
	Blockhash            solana.Hash
	LastValidBlockHeight uint64
	Fee                  FeeDecision
	CreatedAt            time.Time
	ExpiresAt            time.Time
	Consumed             bool
}

type SubmissionStatus uint8

const (
	StatusPending SubmissionStatus = iota
	StatusConfirmed
	StatusFailed
)

func (s SubmissionStatus) String() string {
	switch s {
	case StatusConfirmed:
		return "confirmed"
	case StatusFailed:
		return "failed"
	default:
		return "pending"
	}
}

func (s SubmissionStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// SubmissionResult is terminal once Status leaves StatusPending. TransactionID
// is zero when nothing was broadcast.
type SubmissionResult struct {
	CorrelationID string
	TransactionID solana.Signature
	Status        SubmissionStatus
	Slot          uint64
	Err           error
}

func (r SubmissionResult) Broadcast() bool {
	return r.TransactionID != solana.Signature{}
}

// SwapState tracks a swap attempt through the relay.
type SwapState uint8

const (
	StateQuoted SwapState = iota
	StateBuilt
	StateRegistered
	StateAwaitingSignature
	StateSubmitted
	StateConfirmed
	StateFailed
	StateExpired
)

var swapStateNames = [...]string{
	StateQuoted:            "quoted",
	StateBuilt:             "built",
	StateRegistered:        "registered",
	StateAwaitingSignature: "awaiting_signature",
	StateSubmitted:         "submitted",
	StateConfirmed:         "confirmed",
	StateFailed:            "failed",
	StateExpired:           "expired",
}

func (s SwapState) String() string {
	if int(s) < len(swapStateNames) {
		return swapStateNames[s]
	}
	return "unknown"
}

func (s SwapState) Terminal() bool {
	return s == StateConfirmed || s == StateFailed || s == StateExpired
}

// CanTransition reports whether next may follow s.
func (s SwapState) CanTransition(next SwapState) bool {
	switch s {
	case StateQuoted:
		return next == StateBuilt || next == StateFailed
	case StateBuilt:
		return next == StateRegistered || next == StateFailed
	case StateRegistered:
		return next == StateAwaitingSignature || next == StateExpired
	case StateAwaitingSignature:
		return next == StateSubmitted || next == StateExpired || next == StateFailed
	case StateSubmitted:
		return next == StateConfirmed || next == StateFailed
	}
	return false
}

type SimulationResult struct {
	Success              bool     `json:"success"`
	Logs                 []string `json:"logs"`
	ComputeUnitsConsumed uint64   `json:"computeUnitsConsumed"`
	Error                string   `json:"error,omitempty"`

	InsufficientFunds bool `json:"insufficientFunds"`

	SlippageExceeded bool `json:"slippageExceeded"`

	BlockhashNotFound bool `json:"blockhashNotFound"`
}
