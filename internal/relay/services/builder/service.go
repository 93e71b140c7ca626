package builder

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/gagliardetto/solana-go"

	"github.com/hxuan190/sponsor-relay/internal/common"
	"github.com/hxuan190/sponsor-relay/internal/domain"
	"github.com/hxuan190/sponsor-relay/internal/metrics"
	"github.com/hxuan190/sponsor-relay/internal/relay/adapters/blockchain"
	"github.com/hxuan190/sponsor-relay/internal/relay/services/priority"
)

var (
	ErrFeePayerSigner   = errors.New("route instruction requires the fee payer signature")
	ErrRequesterMissing = errors.New("requester is not a required signer")
	ErrPayerNotFirst    = errors.New("fee payer is not the first account")
)

// InstructionSource turns a quote into executable instructions for user.
type InstructionSource interface {
	GetSwapInstructions(ctx context.Context, quote *domain.Quote, user solana.PublicKey) (*domain.RouteInstructions, error)
}

type BlockhashSource interface {
	GetBlockhash(ctx context.Context) (solana.Hash, uint64, error)
}

type LookupResolver interface {
	Resolve(ctx context.Context, addresses []solana.PublicKey) (map[solana.PublicKey]solana.PublicKeySlice, error)
}

type Options struct {
	Chain        blockchain.Client
	Instructions InstructionSource
	Blockhash    BlockhashSource
	LookupTables LookupResolver
	Priority     *priority.Service
}

// Service assembles sponsored swap transactions. It keeps no state beyond
// caches of on-chain metadata.
type Service struct {
	instructions InstructionSource
	blockhash    BlockhashSource
	luts         LookupResolver
	priority     *priority.Service
	mints        *mintRegistry
	now          func() time.Time
}

func New(opts Options) *Service {
	return &Service{
		instructions: opts.Instructions,
		blockhash:    opts.Blockhash,
		luts:         opts.LookupTables,
		priority:     opts.Priority,
		mints:        newMintRegistry(opts.Chain),
		now:          time.Now,
	}
}

// Build produces the unsigned message for intent. The fee payer is always the
// first account and the requester is always a required signer. A quote past
// its ValidUntil, before or after the instruction fetch, fails with
// QuoteExpired.
func (svc *Service) Build(ctx context.Context, intent domain.SwapIntent, quote *domain.Quote, fee domain.FeeDecision, feePayer solana.PublicKey) (*domain.UnsignedTransactionRecord, error) {
	start := time.Now()
	rec, err := svc.build(ctx, intent, quote, fee, feePayer)
	metrics.BuildDuration.Observe(time.Since(start).Seconds())

	status := "ok"
	if err != nil {
		var buildErr *domain.BuildError
		var routeErr *domain.RouteError
		switch {
		case errors.As(err, &buildErr):
			status = buildErr.Code.String()
		case errors.As(err, &routeErr):
			status = routeErr.Code.String()
		default:
			status = "error"
		}
	}
	metrics.BuildRequests.WithLabelValues(status).Inc()
	return rec, err
}

func (svc *Service) build(ctx context.Context, intent domain.SwapIntent, quote *domain.Quote, fee domain.FeeDecision, feePayer solana.PublicKey) (*domain.UnsignedTransactionRecord, error) {
	if quote.Expired(svc.now()) {
		return nil, domain.NewBuildError(domain.CodeQuoteExpired, nil)
	}
	route, err := svc.instructions.GetSwapInstructions(ctx, quote, intent.Requester)
	if err != nil {
		var routeErr *domain.RouteError
		var buildErr *domain.BuildError
		if errors.As(err, &routeErr) || errors.As(err, &buildErr) {
			return nil, err
		}
		return nil, domain.NewBuildError(domain.CodeMalformedRoute, err)
	}
	if quote.Expired(svc.now()) {
		return nil, domain.NewBuildError(domain.CodeQuoteExpired, errors.New("expired while fetching instructions"))
	}
	if route.Swap == nil {
		return nil, domain.NewBuildError(domain.CodeMalformedRoute, errors.New("route has no swap instruction"))
	}

	routeIxs := slices.Concat(route.ComputeBudget, route.Setup, []solana.Instruction{route.Swap}, route.Cleanup)
	if err := guardFeePayer(routeIxs, feePayer); err != nil {
		return nil, domain.NewBuildError(domain.CodeUnsafeInstruction, err)
	}

	budget, err := priority.DecodeRouteBudget(route.ComputeBudget)
	if err != nil {
		return nil, domain.NewBuildError(domain.CodeMalformedRoute, err)
	}
	priorityCfg := svc.priority.GetPriorityConfig(ctx, budget, priority.WritableAccounts([]solana.Instruction{route.Swap}, intent.Requester))

	instructions := svc.priority.BuildPriorityInstructions(priorityCfg, budget)

	if fee.Applies {
		feeIxs, err := svc.feeInstructions(ctx, intent, fee, feePayer)
		if err != nil {
			return nil, domain.NewBuildError(domain.CodeMalformedRoute, fmt.Errorf("fee transfer: %w", err))
		}
		instructions = append(instructions, feeIxs...)
	}

	keepLamports := intent.InputMint.Equals(common.NativeMint) || intent.OutputMint.Equals(common.NativeMint)
	for _, ix := range route.Setup {
		instructions = append(instructions, reassignRent(ix, feePayer, keepLamports))
	}
	instructions = append(instructions, route.Swap)
	for _, ix := range route.Cleanup {
		instructions = append(instructions, reassignRent(ix, feePayer, keepLamports))
	}

	blockhash, lastValid, err := svc.blockhash.GetBlockhash(ctx)
	if err != nil {
		return nil, domain.NewBuildError(domain.CodeStaleBlockReference, err)
	}

	tables, err := svc.luts.Resolve(ctx, route.LookupTables)
	if err != nil {
		return nil, domain.NewBuildError(domain.CodeLookupTableUnresolved, err)
	}

	tx, err := solana.NewTransaction(
		instructions,
		blockhash,
		solana.TransactionPayer(feePayer),
		solana.TransactionAddressTables(tables),
	)
	if err != nil {
		return nil, domain.NewBuildError(domain.CodeMalformedRoute, err)
	}

	message, err := tx.Message.MarshalBinary()
	if err != nil {
		return nil, domain.NewBuildError(domain.CodeMalformedRoute, err)
	}

	size := SerializedSize(int(tx.Message.Header.NumRequiredSignatures), len(message))
	metrics.TransactionSize.Observe(float64(size))
	if size > common.MaxTransactionSize {
		return nil, domain.NewBuildError(domain.CodeInstructionOverflow,
			fmt.Errorf("%d bytes exceeds %d", size, common.MaxTransactionSize))
	}

	if len(tx.Message.AccountKeys) == 0 || !tx.Message.AccountKeys[0].Equals(feePayer) {
		return nil, domain.NewBuildError(domain.CodeMalformedRoute, ErrPayerNotFirst)
	}
	if !tx.Message.IsSigner(intent.Requester) {
		return nil, domain.NewBuildError(domain.CodeMalformedRoute, ErrRequesterMissing)
	}

	return &domain.UnsignedTransactionRecord{
		Message:              message,
		FeePayer:             feePayer,
		Requester:            intent.Requester,
		Blockhash:            blockhash,
		LastValidBlockHeight: lastValid,
		Fee:                  fee,
	}, nil
}

// SerializedSize is the wire size of a transaction: the signature count, the
// signatures and the message.
func SerializedSize(signers, messageLen int) int {
	return 1 + common.SignatureSize*signers + messageLen
}

func guardFeePayer(ixs []solana.Instruction, feePayer solana.PublicKey) error {
	for _, ix := range ixs {
		for _, meta := range ix.Accounts() {
			if meta.IsSigner && meta.PublicKey.Equals(feePayer) {
				return fmt.Errorf("program %s: %w", ix.ProgramID(), ErrFeePayerSigner)
			}
		}
	}
	return nil
}

// reassignRent makes the fee payer fund account creations and receive the rent
// of closed token accounts. When the swap settles in native SOL the close
// returns the requester's lamports, so it is left alone.
func reassignRent(ix solana.Instruction, feePayer solana.PublicKey, keepLamports bool) solana.Instruction {
	data, err := ix.Data()
	if err != nil {
		return ix
	}

	switch {
	case ix.ProgramID().Equals(common.ATAProgramID):
		if len(data) > 0 && data[0] != common.ATAInstructionCreate && data[0] != common.ATAInstructionCreateIdempotent {
			return ix
		}
		return replaceAccount(ix, data, 0, solana.NewAccountMeta(feePayer, true, true))
	case common.IsTokenProgram(ix.ProgramID()):
		if keepLamports || len(data) == 0 || data[0] != common.TokenInstructionCloseAccount {
			return ix
		}
		return replaceAccount(ix, data, 1, solana.NewAccountMeta(feePayer, true, false))
	}
	return ix
}

func replaceAccount(ix solana.Instruction, data []byte, idx int, meta *solana.AccountMeta) solana.Instruction {
	accounts := slices.Clone(ix.Accounts())
	if idx >= len(accounts) {
		return ix
	}
	accounts[idx] = meta
	return solana.NewInstruction(ix.ProgramID(), accounts, data)
}
