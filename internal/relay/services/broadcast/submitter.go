// Package broadcast co-signs requester-signed swaps, sends them once and waits
// for the cluster to confirm them.
package broadcast

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"

	"github.com/hxuan190/sponsor-relay/internal/common"
	"github.com/hxuan190/sponsor-relay/internal/domain"
	"github.com/hxuan190/sponsor-relay/internal/metrics"
	"github.com/hxuan190/sponsor-relay/internal/relay/adapters/blockchain"
	"github.com/hxuan190/sponsor-relay/internal/relay/retry"
	"github.com/hxuan190/sponsor-relay/internal/services"
)

var (
	ErrMalformedSignature = errors.New("signed payload is neither a signature nor a transaction")
	ErrMessageMismatch    = errors.New("signed transaction carries a different message")
	ErrSignatureInvalid   = errors.New("signature does not verify against the requester")
	ErrNotSigner          = errors.New("requester is not a signer of the message")

	errPending = errors.New("signature not confirmed yet")
)

const DefaultConfirmationTimeout = 60 * time.Second

type Options struct {
	Chain    blockchain.Client
	FeePayer solana.PrivateKey
	// Poll paces status checks; its MaxAttempts is ignored, Timeout bounds it.
	Poll     retry.Policy
	Timeout  time.Duration
	Simulate bool
}

type Submitter struct {
	chain    blockchain.Client
	feePayer solana.PrivateKey
	poll     retry.Policy
	timeout  time.Duration
	simulate bool
	logger   *services.ServiceLogger
}

func NewSubmitter(opts Options) *Submitter {
	poll := opts.Poll
	poll.MaxAttempts = 0
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultConfirmationTimeout
	}
	return &Submitter{
		chain:    opts.Chain,
		feePayer: opts.FeePayer,
		poll:     poll,
		timeout:  opts.Timeout,
		simulate: opts.Simulate,
		logger:   services.NewNamedLogger("broadcast"),
	}
}

// Submit verifies the requester's signature over the stored message, adds the
// fee payer signature and broadcasts the transaction exactly once. The result
// is always terminal.
func (s *Submitter) Submit(ctx context.Context, rec domain.UnsignedTransactionRecord, signed []byte) domain.SubmissionResult {
	logger := s.logger.With("correlation_id", rec.CorrelationID)

	result := s.submit(ctx, logger, &rec, signed)
	result.CorrelationID = rec.CorrelationID

	code := "none"
	var submitErr *domain.SubmissionError
	if errors.As(result.Err, &submitErr) {
		code = submitErr.Code.String()
	}
	metrics.Submissions.WithLabelValues(result.Status.String(), code).Inc()

	if result.Err != nil {
		logger.Warn().Err(result.Err).Str("signature", result.TransactionID.String()).Msg("submission failed")
	} else {
		logger.Info().Str("signature", result.TransactionID.String()).Uint64("slot", result.Slot).Msg("swap confirmed")
	}
	return result
}

func (s *Submitter) submit(ctx context.Context, logger *services.ServiceLogger, rec *domain.UnsignedTransactionRecord, signed []byte) domain.SubmissionResult {
	fail := func(code domain.SubmissionErrorCode, err error) domain.SubmissionResult {
		return domain.SubmissionResult{Status: domain.StatusFailed, Err: domain.NewSubmissionError(code, err)}
	}

	sig, err := requesterSignature(rec, signed)
	if err != nil {
		metrics.SignatureMismatches.Inc()
		return fail(domain.CodeSignatureMismatch, err)
	}

	tx, err := s.assemble(rec, sig)
	if err != nil {
		metrics.SignatureMismatches.Inc()
		return fail(domain.CodeSignatureMismatch, err)
	}

	if s.simulate {
		if res := s.preflight(ctx, tx); res != nil {
			return *res
		}
	}

	if height, err := s.chain.BlockHeight(ctx); err != nil {
		logger.Warn().Err(err).Msg("block height unavailable, sending anyway")
	} else if height > rec.LastValidBlockHeight {
		return fail(domain.CodeBlockReferenceExpired, fmt.Errorf("height %d past %d", height, rec.LastValidBlockHeight))
	}

	txSig, err := s.chain.Send(ctx, tx)
	if err != nil {
		if blockchain.IsBlockhashError(err) {
			return fail(domain.CodeBlockReferenceExpired, err)
		}
		return fail(domain.CodeBroadcastRejected, err)
	}
	logger.Debug().Str("signature", txSig.String()).Msg("transaction sent")

	res := s.confirm(ctx, rec, txSig)
	res.TransactionID = txSig
	return res
}

// requesterSignature accepts a bare signature or a full transaction signed by
// the requester and returns the requester's signature once it verifies over
// the stored message.
func requesterSignature(rec *domain.UnsignedTransactionRecord, signed []byte) (solana.Signature, error) {
	var sig solana.Signature
	switch {
	case len(signed) == common.SignatureSize:
		copy(sig[:], signed)
	case len(signed) > common.SignatureSize:
		tx, err := solana.TransactionFromDecoder(bin.NewBinDecoder(signed))
		if err != nil {
			return sig, fmt.Errorf("%w: %v", ErrMalformedSignature, err)
		}
		msg, err := tx.Message.MarshalBinary()
		if err != nil || !bytes.Equal(msg, rec.Message) {
			return sig, ErrMessageMismatch
		}
		idx := signerIndex(&tx.Message, rec.Requester)
		if idx < 0 || idx >= len(tx.Signatures) {
			return sig, ErrNotSigner
		}
		sig = tx.Signatures[idx]
	default:
		return sig, ErrMalformedSignature
	}

	if !sig.Verify(rec.Requester, rec.Message) {
		return sig, ErrSignatureInvalid
	}
	return sig, nil
}

func (s *Submitter) assemble(rec *domain.UnsignedTransactionRecord, requesterSig solana.Signature) (*solana.Transaction, error) {
	var msg solana.Message
	if err := msg.UnmarshalWithDecoder(bin.NewBinDecoder(rec.Message)); err != nil {
		return nil, fmt.Errorf("decode message: %w", err)
	}

	requesterIdx := signerIndex(&msg, rec.Requester)
	if requesterIdx < 0 {
		return nil, ErrNotSigner
	}
	payerIdx := signerIndex(&msg, s.feePayer.PublicKey())
	if payerIdx < 0 {
		return nil, fmt.Errorf("fee payer %s is not a signer", s.feePayer.PublicKey())
	}

	payerSig, err := s.feePayer.Sign(rec.Message)
	if err != nil {
		return nil, fmt.Errorf("fee payer sign: %w", err)
	}

	signatures := make([]solana.Signature, msg.Header.NumRequiredSignatures)
	signatures[payerIdx] = payerSig
	signatures[requesterIdx] = requesterSig
	return &solana.Transaction{Signatures: signatures, Message: msg}, nil
}

func signerIndex(msg *solana.Message, key solana.PublicKey) int {
	n := int(msg.Header.NumRequiredSignatures)
	for i := 0; i < n && i < len(msg.AccountKeys); i++ {
		if msg.AccountKeys[i].Equals(key) {
			return i
		}
	}
	return -1
}

func (s *Submitter) preflight(ctx context.Context, tx *solana.Transaction) *domain.SubmissionResult {
	metrics.SimulationRequests.Inc()

	sim, err := s.chain.Simulate(ctx, tx)
	reason := ""
	var cause error
	code := domain.CodeBroadcastRejected
	switch {
	case err != nil:
		reason, cause = "rpc", err
		if blockchain.IsBlockhashError(err) {
			code = domain.CodeBlockReferenceExpired
		}
	case sim.BlockhashNotFound:
		reason, cause = "blockhash", errors.New(sim.Error)
		code = domain.CodeBlockReferenceExpired
	case sim.SlippageExceeded:
		reason, cause = "slippage", errors.New(sim.Error)
	case sim.InsufficientFunds:
		reason, cause = "insufficient_funds", errors.New(sim.Error)
	case !sim.Success:
		reason, cause = "program", errors.New(sim.Error)
	default:
		metrics.ComputeUnits.Observe(float64(sim.ComputeUnitsConsumed))
		return nil
	}

	metrics.SimulationFailures.WithLabelValues(reason).Inc()
	return &domain.SubmissionResult{
		Status: domain.StatusFailed,
		Err:    domain.NewSubmissionError(code, fmt.Errorf("simulation: %w", cause)),
	}
}

// confirm polls the signature until it lands, fails on chain, its block
// reference expires or the confirmation timeout passes. It never re-sends.
func (s *Submitter) confirm(ctx context.Context, rec *domain.UnsignedTransactionRecord, sig solana.Signature) domain.SubmissionResult {
	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var slot uint64
	err := s.poll.Do(ctx, func(ctx context.Context) error {
		st, err := s.chain.SignatureStatus(ctx, sig)
		if err != nil {
			return err
		}
		if st == nil {
			if height, herr := s.chain.BlockHeight(ctx); herr == nil && height > rec.LastValidBlockHeight {
				return retry.Permanent(domain.NewSubmissionError(domain.CodeBlockReferenceExpired,
					fmt.Errorf("height %d past %d before landing", height, rec.LastValidBlockHeight)))
			}
			return errPending
		}
		if st.Err != "" {
			return retry.Permanent(domain.NewSubmissionError(domain.CodeTransactionFailed, errors.New(st.Err)))
		}
		if !st.Landed() {
			return errPending
		}
		slot = st.Slot
		return nil
	})
	metrics.ConfirmationDuration.Observe(time.Since(start).Seconds())

	if err == nil {
		return domain.SubmissionResult{Status: domain.StatusConfirmed, Slot: slot}
	}

	var submitErr *domain.SubmissionError
	if errors.As(err, &submitErr) {
		return domain.SubmissionResult{Status: domain.StatusFailed, Err: submitErr}
	}
	return domain.SubmissionResult{
		Status: domain.StatusFailed,
		Err:    domain.NewSubmissionError(domain.CodeConfirmationTimeout, fmt.Errorf("after %s: %w", s.timeout, err)),
	}
}
