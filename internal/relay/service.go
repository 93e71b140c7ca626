package relay

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
	container "github.com/thehyperflames/dicontainer-go"

	"github.com/hxuan190/sponsor-relay/internal/common"
	"github.com/hxuan190/sponsor-relay/internal/config"
	"github.com/hxuan190/sponsor-relay/internal/domain"
	"github.com/hxuan190/sponsor-relay/internal/metrics"
	"github.com/hxuan190/sponsor-relay/internal/relay/adapters/blockchain"
	"github.com/hxuan190/sponsor-relay/internal/relay/retry"
	"github.com/hxuan190/sponsor-relay/internal/relay/services/aggregator"
	"github.com/hxuan190/sponsor-relay/internal/relay/services/broadcast"
	"github.com/hxuan190/sponsor-relay/internal/relay/services/builder"
	"github.com/hxuan190/sponsor-relay/internal/relay/services/fee"
	"github.com/hxuan190/sponsor-relay/internal/relay/services/priority"
	"github.com/hxuan190/sponsor-relay/internal/relay/services/quotecache"
	"github.com/hxuan190/sponsor-relay/internal/relay/services/registry"
	"github.com/hxuan190/sponsor-relay/internal/services"
)

const RELAY_SERVICE = "relay-service"

const defaultUserSlippageBpsMax = 300

// RouteSource prices intents and turns quotes into instructions.
type RouteSource interface {
	GetRoute(ctx context.Context, intent domain.SwapIntent) (*domain.Quote, error)
	GetSwapInstructions(ctx context.Context, quote *domain.Quote, user solana.PublicKey) (*domain.RouteInstructions, error)
}

// Dependencies is everything the relay needs besides the container. Zero
// values fall back to the component defaults.
type Dependencies struct {
	Chain    blockchain.Client
	Routes   RouteSource
	FeePayer solana.PrivateKey

	Fee        fee.Config
	QuoteCache quotecache.Options
	Registry   registry.Options
	Priority   priority.Options

	// Retry applies to aggregator calls that failed as unavailable.
	Retry retry.Policy
	// Poll paces confirmation checks up to ConfirmationTimeout.
	Poll                retry.Policy
	ConfirmationTimeout time.Duration
	SimulateBeforeSend  bool

	BlockhashMaxAge    time.Duration
	LUTAddresses       []solana.PublicKey
	LUTRefreshInterval time.Duration

	UserSlippageBpsMax uint16
}

// PreparedSwap is what a requester needs to sign: the exact message bytes and
// the terms they commit to.
type PreparedSwap struct {
	CorrelationID        string
	Message              []byte
	Fee                  domain.FeeDecision
	Quote                *domain.Quote
	ExpiresAt            time.Time
	LastValidBlockHeight uint64
	FeePayer             solana.PublicKey
}

// Service runs the quote, prepare and submit steps of a sponsored swap.
type Service struct {
	container.BaseDIInstance
	logger *services.ServiceLogger

	routes    RouteSource
	cache     *quotecache.Cache
	feePolicy *fee.Policy
	builder   *builder.Service
	registry  *registry.Registry
	submitter *broadcast.Submitter

	blockhashCache *blockchain.BlockhashCache
	luts           *builder.LUTManager

	feePayer    solana.PrivateKey
	retry       retry.Policy
	slippageMax uint16

	cancel context.CancelFunc
}

// New builds a relay outside of the container.
func New(deps Dependencies) *Service {
	svc := &Service{}
	svc.init(deps)
	return svc
}

func (svc *Service) ID() string {
	return RELAY_SERVICE
}

func (svc *Service) Configure(c container.IContainer) error {
	rpcConfig := c.GetConfig(config.RPC_CONFIG_KEY).(*config.RPCConfig)
	aggConfig := c.GetConfig(config.AGGREGATOR_CONFIG_KEY).(*config.AggregatorConfig)
	feeConfig := c.GetConfig(config.FEE_CONFIG_KEY).(*config.FeeConfig)
	relayConfig := c.GetConfig(config.RELAY_CONFIG_KEY).(*config.RelayConfig)
	lutConfig := c.GetConfig(config.LUT_CONFIG_KEY).(*config.LUTConfig)

	if rpcConfig.RelayKeypair.IsZero() {
		return errors.New("relay keypair is not configured")
	}

	chain := blockchain.NewRPCClient(rpcConfig.RPCUrl, rpcConfig.Commitment, rpcConfig.BroadcastMaxRetries)
	routes := aggregator.New(aggregator.Options{
		BaseURL:     aggConfig.BaseURL,
		Timeout:     aggConfig.Timeout,
		QuoteTTL:    aggConfig.QuoteTTL,
		MaxAccounts: aggConfig.MaxAccounts,
		APIKey:      aggConfig.APIKey,
	})

	backoff := retry.DefaultPolicy()
	backoff.MaxAttempts = uint64(aggConfig.RetryMaxAttempts)
	backoff.BaseDelay = aggConfig.RetryBaseDelay
	backoff.Jitter = aggConfig.RetryJitter

	poll := retry.DefaultPolicy()
	poll.BaseDelay = relayConfig.ConfirmationPollBase
	poll.MaxDelay = relayConfig.ConfirmationPollMax
	poll.Jitter = aggConfig.RetryJitter

	svc.init(Dependencies{
		Chain:    chain,
		Routes:   routes,
		FeePayer: rpcConfig.RelayKeypair.PrivateKey(),
		Fee: fee.Config{
			BuyBps:       feeConfig.BuyBps,
			SellBps:      feeConfig.SellBps,
			MinTradeSize: feeConfig.MinTradeSize,
			Recipient:    feeConfig.Recipient,
			QuoteMints:   feeConfig.QuoteMints,
		},
		QuoteCache: quotecache.Options{
			MaxEntries:      aggConfig.CacheMaxEntries,
			AmountSigDigits: aggConfig.AmountSigDigits,
		},
		Registry: registry.Options{
			TTL:           relayConfig.RegistryTTL,
			SweepInterval: relayConfig.RegistrySweepInterval,
			Retention:     relayConfig.RegistryRetention,
		},
		Priority: priority.Options{
			Urgency:  priority.ParseUrgency(relayConfig.PriorityUrgency),
			MaxPrice: relayConfig.MaxComputeUnitPrice,
		},
		Retry:               backoff,
		Poll:                poll,
		ConfirmationTimeout: relayConfig.ConfirmationTimeout,
		SimulateBeforeSend:  relayConfig.SimulateBeforeSend,
		BlockhashMaxAge:     rpcConfig.BlockhashMaxAge,
		LUTAddresses:        lutConfig.Addresses,
		LUTRefreshInterval:  lutConfig.RefreshInterval,
		UserSlippageBpsMax:  relayConfig.UserSlippageBpsMax,
	})

	svc.logger.Info().
		Object("fee_payer", rpcConfig.RelayKeypair).
		Str("aggregator", aggConfig.BaseURL).
		Msg("relay configured")
	return nil
}

func (svc *Service) init(deps Dependencies) {
	svc.logger = services.NewServiceLogger(svc)
	svc.routes = deps.Routes
	svc.feePayer = deps.FeePayer
	svc.retry = deps.Retry
	if svc.retry.MaxAttempts == 0 {
		svc.retry = retry.DefaultPolicy()
	}
	svc.slippageMax = deps.UserSlippageBpsMax
	if svc.slippageMax == 0 {
		svc.slippageMax = defaultUserSlippageBpsMax
	}

	svc.cache = quotecache.New(deps.QuoteCache)
	svc.feePolicy = fee.NewPolicy(deps.Fee)
	svc.registry = registry.New(deps.Registry)
	svc.blockhashCache = blockchain.NewBlockhashCache(deps.Chain, deps.BlockhashMaxAge)
	svc.luts = builder.NewLUTManager(deps.Chain, deps.LUTAddresses, deps.LUTRefreshInterval)
	svc.builder = builder.New(builder.Options{
		Chain:        deps.Chain,
		Instructions: deps.Routes,
		Blockhash:    svc.blockhashCache,
		LookupTables: svc.luts,
		Priority:     priority.NewService(deps.Chain, deps.Priority),
	})
	svc.submitter = broadcast.NewSubmitter(broadcast.Options{
		Chain:    deps.Chain,
		FeePayer: deps.FeePayer,
		Poll:     deps.Poll,
		Timeout:  deps.ConfirmationTimeout,
		Simulate: deps.SimulateBeforeSend,
	})
}

func (svc *Service) Start() error {
	ctx, cancel := context.WithCancel(context.Background())
	svc.cancel = cancel

	svc.blockhashCache.Start(ctx)
	svc.luts.Start(ctx)
	if err := svc.registry.Start(ctx); err != nil {
		return fmt.Errorf("start registry sweep: %w", err)
	}
	svc.logger.Info().Msg("relay started")
	return nil
}

func (svc *Service) Stop() error {
	svc.registry.Stop()
	svc.luts.Stop()
	svc.blockhashCache.Stop()
	if svc.cancel != nil {
		svc.cancel()
	}
	svc.logger.Info().Msg("relay stopped")
	return nil
}

func (svc *Service) FeePayer() solana.PublicKey {
	return svc.feePayer.PublicKey()
}

// PendingSwaps is the number of prepared swaps held by the registry.
func (svc *Service) PendingSwaps() int {
	return svc.registry.Len()
}

// GetSwapQuote returns a quote for intent, served from the cache while it is
// still valid.
func (svc *Service) GetSwapQuote(ctx context.Context, intent domain.SwapIntent) (*domain.Quote, error) {
	if err := aggregator.Validate(intent); err != nil {
		return nil, err
	}
	return svc.cache.GetOrFetch(ctx, intent, svc.fetchQuote)
}

func (svc *Service) fetchQuote(ctx context.Context, intent domain.SwapIntent) (*domain.Quote, error) {
	var quote *domain.Quote
	err := svc.retry.DoNotify(ctx, func(ctx context.Context) error {
		q, err := svc.routes.GetRoute(ctx, intent)
		if err != nil {
			if errors.Is(err, domain.ErrAggregatorUnavailable) {
				return err
			}
			return retry.Permanent(err)
		}
		quote = q
		return nil
	}, func(err error, next time.Duration) {
		metrics.AggregatorRetries.Inc()
		svc.logger.Warn().Err(err).Dur("next", next).Msg("aggregator unavailable, retrying")
	})
	if err != nil {
		return nil, err
	}
	return quote, nil
}

// PrepareSwap sizes the platform fee on the gross amount, quotes the amount
// left after the fee, builds the sponsored message and registers it for
// submission.
func (svc *Service) PrepareSwap(ctx context.Context, intent domain.SwapIntent, slippageBpsMax uint16) (*PreparedSwap, error) {
	intent.SlippageBpsMax = min(slippageBpsMax, svc.slippageMax)

	switch {
	case intent.Requester.IsZero():
		return nil, domain.NewRouteError(domain.CodeInvalidIntent, errors.New("requester is required"))
	case intent.Requester.Equals(svc.FeePayer()):
		return nil, domain.NewRouteError(domain.CodeInvalidIntent, errors.New("requester cannot be the relay"))
	}

	logger := svc.logger.With("requester", intent.Requester.String())

	// exact-in: the gross amount is known without a quote
	decision := svc.feePolicy.Decide(intent, nil)
	swapIntent := intent
	if decision.Applies {
		if decision.FeeAmount >= intent.Amount {
			return nil, domain.NewRouteError(domain.CodeInvalidIntent, errors.New("fee consumes the whole amount"))
		}
		swapIntent = intent.WithAmount(intent.Amount - decision.FeeAmount)
	}

	// a quote that lapses while the route is fetched is requoted once
	var (
		quote *domain.Quote
		rec   *domain.UnsignedTransactionRecord
		err   error
	)
	for attempt := 0; attempt < 2; attempt++ {
		quote, err = svc.GetSwapQuote(ctx, swapIntent)
		if err != nil {
			return nil, err
		}
		if attempt == 0 {
			svc.transition(logger, domain.StateQuoted)
		}

		rec, err = svc.builder.Build(ctx, intent, quote, decision, svc.FeePayer())
		if !errors.Is(err, domain.ErrQuoteExpired) {
			break
		}
		logger.Debug().Time("valid_until", quote.ValidUntil).Msg("quote expired before build, requoting")
	}
	if err != nil {
		svc.transition(logger, domain.StateFailed)
		return nil, err
	}
	svc.transition(logger, domain.StateBuilt)

	id := svc.registry.Register(rec)
	logger = logger.With("correlation_id", id)
	svc.transition(logger, domain.StateRegistered)
	svc.transition(logger, domain.StateAwaitingSignature)

	logger.Info().
		Uint64("amount", intent.Amount).
		Uint64("fee", decision.FeeAmount).
		Uint64("out_amount", quote.OutputAmount).
		Uint64("last_valid_block_height", rec.LastValidBlockHeight).
		Msg("swap prepared")

	return &PreparedSwap{
		CorrelationID:        id,
		Message:              rec.Message,
		Fee:                  decision,
		Quote:                quote,
		ExpiresAt:            rec.ExpiresAt,
		LastValidBlockHeight: rec.LastValidBlockHeight,
		FeePayer:             rec.FeePayer,
	}, nil
}

// SubmitSignedSwap consumes the prepared swap and broadcasts it with the
// requester's signature. signed is either the 64 byte signature or the full
// signed transaction. A correlation id is usable once, whatever the outcome.
func (svc *Service) SubmitSignedSwap(ctx context.Context, correlationID string, signed []byte) domain.SubmissionResult {
	logger := svc.logger.With("correlation_id", correlationID)

	var sig solana.Signature
	if len(signed) == common.SignatureSize {
		copy(sig[:], signed)
	}

	rec, err := svc.registry.Consume(correlationID, sig)
	if err != nil {
		if errors.Is(err, domain.ErrRecordExpired) {
			svc.transition(logger, domain.StateExpired)
		}
		return domain.SubmissionResult{CorrelationID: correlationID, Status: domain.StatusFailed, Err: err}
	}
	svc.transition(logger, domain.StateSubmitted)

	// the transaction may already be in flight when the caller goes away
	res := svc.submitter.Submit(context.WithoutCancel(ctx), rec, signed)
	if res.Status == domain.StatusConfirmed {
		svc.transition(logger, domain.StateConfirmed)
	} else {
		svc.transition(logger, domain.StateFailed)
	}
	return res
}

func (svc *Service) transition(logger *services.ServiceLogger, state domain.SwapState) {
	metrics.SwapTransitions.WithLabelValues(state.String()).Inc()
	logger.Debug().Str("state", state.String()).Msg("swap state changed")
}
