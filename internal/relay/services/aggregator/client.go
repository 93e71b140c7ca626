package aggregator

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gagliardetto/solana-go"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/hxuan190/sponsor-relay/internal/domain"
	"github.com/hxuan190/sponsor-relay/internal/metrics"
)

const (
	defaultTimeout     = 2 * time.Second
	defaultQuoteTTL    = 10 * time.Second
	maxResponseBytes   = 4 << 20
	maxSlippageBps     = 10_000
	endpointQuote      = "quote"
	endpointSwapInstrs = "swap_instructions"
)

type Options struct {
	BaseURL     string
	Timeout     time.Duration
	QuoteTTL    time.Duration
	MaxAccounts int
	APIKey      string
	HTTPClient  *http.Client
}

// Client talks to an external route aggregator. It never retries; callers
// decide what is worth another attempt from the returned *domain.RouteError.
type Client struct {
	baseURL     string
	httpClient  *http.Client
	timeout     time.Duration
	quoteTTL    time.Duration
	maxAccounts int
	apiKey      string
	now         func() time.Time
}

func New(opts Options) *Client {
	c := &Client{
		baseURL:     strings.TrimRight(opts.BaseURL, "/"),
		httpClient:  opts.HTTPClient,
		timeout:     opts.Timeout,
		quoteTTL:    opts.QuoteTTL,
		maxAccounts: opts.MaxAccounts,
		apiKey:      opts.APIKey,
		now:         time.Now,
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{}
	}
	if c.timeout <= 0 {
		c.timeout = defaultTimeout
	}
	if c.quoteTTL <= 0 {
		c.quoteTTL = defaultQuoteTTL
	}
	return c
}

// Validate rejects intents the aggregator would refuse anyway.
func Validate(intent domain.SwapIntent) error {
	switch {
	case intent.InputMint.IsZero() || intent.OutputMint.IsZero():
		return domain.NewRouteError(domain.CodeInvalidIntent, errors.New("input and output mint are required"))
	case intent.InputMint.Equals(intent.OutputMint):
		return domain.NewRouteError(domain.CodeInvalidIntent, errors.New("input and output mint must differ"))
	case intent.Amount == 0:
		return domain.NewRouteError(domain.CodeInvalidIntent, errors.New("amount must be positive"))
	case intent.SlippageBpsMax > maxSlippageBps:
		return domain.NewRouteError(domain.CodeInvalidIntent, fmt.Errorf("slippage %d bps exceeds %d", intent.SlippageBpsMax, maxSlippageBps))
	}
	return nil
}

// GetRoute returns the best route the aggregator knows for intent.
func (c *Client) GetRoute(ctx context.Context, intent domain.SwapIntent) (*domain.Quote, error) {
	if err := Validate(intent); err != nil {
		return nil, err
	}

	params := url.Values{}
	params.Set("inputMint", intent.InputMint.String())
	params.Set("outputMint", intent.OutputMint.String())
	params.Set("amount", strconv.FormatUint(intent.Amount, 10))
	params.Set("slippageBps", strconv.FormatUint(uint64(intent.SlippageBpsMax), 10))
	params.Set("swapMode", "ExactIn")
	params.Set("restrictIntermediateTokens", "true")
	if c.maxAccounts > 0 {
		params.Set("maxAccounts", strconv.Itoa(c.maxAccounts))
	}

	body, err := c.do(ctx, http.MethodGet, "/quote?"+params.Encode(), nil, endpointQuote)
	if err != nil {
		return nil, err
	}

	var resp quoteResponse
	if err := sonic.Unmarshal(body, &resp); err != nil {
		return nil, domain.NewRouteError(domain.CodeAggregatorUnavailable, fmt.Errorf("decode quote: %w", err))
	}

	quote, err := c.toQuote(&resp, body)
	if err != nil {
		return nil, err
	}

	metrics.PriceImpact.Observe(float64(quote.PriceImpactBps))
	log.Debug().
		Str("input_mint", intent.InputMint.String()).
		Str("output_mint", intent.OutputMint.String()).
		Uint64("in_amount", quote.InputAmount).
		Uint64("out_amount", quote.OutputAmount).
		Strs("route", quote.Protocols()).
		Msg("[Aggregator] quote received")
	return quote, nil
}

// GetSwapInstructions asks the aggregator for the instructions that execute
// quote on behalf of user.
func (c *Client) GetSwapInstructions(ctx context.Context, quote *domain.Quote, user solana.PublicKey) (*domain.RouteInstructions, error) {
	if quote == nil || len(quote.Raw) == 0 {
		return nil, domain.NewRouteError(domain.CodeInvalidIntent, errors.New("quote payload is missing"))
	}

	payload, err := sonic.Marshal(swapInstructionsRequest{
		QuoteResponse:           rawJSON(quote.Raw),
		UserPublicKey:           user.String(),
		WrapAndUnwrapSol:        true,
		DynamicComputeUnitLimit: true,
	})
	if err != nil {
		return nil, fmt.Errorf("encode swap instructions request: %w", err)
	}

	body, err := c.do(ctx, http.MethodPost, "/swap-instructions", payload, endpointSwapInstrs)
	if err != nil {
		return nil, err
	}

	var resp swapInstructionsResponse
	if err := sonic.Unmarshal(body, &resp); err != nil {
		return nil, domain.NewRouteError(domain.CodeAggregatorUnavailable, fmt.Errorf("decode swap instructions: %w", err))
	}
	if resp.Error != "" {
		return nil, domain.NewRouteError(domain.CodeNoRouteFound, errors.New(resp.Error))
	}
	if resp.SwapInstruction == nil {
		return nil, domain.NewRouteError(domain.CodeNoRouteFound, errors.New("aggregator returned no swap instruction"))
	}

	return decodeRouteInstructions(&resp)
}

func (c *Client) do(ctx context.Context, method, path string, payload []byte, endpoint string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var reqBody io.Reader
	if payload != nil {
		reqBody = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return nil, domain.NewRouteError(domain.CodeAggregatorUnavailable, err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("x-api-key", c.apiKey)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	metrics.AggregatorDuration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.AggregatorRequests.WithLabelValues(endpoint, "transport_error").Inc()
		return nil, domain.NewRouteError(domain.CodeAggregatorUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		metrics.AggregatorRequests.WithLabelValues(endpoint, "transport_error").Inc()
		return nil, domain.NewRouteError(domain.CodeAggregatorUnavailable, fmt.Errorf("read body: %w", err))
	}

	if resp.StatusCode != http.StatusOK {
		routeErr := classifyStatus(resp.StatusCode, body)
		metrics.AggregatorRequests.WithLabelValues(endpoint, routeErr.Code.String()).Inc()
		log.Debug().
			Str("endpoint", endpoint).
			Int("status", resp.StatusCode).
			Err(routeErr).
			Msg("[Aggregator] request failed")
		return nil, routeErr
	}

	metrics.AggregatorRequests.WithLabelValues(endpoint, "ok").Inc()
	return body, nil
}

func classifyStatus(status int, body []byte) *domain.RouteError {
	if status == http.StatusTooManyRequests || status >= http.StatusInternalServerError {
		return domain.NewRouteError(domain.CodeAggregatorUnavailable, fmt.Errorf("aggregator status %d", status))
	}

	var apiErr errorResponse
	_ = sonic.Unmarshal(body, &apiErr)
	msg := apiErr.Error
	if msg == "" {
		msg = fmt.Sprintf("aggregator status %d", status)
	}

	if _, ok := noRouteCodes[apiErr.ErrorCode]; ok {
		return domain.NewRouteError(domain.CodeNoRouteFound, errors.New(msg))
	}
	if status >= http.StatusBadRequest && status < http.StatusInternalServerError {
		return domain.NewRouteError(domain.CodeInvalidIntent, errors.New(msg))
	}
	return domain.NewRouteError(domain.CodeAggregatorUnavailable, errors.New(msg))
}

func (c *Client) toQuote(resp *quoteResponse, raw []byte) (*domain.Quote, error) {
	if len(resp.RoutePlan) == 0 {
		return nil, domain.NewRouteError(domain.CodeNoRouteFound, errors.New("empty route plan"))
	}

	malformed := func(err error) error {
		return domain.NewRouteError(domain.CodeAggregatorUnavailable, fmt.Errorf("malformed quote: %w", err))
	}

	inputMint, err := solana.PublicKeyFromBase58(resp.InputMint)
	if err != nil {
		return nil, malformed(err)
	}
	outputMint, err := solana.PublicKeyFromBase58(resp.OutputMint)
	if err != nil {
		return nil, malformed(err)
	}
	inAmount, err := parseAmount(resp.InAmount)
	if err != nil {
		return nil, malformed(err)
	}
	outAmount, err := parseAmount(resp.OutAmount)
	if err != nil {
		return nil, malformed(err)
	}
	if outAmount == 0 {
		return nil, domain.NewRouteError(domain.CodeNoRouteFound, errors.New("route yields no output"))
	}
	minOut, err := parseAmount(resp.OtherAmountThreshold)
	if err != nil {
		return nil, malformed(err)
	}
	impactBps, err := priceImpactBps(resp.PriceImpactPct)
	if err != nil {
		return nil, malformed(err)
	}

	hops := make([]domain.RouteHop, 0, len(resp.RoutePlan))
	for _, step := range resp.RoutePlan {
		hop, err := toHop(step)
		if err != nil {
			return nil, malformed(err)
		}
		hops = append(hops, hop)
	}

	now := c.now()
	return &domain.Quote{
		InputMint:       inputMint,
		OutputMint:      outputMint,
		RoutePlan:       hops,
		InputAmount:     inAmount,
		OutputAmount:    outAmount,
		MinOutputAmount: minOut,
		SlippageBps:     uint16(min(max(resp.SlippageBps, 0), maxSlippageBps)),
		PriceImpactBps:  impactBps,
		ContextSlot:     resp.ContextSlot,
		FetchedAt:       now,
		ValidUntil:      now.Add(c.quoteTTL),
		Raw:             append([]byte(nil), raw...),
	}, nil
}

func toHop(step routePlan) (domain.RouteHop, error) {
	info := step.SwapInfo
	in, err := solana.PublicKeyFromBase58(info.InputMint)
	if err != nil {
		return domain.RouteHop{}, err
	}
	out, err := solana.PublicKeyFromBase58(info.OutputMint)
	if err != nil {
		return domain.RouteHop{}, err
	}
	inAmount, err := parseAmount(info.InAmount)
	if err != nil {
		return domain.RouteHop{}, err
	}
	outAmount, err := parseAmount(info.OutAmount)
	if err != nil {
		return domain.RouteHop{}, err
	}
	feeAmount, err := parseAmount(info.FeeAmount)
	if err != nil {
		return domain.RouteHop{}, err
	}

	hop := domain.RouteHop{
		Protocol:     info.Label,
		AmmKey:       info.AmmKey,
		InputMint:    in,
		OutputMint:   out,
		InputAmount:  inAmount,
		OutputAmount: outAmount,
		FeeAmount:    feeAmount,
		Percent:      uint8(min(max(step.Percent, 0), 100)),
	}
	if info.FeeMint != "" {
		if hop.FeeMint, err = solana.PublicKeyFromBase58(info.FeeMint); err != nil {
			return domain.RouteHop{}, err
		}
	}
	return hop, nil
}

func parseAmount(s string) (uint64, error) {
	if s == "" {
		return 0, nil
	}
	return strconv.ParseUint(s, 10, 64)
}

var bpsPerUnit = decimal.NewFromInt(10_000)

// priceImpactBps converts a fractional price impact ("0.0123" is 1.23%) to
// basis points, rounded half up.
func priceImpactBps(pct string) (uint32, error) {
	if pct == "" {
		return 0, nil
	}
	d, err := decimal.NewFromString(pct)
	if err != nil {
		return 0, err
	}
	bps := d.Abs().Mul(bpsPerUnit).Round(0).IntPart()
	if bps > math.MaxUint32 {
		return math.MaxUint32, nil
	}
	return uint32(bps), nil
}

func decodeRouteInstructions(resp *swapInstructionsResponse) (*domain.RouteInstructions, error) {
	malformed := func(err error) error {
		return domain.NewBuildError(domain.CodeMalformedRoute, err)
	}

	out := &domain.RouteInstructions{}
	for _, ix := range resp.ComputeBudgetInstructions {
		decoded, err := decodeInstruction(ix)
		if err != nil {
			return nil, malformed(err)
		}
		out.ComputeBudget = append(out.ComputeBudget, decoded)
	}
	for _, ix := range resp.SetupInstructions {
		decoded, err := decodeInstruction(ix)
		if err != nil {
			return nil, malformed(err)
		}
		out.Setup = append(out.Setup, decoded)
	}

	swapIx, err := decodeInstruction(*resp.SwapInstruction)
	if err != nil {
		return nil, malformed(err)
	}
	out.Swap = swapIx

	if resp.CleanupInstruction != nil {
		decoded, err := decodeInstruction(*resp.CleanupInstruction)
		if err != nil {
			return nil, malformed(err)
		}
		out.Cleanup = append(out.Cleanup, decoded)
	}

	for _, addr := range resp.AddressLookupTableAddresses {
		pk, err := solana.PublicKeyFromBase58(addr)
		if err != nil {
			return nil, malformed(fmt.Errorf("lookup table %q: %w", addr, err))
		}
		out.LookupTables = append(out.LookupTables, pk)
	}
	return out, nil
}

func decodeInstruction(ix instruction) (solana.Instruction, error) {
	programID, err := solana.PublicKeyFromBase58(ix.ProgramID)
	if err != nil {
		return nil, fmt.Errorf("program id %q: %w", ix.ProgramID, err)
	}

	accounts := make(solana.AccountMetaSlice, 0, len(ix.Accounts))
	for _, acc := range ix.Accounts {
		pk, err := solana.PublicKeyFromBase58(acc.Pubkey)
		if err != nil {
			return nil, fmt.Errorf("account %q: %w", acc.Pubkey, err)
		}
		accounts = append(accounts, solana.NewAccountMeta(pk, acc.IsWritable, acc.IsSigner))
	}

	data, err := base64.StdEncoding.DecodeString(ix.Data)
	if err != nil {
		return nil, fmt.Errorf("instruction data: %w", err)
	}
	return solana.NewInstruction(programID, accounts, data), nil
}
