package http

import (
	"strconv"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/hxuan190/sponsor-relay/internal/domain"
	"github.com/hxuan190/sponsor-relay/internal/http/httputil"
)

const defaultSlippageBps = 50

type QuoteHandler struct {
	relay RelayAPI
}

func NewQuoteHandler(relay RelayAPI) *QuoteHandler {
	return &QuoteHandler{relay: relay}
}

func (h *QuoteHandler) SetRoutes(pub *gin.RouterGroup, private *gin.RouterGroup, admin *gin.RouterGroup) {
	pub.GET("", h.getQuote)
}

func (h *QuoteHandler) Root() string {
	return "/quote"
}

// QuoteRequest represents the parameters for requesting a swap quote
type QuoteRequest struct {
	// Input token mint address (Solana base58 public key)
	InputMint string `form:"inputMint" binding:"required,pubkey" example:"So11111111111111111111111111111111111111112"`

	// Output token mint address (Solana base58 public key)
	OutputMint string `form:"outputMint" binding:"required,pubkey,nefield=InputMint" example:"EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"`

	// Exact input amount in smallest token units (lamports for SOL)
	Amount uint64 `form:"amount" binding:"required,gt=0" example:"100000000"`

	// Slippage tolerance in basis points (1 bps = 0.01%). Default: 50
	SlippageBps uint16 `form:"slippageBps" binding:"lte=10000" example:"50"`
}

// RouteHop describes one leg of the aggregator route
type RouteHop struct {
	Protocol   string `json:"protocol" example:"Whirlpool"`
	AmmKey     string `json:"ammKey" example:"HJPjoWUrhoZzkNfRpHuieeFk9WcZWjwy6PBjZ81ngndJ"`
	InputMint  string `json:"inputMint" example:"So11111111111111111111111111111111111111112"`
	OutputMint string `json:"outputMint" example:"EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"`
	AmountIn   string `json:"amountIn" example:"100000000"`
	AmountOut  string `json:"amountOut" example:"15000000"`
	Percent    uint8  `json:"percent" example:"100"`
}

// QuoteResponse summarizes a priced route
type QuoteResponse struct {
	InputMint  string `json:"inputMint" example:"So11111111111111111111111111111111111111112"`
	OutputMint string `json:"outputMint" example:"EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"`

	// Input amount in smallest token units
	AmountIn string `json:"amountIn" example:"100000000"`

	// Estimated output amount in smallest token units
	AmountOut string `json:"amountOut" example:"15000000"`

	// Minimum output after slippage; the swap fails below it
	MinAmountOut string `json:"minAmountOut" example:"14925000"`

	SlippageBps        uint16 `json:"slippageBps" example:"50"`
	PriceImpactBps     uint32 `json:"priceImpactBps" example:"3"`
	PriceImpactPercent string `json:"priceImpactPercent" example:"0.03%"`

	Routes   []RouteHop `json:"routes"`
	HopCount int        `json:"hopCount" example:"1"`

	// The quote must not be used after this instant
	ValidUntil  time.Time `json:"validUntil"`
	ContextSlot uint64    `json:"contextSlot,omitempty" example:"289000000"`
}

func newQuoteResponse(q *domain.Quote) QuoteResponse {
	routes := make([]RouteHop, 0, len(q.RoutePlan))
	for _, hop := range q.RoutePlan {
		routes = append(routes, RouteHop{
			Protocol:   hop.Protocol,
			AmmKey:     hop.AmmKey,
			InputMint:  hop.InputMint.String(),
			OutputMint: hop.OutputMint.String(),
			AmountIn:   strconv.FormatUint(hop.InputAmount, 10),
			AmountOut:  strconv.FormatUint(hop.OutputAmount, 10),
			Percent:    hop.Percent,
		})
	}

	impact := decimal.New(int64(q.PriceImpactBps), -2)
	return QuoteResponse{
		InputMint:          q.InputMint.String(),
		OutputMint:         q.OutputMint.String(),
		AmountIn:           strconv.FormatUint(q.InputAmount, 10),
		AmountOut:          strconv.FormatUint(q.OutputAmount, 10),
		MinAmountOut:       strconv.FormatUint(q.MinOutputAmount, 10),
		SlippageBps:        q.SlippageBps,
		PriceImpactBps:     q.PriceImpactBps,
		PriceImpactPercent: impact.StringFixed(2) + "%",
		Routes:             routes,
		HopCount:           len(routes),
		ValidUntil:         q.ValidUntil,
		ContextSlot:        q.ContextSlot,
	}
}

// @Summary Get swap quote
// @Description Price an exact-in swap through the route aggregator. Identical requests
// @Description within the quote TTL are served from cache.
// @Description
// @Description **Amount Format:**
// @Description - Use smallest token units (lamports for SOL, base units for SPL tokens)
// @Description - SOL (9 decimals): 1 SOL = 1000000000
// @Tags quote
// @Produce json
// @Param inputMint query string true "Input token mint address" example("So11111111111111111111111111111111111111112")
// @Param outputMint query string true "Output token mint address" example("EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v")
// @Param amount query int true "Amount in smallest token units" example(100000000)
// @Param slippageBps query int false "Slippage tolerance in basis points. Default: 50" default(50)
// @Success 200 {object} httputil.Response{data=QuoteResponse}
// @Failure 400 {object} httputil.Response "Invalid request parameters"
// @Failure 404 {object} httputil.Response "No route found"
// @Failure 503 {object} httputil.Response "Aggregator unavailable"
// @Router /api/v1/quote [get]
func (h *QuoteHandler) getQuote(c *gin.Context) {
	var req QuoteRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		httputil.BadRequest(c, "invalid query parameters: "+err.Error())
		return
	}

	slippage := req.SlippageBps
	if slippage == 0 {
		slippage = defaultSlippageBps
	}

	quote, err := h.relay.GetSwapQuote(c.Request.Context(), domain.SwapIntent{
		InputMint:      solana.MustPublicKeyFromBase58(req.InputMint),
		OutputMint:     solana.MustPublicKeyFromBase58(req.OutputMint),
		Amount:         req.Amount,
		SlippageBpsMax: slippage,
	})
	if err != nil {
		writeError(c, err, nil)
		return
	}

	httputil.Success(c, newQuoteResponse(quote))
}
