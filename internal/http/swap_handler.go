package http

import (
	"encoding/base64"
	"strconv"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gin-gonic/gin"

	"github.com/hxuan190/sponsor-relay/internal/domain"
	"github.com/hxuan190/sponsor-relay/internal/http/httputil"
	"github.com/hxuan190/sponsor-relay/internal/relay"
)

type SwapHandler struct {
	relay RelayAPI
}

func NewSwapHandler(relay RelayAPI) *SwapHandler {
	return &SwapHandler{relay: relay}
}

func (h *SwapHandler) SetRoutes(pub *gin.RouterGroup, private *gin.RouterGroup, admin *gin.RouterGroup) {
	pub.POST("/prepare", h.prepareSwap)
	pub.POST("/submit", h.submitSwap)
}

func (h *SwapHandler) Root() string {
	return "/swap"
}

// PrepareSwapRequest represents a sponsored swap the user wants to sign
type PrepareSwapRequest struct {
	// Wallet that signs the swap and owns the input tokens. It pays no network fee.
	UserWallet string `json:"userWallet" binding:"required,pubkey" example:"9WzDXwBbmkg8ZTbNMqUxvQRAyrZzDsGYdLVL9zYtAWWM"`

	InputMint  string `json:"inputMint" binding:"required,pubkey" example:"So11111111111111111111111111111111111111112"`
	OutputMint string `json:"outputMint" binding:"required,pubkey,nefield=InputMint" example:"EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"`

	// Gross input amount in smallest token units; the platform fee is taken from it
	Amount string `json:"amount" binding:"required,numeric" example:"100000000"`

	// Maximum slippage the user accepts, capped by the relay. Default: 50
	SlippageBps uint16 `json:"slippageBps" binding:"lte=10000" example:"50"`
}

// FeeResponse describes the platform fee included in the transaction
type FeeResponse struct {
	Applies   bool   `json:"applies" example:"true"`
	Side      string `json:"side" enums:"buy,sell" example:"sell"`
	FeeBps    uint16 `json:"feeBps" example:"10"`
	FeeAmount string `json:"feeAmount" example:"100000"`
	Recipient string `json:"recipient,omitempty"`
}

// PrepareSwapResponse carries the message the user must sign
type PrepareSwapResponse struct {
	// Pass back to /swap/submit together with the signature
	CorrelationID string `json:"correlationId" example:"1b4e28ba-2fa1-11d2-883f-0016d3cca427"`

	// Base64 serialized transaction message. Sign these exact bytes.
	Transaction string `json:"transaction"`

	// Relay account paying network fees and rent
	FeePayer string `json:"feePayer" example:"Re1ay11111111111111111111111111111111111111"`

	// Submit before this instant or prepare again
	ExpiresAt            time.Time `json:"expiresAt"`
	LastValidBlockHeight uint64    `json:"lastValidBlockHeight" example:"245832190"`

	Fee   FeeResponse   `json:"feeDecision"`
	Quote QuoteResponse `json:"quote"`
}

func newPrepareSwapResponse(p *relay.PreparedSwap) PrepareSwapResponse {
	fee := FeeResponse{
		Applies:   p.Fee.Applies,
		Side:      p.Fee.Side.String(),
		FeeBps:    p.Fee.FeeBps,
		FeeAmount: strconv.FormatUint(p.Fee.FeeAmount, 10),
	}
	if p.Fee.Applies {
		fee.Recipient = p.Fee.FeeRecipient.String()
	}

	return PrepareSwapResponse{
		CorrelationID:        p.CorrelationID,
		Transaction:          base64.StdEncoding.EncodeToString(p.Message),
		FeePayer:             p.FeePayer.String(),
		ExpiresAt:            p.ExpiresAt,
		LastValidBlockHeight: p.LastValidBlockHeight,
		Fee:                  fee,
		Quote:                newQuoteResponse(p.Quote),
	}
}

// @Summary Prepare sponsored swap
// @Description Build a swap transaction whose network fee and rent are paid by the relay.
// @Description
// @Description **Transaction Flow:**
// @Description 1. Relay quotes the swap, applies the platform fee and builds the message
// @Description 2. Client signs the base64 message bytes with the user's wallet
// @Description 3. Client posts the signature to /api/v1/swap/submit before expiresAt
// @Description 4. Relay co-signs, broadcasts once and waits for confirmation
// @Tags swap
// @Accept json
// @Produce json
// @Param request body PrepareSwapRequest true "Swap to prepare"
// @Success 200 {object} httputil.Response{data=PrepareSwapResponse}
// @Failure 400 {object} httputil.Response "Invalid request parameters"
// @Failure 404 {object} httputil.Response "No route found"
// @Failure 422 {object} httputil.Response "Route cannot be sponsored"
// @Failure 503 {object} httputil.Response "Aggregator or chain unavailable"
// @Router /api/v1/swap/prepare [post]
func (h *SwapHandler) prepareSwap(c *gin.Context) {
	var req PrepareSwapRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.BadRequest(c, "invalid request body: "+err.Error())
		return
	}

	amount, err := strconv.ParseUint(req.Amount, 10, 64)
	if err != nil || amount == 0 {
		httputil.BadRequest(c, "invalid amount: must be a positive integer")
		return
	}

	slippage := req.SlippageBps
	if slippage == 0 {
		slippage = defaultSlippageBps
	}

	prepared, err := h.relay.PrepareSwap(c.Request.Context(), domain.SwapIntent{
		InputMint:  solana.MustPublicKeyFromBase58(req.InputMint),
		OutputMint: solana.MustPublicKeyFromBase58(req.OutputMint),
		Amount:     amount,
		Requester:  solana.MustPublicKeyFromBase58(req.UserWallet),
	}, slippage)
	if err != nil {
		writeError(c, err, nil)
		return
	}

	httputil.Success(c, newPrepareSwapResponse(prepared))
}

// SubmitSwapRequest carries the user's signature for a prepared swap
type SubmitSwapRequest struct {
	CorrelationID string `json:"correlationId" binding:"required" example:"1b4e28ba-2fa1-11d2-883f-0016d3cca427"`

	// Base64 of either the 64 byte ed25519 signature over the prepared message
	// or the full transaction signed by the wallet
	Signature string `json:"signature" binding:"required,base64"`
}

// SubmitSwapResponse is the terminal outcome of a submission
type SubmitSwapResponse struct {
	CorrelationID  string `json:"correlationId"`
	TransactionID  string `json:"transactionId,omitempty"`
	Status         string `json:"status" enums:"pending,confirmed,failed" example:"confirmed"`
	Slot           uint64 `json:"slot,omitempty" example:"289000123"`
	Error          string `json:"error,omitempty"`
	Recommendation string `json:"recommendation" enums:"none,retry_quote,retry_prepare,restart_from_quote,do_not_retry" example:"none"`
}

func newSubmitSwapResponse(res domain.SubmissionResult) SubmitSwapResponse {
	out := SubmitSwapResponse{
		CorrelationID:  res.CorrelationID,
		Status:         res.Status.String(),
		Slot:           res.Slot,
		Recommendation: string(domain.Recommend(res.Err)),
	}
	if res.Broadcast() {
		out.TransactionID = res.TransactionID.String()
	}
	if res.Err != nil {
		out.Error = toHTTPError(res.Err).Message
	}
	return out
}

// @Summary Submit signed swap
// @Description Co-sign and broadcast a prepared swap. Each correlation id can be submitted
// @Description once; the response is terminal (confirmed or failed) and carries the step
// @Description to restart from on failure.
// @Tags swap
// @Accept json
// @Produce json
// @Param request body SubmitSwapRequest true "Signature for a prepared swap"
// @Success 200 {object} httputil.Response{data=SubmitSwapResponse}
// @Failure 400 {object} httputil.Response{data=SubmitSwapResponse} "Malformed or mismatched signature"
// @Failure 404 {object} httputil.Response{data=SubmitSwapResponse} "Unknown correlation id"
// @Failure 409 {object} httputil.Response{data=SubmitSwapResponse} "Already submitted"
// @Failure 410 {object} httputil.Response{data=SubmitSwapResponse} "Prepared swap or transaction expired"
// @Failure 504 {object} httputil.Response{data=SubmitSwapResponse} "Not confirmed in time"
// @Router /api/v1/swap/submit [post]
func (h *SwapHandler) submitSwap(c *gin.Context) {
	var req SubmitSwapRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.BadRequest(c, "invalid request body: "+err.Error())
		return
	}

	signed, err := base64.StdEncoding.DecodeString(req.Signature)
	if err != nil {
		httputil.BadRequest(c, "signature must be base64")
		return
	}

	res := h.relay.SubmitSignedSwap(c.Request.Context(), req.CorrelationID, signed)
	if res.CorrelationID == "" {
		res.CorrelationID = req.CorrelationID
	}
	if res.Err != nil {
		writeError(c, res.Err, newSubmitSwapResponse(res))
		return
	}

	httputil.Success(c, newSubmitSwapResponse(res))
}
