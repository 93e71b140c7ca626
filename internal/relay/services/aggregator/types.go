package aggregator

// Wire types of the aggregator's quote and swap-instructions endpoints.
// Amounts are decimal strings.

type quoteResponse struct {
	InputMint            string      `json:"inputMint"`
	InAmount             string      `json:"inAmount"`
	OutputMint           string      `json:"outputMint"`
	OutAmount            string      `json:"outAmount"`
	OtherAmountThreshold string      `json:"otherAmountThreshold"`
	SwapMode             string      `json:"swapMode"`
	SlippageBps          int         `json:"slippageBps"`
	PriceImpactPct       string      `json:"priceImpactPct"`
	RoutePlan            []routePlan `json:"routePlan"`
	ContextSlot          uint64      `json:"contextSlot,omitempty"`
	TimeTaken            float64     `json:"timeTaken,omitempty"`
}

type routePlan struct {
	SwapInfo swapInfo `json:"swapInfo"`
	Percent  int      `json:"percent"`
}

type swapInfo struct {
	AmmKey     string `json:"ammKey"`
	Label      string `json:"label"`
	InputMint  string `json:"inputMint"`
	OutputMint string `json:"outputMint"`
	InAmount   string `json:"inAmount"`
	OutAmount  string `json:"outAmount"`
	FeeAmount  string `json:"feeAmount"`
	FeeMint    string `json:"feeMint"`
}

type errorResponse struct {
	Error     string `json:"error"`
	ErrorCode string `json:"errorCode"`
}

type swapInstructionsRequest struct {
	QuoteResponse           rawJSON `json:"quoteResponse"`
	UserPublicKey           string  `json:"userPublicKey"`
	WrapAndUnwrapSol        bool    `json:"wrapAndUnwrapSol"`
	DynamicComputeUnitLimit bool    `json:"dynamicComputeUnitLimit"`
}

type swapInstructionsResponse struct {
	ComputeBudgetInstructions   []instruction `json:"computeBudgetInstructions"`
	SetupInstructions           []instruction `json:"setupInstructions"`
	SwapInstruction             *instruction  `json:"swapInstruction"`
	CleanupInstruction          *instruction  `json:"cleanupInstruction"`
	AddressLookupTableAddresses []string      `json:"addressLookupTableAddresses"`
	Error                       string        `json:"error,omitempty"`
}

type instruction struct {
	ProgramID string        `json:"programId"`
	Accounts  []accountMeta `json:"accounts"`
	Data      string        `json:"data"`
}

type accountMeta struct {
	Pubkey     string `json:"pubkey"`
	IsSigner   bool   `json:"isSigner"`
	IsWritable bool   `json:"isWritable"`
}

// rawJSON embeds an already encoded payload verbatim.
type rawJSON []byte

func (r rawJSON) MarshalJSON() ([]byte, error) {
	if len(r) == 0 {
		return []byte("null"), nil
	}
	return r, nil
}

// no-route codes returned with a 400
var noRouteCodes = map[string]struct{}{
	"COULD_NOT_FIND_ANY_ROUTE":                   {},
	"NO_ROUTES_FOUND":                            {},
	"TOKEN_NOT_TRADABLE":                         {},
	"ROUTE_PLAN_DOES_NOT_CONSUME_ALL_THE_AMOUNT": {},
}
