package aggregator

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"

	"github.com/hxuan190/sponsor-relay/internal/domain"
)

var (
	solMint  = solana.SolMint
	usdcMint = solana.MustPublicKeyFromBase58("EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v")
)

func quoteJSON(outAmount string) string {
	return fmt.Sprintf(`{
		"inputMint": "%s",
		"inAmount": "100000000",
		"outputMint": "%s",
		"outAmount": "%s",
		"otherAmountThreshold": "14925000",
		"swapMode": "ExactIn",
		"slippageBps": 50,
		"priceImpactPct": "0.0012",
		"contextSlot": 321,
		"routePlan": [{
			"swapInfo": {
				"ammKey": "58oQChx4yWmvKdwLLZzBi4ChoCc2fqCUWBkwMihLYQo2",
				"label": "Raydium",
				"inputMint": "%s",
				"outputMint": "%s",
				"inAmount": "100000000",
				"outAmount": "%s",
				"feeAmount": "25000",
				"feeMint": "%s"
			},
			"percent": 100
		}]
	}`, solMint, usdcMint, outAmount, solMint, usdcMint, outAmount, solMint)
}

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(Options{
		BaseURL:  srv.URL,
		Timeout:  200 * time.Millisecond,
		QuoteTTL: 5 * time.Second,
	})
}

func testIntent() domain.SwapIntent {
	return domain.SwapIntent{
		InputMint:      solMint,
		OutputMint:     usdcMint,
		Amount:         100_000_000,
		SlippageBpsMax: 50,
	}
}

func TestGetRouteReachable(t *testing.T) {
	var gotQuery string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		_, _ = io.WriteString(w, quoteJSON("15000000"))
	})

	before := time.Now()
	quote, err := c.GetRoute(context.Background(), testIntent())
	if err != nil {
		t.Fatalf("GetRoute: %v", err)
	}

	if quote.OutputAmount != 15_000_000 {
		t.Errorf("OutputAmount = %d", quote.OutputAmount)
	}
	if len(quote.RoutePlan) != 1 || quote.RoutePlan[0].Protocol != "Raydium" {
		t.Errorf("unexpected route plan %+v", quote.RoutePlan)
	}
	if quote.PriceImpactBps != 12 {
		t.Errorf("PriceImpactBps = %d, want 12", quote.PriceImpactBps)
	}
	if quote.MinOutputAmount != 14_925_000 {
		t.Errorf("MinOutputAmount = %d", quote.MinOutputAmount)
	}
	if quote.ValidUntil.Before(before.Add(5 * time.Second)) {
		t.Errorf("ValidUntil %v too early", quote.ValidUntil)
	}
	if len(quote.Raw) == 0 {
		t.Error("expected raw payload to be kept")
	}
	for _, want := range []string{"amount=100000000", "slippageBps=50", "inputMint=" + solMint.String()} {
		if !strings.Contains(gotQuery, want) {
			t.Errorf("query %q missing %q", gotQuery, want)
		}
	}
}

func TestGetRouteErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   error
	}{
		{"no route code", http.StatusBadRequest, `{"error":"no route","errorCode":"COULD_NOT_FIND_ANY_ROUTE"}`, domain.ErrNoRouteFound},
		{"not tradable", http.StatusBadRequest, `{"error":"x","errorCode":"TOKEN_NOT_TRADABLE"}`, domain.ErrNoRouteFound},
		{"bad request", http.StatusBadRequest, `{"error":"invalid amount"}`, domain.ErrInvalidIntent},
		{"rate limited", http.StatusTooManyRequests, ``, domain.ErrAggregatorUnavailable},
		{"server error", http.StatusBadGateway, `oops`, domain.ErrAggregatorUnavailable},
		{"garbage body", http.StatusOK, `{not json`, domain.ErrAggregatorUnavailable},
		{"zero output", http.StatusOK, quoteJSON("0"), domain.ErrNoRouteFound},
		{"empty plan", http.StatusOK, `{"inAmount":"1","outAmount":"1","routePlan":[]}`, domain.ErrNoRouteFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = io.WriteString(w, tt.body)
			})
			_, err := c.GetRoute(context.Background(), testIntent())
			if !errors.Is(err, tt.want) {
				t.Fatalf("got %v, want %v", err, tt.want)
			}
		})
	}
}

func TestGetRouteTimeout(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(time.Second):
		}
	})
	_, err := c.GetRoute(context.Background(), testIntent())
	if !errors.Is(err, domain.ErrAggregatorUnavailable) {
		t.Fatalf("expected AggregatorUnavailable, got %v", err)
	}
}

func TestValidateRejectsBadIntents(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	})

	bad := []domain.SwapIntent{
		{InputMint: solMint, OutputMint: solMint, Amount: 1},
		{InputMint: solMint, OutputMint: usdcMint, Amount: 0},
		{OutputMint: usdcMint, Amount: 1},
		{InputMint: solMint, OutputMint: usdcMint, Amount: 1, SlippageBpsMax: 10_001},
	}
	for i, intent := range bad {
		if _, err := c.GetRoute(context.Background(), intent); !errors.Is(err, domain.ErrInvalidIntent) {
			t.Errorf("case %d: expected InvalidIntent, got %v", i, err)
		}
	}
	if calls.Load() != 0 {
		t.Fatalf("invalid intents reached the aggregator %d times", calls.Load())
	}
}

func TestGetSwapInstructions(t *testing.T) {
	user := solana.NewWallet().PublicKey()
	lut := solana.NewWallet().PublicKey()
	swapProgram := solana.NewWallet().PublicKey()
	data := base64.StdEncoding.EncodeToString([]byte{1, 2, 3})

	var gotBody string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/quote":
			_, _ = io.WriteString(w, quoteJSON("15000000"))
		case "/swap-instructions":
			b, _ := io.ReadAll(r.Body)
			gotBody = string(b)
			fmt.Fprintf(w, `{
				"computeBudgetInstructions": [{"programId":"%s","accounts":[],"data":"AsBcFQA="}],
				"setupInstructions": [],
				"swapInstruction": {"programId":"%s","accounts":[{"pubkey":"%s","isSigner":true,"isWritable":true}],"data":"%s"},
				"cleanupInstruction": null,
				"addressLookupTableAddresses": ["%s"]
			}`, solana.ComputeBudget, swapProgram, user, data, lut)
		}
	})

	quote, err := c.GetRoute(context.Background(), testIntent())
	if err != nil {
		t.Fatalf("GetRoute: %v", err)
	}
	ixs, err := c.GetSwapInstructions(context.Background(), quote, user)
	if err != nil {
		t.Fatalf("GetSwapInstructions: %v", err)
	}

	if !strings.Contains(gotBody, `"userPublicKey":"`+user.String()+`"`) || !strings.Contains(gotBody, `"quoteResponse":{`) {
		t.Fatalf("unexpected request body %s", gotBody)
	}
	if len(ixs.ComputeBudget) != 1 || !ixs.ComputeBudget[0].ProgramID().Equals(solana.ComputeBudget) {
		t.Fatalf("unexpected compute budget instructions %+v", ixs.ComputeBudget)
	}
	if !ixs.Swap.ProgramID().Equals(swapProgram) {
		t.Fatalf("unexpected swap program %s", ixs.Swap.ProgramID())
	}
	accounts := ixs.Swap.Accounts()
	if len(accounts) != 1 || !accounts[0].IsSigner || !accounts[0].PublicKey.Equals(user) {
		t.Fatalf("unexpected swap accounts %+v", accounts)
	}
	if len(ixs.LookupTables) != 1 || !ixs.LookupTables[0].Equals(lut) {
		t.Fatalf("unexpected lookup tables %v", ixs.LookupTables)
	}
}

func TestGetSwapInstructionsMalformed(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/quote" {
			_, _ = io.WriteString(w, quoteJSON("15000000"))
			return
		}
		_, _ = io.WriteString(w, `{"swapInstruction":{"programId":"not-a-key","accounts":[],"data":""}}`)
	})

	quote, err := c.GetRoute(context.Background(), testIntent())
	if err != nil {
		t.Fatalf("GetRoute: %v", err)
	}
	_, err = c.GetSwapInstructions(context.Background(), quote, solana.NewWallet().PublicKey())
	if !errors.Is(err, domain.ErrMalformedRoute) {
		t.Fatalf("expected MalformedRoute, got %v", err)
	}
}

func TestPriceImpactBps(t *testing.T) {
	tests := map[string]uint32{
		"":        0,
		"0":       0,
		"0.0012":  12,
		"-0.0005": 5,
		"0.00004": 0,
		"0.00005": 1,
		"1":       10_000,
	}
	for in, want := range tests {
		got, err := priceImpactBps(in)
		if err != nil {
			t.Fatalf("%q: %v", in, err)
		}
		if got != want {
			t.Errorf("%q: got %d, want %d", in, got, want)
		}
	}
}
