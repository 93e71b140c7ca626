package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gagliardetto/solana-go"
)

func keygenJSON(t *testing.T, key solana.PrivateKey) string {
	t.Helper()
	ints := make([]int, len(key))
	for i, b := range key {
		ints[i] = int(b)
	}
	raw, err := sonic.Marshal(ints)
	if err != nil {
		t.Fatal(err)
	}
	return string(raw)
}

func TestParseKeypair(t *testing.T) {
	wallet := solana.NewWallet()
	path := filepath.Join(t.TempDir(), "relay.json")
	if err := os.WriteFile(path, []byte(keygenJSON(t, wallet.PrivateKey)+"\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	tests := map[string]string{
		"base58":     wallet.PrivateKey.String(),
		"json array": keygenJSON(t, wallet.PrivateKey),
		"file":       path,
	}
	for name, raw := range tests {
		t.Run(name, func(t *testing.T) {
			kp, err := ParseKeypair(raw)
			if err != nil {
				t.Fatalf("ParseKeypair: %v", err)
			}
			if !kp.PublicKey().Equals(wallet.PublicKey()) {
				t.Fatalf("pubkey = %s, want %s", kp.PublicKey(), wallet.PublicKey())
			}
		})
	}
}

func TestParseKeypairRejects(t *testing.T) {
	corrupted := append(solana.PrivateKey(nil), solana.NewWallet().PrivateKey...)
	corrupted[63] ^= 0x01

	tests := map[string]string{
		"empty":           "",
		"short array":     "[1,2,3]",
		"out of range":    "[" + strings.Repeat("256,", 63) + "256]",
		"not base58":      "0OIl",
		"mismatched half": keygenJSON(t, corrupted),
	}
	for name, raw := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := ParseKeypair(raw); !errors.Is(err, ErrInvalidKeypair) {
				t.Fatalf("err = %v, want ErrInvalidKeypair", err)
			}
		})
	}
}

func TestKeypairNeverPrintsSecret(t *testing.T) {
	wallet := solana.NewWallet()
	kp, err := ParseKeypair(wallet.PrivateKey.String())
	if err != nil {
		t.Fatal(err)
	}
	if kp.String() != wallet.PublicKey().String() {
		t.Fatalf("String() = %s", kp.String())
	}
}

func TestRPCConfigLoad(t *testing.T) {
	wallet := solana.NewWallet()
	t.Setenv("CHAIN_RPC_URL", "http://127.0.0.1:8899")
	t.Setenv("RELAY_KEYPAIR", wallet.PrivateKey.String())
	t.Setenv("BLOCKHASH_MAX_AGE_MS", "1500")

	var cfg RPCConfig
	if err := cfg.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.BlockhashMaxAge != 1500*time.Millisecond {
		t.Errorf("max age = %s", cfg.BlockhashMaxAge)
	}
	if !cfg.RelayKeypair.PublicKey().Equals(wallet.PublicKey()) {
		t.Error("keypair not loaded")
	}

	t.Setenv("CHAIN_COMMITMENT", "eventually")
	if err := cfg.Load(); err == nil {
		t.Fatal("unknown commitment must be rejected")
	}
}

func TestRPCConfigRequiresKeypair(t *testing.T) {
	t.Setenv("CHAIN_RPC_URL", "http://127.0.0.1:8899")
	t.Setenv("RELAY_KEYPAIR", "")

	var cfg RPCConfig
	if err := cfg.Load(); err == nil {
		t.Fatal("expected an error without RELAY_KEYPAIR")
	}
}

func TestFeeConfigLoad(t *testing.T) {
	recipient := solana.NewWallet().PublicKey()
	t.Setenv("FEE_BPS_BUY", "30")
	t.Setenv("FEE_BPS_SELL", "50")
	t.Setenv("MIN_TRADE_SIZE", "1000000")
	t.Setenv("FEE_RECIPIENT", recipient.String())

	var cfg FeeConfig
	if err := cfg.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.BuyBps != 30 || cfg.SellBps != 50 || cfg.MinTradeSize != 1_000_000 {
		t.Fatalf("unexpected config %+v", cfg)
	}
	if !cfg.Recipient.Equals(recipient) || len(cfg.QuoteMints) != 2 {
		t.Fatalf("unexpected recipient or quote mints %+v", cfg)
	}
}

func TestFeeConfigRejects(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{name: "bps above 10000", env: map[string]string{"FEE_BPS_BUY": "10001"}},
		{name: "negative min size", env: map[string]string{"MIN_TRADE_SIZE": "-1"}},
		{name: "fee without recipient", env: map[string]string{"FEE_BPS_SELL": "10", "FEE_RECIPIENT": ""}},
		{name: "bad quote mint", env: map[string]string{"QUOTE_ASSET_MINTS": "usdc"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			var cfg FeeConfig
			if err := cfg.Load(); err == nil {
				t.Fatal("expected an error")
			}
		})
	}
}

func TestAggregatorConfigDefaults(t *testing.T) {
	var cfg AggregatorConfig
	if err := cfg.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.QuoteTTL != 10*time.Second || cfg.Timeout != 2*time.Second || cfg.RetryMaxAttempts != 3 {
		t.Fatalf("unexpected defaults %+v", cfg)
	}

	t.Setenv("AGGREGATOR_BASE_URL", "not a url")
	if err := cfg.Load(); err == nil {
		t.Fatal("relative base url must be rejected")
	}
}

func TestRelayConfigValidate(t *testing.T) {
	var cfg RelayConfig
	if err := cfg.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !cfg.SimulateBeforeSend || cfg.RegistryTTL != time.Minute {
		t.Fatalf("unexpected defaults %+v", cfg)
	}

	t.Setenv("CONFIRMATION_POLL_MAX_MS", "10")
	if err := cfg.Load(); err == nil {
		t.Fatal("poll max below poll base must be rejected")
	}
}

func TestLUTConfigLoad(t *testing.T) {
	lut := solana.NewWallet().PublicKey()
	t.Setenv("LUT_ADDRESSES", " "+lut.String()+" ,")

	var cfg LUTConfig
	if err := cfg.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(cfg.Addresses) != 1 || !cfg.Addresses[0].Equals(lut) {
		t.Fatalf("addresses = %v", cfg.Addresses)
	}

	t.Setenv("LUT_ADDRESSES", "nope")
	if err := cfg.Load(); err == nil {
		t.Fatal("invalid address must be rejected")
	}
}
