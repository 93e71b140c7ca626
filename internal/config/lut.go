package config

import (
	"fmt"
	"os"
	"time"

	"github.com/gagliardetto/solana-go"
)

const LUT_CONFIG_KEY = "lut-config"

type LUTConfig struct {
	// Addresses are lookup tables loaded at start and attached to every
	// transaction in addition to the ones a route names.
	Addresses []solana.PublicKey

	// RefreshInterval controls how often LUT states are re-fetched from RPC.
	RefreshInterval time.Duration
}

func (c *LUTConfig) Key() string {
	return LUT_CONFIG_KEY
}

func (c *LUTConfig) Load() error {
	c.Addresses = c.Addresses[:0]
	for _, raw := range splitList(os.Getenv("LUT_ADDRESSES")) {
		pk, err := solana.PublicKeyFromBase58(raw)
		if err != nil {
			return fmt.Errorf("invalid LUT address %q: %w", raw, err)
		}
		c.Addresses = append(c.Addresses, pk)
	}
	c.RefreshInterval = getEnvMillis("LUT_REFRESH_INTERVAL_MS", 60000)
	return c.Validate()
}

func (c *LUTConfig) Validate() error {
	if c.RefreshInterval <= 0 {
		return fmt.Errorf("invalid lut config: refresh interval %s", c.RefreshInterval)
	}
	return nil
}
