package config

import (
	"errors"
	"fmt"

	"github.com/andrew-solarstorm/go-packages/common"
	"github.com/gagliardetto/solana-go"
)

// USDC and USDT on mainnet. A swap spending one of these buys the other side.
const defaultQuoteMints = "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v,Es9vMFrzaCERmJfrF4H2FYD4KCoNkY11McCe8BenwNYB"

type FeeConfig struct {
	BuyBps       uint16
	SellBps      uint16
	MinTradeSize uint64
	Recipient    solana.PublicKey
	QuoteMints   []solana.PublicKey
}

func (c *FeeConfig) Key() string {
	return FEE_CONFIG_KEY
}

func (c *FeeConfig) Load() error {
	var err error
	if c.BuyBps, err = getEnvBps("FEE_BPS_BUY", 0); err != nil {
		return err
	}
	if c.SellBps, err = getEnvBps("FEE_BPS_SELL", 0); err != nil {
		return err
	}
	if c.MinTradeSize, err = getEnvUint64("MIN_TRADE_SIZE", 0); err != nil {
		return err
	}

	if raw := common.GetEnvOrDefault("FEE_RECIPIENT", ""); raw != "" {
		if c.Recipient, err = solana.PublicKeyFromBase58(raw); err != nil {
			return fmt.Errorf("FEE_RECIPIENT: %w", err)
		}
	}

	c.QuoteMints = c.QuoteMints[:0]
	for _, raw := range splitList(common.GetEnvOrDefault("QUOTE_ASSET_MINTS", defaultQuoteMints)) {
		mint, err := solana.PublicKeyFromBase58(raw)
		if err != nil {
			return fmt.Errorf("QUOTE_ASSET_MINTS: %q: %w", raw, err)
		}
		c.QuoteMints = append(c.QuoteMints, mint)
	}
	return c.Validate()
}

func (c *FeeConfig) Validate() error {
	if (c.BuyBps > 0 || c.SellBps > 0) && c.Recipient.IsZero() {
		return errors.New("invalid fee config: FEE_RECIPIENT is required when fees are enabled")
	}
	return nil
}
