package config

import (
	"errors"
	"time"

	"github.com/andrew-solarstorm/go-packages/common"
)

type RelayConfig struct {
	// UserSlippageBpsMax caps the slippage a caller may ask for.
	UserSlippageBpsMax uint16

	RegistryTTL           time.Duration
	RegistrySweepInterval time.Duration
	RegistryRetention     time.Duration

	ConfirmationTimeout  time.Duration
	ConfirmationPollBase time.Duration
	ConfirmationPollMax  time.Duration
	SimulateBeforeSend   bool

	// MaxComputeUnitPrice caps the priority fee (micro-lamports per CU) the
	// relay pays.
	MaxComputeUnitPrice uint64
	PriorityUrgency     string
}

func (c *RelayConfig) Key() string {
	return RELAY_CONFIG_KEY
}

func (c *RelayConfig) Load() error {
	var err error
	if c.UserSlippageBpsMax, err = getEnvBps("USER_SLIPPAGE_BPS_MAX", 300); err != nil {
		return err
	}
	if c.MaxComputeUnitPrice, err = getEnvUint64("MAX_COMPUTE_UNIT_PRICE", 1000000); err != nil {
		return err
	}
	c.RegistryTTL = getEnvMillis("REGISTRY_TTL_MS", 60000)
	c.RegistrySweepInterval = getEnvMillis("REGISTRY_SWEEP_INTERVAL_MS", 5000)
	c.RegistryRetention = getEnvMillis("REGISTRY_RETENTION_MS", 60000)
	c.ConfirmationTimeout = getEnvMillis("CONFIRMATION_TIMEOUT_MS", 60000)
	c.ConfirmationPollBase = getEnvMillis("CONFIRMATION_POLL_BASE_MS", 400)
	c.ConfirmationPollMax = getEnvMillis("CONFIRMATION_POLL_MAX_MS", 2000)
	c.SimulateBeforeSend = getEnvBool("SIMULATE_BEFORE_SEND", true)
	c.PriorityUrgency = common.GetEnvOrDefault("PRIORITY_URGENCY", "medium")
	return c.Validate()
}

func (c *RelayConfig) Validate() error {
	if c.RegistryTTL <= 0 || c.RegistrySweepInterval <= 0 || c.RegistryRetention <= 0 {
		return errors.New("invalid relay config: registry intervals must be positive")
	}
	if c.ConfirmationTimeout <= 0 || c.ConfirmationPollBase <= 0 {
		return errors.New("invalid relay config: confirmation timings must be positive")
	}
	if c.ConfirmationPollMax < c.ConfirmationPollBase {
		return errors.New("invalid relay config: CONFIRMATION_POLL_MAX_MS is below CONFIRMATION_POLL_BASE_MS")
	}
	return nil
}
