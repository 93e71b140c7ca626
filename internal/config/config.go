package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/andrew-solarstorm/go-packages/common"
)

type ServerEnv = string

var (
	DevEnv     ServerEnv = "dev"
	StagingEnv ServerEnv = "staging"
	ProdEnv    ServerEnv = "prod"
)

const (
	GENERAL_CONFIG_KEY    = "general-config"
	RPC_CONFIG_KEY        = "rpc-config"
	AGGREGATOR_CONFIG_KEY = "aggregator-config"
	FEE_CONFIG_KEY        = "fee-config"
	RELAY_CONFIG_KEY      = "relay-config"
)

type GeneralConfig struct {
	HTTPPort string
	HTTPHost string
	Env      string
	LogLevel string

	RateLimitRPS   float64
	RateLimitBurst int
	MemLimitMB     int
}

func (gc *GeneralConfig) Key() string {
	return GENERAL_CONFIG_KEY
}

func (gc *GeneralConfig) Load() error {
	gc.HTTPPort = common.GetEnvOrDefault("HTTP_PORT", "8080")
	gc.HTTPHost = common.GetEnvOrDefault("HTTP_HOST", "localhost")
	gc.Env = common.GetEnvOrDefault("ENV", "dev")
	gc.LogLevel = common.GetEnvOrDefault("LOG_LEVEL", "INFO")
	gc.RateLimitBurst = common.GetEnvOrDefaultInt("RATE_LIMIT_BURST", 20)
	gc.MemLimitMB = common.GetEnvOrDefaultInt("GOMEMLIMIT_MB", 0)

	rps, err := strconv.ParseFloat(common.GetEnvOrDefault("RATE_LIMIT_RPS", "10"), 64)
	if err != nil {
		return fmt.Errorf("RATE_LIMIT_RPS: %w", err)
	}
	gc.RateLimitRPS = rps
	return gc.Validate()
}

func (gc *GeneralConfig) Validate() error {
	if gc.HTTPPort == "" || gc.HTTPHost == "" || gc.Env == "" {
		return errors.New("invalid server config")
	}
	if gc.RateLimitRPS <= 0 || gc.RateLimitBurst <= 0 {
		return errors.New("rate limit must be positive")
	}
	return nil
}

func getEnvUint64(key string, def uint64) (uint64, error) {
	raw := common.GetEnvOrDefault(key, strconv.FormatUint(def, 10))
	v, err := strconv.ParseUint(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return v, nil
}

func getEnvBps(key string, def int) (uint16, error) {
	v := common.GetEnvOrDefaultInt(key, def)
	if v < 0 || v > 10000 {
		return 0, fmt.Errorf("%s: %d is not a basis point value", key, v)
	}
	return uint16(v), nil
}

func getEnvFloat(key string, def float64) (float64, error) {
	raw := common.GetEnvOrDefault(key, strconv.FormatFloat(def, 'f', -1, 64))
	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return v, nil
}

func getEnvBool(key string, def bool) bool {
	v, err := strconv.ParseBool(common.GetEnvOrDefault(key, strconv.FormatBool(def)))
	if err != nil {
		return def
	}
	return v
}

func splitList(raw string) []string {
	var out []string
	for _, p := range strings.Split(raw, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func getEnvMillis(key string, def int) time.Duration {
	return time.Duration(common.GetEnvOrDefaultInt(key, def)) * time.Millisecond
}
