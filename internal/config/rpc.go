package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/andrew-solarstorm/go-packages/common"
	"github.com/gagliardetto/solana-go/rpc"
)

type RPCConfig struct {
	RPCUrl     string
	Commitment rpc.CommitmentType

	// BlockhashMaxAge is how long a fetched block reference is served before
	// the next build refreshes it.
	BlockhashMaxAge     time.Duration
	BroadcastMaxRetries uint

	// RelayKeypair pays fees and rent for every sponsored swap.
	RelayKeypair Keypair
}

func (r *RPCConfig) Key() string {
	return RPC_CONFIG_KEY
}

func (r *RPCConfig) Load() error {
	r.RPCUrl = os.Getenv("CHAIN_RPC_URL")
	r.Commitment = rpc.CommitmentType(common.GetEnvOrDefault("CHAIN_COMMITMENT", string(rpc.CommitmentConfirmed)))
	r.BlockhashMaxAge = getEnvMillis("BLOCKHASH_MAX_AGE_MS", 2000)
	r.BroadcastMaxRetries = uint(max(common.GetEnvOrDefaultInt("BROADCAST_MAX_RETRIES", 0), 0))

	kp, err := ParseKeypair(os.Getenv("RELAY_KEYPAIR"))
	if err != nil {
		return fmt.Errorf("RELAY_KEYPAIR: %w", err)
	}
	r.RelayKeypair = kp
	return r.Validate()
}

func (r *RPCConfig) Validate() error {
	if r.RPCUrl == "" {
		return errors.New("invalid rpc config: CHAIN_RPC_URL is required")
	}
	switch r.Commitment {
	case rpc.CommitmentProcessed, rpc.CommitmentConfirmed, rpc.CommitmentFinalized:
	default:
		return fmt.Errorf("invalid rpc config: unknown commitment %q", r.Commitment)
	}
	if r.RelayKeypair.IsZero() {
		return errors.New("invalid rpc config: RELAY_KEYPAIR is required")
	}
	return nil
}
