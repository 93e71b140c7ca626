package main

import (
	"errors"
	"io/fs"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	container "github.com/thehyperflames/dicontainer-go"

	"github.com/hxuan190/sponsor-relay/internal/common"
	"github.com/hxuan190/sponsor-relay/internal/config"
	"github.com/hxuan190/sponsor-relay/internal/http"
	"github.com/hxuan190/sponsor-relay/internal/relay"
)

// @title Sponsor Relay API
// @version 1.0
// @description Fee-sponsored swaps on Solana. The relay quotes a swap through a route
// @description aggregator, builds a transaction whose network fee and rent it pays, and
// @description broadcasts it once the user has signed.
// @description
// @description ## - Flow
// @description 1. `GET /api/v1/quote` to price a swap
// @description 2. `POST /api/v1/swap/prepare` to get the message to sign
// @description 3. `POST /api/v1/swap/submit` with the wallet signature
// @description
// @description ## - Usage Tips
// @description - Use smallest token units (lamports for SOL, base units for SPL tokens)
// @description - A prepared swap can be submitted once, before `expiresAt`
// @description - Failed responses carry a `recommendation`: retry_quote, retry_prepare, restart_from_quote or do_not_retry
// @BasePath /
// @schemes https http
// @tag.name quote
// @tag.description Price swaps through the route aggregator
// @tag.name swap
// @tag.description Prepare and submit sponsored swaps

func main() {
	// load env, a missing .env just means the environment is already set
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Error().Err(err).Msg("failed to load env")
		return
	}

	general := &config.GeneralConfig{}
	if err := general.Load(); err != nil {
		log.Error().Err(err).Msg("invalid general config")
		return
	}
	common.InitLogger(general.LogLevel, general.Env)
	common.InitRuntime(general.MemLimitMB)

	// di container config
	conf := container.NewConf(
		general,
		&config.RPCConfig{},
		&config.AggregatorConfig{},
		&config.FeeConfig{},
		&config.RelayConfig{},
		&config.LUTConfig{},
	)

	// di container
	dic, err := container.New(
		conf,

		&relay.Service{},
		&http.HTTPService{},
	)
	if err != nil {
		log.Error().Err(err).Msg("failed to create di container")
		return
	}

	// blocks until SIGINT/SIGTERM
	if err := dic.Run(); err != nil {
		log.Error().Err(err).Msg("failed to run di container")
		return
	}

	log.Info().Msg("Shutting down services...")
	if err := dic.Stop(); err != nil {
		log.Error().Err(err).Msg("error during shutdown")
	}
	log.Info().Msg("Shutdown complete")
}
