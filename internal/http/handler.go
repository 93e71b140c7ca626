package http

import (
	"context"
	"errors"
	"fmt"
	gohttp "net/http"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	container "github.com/thehyperflames/dicontainer-go"

	"github.com/hxuan190/sponsor-relay/internal/config"
	"github.com/hxuan190/sponsor-relay/internal/domain"
	"github.com/hxuan190/sponsor-relay/internal/http/httputil"
	"github.com/hxuan190/sponsor-relay/internal/http/middlewares"
	"github.com/hxuan190/sponsor-relay/internal/relay"
)

const (
	API_VERSION  = "v1"
	HTTP_SERVICE = "http-service"
)

// RelayAPI is the part of the relay the HTTP surface exposes.
type RelayAPI interface {
	GetSwapQuote(ctx context.Context, intent domain.SwapIntent) (*domain.Quote, error)
	PrepareSwap(ctx context.Context, intent domain.SwapIntent, slippageBpsMax uint16) (*relay.PreparedSwap, error)
	SubmitSignedSwap(ctx context.Context, correlationID string, signed []byte) domain.SubmissionResult
	FeePayer() solana.PublicKey
	PendingSwaps() int
}

type HTTPService struct {
	container.BaseDIInstance

	relay       RelayAPI
	rateLimiter *middlewares.RateLimiter
	server      *gohttp.Server
	conf        *config.GeneralConfig

	handlers []httputil.IHttpHandler
}

// NewHTTPService builds the service outside of the container.
func NewHTTPService(conf *config.GeneralConfig, api RelayAPI) (*HTTPService, error) {
	svc := &HTTPService{}
	if err := svc.init(conf, api); err != nil {
		return nil, err
	}
	return svc, nil
}

func (svc *HTTPService) ID() string {
	return HTTP_SERVICE
}

func (svc *HTTPService) Configure(c container.IContainer) error {
	conf, ok := c.GetConfig(config.GENERAL_CONFIG_KEY).(*config.GeneralConfig)
	if !ok || conf == nil {
		return errors.New("invalid server config")
	}
	relaySvc, ok := c.Instance(relay.RELAY_SERVICE).(*relay.Service)
	if !ok {
		return errors.New("relay service is not registered")
	}
	return svc.init(conf, relaySvc)
}

func (svc *HTTPService) init(conf *config.GeneralConfig, api RelayAPI) error {
	if err := registerValidators(); err != nil {
		return fmt.Errorf("register validators: %w", err)
	}

	svc.conf = conf
	svc.relay = api
	svc.rateLimiter = middlewares.NewRateLimiter(conf.RateLimitRPS, conf.RateLimitBurst)
	svc.handlers = []httputil.IHttpHandler{
		NewQuoteHandler(api),
		NewSwapHandler(api),
	}
	return nil
}

// Router builds the gin engine with every route and middleware installed.
func (svc *HTTPService) Router() *gin.Engine {
	if svc.conf.Env == config.ProdEnv {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())

	corsConf := cors.DefaultConfig()
	corsConf.AllowAllOrigins = true
	corsConf.AddAllowHeaders("Authorization")
	r.Use(cors.New(corsConf))

	r.Use(middlewares.MetricsMiddleware("/metrics", "/health"))

	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	r.GET("/health", svc.health)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("api")
	api.Use(svc.rateLimiter.RateLimitMiddleware())
	pub := api.Group(API_VERSION)
	priv := api.Group(API_VERSION)

	admin := api.Group(fmt.Sprintf("%s/admin", API_VERSION))

	svc.setupHandlers(pub, priv, admin)
	return r
}

func (svc *HTTPService) Start() error {
	svc.server = &gohttp.Server{
		Addr:              svc.conf.HTTPHost + ":" + svc.conf.HTTPPort,
		Handler:           svc.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	log.Info().Str("host", svc.conf.HTTPHost).Str("port", svc.conf.HTTPPort).Msg("http server started")

	if err := svc.server.ListenAndServe(); err != nil && !errors.Is(err, gohttp.ErrServerClosed) {
		return err
	}

	return nil
}

func (svc *HTTPService) Stop() error {
	if svc.server == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := svc.server.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("failed to stop http server")
		return err
	}
	log.Info().Msg("http server stopped gracefully")
	return nil
}

// HealthResponse reports liveness and the relay account in use
type HealthResponse struct {
	Status       string `json:"status" example:"ok"`
	FeePayer     string `json:"feePayer"`
	PendingSwaps int    `json:"pendingSwaps" example:"3"`
}

// @Summary Health check
// @Tags health
// @Produce json
// @Success 200 {object} HealthResponse
// @Router /health [get]
func (svc *HTTPService) health(c *gin.Context) {
	c.JSON(gohttp.StatusOK, HealthResponse{
		Status:       "ok",
		FeePayer:     svc.relay.FeePayer().String(),
		PendingSwaps: svc.relay.PendingSwaps(),
	})
}

func (svc *HTTPService) setupHandlers(
	rootPub *gin.RouterGroup,
	rootPriv *gin.RouterGroup,
	rootAdmin *gin.RouterGroup,
) {
	for _, h := range svc.handlers {
		pub := rootPub.Group(h.Root())
		priv := rootPriv.Group(h.Root())
		admin := rootAdmin.Group(h.Root())
		h.SetRoutes(pub, priv, admin)
	}
}
