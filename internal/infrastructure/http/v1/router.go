package v1

import (
	"github.com/gin-gonic/gin"

	"catreg/internal/domain/masterdata"
	"catreg/internal/infrastructure/http/v1/handlers"
	"catreg/internal/infrastructure/http/v1/middleware"
	"catreg/internal/metadata"
	"catreg/pkg/logger"
)

// RouterConfig holds router dependencies.
type RouterConfig struct {
	Logger *logger.Logger

	// Health backs /health/ready and /health/info
	Health handlers.Pinger

	// JWTValidator for token validation
	JWTValidator middleware.JWTValidator

	Registry *metadata.Registry
	Service  *masterdata.Service

	// History is optional; nil disables audit history reads
	History handlers.HistoryReader

	// SecureCookies marks the CSRF cookie Secure (HTTPS deployments)
	SecureCookies bool

	Version string
	Debug   bool
}

// NewRouter creates and configures the Gin router.
func NewRouter(cfg RouterConfig) *gin.Engine {
	if cfg.Debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.Default()
	}

	router := gin.New()

	// Order matters: ErrorHandler must wrap Recovery so a recovered panic
	// is still rendered.
	router.Use(middleware.Trace())
	router.Use(middleware.Logger(cfg.Logger))
	router.Use(middleware.ErrorHandler())
	router.Use(middleware.Recovery())

	if cfg.Health != nil {
		healthHandler := handlers.NewHealthHandler(cfg.Health, cfg.Version, cfg.Registry.Len())
		health := router.Group("/health")
		{
			health.GET("/live", healthHandler.Live)
			health.GET("/ready", healthHandler.Ready)
			health.GET("/info", healthHandler.Info)
		}
	}

	api := router.Group("/api/v1")
	api.Use(middleware.Auth(cfg.JWTValidator))
	api.Use(middleware.CSRF(cfg.SecureCookies))
	{
		base := handlers.NewBaseHandler()

		metaHandler := handlers.NewMetadataHandler(base, cfg.Registry)
		meta := api.Group("/meta")
		{
			meta.GET("", metaHandler.ListEntities)
			meta.GET("/:type", metaHandler.GetEntity)
		}

		mdHandler := handlers.NewMasterDataHandler(base, cfg.Service, cfg.History)
		RegisterMasterDataRoutes(api.Group("/masterdata/:type"), mdHandler)
	}

	return router
}
