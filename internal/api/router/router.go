package router

import (
	"net/http"
	"time"

	"github.com/cuongbtq/colorize-be/internal/api/dto"
	"github.com/cuongbtq/colorize-be/internal/api/handler"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// Config holds the HTTP surface settings that are not handler dependencies.
type Config struct {
	// AllowedOrigins of ["*"] or empty allows every origin.
	AllowedOrigins []string
	// Metrics serves /metrics when set.
	Metrics http.Handler
	// FilesDir is served under FilesPrefix when the local blob backend is used.
	FilesDir    string
	FilesPrefix string
}

// SetupRouter configures and returns the Gin router with all routes
func SetupRouter(deps *handler.Dependencies, cfg Config) *gin.Engine {
	r := gin.New()

	// Middleware
	r.Use(RecoveryMiddleware(deps.Logger))
	r.Use(LoggerMiddleware(deps.Logger))
	r.Use(cors.New(corsConfig(cfg.AllowedOrigins)))

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, dto.ErrorResponse{Detail: "Not Found"})
	})

	system := handler.NewSystemHandler(deps)
	r.GET("/", system.Root)
	r.GET("/health", system.Health)

	if cfg.Metrics != nil {
		r.GET("/metrics", gin.WrapH(cfg.Metrics))
	}

	if cfg.FilesDir != "" && cfg.FilesPrefix != "" {
		r.Static(cfg.FilesPrefix, cfg.FilesDir)
	}

	colorizeHandler := handler.NewColorizeHandler(deps)
	statsHandler := handler.NewStatsHandler(deps)

	// every route is served at the root and under /v1
	for _, group := range []*gin.RouterGroup{&r.RouterGroup, r.Group("/v1")} {
		colorize := group.Group("/colorize")
		{
			// POST /colorize/upload - Store an image and colorize it in the background
			colorize.POST("/upload", colorizeHandler.Upload)

			// GET /colorize/status/:request_id - Poll a colorize request
			colorize.GET("/status/:request_id", colorizeHandler.Status)

			// POST /colorize/ephemeral - Colorize without storing anything
			colorize.POST("/ephemeral", colorizeHandler.Ephemeral)
		}

		group.GET("/stats", statsHandler.Get)
	}

	return r
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.Config{
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type", "Accept", "Origin", "User-Agent", "X-Requested-With"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}

	if len(origins) == 0 || (len(origins) == 1 && origins[0] == "*") {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = origins
	}
	return cfg
}
