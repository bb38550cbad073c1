package http

import (
	"opsbot/internal/app"
	"opsbot/internal/logging"
	"opsbot/internal/observability"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/trace"
)

// RouterConfig carries the HTTP-only settings.
type RouterConfig struct {
	AllowedOrigins []string
	MetricsPath    string
	AccessLogger   *observability.Logger
	Tracer         trace.Tracer
	Logger         logging.Logger
}

// NewRouter wires every API route onto a gin engine.
func NewRouter(rt *app.Runtime, cfg RouterConfig) *gin.Engine {
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(ObservabilityMiddleware(cfg.AccessLogger, cfg.Tracer))
	engine.Use(cors.New(corsConfig(cfg.AllowedOrigins)))

	h := NewAPIHandler(rt, cfg.Logger)
	api := engine.Group("/api")
	{
		api.GET("/health", h.HandleHealth)
		api.GET("/status", h.HandleStatus)

		api.GET("/tools", h.HandleListTools)
		api.POST("/tools/test", h.HandleTestTool)
		api.POST("/tools/batch", h.HandleBatch)

		api.GET("/stats", h.HandleStats)
		api.POST("/stats/reset", h.HandleResetStats)

		api.POST("/chat", h.HandleChat)
		api.GET("/shortcuts", h.HandleListShortcuts)
		api.POST("/shortcuts/:name", h.HandleShortcut)

		api.GET("/config/:section", h.HandleGetConfig)
		api.POST("/config/:section", h.HandleUpdateConfig)

		api.GET("/history", h.HandleHistory)
	}

	metricsPath := cfg.MetricsPath
	if metricsPath == "" {
		metricsPath = "/metrics"
	}
	if m := rt.Metrics(); m != nil {
		engine.GET(metricsPath, gin.WrapH(m.Handler()))
	}
	return engine
}

func corsConfig(origins []string) cors.Config {
	conf := cors.DefaultConfig()
	conf.AllowMethods = []string{"GET", "POST", "OPTIONS"}
	conf.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", "X-Requested-With"}
	allowAll := len(origins) == 0
	for _, origin := range origins {
		if origin == "*" {
			allowAll = true
		}
	}
	if allowAll {
		conf.AllowAllOrigins = true
	} else {
		conf.AllowOrigins = origins
	}
	return conf
}
