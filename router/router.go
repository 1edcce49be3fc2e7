package router

import (
	"Go_Drop/internal/handler"
	"Go_Drop/utils"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Deps are the handlers and middleware the routes are built from.
type Deps struct {
	Auth        *utils.TokenAuth
	Share       *handler.ShareHandler
	Access      *handler.AccessHandler
	AccessLimit *handler.IPRateLimiter
	DB          handler.Pinger
	Logger      *zap.Logger
}

// InitRouter builds API routes.
func InitRouter(d Deps) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(d.Logger))
	r.Use(cors.New(cors.Config{
		AllowAllOrigins: true,
		AllowMethods:    []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:    []string{"Content-Type", "Authorization"},
		ExposeHeaders:   []string{"Content-Length", "Content-Disposition"},
		MaxAge:          12 * time.Hour,
	}))

	r.GET("/health", handler.Health(d.DB))
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api")
	{
		auth := api.Group("")
		auth.Use(utils.AuthMiddleware(d.Auth))

		share := auth.Group("/share")
		{
			share.POST("", d.Share.CreateShare)
			share.GET("/:id", d.Share.GetShareStatus)
		}
		api.GET("/access", d.AccessLimit.Middleware(), d.Access.Access)
	}
	return r
}

func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		// Tokens travel in the query string; log the path only.
		logger.Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
		)
	}
}
