package proxy

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type ServerOptions struct {
	AllowedOrigins []string
	Logger         *zap.Logger
}

// NewRouter exposes an Exchanger over HTTP: POST /message takes a Request and
// answers with a Response.
func NewRouter(ex Exchanger, opts ServerOptions) *gin.Engine {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	r := gin.New()
	r.Use(gin.Recovery())

	corsCfg := cors.Config{
		AllowMethods: []string{http.MethodPost, http.MethodOptions},
		AllowHeaders: []string{"Content-Type"},
		MaxAge:       12 * time.Hour,
	}
	if len(opts.AllowedOrigins) == 0 {
		corsCfg.AllowAllOrigins = true
	} else {
		corsCfg.AllowOrigins = opts.AllowedOrigins
	}
	r.Use(cors.New(corsCfg))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})

	r.POST("/message", func(c *gin.Context) {
		var req Request
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, failure(err))
			return
		}
		resp, err := ex.Exchange(c.Request.Context(), req)
		if err != nil {
			logger.Warn("proxy exchange failed", zap.String("url", req.URL), zap.Error(err))
			c.JSON(http.StatusBadGateway, failure(err))
			return
		}
		if !resp.Success {
			logger.Info("proxy fetch unsuccessful", zap.String("url", req.URL), zap.String("error", resp.Error))
		}
		c.JSON(http.StatusOK, resp)
	})

	return r
}
