package handler

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/devicesession/backend/internal/service"
)

type RouterConfig struct {
	AllowedOrigins []string
	// Metrics is mounted at /metrics when set.
	Metrics http.Handler
}

func NewRouter(svc *service.AuthService, log *slog.Logger, cfg RouterConfig) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), RequestLogger(log))
	if len(cfg.AllowedOrigins) > 0 {
		router.Use(CORSMiddleware(cfg.AllowedOrigins, false))
	}

	router.GET("/", Root)
	router.GET("/ping", Ping)
	router.GET("/openapi.json", OpenAPIDoc)
	if cfg.Metrics != nil {
		router.GET("/metrics", gin.WrapH(cfg.Metrics))
	}

	auth := NewAuthHandler(svc, log)
	v1 := router.Group("/api/v1/auth")
	v1.POST("/login", auth.Login)
	v1.POST("/refresh", auth.Refresh)
	v1.POST("/logout", auth.Logout)

	protected := v1.Group("", AuthMiddleware(svc, log))
	protected.POST("/logout_all", auth.LogoutAll)
	protected.GET("/active_sessions", auth.ActiveSessions)
	protected.POST("/revoke_other_session", auth.RevokeOtherSessions)

	return router
}
