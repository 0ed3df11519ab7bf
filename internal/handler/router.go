package handler

import (
	"time"

	"acu-chatbot-go/internal/config"
	"acu-chatbot-go/internal/middleware"
	"acu-chatbot-go/pkg/ratelimit"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// Handlers 汇总路由需要的全部处理器。
type Handlers struct {
	Chat     *ChatHandler
	Feedback *FeedbackHandler
	Health   *HealthHandler
	Admin    *AdminHandler
}

// NewRouter 创建路由引擎并注册全部路由。
func NewRouter(h Handlers, limiter *ratelimit.Limiter, adminCfg config.AdminConfig, corsCfg config.CORSConfig) *gin.Engine {
	r := gin.New() // 使用 New() 创建一个不带默认中间件的引擎
	// 添加我们自定义的日志中间件和 Gin 的 Recovery 中间件
	r.Use(middleware.RequestLogger(), gin.Recovery())
	if mw := corsMiddleware(corsCfg); mw != nil {
		r.Use(mw)
	}

	r.GET("/health", h.Health.Health)

	api := r.Group("/api")
	{
		limited := api.Group("")
		limited.Use(middleware.RateLimitMiddleware(limiter))
		{
			limited.POST("/chat", h.Chat.Chat)
			limited.POST("/chat/stream", h.Chat.Stream)
			limited.POST("/feedback", h.Feedback.Submit)
		}
		// WebSocket 在连接内按消息限流
		api.GET("/chat/ws", h.Chat.WebSocket)

		admin := middleware.AdminAuthMiddleware(adminCfg)
		analytics := api.Group("/analytics")
		{
			analytics.GET("/summary", h.Feedback.Summary)
			analytics.GET("/recent", admin, h.Feedback.Recent)
		}
		api.POST("/update-data", admin, h.Admin.UpdateData)
	}
	return r
}

func corsMiddleware(cfg config.CORSConfig) gin.HandlerFunc {
	if len(cfg.AllowedOrigins) == 0 {
		return nil
	}
	cc := cors.Config{
		AllowMethods: []string{"GET", "POST", "OPTIONS"},
		AllowHeaders: []string{"Origin", "Content-Type", "Accept", middleware.SessionIDHeader, middleware.AdminTokenHeader},
		MaxAge:       12 * time.Hour,
	}
	for _, o := range cfg.AllowedOrigins {
		if o == "*" {
			cc.AllowAllOrigins = true
		}
	}
	if !cc.AllowAllOrigins {
		cc.AllowOrigins = cfg.AllowedOrigins
	}
	return cors.New(cc)
}
