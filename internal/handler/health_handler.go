package handler

import (
	"net/http"
	"sync/atomic"

	"github.com/gin-gonic/gin"
)

// HealthHandler 报告服务与各组件的状态。
type HealthHandler struct {
	version    string
	started    *atomic.Bool
	components map[string]func() interface{}
}

// NewHealthHandler 创建 HealthHandler。started 在后台初始化完成后置为 true。
func NewHealthHandler(version string, started *atomic.Bool, components map[string]func() interface{}) *HealthHandler {
	return &HealthHandler{version: version, started: started, components: components}
}

// Health 处理 GET /health。
func (h *HealthHandler) Health(c *gin.Context) {
	components := make(gin.H, len(h.components))
	for name, check := range h.components {
		components[name] = check()
	}
	c.JSON(http.StatusOK, gin.H{
		"status":           "ok",
		"version":          h.version,
		"startup_complete": h.started.Load(),
		"components":       components,
	})
}
