package handler

import (
	"errors"
	"io"

	"acu-chatbot-go/internal/service"
	"acu-chatbot-go/pkg/log"

	"github.com/gin-gonic/gin"
)

// AdminHandler 负责处理管理员接口。鉴权由 AdminAuthMiddleware 完成。
type AdminHandler struct {
	dataService service.DataService
}

// NewAdminHandler 创建一个新的 AdminHandler 实例。
func NewAdminHandler(dataService service.DataService) *AdminHandler {
	return &AdminHandler{dataService: dataService}
}

// UpdateDataRequest 是 POST /api/update-data 的可选请求体。
type UpdateDataRequest struct {
	Reason string `json:"reason"`
}

// UpdateData 触发一次外部数据刷新。
func (h *AdminHandler) UpdateData(c *gin.Context) {
	var req UpdateDataRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		log.Warnf("UpdateData: Invalid request payload, error: %v", err)
		badRequest(c, "invalid request body")
		return
	}

	log.Infof("手动数据刷新已触发, ip=%s reason=%q", c.ClientIP(), req.Reason)
	result, err := h.dataService.TriggerRefresh(c.Request.Context(), "admin@"+c.ClientIP(), req.Reason)
	if err != nil {
		writeError(c, err)
		return
	}
	success(c, result)
}
