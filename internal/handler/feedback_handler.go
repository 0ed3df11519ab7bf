package handler

import (
	"net/http"
	"strconv"

	"acu-chatbot-go/internal/service"
	"acu-chatbot-go/pkg/log"

	"github.com/gin-gonic/gin"
)

// FeedbackHandler 处理反馈与统计接口。
type FeedbackHandler struct {
	feedbackService service.FeedbackService
}

// NewFeedbackHandler 创建一个新的 FeedbackHandler。
func NewFeedbackHandler(feedbackService service.FeedbackService) *FeedbackHandler {
	return &FeedbackHandler{feedbackService: feedbackService}
}

// FeedbackRequest 是 POST /api/feedback 的请求体。
type FeedbackRequest struct {
	MsgID string `json:"msg_id"`
	Value string `json:"value"`
	Text  string `json:"text"`
}

// Submit 切换一条回复的反馈。
func (h *FeedbackHandler) Submit(c *gin.Context) {
	var req FeedbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		log.Warnf("Feedback: Invalid request payload, error: %v", err)
		badRequest(c, "invalid request body")
		return
	}
	fb, err := h.feedbackService.SetFeedback(c.Request.Context(), req.MsgID, req.Value, req.Text)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "feedback": fb})
}

// Summary 处理 GET /api/analytics/summary。
func (h *FeedbackHandler) Summary(c *gin.Context) {
	summary, err := h.feedbackService.Summary(c.Request.Context(), c.Query("period"), c.Query("bucket"))
	if err != nil {
		writeError(c, err)
		return
	}
	success(c, summary)
}

// Recent 处理 GET /api/analytics/recent（管理员）。
func (h *FeedbackHandler) Recent(c *gin.Context) {
	limit := 50
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			badRequest(c, "limit must be a positive integer")
			return
		}
		limit = n
	}
	records, err := h.feedbackService.Recent(c.Request.Context(), limit)
	if err != nil {
		writeError(c, err)
		return
	}
	success(c, records)
}
