// Package handler 包含了处理 HTTP 请求的控制器逻辑。
package handler

import (
	"context"
	"errors"
	"net/http"

	"acu-chatbot-go/internal/model"
	"acu-chatbot-go/pkg/log"

	"github.com/gin-gonic/gin"
)

var kindStatus = map[model.ErrorKind]int{
	model.KindInvalidInput:        http.StatusBadRequest,
	model.KindRateLimited:         http.StatusTooManyRequests,
	model.KindNotFound:            http.StatusNotFound,
	model.KindUnauthorized:        http.StatusUnauthorized,
	model.KindForbidden:           http.StatusForbidden,
	model.KindAdminDisabled:       http.StatusServiceUnavailable,
	model.KindUpstreamUnavailable: http.StatusServiceUnavailable,
}

// 面向用户的兜底文案，不暴露内部错误。
const internalErrorText = "Beklenmeyen bir hata oluştu. Lütfen daha sonra tekrar deneyin."

// errorInfo 把错误映射为 HTTP 状态码、错误类型和对外文案。
func errorInfo(err error) (int, model.ErrorKind, string) {
	kind := model.KindOf(err)
	status, ok := kindStatus[kind]
	if !ok {
		status = http.StatusInternalServerError
	}
	message := internalErrorText
	var appErr *model.AppError
	if errors.As(err, &appErr) && kind != model.KindInternal {
		message = appErr.Message
	}
	return status, kind, message
}

func writeError(c *gin.Context, err error) {
	if errors.Is(err, context.Canceled) {
		// 客户端已断开
		c.Abort()
		return
	}
	status, kind, message := errorInfo(err)
	if status >= http.StatusInternalServerError {
		log.Error("请求处理失败: "+c.Request.URL.Path, err)
	}
	c.AbortWithStatusJSON(status, gin.H{"code": status, "kind": kind, "message": message})
}

func badRequest(c *gin.Context, message string) {
	writeError(c, model.NewAppError(model.KindInvalidInput, message))
}

func success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "success", "data": data})
}
