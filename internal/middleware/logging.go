// Package middleware 存放 Gin 框架的中间件。
package middleware

import (
	"bytes"
	"io"
	"strings"
	"time"

	"acu-chatbot-go/pkg/log"

	"github.com/gin-gonic/gin"
)

const maxLoggedBody = 4 << 10

// bodyLogWriter 用于捕获响应体，流式响应不缓存。
type bodyLogWriter struct {
	gin.ResponseWriter
	body *bytes.Buffer
}

// Write 实现了 io.Writer 接口，将响应写入 gin.ResponseWriter 和一个内部的 buffer
func (w bodyLogWriter) Write(b []byte) (int, error) {
	if !isStream(w.Header().Get("Content-Type")) && w.body.Len() < maxLoggedBody {
		w.body.Write(b)
	}
	return w.ResponseWriter.Write(b)
}

func isStream(contentType string) bool {
	return strings.HasPrefix(contentType, "text/event-stream")
}

func truncateBody(b []byte) string {
	if len(b) > maxLoggedBody {
		return string(b[:maxLoggedBody]) + "...(truncated)"
	}
	return string(b)
}

// RequestLogger 是一个 Gin 中间件，用于记录详细的请求和响应日志。
func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		// 记录请求开始时间
		startTime := time.Now()

		// 只缓存用于日志的前缀，读过的字节拼回 c.Request.Body，后续处理函数仍能读取完整请求体
		var requestBody []byte
		if body := c.Request.Body; body != nil {
			requestBody, _ = io.ReadAll(io.LimitReader(body, maxLoggedBody+1))
			c.Request.Body = peekedBody{Reader: io.MultiReader(bytes.NewReader(requestBody), body), Closer: body}
		}

		// 使用自定义的 ResponseWriter 捕获响应
		blw := &bodyLogWriter{body: bytes.NewBufferString(""), ResponseWriter: c.Writer}
		c.Writer = blw

		// 处理请求
		c.Next()

		responseBody := truncateBody(blw.body.Bytes())
		if isStream(c.Writer.Header().Get("Content-Type")) || c.IsWebsocket() {
			responseBody = "<stream>"
		}

		// 记录完整的请求和响应信息
		log.Infow("HTTP Request Log",
			"statusCode", c.Writer.Status(),
			"latency", time.Since(startTime).String(),
			"clientIP", c.ClientIP(),
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"requestBody", truncateBody(requestBody),
			"responseBody", responseBody,
		)
	}
}
