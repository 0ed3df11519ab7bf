package middleware

import (
	"bytes"
	"encoding/json"
	"io"
	"math"
	"net/http"
	"strconv"
	"strings"

	"acu-chatbot-go/internal/model"
	"acu-chatbot-go/pkg/log"
	"acu-chatbot-go/pkg/ratelimit"

	"github.com/gin-gonic/gin"
)

// SessionIDHeader 可以代替请求体中的 session_id。
const SessionIDHeader = "X-Session-Id"

// RateLimitKey 返回限流使用的 key：优先取会话 id，否则取客户端 IP。
func RateLimitKey(sessionID, clientIP string) string {
	if sessionID = strings.TrimSpace(sessionID); sessionID != "" {
		return "session:" + sessionID
	}
	return "ip:" + clientIP
}

// 限流前最多读取的请求体字节数，session_id 只需要请求体开头。
const maxPeekBytes = 4 << 10

type peekedBody struct {
	io.Reader
	io.Closer
}

// 只读取请求体开头的 session_id 字段，读过的字节会拼回请求体，不影响后续处理函数。
func peekSessionID(c *gin.Context) string {
	if c.Request.Body == nil || c.Request.Method != http.MethodPost {
		return ""
	}
	body := c.Request.Body
	head, err := io.ReadAll(io.LimitReader(body, maxPeekBytes))
	c.Request.Body = peekedBody{Reader: io.MultiReader(bytes.NewReader(head), body), Closer: body}
	if err != nil || len(head) == 0 {
		return ""
	}
	return scanSessionID(head)
}

// scanSessionID 依次扫描顶层字段，请求体被截断时仍能取到排在前面的 session_id。
func scanSessionID(head []byte) string {
	dec := json.NewDecoder(bytes.NewReader(head))
	if tok, err := dec.Token(); err != nil || tok != json.Delim('{') {
		return ""
	}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return ""
		}
		key, _ := tok.(string)
		if key == "session_id" {
			var id string
			if dec.Decode(&id) != nil {
				return ""
			}
			return id
		}
		var skip json.RawMessage
		if dec.Decode(&skip) != nil {
			return ""
		}
	}
	return ""
}

// RateLimitMiddleware 在进入处理函数之前执行滑动窗口限流。
func RateLimitMiddleware(limiter *ratelimit.Limiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		sessionID := peekSessionID(c)
		if sessionID == "" {
			sessionID = c.GetHeader(SessionIDHeader)
		}
		key := RateLimitKey(sessionID, c.ClientIP())

		ok, retry := limiter.Admit(key)
		if !ok {
			seconds := int(math.Ceil(retry.Seconds()))
			log.Warnw("请求被限流", "key", key, "retryAfter", seconds)
			c.Header("Retry-After", strconv.Itoa(seconds))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"code":        http.StatusTooManyRequests,
				"kind":        model.KindRateLimited,
				"message":     "Çok fazla istek gönderdiniz. Lütfen biraz bekleyin.",
				"retry_after": seconds,
			})
			return
		}
		c.Next()
	}
}
