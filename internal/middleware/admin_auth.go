// Package middleware 提供了处理 HTTP 请求的中间件。
package middleware

import (
	"crypto/subtle"
	"net/http"

	"acu-chatbot-go/internal/config"
	"acu-chatbot-go/internal/model"
	"acu-chatbot-go/pkg/log"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"
)

// AdminTokenHeader 是管理接口的凭据请求头。
const AdminTokenHeader = "X-Admin-Token"

// AdminAuthMiddleware 校验 X-Admin-Token。
// 未配置凭据时返回 503，凭据不匹配时返回 403。
func AdminAuthMiddleware(cfg config.AdminConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		if cfg.Token == "" && cfg.TokenHash == "" {
			abortWithError(c, http.StatusServiceUnavailable, model.KindAdminDisabled, "Admin token yapılandırılmamış.")
			return
		}

		provided := c.GetHeader(AdminTokenHeader)
		if provided == "" || !adminTokenMatches(cfg, provided) {
			log.Warnw("管理接口凭据校验失败", "clientIP", c.ClientIP(), "path", c.Request.URL.Path)
			abortWithError(c, http.StatusForbidden, model.KindForbidden, "Yetkisiz erişim.")
			return
		}

		// 凭据有效，继续处理请求
		c.Next()
	}
}

func adminTokenMatches(cfg config.AdminConfig, provided string) bool {
	if cfg.TokenHash != "" {
		return bcrypt.CompareHashAndPassword([]byte(cfg.TokenHash), []byte(provided)) == nil
	}
	return subtle.ConstantTimeCompare([]byte(cfg.Token), []byte(provided)) == 1
}
