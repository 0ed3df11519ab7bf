package middleware

import (
	"acu-chatbot-go/internal/model"

	"github.com/gin-gonic/gin"
)

func abortWithError(c *gin.Context, status int, kind model.ErrorKind, message string) {
	c.AbortWithStatusJSON(status, gin.H{"code": status, "kind": kind, "message": message})
}
