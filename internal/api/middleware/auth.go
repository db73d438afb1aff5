package middleware

import (
	"Roger/internal/pkg/response"
	"crypto/subtle"
	"strings"

	"github.com/gin-gonic/gin"
)

// ControlTokenMiddleware 校验本地控制令牌。未配置令牌时不校验。
// websocket 无法携带请求头，允许通过 token 查询参数传递。
func ControlTokenMiddleware(token string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if token == "" {
			c.Next()
			return
		}

		presented := c.Query("token")
		if authHeader := c.GetHeader("Authorization"); strings.HasPrefix(authHeader, "Bearer ") {
			presented = strings.TrimPrefix(authHeader, "Bearer ")
		}
		if presented == "" {
			response.Fail(c, response.Unauthorized, "Token 缺失或格式错误")
			c.Abort()
			return
		}
		if subtle.ConstantTimeCompare([]byte(presented), []byte(token)) != 1 {
			response.Fail(c, response.Unauthorized, "Token 无效")
			c.Abort()
			return
		}
		c.Next()
	}
}
