package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"furrydomains/backend/internal/auth/jwt"
)

// 上下文中的身份字段
const (
	ContextUserID  = "userID"
	ContextEmail   = "email"
	ContextName    = "name"
	ContextSlackID = "slackID"
)

// JWTAuth JWT认证中间件
type JWTAuth struct {
	jwtManager *jwt.Manager
	log        *zap.Logger
}

// NewJWTAuth 创建JWT认证中间件
func NewJWTAuth(jwtManager *jwt.Manager, log *zap.Logger) *JWTAuth {
	return &JWTAuth{
		jwtManager: jwtManager,
		log:        log,
	}
}

// RequireAuth 要求JWT认证
func (ja *JWTAuth) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := ja.extractToken(c)
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"code": http.StatusUnauthorized,
				"msg":  "authentication required",
			})
			return
		}

		claims, err := ja.jwtManager.ValidateToken(token)
		if err != nil {
			ja.log.Warn("invalid token",
				zap.Error(err),
				zap.String("ip", c.ClientIP()),
			)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"code": http.StatusUnauthorized,
				"msg":  "invalid or expired token",
			})
			return
		}

		setIdentity(c, claims.Identity)
		c.Next()
	}
}

// OptionalAuth 可选的JWT认证
func (ja *JWTAuth) OptionalAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if token := ja.extractToken(c); token != "" {
			if claims, err := ja.jwtManager.ValidateToken(token); err == nil {
				setIdentity(c, claims.Identity)
			}
		}
		c.Next()
	}
}

func setIdentity(c *gin.Context, id jwt.Identity) {
	c.Set(ContextUserID, id.UserID)
	c.Set(ContextEmail, id.Email)
	c.Set(ContextName, id.Name)
	c.Set(ContextSlackID, id.SlackID)
}

// IdentityFrom 从上下文读取当前租户身份
func IdentityFrom(c *gin.Context) jwt.Identity {
	return jwt.Identity{
		UserID:  c.GetString(ContextUserID),
		Email:   c.GetString(ContextEmail),
		Name:    c.GetString(ContextName),
		SlackID: c.GetString(ContextSlackID),
	}
}

// extractToken 从请求中提取JWT token
func (ja *JWTAuth) extractToken(c *gin.Context) string {
	// 1. 从 Authorization header 提取
	authHeader := c.GetHeader("Authorization")
	if authHeader != "" {
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) == 2 && parts[0] == "Bearer" {
			return parts[1]
		}
	}

	// 2. 从 cookie 提取
	if token, err := c.Cookie("access_token"); err == nil && token != "" {
		return token
	}

	// 3. WebSocket 握手无法携带 header，使用查询参数
	if c.IsWebsocket() {
		return c.Query("token")
	}

	return ""
}
