package middleware

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/Aarizkhan-lorem/HDNotes/internal/api/auth"
	"github.com/Aarizkhan-lorem/HDNotes/internal/api/response"
	"github.com/Aarizkhan-lorem/HDNotes/internal/model"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

// UserFinder 按 ID 解析用户，供认证中间件回查当前验证状态。
type UserFinder interface {
	FindByID(ctx context.Context, id uint) (*model.User, error)
}

// AuthMiddleware 校验 Bearer JWT，解析出用户并要求邮箱已验证。
//
// 通过校验的请求会在上下文中携带用户对象（auth.ContextUserKey）。
// 任何畸形输入都按无效凭证处理。
func AuthMiddleware(jwtSecret string, users UserFinder) gin.HandlerFunc {
	secret := []byte(jwtSecret)
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			response.Fail(c, http.StatusUnauthorized, "Not authorized to access this route", "No token provided")
			c.Abort()
			return
		}
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			response.Fail(c, http.StatusUnauthorized, "Not authorized to access this route", "Invalid authorization header")
			c.Abort()
			return
		}

		claims := &jwt.RegisteredClaims{}
		token, err := jwt.ParseWithClaims(parts[1], claims, func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, jwt.ErrSignatureInvalid
			}
			return secret, nil
		})
		if err != nil || !token.Valid {
			response.Fail(c, http.StatusUnauthorized, "Not authorized to access this route", "Invalid token")
			c.Abort()
			return
		}

		uid, err := strconv.ParseUint(claims.Subject, 10, 64)
		if err != nil {
			response.Fail(c, http.StatusUnauthorized, "Not authorized to access this route", "Invalid token")
			c.Abort()
			return
		}

		// 每个受保护请求都回查用户，拿到的是当前的验证状态而不是签发时的
		user, err := users.FindByID(c.Request.Context(), uint(uid))
		if err != nil {
			response.Fail(c, http.StatusUnauthorized, "Not authorized to access this route", "User not found")
			c.Abort()
			return
		}
		if !user.IsVerified {
			response.Fail(c, http.StatusUnauthorized, "Please verify your email address first", "Account not verified")
			c.Abort()
			return
		}

		c.Set(auth.ContextUserKey, user)
		c.Next()
	}
}
