package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"qaboard/internal/model"
	"qaboard/internal/pkg/tokenstore"
	"qaboard/internal/policy"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"gorm.io/gorm"
)

type customClaims struct {
	jwt.RegisteredClaims
	Role string `json:"role"`
}

// 上下文键，由 AuthMiddleware 写入、处理层读取。
const (
	CtxIdentity  = "identity"
	CtxToken     = "token"
	CtxTokenExp  = "tokenExp"
	CtxUserEmail = "userEmail"
)

// AuthMiddleware 校验 JWT 并将身份信息写入上下文。
//
// 除签名校验外还做两件事：查注销名单（登出后的令牌直接拒绝），
// 以及回查用户记录——被封禁的用户在这里就被拦下，任何业务
// 处理器都见不到被封禁的身份。
func AuthMiddleware(db *gorm.DB, revoked *tokenstore.RevocationList, jwtSecret string) gin.HandlerFunc {
	secret := []byte(jwtSecret)
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "missing authorization"})
			c.Abort()
			return
		}
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid authorization header"})
			c.Abort()
			return
		}

		tokenStr := parts[1]
		claims := &customClaims{}
		token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
			return secret, nil
		})
		if err != nil || !token.Valid {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			c.Abort()
			return
		}

		if claims.Subject == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token subject"})
			c.Abort()
			return
		}
		uid, err := strconv.ParseUint(claims.Subject, 10, 64)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid user id"})
			c.Abort()
			return
		}

		isRevoked, err := revoked.IsRevoked(c.Request.Context(), tokenStr)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "auth check failed"})
			c.Abort()
			return
		}
		if isRevoked {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "token revoked"})
			c.Abort()
			return
		}

		var user model.User
		if err := db.WithContext(c.Request.Context()).First(&user, uint(uid)).Error; err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "user not found"})
			c.Abort()
			return
		}
		if user.IsBlocked {
			c.JSON(http.StatusForbidden, gin.H{"error": "account blocked, contact admin"})
			c.Abort()
			return
		}

		role := strings.TrimSpace(strings.ToLower(user.Role))
		if role == "" {
			role = policy.RoleMember
		}

		c.Set(CtxIdentity, policy.Identity{
			ID:      user.ID,
			Role:    role,
			Blocked: user.IsBlocked,
		})
		c.Set(CtxToken, tokenStr)
		if claims.ExpiresAt != nil {
			c.Set(CtxTokenExp, claims.ExpiresAt.Time)
		} else {
			c.Set(CtxTokenExp, time.Time{})
		}
		c.Set(CtxUserEmail, user.Email)
		c.Next()
	}
}

// AdminOnly 仅放行管理员，必须接在 AuthMiddleware 之后。
func AdminOnly() gin.HandlerFunc {
	return func(c *gin.Context) {
		val, ok := c.Get(CtxIdentity)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "missing authorization"})
			c.Abort()
			return
		}
		identity, ok := val.(policy.Identity)
		if !ok || !identity.IsAdmin() {
			c.JSON(http.StatusForbidden, gin.H{"error": "admin access only"})
			c.Abort()
			return
		}
		c.Next()
	}
}
