package auth

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"qaboard/internal/api/middleware"
	"qaboard/internal/model"
	"qaboard/internal/pkg/metrics"
	"qaboard/internal/pkg/notify"
	"qaboard/internal/pkg/ratelimit"
	"qaboard/internal/pkg/tokenstore"
	"qaboard/internal/policy"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// Handler 提供注册、登录、登出与找回密码接口，以及管理员的用户管理。
type Handler struct {
	db          *gorm.DB
	jwtSecret   []byte
	tokenTTL    time.Duration
	baseURL     string
	mailer      notify.Mailer
	resetTokens *tokenstore.ResetTokens
	revoked     *tokenstore.RevocationList
	limiter     *ratelimit.RateLimiter
	logger      *slog.Logger
}

// NewHandler 创建 Auth Handler。
func NewHandler(
	db *gorm.DB,
	jwtSecret string,
	tokenTTL time.Duration,
	baseURL string,
	mailer notify.Mailer,
	resetTokens *tokenstore.ResetTokens,
	revoked *tokenstore.RevocationList,
	limiter *ratelimit.RateLimiter,
	logger *slog.Logger,
) *Handler {
	if tokenTTL <= 0 {
		tokenTTL = 24 * time.Hour
	}
	return &Handler{
		db:          db,
		jwtSecret:   []byte(jwtSecret),
		tokenTTL:    tokenTTL,
		baseURL:     strings.TrimRight(baseURL, "/"),
		mailer:      mailer,
		resetTokens: resetTokens,
		revoked:     revoked,
		limiter:     limiter,
		logger:      logger,
	}
}

type registerRequest struct {
	Name     string `json:"name" binding:"required"`
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=6"`
}

type loginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type tokenResponse struct {
	Token string       `json:"token"`
	User  userResponse `json:"user"`
}

type userResponse struct {
	ID          uint      `json:"id"`
	Name        string    `json:"name"`
	Email       string    `json:"email"`
	Role        string    `json:"role"`
	IsBlocked   bool      `json:"is_blocked"`
	BlockReason string    `json:"block_reason,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

type customClaims struct {
	jwt.RegisteredClaims
	Role string `json:"role"`
}

func toUserResponse(u *model.User) userResponse {
	return userResponse{
		ID:          u.ID,
		Name:        u.Name,
		Email:       u.Email,
		Role:        u.Role,
		IsBlocked:   u.IsBlocked,
		BlockReason: u.BlockReason,
		CreatedAt:   u.CreatedAt,
	}
}

// Register 创建新用户。注册产生的用户一律是 member。
func (h *Handler) Register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	email := strings.TrimSpace(strings.ToLower(req.Email))

	var existing model.User
	err := h.db.Where("email = ?", email).First(&existing).Error
	if err == nil {
		c.JSON(http.StatusConflict, gin.H{"error": "email already exists"})
		return
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query user failed"})
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "hash password failed"})
		return
	}

	user := model.User{
		Name:     strings.TrimSpace(req.Name),
		Email:    email,
		Password: string(hash),
		Role:     policy.RoleMember,
	}
	if err := h.db.Create(&user).Error; err != nil {
		if h.logger != nil {
			h.logger.Error("create user failed", slog.String("email", email), slog.String("error", err.Error()))
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "create user failed"})
		return
	}

	token, err := h.issueToken(user.ID, user.Role)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "sign token failed"})
		return
	}

	if h.logger != nil {
		h.logger.Info("user registered", slog.String("email", email))
	}
	c.JSON(http.StatusCreated, tokenResponse{Token: token, User: toUserResponse(&user)})
}

// Login 校验用户并返回 JWT。对同一来源 IP 做令牌桶限流。
func (h *Handler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	email := strings.TrimSpace(strings.ToLower(req.Email))

	if h.limiter != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		err := h.limiter.Acquire(ctx, c.ClientIP())
		cancel()
		if errors.Is(err, ratelimit.ErrRateLimitTimeout) {
			c.JSON(http.StatusTooManyRequests, gin.H{"error": "too many attempts"})
			return
		}
		if err != nil && h.logger != nil {
			// 限流器故障不阻断登录，只记录
			h.logger.Warn("login rate limit failed", slog.String("error", err.Error()))
		}
	}

	var user model.User
	if err := h.db.Where("email = ?", email).First(&user).Error; err != nil {
		metrics.LoginFailureTotal.Inc()
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
		return
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(req.Password)); err != nil {
		metrics.LoginFailureTotal.Inc()
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
		return
	}

	if user.IsBlocked {
		c.JSON(http.StatusForbidden, gin.H{"error": "account blocked, contact admin"})
		return
	}

	token, err := h.issueToken(user.ID, user.Role)
	if err != nil {
		if h.logger != nil {
			h.logger.Error("sign token failed", slog.String("email", email), slog.String("error", err.Error()))
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "sign token failed"})
		return
	}

	if h.logger != nil {
		h.logger.Info("user logged in", slog.String("email", email), slog.String("role", user.Role))
	}
	c.JSON(http.StatusOK, tokenResponse{Token: token, User: toUserResponse(&user)})
}

// Logout 将当前令牌加入注销名单，直到其自然过期。
func (h *Handler) Logout(c *gin.Context) {
	tokenStr := c.GetString(middleware.CtxToken)
	if tokenStr == "" {
		c.JSON(http.StatusOK, gin.H{"message": "logged out"})
		return
	}

	ttl := h.tokenTTL
	if v, ok := c.Get(middleware.CtxTokenExp); ok {
		if exp, ok := v.(time.Time); ok && !exp.IsZero() {
			ttl = time.Until(exp)
		}
	}

	if err := h.revoked.Revoke(c.Request.Context(), tokenStr, ttl); err != nil {
		if h.logger != nil {
			h.logger.Error("revoke token failed", slog.String("error", err.Error()))
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "logout failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "logged out"})
}

// ForgotPassword 签发一次性重置令牌并发送邮件。
//
// 无论邮箱是否存在都返回同样的提示，避免用户枚举。
func (h *Handler) ForgotPassword(c *gin.Context) {
	var req struct {
		Email string `json:"email" binding:"required,email"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	email := strings.TrimSpace(strings.ToLower(req.Email))

	const okMessage = "if the email exists, a reset link has been sent"

	var user model.User
	if err := h.db.Where("email = ?", email).First(&user).Error; err != nil {
		c.JSON(http.StatusOK, gin.H{"message": okMessage})
		return
	}

	// 签发或发信失败也返回同样的提示，失败细节只进日志
	token, err := h.resetTokens.Issue(c.Request.Context(), user.ID)
	if err != nil {
		if h.logger != nil {
			h.logger.Error("issue reset token failed", slog.String("email", email), slog.String("error", err.Error()))
		}
		c.JSON(http.StatusOK, gin.H{"message": okMessage})
		return
	}

	resetURL := h.baseURL + "/reset-password/" + token
	if err := h.mailer.SendPasswordReset(user.Email, resetURL); err != nil {
		if h.logger != nil {
			h.logger.Warn("send reset email failed", slog.String("email", email), slog.String("error", err.Error()))
		}
		c.JSON(http.StatusOK, gin.H{"message": okMessage})
		return
	}

	if h.logger != nil {
		h.logger.Info("reset email sent", slog.String("email", email))
	}
	c.JSON(http.StatusOK, gin.H{"message": okMessage})
}

// ResetPassword 消费重置令牌并设置新密码。
func (h *Handler) ResetPassword(c *gin.Context) {
	var req struct {
		Password string `json:"password" binding:"required,min=6"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	userID, err := h.resetTokens.Consume(c.Request.Context(), c.Param("token"))
	if errors.Is(err, tokenstore.ErrTokenInvalid) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired token"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "reset failed"})
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "hash password failed"})
		return
	}

	if err := h.db.Model(&model.User{}).Where("id = ?", userID).Update("password", string(hash)).Error; err != nil {
		if h.logger != nil {
			h.logger.Error("reset password failed", slog.Uint64("user_id", uint64(userID)), slog.String("error", err.Error()))
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "reset failed"})
		return
	}

	if h.logger != nil {
		h.logger.Info("password reset", slog.Uint64("user_id", uint64(userID)))
	}
	c.JSON(http.StatusOK, gin.H{"message": "password updated"})
}

// ListUsers 返回全部用户，管理员专用。
func (h *Handler) ListUsers(c *gin.Context) {
	var users []model.User
	if err := h.db.Order("created_at DESC").Find(&users).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list users failed"})
		return
	}

	out := make([]userResponse, 0, len(users))
	for i := range users {
		out = append(out, toUserResponse(&users[i]))
	}
	c.JSON(http.StatusOK, out)
}

type blockRequest struct {
	Reason string `json:"reason"`
}

// ToggleBlock 切换用户封禁状态，管理员专用。
//
// PUT /auth/users/:id/block
func (h *Handler) ToggleBlock(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user id"})
		return
	}

	var req blockRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	var user model.User
	if err := h.db.First(&user, uint(id)).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query user failed"})
		return
	}

	updates := map[string]interface{}{
		"is_blocked":   !user.IsBlocked,
		"block_reason": "",
	}
	if !user.IsBlocked {
		updates["block_reason"] = strings.TrimSpace(req.Reason)
	}

	if err := h.db.Model(&model.User{}).Where("id = ?", user.ID).Updates(updates).Error; err != nil {
		if h.logger != nil {
			h.logger.Error("toggle block failed", slog.Uint64("user_id", id), slog.String("error", err.Error()))
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "update user failed"})
		return
	}

	user.IsBlocked = !user.IsBlocked
	user.BlockReason = updates["block_reason"].(string)
	if h.logger != nil {
		h.logger.Info("user block toggled",
			slog.Uint64("user_id", id),
			slog.Bool("blocked", user.IsBlocked),
		)
	}
	c.JSON(http.StatusOK, toUserResponse(&user))
}

func (h *Handler) issueToken(userID uint, role string) (string, error) {
	claims := customClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatUint(uint64(userID), 10),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(h.tokenTTL)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
		Role: role,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(h.jwtSecret)
}
