package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"log/slog"

	"qaboard/internal/api/auth"
	"qaboard/internal/api/middleware"
	"qaboard/internal/config"
	"qaboard/internal/model"
	"qaboard/internal/pkg/metrics"
	"qaboard/internal/pkg/notify"
	"qaboard/internal/pkg/ratelimit"
	"qaboard/internal/pkg/tokenstore"
	"qaboard/internal/policy"
	"qaboard/internal/store"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"
)

// Server 封装了 API 服务所需的依赖和路由处理。
//
// 它持有数据库连接、Redis 客户端以及 Gin 路由引擎。
// 业务处理器通过 QuestionStore / AnswerStore 接口访问存储，
// 便于在测试中替换为 mock。
type Server struct {
	cfg       *config.Config
	logger    *slog.Logger
	db        *gorm.DB
	rdb       *redis.Client
	router    *gin.Engine
	auth      *auth.Handler
	questions QuestionStore
	answers   AnswerStore
}

// QuestionStore 是提问存储的最小接口。
type QuestionStore interface {
	ListPublic(ctx context.Context) ([]model.Question, error)
	ListAll(ctx context.Context) ([]model.Question, error)
	ListByOwner(ctx context.Context, userID uint) ([]model.Question, error)
	Get(ctx context.Context, id uint) (*model.Question, error)
	Create(ctx context.Context, question *model.Question) error
	Update(ctx context.Context, id uint, updates map[string]interface{}) (*model.Question, error)
	DeleteCascade(ctx context.Context, id uint) error
}

// AnswerStore 是回答存储的最小接口。
type AnswerStore interface {
	Get(ctx context.Context, id uint) (*model.Answer, error)
	Create(ctx context.Context, answer *model.Answer) error
	Update(ctx context.Context, id uint, updates map[string]interface{}) (*model.Answer, error)
	Delete(ctx context.Context, id uint) error
	Accept(ctx context.Context, id uint) (*model.Answer, error)
}

// NewServer 初始化 API 服务器。
//
// 它负责：
// 1. 连接 MySQL 数据库并执行自动迁移
// 2. 连接 Redis
// 3. 初始化 Gin 路由引擎与各处理器
//
// 参数:
//
//	ctx: 上下文
//	cfg: 配置对象
//	logger: 日志记录器
//
// 返回值:
//
//	*Server: 初始化完成的服务器实例
//	error: 初始化失败返回错误
func NewServer(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Server, error) {
	db, err := gorm.Open(mysql.Open(cfg.MySQL.DSN), &gorm.Config{
		Logger: gormLogger.Default.LogMode(gormLogger.Silent), // 关闭GORM调试日志
	})
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&model.User{}, &model.Question{}, &model.Answer{}); err != nil {
		return nil, err
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       0,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	metrics.InitMetrics()

	mailer := notify.NewEmailNotifier(&cfg.Email, logger)
	resetTokens := tokenstore.NewResetTokens(rdb, cfg.App.ResetTokenTTL)
	revoked := tokenstore.NewRevocationList(rdb)
	loginLimiter := ratelimit.NewRedisRateLimiter(rdb, logger, "qaboard:ratelimit:login", cfg.App.RateLimit, cfg.App.RateBurst)

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestLogger(logger))

	s := &Server{
		cfg:    cfg,
		logger: logger,
		db:     db,
		rdb:    rdb,
		router: r,
		auth: auth.NewHandler(
			db,
			cfg.Security.JWTSecret,
			cfg.App.TokenTTL,
			cfg.App.BaseURL,
			mailer,
			resetTokens,
			revoked,
			loginLimiter,
			logger,
		),
		questions: store.NewQuestions(db),
		answers:   store.NewAnswers(db),
	}
	s.registerRoutes(revoked)
	return s, nil
}

// Router 返回 HTTP 路由处理器。
func (s *Server) Router() http.Handler {
	return s.router
}

// Close 关闭数据库与缓存连接。
func (s *Server) Close() error {
	var firstErr error
	if s.rdb != nil {
		if err := s.rdb.Close(); err != nil {
			firstErr = err
		}
	}
	if s.db != nil {
		sqlDB, err := s.db.DB()
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
		} else {
			if closeErr := sqlDB.Close(); closeErr != nil {
				if firstErr == nil {
					firstErr = closeErr
				}
			}
		}
	}
	return firstErr
}

// registerRoutes 注册所有的 API 路由。
func (s *Server) registerRoutes(revoked *tokenstore.RevocationList) {
	// Prometheus metrics 端点
	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	s.router.GET("/healthz", s.handleHealthz)

	s.router.POST("/auth/register", s.auth.Register)
	s.router.POST("/auth/login", s.auth.Login)
	s.router.POST("/auth/forgot-password", s.auth.ForgotPassword)
	s.router.POST("/auth/reset-password/:token", s.auth.ResetPassword)

	// 公开提问列表无需登录
	s.router.GET("/questions/public", s.handleListPublicQuestions)

	authed := s.router.Group("/")
	authed.Use(middleware.AuthMiddleware(s.db, revoked, s.cfg.Security.JWTSecret))

	authed.POST("/auth/logout", s.auth.Logout)
	authed.GET("/auth/users", middleware.AdminOnly(), s.auth.ListUsers)
	authed.PUT("/auth/users/:id/block", middleware.AdminOnly(), s.auth.ToggleBlock)

	authed.GET("/questions", middleware.AdminOnly(), s.handleListAllQuestions)
	authed.GET("/questions/my-questions", s.handleListMyQuestions)
	authed.GET("/questions/:id", s.handleGetQuestion)
	authed.POST("/questions", s.handleCreateQuestion)
	authed.PUT("/questions/:id", s.handleUpdateQuestion)
	authed.DELETE("/questions/:id", s.handleDeleteQuestion)
	authed.DELETE("/questions/admin/:id", middleware.AdminOnly(), s.handleForceDeleteQuestion)

	authed.POST("/answers/:questionId", s.handleCreateAnswer)
	authed.PUT("/answers/:id", middleware.AdminOnly(), s.handleUpdateAnswer)
	authed.DELETE("/answers/:id", middleware.AdminOnly(), s.handleDeleteAnswer)
	authed.PATCH("/answers/:id/accept", s.handleAcceptAnswer)
}

func (s *Server) handleHealthz(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	if s.db == nil || s.rdb == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "error"})
		return
	}

	var one int
	if err := s.db.WithContext(ctx).Raw("SELECT 1").Scan(&one).Error; err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "error"})
		return
	}
	if err := s.rdb.Ping(ctx).Err(); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// getIdentity 取出 AuthMiddleware 写入的身份信息。
func getIdentity(c *gin.Context) policy.Identity {
	val, ok := c.Get(middleware.CtxIdentity)
	if !ok {
		return policy.Identity{}
	}
	identity, ok := val.(policy.Identity)
	if !ok {
		return policy.Identity{}
	}
	return identity
}

// parseIDParam 解析路径中的数字 ID；非法 ID 视同不存在。
func parseIDParam(c *gin.Context, name string) (uint, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 32)
	if err != nil || id == 0 {
		return 0, false
	}
	return uint(id), true
}
