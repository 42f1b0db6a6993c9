package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/Aarizkhan-lorem/HDNotes/internal/api/auth"
	"github.com/Aarizkhan-lorem/HDNotes/internal/api/middleware"
	"github.com/Aarizkhan-lorem/HDNotes/internal/api/response"
	"github.com/Aarizkhan-lorem/HDNotes/internal/config"
	"github.com/Aarizkhan-lorem/HDNotes/internal/model"
	"github.com/Aarizkhan-lorem/HDNotes/internal/pkg/cache"
	"github.com/Aarizkhan-lorem/HDNotes/internal/pkg/metrics"
	"github.com/Aarizkhan-lorem/HDNotes/internal/pkg/notify"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"
)

// Server 封装了 API 服务所需的依赖和路由处理。
//
// 它持有数据库连接、Redis 客户端、认证处理器以及 Gin 路由引擎。
type Server struct {
	cfg        *config.Config
	logger     *slog.Logger
	db         *gorm.DB
	rdb        *redis.Client
	router     *gin.Engine
	auth       *auth.Handler
	notes      NoteStore
	statsCache *cache.StatsCache
}

// NewServer 初始化 API 服务器。
//
// 它负责：
// 1. 连接 MySQL 数据库并执行自动迁移
// 2. 连接 Redis
// 3. 初始化邮件通知器与认证处理器
// 4. 初始化 Gin 路由引擎
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
	if err := db.AutoMigrate(&model.User{}, &model.Note{}); err != nil {
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

	mailer := notify.NewEmailNotifier(&cfg.Email, cfg.App.FrontendURL, logger)
	users := auth.NewDBUserStore(db)

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestLogger(logger))
	r.Use(cors.New(cors.Config{
		AllowOrigins:     []string{cfg.App.FrontendURL},
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		AllowCredentials: true,
	}))

	s := &Server{
		cfg:        cfg,
		logger:     logger,
		db:         db,
		rdb:        rdb,
		router:     r,
		auth:       auth.NewHandler(users, cfg.Security.JWTSecret, mailer, logger),
		notes:      NewDBNoteStore(db),
		statsCache: cache.NewStatsCache(rdb, cfg.App.StatsCacheTTL),
	}
	s.registerRoutes(users)
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
func (s *Server) registerRoutes(users middleware.UserFinder) {
	// Prometheus metrics 端点
	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := s.router.Group("/api")
	api.GET("/health", s.handleHealth)
	api.GET("", s.handleIndex)

	authGroup := api.Group("/auth")
	authGroup.POST("/register", s.auth.Register)
	authGroup.POST("/verify-otp", s.auth.VerifyOTP)
	authGroup.POST("/login", s.auth.Login)
	authGroup.POST("/resend-otp", s.auth.ResendOTP)

	authed := authGroup.Group("")
	authed.Use(middleware.AuthMiddleware(s.cfg.Security.JWTSecret, users))
	authed.GET("/me", s.auth.Me)
	authed.POST("/logout", s.auth.Logout)

	notes := api.Group("/notes")
	notes.Use(middleware.AuthMiddleware(s.cfg.Security.JWTSecret, users))
	notes.GET("", s.handleListNotes)
	notes.POST("", s.handleCreateNote)
	notes.GET("/stats", s.handleNotesStats)
	notes.GET("/:id", s.handleGetNote)
	notes.PUT("/:id", s.handleUpdateNote)
	notes.DELETE("/:id", s.handleDeleteNote)

	// /api 下未匹配的路由返回统一的 404 信封
	s.router.NoRoute(func(c *gin.Context) {
		response.Fail(c, http.StatusNotFound, "Route "+c.Request.URL.Path+" not found", "Not Found")
	})
}

func (s *Server) handleHealth(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	if s.db != nil {
		var one int
		if err := s.db.WithContext(ctx).Raw("SELECT 1").Scan(&one).Error; err != nil {
			response.Fail(c, http.StatusServiceUnavailable, "HD Notes Server is unhealthy", "Database unreachable")
			return
		}
	}
	if s.rdb != nil {
		if err := s.rdb.Ping(ctx).Err(); err != nil {
			response.Fail(c, http.StatusServiceUnavailable, "HD Notes Server is unhealthy", "Redis unreachable")
			return
		}
	}

	response.OK(c, http.StatusOK, "HD Notes Server is Up and Running! 🚀", gin.H{
		"timestamp":   time.Now().UTC().Format(time.RFC3339),
		"version":     "1.0.0",
		"environment": s.cfg.App.Env,
	})
}

func (s *Server) handleIndex(c *gin.Context) {
	response.OK(c, http.StatusOK, "HD Notes API v1.0.0", gin.H{
		"endpoints": gin.H{
			"auth": gin.H{
				"register":  "POST /api/auth/register",
				"verifyOtp": "POST /api/auth/verify-otp",
				"login":     "POST /api/auth/login",
				"logout":    "POST /api/auth/logout",
				"me":        "GET /api/auth/me",
				"resendOtp": "POST /api/auth/resend-otp",
			},
			"notes": gin.H{
				"getAllNotes": "GET /api/notes",
				"createNote":  "POST /api/notes",
				"getNote":     "GET /api/notes/:id",
				"updateNote":  "PUT /api/notes/:id",
				"deleteNote":  "DELETE /api/notes/:id",
				"getStats":    "GET /api/notes/stats",
			},
		},
		"authentication": "Bearer Token required for protected routes",
		"documentation":  "Visit /api/health for server status",
	})
}
