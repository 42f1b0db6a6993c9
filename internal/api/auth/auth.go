package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/Aarizkhan-lorem/HDNotes/internal/api/response"
	"github.com/Aarizkhan-lorem/HDNotes/internal/model"
	"github.com/Aarizkhan-lorem/HDNotes/internal/pkg/metrics"
	"github.com/Aarizkhan-lorem/HDNotes/internal/pkg/notify"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// ContextUserKey 是认证中间件写入 gin 上下文的用户对象键。
const ContextUserKey = "authUser"

// Handler 提供注册、验证码校验与登录接口。
type Handler struct {
	users     UserStore
	mailer    notify.Notifier
	jwtSecret []byte
	logger    *slog.Logger
}

// NewHandler 创建 Auth Handler。
func NewHandler(users UserStore, jwtSecret string, mailer notify.Notifier, logger *slog.Logger) *Handler {
	return &Handler{
		users:     users,
		mailer:    mailer,
		jwtSecret: []byte(jwtSecret),
		logger:    logger,
	}
}

type registerRequest struct {
	Name        string `json:"name" binding:"required"`
	Email       string `json:"email" binding:"required,email"`
	DateOfBirth string `json:"dateOfBirth" binding:"required"`
	Password    string `json:"password" binding:"required,min=6"`
}

type verifyOTPRequest struct {
	Email string `json:"email" binding:"required,email"`
	OTP   string `json:"otp" binding:"required,len=6"`
}

type loginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type resendOTPRequest struct {
	Email string `json:"email" binding:"required,email"`
}

type userSummary struct {
	ID          uint   `json:"id"`
	Name        string `json:"name"`
	Email       string `json:"email"`
	DateOfBirth string `json:"dateOfBirth"`
	IsVerified  bool   `json:"isVerified"`
}

func summarize(user *model.User) userSummary {
	return userSummary{
		ID:          user.ID,
		Name:        user.Name,
		Email:       user.Email,
		DateOfBirth: user.DateOfBirth.Format("2006-01-02"),
		IsVerified:  user.IsVerified,
	}
}

// Register 创建新用户并发送验证码邮件。
//
// POST /api/auth/register
func (h *Handler) Register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Fail(c, http.StatusBadRequest, "Invalid request body", err.Error())
		return
	}

	email := strings.TrimSpace(req.Email)
	_, err := h.users.FindByEmail(c.Request.Context(), email)
	if err == nil {
		metrics.AuthOperationsTotal.WithLabelValues("register", "rejected").Inc()
		response.Fail(c, http.StatusBadRequest, "User already exists with this email", "Email already registered")
		return
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		h.logger.Error("query user failed", slog.String("email", email), slog.String("error", err.Error()))
		metrics.AuthOperationsTotal.WithLabelValues("register", "error").Inc()
		response.Fail(c, http.StatusInternalServerError, "Registration failed", "Server error")
		return
	}

	dob, err := time.Parse("2006-01-02", req.DateOfBirth)
	if err != nil {
		response.Fail(c, http.StatusBadRequest, "Invalid request body", "Invalid dateOfBirth format, expected YYYY-MM-DD")
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		metrics.AuthOperationsTotal.WithLabelValues("register", "error").Inc()
		response.Fail(c, http.StatusInternalServerError, "Registration failed", "Server error")
		return
	}

	code, err := generateOTP()
	if err != nil {
		metrics.AuthOperationsTotal.WithLabelValues("register", "error").Inc()
		response.Fail(c, http.StatusInternalServerError, "Registration failed", "Server error")
		return
	}
	exp := time.Now().Add(otpTTL)
	user := model.User{
		Name:                 strings.TrimSpace(req.Name),
		Email:                email,
		Password:             string(hash),
		DateOfBirth:          dob,
		VerifyTokenHash:      hashOTP(code),
		VerifyTokenExpiresAt: &exp,
	}
	if err := h.users.Create(c.Request.Context(), &user); err != nil {
		h.logger.Error("create user failed", slog.String("email", email), slog.String("error", err.Error()))
		metrics.AuthOperationsTotal.WithLabelValues("register", "error").Inc()
		response.Fail(c, http.StatusInternalServerError, "Registration failed", "Server error")
		return
	}

	// 状态先落库，邮件失败不影响注册结果
	if err := h.mailer.SendOTPEmail(user.Email, user.Name, code); err != nil {
		h.logger.Warn("send verification email failed", slog.String("email", email), slog.String("error", err.Error()))
	}

	h.logger.Info("user registered", slog.String("email", email))
	metrics.AuthOperationsTotal.WithLabelValues("register", "ok").Inc()
	response.OK(c, http.StatusCreated, "Registration successful! Please check your email for verification code.", gin.H{
		"email":      user.Email,
		"name":       user.Name,
		"isVerified": user.IsVerified,
	})
}

// VerifyOTP 校验验证码并签发会话凭证。
//
// POST /api/auth/verify-otp
func (h *Handler) VerifyOTP(c *gin.Context) {
	var req verifyOTPRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Fail(c, http.StatusBadRequest, "Invalid request body", err.Error())
		return
	}

	email := strings.TrimSpace(req.Email)
	user, err := h.users.FindByEmail(c.Request.Context(), email)
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			h.logger.Error("query user failed", slog.String("email", email), slog.String("error", err.Error()))
		}
		metrics.AuthOperationsTotal.WithLabelValues("verify", "rejected").Inc()
		response.Fail(c, http.StatusBadRequest, "Invalid or expired OTP", "OTP verification failed")
		return
	}

	// 验证失败不产生任何状态变更
	if !otpMatches(user.VerifyTokenHash, strings.TrimSpace(req.OTP)) {
		metrics.AuthOperationsTotal.WithLabelValues("verify", "rejected").Inc()
		response.Fail(c, http.StatusBadRequest, "Invalid or expired OTP", "OTP verification failed")
		return
	}
	if user.VerifyTokenExpiresAt == nil || time.Now().After(*user.VerifyTokenExpiresAt) {
		metrics.AuthOperationsTotal.WithLabelValues("verify", "rejected").Inc()
		response.Fail(c, http.StatusBadRequest, "Invalid or expired OTP", "OTP verification failed")
		return
	}

	user.IsVerified = true
	user.VerifyTokenHash = ""
	user.VerifyTokenExpiresAt = nil
	if err := h.users.Save(c.Request.Context(), user); err != nil {
		h.logger.Error("save user failed", slog.String("email", email), slog.String("error", err.Error()))
		metrics.AuthOperationsTotal.WithLabelValues("verify", "error").Inc()
		response.Fail(c, http.StatusInternalServerError, "OTP verification failed", "Server error")
		return
	}

	if err := h.mailer.SendWelcomeEmail(user.Email, user.Name); err != nil {
		h.logger.Warn("send welcome email failed", slog.String("email", email), slog.String("error", err.Error()))
	}

	token, err := IssueToken(user.ID, h.jwtSecret)
	if err != nil {
		h.logger.Error("sign token failed", slog.String("email", email), slog.String("error", err.Error()))
		metrics.AuthOperationsTotal.WithLabelValues("verify", "error").Inc()
		response.Fail(c, http.StatusInternalServerError, "OTP verification failed", "Server error")
		return
	}

	h.logger.Info("email verified", slog.String("email", email))
	metrics.AuthOperationsTotal.WithLabelValues("verify", "ok").Inc()
	response.OK(c, http.StatusOK, "Email verified successfully! Welcome to HD Notes.", gin.H{
		"token": token,
		"user":  summarize(user),
	})
}

// Login 校验用户凭证。
//
// 已验证用户返回 JWT；未验证用户收到新的验证码并被要求先完成验证。
//
// POST /api/auth/login
func (h *Handler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Fail(c, http.StatusBadRequest, "Please provide email and password", "Missing credentials")
		return
	}

	email := strings.TrimSpace(req.Email)
	user, err := h.users.FindByEmail(c.Request.Context(), email)
	if err != nil {
		// 未知邮箱与密码错误对调用方不可区分，细节只进日志
		if errors.Is(err, gorm.ErrRecordNotFound) {
			h.logger.Info("login rejected", slog.String("email", email), slog.String("reason", "unknown email"))
		} else {
			h.logger.Error("query user failed", slog.String("email", email), slog.String("error", err.Error()))
		}
		metrics.AuthOperationsTotal.WithLabelValues("login", "rejected").Inc()
		response.Fail(c, http.StatusUnauthorized, "Invalid credentials", "Invalid credentials")
		return
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(req.Password)); err != nil {
		h.logger.Info("login rejected", slog.String("email", email), slog.String("reason", "wrong password"))
		metrics.AuthOperationsTotal.WithLabelValues("login", "rejected").Inc()
		response.Fail(c, http.StatusUnauthorized, "Invalid credentials", "Invalid credentials")
		return
	}

	if !user.IsVerified {
		// 覆盖旧验证码（旧码随之失效），邮件失败不影响本次响应
		code, err := h.storeNewCode(c.Request.Context(), user)
		if err != nil {
			h.logger.Error("issue verification code failed", slog.String("email", email), slog.String("error", err.Error()))
			metrics.AuthOperationsTotal.WithLabelValues("login", "error").Inc()
			response.Fail(c, http.StatusInternalServerError, "Login failed", "Server error")
			return
		}
		if err := h.mailer.SendOTPEmail(user.Email, user.Name, code); err != nil {
			h.logger.Warn("send verification email failed", slog.String("email", email), slog.String("error", err.Error()))
		}
		metrics.AuthOperationsTotal.WithLabelValues("login", "rejected").Inc()
		response.FailWithData(c, http.StatusUnauthorized,
			"Please verify your email address. A new verification code has been sent.",
			"Account not verified",
			gin.H{"email": user.Email, "requiresVerification": true})
		return
	}

	token, err := IssueToken(user.ID, h.jwtSecret)
	if err != nil {
		h.logger.Error("sign token failed", slog.String("email", email), slog.String("error", err.Error()))
		metrics.AuthOperationsTotal.WithLabelValues("login", "error").Inc()
		response.Fail(c, http.StatusInternalServerError, "Login failed", "Server error")
		return
	}

	h.logger.Info("user logged in", slog.String("email", email))
	metrics.AuthOperationsTotal.WithLabelValues("login", "ok").Inc()
	response.OK(c, http.StatusOK, "Login successful", gin.H{
		"token": token,
		"user":  summarize(user),
	})
}

// ResendOTP 重新发送验证码。
//
// 这是唯一一个把邮件发送失败暴露给调用方的接口：本次请求的全部意义就是送达验证码。
//
// POST /api/auth/resend-otp
func (h *Handler) ResendOTP(c *gin.Context) {
	var req resendOTPRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Fail(c, http.StatusBadRequest, "Invalid request body", err.Error())
		return
	}

	email := strings.TrimSpace(req.Email)
	user, err := h.users.FindByEmail(c.Request.Context(), email)
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			h.logger.Error("query user failed", slog.String("email", email), slog.String("error", err.Error()))
		}
		metrics.AuthOperationsTotal.WithLabelValues("resend", "rejected").Inc()
		response.Fail(c, http.StatusNotFound, "User not found with this email", "User not found")
		return
	}
	if user.IsVerified {
		metrics.AuthOperationsTotal.WithLabelValues("resend", "rejected").Inc()
		response.Fail(c, http.StatusBadRequest, "Account is already verified", "Already verified")
		return
	}

	code, err := h.storeNewCode(c.Request.Context(), user)
	if err != nil {
		h.logger.Error("issue verification code failed", slog.String("email", email), slog.String("error", err.Error()))
		metrics.AuthOperationsTotal.WithLabelValues("resend", "error").Inc()
		response.Fail(c, http.StatusInternalServerError, "Failed to resend OTP", "Server error")
		return
	}
	if err := h.mailer.SendOTPEmail(user.Email, user.Name, code); err != nil {
		h.logger.Warn("send verification email failed", slog.String("email", email), slog.String("error", err.Error()))
		metrics.AuthOperationsTotal.WithLabelValues("resend", "error").Inc()
		response.Fail(c, http.StatusInternalServerError, "Failed to send verification email", "Email service error")
		return
	}

	h.logger.Info("verification code resent", slog.String("email", email))
	metrics.AuthOperationsTotal.WithLabelValues("resend", "ok").Inc()
	response.OK(c, http.StatusOK, "New verification code sent to your email", gin.H{
		"email": user.Email,
	})
}

// Me 返回当前登录用户信息。
//
// GET /api/auth/me
func (h *Handler) Me(c *gin.Context) {
	user := CurrentUser(c)
	if user == nil {
		response.Fail(c, http.StatusUnauthorized, "Not authorized to access this route", "No user in context")
		return
	}

	summary := summarize(user)
	response.OK(c, http.StatusOK, "User profile retrieved successfully", gin.H{
		"user": gin.H{
			"id":          summary.ID,
			"name":        summary.Name,
			"email":       summary.Email,
			"dateOfBirth": summary.DateOfBirth,
			"isVerified":  summary.IsVerified,
			"createdAt":   user.CreatedAt,
		},
	})
}

// Logout 处理注销请求（无状态 JWT，不做服务端失效）。
//
// POST /api/auth/logout
func (h *Handler) Logout(c *gin.Context) {
	response.OK(c, http.StatusOK, "Logged out successfully", nil)
}

// CurrentUser 读取认证中间件放入上下文的用户对象。
func CurrentUser(c *gin.Context) *model.User {
	v, ok := c.Get(ContextUserKey)
	if !ok {
		return nil
	}
	user, ok := v.(*model.User)
	if !ok {
		return nil
	}
	return user
}

// storeNewCode 生成新验证码并覆盖存储的哈希，返回明文验证码供调用方发送。
//
// 每个账户同一时刻只有一个有效验证码，新码落库即废弃旧码。
func (h *Handler) storeNewCode(ctx context.Context, user *model.User) (string, error) {
	code, err := generateOTP()
	if err != nil {
		return "", err
	}
	exp := time.Now().Add(otpTTL)
	user.VerifyTokenHash = hashOTP(code)
	user.VerifyTokenExpiresAt = &exp
	if err := h.users.Save(ctx, user); err != nil {
		return "", fmt.Errorf("save verification code: %w", err)
	}
	return code, nil
}
