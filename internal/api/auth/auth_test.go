package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Aarizkhan-lorem/HDNotes/internal/model"
	"github.com/Aarizkhan-lorem/HDNotes/internal/pkg/metrics"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

type mockUserStore struct {
	byEmail     map[string]model.User
	nextID      uint
	createCalls int
	saveCalls   int
}

func newMockUserStore() *mockUserStore {
	return &mockUserStore{
		byEmail: map[string]model.User{},
		nextID:  1,
	}
}

func (m *mockUserStore) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	u, ok := m.byEmail[email]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	copy := u
	return &copy, nil
}

func (m *mockUserStore) FindByID(ctx context.Context, id uint) (*model.User, error) {
	for _, u := range m.byEmail {
		if u.ID == id {
			copy := u
			return &copy, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *mockUserStore) Create(ctx context.Context, user *model.User) error {
	m.createCalls++
	user.ID = m.nextID
	m.nextID++
	m.byEmail[user.Email] = *user
	return nil
}

func (m *mockUserStore) Save(ctx context.Context, user *model.User) error {
	m.saveCalls++
	m.byEmail[user.Email] = *user
	return nil
}

type mockMailer struct {
	otpCalls     int
	welcomeCalls int
	lastOTPCode  string
	otpErr       error
	welcomeErr   error
}

func (m *mockMailer) SendOTPEmail(toEmail, name, code string) error {
	m.otpCalls++
	m.lastOTPCode = code
	return m.otpErr
}

func (m *mockMailer) SendWelcomeEmail(toEmail, name string) error {
	m.welcomeCalls++
	return m.welcomeErr
}

type envelope struct {
	Success bool           `json:"success"`
	Message string         `json:"message"`
	Data    map[string]any `json:"data"`
	Error   string         `json:"error"`
}

const testSecret = "test-secret"

func newTestHandler() (*Handler, *mockUserStore, *mockMailer) {
	metrics.InitMetrics()
	store := newMockUserStore()
	mailer := &mockMailer{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewHandler(store, testSecret, mailer, logger), store, mailer
}

func newAuthRouter(h *Handler) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/api/auth/register", h.Register)
	r.POST("/api/auth/verify-otp", h.VerifyOTP)
	r.POST("/api/auth/login", h.Login)
	r.POST("/api/auth/resend-otp", h.ResendOTP)
	return r
}

func postJSON(t *testing.T, r *gin.Engine, path string, body any) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	payload, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal body: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var resp envelope
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response %q: %v", w.Body.String(), err)
	}
	return w, resp
}

// seedUser 预置一个用户，otpCode 非空时带未完成的验证码。
func seedUser(t *testing.T, store *mockUserStore, email, password string, verified bool, otpCode string) model.User {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	user := model.User{
		ID:          store.nextID,
		Name:        "Test User",
		Email:       email,
		Password:    string(hash),
		DateOfBirth: time.Date(2000, 1, 2, 0, 0, 0, 0, time.UTC),
		IsVerified:  verified,
		CreatedAt:   time.Now(),
	}
	store.nextID++
	if otpCode != "" {
		exp := time.Now().Add(otpTTL)
		user.VerifyTokenHash = hashOTP(otpCode)
		user.VerifyTokenExpiresAt = &exp
	}
	store.byEmail[email] = user
	return user
}

func TestRegister_NewUser(t *testing.T) {
	h, store, mailer := newTestHandler()
	r := newAuthRouter(h)

	w, resp := postJSON(t, r, "/api/auth/register", gin.H{
		"name":        "Alice",
		"email":       "a@x.com",
		"dateOfBirth": "1999-05-20",
		"password":    "secret123",
	})

	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d (%s)", w.Code, w.Body.String())
	}
	if !resp.Success {
		t.Fatalf("expected success envelope")
	}
	if store.createCalls != 1 {
		t.Fatalf("expected one create, got %d", store.createCalls)
	}
	if mailer.otpCalls != 1 {
		t.Fatalf("expected otp email, got %d calls", mailer.otpCalls)
	}

	user := store.byEmail["a@x.com"]
	if user.IsVerified {
		t.Fatalf("new user must start unverified")
	}
	if user.VerifyTokenHash == "" {
		t.Fatalf("expected outstanding otp hash")
	}
	if user.VerifyTokenHash == mailer.lastOTPCode {
		t.Fatalf("plaintext code must not be persisted")
	}
	if user.VerifyTokenHash != hashOTP(mailer.lastOTPCode) {
		t.Fatalf("stored hash must be the digest of the sent code")
	}
	if user.VerifyTokenExpiresAt == nil || time.Until(*user.VerifyTokenExpiresAt) > otpTTL {
		t.Fatalf("expected bounded otp expiry")
	}
}

func TestRegister_DuplicateEmail(t *testing.T) {
	h, store, _ := newTestHandler()
	seedUser(t, store, "a@x.com", "secret123", false, "")
	r := newAuthRouter(h)

	w, resp := postJSON(t, r, "/api/auth/register", gin.H{
		"name":        "Alice",
		"email":       "a@x.com",
		"dateOfBirth": "1999-05-20",
		"password":    "secret123",
	})

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
	if resp.Error != "Email already registered" {
		t.Fatalf("unexpected error: %q", resp.Error)
	}
	if store.createCalls != 0 {
		t.Fatalf("duplicate register must not create")
	}
}

func TestRegister_EmailFailureSwallowed(t *testing.T) {
	h, store, mailer := newTestHandler()
	mailer.otpErr = io.ErrClosedPipe
	r := newAuthRouter(h)

	w, _ := postJSON(t, r, "/api/auth/register", gin.H{
		"name":        "Bob",
		"email":       "b@x.com",
		"dateOfBirth": "1990-01-01",
		"password":    "secret123",
	})

	if w.Code != http.StatusCreated {
		t.Fatalf("notification failure must not fail registration, got %d", w.Code)
	}
	if store.createCalls != 1 {
		t.Fatalf("expected user created")
	}
}

func TestRegister_InvalidBody(t *testing.T) {
	h, _, _ := newTestHandler()
	r := newAuthRouter(h)

	w, _ := postJSON(t, r, "/api/auth/register", gin.H{
		"name":  "NoPassword",
		"email": "c@x.com",
	})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}

	w, _ = postJSON(t, r, "/api/auth/register", gin.H{
		"name":        "BadDate",
		"email":       "c@x.com",
		"dateOfBirth": "20-05-1999",
		"password":    "secret123",
	})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad date, got %d", w.Code)
	}
}

func TestVerifyOTP_SuccessThenReplayRejected(t *testing.T) {
	h, store, mailer := newTestHandler()
	seedUser(t, store, "a@x.com", "secret123", false, "123456")
	r := newAuthRouter(h)

	w, resp := postJSON(t, r, "/api/auth/verify-otp", gin.H{
		"email": "a@x.com",
		"otp":   "123456",
	})

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", w.Code, w.Body.String())
	}
	token, _ := resp.Data["token"].(string)
	if token == "" {
		t.Fatalf("expected session token in response")
	}
	if mailer.welcomeCalls != 1 {
		t.Fatalf("expected welcome email")
	}

	user := store.byEmail["a@x.com"]
	if !user.IsVerified {
		t.Fatalf("expected user verified")
	}
	if user.VerifyTokenHash != "" || user.VerifyTokenExpiresAt != nil {
		t.Fatalf("otp hash must be cleared on verification")
	}

	// 同一验证码不可重复使用
	w, _ = postJSON(t, r, "/api/auth/verify-otp", gin.H{
		"email": "a@x.com",
		"otp":   "123456",
	})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected replay rejection, got %d", w.Code)
	}
	if !store.byEmail["a@x.com"].IsVerified {
		t.Fatalf("verified state must not regress")
	}
}

func TestVerifyOTP_WrongCodeNoMutation(t *testing.T) {
	h, store, _ := newTestHandler()
	seedUser(t, store, "a@x.com", "secret123", false, "123456")
	saves := store.saveCalls
	r := newAuthRouter(h)

	w, resp := postJSON(t, r, "/api/auth/verify-otp", gin.H{
		"email": "a@x.com",
		"otp":   "000000",
	})

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
	if resp.Message != "Invalid or expired OTP" {
		t.Fatalf("unexpected message: %q", resp.Message)
	}
	if store.saveCalls != saves {
		t.Fatalf("wrong otp must not mutate state")
	}
	if store.byEmail["a@x.com"].IsVerified {
		t.Fatalf("user must remain unverified")
	}
}

func TestVerifyOTP_Expired(t *testing.T) {
	h, store, _ := newTestHandler()
	user := seedUser(t, store, "a@x.com", "secret123", false, "123456")
	past := time.Now().Add(-time.Minute)
	user.VerifyTokenExpiresAt = &past
	store.byEmail[user.Email] = user
	r := newAuthRouter(h)

	w, _ := postJSON(t, r, "/api/auth/verify-otp", gin.H{
		"email": "a@x.com",
		"otp":   "123456",
	})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected expired code rejection, got %d", w.Code)
	}
	if store.byEmail["a@x.com"].IsVerified {
		t.Fatalf("expired code must not verify")
	}
}

func TestLogin_Verified(t *testing.T) {
	h, store, _ := newTestHandler()
	seeded := seedUser(t, store, "a@x.com", "secret123", true, "")
	r := newAuthRouter(h)

	w, resp := postJSON(t, r, "/api/auth/login", gin.H{
		"email":    "a@x.com",
		"password": "secret123",
	})

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", w.Code, w.Body.String())
	}
	token, _ := resp.Data["token"].(string)
	if token == "" {
		t.Fatalf("expected token")
	}

	claims, err := parseWith(t, token, []byte(testSecret))
	if err != nil {
		t.Fatalf("token must verify: %v", err)
	}
	if claims.Subject != "1" {
		t.Fatalf("token must bind to account id %d, got subject %q", seeded.ID, claims.Subject)
	}
}

func TestLogin_BadCredentialsIndistinguishable(t *testing.T) {
	h, store, _ := newTestHandler()
	seedUser(t, store, "a@x.com", "secret123", true, "")
	r := newAuthRouter(h)

	wUnknown, respUnknown := postJSON(t, r, "/api/auth/login", gin.H{
		"email":    "nobody@x.com",
		"password": "secret123",
	})
	wWrong, respWrong := postJSON(t, r, "/api/auth/login", gin.H{
		"email":    "a@x.com",
		"password": "wrong-password",
	})

	if wUnknown.Code != http.StatusUnauthorized || wWrong.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401/401, got %d/%d", wUnknown.Code, wWrong.Code)
	}
	if respUnknown.Message != respWrong.Message || respUnknown.Error != respWrong.Error {
		t.Fatalf("unknown email and wrong password must be indistinguishable: %+v vs %+v", respUnknown, respWrong)
	}
}

func TestLogin_UnverifiedIssuesNewCode(t *testing.T) {
	h, store, mailer := newTestHandler()
	seedUser(t, store, "a@x.com", "secret123", false, "111111")
	oldHash := store.byEmail["a@x.com"].VerifyTokenHash
	r := newAuthRouter(h)

	w, resp := postJSON(t, r, "/api/auth/login", gin.H{
		"email":    "a@x.com",
		"password": "secret123",
	})

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
	if _, ok := resp.Data["token"]; ok {
		t.Fatalf("unverified login must not issue a token")
	}
	if rv, _ := resp.Data["requiresVerification"].(bool); !rv {
		t.Fatalf("expected requiresVerification flag, got %+v", resp.Data)
	}
	if mailer.otpCalls != 1 {
		t.Fatalf("expected new otp email")
	}

	user := store.byEmail["a@x.com"]
	if user.VerifyTokenHash == oldHash {
		t.Fatalf("login must overwrite the outstanding otp hash")
	}
	// 旧验证码随覆盖作废
	if otpMatches(user.VerifyTokenHash, "111111") {
		t.Fatalf("superseded code must be invalid")
	}
	if user.VerifyTokenHash != hashOTP(mailer.lastOTPCode) {
		t.Fatalf("stored hash must match the newly sent code")
	}
}

func TestLogin_UnverifiedMailFailureStillResponds(t *testing.T) {
	h, store, mailer := newTestHandler()
	seedUser(t, store, "a@x.com", "secret123", false, "")
	mailer.otpErr = io.ErrClosedPipe
	r := newAuthRouter(h)

	w, resp := postJSON(t, r, "/api/auth/login", gin.H{
		"email":    "a@x.com",
		"password": "secret123",
	})

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("mail failure must not change the verification response, got %d", w.Code)
	}
	if rv, _ := resp.Data["requiresVerification"].(bool); !rv {
		t.Fatalf("expected requiresVerification flag")
	}
	if store.byEmail["a@x.com"].VerifyTokenHash == "" {
		t.Fatalf("code must be stored even when the email fails")
	}
}

func TestResendOTP_UnknownEmail(t *testing.T) {
	h, _, _ := newTestHandler()
	r := newAuthRouter(h)

	w, _ := postJSON(t, r, "/api/auth/resend-otp", gin.H{"email": "nobody@x.com"})
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}

func TestResendOTP_AlreadyVerified(t *testing.T) {
	h, store, mailer := newTestHandler()
	seedUser(t, store, "a@x.com", "secret123", true, "")
	saves := store.saveCalls
	r := newAuthRouter(h)

	w, resp := postJSON(t, r, "/api/auth/resend-otp", gin.H{"email": "a@x.com"})

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
	if resp.Error != "Already verified" {
		t.Fatalf("unexpected error: %q", resp.Error)
	}
	if store.saveCalls != saves {
		t.Fatalf("resend on verified account must not mutate")
	}
	if mailer.otpCalls != 0 {
		t.Fatalf("no email should be sent")
	}
}

func TestResendOTP_SendFailureSurfaced(t *testing.T) {
	h, store, mailer := newTestHandler()
	seedUser(t, store, "a@x.com", "secret123", false, "")
	mailer.otpErr = io.ErrClosedPipe
	r := newAuthRouter(h)

	w, resp := postJSON(t, r, "/api/auth/resend-otp", gin.H{"email": "a@x.com"})

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("resend must surface delivery failure, got %d", w.Code)
	}
	if resp.Error != "Email service error" {
		t.Fatalf("unexpected error: %q", resp.Error)
	}
}

func TestResendOTP_Success(t *testing.T) {
	h, store, mailer := newTestHandler()
	seedUser(t, store, "a@x.com", "secret123", false, "111111")
	r := newAuthRouter(h)

	w, resp := postJSON(t, r, "/api/auth/resend-otp", gin.H{"email": "a@x.com"})

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", w.Code, w.Body.String())
	}
	if email, _ := resp.Data["email"].(string); email != "a@x.com" {
		t.Fatalf("expected email echo, got %+v", resp.Data)
	}
	if mailer.otpCalls != 1 {
		t.Fatalf("expected one otp email")
	}
	if store.byEmail["a@x.com"].VerifyTokenHash != hashOTP(mailer.lastOTPCode) {
		t.Fatalf("stored hash must match the resent code")
	}
}
