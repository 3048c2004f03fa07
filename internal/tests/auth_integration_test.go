package tests

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kishan11111/GujaratClassified-sub001/internal/app"
	"github.com/kishan11111/GujaratClassified-sub001/internal/config"
)

func TestMain(m *testing.M) {
	// Do NOT set DATABASE_URL; integration tests skip if missing.
	defaults := map[string]string{
		"STORE_DRIVER": "postgres",
		"JWT_SECRET":   "test-jwt-secret-at-least-32-characters-long",
		"OTP_SALT":     "test-otp-salt",
		"DEV_MODE":     "true",
		"BCRYPT_COST":  "4",
	}
	for k, v := range defaults {
		if os.Getenv(k) == "" {
			os.Setenv(k, v)
		}
	}

	os.Exit(m.Run())
}

// testServer holds the server and DB for integration tests
type testServer struct {
	Server *httptest.Server
	App    *app.App
}

// newTestServer wires the full app against DATABASE_URL with a clean auth schema.
// Each caller gets fresh in-process rate limiters.
func newTestServer(t *testing.T, mutate ...func(*config.Config)) *testServer {
	t.Helper()
	if os.Getenv("DATABASE_URL") == "" {
		t.Skip("DATABASE_URL not set; skipping integration test")
	}

	cfg, err := config.Load()
	require.NoError(t, err, "config load must succeed for integration test")
	for _, m := range mutate {
		m(cfg)
	}

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	ctx := context.Background()
	a, err := app.New(ctx, cfg, logger, true)
	require.NoError(t, err, "app must start; check DATABASE_URL and that test DB exists")
	t.Cleanup(a.Close)

	require.NoError(t, TruncateAuthTables(ctx, a.DB))
	require.NoError(t, SeedFixtures(ctx, a.DB))

	server := httptest.NewServer(a.Handler)
	t.Cleanup(server.Close)

	return &testServer{Server: server, App: a}
}

type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Errors  map[string]any  `json:"errors"`
}

func (s *testServer) call(t *testing.T, method, path, bearer string, body any) (int, envelope) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, s.Server.URL+path, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := s.Server.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw := readBody(resp)
	var env envelope
	if raw != "" {
		require.NoError(t, json.Unmarshal([]byte(raw), &env), raw)
	}
	return resp.StatusCode, env
}

func (s *testServer) post(t *testing.T, path string, body any) (int, envelope) {
	t.Helper()
	return s.call(t, http.MethodPost, path, "", body)
}

func data[T any](t *testing.T, env envelope) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(env.Data, &v))
	return v
}

type sendOTPData struct {
	DevOTP    string `json:"devOtp"`
	CanResend bool   `json:"canResend"`
}

type verifyData struct {
	VerificationToken string `json:"verificationToken"`
	IsNewUser         bool   `json:"isNewUser"`
}

type sessionData struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	TokenType    string `json:"tokenType"`
	IsNewUser    bool   `json:"isNewUser"`
	User         struct {
		ID     string `json:"id"`
		Mobile string `json:"mobile"`
	} `json:"user"`
}

func (s *testServer) sendOTP(t *testing.T, mobile, purpose string) string {
	t.Helper()
	status, env := s.post(t, "/auth/send-otp", map[string]string{"mobile": mobile, "purpose": purpose})
	require.Equal(t, http.StatusOK, status, env.Message)
	otp := data[sendOTPData](t, env).DevOTP
	require.NotEmpty(t, otp, "devOtp must be present when DEV_MODE=true")
	return otp
}

func (s *testServer) verify(t *testing.T, mobile, otp, purpose string) (int, envelope) {
	t.Helper()
	return s.post(t, "/auth/verify-otp", map[string]string{"mobile": mobile, "otp": otp, "purpose": purpose})
}

// register runs send-otp, verify-otp and register for mobile and returns the session.
func (s *testServer) register(t *testing.T, mobile, password string) sessionData {
	t.Helper()
	otp := s.sendOTP(t, mobile, "REGISTER")
	status, env := s.verify(t, mobile, otp, "REGISTER")
	require.Equal(t, http.StatusOK, status, env.Message)
	ticket := data[verifyData](t, env).VerificationToken

	status, env = s.post(t, "/auth/register", map[string]any{
		"mobile":            mobile,
		"verificationToken": ticket,
		"firstName":         "Ravi",
		"lastName":          "Shah",
		"password":          password,
		"districtId":        SeedDistrictID,
		"talukaId":          SeedTalukaID,
		"villageId":         SeedVillageID,
	})
	require.Equal(t, http.StatusCreated, status, env.Message)
	return data[sessionData](t, env)
}

const testMobile = "9876543210"

func TestAuthIntegration_Health(t *testing.T) {
	ts := newTestServer(t)

	resp, err := ts.Server.Client().Get(ts.Server.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode, "GET /health must return 200")
	var body map[string]bool
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.True(t, body["ok"])
}

func TestAuthIntegration_NewCodeSupersedesOld(t *testing.T) {
	ts := newTestServer(t, func(c *config.Config) { c.OTP.ResendCooldown = 0 })

	first := ts.sendOTP(t, testMobile, "REGISTER")
	second := ts.sendOTP(t, testMobile, "REGISTER")

	if first != second {
		status, _ := ts.verify(t, testMobile, first, "REGISTER")
		assert.Equal(t, http.StatusBadRequest, status, "superseded code must not verify")
	}
	status, env := ts.verify(t, testMobile, second, "REGISTER")
	assert.Equal(t, http.StatusOK, status, env.Message)
}

func TestAuthIntegration_ResendCooldown(t *testing.T) {
	ts := newTestServer(t)

	ts.sendOTP(t, testMobile, "REGISTER")
	status, env := ts.post(t, "/auth/send-otp", map[string]string{"mobile": testMobile, "purpose": "REGISTER"})
	assert.Equal(t, http.StatusTooManyRequests, status, env.Message)
	assert.NotNil(t, env.Errors["retryAfter"])
}

func TestAuthIntegration_WrongCodeBurnsAfterMaxAttempts(t *testing.T) {
	ts := newTestServer(t)
	otp := ts.sendOTP(t, testMobile, "REGISTER")
	wrong := "000000"
	if otp == wrong {
		wrong = "111111"
	}

	for want := 2; want >= 1; want-- {
		status, env := ts.verify(t, testMobile, wrong, "REGISTER")
		require.Equal(t, http.StatusBadRequest, status)
		assert.EqualValues(t, want, env.Errors["remainingAttempts"])
	}
	status, _ := ts.verify(t, testMobile, wrong, "REGISTER")
	require.Equal(t, http.StatusBadRequest, status)

	status, env := ts.verify(t, testMobile, otp, "REGISTER")
	assert.Equal(t, http.StatusBadRequest, status, "the right code after the limit must fail: %s", env.Message)
}

func TestAuthIntegration_RegisterAndDuplicate(t *testing.T) {
	ts := newTestServer(t)

	sess := ts.register(t, testMobile, "secret123")
	assert.True(t, sess.IsNewUser)
	assert.Equal(t, testMobile, sess.User.Mobile)
	assert.Equal(t, "Bearer", sess.TokenType)

	status, env := ts.call(t, http.MethodGet, "/auth/me", sess.AccessToken, nil)
	assert.Equal(t, http.StatusOK, status, env.Message)

	status, env = ts.post(t, "/auth/send-otp", map[string]string{"mobile": testMobile, "purpose": "REGISTER"})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Contains(t, env.Message, "already registered")
}

func TestAuthIntegration_RefreshRotationAndReuse(t *testing.T) {
	ts := newTestServer(t)
	sess := ts.register(t, testMobile, "secret123")

	status, env := ts.post(t, "/auth/refresh-token", map[string]string{"refreshToken": sess.RefreshToken})
	require.Equal(t, http.StatusOK, status, env.Message)
	rotated := data[sessionData](t, env)
	require.NotEqual(t, sess.RefreshToken, rotated.RefreshToken)

	status, env = ts.call(t, http.MethodGet, "/auth/me", rotated.AccessToken, nil)
	assert.Equal(t, http.StatusOK, status, env.Message)

	// replaying the rotated-away token revokes the whole family
	status, _ = ts.post(t, "/auth/refresh-token", map[string]string{"refreshToken": sess.RefreshToken})
	assert.Equal(t, http.StatusUnauthorized, status)

	status, _ = ts.post(t, "/auth/refresh-token", map[string]string{"refreshToken": rotated.RefreshToken})
	assert.Equal(t, http.StatusUnauthorized, status, "descendant token must be revoked after reuse")

	var active int
	require.NoError(t, ts.App.DB.QueryRow(
		`SELECT COUNT(*) FROM refresh_sessions WHERE revoked_at IS NULL`).Scan(&active))
	assert.Zero(t, active)
}

func TestAuthIntegration_LoginSingleSession(t *testing.T) {
	ts := newTestServer(t)
	first := ts.register(t, testMobile, "secret123")

	status, env := ts.post(t, "/auth/login", map[string]string{"mobile": testMobile, "password": "secret123"})
	require.Equal(t, http.StatusOK, status, env.Message)
	second := data[sessionData](t, env)
	assert.False(t, second.IsNewUser)

	status, _ = ts.post(t, "/auth/refresh-token", map[string]string{"refreshToken": first.RefreshToken})
	assert.Equal(t, http.StatusUnauthorized, status, "a new login replaces the previous session")

	status, env = ts.post(t, "/auth/login", map[string]string{"mobile": testMobile, "password": "wrong-pass"})
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "invalid mobile number or password", env.Message)
}

func TestAuthIntegration_AdminLogin(t *testing.T) {
	ts := newTestServer(t)

	status, env := ts.post(t, "/admin/auth/login", map[string]string{
		"email":    SeedAdminEmail,
		"password": SeedAdminPassword,
	})
	require.Equal(t, http.StatusOK, status, env.Message)
	sess := data[sessionData](t, env)

	status, env = ts.call(t, http.MethodGet, "/admin/auth/me", sess.AccessToken, nil)
	assert.Equal(t, http.StatusOK, status, env.Message)

	status, _ = ts.call(t, http.MethodGet, "/auth/me", sess.AccessToken, nil)
	assert.Equal(t, http.StatusForbidden, status, "admin token must not open user routes")
}

func TestAuthIntegration_ProductionModeHidesCode(t *testing.T) {
	ts := newTestServer(t, func(c *config.Config) { c.DevMode = false })

	status, env := ts.post(t, "/auth/send-otp", map[string]string{"mobile": testMobile, "purpose": "REGISTER"})
	require.Equal(t, http.StatusOK, status, env.Message)
	assert.Empty(t, data[sendOTPData](t, env).DevOTP, "devOtp must not be exposed when DEV_MODE=false")
}

// readBody reads and returns the response body (consumes it).
func readBody(resp *http.Response) string {
	if resp == nil || resp.Body == nil {
		return ""
	}
	b, _ := io.ReadAll(resp.Body)
	return string(b)
}
