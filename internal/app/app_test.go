package app

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kishan11111/GujaratClassified-sub001/internal/config"
)

func memoryConfig() *config.Config {
	return &config.Config{
		StoreDriver: config.StoreDriverMemory,
		DevMode:     true,
		JWT: config.JWTConfig{
			Secret:     "app-test-secret-at-least-32-bytes-long",
			Issuer:     "gujarat-classified",
			Audience:   "gujarat-classified-app",
			AccessTTL:  15 * time.Minute,
			RefreshTTL: time.Hour,
		},
		OTP: config.OTPConfig{
			Salt:           "salt",
			Length:         6,
			Expiry:         5 * time.Minute,
			MaxAttempts:    3,
			ResendCooldown: time.Minute,
			HourlyLimit:    5,
		},
		SMS:                   config.SMSConfig{Timeout: time.Second},
		Bcrypt:                4,
		VerificationTicketTTL: 10 * time.Minute,
	}
}

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func post(t *testing.T, h http.Handler, path string, body any) (int, map[string]any) {
	t.Helper()
	b, err := json.Marshal(body)
	require.NoError(t, err)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, path, bytes.NewReader(b)))

	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return rec.Code, out
}

func TestNew_MemoryStoresRegisterFlow(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := memoryConfig()
	cfg.RedisURL = "redis://" + mr.Addr()

	a, err := New(context.Background(), cfg, quietLogger(), false)
	require.NoError(t, err)
	t.Cleanup(a.Close)

	rec := httptest.NewRecorder()
	a.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	code, body := post(t, a.Handler, "/auth/send-otp", map[string]string{"mobile": "9876543210", "purpose": "REGISTER"})
	require.Equal(t, http.StatusOK, code, body)
	otp := body["data"].(map[string]any)["devOtp"].(string)

	code, body = post(t, a.Handler, "/auth/verify-otp", map[string]string{"mobile": "9876543210", "otp": otp, "purpose": "REGISTER"})
	require.Equal(t, http.StatusOK, code, body)
	ticket := body["data"].(map[string]any)["verificationToken"].(string)
	require.NotEmpty(t, ticket)

	// the ticket lives in redis
	assert.Len(t, mr.Keys(), 1)

	code, body = post(t, a.Handler, "/auth/register", map[string]any{
		"mobile":            "9876543210",
		"verificationToken": ticket,
		"firstName":         "Asha",
		"lastName":          "Patel",
		"districtId":        1,
		"talukaId":          1,
	})
	require.Equal(t, http.StatusCreated, code, body)
	assert.Empty(t, mr.Keys())
}

func TestNew_BadRedisURL(t *testing.T) {
	cfg := memoryConfig()
	cfg.RedisURL = "not-a-url"

	_, err := New(context.Background(), cfg, quietLogger(), false)
	assert.Error(t, err)
}

func TestNew_ShortSecret(t *testing.T) {
	cfg := memoryConfig()
	cfg.JWT.Secret = "short"

	_, err := New(context.Background(), cfg, quietLogger(), false)
	assert.Error(t, err)
}
