package auth

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/kishan11111/GujaratClassified-sub001/internal/model"
	"github.com/kishan11111/GujaratClassified-sub001/internal/repo"
)

const testSecret = "test-secret-that-is-at-least-32-bytes-long"

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fakeSMS struct {
	mu       sync.Mutex
	messages []string
	fail     bool
}

func (f *fakeSMS) Send(_ context.Context, mobile, message string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return errors.New("gateway down")
	}
	f.messages = append(f.messages, mobile+": "+message)
	return nil
}

func (f *fakeSMS) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.messages)
}

type testEnv struct {
	clock     *testClock
	sms       *fakeSMS
	codes     *repo.MemoryOtpRepo
	users     *repo.MemoryUserRepo
	admins    *repo.MemoryAdminRepo
	locations *repo.MemoryLocationRepo
	sessions  *repo.MemoryRefreshRepo
	tickets   *repo.MemoryTicketStore
	otp       *OTPService
	tokens    *TokenIssuer
	svc       *AuthService
	passwords *PasswordHasher

	lastCode string
}

func testOTPConfig() OTPConfig {
	return OTPConfig{
		Length:         6,
		Expiry:         5 * time.Minute,
		MaxAttempts:    3,
		ResendCooldown: 60 * time.Second,
		HourlyLimit:    5,
		Salt:           "test-salt",
		SMSTimeout:     time.Second,
	}
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	return newTestEnvWith(t, testOTPConfig())
}

func newTestEnvWith(t *testing.T, cfg OTPConfig) *testEnv {
	t.Helper()

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	env := &testEnv{
		clock:     newTestClock(),
		sms:       &fakeSMS{},
		codes:     repo.NewMemoryOtpRepo(),
		users:     repo.NewMemoryUserRepo(),
		admins:    repo.NewMemoryAdminRepo(),
		locations: repo.NewMemoryLocationRepo(),
		sessions:  repo.NewMemoryRefreshRepo(),
	}
	passwords, err := NewPasswordHasher(bcrypt.MinCost)
	require.NoError(t, err)
	env.passwords = passwords
	env.tickets = repo.NewMemoryTicketStore(env.clock.Now)
	env.locations.AddVillage(1, 10, 100)

	env.otp = NewOTPService(cfg, env.codes, env.users, env.sms, logger)
	env.otp.now = env.clock.Now
	env.otp.generate = func(length int) (string, error) {
		code, err := generateOTPCode(length)
		env.lastCode = code
		return code, err
	}

	jwtSvc, err := NewJWTService(testSecret, "test-issuer", "test-audience", 15*time.Minute)
	require.NoError(t, err)
	jwtSvc.now = env.clock.Now

	env.tokens = NewTokenIssuer(jwtSvc, env.sessions, 30*24*time.Hour, logger)
	env.tokens.now = env.clock.Now

	env.svc = NewAuthService(env.otp, env.tokens, env.users, env.admins, env.locations, env.tickets,
		env.passwords, 10*time.Minute, logger)
	env.svc.now = env.clock.Now

	t.Cleanup(env.otp.Wait)
	return env
}

// send issues a code and returns its plaintext.
func (e *testEnv) send(t *testing.T, mobile string, purpose model.Purpose) string {
	t.Helper()
	_, err := e.otp.Send(context.Background(), SendRequest{Mobile: mobile, Purpose: purpose})
	require.NoError(t, err)
	return e.lastCode
}

func (e *testEnv) addUser(t *testing.T, mobile, password string) model.User {
	t.Helper()
	u := &model.User{
		Mobile:           mobile,
		FirstName:        "Ravi",
		LastName:         "Patel",
		DistrictID:       1,
		TalukaID:         10,
		IsMobileVerified: true,
		IsActive:         true,
	}
	if password != "" {
		hash, err := e.passwords.Hash(password)
		require.NoError(t, err)
		u.PasswordHash = &hash
	}
	require.NoError(t, e.users.Create(context.Background(), u))
	return *u
}

// wrongCode returns a code of the same length that differs from code.
func wrongCode(code string) string {
	b := []byte(code)
	if b[0] == '9' {
		b[0] = '0'
	} else {
		b[0]++
	}
	return string(b)
}
