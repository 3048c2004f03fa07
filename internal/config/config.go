package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"
)

const (
	StoreDriverPostgres = "postgres"
	StoreDriverMemory   = "memory"
)

// Config holds the application configuration
type Config struct {
	Port        string
	DatabaseURL string
	StoreDriver string
	RedisURL    string
	LogLevel    string
	DevMode     bool

	JWT   JWTConfig
	OTP   OTPConfig
	SMS   SMSConfig
	Bcrypt int

	VerificationTicketTTL time.Duration
}

// JWTConfig is handed to the token issuer as a value; nothing reads it globally.
type JWTConfig struct {
	Secret     string
	Issuer     string
	Audience   string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

type OTPConfig struct {
	Salt           string
	Length         int
	Expiry         time.Duration
	MaxAttempts    int
	ResendCooldown time.Duration
	HourlyLimit    int
}

type SMSConfig struct {
	GatewayURL string
	APIKey     string
	SenderID   string
	Timeout    time.Duration
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	return load(os.Getenv)
}

func load(getenv func(string) string) (*Config, error) {
	p := parser{getenv: getenv}

	cfg := &Config{
		Port:        p.str("PORT", "8080"),
		DatabaseURL: strings.TrimSpace(getenv("DATABASE_URL")),
		StoreDriver: strings.ToLower(p.str("STORE_DRIVER", StoreDriverPostgres)),
		RedisURL:    strings.TrimSpace(getenv("REDIS_URL")),
		LogLevel:    p.str("LOG_LEVEL", "info"),
		DevMode:     p.boolean("DEV_MODE", false),
		JWT: JWTConfig{
			Secret:     getenv("JWT_SECRET"),
			Issuer:     p.str("JWT_ISSUER", "gujarat-classified"),
			Audience:   p.str("JWT_AUDIENCE", "gujarat-classified-app"),
			AccessTTL:  p.duration("ACCESS_TOKEN_TTL", 15*time.Minute),
			RefreshTTL: p.duration("REFRESH_TOKEN_TTL", 720*time.Hour),
		},
		OTP: OTPConfig{
			Salt:           getenv("OTP_SALT"),
			Length:         p.integer("OTP_LENGTH", 6),
			Expiry:         p.duration("OTP_EXPIRY", 5*time.Minute),
			MaxAttempts:    p.integer("OTP_MAX_ATTEMPTS", 3),
			ResendCooldown: p.duration("OTP_RESEND_COOLDOWN", 60*time.Second),
			HourlyLimit:    p.integer("OTP_HOURLY_LIMIT", 5),
		},
		SMS: SMSConfig{
			GatewayURL: strings.TrimSpace(getenv("SMS_GATEWAY_URL")),
			APIKey:     getenv("SMS_API_KEY"),
			SenderID:   p.str("SMS_SENDER_ID", "GJCLSF"),
			Timeout:    p.duration("SMS_TIMEOUT", 5*time.Second),
		},
		Bcrypt:                p.integer("BCRYPT_COST", 0),
		VerificationTicketTTL: p.duration("VERIFICATION_TICKET_TTL", 10*time.Minute),
	}

	if p.err != nil {
		return nil, p.err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.StoreDriver {
	case StoreDriverPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL environment variable is required")
		}
		if _, err := url.Parse(c.DatabaseURL); err != nil {
			return fmt.Errorf("invalid DATABASE_URL: %w", err)
		}
	case StoreDriverMemory:
	default:
		return fmt.Errorf("STORE_DRIVER must be %q or %q", StoreDriverPostgres, StoreDriverMemory)
	}

	if c.JWT.Secret == "" {
		return fmt.Errorf("JWT_SECRET environment variable is required")
	}
	if len(c.JWT.Secret) < 32 {
		return fmt.Errorf("JWT_SECRET must be at least 32 bytes")
	}
	if c.OTP.Salt == "" {
		return fmt.Errorf("OTP_SALT environment variable is required")
	}
	if c.OTP.Length < 4 || c.OTP.Length > 8 {
		return fmt.Errorf("OTP_LENGTH must be between 4 and 8")
	}
	if c.OTP.MaxAttempts < 1 {
		return fmt.Errorf("OTP_MAX_ATTEMPTS must be positive")
	}
	if c.OTP.Expiry <= 0 || c.JWT.AccessTTL <= 0 || c.JWT.RefreshTTL <= 0 || c.VerificationTicketTTL <= 0 {
		return fmt.Errorf("token and otp lifetimes must be positive")
	}
	// 0 selects bcrypt.DefaultCost
	if c.Bcrypt != 0 && (c.Bcrypt < bcrypt.MinCost || c.Bcrypt > bcrypt.MaxCost) {
		return fmt.Errorf("BCRYPT_COST must be between %d and %d", bcrypt.MinCost, bcrypt.MaxCost)
	}
	return nil
}

// parser records the first malformed variable.
type parser struct {
	getenv func(string) string
	err    error
}

func (p *parser) str(key, def string) string {
	if v := strings.TrimSpace(p.getenv(key)); v != "" {
		return v
	}
	return def
}

func (p *parser) integer(key string, def int) int {
	v := strings.TrimSpace(p.getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil && p.err == nil {
		p.err = fmt.Errorf("%s: invalid integer %q", key, v)
	}
	return n
}

func (p *parser) duration(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(p.getenv(key))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil && p.err == nil {
		p.err = fmt.Errorf("%s: invalid duration %q", key, v)
	}
	return d
}

func (p *parser) boolean(key string, def bool) bool {
	v := strings.TrimSpace(p.getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil && p.err == nil {
		p.err = fmt.Errorf("%s: invalid boolean %q", key, v)
	}
	return b
}
