package app

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/kishan11111/GujaratClassified-sub001/internal/auth"
	"github.com/kishan11111/GujaratClassified-sub001/internal/config"
	"github.com/kishan11111/GujaratClassified-sub001/internal/db"
	apihttp "github.com/kishan11111/GujaratClassified-sub001/internal/http"
	"github.com/kishan11111/GujaratClassified-sub001/internal/http/handlers"
	"github.com/kishan11111/GujaratClassified-sub001/internal/middleware"
	"github.com/kishan11111/GujaratClassified-sub001/internal/repo"
	"github.com/kishan11111/GujaratClassified-sub001/internal/sms"
)

// App is the wired API: stores, services and the HTTP handler built from a Config.
type App struct {
	Handler http.Handler
	DB      *sql.DB

	otp      *auth.OTPService
	limiters []*middleware.RateLimiter
	redis    *redis.Client
	logger   *logrus.Logger
}

type stores struct {
	codes     repo.OtpRepo
	users     repo.UserRepo
	admins    repo.AdminRepo
	locations repo.LocationRepo
	sessions  repo.RefreshRepo
	tickets   repo.TicketStore
}

// New opens the configured backends and builds the router. With migrate set, pending
// migrations run before anything is served.
func New(ctx context.Context, cfg *config.Config, logger *logrus.Logger, migrate bool) (*App, error) {
	a := &App{logger: logger}

	var st stores
	var health handlers.Pinger

	switch cfg.StoreDriver {
	case config.StoreDriverMemory:
		st = memoryStores(logger)
		logger.Warn("using in-memory stores; data is lost on restart")
	default:
		database, err := db.Open(ctx, cfg.DatabaseURL, logger)
		if err != nil {
			return nil, err
		}
		a.DB = database
		health = database
		if migrate {
			if err := db.MigrateUp(ctx, database); err != nil {
				a.Close()
				return nil, err
			}
			logger.Info("migrations applied")
		}
		st = stores{
			codes:     repo.NewOtpRepo(database),
			users:     repo.NewUserRepo(database),
			admins:    repo.NewAdminRepo(database),
			locations: repo.NewLocationRepo(database),
			sessions:  repo.NewRefreshRepo(database),
		}
	}

	tickets, err := a.ticketStore(ctx, cfg)
	if err != nil {
		a.Close()
		return nil, err
	}
	st.tickets = tickets

	jwtSvc, err := auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.Issuer, cfg.JWT.Audience, cfg.JWT.AccessTTL)
	if err != nil {
		a.Close()
		return nil, err
	}

	a.otp = auth.NewOTPService(auth.OTPConfig{
		Length:         cfg.OTP.Length,
		Expiry:         cfg.OTP.Expiry,
		MaxAttempts:    cfg.OTP.MaxAttempts,
		ResendCooldown: cfg.OTP.ResendCooldown,
		HourlyLimit:    cfg.OTP.HourlyLimit,
		Salt:           cfg.OTP.Salt,
		SMSTimeout:     cfg.SMS.Timeout,
		DevMode:        cfg.DevMode,
	}, st.codes, st.users, smsSender(cfg, logger), logger)

	passwords, err := auth.NewPasswordHasher(cfg.Bcrypt)
	if err != nil {
		a.Close()
		return nil, err
	}

	tokens := auth.NewTokenIssuer(jwtSvc, st.sessions, cfg.JWT.RefreshTTL, logger)
	svc := auth.NewAuthService(
		a.otp,
		tokens,
		st.users,
		st.admins,
		st.locations,
		st.tickets,
		passwords,
		cfg.VerificationTicketTTL,
		logger,
	)

	limiters := apihttp.Limiters{
		SendOTP:   middleware.NewRateLimiter(10*time.Minute, 10),
		VerifyOTP: middleware.NewRateLimiter(10*time.Minute, 20),
		Login:     middleware.NewRateLimiter(10*time.Minute, 20),
	}
	a.limiters = []*middleware.RateLimiter{limiters.SendOTP, limiters.VerifyOTP, limiters.Login}

	a.Handler = apihttp.NewRouter(apihttp.RouterConfig{
		Auth:     handlers.NewAuthHandler(a.otp, svc, logger),
		Admin:    handlers.NewAdminHandler(svc, logger),
		Health:   handlers.NewHealthHandler(health),
		Tokens:   tokens,
		Limiters: limiters,
		Logger:   logger,
	})
	return a, nil
}

func (a *App) ticketStore(ctx context.Context, cfg *config.Config) (repo.TicketStore, error) {
	if cfg.RedisURL == "" {
		a.logger.Warn("REDIS_URL not set; verification tickets are kept in process memory")
		return repo.NewMemoryTicketStore(nil), nil
	}

	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_URL: %w", err)
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	a.redis = client
	a.logger.Info("redis connected")
	return repo.NewRedisTicketStore(client), nil
}

func smsSender(cfg *config.Config, logger *logrus.Logger) auth.SMSSender {
	if cfg.SMS.GatewayURL == "" {
		logger.Warn("SMS_GATEWAY_URL not set; OTP messages are only logged")
		return sms.NewLogSender(logger)
	}
	return sms.NewGatewayClient(cfg.SMS.GatewayURL, cfg.SMS.APIKey, cfg.SMS.SenderID, cfg.SMS.Timeout, logger)
}

// memoryStores seeds one district > taluka > village chain so registration works locally.
func memoryStores(logger *logrus.Logger) stores {
	locations := repo.NewMemoryLocationRepo()
	locations.AddVillage(1, 1, 1)
	logger.WithFields(logrus.Fields{"districtId": 1, "talukaId": 1, "villageId": 1}).
		Info("seeded in-memory location")

	return stores{
		codes:     repo.NewMemoryOtpRepo(),
		users:     repo.NewMemoryUserRepo(),
		admins:    repo.NewMemoryAdminRepo(),
		locations: locations,
		sessions:  repo.NewMemoryRefreshRepo(),
	}
}

// Close waits for in-flight SMS dispatches and releases every backend.
func (a *App) Close() {
	for _, rl := range a.limiters {
		rl.Stop()
	}
	if a.otp != nil {
		a.otp.Wait()
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.logger.WithError(err).Warn("closing redis")
		}
	}
	if a.DB != nil {
		if err := a.DB.Close(); err != nil {
			a.logger.WithError(err).Warn("closing database")
		}
	}
}
