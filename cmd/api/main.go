package main

import (
	"context"
	"crypto/rand"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/BradenHooton/authgate/internal/auth"
	"github.com/BradenHooton/authgate/internal/background"
	"github.com/BradenHooton/authgate/internal/config"
	"github.com/BradenHooton/authgate/internal/database"
	"github.com/BradenHooton/authgate/internal/handlers"
	middlewareCustom "github.com/BradenHooton/authgate/internal/middleware"
	"github.com/BradenHooton/authgate/internal/repositories"
	"github.com/BradenHooton/authgate/internal/routes"
	"github.com/BradenHooton/authgate/internal/services"
	pkghttp "github.com/BradenHooton/authgate/pkg/http"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"
)

// stores is the persistence backend selected by configuration
type stores struct {
	accounts    services.AccountStore
	codes       services.CodeStore
	credentials services.CredentialStore
	events      services.SecurityEventStore
	verify      services.EmailVerificationStore
	purger      background.Purger
	checks      []handlers.HealthCheck
	close       func()
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: parseLevel(cfg.Server.LogLevel)}))
	slog.SetDefault(logger)

	logger.Info("configuration loaded",
		slog.String("env", cfg.Server.Env),
		slog.String("store", cfg.Store),
	)

	clock := auth.SystemClock{}

	startupCtx, startupCancel := context.WithTimeout(context.Background(), 30*time.Second)
	st, err := openStores(startupCtx, cfg, clock, logger)
	startupCancel()
	if err != nil {
		logger.Error("failed to initialize stores", slog.Any("error", err))
		os.Exit(1)
	}
	defer st.close()

	// Email delivery: SES when a sender address is configured, log-only otherwise
	var sender services.EmailSender
	if cfg.Email.FromAddress != "" {
		sesCtx, sesCancel := context.WithTimeout(context.Background(), 10*time.Second)
		emailService, err := services.NewAWSSESEmailService(sesCtx, cfg.Email.AWSRegion, cfg.Email.FromAddress, cfg.Email.AppBaseURL, logger)
		sesCancel()
		if err != nil {
			logger.Error("failed to initialize email service", slog.Any("error", err))
			os.Exit(1)
		}
		sender = emailService
	} else {
		logger.Warn("EMAIL_FROM_ADDRESS not set, codes and verification links will only be logged")
		sender = services.NewLogEmailSender(logger)
	}

	tokenManager := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenExpiry, cfg.Auth.MFATokenExpiry, clock)

	totpManager, err := auth.NewTOTPManager(cfg.Auth.TOTPEncryptionKey, auth.TOTPConfig{
		Issuer: cfg.Auth.TOTPIssuer,
		Period: cfg.Auth.TOTPPeriod,
		Skew:   cfg.Auth.TOTPSkew,
	})
	if err != nil {
		logger.Error("failed to initialize TOTP manager", slog.Any("error", err))
		os.Exit(1)
	}

	timingDelay := auth.NewTimingDelay(auth.TimingConfig{
		BaseDelay:      cfg.Auth.TimingDelayBase,
		RandomDelay:    cfg.Auth.TimingDelayRandom,
		DelayOnSuccess: cfg.Auth.TimingDelayOnSuccess,
	})

	webauthnConfig := auth.WebAuthnConfig{
		RPID:         cfg.WebAuthn.RPID,
		RPName:       cfg.WebAuthn.RPName,
		Origin:       cfg.WebAuthn.Origin,
		ChallengeTTL: cfg.WebAuthn.ChallengeTTL,
	}

	// Initialize services
	riskGate := services.NewRiskGate(st.accounts, services.RiskPolicy{
		MaxAttempts:     cfg.Risk.MaxAttempts,
		LockoutDuration: cfg.Risk.LockoutDuration,
	}, clock, logger)
	auditService := services.NewAuditService(st.events, clock, logger)
	otpService := services.NewOTPService(st.codes, st.accounts, sender, totpManager, clock, rand.Reader, cfg.OTP.TTL, logger)
	passkeyService := services.NewPasskeyService(st.codes, st.credentials, webauthnConfig, clock, rand.Reader, logger)
	mfaService := services.NewMFAService(st.accounts, st.credentials, otpService, riskGate, totpManager, auditService, clock, logger)
	securityService := services.NewSecurityService(st.accounts, st.credentials)
	verificationService := services.NewEmailVerificationService(st.verify, st.accounts, sender, auditService, clock, rand.Reader, cfg.Email.VerificationTTL, logger)
	authService := services.NewAuthService(
		st.accounts,
		services.BcryptHasher{},
		riskGate,
		otpService,
		passkeyService,
		tokenManager,
		auditService,
		timingDelay,
		verificationService,
		clock,
		logger,
	)

	// Initialize handlers
	h := routes.Handlers{
		Auth:              handlers.NewAuthHandler(authService, webauthnConfig, logger),
		MFA:               handlers.NewMFAHandler(mfaService, logger),
		Passkey:           handlers.NewPasskeyHandler(passkeyService, auditService, logger),
		Account:           handlers.NewAccountHandler(securityService, auditService, logger),
		EmailVerification: handlers.NewEmailVerificationHandler(verificationService, logger),
		Health:            handlers.NewHealthHandler(st.checks...),
	}

	ipConfig := pkghttp.NewIPConfig(cfg.Server.TrustedProxies)

	// Client IPs come from ExtractClientIP, which only honours
	// X-Forwarded-For from trusted proxies, so chi's RealIP is not mounted.
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middlewareCustom.SecurityHeaders(middlewareCustom.SecurityHeadersConfig{Env: cfg.Server.Env}))
	router.Use(middlewareCustom.CORS(middlewareCustom.DefaultCORSConfig(cfg.Server.AllowedOrigins)))
	router.Use(middlewareCustom.SecureLogger(logger, ipConfig))
	router.Use(middleware.Recoverer)
	router.Use(middleware.Timeout(60 * time.Second))

	routes.RegisterRoutes(router, h, tokenManager, ipConfig)

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start cleanup task
	cleanupManager := background.NewCleanupManager(st.purger, verificationService, st.events, cfg.Cleanup.EventRetention, cfg.Cleanup.Interval, logger)
	cleanupCtx, cleanupCancel := context.WithCancel(context.Background())
	defer cleanupCancel()

	go cleanupManager.Start(cleanupCtx)

	go func() {
		logger.Info("starting server", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", slog.Any("error", err))
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutdown signal received")

	cleanupCancel()
	cleanupManager.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", slog.Any("error", err))
		return
	}

	logger.Info("server stopped gracefully")
}

// openStores builds the account, credential and event stores for the
// configured backend, and the code store on Redis when REDIS_ADDR is set.
func openStores(ctx context.Context, cfg *config.Config, clock auth.Clock, logger *slog.Logger) (*stores, error) {
	st := &stores{close: func() {}}
	var closers []func()

	if cfg.Store == config.StoreMemory {
		logger.Warn("using in-memory stores, state is lost on restart")
		st.accounts = repositories.NewMemoryAccountStore(clock)
		st.credentials = repositories.NewMemoryCredentialStore()
		st.events = repositories.NewMemorySecurityEventStore()
		st.verify = repositories.NewMemoryEmailVerificationStore()
	} else {
		db, err := database.NewConnection(ctx, &cfg.Database, logger)
		if err != nil {
			return nil, err
		}
		closers = append(closers, db.Close)

		st.accounts = repositories.NewAccountRepository(db)
		st.credentials = repositories.NewPasskeyRepository(db)
		st.events = repositories.NewSecurityEventRepository(db)
		st.verify = repositories.NewEmailVerificationRepository(db)
		st.checks = append(st.checks, handlers.HealthCheck{Name: "database", Check: db.HealthCheck})
	}

	if cfg.Redis.Addr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		codes := repositories.NewRedisCodeStore(client, clock, repositories.DefaultCodeGrace)
		if err := codes.Ping(ctx); err != nil {
			client.Close()
			for _, c := range closers {
				c()
			}
			return nil, err
		}
		closers = append(closers, func() { client.Close() })

		st.codes = codes
		st.checks = append(st.checks, handlers.HealthCheck{Name: "redis", Check: codes.Ping})
		logger.Info("redis code store connected", slog.String("addr", cfg.Redis.Addr))
	} else {
		memCodes := repositories.NewMemoryCodeStore(clock, repositories.DefaultCodeGrace)
		st.codes = memCodes
		st.purger = memCodes
	}

	st.close = func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	return st, nil
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
