package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/flossyai/dental-ai-platform/internal/api/router"
	"github.com/flossyai/dental-ai-platform/internal/appointments"
	appconfig "github.com/flossyai/dental-ai-platform/internal/config"
	"github.com/flossyai/dental-ai-platform/internal/conversation"
	"github.com/flossyai/dental-ai-platform/internal/http/handlers"
	"github.com/flossyai/dental-ai-platform/internal/identity"
	"github.com/flossyai/dental-ai-platform/internal/notify"
	"github.com/flossyai/dental-ai-platform/internal/observability/metrics"
	"github.com/flossyai/dental-ai-platform/internal/patients"
	"github.com/flossyai/dental-ai-platform/internal/redislock"
	"github.com/flossyai/dental-ai-platform/internal/scheduling"
	"github.com/flossyai/dental-ai-platform/internal/speech"
	"github.com/flossyai/dental-ai-platform/internal/voice"
	"github.com/flossyai/dental-ai-platform/internal/webchat"
	"github.com/flossyai/dental-ai-platform/pkg/logging"
)

func main() {
	_ = godotenv.Load()

	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)
	logger.Info("starting dental-ai-platform API server",
		"env", cfg.Env,
		"port", cfg.Port,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.DatabaseURL == "" {
		logger.Error("DATABASE_URL is required")
		os.Exit(1)
	}

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to connect postgres", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	})
	defer func() { _ = rdb.Close() }()
	locker := redislock.New(rdb, cfg.BookingLockTTL)

	reg := prometheus.NewRegistry()
	bookingMetrics := metrics.NewBookingMetrics(reg)
	convMetrics := metrics.NewConversationMetrics(reg)

	loc, err := time.LoadLocation(cfg.ClinicTimezone)
	if err != nil {
		logger.Warn("invalid clinic timezone, using UTC", "tz", cfg.ClinicTimezone)
		loc = time.UTC
	}

	cal := scheduling.DefaultCalendar()
	cal.OpeningHour = cfg.BusinessStartHour
	cal.ClosingHour = cfg.BusinessEndHour
	cal.SlotDuration = time.Duration(cfg.SlotDurationMinutes) * time.Minute
	cal.Horizon = time.Duration(cfg.SearchHorizonDays) * 24 * time.Hour
	cal.Location = loc

	apptRepo := appointments.NewRepository(pool, cal.SlotDuration)
	patientsRepo := patients.NewRepository(pool)
	usersRepo := identity.NewRepository(pool)

	booking := appointments.NewService(apptRepo, patientsRepo, cal, locker, bookingMetrics, logger, cfg.DefaultDoctorName, cfg.BookingMaxRetries)

	oracle, err := conversation.NewGeminiOracle(ctx, cfg.GeminiAPIKey, cfg.GeminiModelID)
	if err != nil {
		logger.Error("failed to create intent oracle", "error", err)
		os.Exit(1)
	}
	defer func() { _ = oracle.Close() }()

	director := conversation.NewDirector(oracle, booking, convMetrics, logger, cfg.OracleTimeout, loc)
	sessions := conversation.NewSessionStore(convMetrics)
	go sessions.SweepLoop(ctx, 5*time.Minute, cfg.SessionIdleTTL)

	recognizer, err := speech.NewGoogleRecognizer(ctx, cfg.GoogleCredentialsFile, cfg.SpeechSampleRateHertz, cfg.SpeechLanguageCode)
	if err != nil {
		logger.Error("failed to create speech recognizer", "error", err)
		os.Exit(1)
	}
	defer func() { _ = recognizer.Close() }()

	synthesizer, err := speech.NewGoogleSynthesizer(ctx, cfg.GoogleCredentialsFile, cfg.TTSVoiceName, cfg.SpeechSampleRateHertz, cfg.SpeechLanguageCode)
	if err != nil {
		logger.Error("failed to create speech synthesizer", "error", err)
		os.Exit(1)
	}

	var push notify.PushSender
	if fcm, err := notify.NewFCMSender(ctx, cfg.FirebaseCredentialsFile, logger); err != nil {
		logger.Warn("firebase unavailable, using stub push sender", "error", err)
		push = notify.NewStubPushSender(logger)
	} else {
		push = fcm
	}

	allowlist := identity.NewAllowlist(cfg.DentistAllowlist)
	apiHandler := handlers.New(usersRepo, patientsRepo, apptRepo, push, allowlist, logger)
	voiceHandler := voice.NewHandler(director, sessions, recognizer, synthesizer, cfg.SynthesisTimeout, logger.WithComponent("voice"))
	chatHandler := webchat.NewHandler(director, sessions, usersRepo, logger.WithComponent("webchat"))

	routerCfg := &router.Config{
		Logger:             logger,
		APIHandler:         apiHandler,
		WebchatHandler:     chatHandler,
		VoiceHandler:       voiceHandler,
		MetricsHandler:     promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		ClerkIssuer:        cfg.ClerkIssuer,
		EnableDebugRoutes:  cfg.Env != "production",
	}
	r := router.New(routerCfg)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}
