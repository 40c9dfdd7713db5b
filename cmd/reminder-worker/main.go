package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"

	"github.com/flossyai/dental-ai-platform/internal/appointments"
	"github.com/flossyai/dental-ai-platform/internal/config"
	"github.com/flossyai/dental-ai-platform/internal/identity"
	"github.com/flossyai/dental-ai-platform/internal/notify"
	"github.com/flossyai/dental-ai-platform/internal/reminders"
	"github.com/flossyai/dental-ai-platform/pkg/logging"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	logger := logging.New(cfg.LogLevel)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.DatabaseURL == "" {
		logger.Error("reminder worker requires DATABASE_URL")
		os.Exit(1)
	}

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to connect postgres", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	loc, err := time.LoadLocation(cfg.ClinicTimezone)
	if err != nil {
		logger.Warn("invalid clinic timezone, using UTC", "tz", cfg.ClinicTimezone)
		loc = time.UTC
	}

	apptRepo := appointments.NewRepository(pool, time.Duration(cfg.SlotDurationMinutes)*time.Minute)
	usersRepo := identity.NewRepository(pool)

	var push notify.PushSender
	if fcm, err := notify.NewFCMSender(ctx, cfg.FirebaseCredentialsFile, logger); err != nil {
		logger.Warn("firebase unavailable, using stub push sender", "error", err)
		push = notify.NewStubPushSender(logger)
	} else {
		push = fcm
	}

	var email notify.EmailSender
	if cfg.SendGridAPIKey != "" {
		email = notify.NewSendGridSender(notify.SendGridConfig{
			APIKey:    cfg.SendGridAPIKey,
			FromEmail: cfg.SendGridFromEmail,
			FromName:  cfg.SendGridFromName,
		}, logger)
	} else {
		email = notify.NewStubEmailSender(logger)
	}
	mailer := notify.NewDaySheetMailer(email, cfg.SendGridFromName, loc, logger)

	worker := reminders.New(apptRepo, push, mailer, usersRepo, logger.WithComponent("reminders")).
		WithInterval(cfg.ReminderInterval).
		WithLeadTime(cfg.ReminderLeadTime).
		WithDaySheetHour(cfg.DaySheetSendHour).
		WithLocation(loc)

	go worker.Start(ctx)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	logger.Info("reminder worker shutting down")
	cancel()
	time.Sleep(2 * time.Second)
}
