package notify

import (
	"context"
	"fmt"
	"strings"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"google.golang.org/api/option"

	"github.com/flossyai/dental-ai-platform/pkg/logging"
)

// PushSender delivers a notification to one device token.
type PushSender interface {
	SendPush(ctx context.Context, token, title, body string) error
}

// FCMSender sends push notifications through Firebase Cloud Messaging.
// Appointment reminders and the /send endpoint both go through it.
type FCMSender struct {
	client *messaging.Client
	logger *logging.Logger
}

// NewFCMSender initializes the Firebase app and its messaging client.
func NewFCMSender(ctx context.Context, credentialsFile string, logger *logging.Logger) (*FCMSender, error) {
	if logger == nil {
		logger = logging.Default()
	}

	var opts []option.ClientOption
	if strings.TrimSpace(credentialsFile) != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}

	app, err := firebase.NewApp(ctx, nil, opts...)
	if err != nil {
		return nil, fmt.Errorf("notify: initialize firebase app: %w", err)
	}

	client, err := app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("notify: create messaging client: %w", err)
	}

	return &FCMSender{client: client, logger: logger}, nil
}

// SendPush delivers one notification.
func (s *FCMSender) SendPush(ctx context.Context, token, title, body string) error {
	if strings.TrimSpace(token) == "" {
		return fmt.Errorf("notify: device token required")
	}

	id, err := s.client.Send(ctx, &messaging.Message{
		Notification: &messaging.Notification{
			Title: title,
			Body:  body,
		},
		Token: token,
	})
	if err != nil {
		s.logger.Error("fcm send failed", "error", err)
		return fmt.Errorf("notify: fcm send failed: %w", err)
	}

	s.logger.Info("push notification sent", "message_id", id)
	return nil
}

// StubPushSender logs instead of sending, for tests and local runs without
// Firebase credentials.
type StubPushSender struct {
	logger *logging.Logger
}

// NewStubPushSender creates the stub.
func NewStubPushSender(logger *logging.Logger) *StubPushSender {
	if logger == nil {
		logger = logging.Default()
	}
	return &StubPushSender{logger: logger}
}

// SendPush logs the notification but doesn't send it.
func (s *StubPushSender) SendPush(_ context.Context, token, title, _ string) error {
	s.logger.Info("stub push sender: would send notification", "token", token, "title", title)
	return nil
}
