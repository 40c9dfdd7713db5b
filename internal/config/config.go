package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration
type Config struct {
	Port          string
	Env           string
	LogLevel      string
	DatabaseURL   string
	RedisAddr     string
	RedisPassword string

	// Clerk authentication
	ClerkIssuer      string
	DentistAllowlist []string

	// CORS
	CORSAllowedOrigins []string

	// Gemini intent oracle
	GeminiAPIKey  string
	GeminiModelID string
	OracleTimeout time.Duration

	// Google Speech-to-Text / Text-to-Speech
	GoogleCredentialsFile string
	SpeechSampleRateHertz int
	SpeechLanguageCode    string
	TTSVoiceName          string
	SynthesisTimeout      time.Duration

	// Firebase Cloud Messaging
	FirebaseCredentialsFile string

	// SendGrid day-sheet email
	SendGridAPIKey    string
	SendGridFromEmail string
	SendGridFromName  string

	// Clinic calendar
	BusinessStartHour   int
	BusinessEndHour     int
	SlotDurationMinutes int
	SearchHorizonDays   int
	ClinicTimezone      string
	DefaultDoctorName   string

	// Text chat sessions
	SessionIdleTTL time.Duration

	// Reminder worker
	ReminderLeadTime  time.Duration
	ReminderInterval  time.Duration
	DaySheetSendHour  int
	BookingLockTTL    time.Duration
	BookingMaxRetries int
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:          getEnv("PORT", "8080"),
		Env:           getEnv("ENV", "development"),
		LogLevel:      getEnv("LOG_LEVEL", "info"),
		DatabaseURL:   getEnv("DATABASE_URL", ""),
		RedisAddr:     getEnv("REDIS_ADDR", "redis:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),

		ClerkIssuer:      getEnv("CLERK_ISSUER", "https://meet-grouse-33.clerk.accounts.dev"),
		DentistAllowlist: getEnvAsList("DENTIST_ALLOWLIST", ""),

		CORSAllowedOrigins: getEnvAsList("CORS_ALLOWED_ORIGINS", "*"),

		GeminiAPIKey:  getEnv("GOOGLE_API_KEY", ""),
		GeminiModelID: getEnv("GEMINI_MODEL_ID", "gemini-2.5-flash"),
		OracleTimeout: getEnvAsDuration("ORACLE_TIMEOUT", 20*time.Second),

		GoogleCredentialsFile: getEnv("GOOGLE_APPLICATION_CREDENTIALS", ""),
		SpeechSampleRateHertz: getEnvAsInt("SPEECH_SAMPLE_RATE_HERTZ", 16000),
		SpeechLanguageCode:    getEnv("SPEECH_LANGUAGE_CODE", "en-US"),
		TTSVoiceName:          getEnv("TTS_VOICE_NAME", "en-US-Neural2-F"),
		SynthesisTimeout:      getEnvAsDuration("SYNTHESIS_TIMEOUT", 20*time.Second),

		FirebaseCredentialsFile: getEnv("FIREBASE_CREDENTIALS_FILE", "firebase_credentials.json"),

		SendGridAPIKey:    getEnv("SENDGRID_API_KEY", ""),
		SendGridFromEmail: getEnv("SENDGRID_FROM_EMAIL", ""),
		SendGridFromName:  getEnv("SENDGRID_FROM_NAME", "FlossyAI"),

		BusinessStartHour:   getEnvAsInt("BUSINESS_START_HOUR", 9),
		BusinessEndHour:     getEnvAsInt("BUSINESS_END_HOUR", 17),
		SlotDurationMinutes: getEnvAsInt("SLOT_DURATION_MINUTES", 30),
		SearchHorizonDays:   getEnvAsInt("SEARCH_HORIZON_DAYS", 30),
		ClinicTimezone:      getEnv("CLINIC_TIMEZONE", "UTC"),
		DefaultDoctorName:   getEnv("DEFAULT_DOCTOR_NAME", "Dr. Ava Sharma"),

		SessionIdleTTL: getEnvAsDuration("SESSION_IDLE_TTL", 30*time.Minute),

		ReminderLeadTime:  getEnvAsDuration("REMINDER_LEAD_TIME", 24*time.Hour),
		ReminderInterval:  getEnvAsDuration("REMINDER_INTERVAL", 15*time.Minute),
		DaySheetSendHour:  getEnvAsInt("DAY_SHEET_SEND_HOUR", 7),
		BookingLockTTL:    getEnvAsDuration("BOOKING_LOCK_TTL", 10*time.Second),
		BookingMaxRetries: getEnvAsInt("BOOKING_MAX_RETRIES", 3),
	}
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsList(key, defaultValue string) []string {
	raw := getEnv(key, defaultValue)
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.ToLower(strings.TrimSpace(p))
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
