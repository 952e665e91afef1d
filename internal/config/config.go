package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Config holds runtime configuration sourced from env vars.
// Loan terms (rate, fee, bounds) are deliberately configuration, not
// constants: the business adjusts them without a redeploy of logic.
type Config struct {
	Port        string
	DatabaseDSN string
	CORSOrigins []string

	Loan         LoanConfig
	Verification VerificationConfig
	Notification NotificationConfig
}

// LoanConfig carries the commercial parameters of the loan product.
type LoanConfig struct {
	MinAmount float64 // smallest requestable amount, in soles
	MaxAmount float64
	MinTerm   int // months
	MaxTerm   int
	// TEA is the effective annual rate (percent) used by the calculator.
	TEA float64
	// VerificationFee is the flat fee (soles) collected out-of-band over
	// WhatsApp before an application proceeds past intake.
	VerificationFee float64
	// FeeContactPhone is the WhatsApp number the applicant coordinates the
	// fee transfer with.
	FeeContactPhone string
}

// VerificationConfig points at the AI gateway used for the advisory
// document check.
type VerificationConfig struct {
	GatewayURL string
	APIKey     string
	Model      string
}

// NotificationConfig carries the staff notification channels.
type NotificationConfig struct {
	ResendAPIKey string
	EmailFrom    string
	EmailTo      string
	AdminURL     string

	TwilioAccountSID   string
	TwilioAuthToken    string
	TwilioWhatsAppFrom string
	TwilioWhatsAppTo   string
}

// Load reads configuration from the environment, applying development
// fallbacks the same way the rest of the app does.
func Load() Config {
	dbHost := fallback(os.Getenv("DB_HOST"), "localhost")
	dbPort := fallback(os.Getenv("DB_PORT"), "5432")
	dbUser := fallback(os.Getenv("DB_USER"), "postgres")
	dbPassword := fallback(os.Getenv("DB_PASSWORD"), "postgres")
	dbName := fallback(os.Getenv("DB_NAME"), "postgres")
	dbSslMode := fallback(os.Getenv("DB_SSLMODE"), "disable")

	dsn := fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		dbUser, dbPassword, dbHost, dbPort, dbName, dbSslMode)

	return Config{
		Port:        fallback(os.Getenv("PORT"), "8080"),
		DatabaseDSN: dsn,
		CORSOrigins: parseCSV(fallback(os.Getenv("CORS_ALLOWED_ORIGINS"), "http://localhost:5173,http://127.0.0.1:5173")),
		Loan: LoanConfig{
			MinAmount:       floatEnv("LOAN_MIN_AMOUNT", 500),
			MaxAmount:       floatEnv("LOAN_MAX_AMOUNT", 5000),
			MinTerm:         intEnv("LOAN_MIN_TERM", 1),
			MaxTerm:         intEnv("LOAN_MAX_TERM", 12),
			TEA:             floatEnv("LOAN_TEA_PERCENT", 45.5),
			VerificationFee: floatEnv("VERIFICATION_FEE", 65),
			FeeContactPhone: fallback(os.Getenv("FEE_CONTACT_PHONE"), ""),
		},
		Verification: VerificationConfig{
			GatewayURL: fallback(os.Getenv("AI_GATEWAY_URL"), "https://ai.gateway.lovable.dev/v1/chat/completions"),
			APIKey:     os.Getenv("AI_GATEWAY_API_KEY"),
			Model:      fallback(os.Getenv("AI_GATEWAY_MODEL"), "google/gemini-2.5-flash"),
		},
		Notification: NotificationConfig{
			ResendAPIKey:       os.Getenv("RESEND_API_KEY"),
			EmailFrom:          fallback(os.Getenv("NOTIFY_EMAIL_FROM"), "Préstamos <onboarding@resend.dev>"),
			EmailTo:            os.Getenv("NOTIFY_EMAIL_TO"),
			AdminURL:           os.Getenv("ADMIN_PANEL_URL"),
			TwilioAccountSID:   os.Getenv("TWILIO_ACCOUNT_SID"),
			TwilioAuthToken:    os.Getenv("TWILIO_AUTH_TOKEN"),
			TwilioWhatsAppFrom: os.Getenv("TWILIO_WHATSAPP_FROM"),
			TwilioWhatsAppTo:   os.Getenv("TWILIO_WHATSAPP_TO"),
		},
	}
}

func fallback(value, def string) string {
	if strings.TrimSpace(value) == "" {
		return def
	}
	return strings.TrimSpace(value)
}

func floatEnv(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if parsed, err := strconv.ParseFloat(v, 64); err == nil && parsed > 0 {
			return parsed
		}
	}
	return def
}

func intEnv(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
			return parsed
		}
	}
	return def
}

func parseCSV(input string) []string {
	parts := strings.Split(input, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
