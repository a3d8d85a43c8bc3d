package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration
type Config struct {
	Server    ServerConfig
	App       AppConfig
	Mail      MailConfig
	AWS       AWSConfig
	Email     EmailConfig
	Captcha   CaptchaConfig
	Redis     RedisConfig
	NATS      NATSConfig
	RateLimit RateLimitConfig
	Intake    IntakeConfig
}

// ServerConfig holds server settings
type ServerConfig struct {
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	AllowedOrigins  []string
	// Proxies whose X-Forwarded-For is honoured; empty trusts none
	TrustedProxies  []string
}

// AppConfig holds application settings
type AppConfig struct {
	Environment string
	LogLevel    string
	ServiceName string
}

// MailConfig holds addressing and branding used by every outbound email
type MailConfig struct {
	// Staff inbox receiving appointment and subscriber notifications
	ReceiverEmail string
	// Sender address; GMAIL_USER is honoured for existing deployments
	From string
	// Display name on visitor-facing emails
	FromName string
	// Display name on staff notifications
	StaffFromName string
	BusinessName  string
	BookingPhone  string
}

// AWSConfig holds AWS credentials and settings for SES
type AWSConfig struct {
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	SESEnabled      bool
}

// EmailConfig holds email provider settings
type EmailConfig struct {
	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string

	SendGridAPIKey string

	// Chain policy. Defaults make exactly one attempt per message.
	EnableFailover bool
	MaxRetries     int
	RetryDelay     time.Duration
}

// CaptchaConfig holds human-verification settings
type CaptchaConfig struct {
	SecretKey         string
	VerifyURL         string
	Timeout           time.Duration
	NewsletterEnabled bool
}

// RedisConfig holds optional shared-store settings
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// NATSConfig holds settings for intake event publishing
type NATSConfig struct {
	URL           string
	MaxReconnects int
	ReconnectWait time.Duration
}

// RateLimitConfig holds per-IP admission settings
type RateLimitConfig struct {
	Enabled   bool
	PerMinute int
	Burst     int
}

// IntakeConfig holds form-handling settings
type IntakeConfig struct {
	IdempotencyTTL time.Duration
	SweepSchedule  string
}

const defaultVerifyURL = "https://www.google.com/recaptcha/api/siteverify"

// Load loads configuration from environment
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port:            getEnvInt("SERVER_PORT", 8095),
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    time.Duration(getEnvInt("SERVER_WRITE_TIMEOUT_SECONDS", 60)) * time.Second,
			ShutdownTimeout: 30 * time.Second,
			AllowedOrigins:  getEnvList("CORS_ALLOWED_ORIGINS", []string{"*"}),
			TrustedProxies:  getEnvList("TRUSTED_PROXIES", nil),
		},
		App: AppConfig{
			Environment: getEnv("ENVIRONMENT", "development"),
			LogLevel:    getEnv("LOG_LEVEL", "info"),
			ServiceName: getEnv("SERVICE_NAME", "intake-service"),
		},
		Mail: MailConfig{
			ReceiverEmail: getEnv("CONTACT_RECEIVER_EMAIL", ""),
			From:          getEnvWithFallback("MAIL_FROM", "GMAIL_USER", ""),
			FromName:      getEnv("MAIL_FROM_NAME", "Dharma Dental"),
			StaffFromName: getEnv("MAIL_STAFF_FROM_NAME", "Dharma Dental Website"),
			BusinessName:  getEnv("BUSINESS_NAME", "Dharma Dental"),
			BookingPhone:  getEnv("BOOKING_PHONE", "+91 91692 69369"),
		},
		AWS: AWSConfig{
			Region:          getEnv("AWS_REGION", "ap-south-1"),
			AccessKeyID:     getEnv("AWS_ACCESS_KEY_ID", ""),
			SecretAccessKey: getEnv("AWS_SECRET_ACCESS_KEY", ""),
			SESEnabled:      getEnvBool("AWS_SES_ENABLED", false),
		},
		Email: EmailConfig{
			SMTPHost:       getEnv("SMTP_HOST", "smtp.gmail.com"),
			SMTPPort:       getEnvInt("SMTP_PORT", 587),
			SMTPUsername:   getEnvWithFallback("SMTP_USERNAME", "GMAIL_USER", ""),
			SMTPPassword:   getEnvWithFallback("SMTP_PASSWORD", "GMAIL_APP_PASSWORD", ""),
			SendGridAPIKey: getEnv("SENDGRID_API_KEY", ""),
			EnableFailover: getEnvBool("EMAIL_FAILOVER_ENABLED", false),
			MaxRetries:     getEnvInt("EMAIL_MAX_RETRIES", 0),
			RetryDelay:     time.Duration(getEnvInt("EMAIL_RETRY_DELAY_SECONDS", 2)) * time.Second,
		},
		Captcha: CaptchaConfig{
			SecretKey:         getEnv("RECAPTCHA_SECRET_KEY", ""),
			VerifyURL:         getEnv("RECAPTCHA_VERIFY_URL", defaultVerifyURL),
			Timeout:           time.Duration(getEnvInt("RECAPTCHA_TIMEOUT_SECONDS", 10)) * time.Second,
			NewsletterEnabled: getEnvBool("NEWSLETTER_CAPTCHA_ENABLED", false),
		},
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", ""),
			Port:     getEnvInt("REDIS_PORT", 6379),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		NATS: NATSConfig{
			URL:           getEnv("NATS_URL", ""),
			MaxReconnects: getEnvInt("NATS_MAX_RECONNECTS", -1),
			ReconnectWait: time.Duration(getEnvInt("NATS_RECONNECT_WAIT_SECONDS", 2)) * time.Second,
		},
		RateLimit: RateLimitConfig{
			Enabled:   getEnvBool("RATE_LIMIT_ENABLED", false),
			PerMinute: getEnvInt("RATE_LIMIT_PER_MINUTE", 10),
			Burst:     getEnvInt("RATE_LIMIT_BURST", 5),
		},
		Intake: IntakeConfig{
			IdempotencyTTL: time.Duration(getEnvInt("IDEMPOTENCY_TTL_MINUTES", 10)) * time.Minute,
			SweepSchedule:  getEnv("SWEEP_SCHEDULE", "0 */5 * * * *"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate rejects structurally invalid values. Missing credentials are not
// an error here; see MissingIntakeSettings.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid SERVER_PORT: %d", c.Server.Port)
	}
	for _, proxy := range c.Server.TrustedProxies {
		if net.ParseIP(proxy) == nil {
			if _, _, err := net.ParseCIDR(proxy); err != nil {
				return fmt.Errorf("invalid TRUSTED_PROXIES entry: %s", proxy)
			}
		}
	}
	if c.Email.MaxRetries < 0 {
		return fmt.Errorf("EMAIL_MAX_RETRIES must not be negative")
	}
	if c.Captcha.Timeout <= 0 {
		return fmt.Errorf("RECAPTCHA_TIMEOUT_SECONDS must be positive")
	}
	if c.RateLimit.Enabled && (c.RateLimit.PerMinute <= 0 || c.RateLimit.Burst <= 0) {
		return fmt.Errorf("rate limit requires positive RATE_LIMIT_PER_MINUTE and RATE_LIMIT_BURST")
	}
	if c.Intake.IdempotencyTTL <= 0 {
		return fmt.Errorf("IDEMPOTENCY_TTL_MINUTES must be positive")
	}
	return nil
}

// MissingIntakeSettings lists settings whose absence makes submissions fail
// at request time. The service still starts without them.
func (c *Config) MissingIntakeSettings() []string {
	var missing []string
	if c.Captcha.SecretKey == "" {
		missing = append(missing, "RECAPTCHA_SECRET_KEY")
	}
	if c.Mail.ReceiverEmail == "" {
		missing = append(missing, "CONTACT_RECEIVER_EMAIL")
	}
	if c.Mail.From == "" {
		missing = append(missing, "MAIL_FROM")
	}
	if !c.HasEmailTransport() {
		missing = append(missing, "SMTP_PASSWORD|SENDGRID_API_KEY|AWS_SES_ENABLED")
	}
	return missing
}

// HasEmailTransport reports whether at least one email provider is configured
func (c *Config) HasEmailTransport() bool {
	return c.AWS.SESEnabled || c.Email.SendGridAPIKey != "" || (c.Email.SMTPHost != "" && c.Email.SMTPPassword != "")
}

// IsProduction reports whether the service runs in production mode
func (c *Config) IsProduction() bool {
	return c.App.Environment == "production"
}

// Addr returns the redis address, or empty when redis is not configured
func (c *RedisConfig) Addr() string {
	if c.Host == "" {
		return ""
	}
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvWithFallback(primaryKey, fallbackKey, defaultValue string) string {
	if value := os.Getenv(primaryKey); value != "" {
		return value
	}
	if value := os.Getenv(fallbackKey); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
