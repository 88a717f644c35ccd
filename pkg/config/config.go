package config

import (
	"errors"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

type Config struct {
	Env       string
	Port      int
	APIPrefix string

	Database      DatabaseConfig
	Redis         RedisConfig
	JWT           JWTConfig
	CORS          CORSConfig
	Log           LogConfig
	Sweep         SweepConfig
	Reminders     RemindersConfig
	Notifications NotificationsConfig
	Stripe        StripeConfig
	Purchases     PurchasesConfig
}

type DatabaseConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	Name         string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

type JWTConfig struct {
	Secret     string
	Expiration time.Duration
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// SweepConfig tunes the postponement sweep over upcoming course dates.
type SweepConfig struct {
	Enabled bool
	// Interval between automatic runs. The original system ran daily at 06:00.
	Interval time.Duration
	// Horizon is how far ahead of now a scheduled date must start to be swept.
	Horizon time.Duration
	// LockTTL bounds how long the distributed run lock is held.
	LockTTL time.Duration
	// ItemTimeout bounds processing of a single course date.
	ItemTimeout time.Duration
}

// RemindersConfig tunes the upcoming-course reminder task.
type RemindersConfig struct {
	Enabled  bool
	Interval time.Duration
	// LeadDays is how many days before the start date reminders go out.
	LeadDays int
}

// NotificationsConfig configures the SMTP notifier and its dispatch queue.
type NotificationsConfig struct {
	Enabled     bool
	SMTPHost    string
	SMTPPort    int
	SMTPUser    string
	SMTPPass    string
	FromAddress string
	AdminEmails []string
	Workers     int
	BufferSize  int
}

// StripeConfig holds payment provider credentials.
type StripeConfig struct {
	SecretKey  string
	Currency   string
	SuccessURL string
	CancelURL  string
}

// PurchasesConfig governs the company purchase flow.
type PurchasesConfig struct {
	// AdminWebhookURL receives a copy of every new purchase request when set.
	AdminWebhookURL string
	// EventTTL is how long payment event idempotency keys are retained.
	EventTTL time.Duration
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")

	cfg.Database = DatabaseConfig{
		Host:         v.GetString("DB_HOST"),
		Port:         v.GetInt("DB_PORT"),
		User:         v.GetString("DB_USER"),
		Password:     v.GetString("DB_PASSWORD"),
		Name:         v.GetString("DB_NAME"),
		SSLMode:      v.GetString("DB_SSL_MODE"),
		MaxOpenConns: v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns: v.GetInt("DB_MAX_IDLE_CONNS"),
	}

	cfg.Redis = RedisConfig{
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.JWT = JWTConfig{
		Secret:     v.GetString("JWT_SECRET"),
		Expiration: parseDuration(v.GetString("JWT_EXPIRATION"), 24*time.Hour),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Sweep = SweepConfig{
		Enabled:     v.GetBool("ENABLE_POSTPONEMENT_SWEEP"),
		Interval:    parseDuration(v.GetString("SWEEP_INTERVAL"), 24*time.Hour),
		Horizon:     parseDuration(v.GetString("SWEEP_HORIZON"), 48*time.Hour),
		LockTTL:     parseDuration(v.GetString("SWEEP_LOCK_TTL"), 10*time.Minute),
		ItemTimeout: parseDuration(v.GetString("SWEEP_ITEM_TIMEOUT"), 30*time.Second),
	}

	cfg.Reminders = RemindersConfig{
		Enabled:  v.GetBool("ENABLE_COURSE_REMINDERS"),
		Interval: parseDuration(v.GetString("REMINDERS_INTERVAL"), 24*time.Hour),
		LeadDays: v.GetInt("REMINDERS_LEAD_DAYS"),
	}

	cfg.Notifications = NotificationsConfig{
		Enabled:     v.GetBool("ENABLE_NOTIFICATIONS"),
		SMTPHost:    v.GetString("SMTP_HOST"),
		SMTPPort:    v.GetInt("SMTP_PORT"),
		SMTPUser:    v.GetString("SMTP_USER"),
		SMTPPass:    v.GetString("SMTP_PASSWORD"),
		FromAddress: v.GetString("SMTP_FROM"),
		AdminEmails: splitAndTrim(v.GetString("ADMIN_EMAILS")),
		Workers:     v.GetInt("NOTIFY_WORKERS"),
		BufferSize:  v.GetInt("NOTIFY_BUFFER_SIZE"),
	}

	cfg.Stripe = StripeConfig{
		SecretKey:  v.GetString("STRIPE_SECRET_KEY"),
		Currency:   v.GetString("STRIPE_CURRENCY"),
		SuccessURL: v.GetString("STRIPE_SUCCESS_URL"),
		CancelURL:  v.GetString("STRIPE_CANCEL_URL"),
	}

	cfg.Purchases = PurchasesConfig{
		AdminWebhookURL: v.GetString("PURCHASE_ADMIN_WEBHOOK_URL"),
		EventTTL:        parseDuration(v.GetString("PAYMENT_EVENT_TTL"), 72*time.Hour),
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "uniprotec")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 25)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("ENABLE_POSTPONEMENT_SWEEP", true)
	v.SetDefault("ENABLE_COURSE_REMINDERS", true)
	v.SetDefault("REMINDERS_LEAD_DAYS", 3)

	v.SetDefault("ENABLE_NOTIFICATIONS", false)
	v.SetDefault("SMTP_PORT", 587)
	v.SetDefault("NOTIFY_WORKERS", 2)
	v.SetDefault("NOTIFY_BUFFER_SIZE", 64)

	v.SetDefault("STRIPE_CURRENCY", "mxn")
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}
	return d
}

func splitAndTrim(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
