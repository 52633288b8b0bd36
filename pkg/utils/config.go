package utils

import (
	"errors"
	"io/fs"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	App         AppConfig
	Database    DatabaseConfig
	Redis       RedisConfig
	Kafka       KafkaConfig
	Razorpay    RazorpayConfig
	Reservation ReservationConfig
}

type AppConfig struct {
	Name    string
	Port    string
	Debug   bool
	LogPath string
}

type DatabaseConfig struct {
	Host     string
	Port     string
	Name     string
	User     string
	Password string
	MaxConns int32
}

// RedisConfig is optional; an empty Addr disables the webhook dedup cache.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// KafkaConfig is optional; no brokers means lifecycle events are dropped.
type KafkaConfig struct {
	Brokers []string
	Topic   string
	Buffer  int
}

type RazorpayConfig struct {
	Mode          string // "razorpay" or "mock"
	BaseURL       string
	KeyID         string
	KeySecret     string
	WebhookSecret string
	Timeout       time.Duration
}

type ReservationConfig struct {
	Currency                string
	HoldWindow              time.Duration
	EditWindowHours         int
	HoldSweepInterval       time.Duration
	RefundReconcileInterval time.Duration
	SessionCleanupInterval  time.Duration
}

// minimum notice for date changes, never configurable below this
const MinEditWindowHours = 48

func LoadConfig() (*Config, error) {
	viper.SetConfigFile(".env")
	viper.SetConfigType("env")

	// Set defaults
	viper.SetDefault("APP_NAME", "stay-reservations")
	viper.SetDefault("PORT", "8080")
	viper.SetDefault("DEBUG", false)
	viper.SetDefault("LOG_PATH", "logs/")
	viper.SetDefault("DB_PORT", "5432")
	viper.SetDefault("DB_MAX_CONNS", 10)
	viper.SetDefault("REDIS_DB", 0)
	viper.SetDefault("KAFKA_TOPIC", "reservation.events")
	viper.SetDefault("KAFKA_BUFFER", 1024)
	viper.SetDefault("PAYMENT_GATEWAY", "razorpay")
	viper.SetDefault("RAZORPAY_BASE_URL", "https://api.razorpay.com")
	viper.SetDefault("GATEWAY_TIMEOUT_SECONDS", 10)
	viper.SetDefault("CURRENCY", "INR")
	viper.SetDefault("RESERVATION_HOLD_MINUTES", 15)
	viper.SetDefault("EDIT_WINDOW_HOURS", MinEditWindowHours)
	viper.SetDefault("HOLD_SWEEP_INTERVAL_SECONDS", 60)
	viper.SetDefault("REFUND_RECONCILE_INTERVAL_MINUTES", 30)
	viper.SetDefault("SESSION_CLEANUP_INTERVAL_HOURS", 24)

	// .env is optional in containers, env vars win either way
	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.Is(err, fs.ErrNotExist) && !errors.As(err, &notFound) {
			return nil, err
		}
	}

	viper.AutomaticEnv()

	editWindow := viper.GetInt("EDIT_WINDOW_HOURS")
	if editWindow < MinEditWindowHours {
		editWindow = MinEditWindowHours
	}

	config := &Config{
		App: AppConfig{
			Name:    viper.GetString("APP_NAME"),
			Port:    viper.GetString("PORT"),
			Debug:   viper.GetBool("DEBUG"),
			LogPath: viper.GetString("LOG_PATH"),
		},
		Database: DatabaseConfig{
			Host:     viper.GetString("DB_HOST"),
			Port:     viper.GetString("DB_PORT"),
			Name:     viper.GetString("DB_NAME"),
			User:     viper.GetString("DB_USER"),
			Password: viper.GetString("DB_PASS"),
			MaxConns: viper.GetInt32("DB_MAX_CONNS"),
		},
		Redis: RedisConfig{
			Addr:     viper.GetString("REDIS_ADDR"),
			Password: viper.GetString("REDIS_PASSWORD"),
			DB:       viper.GetInt("REDIS_DB"),
		},
		Kafka: KafkaConfig{
			Brokers: splitList(viper.GetString("KAFKA_BROKERS")),
			Topic:   viper.GetString("KAFKA_TOPIC"),
			Buffer:  viper.GetInt("KAFKA_BUFFER"),
		},
		Razorpay: RazorpayConfig{
			Mode:          viper.GetString("PAYMENT_GATEWAY"),
			BaseURL:       viper.GetString("RAZORPAY_BASE_URL"),
			KeyID:         viper.GetString("RAZORPAY_KEY_ID"),
			KeySecret:     viper.GetString("RAZORPAY_KEY_SECRET"),
			WebhookSecret: viper.GetString("RAZORPAY_WEBHOOK_SECRET"),
			Timeout:       time.Duration(viper.GetInt("GATEWAY_TIMEOUT_SECONDS")) * time.Second,
		},
		Reservation: ReservationConfig{
			Currency:                strings.ToUpper(viper.GetString("CURRENCY")),
			HoldWindow:              time.Duration(viper.GetInt("RESERVATION_HOLD_MINUTES")) * time.Minute,
			EditWindowHours:         editWindow,
			HoldSweepInterval:       time.Duration(viper.GetInt("HOLD_SWEEP_INTERVAL_SECONDS")) * time.Second,
			RefundReconcileInterval: time.Duration(viper.GetInt("REFUND_RECONCILE_INTERVAL_MINUTES")) * time.Minute,
			SessionCleanupInterval:  time.Duration(viper.GetInt("SESSION_CLEANUP_INTERVAL_HOURS")) * time.Hour,
		},
	}

	return config, nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
