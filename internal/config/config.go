package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application
type Config struct {
	// Server configuration
	Server ServerConfig

	// Database configuration
	Database DatabaseConfig

	// JWT configuration
	JWT JWTConfig

	// CORS configuration
	CORS CORSConfig

	// Payment gateway configuration
	Payment PaymentConfig

	// Booking engine configuration
	Booking BookingConfig

	// Slot scheduler configuration
	Scheduler SchedulerConfig

	// Redis availability cache and fulfillment task configuration
	Redis RedisConfig

	// RabbitMQ notification queue configuration
	RabbitMQ RabbitMQConfig
}

// PaymentConfig holds the HMAC-signed payment gateway configuration
type PaymentConfig struct {
	BaseURL         string        // Gateway API base URL
	MerchantID      string        // Merchant identifier issued by the gateway
	SecretKey       string        // HMAC shared secret (SECRET - never expose to client)
	CurrencyCode    string        // ISO 4217 numeric currency code
	ReturnURL       string        // Our browser return endpoint registered with the gateway
	ClientReturnURL string        // Frontend page the browser is sent to after reconciliation
	Timeout         time.Duration // Client-side timeout for every gateway call
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	Port        string
	Environment string // development, staging, production
	LogLevel    string // debug, info, warn, error
}

// DatabaseConfig holds database-related configuration
type DatabaseConfig struct {
	URL                string
	Driver             string // "pgx" or "postgres" (lib/pq)
	MaxConnections     int
	MaxIdleConnections int
	ConnMaxLifetime    time.Duration
}

// JWTConfig holds JWT-related configuration
type JWTConfig struct {
	Secret            string
	AccessTokenExpiry time.Duration
}

// CORSConfig holds CORS-related configuration
type CORSConfig struct {
	AllowedOrigins []string
	AllowedMethods []string
	AllowedHeaders []string
}

// BookingConfig holds booking engine tuning
type BookingConfig struct {
	PostCommitWorkers   int // workers running ticket/notification tasks
	PostCommitQueueSize int
	NotifyWhatsApp      bool
}

// SchedulerConfig holds the nightly slot extension job settings
type SchedulerConfig struct {
	Enabled  bool
	CronSpec string // with seconds, e.g. "0 0 2 * * *"
}

// RedisConfig holds the availability cache and fulfillment task settings.
// An empty URL disables both; fulfillment then runs on the in-process queue.
type RedisConfig struct {
	URL                    string
	AvailabilityTTL        time.Duration
	FulfillmentTasks       bool // durable ticket/notification tasks via asynq
	FulfillmentMaxRetry    int
	FulfillmentConcurrency int
}

// RabbitMQConfig holds the notification queue settings; empty URL logs notifications instead
type RabbitMQConfig struct {
	URL               string
	NotificationQueue string
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists (for local development)
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	config := &Config{
		Server: ServerConfig{
			Port:        getEnv("PORT", "8080"),
			Environment: getEnv("ENVIRONMENT", "development"),
			LogLevel:    getEnv("LOG_LEVEL", "info"),
		},
		Database: DatabaseConfig{
			URL:                getEnv("DATABASE_URL", ""),
			Driver:             getEnv("DATABASE_DRIVER", "pgx"),
			MaxConnections:     getEnvAsInt("DATABASE_MAX_CONNECTIONS", 10),
			MaxIdleConnections: getEnvAsInt("DATABASE_MAX_IDLE_CONNECTIONS", 5),
			ConnMaxLifetime:    time.Duration(getEnvAsInt("DATABASE_CONN_MAX_LIFETIME", 300)) * time.Second,
		},
		JWT: JWTConfig{
			Secret:            getEnv("JWT_SECRET", ""),
			AccessTokenExpiry: time.Duration(getEnvAsInt("JWT_ACCESS_TOKEN_EXPIRY", 3600)) * time.Second,
		},
		CORS: CORSConfig{
			AllowedOrigins: getEnvAsSlice("CORS_ALLOWED_ORIGINS", []string{"*"}),
			AllowedMethods: getEnvAsSlice("CORS_ALLOWED_METHODS", []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}),
			AllowedHeaders: getEnvAsSlice("CORS_ALLOWED_HEADERS", []string{"Content-Type", "Authorization", "X-Session-ID"}),
		},
		Payment: PaymentConfig{
			BaseURL:         getEnv("PAYMENT_BASE_URL", "https://qa.phicommerce.com"),
			MerchantID:      getEnv("PAYMENT_MERCHANT_ID", ""),
			SecretKey:       getEnv("PAYMENT_SECRET_KEY", ""),
			CurrencyCode:    getEnv("PAYMENT_CURRENCY_CODE", "356"),
			ReturnURL:       getEnv("PAYMENT_RETURN_URL", ""),
			ClientReturnURL: getEnv("PAYMENT_CLIENT_RETURN_URL", "http://localhost:3000/payment/result"),
			Timeout:         time.Duration(getEnvAsInt("PAYMENT_TIMEOUT_SECONDS", 30)) * time.Second,
		},
		Booking: BookingConfig{
			PostCommitWorkers:   getEnvAsInt("POST_COMMIT_WORKERS", 4),
			PostCommitQueueSize: getEnvAsInt("POST_COMMIT_QUEUE_SIZE", 256),
			NotifyWhatsApp:      getEnvAsBool("NOTIFY_WHATSAPP", false),
		},
		Scheduler: SchedulerConfig{
			Enabled:  getEnvAsBool("SLOT_SCHEDULER_ENABLED", true),
			CronSpec: getEnv("SLOT_SCHEDULER_CRON", "0 0 2 * * *"),
		},
		Redis: RedisConfig{
			URL:                    getEnv("REDIS_URL", ""),
			AvailabilityTTL:        time.Duration(getEnvAsInt("AVAILABILITY_CACHE_TTL_SECONDS", 15)) * time.Second,
			FulfillmentTasks:       getEnvAsBool("FULFILLMENT_TASKS_ENABLED", true),
			FulfillmentMaxRetry:    getEnvAsInt("FULFILLMENT_MAX_RETRY", 10),
			FulfillmentConcurrency: getEnvAsInt("FULFILLMENT_CONCURRENCY", 5),
		},
		RabbitMQ: RabbitMQConfig{
			URL:               getEnv("RABBITMQ_URL", ""),
			NotificationQueue: getEnv("RABBITMQ_NOTIFICATION_QUEUE", "notifications.dispatch"),
		},
	}

	// Validate required configuration
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if c.Database.Driver != "pgx" && c.Database.Driver != "postgres" {
		return fmt.Errorf("invalid DATABASE_DRIVER: %s (must be 'pgx' or 'postgres')", c.Database.Driver)
	}

	if c.JWT.Secret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}

	// A merchant without a secret cannot sign requests
	if c.Payment.MerchantID != "" {
		if c.Payment.SecretKey == "" {
			return fmt.Errorf("PAYMENT_SECRET_KEY is required when PAYMENT_MERCHANT_ID is set")
		}
		if c.Payment.ReturnURL == "" {
			return fmt.Errorf("PAYMENT_RETURN_URL is required when PAYMENT_MERCHANT_ID is set")
		}
	}

	if c.Booking.PostCommitWorkers < 1 {
		return fmt.Errorf("POST_COMMIT_WORKERS must be at least 1")
	}

	if c.Redis.URL != "" && c.Redis.FulfillmentTasks {
		if c.Redis.FulfillmentConcurrency < 1 {
			return fmt.Errorf("FULFILLMENT_CONCURRENCY must be at least 1")
		}
		if c.Redis.FulfillmentMaxRetry < 0 {
			return fmt.Errorf("FULFILLMENT_MAX_RETRY must not be negative")
		}
	}

	return nil
}

// IsConfigured reports whether the payment gateway can be called
func (p PaymentConfig) IsConfigured() bool {
	return p.MerchantID != "" && p.SecretKey != ""
}

// Helper functions to get environment variables

func getEnv(key string, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		log.Printf("Invalid integer value for %s, using default: %d", key, defaultValue)
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		log.Printf("Invalid boolean value for %s, using default: %t", key, defaultValue)
		return defaultValue
	}
	return value
}

func getEnvAsSlice(key string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	var result []string
	for _, v := range strings.Split(valueStr, ",") {
		if trimmed := strings.TrimSpace(v); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	if len(result) == 0 {
		return defaultValue
	}
	return result
}
