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
	Server       ServerConfig
	Database     DatabaseConfig
	JWT          JWTConfig
	CORS         CORSConfig
	Inventory    InventoryConfig
	Billing      BillingConfig
	Kafka        KafkaConfig
	Orchestrator OrchestratorConfig
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
	MaxConnections     int
	MaxIdleConnections int
	ConnMaxLifetime    time.Duration
	MigrationsDir      string
}

// JWTConfig holds the secret shared with the identity service
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

// InventoryConfig holds the resource service endpoints
type InventoryConfig struct {
	FlightURL    string
	HotelURL     string
	CarURL       string
	APIKey       string
	Timeout      time.Duration
	MaxRetries   int
	RetryBackoff time.Duration
}

// BillingConfig holds the billing service endpoint
type BillingConfig struct {
	URL     string
	APIKey  string // SECRET - never log
	Timeout time.Duration
}

// KafkaConfig holds event stream configuration
type KafkaConfig struct {
	Brokers           []string
	PaymentTopic      string
	ConfirmedTopic    string
	ConsumerGroupID   string
	NotFoundRetries   int
	NotFoundBackoff   time.Duration
	FetchErrorBackoff time.Duration
}

// OrchestratorConfig holds saga tuning
type OrchestratorConfig struct {
	DefaultCurrency string
	CallTimeout     time.Duration // Per outbound call
	IdempotencyTTL  time.Duration
	CleanupSchedule string // cron expression with seconds
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
		Database: databaseFromEnv(),
		JWT: JWTConfig{
			Secret:            getEnv("JWT_SECRET", ""),
			AccessTokenExpiry: time.Duration(getEnvAsInt("JWT_ACCESS_TOKEN_EXPIRY", 3600)) * time.Second,
		},
		CORS: CORSConfig{
			AllowedOrigins: getEnvAsSlice("CORS_ALLOWED_ORIGINS", []string{"*"}),
			AllowedMethods: getEnvAsSlice("CORS_ALLOWED_METHODS", []string{"GET", "POST", "PUT", "OPTIONS"}),
			AllowedHeaders: getEnvAsSlice("CORS_ALLOWED_HEADERS", []string{"Content-Type", "Authorization", "X-Idempotency-Key", "X-Request-ID"}),
		},
		Inventory: InventoryConfig{
			FlightURL:    getEnv("FLIGHT_SERVICE_URL", ""),
			HotelURL:     getEnv("HOTEL_SERVICE_URL", ""),
			CarURL:       getEnv("CAR_SERVICE_URL", ""),
			APIKey:       getEnv("INVENTORY_API_KEY", ""),
			Timeout:      time.Duration(getEnvAsInt("INVENTORY_TIMEOUT_MS", 5000)) * time.Millisecond,
			MaxRetries:   getEnvAsInt("INVENTORY_MAX_RETRIES", 2),
			RetryBackoff: time.Duration(getEnvAsInt("INVENTORY_RETRY_BACKOFF_MS", 200)) * time.Millisecond,
		},
		Billing: BillingConfig{
			URL:     getEnv("BILLING_SERVICE_URL", ""),
			APIKey:  getEnv("BILLING_API_KEY", ""),
			Timeout: time.Duration(getEnvAsInt("BILLING_TIMEOUT_MS", 10000)) * time.Millisecond,
		},
		Kafka: KafkaConfig{
			Brokers:           getEnvAsSlice("KAFKA_BROKERS", []string{"localhost:9092"}),
			PaymentTopic:      getEnv("KAFKA_PAYMENT_TOPIC", "payments.events"),
			ConfirmedTopic:    getEnv("KAFKA_BOOKING_CONFIRMED_TOPIC", "bookings.confirmed"),
			ConsumerGroupID:   getEnv("KAFKA_CONSUMER_GROUP", "booking-service"),
			NotFoundRetries:   getEnvAsInt("PAYMENT_EVENT_NOT_FOUND_RETRIES", 5),
			NotFoundBackoff:   time.Duration(getEnvAsInt("PAYMENT_EVENT_NOT_FOUND_BACKOFF_MS", 1000)) * time.Millisecond,
			FetchErrorBackoff: time.Duration(getEnvAsInt("KAFKA_FETCH_ERROR_BACKOFF_MS", 500)) * time.Millisecond,
		},
		Orchestrator: OrchestratorConfig{
			DefaultCurrency: strings.ToUpper(getEnv("DEFAULT_CURRENCY", "USD")),
			CallTimeout:     time.Duration(getEnvAsInt("SAGA_CALL_TIMEOUT_MS", 10000)) * time.Millisecond,
			IdempotencyTTL:  time.Duration(getEnvAsInt("IDEMPOTENCY_TTL_HOURS", 72)) * time.Hour,
			CleanupSchedule: getEnv("IDEMPOTENCY_CLEANUP_SCHEDULE", "0 0 * * * *"),
		},
	}

	// Validate required configuration
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// LoadDatabase loads only the database section, for tools that need no
// other collaborators
func LoadDatabase() (*DatabaseConfig, error) {
	_ = godotenv.Load()

	cfg := databaseFromEnv()
	if cfg.URL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	return &cfg, nil
}

func databaseFromEnv() DatabaseConfig {
	return DatabaseConfig{
		URL:                getEnv("DATABASE_URL", ""),
		MaxConnections:     getEnvAsInt("DATABASE_MAX_CONNECTIONS", 10),
		MaxIdleConnections: getEnvAsInt("DATABASE_MAX_IDLE_CONNECTIONS", 5),
		ConnMaxLifetime:    time.Duration(getEnvAsInt("DATABASE_CONN_MAX_LIFETIME", 300)) * time.Second,
		MigrationsDir:      getEnv("MIGRATIONS_DIR", "migrations"),
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if c.JWT.Secret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}

	if c.Inventory.FlightURL == "" || c.Inventory.HotelURL == "" || c.Inventory.CarURL == "" {
		return fmt.Errorf("FLIGHT_SERVICE_URL, HOTEL_SERVICE_URL and CAR_SERVICE_URL are required")
	}

	if c.Billing.URL == "" {
		return fmt.Errorf("BILLING_SERVICE_URL is required")
	}

	if len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("KAFKA_BROKERS is required")
	}

	if len(c.Orchestrator.DefaultCurrency) != 3 {
		return fmt.Errorf("invalid DEFAULT_CURRENCY: %s", c.Orchestrator.DefaultCurrency)
	}

	return nil
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
		log.Printf("Invalid integer for %s, using default %d", key, defaultValue)
		return defaultValue
	}
	return value
}

func getEnvAsSlice(key string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	parts := strings.Split(valueStr, ",")
	values := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			values = append(values, trimmed)
		}
	}
	return values
}
