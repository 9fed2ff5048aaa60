package config

import (
	"errors"
	"sync"

	"github.com/spf13/viper"
)

// Store drivers accepted by STORE_DRIVER.
const (
	StoreMongo    = "mongo"
	StorePostgres = "postgres"
)

var (
	ErrAppPortRange            = errors.New("APP_PORT must be between 1 and 65535")
	ErrLogLevelEmpty           = errors.New("LOG_LEVEL cannot be empty")
	ErrLogFormatEmpty          = errors.New("LOG_FORMAT cannot be empty")
	ErrStoreDriverUnsupported  = errors.New("STORE_DRIVER must be either mongo or postgres")
	ErrMongoURIEmpty           = errors.New("MONGO_URI cannot be empty")
	ErrMongoDBNameEmpty        = errors.New("MONGO_DB_NAME cannot be empty")
	ErrPostgresDSNEmpty        = errors.New("POSTGRES_DSN cannot be empty when STORE_DRIVER is postgres")
	ErrJWTSecretRequired       = errors.New("JWT_SECRET is required outside DEV_MODE")
	ErrJWTSecretTooShort       = errors.New("JWT_SECRET must be at least 32 characters for HS256")
	ErrJWTAlgorithmUnsupported = errors.New("JWT_ALGORITHM must be either HS256 or RS256")
	ErrWSMaxSession            = errors.New("WS_MAX_SESSION_SEC must be greater than 0")
	ErrWSOutboxBuffer          = errors.New("WS_OUTBOX_BUFFER must be greater than 0")
	ErrMutationRatePerMin      = errors.New("MUTATION_RATE_PER_MIN must be greater than or equal to 1")
	ErrWSConnectRatePerMin     = errors.New("WS_CONNECT_RATE_PER_MIN cannot be negative")
)

// devJWTSecret signs tokens when DEV_MODE is on and no secret is configured.
const devJWTSecret = "space-pulse-dev-secret-change-me-0123456789"

// Config holds all application configuration
type Config struct {
	AppPort               int    `mapstructure:"APP_PORT"`
	LogLevel              string `mapstructure:"LOG_LEVEL"`
	LogFormat             string `mapstructure:"LOG_FORMAT"`
	StoreDriver           string `mapstructure:"STORE_DRIVER"`
	MongoURI              string `mapstructure:"MONGO_URI"`
	MongoDBName           string `mapstructure:"MONGO_DB_NAME"`
	PostgresDSN           string `mapstructure:"POSTGRES_DSN"`
	JWTSecret             string `mapstructure:"JWT_SECRET"`
	JWTAlgorithm          string `mapstructure:"JWT_ALGORITHM"`
	WSMaxSessionSec       int    `mapstructure:"WS_MAX_SESSION_SEC"`
	WSOutboxBuffer        int    `mapstructure:"WS_OUTBOX_BUFFER"`
	RouteMetricsEnabled   bool   `mapstructure:"ROUTE_METRICS_ENABLED"`
	RequestLoggingEnabled bool   `mapstructure:"REQUEST_LOGGING_ENABLED"`
	MutationRatePerMin    int    `mapstructure:"MUTATION_RATE_PER_MIN"`
	WSConnectRatePerMin   int    `mapstructure:"WS_CONNECT_RATE_PER_MIN"`
	PyroscopeAddress      string `mapstructure:"PYROSCOPE_ADDRESS"`
	DevMode               bool   `mapstructure:"DEV_MODE"`
}

var (
	cachedConfig *Config
	configMutex  sync.RWMutex
)

// Load loads configuration from environment variables and .env file
// It caches the result for subsequent calls
func Load() (Config, error) {
	configMutex.RLock()
	if cachedConfig != nil {
		defer configMutex.RUnlock()
		return *cachedConfig, nil
	}
	configMutex.RUnlock()

	configMutex.Lock()
	defer configMutex.Unlock()

	// Double-check in case another goroutine loaded it while we waited for the lock
	if cachedConfig != nil {
		return *cachedConfig, nil
	}

	v := viper.New()

	v.SetDefault("APP_PORT", 8080)
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")
	v.SetDefault("STORE_DRIVER", StoreMongo)
	v.SetDefault("MONGO_URI", "mongodb://mongo:27017")
	v.SetDefault("MONGO_DB_NAME", "spacepulse")
	v.SetDefault("POSTGRES_DSN", "")
	v.SetDefault("JWT_SECRET", "")
	v.SetDefault("JWT_ALGORITHM", "HS256")
	v.SetDefault("WS_MAX_SESSION_SEC", 900)
	v.SetDefault("WS_OUTBOX_BUFFER", 256) // per-connection event buffer
	v.SetDefault("ROUTE_METRICS_ENABLED", true)
	v.SetDefault("REQUEST_LOGGING_ENABLED", true)
	v.SetDefault("MUTATION_RATE_PER_MIN", 120)
	v.SetDefault("WS_CONNECT_RATE_PER_MIN", 30) // 0 disables the handshake limiter
	v.SetDefault("PYROSCOPE_ADDRESS", "")
	v.SetDefault("DEV_MODE", false)

	// Configure Viper to read from .env file (if present)
	v.SetConfigName(".env")
	v.SetConfigType("env")
	v.AddConfigPath(".")

	// Try to read .env file (it's okay if it doesn't exist)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return Config{}, err
		}
	}

	// Override with OS environment variables
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	cachedConfig = &cfg

	return cfg, nil
}

// ResetCache clears the cached configuration (for testing purposes)
func ResetCache() {
	configMutex.Lock()
	defer configMutex.Unlock()
	cachedConfig = nil
}

// SigningSecret returns the secret used for HS256 tokens. DEV_MODE without a secret falls
// back to a fixed development key.
func (c Config) SigningSecret() string {
	if c.JWTSecret == "" && c.DevMode {
		return devJWTSecret
	}
	return c.JWTSecret
}

// Validate checks if required configuration fields are properly set
func (c Config) Validate() error {
	if c.AppPort <= 0 || c.AppPort > 65535 {
		return ErrAppPortRange
	}
	if c.LogLevel == "" {
		return ErrLogLevelEmpty
	}
	if c.LogFormat == "" {
		return ErrLogFormatEmpty
	}

	switch c.StoreDriver {
	case StoreMongo, "":
		if c.MongoURI == "" {
			return ErrMongoURIEmpty
		}
		if c.MongoDBName == "" {
			return ErrMongoDBNameEmpty
		}
	case StorePostgres:
		if c.PostgresDSN == "" {
			return ErrPostgresDSNEmpty
		}
	default:
		return ErrStoreDriverUnsupported
	}

	switch c.JWTAlgorithm {
	case "HS256", "RS256":
	default:
		return ErrJWTAlgorithmUnsupported
	}
	if !c.DevMode {
		if c.JWTSecret == "" {
			return ErrJWTSecretRequired
		}
		if c.JWTAlgorithm == "HS256" && len(c.JWTSecret) < 32 {
			return ErrJWTSecretTooShort
		}
	}

	if c.WSMaxSessionSec <= 0 {
		return ErrWSMaxSession
	}
	if c.WSOutboxBuffer <= 0 {
		return ErrWSOutboxBuffer
	}
	if c.MutationRatePerMin < 1 {
		return ErrMutationRatePerMin
	}
	if c.WSConnectRatePerMin < 0 {
		return ErrWSConnectRatePerMin
	}
	return nil
}
