package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var configKeys = []string{
	"APP_PORT", "LOG_LEVEL", "LOG_FORMAT",
	"STORE_DRIVER", "MONGO_URI", "MONGO_DB_NAME", "POSTGRES_DSN",
	"JWT_SECRET", "JWT_ALGORITHM",
	"WS_MAX_SESSION_SEC", "WS_OUTBOX_BUFFER", "WS_CONNECT_RATE_PER_MIN",
	"ROUTE_METRICS_ENABLED", "REQUEST_LOGGING_ENABLED", "MUTATION_RATE_PER_MIN",
	"PYROSCOPE_ADDRESS", "DEV_MODE",
}

// freshEnv blanks every key Load reads and drops the cache. t.Setenv restores the previous
// values when the test ends; viper treats the empty values as unset.
func freshEnv(t *testing.T) {
	t.Helper()
	for _, k := range configKeys {
		t.Setenv(k, "")
	}
	ResetCache()
	t.Cleanup(ResetCache)
}

func validConfig() Config {
	return Config{
		AppPort:             8080,
		LogLevel:            "info",
		LogFormat:           "json",
		StoreDriver:         StoreMongo,
		MongoURI:            "mongodb://localhost:27017",
		MongoDBName:         "spacepulse_test",
		JWTSecret:           "0123456789abcdef0123456789abcdef",
		JWTAlgorithm:        "HS256",
		WSMaxSessionSec:     900,
		WSOutboxBuffer:      256,
		MutationRatePerMin:  120,
		WSConnectRatePerMin: 30,
	}
}

func TestLoadDefaults(t *testing.T) {
	freshEnv(t)
	t.Setenv("DEV_MODE", "true")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.AppPort)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, StoreMongo, cfg.StoreDriver)
	assert.Equal(t, "mongodb://mongo:27017", cfg.MongoURI)
	assert.Equal(t, "spacepulse", cfg.MongoDBName)
	assert.Empty(t, cfg.PostgresDSN)
	assert.Empty(t, cfg.JWTSecret)
	assert.Equal(t, "HS256", cfg.JWTAlgorithm)
	assert.Equal(t, 900, cfg.WSMaxSessionSec)
	assert.Equal(t, 256, cfg.WSOutboxBuffer)
	assert.Equal(t, 120, cfg.MutationRatePerMin)
	assert.Equal(t, 30, cfg.WSConnectRatePerMin)
	assert.True(t, cfg.RouteMetricsEnabled)
	assert.True(t, cfg.RequestLoggingEnabled)
	assert.Empty(t, cfg.PyroscopeAddress)
	assert.True(t, cfg.DevMode)
}

func TestLoadPostgresFromEnv(t *testing.T) {
	freshEnv(t)
	t.Setenv("STORE_DRIVER", "postgres")
	t.Setenv("POSTGRES_DSN", "postgres://pulse:pulse@db:5432/spaces?sslmode=disable")
	t.Setenv("JWT_SECRET", "0123456789abcdef0123456789abcdef")
	t.Setenv("APP_PORT", "9090")
	t.Setenv("ROUTE_METRICS_ENABLED", "false")
	t.Setenv("WS_CONNECT_RATE_PER_MIN", "0")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, StorePostgres, cfg.StoreDriver)
	assert.Equal(t, "postgres://pulse:pulse@db:5432/spaces?sslmode=disable", cfg.PostgresDSN)
	assert.Equal(t, 9090, cfg.AppPort)
	assert.False(t, cfg.RouteMetricsEnabled)
	assert.Zero(t, cfg.WSConnectRatePerMin)
	assert.False(t, cfg.DevMode)
}

func TestLoadRejectsMissingSecret(t *testing.T) {
	freshEnv(t)

	_, err := Load()
	assert.ErrorIs(t, err, ErrJWTSecretRequired)
}

func TestLoadCaches(t *testing.T) {
	freshEnv(t)
	t.Setenv("DEV_MODE", "true")

	first, err := Load()
	require.NoError(t, err)

	t.Setenv("APP_PORT", "7000")
	second, err := Load()
	require.NoError(t, err)
	assert.Equal(t, first, second, "cached config ignores later env changes")

	ResetCache()
	third, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 7000, third.AppPort)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
		want   error
	}{
		{"valid", func(*Config) {}, nil},
		{"port zero", func(c *Config) { c.AppPort = 0 }, ErrAppPortRange},
		{"port too high", func(c *Config) { c.AppPort = 70000 }, ErrAppPortRange},
		{"empty log level", func(c *Config) { c.LogLevel = "" }, ErrLogLevelEmpty},
		{"empty log format", func(c *Config) { c.LogFormat = "" }, ErrLogFormatEmpty},
		{"unknown store", func(c *Config) { c.StoreDriver = "sqlite" }, ErrStoreDriverUnsupported},
		{"empty store means mongo", func(c *Config) { c.StoreDriver = "" }, nil},
		{"mongo without uri", func(c *Config) { c.MongoURI = "" }, ErrMongoURIEmpty},
		{"mongo without db", func(c *Config) { c.MongoDBName = "" }, ErrMongoDBNameEmpty},
		{"postgres without dsn", func(c *Config) { c.StoreDriver = StorePostgres }, ErrPostgresDSNEmpty},
		{"postgres ignores mongo settings", func(c *Config) {
			c.StoreDriver = StorePostgres
			c.PostgresDSN = "postgres://localhost/spaces"
			c.MongoURI = ""
		}, nil},
		{"unknown jwt algorithm", func(c *Config) { c.JWTAlgorithm = "ES256" }, ErrJWTAlgorithmUnsupported},
		{"missing secret", func(c *Config) { c.JWTSecret = "" }, ErrJWTSecretRequired},
		{"dev mode allows missing secret", func(c *Config) { c.JWTSecret = ""; c.DevMode = true }, nil},
		{"short hs256 secret", func(c *Config) { c.JWTSecret = "short" }, ErrJWTSecretTooShort},
		{"rs256 key length is not checked", func(c *Config) { c.JWTAlgorithm = "RS256"; c.JWTSecret = "pem" }, nil},
		{"zero session", func(c *Config) { c.WSMaxSessionSec = 0 }, ErrWSMaxSession},
		{"zero outbox", func(c *Config) { c.WSOutboxBuffer = 0 }, ErrWSOutboxBuffer},
		{"zero mutation rate", func(c *Config) { c.MutationRatePerMin = 0 }, ErrMutationRatePerMin},
		{"negative connect rate", func(c *Config) { c.WSConnectRatePerMin = -1 }, ErrWSConnectRatePerMin},
		{"connect limiter off", func(c *Config) { c.WSConnectRatePerMin = 0 }, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.modify(&cfg)

			err := cfg.Validate()
			if tt.want == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestSigningSecret(t *testing.T) {
	cfg := validConfig()
	assert.Equal(t, cfg.JWTSecret, cfg.SigningSecret())

	cfg.JWTSecret = ""
	assert.Empty(t, cfg.SigningSecret(), "no fallback outside dev mode")

	cfg.DevMode = true
	assert.GreaterOrEqual(t, len(cfg.SigningSecret()), 32)
}
