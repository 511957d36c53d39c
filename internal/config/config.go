package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/collabdocs/collabdocs/pkg/logger"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds application configuration
type Config struct {
	Server    ServerConfig
	MongoDB   MongoDBConfig
	Redis     RedisConfig
	Keycloak  KeycloakConfig
	JWT       JWTConfig
	RateLimit RateLimitConfig
	Collab    CollabConfig
}

type ServerConfig struct {
	Port        string
	Host        string
	Environment string
	// ReadTimeout bounds reading request headers.
	ReadTimeout time.Duration
	CORSOrigin  string
}

type MongoDBConfig struct {
	URI      string
	Database string
	Timeout  time.Duration
}

type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
}

// Addr returns host:port, or "" when Redis is not configured.
func (r RedisConfig) Addr() string {
	if r.Host == "" {
		return ""
	}
	return r.Host + ":" + r.Port
}

type KeycloakConfig struct {
	URL      string
	Realm    string
	ClientID string
}

type JWTConfig struct {
	Secret         string
	AccessTokenTTL time.Duration
	AllowInsecure  bool
}

type RateLimitConfig struct {
	Enabled       bool
	UseRedis      bool
	RPS           float64
	Burst         int
	WindowSeconds int
}

// CollabConfig tunes the realtime session layer.
type CollabConfig struct {
	// EnforceAccess applies viewer/editor checks to socket events.
	EnforceAccess bool
	// PresenceBackend is "memory" or "redis".
	PresenceBackend string
	// BusEnabled fans room broadcasts out to other instances over Redis.
	BusEnabled   bool
	StoreTimeout time.Duration
	SendQueue    int
	PingPeriod   time.Duration
	PongWait     time.Duration
	MaxMessage   int64
	// MessageRPS caps inbound frames per socket; 0 disables the cap.
	MessageRPS   float64
	MessageBurst int
}

// LoadConfig loads configuration from environment variables and an optional .env file
func LoadConfig() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("SERVER_PORT", "5000")
	v.SetDefault("SERVER_HOST", "0.0.0.0")
	v.SetDefault("SERVER_ENVIRONMENT", "development")
	v.SetDefault("CLIENT_URL", "http://localhost:5173")
	v.SetDefault("MONGODB_DATABASE", "collabdocs")
	v.SetDefault("MONGODB_TIMEOUT", 10)
	v.SetDefault("REDIS_PORT", "6379")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("JWT_ACCESS_TOKEN_TTL", 60*24*7)
	v.SetDefault("RATE_LIMIT_ENABLED", false)
	v.SetDefault("RATE_LIMIT_USE_REDIS", false)
	v.SetDefault("RATE_LIMIT_RPS", 10.0)
	v.SetDefault("RATE_LIMIT_BURST", 20)
	v.SetDefault("RATE_LIMIT_WINDOW_SECONDS", 1)
	v.SetDefault("COLLAB_ENFORCE_ACCESS", true)
	v.SetDefault("PRESENCE_BACKEND", "memory")
	v.SetDefault("COLLAB_BUS_ENABLED", false)
	v.SetDefault("COLLAB_STORE_TIMEOUT", 10)
	v.SetDefault("COLLAB_SEND_QUEUE", 256)
	v.SetDefault("COLLAB_PING_SECONDS", 20)
	v.SetDefault("COLLAB_MAX_MESSAGE_BYTES", 1<<20)
	v.SetDefault("COLLAB_MESSAGE_RPS", 50.0)
	v.SetDefault("COLLAB_MESSAGE_BURST", 100)

	ping := time.Duration(v.GetInt("COLLAB_PING_SECONDS")) * time.Second
	cfg := &Config{
		Server: ServerConfig{
			Port:        v.GetString("SERVER_PORT"),
			Host:        v.GetString("SERVER_HOST"),
			Environment: v.GetString("SERVER_ENVIRONMENT"),
			ReadTimeout: 30 * time.Second,
			CORSOrigin:  v.GetString("CLIENT_URL"),
		},
		MongoDB: MongoDBConfig{
			URI:      v.GetString("MONGODB_URI"),
			Database: v.GetString("MONGODB_DATABASE"),
			Timeout:  time.Duration(v.GetInt("MONGODB_TIMEOUT")) * time.Second,
		},
		Redis: RedisConfig{
			Host:     v.GetString("REDIS_HOST"),
			Port:     v.GetString("REDIS_PORT"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       v.GetInt("REDIS_DB"),
		},
		Keycloak: KeycloakConfig{
			URL:      v.GetString("KEYCLOAK_URL"),
			Realm:    v.GetString("KEYCLOAK_REALM"),
			ClientID: v.GetString("KEYCLOAK_CLIENT_ID"),
		},
		JWT: JWTConfig{
			Secret:         os.Getenv("JWT_SECRET"),
			AccessTokenTTL: time.Duration(v.GetInt("JWT_ACCESS_TOKEN_TTL")) * time.Minute,
			AllowInsecure:  v.GetBool("ALLOW_INSECURE_TOKEN"),
		},
		RateLimit: RateLimitConfig{
			Enabled:       v.GetBool("RATE_LIMIT_ENABLED"),
			UseRedis:      v.GetBool("RATE_LIMIT_USE_REDIS"),
			RPS:           v.GetFloat64("RATE_LIMIT_RPS"),
			Burst:         v.GetInt("RATE_LIMIT_BURST"),
			WindowSeconds: v.GetInt("RATE_LIMIT_WINDOW_SECONDS"),
		},
		Collab: CollabConfig{
			EnforceAccess:   v.GetBool("COLLAB_ENFORCE_ACCESS"),
			PresenceBackend: strings.ToLower(v.GetString("PRESENCE_BACKEND")),
			BusEnabled:      v.GetBool("COLLAB_BUS_ENABLED"),
			StoreTimeout:    time.Duration(v.GetInt("COLLAB_STORE_TIMEOUT")) * time.Second,
			SendQueue:       v.GetInt("COLLAB_SEND_QUEUE"),
			PingPeriod:      ping,
			PongWait:        ping * 3 / 2,
			MaxMessage:      v.GetInt64("COLLAB_MAX_MESSAGE_BYTES"),
			MessageRPS:      v.GetFloat64("COLLAB_MESSAGE_RPS"),
			MessageBurst:    v.GetInt("COLLAB_MESSAGE_BURST"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.JWT.Secret == "" && cfg.Keycloak.URL == "" {
		logger.Warn("neither JWT_SECRET nor KEYCLOAK_URL is set; every authenticated request will be refused")
	}
	return cfg, nil
}

// Validate checks combinations that cannot work at runtime.
func (c *Config) Validate() error {
	switch c.Collab.PresenceBackend {
	case "memory":
	case "redis":
		if c.Redis.Host == "" {
			return fmt.Errorf("PRESENCE_BACKEND=redis requires REDIS_HOST")
		}
	default:
		return fmt.Errorf("unknown PRESENCE_BACKEND %q (want memory or redis)", c.Collab.PresenceBackend)
	}
	if c.Collab.BusEnabled && c.Redis.Host == "" {
		return fmt.Errorf("COLLAB_BUS_ENABLED requires REDIS_HOST")
	}
	if c.Collab.SendQueue <= 0 {
		return fmt.Errorf("COLLAB_SEND_QUEUE must be positive")
	}
	return nil
}
