// Package config loads the chat service configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"

	"socialhub-backend/pkg/env"
)

// Store drivers accepted by STORE_DRIVER
const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
)

// Config holds all configuration for the chat service
type Config struct {
	Server   Server
	Database Database
	Redis    Redis
	JWT      JWT
	Media    Media
	Push     Push
	Log      Log
	Realtime Realtime
}

// Server holds HTTP server configuration
type Server struct {
	Port            int           `env:"PORT" env-default:"8082"`
	Environment     string        `env:"ENV" env-default:"development"`
	ServiceName     string        `env:"SERVICE_NAME" env-default:"chat-service"`
	RequestTimeout  time.Duration `env:"REQUEST_TIMEOUT" env-default:"30s"`
	UploadTimeout   time.Duration `env:"UPLOAD_TIMEOUT" env-default:"120s"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" env-default:"30s"`
	CORSOrigins     []string      `env:"CORS_ORIGINS" env-separator:","`

	RateLimitRequests int           `env:"RATE_LIMIT_REQUESTS" env-default:"120"`
	RateLimitWindow   time.Duration `env:"RATE_LIMIT_WINDOW" env-default:"1m"`
}

// Address returns the listen address
func (s Server) Address() string {
	return fmt.Sprintf(":%d", s.Port)
}

// IsProduction reports whether ENV=production
func (s Server) IsProduction() bool {
	return s.Environment == "production"
}

// Database holds PostgreSQL configuration
type Database struct {
	Driver   string `env:"STORE_DRIVER" env-default:"postgres"`
	URL      string `env:"DATABASE_URL"`
	Host     string `env:"DB_HOST" env-default:"localhost"`
	Port     int    `env:"DB_PORT" env-default:"5432"`
	User     string `env:"DB_USER" env-default:"postgres"`
	Password string `env:"DB_PASSWORD"`
	Name     string `env:"DB_NAME" env-default:"socialhub"`
	SSLMode  string `env:"DB_SSL_MODE" env-default:"disable"`
	MaxConns int32  `env:"DB_MAX_CONNS" env-default:"25"`
	MinConns int32  `env:"DB_MIN_CONNS" env-default:"2"`

	// PoolShedThreshold is the acquired/max ratio above which requests get 503
	PoolShedThreshold float64 `env:"DB_POOL_SHED_THRESHOLD" env-default:"0.95"`
}

// DSN returns DATABASE_URL when set, otherwise one built from the parts
func (d Database) DSN() string {
	if d.URL != "" {
		return d.URL
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.Name, d.SSLMode)
}

// Redis holds Redis configuration. Redis is optional: with Enabled=false the
// service runs without fan-out, profile caching or token revocation.
type Redis struct {
	Enabled         bool          `env:"REDIS_ENABLED" env-default:"true"`
	Host            string        `env:"REDIS_HOST" env-default:"localhost"`
	Port            int           `env:"REDIS_PORT" env-default:"6379"`
	Password        string        `env:"REDIS_PASSWORD"`
	DB              int           `env:"REDIS_DB" env-default:"0"`
	PoolSize        int           `env:"REDIS_POOL_SIZE" env-default:"10"`
	Timeout         time.Duration `env:"REDIS_TIMEOUT" env-default:"3s"`
	Fanout          bool          `env:"REALTIME_REDIS_FANOUT" env-default:"false"`
	ProfileCacheTTL time.Duration `env:"PROFILE_CACHE_TTL" env-default:"5m"`
}

// JWT holds token verification settings
type JWT struct {
	Secret   string        `env:"JWT_SECRET"`
	Audience string        `env:"JWT_AUDIENCE"`
	TTL      time.Duration `env:"JWT_ACCESS_EXPIRY" env-default:"15m"`
}

// Media holds the object store and upload ceilings
type Media struct {
	Enabled   bool   `env:"MEDIA_ENABLED" env-default:"true"`
	Backend   string `env:"MEDIA_BACKEND" env-default:"minio"`
	Bucket    string `env:"MEDIA_BUCKET" env-default:"chat-media"`
	PublicURL string `env:"MEDIA_PUBLIC_URL" env-default:"http://localhost:9000"`

	MinioEndpoint  string `env:"MINIO_ENDPOINT" env-default:"localhost:9000"`
	MinioAccessKey string `env:"MINIO_ACCESS_KEY" env-default:"minioadmin"`
	MinioSecretKey string `env:"MINIO_SECRET_KEY" env-default:"minioadmin"`
	MinioUseSSL    bool   `env:"MINIO_USE_SSL" env-default:"false"`

	S3Endpoint        string `env:"S3_ENDPOINT"`
	S3Region          string `env:"S3_REGION" env-default:"us-east-1"`
	S3AccessKeyID     string `env:"S3_ACCESS_KEY_ID"`
	S3SecretAccessKey string `env:"S3_SECRET_ACCESS_KEY"`

	MaxImageBytes int64 `env:"MEDIA_MAX_IMAGE_BYTES" env-default:"10485760"`
	MaxAudioBytes int64 `env:"MEDIA_MAX_AUDIO_BYTES" env-default:"20971520"`
	MaxVideoBytes int64 `env:"MEDIA_MAX_VIDEO_BYTES" env-default:"104857600"`
}

// Push holds the push transport settings
type Push struct {
	Provider string        `env:"PUSH_PROVIDER" env-default:"mock"`
	Timeout  time.Duration `env:"PUSH_TIMEOUT" env-default:"15s"`

	FCMProjectID       string `env:"FCM_PROJECT_ID"`
	FCMCredentialsPath string `env:"FCM_CREDENTIALS_PATH"`

	APNsKeyPath         string `env:"APNS_KEY_PATH"`
	APNsKeyID           string `env:"APNS_KEY_ID"`
	APNsTeamID          string `env:"APNS_TEAM_ID"`
	APNsCertificatePath string `env:"APNS_CERT_PATH"`
	APNsCertPassword    string `env:"APNS_CERT_PASSWORD"`
	APNsBundleID        string `env:"APNS_BUNDLE_ID"`
	APNsProduction      bool   `env:"APNS_PRODUCTION" env-default:"false"`
}

// Log holds logging configuration
type Log struct {
	Level         string `env:"LOG_LEVEL" env-default:"info"`
	Format        string `env:"LOG_FORMAT" env-default:"json"`
	Output        string `env:"LOG_OUTPUT" env-default:"stdout"`
	FilePath      string `env:"LOG_FILE_PATH" env-default:"logs/chat-service.log"`
	RotationHours int    `env:"LOG_ROTATION_HOURS" env-default:"24"`
	MaxAgeDays    int    `env:"LOG_MAX_AGE_DAYS" env-default:"30"`
}

// Realtime sizes the websocket hub
type Realtime struct {
	ClientBuffer   int           `env:"WS_CLIENT_BUFFER" env-default:"256"`
	RoomMailbox    int           `env:"WS_ROOM_MAILBOX" env-default:"1024"`
	ReorderWindow  time.Duration `env:"WS_REORDER_WINDOW" env-default:"2s"`
	MaxConnections int           `env:"WS_MAX_CONNECTIONS" env-default:"10000"`
	AllowedOrigins []string      `env:"WS_ALLOWED_ORIGINS" env-separator:","`
}

// Load reads an optional .env file, then the environment, then resolves
// Docker secrets given as <NAME>_FILE
func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	if err := cfg.resolveSecrets(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) resolveSecrets() error {
	secrets := []struct {
		key    string
		target *string
	}{
		{"JWT_SECRET", &c.JWT.Secret},
		{"DB_PASSWORD", &c.Database.Password},
		{"REDIS_PASSWORD", &c.Redis.Password},
		{"MINIO_SECRET_KEY", &c.Media.MinioSecretKey},
		{"S3_SECRET_ACCESS_KEY", &c.Media.S3SecretAccessKey},
		{"APNS_CERT_PASSWORD", &c.Push.APNsCertPassword},
	}
	var errs []error
	for _, s := range secrets {
		v, err := env.Secret(s.key, *s.target)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		*s.target = v
	}
	return errors.Join(errs...)
}

// Validate rejects configurations the service cannot run with
func (c *Config) Validate() error {
	var errs []error

	if c.JWT.Secret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	} else if c.Server.IsProduction() && len(c.JWT.Secret) < 32 {
		errs = append(errs, errors.New("JWT_SECRET must be at least 32 characters in production"))
	}

	switch c.Database.Driver {
	case StorePostgres, StoreMemory:
	default:
		errs = append(errs, fmt.Errorf("STORE_DRIVER must be %s or %s, got %q", StorePostgres, StoreMemory, c.Database.Driver))
	}
	if c.Database.Driver == StoreMemory && c.Server.IsProduction() {
		errs = append(errs, errors.New("STORE_DRIVER=memory is not allowed in production"))
	}
	if c.Database.MaxConns <= 0 || c.Database.MinConns < 0 || c.Database.MinConns > c.Database.MaxConns {
		errs = append(errs, fmt.Errorf("invalid pool bounds min=%d max=%d", c.Database.MinConns, c.Database.MaxConns))
	}

	if c.Server.RequestTimeout <= 0 || c.Server.UploadTimeout <= 0 {
		errs = append(errs, errors.New("request and upload timeouts must be positive"))
	}

	if c.Redis.Fanout && !c.Redis.Enabled {
		errs = append(errs, errors.New("REALTIME_REDIS_FANOUT requires REDIS_ENABLED"))
	}

	if c.Media.Enabled {
		switch strings.ToLower(c.Media.Backend) {
		case "minio", "s3", "memory":
		default:
			errs = append(errs, fmt.Errorf("MEDIA_BACKEND must be minio, s3 or memory, got %q", c.Media.Backend))
		}
		if c.Media.MaxImageBytes <= 0 || c.Media.MaxAudioBytes <= 0 || c.Media.MaxVideoBytes <= 0 {
			errs = append(errs, errors.New("media size ceilings must be positive"))
		}
	}

	switch c.Push.Provider {
	case "mock", "fcm", "apns":
	default:
		errs = append(errs, fmt.Errorf("PUSH_PROVIDER must be mock, fcm or apns, got %q", c.Push.Provider))
	}

	if c.Realtime.ClientBuffer <= 0 || c.Realtime.RoomMailbox <= 0 || c.Realtime.ReorderWindow <= 0 {
		errs = append(errs, errors.New("realtime buffers and reorder window must be positive"))
	}

	return errors.Join(errs...)
}
