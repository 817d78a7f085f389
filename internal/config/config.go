package config

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/serviciomed/serviciomed/internal/programs"
	"github.com/serviciomed/serviciomed/internal/storage"
	"github.com/serviciomed/serviciomed/pkg/logger"
)

// Config holds application configuration
type Config struct {
	Server    ServerConfig
	Log       LogConfig
	Database  DatabaseConfig
	MongoDB   MongoDBConfig
	Redis     RedisConfig
	Session   SessionConfig
	Storage   storage.Config
	RateLimit RateLimitConfig
	Intake    IntakeConfig
	Programs  []programs.Program
}

type ServerConfig struct {
	Port            string
	Host            string
	Environment     string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// Addr is the listen address.
func (s ServerConfig) Addr() string { return net.JoinHostPort(s.Host, s.Port) }

// IsDevelopment reports whether relaxed defaults (generated secret, plain
// cookies) are allowed.
func (s ServerConfig) IsDevelopment() bool {
	switch strings.ToLower(s.Environment) {
	case "development", "dev", "test":
		return true
	}
	return false
}

type LogConfig struct {
	Level  string
	Format string
}

// DatabaseConfig selects the identity and intake store.
type DatabaseConfig struct {
	Driver          string // postgres | sqlite | mongodb
	URL             string
	SQLitePath      string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
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
	return net.JoinHostPort(r.Host, r.Port)
}

type SessionConfig struct {
	Secret string
	TTL    time.Duration
	// Backend is redis, mongodb or memory; empty picks redis when
	// configured, then mongodb, then memory.
	Backend      string
	CookieSecure bool
}

type RateLimitConfig struct {
	Enabled bool
	RPS     float64
	Burst   int
	Window  time.Duration
}

type IntakeConfig struct {
	MaxUploadBytes int64
	ExamTitle      string
	PresignTTL     time.Duration
}

var (
	drivers         = map[string]bool{"postgres": true, "sqlite": true, "mongodb": true}
	storageBackends = map[string]bool{"local": true, "minio": true, "s3": true}
	sessionBackends = map[string]bool{"": true, "redis": true, "mongodb": true, "memory": true}
)

// LoadConfig loads configuration from environment variables, an optional
// .env file and an optional YAML file named by CONFIG_FILE.
func LoadConfig() (*Config, error) {
	envFile := os.Getenv("ENV_FILE")
	if envFile == "" {
		envFile = ".env"
	}
	_ = godotenv.Load(envFile)

	v := viper.New()
	v.AutomaticEnv()
	setDefaults(v)

	cfg := &Config{
		Server: ServerConfig{
			Port:            v.GetString("SERVER_PORT"),
			Host:            v.GetString("SERVER_HOST"),
			Environment:     v.GetString("SERVER_ENVIRONMENT"),
			ReadTimeout:     v.GetDuration("SERVER_READ_TIMEOUT"),
			WriteTimeout:    v.GetDuration("SERVER_WRITE_TIMEOUT"),
			ShutdownTimeout: v.GetDuration("SERVER_SHUTDOWN_TIMEOUT"),
		},
		Log: LogConfig{
			Level:  v.GetString("LOG_LEVEL"),
			Format: v.GetString("LOG_FORMAT"),
		},
		Database: DatabaseConfig{
			Driver:          strings.ToLower(v.GetString("DATABASE_DRIVER")),
			URL:             v.GetString("DATABASE_URL"),
			SQLitePath:      v.GetString("SQLITE_PATH"),
			MaxOpenConns:    v.GetInt("DATABASE_MAX_OPEN_CONNS"),
			MaxIdleConns:    v.GetInt("DATABASE_MAX_IDLE_CONNS"),
			ConnMaxLifetime: v.GetDuration("DATABASE_CONN_MAX_LIFETIME"),
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
		Session: SessionConfig{
			Secret:  os.Getenv("SESSION_SECRET"),
			TTL:     v.GetDuration("SESSION_TTL"),
			Backend: strings.ToLower(v.GetString("SESSION_BACKEND")),
		},
		Storage: storage.Config{
			Backend:   strings.ToLower(v.GetString("STORAGE_BACKEND")),
			LocalDir:  v.GetString("STORAGE_LOCAL_DIR"),
			Endpoint:  v.GetString("STORAGE_ENDPOINT"),
			Region:    v.GetString("STORAGE_REGION"),
			AccessKey: v.GetString("STORAGE_ACCESS_KEY"),
			SecretKey: os.Getenv("STORAGE_SECRET_KEY"),
			Bucket:    v.GetString("STORAGE_BUCKET"),
			UseSSL:    v.GetBool("STORAGE_USE_SSL"),
			PathStyle: v.GetBool("STORAGE_PATH_STYLE"),
			PublicURL: v.GetString("STORAGE_PUBLIC_URL"),
		},
		RateLimit: RateLimitConfig{
			Enabled: v.GetBool("RATE_LIMIT_ENABLED"),
			RPS:     v.GetFloat64("RATE_LIMIT_RPS"),
			Burst:   v.GetInt("RATE_LIMIT_BURST"),
			Window:  v.GetDuration("RATE_LIMIT_WINDOW"),
		},
		Intake: IntakeConfig{
			MaxUploadBytes: v.GetInt64("UPLOAD_MAX_BYTES"),
			ExamTitle:      v.GetString("EXAM_TITLE"),
			PresignTTL:     v.GetDuration("PRESIGN_TTL"),
		},
		Programs: programs.Default,
	}
	cfg.Session.CookieSecure = v.GetBool("SESSION_COOKIE_SECURE") || !cfg.Server.IsDevelopment()

	if file := v.GetString("CONFIG_FILE"); file != "" {
		list, err := loadPrograms(file)
		if err != nil {
			return nil, err
		}
		if len(list) > 0 {
			cfg.Programs = list
		}
	}

	if err := cfg.finalize(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("SERVER_PORT", "5000")
	v.SetDefault("SERVER_HOST", "0.0.0.0")
	v.SetDefault("SERVER_ENVIRONMENT", "development")
	v.SetDefault("SERVER_READ_TIMEOUT", 30*time.Second)
	v.SetDefault("SERVER_WRITE_TIMEOUT", 60*time.Second)
	v.SetDefault("SERVER_SHUTDOWN_TIMEOUT", 15*time.Second)
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "console")
	v.SetDefault("DATABASE_DRIVER", "sqlite")
	v.SetDefault("SQLITE_PATH", "data/serviciomed.db")
	v.SetDefault("DATABASE_MAX_OPEN_CONNS", 10)
	v.SetDefault("DATABASE_MAX_IDLE_CONNS", 5)
	v.SetDefault("DATABASE_CONN_MAX_LIFETIME", 30*time.Minute)
	v.SetDefault("MONGODB_DATABASE", "serviciomed")
	v.SetDefault("MONGODB_TIMEOUT", 10)
	v.SetDefault("REDIS_PORT", "6379")
	v.SetDefault("SESSION_TTL", 12*time.Hour)
	v.SetDefault("STORAGE_BACKEND", "local")
	v.SetDefault("STORAGE_LOCAL_DIR", "data/documentos")
	v.SetDefault("STORAGE_REGION", "us-east-1")
	v.SetDefault("STORAGE_BUCKET", "serviciomed")
	v.SetDefault("RATE_LIMIT_ENABLED", true)
	v.SetDefault("RATE_LIMIT_RPS", 1.0)
	v.SetDefault("RATE_LIMIT_BURST", 5)
	v.SetDefault("RATE_LIMIT_WINDOW", time.Minute)
	v.SetDefault("UPLOAD_MAX_BYTES", 16<<20)
	v.SetDefault("PRESIGN_TTL", 5*time.Minute)
}

// loadPrograms reads the program catalog from the "programs" key of a YAML
// (or any viper-supported) file.
func loadPrograms(file string) ([]programs.Program, error) {
	fv := viper.New()
	fv.SetConfigFile(file)
	if err := fv.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config file %s: %w", file, err)
	}
	var list []programs.Program
	if err := fv.UnmarshalKey("programs", &list); err != nil {
		return nil, fmt.Errorf("parse programs in %s: %w", file, err)
	}
	return list, nil
}

func (c *Config) finalize() error {
	if !drivers[c.Database.Driver] {
		return fmt.Errorf("unsupported DATABASE_DRIVER %q", c.Database.Driver)
	}
	if c.Database.Driver == "postgres" && c.Database.URL == "" {
		return errors.New("DATABASE_URL is required for the postgres driver")
	}
	if c.Database.Driver == "mongodb" && c.MongoDB.URI == "" {
		return errors.New("MONGODB_URI is required for the mongodb driver")
	}
	if !storageBackends[c.Storage.Backend] {
		return fmt.Errorf("unsupported STORAGE_BACKEND %q", c.Storage.Backend)
	}
	if c.Storage.Backend == "minio" && c.Storage.Endpoint == "" {
		return errors.New("STORAGE_ENDPOINT is required for the minio backend")
	}
	if !sessionBackends[c.Session.Backend] {
		return fmt.Errorf("unsupported SESSION_BACKEND %q", c.Session.Backend)
	}
	if c.Session.Backend == "redis" && c.Redis.Addr() == "" {
		return errors.New("REDIS_HOST is required for the redis session backend")
	}
	if c.Session.Backend == "mongodb" && c.MongoDB.URI == "" {
		return errors.New("MONGODB_URI is required for the mongodb session backend")
	}
	if c.Intake.MaxUploadBytes <= 0 {
		return fmt.Errorf("UPLOAD_MAX_BYTES must be positive, got %d", c.Intake.MaxUploadBytes)
	}
	if _, err := programs.NewCatalog(c.Programs); err != nil {
		return fmt.Errorf("program catalog: %w", err)
	}

	if c.Session.Secret == "" {
		if !c.Server.IsDevelopment() {
			return errors.New("SESSION_SECRET is required outside development")
		}
		b := make([]byte, 32)
		if _, err := rand.Read(b); err != nil {
			return err
		}
		c.Session.Secret = hex.EncodeToString(b)
		logger.Warnf("SESSION_SECRET is not set; using a random secret for this process")
	}
	return nil
}
