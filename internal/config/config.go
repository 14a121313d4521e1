package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
	DriverMongo    = "mongo"
)

const devSessionSecret = "healthqueue-dev-secret"

type Config struct {
	Port        string
	Environment string
	LogLevel    string

	StoreDriver   string
	DatabaseURL   string
	MongoURI      string
	MongoDatabase string

	SessionSecret string
	SessionTTL    time.Duration

	DefaultWaitMinutes    int
	DepartmentWaitMinutes map[string]int

	RedisAddr           string
	LoginMaxAttempts    int
	LoginLockoutWindow  time.Duration
	NATSURL             string
	NATSSubjectPrefix   string
	RateLimitPerMinute  int
	RateLimitBurst      int
	StaticDir           string
	TrustProxy          bool
	OTLPEndpoint        string
	ShutdownGracePeriod time.Duration
}

func (c Config) Development() bool {
	return c.Environment == "development"
}

// WaitMinutesFor returns the default estimated wait for a department.
func (c Config) WaitMinutesFor(department string) int {
	if minutes, ok := c.DepartmentWaitMinutes[department]; ok {
		return minutes
	}
	return c.DefaultWaitMinutes
}

// Load reads the environment, after merging a .env file when one exists.
func Load() (Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.AutomaticEnv()
	setDefaults(v)

	waits, err := parseDepartmentWaits(v.GetString("DEPARTMENT_WAIT_MINUTES"))
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		Port:                  v.GetString("PORT"),
		Environment:           v.GetString("APP_ENV"),
		LogLevel:              v.GetString("LOG_LEVEL"),
		StoreDriver:           strings.ToLower(v.GetString("STORE_DRIVER")),
		DatabaseURL:           v.GetString("DB_DSN"),
		MongoURI:              v.GetString("MONGO_URI"),
		MongoDatabase:         v.GetString("MONGO_DATABASE"),
		SessionSecret:         v.GetString("SESSION_SECRET"),
		SessionTTL:            time.Duration(v.GetInt("SESSION_TTL_HOURS")) * time.Hour,
		DefaultWaitMinutes:    v.GetInt("DEFAULT_WAIT_MINUTES"),
		DepartmentWaitMinutes: waits,
		RedisAddr:             v.GetString("REDIS_ADDR"),
		LoginMaxAttempts:      v.GetInt("LOGIN_MAX_ATTEMPTS"),
		LoginLockoutWindow:    time.Duration(v.GetInt("LOGIN_LOCKOUT_MINUTES")) * time.Minute,
		NATSURL:               v.GetString("NATS_URL"),
		NATSSubjectPrefix:     v.GetString("NATS_SUBJECT_PREFIX"),
		RateLimitPerMinute:    v.GetInt("RATE_LIMIT_PER_MIN"),
		RateLimitBurst:        v.GetInt("RATE_LIMIT_BURST"),
		StaticDir:             v.GetString("STATIC_DIR"),
		TrustProxy:            v.GetBool("TRUST_PROXY"),
		OTLPEndpoint:          v.GetString("OTEL_EXPORTER_OTLP_ENDPOINT"),
		ShutdownGracePeriod:   time.Duration(v.GetInt("SHUTDOWN_GRACE_SECONDS")) * time.Second,
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("PORT", "8080")
	v.SetDefault("APP_ENV", "production")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("STORE_DRIVER", DriverMemory)
	v.SetDefault("MONGO_DATABASE", "healthqueue")
	v.SetDefault("SESSION_TTL_HOURS", 24*7)
	v.SetDefault("DEFAULT_WAIT_MINUTES", 20)
	v.SetDefault("LOGIN_MAX_ATTEMPTS", 5)
	v.SetDefault("LOGIN_LOCKOUT_MINUTES", 15)
	v.SetDefault("NATS_SUBJECT_PREFIX", "healthqueue")
	v.SetDefault("RATE_LIMIT_PER_MIN", 120)
	v.SetDefault("RATE_LIMIT_BURST", 30)
	v.SetDefault("SHUTDOWN_GRACE_SECONDS", 10)
	v.SetDefault("TRUST_PROXY", false)
}

func (c *Config) validate() error {
	switch c.StoreDriver {
	case DriverMemory:
	case DriverPostgres:
		if c.DatabaseURL == "" {
			return errors.New("DB_DSN is required for the postgres store")
		}
	case DriverMongo:
		if c.MongoURI == "" {
			return errors.New("MONGO_URI is required for the mongo store")
		}
	default:
		return fmt.Errorf("unknown STORE_DRIVER %q", c.StoreDriver)
	}

	if c.SessionSecret == "" {
		if !c.Development() {
			return errors.New("SESSION_SECRET is required outside development")
		}
		c.SessionSecret = devSessionSecret
	}
	if c.SessionTTL <= 0 {
		return errors.New("SESSION_TTL_HOURS must be positive")
	}
	if c.DefaultWaitMinutes < 0 {
		return errors.New("DEFAULT_WAIT_MINUTES must not be negative")
	}
	return nil
}

// parseDepartmentWaits reads "Cardiology=15,ENT=25".
func parseDepartmentWaits(raw string) (map[string]int, error) {
	waits := map[string]int{}
	for _, pair := range strings.Split(raw, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		name, value, ok := strings.Cut(pair, "=")
		if !ok {
			return nil, fmt.Errorf("DEPARTMENT_WAIT_MINUTES: malformed pair %q", pair)
		}
		minutes, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil || minutes < 0 {
			return nil, fmt.Errorf("DEPARTMENT_WAIT_MINUTES: bad minutes for %q", name)
		}
		waits[strings.TrimSpace(name)] = minutes
	}
	return waits, nil
}
