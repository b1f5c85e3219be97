package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config captures environment driven configuration values for the booking service.
type Config struct {
	HTTPPort                   int
	SQLiteDSN                  string
	SessionSecret              string
	SessionTTL                 time.Duration
	RedisAddr                  string
	LockTTL                    time.Duration
	AMQPURL                    string
	AMQPQueue                  string
	LoginRate                  float64
	LoginBurst                 int
	SeedDemoUsers              bool
	OneBookingPerCompanyPerDay bool
	LogLevel                   string
}

// MemoryDSN selects the in-memory document store instead of SQLite.
const MemoryDSN = "memory"

// Defaults returns the configuration used when nothing overrides a value.
func Defaults() Config {
	return Config{
		HTTPPort:      8080,
		SQLiteDSN:     "file:slotbook.db",
		SessionTTL:    24 * time.Hour,
		LockTTL:       5 * time.Second,
		AMQPQueue:     "slotbook.reservations",
		LoginRate:     1,
		LoginBurst:    5,
		SeedDemoUsers: true,
		LogLevel:      "info",
	}
}

// InMemory reports whether the in-memory store was requested.
func (c Config) InMemory() bool {
	return strings.EqualFold(strings.TrimSpace(c.SQLiteDSN), MemoryDSN)
}

// Load parses configuration values from the current process environment.
//
// The loader applies sensible defaults for optional fields while validating
// required values and reporting localized error messages for missing entries.
func Load() (Config, error) {
	return load(Defaults(), nil)
}

// LoadFile reads a YAML file and then applies environment overrides on top of it.
// An empty path behaves like Load.
func LoadFile(path string) (Config, error) {
	if strings.TrimSpace(path) == "" {
		return Load()
	}

	f, err := os.Open(path)
	if err != nil {
		return Config{}, fmt.Errorf("設定ファイルを読み込めません: %w", err)
	}
	defer f.Close()

	return loadYAML(f)
}

func loadYAML(r io.Reader) (Config, error) {
	var file fileConfig
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("設定ファイルを読み込めません: %w", err)
	}

	cfg := Defaults()
	invalid := file.apply(&cfg)
	return load(cfg, invalid)
}

func load(cfg Config, invalid []string) (Config, error) {
	missing := make([]string, 0, 1)

	if portValue := env("SLOTBOOK_HTTP_PORT"); portValue != "" {
		port, err := strconv.Atoi(portValue)
		if err != nil || port <= 0 || port > 65535 {
			invalid = append(invalid, "SLOTBOOK_HTTP_PORT")
		} else {
			cfg.HTTPPort = port
		}
	}

	if dsn := env("SLOTBOOK_SQLITE_DSN"); dsn != "" {
		cfg.SQLiteDSN = dsn
	}

	if secret := env("SLOTBOOK_SESSION_SECRET"); secret != "" {
		cfg.SessionSecret = secret
	}
	if strings.TrimSpace(cfg.SessionSecret) == "" {
		missing = append(missing, "SLOTBOOK_SESSION_SECRET")
	}

	if ttlValue := env("SLOTBOOK_SESSION_TTL"); ttlValue != "" {
		ttl, err := time.ParseDuration(ttlValue)
		if err != nil || ttl <= 0 {
			invalid = append(invalid, "SLOTBOOK_SESSION_TTL")
		} else {
			cfg.SessionTTL = ttl
		}
	}

	if addr := env("SLOTBOOK_REDIS_ADDR"); addr != "" {
		cfg.RedisAddr = addr
	}

	if ttlValue := env("SLOTBOOK_LOCK_TTL"); ttlValue != "" {
		ttl, err := time.ParseDuration(ttlValue)
		if err != nil || ttl <= 0 {
			invalid = append(invalid, "SLOTBOOK_LOCK_TTL")
		} else {
			cfg.LockTTL = ttl
		}
	}

	if url := env("SLOTBOOK_AMQP_URL"); url != "" {
		cfg.AMQPURL = url
	}
	if queue := env("SLOTBOOK_AMQP_QUEUE"); queue != "" {
		cfg.AMQPQueue = queue
	}

	if rateValue := env("SLOTBOOK_LOGIN_RATE"); rateValue != "" {
		rate, err := strconv.ParseFloat(rateValue, 64)
		if err != nil || rate <= 0 {
			invalid = append(invalid, "SLOTBOOK_LOGIN_RATE")
		} else {
			cfg.LoginRate = rate
		}
	}

	if burstValue := env("SLOTBOOK_LOGIN_BURST"); burstValue != "" {
		burst, err := strconv.Atoi(burstValue)
		if err != nil || burst <= 0 {
			invalid = append(invalid, "SLOTBOOK_LOGIN_BURST")
		} else {
			cfg.LoginBurst = burst
		}
	}

	if seedValue := env("SLOTBOOK_SEED_DEMO_USERS"); seedValue != "" {
		seed, err := strconv.ParseBool(seedValue)
		if err != nil {
			invalid = append(invalid, "SLOTBOOK_SEED_DEMO_USERS")
		} else {
			cfg.SeedDemoUsers = seed
		}
	}

	if limitValue := env("SLOTBOOK_ONE_BOOKING_PER_COMPANY_PER_DAY"); limitValue != "" {
		limit, err := strconv.ParseBool(limitValue)
		if err != nil {
			invalid = append(invalid, "SLOTBOOK_ONE_BOOKING_PER_COMPANY_PER_DAY")
		} else {
			cfg.OneBookingPerCompanyPerDay = limit
		}
	}

	if level := env("SLOTBOOK_LOG_LEVEL"); level != "" {
		cfg.LogLevel = level
	}
	if !validLogLevel(cfg.LogLevel) {
		invalid = append(invalid, "SLOTBOOK_LOG_LEVEL")
	}

	if len(missing) > 0 {
		return Config{}, fmt.Errorf("必須の環境変数が設定されていません: %s", strings.Join(missing, ", "))
	}
	if len(invalid) > 0 {
		return Config{}, fmt.Errorf("環境変数の値が不正です: %s", strings.Join(invalid, ", "))
	}

	return cfg, nil
}

func env(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func validLogLevel(level string) bool {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug", "info", "warn", "warning", "error":
		return true
	}
	return false
}

type fileConfig struct {
	HTTPPort                   *int     `yaml:"http_port"`
	SQLiteDSN                  *string  `yaml:"sqlite_dsn"`
	SessionSecret              *string  `yaml:"session_secret"`
	SessionTTL                 *string  `yaml:"session_ttl"`
	RedisAddr                  *string  `yaml:"redis_addr"`
	LockTTL                    *string  `yaml:"lock_ttl"`
	AMQPURL                    *string  `yaml:"amqp_url"`
	AMQPQueue                  *string  `yaml:"amqp_queue"`
	LoginRate                  *float64 `yaml:"login_rate"`
	LoginBurst                 *int     `yaml:"login_burst"`
	SeedDemoUsers              *bool    `yaml:"seed_demo_users"`
	OneBookingPerCompanyPerDay *bool    `yaml:"one_booking_per_company_per_day"`
	LogLevel                   *string  `yaml:"log_level"`
}

// apply copies the values present in the file and returns the keys that failed validation.
func (f fileConfig) apply(cfg *Config) []string {
	var invalid []string

	if f.HTTPPort != nil {
		if *f.HTTPPort <= 0 || *f.HTTPPort > 65535 {
			invalid = append(invalid, "http_port")
		} else {
			cfg.HTTPPort = *f.HTTPPort
		}
	}
	if f.SQLiteDSN != nil && strings.TrimSpace(*f.SQLiteDSN) != "" {
		cfg.SQLiteDSN = strings.TrimSpace(*f.SQLiteDSN)
	}
	if f.SessionSecret != nil {
		cfg.SessionSecret = strings.TrimSpace(*f.SessionSecret)
	}
	if f.SessionTTL != nil {
		if ttl, err := time.ParseDuration(*f.SessionTTL); err != nil || ttl <= 0 {
			invalid = append(invalid, "session_ttl")
		} else {
			cfg.SessionTTL = ttl
		}
	}
	if f.RedisAddr != nil {
		cfg.RedisAddr = strings.TrimSpace(*f.RedisAddr)
	}
	if f.LockTTL != nil {
		if ttl, err := time.ParseDuration(*f.LockTTL); err != nil || ttl <= 0 {
			invalid = append(invalid, "lock_ttl")
		} else {
			cfg.LockTTL = ttl
		}
	}
	if f.AMQPURL != nil {
		cfg.AMQPURL = strings.TrimSpace(*f.AMQPURL)
	}
	if f.AMQPQueue != nil && strings.TrimSpace(*f.AMQPQueue) != "" {
		cfg.AMQPQueue = strings.TrimSpace(*f.AMQPQueue)
	}
	if f.LoginRate != nil {
		if *f.LoginRate <= 0 {
			invalid = append(invalid, "login_rate")
		} else {
			cfg.LoginRate = *f.LoginRate
		}
	}
	if f.LoginBurst != nil {
		if *f.LoginBurst <= 0 {
			invalid = append(invalid, "login_burst")
		} else {
			cfg.LoginBurst = *f.LoginBurst
		}
	}
	if f.SeedDemoUsers != nil {
		cfg.SeedDemoUsers = *f.SeedDemoUsers
	}
	if f.OneBookingPerCompanyPerDay != nil {
		cfg.OneBookingPerCompanyPerDay = *f.OneBookingPerCompanyPerDay
	}
	if f.LogLevel != nil && strings.TrimSpace(*f.LogLevel) != "" {
		cfg.LogLevel = strings.TrimSpace(*f.LogLevel)
	}

	return invalid
}
