package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"

	"github.com/congo-pay/settlement/internal/fees"
	"github.com/congo-pay/settlement/internal/ledger"
)

const (
	defaultAppName        = "CongoPay"
	defaultAppEnv         = "development"
	defaultPort           = "8080"
	defaultLogLevel       = "info"
	defaultShutdownDelay  = 10 * time.Second
	defaultIdempotencyTTL = 24 * time.Hour
	configFileEnvVar      = "CONFIG_FILE"
)

// Config captures application runtime configuration loaded from the
// environment, an optional .env file and an optional YAML file.
type Config struct {
	AppName             string        `mapstructure:"app_name"`
	AppEnv              string        `mapstructure:"app_env"`
	Port                string        `mapstructure:"port"`
	LogLevel            string        `mapstructure:"log_level"`
	LogFormat           string        `mapstructure:"log_format"`
	DatabaseURL         string        `mapstructure:"database_url"`
	DBMaxConns          int32         `mapstructure:"db_max_conns"`
	RedisURL            string        `mapstructure:"redis_url"`
	KafkaBrokers        []string      `mapstructure:"kafka_brokers"`
	KafkaTopic          string        `mapstructure:"kafka_topic"`
	JWTSecret           string        `mapstructure:"jwt_secret"`
	RefreshSecret       string        `mapstructure:"refresh_secret"`
	AccessTokenTTL      time.Duration `mapstructure:"access_token_ttl"`
	RefreshTokenTTL     time.Duration `mapstructure:"refresh_token_ttl"`
	ShutdownPeriod      time.Duration `mapstructure:"shutdown_timeout"`
	IdempotencyTTL      time.Duration `mapstructure:"idempotency_ttl"`
	LedgerLockTimeout   time.Duration `mapstructure:"ledger_lock_timeout"`
	FundingLockTimeout  time.Duration `mapstructure:"funding_lock_timeout"`
	NotificationTimeout time.Duration `mapstructure:"notification_timeout"`
	LoginRateLimit      int           `mapstructure:"login_rate_limit"`
	FeeSinkAccount      string        `mapstructure:"fee_sink_account"`
	Fees                fees.Schedule `mapstructure:"fees"`
}

var defaults = map[string]any{
	"app_name":             defaultAppName,
	"app_env":              defaultAppEnv,
	"port":                 defaultPort,
	"log_level":            defaultLogLevel,
	"log_format":           "json",
	"database_url":         "",
	"db_max_conns":         10,
	"redis_url":            "",
	"kafka_brokers":        "",
	"kafka_topic":          "ledger.balance-changed",
	"jwt_secret":           "",
	"refresh_secret":       "",
	"access_token_ttl":     15 * time.Minute,
	"refresh_token_ttl":    7 * 24 * time.Hour,
	"shutdown_timeout":     defaultShutdownDelay,
	"idempotency_ttl":      defaultIdempotencyTTL,
	"ledger_lock_timeout":  2 * time.Second,
	"funding_lock_timeout": 5 * time.Second,
	"notification_timeout": 5 * time.Second,
	"login_rate_limit":     5,
	"fee_sink_account":     ledger.FeeSinkAccountCode,
	"fees.version":         1,
}

var feeDefaults = map[fees.Operation]fees.Policy{
	fees.OperationDeposit:    {},
	fees.OperationWithdrawal: {Enabled: true, Percentage: decimal.RequireFromString("1"), MinFee: 100, MaxFee: 2_500},
	fees.OperationTransfer:   {Enabled: true, Percentage: decimal.RequireFromString("0.5"), MinFee: 25, MaxFee: 1_000},
}

// Load reads configuration values and populates a Config instance.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	for op, p := range feeDefaults {
		prefix := "fees." + string(op) + "."
		v.SetDefault(prefix+"enabled", p.Enabled)
		v.SetDefault(prefix+"percentage", p.Percentage.String())
		v.SetDefault(prefix+"fixed", p.Fixed)
		v.SetDefault(prefix+"min_fee", p.MinFee)
		v.SetDefault(prefix+"max_fee", p.MaxFee)
	}

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path := os.Getenv(configFileEnvVar); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
		decimalHook(),
	))); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	cfg.LogLevel = strings.ToLower(cfg.LogLevel)
	cfg.LogFormat = strings.ToLower(cfg.LogFormat)
	cfg.KafkaBrokers = compact(cfg.KafkaBrokers)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate enforces the settings required outside development.
func (c Config) Validate() error {
	if err := c.Fees.Validate(); err != nil {
		return err
	}
	if c.IsDev() {
		return nil
	}
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL must be set when APP_ENV=%s", c.AppEnv)
	}
	if c.RedisURL == "" {
		return fmt.Errorf("REDIS_URL must be set when APP_ENV=%s", c.AppEnv)
	}
	if c.JWTSecret == "" || c.RefreshSecret == "" {
		return fmt.Errorf("JWT_SECRET and REFRESH_SECRET must be set when APP_ENV=%s", c.AppEnv)
	}
	return nil
}

// IsDev reports whether in-memory backends and default secrets are allowed.
func (c Config) IsDev() bool {
	switch strings.ToLower(c.AppEnv) {
	case "dev", "development", "local", "test":
		return true
	default:
		return false
	}
}

// Address returns the listen address in the format Fiber expects.
func (c Config) Address() string {
	if strings.HasPrefix(c.Port, ":") {
		return c.Port
	}
	return fmt.Sprintf(":%s", c.Port)
}

func decimalHook() mapstructure.DecodeHookFuncType {
	target := reflect.TypeOf(decimal.Decimal{})
	return func(from reflect.Type, to reflect.Type, data any) (any, error) {
		if to != target {
			return data, nil
		}
		switch v := data.(type) {
		case string:
			if strings.TrimSpace(v) == "" {
				return decimal.Zero, nil
			}
			return decimal.NewFromString(strings.TrimSpace(v))
		case float64:
			return decimal.NewFromFloat(v), nil
		case int:
			return decimal.NewFromInt(int64(v)), nil
		case int64:
			return decimal.NewFromInt(v), nil
		}
		return data, nil
	}
}

func compact(items []string) []string {
	out := items[:0]
	for _, item := range items {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
