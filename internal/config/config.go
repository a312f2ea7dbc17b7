package config

import (
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config stores all configuration for the application.
// The values are read by viper from a config file or environment variables.
type Config struct {
	Exchange ExchangeConfig
	Scan     ScanConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Metrics  MetricsConfig
	Log      LogConfig
}

// ExchangeConfig holds the endpoints and credentials handed to the exchange clients.
type ExchangeConfig struct {
	Name        string
	RestURL     string `mapstructure:"rest_url"`
	WSAPIURL    string `mapstructure:"ws_api_url"`
	APIKey      string `mapstructure:"api_key"`
	SecretKey   string `mapstructure:"secret_key"`
	PriceSource string `mapstructure:"price_source"`
	TimeoutMS   int    `mapstructure:"timeout_ms"`
	// TradingOnly drops symbols whose status is not TRADING before building the graph.
	TradingOnly bool `mapstructure:"trading_only"`
}

// ScanConfig defines how scans are run.
type ScanConfig struct {
	Workers           int
	IntervalMS        int     `mapstructure:"interval_ms"`
	TimeoutMS         int     `mapstructure:"timeout_ms"`
	MinProfitMultiple float64 `mapstructure:"min_profit_multiple"`
}

// DatabaseConfig defines the database connection settings.
type DatabaseConfig struct {
	Enabled  bool
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	MaxConns int `mapstructure:"max_conns"`
}

// DSN returns the postgres URL for the database. User and password are escaped.
func (c DatabaseConfig) DSN() string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(c.User, c.Password),
		Host:   net.JoinHostPort(c.Host, strconv.Itoa(c.Port)),
		Path:   "/" + c.DBName,
	}
	return u.String()
}

// RedisConfig defines where the latest results are published.
type RedisConfig struct {
	Enabled   bool
	Addr      string
	Password  string
	DB        int
	KeyPrefix string `mapstructure:"key_prefix"`
}

// MetricsConfig defines the prometheus listener. An empty Addr disables it.
type MetricsConfig struct {
	Addr string
}

// LogConfig selects the slog handler and level.
type LogConfig struct {
	Level  string
	Format string
}

// Timeout is the per-request timeout for exchange calls.
func (c ExchangeConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutMS) * time.Millisecond
}

// Interval is the pause between scans; zero means run once.
func (c ScanConfig) Interval() time.Duration {
	return time.Duration(c.IntervalMS) * time.Millisecond
}

// Timeout bounds a single scan; zero means no limit.
func (c ScanConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutMS) * time.Millisecond
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("exchange.name", "binanceus")
	v.SetDefault("exchange.rest_url", "")
	v.SetDefault("exchange.ws_api_url", "")
	v.SetDefault("exchange.api_key", "")
	v.SetDefault("exchange.secret_key", "")
	v.SetDefault("exchange.price_source", "rest")
	v.SetDefault("exchange.timeout_ms", 5000)
	v.SetDefault("exchange.trading_only", false)

	v.SetDefault("scan.workers", 4)
	v.SetDefault("scan.interval_ms", 0)
	v.SetDefault("scan.timeout_ms", 120000)
	v.SetDefault("scan.min_profit_multiple", 1.0)

	v.SetDefault("database.enabled", false)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "triscan")
	v.SetDefault("database.password", "")
	v.SetDefault("database.dbname", "triscan")
	v.SetDefault("database.max_conns", 4)

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.key_prefix", "triscan:")

	v.SetDefault("metrics.addr", "")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
}

// LoadConfig reads configuration from file or environment variables.
// A missing config file is not an error; defaults and TRISCAN_* variables still apply.
func LoadConfig(path string) (config Config, err error) {
	v := viper.New()
	setDefaults(v)

	v.AddConfigPath(path)
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	v.SetEnvPrefix("triscan")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err = v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return
		}
		err = nil
	}

	err = v.Unmarshal(&config)
	return
}
