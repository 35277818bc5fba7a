package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Server    ServerConfig    `mapstructure:"server"`
	Log       LogConfig       `mapstructure:"log"`
	Cache     CacheConfig     `mapstructure:"cache"`
	Binance   VenueConfig     `mapstructure:"binance"`
	Bybit     VenueConfig     `mapstructure:"bybit"`
	CoinGecko CoinGeckoConfig `mapstructure:"coingecko"`
	Refresh   RefreshConfig   `mapstructure:"refresh"`
}

type AppConfig struct {
	Env string `mapstructure:"env"`
}

type ServerConfig struct {
	HTTPAddr string `mapstructure:"http_addr"`
}

type LogConfig struct {
	Level             string `mapstructure:"level"`
	Encoding          string `mapstructure:"encoding"`
	Development       bool   `mapstructure:"development"`
	Sampling          bool   `mapstructure:"sampling"`
	DisableCaller     bool   `mapstructure:"disable_caller"`
	DisableStacktrace bool   `mapstructure:"disable_stacktrace"`
}

type CacheConfig struct {
	Backend   string `mapstructure:"backend"`
	RedisAddr string `mapstructure:"redis_addr"`
	RedisDB   int    `mapstructure:"redis_db"`
}

// VenueConfig holds the per-exchange polling knobs. BatchSize and BatchDelay
// throttle the per-symbol sub-requests (open interest, funding history) so a
// full scan stays under the venue's public rate limits.
type VenueConfig struct {
	BaseURL    string        `mapstructure:"base_url"`
	Timeout    time.Duration `mapstructure:"timeout"`
	BatchSize  int           `mapstructure:"batch_size"`
	BatchDelay time.Duration `mapstructure:"batch_delay"`
}

type CoinGeckoConfig struct {
	BaseURL           string        `mapstructure:"base_url"`
	Timeout           time.Duration `mapstructure:"timeout"`
	MarketDataTTL     time.Duration `mapstructure:"market_data_ttl"`
	PageSize          int           `mapstructure:"page_size"`
	PageDelay         time.Duration `mapstructure:"page_delay"`
	SearchConcurrency int           `mapstructure:"search_concurrency"`
	SearchDelay       time.Duration `mapstructure:"search_delay"`
}

type RefreshConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Schedule string        `mapstructure:"schedule"`
	MaxAge   time.Duration `mapstructure:"max_age"`
}

func Load(path string, envOnly bool) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("PS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.AutomaticEnv()

	v.SetDefault("app.env", "dev")
	v.SetDefault("server.http_addr", ":8080")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.encoding", "console")
	v.SetDefault("log.development", true)
	v.SetDefault("log.sampling", false)
	v.SetDefault("log.disable_caller", false)
	v.SetDefault("log.disable_stacktrace", false)

	v.SetDefault("cache.backend", "memory")
	v.SetDefault("cache.redis_addr", "localhost:6379")
	v.SetDefault("cache.redis_db", 0)

	v.SetDefault("binance.base_url", "https://fapi.binance.com")
	v.SetDefault("binance.timeout", "10s")
	v.SetDefault("binance.batch_size", 15)
	v.SetDefault("binance.batch_delay", "200ms")

	v.SetDefault("bybit.base_url", "https://api.bybit.com")
	v.SetDefault("bybit.timeout", "10s")
	v.SetDefault("bybit.batch_size", 10)
	v.SetDefault("bybit.batch_delay", "200ms")

	v.SetDefault("coingecko.base_url", "https://api.coingecko.com")
	v.SetDefault("coingecko.timeout", "15s")
	v.SetDefault("coingecko.market_data_ttl", "2m")
	v.SetDefault("coingecko.page_size", 250)
	v.SetDefault("coingecko.page_delay", "500ms")
	v.SetDefault("coingecko.search_concurrency", 5)
	v.SetDefault("coingecko.search_delay", "300ms")

	v.SetDefault("refresh.enabled", true)
	v.SetDefault("refresh.schedule", "@every 1m")
	v.SetDefault("refresh.max_age", "2m")

	if !envOnly {
		if err := v.ReadInConfig(); err != nil {
			return Config{}, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}

	return cfg, nil
}
