// Package config loads application settings from defaults, an optional
// config file, .env and the environment.
package config

import (
	"errors"
	"fmt"
	"log"
	"path/filepath"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// AppName names the config and cache directories.
const AppName = "price-aggregator"

// EnvPrefix prefixes every environment override, e.g. PRICEAGG_CACHE_BACKEND.
const EnvPrefix = "PRICEAGG"

// KnownSources lists the marketplaces in dispatch order.
var KnownSources = []string{"amazon", "rakuten", "yahoo", "kakaku"}

// Config holds all application configuration.
type Config struct {
	Search   SearchConfig
	Retry    RetryConfig
	Cache    CacheConfig
	Scrape   ScrapeConfig
	Amazon   AmazonConfig
	Rakuten  RakutenConfig
	Yahoo    YahooConfig
	Kakaku   KakakuConfig
	Redis    RedisConfig
	Postgres PostgresConfig
	Archive  ArchiveConfig
	HTTP     HTTPConfig
	Log      LogConfig
}

type SearchConfig struct {
	PriceThreshold   decimal.Decimal
	CommonTerms      []string
	DetailLimit      int
	PriceLimit       int
	PriceLimits      map[string]int
	BestPicks        int
	AdapterTimeout   time.Duration
	Sources          []string
	ModelConcurrency int
	RateLimitMs      int
}

type RetryConfig struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// CacheConfig selects the durable store behind the per-adapter caches:
// "file", "sqlite", "redis" or "none".
type CacheConfig struct {
	Backend    string
	Dir        string
	SQLitePath string
	TTL        time.Duration
	FlushEvery int
}

type ScrapeConfig struct {
	Enabled     bool
	UserAgent   string
	Timeout     time.Duration
	UseBrowser  bool
	ChromeBin   string
	SettleDelay time.Duration
}

type AmazonConfig struct {
	AccessKey  string
	SecretKey  string
	PartnerTag string
	Region     string
}

type RakutenConfig struct {
	AppID       string
	AffiliateID string
	Endpoint    string
}

type YahooConfig struct {
	ClientID string
}

type KakakuConfig struct {
	SiteURL string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type PostgresConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DB       string
	SSLMode  string
}

// ArchiveConfig controls result archiving to PostgreSQL and CSV.
type ArchiveConfig struct {
	Enabled bool
	CSVPath string
}

type HTTPConfig struct {
	Addr         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

type LogConfig struct {
	Level  string
	Format string
	Output string
}

// legacyEnv maps keys to the unprefixed variable names older deployments use.
var legacyEnv = map[string]string{
	"rakuten.app_id":       "RAKUTEN_APP_ID",
	"rakuten.affiliate_id": "RAKUTEN_AFFILIATE_ID",
	"yahoo.client_id":      "YAHOO_CLIENT_ID",
	"amazon.access_key":    "AMAZON_ACCESS_KEY",
	"amazon.secret_key":    "AMAZON_SECRET_KEY",
	"amazon.partner_tag":   "AMAZON_PARTNER_TAG",
	"amazon.region":        "AMAZON_REGION",
	"postgres.host":        "POSTGRES_HOST",
	"postgres.port":        "POSTGRES_PORT",
	"postgres.user":        "POSTGRES_USER",
	"postgres.password":    "POSTGRES_PASSWORD",
	"postgres.db":          "POSTGRES_DB",
	"postgres.sslmode":     "POSTGRES_SSLMODE",
	"scrape.chrome_bin":    "CHROME_BIN",
}

// Load reads configuration.
// Priority (highest to lowest):
// 1. Environment variables with PRICEAGG_ prefix, then legacy names
// 2. the config file at path, or config.{yaml,toml,json} in . or the XDG config dir
// 3. Built-in defaults
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("[config] No .env file found, falling back to system env vars")
	}

	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		v.AddConfigPath(filepath.Join(xdg.ConfigHome, AppName))
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("config: read config file: %w", err)
			}
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, legacy := range legacyEnv {
		prefixed := EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, prefixed, legacy); err != nil {
			return nil, fmt.Errorf("config: bind %s: %w", key, err)
		}
	}

	threshold, err := decimal.NewFromString(v.GetString("search.price_threshold"))
	if err != nil {
		return nil, fmt.Errorf("config: search.price_threshold: %w", err)
	}

	cfg := &Config{
		Search: SearchConfig{
			PriceThreshold:   threshold,
			CommonTerms:      splitList(v.GetStringSlice("search.common_terms")),
			DetailLimit:      v.GetInt("search.detail_limit"),
			PriceLimit:       v.GetInt("search.price_limit"),
			PriceLimits:      priceLimits(v),
			BestPicks:        v.GetInt("search.best_picks"),
			AdapterTimeout:   v.GetDuration("search.adapter_timeout"),
			Sources:          splitList(v.GetStringSlice("search.sources")),
			ModelConcurrency: v.GetInt("search.model_concurrency"),
			RateLimitMs:      v.GetInt("search.rate_limit_ms"),
		},
		Retry: RetryConfig{
			MaxAttempts: v.GetInt("retry.max_attempts"),
			BaseDelay:   v.GetDuration("retry.base_delay"),
			MaxDelay:    v.GetDuration("retry.max_delay"),
		},
		Cache: CacheConfig{
			Backend:    strings.ToLower(v.GetString("cache.backend")),
			Dir:        v.GetString("cache.dir"),
			SQLitePath: v.GetString("cache.sqlite_path"),
			TTL:        v.GetDuration("cache.ttl"),
			FlushEvery: v.GetInt("cache.flush_every"),
		},
		Scrape: ScrapeConfig{
			Enabled:     v.GetBool("scrape.enabled"),
			UserAgent:   v.GetString("scrape.user_agent"),
			Timeout:     v.GetDuration("scrape.timeout"),
			UseBrowser:  v.GetBool("scrape.use_browser"),
			ChromeBin:   v.GetString("scrape.chrome_bin"),
			SettleDelay: v.GetDuration("scrape.settle_delay"),
		},
		Amazon: AmazonConfig{
			AccessKey:  v.GetString("amazon.access_key"),
			SecretKey:  v.GetString("amazon.secret_key"),
			PartnerTag: v.GetString("amazon.partner_tag"),
			Region:     v.GetString("amazon.region"),
		},
		Rakuten: RakutenConfig{
			AppID:       v.GetString("rakuten.app_id"),
			AffiliateID: v.GetString("rakuten.affiliate_id"),
			Endpoint:    v.GetString("rakuten.endpoint"),
		},
		Yahoo: YahooConfig{
			ClientID: v.GetString("yahoo.client_id"),
		},
		Kakaku: KakakuConfig{
			SiteURL: v.GetString("kakaku.site_url"),
		},
		Redis: RedisConfig{
			Addr:     v.GetString("redis.addr"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
		},
		Postgres: PostgresConfig{
			Host:     v.GetString("postgres.host"),
			Port:     v.GetString("postgres.port"),
			User:     v.GetString("postgres.user"),
			Password: v.GetString("postgres.password"),
			DB:       v.GetString("postgres.db"),
			SSLMode:  v.GetString("postgres.sslmode"),
		},
		Archive: ArchiveConfig{
			Enabled: v.GetBool("archive.enabled"),
			CSVPath: v.GetString("archive.csv_path"),
		},
		HTTP: HTTPConfig{
			Addr:         v.GetString("http.addr"),
			ReadTimeout:  v.GetDuration("http.read_timeout"),
			WriteTimeout: v.GetDuration("http.write_timeout"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
			Output: v.GetString("log.output"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// priceLimits reads search.price_limits.<source> for every known source.
func priceLimits(v *viper.Viper) map[string]int {
	limits := make(map[string]int)
	for _, src := range KnownSources {
		key := "search.price_limits." + src
		if v.IsSet(key) {
			limits[src] = v.GetInt(key)
		}
	}
	return limits
}

// PriceLimitFor returns the multi-price limit for source, falling back to
// search.price_limit.
func (s SearchConfig) PriceLimitFor(source string) int {
	if n, ok := s.PriceLimits[source]; ok && n > 0 {
		return n
	}
	return s.PriceLimit
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("search.price_threshold", "0.9")
	v.SetDefault("search.common_terms", []string{"工具", "電動工具", "ドリル", "ドライバー", "レンチ", "ハンマー", "のこぎり"})
	v.SetDefault("search.detail_limit", 3)
	v.SetDefault("search.price_limit", 5)
	v.SetDefault("search.price_limits.rakuten", 30)
	v.SetDefault("search.best_picks", 10)
	v.SetDefault("search.adapter_timeout", 20*time.Second)
	v.SetDefault("search.sources", KnownSources)
	v.SetDefault("search.model_concurrency", 2)
	v.SetDefault("search.rate_limit_ms", 0)

	v.SetDefault("retry.max_attempts", 3)
	v.SetDefault("retry.base_delay", time.Second)
	v.SetDefault("retry.max_delay", 5*time.Second)

	v.SetDefault("cache.backend", "file")
	v.SetDefault("cache.dir", filepath.Join(xdg.CacheHome, AppName))
	v.SetDefault("cache.sqlite_path", filepath.Join(xdg.CacheHome, AppName, "cache.db"))
	v.SetDefault("cache.ttl", 24*time.Hour)
	v.SetDefault("cache.flush_every", 10)

	v.SetDefault("scrape.enabled", true)
	v.SetDefault("scrape.timeout", 15*time.Second)
	v.SetDefault("scrape.use_browser", false)
	v.SetDefault("scrape.settle_delay", 2*time.Second)

	v.SetDefault("amazon.region", "us-west-2")
	v.SetDefault("kakaku.site_url", "https://kakaku.com")

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.db", 0)

	v.SetDefault("postgres.host", "localhost")
	v.SetDefault("postgres.port", "5432")
	v.SetDefault("postgres.user", "aggregator")
	v.SetDefault("postgres.db", "price_aggregator")
	v.SetDefault("postgres.sslmode", "disable")

	v.SetDefault("archive.enabled", false)

	v.SetDefault("http.addr", ":8080")
	v.SetDefault("http.read_timeout", 15*time.Second)
	v.SetDefault("http.write_timeout", 90*time.Second)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("log.output", "stdout")
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	var errs []error
	if c.Search.PriceThreshold.IsNegative() {
		errs = append(errs, errors.New("search.price_threshold must not be negative"))
	}
	if c.Search.DetailLimit <= 0 {
		errs = append(errs, errors.New("search.detail_limit must be positive"))
	}
	if c.Search.AdapterTimeout <= 0 {
		errs = append(errs, errors.New("search.adapter_timeout must be positive"))
	}
	if len(c.Search.Sources) == 0 {
		errs = append(errs, errors.New("search.sources must name at least one source"))
	}
	for _, s := range c.Search.Sources {
		if !isKnownSource(s) {
			errs = append(errs, fmt.Errorf("search.sources: unknown source %q", s))
		}
	}
	switch c.Cache.Backend {
	case "file", "sqlite", "redis", "none":
	default:
		errs = append(errs, fmt.Errorf("cache.backend: unknown backend %q", c.Cache.Backend))
	}
	if c.Cache.TTL <= 0 {
		errs = append(errs, errors.New("cache.ttl must be positive"))
	}
	if c.Retry.MaxAttempts <= 0 {
		errs = append(errs, errors.New("retry.max_attempts must be positive"))
	}
	if c.Scrape.Timeout <= 0 {
		errs = append(errs, errors.New("scrape.timeout must be positive"))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("config: invalid configuration: %w", err)
	}
	return nil
}

// DSN returns the PostgreSQL connection string.
func (c *Config) DSN() string {
	return "host=" + c.Postgres.Host +
		" port=" + c.Postgres.Port +
		" user=" + c.Postgres.User +
		" password=" + c.Postgres.Password +
		" dbname=" + c.Postgres.DB +
		" sslmode=" + c.Postgres.SSLMode
}

// splitList accepts both YAML lists and comma separated env values.
func splitList(in []string) []string {
	var out []string
	for _, item := range in {
		for _, part := range strings.Split(item, ",") {
			if p := strings.TrimSpace(part); p != "" {
				out = append(out, p)
			}
		}
	}
	return out
}

func isKnownSource(s string) bool {
	for _, k := range KnownSources {
		if k == s {
			return true
		}
	}
	return false
}
