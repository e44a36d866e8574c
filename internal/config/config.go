// Package config loads the dashboard's settings from environment variables.
// Every field has a default except the shared password.
package config

import (
	"net"
	"strconv"
	"time"

	"github.com/JonMunkholm/soedash/internal/core"
)

// Config holds all application configuration.
type Config struct {
	Server   ServerConfig
	Data     DataConfig
	Geo      GeoConfig
	Auth     AuthConfig
	Cache    CacheConfig
	Upload   UploadConfig
	Rate     RateLimitConfig
	Security SecurityConfig
	Database DatabaseConfig
	Logging  LoggingConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host            string        `env:"SERVER_HOST" default:"0.0.0.0"`
	Port            int           `env:"SERVER_PORT" default:"8080"`
	ReadTimeout     time.Duration `env:"SERVER_READ_TIMEOUT" default:"15s"`
	WriteTimeout    time.Duration `env:"SERVER_WRITE_TIMEOUT" default:"60s"`
	IdleTimeout     time.Duration `env:"SERVER_IDLE_TIMEOUT" default:"60s"`
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`
	RequestTimeout  time.Duration `env:"SERVER_REQUEST_TIMEOUT" default:"60s"`
}

// DataConfig locates the source workbooks and names their columns.
type DataConfig struct {
	CentralPath  string `env:"DATA_CENTRAL_PATH" default:"data/data_central.xlsx"`
	ProvincePath string `env:"DATA_PROVINCE_PATH" default:"data/data_province.xlsx"`

	CategoryColumn  string `env:"DATA_COLUMN_CATEGORY" default:"表单"`
	IndicatorColumn string `env:"DATA_COLUMN_INDICATOR" default:"指标名称"`
	UnitColumn      string `env:"DATA_COLUMN_UNIT" default:"单位"`
	RegionColumn    string `env:"DATA_COLUMN_REGION" default:"地区"`
	SourceColumn    string `env:"DATA_COLUMN_SOURCE" default:"数据来源"`
	YearColumn      string `env:"DATA_COLUMN_YEAR" default:"年份"`
	ValueColumn     string `env:"DATA_COLUMN_VALUE" default:"数值"`

	// ExcludedRegions are dropped from every province view.
	ExcludedRegions []string `env:"DATA_EXCLUDED_REGIONS" default:"台湾"`

	// NationalRegions are aggregate rows shown in trends but never ranked.
	NationalRegions []string `env:"DATA_NATIONAL_REGIONS" default:"全国平均,全国中位数"`

	// ReloadInterval is how often source files are checked for changes.
	// Zero disables the check.
	ReloadInterval time.Duration `env:"DATA_RELOAD_INTERVAL" default:"1m"`
}

// CentralSchema returns the column layout of the central workbook.
func (c *DataConfig) CentralSchema() core.Schema {
	return core.Schema{
		Category:  c.CategoryColumn,
		Indicator: c.IndicatorColumn,
		Unit:      c.UnitColumn,
	}
}

// ProvinceSchema returns the column layout of the provincial workbook. Its
// category is the sheet each row came from.
func (c *DataConfig) ProvinceSchema() core.Schema {
	return core.Schema{
		Category:  c.SourceColumn,
		Indicator: c.IndicatorColumn,
		Unit:      c.UnitColumn,
		Region:    c.RegionColumn,
		Year:      c.YearColumn,
		Value:     c.ValueColumn,
	}
}

// GeoConfig holds boundary file settings.
type GeoConfig struct {
	Enabled      bool          `env:"GEO_ENABLED" default:"true"`
	URL          string        `env:"GEO_URL" default:"https://raw.githubusercontent.com/longwosion/geojson-map-china/master/china.json"`
	FetchTimeout time.Duration `env:"GEO_FETCH_TIMEOUT" default:"15s"`
}

// AuthConfig holds the shared-password gate settings.
type AuthConfig struct {
	// Password is the shared secret every user enters (required).
	Password     string        `env:"DASHBOARD_PASSWORD" envAlt:"PASSWORD" required:"true"`
	SessionTTL   time.Duration `env:"AUTH_SESSION_TTL" default:"12h"`
	CookieName   string        `env:"AUTH_COOKIE_NAME" default:"soedash_session"`
	CookieSecure bool          `env:"AUTH_COOKIE_SECURE" default:"false"`
}

// CacheConfig sizes the normalization cache.
type CacheConfig struct {
	MaxEntries int64 `env:"CACHE_MAX_ENTRIES" default:"32"`
}

// UploadConfig holds workbook validation upload settings.
type UploadConfig struct {
	MaxFileSize   int64         `env:"UPLOAD_MAX_FILE_SIZE" default:"20971520"`
	MaxConcurrent int           `env:"UPLOAD_MAX_CONCURRENT" default:"4"`
	MaxWaitTime   time.Duration `env:"UPLOAD_MAX_WAIT_TIME" default:"10s"`
}

// RateLimitConfig holds per-IP rate limiting settings.
type RateLimitConfig struct {
	Enabled           bool          `env:"RATE_LIMIT_ENABLED" default:"true"`
	RequestsPerMinute int           `env:"RATE_LIMIT_REQUESTS_PER_MINUTE" default:"120"`
	Burst             int           `env:"RATE_LIMIT_BURST" default:"30"`
	LoginPerMinute    int           `env:"RATE_LIMIT_LOGIN" default:"10"`
	IdleTTL           time.Duration `env:"RATE_LIMIT_IDLE_TTL" default:"10m"`
}

// SecurityConfig holds security-related settings.
type SecurityConfig struct {
	// TrustedProxies is a comma-separated list of trusted proxy CIDRs.
	TrustedProxies []string `env:"TRUSTED_PROXIES"`

	// CORSOrigins lists origins allowed to call the JSON API.
	CORSOrigins []string `env:"CORS_ALLOWED_ORIGINS"`

	EnableCSP bool `env:"SECURITY_ENABLE_CSP" default:"true"`
}

// DatabaseConfig holds the optional ingest audit database settings.
// With no URL the audit log is disabled.
type DatabaseConfig struct {
	URL             string        `env:"DATABASE_URL" envAlt:"DB_URL"`
	MaxConns        int           `env:"DB_MAX_CONNS" default:"5"`
	MinConns        int           `env:"DB_MIN_CONNS" default:"1"`
	MaxConnLifetime time.Duration `env:"DB_MAX_CONN_LIFETIME" default:"1h"`
	MaxConnIdleTime time.Duration `env:"DB_MAX_CONN_IDLE_TIME" default:"30m"`
}

// Enabled reports whether an audit database is configured.
func (c *DatabaseConfig) Enabled() bool {
	return c.URL != ""
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error.
	Level string `env:"LOG_LEVEL" default:"info"`

	// Format is the log format: text or json.
	Format string `env:"LOG_FORMAT" default:"text"`
}

// Addr returns the server listen address in host:port format.
func (c *ServerConfig) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}
