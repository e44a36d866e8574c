package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"
)

// Load reads the configuration from the environment, fills in defaults and
// validates the result.
func Load() (*Config, error) {
	cfg := &Config{}

	for _, f := range envFields(reflect.ValueOf(cfg).Elem(), nil) {
		if err := f.apply(); err != nil {
			return nil, fmt.Errorf("config load: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	return cfg, nil
}

// envField is a settable config field and the tags that describe it:
//
//	env       primary variable name
//	envAlt    fallback variable name
//	default   value used when neither is set
//	required  "true" makes an unset variable an error
type envField struct {
	name     string
	alt      string
	def      string
	required bool
	dst      reflect.Value
}

// envFields walks v depth first and returns every field carrying an env tag.
func envFields(v reflect.Value, out []envField) []envField {
	t := v.Type()
	for i := range t.NumField() {
		sf, fv := t.Field(i), v.Field(i)
		if !fv.CanSet() {
			continue
		}
		if sf.Type.Kind() == reflect.Struct {
			out = envFields(fv, out)
			continue
		}
		name := sf.Tag.Get("env")
		if name == "" {
			continue
		}
		out = append(out, envField{
			name:     name,
			alt:      sf.Tag.Get("envAlt"),
			def:      sf.Tag.Get("default"),
			required: sf.Tag.Get("required") == "true",
			dst:      fv,
		})
	}
	return out
}

func (f envField) lookup() string {
	if v := os.Getenv(f.name); v != "" {
		return v
	}
	if f.alt != "" {
		return os.Getenv(f.alt)
	}
	return ""
}

func (f envField) apply() error {
	raw := f.lookup()
	if raw == "" {
		if f.required {
			return fmt.Errorf("required environment variable %s is not set", f.name)
		}
		raw = f.def
	}
	if raw == "" {
		return nil
	}
	if err := assign(f.dst, raw); err != nil {
		return fmt.Errorf("invalid value for %s=%q: %w", f.name, raw, err)
	}
	return nil
}

// assign parses raw into the field behind dst.
func assign(dst reflect.Value, raw string) error {
	switch p := dst.Addr().Interface().(type) {
	case *string:
		*p = raw
	case *time.Duration:
		d, err := time.ParseDuration(raw)
		if err != nil {
			return fmt.Errorf("invalid duration: %w", err)
		}
		*p = d
	case *int:
		n, err := strconv.Atoi(raw)
		if err != nil {
			return fmt.Errorf("invalid integer: %w", err)
		}
		*p = n
	case *int64:
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid integer: %w", err)
		}
		*p = n
	case *bool:
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return fmt.Errorf("invalid boolean: %w", err)
		}
		*p = b
	case *[]string:
		*p = splitList(raw)
	default:
		return fmt.Errorf("unsupported field type %s", dst.Type())
	}
	return nil
}

// splitList splits a comma-separated list, dropping blank items.
func splitList(raw string) []string {
	var out []string
	for _, item := range strings.Split(raw, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// problems collects validation failures.
type problems []string

func (p *problems) check(ok bool, format string, args ...any) {
	if !ok {
		*p = append(*p, fmt.Sprintf(format, args...))
	}
}

func (p problems) err() error {
	if len(p) == 0 {
		return nil
	}
	return fmt.Errorf("validation failed:\n  - %s", strings.Join(p, "\n  - "))
}

// Validate checks the whole configuration and reports every problem at once.
func (c *Config) Validate() error {
	var p problems
	c.Server.validate(&p)
	c.Data.validate(&p)
	c.Geo.validate(&p)
	c.Auth.validate(&p)
	c.Cache.validate(&p)
	c.Upload.validate(&p)
	c.Rate.validate(&p)
	c.Database.validate(&p)
	c.Logging.validate(&p)
	return p.err()
}

func (c *ServerConfig) validate(p *problems) {
	p.check(c.Port > 0 && c.Port <= 65535, "SERVER_PORT (%d) must be 1-65535", c.Port)
	p.check(c.ReadTimeout >= 0, "SERVER_READ_TIMEOUT must be non-negative")
	p.check(c.ShutdownTimeout > 0, "SERVER_SHUTDOWN_TIMEOUT must be positive")
}

func (c *DataConfig) validate(p *problems) {
	p.check(c.CentralPath != "" || c.ProvincePath != "",
		"at least one of DATA_CENTRAL_PATH and DATA_PROVINCE_PATH must be set")

	for _, col := range []struct{ env, value string }{
		{"DATA_COLUMN_CATEGORY", c.CategoryColumn},
		{"DATA_COLUMN_INDICATOR", c.IndicatorColumn},
		{"DATA_COLUMN_REGION", c.RegionColumn},
		{"DATA_COLUMN_SOURCE", c.SourceColumn},
		{"DATA_COLUMN_UNIT", c.UnitColumn},
		{"DATA_COLUMN_VALUE", c.ValueColumn},
		{"DATA_COLUMN_YEAR", c.YearColumn},
	} {
		p.check(strings.TrimSpace(col.value) != "", "%s must not be blank", col.env)
	}
	p.check(c.ReloadInterval >= 0, "DATA_RELOAD_INTERVAL must be non-negative")
}

func (c *GeoConfig) validate(p *problems) {
	if !c.Enabled {
		return
	}
	p.check(c.URL != "", "GEO_URL is required when GEO_ENABLED is true")
	p.check(c.FetchTimeout > 0, "GEO_FETCH_TIMEOUT must be positive")
}

func (c *AuthConfig) validate(p *problems) {
	p.check(c.Password != "", "DASHBOARD_PASSWORD is required")
	p.check(c.SessionTTL > 0, "AUTH_SESSION_TTL must be positive")
	p.check(c.CookieName != "", "AUTH_COOKIE_NAME must not be empty")
}

func (c *CacheConfig) validate(p *problems) {
	p.check(c.MaxEntries > 0, "CACHE_MAX_ENTRIES must be positive")
}

func (c *UploadConfig) validate(p *problems) {
	p.check(c.MaxFileSize > 0, "UPLOAD_MAX_FILE_SIZE must be positive")
	p.check(c.MaxConcurrent > 0, "UPLOAD_MAX_CONCURRENT must be positive")
	p.check(c.MaxWaitTime > 0, "UPLOAD_MAX_WAIT_TIME must be positive")
}

func (c *RateLimitConfig) validate(p *problems) {
	if !c.Enabled {
		return
	}
	p.check(c.RequestsPerMinute > 0, "RATE_LIMIT_REQUESTS_PER_MINUTE must be positive when rate limiting is enabled")
	p.check(c.Burst > 0, "RATE_LIMIT_BURST must be positive when rate limiting is enabled")
	p.check(c.LoginPerMinute > 0, "RATE_LIMIT_LOGIN must be positive when rate limiting is enabled")
}

// validate only checks pool sizes when the audit log is enabled.
func (c *DatabaseConfig) validate(p *problems) {
	if !c.Enabled() {
		return
	}
	p.check(c.MaxConns > 0, "DB_MAX_CONNS must be positive")
	p.check(c.MinConns >= 0, "DB_MIN_CONNS must be non-negative")
	p.check(c.MaxConns >= c.MinConns, "DB_MAX_CONNS (%d) must be >= DB_MIN_CONNS (%d)", c.MaxConns, c.MinConns)
}

func (c *LoggingConfig) validate(p *problems) {
	switch strings.ToLower(c.Level) {
	case "debug", "info", "warn", "error":
	default:
		p.check(false, "LOG_LEVEL (%q) must be one of: debug, info, warn, error", c.Level)
	}
	switch strings.ToLower(c.Format) {
	case "text", "json":
	default:
		p.check(false, "LOG_FORMAT (%q) must be one of: text, json", c.Format)
	}
}

// String describes the config for startup logs with secrets masked.
func (c *Config) String() string {
	db := "disabled"
	if c.Database.Enabled() {
		db = fmt.Sprintf("{URL: [MASKED], MaxConns: %d}", c.Database.MaxConns)
	}
	return fmt.Sprintf("Config{Server: {Host: %q, Port: %d}, "+
		"Data: {Central: %q, Province: %q, ReloadInterval: %s}, "+
		"Geo: {Enabled: %v}, Auth: {Password: [MASKED], SessionTTL: %s}, "+
		"Upload: {MaxFileSize: %d, MaxConcurrent: %d}, "+
		"Rate: {Enabled: %v, RequestsPerMinute: %d}, Database: %s, "+
		"Logging: {Level: %q, Format: %q}}",
		c.Server.Host, c.Server.Port,
		c.Data.CentralPath, c.Data.ProvincePath, c.Data.ReloadInterval,
		c.Geo.Enabled, c.Auth.SessionTTL,
		c.Upload.MaxFileSize, c.Upload.MaxConcurrent,
		c.Rate.Enabled, c.Rate.RequestsPerMinute, db,
		c.Logging.Level, c.Logging.Format)
}
