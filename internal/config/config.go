// Package config loads service settings from an optional file and SITETRACK_*
// environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"sitetrack.io/internal/obs"
)

const EnvPrefix = "SITETRACK"

type HTTP struct {
	Addr            string        `mapstructure:"addr"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	MaxBodyBytes    int64         `mapstructure:"max_body_bytes"`
}

type Postgres struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

type Auth struct {
	Secret string `mapstructure:"secret"`
	Issuer string `mapstructure:"issuer"`
}

type Rate struct {
	PerSecond float64 `mapstructure:"per_second"`
	Burst     int     `mapstructure:"burst"`
}

type CORS struct {
	Origins []string `mapstructure:"origins"`
}

// Config is the full service configuration.
type Config struct {
	HTTP     HTTP          `mapstructure:"http"`
	Postgres Postgres      `mapstructure:"pg"`
	Auth     Auth          `mapstructure:"auth"`
	Log      obs.LogConfig `mapstructure:"log"`
	Rate     Rate          `mapstructure:"rate"`
	CORS     CORS          `mapstructure:"cors"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("http.addr", ":8080")
	v.SetDefault("http.read_timeout", 15*time.Second)
	v.SetDefault("http.write_timeout", 0)
	v.SetDefault("http.shutdown_timeout", 10*time.Second)
	v.SetDefault("http.max_body_bytes", 1<<20)
	v.SetDefault("pg.dsn", "")
	v.SetDefault("pg.max_open_conns", 25)
	v.SetDefault("pg.max_idle_conns", 10)
	v.SetDefault("pg.conn_max_lifetime", 15*time.Minute)
	v.SetDefault("auth.secret", "")
	v.SetDefault("auth.issuer", "sitetrack")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.output", "stdout")
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size_mb", 100)
	v.SetDefault("log.max_backups", 5)
	v.SetDefault("log.max_age_days", 14)
	v.SetDefault("rate.per_second", 20.0)
	v.SetDefault("rate.burst", 40)
	v.SetDefault("cors.origins", []string{})
}

// Load reads path (when set) and then the environment; environment values
// win. SITETRACK_PG_DSN maps to pg.dsn.
func Load(path string) (Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	cfg.CORS.Origins = splitList(v.Get("cors.origins"), cfg.CORS.Origins)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects settings the server cannot start with.
func (c Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.HTTP.Addr) == "" {
		errs = append(errs, errors.New("http.addr is required"))
	}
	if strings.TrimSpace(c.Auth.Secret) == "" {
		errs = append(errs, errors.New("auth.secret is required"))
	}
	if c.Rate.PerSecond < 0 || c.Rate.Burst < 0 {
		errs = append(errs, errors.New("rate limits must not be negative"))
	}
	switch c.Log.Output {
	case "stdout", "file":
	default:
		errs = append(errs, fmt.Errorf("log.output %q must be stdout or file", c.Log.Output))
	}
	return errors.Join(errs...)
}

// splitList accepts the comma separated form env vars arrive in.
func splitList(raw any, decoded []string) []string {
	s, ok := raw.(string)
	if !ok {
		return decoded
	}
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
