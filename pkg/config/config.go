// Package config loads the YAML config file and applies FITDB_* env
// overrides. Flags win over env, env wins over file.
package config

import (
	"flag"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Address string `yaml:"address"`
		Port    int    `yaml:"port"`
	} `yaml:"server"`
	Storage struct {
		DBPath string `yaml:"db_path"`
	} `yaml:"storage"`
	Auth struct {
		// SessionTTL is a Go duration string, e.g. "168h".
		SessionTTL string `yaml:"session_ttl"`
	} `yaml:"auth"`
	RateLimit struct {
		Limit  int    `yaml:"limit"`
		Window string `yaml:"window"` // duration string, e.g. "1m"
		// Ingress token bucket guarding the whole HTTP surface,
		// separate from the persisted sliding window.
		IngressRPS   float64 `yaml:"ingress_rps"`
		IngressBurst int     `yaml:"ingress_burst"`
	} `yaml:"rate_limit"`
	Retention struct {
		Enabled bool   `yaml:"enabled"`
		Cron    string `yaml:"cron"`   // cron expression, default daily 02:00
		Period  string `yaml:"period"` // duration string, e.g. "2160h"
	} `yaml:"retention"`
	Logging struct {
		Level string `yaml:"level"`
	} `yaml:"logging"`
}

// Addr returns host:port for the HTTP server.
func (c *Config) Addr() string {
	addr := c.Server.Address
	if addr == "" {
		addr = "0.0.0.0"
	}
	p := c.Server.Port
	if p == 0 {
		p = 8080
	}
	return fmt.Sprintf("%s:%d", addr, p)
}

// SessionTTL returns the parsed session lifetime, defaulting to 7 days.
func (c *Config) SessionTTL() time.Duration {
	return parseDuration(c.Auth.SessionTTL, 7*24*time.Hour)
}

// RateWindow returns the sliding-window width, defaulting to one minute.
func (c *Config) RateWindow() time.Duration {
	return parseDuration(c.RateLimit.Window, time.Minute)
}

// RetentionPeriod returns how long login stats are kept, defaulting to
// 90 days.
func (c *Config) RetentionPeriod() time.Duration {
	return parseDuration(c.Retention.Period, 90*24*time.Hour)
}

func parseDuration(s string, def time.Duration) time.Duration {
	if s == "" {
		return def
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return def
	}
	return d
}

// Load reads the config file at path.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found: %s", path)
		}
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadEnvOverrides applies environment overrides onto cfg and reports
// whether any were used.
func LoadEnvOverrides(cfg *Config) bool {
	envUsed := false
	if v := os.Getenv("FITDB_ADDR"); v != "" {
		envUsed = true
		if h, p, err := net.SplitHostPort(v); err == nil {
			cfg.Server.Address = h
			if pi, err := strconv.Atoi(p); err == nil {
				cfg.Server.Port = pi
			}
		} else {
			cfg.Server.Address = v
		}
	}
	if v := os.Getenv("FITDB_DB_PATH"); v != "" {
		envUsed = true
		cfg.Storage.DBPath = v
	}
	if v := os.Getenv("FITDB_SESSION_TTL"); v != "" {
		envUsed = true
		cfg.Auth.SessionTTL = v
	}
	if v := os.Getenv("FITDB_RATE_LIMIT"); v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			envUsed = true
			cfg.RateLimit.Limit = n
		}
	}
	if v := os.Getenv("FITDB_RATE_WINDOW"); v != "" {
		envUsed = true
		cfg.RateLimit.Window = v
	}
	if v := os.Getenv("FITDB_INGRESS_RPS"); v != "" {
		if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
			envUsed = true
			cfg.RateLimit.IngressRPS = f
		}
	}
	if v := os.Getenv("FITDB_RETENTION_ENABLED"); v != "" {
		envUsed = true
		vl := strings.ToLower(strings.TrimSpace(v))
		cfg.Retention.Enabled = vl == "1" || vl == "true" || vl == "yes"
	}
	if v := os.Getenv("FITDB_RETENTION_CRON"); v != "" {
		envUsed = true
		cfg.Retention.Cron = v
	}
	if v := os.Getenv("FITDB_RETENTION_PERIOD"); v != "" {
		envUsed = true
		cfg.Retention.Period = v
	}
	if v := os.Getenv("FITDB_LOG_LEVEL"); v != "" {
		envUsed = true
		cfg.Logging.Level = v
	}
	return envUsed
}

// LoadEffective loads the file (missing file yields a zero config) and
// applies env overrides.
func LoadEffective(path string) (*Config, bool) {
	cfg, err := Load(path)
	if err != nil {
		cfg = &Config{}
	}
	envUsed := LoadEnvOverrides(cfg)
	return cfg, envUsed
}

// ParseCommandFlags defines and parses command-line flags, returning
// their values and which flags were explicitly set.
func ParseCommandFlags() (addr string, dbPath string, cfgPath string, setFlags map[string]bool) {
	addrPtr := flag.String("addr", ":8080", "HTTP listen address")
	dbPtr := flag.String("db", "./.database", "Pebble DB path")
	cfgPtr := flag.String("config", "./config.yaml", "Path to config file")
	flag.Parse()
	setFlags = map[string]bool{}
	flag.Visit(func(f *flag.Flag) { setFlags[f.Name] = true })
	return *addrPtr, *dbPtr, *cfgPtr, setFlags
}

// ResolveConfigPath decides the config path using the flag value and the
// FITDB_CONFIG environment variable when the flag was not set.
func ResolveConfigPath(flagPath string, flagSet bool) string {
	if flagSet {
		return flagPath
	}
	if p := os.Getenv("FITDB_CONFIG"); p != "" {
		return p
	}
	return flagPath
}
