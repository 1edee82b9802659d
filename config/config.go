package config

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/tcriess/lightspeed-presence/globals"
)

const (
	defaultGlobalRateMax    = 100
	defaultGlobalRateWindow = 60 * time.Second
	defaultCleanupSpec      = "@every 5m"
	defaultRoomRetention    = 24 * time.Hour
)

// Config is the global configuration object which is filled via the
// configuration file, environment variables (LSPRESENCE_*) and bound flags.
type Config struct {
	ServerConfig      ServerConfig      `mapstructure:"server"`
	RateLimitConfig   RateLimitConfig   `mapstructure:"rate_limit"`
	RoomConfig        RoomConfig        `mapstructure:"rooms"`
	BackendConfig     BackendConfig     `mapstructure:"backend"`
	OIDCConfigs       []OIDCConfig      `mapstructure:"oidc"`
	PersistenceConfig PersistenceConfig `mapstructure:"persistence"`
	LogLevel          string            `mapstructure:"log_level"`
}

type ServerConfig struct {
	Addr    string `mapstructure:"addr"`
	SSLCert string `mapstructure:"ssl_cert"`
	SSLKey  string `mapstructure:"ssl_key"`
}

// RateLimitConfig configures the fixed-window limiter. EventLimits maps an
// inbound event name to its own window, independent of the global one.
type RateLimitConfig struct {
	MaxRequests int                   `mapstructure:"max_requests"`
	WindowMs    int                   `mapstructure:"window_ms"`
	EventLimits map[string]EventLimit `mapstructure:"events"`
}

type EventLimit struct {
	MaxRequests int `mapstructure:"max_requests"`
	WindowMs    int `mapstructure:"window_ms"`
}

// RoomConfig governs room lifecycle. Rooms whose id starts with one of the
// reserved prefixes are never auto-deleted.
type RoomConfig struct {
	ReservedPrefixes []string `mapstructure:"reserved_prefixes"`
	RetentionHours   int      `mapstructure:"retention_hours"`
	CleanupSpec      string   `mapstructure:"cleanup_spec"`
}

// BackendConfig selects the broadcast backend. Type "local" keeps all
// fan-out in-process, "redis" delegates cross-node broadcast to Redis
// pub/sub.
type BackendConfig struct {
	Type     string `mapstructure:"type"`
	Addr     string `mapstructure:"addr"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// An OIDCConfig object configures an OpenID Connect provider that is used
// to authenticate users. Users provide an ID token and the name of the
// provider, the authentication is then performed via verification of the
// token.
type OIDCConfig struct {
	Name        string `mapstructure:"name"`
	ClientId    string `mapstructure:"client_id"`
	ProviderUrl string `mapstructure:"provider_url"`
}

// PersistenceConfig configures the optional message-history store. An empty
// DSN disables persistence entirely, in which case history requests are
// answered with an empty list.
type PersistenceConfig struct {
	Type string `mapstructure:"type"` // sqlite | postgres | buntdb
	DSN  string `mapstructure:"dsn"`
}

func GetFlagSet() *pflag.FlagSet {
	flagSet := pflag.NewFlagSet("configuration", pflag.ContinueOnError)
	flagSet.String("log-level", "", "log level (TRACE|DEBUG|INFO|WARN|ERROR)")
	return flagSet
}

// wordSepNormalizeFunc allows for normalization of the flag names (which use - as a separator)
func wordSepNormalizeFunc(f *pflag.FlagSet, name string) pflag.NormalizedName {
	return pflag.NormalizedName(strings.Replace(name, "-", "_", -1))
}

// ReadConfiguration reads and parses the configuration located at
// configPath, which can either point to a single TOML file or to a
// directory, in which case all *.toml files in this directory are
// concatenated. It returns a Config object.
func ReadConfiguration(configPath string, flagSet *pflag.FlagSet) (*Config, error) {
	cfg := Config{}
	v := viper.New()
	if flagSet != nil {
		flagSet.SetNormalizeFunc(wordSepNormalizeFunc)
		if err := v.BindPFlags(flagSet); err != nil {
			globals.AppLogger.Error("could not bind flags (ignored)", "error", err)
		}
	}
	v.SetDefault("log_level", "INFO")
	v.SetDefault("server.addr", "localhost:8000")
	v.SetDefault("rate_limit.max_requests", defaultGlobalRateMax)
	v.SetDefault("rate_limit.window_ms", int(defaultGlobalRateWindow/time.Millisecond))
	v.SetDefault("rooms.retention_hours", int(defaultRoomRetention/time.Hour))
	v.SetDefault("rooms.cleanup_spec", defaultCleanupSpec)
	v.SetDefault("backend.type", "local")
	v.SetEnvPrefix("LSPRESENCE")
	v.AutomaticEnv()
	if configPath != "" {
		fi, err := os.Stat(configPath)
		if err != nil {
			return nil, err
		}
		contents := make([]byte, 0)
		files := []string{configPath}
		if fi.IsDir() {
			files, err = filepath.Glob(filepath.Join(configPath, "*.toml"))
			if err != nil {
				return nil, err
			}
		}
		for _, configFile := range files {
			fileContents, err := os.ReadFile(configFile)
			if err != nil {
				return nil, err
			}
			contents = append(contents, fileContents...)
			contents = append(contents, '\n')
		}
		v.SetConfigType("toml")
		if err := v.ReadConfig(bytes.NewBuffer(contents)); err != nil {
			globals.AppLogger.Error("could not read config:", "error", err)
		}
	}
	if err := v.Unmarshal(&cfg); err != nil {
		globals.AppLogger.Error("could not unmarshal config:", "error", err)
	}
	globals.AppLogger.Debug("config", "cfg", cfg, "all", v.AllSettings())
	return &cfg, nil
}

// GlobalWindow returns the configured global rate window.
func (c *RateLimitConfig) GlobalWindow() time.Duration {
	if c.WindowMs <= 0 {
		return defaultGlobalRateWindow
	}
	return time.Duration(c.WindowMs) * time.Millisecond
}

// GlobalMax returns the configured global request maximum per window.
func (c *RateLimitConfig) GlobalMax() int {
	if c.MaxRequests <= 0 {
		return defaultGlobalRateMax
	}
	return c.MaxRequests
}

// Retention returns the empty-room retention threshold.
func (c *RoomConfig) Retention() time.Duration {
	if c.RetentionHours <= 0 {
		return defaultRoomRetention
	}
	return time.Duration(c.RetentionHours) * time.Hour
}
