package config

import (
	"fmt"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix marks environment variables that override configuration.
const EnvPrefix = "ROLEGATE_"

type Config struct {
	Server   ServerConfig   `koanf:"server"`
	Database DatabaseConfig `koanf:"database"`
	Log      LogConfig      `koanf:"log"`
	Auth     AuthConfig     `koanf:"auth"`
	Guard    GuardConfig    `koanf:"guard"`
	Cache    CacheConfig    `koanf:"cache"`
	Redis    RedisConfig    `koanf:"redis"`
	Catalog  CatalogConfig  `koanf:"catalog"`
	Org      OrgConfig      `koanf:"org"`
	Audit    AuditConfig    `koanf:"audit"`
	CORS     CORSConfig     `koanf:"cors"`
}

type ServerConfig struct {
	Host string `koanf:"host"`
	Port int    `koanf:"port"`
	// StaticDir, when set, is served under /app/ behind the navigation guard.
	StaticDir string `koanf:"staticdir"`
}

// Addr returns the listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

type DatabaseConfig struct {
	URL                string `koanf:"url"`
	MigrationsPath     string `koanf:"migrationspath"`
	MaxConns           int    `koanf:"maxconns"`
	MinConns           int    `koanf:"minconns"`
	MaxConnIdleSeconds int    `koanf:"maxconnidleseconds"`
	HealthCheckSeconds int    `koanf:"healthcheckseconds"`
}

type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

type AuthConfig struct {
	DevMode       bool      `koanf:"devmode"`
	DevEmployeeID string    `koanf:"devemployeeid"`
	JWT           JWTConfig `koanf:"jwt"`
}

type JWTConfig struct {
	SigningKey         string `koanf:"signingkey"`
	Issuer             string `koanf:"issuer"`
	ExpiryHours        int    `koanf:"expiryhours"`
	RefreshExpiryHours int    `koanf:"refreshexpiryhours"`
}

// GuardConfig holds the redirect targets used by navigation guards.
type GuardConfig struct {
	SignInURL   string `koanf:"signinurl"`
	FallbackURL string `koanf:"fallbackurl"`
}

type CacheConfig struct {
	Size int `koanf:"size"`
}

// RedisConfig enables cross-instance cache invalidation when URL is set.
type RedisConfig struct {
	URL     string `koanf:"url"`
	Channel string `koanf:"channel"`
}

// OrgConfig lists departments, each with its programs, provisioned at
// startup. Existing units are left alone.
type OrgConfig struct {
	Departments []OrgUnitConfig `koanf:"departments"`
}

type OrgUnitConfig struct {
	ID       string          `koanf:"id"`
	Name     string          `koanf:"name"`
	Programs []OrgUnitConfig `koanf:"programs"`
}

// CatalogConfig points at a permission catalog file. Empty uses the
// embedded default.
type CatalogConfig struct {
	Path string `koanf:"path"`
}

type AuditConfig struct {
	Enabled         bool `koanf:"enabled"`
	BufferSize      int  `koanf:"buffersize"`
	BatchSize       int  `koanf:"batchsize"`
	FlushIntervalMS int  `koanf:"flushintervalms"`
}

type CORSConfig struct {
	AllowedOrigins []string `koanf:"allowedorigins"`
}

func Load(configPaths ...string) (*Config, error) {
	k := koanf.New(".")

	// Defaults
	_ = k.Load(confmap.Provider(map[string]any{
		"server.port":                 8080,
		"server.host":                 "0.0.0.0",
		"database.maxconns":           25,
		"database.minconns":           2,
		"database.maxconnidleseconds": 300,
		"database.healthcheckseconds": 30,
		"database.migrationspath":     "file://migrations",
		"log.level":                   "info",
		"log.format":                  "json",
		"auth.devmode":                false,
		"auth.devemployeeid":          "dev-admin",
		"auth.jwt.issuer":             "rolegate",
		"auth.jwt.expiryhours":        24,
		"auth.jwt.refreshexpiryhours": 168,
		"guard.signinurl":             "/signin",
		"guard.fallbackurl":           "/",
		"cache.size":                  4096,
		"redis.channel":               "rolegate:changes",
		"audit.enabled":               true,
		"audit.buffersize":            4096,
		"audit.batchsize":             100,
		"audit.flushintervalms":       500,
	}, "."), nil)

	// YAML files are optional; missing ones are skipped.
	for _, path := range configPaths {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			continue
		}
	}

	// Environment variables override everything
	// ROLEGATE_SERVER_PORT -> server.port
	_ = k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.ReplaceAll(
			strings.ToLower(strings.TrimPrefix(s, EnvPrefix)),
			"_", ".",
		)
	}), nil)

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}
