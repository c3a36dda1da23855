package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/knadh/koanf/maps"
	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/toml/v2"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
)

// DefaultConfigFile is read from the working directory when no --config is given.
const DefaultConfigFile = "sbom-resolver.toml"

const envPrefix = "SBOM_RESOLVER_"

// Config holds all configuration for the application
type Config struct {
	Endpoint   string `koanf:"endpoint"`
	Name       string `koanf:"name"`
	Format     string `koanf:"format"`
	Output     string `koanf:"output"`
	WebMode    bool   `koanf:"web"`
	Port       int    `koanf:"port"`
	Watch      bool   `koanf:"watch"`
	ConfigFile string `koanf:"config"`
	Verbosity  string `koanf:"verbosity"`
	VerboseCnt int    `koanf:"verbose"`
	LogJSON    bool   `koanf:"logjson"`

	Query    QueryConfig    `koanf:"query"`
	Cache    CacheConfig    `koanf:"cache"`
	Resolver ResolverConfig `koanf:"resolver"`
	Ontology Ontology       `koanf:"ontology"`
}

// QueryConfig controls upstream SPARQL requests.
type QueryConfig struct {
	Timeout    time.Duration `koanf:"timeout"`    // Per HTTP request
	Attempts   int           `koanf:"attempts"`   // Including the first try
	Backoff    time.Duration `koanf:"backoff"`    // Initial retry interval
	MaxBackoff time.Duration `koanf:"maxbackoff"` // Upper bound for a single wait
}

// CacheConfig controls the query result cache.
type CacheConfig struct {
	TTL      time.Duration `koanf:"ttl"`
	Capacity int           `koanf:"capacity"`
}

// ResolverConfig controls dependency traversal.
type ResolverConfig struct {
	Depth       int           `koanf:"depth"`
	Concurrency int           `koanf:"concurrency"`
	Timeout     time.Duration `koanf:"timeout"`
}

// Ontology names the predicates of the deployed knowledge graph. They are a
// contract with the triplestore, so they live in configuration.
type Ontology struct {
	Name              string `koanf:"name"`
	HasVersion        string `koanf:"hasversion"`
	VersionName       string `koanf:"versionname"`
	DependsOn         string `koanf:"dependson"`
	VulnerableTo      string `koanf:"vulnerableto"`
	Identifier        string `koanf:"identifier"`
	VulnerabilityType string `koanf:"vulnerabilitytype"`
}

// Defaults returns the built-in configuration values keyed the way koanf sees them.
func Defaults() map[string]interface{} {
	return map[string]interface{}{
		"endpoint":  "",
		"name":      "",
		"format":    "json",
		"output":    "",
		"web":       false,
		"port":      8080,
		"watch":     false,
		"config":    "",
		"verbosity": "",
		"verbose":   0,
		"logjson":   false,

		"query.timeout":    30 * time.Second,
		"query.attempts":   3,
		"query.backoff":    time.Second,
		"query.maxbackoff": 10 * time.Second,

		"cache.ttl":      300 * time.Second,
		"cache.capacity": 1000,

		"resolver.depth":       50,
		"resolver.concurrency": 8,
		"resolver.timeout":     60 * time.Second,

		"ontology.name":              "http://schema.org/name",
		"ontology.hasversion":        "https://w3id.org/secure-chain/hasSoftwareVersion",
		"ontology.versionname":       "https://w3id.org/secure-chain/versionName",
		"ontology.dependson":         "https://w3id.org/secure-chain/dependsOn",
		"ontology.vulnerableto":      "https://w3id.org/secure-chain/vulnerableTo",
		"ontology.identifier":        "http://schema.org/identifier",
		"ontology.vulnerabilitytype": "https://w3id.org/secure-chain/vulnerabilityType",
	}
}

// Load loads configuration from defaults, config file, environment variables, and flags.
// Priority: Flags > Env > Config File > Defaults
func Load(f *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	// 1. Defaults
	if err := k.Load(makeMapProvider(Defaults()), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	// 2. Config file. An explicitly named file must exist; the default one is optional.
	path, explicit := configPath(f)
	if err := k.Load(file.Provider(path), parserFor(path)); err != nil {
		if explicit || !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	// 3. Environment Variables
	// Prefix: SBOM_RESOLVER_ (e.g., SBOM_RESOLVER_CACHE_TTL=60s)
	if err := k.Load(env.Provider(envPrefix, ".", func(s string) string {
		return strings.ReplaceAll(strings.ToLower(
			strings.TrimPrefix(s, envPrefix)), "_", ".")
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	// 4. Flags
	if f != nil {
		if err := k.Load(posflag.Provider(f, ".", k), nil); err != nil {
			return nil, fmt.Errorf("failed to load flags: %w", err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg.ConfigFile = path

	return &cfg, nil
}

// parserFor picks the file parser by extension. Anything that is not YAML or JSON is read as TOML.
func parserFor(path string) koanf.Parser {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return yaml.Parser()
	case ".json":
		return json.Parser()
	}
	return toml.Parser()
}

// configPath picks the config file: --config flag, then SBOM_RESOLVER_CONFIG, then the default.
func configPath(f *pflag.FlagSet) (string, bool) {
	if f != nil {
		if fl := f.Lookup("config"); fl != nil && fl.Value.String() != "" {
			return fl.Value.String(), true
		}
	}
	if p := os.Getenv(envPrefix + "CONFIG"); p != "" {
		return p, true
	}
	return DefaultConfigFile, false
}

// Validate reports the first setting that cannot work at runtime.
func (c *Config) Validate() error {
	if c.Endpoint == "" {
		return fmt.Errorf("endpoint is required")
	}
	u, err := url.Parse(c.Endpoint)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("endpoint %q is not an http(s) URL", c.Endpoint)
	}
	if c.Query.Attempts < 1 {
		return fmt.Errorf("query.attempts must be at least 1, got %d", c.Query.Attempts)
	}
	if c.Query.Timeout <= 0 {
		return fmt.Errorf("query.timeout must be positive")
	}
	if c.Cache.TTL <= 0 {
		return fmt.Errorf("cache.ttl must be positive")
	}
	if c.Cache.Capacity < 1 {
		return fmt.Errorf("cache.capacity must be at least 1, got %d", c.Cache.Capacity)
	}
	if c.Resolver.Depth < 1 {
		return fmt.Errorf("resolver.depth must be at least 1, got %d", c.Resolver.Depth)
	}
	if c.Resolver.Concurrency < 1 {
		return fmt.Errorf("resolver.concurrency must be at least 1, got %d", c.Resolver.Concurrency)
	}
	if c.Resolver.Timeout <= 0 {
		return fmt.Errorf("resolver.timeout must be positive")
	}
	if !c.WebMode && strings.TrimSpace(c.Name) == "" {
		return fmt.Errorf("name is required unless --web is set")
	}
	return nil
}

// LogLevel maps --verbosity (by name) or repeated -v flags to a slog level.
// An explicit verbosity wins over the counter.
func (c *Config) LogLevel() slog.Level {
	switch strings.ToLower(c.Verbosity) {
	case "trace":
		return slog.LevelDebug - 4
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	switch {
	case c.VerboseCnt >= 2:
		return slog.LevelDebug - 4
	case c.VerboseCnt == 1:
		return slog.LevelDebug
	}
	return slog.LevelInfo
}

// Helper to use a flat, dot-keyed map as a provider
type mapProvider struct {
	m map[string]interface{}
}

func makeMapProvider(m map[string]interface{}) *mapProvider {
	return &mapProvider{m: m}
}

func (p *mapProvider) Read() (map[string]interface{}, error) {
	return maps.Unflatten(p.m, "."), nil
}

func (p *mapProvider) ReadBytes() ([]byte, error) {
	return nil, fmt.Errorf("not implemented")
}
