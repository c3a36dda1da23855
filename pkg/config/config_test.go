package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
)

func newFlagSet() *pflag.FlagSet {
	f := pflag.NewFlagSet("test", pflag.ContinueOnError)
	f.String("endpoint", "", "")
	f.String("name", "", "")
	f.String("config", "", "")
	f.Int("resolver.depth", 50, "")
	f.Duration("cache.ttl", 300*time.Second, "")
	f.CountP("verbose", "v", "")
	return f
}

func TestLoad_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load(nil)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Format != "json" {
		t.Errorf("Format = %q, want json", cfg.Format)
	}
	if cfg.Cache.TTL != 300*time.Second {
		t.Errorf("Cache.TTL = %v, want 300s", cfg.Cache.TTL)
	}
	if cfg.Cache.Capacity != 1000 {
		t.Errorf("Cache.Capacity = %d, want 1000", cfg.Cache.Capacity)
	}
	if cfg.Resolver.Depth != 50 || cfg.Resolver.Concurrency != 8 {
		t.Errorf("Resolver = %+v, want depth 50 concurrency 8", cfg.Resolver)
	}
	if cfg.Query.Attempts != 3 {
		t.Errorf("Query.Attempts = %d, want 3", cfg.Query.Attempts)
	}
	if cfg.Ontology.DependsOn != "https://w3id.org/secure-chain/dependsOn" {
		t.Errorf("Ontology.DependsOn = %q", cfg.Ontology.DependsOn)
	}
}

func TestLoad_Priority(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "custom.toml")
	content := `
endpoint = "http://file.example/sparql"
name = "from-file"

[cache]
ttl = "45s"
capacity = 10

[resolver]
depth = 7
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	t.Setenv("SBOM_RESOLVER_NAME", "from-env")
	t.Setenv("SBOM_RESOLVER_CACHE_CAPACITY", "20")

	f := newFlagSet()
	if err := f.Parse([]string{"--config", path, "--resolver.depth", "3"}); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(f)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Endpoint != "http://file.example/sparql" {
		t.Errorf("Endpoint = %q, want value from file", cfg.Endpoint)
	}
	if cfg.Name != "from-env" {
		t.Errorf("Name = %q, want env to override file", cfg.Name)
	}
	if cfg.Cache.TTL != 45*time.Second {
		t.Errorf("Cache.TTL = %v, want 45s from file", cfg.Cache.TTL)
	}
	if cfg.Cache.Capacity != 20 {
		t.Errorf("Cache.Capacity = %d, want 20 from env", cfg.Cache.Capacity)
	}
	if cfg.Resolver.Depth != 3 {
		t.Errorf("Resolver.Depth = %d, want 3 from flag", cfg.Resolver.Depth)
	}
	if cfg.ConfigFile != path {
		t.Errorf("ConfigFile = %q, want %q", cfg.ConfigFile, path)
	}
}

func TestLoad_FileFormats(t *testing.T) {
	tests := []struct {
		file    string
		content string
	}{
		{"sbom.yaml", "endpoint: http://yaml.example/sparql\ncache:\n  ttl: 45s\nresolver:\n  concurrency: 4\n"},
		{"sbom.yml", "endpoint: http://yaml.example/sparql\ncache:\n  ttl: 45s\nresolver:\n  concurrency: 4\n"},
		{"sbom.json", `{"endpoint": "http://json.example/sparql", "cache": {"ttl": "45s"}, "resolver": {"concurrency": 4}}`},
	}

	for _, tt := range tests {
		t.Run(tt.file, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), tt.file)
			if err := os.WriteFile(path, []byte(tt.content), 0o644); err != nil {
				t.Fatal(err)
			}
			f := newFlagSet()
			if err := f.Parse([]string{"--config", path}); err != nil {
				t.Fatal(err)
			}

			cfg, err := Load(f)
			if err != nil {
				t.Fatalf("Load() error: %v", err)
			}
			if cfg.Endpoint == "" || cfg.Cache.TTL != 45*time.Second || cfg.Resolver.Concurrency != 4 {
				t.Errorf("cfg = endpoint %q, ttl %v, concurrency %d", cfg.Endpoint, cfg.Cache.TTL, cfg.Resolver.Concurrency)
			}
			if cfg.Resolver.Depth != 50 {
				t.Errorf("Resolver.Depth = %d, want default 50", cfg.Resolver.Depth)
			}
		})
	}
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	f := newFlagSet()
	if err := f.Parse([]string{"--config", filepath.Join(t.TempDir(), "nope.toml")}); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(f); err == nil {
		t.Fatal("expected error for missing explicit config file")
	}
}

func TestValidate(t *testing.T) {
	base := func(t *testing.T) *Config {
		t.Helper()
		t.Chdir(t.TempDir())
		cfg, err := Load(nil)
		if err != nil {
			t.Fatal(err)
		}
		cfg.Endpoint = "http://localhost:7200/repositories/kg"
		cfg.Name = "zlib"
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid", func(*Config) {}, false},
		{"missing endpoint", func(c *Config) { c.Endpoint = "" }, true},
		{"non http endpoint", func(c *Config) { c.Endpoint = "ftp://x/y" }, true},
		{"zero attempts", func(c *Config) { c.Query.Attempts = 0 }, true},
		{"zero depth", func(c *Config) { c.Resolver.Depth = 0 }, true},
		{"zero concurrency", func(c *Config) { c.Resolver.Concurrency = 0 }, true},
		{"no name in cli mode", func(c *Config) { c.Name = " " }, true},
		{"no name in web mode", func(c *Config) { c.Name = ""; c.WebMode = true }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base(t)
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestLogLevel(t *testing.T) {
	tests := []struct {
		verbosity string
		count     int
		want      slog.Level
	}{
		{"", 0, slog.LevelInfo},
		{"", 1, slog.LevelDebug},
		{"", 3, slog.LevelDebug - 4},
		{"warn", 2, slog.LevelWarn},
		{"ERROR", 0, slog.LevelError},
	}
	for _, tt := range tests {
		cfg := &Config{Verbosity: tt.verbosity, VerboseCnt: tt.count}
		if got := cfg.LogLevel(); got != tt.want {
			t.Errorf("LogLevel(%q, %d) = %v, want %v", tt.verbosity, tt.count, got, tt.want)
		}
	}
}
