package watcher

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ritzau/sbom-resolver/pkg/config"
)

// Default debounce timings for config reloads
const (
	DefaultQuietPeriod = 250 * time.Millisecond
	DefaultMaxWait     = 2 * time.Second
)

// ApplyFunc installs a reloaded configuration according to the plan
type ApplyFunc func(ctx context.Context, cfg *config.Config, plan *ReloadPlan) error

// Reloader watches the config file and applies valid changes. An invalid or
// missing file keeps the running configuration.
type Reloader struct {
	Path        string
	Load        func() (*config.Config, error)
	Apply       ApplyFunc
	QuietPeriod time.Duration
	MaxWait     time.Duration

	mu      sync.Mutex
	current *config.Config
}

// NewReloader creates a reloader starting from the running configuration
func NewReloader(current *config.Config, load func() (*config.Config, error), apply ApplyFunc) *Reloader {
	return &Reloader{
		Path:        current.ConfigFile,
		Load:        load,
		Apply:       apply,
		QuietPeriod: DefaultQuietPeriod,
		MaxWait:     DefaultMaxWait,
		current:     current,
	}
}

// Current returns the configuration last applied
func (r *Reloader) Current() *config.Config {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.current
}

// Run watches until ctx is done
func (r *Reloader) Run(ctx context.Context) error {
	fw, err := NewFileWatcher(r.Path)
	if err != nil {
		return err
	}
	if err := fw.Start(ctx); err != nil {
		fw.Stop()
		return err
	}

	d := NewDebouncer(fw.Events(), r.QuietPeriod, r.MaxWait)
	d.Start(ctx)

	log.Info("watching config file", "path", r.Path)
	for event := range d.Output() {
		if event.Type == ChangeTypeRemoved {
			log.Warn("config file removed, keeping running configuration", "path", r.Path)
			continue
		}
		if _, err := r.Reload(ctx); err != nil {
			log.Error("config reload failed", "path", r.Path, "error", err)
		}
	}
	return nil
}

// Reload loads, validates and applies the configuration once
func (r *Reloader) Reload(ctx context.Context) (*ReloadPlan, error) {
	cfg, err := r.Load()
	if err != nil {
		return nil, fmt.Errorf("load: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	plan := AnalyzeChanges(r.current, cfg)
	if plan.Empty() {
		log.Debug("config unchanged", "path", r.Path)
		return plan, nil
	}
	if len(plan.RestartRequired) > 0 {
		log.Warn("some settings take effect only after restart", "keys", plan.RestartRequired)
	}

	if err := r.Apply(ctx, cfg, plan); err != nil {
		return plan, fmt.Errorf("apply: %w", err)
	}
	r.current = cfg
	log.Info("config reloaded", "changed", plan.ChangedKeys)
	return plan, nil
}
