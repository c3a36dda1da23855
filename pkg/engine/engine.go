package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ritzau/sbom-resolver/pkg/cache"
	"github.com/ritzau/sbom-resolver/pkg/config"
	"github.com/ritzau/sbom-resolver/pkg/logging"
	"github.com/ritzau/sbom-resolver/pkg/metrics"
	"github.com/ritzau/sbom-resolver/pkg/model"
	"github.com/ritzau/sbom-resolver/pkg/resolver"
	"github.com/ritzau/sbom-resolver/pkg/sparql"
	"github.com/ritzau/sbom-resolver/pkg/watcher"
)

var log = logging.New("engine")

// ExecutorFactory creates the transport for an endpoint
type ExecutorFactory func(endpoint string, timeout time.Duration) sparql.Executor

// Options holds the collaborators that outlive a configuration
type Options struct {
	Metrics     *metrics.Metrics
	Observer    func(resolver.Progress)
	NewExecutor ExecutorFactory // Defaults to sparql.NewHTTPExecutor
	Logging     logging.Options // Output and format kept across reloads
}

// Engine owns the query client, result cache and resolver built from the
// current configuration and swaps them on reload. Resolutions in flight keep
// the components they started with.
type Engine struct {
	opts Options

	mu       sync.RWMutex
	cfg      *config.Config
	client   *sparql.Client
	cache    *cache.Cache[[]sparql.Binding]
	resolver *resolver.Resolver
}

// New builds an engine from a validated configuration
func New(cfg *config.Config, opts Options) (*Engine, error) {
	if opts.NewExecutor == nil {
		opts.NewExecutor = func(endpoint string, timeout time.Duration) sparql.Executor {
			return sparql.NewHTTPExecutor(endpoint, timeout)
		}
	}

	e := &Engine{opts: opts, cfg: cfg}
	client, err := e.newClient(cfg)
	if err != nil {
		return nil, err
	}
	e.client = client
	e.cache = e.newCache(cfg)
	e.resolver = e.newResolver(cfg, e.client, e.cache)
	return e, nil
}

func (e *Engine) newClient(cfg *config.Config) (*sparql.Client, error) {
	templates, err := sparql.NewTemplates(cfg.Ontology)
	if err != nil {
		return nil, fmt.Errorf("build query templates: %w", err)
	}
	return sparql.NewClient(e.opts.NewExecutor(cfg.Endpoint, cfg.Query.Timeout), templates, sparql.Options{
		Attempts:   cfg.Query.Attempts,
		Backoff:    cfg.Query.Backoff,
		MaxBackoff: cfg.Query.MaxBackoff,
		Metrics:    e.opts.Metrics,
	}), nil
}

func (e *Engine) newCache(cfg *config.Config) *cache.Cache[[]sparql.Binding] {
	return cache.New[[]sparql.Binding](cache.Options{
		Capacity: cfg.Cache.Capacity,
		TTL:      cfg.Cache.TTL,
		Metrics:  e.opts.Metrics,
	})
}

func (e *Engine) newResolver(cfg *config.Config, client *sparql.Client, c *cache.Cache[[]sparql.Binding]) *resolver.Resolver {
	return resolver.New(resolver.NewCachedQuerier(client, c), resolver.Options{
		MaxDepth:    cfg.Resolver.Depth,
		Concurrency: cfg.Resolver.Concurrency,
		Timeout:     cfg.Resolver.Timeout,
		Metrics:     e.opts.Metrics,
		Observer:    e.opts.Observer,
	})
}

// Resolve resolves a root component with the current resolver
func (e *Engine) Resolve(ctx context.Context, name string) (*model.ResolvedTree, error) {
	e.mu.RLock()
	r := e.resolver
	e.mu.RUnlock()
	return r.Resolve(ctx, name)
}

// PurgeCache drops every cached query result and returns how many there were
func (e *Engine) PurgeCache() int {
	e.mu.RLock()
	c := e.cache
	e.mu.RUnlock()

	n := c.Len()
	c.Purge()
	log.Info("cache purged", "entries", n)
	return n
}

// CacheLen returns the number of cached query results
func (e *Engine) CacheLen() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.cache.Len()
}

// Config returns the configuration currently in effect
func (e *Engine) Config() *config.Config {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.cfg
}

// Apply installs a reloaded configuration, rebuilding what the plan names.
// It has the signature of watcher.ApplyFunc.
func (e *Engine) Apply(_ context.Context, cfg *config.Config, plan *watcher.ReloadPlan) error {
	e.mu.RLock()
	client, c := e.client, e.cache
	e.mu.RUnlock()

	if plan.RebuildClient {
		next, err := e.newClient(cfg)
		if err != nil {
			return err
		}
		client = next
	}
	if plan.RebuildCache {
		c = e.newCache(cfg)
	} else if plan.PurgeCache {
		c.Purge()
	}

	e.mu.Lock()
	e.cfg = cfg
	e.client = client
	e.cache = c
	if plan.RebuildResolver {
		e.resolver = e.newResolver(cfg, client, c)
	}
	e.mu.Unlock()

	if plan.ReconfigureLog {
		lo := e.opts.Logging
		lo.Level = cfg.LogLevel()
		lo.JSON = cfg.LogJSON
		logging.Configure(lo)
	}

	log.Info("configuration applied",
		"client", plan.RebuildClient,
		"cache", plan.RebuildCache || plan.PurgeCache,
		"resolver", plan.RebuildResolver)
	return nil
}
