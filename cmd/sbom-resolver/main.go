package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/pflag"

	"github.com/ritzau/sbom-resolver/pkg/config"
	"github.com/ritzau/sbom-resolver/pkg/engine"
	"github.com/ritzau/sbom-resolver/pkg/format"
	"github.com/ritzau/sbom-resolver/pkg/logging"
	"github.com/ritzau/sbom-resolver/pkg/metrics"
	"github.com/ritzau/sbom-resolver/pkg/model"
	"github.com/ritzau/sbom-resolver/pkg/output"
	"github.com/ritzau/sbom-resolver/pkg/pubsub"
	"github.com/ritzau/sbom-resolver/pkg/watcher"
	"github.com/ritzau/sbom-resolver/pkg/web"
)

var log = logging.New("main")

func newFlagSet(stderr io.Writer) *pflag.FlagSet {
	f := pflag.NewFlagSet("sbom-resolver", pflag.ContinueOnError)
	f.SetOutput(stderr)
	f.Usage = func() {
		fmt.Fprintf(stderr, "Usage: sbom-resolver --endpoint URL --name COMPONENT [flags]\n")
		fmt.Fprintf(stderr, "       sbom-resolver --endpoint URL --web [flags]\n\n")
		f.PrintDefaults()
	}

	// Defaults live in config.Defaults; flags only override what is set explicitly
	f.String("endpoint", "", "SPARQL endpoint URL of the knowledge graph")
	f.StringP("name", "n", "", "Root component to resolve")
	f.StringP("format", "f", "json", "Output format: json, spdx or cyclonedx")
	f.StringP("output", "o", "", "Write the document to a file instead of stdout")
	f.Bool("web", false, "Serve the HTTP API instead of resolving once")
	f.Int("port", 8080, "Port for the HTTP API (only used with --web)")
	f.Bool("watch", false, "Reload the config file when it changes (only used with --web)")
	f.String("config", "", "Config file (default ./"+config.DefaultConfigFile+" if present)")
	f.String("verbosity", "", "Log level: trace, debug, info, warn or error")
	f.CountP("verbose", "v", "Increase log verbosity (-v debug, -vv trace)")
	f.Bool("logjson", false, "Log as JSON lines")

	f.Duration("query.timeout", 0, "Timeout of one SPARQL request")
	f.Int("query.attempts", 0, "Attempts per query, including the first")
	f.Duration("query.backoff", 0, "Initial retry interval")
	f.Duration("query.maxbackoff", 0, "Upper bound of one retry wait")
	f.Duration("cache.ttl", 0, "Lifetime of a cached query result")
	f.Int("cache.capacity", 0, "Maximum number of cached query results")
	f.Int("resolver.depth", 0, "Maximum dependency depth")
	f.Int("resolver.concurrency", 0, "Queries in flight per resolution")
	f.Duration("resolver.timeout", 0, "Deadline of one resolution")
	return f
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// run is the whole command. It returns the process exit code: 0 on success,
// 1 when resolution or serving fails and 2 for usage and setup errors.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	flags := newFlagSet(stderr)
	if err := flags.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return 0
		}
		return 2
	}

	cfg, err := config.Load(flags)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n\n", err)
		flags.Usage()
		return 2
	}

	logOpts := logging.Options{Level: cfg.LogLevel(), JSON: cfg.LogJSON}
	logging.Configure(logOpts)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	publisher := web.NewPublisher()
	eng, err := engine.New(cfg, engine.Options{
		Metrics:  m,
		Observer: pubsub.ResolutionObserver(publisher),
		Logging:  logOpts,
	})
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}

	if cfg.WebMode {
		err = serve(ctx, cfg, flags, eng, publisher, reg)
	} else {
		err = resolveOnce(ctx, cfg, eng, stdout, stderr)
	}
	if err != nil {
		return 1
	}
	return 0
}

// resolveOnce resolves cfg.Name, writes the document and prints a report to
// stderr. A partial tree is still written before the error is returned.
func resolveOnce(ctx context.Context, cfg *config.Config, eng *engine.Engine, stdout, stderr io.Writer) error {
	f, err := format.ParseFormat(cfg.Format)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return err
	}

	tree, resolveErr := eng.Resolve(ctx, cfg.Name)
	if tree != nil {
		if err := writeDocument(stdout, cfg.Output, f, tree); err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			if resolveErr == nil {
				resolveErr = err
			}
		}
	}

	output.PrintSummary(stderr, tree, resolveErr)
	return resolveErr
}

// writeDocument writes to path, or to stdout when path is empty
func writeDocument(stdout io.Writer, path string, f format.Format, tree *model.ResolvedTree) error {
	doc, err := format.NewEncoder().Encode(f, tree)
	if err != nil {
		return fmt.Errorf("encode %s: %w", f, err)
	}
	doc = append(doc, '\n')

	if path == "" {
		_, err = stdout.Write(doc)
		return err
	}
	if err := os.WriteFile(path, doc, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	log.Info("document written", "path", path, "format", string(f), "bytes", len(doc))
	return nil
}

func serve(ctx context.Context, cfg *config.Config, flags *pflag.FlagSet, eng *engine.Engine, publisher *pubsub.SSEPublisher, reg *prometheus.Registry) error {
	server := web.NewServer(eng, web.Options{Publisher: publisher, Gatherer: reg})

	if cfg.Watch {
		apply := func(ctx context.Context, next *config.Config, plan *watcher.ReloadPlan) error {
			if err := eng.Apply(ctx, next, plan); err != nil {
				server.PublishServiceStatus("reload_failed", err.Error())
				return err
			}
			server.PublishServiceStatus("reloaded", fmt.Sprintf("applied changes to %v", plan.ChangedKeys))
			return nil
		}
		reloader := watcher.NewReloader(cfg, func() (*config.Config, error) {
			return config.Load(flags)
		}, apply)

		go func() {
			if err := reloader.Run(ctx); err != nil {
				log.Error("config watcher stopped", "error", err)
			}
		}()
	}

	if err := server.Start(ctx, fmt.Sprintf(":%d", cfg.Port)); err != nil {
		log.Error("server failed", "error", err)
		return err
	}
	return nil
}
