package resolver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ritzau/sbom-resolver/pkg/logging"
	"github.com/ritzau/sbom-resolver/pkg/metrics"
	"github.com/ritzau/sbom-resolver/pkg/model"
	"github.com/ritzau/sbom-resolver/pkg/sparql"
)

// Defaults applied when Options leaves a field at zero
const (
	DefaultMaxDepth    = 50
	DefaultConcurrency = 8
)

// progressEvery controls how often traversal progress is reported
const progressEvery = 25

// Stage of a resolution as reported to observers
type Stage string

const (
	StageStarted    Stage = "started"
	StageVersions   Stage = "versions"
	StageTraversing Stage = "traversing"
	StageCompleted  Stage = "completed"
	StageFailed     Stage = "failed"
)

// Progress is a snapshot of one resolution
type Progress struct {
	Root  string
	Stage Stage
	Nodes int
	Edges int
	Err   error
}

// Options configures a Resolver
type Options struct {
	MaxDepth    int
	Concurrency int           // Upstream fetches in flight per resolution
	Timeout     time.Duration // Zero means only the caller's ctx applies
	Metrics     *metrics.Metrics
	Observer    func(Progress)
}

// Resolver builds dependency trees from the knowledge graph
type Resolver struct {
	q    Querier
	opts Options
	log  *slog.Logger
}

// New creates a resolver. q is normally a *CachedQuerier.
func New(q Querier, opts Options) *Resolver {
	if opts.MaxDepth < 1 {
		opts.MaxDepth = DefaultMaxDepth
	}
	if opts.Concurrency < 1 {
		opts.Concurrency = DefaultConcurrency
	}
	return &Resolver{q: q, opts: opts, log: logging.New("resolver")}
}

// Resolve builds the dependency tree of every version of rootName.
//
// Errors:
//   - ErrEmptyName for a blank name
//   - *NotFoundError when the component does not exist
//   - a *sparql.QueryError when the root lookups fail (no tree)
//   - *PartialResolutionError when traversal stops early; the partial tree is
//     returned alongside it
func (r *Resolver) Resolve(ctx context.Context, rootName string) (*model.ResolvedTree, error) {
	name := model.NormalizeName(rootName)
	if name == "" {
		return nil, ErrEmptyName
	}

	start := time.Now()
	if r.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.opts.Timeout)
		defer cancel()
	}

	r.notify(Progress{Root: name, Stage: StageStarted})
	r.log.InfoContext(ctx, "resolving", "root", name)

	found, err := r.locate(ctx, name)
	if err != nil {
		return nil, r.finish(ctx, name, start, nil, fmt.Errorf("locate %s: %w", name, err))
	}
	if !found {
		return nil, r.finish(ctx, name, start, nil, &NotFoundError{Name: name})
	}

	versions, err := r.versions(ctx, name)
	if err != nil {
		return nil, r.finish(ctx, name, start, nil, fmt.Errorf("list versions of %s: %w", name, err))
	}

	tree := model.NewResolvedTree(name)
	tree.Versions = versions
	if len(versions) > 0 {
		tree.Latest = versions[0]
	}
	r.notify(Progress{Root: name, Stage: StageVersions})

	if err := newWalker(ctx, r, tree).run(); err != nil {
		var step *stepError
		if !errors.As(err, &step) {
			step = &stepError{step: "traverse", err: err}
		}
		partial := &PartialResolutionError{Root: name, Step: step.step, Err: step.err, Tree: tree}
		return tree, r.finish(ctx, name, start, tree, partial)
	}

	return tree, r.finish(ctx, name, start, tree, nil)
}

// finish records the outcome and passes err through
func (r *Resolver) finish(ctx context.Context, name string, start time.Time, tree *model.ResolvedTree, err error) error {
	elapsed := time.Since(start)
	nodes, edges := 0, 0
	if tree != nil {
		nodes, edges = len(tree.Nodes), len(tree.Edges)
	}

	var (
		outcome  string
		notFound *NotFoundError
		partial  *PartialResolutionError
	)
	switch {
	case err == nil:
		outcome = metrics.OutcomeSuccess
		r.log.InfoContext(ctx, "resolved", "root", name, "nodes", nodes, "edges", edges,
			"cycles", tree.CountEdges(model.EdgeCycle), "durationMs", elapsed.Milliseconds())
	case errors.As(err, &notFound):
		outcome = metrics.OutcomeNotFound
		r.log.InfoContext(ctx, "component not found", "root", name)
	case errors.As(err, &partial):
		outcome = metrics.OutcomePartial
		r.log.WarnContext(ctx, "partial resolution", "root", name, "step", partial.Step,
			"nodes", nodes, "edges", edges, "error", partial.Err)
	default:
		outcome = metrics.OutcomeError
		r.log.WarnContext(ctx, "resolution failed", "root", name, "error", err)
	}
	r.opts.Metrics.ObserveResolution(outcome, elapsed, nodes)

	stage := StageCompleted
	if err != nil {
		stage = StageFailed
	}
	r.notify(Progress{Root: name, Stage: stage, Nodes: nodes, Edges: edges, Err: err})
	return err
}

func (r *Resolver) notify(p Progress) {
	if r.opts.Observer != nil {
		r.opts.Observer(p)
	}
}

// frame is one entry of the traversal work stack. An exit frame pops its node
// off the ancestry path once all of its children have been handled.
type frame struct {
	parent string
	ref    model.Ref
	depth  int
	exit   bool
}

// fetch holds the upstream results for one version, filled by a pool goroutine
type fetch struct {
	done  chan struct{}
	deps  []model.Ref
	vulns []model.Vulnerability
	step  string
	err   error
}

// walker performs one depth-first traversal. All bookkeeping (stack, seen,
// ancestry, tree) is owned by the goroutine calling run; only upstream fetches
// run on the pool.
type walker struct {
	r      *Resolver
	ctx    context.Context
	cancel context.CancelFunc
	pool   *errgroup.Group
	tree   *model.ResolvedTree

	stack    []frame
	seen     map[string]bool // Materialized anywhere in the tree
	ancestry map[string]bool // On the active path from a root version
	fetches  map[string]*fetch
}

func newWalker(ctx context.Context, r *Resolver, tree *model.ResolvedTree) *walker {
	ctx, cancel := context.WithCancel(ctx)
	pool := new(errgroup.Group)
	pool.SetLimit(r.opts.Concurrency)
	return &walker{
		r:        r,
		ctx:      ctx,
		cancel:   cancel,
		pool:     pool,
		tree:     tree,
		seen:     make(map[string]bool),
		ancestry: make(map[string]bool),
		fetches:  make(map[string]*fetch),
	}
}

func (w *walker) run() error {
	defer func() {
		// Stop prefetches nobody will read; completed cache entries stay valid
		w.cancel()
		_ = w.pool.Wait()
	}()

	name := w.tree.Name
	for i := len(w.tree.Versions) - 1; i >= 0; i-- {
		w.stack = append(w.stack, frame{ref: model.Ref{Name: name, Version: w.tree.Versions[i]}})
	}
	for _, v := range w.tree.Versions {
		w.prefetch(model.Ref{Name: name, Version: v})
	}

	for len(w.stack) > 0 {
		if err := w.ctx.Err(); err != nil {
			return &stepError{step: "traverse", err: err}
		}

		f := w.stack[len(w.stack)-1]
		w.stack = w.stack[:len(w.stack)-1]
		id := f.ref.ID()

		switch {
		case f.exit:
			delete(w.ancestry, id)
			continue
		case w.ancestry[id]:
			w.tree.AddEdge(f.parent, id, model.EdgeCycle)
			continue
		case w.seen[id]:
			if f.parent != "" {
				w.tree.AddEdge(f.parent, id, model.EdgeDependsOn)
			}
			continue
		case f.depth > w.r.opts.MaxDepth:
			w.tree.AddTruncation(f.parent, f.ref)
			continue
		}

		if err := w.expand(f, id); err != nil {
			return err
		}
	}
	return nil
}

// expand materializes a node, attaches its vulnerabilities and schedules its children
func (w *walker) expand(f frame, id string) error {
	node := model.NewNode(f.ref.Name, f.ref.Version)
	w.tree.AddNode(node)
	w.seen[id] = true
	if f.parent != "" {
		w.tree.AddEdge(f.parent, id, model.EdgeDependsOn)
	}
	if len(w.tree.Nodes)%progressEvery == 0 {
		w.r.notify(Progress{Root: w.tree.Name, Stage: StageTraversing, Nodes: len(w.tree.Nodes), Edges: len(w.tree.Edges)})
	}

	res := w.start(f.ref)
	select {
	case <-res.done:
	case <-w.ctx.Done():
		return &stepError{step: "await " + id, err: w.ctx.Err()}
	}
	if res.err != nil {
		return &stepError{step: res.step, err: res.err}
	}
	node.Vulnerabilities = res.vulns

	w.ancestry[id] = true
	w.stack = append(w.stack, frame{ref: f.ref, exit: true})
	for i := len(res.deps) - 1; i >= 0; i-- {
		w.stack = append(w.stack, frame{parent: id, ref: res.deps[i], depth: f.depth + 1})
	}
	if f.depth+1 <= w.r.opts.MaxDepth {
		for _, dep := range res.deps {
			depID := dep.ID()
			if !w.seen[depID] && !w.ancestry[depID] {
				w.prefetch(dep)
			}
		}
	}
	return nil
}

// start returns the fetch for ref, blocking for a pool slot if it was not prefetched
func (w *walker) start(ref model.Ref) *fetch {
	if res, ok := w.fetches[ref.ID()]; ok {
		return res
	}
	res := &fetch{done: make(chan struct{})}
	w.fetches[ref.ID()] = res
	w.pool.Go(func() error {
		w.load(ref, res)
		return nil
	})
	return res
}

// prefetch schedules a fetch only if a pool slot is free right now
func (w *walker) prefetch(ref model.Ref) {
	if _, ok := w.fetches[ref.ID()]; ok {
		return
	}
	res := &fetch{done: make(chan struct{})}
	if w.pool.TryGo(func() error {
		w.load(ref, res)
		return nil
	}) {
		w.fetches[ref.ID()] = res
	}
}

func (w *walker) load(ref model.Ref, res *fetch) {
	defer close(res.done)

	deps, err := w.r.dependencies(w.ctx, ref)
	if err != nil {
		res.step, res.err = string(sparql.ListDependencies)+" "+ref.ID(), err
		return
	}
	vulns, err := w.r.vulnerabilities(w.ctx, ref)
	if err != nil {
		res.step, res.err = string(sparql.ListVulnerabilities)+" "+ref.ID(), err
		return
	}
	res.deps, res.vulns = deps, vulns
}
