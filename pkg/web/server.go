package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ritzau/sbom-resolver/pkg/format"
	"github.com/ritzau/sbom-resolver/pkg/lens"
	"github.com/ritzau/sbom-resolver/pkg/logging"
	"github.com/ritzau/sbom-resolver/pkg/model"
	"github.com/ritzau/sbom-resolver/pkg/pubsub"
	"github.com/ritzau/sbom-resolver/pkg/resolver"
	"github.com/ritzau/sbom-resolver/pkg/sparql"
)

var log = logging.New("web")

// shutdownTimeout bounds how long in-flight requests get after the context ends
const shutdownTimeout = 10 * time.Second

// Backend resolves components and owns the result cache. *engine.Engine implements it.
type Backend interface {
	Resolve(ctx context.Context, name string) (*model.ResolvedTree, error)
	PurgeCache() int
	CacheLen() int
}

// Server serves the SBOM API
type Server struct {
	router    *mux.Router
	backend   Backend
	publisher *pubsub.SSEPublisher
	encoder   *format.Encoder
	gatherer  prometheus.Gatherer
}

// Options configures a Server
type Options struct {
	Publisher *pubsub.SSEPublisher // Created when nil
	Gatherer  prometheus.Gatherer  // Served on /metrics; defaults to the global registry
	Encoder   *format.Encoder
}

// NewServer creates a new web server
func NewServer(backend Backend, opts Options) *Server {
	if opts.Publisher == nil {
		opts.Publisher = NewPublisher()
	}
	if opts.Gatherer == nil {
		opts.Gatherer = prometheus.DefaultGatherer
	}
	if opts.Encoder == nil {
		opts.Encoder = format.NewEncoder()
	}

	s := &Server{
		router:    mux.NewRouter(),
		backend:   backend,
		publisher: opts.Publisher,
		encoder:   opts.Encoder,
		gatherer:  opts.Gatherer,
	}
	s.setupRoutes()
	return s
}

// NewPublisher creates the SSE publisher with the topic buffering the API uses
func NewPublisher() *pubsub.SSEPublisher {
	p := pubsub.NewSSEPublisher()

	// resolution_status: keep recent progress so a late subscriber sees running resolutions
	p.ConfigureTopic(pubsub.TopicResolutionStatus, pubsub.TopicConfig{
		BufferSize: 50,
		ReplayAll:  true,
	})

	// service_status: only the current state matters
	p.ConfigureTopic(pubsub.TopicServiceStatus, pubsub.TopicConfig{
		BufferSize: 10,
		ReplayAll:  false,
	})
	return p
}

// Publisher returns the server's event publisher
func (s *Server) Publisher() *pubsub.SSEPublisher {
	return s.publisher
}

// PublishServiceStatus publishes a service status event
func (s *Server) PublishServiceStatus(state, message string) error {
	return s.publisher.Publish(pubsub.TopicServiceStatus, state, pubsub.ServiceStatus{
		State:   state,
		Message: message,
	})
}

// Handler returns the router with middleware applied
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) setupRoutes() {
	s.router.Use(logging.RequestIDMiddleware)

	// SSE subscription endpoints
	s.router.HandleFunc("/api/subscribe/resolutions", s.handleSubscribe(pubsub.TopicResolutionStatus)).Methods("GET")
	s.router.HandleFunc("/api/subscribe/service", s.handleSubscribe(pubsub.TopicServiceStatus)).Methods("GET")

	s.router.HandleFunc("/api/sbom/{name}", s.handleSBOM).Methods("GET")
	s.router.HandleFunc("/api/graph/{name}", s.handleGraph).Methods("GET")
	s.router.HandleFunc("/api/cache/purge", s.handleCachePurge).Methods("POST")

	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
	s.router.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})).Methods("GET")
}

func (s *Server) handleSubscribe(topic string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.Header().Set("Access-Control-Allow-Origin", "*")

		flusher, _ := w.(http.Flusher)
		flush := func() {
			if flusher != nil {
				flusher.Flush()
			}
		}

		// Initial comment establishes the stream before the first event
		fmt.Fprintf(w, ": connected\n\n")
		flush()

		sub, err := s.publisher.Subscribe(r.Context(), topic)
		if err != nil {
			// Headers are already sent; the stream just ends
			log.WarnContext(r.Context(), "subscription refused", "topic", topic, "error", err)
			return
		}
		defer sub.Close()

		for event := range sub.Events() {
			if err := pubsub.WriteSSE(w, event); err != nil {
				log.DebugContext(r.Context(), "client went away", "topic", topic, "error", err)
				return
			}
			flush()
		}
	}
}

// ErrorResponse is the JSON body of failed requests
type ErrorResponse struct {
	Error   string          `json:"error"`
	Step    string          `json:"step,omitempty"`
	Partial json.RawMessage `json:"partial,omitempty"` // Partial tree as a plain JSON document
}

func (s *Server) handleSBOM(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]

	f := format.JSON
	if q := r.URL.Query().Get("format"); q != "" {
		parsed, err := format.ParseFormat(q)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: err.Error()})
			return
		}
		f = parsed
	}

	tree, err := s.backend.Resolve(r.Context(), name)
	if err != nil {
		s.writeResolveError(w, r, tree, err)
		return
	}

	doc, err := s.encoder.Encode(f, tree)
	if err != nil {
		var fe *format.FormatError
		if errors.As(err, &fe) {
			writeJSON(w, http.StatusUnprocessableEntity, ErrorResponse{Error: err.Error()})
			return
		}
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
		return
	}

	w.Header().Set("Content-Type", f.ContentType())
	w.Write(doc)
}

// writeResolveError maps resolver errors to HTTP statuses. Partial trees are
// included in the body so a client can still show what was resolved.
func (s *Server) writeResolveError(w http.ResponseWriter, r *http.Request, tree *model.ResolvedTree, err error) {
	var (
		notFound *resolver.NotFoundError
		partial  *resolver.PartialResolutionError
		queryErr *sparql.QueryError
	)

	switch {
	case errors.Is(err, resolver.ErrEmptyName):
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: err.Error()})

	case errors.As(err, &notFound):
		writeJSON(w, http.StatusNotFound, ErrorResponse{Error: err.Error()})

	case errors.As(err, &partial):
		status := http.StatusBadGateway
		if errors.Is(err, resolver.ErrTimeout) {
			status = http.StatusGatewayTimeout
		}
		body := ErrorResponse{Error: err.Error(), Step: partial.Step}
		if tree == nil {
			tree = partial.Tree
		}
		if doc, encErr := s.encoder.ToJSON(tree); encErr == nil {
			body.Partial = doc
		}
		writeJSON(w, status, body)

	case errors.Is(err, context.DeadlineExceeded):
		writeJSON(w, http.StatusGatewayTimeout, ErrorResponse{Error: err.Error()})

	case errors.As(err, &queryErr):
		writeJSON(w, http.StatusBadGateway, ErrorResponse{Error: err.Error(), Step: string(queryErr.Template)})

	case errors.Is(err, context.Canceled):
		// Client is gone; nobody reads the body
		log.DebugContext(r.Context(), "resolution cancelled", "error", err)
		w.WriteHeader(499)

	default:
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
	}
}

// handleGraph serves the graph view. ?focus=id,id narrows it to the nodes
// within ?distance hops (default 1) of the focused ones.
func (s *Server) handleGraph(w http.ResponseWriter, r *http.Request) {
	view, err := parseView(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}

	tree, err := s.backend.Resolve(r.Context(), mux.Vars(r)["name"])

	var partial *resolver.PartialResolutionError
	if err != nil && !errors.As(err, &partial) {
		s.writeResolveError(w, r, tree, err)
		return
	}

	data := BuildGraphData(tree)
	if partial != nil {
		data.Partial = true
		data.Error = err.Error()
	}
	if view != nil {
		data = data.Focus(*view)
	}
	writeJSON(w, http.StatusOK, data)
}

func parseView(r *http.Request) (*lens.View, error) {
	q := r.URL.Query()
	var focus []string
	for _, v := range q["focus"] {
		for _, id := range strings.Split(v, ",") {
			if id = strings.TrimSpace(id); id != "" {
				focus = append(focus, id)
			}
		}
	}
	if len(focus) == 0 {
		return nil, nil
	}

	view := &lens.View{Focus: focus, MaxDistance: 1}
	if d := q.Get("distance"); d != "" {
		n, err := strconv.Atoi(d)
		if err != nil || n < 0 {
			return nil, fmt.Errorf("distance must be a non-negative integer, got %q", d)
		}
		view.MaxDistance = n
	}
	return view, nil
}

func (s *Server) handleCachePurge(w http.ResponseWriter, r *http.Request) {
	n := s.backend.PurgeCache()
	if err := s.PublishServiceStatus("cache_purged", fmt.Sprintf("purged %d cached results", n)); err != nil {
		log.DebugContext(r.Context(), "status not published", "error", err)
	}
	writeJSON(w, http.StatusOK, map[string]int{"purged": n})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":       "ok",
		"cacheEntries": s.backend.CacheLen(),
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Debug("failed to write response", "error", err)
	}
}

// Start serves on addr until ctx is done, then shuts down gracefully. SSE
// streams are ended first so they do not hold the shutdown open.
func (s *Server) Start(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve is Start on an existing listener
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()

	log.Info("serving", "url", "http://"+ln.Addr().String())
	if err := s.PublishServiceStatus("ready", "serving on "+ln.Addr().String()); err != nil {
		log.Debug("status not published", "error", err)
	}

	select {
	case err := <-errCh:
		s.publisher.Close()
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	s.publisher.Close()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
