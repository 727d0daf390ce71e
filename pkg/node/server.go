package node

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"
)

/*
Server exposes the node over HTTP.

Routes:
  POST   /documents                  upload a document (multipart "file" field, or raw body + X-Filename)
  GET    /documents                  list stored documents
  GET    /documents/{id}             document metadata
  DELETE /documents/{id}             remove a document and its leaf hashes
  GET    /documents/{id}/proof/{n}   inclusion proof for page n (0-based)
  POST   /verify                     stateless proof verification
  GET    /                           liveness text
  GET    /healthz                    persistence health
  GET    /metrics                    Prometheus metrics

Uploads are bounded by MaxUploadBytes (413 when exceeded) and by a token
bucket shared across clients (429 when empty). Every response carries
permissive CORS headers.
*/

// Server handles HTTP requests for the node
type Server struct {
	node       *Node
	httpServer *http.Server
	listener   net.Listener

	maxUploadBytes int64
	uploadLimiter  *rate.Limiter
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	Port           int
	MaxUploadBytes int64
	UploadRate     float64
	UploadBurst    int
}

const (
	defaultMaxUploadBytes = 32 << 20
	readHeaderTimeout     = 10 * time.Second
)

// NewServer creates a new server instance
func NewServer(node *Node, cfg ServerConfig) *Server {
	s := &Server{
		node:           node,
		maxUploadBytes: cfg.MaxUploadBytes,
	}
	if s.maxUploadBytes <= 0 {
		s.maxUploadBytes = defaultMaxUploadBytes
	}
	if cfg.UploadRate > 0 {
		burst := cfg.UploadBurst
		if burst < 1 {
			burst = 1
		}
		s.uploadLimiter = rate.NewLimiter(rate.Limit(cfg.UploadRate), burst)
	}

	router := mux.NewRouter()

	router.HandleFunc("/", s.handleIndex).Methods(http.MethodGet)
	router.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	router.Handle("/metrics", promhttp.HandlerFor(node.registry, promhttp.HandlerOpts{})).Methods(http.MethodGet)

	// Document endpoints
	router.HandleFunc("/documents", s.handleUploadDocument).Methods(http.MethodPost)
	router.HandleFunc("/documents", s.handleListDocuments).Methods(http.MethodGet)
	router.HandleFunc("/documents/{id}", s.handleGetDocument).Methods(http.MethodGet)
	router.HandleFunc("/documents/{id}", s.handleDeleteDocument).Methods(http.MethodDelete)
	router.HandleFunc("/documents/{id}/proof/{page}", s.handleGenerateProof).Methods(http.MethodGet)

	// Verification endpoint
	router.HandleFunc("/verify", s.handleVerify).Methods(http.MethodPost)

	router.Use(s.loggingMiddleware)

	s.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           corsMiddleware(router),
		ReadHeaderTimeout: readHeaderTimeout,
	}

	return s
}

// Start binds the listen address and serves HTTP in the background.
// Bind failures, such as a port already in use, are returned to the caller.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.httpServer.Addr, err)
	}
	s.listener = ln

	s.node.logger.Sugar().Infow("Starting HTTP server", "address", ln.Addr().String(), "hash_algorithm", s.node.HashAlgorithm())
	go func() {
		if err := s.httpServer.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
			s.node.logger.Sugar().Errorw("HTTP server error", "error", err)
		}
	}()
	return nil
}

// Addr returns the bound listen address, or "" before Start succeeds.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Addr returns the address the node's HTTP server is bound to
func (n *Node) Addr() string {
	return n.server.Addr()
}

// Stop drains in-flight requests and stops the HTTP server
func (s *Server) Stop(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// GetHandler returns the HTTP handler (for testing)
func (s *Server) GetHandler() http.Handler {
	return s.httpServer.Handler
}

// GetHandler returns the node's HTTP handler (for testing and embedding)
func (n *Node) GetHandler() http.Handler {
	return n.server.GetHandler()
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("Access-Control-Allow-Origin", "*")
		h.Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		h.Set("Access-Control-Allow-Headers", "Content-Type, X-Filename")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r)

		route := r.URL.Path
		if current := mux.CurrentRoute(r); current != nil {
			if tmpl, err := current.GetPathTemplate(); err == nil {
				route = tmpl
			}
		}
		s.node.metrics.HTTPRequests.WithLabelValues(route, strconv.Itoa(rec.status)).Inc()

		s.node.logger.Sugar().Debugw("HTTP request",
			"method", r.Method,
			"route", route,
			"status", rec.status,
			"duration", time.Since(start),
		)
	})
}
