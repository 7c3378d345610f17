package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/ValentinKolb/segkv/lib/store"
	"github.com/VictoriaMetrics/metrics"
	"github.com/lni/dragonboat/v4/logger"
	"gopkg.in/yaml.v3"
)

var Logger = logger.GetLogger("api")

const (
	defaultMaxValueBytes = 16 << 20
	defaultListLimit     = 1000
)

// Options configures a Server.
type Options struct {
	Endpoint      string          // Address passed to ListenAndServe, e.g. "0.0.0.0:8080".
	Debug         bool            // Log every request at debug level.
	MaxValueBytes int64           // Largest accepted PUT body (0 = 16 MiB).
	Metrics       func(io.Writer) // Writes engine metrics before the process metrics, may be nil.
}

// DefaultOptions returns the options used when nil is passed to NewServer.
func DefaultOptions() *Options {
	return &Options{
		Endpoint:      "0.0.0.0:8080",
		MaxValueBytes: defaultMaxValueBytes,
	}
}

// Server serves the HTTP API for one store.
type Server struct {
	store   store.IStore
	opts    Options
	handler http.Handler
	srv     *http.Server
}

// NewServer creates a server for s. It does not start listening.
func NewServer(s store.IStore, opts *Options) *Server {
	if opts == nil {
		opts = DefaultOptions()
	}
	srv := &Server{store: s, opts: *opts}
	if srv.opts.MaxValueBytes <= 0 {
		srv.opts.MaxValueBytes = defaultMaxValueBytes
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /kv/{key}", srv.handleGet)
	mux.HandleFunc("HEAD /kv/{key}", srv.handleHas)
	mux.HandleFunc("PUT /kv/{key}", srv.handlePut)
	mux.HandleFunc("DELETE /kv/{key}", srv.handleDelete)
	mux.HandleFunc("POST /kv/{key}/expire", srv.handleExpire)
	mux.HandleFunc("GET /kv", srv.handleList)
	mux.HandleFunc("GET /info", srv.handleInfo)
	mux.HandleFunc("GET /metrics", srv.handleMetrics)

	if srv.opts.Debug {
		srv.handler = loggerMiddleware(mux)
	} else {
		srv.handler = mux
	}
	srv.srv = &http.Server{
		Addr:              srv.opts.Endpoint,
		Handler:           srv.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return srv
}

// Handler returns the root handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// ListenAndServe blocks serving requests on Options.Endpoint until Shutdown
// is called. It returns nil after a clean shutdown, including when Shutdown
// ran before it.
func (s *Server) ListenAndServe() error {
	Logger.Infof("Starting HTTP server on %s", s.opts.Endpoint)
	if err := s.srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops the server gracefully. It is safe to call concurrently with
// ListenAndServe.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

// --------------------------------------------------------------------------
// Key Handlers
// --------------------------------------------------------------------------

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	value, ok, err := s.store.Get(r.PathValue("key"))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	if !ok {
		http.Error(w, "key not found", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Length", strconv.Itoa(len(value)))
	if _, err = w.Write(value); err != nil {
		Logger.Warningf("failed to write response: %v", err)
	}
}

func (s *Server) handleHas(w http.ResponseWriter, r *http.Request) {
	ok, err := s.store.Has(r.PathValue("key"))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handlePut(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")
	query := r.URL.Query()

	expireIn, err := parseUint(query.Get("expire-in"))
	if err != nil {
		http.Error(w, "invalid expire-in: "+err.Error(), http.StatusBadRequest)
		return
	}
	deleteIn, err := parseUint(query.Get("delete-in"))
	if err != nil {
		http.Error(w, "invalid delete-in: "+err.Error(), http.StatusBadRequest)
		return
	}
	ifUnset := false
	if raw := query.Get("if-unset"); raw != "" {
		if ifUnset, err = strconv.ParseBool(raw); err != nil {
			http.Error(w, "invalid if-unset: "+err.Error(), http.StatusBadRequest)
			return
		}
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.opts.MaxValueBytes))
	defer r.Body.Close()
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			http.Error(w, "value too large", http.StatusRequestEntityTooLarge)
			return
		}
		http.Error(w, "failed to read request body", http.StatusBadRequest)
		return
	}

	switch {
	case ifUnset:
		err = s.store.SetEIfUnset(key, body, expireIn, deleteIn)
	case expireIn > 0 || deleteIn > 0:
		err = s.store.SetE(key, body, expireIn, deleteIn)
	default:
		err = s.store.Set(key, body)
	}
	if err != nil {
		writeStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Delete(r.PathValue("key")); err != nil {
		writeStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleExpire(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Expire(r.PathValue("key")); err != nil {
		writeStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --------------------------------------------------------------------------
// Listing, Info and Metrics
// --------------------------------------------------------------------------

// listResponse is the body of GET /kv. Values are base64 encoded.
type listResponse struct {
	Size  int          `json:"size"`
	Pairs []store.Pair `json:"pairs"`
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	limit := defaultListLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = n
	}

	pairs, err := s.store.Scan(limit)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	size, err := s.store.Size()
	if err != nil {
		writeStoreError(w, err)
		return
	}
	if pairs == nil {
		pairs = []store.Pair{}
	}
	writeJSON(w, listResponse{Size: size, Pairs: pairs})
}

func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	info, err := s.store.GetDBInfo()
	if err != nil {
		writeStoreError(w, err)
		return
	}

	switch r.URL.Query().Get("format") {
	case "", "json":
		writeJSON(w, info)
	case "yaml":
		out, err := yaml.Marshal(info)
		if err != nil {
			Logger.Errorf("failed to encode info as yaml: %v", err)
			http.Error(w, "failed to encode info", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/yaml")
		_, _ = w.Write(out)
	default:
		http.Error(w, "invalid format (expected json or yaml)", http.StatusBadRequest)
	}
}

func (s *Server) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	if s.opts.Metrics != nil {
		s.opts.Metrics(w)
	}
	metrics.WritePrometheus(w, true)
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

func parseUint(raw string) (uint64, error) {
	if raw == "" {
		return 0, nil
	}
	return strconv.ParseUint(raw, 10, 64)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		Logger.Warningf("failed to write json response: %v", err)
	}
}

// statusFor maps a store error to an HTTP status code.
func statusFor(err error) int {
	var storeErr *store.Error
	if !errors.As(err, &storeErr) {
		return http.StatusInternalServerError
	}
	switch storeErr.Code {
	case store.RetCUnsupportedOperation:
		return http.StatusNotImplemented
	case store.RetCInvalidOperation:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func writeStoreError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		Logger.Errorf("store error: %v", err)
	}
	http.Error(w, err.Error(), status)
}

// --------------------------------------------------------------------------
// Middleware (logging)
// --------------------------------------------------------------------------

// responseWriter captures the status code written by a handler.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// loggerMiddleware logs method, path, status and duration of every request.
func loggerMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		next.ServeHTTP(rw, r)

		Logger.Debugf("%s %s => %d took %s", r.Method, r.URL.Path, rw.statusCode, time.Since(start))
	})
}
