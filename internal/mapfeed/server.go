// Package mapfeed serves the photo collection over HTTP and pushes live
// snapshots to map clients over websocket.
package mapfeed

import (
	"bufio"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/mux"
	ws "github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/geotag/photomap/internal/collection"
	"github.com/geotag/photomap/internal/geo"
	"github.com/geotag/photomap/internal/logging"
	"github.com/geotag/photomap/internal/marker"
	"github.com/geotag/photomap/internal/storage"
	"github.com/geotag/photomap/pkg/core"
	"github.com/geotag/photomap/pkg/streaming"
)

const (
	maxUploadBytes  = 32 << 20
	maxFormMemory   = 8 << 20
	sceneTimeout    = 5 * time.Second
	shutdownTimeout = 5 * time.Second
)

// Dependencies holds the server's collaborators.
type Dependencies struct {
	Store      storage.Backend
	Collection string
	// Secret, when set, must accompany every upload.
	Secret   string
	Loader   marker.Loader
	Registry *prometheus.Registry
	Logger   *slog.Logger
}

// Server is the map feed HTTP server.
type Server struct {
	store      storage.Backend
	collection string
	secret     string
	loader     marker.Loader
	registry   *prometheus.Registry
	metrics    *Metrics
	hub        *Hub
	router     *mux.Router
	logger     *slog.Logger

	mu   sync.Mutex
	view *collection.View
}

// New creates a server. Call Start before serving requests.
func New(deps Dependencies) *Server {
	if deps.Collection == "" {
		deps.Collection = core.DefaultCollection
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Loader == nil {
		deps.Loader = marker.URILoader{}
	}
	if deps.Registry == nil {
		deps.Registry = prometheus.NewRegistry()
	}

	metrics := NewMetrics(deps.Registry)
	s := &Server{
		store:      deps.Store,
		collection: deps.Collection,
		secret:     deps.Secret,
		loader:     deps.Loader,
		registry:   deps.Registry,
		metrics:    metrics,
		hub:        NewHub(deps.Collection, metrics, deps.Logger),
		logger:     deps.Logger,
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	r := mux.NewRouter()
	r.Use(s.instrument)

	r.HandleFunc("/healthcheck", s.handleHealthcheck).Methods(http.MethodGet)
	r.HandleFunc("/api/photos", s.handleList).Methods(http.MethodGet)
	r.HandleFunc("/api/photos", s.handleUpload).Methods(http.MethodPost)
	r.HandleFunc("/api/photos/{id}", s.handleGet).Methods(http.MethodGet)
	r.HandleFunc("/api/photos/{id}/scene", s.handleScene).Methods(http.MethodGet)
	r.HandleFunc("/feed", s.handleFeed).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{Registry: s.registry}))

	s.router = r
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Hub returns the websocket hub.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Start mounts the live collection view that backs every route.
func (s *Server) Start(ctx context.Context) error {
	view, err := collection.New(s.store, s.collection, s.logger).Mount(ctx)
	if err != nil {
		return err
	}
	view.OnChange(func([]core.PhotoRecord) { s.refresh(view) })

	s.mu.Lock()
	s.view = view
	s.mu.Unlock()

	// the first snapshot may have landed before OnChange was registered
	select {
	case <-view.Ready():
		s.refresh(view)
	default:
	}
	return nil
}

func (s *Server) refresh(view *collection.View) {
	if err := s.hub.Refresh(view.Records); err != nil && !errors.Is(err, ErrClosed) {
		s.logger.Error("Failed to publish snapshot", "error", err)
	}
}

func (s *Server) currentView() *collection.View {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view
}

// ListenAndServe starts the server on addr and blocks until ctx is done.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	if err := s.Start(ctx); err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	s.logger.Info("Map feed listening", "address", addr, "collection", s.collection)

	select {
	case err := <-errCh:
		s.Close()
		return err
	case <-ctx.Done():
	}

	s.Close()
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down map feed: %w", err)
	}
	return nil
}

// Close disconnects feed clients and unmounts the view.
func (s *Server) Close() {
	s.hub.Close()
	if v := s.currentView(); v != nil {
		v.Close()
	}
}

// ready returns the mounted view once its first snapshot arrived.
func (s *Server) ready(w http.ResponseWriter, r *http.Request) (*collection.View, bool) {
	v := s.currentView()
	if v == nil {
		writeError(w, http.StatusServiceUnavailable, "collection not mounted")
		return nil, false
	}
	if err := v.WaitReady(r.Context()); err != nil {
		writeError(w, http.StatusServiceUnavailable, "collection not ready")
		return nil, false
	}
	return v, true
}

func (s *Server) handleHealthcheck(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, "ok")
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	v, ok := s.ready(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, streaming.NewSnapshot(s.collection, v.Records()))
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	v, ok := s.ready(w, r)
	if !ok {
		return
	}
	id := core.RecordID(mux.Vars(r)["id"])
	rec, found := v.Get(id)
	if !found {
		writeError(w, http.StatusNotFound, "photo not found")
		return
	}
	writeJSON(w, http.StatusOK, streaming.Detail(rec))
}

func (s *Server) handleScene(w http.ResponseWriter, r *http.Request) {
	v, ok := s.ready(w, r)
	if !ok {
		return
	}
	id := core.RecordID(mux.Vars(r)["id"])
	route, err := v.Select(id)
	if err != nil {
		writeError(w, http.StatusNotFound, "photo not found")
		return
	}

	board := marker.NewBoard(r.Context(), s.loader, s.logger)
	defer board.Close()
	board.Track(route)

	// a marker still loading at the deadline renders with its spinner
	ctx, cancel := context.WithTimeout(r.Context(), sceneTimeout)
	defer cancel()
	_ = board.Settle(ctx)

	scene, err := board.Scene(id)
	if err != nil {
		writeError(w, http.StatusNotFound, "photo not found")
		return
	}
	writeJSON(w, http.StatusOK, scene)
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxFormMemory); err != nil {
		s.metrics.Uploads.WithLabelValues("bad_request").Inc()
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	if s.secret != "" && r.FormValue("secret") != s.secret {
		s.metrics.Uploads.WithLabelValues("forbidden").Inc()
		writeError(w, http.StatusForbidden, "invalid secret")
		return
	}

	coords, err := formCoords(r)
	if err != nil {
		s.metrics.Uploads.WithLabelValues("bad_request").Inc()
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	file, _, err := r.FormFile("file")
	if err != nil {
		s.metrics.Uploads.WithLabelValues("bad_request").Inc()
		writeError(w, http.StatusBadRequest, "file is required")
		return
	}
	defer file.Close()
	data, err := io.ReadAll(file)
	if err != nil || len(data) == 0 {
		s.metrics.Uploads.WithLabelValues("bad_request").Inc()
		writeError(w, http.StatusBadRequest, "file is empty")
		return
	}

	rec := core.PhotoRecord{
		ImageData:  base64.StdEncoding.EncodeToString(data),
		Location:   coords,
		CapturedBy: r.FormValue("uid"),
	}
	id, err := s.store.Append(r.Context(), s.collection, rec)
	if err != nil {
		s.logger.ErrorContext(r.Context(), "Failed to store uploaded photo", "error", err)
		s.metrics.Uploads.WithLabelValues("store_write").Inc()
		writeError(w, http.StatusInternalServerError, "store write failed")
		return
	}

	s.metrics.Uploads.WithLabelValues("success").Inc()
	s.logger.InfoContext(r.Context(), "Photo uploaded over HTTP", "id", id, "bytes", len(data))
	writeJSON(w, http.StatusCreated, map[string]core.RecordID{"id": id})
}

func formCoords(r *http.Request) (core.Coords, error) {
	lat, err := strconv.ParseFloat(r.FormValue("latitude"), 64)
	if err != nil {
		return core.Coords{}, fmt.Errorf("invalid latitude")
	}
	lng, err := strconv.ParseFloat(r.FormValue("longitude"), 64)
	if err != nil {
		return core.Coords{}, fmt.Errorf("invalid longitude")
	}
	c := core.Coords{Latitude: lat, Longitude: lng}
	if err := geo.Validate(c); err != nil {
		return core.Coords{}, err
	}
	return c, nil
}

var upgrader = ws.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     func(*http.Request) bool { return true },
}

func (s *Server) handleFeed(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.DebugContext(r.Context(), "Feed upgrade failed", "error", err)
		return
	}
	s.hub.Serve(conn)
}

func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		route := r.URL.Path
		if cr := mux.CurrentRoute(r); cr != nil {
			if tpl, err := cr.GetPathTemplate(); err == nil {
				route = tpl
			}
		}
		ctx := logging.With(r.Context(), slog.String("route", route), slog.String("remote", r.RemoteAddr))

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r.WithContext(ctx))

		s.metrics.Requests.WithLabelValues(route, strconv.Itoa(rec.status)).Inc()
		s.logger.DebugContext(ctx, "HTTP request",
			"method", r.Method,
			"status", rec.status,
			"duration", time.Since(start))
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

// Hijack lets the websocket upgrade through the recorder.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("hijack not supported")
	}
	r.status = http.StatusSwitchingProtocols
	return h.Hijack()
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
