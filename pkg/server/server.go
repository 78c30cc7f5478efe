package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/flowscope/flowscope/pkg/domain/frame"
	"github.com/flowscope/flowscope/pkg/domain/types"
	flowerrors "github.com/flowscope/flowscope/pkg/errors"
	"github.com/flowscope/flowscope/pkg/tracker"
)

// HistoryStore is the read side of the frame archive the server exposes.
type HistoryStore interface {
	Load(id types.FrameID) (*frame.Frame, error)
	ListRecent(limit int) ([]*frame.Frame, error)
	Count() (int, error)
}

// Options configures the HTTP server.
type Options struct {
	// Addr is the listen address, e.g. ":8089".
	Addr string
	// Debug enables the reset endpoint.
	Debug bool
	// History, when set, backs the /api/history endpoints.
	History HistoryStore
	// Logger receives request diagnostics.
	Logger zerolog.Logger
}

// Server exposes the tracker's event stream and snapshot queries over HTTP.
type Server struct {
	manager *tracker.Manager
	hub     *Hub
	opts    Options
	log     zerolog.Logger
	http    *http.Server
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// The stream is same-host developer tooling; the editor UI connects
	// from arbitrary origins in embedded setups.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// New creates a server for the given manager.
func New(manager *tracker.Manager, opts Options) (*Server, error) {
	hub, err := NewHub(manager, opts.Logger)
	if err != nil {
		return nil, err
	}

	s := &Server{
		manager: manager,
		hub:     hub,
		opts:    opts,
		log:     opts.Logger,
	}

	router := chi.NewRouter()
	router.Use(middleware.Recoverer)
	router.Use(middleware.Timeout(30 * time.Second))

	router.Route("/api", func(r chi.Router) {
		r.Post("/events", s.handleIngest)
		r.Get("/frames", s.handleListFrames)
		r.Get("/frames/{id}", s.handleGetFrame)
		r.Get("/stats", s.handleStats)
		if opts.History != nil {
			r.Get("/history", s.handleHistory)
			r.Get("/history/{id}", s.handleHistoryFrame)
		}
		if opts.Debug {
			r.Post("/reset", s.handleReset)
		}
	})
	router.Get("/ws", s.handleWebSocket)
	router.Get("/healthz", s.handleHealth)

	s.http = &http.Server{
		Addr:              opts.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s, nil
}

// Start runs the hub pump and the HTTP listener. Blocks until the listener
// stops; http.ErrServerClosed is swallowed as a normal shutdown.
func (s *Server) Start() error {
	go s.hub.Run()

	s.log.Info().Str("addr", s.opts.Addr).Msg("observability server listening")
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully stops the listener and disconnects all clients.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.http.Shutdown(ctx)
	s.hub.Close()
	return err
}

// Handler returns the underlying HTTP handler, for tests.
func (s *Server) Handler() http.Handler {
	return s.http.Handler
}

func (s *Server) handleListFrames(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.manager.Frames())
}

func (s *Server) handleGetFrame(w http.ResponseWriter, r *http.Request) {
	id := types.FrameID(chi.URLParam(r, "id"))
	f, ok := s.manager.Frame(id)
	if !ok {
		s.writeError(w, http.StatusNotFound, "frame not found")
		return
	}
	s.writeJSON(w, http.StatusOK, f)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats := struct {
		tracker.Stats
		WebsocketClients int `json:"websocketClients"`
		ArchivedFrames   int `json:"archivedFrames,omitempty"`
	}{
		Stats:            s.manager.Stats(),
		WebsocketClients: s.hub.ClientCount(),
	}
	if s.opts.History != nil {
		if count, err := s.opts.History.Count(); err == nil {
			stats.ArchivedFrames = count
		}
	}
	s.writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}
	frames, err := s.opts.History.ListRecent(limit)
	if err != nil {
		s.log.Warn().Err(err).Msg("history list failed")
		s.writeError(w, http.StatusInternalServerError, "history unavailable")
		return
	}
	s.writeJSON(w, http.StatusOK, frames)
}

func (s *Server) handleHistoryFrame(w http.ResponseWriter, r *http.Request) {
	id := types.FrameID(chi.URLParam(r, "id"))
	f, err := s.opts.History.Load(id)
	if err != nil {
		oerr := flowerrors.NewOperationalError("history_load", id.String(), "", err)
		s.log.Warn().Err(oerr).Msg("history load failed")
		s.writeError(w, http.StatusInternalServerError, "history unavailable")
		return
	}
	if f == nil {
		s.writeError(w, http.StatusNotFound, "frame not found")
		return
	}
	s.writeJSON(w, http.StatusOK, f)
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	s.manager.Reset()
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleWebSocket upgrades the connection and attaches it to the hub.
// Optional query parameters narrow the stream: events (comma-separated
// kinds), nodes (comma-separated node ids), filter (expr predicate).
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	filter, err := filterFromQuery(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Debug().Err(err).Msg("websocket upgrade failed")
		return
	}
	newClient(s.hub, conn, filter, s.log)
}

// filterFromQuery builds the per-client event filter. Returns nil when no
// narrowing was requested.
func filterFromQuery(r *http.Request) (*tracker.EventFilter, error) {
	q := r.URL.Query()
	filter := &tracker.EventFilter{
		Expression: q.Get("filter"),
	}
	if raw := q.Get("events"); raw != "" {
		for _, kind := range strings.Split(raw, ",") {
			filter.Kinds = append(filter.Kinds, tracker.EventKind(strings.TrimSpace(kind)))
		}
	}
	if raw := q.Get("nodes"); raw != "" {
		for _, node := range strings.Split(raw, ",") {
			filter.NodeIDs = append(filter.NodeIDs, types.NodeID(strings.TrimSpace(node)))
		}
	}
	if filter.Expression == "" && len(filter.Kinds) == 0 && len(filter.NodeIDs) == 0 {
		return nil, nil
	}
	if err := filter.Compile(); err != nil {
		return nil, err
	}
	return filter, nil
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Debug().Err(err).Msg("failed to encode response")
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}
