package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"lrcforge/internal/api"
	"lrcforge/internal/batch"
	"lrcforge/internal/config"
	"lrcforge/internal/deps"
	"lrcforge/internal/history"
	"lrcforge/internal/library"
	"lrcforge/internal/logging"
	"lrcforge/internal/merge"
	"lrcforge/internal/task"
)

const maxRequestBody = 1 << 20

type apiServer struct {
	bind      string
	logger    *slog.Logger
	daemon    *Daemon
	handler   http.Handler
	keepalive time.Duration

	mu       sync.Mutex
	listener net.Listener
	server   *http.Server
}

func newAPIServer(d *Daemon, cfg config.Server) *apiServer {
	srv := &apiServer{
		bind:   strings.TrimSpace(cfg.APIBind),
		logger: logging.NewComponentLogger(d.logger, "api-server"),
		daemon: d,
	}

	mux := http.NewServeMux()
	route := func(pattern string, h http.HandlerFunc) {
		mux.HandleFunc(pattern, authMiddleware(cfg.APIToken, h))
	}
	route("GET /api/config", srv.handleGetConfig)
	route("POST /api/config", srv.handleUpdateConfig)
	route("GET /api/models", srv.handleModels)
	route("GET /api/paths/search", srv.handleSearchPaths)
	route("GET /api/files", srv.handleFiles)
	route("POST /api/task/start", srv.handleTaskStart)
	route("GET /api/task/status", srv.handleTaskStatus)
	route("POST /api/task/cancel", srv.handleTaskCancel)
	route("GET /api/task/events", srv.handleTaskEvents)
	route("GET /api/task/stream", srv.handleTaskStream)
	route("GET /api/history", srv.handleHistory)
	route("GET /api/history/{id}", srv.handleHistoryItem)
	route("GET /api/merge/files", srv.handleMergeFiles)
	route("POST /api/merge/start", srv.handleMergeStart)
	route("POST /api/merge/cancel", srv.handleMergeCancel)
	route("GET /api/merge/status", srv.handleMergeStatus)
	route("GET /api/merge/stream", srv.handleMergeStream)
	route("GET /api/health", srv.handleHealth)
	if dir := strings.TrimSpace(cfg.StaticDir); dir != "" {
		mux.Handle("GET /", http.FileServerFS(os.DirFS(dir)))
	}

	srv.handler = requestLogger(srv.logger, mux)
	return srv
}

func (s *apiServer) start(ctx context.Context) error {
	if s.bind == "" {
		s.logger.Info("api server disabled", logging.String("reason", "server.api_bind is empty"))
		return nil
	}
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	server := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		// Streams clear their own write deadline.
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
		BaseContext:  func(net.Listener) context.Context { return ctx },
	}

	s.mu.Lock()
	s.listener = listener
	s.server = server
	s.mu.Unlock()

	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("api server error", logging.Error(err))
		}
	}()

	s.logger.Info("api server listening", logging.String("address", listener.Addr().String()))
	return nil
}

func (s *apiServer) stop() {
	s.mu.Lock()
	server := s.server
	s.server = nil
	s.listener = nil
	s.mu.Unlock()
	if server == nil {
		return
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		_ = server.Close()
	}
}

func (s *apiServer) address() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func (s *apiServer) handleGetConfig(w http.ResponseWriter, _ *http.Request) {
	cfg := s.daemon.live.Current()
	s.writeJSON(w, http.StatusOK, cfg.Settings())
}

func (s *apiServer) handleUpdateConfig(w http.ResponseWriter, r *http.Request) {
	var settings config.Settings
	if !s.decode(w, r, &settings) {
		return
	}
	cfg, err := s.daemon.live.ApplySettings(settings)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.logger.Info("settings updated", logging.String("config_path", s.daemon.live.Path()))
	s.writeJSON(w, http.StatusOK, cfg.Settings())
}

func (s *apiServer) handleModels(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, config.SupportedModels)
}

func (s *apiServer) handleSearchPaths(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	kind := library.ParsePathKind(query.Get("type"))
	s.writeJSON(w, http.StatusOK, library.SearchPaths(query.Get("prefix"), kind))
}

func (s *apiServer) handleFiles(w http.ResponseWriter, _ *http.Request) {
	files, err := s.daemon.library.Files()
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, files)
}

func (s *apiServer) handleTaskStart(w http.ResponseWriter, r *http.Request) {
	var req api.TaskStartRequest
	if !s.decode(w, r, &req) {
		return
	}
	if len(req.Files) == 0 {
		s.writeError(w, http.StatusBadRequest, "no files selected")
		return
	}
	cfg := s.daemon.live.Current()
	info, err := s.daemon.tasks.Submit(req.Files, batch.OptionsFromConfig(&cfg))
	if err != nil {
		s.writeError(w, taskErrorStatus(err), err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, api.TaskStartResponse{
		Success:    true,
		FilesCount: info.Total,
		BatchID:    info.ID,
	})
}

func taskErrorStatus(err error) int {
	switch {
	case errors.Is(err, task.ErrAlreadyRunning):
		return http.StatusConflict
	case errors.Is(err, task.ErrInvalidInput), errors.Is(err, library.ErrNotConfigured):
		return http.StatusBadRequest
	case errors.Is(err, task.ErrShuttingDown):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (s *apiServer) handleTaskStatus(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, api.FromTaskStatus(s.daemon.tasks.Status()))
}

func (s *apiServer) handleTaskCancel(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, api.SuccessResponse{Success: s.daemon.tasks.Cancel()})
}

func (s *apiServer) handleTaskEvents(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, s.daemon.tasks.Events())
}

func (s *apiServer) handleTaskStream(w http.ResponseWriter, r *http.Request) {
	s.stream(w, r, s.daemon.tasks)
}

func (s *apiServer) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.daemon.history == nil {
		s.writeJSON(w, http.StatusOK, api.HistoryResponse{Batches: []history.Record{}})
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	records, err := s.daemon.history.List(r.Context(), limit)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if records == nil {
		records = []history.Record{}
	}
	s.writeJSON(w, http.StatusOK, api.HistoryResponse{Batches: records})
}

func (s *apiServer) handleHistoryItem(w http.ResponseWriter, r *http.Request) {
	if s.daemon.history == nil {
		s.writeError(w, http.StatusNotFound, "history unavailable")
		return
	}
	record, err := s.daemon.history.Get(r.Context(), r.PathValue("id"))
	if errors.Is(err, history.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, "batch not found")
		return
	}
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, record)
}

func (s *apiServer) handleHealth(w http.ResponseWriter, _ *http.Request) {
	cfg := s.daemon.live.Current()
	statuses := deps.CheckAll(&cfg)
	resp := api.HealthResponse{
		Healthy:      deps.Healthy(statuses),
		PID:          os.Getpid(),
		TaskRunning:  s.daemon.tasks.Status().Running,
		ConfigPath:   s.daemon.live.Path(),
		Dependencies: statuses,
	}
	resp.MergeRunning = s.daemon.merger.Status().State == merge.StateRunning
	if s.daemon.history != nil {
		resp.HistoryPath = s.daemon.history.Path()
	}
	s.writeJSON(w, http.StatusOK, resp)
}

// decode reads a bounded JSON body, writing a 400 on failure.
func (s *apiServer) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody))
	if err := dec.Decode(dst); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return false
	}
	return true
}

func (s *apiServer) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("failed to encode response", logging.Error(err))
	}
}

func (s *apiServer) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, api.ErrorResponse{Error: message})
}

// requestLogger tags each request with a correlation id and logs it at debug.
func requestLogger(logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := uuid.NewString()
		ctx := logging.WithRequestID(r.Context(), id)
		started := time.Now()
		next.ServeHTTP(w, r.WithContext(ctx))
		logging.WithContext(ctx, logger).Debug("api request",
			logging.String("method", r.Method),
			logging.String("path", r.URL.Path),
			logging.Duration("elapsed", time.Since(started)),
		)
	})
}
