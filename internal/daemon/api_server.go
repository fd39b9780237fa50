package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"log/slog"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"vrdl/internal/api"
	"vrdl/internal/config"
	"vrdl/internal/events"
	"vrdl/internal/history"
	"vrdl/internal/logging"
	"vrdl/internal/queue"
	"vrdl/internal/services"
)

const (
	eventBuffer       = 64
	keepaliveInterval = 15 * time.Second
	defaultHistory    = 50
)

type apiServer struct {
	bind   string
	token  string
	logger *slog.Logger
	daemon *Daemon

	listener net.Listener
	server   *http.Server
}

// newAPIServer returns nil when no bind address is configured. A nil server
// is inert.
func newAPIServer(cfg *config.Config, d *Daemon, logger *slog.Logger) *apiServer {
	if cfg == nil || d == nil {
		return nil
	}
	bind := strings.TrimSpace(cfg.Paths.APIBind)
	if bind == "" {
		return nil
	}
	srv := &apiServer{
		bind:   bind,
		token:  strings.TrimSpace(cfg.Paths.APIToken),
		logger: logger,
		daemon: d,
	}
	srv.server = &http.Server{
		Handler:           srv.routes(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return srv
}

func (s *apiServer) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(requestContext)
	r.Use(middleware.Recoverer)
	r.Use(authMiddleware(s.token))

	r.Get("/metrics", s.handleMetrics)
	r.Route("/api", func(r chi.Router) {
		r.Get("/status", s.handleStatus)
		r.Get("/events", s.handleEvents)
		r.Get("/history", s.handleHistory)
		r.Get("/catalog", s.handleCatalog)
		r.Route("/queue", func(r chi.Router) {
			r.Get("/", s.handleQueue)
			r.Post("/", s.handleAdd)
			r.Route("/{release}", func(r chi.Router) {
				r.Get("/", s.handleQueueItem)
				r.Delete("/", s.handleRemove)
				r.Post("/cancel", s.handleCancel)
				r.Post("/retry", s.handleRetry)
				r.Delete("/files", s.handleDeleteFiles)
				r.Post("/install", s.handleInstall)
			})
		})
	})
	return r
}

// requestContext copies chi's request ID into the context key the logging
// package reads.
func requestContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if id := middleware.GetReqID(r.Context()); id != "" {
			r = r.WithContext(services.WithRequestID(r.Context(), id))
		}
		next.ServeHTTP(w, r)
	})
}

func (s *apiServer) start(ctx context.Context) error {
	if s == nil {
		return nil
	}
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	s.listener = listener
	s.server.BaseContext = func(net.Listener) context.Context { return ctx }

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log().Error("api server error", logging.Error(err))
		}
	}()

	s.log().Info("api server listening",
		logging.String(logging.FieldEventType, "api_listening"),
		logging.String("address", listener.Addr().String()),
	)
	return nil
}

func (s *apiServer) stop() {
	if s == nil {
		return
	}
	if s.server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}
	if s.listener != nil {
		_ = s.listener.Close()
		s.listener = nil
	}
}

func (s *apiServer) address() string {
	if s == nil {
		return ""
	}
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.bind
}

func (s *apiServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.daemon.Status(r.Context()))
}

func (s *apiServer) handleMetrics(w http.ResponseWriter, r *http.Request) {
	s.daemon.MetricsHandler().ServeHTTP(w, r)
}

func (s *apiServer) handleQueue(w http.ResponseWriter, r *http.Request) {
	items := s.daemon.Queue()
	var want map[queue.Status]struct{}
	for _, value := range r.URL.Query()["status"] {
		status, ok := queue.ParseStatus(value)
		if !ok {
			s.writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown status %q", value), "")
			return
		}
		if want == nil {
			want = make(map[queue.Status]struct{})
		}
		want[status] = struct{}{}
	}
	if want != nil {
		filtered := items[:0]
		for _, item := range items {
			if _, ok := want[item.Status]; ok {
				filtered = append(filtered, item)
			}
		}
		items = filtered
	}
	s.writeJSON(w, http.StatusOK, api.QueueListResponse{Items: api.FromQueueItems(items)})
}

func (s *apiServer) handleQueueItem(w http.ResponseWriter, r *http.Request) {
	release, ok := s.releaseParam(w, r)
	if !ok {
		return
	}
	for _, item := range s.daemon.Queue() {
		if item.ReleaseName == release {
			s.writeJSON(w, http.StatusOK, api.QueueItemResponse{Item: api.FromQueueItem(item)})
			return
		}
	}
	s.writeCommandError(w, r, fmt.Errorf("%q: %w", release, queue.ErrNotFound))
}

func (s *apiServer) handleAdd(w http.ResponseWriter, r *http.Request) {
	var req api.AddRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body", "")
		return
	}
	if strings.TrimSpace(req.ReleaseName) == "" {
		s.writeError(w, http.StatusBadRequest, "releaseName is required", "")
		return
	}
	item, err := s.daemon.AddToQueue(r.Context(), req)
	if err != nil {
		s.writeCommandError(w, r, err)
		return
	}
	dto := api.FromQueueItem(item)
	s.writeJSON(w, http.StatusCreated, api.AddResponse{Added: true, Item: &dto})
}

func (s *apiServer) handleRemove(w http.ResponseWriter, r *http.Request) {
	s.runCommand(w, r, s.daemon.RemoveFromQueue)
}

func (s *apiServer) handleCancel(w http.ResponseWriter, r *http.Request) {
	s.runCommand(w, r, s.daemon.CancelDownload)
}

func (s *apiServer) handleRetry(w http.ResponseWriter, r *http.Request) {
	s.runCommand(w, r, s.daemon.RetryDownload)
}

func (s *apiServer) handleDeleteFiles(w http.ResponseWriter, r *http.Request) {
	s.runCommand(w, r, s.daemon.DeleteDownloadedFiles)
}

func (s *apiServer) handleInstall(w http.ResponseWriter, r *http.Request) {
	var req api.InstallRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.writeError(w, http.StatusBadRequest, "invalid request body", "")
			return
		}
	}
	s.runCommand(w, r, func(ctx context.Context, release string) error {
		return s.daemon.Install(ctx, release, strings.TrimSpace(req.DeviceID))
	})
}

// runCommand executes a per-release command and answers 202 with no body on
// success. Commands only start work; progress arrives on the event stream.
func (s *apiServer) runCommand(w http.ResponseWriter, r *http.Request, fn func(context.Context, string) error) {
	release, ok := s.releaseParam(w, r)
	if !ok {
		return
	}
	if err := fn(r.Context(), release); err != nil {
		s.writeCommandError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (s *apiServer) handleHistory(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	filter := history.Filter{
		ReleaseName: strings.TrimSpace(query.Get("release")),
		Limit:       defaultHistory,
	}
	if value := query.Get("limit"); value != "" {
		limit, err := strconv.Atoi(value)
		if err != nil || limit <= 0 {
			s.writeError(w, http.StatusBadRequest, "invalid limit", "")
			return
		}
		filter.Limit = limit
	}
	for _, value := range query["kind"] {
		filter.Kinds = append(filter.Kinds, history.Kind(strings.TrimSpace(value)))
	}
	entries, err := s.daemon.History(r.Context(), filter)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error(), api.CodeInternal)
		return
	}
	s.writeJSON(w, http.StatusOK, api.HistoryResponse{Entries: api.FromHistoryEntries(entries)})
}

func (s *apiServer) handleCatalog(w http.ResponseWriter, r *http.Request) {
	matches := s.daemon.SearchCatalog(r.URL.Query().Get("q"))
	s.writeJSON(w, http.StatusOK, api.CatalogSearchResponse{Entries: api.FromCatalogEntries(matches)})
}

// handleEvents streams hub events as Server-Sent Events. The stream opens
// with a queue-changed event carrying the current snapshot.
func (s *apiServer) handleEvents(w http.ResponseWriter, r *http.Request) {
	sub := s.daemon.Subscribe(eventBuffer)
	if sub == nil {
		s.writeError(w, http.StatusServiceUnavailable, "event stream unavailable", "")
		return
	}
	defer sub.Close()

	rc := http.NewResponseController(w)
	_ = rc.SetWriteDeadline(time.Time{})

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache, no-transform")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	initial := api.FromEvent(events.Event{
		Kind:  events.KindQueueChanged,
		Time:  time.Now(),
		Queue: s.daemon.Queue(),
	})
	if err := writeSSE(w, initial); err != nil || rc.Flush() != nil {
		return
	}

	ticker := time.NewTicker(keepaliveInterval)
	defer ticker.Stop()
	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
			if _, err := fmt.Fprint(w, ": keepalive\n\n"); err != nil {
				return
			}
		case evt, ok := <-sub.C():
			if !ok {
				return
			}
			if err := writeSSE(w, api.FromEvent(evt)); err != nil {
				s.log().Debug("event stream closed", logging.Error(err))
				return
			}
		}
		if err := rc.Flush(); err != nil {
			return
		}
	}
}

func writeSSE(w http.ResponseWriter, evt api.Event) error {
	data, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	if evt.Seq > 0 {
		if _, err := fmt.Fprintf(w, "id: %d\n", evt.Seq); err != nil {
			return err
		}
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", evt.Kind, data)
	return err
}

// releaseParam reads the {release} path segment. Release names may contain
// spaces and reserved characters, so escaped segments are decoded.
func (s *apiServer) releaseParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	raw := chi.URLParam(r, "release")
	release := raw
	if r.URL.RawPath != "" {
		decoded, err := url.PathUnescape(raw)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, "invalid release name", "")
			return "", false
		}
		release = decoded
	}
	release = strings.TrimSpace(release)
	if release == "" {
		s.writeError(w, http.StatusBadRequest, "release name is required", "")
		return "", false
	}
	return release, true
}

func (s *apiServer) writeCommandError(w http.ResponseWriter, r *http.Request, err error) {
	status := api.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		logging.WithContext(r.Context(), s.log()).Warn("api command failed",
			logging.Error(err),
			logging.String(logging.FieldEventType, "api_command_failed"),
		)
	}
	s.writeError(w, status, err.Error(), api.ErrorCode(err))
}

func (s *apiServer) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.log().Error("failed to encode response", logging.Error(err))
	}
}

func (s *apiServer) writeError(w http.ResponseWriter, status int, message, code string) {
	s.writeJSON(w, status, api.ErrorResponse{Error: message, Code: code})
}

func (s *apiServer) log() *slog.Logger {
	if s.logger != nil {
		return logging.NewComponentLogger(s.logger, "api-server")
	}
	return logging.NewNop()
}
