package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"casework/internal/automation"
	"casework/internal/logging"
	"casework/internal/store"
	"casework/internal/workqueue"
)

// DependencyStatus is the wire form of deps.Status.
type DependencyStatus struct {
	Name        string `json:"name"`
	Command     string `json:"command"`
	Description string `json:"description,omitempty"`
	Optional    bool   `json:"optional"`
	Available   bool   `json:"available"`
	Detail      string `json:"detail,omitempty"`
}

// StatusResponse is served at /api/status.
type StatusResponse struct {
	Running      bool               `json:"running"`
	PID          int                `json:"pid"`
	Work         workqueue.Status   `json:"work"`
	DatabasePath string             `json:"database_path"`
	LockPath     string             `json:"lock_path"`
	Dependencies []DependencyStatus `json:"dependencies"`
}

// TaskResponse is one history row served at /api/tasks.
type TaskResponse struct {
	ID             string    `json:"id"`
	Kind           string    `json:"kind"`
	CaseID         string    `json:"case_id,omitempty"`
	SourcePath     string    `json:"source_path,omitempty"`
	DestPath       string    `json:"dest_path,omitempty"`
	AutomationName string    `json:"automation,omitempty"`
	State          string    `json:"state"`
	ErrorKind      string    `json:"error_kind,omitempty"`
	ErrorMessage   string    `json:"error_message,omitempty"`
	EnqueuedAt     time.Time `json:"enqueued_at"`
	StartedAt      time.Time `json:"started_at,omitzero"`
	FinishedAt     time.Time `json:"finished_at,omitzero"`
}

// NewStatusResponse converts a daemon status to its wire form.
func NewStatusResponse(status Status) StatusResponse {
	deps := make([]DependencyStatus, len(status.Dependencies))
	for i, dep := range status.Dependencies {
		deps[i] = DependencyStatus{
			Name:        dep.Name,
			Command:     dep.Command,
			Description: dep.Description,
			Optional:    dep.Optional,
			Available:   dep.Available,
			Detail:      dep.Detail,
		}
	}
	return StatusResponse{
		Running:      status.Running,
		PID:          status.PID,
		Work:         status.Work,
		DatabasePath: status.DatabasePath,
		LockPath:     status.LockPath,
		Dependencies: deps,
	}
}

// NewTaskResponse converts a history row to its wire form.
func NewTaskResponse(rec store.TaskRecord) TaskResponse {
	return TaskResponse{
		ID:             rec.ID,
		Kind:           rec.Kind,
		CaseID:         rec.CaseID,
		SourcePath:     rec.SourcePath,
		DestPath:       rec.DestPath,
		AutomationName: rec.AutomationName,
		State:          string(rec.State),
		ErrorKind:      rec.ErrorKind,
		ErrorMessage:   rec.ErrorMessage,
		EnqueuedAt:     rec.EnqueuedAt,
		StartedAt:      rec.StartedAt,
		FinishedAt:     rec.FinishedAt,
	}
}

type apiServer struct {
	bind   string
	token  string
	logger *slog.Logger
	daemon *Daemon

	server *http.Server
}

func newAPIServer(bind, token string, d *Daemon, logger *slog.Logger) *apiServer {
	bind = strings.TrimSpace(bind)
	if bind == "" || d == nil {
		return nil
	}
	srv := &apiServer{bind: bind, token: token, logger: logger, daemon: d}
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
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/status", authMiddleware(s.token, s.handleStatus))
	mux.HandleFunc("GET /api/tasks", authMiddleware(s.token, s.handleTasks))
	mux.HandleFunc("GET /api/automations", authMiddleware(s.token, s.handleAutomations))
	return mux
}

// serve blocks until ctx is done or the listener fails.
func (s *apiServer) serve(ctx context.Context) error {
	if s == nil {
		return nil
	}
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	s.log().Info("api server listening", logging.String("address", listener.Addr().String()))

	errCh := make(chan error, 1)
	go func() { errCh <- s.server.Serve(listener) }()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
		<-errCh
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func (s *apiServer) handleStatus(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, NewStatusResponse(s.daemon.Status()))
}

func (s *apiServer) handleTasks(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	limit := 50
	if raw := strings.TrimSpace(query.Get("limit")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			s.writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = parsed
	}
	states := make(map[store.TaskState]struct{})
	for _, value := range query["state"] {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			states[store.TaskState(strings.ToLower(trimmed))] = struct{}{}
		}
	}

	records, err := s.daemon.RecentTasks(r.Context(), limit)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	out := make([]TaskResponse, 0, len(records))
	for _, rec := range records {
		if len(states) > 0 {
			if _, ok := states[rec.State]; !ok {
				continue
			}
		}
		out = append(out, NewTaskResponse(rec))
	}
	s.writeJSON(w, http.StatusOK, map[string][]TaskResponse{"tasks": out})
}

func (s *apiServer) handleAutomations(w http.ResponseWriter, _ *http.Request) {
	list := s.daemon.Automations()
	if list == nil {
		list = []automation.Descriptor{}
	}
	s.writeJSON(w, http.StatusOK, map[string][]automation.Descriptor{"automations": list})
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

func (s *apiServer) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}

func (s *apiServer) log() *slog.Logger {
	if s.logger != nil {
		return s.logger.With(logging.String(logging.FieldComponent, "api-server"))
	}
	return logging.NewNop()
}
