package ipc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"os"
	"strings"
	"sync"
	"time"

	"casework/internal/daemon"
	"casework/internal/logging"
	"casework/internal/logs"
)

const serviceName = "Casework"

// Server exposes daemon control via JSON-RPC over a Unix domain socket.
type Server struct {
	path      string
	logger    *slog.Logger
	listener  net.Listener
	rpcServer *rpc.Server

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewServer configures the IPC server at the given socket path.
func NewServer(ctx context.Context, path string, d *daemon.Daemon, logger *slog.Logger) (*Server, error) {
	if d == nil {
		return nil, errors.New("ipc server requires daemon")
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	if err := os.RemoveAll(path); err != nil {
		return nil, fmt.Errorf("remove existing socket: %w", err)
	}

	listener, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("listen on socket: %w", err)
	}
	if err := os.Chmod(path, 0o600); err != nil {
		listener.Close()
		return nil, fmt.Errorf("restrict socket permissions: %w", err)
	}

	serverCtx, cancel := context.WithCancel(ctx)
	rpcServer := rpc.NewServer()
	svc := &service{daemon: d, logger: logging.NewComponentLogger(logger, "ipc"), ctx: serverCtx}
	if err := rpcServer.RegisterName(serviceName, svc); err != nil {
		cancel()
		listener.Close()
		return nil, fmt.Errorf("register rpc service: %w", err)
	}

	return &Server{
		path:      path,
		logger:    svc.logger,
		listener:  listener,
		rpcServer: rpcServer,
		ctx:       serverCtx,
		cancel:    cancel,
	}, nil
}

// Serve starts accepting RPC connections until the context is canceled.
func (s *Server) Serve() {
	s.logger.Debug("IPC server listening", logging.String("socket", s.path))
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			conn, err := s.listener.Accept()
			if err != nil {
				select {
				case <-s.ctx.Done():
					return
				default:
				}
				if errors.Is(err, net.ErrClosed) {
					return
				}
				logging.WarnWithContext(s.logger, "accept failed", "ipc_accept_failed",
					logging.Error(err),
					logging.String(logging.FieldImpact, "IPC clients may fail to connect"),
					logging.String(logging.FieldErrorHint, "Check socket permissions and restart the daemon if needed"),
				)
				continue
			}
			s.wg.Add(1)
			go func(c net.Conn) {
				defer s.wg.Done()
				s.rpcServer.ServeCodec(jsonrpc.NewServerCodec(c))
			}(conn)
		}
	}()
}

// Close stops the server and removes the socket file.
func (s *Server) Close() {
	s.cancel()
	if s.listener != nil {
		_ = s.listener.Close()
	}
	s.wg.Wait()
	if err := os.RemoveAll(s.path); err != nil {
		logging.WarnWithContext(s.logger, "failed to remove socket", "ipc_socket_cleanup_failed",
			logging.String("socket", s.path),
			logging.Error(err),
			logging.String(logging.FieldImpact, "stale IPC socket may block future starts"),
			logging.String(logging.FieldErrorHint, "Remove the socket file manually"),
		)
	}
}

type service struct {
	daemon *daemon.Daemon
	logger *slog.Logger
	ctx    context.Context
}

func (s *service) Status(_ StatusRequest, resp *StatusResponse) error {
	*resp = daemon.NewStatusResponse(s.daemon.Status())
	return nil
}

func (s *service) Enqueue(req EnqueueRequest, resp *EnqueueResponse) error {
	task, err := req.Task()
	if err != nil {
		return err
	}
	ids, err := s.daemon.Enqueue(s.ctx, task)
	if err != nil {
		return err
	}
	resp.TaskIDs = ids
	s.logger.Info("task enqueued via IPC",
		logging.String(logging.FieldEventType, "ipc_enqueue"),
		logging.String(logging.FieldTaskKind, string(task.Kind)),
		logging.String(logging.FieldCaseID, task.CaseID),
		logging.String("task_ids", strings.Join(ids, ",")),
	)
	return nil
}

func (s *service) PollNow(_ PollNowRequest, resp *PollNowResponse) error {
	id, err := s.daemon.PollNow(s.ctx)
	if err != nil {
		return err
	}
	resp.TaskID = id
	return nil
}

func (s *service) Automations(_ AutomationsRequest, resp *AutomationsResponse) error {
	resp.Automations = s.daemon.Automations()
	return nil
}

func (s *service) SetAutomation(req SetAutomationRequest, resp *SetAutomationResponse) error {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return errors.New("automation name is required")
	}
	if err := s.daemon.SetAutomationEnabled(s.ctx, name, req.Enabled); err != nil {
		return err
	}
	resp.Name, resp.Enabled = name, req.Enabled
	s.logger.Info("automation toggled via IPC",
		logging.String(logging.FieldEventType, "ipc_set_automation"),
		logging.String("automation", name),
		logging.Bool("enabled", req.Enabled),
	)
	return nil
}

func (s *service) Tasks(req TasksRequest, resp *TasksResponse) error {
	records, err := s.daemon.RecentTasks(s.ctx, req.Limit)
	if err != nil {
		return err
	}
	resp.Tasks = make([]Task, 0, len(records))
	for _, rec := range records {
		resp.Tasks = append(resp.Tasks, daemon.NewTaskResponse(rec))
	}
	return nil
}

func (s *service) LogTail(req LogTailRequest, resp *LogTailResponse) error {
	logPath := s.daemon.LogPath()
	if logPath == "" {
		return nil
	}
	wait := time.Duration(req.WaitMillis) * time.Millisecond
	if wait <= 0 && req.Follow {
		wait = time.Second
	}
	ctx := s.ctx
	if req.Follow && wait > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(s.ctx, wait+500*time.Millisecond)
		defer cancel()
	}
	result, err := logs.Tail(ctx, logPath, logs.TailOptions{
		Offset: req.Offset,
		Limit:  req.Limit,
		Follow: req.Follow,
		Wait:   wait,
		Match:  req.Match,
	})
	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	resp.Lines = result.Lines
	resp.Offset = result.Offset
	return nil
}
