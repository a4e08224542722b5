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
	"sync"
	"time"

	"scribe/internal/api"
	"scribe/internal/daemon"
	"scribe/internal/logging"
	"scribe/internal/logs"
	"scribe/internal/transcription"
	"scribe/internal/workflow"
)

// serviceName prefixes every RPC method.
const serviceName = "Scribe"

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

// ServerOption customizes the server.
type ServerOption func(*service)

// WithShutdown registers fn to run after a Stop request stops the daemon,
// typically to end the hosting process.
func WithShutdown(fn func()) ServerOption {
	return func(s *service) { s.shutdown = fn }
}

// NewServer configures the IPC server at the given socket path.
func NewServer(ctx context.Context, path string, d *daemon.Daemon, logger *slog.Logger, opts ...ServerOption) (*Server, error) {
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

	srv := &service{daemon: d, logger: logging.NewComponentLogger(logger, "ipc"), ctx: ctx}
	for _, opt := range opts {
		opt(srv)
	}
	rpcServer := rpc.NewServer()
	if err := rpcServer.RegisterName(serviceName, srv); err != nil {
		listener.Close()
		return nil, fmt.Errorf("register rpc service: %w", err)
	}

	serverCtx, cancel := context.WithCancel(ctx)
	return &Server{
		path:      path,
		logger:    logger,
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
				s.logger.Warn("accept failed",
					logging.Error(err),
					logging.String(logging.FieldEventType, "ipc_accept_failed"),
					logging.String(logging.FieldImpact, "IPC clients may fail to connect"),
					logging.String(logging.FieldErrorHint, "Check socket permissions and restart the daemon if needed"))
				continue
			}
			s.wg.Add(1)
			go func(c net.Conn) {
				defer s.wg.Done()
				s.rpcServer.ServeCodec(jsonrpc.NewServerCodec(c))
			}(conn)
		}
	}()
	go func() {
		<-s.ctx.Done()
		_ = s.listener.Close()
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
		s.logger.Warn("failed to remove socket",
			logging.String("socket", s.path),
			logging.Error(err),
			logging.String(logging.FieldEventType, "ipc_socket_cleanup_failed"),
			logging.String(logging.FieldImpact, "stale IPC socket may block future starts"),
			logging.String(logging.FieldErrorHint, "Remove the socket file manually"))
	}
}

type service struct {
	daemon   *daemon.Daemon
	logger   *slog.Logger
	ctx      context.Context
	shutdown func()
}

func (s *service) Status(_ StatusRequest, resp *StatusResponse) error {
	status := s.daemon.Status(s.ctx)
	wf := api.FromStatusSummary(status.Workflow)
	*resp = StatusResponse{
		Running:       status.Running,
		PID:           status.PID,
		Processing:    wf.Processing,
		InBackground:  wf.InBackground,
		CurrentTask:   wf.CurrentTask,
		LastTask:      wf.LastTask,
		LastError:     wf.LastError,
		Queued:        wf.Queued,
		Runnable:      wf.Runnable,
		QueueDBPath:   status.QueueDBPath,
		CatalogDBPath: status.CatalogDBPath,
		LockPath:      status.LockFilePath,
	}
	return nil
}

func (s *service) Stop(_ StopRequest, resp *StopResponse) error {
	s.logger.Info("daemon stop requested via IPC",
		logging.String(logging.FieldEventType, "daemon_stop_requested"))
	s.daemon.Stop()
	resp.Stopped = true
	if s.shutdown != nil {
		// Let the response flush before the process exits.
		time.AfterFunc(100*time.Millisecond, s.shutdown)
	}
	return nil
}

func (s *service) AddRecording(req AddRecordingRequest, resp *AddRecordingResponse) error {
	rec, err := s.daemon.AddRecording(s.ctx, req.Path, req.Title)
	if err != nil {
		return err
	}
	resp.Recording = api.FromRecording(rec, false)
	return nil
}

func (s *service) Transcribe(req TranscribeRequest, resp *TranscribeResponse) error {
	var opts []workflow.TaskOption
	if req.Strategy != "" {
		strategy, err := transcription.ParseStrategy(req.Strategy)
		if err != nil {
			return err
		}
		opts = append(opts, workflow.WithStrategy(strategy))
	}
	if req.Model != "" {
		opts = append(opts, workflow.WithModel(req.Model))
	}
	if req.Language != "" {
		opts = append(opts, workflow.WithLanguage(req.Language))
	}
	if req.Translate != nil {
		opts = append(opts, workflow.WithTranslate(*req.Translate))
	}
	task, added, err := s.daemon.Transcribe(s.ctx, req.RecordingID, opts...)
	if err != nil {
		return err
	}
	resp.Task = api.FromTask(*task, 0)
	resp.Added = added
	return nil
}

func (s *service) Cancel(req CancelRequest, resp *CancelResponse) error {
	canceled, err := s.daemon.Cancel(s.ctx, req.RecordingID)
	if err != nil {
		return err
	}
	resp.Canceled = canceled
	return nil
}

func (s *service) CancelAll(_ CancelAllRequest, resp *CancelAllResponse) error {
	count, err := s.daemon.CancelAll(s.ctx)
	if err != nil {
		return err
	}
	resp.Canceled = count
	s.logger.Info("all tasks canceled via IPC",
		logging.String(logging.FieldEventType, "queue_cancel_all"),
		logging.Int("canceled_count", count))
	return nil
}

func (s *service) Resume(req ResumeRequest, resp *ResumeResponse) error {
	task, err := s.daemon.Resume(s.ctx, req.RecordingID)
	if err != nil {
		return err
	}
	resp.Task = api.FromTask(*task, 1)
	return nil
}

func (s *service) QueueList(_ QueueListRequest, resp *QueueListResponse) error {
	tasks, err := s.daemon.ListQueue(s.ctx)
	if err != nil {
		return err
	}
	active, _ := s.daemon.Workflow().CurrentTaskID()
	resp.Items = api.FromTasks(tasks, active)
	return nil
}

func (s *service) ShowRecording(req ShowRecordingRequest, resp *ShowRecordingResponse) error {
	rec, err := s.daemon.Recording(s.ctx, req.RecordingID)
	if err != nil {
		return err
	}
	resp.Recording = api.FromRecording(rec, true)
	return nil
}

func (s *service) RecordingList(_ RecordingListRequest, resp *RecordingListResponse) error {
	recs, err := s.daemon.Recordings(s.ctx)
	if err != nil {
		return err
	}
	resp.Recordings = make([]Recording, 0, len(recs))
	for i := range recs {
		resp.Recordings = append(resp.Recordings, api.FromRecording(&recs[i], false))
	}
	return nil
}

func (s *service) Lifecycle(req LifecycleRequest, resp *LifecycleResponse) error {
	message, err := s.daemon.Lifecycle(s.ctx, req.Event)
	if err != nil {
		return err
	}
	resp.Message = message
	return nil
}

func (s *service) LogTail(req LogTailRequest, resp *LogTailResponse) error {
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
	result, err := logs.Tail(ctx, s.daemon.LogPath(), logs.TailOptions{
		Offset: req.Offset,
		Limit:  req.Limit,
		Follow: req.Follow,
		Wait:   wait,
	})
	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	resp.Lines = result.Lines
	resp.Offset = result.Offset
	return nil
}
