package ipc

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"os"
	"strings"
	"sync"
	"time"

	"log/slog"

	"vrdl/internal/api"
	"vrdl/internal/daemon"
	"vrdl/internal/history"
	"vrdl/internal/logging"
	"vrdl/internal/logs"
	"vrdl/internal/queue"
)

const (
	commandTimeout = 30 * time.Second
	maxLogWait     = 10 * time.Second
)

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
	logger = logging.NewComponentLogger(logger, "ipc")

	if err := os.RemoveAll(path); err != nil {
		return nil, fmt.Errorf("remove existing socket: %w", err)
	}

	listener, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("listen on socket: %w", err)
	}

	serverCtx, cancel := context.WithCancel(ctx)
	rpcServer := rpc.NewServer()
	svc := &service{daemon: d, logger: logger, ctx: serverCtx}
	if err := rpcServer.RegisterName(ServiceName, svc); err != nil {
		cancel()
		listener.Close()
		return nil, fmt.Errorf("register rpc service: %w", err)
	}

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
			logging.String(logging.FieldErrorHint, "Remove the socket file manually or rerun vrdl stop"))
	}
}

type service struct {
	daemon *daemon.Daemon
	logger *slog.Logger
	ctx    context.Context
}

func (s *service) commandContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(s.ctx, commandTimeout)
}

func (s *service) Status(_ StatusRequest, resp *StatusResponse) error {
	*resp = s.daemon.Status(s.ctx)
	return nil
}

func (s *service) QueueList(req QueueListRequest, resp *QueueListResponse) error {
	want := make(map[queue.Status]struct{}, len(req.Statuses))
	for _, value := range req.Statuses {
		status, ok := queue.ParseStatus(value)
		if !ok {
			return fmt.Errorf("unknown status %q", value)
		}
		want[status] = struct{}{}
	}
	items := s.daemon.Queue()
	resp.Items = make([]QueueItem, 0, len(items))
	for _, item := range items {
		if len(want) > 0 {
			if _, ok := want[item.Status]; !ok {
				continue
			}
		}
		resp.Items = append(resp.Items, api.FromQueueItem(item))
	}
	return nil
}

func (s *service) QueueAdd(req QueueAddRequest, resp *QueueAddResponse) error {
	ctx, cancel := s.commandContext()
	defer cancel()
	item, err := s.daemon.AddToQueue(ctx, req)
	if errors.Is(err, queue.ErrDuplicateKey) {
		resp.Added = false
		return nil
	}
	if err != nil {
		return err
	}
	dto := api.FromQueueItem(item)
	resp.Added = true
	resp.Item = &dto
	s.logger.Info("release queued via IPC",
		logging.Release(item.ReleaseName),
		logging.String(logging.FieldEventType, "ipc_queue_add"))
	return nil
}

func (s *service) QueueRemove(req ReleaseRequest, resp *AckResponse) error {
	return s.releaseCommand(req, resp, s.daemon.RemoveFromQueue)
}

func (s *service) QueueCancel(req ReleaseRequest, resp *AckResponse) error {
	return s.releaseCommand(req, resp, s.daemon.CancelDownload)
}

func (s *service) QueueRetry(req ReleaseRequest, resp *AckResponse) error {
	return s.releaseCommand(req, resp, s.daemon.RetryDownload)
}

func (s *service) QueueDeleteFiles(req ReleaseRequest, resp *AckResponse) error {
	return s.releaseCommand(req, resp, s.daemon.DeleteDownloadedFiles)
}

func (s *service) QueueInstall(req QueueInstallRequest, resp *AckResponse) error {
	return s.releaseCommand(ReleaseRequest{ReleaseName: req.ReleaseName}, resp, func(ctx context.Context, release string) error {
		return s.daemon.Install(ctx, release, strings.TrimSpace(req.DeviceID))
	})
}

func (s *service) releaseCommand(req ReleaseRequest, resp *AckResponse, fn func(context.Context, string) error) error {
	release := strings.TrimSpace(req.ReleaseName)
	if release == "" {
		return errors.New("release name is required")
	}
	ctx, cancel := s.commandContext()
	defer cancel()
	if err := fn(ctx, release); err != nil {
		return err
	}
	resp.Accepted = true
	return nil
}

func (s *service) History(req HistoryRequest, resp *HistoryResponse) error {
	filter := history.Filter{ReleaseName: strings.TrimSpace(req.ReleaseName), Limit: req.Limit}
	for _, kind := range req.Kinds {
		filter.Kinds = append(filter.Kinds, history.Kind(strings.TrimSpace(kind)))
	}
	entries, err := s.daemon.History(s.ctx, filter)
	if err != nil {
		return err
	}
	resp.Entries = api.FromHistoryEntries(entries)
	return nil
}

func (s *service) CatalogSearch(req CatalogSearchRequest, resp *CatalogSearchResponse) error {
	resp.Entries = api.FromCatalogEntries(s.daemon.SearchCatalog(req.Term))
	return nil
}

func (s *service) TestNotification(_ TestNotificationRequest, resp *TestNotificationResponse) error {
	sent, message, err := s.daemon.TestNotification(s.ctx)
	resp.Sent = sent
	resp.Message = message
	return err
}

func (s *service) LogTail(req LogTailRequest, resp *LogTailResponse) error {
	path := s.daemon.LogPath()
	if path == "" {
		return errors.New("daemon log path unavailable")
	}
	wait := time.Duration(req.WaitMillis) * time.Millisecond
	if wait > maxLogWait {
		wait = maxLogWait
	}
	chunk, err := logs.Tail(s.ctx, path, logs.Request{Offset: req.Offset, Limit: req.Limit, Wait: wait})
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	resp.Lines = chunk.Lines
	resp.Offset = chunk.Offset
	resp.Path = path
	return nil
}
