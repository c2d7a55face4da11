package engine

import (
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/brevis-labs/emberhttpd/config"
	"github.com/brevis-labs/emberhttpd/emberr"
	"github.com/brevis-labs/emberhttpd/eventgroup"
	"github.com/brevis-labs/emberhttpd/log"
	"github.com/brevis-labs/emberhttpd/pool"
	"github.com/brevis-labs/emberhttpd/queue"
	"github.com/brevis-labs/emberhttpd/session"
)

// event-bit group bits for spec.md §5's start/stop synchronization and
// §2's event-bit group primitive.
const (
	bitRunning uint32 = 1 << 0
	bitStopped uint32 = 1 << 1
)

// Server is spec.md §3's "server instance": configuration snapshot, session
// table, handler table, error-handler table, listening socket, control
// plane, and running flag. Grounded on the teacher's lowlevel server.Server
// (momentics/hioload-ws, server/server.go) for the shape — one struct
// holding every live resource, started/stopped through explicit methods —
// generalized here to own the single-threaded epoll loop spec.md requires
// instead of the teacher's per-connection goroutine pool.
type Server struct {
	cfg *config.Config
	log log.Logger

	listener   net.Listener
	listenerV6 net.Listener

	sessions *session.Table
	router   *routerTable

	errHandlers map[int]HandlerFunc
	// wsHandlers tracks, per fd, the handler entry an upgraded session
	// dispatches WebSocket frames to (spec.md §4.6 step 4 onward).
	// Engine-thread-only, like the session table itself.
	wsHandlers map[int]*HandlerEntry

	workQ  *queue.WorkQueue
	events *eventgroup.Group

	// scratchPool vends every session's read buffer. One pool
	// for the server's lifetime, not one per accept: accept is the hottest
	// path in the engine loop and must not pay sync.Pool construction cost
	// per connection.
	scratchPool *pool.Pool

	ctrl *controlPipe
	poll *poller

	mu                sync.Mutex
	stopped           bool
	shutdownRequested bool

	loopDone chan struct{}
}

// Start implements spec.md §6's start: create the instance, bind the
// listener(s), spawn the engine worker.
func Start(cfg *config.Config) (*Server, error) {
	if cfg == nil {
		return nil, emberr.New(emberr.InvalidArg, "config must not be nil")
	}
	lg := cfg.Logger
	if lg == nil {
		lg = log.Discard()
	}

	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.ServerPort))
	if err != nil {
		return nil, emberr.Wrap(emberr.Fail, "listen", err)
	}

	ctrl, err := newControlPipe()
	if err != nil {
		ln.Close()
		return nil, emberr.Wrap(emberr.Fail, "control pipe", err)
	}
	poll, err := newPoller()
	if err != nil {
		ln.Close()
		ctrl.close()
		return nil, emberr.Wrap(emberr.Fail, "poller", err)
	}

	srv := &Server{
		cfg:         cfg,
		log:         lg,
		listener:    ln,
		sessions:    session.NewTable(cfg.MaxOpenSockets),
		router:      newRouterTable(cfg.MaxURIHandlers, cfg.UriMatchFn),
		errHandlers: make(map[int]HandlerFunc),
		wsHandlers:  make(map[int]*HandlerEntry),
		workQ:       queue.New(),
		events:      eventgroup.New(),
		ctrl:        ctrl,
		poll:        poll,
		scratchPool: pool.New(cfg.ScratchSize),
		loopDone:    make(chan struct{}),
	}

	if cfg.ServerPortIPv6 >= 0 {
		ln6, err := net.Listen("tcp6", fmt.Sprintf(":%d", cfg.ServerPortIPv6))
		if err != nil {
			ln.Close()
			return nil, emberr.Wrap(emberr.Fail, "listen ipv6", err)
		}
		srv.listenerV6 = ln6
	}

	srv.events.Set(bitRunning)
	go srv.runLoop()

	return srv, nil
}

// Stop implements spec.md §6's stop: idempotent on a valid handle, and the
// second call on an already-stopped handle returns INVALID_ARG because the
// caller must not reuse the handle afterwards.
func (srv *Server) Stop() error {
	srv.mu.Lock()
	if srv.stopped {
		srv.mu.Unlock()
		return emberr.New(emberr.InvalidArg, "server already stopped")
	}
	srv.stopped = true
	srv.mu.Unlock()

	srv.workQ.Push(func() {
		srv.mu.Lock()
		srv.shutdownRequested = true
		srv.mu.Unlock()
	})
	srv.ctrl.wake()

	<-srv.loopDone

	if srv.cfg.GlobalUserCtx != nil && srv.cfg.FreeGlobalCtx != nil {
		srv.cfg.FreeGlobalCtx(srv.cfg.GlobalUserCtx)
	}
	return nil
}

// RegisterURIHandler implements spec.md §6's register_uri_handler.
func (srv *Server) RegisterURIHandler(e HandlerEntry) error {
	return srv.router.Register(e)
}

// UnregisterURIHandler implements spec.md §6's unregister_uri_handler.
func (srv *Server) UnregisterURIHandler(pattern string, method Method) error {
	return srv.router.Unregister(pattern, method)
}

// UnregisterURI implements spec.md §6's unregister_uri.
func (srv *Server) UnregisterURI(pattern string) error {
	return srv.router.UnregisterURI(pattern)
}

// RegisterErrHandler implements spec.md §6's register_err_handler.
func (srv *Server) RegisterErrHandler(code int, fn HandlerFunc) error {
	if fn == nil {
		return emberr.New(emberr.InvalidArg, "handler must not be nil")
	}
	srv.errHandlers[code] = fn
	return nil
}

// Addr returns the bound IPv4 listener's address, for callers (tests,
// diagnostics) that started the server with ServerPort 0 and need the
// OS-assigned port.
func (srv *Server) Addr() net.Addr { return srv.listener.Addr() }

// GetClientList implements spec.md §6's get_client_list: fills up to
// len(out) fds with currently-open session fds, returning the count
// written.
func (srv *Server) GetClientList(out []int) int {
	n := 0
	srv.sessions.Range(func(s *session.Slot) {
		if n < len(out) {
			out[n] = s.FD
			n++
		}
	})
	return n
}

// FdInfo implements spec.md §4.6's ws_get_fd_info.
func (srv *Server) FdInfo(fd int) FdKind {
	s := srv.sessions.ByFD(fd)
	if s == nil {
		return FdInvalid
	}
	if s.IsWebSocket {
		return FdWebSocket
	}
	return FdHTTP
}

// QueueWork implements spec.md §6's queue_work: enqueue a closure for the
// engine thread to run between readiness-multiplexing iterations. This is
// the sole mechanism (spec.md §5) by which external goroutines may touch
// engine/session state.
func (srv *Server) QueueWork(fn func()) error {
	if !srv.workQ.Push(fn) {
		return emberr.New(emberr.Fail, "server is stopping")
	}
	srv.ctrl.wake()
	return nil
}

// touch refreshes a session's LRU counter (spec.md §4.1), called on every
// byte sent or received.
func (srv *Server) touch(s *session.Slot) {
	srv.sessions.Touch(s)
}

// readWithTimeout applies the configured recv timeout to a single Read call
// (spec.md §5's socket-level SO_RCVTIMEO requirement), returning conn.Read's
// error unchanged; callers classify it (Recv through mapIOError, the engine
// loop through a net.Error timeout check).
func readWithTimeout(conn net.Conn, buf []byte, timeout time.Duration) (int, error) {
	if timeout > 0 {
		conn.SetReadDeadline(time.Now().Add(timeout))
	}
	n, err := conn.Read(buf)
	return n, err
}

// mapIOError classifies a net.Conn I/O error into spec.md §4.4's req_recv
// negative-code taxonomy (TIMEOUT / FAIL), per §7's "socket errors" note.
func mapIOError(err error) error {
	if err == nil {
		return nil
	}
	if ne, ok := err.(net.Error); ok && ne.Timeout() {
		return emberr.Wrap(emberr.Timeout, "i/o timeout", err)
	}
	return emberr.Wrap(emberr.Fail, "i/o error", err)
}
