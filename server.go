package ftpd

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/coriolis-labs/ftpd/log"
	"github.com/coriolis-labs/ftpd/log/noop"
	"golang.org/x/time/rate"
)

// Server is where everything is stored: settings, the listener, and the
// driver used to authenticate clients and hand out filesystems. Grounded
// on the teacher's FtpServer (server.go), extended with connection-count
// limits and upload/download rate limiters (see DESIGN.md, Server/acceptor).
type Server struct {
	Logger   log.Logger
	settings *Settings
	listener net.Listener
	driver   *MainDriver

	clientCounter    uint32
	preforkListeners []net.Listener

	mu             *sync.Mutex
	clientsByAddr  map[string]int
	activeClients  map[uint32]*clientHandler
	ctx            context.Context
	cancel         context.CancelFunc
	uploadBucket   *rate.Limiter
	downloadBucket *rate.Limiter
	shuttingDown   *atomic.Bool
}

// NewServer creates a Server driven by the given MainDriver, mirroring the
// teacher's NewFtpServer.
func NewServer(driver *MainDriver) *Server {
	ctx, cancel := context.WithCancel(context.Background())

	return &Server{
		driver:        driver,
		Logger:        noop.NewLogger(),
		mu:            &sync.Mutex{},
		clientsByAddr: make(map[string]int),
		activeClients: make(map[uint32]*clientHandler),
		ctx:           ctx,
		cancel:        cancel,
		shuttingDown:  &atomic.Bool{},
	}
}

func (s *Server) loadSettings() error {
	settings, err := s.driver.GetSettings()
	if err != nil || settings == nil {
		return newDriverError("couldn't load settings", err)
	}

	s.settings = settings
	s.uploadBucket = NewByteRateLimiter(settings.MaxUploadSpeed)
	s.downloadBucket = NewByteRateLimiter(settings.MaxDownloadSpeed)

	return nil
}

// uploadLimiter and downloadLimiter return nil when the configured speed is
// unlimited (NewByteRateLimiter's rate.Inf limiter has a burst of 0, which
// the throttled reader/writer cannot make progress with).
func (s *Server) uploadLimiter() *rate.Limiter {
	if s.uploadBucket == nil || s.uploadBucket.Limit() == rate.Inf {
		return nil
	}

	return s.uploadBucket
}

func (s *Server) downloadLimiter() *rate.Limiter {
	if s.downloadBucket == nil || s.downloadBucket.Limit() == rate.Inf {
		return nil
	}

	return s.downloadBucket
}

// Listen starts the listening socket; it's not a blocking call.
func (s *Server) Listen() error {
	if err := s.loadSettings(); err != nil {
		return err
	}

	if s.settings.Listener != nil {
		s.listener = s.settings.Listener
	} else {
		listener, err := s.createListener()
		if err != nil {
			return err
		}

		s.listener = listener
	}

	s.Logger.Info("listening", "address", s.listener.Addr())

	return nil
}

func (s *Server) createListener() (net.Listener, error) {
	var lc net.ListenConfig
	if s.settings.ConcurrencyModel == ConcurrencyPrefork {
		lc.Control = reusePortControl
	}

	listener, err := lc.Listen(s.ctx, "tcp", s.settings.ListenAddr)
	if err != nil {
		s.Logger.Error("cannot listen on main port", "err", err, "listenAddr", s.settings.ListenAddr)

		return nil, newNetworkError("cannot listen on main port", err)
	}

	if s.settings.TLSRequired == ImplicitEncryption {
		tlsConfig, tlsErr := s.driver.GetTLSConfig()
		if tlsErr != nil || tlsConfig == nil {
			s.Logger.Error("cannot get tls config", "err", tlsErr)

			return nil, newDriverError("cannot get tls config", tlsErr)
		}

		listener = tls.NewListener(listener, tlsConfig)
	}

	return listener, nil
}

func temporaryError(err net.Error) bool {
	var errno syscall.Errno
	if errors.As(err, &errno) {
		return errno == syscall.ECONNABORTED || errno == syscall.ECONNRESET
	}

	return false
}

// Serve accepts and processes incoming connections until the listener is
// closed.
func (s *Server) Serve() error {
	var tempDelay time.Duration

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if done, finalErr := s.handleAcceptError(err, &tempDelay); done {
				return finalErr
			}

			continue
		}

		tempDelay = 0

		s.clientArrival(conn)
	}
}

func (s *Server) handleAcceptError(err error, tempDelay *time.Duration) (bool, error) {
	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Err.Error() == "use of closed network connection" {
		s.listener = nil

		return true, nil
	}

	var ne net.Error
	if errors.As(err, &ne) && (ne.Timeout() || temporaryError(ne)) {
		if *tempDelay == 0 {
			*tempDelay = 5 * time.Millisecond
		} else {
			*tempDelay *= 2
		}

		if maxDelay := time.Second; *tempDelay > maxDelay {
			*tempDelay = maxDelay
		}

		s.Logger.Warn("accept error, retrying", "err", err, "delay", *tempDelay)
		time.Sleep(*tempDelay)

		return false, nil
	}

	s.Logger.Error("listener accept error", "err", err)

	return true, newNetworkError("listener accept error", err)
}

// ListenAndServe chains Listen and Serve. When the driver's concurrency
// model is prefork, it instead runs PreforkWorkers independent accept
// loops, each with its own SO_REUSEPORT listener sharing the kernel's
// connection queue — the Go-idiomatic stand-in for the worker-process
// prefork a C FTP daemon would use, without the complexity of supervising
// child OS processes (see DESIGN.md Open Question decisions).
func (s *Server) ListenAndServe() error {
	if err := s.Listen(); err != nil {
		return err
	}

	s.Logger.Info("starting")

	if s.settings.ConcurrencyModel == ConcurrencyPrefork && s.settings.PreforkWorkers > 1 {
		return s.servePrefork()
	}

	return s.Serve()
}

// servePrefork runs the already-bound listener plus PreforkWorkers-1
// additional SO_REUSEPORT listeners, each accepting on its own goroutine.
func (s *Server) servePrefork() error {
	workers := s.settings.PreforkWorkers

	extraListeners := make([]net.Listener, 0, workers-1)

	for i := 1; i < workers; i++ {
		listener, err := s.createListener()
		if err != nil {
			for _, l := range extraListeners {
				_ = l.Close()
			}

			return err
		}

		extraListeners = append(extraListeners, listener)
	}

	s.preforkListeners = extraListeners

	errCh := make(chan error, workers)

	go func() { errCh <- s.Serve() }()

	for _, listener := range extraListeners {
		worker := &Server{
			Logger:         s.Logger,
			settings:       s.settings,
			listener:       listener,
			driver:         s.driver,
			mu:             s.mu,
			clientsByAddr:  s.clientsByAddr,
			activeClients:  s.activeClients,
			ctx:            s.ctx,
			cancel:         s.cancel,
			uploadBucket:   s.uploadBucket,
			downloadBucket: s.downloadBucket,
			shuttingDown:   s.shuttingDown,
		}

		go func() { errCh <- worker.Serve() }()
	}

	return <-errCh
}

// Addr reports the listening address, or "" before Listen or after Stop.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}

	return ""
}

// Stop closes the listener and every active client connection, waiting
// for their HandleCommands loops to return.
func (s *Server) Stop() error {
	if s.listener == nil {
		return ErrNotListening
	}

	s.shuttingDown.Store(true)
	s.cancel()

	if err := s.listener.Close(); err != nil {
		s.Logger.Warn("could not close listener", "err", err)

		return newNetworkError("could not close listener", err)
	}

	for _, listener := range s.preforkListeners {
		if err := listener.Close(); err != nil {
			s.Logger.Warn("could not close prefork listener", "err", err)
		}
	}

	s.mu.Lock()
	clients := make([]*clientHandler, 0, len(s.activeClients))
	for _, c := range s.activeClients {
		clients = append(clients, c)
	}
	s.mu.Unlock()

	for _, c := range clients {
		if err := c.Close(); err != nil {
			s.Logger.Warn("problem closing client during shutdown", "err", err)
		}
	}

	return nil
}

// clientArrival accepts a new connection, enforcing the configured
// connection-count limits (spec.md §4.2 max_cons / max_cons_per_ip) before
// spawning the per-connection goroutine.
func (s *Server) clientArrival(conn net.Conn) {
	remoteHost, _, _ := net.SplitHostPort(conn.RemoteAddr().String())

	if s.shuttingDown.Load() {
		s.rejectConnection(conn, "server is shutting down")

		return
	}

	s.mu.Lock()

	if s.settings.MaxConnections > 0 && len(s.activeClients) >= s.settings.MaxConnections {
		s.mu.Unlock()
		s.rejectConnection(conn, "too many connections")

		return
	}

	if s.settings.MaxConnectionsPerIP > 0 && s.clientsByAddr[remoteHost] >= s.settings.MaxConnectionsPerIP {
		s.mu.Unlock()
		s.rejectConnection(conn, "too many connections from this address")

		return
	}

	id := atomic.AddUint32(&s.clientCounter, 1)
	c := s.newClientHandler(conn, id)
	s.activeClients[id] = c
	s.clientsByAddr[remoteHost]++
	s.mu.Unlock()

	banner, err := s.driver.ClientConnected(c)
	if err != nil {
		s.Logger.Warn("connection rejected by driver", "err", err)
		c.writeMessage(StatusServiceNotAvailable, err.Error())
		c.disconnect()
		s.clientDeparture(c)

		return
	}

	c.banner = banner

	go c.HandleCommands()

	c.logger.Debug("client connected", "remoteAddr", conn.RemoteAddr())
}

func (s *Server) rejectConnection(conn net.Conn, reason string) {
	s.Logger.Warn("rejecting connection", "reason", reason, "remoteAddr", conn.RemoteAddr())

	_, _ = fmt.Fprintf(conn, "%d %s\r\n", StatusServiceNotAvailable, reason)

	if err := conn.Close(); err != nil {
		s.Logger.Warn("problem closing rejected connection", "err", err)
	}
}

// clientDeparture removes the client from the bookkeeping maps and notifies
// the driver, mirroring the teacher's clientDeparture hook.
func (s *Server) clientDeparture(c *clientHandler) {
	remoteHost, _, _ := net.SplitHostPort(c.conn.RemoteAddr().String())

	s.mu.Lock()
	delete(s.activeClients, c.id)

	if s.clientsByAddr[remoteHost] > 0 {
		s.clientsByAddr[remoteHost]--

		if s.clientsByAddr[remoteHost] == 0 {
			delete(s.clientsByAddr, remoteHost)
		}
	}
	s.mu.Unlock()

	s.driver.ClientDisconnected(c)

	c.logger.Debug("client disconnected", "remoteAddr", c.conn.RemoteAddr())
}

// transferCtx is cancelled when the server is stopped, so throttled
// reads/writes in transfer.go don't block shutdown forever.
func (c *clientHandler) transferCtx() context.Context {
	return c.server.ctx
}
