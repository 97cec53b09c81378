package ftpd

import (
	"bufio"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/coriolis-labs/ftpd/log"
)

// sessionState names the points in the CONNECTED -> WAIT_PASS ->
// AUTHENTICATED -> TRANSFERRING progression spec.md §4.7 describes.
type sessionState int

const (
	stateConnected sessionState = iota
	stateWaitPass
	stateAuthenticated
	stateTransferring
)

// clientHandler drives one control connection end to end: command
// parsing, the CONNECTED/WAIT_PASS/AUTHENTICATED/TRANSFERRING state
// machine, and the data-transfer handoff. Grounded on the teacher's
// clientHandler (client_handler.go), adapted around this module's VFS +
// Authorizer instead of an opaque ClientDriver.
type clientHandler struct {
	id          uint32
	server      *Server
	conn        net.Conn
	reader      *bufio.Reader
	writer      *bufio.Writer
	logger      log.Logger
	connectedAt time.Time
	banner      string

	paramsMutex sync.RWMutex
	state       sessionState
	username    string // USER argument, before PASS succeeds
	user        *User
	fs          *VFS
	path        string
	clnt        string
	command     string
	debug       bool
	controlTLS  bool
	transferTLS bool

	currentTransferType TransferType
	ctxRnfr             string
	ctxRest             int64
	selectedFacts       []string // OPTS MLST facts;, nil means every fact in MLSxFacts

	transferWg        sync.WaitGroup
	transferMu        sync.Mutex
	transfer          transferHandler
	isTransferOpen    bool
	isTransferAborted bool
}

func (s *Server) newClientHandler(conn net.Conn, id uint32) *clientHandler {
	return &clientHandler{
		id:                  id,
		server:              s,
		conn:                conn,
		reader:              bufio.NewReader(conn),
		writer:              bufio.NewWriter(conn),
		connectedAt:         time.Now().UTC(),
		banner:              s.settings.Banner,
		path:                "/",
		currentTransferType: s.settings.DefaultTransferType,
		logger:              s.Logger.With("clientId", id),
	}
}

// Path returns the current working directory.
func (c *clientHandler) Path() string {
	c.paramsMutex.RLock()
	defer c.paramsMutex.RUnlock()

	return c.path
}

// SetPath changes the current working directory.
func (c *clientHandler) SetPath(p string) {
	c.paramsMutex.Lock()
	defer c.paramsMutex.Unlock()

	c.path = p
}

// HasTLSForControl reports whether the control channel runs over TLS.
func (c *clientHandler) HasTLSForControl() bool {
	if c.server.settings.TLSRequired == ImplicitEncryption {
		return true
	}

	c.paramsMutex.RLock()
	defer c.paramsMutex.RUnlock()

	return c.controlTLS
}

// HasTLSForTransfers reports whether data connections must run over TLS.
func (c *clientHandler) HasTLSForTransfers() bool {
	if c.server.settings.TLSRequired == ImplicitEncryption {
		return true
	}

	c.paramsMutex.RLock()
	defer c.paramsMutex.RUnlock()

	return c.transferTLS
}

// GetLastCommand returns the last command verb received, used to decide
// whether a PASV or EPSV reply is owed.
func (c *clientHandler) GetLastCommand() string {
	c.paramsMutex.RLock()
	defer c.paramsMutex.RUnlock()

	return c.command
}

func (c *clientHandler) setLastCommand(cmd string) {
	c.paramsMutex.Lock()
	defer c.paramsMutex.Unlock()

	c.command = cmd
}

func (c *clientHandler) absPath(p string) string {
	return Ftpnorm(c.Path(), p)
}

func (c *clientHandler) disconnect() {
	if err := c.conn.Close(); err != nil {
		c.logger.Warn("problem disconnecting client", "err", err)
	}
}

func (c *clientHandler) closeTransferLocked() error {
	var err error

	if c.transfer != nil {
		err = c.transfer.Close()
		c.isTransferOpen = false
		c.transfer = nil
	}

	return err
}

// Close aborts any in-flight transfer and closes the control connection;
// it's the hook external callers (graceful shutdown) use to kick a
// session off, matching the teacher's exported Close.
func (c *clientHandler) Close() error {
	c.transferMu.Lock()
	c.isTransferAborted = true

	if err := c.closeTransferLocked(); err != nil {
		c.logger.Warn("problem closing transfer on external close", "err", err)
	}
	c.transferMu.Unlock()

	return c.conn.Close()
}

func (c *clientHandler) end() {
	c.server.clientDeparture(c)

	c.transferMu.Lock()
	defer c.transferMu.Unlock()

	if err := c.closeTransferLocked(); err != nil {
		c.logger.Warn("problem closing transfer", "err", err)
	}
}

func (c *clientHandler) isCommandAborted() bool {
	c.transferMu.Lock()
	defer c.transferMu.Unlock()

	return c.isTransferAborted
}

// deliverDelayedAuthFailure is invoked by the Authorizer's Scheduler,
// AuthFailedDelay after a failed PASS, and finally sends the 530 the client
// has been kept waiting for, then disconnects (a timer ticks that shared
// Scheduler at the deadline; no goroutine sleeps, see
// Authorizer.ValidateAuthentication).
func (c *clientHandler) deliverDelayedAuthFailure(result AuthResult) {
	c.writeMessage(StatusNotLoggedIn, fmt.Sprintf("Authentication failed: %v", result.Failed))
	c.disconnect()
}

// HandleCommands is the per-connection reactor loop: one goroutine reads
// a line, dispatches it, and loops, exactly as ftpserverlib's
// HandleCommands does — the Go runtime's netpoller is what makes running
// thousands of these cheap (see SPEC_FULL.md §1.1).
func (c *clientHandler) HandleCommands() {
	defer c.end()

	c.writeMessage(StatusServiceReady, c.banner)

	for {
		if c.server.settings.IdleTimeout > 0 {
			deadline := time.Now().Add(time.Duration(c.server.settings.IdleTimeout) * time.Second)
			if err := c.conn.SetDeadline(deadline); err != nil {
				c.logger.Error("could not set idle deadline", "err", err)
			}
		}

		raw, err := c.reader.ReadSlice('\n')
		if err == bufio.ErrBufferFull {
			c.logger.Warn("discarding overlong command line")

			for err == bufio.ErrBufferFull {
				_, err = c.reader.ReadSlice('\n')
			}

			if err == nil {
				continue
			}
		}

		if err != nil {
			c.handleStreamError(err)

			return
		}

		line := string(raw)

		if c.debug {
			c.logger.Debug("received line", "line", line)
		}

		c.handleLine(line)

		if c.reader == nil {
			return
		}
	}
}

func (c *clientHandler) handleStreamError(err error) {
	if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
		c.logger.Info("client idle timeout", "err", err)
		c.writeMessage(StatusServiceNotAvailable,
			fmt.Sprintf("command timeout (%d seconds): closing control connection", c.server.settings.IdleTimeout))

		if flushErr := c.writer.Flush(); flushErr != nil {
			c.logger.Error("flush error", "err", flushErr)
		}

		if closeErr := c.conn.Close(); closeErr != nil {
			c.logger.Error("close error", "err", closeErr)
		}

		return
	}

	if err == io.EOF {
		c.logger.Debug("client disconnected")

		return
	}

	c.logger.Error("read error", "err", err)
}

func parseLine(line string) (string, string) {
	parts := strings.SplitN(strings.Trim(line, "\r\n"), " ", 2)
	if len(parts) == 1 {
		return parts[0], ""
	}

	return parts[0], parts[1]
}

func (c *clientHandler) handleLine(line string) {
	command, param := parseLine(line)
	command = strings.ToUpper(command)

	cmdDesc := commandTable[command]
	if cmdDesc == nil {
		for _, special := range specialAttentionCommands {
			if strings.HasSuffix(command, special) {
				cmdDesc = commandTable[special]
				command = special

				break
			}
		}

		if cmdDesc == nil {
			c.setLastCommand(command)
			c.writeMessage(StatusSyntaxErrorNotRecognised, fmt.Sprintf("unknown command %q", command))

			return
		}
	}

	if c.fs == nil && !cmdDesc.Open {
		c.writeMessage(StatusNotLoggedIn, "Please login with USER and PASS")

		return
	}

	if !cmdDesc.SpecialAction || (command == "STAT" && param != "") {
		c.transferWg.Wait()
	}

	c.setLastCommand(command)

	if cmdDesc.TransferRelated {
		c.isTransferAborted = false
		c.transferWg.Add(1)

		go func() {
			defer c.transferWg.Done()
			c.executeCommand(cmdDesc, command, param)
		}()
	} else {
		c.executeCommand(cmdDesc, command, param)
	}
}

func (c *clientHandler) executeCommand(cmdDesc *CommandDescription, command, param string) {
	defer func() {
		if r := recover(); r != nil {
			c.writeMessage(StatusSyntaxErrorNotRecognised, fmt.Sprintf("internal error: %v", r))
			c.logger.Warn("internal command handling error", "err", r, "command", command, "param", param)
		}
	}()

	if err := cmdDesc.Fn(c, param); err != nil {
		c.writeMessage(StatusSyntaxErrorNotRecognised, fmt.Sprintf("error: %v", err))
	}
}

func (c *clientHandler) writeLine(line string) {
	if c.debug {
		c.logger.Debug("sending line", "line", line)
	}

	if _, err := c.writer.WriteString(line + "\r\n"); err != nil {
		c.logger.Warn("answer couldn't be sent", "line", line, "err", err)
	}

	if err := c.writer.Flush(); err != nil {
		c.logger.Warn("couldn't flush line", "err", err)
	}
}

func (c *clientHandler) writeMessage(code int, message string) {
	lines := messageLines(message)
	for i, line := range lines {
		if i < len(lines)-1 {
			c.writeLine(fmt.Sprintf("%d-%s", code, line))
		} else {
			c.writeLine(fmt.Sprintf("%d %s", code, line))
		}
	}
}

func (c *clientHandler) multilineAnswer(code int, message string) func() {
	c.writeLine(fmt.Sprintf("%d-%s", code, message))

	return func() {
		c.writeLine(fmt.Sprintf("%d End", code))
	}
}

func messageLines(message string) []string {
	var lines []string

	sc := bufio.NewScanner(strings.NewReader(message))
	for sc.Scan() {
		lines = append(lines, sc.Text())
	}

	if len(lines) == 0 {
		lines = append(lines, "")
	}

	return lines
}

// TransferOpen opens the pending active/passive data connection,
// enforcing the mandatory-TLS-for-transfers rule uniformly for both
// modes (DESIGN.md Open Question #3). The 150 reply reads okMessage,
// letting STOU report the server-chosen file name per RFC-959 §5.3.3.
func (c *clientHandler) TransferOpen(info, okMessage string) (net.Conn, error) {
	c.transferMu.Lock()
	defer c.transferMu.Unlock()

	if c.transfer == nil {
		if c.isTransferAborted {
			c.isTransferAborted = false

			return nil, ErrNoTransferConnection
		}

		c.writeMessage(getErrorCode(ErrNoTransferConnection, StatusCantOpenDataConnection), ErrNoTransferConnection.Error())

		return nil, ErrNoTransferConnection
	}

	if c.server.settings.TLSRequired == MandatoryEncryption && !c.HasTLSForTransfers() {
		c.writeMessage(StatusServiceNotAvailable, ErrTLSRequired.Error())

		return nil, ErrTLSRequired
	}

	conn, err := c.transfer.Open()
	if err != nil {
		c.logger.Warn("unable to open transfer", "err", err)
		c.writeMessage(StatusCannotOpenDataConnection, err.Error())

		return nil, err
	}

	c.isTransferOpen = true
	c.transfer.SetInfo(info)
	c.writeMessage(StatusFileStatusOK, okMessage)

	return conn, nil
}

// TransferClose closes the data connection and reports the outcome,
// unless the transfer was aborted (in which case ABOR already answered).
func (c *clientHandler) TransferClose(transferErr error) {
	c.transferMu.Lock()
	defer c.transferMu.Unlock()

	closeErr := c.closeTransferLocked()

	if c.isTransferAborted {
		c.isTransferAborted = false

		return
	}

	switch {
	case transferErr == nil && closeErr == nil:
		c.writeMessage(StatusClosingDataConn, "Closing transfer connection")
	case closeErr != nil:
		c.writeMessage(StatusActionNotTaken, fmt.Sprintf("issue during transfer close: %v", closeErr))
	default:
		// A mid-transfer I/O error (ECONNRESET, EPIPE, ...) defaults to 426
		// ("transient I/O error on data channel" per spec.md §7); sentinel
		// errors like ErrStorageExceeded still map to their own code.
		c.writeMessage(getErrorCode(transferErr, StatusConnectionClosed),
			fmt.Sprintf("issue during transfer: %v", transferErr))
	}
}

// upgradeControlToTLS wraps the control connection after AUTH TLS.
func (c *clientHandler) upgradeControlToTLS(tlsConfig *tls.Config) {
	c.conn = tls.Server(c.conn, tlsConfig)
	c.reader = bufio.NewReader(c.conn)
	c.writer = bufio.NewWriter(c.conn)
	c.controlTLS = true
}
