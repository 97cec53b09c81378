package ftpd

import (
	"bufio"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"
)

// testHandler bundles a clientHandler wired to an in-memory VFS and the
// client end of a net.Pipe, letting tests call handler methods directly and
// read back the control-channel replies without a real TCP listener.
type testHandler struct {
	c      *clientHandler
	client net.Conn
	reader *bufio.Reader
	done   chan error
}

// do runs fn (a handler method call) on its own goroutine: net.Pipe is
// unbuffered, so the handler's blocking writeMessage call would otherwise
// deadlock against a test goroutine trying to read afterward. Call
// readLine to drain replies, then wait to confirm fn returned.
func (h *testHandler) do(fn func() error) {
	h.done = make(chan error, 1)

	go func() { h.done <- fn() }()
}

func (h *testHandler) wait(t *testing.T) error {
	t.Helper()

	select {
	case err := <-h.done:
		return err
	case <-time.After(2 * time.Second):
		t.Fatal("handler call did not return")

		return nil
	}
}

func newTestHandler(t *testing.T, authorizer *Authorizer, user *User, fs afero.Fs, home string) *testHandler {
	t.Helper()

	serverConn, clientConn := net.Pipe()
	t.Cleanup(func() { _ = clientConn.Close() })
	t.Cleanup(func() { _ = serverConn.Close() })

	driver := &MainDriver{
		Settings:   &Settings{ListenAddr: "127.0.0.1:0", Banner: "test ready"},
		Authorizer: authorizer,
		NewFs:      func(*User) (afero.Fs, error) { return fs, nil },
	}

	s := NewServer(driver)
	require.NoError(t, s.loadSettings())

	c := s.newClientHandler(serverConn, 1)
	c.user = user
	c.fs = NewVFS(fs, home)
	c.path = "/"
	c.state = stateAuthenticated

	// Drain writes on a goroutine-safe reader so writeMessage's blocking
	// pipe write doesn't deadlock the test.
	return &testHandler{c: c, client: clientConn, reader: bufio.NewReader(clientConn)}
}

// readLine reads one CRLF-terminated reply line, with a short deadline so a
// missing reply fails the test instead of hanging it.
func (h *testHandler) readLine(t *testing.T) string {
	t.Helper()

	require.NoError(t, h.client.SetReadDeadline(time.Now().Add(2*time.Second)))

	line, err := h.reader.ReadString('\n')
	require.NoError(t, err)

	return strings.TrimRight(line, "\r\n")
}

func newMemFsUser(t *testing.T, perm string) (*Authorizer, *User, afero.Fs) {
	t.Helper()

	a := NewAuthorizer(NewScheduler())
	u, err := a.AddUser("bob", "secret", "/home/bob", perm, "", "")
	require.NoError(t, err)

	fs := afero.NewMemMapFs()

	return a, u, fs
}
