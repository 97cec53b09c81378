package ftpd

import (
	"net"
	"os"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"
)

// realTCPConnPair returns a connected pair of *net.TCPConn on loopback,
// since trySendfileTransfer only attempts the fast path against a real TCP
// socket, not a net.Pipe conn.
func realTCPConnPair(t *testing.T) (client, server *net.TCPConn) {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = ln.Close() })

	acceptedCh := make(chan *net.TCPConn, 1)

	go func() {
		c, aerr := ln.Accept()
		require.NoError(t, aerr)
		acceptedCh <- c.(*net.TCPConn)
	}()

	c, err := net.Dial("tcp", ln.Addr().String())
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })

	server = <-acceptedCh
	t.Cleanup(func() { _ = server.Close() })

	return c.(*net.TCPConn), server
}

func newTransferTestHandler(t *testing.T) *clientHandler {
	t.Helper()

	a, u, fs := newMemFsUser(t, "elr")
	h := newTestHandler(t, a, u, fs, "/home/bob")
	h.c.currentTransferType = TransferTypeBinary

	return h.c
}

func TestTrySendfileTransferFallsBackOnNonTCPConn(t *testing.T) {
	c := newTransferTestHandler(t)

	f, err := os.CreateTemp(t.TempDir(), "sendfile")
	require.NoError(t, err)
	defer f.Close()

	pipeServer, pipeClient := net.Pipe()
	defer pipeServer.Close()
	defer pipeClient.Close()

	handled, err := c.trySendfileTransfer(pipeServer, f)
	require.False(t, handled)
	require.NoError(t, err)
}

func TestTrySendfileTransferFallsBackOnNonOSFile(t *testing.T) {
	c := newTransferTestHandler(t)

	_, server := realTCPConnPair(t)

	memFs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(memFs, "a.txt", []byte("hi"), 0o644))
	f, err := memFs.Open("a.txt")
	require.NoError(t, err)
	defer f.Close()

	handled, err := c.trySendfileTransfer(server, f)
	require.False(t, handled)
	require.NoError(t, err)
}

func TestTrySendfileTransferSkippedWhenThrottled(t *testing.T) {
	c := newTransferTestHandler(t)
	c.server.downloadBucket = NewByteRateLimiter(1024)

	f, err := os.CreateTemp(t.TempDir(), "sendfile")
	require.NoError(t, err)
	defer f.Close()
	_, err = f.WriteString("hello")
	require.NoError(t, err)
	_, err = f.Seek(0, 0)
	require.NoError(t, err)

	_, server := realTCPConnPair(t)

	handled, err := c.trySendfileTransfer(server, f)
	require.False(t, handled)
	require.NoError(t, err)
}

func TestDoFileTransferSkipsSendfileInASCIIMode(t *testing.T) {
	c := newTransferTestHandler(t)
	c.currentTransferType = TransferTypeASCII

	f, err := os.CreateTemp(t.TempDir(), "sendfile")
	require.NoError(t, err)
	defer f.Close()
	_, err = f.WriteString("line one\nline two")
	require.NoError(t, err)
	_, err = f.Seek(0, 0)
	require.NoError(t, err)

	client, server := realTCPConnPair(t)

	readDone := make(chan []byte, 1)

	go func() {
		buf := make([]byte, 256)
		n, _ := client.Read(buf)
		readDone <- buf[:n]
	}()

	err = c.doFileTransfer(server, f, false)
	require.NoError(t, err)
	_ = server.Close()

	got := <-readDone
	require.Contains(t, string(got), "line one\r\nline two")
}
