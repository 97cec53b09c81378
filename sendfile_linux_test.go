//go:build linux
// +build linux

package ftpd

import (
	"io"
	"net"
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

// tcpPipe returns a connected pair of *net.TCPConn on loopback, since
// trySendfile needs a real TCP socket fd (net.Pipe's conns aren't TCP).
func tcpPipe(t *testing.T) (client, server *net.TCPConn) {
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

func TestTrySendfileCopiesWholeFile(t *testing.T) {
	content := []byte("the quick brown fox jumps over the lazy dog\n")

	f, err := os.CreateTemp(t.TempDir(), "sendfile")
	require.NoError(t, err)
	defer f.Close()

	_, err = f.Write(content)
	require.NoError(t, err)
	_, err = f.Seek(0, io.SeekStart)
	require.NoError(t, err)

	client, server := tcpPipe(t)
	defer client.Close()
	defer server.Close()

	readDone := make(chan []byte, 1)

	go func() {
		buf := make([]byte, len(content))
		_, _ = io.ReadFull(client, buf)
		readDone <- buf
	}()

	written, handled, err := trySendfile(server, f, int64(len(content)))
	require.True(t, handled)
	require.Equal(t, int64(len(content)), written)
	require.True(t, err == nil || err == io.EOF)

	got := <-readDone
	require.Equal(t, content, got)
}

func TestTrySendfileReturnsUnhandledOnEmptyFile(t *testing.T) {
	f, err := os.CreateTemp(t.TempDir(), "sendfile-empty")
	require.NoError(t, err)
	defer f.Close()

	client, server := tcpPipe(t)
	defer client.Close()
	defer server.Close()

	written, handled, err := trySendfile(server, f, 0)
	require.False(t, handled)
	require.Zero(t, written)
	require.NoError(t, err)
}
