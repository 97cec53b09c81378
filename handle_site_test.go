package ftpd

import (
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandleSITEDisabled(t *testing.T) {
	a, u, fs := newMemFsUser(t, "elrM")
	h := newTestHandler(t, a, u, fs, "/home/bob")
	h.c.server.settings.DisableSite = true

	h.do(func() error { return h.c.handleSITE("CHMOD 644 a.txt") })
	assert.Equal(t, "500 SITE support is disabled", h.readLine(t))
	require.NoError(t, h.wait(t))
}

func TestHandleSITEUnknownSubcommand(t *testing.T) {
	a, u, fs := newMemFsUser(t, "elrM")
	h := newTestHandler(t, a, u, fs, "/home/bob")

	h.do(func() error { return h.c.handleSITE("FROB a.txt") })
	assert.Contains(t, h.readLine(t), "500")
	require.NoError(t, h.wait(t))
}

func TestHandleSiteCHMODChangesMode(t *testing.T) {
	a, u, fs := newMemFsUser(t, "elrM")
	require.NoError(t, afero.WriteFile(fs, "/home/bob/a.txt", []byte("hi"), 0o644))

	h := newTestHandler(t, a, u, fs, "/home/bob")

	h.do(func() error { return h.c.handleSITE("CHMOD 600 a.txt") })
	assert.Contains(t, h.readLine(t), "250")
	require.NoError(t, h.wait(t))

	info, err := fs.Stat("/home/bob/a.txt")
	require.NoError(t, err)
	assert.Equal(t, "-rw-------", info.Mode().String())
}

func TestHandleSiteCHMODRequiresChmodPermission(t *testing.T) {
	a, u, fs := newMemFsUser(t, "elr") // no 'M'
	require.NoError(t, afero.WriteFile(fs, "/home/bob/a.txt", []byte("hi"), 0o644))

	h := newTestHandler(t, a, u, fs, "/home/bob")

	h.do(func() error { return h.c.handleSITE("CHMOD 600 a.txt") })
	assert.Equal(t, "550 permission denied", h.readLine(t))
	require.NoError(t, h.wait(t))
}

func TestHandleSiteMFMTSetsModTime(t *testing.T) {
	a, u, fs := newMemFsUser(t, "elrT")
	require.NoError(t, afero.WriteFile(fs, "/home/bob/a.txt", []byte("hi"), 0o644))

	h := newTestHandler(t, a, u, fs, "/home/bob")

	h.do(func() error { return h.c.handleSITE("MFMT 20260101120000 a.txt") })
	assert.Equal(t, "250 modify=20260101120000; a.txt", h.readLine(t))
	require.NoError(t, h.wait(t))
}

func TestHandleSiteMFMTRequiresModifyTimePermission(t *testing.T) {
	a, u, fs := newMemFsUser(t, "elr") // no 'T'
	require.NoError(t, afero.WriteFile(fs, "/home/bob/a.txt", []byte("hi"), 0o644))

	h := newTestHandler(t, a, u, fs, "/home/bob")

	h.do(func() error { return h.c.handleSITE("MFMT 20260101120000 a.txt") })
	assert.Equal(t, "550 permission denied", h.readLine(t))
	require.NoError(t, h.wait(t))
}
