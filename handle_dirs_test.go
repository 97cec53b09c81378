package ftpd

import (
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandleCWDAndPWD(t *testing.T) {
	a, u, fs := newMemFsUser(t, "elr")
	require.NoError(t, fs.MkdirAll("/home/bob/docs", 0o755))

	h := newTestHandler(t, a, u, fs, "/home/bob")

	h.do(func() error { return h.c.handleCWD("docs") })
	assert.Contains(t, h.readLine(t), "250")
	require.NoError(t, h.wait(t))
	assert.Equal(t, "/docs", h.c.Path())

	h.do(func() error { return h.c.handlePWD("") })
	assert.Equal(t, `257 "/docs" is the current directory`, h.readLine(t))
	require.NoError(t, h.wait(t))
}

func TestHandleCWDDeniedWithoutPermission(t *testing.T) {
	a, u, fs := newMemFsUser(t, "r") // no 'e' (PermChangeDir)
	require.NoError(t, fs.MkdirAll("/home/bob/docs", 0o755))

	h := newTestHandler(t, a, u, fs, "/home/bob")

	h.do(func() error { return h.c.handleCWD("docs") })
	assert.Equal(t, "550 permission denied", h.readLine(t))
	require.NoError(t, h.wait(t))
	assert.Equal(t, "/", h.c.Path())
}

func TestHandleMKDQuotesEmbeddedQuotes(t *testing.T) {
	a, u, fs := newMemFsUser(t, "elmr")
	h := newTestHandler(t, a, u, fs, "/home/bob")

	h.do(func() error { return h.c.handleMKD(`a"b`) })
	assert.Equal(t, `257 "/a""b" created`, h.readLine(t))
	require.NoError(t, h.wait(t))

	info, err := fs.Stat(`/home/bob/a"b`)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestHandleRMDRequiresDeletePermission(t *testing.T) {
	a, u, fs := newMemFsUser(t, "elm") // no 'd'
	require.NoError(t, fs.MkdirAll("/home/bob/docs", 0o755))

	h := newTestHandler(t, a, u, fs, "/home/bob")

	h.do(func() error { return h.c.handleRMD("docs") })
	assert.Equal(t, "550 permission denied", h.readLine(t))
	require.NoError(t, h.wait(t))

	_, err := fs.Stat("/home/bob/docs")
	require.NoError(t, err) // still there
}

func TestNormalizeListArgTreatsDashAAsCWD(t *testing.T) {
	a, u, fs := newMemFsUser(t, "elr")
	require.NoError(t, fs.MkdirAll("/home/bob", 0o755))

	h := newTestHandler(t, a, u, fs, "/home/bob")

	assert.Equal(t, "", h.c.normalizeListArg("-la"))
	assert.Equal(t, "", h.c.normalizeListArg("-al"))
}

func TestListEntriesBuildsVirtualPaths(t *testing.T) {
	a, u, fs := newMemFsUser(t, "elr")
	require.NoError(t, afero.WriteFile(fs, "/home/bob/a.txt", []byte("hi"), 0o644))

	h := newTestHandler(t, a, u, fs, "/home/bob")

	dirPath, entries, err := h.c.listEntries("")
	require.NoError(t, err)
	assert.Equal(t, "/", dirPath)
	require.Len(t, entries, 1)
	assert.Equal(t, "a.txt", entries[0].Name)
	assert.Equal(t, "/a.txt", entries[0].Path)
}
