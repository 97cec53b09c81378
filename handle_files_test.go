package ftpd

import (
	"strconv"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandleDELERequiresDeletePermission(t *testing.T) {
	a, u, fs := newMemFsUser(t, "elr") // no 'd'
	require.NoError(t, afero.WriteFile(fs, "/home/bob/a.txt", []byte("hi"), 0o644))

	h := newTestHandler(t, a, u, fs, "/home/bob")

	h.do(func() error { return h.c.handleDELE("a.txt") })
	assert.Equal(t, "550 permission denied", h.readLine(t))
	require.NoError(t, h.wait(t))

	_, err := fs.Stat("/home/bob/a.txt")
	require.NoError(t, err)
}

func TestHandleDELERemovesFile(t *testing.T) {
	a, u, fs := newMemFsUser(t, "elrd")
	require.NoError(t, afero.WriteFile(fs, "/home/bob/a.txt", []byte("hi"), 0o644))

	h := newTestHandler(t, a, u, fs, "/home/bob")

	h.do(func() error { return h.c.handleDELE("a.txt") })
	assert.Contains(t, h.readLine(t), "250")
	require.NoError(t, h.wait(t))

	_, err := fs.Stat("/home/bob/a.txt")
	assert.Error(t, err)
}

func TestHandleRNFRRNTORenamesFile(t *testing.T) {
	a, u, fs := newMemFsUser(t, "elrf")
	require.NoError(t, afero.WriteFile(fs, "/home/bob/a.txt", []byte("hi"), 0o644))

	h := newTestHandler(t, a, u, fs, "/home/bob")

	h.do(func() error { return h.c.handleRNFR("a.txt") })
	assert.Equal(t, "350 ready for RNTO", h.readLine(t))
	require.NoError(t, h.wait(t))
	assert.Equal(t, "/a.txt", h.c.ctxRnfr)

	h.do(func() error { return h.c.handleRNTO("b.txt") })
	assert.Contains(t, h.readLine(t), "250")
	require.NoError(t, h.wait(t))

	_, err := fs.Stat("/home/bob/a.txt")
	assert.Error(t, err)

	_, err = fs.Stat("/home/bob/b.txt")
	require.NoError(t, err)
}

func TestHandleRNTOWithoutRNFRFails(t *testing.T) {
	a, u, fs := newMemFsUser(t, "elrf")

	h := newTestHandler(t, a, u, fs, "/home/bob")

	h.do(func() error { return h.c.handleRNTO("b.txt") })
	assert.Equal(t, "503 RNFR is expected before RNTO", h.readLine(t))
	require.NoError(t, h.wait(t))
}

func TestHandleSIZERejectsASCIIMode(t *testing.T) {
	a, u, fs := newMemFsUser(t, "elr")
	require.NoError(t, afero.WriteFile(fs, "/home/bob/a.txt", []byte("hello"), 0o644))

	h := newTestHandler(t, a, u, fs, "/home/bob")
	h.c.currentTransferType = TransferTypeASCII

	h.do(func() error { return h.c.handleSIZE("a.txt") })
	assert.Equal(t, "550 SIZE not allowed in ASCII mode", h.readLine(t))
	require.NoError(t, h.wait(t))
}

func TestHandleSIZEReportsByteLength(t *testing.T) {
	a, u, fs := newMemFsUser(t, "elr")
	require.NoError(t, afero.WriteFile(fs, "/home/bob/a.txt", []byte("hello"), 0o644))

	h := newTestHandler(t, a, u, fs, "/home/bob")
	h.c.currentTransferType = TransferTypeBinary

	h.do(func() error { return h.c.handleSIZE("a.txt") })
	assert.Equal(t, "213 5", h.readLine(t))
	require.NoError(t, h.wait(t))
}

func TestHandleRESTStoresOffset(t *testing.T) {
	a, u, fs := newMemFsUser(t, "elr")
	h := newTestHandler(t, a, u, fs, "/home/bob")

	h.do(func() error { return h.c.handleREST("42") })
	assert.Equal(t, "350 restart position accepted", h.readLine(t))
	require.NoError(t, h.wait(t))
	assert.Equal(t, int64(42), h.c.ctxRest)
}

func TestHandleRESTRejectsGarbage(t *testing.T) {
	a, u, fs := newMemFsUser(t, "elr")
	h := newTestHandler(t, a, u, fs, "/home/bob")

	h.do(func() error { return h.c.handleREST("not-a-number") })
	assert.Contains(t, h.readLine(t), "550")
	require.NoError(t, h.wait(t))
}

func TestHandleMFMTSetsModTime(t *testing.T) {
	a, u, fs := newMemFsUser(t, "elrT")
	require.NoError(t, afero.WriteFile(fs, "/home/bob/a.txt", []byte("hi"), 0o644))

	h := newTestHandler(t, a, u, fs, "/home/bob")

	h.do(func() error { return h.c.handleMFMT("20260101120000 a.txt") })
	assert.Equal(t, "213 modify=20260101120000; a.txt", h.readLine(t))
	require.NoError(t, h.wait(t))
}

func TestHandleMFMTRequiresModifyTimePermission(t *testing.T) {
	a, u, fs := newMemFsUser(t, "elr") // no 'T'
	require.NoError(t, afero.WriteFile(fs, "/home/bob/a.txt", []byte("hi"), 0o644))

	h := newTestHandler(t, a, u, fs, "/home/bob")

	h.do(func() error { return h.c.handleMFMT("20260101120000 a.txt") })
	assert.Equal(t, "550 permission denied", h.readLine(t))
	require.NoError(t, h.wait(t))
}

func TestHandleSTOURequiresStorePermission(t *testing.T) {
	a, u, fs := newMemFsUser(t, "elr") // no 'w'
	h := newTestHandler(t, a, u, fs, "/home/bob")

	h.do(func() error { return h.c.handleSTOU("") })
	assert.Equal(t, "550 permission denied", h.readLine(t))
	require.NoError(t, h.wait(t))
}

func TestHandleSTOUGivesUpAfterMaxAttempts(t *testing.T) {
	a, u, fs := newMemFsUser(t, "elrw")

	for n := 0; n < maxSTOUAttempts; n++ {
		name := "/home/bob/stou." + strconv.Itoa(n)
		require.NoError(t, afero.WriteFile(fs, name, []byte("x"), 0o644))
	}

	h := newTestHandler(t, a, u, fs, "/home/bob")

	h.do(func() error { return h.c.handleSTOU("") })
	assert.Equal(t, "450 could not find a unique file name", h.readLine(t))
	require.NoError(t, h.wait(t))
}

func TestHandleALLOIsNoop(t *testing.T) {
	a, u, fs := newMemFsUser(t, "elr")
	h := newTestHandler(t, a, u, fs, "/home/bob")

	h.do(func() error { return h.c.handleALLO("1000") })
	assert.Equal(t, "200 AUTO allocation, no action taken", h.readLine(t))
	require.NoError(t, h.wait(t))
}
