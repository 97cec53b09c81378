package ftpd

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandleTYPEAcceptsASCIIBinaryAndL7L8(t *testing.T) {
	a, u, fs := newMemFsUser(t, "elr")
	h := newTestHandler(t, a, u, fs, "/home/bob")

	h.do(func() error { return h.c.handleTYPE("I") })
	assert.Equal(t, "200 type set to I", h.readLine(t))
	require.NoError(t, h.wait(t))
	assert.Equal(t, TransferTypeBinary, h.c.currentTransferType)

	h.do(func() error { return h.c.handleTYPE("A") })
	assert.Equal(t, "200 type set to A", h.readLine(t))
	require.NoError(t, h.wait(t))
	assert.Equal(t, TransferTypeASCII, h.c.currentTransferType)

	h.do(func() error { return h.c.handleTYPE("L 8") })
	assert.Equal(t, "200 type set to L 8", h.readLine(t))
	require.NoError(t, h.wait(t))
	assert.Equal(t, TransferTypeASCIIEightBit, h.c.currentTransferType)
}

func TestHandleTYPERejectsUnknownArgument(t *testing.T) {
	a, u, fs := newMemFsUser(t, "elr")
	h := newTestHandler(t, a, u, fs, "/home/bob")

	h.do(func() error { return h.c.handleTYPE("AN") })
	assert.Contains(t, h.readLine(t), "504")
	require.NoError(t, h.wait(t))
}

func TestHandleMODEOnlyAcceptsStream(t *testing.T) {
	a, u, fs := newMemFsUser(t, "elr")
	h := newTestHandler(t, a, u, fs, "/home/bob")

	h.do(func() error { return h.c.handleMODE("S") })
	assert.Equal(t, "200 mode set to stream", h.readLine(t))
	require.NoError(t, h.wait(t))

	h.do(func() error { return h.c.handleMODE("B") })
	assert.Contains(t, h.readLine(t), "504")
	require.NoError(t, h.wait(t))
}

func TestHandleSTRUOnlyAcceptsFile(t *testing.T) {
	a, u, fs := newMemFsUser(t, "elr")
	h := newTestHandler(t, a, u, fs, "/home/bob")

	h.do(func() error { return h.c.handleSTRU("F") })
	assert.Equal(t, "200 structure set to file", h.readLine(t))
	require.NoError(t, h.wait(t))

	h.do(func() error { return h.c.handleSTRU("R") })
	assert.Contains(t, h.readLine(t), "504")
	require.NoError(t, h.wait(t))
}

func TestHandleNOOPAndPBSZAndPROT(t *testing.T) {
	a, u, fs := newMemFsUser(t, "elr")
	h := newTestHandler(t, a, u, fs, "/home/bob")

	h.do(func() error { return h.c.handleNOOP("") })
	assert.Equal(t, "200 OK", h.readLine(t))
	require.NoError(t, h.wait(t))

	h.do(func() error { return h.c.handlePBSZ("0") })
	assert.Equal(t, "200 whatever", h.readLine(t))
	require.NoError(t, h.wait(t))

	h.do(func() error { return h.c.handlePROT("P") })
	assert.Equal(t, "200 OK", h.readLine(t))
	require.NoError(t, h.wait(t))
	assert.True(t, h.c.transferTLS)
}

func TestHandleOPTSMLSTNarrowsFactSet(t *testing.T) {
	a, u, fs := newMemFsUser(t, "elr")
	h := newTestHandler(t, a, u, fs, "/home/bob")

	h.do(func() error { return h.c.handleOPTS("MLST size;modify;") })
	assert.Equal(t, "200 MLST OPTS size;modify;", h.readLine(t))
	require.NoError(t, h.wait(t))
	assert.Equal(t, []string{"size", "modify"}, h.c.selectedFacts)
}

func TestHandleFEATListsMandatoryExtensions(t *testing.T) {
	a, u, fs := newMemFsUser(t, "elr")
	h := newTestHandler(t, a, u, fs, "/home/bob")

	var lines []string

	h.do(func() error { return h.c.handleFEAT("") })

	for {
		line := h.readLine(t)
		lines = append(lines, line)

		if line == "211 End" {
			break
		}
	}
	require.NoError(t, h.wait(t))

	joined := assertJoined(lines)
	assert.Contains(t, joined, "UTF8")
	assert.Contains(t, joined, "TVFS")
	assert.Contains(t, joined, "REST STREAM")
	assert.Contains(t, joined, "MLST ")
}

func assertJoined(lines []string) string {
	out := ""
	for _, l := range lines {
		out += l + "\n"
	}

	return out
}

func TestHandleABORWithNoTransferInProgress(t *testing.T) {
	a, u, fs := newMemFsUser(t, "elr")
	h := newTestHandler(t, a, u, fs, "/home/bob")

	h.do(func() error { return h.c.handleABOR("") })
	assert.Equal(t, "225 No transfer to abort", h.readLine(t))
	require.NoError(t, h.wait(t))
}
