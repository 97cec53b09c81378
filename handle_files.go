package ftpd

import (
	"fmt"
	"os"
	"path"
	"strconv"
	"strings"
	"time"
)

const dateFormatMLSx = "20060102150405"

func (c *clientHandler) handleRETR(param string) error {
	c.transferFile(false, false, param, fmt.Sprintf("RETR %s", param), "Using transfer connection")

	return nil
}

func (c *clientHandler) handleSTOR(param string) error {
	c.transferFile(true, false, param, fmt.Sprintf("STOR %s", param), "Using transfer connection")

	return nil
}

func (c *clientHandler) handleAPPE(param string) error {
	c.transferFile(true, true, param, fmt.Sprintf("APPE %s", param), "Using transfer connection")

	return nil
}

// maxSTOUAttempts bounds the lowest-N search handleSTOU performs before
// giving up with 450 (spec.md §4.7).
const maxSTOUAttempts = 100

// handleSTOU implements RFC-959's "store unique": the server picks the
// lowest-numbered "<base>.N" name inside the target directory that does
// not already exist, reporting it in the "150 FILE: <name>" reply as
// RFC-959 §5.3.3 requires. The client's suggested path, if any, supplies
// the base name; an empty one falls back to "stou".
func (c *clientHandler) handleSTOU(param string) error {
	base := strings.TrimSpace(param)
	if base == "" {
		base = "stou"
	}

	dir := path.Dir(c.absPath(base))
	prefix := path.Base(base)

	for n := 0; n < maxSTOUAttempts; n++ {
		candidate := path.Join(dir, fmt.Sprintf("%s.%d", prefix, n))

		if _, err := c.fs.Stat(candidate); err != nil {
			c.transferFile(true, false, candidate, fmt.Sprintf("STOU %s", candidate), fmt.Sprintf("FILE: %s", candidate))

			return nil
		}
	}

	c.writeMessage(StatusActionAborted, "could not find a unique file name")

	return nil
}

// transferFile is the common STOR/APPE/RETR/STOU path: resolve permission,
// open the file, seek to any pending REST offset, hand off to TransferOpen,
// then run the byte copy. Grounded on the teacher's transferFile
// (handle_files.go), adapted around this module's VFS and permission model.
// absPath is idempotent on the already-absolute candidates handleSTOU
// passes in, so every caller can go through it uniformly.
func (c *clientHandler) transferFile(write, appendMode bool, param, info, okMessage string) {
	virtualPath := c.absPath(param)

	if !c.checkTransferPerm(write, appendMode, virtualPath) {
		c.writeMessage(StatusActionNotTaken, "permission denied")

		return
	}

	c.paramsMutex.RLock()
	restOffset := c.ctxRest
	asciiMode := c.currentTransferType == TransferTypeASCII
	c.paramsMutex.RUnlock()

	if asciiMode && restOffset != 0 {
		c.writeMessage(StatusActionNotTaken, "REST is not allowed in ASCII mode")
		c.clearRest()

		return
	}

	var flag int

	switch {
	case !write:
		flag = os.O_RDONLY
	case appendMode:
		flag = os.O_WRONLY | os.O_APPEND | os.O_CREATE
	case restOffset == 0:
		flag = os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	default:
		flag = os.O_WRONLY | os.O_CREATE
	}

	file, err := c.fs.OpenFile(virtualPath, flag, 0o644)
	if err != nil {
		if !c.isCommandAborted() {
			c.writeMessage(StatusActionNotTaken, fmt.Sprintf("could not access file: %v", err))
		}

		c.clearRest()

		return
	}

	if restOffset != 0 {
		c.clearRest()

		if _, err := file.Seek(restOffset, 0); err != nil {
			if !c.isCommandAborted() {
				c.writeMessage(StatusActionNotTaken, fmt.Sprintf("could not seek file: %v", err))
			}

			c.closeUnchecked(file)

			return
		}
	}

	tr, err := c.TransferOpen(info, okMessage)
	if err != nil {
		c.closeUnchecked(file)

		return
	}

	err = c.doFileTransfer(tr, file, write)

	if closeErr := file.Close(); closeErr != nil && err == nil && write {
		err = closeErr
	}

	c.TransferClose(err)
}

func (c *clientHandler) checkTransferPerm(write, appendMode bool, virtualPath string) bool {
	auth := c.server.driver.Authorizer

	if !write {
		return auth.HasPerm(c.user, PermRetrieve, virtualPath)
	}

	if appendMode {
		return auth.HasPerm(c.user, PermAppend, virtualPath)
	}

	return auth.HasPerm(c.user, PermStore, virtualPath)
}

func (c *clientHandler) clearRest() {
	c.paramsMutex.Lock()
	c.ctxRest = 0
	c.paramsMutex.Unlock()
}

func (c *clientHandler) closeUnchecked(file interface{ Close() error }) {
	if err := file.Close(); err != nil {
		c.logger.Warn("problem closing a file", "err", err)
	}
}

func (c *clientHandler) handleDELE(param string) error {
	p := c.absPath(param)

	if !c.server.driver.Authorizer.HasPerm(c.user, PermDelete, p) {
		c.writeMessage(StatusActionNotTaken, "permission denied")

		return nil
	}

	if err := c.fs.Remove(p); err != nil {
		c.writeMessage(StatusActionNotTaken, fmt.Sprintf("could not delete %s: %v", p, err))

		return nil
	}

	c.writeMessage(StatusFileOK, fmt.Sprintf("removed file %s", p))

	return nil
}

func (c *clientHandler) handleRNFR(param string) error {
	p := c.absPath(param)

	if !c.server.driver.Authorizer.HasPerm(c.user, PermRename, p) {
		c.writeMessage(StatusActionNotTaken, "permission denied")

		return nil
	}

	if _, err := c.fs.Stat(p); err != nil {
		c.writeMessage(StatusActionNotTaken, fmt.Sprintf("could not access %s: %v", p, err))

		return nil
	}

	c.paramsMutex.Lock()
	c.ctxRnfr = p
	c.paramsMutex.Unlock()

	c.writeMessage(StatusFileActionPending, "ready for RNTO")

	return nil
}

func (c *clientHandler) handleRNTO(param string) error {
	c.paramsMutex.Lock()
	src := c.ctxRnfr
	c.ctxRnfr = ""
	c.paramsMutex.Unlock()

	if src == "" {
		c.writeMessage(StatusBadCommandSequence, "RNFR is expected before RNTO")

		return nil
	}

	dst := c.absPath(param)

	if !c.server.driver.Authorizer.HasPerm(c.user, PermRename, dst) {
		c.writeMessage(StatusActionNotTaken, "permission denied")

		return nil
	}

	if err := c.fs.Rename(src, dst); err != nil {
		c.writeMessage(getErrorCode(err, StatusActionNotTaken), fmt.Sprintf("could not rename %s to %s: %v", src, dst, err))

		return nil
	}

	c.writeMessage(StatusFileOK, "rename successful")

	return nil
}

// handleSIZE rejects ASCII mode, matching the teacher: computing the
// post-conversion size would mean scanning the whole file, which is both
// expensive and a DoS vector.
func (c *clientHandler) handleSIZE(param string) error {
	if c.currentTransferType == TransferTypeASCII {
		c.writeMessage(StatusActionNotTaken, "SIZE not allowed in ASCII mode")

		return nil
	}

	p := c.absPath(param)

	info, err := c.fs.Stat(p)
	if err != nil {
		c.writeMessage(StatusActionNotTaken, fmt.Sprintf("could not access %s: %v", p, err))

		return nil
	}

	c.writeMessage(StatusFileStatus, fmt.Sprintf("%d", info.Size()))

	return nil
}

func (c *clientHandler) handleMDTM(param string) error {
	fields := strings.SplitN(strings.TrimSpace(param), " ", 2)

	if len(fields) == 2 {
		return c.handleLegacyMDTMSet(fields[0], fields[1])
	}

	p := c.absPath(param)

	info, err := c.fs.Stat(p)
	if err != nil {
		c.writeMessage(StatusActionNotTaken, fmt.Sprintf("could not access %s: %v", p, err))

		return nil
	}

	mtime := info.ModTime()
	if c.server.settings.UseGMTTimes {
		mtime = mtime.UTC()
	}

	c.writeMessage(StatusFileStatus, mtime.Format(dateFormatMLSx))

	return nil
}

// handleLegacyMDTMSet implements the historical "MDTM <timestamp> <path>"
// mutator some clients still send; disabled by default, see
// Settings.EnableLegacyMDTMSet.
func (c *clientHandler) handleLegacyMDTMSet(ts, param string) error {
	if !c.server.settings.EnableLegacyMDTMSet {
		c.writeMessage(StatusSyntaxErrorNotRecognised, "legacy MDTM setter is disabled")

		return nil
	}

	mtime, err := time.Parse(dateFormatMLSx, ts)
	if err != nil {
		c.writeMessage(StatusSyntaxErrorParameters, fmt.Sprintf("could not parse timestamp %q: %v", ts, err))

		return nil
	}

	p := c.absPath(param)

	if !c.server.driver.Authorizer.HasPerm(c.user, PermModifyTime, p) {
		c.writeMessage(StatusActionNotTaken, "permission denied")

		return nil
	}

	if err := c.fs.Chtimes(p, mtime, mtime); err != nil {
		c.writeMessage(StatusActionNotTaken, fmt.Sprintf("could not set mtime for %s: %v", p, err))

		return nil
	}

	c.writeMessage(StatusFileStatus, fmt.Sprintf("modify=%s; %s", ts, param))

	return nil
}

func (c *clientHandler) handleMFMT(param string) error {
	if c.server.settings.DisableMFMT {
		c.writeMessage(StatusCommandNotImplemented, "MFMT is disabled")

		return nil
	}

	fields := strings.SplitN(param, " ", 2)
	if len(fields) != 2 {
		c.writeMessage(StatusSyntaxErrorParameters, "usage: MFMT YYYYMMDDHHMMSS path")

		return nil
	}

	mtime, err := time.Parse(dateFormatMLSx, fields[0])
	if err != nil {
		c.writeMessage(StatusSyntaxErrorParameters, fmt.Sprintf("could not parse timestamp %q: %v", fields[0], err))

		return nil
	}

	p := c.absPath(fields[1])

	if !c.server.driver.Authorizer.HasPerm(c.user, PermModifyTime, p) {
		c.writeMessage(StatusActionNotTaken, "permission denied")

		return nil
	}

	if err := c.fs.Chtimes(p, mtime, mtime); err != nil {
		c.writeMessage(StatusActionNotTaken, fmt.Sprintf("could not set mtime for %s: %v", p, err))

		return nil
	}

	c.writeMessage(StatusFileStatus, fmt.Sprintf("modify=%s; %s", fields[0], fields[1]))

	return nil
}

// handleALLO is a historical no-op: spec.md's authoritative command table
// lists it for compatibility, but nothing in this server preallocates
// storage.
func (c *clientHandler) handleALLO(_ string) error {
	c.writeMessage(StatusOK, "AUTO allocation, no action taken")

	return nil
}

func (c *clientHandler) handleREST(param string) error {
	size, err := strconv.ParseInt(param, 10, 64)
	if err != nil || size < 0 {
		c.writeMessage(StatusActionNotTaken, fmt.Sprintf("could not parse offset: %v", param))

		return nil
	}

	c.paramsMutex.Lock()
	c.ctxRest = size
	c.paramsMutex.Unlock()

	c.writeMessage(StatusFileActionPending, "restart position accepted")

	return nil
}
