package ftpd

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// handleSITE dispatches SITE subcommands, grounded on the teacher's
// handleSITE (handle_misc.go) but restricted to what spec.md names: CHMOD
// and MFMT.
func (c *clientHandler) handleSITE(param string) error {
	if c.server.settings.DisableSite {
		c.writeMessage(StatusSyntaxErrorNotRecognised, "SITE support is disabled")

		return nil
	}

	fields := strings.SplitN(strings.TrimSpace(param), " ", 2)
	if len(fields) != 2 {
		c.writeMessage(StatusSyntaxErrorNotRecognised, "SITE subcommand not understood")

		return nil
	}

	switch strings.ToUpper(fields[0]) {
	case "CHMOD":
		return c.handleSiteCHMOD(fields[1])
	case "MFMT":
		return c.handleSiteMFMT(fields[1])
	default:
		c.writeMessage(StatusSyntaxErrorNotRecognised, fmt.Sprintf("unknown SITE subcommand %q", fields[0]))

		return nil
	}
}

// handleSiteCHMOD implements "SITE CHMOD <octal> <path>", requiring the
// PermChmod ('M') permission letter (spec.md §3).
func (c *clientHandler) handleSiteCHMOD(param string) error {
	fields := strings.SplitN(param, " ", 2)
	if len(fields) != 2 {
		c.writeMessage(StatusSyntaxErrorParameters, "usage: SITE CHMOD mode path")

		return nil
	}

	mode, err := strconv.ParseUint(fields[0], 8, 32)
	if err != nil {
		c.writeMessage(StatusSyntaxErrorParameters, fmt.Sprintf("could not parse mode %q: %v", fields[0], err))

		return nil
	}

	p := c.absPath(fields[1])

	if !c.server.driver.Authorizer.HasPerm(c.user, PermChmod, p) {
		c.writeMessage(StatusActionNotTaken, "permission denied")

		return nil
	}

	if err := c.fs.Chmod(p, os.FileMode(mode)); err != nil {
		c.writeMessage(StatusActionNotTaken, fmt.Sprintf("could not chmod %s: %v", p, err))

		return nil
	}

	c.writeMessage(StatusFileOK, fmt.Sprintf("SITE CHMOD command successful on %s", p))

	return nil
}

// handleSiteMFMT implements "SITE MFMT YYYYMMDDHHMMSS path" (spec.md's SITE
// command table), requiring the PermModifyTime ('T') permission letter.
// This is distinct from the standalone MFMT verb (handle_files.go), which
// some clients send without the SITE prefix; both end up setting the same
// mtime through the same VFS call.
func (c *clientHandler) handleSiteMFMT(param string) error {
	fields := strings.SplitN(param, " ", 2)
	if len(fields) != 2 {
		c.writeMessage(StatusSyntaxErrorParameters, "usage: SITE MFMT YYYYMMDDHHMMSS path")

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

	c.writeMessage(StatusFileOK, fmt.Sprintf("modify=%s; %s", fields[0], fields[1]))

	return nil
}
