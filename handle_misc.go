package ftpd

import (
	"fmt"
	"strings"
	"time"
)

// handleAUTH implements RFC-2228/4217's explicit-TLS upgrade: on success the
// control connection is re-wrapped in tls.Server in place, grounded on the
// teacher's handleAUTH (handle_misc.go).
func (c *clientHandler) handleAUTH(param string) error {
	if !strings.EqualFold(param, "TLS") && !strings.EqualFold(param, "SSL") {
		c.writeMessage(StatusNotImplementedForParam, fmt.Sprintf("unknown AUTH type %q", param))

		return nil
	}

	tlsConfig, err := c.server.driver.GetTLSConfig()
	if err != nil {
		c.writeMessage(StatusActionNotTaken, fmt.Sprintf("cannot get a TLS config: %v", err))

		return nil
	}

	c.writeMessage(StatusAuthAccepted, "AUTH command ok, expecting TLS negotiation")
	c.upgradeControlToTLS(tlsConfig)

	return nil
}

// handlePROT sets the data-channel protection level: "P" (private, TLS) or
// "C" (clear). spec.md's FTPS model only distinguishes those two (no partial
// integrity/confidentiality levels).
func (c *clientHandler) handlePROT(param string) error {
	c.paramsMutex.Lock()
	c.transferTLS = strings.EqualFold(param, "P")
	c.paramsMutex.Unlock()

	c.writeMessage(StatusOK, "OK")

	return nil
}

// handlePBSZ is always answered 200 regardless of the buffer size argument:
// this server never fragments the data channel, so the negotiated protection
// buffer size is meaningless (RFC-2228 allows this for non-fragmenting
// implementations).
func (c *clientHandler) handlePBSZ(_ string) error {
	c.writeMessage(StatusOK, "whatever")

	return nil
}

func (c *clientHandler) handleSYST(_ string) error {
	if c.server.settings.DisableSYST {
		c.writeMessage(StatusCommandNotImplemented, "SYST is disabled")

		return nil
	}

	c.writeMessage(StatusSystemType, "UNIX Type: L8")

	return nil
}

func (c *clientHandler) handleNOOP(_ string) error {
	c.writeMessage(StatusOK, "OK")

	return nil
}

func (c *clientHandler) handleCLNT(param string) error {
	c.paramsMutex.Lock()
	c.clnt = param
	c.paramsMutex.Unlock()

	c.writeMessage(StatusOK, "good to know")

	return nil
}

func (c *clientHandler) handleHELP(_ string) error {
	done := c.multilineAnswer(StatusSystemStatus, "Supported commands")

	for verb := range commandTable {
		c.writeLine(" " + verb)
	}

	done()

	return nil
}

// handleMODE only accepts Stream mode ("S"): Block and Compressed modes are
// obsolete and no client this server targets still negotiates them.
func (c *clientHandler) handleMODE(param string) error {
	if strings.EqualFold(param, "S") {
		c.writeMessage(StatusOK, "mode set to stream")

		return nil
	}

	c.writeMessage(StatusNotImplementedForParam, "only stream mode (MODE S) is supported")

	return nil
}

// handleSTRU only accepts File structure ("F"): Record and Page structures
// are obsolete.
func (c *clientHandler) handleSTRU(param string) error {
	if strings.EqualFold(param, "F") {
		c.writeMessage(StatusOK, "structure set to file")

		return nil
	}

	c.writeMessage(StatusNotImplementedForParam, "only file structure (STRU F) is supported")

	return nil
}

// handleTYPE accepts TYPE A, TYPE I, and TYPE L 7/L 8 (spec.md §4.7 — unlike
// the teacher, which only recognizes I and rejects A outright, see
// DESIGN.md's Open Question decisions).
func (c *clientHandler) handleTYPE(param string) error {
	fields := strings.Fields(param)
	if len(fields) == 0 {
		c.writeMessage(StatusSyntaxErrorParameters, "missing TYPE argument")

		return nil
	}

	var transferType TransferType

	switch strings.ToUpper(fields[0]) {
	case "I":
		transferType = TransferTypeBinary
	case "A":
		transferType = TransferTypeASCII
	case "L":
		if len(fields) != 2 || (fields[1] != "7" && fields[1] != "8") {
			c.writeMessage(StatusNotImplementedForParam, "only L 7 and L 8 are supported")

			return nil
		}

		if fields[1] == "7" {
			transferType = TransferTypeASCIISevenBit
		} else {
			transferType = TransferTypeASCIIEightBit
		}
	default:
		c.writeMessage(StatusNotImplementedForParam, fmt.Sprintf("unknown TYPE %q", param))

		return nil
	}

	c.paramsMutex.Lock()
	c.currentTransferType = transferType
	c.paramsMutex.Unlock()

	c.writeMessage(StatusOK, fmt.Sprintf("type set to %s", param))

	return nil
}

func (c *clientHandler) handleQUIT(_ string) error {
	msg := "Goodbye"
	if c.user != nil {
		if q := c.server.driver.Authorizer.GetMsgQuit(c.user); q != "" {
			msg = q
		}
	}

	c.writeMessage(StatusClosingControlConn, msg)
	c.disconnect()
	c.reader = nil

	return nil
}

// handleABOR interrupts an in-flight data transfer: the transfer goroutine
// notices isTransferAborted (via isCommandAborted) and returns without
// writing its own reply, then ABOR answers once on the control channel
// with 226. No 426 reply is sent for the interrupted transfer itself.
func (c *clientHandler) handleABOR(_ string) error {
	c.transferMu.Lock()

	hadTransfer := c.transfer != nil
	c.isTransferAborted = true

	if err := c.closeTransferLocked(); err != nil {
		c.logger.Warn("problem closing transfer on ABOR", "err", err)
	}

	c.transferMu.Unlock()

	c.transferWg.Wait()

	c.transferMu.Lock()
	c.isTransferAborted = false
	c.transferMu.Unlock()

	if hadTransfer {
		c.writeMessage(StatusClosingDataConn, "ABOR successful; closing transfer connection")
	} else {
		c.writeMessage(StatusDataConnectionOpen, "No transfer to abort")
	}

	return nil
}

func (c *clientHandler) handleOPTS(param string) error {
	fields := strings.SplitN(param, " ", 2)
	verb := strings.ToUpper(fields[0])

	switch verb {
	case "UTF8":
		c.writeMessage(StatusOK, "UTF8 is always on")

		return nil
	case "MLST":
		return c.handleOPTSMLST(fields)
	}

	c.writeMessage(StatusSyntaxErrorNotRecognised, "don't know this option")

	return nil
}

// handleOPTSMLST implements "OPTS MLST fact1;fact2;...;" (spec.md §5):
// reconfigures the session's default MLSD/MLST fact set to the intersection
// of the request and MLSxFacts.
func (c *clientHandler) handleOPTSMLST(fields []string) error {
	if len(fields) != 2 {
		c.paramsMutex.Lock()
		c.selectedFacts = nil
		c.paramsMutex.Unlock()

		c.writeMessage(StatusOK, "MLST OPTS "+strings.Join(MLSxFacts, ";")+";")

		return nil
	}

	var selected []string

	for _, requested := range strings.Split(fields[1], ";") {
		requested = strings.ToLower(strings.TrimSpace(requested))
		if requested == "" {
			continue
		}

		for _, known := range MLSxFacts {
			if known == requested {
				selected = append(selected, known)

				break
			}
		}
	}

	c.paramsMutex.Lock()
	c.selectedFacts = selected
	c.paramsMutex.Unlock()

	c.writeMessage(StatusOK, "MLST OPTS "+strings.Join(selected, ";")+";")

	return nil
}

func (c *clientHandler) handleSTAT(param string) error {
	if param == "" {
		return c.handleSTATServer()
	}

	return c.handleSTATFile(param)
}

func (c *clientHandler) handleSTATServer() error {
	if c.server.settings.DisableSTAT {
		c.writeMessage(StatusCommandNotImplemented, "STAT is disabled")

		return nil
	}

	done := c.multilineAnswer(StatusSystemStatus, "Server status")

	duration := time.Now().UTC().Sub(c.connectedAt)
	duration -= duration % time.Second

	c.writeLine(fmt.Sprintf("Connected to %s from %s for %s",
		c.server.settings.ListenAddr, c.conn.RemoteAddr(), duration))

	if c.user != nil {
		c.writeLine(fmt.Sprintf("Logged in as %s", c.user.Name))
	} else {
		c.writeLine("Not logged in yet")
	}

	c.writeLine(c.banner)

	done()

	return nil
}

func (c *clientHandler) handleSTATFile(param string) error {
	dirPath, entries, err := c.listEntries(param)
	if err != nil {
		info, statErr := c.fs.Stat(c.absPath(param))
		if statErr != nil {
			c.writeMessage(StatusActionNotTaken, fmt.Sprintf("could not stat %s: %v", param, statErr))

			return nil
		}

		done := c.multilineAnswer(StatusFileStatus, fmt.Sprintf("status of %s", param))
		c.writeLine(" " + FormatLIST(info.Name(), info, time.Now(), c.server.settings.UseGMTTimes))
		done()

		return nil
	}

	done := c.multilineAnswer(StatusDirectoryStatus, fmt.Sprintf("status of %s", dirPath))
	c.writeLine(RenderLIST(entries, time.Now(), c.server.settings.UseGMTTimes))
	done()

	return nil
}

// handleFEAT lists every extension this server implements, grounded on the
// teacher's handleFEAT but restricted to what spec.md §5 mandates: UTF8,
// TVFS, MDTM, MLST with facts, SIZE, REST STREAM, AUTH TLS/SSL, PBSZ, PROT,
// EPSV.
func (c *clientHandler) handleFEAT(_ string) error {
	done := c.multilineAnswer(StatusSystemStatus, "Extensions supported")

	features := []string{
		"UTF8",
		"TVFS",
		"MDTM",
		"SIZE",
		"REST STREAM",
		"PBSZ",
		"PROT",
		"EPSV",
	}

	if _, err := c.server.driver.GetTLSConfig(); err == nil {
		features = append(features, "AUTH TLS", "AUTH SSL")
	}

	if !c.server.settings.DisableMLST {
		var facts strings.Builder

		facts.WriteString("MLST ")

		for _, f := range MLSxFacts {
			facts.WriteString(f)
			facts.WriteByte('*')
			facts.WriteByte(';')
		}

		features = append(features, facts.String())
	}

	for _, f := range features {
		c.writeLine(" " + f)
	}

	done()

	return nil
}
