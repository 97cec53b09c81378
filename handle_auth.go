package ftpd

import "fmt"

// handleUSER stores the candidate username and asks for a password; it
// never consults the Authorizer itself (spec.md §4.7 state graph:
// CONNECTED -> WAIT_PASS happens on USER alone).
func (c *clientHandler) handleUSER(param string) error {
	if c.server.settings.TLSRequired == MandatoryEncryption && !c.HasTLSForControl() {
		c.writeMessage(StatusServiceNotAvailable, "TLS is required")

		return nil
	}

	c.paramsMutex.Lock()
	c.username = param
	c.state = stateWaitPass
	c.paramsMutex.Unlock()

	c.writeMessage(StatusUserOK, fmt.Sprintf("User %s OK. Password required", param))

	return nil
}

// handlePASS authenticates via the MainDriver. On success it finishes the
// WAIT_PASS -> AUTHENTICATED transition and assigns the session's VFS; on
// failure it does nothing more — the delayed 530 and disconnect already
// scheduled by Authorizer.ValidateAuthentication (see deliverDelayedAuthFailure)
// will fire after AuthFailedDelay, so writing a second answer here would
// race the client (spec.md §4.6).
func (c *clientHandler) handlePASS(param string) error {
	fs, user, err := c.server.driver.AuthUser(c, c.username, param)
	if err != nil {
		c.logger.Info("authentication failed", "username", c.username)

		return nil
	}

	c.paramsMutex.Lock()
	c.user = user
	c.fs = fs
	c.state = stateAuthenticated
	c.paramsMutex.Unlock()

	msg := "Password ok, continue"
	if login := c.server.driver.Authorizer.GetMsgLogin(user); login != "" {
		msg = login
	}

	c.writeMessage(StatusUserLoggedIn, msg)

	return nil
}

// handleREIN reverts the session to CONNECTED, dropping the current
// identity and filesystem, per spec.md §4.7's REIN transition.
func (c *clientHandler) handleREIN(_ string) error {
	c.transferMu.Lock()
	if err := c.closeTransferLocked(); err != nil {
		c.logger.Warn("problem closing transfer on REIN", "err", err)
	}
	c.transferMu.Unlock()

	c.paramsMutex.Lock()
	c.user = nil
	c.fs = nil
	c.username = ""
	c.state = stateConnected
	c.path = "/"
	c.paramsMutex.Unlock()

	c.writeMessage(StatusServiceReady, "Ready for a new user")

	return nil
}
