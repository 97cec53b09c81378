package ftpd

import (
	"crypto/tls"
	"net"
	"os"

	"github.com/spf13/afero"
)

// MainDriver authenticates users and supplies each session with a
// filesystem and TLS material, grounded on the teacher's MainDriver
// interface (driver.go) but built around this module's Authorizer/VFS
// instead of delegating authentication to the embedder entirely.
type MainDriver struct {
	Settings   *Settings
	Authorizer *Authorizer
	// NewFs builds the afero.Fs a user's VFS is jailed to, given the
	// resolved *User. Drivers that serve every user from one shared tree
	// can ignore the argument.
	NewFs func(u *User) (afero.Fs, error)
	// TLSConfig, if non-nil, is returned verbatim by GetTLSConfig.
	// Drivers needing per-connection certificate rotation should wrap
	// this struct rather than mutate the field concurrently.
	TLSConfig *tls.Config
}

// GetSettings returns the driver's settings, filling in spec.md-mandated
// defaults the same way the teacher's loadSettings does.
func (d *MainDriver) GetSettings() (*Settings, error) {
	if d.Settings.ListenAddr == "" && d.Settings.Listener == nil {
		d.Settings.ListenAddr = "0.0.0.0:2121"
	}

	if d.Settings.IdleTimeout == 0 {
		d.Settings.IdleTimeout = 900
	}

	if d.Settings.ConnectionTimeout == 0 {
		d.Settings.ConnectionTimeout = 30
	}

	if d.Settings.Banner == "" {
		d.Settings.Banner = "Go FTP server ready"
	}

	if d.Settings.AuthFailedDelay == 0 {
		d.Settings.AuthFailedDelay = d.Authorizer.AuthFailedDelay
	}

	return d.Settings, nil
}

// ClientConnected returns the welcome banner for a newly accepted
// connection; spec.md §4.7 "On connect, server emits 220 <banner>".
func (d *MainDriver) ClientConnected(cc *clientHandler) (string, error) {
	return d.Settings.Banner, nil
}

// ClientDisconnected is a hook point for connection-count bookkeeping;
// server.go already tracks counts, so the default driver does nothing.
func (d *MainDriver) ClientDisconnected(cc *clientHandler) {}

// AuthUser validates credentials via the Authorizer and, on success,
// builds a VFS jailed to the user's home directory.
func (d *MainDriver) AuthUser(cc *clientHandler, user, pass string) (*VFS, *User, error) {
	result := d.Authorizer.ValidateAuthentication(user, pass, func(r AuthResult) {
		cc.deliverDelayedAuthFailure(r)
	})

	if result.Failed != nil {
		return nil, nil, result.Failed
	}

	fs := d.NewFs
	if fs == nil {
		fs = func(*User) (afero.Fs, error) { return afero.NewOsFs(), nil }
	}

	underlying, err := fs(result.User)
	if err != nil {
		return nil, nil, newDriverError("could not build filesystem", err)
	}

	return NewVFS(underlying, result.User.HomeDir), result.User, nil
}

// GetTLSConfig returns the driver's TLS material, or an error if AUTH TLS
// hasn't been configured.
func (d *MainDriver) GetTLSConfig() (*tls.Config, error) {
	if d.TLSConfig == nil {
		return nil, ErrTLSRequired
	}

	return d.TLSConfig, nil
}

// ClientDriverExtensionFileList is an extension interface for a driver
// that can hand back a pre-materialized directory listing, mirroring the
// teacher's extension-interface pattern (driver.go). Nothing in this
// package consults it: listings always go through VFS.ReadDir.
type ClientDriverExtensionFileList interface {
	ReadDir(name string) ([]os.FileInfo, error)
}

// ClientDriverExtensionAvailableSpace is an extension interface reporting
// free space for a directory. No command in commandTable consults it
// (there is no AVBL handler).
type ClientDriverExtensionAvailableSpace interface {
	GetAvailableSpace(dirName string) (int64, error)
}

// PublicIPFor resolves the IP to advertise in PASV/EPSV replies, per
// spec.md §4.3's masquerade_address precedence: static PublicHost first,
// then a PublicIPResolver, then the control connection's own local
// address.
func (s *Settings) PublicIPFor(localAddr net.Addr) (string, error) {
	if s.PublicHost != "" {
		return s.PublicHost, nil
	}

	if s.PublicIPResolver != nil {
		return s.PublicIPResolver(localAddr)
	}

	host, _, err := net.SplitHostPort(localAddr.String())

	return host, err
}
