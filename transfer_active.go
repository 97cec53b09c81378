package ftpd

import (
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// ErrRemoteAddrFormat is returned when a PORT/EPRT argument is malformed.
var ErrRemoteAddrFormat = errors.New("remote address has a bad format")

func (c *clientHandler) handlePORT(param string) error {
	if c.server.settings.DisableActiveMode {
		c.writeMessage(StatusServiceNotAvailable, "PORT/EPRT command is disabled")

		return nil
	}

	var raddr *net.TCPAddr

	var err error

	if c.GetLastCommand() == "EPRT" {
		raddr, err = parseExtendedAddr(param)
	} else {
		raddr, err = parseRemoteAddr(param)
	}

	if err != nil {
		c.writeMessage(StatusSyntaxErrorNotRecognised, fmt.Sprintf("problem parsing PORT: %v", err))

		return nil
	}

	if !c.server.settings.PermitForeignAddresses {
		remoteHost, _, _ := net.SplitHostPort(c.conn.RemoteAddr().String())
		if remoteHost != raddr.IP.String() {
			c.writeMessage(StatusActionNotTaken, "PORT/EPRT to a foreign address is not permitted")

			return nil
		}
	}

	if !c.server.settings.PermitPrivilegedPorts && raddr.Port < 1024 {
		c.writeMessage(StatusActionNotTaken, "PORT/EPRT to a privileged port is not permitted")

		return nil
	}

	var tlsConfig *tls.Config

	if c.transferTLS || c.server.settings.TLSRequired == ImplicitEncryption {
		tlsConfig, err = c.server.driver.GetTLSConfig()
		if err != nil {
			c.writeMessage(StatusServiceNotAvailable, fmt.Sprintf("cannot get a TLS config for active connection: %v", err))

			return nil
		}
	}

	c.writeMessage(StatusOK, "PORT command successful")

	c.transferMu.Lock()
	c.transfer = &activeTransferHandler{
		raddr:     raddr,
		settings:  c.server.settings,
		tlsConfig: tlsConfig,
	}
	c.transferMu.Unlock()

	return nil
}

type activeTransferHandler struct {
	raddr     *net.TCPAddr
	conn      net.Conn
	settings  *Settings
	tlsConfig *tls.Config
	info      string
}

func (a *activeTransferHandler) Open() (net.Conn, error) {
	timeout := time.Duration(a.settings.ConnectionTimeout) * time.Second
	dialer := &net.Dialer{Timeout: timeout}

	if !a.settings.ActiveTransferPortNon20 {
		dialer.LocalAddr, _ = net.ResolveTCPAddr("tcp", ":20")
	}

	conn, err := dialer.Dial("tcp", a.raddr.String())
	if err != nil {
		return nil, fmt.Errorf("could not establish active connection: %w", err)
	}

	if a.tlsConfig != nil {
		conn = tls.Server(conn, a.tlsConfig)
	}

	a.conn = conn

	return a.conn, nil
}

func (a *activeTransferHandler) Close() error {
	if a.conn != nil {
		return a.conn.Close()
	}

	return nil
}

func (a *activeTransferHandler) SetInfo(info string) { a.info = info }
func (a *activeTransferHandler) GetInfo() string     { return a.info }

var remoteAddrRegex = regexp.MustCompile(`^([0-9]{1,3},){5}[0-9]{1,3}$`)

// parseRemoteAddr parses the legacy comma-quad PORT argument:
// "192,168,150,80,14,178" -> 192.168.150.80:3762.
func parseRemoteAddr(param string) (*net.TCPAddr, error) {
	if !remoteAddrRegex.MatchString(param) {
		return nil, fmt.Errorf("could not parse %q: %w", param, ErrRemoteAddrFormat)
	}

	parts := strings.Split(param, ",")
	ip := strings.Join(parts[0:4], ".")

	p1, err := strconv.Atoi(parts[4])
	if err != nil {
		return nil, err
	}

	p2, err := strconv.Atoi(parts[5])
	if err != nil {
		return nil, err
	}

	port := p1<<8 + p2

	return net.ResolveTCPAddr("tcp", fmt.Sprintf("%s:%d", ip, port))
}

// parseExtendedAddr parses the RFC-2428 EPRT argument form
// "|af|addr|port|", e.g. "|1|132.235.1.2|6275|" (IPv4) or
// "|2|::1|6275|" (IPv6). The teacher never implements EPRT parsing at all
// (PORT and EPRT both route through the legacy comma-quad parser, which
// silently fails on every real EPRT argument); this is this module's own
// addition.
func parseExtendedAddr(param string) (*net.TCPAddr, error) {
	if len(param) < 3 {
		return nil, fmt.Errorf("could not parse %q: %w", param, ErrRemoteAddrFormat)
	}

	delim := param[0:1]

	fields := strings.Split(strings.Trim(param, delim), delim)
	if len(fields) != 3 {
		return nil, fmt.Errorf("could not parse %q: %w", param, ErrRemoteAddrFormat)
	}

	af, addr, portStr := fields[0], fields[1], fields[2]

	switch af {
	case "1", "2":
	default:
		return nil, fmt.Errorf("unsupported address family %q: %w", af, ErrRemoteAddrFormat)
	}

	port, err := strconv.Atoi(portStr)
	if err != nil {
		return nil, fmt.Errorf("could not parse port %q: %w", portStr, err)
	}

	ip := net.ParseIP(addr)
	if ip == nil {
		return nil, fmt.Errorf("could not parse address %q: %w", addr, ErrRemoteAddrFormat)
	}

	return &net.TCPAddr{IP: ip, Port: port}, nil
}
