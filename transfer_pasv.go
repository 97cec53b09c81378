package ftpd

import (
	"crypto/tls"
	"errors"
	"fmt"
	"math/rand"
	"net"
	"time"

	"github.com/coriolis-labs/ftpd/log"
)

// ErrNoAvailableListeningPort is returned when no port in the configured
// passive range could be bound.
var ErrNoAvailableListeningPort = errors.New("could not find any port to listen to")

type passiveTransferHandler struct {
	tcpListener *net.TCPListener
	listener    net.Listener
	port        int
	connection  net.Conn
	settings    *Settings
	info        string
	logger      log.Logger
}

func (c *clientHandler) findListenerWithinPortRange(portRange *PortRange) (*net.TCPListener, error) {
	attempts := portRange.End - portRange.Start
	if attempts < 10 {
		attempts = 10
	} else if attempts > 1000 {
		attempts = 1000
	}

	for i := 0; i < attempts; i++ {
		port := portRange.Start + rand.Intn(portRange.End-portRange.Start+1) // nolint:gosec

		laddr, err := net.ResolveTCPAddr("tcp", fmt.Sprintf("0.0.0.0:%d", port))
		if err != nil {
			return nil, fmt.Errorf("could not resolve port %d: %w", port, err)
		}

		listener, err := net.ListenTCP("tcp", laddr)
		if err == nil {
			return listener, nil
		}
	}

	c.logger.Warn("could not find any free passive port", "attempts", attempts,
		"rangeStart", portRange.Start, "rangeEnd", portRange.End)

	return nil, ErrNoAvailableListeningPort
}

func (c *clientHandler) handlePASV(param string) error {
	command := c.GetLastCommand()

	var tcpListener *net.TCPListener

	var err error

	if portRange := c.server.settings.PassiveTransferPortRange; portRange != nil {
		tcpListener, err = c.findListenerWithinPortRange(portRange)
	} else {
		addr, _ := net.ResolveTCPAddr("tcp", ":0")
		tcpListener, err = net.ListenTCP("tcp", addr)
	}

	if err != nil {
		c.logger.Error("could not listen for passive connection", "err", err)
		c.writeMessage(StatusServiceNotAvailable, fmt.Sprintf("could not listen for passive connection: %v", err))

		return nil
	}

	var listener net.Listener = tcpListener

	if c.HasTLSForTransfers() || c.server.settings.TLSRequired == ImplicitEncryption {
		tlsConfig, tlsErr := c.server.driver.GetTLSConfig()
		if tlsErr != nil {
			c.writeMessage(StatusServiceNotAvailable, fmt.Sprintf("cannot get a TLS config: %v", tlsErr))

			return nil
		}

		listener = tls.NewListener(tcpListener, tlsConfig)
	}

	p := &passiveTransferHandler{
		tcpListener: tcpListener,
		listener:    listener,
		port:        tcpListener.Addr().(*net.TCPAddr).Port,
		settings:    c.server.settings,
		logger:      c.logger,
	}

	if command == "PASV" {
		p1 := p.port / 256
		p2 := p.port - p1*256

		ip, err := c.server.settings.PublicIPFor(c.conn.LocalAddr())
		if err != nil {
			c.writeMessage(StatusServiceNotAvailable, fmt.Sprintf("could not determine public address: %v", err))

			return nil
		}

		quads := ipv4Quads(ip)
		c.writeMessage(StatusEnteringPASV,
			fmt.Sprintf("Entering Passive Mode (%s,%s,%s,%s,%d,%d)", quads[0], quads[1], quads[2], quads[3], p1, p2))
	} else {
		c.writeMessage(StatusEnteringEPSV, fmt.Sprintf("Entering Extended Passive Mode (|||%d|)", p.port))
	}

	c.transferMu.Lock()
	c.transfer = p
	c.transferMu.Unlock()

	return nil
}

func ipv4Quads(ip string) [4]string {
	var quads [4]string

	parts := 0

	start := 0

	for i := 0; i <= len(ip) && parts < 4; i++ {
		if i == len(ip) || ip[i] == '.' {
			quads[parts] = ip[start:i]
			start = i + 1
			parts++
		}
	}

	return quads
}

func (p *passiveTransferHandler) connectionWait(wait time.Duration) (net.Conn, error) {
	if p.connection == nil {
		if err := p.tcpListener.SetDeadline(time.Now().Add(wait)); err != nil {
			return nil, fmt.Errorf("failed to set deadline: %w", err)
		}

		var err error

		p.connection, err = p.listener.Accept()
		if err != nil {
			return nil, err
		}
	}

	return p.connection, nil
}

func (p *passiveTransferHandler) SetInfo(info string) { p.info = info }
func (p *passiveTransferHandler) GetInfo() string     { return p.info }

func (p *passiveTransferHandler) Open() (net.Conn, error) {
	timeout := time.Duration(p.settings.ConnectionTimeout) * time.Second

	return p.connectionWait(timeout)
}

func (p *passiveTransferHandler) Close() error {
	if p.tcpListener != nil {
		if err := p.tcpListener.Close(); err != nil {
			p.logger.Warn("problem closing passive listener", "err", err)
		}
	}

	if p.connection != nil {
		if err := p.connection.Close(); err != nil {
			p.logger.Warn("problem closing passive connection", "err", err)
		}
	}

	return nil
}
