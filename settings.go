package ftpd

import (
	"net"
	"time"
)

// TransferType mirrors the FTP TYPE command's argument (spec.md §4.7:
// only A, I, L 7 and L 8 are accepted — "TYPE AN" is rejected).
type TransferType int

// Recognized transfer types.
const (
	TransferTypeASCII TransferType = iota
	TransferTypeBinary
	TransferTypeASCIISevenBit
	TransferTypeASCIIEightBit
)

// TLSRequirement controls whether AUTH TLS is optional, mandatory, or
// implicit (FTPS on a dedicated port, no plaintext phase).
type TLSRequirement int

// TLS modes, grounded on the teacher's TLSRequirement enum.
const (
	ClearOrEncrypted TLSRequirement = iota
	MandatoryEncryption
	ImplicitEncryption
)

// ConcurrencyModel selects how Serve distributes accepted connections
// across OS resources (spec.md §1.1/§9, C9).
type ConcurrencyModel int

// Supported concurrency models. "async" and "process-per-connection" from
// the original spec are deliberately not offered — see SPEC_FULL.md §1.1.
const (
	// ConcurrencyGoroutine runs one goroutine per accepted connection in
	// this process. This is the default.
	ConcurrencyGoroutine ConcurrencyModel = iota
	// ConcurrencyPrefork sets SO_REUSEPORT on the listening socket; when
	// PreforkWorkers > 1, ListenAndServe runs that many accept loops in
	// this process, each on its own SO_REUSEPORT listener. Serve alone
	// runs a single accept loop.
	ConcurrencyPrefork
)

// PortRange is an inclusive range of TCP ports to draw passive listeners
// from (spec.md §4.3 "passive_ports").
type PortRange struct {
	Start int
	End   int
}

// PublicIPResolver returns the public IP to advertise in PASV/EPSV replies
// for a given control connection's local address, used when PublicHost is
// unset and no static masquerade address applies.
type PublicIPResolver func(localAddr net.Addr) (string, error)

// Settings collects every tunable enumerated in spec.md §6's `serve` flags
// and §9's configuration-struct redesign note (replacing the original's
// class-level attribute mutation with one explicit struct passed to the
// constructor). Grounded on the teacher's Settings struct in driver.go,
// extended with the pre-fork/throttling/legacy-MDTM options the teacher
// doesn't have.
type Settings struct {
	// Network
	Listener                 net.Listener
	ListenAddr               string
	PublicHost               string // masquerade_address; empty uses the control socket's local IP
	PublicIPResolver         PublicIPResolver
	PassiveTransferPortRange *PortRange
	ActiveTransferPortNon20  bool
	PermitForeignAddresses   bool // allow PORT/EPRT to a host other than the control peer
	PermitPrivilegedPorts    bool // allow PORT/EPRT to target ports < 1024

	// Timeouts
	IdleTimeout       int // seconds of control-channel inactivity before 421 + close
	ConnectionTimeout int // seconds to establish an active/passive data connection
	StallTimeout      int // not read by the server: data transfers have no inactivity timer

	// Authentication
	AuthFailedDelay time.Duration // default 3s; see Authorizer.AuthFailedDelay
	MaxLoginAttempts int          // not read by the server: every failed PASS disconnects the client

	// Connection limits
	MaxConnections      int // max_cons; 0 disables the cap
	MaxConnectionsPerIP int // max_cons_per_ip; 0 disables the cap

	// Concurrency
	ConcurrencyModel ConcurrencyModel
	PreforkWorkers   int // only meaningful with ConcurrencyPrefork

	// Bandwidth
	MaxUploadSpeed   int64 // bytes/second, 0 disables throttling
	MaxDownloadSpeed int64 // bytes/second, 0 disables throttling

	// Protocol behavior
	Banner              string
	DefaultTransferType TransferType
	UseGMTTimes         bool // report MDTM, LIST and STAT times in GMT rather than local time; MLST/MLSD modify facts are always GMT
	EnableLegacyMDTMSet bool // accept the legacy 3-arg "MDTM timestamp path" setter form
	DisableMLSD         bool
	DisableMLST         bool
	DisableMFMT         bool
	DisableSite         bool
	DisableActiveMode   bool
	DisableSTAT         bool
	DisableSYST         bool
	DisableLISTArgs     bool
	DisableSendfile     bool
	TCPNoDelay          bool

	// TLS
	TLSRequired  TLSRequirement
	CertFile     string
	KeyFile      string
}
