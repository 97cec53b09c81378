package ftpd

// CommandDescription associates a command verb with the handler that
// implements it and the scheduling rules the reactor applies around it,
// grounded on the teacher's CommandDescription/commandsMap (server.go).
type CommandDescription struct {
	Open            bool // usable before authentication
	TransferRelated bool // opens a data connection; runs in its own goroutine so ABOR can interrupt it
	SpecialAction   bool // bypasses the transferWg wait (ABOR, STAT, QUIT)
	Fn              func(*clientHandler, string) error
}

// commandTable is shared across every *Server instance, like the
// teacher's package-level commandsMap — there's no reason FTP verbs would
// behave differently between two servers in the same process.
var commandTable = map[string]*CommandDescription{
	// Authentication
	"USER": {Fn: (*clientHandler).handleUSER, Open: true},
	"PASS": {Fn: (*clientHandler).handlePASS, Open: true},
	"REIN": {Fn: (*clientHandler).handleREIN, Open: true},

	// TLS (RFC-2228/4217)
	"AUTH": {Fn: (*clientHandler).handleAUTH, Open: true},
	"PROT": {Fn: (*clientHandler).handlePROT, Open: true},
	"PBSZ": {Fn: (*clientHandler).handlePBSZ, Open: true},

	// Misc (RFC-2389 FEAT/OPTS)
	"FEAT": {Fn: (*clientHandler).handleFEAT, Open: true},
	"SYST": {Fn: (*clientHandler).handleSYST, Open: true},
	"NOOP": {Fn: (*clientHandler).handleNOOP, Open: true},
	"OPTS": {Fn: (*clientHandler).handleOPTS, Open: true},
	"QUIT": {Fn: (*clientHandler).handleQUIT, Open: true, SpecialAction: true},
	"ABOR": {Fn: (*clientHandler).handleABOR, SpecialAction: true},
	"HELP": {Fn: (*clientHandler).handleHELP, Open: true},
	"CLNT": {Fn: (*clientHandler).handleCLNT, Open: true},

	// File access (RFC-3659)
	"SIZE": {Fn: (*clientHandler).handleSIZE},
	"STAT": {Fn: (*clientHandler).handleSTAT, SpecialAction: true},
	"MDTM": {Fn: (*clientHandler).handleMDTM},
	"MFMT": {Fn: (*clientHandler).handleMFMT},
	"RETR": {Fn: (*clientHandler).handleRETR, TransferRelated: true},
	"STOR": {Fn: (*clientHandler).handleSTOR, TransferRelated: true},
	"STOU": {Fn: (*clientHandler).handleSTOU, TransferRelated: true},
	"APPE": {Fn: (*clientHandler).handleAPPE, TransferRelated: true},
	"DELE": {Fn: (*clientHandler).handleDELE},
	"RNFR": {Fn: (*clientHandler).handleRNFR},
	"RNTO": {Fn: (*clientHandler).handleRNTO},
	"ALLO": {Fn: (*clientHandler).handleALLO},
	"REST": {Fn: (*clientHandler).handleREST},
	"SITE": {Fn: (*clientHandler).handleSITE},

	// Directory handling
	"CWD":  {Fn: (*clientHandler).handleCWD},
	"XCWD": {Fn: (*clientHandler).handleCWD},
	"PWD":  {Fn: (*clientHandler).handlePWD},
	"XPWD": {Fn: (*clientHandler).handlePWD},
	"CDUP": {Fn: (*clientHandler).handleCDUP},
	"XCUP": {Fn: (*clientHandler).handleCDUP},
	"MKD":  {Fn: (*clientHandler).handleMKD},
	"XMKD": {Fn: (*clientHandler).handleMKD},
	"RMD":  {Fn: (*clientHandler).handleRMD},
	"XRMD": {Fn: (*clientHandler).handleRMD},
	"NLST": {Fn: (*clientHandler).handleNLST, TransferRelated: true},
	"LIST": {Fn: (*clientHandler).handleLIST, TransferRelated: true},
	"MLSD": {Fn: (*clientHandler).handleMLSD, TransferRelated: true},
	"MLST": {Fn: (*clientHandler).handleMLST},

	// Connection handling (RFC-2428 EPRT/EPSV)
	"TYPE": {Fn: (*clientHandler).handleTYPE},
	"MODE": {Fn: (*clientHandler).handleMODE},
	"STRU": {Fn: (*clientHandler).handleSTRU},
	"PASV": {Fn: (*clientHandler).handlePASV},
	"EPSV": {Fn: (*clientHandler).handlePASV},
	"PORT": {Fn: (*clientHandler).handlePORT},
	"EPRT": {Fn: (*clientHandler).handlePORT},
}

var specialAttentionCommands = []string{"ABOR", "STAT", "QUIT"}
