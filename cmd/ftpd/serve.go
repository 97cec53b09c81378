package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/coriolis-labs/ftpd"
	"github.com/coriolis-labs/ftpd/internal/osdriver"
	"github.com/coriolis-labs/ftpd/log/logrusadapter"
)

// newRootCmd builds the cobra command tree: "serve" is the default action
// (spec.md §6), with every flag it enumerates bound through viper so a
// config file (TOML/YAML/JSON, -c/--config) can supply the same settings.
// The flags live on root as persistent flags so both a bare invocation and
// the explicit "serve" subcommand read from the same parsed set.
func newRootCmd() *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix("FTPD")
	v.AutomaticEnv()

	runE := func(cmd *cobra.Command, args []string) error {
		return runServe(v)
	}

	root := &cobra.Command{
		Use:          "ftpd",
		Short:        "A portable FTP(S) server",
		SilenceUsage: true,
		RunE:         runE,
	}
	root.PersistentFlags().StringP("config", "c", "", "configuration file (TOML/YAML/JSON)")
	_ = v.BindPFlag("config", root.PersistentFlags().Lookup("config"))

	bindServeFlags(root, v)

	serve := &cobra.Command{
		Use:          "serve",
		Short:        "Run the FTP(S) server (default action)",
		SilenceUsage: true,
		RunE:         runE,
	}
	root.AddCommand(serve)

	return root
}

// bindServeFlags registers every flag spec.md §6 names as a persistent flag
// on cmd and binds it into v under the same name, so RunE can read settings
// uniformly whether they came from a flag, an env var, or a config file.
func bindServeFlags(cmd *cobra.Command, v *viper.Viper) {
	flags := cmd.PersistentFlags()

	flags.StringP("interface", "i", "0.0.0.0", "address to listen on")
	flags.IntP("port", "p", 2121, "port to listen on")
	flags.BoolP("write", "w", false, "grant write permission to the anonymous user")
	flags.StringP("directory", "d", ".", "directory to serve")
	flags.StringP("nat-address", "n", "", "public address to advertise for passive/EPSV replies")
	flags.StringP("range", "r", "", "passive port range, FROM-TO")
	flags.BoolP("debug", "D", false, "enable debug logging")
	flags.StringP("username", "u", "", "additional named user, paired with --password")
	flags.StringP("password", "P", "", "password for --username")
	flags.String("concurrency", "goroutine", "concurrency model: goroutine, pre-fork (pre-fork only sets SO_REUSEPORT; this command runs one accept loop)")
	flags.Bool("tls", false, "enable explicit AUTH TLS (implicit FTPS is not turned on)")
	flags.String("keyfile", "", "PEM private key file (cert assumed to also hold the key if omitted)")
	flags.String("certfile", "", "PEM certificate file")
	flags.Bool("tls-control-required", false, "require TLS on the control connection")
	flags.Bool("tls-data-required", false, "require TLS on data connections")
	flags.Int("timeout", 900, "idle timeout, in seconds")
	flags.String("banner", "", "welcome banner text")
	flags.Bool("permit-foreign-addresses", false, "allow PORT/EPRT to a host other than the control peer")
	flags.Bool("permit-privileged-ports", false, "allow PORT/EPRT to target ports below 1024")
	flags.String("encoding", "utf8", "path encoding (informational; UTF8 is always on)")
	flags.Bool("use-localtime", false, "report MDTM/LIST/STAT times in local time instead of GMT (MLST/MLSD stay GMT)")
	flags.Bool("disable-sendfile", false, "disable the sendfile(2) fast path")
	flags.Int("max-cons", 0, "maximum simultaneous connections, 0 disables the cap")
	flags.Int("max-cons-per-ip", 0, "maximum simultaneous connections per client address, 0 disables the cap")
	flags.Int("max-login-attempts", 0, "maximum consecutive auth failures (not enforced: every failed PASS disconnects)")

	for _, name := range []string{
		"interface", "port", "write", "directory", "nat-address", "range", "debug",
		"username", "password", "concurrency", "tls", "keyfile", "certfile",
		"tls-control-required", "tls-data-required", "timeout", "banner",
		"permit-foreign-addresses", "permit-privileged-ports", "encoding",
		"use-localtime", "disable-sendfile", "max-cons", "max-cons-per-ip",
		"max-login-attempts",
	} {
		_ = v.BindPFlag(name, flags.Lookup(name))
	}
}

func runServe(v *viper.Viper) error {
	if cfgFile := v.GetString("config"); cfgFile != "" {
		v.SetConfigFile(cfgFile)

		if err := v.ReadInConfig(); err != nil {
			return &exitError{code: 1, err: fmt.Errorf("reading config %s: %w", cfgFile, err)}
		}
	}

	portRange, err := parsePortRange(v.GetString("range"))
	if err != nil {
		return &exitError{code: 1, err: err}
	}

	users, err := usersFromFlags(v)
	if err != nil {
		return &exitError{code: 1, err: err}
	}

	driver, err := osdriver.New(osdriver.Config{
		Directory: v.GetString("directory"),
		Users:     users,
		AnonWrite: v.GetBool("write"),
		CertFile:  v.GetString("certfile"),
		KeyFile:   v.GetString("keyfile"),
		EnableTLS: v.GetBool("tls"),
	})
	if err != nil {
		return &exitError{code: 1, err: err}
	}

	driver.Settings = buildSettings(v, portRange)

	logger := logrusadapter.NewDefault()
	if v.GetBool("debug") {
		logger = logrusadapter.NewWithLevel(logrus.DebugLevel)
	}

	server := ftpd.NewServer(driver)
	server.Logger = logger

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	if err := server.Listen(); err != nil {
		return &exitError{code: 2, err: err}
	}

	serveErr := make(chan error, 1)

	go func() { serveErr <- server.Serve() }()

	select {
	case sig := <-done:
		_ = server.Stop()

		if sig == os.Interrupt {
			return &exitError{code: 130, err: fmt.Errorf("interrupted")}
		}

		return &exitError{code: 130, err: fmt.Errorf("terminated")}
	case err := <-serveErr:
		if err != nil {
			return &exitError{code: 1, err: err}
		}

		return nil
	}
}

func parsePortRange(s string) (*ftpd.PortRange, error) {
	if s == "" {
		return nil, nil
	}

	var start, end int

	if _, err := fmt.Sscanf(s, "%d-%d", &start, &end); err != nil {
		return nil, fmt.Errorf("invalid --range %q, want FROM-TO: %w", s, err)
	}

	return &ftpd.PortRange{Start: start, End: end}, nil
}

func usersFromFlags(v *viper.Viper) ([]osdriver.UserConfig, error) {
	username := v.GetString("username")
	if username == "" {
		return nil, nil
	}

	return []osdriver.UserConfig{{
		Name:     username,
		Password: v.GetString("password"),
		Perm:     "elradfmwMT",
	}}, nil
}

func buildSettings(v *viper.Viper, portRange *ftpd.PortRange) *ftpd.Settings {
	// The core only models one TLSRequirement, not separate control/data
	// knobs; either flag being set tightens it to MandatoryEncryption
	// (see DESIGN.md).
	tlsRequired := ftpd.ClearOrEncrypted
	if v.GetBool("tls-control-required") || v.GetBool("tls-data-required") {
		tlsRequired = ftpd.MandatoryEncryption
	}

	concurrency := ftpd.ConcurrencyGoroutine
	if v.GetString("concurrency") == "pre-fork" {
		concurrency = ftpd.ConcurrencyPrefork
	}

	return &ftpd.Settings{
		ListenAddr:               fmt.Sprintf("%s:%d", v.GetString("interface"), v.GetInt("port")),
		PublicHost:               v.GetString("nat-address"),
		PassiveTransferPortRange: portRange,
		PermitForeignAddresses:   v.GetBool("permit-foreign-addresses"),
		PermitPrivilegedPorts:    v.GetBool("permit-privileged-ports"),
		IdleTimeout:              v.GetInt("timeout"),
		MaxConnections:           v.GetInt("max-cons"),
		MaxConnectionsPerIP:      v.GetInt("max-cons-per-ip"),
		MaxLoginAttempts:         v.GetInt("max-login-attempts"),
		ConcurrencyModel:         concurrency,
		Banner:                   v.GetString("banner"),
		UseGMTTimes:              !v.GetBool("use-localtime"),
		DisableSendfile:          v.GetBool("disable-sendfile"),
		TLSRequired:              tlsRequired,
		AuthFailedDelay:          3 * time.Second,
	}
}
