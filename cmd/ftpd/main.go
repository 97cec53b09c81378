// Command ftpd runs a standalone FTP(S) server, grounded on the teacher's
// main.go (flag parsing → driver construction → ListenAndServe) but
// rebuilt around spf13/cobra + spf13/viper instead of the standard
// library's flag package, matching how the rest of the pack (rclone's
// cmd/serve/* subcommands, nabbar-golib) structures server CLIs.
package main

import (
	"errors"
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(exitCodeFor(err))
	}
}

// exitCodeFor maps the error returned by the root command to one of
// spec.md §6's exit codes (0 normal shutdown, 1 fatal configuration error,
// 2 bind failure, 130 signal-terminated); anything else defaults to 1.
func exitCodeFor(err error) int {
	var exitErr *exitError
	if errors.As(err, &exitErr) {
		return exitErr.code
	}

	fmt.Fprintln(os.Stderr, err)

	return 1
}

// exitError lets subcommands choose a specific exit code instead of
// always falling back to 1.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error  { return e.err }
