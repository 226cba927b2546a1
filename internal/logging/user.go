package logging

import (
	"fmt"
	"io"
	"os"
	"sync"
)

// Operator-facing CLI messages, kept apart from the structured log so
// they stay readable when the log is JSON. Info and success lines go to
// stdout; warnings and errors go to stderr.

var (
	userMu  sync.Mutex
	userOut io.Writer = os.Stdout
	userErr io.Writer = os.Stderr
)

// SetUserOutput redirects operator messages. A nil writer restores the
// process default.
func SetUserOutput(stdout, stderr io.Writer) {
	userMu.Lock()
	defer userMu.Unlock()
	if stdout == nil {
		stdout = os.Stdout
	}
	if stderr == nil {
		stderr = os.Stderr
	}
	userOut, userErr = stdout, stderr
}

func userPrint(toErr bool, prefix, format string, args []any) {
	userMu.Lock()
	defer userMu.Unlock()
	w := userOut
	if toErr {
		w = userErr
	}
	fmt.Fprintf(w, prefix+format+"\n", args...)
}

// UserInfo prints an informational line.
func UserInfo(format string, args ...any) {
	userPrint(false, "ℹ ", format, args)
}

// UserSuccess prints a completion line.
func UserSuccess(format string, args ...any) {
	userPrint(false, "✓ ", format, args)
}

// UserWarning prints a warning.
func UserWarning(format string, args ...any) {
	userPrint(true, "⚠ ", format, args)
}

// UserError prints an error.
func UserError(format string, args ...any) {
	userPrint(true, "✗ ", format, args)
}
