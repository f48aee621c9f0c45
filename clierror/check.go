package clierror

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/ghost-auth/vaultcore/vaulterrors"
)

const (
	DefaultErrorExitCode = 1
)

var (
	// errHandler is the function used to handle cli errors.
	errHandler = FatalErrHandler

	// errWriter is used to output cli error messages.
	errWriter io.Writer = os.Stderr

	// fprintf is the function used to format and print errors.
	fprintf = fmt.Fprintf

	// debugMode enables always printing raw error values.
	debugMode bool
)

// SetErrorHandler overrides the default [FatalErrHandler] error handler.
func SetErrorHandler(f func(string, int)) {
	errHandler = f
}

// ResetErrorHandler restores the default error handler.
func ResetErrorHandler() {
	errHandler = FatalErrHandler
}

// SetErrWriter overrides the default error output writer [os.Stderr].
func SetErrWriter(w io.Writer) {
	errWriter = w
}

// ResetErrWriter restores the default error output writer to [os.Stderr].
func ResetErrWriter() {
	errWriter = os.Stderr
}

// SetDefaultFprintf sets the default function used to print errors.
func SetDefaultFprintf(f func(w io.Writer, format string, a ...any) (n int, err error)) {
	fprintf = f
}

// DebugMode sets whether debug logging is enabled.
//
// When enabled, raw error values are printed to stderr.
func DebugMode(enabled bool) {
	debugMode = enabled
}

// FatalErrHandler prints the message provided and then exits with the given code.
func FatalErrHandler(msg string, code int) {
	printError(msg)

	//nolint:revive // Intentional exit after fatal error.
	os.Exit(code)
}

func PrintErrHandler(msg string, _ int) {
	printError(msg)
}

func printError(msg string) {
	if len(msg) == 0 {
		return
	}

	// add newline if needed
	if !strings.HasSuffix(msg, "\n") {
		msg += "\n"
	}

	_, _ = fprintf(errWriter, msg)
}

func debugPrint(err error) {
	if !debugMode {
		return
	}

	_, _ = fprintf(errWriter, "DEBUG %+v\n", err)
}

// ErrExit may be passed to [Check] to instruct it to output nothing but exit with
// status code 1.
var ErrExit = errors.New("exit")

// Check prints a user-friendly error message and invokes the configured error handler.
//
// When the [FatalErrHandler] is used, the program will exit before this function returns.
func Check(err error) error {
	check(err, errHandler)
	return err
}

//nolint:revive
func check(err error, handleErr func(string, int)) {
	if err == nil {
		return
	}

	debugPrint(err)

	switch {
	case errors.Is(err, ErrExit):
		handleErr("", DefaultErrorExitCode)
	case errors.Is(err, vaulterrors.ErrWrongKey):
		handleErr("ghostauthctl: master key did not decrypt the vault; the file has been quarantined and a fresh vault started.", DefaultErrorExitCode)
	case errors.Is(err, vaulterrors.ErrWrongPassword):
		handleErr("ghostauthctl: incorrect password\nPlease check your password and try again.", DefaultErrorExitCode)
	case errors.Is(err, vaulterrors.ErrPasswordTooShort):
		handleErr("ghostauthctl: password must be at least 8 characters.", DefaultErrorExitCode)
	case errors.Is(err, vaulterrors.ErrUnsupportedVersion):
		handleErr("ghostauthctl: file uses a format version this build does not support.", DefaultErrorExitCode)
	case errors.Is(err, vaulterrors.ErrAccountNotFound):
		handleErr("ghostauthctl: no account with that id.", DefaultErrorExitCode)
	case errors.Is(err, vaulterrors.ErrStorageUnavailable):
		handleErr("ghostauthctl: storage unavailable\nA previous save failed; restart before trying again.", DefaultErrorExitCode)
	case errors.Is(err, vaulterrors.ErrSessionActive):
		handleErr("ghostauthctl: a sync session is already in progress.", DefaultErrorExitCode)
	case errors.Is(err, vaulterrors.ErrNoPendingMerge):
		handleErr("ghostauthctl: no merge preview is pending; run sync first.", DefaultErrorExitCode)
	case errors.Is(err, vaulterrors.ErrNoPrivateAddress):
		handleErr("ghostauthctl: no private network address is available to pair over.", DefaultErrorExitCode)
	case errors.Is(err, vaulterrors.ErrAcceptTimeout):
		handleErr("ghostauthctl: timed out waiting for a peer to pair.", DefaultErrorExitCode)
	case errors.Is(err, vaulterrors.ErrHandshakeFailed):
		handleErr("ghostauthctl: authentication failed — sync code may be incorrect.", DefaultErrorExitCode)
	case errors.Is(err, vaulterrors.ErrSyncDecryption):
		handleErr("ghostauthctl: sync decryption failed.", DefaultErrorExitCode)
	case errors.Is(err, vaulterrors.ErrInvalidSyncCode):
		handleErr("ghostauthctl: that sync code is not valid; check the text or QR code and try again.", DefaultErrorExitCode)
	case errors.Is(err, vaulterrors.ErrKeystoreUnavailable):
		handleErr("ghostauthctl: could not access the system keystore or its fallback; cannot start.", DefaultErrorExitCode)
	default:
		msg, ok := StandardErrorMessage(err)
		if !ok {
			msg = err.Error()
			if !strings.HasPrefix(msg, "ghostauthctl: ") {
				msg = "ghostauthctl: " + msg
			}
		}

		handleErr(msg, DefaultErrorExitCode)
	}
}

func StandardErrorMessage(_ error) (string, bool) {
	return "", false
}
