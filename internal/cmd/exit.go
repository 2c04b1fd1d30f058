package cmd

import (
	"fmt"
	"os"

	apperrors "github.com/fedseries/fedseries/internal/errors"
)

// Semantic exit codes, following sysexits conventions so scripts can
// tell credential problems from transient upstream failures.
const (
	ExitOK            = 0
	ExitGeneric       = 1
	ExitValidation    = 2
	ExitDataRetrieval = 65 // EX_DATAERR
	ExitConnection    = 69 // EX_UNAVAILABLE
	ExitRateLimit     = 75 // EX_TEMPFAIL
	ExitAuth          = 77 // EX_NOPERM
	ExitConfig        = 78 // EX_CONFIG
)

// ExitCodeFor maps a taxonomy error onto an exit code.
func ExitCodeFor(err error) int {
	if err == nil {
		return ExitOK
	}
	appErr, ok := apperrors.As(err)
	if !ok {
		return ExitGeneric
	}
	switch appErr.Kind {
	case apperrors.KindValidation:
		return ExitValidation
	case apperrors.KindDataRetrieval:
		return ExitDataRetrieval
	case apperrors.KindConnection:
		return ExitConnection
	case apperrors.KindRateLimit:
		return ExitRateLimit
	case apperrors.KindAuthentication:
		return ExitAuth
	case apperrors.KindConfiguration:
		return ExitConfig
	default:
		return ExitGeneric
	}
}

// Exit reports err on stderr, including the suggestion when the taxonomy
// carries one, and exits with the matching code.
func Exit(err error) {
	if err == nil {
		os.Exit(ExitOK)
	}
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	if appErr, ok := apperrors.As(err); ok && appErr.Suggestion != "" {
		fmt.Fprintf(os.Stderr, "\n%s\n", appErr.Suggestion)
	}
	os.Exit(ExitCodeFor(err))
}
