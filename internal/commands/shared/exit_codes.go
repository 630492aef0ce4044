// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package shared

import (
	"errors"
	"fmt"
	"io"
	"os"

	webderrors "github.com/tombee/webd/pkg/errors"
)

// Exit codes follow sysexits.h where one fits.
const (
	ExitSuccess        = 0
	ExitFailure        = 1
	ExitIdentityLookup = 67 // EX_NOUSER
	ExitResource       = 71 // EX_OSERR
	ExitPrivilege      = 77 // EX_NOPERM
	ExitConfig         = 78 // EX_CONFIG
)

// ExitError is an error that carries an exit code
type ExitError struct {
	Code    int
	Message string
	Cause   error
}

func (e *ExitError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error {
	return e.Cause
}

// NewExitError wraps cause with the exit code its type calls for.
func NewExitError(msg string, cause error) *ExitError {
	return &ExitError{
		Code:    ExitCodeFor(cause),
		Message: msg,
		Cause:   cause,
	}
}

// ExitCodeFor maps a launch error to its process exit code.
func ExitCodeFor(err error) int {
	if err == nil {
		return ExitSuccess
	}

	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}

	var (
		lookupErr *webderrors.IdentityLookupError
		privErr   *webderrors.PrivilegeChangeError
		resErr    *webderrors.ResourceError
		cfgErr    *webderrors.ConfigError
	)
	switch {
	case errors.As(err, &lookupErr):
		return ExitIdentityLookup
	case errors.As(err, &privErr):
		return ExitPrivilege
	case errors.As(err, &resErr):
		return ExitResource
	case errors.As(err, &cfgErr):
		return ExitConfig
	default:
		return ExitFailure
	}
}

// HandleExitError prints err with any suggestion and exits with its code.
func HandleExitError(err error) {
	if err == nil {
		return
	}
	os.Exit(reportError(os.Stderr, err))
}

// reportError writes err to w and returns the exit code.
func reportError(w io.Writer, err error) int {
	if msg := err.Error(); msg != "" {
		fmt.Fprintln(w, RenderError("Error: "+msg))
	}

	printUserVisibleSuggestion(w, err)

	return ExitCodeFor(err)
}

// printUserVisibleSuggestion prints the suggestion of the first
// user-visible error in err's chain, if it has one.
func printUserVisibleSuggestion(w io.Writer, err error) {
	if suggestion := webderrors.Suggestion(err); suggestion != "" {
		fmt.Fprintf(w, "\nSuggestion: %s\n", suggestion)
	}
}
