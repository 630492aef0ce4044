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
	"bytes"
	"errors"
	"fmt"
	"strings"
	"testing"

	webderrors "github.com/tombee/webd/pkg/errors"
)

func TestExitCodeFor(t *testing.T) {
	cause := errors.New("cause")

	tests := []struct {
		name string
		err  error
		want int
	}{
		{name: "nil", err: nil, want: ExitSuccess},
		{name: "plain error", err: cause, want: ExitFailure},
		{name: "resource", err: &webderrors.ResourceError{Op: "fork", Cause: cause}, want: ExitResource},
		{name: "identity lookup", err: &webderrors.IdentityLookupError{Kind: "user", Name: "x", Cause: cause}, want: ExitIdentityLookup},
		{name: "privilege change", err: &webderrors.PrivilegeChangeError{Kind: "group", ID: 33, Cause: cause}, want: ExitPrivilege},
		{name: "config", err: &webderrors.ConfigError{Key: "port", Reason: "bad"}, want: ExitConfig},
		{name: "wrapped resource", err: fmt.Errorf("launch: %w", &webderrors.ResourceError{Op: "listen", Cause: cause}), want: ExitResource},
		{name: "explicit exit error", err: &ExitError{Code: 3, Message: "custom"}, want: 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExitCodeFor(tt.err); got != tt.want {
				t.Errorf("ExitCodeFor() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestNewExitError(t *testing.T) {
	cause := &webderrors.PrivilegeChangeError{Kind: "user", ID: 1000, Cause: errors.New("operation not permitted")}
	err := NewExitError("failed to drop privileges", cause)

	if err.Code != ExitPrivilege {
		t.Errorf("Code = %d, want %d", err.Code, ExitPrivilege)
	}
	if !errors.Is(err, cause) {
		t.Error("ExitError does not unwrap to its cause")
	}
	if !strings.HasPrefix(err.Error(), "failed to drop privileges: ") {
		t.Errorf("Error() = %q", err.Error())
	}
}

func TestReportError(t *testing.T) {
	t.Run("prints suggestion from the chain", func(t *testing.T) {
		var buf bytes.Buffer
		err := fmt.Errorf("launch: %w", &webderrors.PrivilegeChangeError{Kind: "user", ID: 0, Cause: errors.New("eperm")})

		code := reportError(&buf, err)

		if code != ExitPrivilege {
			t.Errorf("reportError() = %d, want %d", code, ExitPrivilege)
		}
		out := buf.String()
		if !strings.Contains(out, "Error: launch:") {
			t.Errorf("output missing error line: %q", out)
		}
		if !strings.Contains(out, "Suggestion:") {
			t.Errorf("output missing suggestion: %q", out)
		}
	})

	t.Run("plain errors have no suggestion", func(t *testing.T) {
		var buf bytes.Buffer

		code := reportError(&buf, errors.New("boom"))

		if code != ExitFailure {
			t.Errorf("reportError() = %d, want %d", code, ExitFailure)
		}
		if strings.Contains(buf.String(), "Suggestion:") {
			t.Errorf("unexpected suggestion: %q", buf.String())
		}
	})
}
