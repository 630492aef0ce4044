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

package errors

import (
	"fmt"
)

// ResourceError represents a failure to acquire an operating system resource
// during launch (process creation, PID file, working directory).
// Launch is aborted before any privilege change or listener binding.
type ResourceError struct {
	// Op is the operation that failed (e.g., "fork", "open pidfile", "chdir")
	Op string

	// Path is the filesystem path involved, if any
	Path string

	// Cause is the underlying error
	Cause error
}

// Error implements the error interface.
func (e *ResourceError) Error() string {
	msg := fmt.Sprintf("%s failed", e.Op)
	if e.Path != "" {
		msg = fmt.Sprintf("%s failed for %s", e.Op, e.Path)
	}
	if e.Cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *ResourceError) Unwrap() error {
	return e.Cause
}

// IsUserVisible implements UserVisibleError.
func (e *ResourceError) IsUserVisible() bool { return true }

// UserMessage implements UserVisibleError.
func (e *ResourceError) UserMessage() string { return e.Error() }

// Suggestion implements UserVisibleError.
func (e *ResourceError) Suggestion() string {
	if e.Path != "" {
		return fmt.Sprintf("Check that %s is writable by the launching user", e.Path)
	}
	return "Check system process and file descriptor limits"
}

// ErrorType implements ErrorClassifier.
func (e *ResourceError) ErrorType() string { return "resource" }

// IsRetryable implements ErrorClassifier.
func (e *ResourceError) IsRetryable() bool { return false }

// IdentityLookupError represents an unknown user or group name.
type IdentityLookupError struct {
	// Kind is "user" or "group"
	Kind string

	// Name is the symbolic name that could not be resolved
	Name string

	// Cause is the underlying lookup error
	Cause error
}

// Error implements the error interface.
func (e *IdentityLookupError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("unknown %s %q: %v", e.Kind, e.Name, e.Cause)
	}
	return fmt.Sprintf("unknown %s %q", e.Kind, e.Name)
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *IdentityLookupError) Unwrap() error {
	return e.Cause
}

// IsUserVisible implements UserVisibleError.
func (e *IdentityLookupError) IsUserVisible() bool { return true }

// UserMessage implements UserVisibleError.
func (e *IdentityLookupError) UserMessage() string { return e.Error() }

// Suggestion implements UserVisibleError.
func (e *IdentityLookupError) Suggestion() string {
	return fmt.Sprintf("Create the %s or pass its numeric id instead", e.Kind)
}

// ErrorType implements ErrorClassifier.
func (e *IdentityLookupError) ErrorType() string { return "identity_lookup" }

// IsRetryable implements ErrorClassifier.
func (e *IdentityLookupError) IsRetryable() bool { return false }

// PrivilegeChangeError represents a failed setgid/setuid call.
// The process must not keep running at an unintended privilege level.
type PrivilegeChangeError struct {
	// Kind is "user" or "group"
	Kind string

	// ID is the numeric id the process tried to switch to
	ID int

	// Cause is the underlying syscall error
	Cause error
}

// Error implements the error interface.
func (e *PrivilegeChangeError) Error() string {
	return fmt.Sprintf("failed to switch %s to %d: %v", e.Kind, e.ID, e.Cause)
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *PrivilegeChangeError) Unwrap() error {
	return e.Cause
}

// IsUserVisible implements UserVisibleError.
func (e *PrivilegeChangeError) IsUserVisible() bool { return true }

// UserMessage implements UserVisibleError.
func (e *PrivilegeChangeError) UserMessage() string { return e.Error() }

// Suggestion implements UserVisibleError.
func (e *PrivilegeChangeError) Suggestion() string {
	return "Only pass --user/--group when starting as root"
}

// ErrorType implements ErrorClassifier.
func (e *PrivilegeChangeError) ErrorType() string { return "privilege_change" }

// IsRetryable implements ErrorClassifier.
func (e *PrivilegeChangeError) IsRetryable() bool { return false }

// ProfilerIOError represents a failure to persist profiler samples.
// It is logged and never aborts shutdown.
type ProfilerIOError struct {
	// Path is the profile output path
	Path string

	// Cause is the underlying error
	Cause error
}

// Error implements the error interface.
func (e *ProfilerIOError) Error() string {
	return fmt.Sprintf("failed to write profile to %s: %v", e.Path, e.Cause)
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *ProfilerIOError) Unwrap() error {
	return e.Cause
}

// ErrorType implements ErrorClassifier.
func (e *ProfilerIOError) ErrorType() string { return "profiler_io" }

// IsRetryable implements ErrorClassifier.
func (e *ProfilerIOError) IsRetryable() bool { return false }

// ConfigError represents configuration problems.
// Use this for configuration file errors, missing settings, or invalid config values.
type ConfigError struct {
	// Key is the configuration key that has the problem (e.g., "port", "tls_cert")
	Key string

	// Reason explains what's wrong with the configuration
	Reason string

	// Cause is the underlying error (e.g., file read error, parse error)
	Cause error
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("config error at %s: %s", e.Key, e.Reason)
	}
	return fmt.Sprintf("config error: %s", e.Reason)
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *ConfigError) Unwrap() error {
	return e.Cause
}

// ErrorType implements ErrorClassifier.
func (e *ConfigError) ErrorType() string { return "config" }

// IsRetryable implements ErrorClassifier.
func (e *ConfigError) IsRetryable() bool { return false }
