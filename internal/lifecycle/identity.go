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

package lifecycle

import (
	"log/slog"
	"strconv"

	"github.com/tombee/webd/internal/log"
	webderrors "github.com/tombee/webd/pkg/errors"
)

// Unchanged marks an ID that should be left as it is.
const Unchanged = -1

// IdentitySystem resolves account names and changes the process credentials.
type IdentitySystem interface {
	LookupGroup(name string) (gid int, err error)
	LookupUser(name string) (uid int, err error)
	Setgid(gid int) error
	Setuid(uid int) error
}

// ProcessIdentity is a resolved target identity.
// Either ID may be Unchanged.
type ProcessIdentity struct {
	UID int
	GID int
}

// IdentityResolver turns user and group specifications into numeric IDs and
// switches the process to them.
type IdentityResolver struct {
	sys    IdentitySystem
	logger *slog.Logger
}

// NewIdentityResolver creates a resolver backed by sys.
func NewIdentityResolver(sys IdentitySystem, logger *slog.Logger) *IdentityResolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &IdentityResolver{
		sys:    sys,
		logger: log.WithComponent(logger, "identity"),
	}
}

// Resolve looks up group and user without changing anything.
// Empty specifications resolve to Unchanged. Purely numeric specifications
// are used as IDs directly; anything else goes through the account database.
func (r *IdentityResolver) Resolve(group, user string) (ProcessIdentity, error) {
	id := ProcessIdentity{UID: Unchanged, GID: Unchanged}

	if group != "" {
		gid, err := r.resolve("group", group, r.sys.LookupGroup)
		if err != nil {
			return id, err
		}
		id.GID = gid
	}

	if user != "" {
		uid, err := r.resolve("user", user, r.sys.LookupUser)
		if err != nil {
			return id, err
		}
		id.UID = uid
	}

	return id, nil
}

func (r *IdentityResolver) resolve(kind, spec string, lookup func(string) (int, error)) (int, error) {
	if isNumericID(spec) {
		n, err := strconv.Atoi(spec)
		if err != nil {
			return 0, &webderrors.IdentityLookupError{Kind: kind, Name: spec, Cause: err}
		}
		return n, nil
	}

	n, err := lookup(spec)
	if err != nil {
		return 0, &webderrors.IdentityLookupError{Kind: kind, Name: spec, Cause: err}
	}
	return n, nil
}

// Apply switches group first, then user. Once the user has changed the
// process may no longer be permitted to change its group.
func (r *IdentityResolver) Apply(id ProcessIdentity) error {
	if id.GID != Unchanged {
		if err := r.sys.Setgid(id.GID); err != nil {
			return &webderrors.PrivilegeChangeError{Kind: "group", ID: id.GID, Cause: err}
		}
		r.logger.Info("changed group", slog.Int("gid", id.GID))
	}

	if id.UID != Unchanged {
		if err := r.sys.Setuid(id.UID); err != nil {
			return &webderrors.PrivilegeChangeError{Kind: "user", ID: id.UID, Cause: err}
		}
		r.logger.Info("changed user", slog.Int("uid", id.UID))
	}

	return nil
}

// Drop resolves both specifications and then applies them. A lookup failure
// leaves the credentials untouched.
func (r *IdentityResolver) Drop(group, user string) (ProcessIdentity, error) {
	id, err := r.Resolve(group, user)
	if err != nil {
		return id, err
	}
	return id, r.Apply(id)
}

func isNumericID(s string) bool {
	if s == "" {
		return false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}
