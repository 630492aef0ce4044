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

//go:build !unix

package lifecycle

import (
	"errors"
	"os/user"
)

// ErrIdentityUnsupported is returned where process credentials cannot change.
var ErrIdentityUnsupported = errors.New("switching user or group is not supported on this platform")

type osIdentity struct{}

// NewIdentitySystem returns an IdentitySystem that can resolve names but
// refuses to change credentials.
func NewIdentitySystem() IdentitySystem {
	return osIdentity{}
}

func (osIdentity) LookupGroup(name string) (int, error) {
	if _, err := user.LookupGroup(name); err != nil {
		return 0, err
	}
	return 0, ErrIdentityUnsupported
}

func (osIdentity) LookupUser(name string) (int, error) {
	if _, err := user.Lookup(name); err != nil {
		return 0, err
	}
	return 0, ErrIdentityUnsupported
}

func (osIdentity) Setgid(int) error { return ErrIdentityUnsupported }

func (osIdentity) Setuid(int) error { return ErrIdentityUnsupported }
