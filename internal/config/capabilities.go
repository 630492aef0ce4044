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

package config

// Capability describes which launch features this build supports.
// It is fixed at compile time by build constraints; the CLI consults it
// once, when declaring flags.
type Capability struct {
	// Daemonize reports whether the double-fork detach is available.
	Daemonize bool `json:"daemonize"`

	// SwitchIdentity reports whether --user/--group are available.
	SwitchIdentity bool `json:"switch_identity"`

	// TLS reports whether the server can serve HTTPS.
	TLS bool `json:"tls"`
}

// Capabilities returns the capability descriptor for this build.
func Capabilities() Capability {
	return platformCapabilities
}
