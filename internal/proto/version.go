// Package proto defines the wire-level vocabulary shared by the Scanmark
// server and the messenger client: API versions, capability gates, the
// closed error taxonomy, and request/response body types.
package proto

import "fmt"

// APIVersion is the protocol version this build of the server speaks.
const APIVersion = 116

// SupportedVersions is the ordered set of server API versions the
// messenger client can talk to. Servers outside this window are rejected
// at negotiation time, before any authenticated call is attempted.
var SupportedVersions = []int{113, 114, 115, 116}

// VersionSupported reports whether v is in SupportedVersions.
func VersionSupported(v int) bool {
	for _, s := range SupportedVersions {
		if s == v {
			return true
		}
	}
	return false
}

// CheckVersion returns an UnsupportedVersion error for versions outside
// the supported set, nil otherwise.
func CheckVersion(v int) error {
	if !VersionSupported(v) {
		return &Error{
			Kind: UnsupportedVersion,
			Msg:  fmt.Sprintf("server API version %d not in supported set %v", v, SupportedVersions),
		}
	}
	return nil
}
