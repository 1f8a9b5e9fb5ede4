// Package version holds the control protocol version and compatibility rules.
package version

import (
	"fmt"
	"strconv"
	"strings"
)

// Current is the protocol version spoken by this module.
const Current = "1.0"

// Protocol is a parsed "major.minor" protocol version.
type Protocol struct {
	Major uint16
	Minor uint16
}

// Parse parses a "major.minor" version string.
func Parse(s string) (Protocol, error) {
	majorStr, minorStr, ok := strings.Cut(s, ".")
	if !ok || strings.Contains(minorStr, ".") {
		return Protocol{}, fmt.Errorf("invalid version %q: expected major.minor", s)
	}

	major, err := strconv.ParseUint(majorStr, 10, 16)
	if err != nil {
		return Protocol{}, fmt.Errorf("invalid version %q: bad major component", s)
	}
	minor, err := strconv.ParseUint(minorStr, 10, 16)
	if err != nil {
		return Protocol{}, fmt.Errorf("invalid version %q: bad minor component", s)
	}

	return Protocol{Major: uint16(major), Minor: uint16(minor)}, nil
}

// MustCurrent returns the parsed Current version.
func MustCurrent() Protocol {
	v, err := Parse(Current)
	if err != nil {
		panic(err)
	}
	return v
}

// String returns the version as "major.minor".
func (v Protocol) String() string {
	return fmt.Sprintf("%d.%d", v.Major, v.Minor)
}

// Compatible returns true if the other version has the same major version.
func (v Protocol) Compatible(other Protocol) bool {
	return v.Major == other.Major
}

// Accepts reports whether a peer announcing s can be talked to. Peers that
// announce no version predate versioning and are accepted.
func Accepts(s string) bool {
	if s == "" {
		return true
	}
	peer, err := Parse(s)
	if err != nil {
		return false
	}
	return MustCurrent().Compatible(peer)
}
