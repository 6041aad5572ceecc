package utils

import (
	"strings"

	"github.com/google/uuid"
)

// idNamespace scopes every deterministic id this module derives.
var idNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://github.com/himanishpuri/AcousticSync"))

// GenerateUUID returns a random v4 UUID string.
func GenerateUUID() string {
	return uuid.NewString()
}

// StableID derives a v5 UUID from the given parts, so the same input always
// yields the same id across runs and machines.
func StableID(parts ...string) string {
	return uuid.NewSHA1(idNamespace, []byte(strings.Join(parts, "\x00"))).String()
}
