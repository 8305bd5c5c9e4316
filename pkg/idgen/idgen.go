// Package idgen generates opaque, unguessable identifiers for games, nodes,
// snapshots, sessions and owner tokens.
package idgen

import (
	"crypto/rand"
	"encoding/hex"
)

// New returns a new 16-byte identifier, hex-encoded.
func New() string {
	var b [16]byte
	if _, err := rand.Read(b[:]); err != nil {
		panic(err) // crypto/rand failing is not recoverable
	}
	return hex.EncodeToString(b[:])
}
