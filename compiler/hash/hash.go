package hash

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/chazu/nmacro/pkg/bytecode"
)

// HashProgram computes the SHA-256 content hash of a compiled program.
//
// The hash is computed over a deterministic serialization of the code with
// locals numbered by first use. Two programs that differ only in the names
// of their locals produce the same hash.
func HashProgram(p *bytecode.Program) [32]byte {
	return sha256.Sum256(Serialize(p))
}

// HashSource computes the SHA-256 of macro source text.
func HashSource(src string) [32]byte {
	return sha256.Sum256([]byte(src))
}

// Hex renders a hash the way it is stored and printed.
func Hex(h [32]byte) string {
	return hex.EncodeToString(h[:])
}
