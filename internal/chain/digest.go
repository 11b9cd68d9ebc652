package chain

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"strings"

	"golang.org/x/crypto/blake2b"
	"golang.org/x/crypto/sha3"
)

// Algorithm names the hash function used to derive record digests.
// All supported algorithms produce 32-byte (64 hex char) digests so a
// leading-zero target means the same work regardless of the choice.
type Algorithm string

const (
	SHA256     Algorithm = "sha256"
	SHA3_256   Algorithm = "sha3-256"
	BLAKE2b256 Algorithm = "blake2b-256"
)

// ParseAlgorithm maps a configuration string onto an Algorithm.
// The empty string selects SHA256.
func ParseAlgorithm(s string) (Algorithm, error) {
	switch a := Algorithm(strings.ToLower(strings.TrimSpace(s))); a {
	case "", SHA256:
		return SHA256, nil
	case SHA3_256, BLAKE2b256:
		return a, nil
	default:
		return "", fmt.Errorf("unsupported digest algorithm %q", s)
	}
}

func (a Algorithm) new() hash.Hash {
	switch a {
	case SHA3_256:
		return sha3.New256()
	case BLAKE2b256:
		h, _ := blake2b.New256(nil) // only fails for oversized keys
		return h
	default:
		return sha256.New()
	}
}

// canonical renders the fields in digest order with no delimiters.
func canonical(r *Record) string {
	return fmt.Sprintf("%d%s%d%s%d", r.Index, r.PreviousDigest, r.CreatedAt, r.Payload, r.Nonce)
}

func digestOf(a Algorithm, r *Record) string {
	h := a.new()
	h.Write([]byte(canonical(r)))
	return hex.EncodeToString(h.Sum(nil))
}

// MeetsDifficulty reports whether digest is non-empty and starts with
// difficulty '0' characters.
func MeetsDifficulty(digest string, difficulty int) bool {
	if digest == "" {
		return false
	}
	if difficulty <= 0 {
		return true
	}
	if len(digest) < difficulty {
		return false
	}
	for i := 0; i < difficulty; i++ {
		if digest[i] != '0' {
			return false
		}
	}
	return true
}
