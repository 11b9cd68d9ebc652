package chain

import (
	"fmt"
	"time"
)

// GenesisPayload is the payload carried by every chain's first record.
const GenesisPayload = "Genesis Block"

// Record is a single block in the chain. A record is mutable only while it
// is being mined; once appended to a Chain it is never changed.
type Record struct {
	Index          uint32 `json:"index"`
	PreviousDigest string `json:"previous_digest"`
	CreatedAt      uint64 `json:"created_at"` // seconds since the epoch
	Payload        string `json:"payload"`
	Nonce          uint64 `json:"nonce"`
	Digest         string `json:"digest"`
	// Algorithm is the digest hash function. Empty means SHA256.
	Algorithm Algorithm `json:"algorithm,omitempty"`
}

// NewRecord creates an unmined record stamped with clock's current time.
// A nil clock falls back to SystemClock.
func NewRecord(index uint32, previousDigest, payload string, clock Clock) *Record {
	if clock == nil {
		clock = SystemClock
	}
	return &Record{
		Index:          index,
		PreviousDigest: previousDigest,
		CreatedAt:      unixSeconds(clock.Now()),
		Payload:        payload,
	}
}

func (r Record) digestAlgorithm() Algorithm {
	if r.Algorithm == "" {
		return SHA256
	}
	return r.Algorithm
}

// ComputeDigest returns the hex digest of the record's current fields. It
// does not modify the record.
func (r Record) ComputeDigest() string {
	return digestOf(r.digestAlgorithm(), &r)
}

// Verify reports whether the stored digest matches the record's fields.
func (r Record) Verify() bool {
	return r.Digest != "" && r.Digest == r.ComputeDigest()
}

// Time returns CreatedAt as a UTC time.
func (r Record) Time() time.Time {
	return time.Unix(int64(r.CreatedAt), 0).UTC()
}

// String renders the record for display, e.g. "Block 1 : Send A to B at 2024-01-02 15:04:05".
func (r Record) String() string {
	return fmt.Sprintf("Block %d : %s at %s", r.Index, r.Payload, r.Time().Format(time.DateTime))
}
