package chain

import "time"

// Outcome is the result of a proof-of-work search.
type Outcome int

const (
	// Found means the stored digest meets the difficulty target.
	Found Outcome = iota
	// GaveUp means the attempt budget ran out; the record keeps the last
	// digest it computed even though it misses the target.
	GaveUp
)

func (o Outcome) String() string {
	switch o {
	case Found:
		return "found"
	case GaveUp:
		return "gave_up"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (o Outcome) MarshalText() ([]byte, error) { return []byte(o.String()), nil }

// SearchResult describes a finished search.
type SearchResult struct {
	Outcome  Outcome `json:"outcome"`
	Attempts uint64  `json:"attempts"`
}

// StopPolicy decides when the nonce search ends. Satisfied is checked
// before Exhausted after every attempt.
type StopPolicy interface {
	// Satisfied reports whether digest is acceptable.
	Satisfied(digest string) bool
	// Exhausted reports whether the search should give up after attempts
	// digests have been computed.
	Exhausted(attempts uint64) bool
}

// Target is the standard policy: accept digests with Difficulty leading
// zeros and give up once more than AttemptCap attempts have been made.
type Target struct {
	Difficulty int
	AttemptCap uint64
}

// Satisfied implements StopPolicy.
func (t Target) Satisfied(digest string) bool { return MeetsDifficulty(digest, t.Difficulty) }

// Exhausted implements StopPolicy.
func (t Target) Exhausted(attempts uint64) bool { return attempts > t.AttemptCap }

// Search mines the record against a leading-zero target. At most
// attemptCap+1 digests are computed; on give-up Nonce has advanced by
// attemptCap.
func (r *Record) Search(difficulty int, attemptCap uint64) Outcome {
	return r.SearchWith(Target{Difficulty: difficulty, AttemptCap: attemptCap}).Outcome
}

// SearchWith runs the nonce search under an arbitrary stop policy.
func (r *Record) SearchWith(p StopPolicy) SearchResult {
	var attempts uint64
	for {
		r.Digest = r.ComputeDigest()
		attempts++
		if p.Satisfied(r.Digest) {
			return SearchResult{Outcome: Found, Attempts: attempts}
		}
		if p.Exhausted(attempts) {
			return SearchResult{Outcome: GaveUp, Attempts: attempts}
		}
		r.Nonce++
	}
}

// pause sleeps for d after a give-up. It exists only to pace console output.
func pause(d time.Duration) {
	if d > 0 {
		time.Sleep(d)
	}
}
