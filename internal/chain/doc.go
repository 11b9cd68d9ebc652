// Package chain implements an append-only hash chain secured by a bounded
// proof-of-work puzzle.
//
// Every Record commits to the digest of its predecessor and is mined by
// brute-forcing its Nonce until the hex digest carries the configured number
// of leading zeros. The search is capped: once the attempt budget is spent the
// record keeps its last (non-conforming) digest and is appended anyway, so the
// chain always makes progress.
//
// The genesis record is mined like any other record; it is not exempt from
// the puzzle.
package chain
