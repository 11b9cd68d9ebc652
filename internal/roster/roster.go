// Package roster holds the fixed set of participants used to synthesise
// transaction payloads for mining sessions.
package roster

import (
	"errors"
	"fmt"
	"strings"
)

// Default is the built-in participant roster.
var Default = Roster{"Alice", "Bob", "Charlie", "Dave", "Eve"}

// Roster is an ordered list of participant names.
type Roster []string

// Parse splits a comma-separated list of names, dropping blanks.
func Parse(s string) Roster {
	var r Roster
	for _, name := range strings.Split(s, ",") {
		if name = strings.TrimSpace(name); name != "" {
			r = append(r, name)
		}
	}
	return r
}

// Validate requires at least two distinct participants.
func (r Roster) Validate() error {
	if len(r) < 2 {
		return errors.New("roster needs at least two participants")
	}
	seen := make(map[string]struct{}, len(r))
	for _, name := range r {
		if _, dup := seen[name]; dup {
			return fmt.Errorf("duplicate participant %q", name)
		}
		seen[name] = struct{}{}
	}
	return nil
}

// Transaction returns the i-th payload: each participant in turn sends to
// the next one, wrapping around at the end of the roster.
func (r Roster) Transaction(i int) string {
	from := r[i%len(r)]
	to := r[(i+1)%len(r)]
	return fmt.Sprintf("Send %s to %s", from, to)
}

// Transactions returns the first n payloads. It returns nil for rosters
// with fewer than two participants.
func (r Roster) Transactions(n int) []string {
	if len(r) < 2 || n <= 0 {
		return nil
	}
	out := make([]string, n)
	for i := range out {
		out[i] = r.Transaction(i)
	}
	return out
}
