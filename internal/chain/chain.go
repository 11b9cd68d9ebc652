package chain

import (
	"errors"
	"fmt"
	"iter"
	"math"
	"sync"
	"time"

	"go.uber.org/zap"
)

var (
	ErrEmptyChain = errors.New("chain: no genesis record")
	ErrNotFound   = errors.New("chain: record not found")
	ErrIntegrity  = errors.New("chain: integrity check failed")
)

// Config holds the proof-of-work parameters applied to every record.
type Config struct {
	// Difficulty is the number of leading '0' hex characters a digest needs.
	Difficulty int
	// AttemptCap bounds the search; AttemptCap+1 digests are tried before giving up.
	AttemptCap uint64
	// Algorithm selects the digest hash function.
	Algorithm Algorithm
	// GiveUpPause is slept after a search gives up. Zero disables it.
	GiveUpPause time.Duration
}

// DefaultConfig returns difficulty 2 with a budget of 100 attempts.
func DefaultConfig() Config {
	return Config{Difficulty: 2, AttemptCap: 100, Algorithm: SHA256}
}

// Validate checks that the configuration is usable.
func (c Config) Validate() error {
	if c.Difficulty < 0 {
		return fmt.Errorf("difficulty must be non-negative, got %d", c.Difficulty)
	}
	if c.AttemptCap == 0 {
		return errors.New("attempt cap must be positive")
	}
	// The search gives up once attempts exceed the cap; no uint64 exceeds MaxUint64.
	if c.AttemptCap == math.MaxUint64 {
		return fmt.Errorf("attempt cap must be below %d", uint64(math.MaxUint64))
	}
	if _, err := ParseAlgorithm(string(c.Algorithm)); err != nil {
		return err
	}
	return nil
}

// Observer is notified after every record is mined and stored. It runs
// without the chain lock held, so it may read the chain.
type Observer func(r Record, res SearchResult)

// Option configures a Chain.
type Option func(*Chain)

// WithClock sets the clock used for the genesis record and by Next.
func WithClock(clock Clock) Option {
	return func(c *Chain) { c.clock = clock }
}

// WithLogger sets the logger. The default is a no-op logger.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Chain) { c.logger = logger }
}

// WithObserver registers fn to be called after each search.
func WithObserver(fn Observer) Option {
	return func(c *Chain) { c.observers = append(c.observers, fn) }
}

// Chain is an ordered, append-only sequence of mined records. It is safe
// for concurrent use; appends are serialised and mining runs while the
// write lock is held. The give-up pause and observers run after it is
// released.
type Chain struct {
	mu        sync.RWMutex
	records   []Record
	cfg       Config
	clock     Clock
	logger    *zap.Logger
	observers []Observer
}

// New creates a chain and mines its genesis record with cfg.
func New(cfg Config, opts ...Option) *Chain {
	if cfg.Algorithm == "" {
		cfg.Algorithm = SHA256
	}
	c := &Chain{cfg: cfg, clock: SystemClock, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(c)
	}

	genesis := NewRecord(0, "", GenesisPayload, c.clock)
	genesis.Algorithm = cfg.Algorithm
	res := c.mine(genesis)
	c.records = append(c.records, *genesis)
	c.settle(*genesis, res)
	return c
}

// Config returns the chain's proof-of-work parameters.
func (c *Chain) Config() Config { return c.cfg }

// Next builds an unmined record whose index follows the current tail.
func (c *Chain) Next(payload string) *Record {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var prev string
	if n := len(c.records); n > 0 {
		prev = c.records[n-1].Digest
	}
	clock := c.clock
	if clock == nil {
		clock = SystemClock
	}
	return NewRecord(uint32(len(c.records)), prev, payload, clock)
}

// Append links r to the current tail, mines it and adds it to the chain.
// r.Index is taken as given. r is updated in place with the link, nonce and
// digest; the chain keeps its own copy.
func (c *Chain) Append(r *Record) (SearchResult, error) {
	c.mu.Lock()
	if len(c.records) == 0 {
		c.mu.Unlock()
		return SearchResult{}, ErrEmptyChain
	}
	r.PreviousDigest = c.records[len(c.records)-1].Digest
	r.Algorithm = c.cfg.Algorithm
	res := c.mine(r)
	c.records = append(c.records, *r)
	c.mu.Unlock()

	c.settle(*r, res)
	return res, nil
}

// AppendPayload creates, mines and appends a record for payload under a
// single lock, so concurrent callers always receive distinct indices.
func (c *Chain) AppendPayload(payload string) (Record, SearchResult, error) {
	c.mu.Lock()
	n := len(c.records)
	if n == 0 {
		c.mu.Unlock()
		return Record{}, SearchResult{}, ErrEmptyChain
	}
	r := NewRecord(uint32(n), c.records[n-1].Digest, payload, c.clock)
	r.Algorithm = c.cfg.Algorithm
	res := c.mine(r)
	c.records = append(c.records, *r)
	c.mu.Unlock()

	c.settle(*r, res)
	return *r, res, nil
}

// mine runs the search and logs the result. Callers hold the write lock.
func (c *Chain) mine(r *Record) SearchResult {
	res := r.SearchWith(Target{Difficulty: c.cfg.Difficulty, AttemptCap: c.cfg.AttemptCap})

	fields := []zap.Field{
		zap.Uint32("index", r.Index),
		zap.String("outcome", res.Outcome.String()),
		zap.Uint64("attempts", res.Attempts),
		zap.Uint64("nonce", r.Nonce),
		zap.String("digest", r.Digest),
	}
	if res.Outcome == GaveUp {
		c.logger.Info("search gave up", fields...)
	} else {
		c.logger.Debug("record mined", fields...)
	}
	return res
}

// settle runs after the record is stored and the lock released: it applies
// the give-up pause and notifies observers.
func (c *Chain) settle(r Record, res SearchResult) {
	if res.Outcome == GaveUp {
		pause(c.cfg.GiveUpPause)
	}
	for _, fn := range c.observers {
		fn(r, res)
	}
}

// Len returns the number of records including genesis.
func (c *Chain) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.records)
}

// Get returns the record at position i.
func (c *Chain) Get(i int) (Record, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if i < 0 || i >= len(c.records) {
		return Record{}, fmt.Errorf("%w: index %d out of range", ErrNotFound, i)
	}
	return c.records[i], nil
}

// Tip returns the most recently appended record.
func (c *Chain) Tip() (Record, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if len(c.records) == 0 {
		return Record{}, ErrEmptyChain
	}
	return c.records[len(c.records)-1], nil
}

// All iterates over a snapshot of the chain in append order. Each call
// starts a fresh traversal.
func (c *Chain) All() iter.Seq2[int, Record] {
	return func(yield func(int, Record) bool) {
		c.mu.RLock()
		snapshot := make([]Record, len(c.records))
		copy(snapshot, c.records)
		c.mu.RUnlock()

		for i, r := range snapshot {
			if !yield(i, r) {
				return
			}
		}
	}
}

// Records returns a copy of every record in append order.
func (c *Chain) Records() []Record {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Record, len(c.records))
	copy(out, c.records)
	return out
}

// Conforming counts the records whose digest meets the difficulty target.
func (c *Chain) Conforming() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	n := 0
	for _, r := range c.records {
		if MeetsDifficulty(r.Digest, c.cfg.Difficulty) {
			n++
		}
	}
	return n
}

// Verify walks the chain and checks genesis shape, predecessor linkage and
// that every stored digest can be re-derived. Records left behind by a
// given-up search pass as long as their digest is consistent.
func (c *Chain) Verify() error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if len(c.records) == 0 {
		return ErrEmptyChain
	}
	for i, curr := range c.records {
		if i == 0 {
			if curr.Index != 0 || curr.PreviousDigest != "" {
				return fmt.Errorf("%w: malformed genesis record", ErrIntegrity)
			}
		} else if prev := c.records[i-1]; curr.PreviousDigest != prev.Digest {
			return fmt.Errorf("%w: link broken at position %d", ErrIntegrity, i)
		}
		if !curr.Verify() {
			return fmt.Errorf("%w: record at position %d has invalid digest", ErrIntegrity, i)
		}
	}
	return nil
}
