// Package miner drives a mining session: it turns roster transactions into
// records, appends them to a chain and tallies the miner's reward.
package miner

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jmerrifield20/powchain/internal/chain"
	"github.com/jmerrifield20/powchain/internal/roster"
	"go.uber.org/zap"
)

// DefaultRewardPerBlock is credited for every record the session appends.
const DefaultRewardPerBlock = 50

// Config holds session configuration.
type Config struct {
	Miner          string
	Roster         roster.Roster
	RewardPerBlock uint64
}

// RecordFunc is an optional callback invoked after each append.
type RecordFunc func(r chain.Record, res chain.SearchResult)

// Summary is the result of a session.
type Summary struct {
	SessionID uuid.UUID `json:"session_id"`
	Miner     string    `json:"miner"`
	Blocks    int       `json:"blocks"`
	Found     int       `json:"found"`
	GaveUp    int       `json:"gave_up"`
	Attempts  uint64    `json:"attempts"`
	Reward    uint64    `json:"reward"`
	ChainLen  int       `json:"chain_length"`
}

// Session mines roster transactions onto a chain on behalf of one miner.
type Session struct {
	ID       uuid.UUID
	cfg      Config
	chain    *chain.Chain
	onRecord RecordFunc
	logger   *zap.Logger
}

// New creates a Session. An empty roster falls back to roster.Default.
func New(c *chain.Chain, cfg Config, logger *zap.Logger) (*Session, error) {
	cfg.Miner = strings.TrimSpace(cfg.Miner)
	if cfg.Miner == "" {
		return nil, errors.New("miner name is required")
	}
	if len(cfg.Roster) == 0 {
		cfg.Roster = roster.Default
	}
	if err := cfg.Roster.Validate(); err != nil {
		return nil, fmt.Errorf("invalid roster: %w", err)
	}
	if cfg.RewardPerBlock == 0 {
		cfg.RewardPerBlock = DefaultRewardPerBlock
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	id := uuid.New()
	return &Session{
		ID:     id,
		cfg:    cfg,
		chain:  c,
		logger: logger.With(zap.String("session_id", id.String()), zap.String("miner", cfg.Miner)),
	}, nil
}

// SetRecordFunc configures the per-record callback.
func (s *Session) SetRecordFunc(fn RecordFunc) {
	s.onRecord = fn
}

// Run mines n transactions. It stops early when ctx is cancelled and
// returns the summary of what was appended together with ctx's error.
func (s *Session) Run(ctx context.Context, n int) (Summary, error) {
	sum := Summary{SessionID: s.ID, Miner: s.cfg.Miner}

	for _, tx := range s.cfg.Roster.Transactions(n) {
		if err := ctx.Err(); err != nil {
			sum.ChainLen = s.chain.Len()
			return sum, err
		}

		rec := s.chain.Next(tx)
		res, err := s.chain.Append(rec)
		if err != nil {
			sum.ChainLen = s.chain.Len()
			return sum, fmt.Errorf("append %q: %w", tx, err)
		}

		sum.Blocks++
		sum.Attempts += res.Attempts
		if res.Outcome == chain.Found {
			sum.Found++
		} else {
			sum.GaveUp++
		}

		s.logger.Info("block appended",
			zap.Uint32("index", rec.Index),
			zap.String("payload", rec.Payload),
			zap.String("outcome", res.Outcome.String()),
			zap.Uint64("attempts", res.Attempts),
		)
		if s.onRecord != nil {
			s.onRecord(*rec, res)
		}
	}

	sum.Reward = uint64(sum.Blocks) * s.cfg.RewardPerBlock
	sum.ChainLen = s.chain.Len()
	return sum, nil
}
