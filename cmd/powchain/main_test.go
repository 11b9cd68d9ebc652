package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/jmerrifield20/powchain/internal/audit"
	"github.com/jmerrifield20/powchain/internal/chain"
	"github.com/jmerrifield20/powchain/internal/identity"
	"github.com/jmerrifield20/powchain/internal/miner"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

func setViper(t *testing.T, key string, value any) {
	t.Helper()
	prev := viper.Get(key)
	viper.Set(key, value)
	t.Cleanup(func() { viper.Set(key, prev) })
}

func TestPromptName(t *testing.T) {
	var out bytes.Buffer
	name, err := promptName(strings.NewReader("  Ada \n"), &out)
	if err != nil {
		t.Fatal(err)
	}
	if name != "Ada" {
		t.Errorf("name: got %q, want Ada", name)
	}
	if out.String() != "Enter your name: " {
		t.Errorf("prompt: got %q", out.String())
	}

	if _, err := promptName(strings.NewReader("\n"), &out); err == nil {
		t.Error("expected error for blank name")
	}
	if name, err := promptName(strings.NewReader("Grace"), &out); err != nil || name != "Grace" {
		t.Errorf("name without newline: got %q, %v", name, err)
	}
}

func TestChainConfig(t *testing.T) {
	setViper(t, "chain.difficulty", 3)
	setViper(t, "chain.attempt_cap", 500)
	setViper(t, "chain.algorithm", "blake2b-256")

	cfg, err := chainConfig()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Difficulty != 3 || cfg.AttemptCap != 500 || cfg.Algorithm != chain.BLAKE2b256 {
		t.Errorf("unexpected config: %+v", cfg)
	}

	setViper(t, "chain.attempt_cap", 0)
	if _, err := chainConfig(); err == nil {
		t.Error("expected error for zero attempt cap")
	}
}

func TestRosterFromConfig(t *testing.T) {
	setViper(t, "miner.roster", "Ann, Mary Jo,Cy")
	r := rosterFromConfig()
	if len(r) != 3 || r[0] != "Ann" || r[1] != "Mary Jo" || r[2] != "Cy" {
		t.Errorf("comma string: got %v", r)
	}

	setViper(t, "miner.roster", []string{"Mary Ann", "Joe"})
	r = rosterFromConfig()
	if len(r) != 2 || r[0] != "Mary Ann" {
		t.Errorf("list: got %v", r)
	}
}

func TestPrintSummary_json(t *testing.T) {
	var out bytes.Buffer
	sum := miner.Summary{Miner: "Ada", Blocks: 2, Found: 1, GaveUp: 1, Reward: 100, ChainLen: 3}
	if err := printSummary(&out, sum, chain.Record{Digest: "abc"}, "json"); err != nil {
		t.Fatal(err)
	}
	var got miner.Summary
	if err := json.Unmarshal(out.Bytes(), &got); err != nil {
		t.Fatal(err)
	}
	if got.Reward != 100 || got.Miner != "Ada" {
		t.Errorf("unexpected summary: %+v", got)
	}
}

func TestPrintSummary_text(t *testing.T) {
	var out bytes.Buffer
	sum := miner.Summary{Miner: "Ada", Blocks: 2, Reward: 100}
	if err := printSummary(&out, sum, chain.Record{Digest: "abc"}, "text"); err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"MINER", "Ada", "REWARD", "100", "TIP", "abc"} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("summary missing %q:\n%s", want, out.String())
		}
	}
}

func TestNewRouter_appendRequiresToken(t *testing.T) {
	setViper(t, "server.rate_limit_rps", 0)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tokens, _ := identity.NewTokenIssuer([]byte("s"), "powchain", time.Hour)
	c := chain.New(chain.Config{Difficulty: 0, AttemptCap: 1})
	auditor := audit.New(c, audit.Config{}, zap.NewNop())
	auditor.Check()
	router := newRouter(ctx, c, auditor, tokens, zap.NewNop())

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("healthz: expected 200, got %d", w.Code)
	}

	body := `{"payload":"Send A to B"}`
	w = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/chain/records", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("append without token: expected 401, got %d", w.Code)
	}

	token, _ := tokens.Issue("tester", []string{identity.ScopeAppend})
	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/api/v1/chain/records", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	router.ServeHTTP(w, req)
	if w.Code != http.StatusCreated {
		t.Fatalf("append with token: expected 201, got %d: %s", w.Code, w.Body.String())
	}
	if c.Len() != 2 {
		t.Errorf("chain length: got %d, want 2", c.Len())
	}
}

type brokenChain struct{}

func (brokenChain) Verify() error { return errors.New("link broken at position 1") }
func (brokenChain) Len() int      { return 2 }

func TestHealthz_reportsCorruptChain(t *testing.T) {
	setViper(t, "server.rate_limit_rps", 0)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	c := chain.New(chain.Config{Difficulty: 0, AttemptCap: 1})
	auditor := audit.New(brokenChain{}, audit.Config{}, zap.NewNop())
	auditor.Check()
	router := newRouter(ctx, c, auditor, nil, zap.NewNop())

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", w.Code)
	}
	var body struct {
		Status string       `json:"status"`
		Chain  audit.Report `json:"chain"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body.Status != "unavailable" || body.Chain.Status != audit.StatusCorrupt {
		t.Errorf("unexpected body: %s", w.Body.String())
	}
}
