package client_test

import (
	"context"
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmerrifield20/powchain/internal/chain"
	"github.com/jmerrifield20/powchain/internal/handler"
	"github.com/jmerrifield20/powchain/internal/identity"
	"github.com/jmerrifield20/powchain/pkg/client"
	"go.uber.org/zap"
)

var ctx = context.Background()

// ── Test server ─────────────────────────────────────────────────────────

func testServer(t *testing.T) (*httptest.Server, *identity.TokenIssuer) {
	t.Helper()
	return testServerWith(t, chain.Config{Difficulty: 1, AttemptCap: 40})
}

func testServerWith(t *testing.T, cfg chain.Config) (*httptest.Server, *identity.TokenIssuer) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	tokens, err := identity.NewTokenIssuer([]byte("client-test"), "powchain", time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	c := chain.New(cfg)

	r := gin.New()
	handler.NewChainHandler(c, zap.NewNop()).
		Register(r.Group("/api/v1"), identity.RequireToken(tokens, identity.ScopeAppend))

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv, tokens
}

// ── Tests ───────────────────────────────────────────────────────────────

func TestNew_requiresURL(t *testing.T) {
	if _, err := client.New(""); err == nil {
		t.Error("expected error for empty URL")
	}
}

func TestOverview_genesisOnly(t *testing.T) {
	srv, _ := testServer(t)
	c := client.MustNew(srv.URL)

	ov, err := c.Overview(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if ov.Length != 1 || ov.Difficulty != 1 || ov.AttemptCap != 40 {
		t.Errorf("unexpected overview: %+v", ov)
	}
}

func TestAppend_andReadBack(t *testing.T) {
	srv, tokens := testServer(t)
	token, _ := tokens.Issue("tester", []string{identity.ScopeAppend})
	c := client.MustNew(srv.URL+"/", client.WithBearerToken(token))

	genesis, err := c.Record(ctx, 0)
	if err != nil {
		t.Fatal(err)
	}

	res, err := c.Append(ctx, "Send A to B")
	if err != nil {
		t.Fatalf("Append() error: %v", err)
	}
	if res.Record.PreviousDigest != genesis.Digest {
		t.Errorf("PreviousDigest: got %q, want %q", res.Record.PreviousDigest, genesis.Digest)
	}

	records, err := c.Records(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 2 || records[1].Payload != "Send A to B" {
		t.Errorf("unexpected records: %+v", records)
	}

	report, err := c.Verify(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if !report.Valid {
		t.Errorf("expected valid chain, got %+v", report)
	}
}

func TestAppend_unauthorized(t *testing.T) {
	srv, _ := testServer(t)
	c := client.MustNew(srv.URL)

	if _, err := c.Append(ctx, "Send A to B"); err == nil {
		t.Error("expected error without token")
	}
}

func TestRecord_notFound(t *testing.T) {
	srv, _ := testServer(t)
	c := client.MustNew(srv.URL)

	_, err := c.Record(ctx, 7)
	if !errors.Is(err, client.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestRecords_reverifyLocally(t *testing.T) {
	for _, algo := range []chain.Algorithm{chain.SHA256, chain.SHA3_256, chain.BLAKE2b256} {
		t.Run(string(algo), func(t *testing.T) {
			srv, tokens := testServerWith(t, chain.Config{Difficulty: 1, AttemptCap: 40, Algorithm: algo})
			token, _ := tokens.Issue("tester", []string{identity.ScopeAppend})
			c := client.MustNew(srv.URL, client.WithBearerToken(token))

			res, err := c.Append(ctx, "Send A to B")
			if err != nil {
				t.Fatal(err)
			}
			if !res.Record.Verify() {
				t.Errorf("appended record does not re-derive its digest: %+v", res.Record)
			}

			records, err := c.Records(ctx)
			if err != nil {
				t.Fatal(err)
			}
			for _, r := range records {
				if r.Algorithm != algo {
					t.Errorf("record %d algorithm: got %q, want %q", r.Index, r.Algorithm, algo)
				}
				if !r.Verify() {
					t.Errorf("record %d does not re-derive its digest", r.Index)
				}
			}
		})
	}
}
