package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/jmerrifield20/powchain/internal/audit"
	"github.com/jmerrifield20/powchain/internal/chain"
	"github.com/jmerrifield20/powchain/internal/handler"
	"github.com/jmerrifield20/powchain/internal/identity"
	"github.com/jmerrifield20/powchain/pkg/client"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// ── serve ────────────────────────────────────────────────────────────────────

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve an in-memory chain over HTTP",
	Long: `Serve mines a genesis record and exposes the chain on /api/v1/chain.

Reads are public. Appends require a Bearer token from 'powchain token' when
auth.token_secret is set; without a secret the append route is open.
The chain lives only as long as the process.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().Int("port", 8080, "HTTP listen port")
	mustBind("server.port", serveCmd.Flags().Lookup("port"))
}

func runServe(cmd *cobra.Command, args []string) error {
	logger, err := newLogger()
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	cfg, err := chainConfig()
	if err != nil {
		return err
	}
	tokens, err := tokenIssuer()
	if err != nil {
		return err
	}

	// ── Chain ─────────────────────────────────────────────────────────────────
	c := chain.New(cfg, chain.WithLogger(logger), chain.WithObserver(handler.RecordSearch))
	handler.SetChainLength(c.Len())
	genesis, _ := c.Get(0)
	logger.Info("genesis mined",
		zap.String("digest", genesis.Digest),
		zap.Uint64("nonce", genesis.Nonce),
		zap.Int("difficulty", cfg.Difficulty),
		zap.Uint64("attempt_cap", cfg.AttemptCap),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ── Integrity audit ───────────────────────────────────────────────────────
	auditor := audit.New(c, audit.Config{
		Interval:      viper.GetDuration("audit.interval"),
		FailThreshold: viper.GetInt("audit.fail_threshold"),
	}, logger)
	auditor.SetMetricsRecord(handler.RecordAudit)
	auditor.Check()
	go auditor.Start(ctx)

	// ── HTTP Router ───────────────────────────────────────────────────────────
	if tokens == nil {
		logger.Warn("auth.token_secret not set, append endpoint is unauthenticated")
	}
	router := newRouter(ctx, c, auditor, tokens, logger)

	port := viper.GetInt("server.port")
	httpSrv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go func() {
		logger.Info("powchain HTTP listening", zap.Int("port", port))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	// ── Graceful shutdown ──────────────────────────────────────────────────────
	select {
	case <-quit:
	case err := <-errCh:
		return fmt.Errorf("HTTP serve: %w", err)
	}
	logger.Info("shutting down powchain...")
	cancel()

	shutCtx, shutCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutCancel()
	if err := httpSrv.Shutdown(shutCtx); err != nil {
		logger.Error("HTTP shutdown error", zap.Error(err))
	}

	logger.Info("powchain stopped", zap.Int("records", c.Len()))
	return nil
}

// newRouter wires middleware and routes. tokens may be nil to leave the
// append route open.
func newRouter(ctx context.Context, c *chain.Chain, auditor *audit.Auditor, tokens *identity.TokenIssuer, logger *zap.Logger) *gin.Engine {
	if os.Getenv("GIN_MODE") == "" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())

	corsOrigins := viper.GetStringSlice("server.cors_origins")
	router.Use(cors.New(cors.Config{
		AllowOrigins:     corsOrigins,
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "Accept"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: !containsWildcard(corsOrigins),
		MaxAge:           12 * time.Hour,
	}))

	// Request body size limit (64 KB)
	router.Use(func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, 1<<16)
		c.Next()
	})

	if rps := viper.GetInt("server.rate_limit_rps"); rps > 0 {
		router.Use(handler.RateLimiter(ctx, rps, rps*2))
	}
	router.Use(handler.PrometheusMiddleware())
	router.Use(requestLogger(logger))

	router.GET("/healthz", healthz(auditor))
	router.GET("/metrics", handler.MetricsHandler())

	var writeAuth []gin.HandlerFunc
	if tokens != nil {
		writeAuth = append(writeAuth, identity.RequireToken(tokens, identity.ScopeAppend))
	}
	handler.NewChainHandler(c, logger).Register(router.Group("/api/v1"), writeAuth...)
	return router
}

// healthz reports the latest audit. A corrupt chain answers 503.
func healthz(auditor *audit.Auditor) gin.HandlerFunc {
	return func(c *gin.Context) {
		report := auditor.Status()
		if report.Status == audit.StatusCorrupt {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "chain": report})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok", "chain": report})
	}
}

// containsWildcard returns true if origins includes "*".
func containsWildcard(origins []string) bool {
	for _, o := range origins {
		if strings.TrimSpace(o) == "*" {
			return true
		}
	}
	return false
}

// requestLogger returns a Gin middleware that logs each request with zap.
func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
		)
	}
}

// ── inspect / verify ─────────────────────────────────────────────────────────

var inspectCmd = &cobra.Command{
	Use:   "inspect",
	Short: "List the records of a running server",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := remoteClient(cmd)
		if err != nil {
			return err
		}
		ctx := cmd.Context()
		ov, err := c.Overview(ctx)
		if err != nil {
			return err
		}
		records, err := c.Records(ctx)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "length=%d conforming=%d difficulty=%d attempt_cap=%d algorithm=%s\n\n",
			ov.Length, ov.Conforming, ov.Difficulty, ov.AttemptCap, ov.Algorithm)
		tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "INDEX\tNONCE\tDIGEST\tPAYLOAD")
		for _, r := range records {
			fmt.Fprintf(tw, "%d\t%d\t%s\t%s\n", r.Index, r.Nonce, r.Digest, r.Payload)
		}
		return tw.Flush()
	},
}

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Ask a running server to verify its chain",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := remoteClient(cmd)
		if err != nil {
			return err
		}
		report, err := c.Verify(cmd.Context())
		if err != nil {
			return err
		}
		if !report.Valid {
			return fmt.Errorf("chain invalid: %s", report.Error)
		}
		fmt.Fprintln(cmd.OutOrStdout(), "chain valid")
		return nil
	},
}

func init() {
	for _, cmd := range []*cobra.Command{inspectCmd, verifyCmd} {
		cmd.Flags().String("server", "", "powchain server URL (default server.url config key)")
	}
}

func remoteClient(cmd *cobra.Command) (*client.Client, error) {
	base, _ := cmd.Flags().GetString("server")
	if base == "" {
		base = viper.GetString("server.url")
	}
	return client.New(base)
}
