package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/jmerrifield20/powchain/internal/chain"
	"github.com/jmerrifield20/powchain/internal/identity"
	"github.com/jmerrifield20/powchain/internal/miner"
	"github.com/jmerrifield20/powchain/internal/roster"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// version is overridden via -ldflags "-X main.version=...".
var version = "dev"

var cfgFile string

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "powchain",
	Short: "Proof-of-work hash chain",
	Long: `powchain mines records onto an append-only hash chain.

Each record commits to its predecessor's digest and is mined by searching for
a nonce whose digest has the configured number of leading zeros. The search is
bounded: once the attempt cap is spent the record is appended with its last
digest, so mining always terminates.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return loadConfig()
	},
}

func init() {
	setDefaults()

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "config file (default ./configs/powchain.yaml or ./powchain.yaml)")
	pf.Int("difficulty", 2, "Leading zero hex characters required in a digest")
	pf.Uint64("attempt-cap", 100, "Attempts allowed before a search gives up")
	pf.String("algorithm", "sha256", "Digest algorithm: sha256, sha3-256 or blake2b-256")
	pf.String("log-level", "warn", "Log level: debug, info, warn or error")
	mustBind("chain.difficulty", pf.Lookup("difficulty"))
	mustBind("chain.attempt_cap", pf.Lookup("attempt-cap"))
	mustBind("chain.algorithm", pf.Lookup("algorithm"))
	mustBind("log.level", pf.Lookup("log-level"))

	rootCmd.AddCommand(mineCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(tokenCmd)
	rootCmd.AddCommand(inspectCmd)
	rootCmd.AddCommand(verifyCmd)
	rootCmd.AddCommand(versionCmd)
}

func setDefaults() {
	viper.SetDefault("chain.difficulty", 2)
	viper.SetDefault("chain.attempt_cap", 100)
	viper.SetDefault("chain.algorithm", "sha256")
	viper.SetDefault("chain.give_up_pause", "0s")
	viper.SetDefault("miner.name", "")
	viper.SetDefault("miner.blocks", 5)
	viper.SetDefault("miner.roster", []string(roster.Default))
	viper.SetDefault("miner.reward_per_block", miner.DefaultRewardPerBlock)
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.url", "http://localhost:8080")
	viper.SetDefault("server.cors_origins", []string{"http://localhost:3000"})
	viper.SetDefault("server.rate_limit_rps", 20)
	viper.SetDefault("audit.interval", "1m")
	viper.SetDefault("audit.fail_threshold", 1)
	viper.SetDefault("auth.token_secret", "")
	viper.SetDefault("auth.issuer", "powchain")
	viper.SetDefault("auth.token_ttl", "24h")
	viper.SetDefault("log.level", "warn")
}

func mustBind(key string, flag *pflag.Flag) {
	if err := viper.BindPFlag(key, flag); err != nil {
		panic(err)
	}
}

func loadConfig() error {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("powchain")
		viper.SetConfigType("yaml")
		viper.AddConfigPath("configs")
		viper.AddConfigPath(".")
	}
	viper.SetEnvPrefix("POWCHAIN")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		var cfgNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &cfgNotFound) {
			return fmt.Errorf("read config: %w", err)
		}
	}
	return nil
}

// chainConfig assembles the proof-of-work parameters from viper.
func chainConfig() (chain.Config, error) {
	algo, err := chain.ParseAlgorithm(viper.GetString("chain.algorithm"))
	if err != nil {
		return chain.Config{}, err
	}
	cfg := chain.Config{
		Difficulty:  viper.GetInt("chain.difficulty"),
		AttemptCap:  viper.GetUint64("chain.attempt_cap"),
		Algorithm:   algo,
		GiveUpPause: viper.GetDuration("chain.give_up_pause"),
	}
	if err := cfg.Validate(); err != nil {
		return chain.Config{}, fmt.Errorf("invalid chain config: %w", err)
	}
	return cfg, nil
}

// rosterFromConfig accepts either a YAML list or a comma-separated string.
func rosterFromConfig() roster.Roster {
	if s, ok := viper.Get("miner.roster").(string); ok {
		return roster.Parse(s)
	}
	return roster.Parse(strings.Join(viper.GetStringSlice("miner.roster"), ","))
}

func newLogger() (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(viper.GetString("log.level"))
	if err != nil {
		return nil, fmt.Errorf("parse log level: %w", err)
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(level)
	return cfg.Build()
}

// ── mine ─────────────────────────────────────────────────────────────────────

var mineFormat string

var mineCmd = &cobra.Command{
	Use:   "mine",
	Short: "Mine roster transactions onto a fresh chain",
	Long: `Mine creates a chain, mines its genesis record and then appends one record per
roster transaction, crediting the miner with a reward for each block.

The miner name is read from --miner, the miner.name config key or, when both
are empty, an interactive prompt:

  powchain mine --blocks 3 --difficulty 1`,
	Args: cobra.NoArgs,
	RunE: runMine,
}

func init() {
	f := mineCmd.Flags()
	f.String("miner", "", "Miner name (prompted when empty)")
	f.Int("blocks", 5, "Number of transactions to mine")
	f.String("roster", "", "Comma-separated participant names (default built-in roster)")
	f.Duration("give-up-pause", 0, "Pause after a search gives up (e.g. 3s)")
	f.StringVar(&mineFormat, "format", "text", "Summary format: text or json")
	mustBind("miner.name", f.Lookup("miner"))
	mustBind("miner.blocks", f.Lookup("blocks"))
	mustBind("chain.give_up_pause", f.Lookup("give-up-pause"))

	// Only override the configured roster when the flag is given.
	mineCmd.PreRun = func(cmd *cobra.Command, args []string) {
		if s, _ := cmd.Flags().GetString("roster"); s != "" {
			viper.Set("miner.roster", s)
		}
	}
}

func runMine(cmd *cobra.Command, args []string) error {
	logger, err := newLogger()
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	cfg, err := chainConfig()
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	name := viper.GetString("miner.name")
	if strings.TrimSpace(name) == "" {
		if name, err = promptName(cmd.InOrStdin(), out); err != nil {
			return err
		}
	}

	c := chain.New(cfg, chain.WithLogger(logger))
	genesis, _ := c.Get(0)
	fmt.Fprintln(out, genesis)

	sess, err := miner.New(c, miner.Config{
		Miner:          name,
		Roster:         rosterFromConfig(),
		RewardPerBlock: viper.GetUint64("miner.reward_per_block"),
	}, logger)
	if err != nil {
		return err
	}
	sess.SetRecordFunc(func(r chain.Record, res chain.SearchResult) {
		printRecord(out, r, res)
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sum, err := sess.Run(ctx, viper.GetInt("miner.blocks"))
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	tip, _ := c.Tip()
	return printSummary(out, sum, tip, mineFormat)
}

// promptName reads the miner name from in.
func promptName(in io.Reader, out io.Writer) (string, error) {
	fmt.Fprint(out, "Enter your name: ")
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("read miner name: %w", err)
	}
	name := strings.TrimSpace(line)
	if name == "" {
		return "", errors.New("miner name is required")
	}
	return name, nil
}

func printRecord(w io.Writer, r chain.Record, res chain.SearchResult) {
	if res.Outcome == chain.Found {
		fmt.Fprintf(w, "Block mined : %d\n", r.Index)
	} else {
		fmt.Fprintf(w, "Mining gave up after %d attempts, calculated_hash: %s\n", res.Attempts, r.Digest)
	}
	fmt.Fprintln(w, r)
}

func printSummary(w io.Writer, sum miner.Summary, tip chain.Record, format string) error {
	if format == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(sum)
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw)
	fmt.Fprintf(tw, "SESSION\t%s\n", sum.SessionID)
	fmt.Fprintf(tw, "MINER\t%s\n", sum.Miner)
	fmt.Fprintf(tw, "BLOCKS\t%d\n", sum.Blocks)
	fmt.Fprintf(tw, "FOUND\t%d\n", sum.Found)
	fmt.Fprintf(tw, "GAVE UP\t%d\n", sum.GaveUp)
	fmt.Fprintf(tw, "ATTEMPTS\t%d\n", sum.Attempts)
	fmt.Fprintf(tw, "REWARD\t%d\n", sum.Reward)
	fmt.Fprintf(tw, "CHAIN LENGTH\t%d\n", sum.ChainLen)
	fmt.Fprintf(tw, "TIP\t%s\n", tip.Digest)
	return tw.Flush()
}

// ── token ────────────────────────────────────────────────────────────────────

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Issue a write token for the serve command",
	Long: `Token prints a JWT that authorises POST /api/v1/chain/records on a server
sharing the same auth.token_secret:

  POWCHAIN_AUTH_TOKEN_SECRET=s3cret powchain token --subject alice`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		tokens, err := tokenIssuer()
		if err != nil {
			return err
		}
		if tokens == nil {
			return errors.New("auth.token_secret is not configured")
		}
		subject, _ := cmd.Flags().GetString("subject")
		token, err := tokens.Issue(subject, []string{identity.ScopeAppend})
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), token)
		return nil
	},
}

func init() {
	tokenCmd.Flags().String("subject", "powchain-cli", "Token subject")
}

// tokenIssuer returns nil when no secret is configured.
func tokenIssuer() (*identity.TokenIssuer, error) {
	secret := viper.GetString("auth.token_secret")
	if secret == "" {
		return nil, nil
	}
	ttl := viper.GetDuration("auth.token_ttl")
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return identity.NewTokenIssuer([]byte(secret), viper.GetString("auth.issuer"), ttl)
}

// ── version ──────────────────────────────────────────────────────────────────

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the powchain version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "powchain %s\n", version)
	},
}
