// Command integrity is the operator CLI for the integrity core: chain
// verification, offline proof checks and batch anchoring.
package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/atlasops/integrity-core/pkg/anchor"
	"github.com/atlasops/integrity-core/pkg/auditchain"
	"github.com/atlasops/integrity-core/pkg/config"
	"github.com/atlasops/integrity-core/pkg/fbac"
	"github.com/atlasops/integrity-core/pkg/lock"
	"github.com/atlasops/integrity-core/pkg/merkle"
	"github.com/atlasops/integrity-core/pkg/observability"
	"github.com/atlasops/integrity-core/pkg/store"

	_ "github.com/lib/pq"  // Postgres driver
	_ "modernc.org/sqlite" // SQLite driver
)

func main() {
	os.Exit(Run(os.Args, os.Stdout, os.Stderr))
}

// Run is the entrypoint for testing.
func Run(args []string, stdout, stderr io.Writer) int {
	cfg := config.Load()
	setupLogging(cfg, stderr)

	if len(args) < 2 {
		printUsage(stderr)
		return 2
	}

	switch args[1] {
	case "verify-chain":
		return runVerifyChain(cfg, args[2:], stdout, stderr)
	case "verify-proof":
		return runVerifyProof(args[2:], stdout, stderr)
	case "anchor":
		return runAnchor(cfg, args[2:], stdout, stderr)
	case "load-policies":
		return runLoadPolicies(cfg, args[2:], stdout, stderr)
	case "help", "--help", "-h":
		printUsage(stdout)
		return 0
	default:
		_, _ = fmt.Fprintf(stderr, "Unknown command: %s\n", args[1])
		printUsage(stderr)
		return 2
	}
}

func setupLogging(cfg *config.Config, w io.Writer) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		level = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})))
}

// initTelemetry installs the OTLP providers when an endpoint is configured.
// Without one the global no-op providers stay in place and every span and
// counter in the library is free.
func initTelemetry(ctx context.Context, cfg *config.Config) func() {
	obsCfg := observability.DefaultConfig()
	obsCfg.Enabled = cfg.OTLPEndpoint != ""
	if obsCfg.Enabled {
		obsCfg.OTLPEndpoint = cfg.OTLPEndpoint
	}

	provider, err := observability.New(ctx, obsCfg)
	if err != nil {
		slog.Warn("telemetry init failed, continuing without exporters", "error", err)
		return func() {}
	}
	return func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = provider.Shutdown(sctx)
	}
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "Usage: integrity <command> [flags]")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  verify-chain  -tenant <id>                     verify a tenant's audit chain")
	fmt.Fprintln(w, "  verify-proof  -leaf <hex> -root <hex> -proof <file>  check an inclusion proof offline")
	fmt.Fprintln(w, "  anchor        -batch <file>                    anchor a JSON batch file")
	fmt.Fprintln(w, "  load-policies -dir <dir>                       install YAML policy bundles")
}

func openDB(cfg *config.Config) (*sql.DB, error) {
	db, err := sql.Open(cfg.DatabaseDriver, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if cfg.DatabaseDriver == "sqlite" {
		// In-memory sqlite gives each pool connection its own database.
		db.SetMaxOpenConns(1)
	}
	return db, nil
}

func runVerifyChain(cfg *config.Config, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("verify-chain", flag.ContinueOnError)
	fs.SetOutput(stderr)
	tenant := fs.String("tenant", "", "tenant scope to verify")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *tenant == "" {
		_, _ = fmt.Fprintln(stderr, "verify-chain: -tenant is required")
		return 2
	}

	db, err := openDB(cfg)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "verify-chain: %v\n", err)
		return 1
	}
	defer func() { _ = db.Close() }()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	shutdown := initTelemetry(ctx, cfg)
	defer shutdown()

	verifier := auditchain.NewVerifier(store.NewSQLAuditStore(db))
	report, err := verifier.VerifyChain(ctx, *tenant)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "verify-chain: %v\n", err)
		return 1
	}

	out, _ := json.MarshalIndent(report, "", "  ")
	_, _ = fmt.Fprintln(stdout, string(out))
	if !report.Valid {
		return 1
	}
	return 0
}

func runVerifyProof(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("verify-proof", flag.ContinueOnError)
	fs.SetOutput(stderr)
	leaf := fs.String("leaf", "", "leaf hash (hex)")
	root := fs.String("root", "", "expected root hash (hex)")
	proofPath := fs.String("proof", "", "path to a JSON proof file")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *leaf == "" || *root == "" || *proofPath == "" {
		_, _ = fmt.Fprintln(stderr, "verify-proof: -leaf, -root and -proof are required")
		return 2
	}

	raw, err := os.ReadFile(*proofPath)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "verify-proof: read proof: %v\n", err)
		return 1
	}
	var proof []merkle.ProofNode
	if err := json.Unmarshal(raw, &proof); err != nil {
		_, _ = fmt.Fprintf(stderr, "verify-proof: decode proof: %v\n", err)
		return 1
	}

	if merkle.VerifyProof(*leaf, proof, *root) {
		_, _ = fmt.Fprintln(stdout, "proof OK")
		return 0
	}
	_, _ = fmt.Fprintln(stdout, "proof FAILED")
	return 1
}

func runAnchor(cfg *config.Config, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("anchor", flag.ContinueOnError)
	fs.SetOutput(stderr)
	batchPath := fs.String("batch", "", "path to a JSON batch file")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *batchPath == "" {
		_, _ = fmt.Fprintln(stderr, "anchor: -batch is required")
		return 2
	}

	raw, err := os.ReadFile(*batchPath)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "anchor: read batch: %v\n", err)
		return 1
	}
	var batch anchor.Batch
	if err := json.Unmarshal(raw, &batch); err != nil {
		_, _ = fmt.Fprintf(stderr, "anchor: decode batch: %v\n", err)
		return 1
	}

	db, err := openDB(cfg)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "anchor: %v\n", err)
		return 1
	}
	defer func() { _ = db.Close() }()

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()
	shutdown := initTelemetry(ctx, cfg)
	defer shutdown()

	anchors := store.NewSQLAnchorStore(db)
	audits := store.NewSQLAuditStore(db)
	if err := anchors.Init(ctx); err != nil {
		_, _ = fmt.Fprintf(stderr, "anchor: %v\n", err)
		return 1
	}
	if err := audits.Init(ctx); err != nil {
		_, _ = fmt.Fprintf(stderr, "anchor: %v\n", err)
		return 1
	}

	publisher, err := anchor.NewPublisherFromEnv(ctx)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "anchor: %v\n", err)
		return 1
	}

	var locker lock.ScopeLocker = lock.NewKeyedMutex()
	if cfg.RedisAddr != "" {
		locker = lock.NewRedisLocker(redis.NewClient(&redis.Options{Addr: cfg.RedisAddr}), 0)
	}
	appender := auditchain.NewAppender(audits, locker)

	svc := anchor.NewService(anchors, publisher, appender)
	a, err := svc.AnchorBatch(ctx, batch)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "anchor: %v\n", err)
		return 1
	}

	out, _ := json.MarshalIndent(a, "", "  ")
	_, _ = fmt.Fprintln(stdout, string(out))
	return 0
}

func runLoadPolicies(cfg *config.Config, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("load-policies", flag.ContinueOnError)
	fs.SetOutput(stderr)
	dir := fs.String("dir", cfg.PolicyBundleDir, "directory of YAML policy bundles")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *dir == "" {
		_, _ = fmt.Fprintln(stderr, "load-policies: -dir or POLICY_BUNDLE_DIR is required")
		return 2
	}

	files, err := os.ReadDir(*dir)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "load-policies: %v\n", err)
		return 1
	}

	db, err := openDB(cfg)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "load-policies: %v\n", err)
		return 1
	}
	defer func() { _ = db.Close() }()

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()
	shutdown := initTelemetry(ctx, cfg)
	defer shutdown()

	policies := store.NewSQLPolicyStore(db)
	if err := policies.Init(ctx); err != nil {
		_, _ = fmt.Fprintf(stderr, "load-policies: %v\n", err)
		return 1
	}

	installed := 0
	for _, f := range files {
		name := f.Name()
		if f.IsDir() || (!strings.HasSuffix(name, ".yaml") && !strings.HasSuffix(name, ".yml")) {
			continue
		}
		bundle, err := fbac.LoadBundle(filepath.Join(*dir, name))
		if err != nil {
			_, _ = fmt.Fprintf(stderr, "load-policies: %s: %v\n", name, err)
			return 1
		}
		for _, p := range bundle.PolicyRows() {
			if err := policies.Upsert(ctx, p); err != nil {
				_, _ = fmt.Fprintf(stderr, "load-policies: %s: %v\n", name, err)
				return 1
			}
		}
		installed += len(bundle.Policies)
		slog.Info("policy bundle installed", "bundle", bundle.Name, "version", bundle.Version, "policies", len(bundle.Policies))
	}

	_, _ = fmt.Fprintf(stdout, "installed %d policies from %s\n", installed, *dir)
	return 0
}
