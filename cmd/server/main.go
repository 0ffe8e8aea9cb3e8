// Package main is the entry point for the C judge server.
//
// MAIN PACKAGE IN GO:
// main's job is to:
//  1. Read configuration (environment variables, see internal/config)
//  2. Create dependencies (logger, database, Docker sandbox, judge, services)
//  3. Start the application
//
// All actual logic lives in imported packages (internal/server, internal/judge, ...).
//
// Run `server -hash-admin-key` and type a key on stdin to get the bcrypt
// hash for ADMIN_KEY_HASH.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sakif/cjudge/internal/auth"
	"github.com/sakif/cjudge/internal/config"
	"github.com/sakif/cjudge/internal/executor"
	"github.com/sakif/cjudge/internal/executor/docker"
	"github.com/sakif/cjudge/internal/handler"
	"github.com/sakif/cjudge/internal/judge"
	sqliteRepo "github.com/sakif/cjudge/internal/repository/sqlite"
	"github.com/sakif/cjudge/internal/server"
	"github.com/sakif/cjudge/internal/service"
)

func main() {
	hashKey := flag.Bool("hash-admin-key", false, "read an admin key from stdin, print its bcrypt hash and exit")
	flag.Parse()

	if *hashKey {
		if err := printAdminKeyHash(os.Stdin, os.Stdout); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		return
	}

	// === 1. CONFIGURATION ===
	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// === 2. LOGGING ===
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}))
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("server error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run(cfg config.Config, logger *slog.Logger) error {
	// === 3. DATABASE ===
	// os.MkdirAll is `mkdir -p`: the data directory is created on first start.
	dbDir := filepath.Dir(cfg.DBPath)
	if err := os.MkdirAll(dbDir, 0o755); err != nil {
		return fmt.Errorf("creating database directory %s: %w", dbDir, err)
	}
	db, err := sqliteRepo.New(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}

	// === 4. SANDBOX ===
	// Unlike the database, the sandbox is not optional: without Docker there
	// is nothing to serve. A missing image is pulled once here so the first
	// request does not pay for it.
	sbCfg := docker.DefaultConfig()
	sbCfg.Image = cfg.Sandbox.Image
	sbCfg.MemoryLimit = cfg.Sandbox.MemoryBytes
	sbCfg.CPULimit = cfg.Sandbox.CPUs
	sbCfg.PidsLimit = cfg.Sandbox.PidsLimit
	sbCfg.TmpfsSize = cfg.Sandbox.TmpfsBytes
	sbCfg.OutputLimit = cfg.Limits.OutputBufferBytes
	sbCfg.MaxConcurrent = cfg.Sandbox.MaxConcurrent

	sandbox, err := docker.New(sbCfg, logger)
	if err != nil {
		db.Close()
		return fmt.Errorf("connecting to Docker: %w", err)
	}

	pullCtx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	err = sandbox.EnsureImage(pullCtx)
	cancel()
	if err != nil {
		sandbox.Close()
		db.Close()
		return fmt.Errorf("preparing sandbox image: %w", err)
	}

	// === 5. EXECUTION CORE ===
	runner := executor.NewRunner(sandbox, executor.RunnerConfig{
		WorkRoot:       cfg.Sandbox.WorkRoot,
		DefaultTimeout: cfg.Limits.RunDefaultTimeout,
	}, logger)
	judger := judge.New(runner, judge.Config{
		Timeout:         cfg.Limits.JudgeTimeout,
		SecurityVerdict: cfg.SecurityVerdict,
		PassTimeout:     cfg.Limits.JudgePassTimeout,
	}, logger)

	// === 6. SERVICES ===
	problems := service.NewProblemService(db, logger)
	submissions := service.NewSubmissionService(db, logger)
	execution := service.NewExecutionService(runner, judger, db, db, service.ExecutionConfig{
		CodeMaxLength:  cfg.Limits.CodeMaxLength,
		DefaultTimeout: cfg.Limits.RunDefaultTimeout,
		MaxTimeout:     cfg.Limits.RunMaxTimeout,
	}, logger)

	if cfg.SeedFile != "" {
		n, err := problems.LoadSeedFile(context.Background(), cfg.SeedFile)
		if err != nil {
			sandbox.Close()
			db.Close()
			return fmt.Errorf("importing %s: %w", cfg.SeedFile, err)
		}
		logger.Info("problem catalog imported", slog.String("file", cfg.SeedFile), slog.Int("problems", n))
	}

	// === 7. AUTH ===
	// JWT_SECRET must be a long random string:
	//   JWT_SECRET=$(openssl rand -hex 32)
	// Without it (or without a GitHub OAuth app) the server still judges,
	// anonymously, and the login routes are not registered.
	deps := server.Deps{
		Execution:   execution,
		Problems:    problems,
		Submissions: submissions,
		AdminKeys:   auth.NewKeyHasher(),
		Health: map[string]handler.Pinger{
			"database": db,
			"docker":   sandbox,
		},
		Closers: []io.Closer{sandbox, db},
	}

	tokens, authHandler, err := setupAuth(cfg.Auth, db, logger)
	if err != nil {
		sandbox.Close()
		db.Close()
		return err
	}
	deps.Tokens = tokens
	deps.Auth = authHandler

	if cfg.Auth.AdminKeyHash == "" {
		logger.Warn("ADMIN_KEY_HASH not set: problem management API is disabled")
	}

	// === 8. SERVE ===
	srv, err := server.New(server.Config{
		Port:           cfg.Port,
		WriteTimeout:   writeTimeout(cfg.Limits, sbCfg.SupervisorGrace),
		RateLimitRPS:   cfg.RateLimitRPS,
		RateLimitBurst: cfg.RateLimitBurst,
		AdminKeyHash:   cfg.Auth.AdminKeyHash,
	}, deps, logger)
	if err != nil {
		sandbox.Close()
		db.Close()
		return fmt.Errorf("creating server: %w", err)
	}

	// Start blocks until SIGINT/SIGTERM and closes the sandbox and database.
	return srv.Start()
}

// setupAuth returns nil, nil when login is not configured.
func setupAuth(cfg config.AuthConfig, db *sqliteRepo.DB, logger *slog.Logger) (*auth.TokenService, *handler.AuthHandler, error) {
	if cfg.JWTSecret == "" {
		logger.Warn("JWT_SECRET not set: authentication is disabled")
		return nil, nil, nil
	}
	tokens, err := auth.NewTokenService(cfg.JWTSecret)
	if err != nil {
		return nil, nil, fmt.Errorf("creating token service: %w", err)
	}
	if cfg.GitHubClientID == "" || cfg.GitHubClientSecret == "" {
		logger.Warn("GitHub OAuth app not configured: login is disabled")
		return tokens, nil, nil
	}

	github := auth.NewGitHubProvider(cfg.GitHubClientID, cfg.GitHubClientSecret, cfg.GitHubCallbackURL)
	authService := service.NewAuthService(db, tokens, logger)
	return tokens, handler.NewAuthHandler(github, authService, tokens.TTL(), logger), nil
}

// responseMargin covers what follows the last sandbox deadline of a request:
// killing and removing the container and recording the submission.
const responseMargin = 30 * time.Second

// writeTimeout outlasts the slowest request the limits allow: a judge pass
// stops starting cases at JudgePassTimeout, and a run is killed from outside
// at RunMaxTimeout plus the supervisor grace.
func writeTimeout(limits config.LimitsConfig, grace time.Duration) time.Duration {
	return max(limits.JudgePassTimeout, limits.RunMaxTimeout+grace) + responseMargin
}

func printAdminKeyHash(in io.Reader, out io.Writer) error {
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("reading admin key: %w", err)
	}
	key := strings.TrimSpace(line)
	if key == "" {
		return errors.New("admin key must not be empty")
	}
	hash, err := auth.NewKeyHasher().Hash(key)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(out, hash)
	return err
}
