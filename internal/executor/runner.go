package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/sakif/cjudge/internal/apperror"
	"github.com/sakif/cjudge/internal/metrics"
	"github.com/sakif/cjudge/internal/screener"
)

// RunnerConfig configures a Runner.
type RunnerConfig struct {
	// WorkRoot is the parent of every per-run workspace. Empty means
	// os.TempDir(). It must be a path the Docker daemon can bind-mount.
	WorkRoot string
	// DefaultTimeout applies to requests that do not set one.
	DefaultTimeout time.Duration
}

// Runner is the Executor used in production. It screens the source, prepares
// an ephemeral workspace, hands it to a Sandbox and classifies the outcome.
//
// A Runner holds no per-request state and is safe for concurrent use. Each
// call owns its workspace exclusively and removes it before returning, on
// every path.
type Runner struct {
	sandbox Sandbox
	config  RunnerConfig
	logger  *slog.Logger
}

var _ Executor = (*Runner)(nil)

// NewRunner creates a Runner on top of the given Sandbox.
func NewRunner(sandbox Sandbox, cfg RunnerConfig, logger *slog.Logger) *Runner {
	if cfg.DefaultTimeout <= 0 {
		cfg.DefaultTimeout = 10 * time.Second
	}
	return &Runner{sandbox: sandbox, config: cfg, logger: logger}
}

// Execute runs one submission.
//
// Code-induced failures (screener rejection, compile error, timeout, crash)
// come back as a Result with a nil error. The error is reserved for
// infrastructure problems and wraps apperror.ErrInternal, or
// apperror.ErrUnavailable when the sandbox has no free capacity.
func (r *Runner) Execute(ctx context.Context, req Request) (*Result, error) {
	// === 1. SCREEN ===
	if v := screener.Screen(req.Code); !v.Safe {
		r.logger.Info("submission rejected by screener",
			slog.String("capability", string(v.Capability)),
			slog.String("reason", v.Reason),
		)
		metrics.ScreenerRejections.WithLabelValues(string(v.Capability)).Inc()
		metrics.ObserveRun(string(ClassSecurityViolation), 0)
		return &Result{
			Classification: ClassSecurityViolation,
			ExitCode:       1,
			Stderr:         v.Reason,
		}, nil
	}

	timeout := req.Timeout
	if timeout <= 0 {
		timeout = r.config.DefaultTimeout
	}

	// === 2. WORKSPACE ===
	dir, err := r.prepareWorkspace(req)
	if err != nil {
		metrics.ObserveRun(string(ClassInternalError), 0)
		return nil, apperror.Internal("preparing workspace", err)
	}
	defer r.removeWorkspace(dir)

	// === 3. RUN ===
	start := time.Now()
	out, err := r.sandbox.Run(ctx, Spec{WorkspaceDir: dir, Timeout: timeout})
	elapsed := time.Since(start).Milliseconds()
	if err != nil {
		metrics.ObserveRun(string(ClassInternalError), elapsed)
		if errors.Is(err, apperror.ErrUnavailable) {
			return nil, err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("executor: run cancelled: %w", ctxErr)
		}
		r.logger.Error("sandbox run failed", slog.String("error", err.Error()))
		return nil, apperror.Internal("sandbox run failed", err)
	}

	// === 4. CLASSIFY ===
	res := classify(out)
	res.DurationMs = elapsed
	metrics.ObserveRun(string(res.Classification), elapsed)

	r.logger.Debug("run finished",
		slog.String("classification", string(res.Classification)),
		slog.Int("exitCode", res.ExitCode),
		slog.Int64("durationMs", res.DurationMs),
	)
	return res, nil
}

// prepareWorkspace creates a uniquely named directory holding the source and
// stdin. The sandbox runs as an unprivileged user, so the directory and files
// are made world-readable.
func (r *Runner) prepareWorkspace(req Request) (string, error) {
	dir, err := os.MkdirTemp(r.config.WorkRoot, "c-runner-*")
	if err != nil {
		return "", fmt.Errorf("executor: creating workspace: %w", err)
	}

	if err := writeWorkspace(dir, req); err != nil {
		r.removeWorkspace(dir)
		return "", err
	}
	return dir, nil
}

func writeWorkspace(dir string, req Request) error {
	if err := os.Chmod(dir, 0o755); err != nil {
		return fmt.Errorf("executor: chmod workspace: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, SourceFile), []byte(req.Code), 0o644); err != nil {
		return fmt.Errorf("executor: writing source: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, InputFile), []byte(req.Stdin), 0o644); err != nil {
		return fmt.Errorf("executor: writing input: %w", err)
	}
	return nil
}

func (r *Runner) removeWorkspace(dir string) {
	if err := os.RemoveAll(dir); err != nil {
		r.logger.Error("failed to remove workspace",
			slog.String("dir", dir),
			slog.String("error", err.Error()),
		)
	}
}
