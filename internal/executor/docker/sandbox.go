// Package docker implements executor.Sandbox with one throwaway Docker
// container per run.
//
// ISOLATION:
// Each run gets a fresh container created from Config.Image with
//   - no network (NetworkMode "none")
//   - a memory cap with swap disabled, a CPU share and a pids limit
//   - a read-only root filesystem plus a small executable tmpfs at /tmp
//   - no-new-privileges and every capability dropped
//   - the workspace bind-mounted read-only at /code
//   - an unprivileged user
//
// The container is removed on every path, including supervisor kills.
//
// TIMEOUTS:
// The program runs under coreutils timeout(1) inside the container, with
// SIGKILL one second after SIGTERM for programs that ignore it. The
// outer deadline (timeout + SupervisorGrace) exists for the case where the
// inner wrapper does not terminate things; it kills the container from the
// host.
package docker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/rs/xid"

	"github.com/sakif/cjudge/internal/executor"
	"github.com/sakif/cjudge/internal/metrics"
)

const (
	workspaceMount = "/code"
	scratchDir     = "/tmp"
	deadlineFile   = ".deadline"
)

// Sandbox runs workspaces in Docker containers.
type Sandbox struct {
	cli    *client.Client
	config Config
	logger *slog.Logger
	pool   *Pool
}

var _ executor.Sandbox = (*Sandbox)(nil)

// New connects to the Docker daemon described by the environment
// (DOCKER_HOST and friends).
func New(cfg Config, logger *slog.Logger) (*Sandbox, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("docker: creating client: %w", err)
	}

	return &Sandbox{
		cli:    cli,
		config: cfg,
		logger: logger,
		pool:   NewPool(cfg.MaxConcurrent, cfg.AcquireTimeout),
	}, nil
}

// Close releases the Docker client.
func (s *Sandbox) Close() error {
	return s.cli.Close()
}

// Ping checks that the daemon is reachable.
func (s *Sandbox) Ping(ctx context.Context) error {
	if _, err := s.cli.Ping(ctx); err != nil {
		return fmt.Errorf("docker: ping: %w", err)
	}
	return nil
}

// EnsureImage pulls the sandbox image unless it is already present.
func (s *Sandbox) EnsureImage(ctx context.Context) error {
	if _, err := s.cli.ImageInspect(ctx, s.config.Image); err == nil {
		return nil
	}

	s.logger.Info("pulling sandbox image", slog.String("image", s.config.Image))
	reader, err := s.cli.ImagePull(ctx, s.config.Image, image.PullOptions{})
	if err != nil {
		return fmt.Errorf("docker: pulling image %s: %w", s.config.Image, err)
	}
	defer reader.Close()

	// The pull only completes once the progress stream is consumed.
	if _, err := io.Copy(io.Discard, reader); err != nil {
		return fmt.Errorf("docker: pulling image %s: %w", s.config.Image, err)
	}
	s.logger.Info("sandbox image is ready", slog.String("image", s.config.Image))
	return nil
}

// Run compiles and executes the workspace in a new container.
func (s *Sandbox) Run(ctx context.Context, spec executor.Spec) (*executor.Output, error) {
	if err := s.pool.Acquire(ctx); err != nil {
		return nil, err
	}
	defer s.pool.Release()

	// === 1. CREATE ===
	created := time.Now()
	name := "cjudge-" + xid.New().String()
	resp, err := s.cli.ContainerCreate(ctx,
		containerConfig(s.config, spec.Timeout),
		hostConfig(s.config, spec.WorkspaceDir),
		nil, nil, name,
	)
	if err != nil {
		return nil, fmt.Errorf("docker: creating container: %w", err)
	}
	id := resp.ID
	defer s.remove(id)

	// === 2. ATTACH ===
	// Attaching before start guarantees no output is missed. The log driver
	// is disabled, so this stream is the only copy of the output.
	hijack, err := s.cli.ContainerAttach(ctx, id, container.AttachOptions{
		Stream: true,
		Stdout: true,
		Stderr: true,
	})
	if err != nil {
		return nil, fmt.Errorf("docker: attaching to container: %w", err)
	}
	defer hijack.Close()

	stdout := newLimitedBuffer(s.config.OutputLimit)
	stderr := newLimitedBuffer(s.config.OutputLimit)
	copyDone := make(chan error, 1)
	go func() {
		_, err := stdcopy.StdCopy(stdout, stderr, hijack.Reader)
		copyDone <- err
	}()

	// === 3. START AND SUPERVISE ===
	waitCtx, cancel := context.WithTimeout(ctx, spec.Timeout+s.config.SupervisorGrace)
	defer cancel()
	statusCh, errCh := s.cli.ContainerWait(waitCtx, id, container.WaitConditionNextExit)

	if err := s.cli.ContainerStart(ctx, id, container.StartOptions{}); err != nil {
		return nil, fmt.Errorf("docker: starting container: %w", err)
	}
	metrics.ContainerCreationTime.Observe(float64(time.Since(created).Milliseconds()))

	out := &executor.Output{}
	copyFinished := false

wait:
	for {
		select {
		case status := <-statusCh:
			if status.Error != nil {
				return nil, fmt.Errorf("docker: waiting for container: %s", status.Error.Message)
			}
			out.ExitCode = int(status.StatusCode)
			break wait

		case err := <-errCh:
			if ctx.Err() != nil {
				s.kill(id)
				return nil, ctx.Err()
			}
			if errors.Is(err, context.DeadlineExceeded) || waitCtx.Err() != nil {
				s.logger.Warn("supervisor deadline reached, killing container",
					slog.String("container", name),
					slog.Duration("timeout", spec.Timeout),
				)
				s.kill(id)
				out.SupervisorTimedOut = true
				out.ExitCode = executor.TimeoutExitCode
				break wait
			}
			return nil, fmt.Errorf("docker: waiting for container: %w", err)

		case err := <-copyDone:
			copyFinished = true
			copyDone = nil
			if errors.Is(err, errOutputLimit) {
				// Stop the guest now rather than letting it spin until the timeout.
				s.kill(id)
			}
		}
	}

	// The attach stream closes when the container exits; give it a moment
	// to drain.
	if !copyFinished {
		select {
		case <-copyDone:
		case <-time.After(2 * time.Second):
		}
	}

	// === 4. INSPECT ===
	inspectCtx, inspectCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer inspectCancel()
	if info, err := s.cli.ContainerInspect(inspectCtx, id); err == nil && info.State != nil {
		out.OOMKilled = info.State.OOMKilled
	}

	compileOutput, programStderr, compiled := splitStderr(stderr.String())
	programStderr, deadline := cutDeadline(programStderr)
	out.Stdout = stdout.String()
	out.Stderr = programStderr
	out.TimedOut = compiled && deadline
	out.CompileOutput = compileOutput
	out.Compiled = compiled
	out.OutputExceeded = stdout.Exceeded() || stderr.Exceeded()

	return out, nil
}

func (s *Sandbox) kill(id string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.cli.ContainerKill(ctx, id, "KILL"); err != nil {
		s.logger.Debug("container kill failed", slog.String("id", id), slog.String("error", err.Error()))
	}
}

// remove force-removes a container. It uses its own context so cleanup
// still happens when the request context is already cancelled.
func (s *Sandbox) remove(id string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.cli.ContainerRemove(ctx, id, container.RemoveOptions{Force: true}); err != nil {
		s.logger.Error("failed to remove container", slog.String("id", id), slog.String("error", err.Error()))
	}
}

// containerConfig describes the process: a shell running the compile-then-run script.
func containerConfig(cfg Config, timeout time.Duration) *container.Config {
	return &container.Config{
		Image:           cfg.Image,
		Cmd:             []string{"sh", "-c", runScript(timeout)},
		User:            cfg.User,
		WorkingDir:      scratchDir,
		Tty:             false,
		AttachStdout:    true,
		AttachStderr:    true,
		NetworkDisabled: true,
	}
}

// hostConfig carries every isolation constraint.
func hostConfig(cfg Config, workspaceDir string) *container.HostConfig {
	pids := cfg.PidsLimit
	return &container.HostConfig{
		NetworkMode: "none",
		Resources: container.Resources{
			Memory:     cfg.MemoryLimit,
			MemorySwap: cfg.MemoryLimit,
			NanoCPUs:   int64(cfg.CPULimit * 1e9),
			PidsLimit:  &pids,
		},
		ReadonlyRootfs: true,
		Tmpfs: map[string]string{
			scratchDir: "rw,exec,nosuid,mode=1777,size=" + strconv.FormatInt(cfg.TmpfsSize, 10),
		},
		SecurityOpt: []string{"no-new-privileges:true"},
		CapDrop:     []string{"ALL"},
		Mounts: []mount.Mount{{
			Type:     mount.TypeBind,
			Source:   workspaceDir,
			Target:   workspaceMount,
			ReadOnly: true,
		}},
		LogConfig:  container.LogConfig{Type: "none"},
		AutoRemove: false,
	}
}

// runScript copies the source into scratch space, compiles it, announces a
// successful compile on stderr and runs the program under timeout(1). gcc
// writes its diagnostics to stderr ahead of the marker.
//
// timeout(1) exits 124 when SIGTERM ends the program, but 137 when the program
// ignores SIGTERM and the -k escalation kills it. A background sleep touches a
// deadline file when the limit is reached; any failure after that is reported
// as a timeout with the deadline marker and exit 124.
func runScript(timeout time.Duration) string {
	secs := strconv.FormatFloat(timeout.Seconds(), 'f', -1, 64)
	return fmt.Sprintf(
		"cp %[1]s/%[2]s %[3]s/%[2]s || exit 1; "+
			"gcc -O2 -o %[3]s/a.out %[3]s/%[2]s -lm || exit 1; "+
			"echo %[4]s >&2; "+
			"(sleep %[5]s && touch %[3]s/%[7]s) >/dev/null 2>&1 & "+
			"timeout -k 1 %[5]ss %[3]s/a.out < %[1]s/%[6]s; rc=$?; "+
			"if [ $rc -ne 0 ] && [ -e %[3]s/%[7]s ]; then echo %[8]s >&2; exit %[9]d; fi; "+
			"exit $rc",
		workspaceMount, executor.SourceFile, scratchDir, compileMarker, secs, executor.InputFile,
		deadlineFile, deadlineMarker, executor.TimeoutExitCode,
	)
}
