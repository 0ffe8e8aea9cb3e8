// Package executor defines how a C submission is compiled and run.
//
// The package has two layers:
//
//   - Executor is what callers (the judge, the HTTP services) depend on:
//     give it source code and stdin, get back a classified Result.
//   - Sandbox is the isolation backend the Runner drives. It only knows how
//     to compile and run whatever sits in a workspace directory; it never
//     sees the submission itself. The Docker implementation lives in
//     executor/docker.
//
// Runner glues the two together: screen, materialise the workspace, run the
// sandbox, classify, clean up.
package executor

import (
	"context"
	"time"
)

// Classification is the categorical outcome of a single run.
type Classification string

const (
	ClassOK                Classification = "ok"
	ClassSecurityViolation Classification = "security_violation"
	ClassCompileError      Classification = "compile_error"
	ClassTimeout           Classification = "timeout"
	ClassRuntimeError      Classification = "runtime_error"

	// ClassInternalError is never set on a Result. The Runner returns an
	// error instead; the kind exists so handlers and metrics can name it.
	ClassInternalError Classification = "internal_error"
)

const (
	// SourceFile and InputFile are the fixed names inside a workspace.
	SourceFile = "main.c"
	InputFile  = "input.txt"

	// TimeoutExitCode follows coreutils timeout(1).
	TimeoutExitCode = 124

	TimeLimitMessage   = "Time Limit Exceeded"
	MemoryLimitMessage = "Memory Limit Exceeded"
	OutputLimitMessage = "output limit exceeded"
)

// Request is one source submission. It is never modified after creation.
type Request struct {
	Code    string
	Stdin   string
	Timeout time.Duration // wall-clock limit for the compiled program; <= 0 means the runner default
}

// Result is the outcome of one compile-and-run cycle.
type Result struct {
	Success        bool           `json:"success"`
	Compiled       bool           `json:"compiled"`
	Executed       bool           `json:"executed"`
	Stdout         string         `json:"stdout"`
	Stderr         string         `json:"stderr"`
	CompileOutput  string         `json:"compileOutput,omitempty"`
	ExitCode       int            `json:"exitCode"`
	DurationMs     int64          `json:"durationMs"`
	Classification Classification `json:"classification"`
	MemoryExceeded bool           `json:"memoryExceeded,omitempty"`
}

// Executor compiles and runs C code in an isolated environment.
type Executor interface {
	Execute(ctx context.Context, req Request) (*Result, error)
}

// Spec tells a Sandbox where the prepared workspace is and how long the
// program may run.
type Spec struct {
	WorkspaceDir string
	Timeout      time.Duration
}

// Output is the raw observation a Sandbox makes. Classification happens in
// the Runner so every backend is judged by the same rules.
type Output struct {
	Stdout        string
	Stderr        string // program stderr only, compiler diagnostics excluded
	CompileOutput string
	ExitCode      int

	// Compiled is true once the compiler finished successfully.
	Compiled bool
	// TimedOut is set when the program was still running at its time
	// limit, whichever signal finally stopped it.
	TimedOut bool
	// SupervisorTimedOut is set when the outer deadline fired and the
	// sandbox had to be killed from outside.
	SupervisorTimedOut bool
	OOMKilled          bool
	OutputExceeded     bool
}

// Sandbox compiles and runs the workspace in isolation.
type Sandbox interface {
	Run(ctx context.Context, spec Spec) (*Output, error)
}
