// Package judge runs a submission against an ordered list of test cases and
// aggregates a verdict.
//
// Cases run one at a time, in order, each in its own sandbox. A compile error
// on any case ends the pass immediately, since compilation does not depend on
// the input. Every other failure is recorded and the pass continues.
//
// VERDICT PRECEDENCE:
// When not every case passed, the verdict is the first that applies of
//
//	time_limit > memory_limit > runtime_error > wrong_answer
//
// so a pass that times out on case 3 and answers wrong on case 1 is reported
// as time_limit.
package judge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/sakif/cjudge/internal/apperror"
	"github.com/sakif/cjudge/internal/executor"
	"github.com/sakif/cjudge/internal/metrics"
	"github.com/sakif/cjudge/internal/screener"
)

// Verdict is the final judgement of a submission.
type Verdict string

const (
	Accepted         Verdict = "accepted"
	WrongAnswer      Verdict = "wrong_answer"
	CompileError     Verdict = "compile_error"
	RuntimeError     Verdict = "runtime_error"
	TimeLimit        Verdict = "time_limit"
	MemoryLimit      Verdict = "memory_limit"
	SecurityRejected Verdict = "security_rejected"
)

// TimedOutActual replaces the program output in a timed out case.
const TimedOutActual = "(timed out)"

// PassTimeLimitMessage is the error of a case the pass had no time left for.
const PassTimeLimitMessage = "Time Limit Exceeded: judging time budget used up"

// TestCase is one input and its expected output.
type TestCase struct {
	Input  string `json:"input"`
	Output string `json:"output"`
}

// UnmarshalJSON also accepts "expectedOutput" for the expected output, the
// name older clients send.
func (tc *TestCase) UnmarshalJSON(data []byte) error {
	var raw struct {
		Input          string  `json:"input"`
		Output         *string `json:"output"`
		ExpectedOutput *string `json:"expectedOutput"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	tc.Input = raw.Input
	switch {
	case raw.Output != nil:
		tc.Output = *raw.Output
	case raw.ExpectedOutput != nil:
		tc.Output = *raw.ExpectedOutput
	default:
		tc.Output = ""
	}
	return nil
}

type failure int

const (
	failNone failure = iota
	failWrong
	failRuntime
	failMemory
	failTime
)

// Detail is the outcome of one case. Index starts at 1; the synthetic detail
// of a screener rejection has index 0.
type Detail struct {
	Index    int    `json:"index"`
	Passed   bool   `json:"passed"`
	Expected string `json:"expected,omitempty"`
	Actual   string `json:"actual,omitempty"`
	Error    string `json:"error,omitempty"`

	failure failure
}

// Report is the judged result of a whole pass.
type Report struct {
	Success    bool     `json:"success"`
	Verdict    Verdict  `json:"verdict"`
	Passed     int      `json:"passed"`
	Total      int      `json:"total"`
	DurationMs int64    `json:"durationMs"`
	Details    []Detail `json:"details"`
}

// Config tunes the judge.
type Config struct {
	// Timeout is the per-case limit. It is deliberately tighter than the
	// default for a plain run.
	Timeout time.Duration
	// SecurityVerdict reports screener rejections as security_rejected
	// instead of compile_error.
	SecurityVerdict bool
	// PassTimeout bounds a whole pass. Cases still pending when it runs out
	// are reported as timed out. Zero means no bound.
	PassTimeout time.Duration
}

// DefaultConfig returns the per-case timeout of five seconds and the
// compile_error verdict for rejected code.
func DefaultConfig() Config {
	return Config{Timeout: 5 * time.Second}
}

// Judge evaluates submissions with an Executor.
type Judge struct {
	exec   executor.Executor
	config Config
	logger *slog.Logger
}

// New creates a Judge.
func New(exec executor.Executor, cfg Config, logger *slog.Logger) *Judge {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultConfig().Timeout
	}
	return &Judge{exec: exec, config: cfg, logger: logger}
}

// Judge runs code against cases and returns the report.
//
// The error is non-nil only when the pass could not be finished: ctx was
// cancelled, or the sandbox had no capacity. Everything the code itself does
// wrong is part of the report.
func (j *Judge) Judge(ctx context.Context, code string, cases []TestCase) (*Report, error) {
	start := time.Now()
	total := len(cases)

	if v := screener.Screen(code); !v.Safe {
		verdict := CompileError
		if j.config.SecurityVerdict {
			verdict = SecurityRejected
		}
		return j.finish(&Report{
			Verdict: verdict,
			Total:   total,
			Details: []Detail{{Index: 0, Error: v.Reason}},
		}, start), nil
	}

	report := &Report{Total: total, Details: make([]Detail, 0, total)}

	passCtx := ctx
	if j.config.PassTimeout > 0 {
		var cancel context.CancelFunc
		passCtx, cancel = context.WithTimeout(ctx, j.config.PassTimeout)
		defer cancel()
	}

	for i, tc := range cases {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("judge: cancelled before case %d: %w", i+1, err)
		}
		if passCtx.Err() != nil {
			report.Details = append(report.Details, expired(i, cases)...)
			break
		}

		index := i + 1
		res, err := j.exec.Execute(passCtx, executor.Request{
			Code:    code,
			Stdin:   tc.Input,
			Timeout: j.config.Timeout,
		})
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, fmt.Errorf("judge: cancelled during case %d: %w", index, ctxErr)
			}
			if passCtx.Err() != nil {
				j.logger.Warn("judge pass ran out of time",
					slog.Int("case", index),
					slog.Int("total", total),
					slog.Duration("passTimeout", j.config.PassTimeout),
				)
				report.Details = append(report.Details, expired(i, cases)...)
				break
			}
			if errors.Is(err, apperror.ErrUnavailable) {
				return nil, err
			}
			j.logger.Error("case failed to run",
				slog.Int("case", index),
				slog.String("error", err.Error()),
			)
			report.Details = append(report.Details, Detail{
				Index:    index,
				Expected: normalize(tc.Output),
				Error:    "internal error: the sandbox could not run this case",
				failure:  failRuntime,
			})
			continue
		}

		if res.Classification == executor.ClassCompileError || res.Classification == executor.ClassSecurityViolation {
			return j.finish(&Report{
				Verdict: CompileError,
				Total:   total,
				Details: []Detail{{Index: index, Error: res.Stderr}},
			}, start), nil
		}

		report.Details = append(report.Details, evaluate(index, tc, res))
	}

	report.Passed = countPassed(report.Details)
	report.Verdict = aggregate(report.Details, total)
	return j.finish(report, start), nil
}

func (j *Judge) finish(r *Report, start time.Time) *Report {
	r.DurationMs = time.Since(start).Milliseconds()
	r.Success = r.Verdict == Accepted
	metrics.VerdictsTotal.WithLabelValues(string(r.Verdict)).Inc()
	j.logger.Debug("submission judged",
		slog.String("verdict", string(r.Verdict)),
		slog.Int("passed", r.Passed),
		slog.Int("total", r.Total),
		slog.Int64("durationMs", r.DurationMs),
	)
	return r
}

// evaluate turns one run into a Detail.
func evaluate(index int, tc TestCase, res *executor.Result) Detail {
	expected := normalize(tc.Output)

	switch {
	case res.Classification == executor.ClassTimeout:
		return Detail{
			Index:    index,
			Expected: expected,
			Actual:   TimedOutActual,
			Error:    executor.TimeLimitMessage,
			failure:  failTime,
		}

	case res.Classification == executor.ClassRuntimeError && res.MemoryExceeded:
		return Detail{
			Index:    index,
			Expected: expected,
			Actual:   res.Stdout,
			Error:    executor.MemoryLimitMessage,
			failure:  failMemory,
		}

	case res.Classification != executor.ClassOK:
		msg := res.Stderr
		if msg == "" {
			msg = string(res.Classification)
		}
		return Detail{
			Index:    index,
			Expected: expected,
			Actual:   res.Stdout,
			Error:    msg,
			failure:  failRuntime,
		}
	}

	actual := normalize(res.Stdout)
	d := Detail{
		Index:    index,
		Passed:   expected == actual,
		Expected: expected,
		Actual:   actual,
	}
	if !d.Passed {
		d.failure = failWrong
	}
	return d
}

// expired fails cases[from:] because the pass ran out of time before they
// could finish.
func expired(from int, cases []TestCase) []Detail {
	details := make([]Detail, 0, len(cases)-from)
	for i := from; i < len(cases); i++ {
		details = append(details, Detail{
			Index:    i + 1,
			Expected: normalize(cases[i].Output),
			Actual:   TimedOutActual,
			Error:    PassTimeLimitMessage,
			failure:  failTime,
		})
	}
	return details
}

// aggregate picks the verdict for a pass that ran to completion.
func aggregate(details []Detail, total int) Verdict {
	if countPassed(details) == total {
		return Accepted
	}

	worst := failNone
	for _, d := range details {
		worst = max(worst, d.failure)
	}

	switch worst {
	case failTime:
		return TimeLimit
	case failMemory:
		return MemoryLimit
	case failRuntime:
		return RuntimeError
	default:
		return WrongAnswer
	}
}

func countPassed(details []Detail) int {
	n := 0
	for _, d := range details {
		if d.Passed {
			n++
		}
	}
	return n
}

// normalize trims surrounding whitespace and turns CRLF into LF.
func normalize(s string) string {
	return strings.TrimSpace(strings.ReplaceAll(s, "\r\n", "\n"))
}
