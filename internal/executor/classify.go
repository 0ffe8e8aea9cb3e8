package executor

import (
	"fmt"
	"strings"
)

// classify maps what the sandbox saw to a Result. The order of the cases
// matters: a supervisor kill wins over everything, and a program that never
// compiled cannot have a runtime error.
func classify(out *Output) *Result {
	res := &Result{
		ExitCode:      out.ExitCode,
		CompileOutput: strings.TrimSpace(out.CompileOutput),
	}

	switch {
	case out.SupervisorTimedOut || (out.Compiled && (out.TimedOut || out.ExitCode == TimeoutExitCode)):
		res.Classification = ClassTimeout
		res.Compiled = true
		res.ExitCode = TimeoutExitCode
		res.Stdout = strings.TrimSpace(out.Stdout)
		res.Stderr = TimeLimitMessage

	case !out.Compiled:
		res.Classification = ClassCompileError
		res.Stderr = res.CompileOutput
		if res.Stderr == "" {
			res.Stderr = strings.TrimSpace(out.Stderr)
		}

	case out.OutputExceeded:
		res.Classification = ClassRuntimeError
		res.Compiled = true
		res.Stdout = strings.TrimSpace(out.Stdout)
		res.Stderr = OutputLimitMessage

	case out.OOMKilled:
		res.Classification = ClassRuntimeError
		res.Compiled = true
		res.MemoryExceeded = true
		res.Stdout = strings.TrimSpace(out.Stdout)
		res.Stderr = MemoryLimitMessage

	case out.ExitCode != 0:
		res.Classification = ClassRuntimeError
		res.Compiled = true
		res.Stdout = strings.TrimSpace(out.Stdout)
		res.Stderr = runtimeMessage(out)

	default:
		res.Classification = ClassOK
		res.Success = true
		res.Compiled = true
		res.Executed = true
		res.Stdout = strings.TrimSpace(out.Stdout)
		res.Stderr = strings.TrimSpace(out.Stderr)
	}

	return res
}

// signalNames covers the signals a student program realistically dies of.
var signalNames = map[int]string{
	4:  "SIGILL",
	6:  "SIGABRT",
	7:  "SIGBUS",
	8:  "SIGFPE",
	9:  "SIGKILL",
	11: "SIGSEGV",
	13: "SIGPIPE",
	15: "SIGTERM",
	24: "SIGXCPU",
	25: "SIGXFSZ",
}

// runtimeMessage is the program's stderr, with the terminating signal
// appended when the shell reported one (exit status 128+n).
func runtimeMessage(out *Output) string {
	msg := strings.TrimSpace(out.Stderr)

	var suffix string
	if out.ExitCode > 128 {
		if name, ok := signalNames[out.ExitCode-128]; ok {
			suffix = fmt.Sprintf("terminated by %s", name)
		}
	}
	if suffix == "" && msg == "" {
		suffix = fmt.Sprintf("exited with code %d", out.ExitCode)
	}

	switch {
	case msg == "":
		return suffix
	case suffix == "":
		return msg
	default:
		return msg + "\n" + suffix
	}
}
