// Package screener is the static denylist pass applied to C source before
// anything is compiled.
//
// The screener is a textual heuristic, not a semantic analysis. Macros,
// string concatenation or case tricks can get around it, so it is NOT the
// security boundary: the sandbox (no network, read-only rootfs, capped
// memory/cpu/pids, no privilege escalation) is. The screener exists to
// reject the obvious cases before paying for a container, and to give the
// user a fast, readable reason.
//
// Known gaps:
//   - Matching is case sensitive. `SYSTEM(` is not rejected here (it would
//     not link either, but a macro could map it).
//   - The mmap rule stops at the first ')', so a PROT_EXEC that follows a
//     parenthesised argument such as sizeof(buf) is not seen.
//   - Header rules only match the <...> form; #include "unistd.h" passes.
package screener

import (
	"fmt"
	"regexp"
)

// Capability names the class of dangerous behaviour a rule guards against.
type Capability string

const (
	ProcessSpawn        Capability = "process_spawn"
	PrivilegeEscalation Capability = "privilege_escalation"
	Tracing             Capability = "tracing"
	InlineAssembly      Capability = "inline_assembly"
	DynamicLoading      Capability = "dynamic_loading"
	ExecutableMemory    Capability = "executable_memory"
	DangerousHeader     Capability = "dangerous_header"
)

// Rule pairs a forbidden pattern with the capability it represents.
type Rule struct {
	Capability Capability
	Pattern    *regexp.Regexp
}

// PatternCount is the number of rules in the denylist. Tests pin it so that
// adding or removing a rule is always a deliberate change.
const PatternCount = 28

// rules is evaluated in order; the first match wins.
var rules = []Rule{
	// process / system calls
	{ProcessSpawn, regexp.MustCompile(`system\s*\(`)},
	{ProcessSpawn, regexp.MustCompile(`exec[lvpe]*\s*\(`)},
	{ProcessSpawn, regexp.MustCompile(`fork\s*\(`)},
	{ProcessSpawn, regexp.MustCompile(`popen\s*\(`)},
	{ProcessSpawn, regexp.MustCompile(`clone\s*\(`)},
	{ProcessSpawn, regexp.MustCompile(`vfork\s*\(`)},

	// privilege escalation
	{PrivilegeEscalation, regexp.MustCompile(`setuid\s*\(`)},
	{PrivilegeEscalation, regexp.MustCompile(`setgid\s*\(`)},
	{PrivilegeEscalation, regexp.MustCompile(`seteuid\s*\(`)},
	{PrivilegeEscalation, regexp.MustCompile(`setegid\s*\(`)},
	{PrivilegeEscalation, regexp.MustCompile(`setreuid\s*\(`)},
	{PrivilegeEscalation, regexp.MustCompile(`setregid\s*\(`)},

	{Tracing, regexp.MustCompile(`ptrace\s*\(`)},

	{InlineAssembly, regexp.MustCompile(`__asm__`)},
	{InlineAssembly, regexp.MustCompile(`__asm\s+volatile`)},
	{InlineAssembly, regexp.MustCompile(`\basm\s*\(`)},

	{DynamicLoading, regexp.MustCompile(`dlopen\s*\(`)},
	{DynamicLoading, regexp.MustCompile(`dlsym\s*\(`)},

	{ExecutableMemory, regexp.MustCompile(`mprotect\s*\(`)},
	{ExecutableMemory, regexp.MustCompile(`mmap\s*\([^)]*PROT_EXEC`)},

	// headers, whitespace tolerant around '#', 'include' and '<'
	{DangerousHeader, regexp.MustCompile(`#\s*include\s*<\s*unistd\.h`)},
	{DangerousHeader, regexp.MustCompile(`#\s*include\s*<\s*sys/`)},
	{DangerousHeader, regexp.MustCompile(`#\s*include\s*<\s*pthread\.h`)},
	{DangerousHeader, regexp.MustCompile(`#\s*include\s*<\s*signal\.h`)},
	{DangerousHeader, regexp.MustCompile(`#\s*include\s*<\s*socket\.h`)},
	{DangerousHeader, regexp.MustCompile(`#\s*include\s*<\s*netinet/`)},
	{DangerousHeader, regexp.MustCompile(`#\s*include\s*<\s*arpa/`)},
	{DangerousHeader, regexp.MustCompile(`#\s*include\s*<\s*dlfcn\.h`)},
}

// Verdict is the outcome of screening one source text.
type Verdict struct {
	Safe       bool       `json:"safe"`
	Reason     string     `json:"reason,omitempty"`
	Capability Capability `json:"capability,omitempty"`
}

// Screen checks source against the denylist. It is pure: the same input
// always yields the same Verdict.
func Screen(source string) Verdict {
	for _, r := range rules {
		if r.Pattern.MatchString(source) {
			return Verdict{
				Safe:       false,
				Reason:     fmt.Sprintf("forbidden pattern detected: %s", r.Pattern.String()),
				Capability: r.Capability,
			}
		}
	}
	return Verdict{Safe: true}
}

// Rules returns a copy of the denylist, in evaluation order.
func Rules() []Rule {
	out := make([]Rule, len(rules))
	copy(out, rules)
	return out
}
