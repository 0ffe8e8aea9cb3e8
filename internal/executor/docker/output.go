package docker

import (
	"bytes"
	"errors"
	"strings"
	"sync"
)

// errOutputLimit stops stdcopy once a stream grows past its cap.
var errOutputLimit = errors.New("docker: output limit exceeded")

// limitedBuffer is a bytes.Buffer that refuses to grow past limit. Writes
// that would cross the limit keep the bytes that fit and return
// errOutputLimit, so the guest cannot exhaust server memory. It is safe for
// concurrent use: the copy goroutine writes while the supervisor may read.
type limitedBuffer struct {
	mu       sync.Mutex
	buf      bytes.Buffer
	limit    int64
	exceeded bool
}

func newLimitedBuffer(limit int64) *limitedBuffer {
	return &limitedBuffer{limit: limit}
}

func (b *limitedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	remaining := b.limit - int64(b.buf.Len())
	if int64(len(p)) <= remaining {
		return b.buf.Write(p)
	}

	b.exceeded = true
	if remaining > 0 {
		b.buf.Write(p[:remaining])
	}
	return int(max(remaining, 0)), errOutputLimit
}

func (b *limitedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func (b *limitedBuffer) Exceeded() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.exceeded
}

// compileMarker is written to stderr by the in-container script once gcc has
// succeeded. Everything on stderr before it is compiler output.
const compileMarker = "__CJUDGE_COMPILED__"

// splitStderr separates compiler diagnostics from program stderr.
func splitStderr(stderr string) (compileOutput, programStderr string, compiled bool) {
	before, after, found := strings.Cut(stderr, compileMarker+"\n")
	if !found {
		// The marker may be the very last thing written.
		before, after, found = strings.Cut(stderr, compileMarker)
	}
	if !found {
		return stderr, "", false
	}
	return before, after, true
}

// deadlineMarker is written to stderr by the script when the program failed
// after its time limit ran out. It is how a program that ignored SIGTERM and
// had to be killed is told apart from one that died of SIGKILL on its own.
const deadlineMarker = "__CJUDGE_DEADLINE__"

// cutDeadline strips a trailing deadline marker from program stderr.
func cutDeadline(programStderr string) (string, bool) {
	trimmed := strings.TrimSuffix(programStderr, "\n")
	if rest, ok := strings.CutSuffix(trimmed, deadlineMarker); ok {
		return rest, true
	}
	return programStderr, false
}
