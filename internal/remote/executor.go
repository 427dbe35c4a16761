package remote

import (
	"context"
	"strings"
	"time"
)

// DefaultShell is the interpreter scripts are piped into.
const DefaultShell = "bash"

// Command is a single invocation on the remote host. Line is fully escaped
// shell text; Stdin, when set, is a script fed to the interpreter named in Line.
type Command struct {
	Line    string
	Stdin   string
	Timeout time.Duration
}

// Result holds what came back from the remote side. Succeeded mirrors the exit
// status only; callers apply any text heuristics themselves.
type Result struct {
	Succeeded bool   `json:"succeeded"`
	ExitCode  int    `json:"exit_code"`
	Stdout    string `json:"stdout"`
	Stderr    string `json:"stderr"`
	TimedOut  bool   `json:"timed_out,omitempty"`
}

// Executor runs commands on the remote host. Implementations must convert every
// transport problem into a failed Result instead of returning an error.
type Executor interface {
	Execute(ctx context.Context, cmd Command) Result
}

// Run builds a plain command.
func Run(line string, timeout time.Duration) Command {
	return Command{Line: line, Timeout: timeout}
}

// Script builds a command that pipes script into the remote shell via stdin.
func Script(shell, script string, timeout time.Duration) Command {
	if strings.TrimSpace(shell) == "" {
		shell = DefaultShell
	}
	return Command{Line: Quote(shell) + " -s", Stdin: script, Timeout: timeout}
}

// Failure builds the Result reported for transport-level problems.
func Failure(diagnostic string) Result {
	return Result{Succeeded: false, ExitCode: -1, Stderr: diagnostic}
}

// Quote escapes a single value for POSIX shells. Anything outside the safe
// set is wrapped in single quotes so bash and Bourne sh both read one word,
// including values that start with '#' or contain '^'.
func Quote(value string) string {
	if value == "" {
		return "''"
	}
	if strings.IndexFunc(value, unsafeRune) < 0 {
		return value
	}
	return "'" + strings.ReplaceAll(value, "'", `'\''`) + "'"
}

// QuoteAll escapes each value and joins them with spaces.
func QuoteAll(values ...string) string {
	quoted := make([]string, len(values))
	for i, v := range values {
		quoted[i] = Quote(v)
	}
	return strings.Join(quoted, " ")
}

func unsafeRune(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		return false
	case strings.ContainsRune("@%+=:,./_-", r):
		return false
	}
	return true
}

// Combined joins trimmed stdout and stderr the way operators expect to read them.
func (r Result) Combined() string {
	stdout := strings.TrimSpace(r.Stdout)
	stderr := strings.TrimSpace(r.Stderr)
	switch {
	case stdout == "":
		return stderr
	case stderr == "":
		return stdout
	default:
		return stdout + "\n" + stderr
	}
}
