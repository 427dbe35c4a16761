package remote

import (
	"context"
	"strings"
	"sync"
)

// MockHandler answers commands whose line or stdin contains Match.
type MockHandler struct {
	Match  string
	Handle func(cmd Command) Result
}

// MockExecutor for testing. Handlers are consulted in registration order; the
// first match wins. Unmatched commands return Default.
type MockExecutor struct {
	Default  Result
	mu       sync.Mutex
	handlers []MockHandler
	calls    []Command
}

// NewMockExecutor creates a mock whose unmatched commands succeed with no output.
func NewMockExecutor() *MockExecutor {
	return &MockExecutor{Default: Result{Succeeded: true}}
}

// On registers a handler for commands containing match.
func (m *MockExecutor) On(match string, handle func(cmd Command) Result) *MockExecutor {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers = append(m.handlers, MockHandler{Match: match, Handle: handle})
	return m
}

// Reply registers a fixed result for commands containing match.
func (m *MockExecutor) Reply(match string, result Result) *MockExecutor {
	return m.On(match, func(Command) Result { return result })
}

func (m *MockExecutor) Execute(ctx context.Context, cmd Command) Result {
	m.mu.Lock()
	m.calls = append(m.calls, cmd)
	handlers := append([]MockHandler(nil), m.handlers...)
	fallback := m.Default
	m.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return Failure(err.Error())
	}

	for _, h := range handlers {
		if strings.Contains(cmd.Line, h.Match) || (cmd.Stdin != "" && strings.Contains(cmd.Stdin, h.Match)) {
			return h.Handle(cmd)
		}
	}
	return fallback
}

// Calls returns a copy of every command seen so far.
func (m *MockExecutor) Calls() []Command {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Command(nil), m.calls...)
}

// CallCount returns how many commands were executed.
func (m *MockExecutor) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

// Dispatched reports whether any command line or script contained fragment.
func (m *MockExecutor) Dispatched(fragment string) bool {
	for _, c := range m.Calls() {
		if strings.Contains(c.Line, fragment) || strings.Contains(c.Stdin, fragment) {
			return true
		}
	}
	return false
}

// OK builds a successful result with the given stdout.
func OK(stdout string) Result {
	return Result{Succeeded: true, Stdout: stdout}
}

// Exit builds a result with the given exit code and output.
func Exit(code int, stdout, stderr string) Result {
	return Result{Succeeded: code == 0, ExitCode: code, Stdout: stdout, Stderr: stderr}
}
