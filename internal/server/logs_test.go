package server

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/TheGojiOG/tw404-manager/internal/remote"
)

type stubOpener struct {
	content string
	path    string
}

func (s *stubOpener) Open(_ context.Context, path string) (io.ReadCloser, error) {
	s.path = path
	return io.NopCloser(strings.NewReader(s.content)), nil
}

func TestTailUnknownProcessMakesNoRemoteCall(t *testing.T) {
	mock := remote.NewMockExecutor()
	reader := NewLogReader(mock, nil, newTestRoster(t), 200, 5000, time.Second)

	if _, err := reader.Tail(context.Background(), "nope", 0); !errors.Is(err, ErrUnknownProcess) {
		t.Fatalf("expected ErrUnknownProcess, got %v", err)
	}
	if mock.CallCount() != 0 {
		t.Fatalf("expected no remote calls")
	}
}

func TestTailClampsLineCount(t *testing.T) {
	mock := remote.NewMockExecutor().Reply("tail", remote.OK("line\n"))
	reader := NewLogReader(mock, nil, newTestRoster(t), 200, 5000, time.Second)
	ctx := context.Background()

	out, err := reader.Tail(ctx, "db", 0)
	if err != nil || out != "line\n" {
		t.Fatalf("unexpected tail result %q, %v", out, err)
	}
	if _, err := reader.Tail(ctx, "jtales2", 999999); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	calls := mock.Calls()
	if calls[0].Line != "tail -n 200 /tw404/db/db.log" {
		t.Fatalf("unexpected default tail %q", calls[0].Line)
	}
	if calls[1].Line != "tail -n 5000 /tw404/jtales0/logs/jtales2.log" {
		t.Fatalf("unexpected clamped tail %q", calls[1].Line)
	}
}

func TestTailMissingFileReturnsDiagnostic(t *testing.T) {
	mock := remote.NewMockExecutor().
		Reply("tail", remote.Exit(1, "", "tail: cannot open '/tw404/db/db.log': No such file or directory"))
	reader := NewLogReader(mock, nil, newTestRoster(t), 200, 5000, time.Second)

	out, err := reader.Tail(context.Background(), "db", 10)
	if err != nil {
		t.Fatalf("missing file should not be an error: %v", err)
	}
	if !strings.Contains(out, "No such file") {
		t.Fatalf("expected diagnostic text, got %q", out)
	}
}

func TestDownloadRequiresOpener(t *testing.T) {
	reader := NewLogReader(remote.NewMockExecutor(), nil, newTestRoster(t), 200, 5000, time.Second)

	if _, err := reader.Download(context.Background(), "db", io.Discard); !errors.Is(err, ErrDownloadUnsupported) {
		t.Fatalf("expected ErrDownloadUnsupported, got %v", err)
	}
}

func TestDownloadStreamsFile(t *testing.T) {
	opener := &stubOpener{content: "full log\n"}
	reader := NewLogReader(remote.NewMockExecutor(), opener, newTestRoster(t), 200, 5000, time.Second)

	var buf bytes.Buffer
	n, err := reader.Download(context.Background(), "jtales0", &buf)
	if err != nil {
		t.Fatalf("download failed: %v", err)
	}
	if n != int64(len("full log\n")) || buf.String() != "full log\n" {
		t.Fatalf("unexpected download %d %q", n, buf.String())
	}
	if opener.path != "/tw404/jtales0/logs/jtales0.log" {
		t.Fatalf("unexpected path %s", opener.path)
	}
}

func TestHealthCheck(t *testing.T) {
	mock := remote.NewMockExecutor().Reply("test -d /tw404", remote.Exit(1, "", ""))
	if NewHealthChecker(mock, "/tw404", time.Second).Check(context.Background()) {
		t.Fatalf("expected missing root to be unhealthy")
	}

	if !NewHealthChecker(remote.NewMockExecutor(), "/tw404", time.Second).Check(context.Background()) {
		t.Fatalf("expected healthy")
	}
}
