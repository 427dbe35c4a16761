package accounts

import (
	"bytes"
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/TheGojiOG/tw404-manager/internal/config"
	"github.com/TheGojiOG/tw404-manager/internal/remote"
	"github.com/kballard/go-shellquote"
)

func newTestResolver(mock *remote.MockExecutor) *Resolver {
	cfg := config.Default()
	return NewResolver(mock, cfg.Accounts, cfg.Deployment.Root, time.Second)
}

func TestDetectMode(t *testing.T) {
	primary, err := newTestResolver(remote.NewMockExecutor().Reply("ls", remote.OK("db\njtales0\n"))).DetectMode(context.Background())
	if err != nil || primary.Name != "jtales" || !primary.Relocates() || primary.Legacy != "ttales" {
		t.Fatalf("unexpected primary mode %+v, %v", primary, err)
	}

	secondary, err := newTestResolver(remote.NewMockExecutor().Reply("ls", remote.OK("db\nttales0\n"))).DetectMode(context.Background())
	if err != nil || secondary.Name != "ttales" || secondary.Relocates() {
		t.Fatalf("unexpected secondary mode %+v, %v", secondary, err)
	}

	_, err = newTestResolver(remote.NewMockExecutor().Reply("ls", remote.Failure("refused"))).DetectMode(context.Background())
	if !errors.Is(err, ErrTransport) {
		t.Fatalf("expected transport error, got %v", err)
	}
}

func TestResolveRejectsUnsafePaths(t *testing.T) {
	for _, output := range []string{"", "../../etc/passwd", "/etc/passwd", "jtales/./a", "jtales/a b"} {
		mock := remote.NewMockExecutor().Reply("-g", remote.OK(output+"\n"))
		_, err := newTestResolver(mock).Resolve(context.Background(), "jtales", "alice")
		if !errors.Is(err, ErrUnresolvable) {
			t.Fatalf("%q: expected ErrUnresolvable, got %v", output, err)
		}
	}
}

func TestResolveQuotesName(t *testing.T) {
	hostile := `x; touch /tmp/pwned`
	mock := remote.NewMockExecutor().Reply("-g", remote.OK("jtales/x/x\n"))

	if _, err := newTestResolver(mock).Resolve(context.Background(), "jtales", hostile); err != nil {
		t.Fatalf("resolve failed: %v", err)
	}

	line := mock.Calls()[0].Line
	tool := line[strings.Index(line, "&& ")+3:]
	words, err := shellquote.Split(tool)
	if err != nil {
		t.Fatalf("split failed: %v", err)
	}
	if words[len(words)-1] != hostile || len(words) != 7 {
		t.Fatalf("name not preserved as one argument: %q", words)
	}
}

func TestExistsTriState(t *testing.T) {
	ctx := context.Background()

	v, err := newTestResolver(remote.NewMockExecutor().Reply("-f", remote.OK("present\n"))).Exists(ctx, "jtales/a/alice")
	if err != nil || v != VerificationPresent {
		t.Fatalf("expected present, got %v %v", v, err)
	}

	v, err = newTestResolver(remote.NewMockExecutor().Reply("-f", remote.OK("garbage"))).Exists(ctx, "jtales/a/alice")
	if err == nil || v != VerificationUnknown || KindOf(err) != KindTransport {
		t.Fatalf("expected unknown transport error, got %v %v", v, err)
	}
}

func TestCanonicalPath(t *testing.T) {
	mock := remote.NewMockExecutor().
		Reply("ls", remote.OK("jtales0\n")).
		Reply("-g jtales", remote.OK("jtales/bo/bob\n"))

	mode, full, err := newTestResolver(mock).CanonicalPath(context.Background(), "bob")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if mode.Target != "jtales" || full != "/tw404/db/master/jtales/bo/bob" {
		t.Fatalf("unexpected canonical path %s (%+v)", full, mode)
	}
}

func TestDetectModeFollowsConfiguredNamespaces(t *testing.T) {
	cfg := config.Default()
	cfg.Accounts.PrimaryNamespace = "alpha"
	cfg.Accounts.LegacyNamespace = "beta"
	resolve := func(listing string) Mode {
		t.Helper()
		mock := remote.NewMockExecutor().Reply("ls", remote.OK(listing))
		mode, err := NewResolver(mock, cfg.Accounts, cfg.Deployment.Root, time.Second).DetectMode(context.Background())
		if err != nil {
			t.Fatalf("detect failed: %v", err)
		}
		return mode
	}

	if mode := resolve("db\nalpha0\nalpha1\n"); mode.Target != "alpha" || mode.Legacy != "beta" {
		t.Fatalf("expected primary mode, got %+v", mode)
	}
	if mode := resolve("db\njtales0\nalpha1\n"); mode.Target != "beta" || mode.Relocates() {
		t.Fatalf("expected secondary mode, got %+v", mode)
	}
}

// bashExecutor runs each command in a local bash
type bashExecutor struct {
	bash string
}

func (b bashExecutor) Execute(ctx context.Context, cmd remote.Command) remote.Result {
	c := exec.CommandContext(ctx, b.bash, "-c", cmd.Line)
	c.Stdin = strings.NewReader(cmd.Stdin)
	var stdout, stderr bytes.Buffer
	c.Stdout, c.Stderr = &stdout, &stderr
	if err := c.Run(); err != nil {
		var exit *exec.ExitError
		if !errors.As(err, &exit) {
			return remote.Failure(err.Error())
		}
		return remote.Exit(exit.ExitCode(), stdout.String(), stderr.String())
	}
	return remote.OK(stdout.String())
}

func TestResolvePassesNameAsOneArgumentInBash(t *testing.T) {
	bash, err := exec.LookPath("bash")
	if err != nil {
		t.Skip("bash not available")
	}

	root := t.TempDir()
	cfg := config.Default()
	master := filepath.Join(root, cfg.Accounts.MasterDir)
	if err := os.MkdirAll(master, 0o755); err != nil {
		t.Fatalf("mkdir failed: %v", err)
	}
	hashTool := "#!/bin/sh\n[ \"$#\" -eq 6 ] || exit 9\necho \"$5/ha/$6\"\n"
	if err := os.WriteFile(filepath.Join(master, cfg.Accounts.HashTool), []byte(hashTool), 0o755); err != nil {
		t.Fatalf("failed to write stub tool: %v", err)
	}

	resolver := NewResolver(bashExecutor{bash: bash}, cfg.Accounts, root, 5*time.Second)
	for _, name := range []string{"#alice", "a^b", "it's"} {
		got, err := resolver.Resolve(context.Background(), "jtales", name)
		if err != nil {
			t.Fatalf("%q: resolve failed: %v", name, err)
		}
		if got != "jtales/ha/"+name {
			t.Fatalf("%q: resolved %q", name, got)
		}
	}
}
