package accounts

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/TheGojiOG/tw404-manager/internal/config"
	"github.com/TheGojiOG/tw404-manager/internal/database"
	"github.com/TheGojiOG/tw404-manager/internal/remote"
	"github.com/kballard/go-shellquote"
)

const (
	targetPath = "jtales/al/alice"
	legacyPath = "ttales/al/alice"
)

type recorderStub struct {
	mu       sync.Mutex
	attempts []database.ProvisioningAttempt
}

func (r *recorderStub) RecordProvisioning(a database.ProvisioningAttempt) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.attempts = append(r.attempts, a)
	return nil
}

// fixture wires a mock host in primary mode. existence is the answer to every
// standalone existence probe; script is the answer to the creation script.
type fixture struct {
	mock     *remote.MockExecutor
	recorder *recorderStub
	probes   int
	mu       sync.Mutex
}

func newFixture(existence []string, script remote.Result) *fixture {
	f := &fixture{recorder: &recorderStub{}}
	f.mock = remote.NewMockExecutor().
		Reply("bash -s", script).
		Reply("ls /tw404", remote.OK("db\njtales0\nlogs\n")).
		Reply("-g jtales", remote.OK(targetPath+"\n")).
		Reply("-g ttales", remote.OK(legacyPath+"\n")).
		On("then echo present", func(remote.Command) remote.Result {
			f.mu.Lock()
			defer f.mu.Unlock()
			answer := existence[len(existence)-1]
			if f.probes < len(existence) {
				answer = existence[f.probes]
			}
			f.probes++
			if answer == "" {
				return remote.Failure("connection reset")
			}
			return remote.OK(answer + "\n")
		})
	return f
}

func (f *fixture) provisioner() *Provisioner {
	cfg := config.Default()
	resolver := NewResolver(f.mock, cfg.Accounts, cfg.Deployment.Root, time.Second)
	return NewProvisioner(f.mock, resolver, cfg.Accounts, "bash", 30*time.Second, f.recorder)
}

func successScript() remote.Result {
	return remote.OK("CREATE_EXIT=0\nRELOCATED=yes\nVERIFY=present\nSUCCESS: /tw404/db/master/" + targetPath + "\n")
}

func TestCreateRejectsInvalidInputWithoutRemoteCalls(t *testing.T) {
	cases := []Request{
		{AccountName: "ab", Password: "secret1"},
		{AccountName: "alice", Password: "12345"},
		{AccountName: "  al  ", Password: "secret1"},
		{AccountName: "alice\nbob", Password: "secret1"},
		{AccountName: "alice", Password: "secret\x00x"},
	}

	for _, req := range cases {
		f := newFixture([]string{"absent"}, successScript())
		out := f.provisioner().Create(context.Background(), req)

		if out.Succeeded || out.Kind != KindValidation {
			t.Fatalf("%q: expected validation failure, got %+v", req.AccountName, out)
		}
		if f.mock.CallCount() != 0 {
			t.Fatalf("%q: expected zero remote calls, got %d", req.AccountName, f.mock.CallCount())
		}
		if out.FailedStep() != StepValidate {
			t.Fatalf("unexpected failed step %s", out.FailedStep())
		}
	}
}

func TestCreateRefusesExistingAccount(t *testing.T) {
	f := newFixture([]string{"present"}, successScript())

	out := f.provisioner().Create(context.Background(), Request{AccountName: "alice", Password: "secret1"})
	if out.Succeeded || out.Kind != KindDuplicate {
		t.Fatalf("expected duplicate failure, got %+v", out)
	}
	if f.mock.Dispatched("create_master") {
		t.Fatalf("creation must never be dispatched for an existing account")
	}
	if out.FailedStep() != StepExistence {
		t.Fatalf("expected existence step to fail, got %s", out.FailedStep())
	}
}

func TestCreateHappyPathPrimaryMode(t *testing.T) {
	f := newFixture([]string{"absent"}, successScript())

	out := f.provisioner().Create(context.Background(), Request{AccountName: " alice ", Password: " secret1 ", Origin: "10.0.0.7"})
	if !out.Succeeded || out.Ambiguous {
		t.Fatalf("expected clean success, got %+v", out)
	}
	if out.ResolvedPath != "/tw404/db/master/"+targetPath {
		t.Fatalf("unexpected resolved path %s", out.ResolvedPath)
	}
	if out.Mode != "jtales" {
		t.Fatalf("expected primary mode, got %s", out.Mode)
	}

	wantSteps := []string{StepValidate, StepDetectMode, StepResolve, StepExistence, StepCreate, StepRelocate, StepVerify}
	if len(out.Steps) != len(wantSteps) {
		t.Fatalf("unexpected steps %+v", out.Steps)
	}
	for i, step := range wantSteps {
		if out.Steps[i].Step != step {
			t.Fatalf("step %d: expected %s, got %s", i, step, out.Steps[i].Step)
		}
	}

	script := f.mock.Calls()[len(f.mock.Calls())-1]
	if !strings.Contains(script.Stdin, "mv "+legacyPath) {
		t.Fatalf("expected relocation from legacy path in script:\n%s", script.Stdin)
	}
	if script.Timeout != 30*time.Second {
		t.Fatalf("expected script timeout, got %v", script.Timeout)
	}

	if len(f.recorder.attempts) != 1 {
		t.Fatalf("expected one audit record")
	}
	attempt := f.recorder.attempts[0]
	if attempt.AccountName != "alice" || !attempt.Succeeded || attempt.RemoteAddr != "10.0.0.7" {
		t.Fatalf("unexpected audit record %+v", attempt)
	}
}

func TestCreateSecondaryModeSkipsRelocation(t *testing.T) {
	f := newFixture([]string{"absent"}, remote.OK("CREATE_EXIT=0\nRELOCATED=skipped\nVERIFY=present\nSUCCESS: x\n"))
	f.mock = remote.NewMockExecutor().
		Reply("bash -s", remote.OK("CREATE_EXIT=0\nRELOCATED=skipped\nVERIFY=present\nSUCCESS: x\n")).
		Reply("ls /tw404", remote.OK("db\nttales0\n")).
		Reply("-g ttales", remote.OK(legacyPath+"\n")).
		Reply("then echo present", remote.OK("absent\n"))

	out := f.provisioner().Create(context.Background(), Request{AccountName: "alice", Password: "secret1"})
	if !out.Succeeded || out.Mode != "ttales" {
		t.Fatalf("expected secondary success, got %+v", out)
	}
	if f.mock.Dispatched("-g jtales") {
		t.Fatalf("secondary mode must not resolve the primary namespace")
	}
	script := f.mock.Calls()[len(f.mock.Calls())-1]
	if strings.Contains(script.Stdin, "mv ") {
		t.Fatalf("secondary mode must not relocate:\n%s", script.Stdin)
	}
}

func TestCreateNonZeroExitButPresentIsAmbiguousSuccess(t *testing.T) {
	f := newFixture([]string{"absent"}, remote.Exit(1, "CREATE_EXIT=1\nRELOCATED=yes\nVERIFY=present\nSUCCESS: x\n", "warning: clock skew"))

	out := f.provisioner().Create(context.Background(), Request{AccountName: "alice", Password: "secret1"})
	if !out.Succeeded || !out.Ambiguous {
		t.Fatalf("expected ambiguous success, got %+v", out)
	}
}

func TestCreateTimeoutFallsBackToVerificationProbe(t *testing.T) {
	timedOut := remote.Failure("command timed out after 30s")
	timedOut.TimedOut = true

	f := newFixture([]string{"absent", "present"}, timedOut)
	out := f.provisioner().Create(context.Background(), Request{AccountName: "alice", Password: "secret1"})
	if !out.Succeeded || !out.Ambiguous {
		t.Fatalf("expected verification to rescue the attempt, got %+v", out)
	}
	if f.probes != 2 {
		t.Fatalf("expected a second existence probe, got %d", f.probes)
	}

	f = newFixture([]string{"absent", "absent"}, timedOut)
	out = f.provisioner().Create(context.Background(), Request{AccountName: "alice", Password: "secret1"})
	if out.Succeeded || out.Kind != KindTransport {
		t.Fatalf("expected transport failure, got %+v", out)
	}
}

func TestCreateScriptDuplicateSkipsVerification(t *testing.T) {
	f := newFixture([]string{"absent"}, remote.Exit(1, "ERROR: account already exists\nDUPLICATE\n", ""))

	out := f.provisioner().Create(context.Background(), Request{AccountName: "alice", Password: "secret1"})
	if out.Succeeded || out.Kind != KindDuplicate {
		t.Fatalf("expected duplicate, got %+v", out)
	}
	if f.probes != 1 {
		t.Fatalf("expected no verification probe after a duplicate, got %d probes", f.probes)
	}
}

func TestCreateExistenceProbeFailureIsTransport(t *testing.T) {
	f := newFixture([]string{""}, successScript())

	out := f.provisioner().Create(context.Background(), Request{AccountName: "alice", Password: "secret1"})
	if out.Succeeded || out.Kind != KindTransport || out.FailedStep() != StepExistence {
		t.Fatalf("expected transport failure at existence, got %+v", out)
	}
	if f.mock.Dispatched("create_master") {
		t.Fatalf("creation must not run when existence is unknown")
	}
}

func TestCreateAuditNeverStoresPassword(t *testing.T) {
	f := newFixture([]string{"absent"}, remote.Exit(2, "CREATE_EXIT=0\nRELOCATED=no\nVERIFY=absent\nERROR: account file missing after creation\n", ""))

	out := f.provisioner().Create(context.Background(), Request{AccountName: "alice", Password: "hunter22"})
	if out.Succeeded {
		t.Fatalf("expected failure")
	}
	for _, a := range f.recorder.attempts {
		if strings.Contains(a.Message, "hunter22") {
			t.Fatalf("password leaked into audit record")
		}
	}
	if f.recorder.attempts[0].FailedStep != StepVerify {
		t.Fatalf("expected verify to be recorded as failed step, got %s", f.recorder.attempts[0].FailedStep)
	}
}

func TestCreationScriptQuotesHostileName(t *testing.T) {
	hostile := `"; rm -rf /"`
	plan := creationPlan{
		masterDir: "/tw404/db/master",
		target:    targetPath,
		legacy:    legacyPath,
		name:      hostile,
		password:  "p'ss word",
		profile:   config.Default().Accounts,
	}

	var createLine string
	for _, line := range strings.Split(plan.script(), "\n") {
		if strings.HasPrefix(line, "./create_master") {
			createLine = line
		}
	}
	if createLine == "" {
		t.Fatalf("creation line not found")
	}

	words, err := shellquote.Split(createLine)
	if err != nil {
		t.Fatalf("failed to split: %v", err)
	}
	if len(words) != 10 {
		t.Fatalf("expected 10 words, got %d: %q", len(words), words)
	}
	if words[1] != hostile || words[2] != "p'ss word" {
		t.Fatalf("arguments were not preserved: %q", words)
	}
	if words[3] != "twsrv@localhost" || words[4] != "19990909" || words[8] != "4" || words[9] != "5" {
		t.Fatalf("unexpected profile fields: %q", words)
	}
}

func TestCreationLineKeepsEveryArgumentInBash(t *testing.T) {
	bash, err := exec.LookPath("bash")
	if err != nil {
		t.Skip("bash not available")
	}

	dir := t.TempDir()
	counter := "#!/bin/sh\necho \"$#\"\nprintf '%s\\n' \"$@\"\n"
	if err := os.WriteFile(filepath.Join(dir, "create_master"), []byte(counter), 0o755); err != nil {
		t.Fatalf("failed to write stub tool: %v", err)
	}

	for _, tc := range []struct{ name, password string }{
		{"alice", "#hunter22"},
		{"#alice", "secret1"},
		{"a^b c", "x # y'z"},
	} {
		plan := creationPlan{
			masterDir: dir,
			target:    targetPath,
			name:      tc.name,
			password:  tc.password,
			profile:   config.Default().Accounts,
		}

		var createLine string
		for _, line := range strings.Split(plan.script(), "\n") {
			if strings.HasPrefix(line, "./create_master") {
				createLine = line
			}
		}

		cmd := exec.Command(bash, "-c", "CREATEDATE=20261016; CREATETICK=20271016; "+createLine)
		cmd.Dir = dir
		out, err := cmd.Output()
		if err != nil {
			t.Fatalf("%q: bash failed: %v", createLine, err)
		}

		got := strings.Split(strings.TrimSuffix(string(out), "\n"), "\n")
		want := []string{"9", tc.name, tc.password, "twsrv@localhost", "19990909", "1", "20261016", "20271016", "4", "5"}
		if strings.Join(got, "|") != strings.Join(want, "|") {
			t.Fatalf("%q: bash passed %q, want %q", createLine, got, want)
		}
	}
}

// cancelOn cancels the caller context when a matching command goes out
type cancelOn struct {
	remote.Executor
	fragment string
	cancel   context.CancelFunc
}

func (c cancelOn) Execute(ctx context.Context, cmd remote.Command) remote.Result {
	if strings.Contains(cmd.Line, c.fragment) {
		c.cancel()
	}
	return c.Executor.Execute(ctx, cmd)
}

func TestCreateOutlivesCallerCancellation(t *testing.T) {
	f := newFixture([]string{"absent"}, successScript())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	executor := cancelOn{Executor: f.mock, fragment: "then echo present", cancel: cancel}
	cfg := config.Default()
	resolver := NewResolver(executor, cfg.Accounts, cfg.Deployment.Root, time.Second)
	p := NewProvisioner(executor, resolver, cfg.Accounts, "bash", 30*time.Second, f.recorder)

	out := p.Create(ctx, Request{AccountName: "alice", Password: "secret1"})
	if ctx.Err() == nil {
		t.Fatalf("expected the caller context to be cancelled during the attempt")
	}
	if !out.Succeeded || out.Kind != KindNone {
		t.Fatalf("expected creation to complete after the caller left, got %+v", out)
	}
	if !f.mock.Dispatched("create_master") {
		t.Fatalf("expected the creation script to run")
	}

	cancelled, stop := context.WithCancel(context.Background())
	stop()
	f = newFixture([]string{"absent"}, successScript())
	if out := f.provisioner().Create(cancelled, Request{AccountName: "alice", Password: "secret1"}); !out.Succeeded {
		t.Fatalf("expected an already cancelled caller to be ignored, got %+v", out)
	}
}
