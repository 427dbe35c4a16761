package accounts

import (
	"context"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/TheGojiOG/tw404-manager/internal/config"
	"github.com/TheGojiOG/tw404-manager/internal/database"
	"github.com/TheGojiOG/tw404-manager/internal/logging"
	"github.com/TheGojiOG/tw404-manager/internal/remote"
	"github.com/google/uuid"
)

// Creation steps in execution order
const (
	StepValidate   = "validate"
	StepDetectMode = "detect_mode"
	StepResolve    = "resolve"
	StepExistence  = "existence"
	StepCreate     = "create"
	StepRelocate   = "relocate"
	StepVerify     = "verify"
)

// Step statuses
const (
	StatusOK      = "ok"
	StatusFailed  = "failed"
	StatusSkipped = "skipped"
)

// StepResult records one step of a creation attempt
type StepResult struct {
	Step   string `json:"step"`
	Status string `json:"status"`
	Detail string `json:"detail,omitempty"`
}

// Outcome is the result of one creation attempt
type Outcome struct {
	AttemptID    string       `json:"attempt_id"`
	Succeeded    bool         `json:"succeeded"`
	ResolvedPath string       `json:"resolved_path,omitempty"`
	Message      string       `json:"message"`
	Kind         Kind         `json:"kind,omitempty"`
	Mode         string       `json:"mode,omitempty"`
	Ambiguous    bool         `json:"ambiguous,omitempty"`
	Steps        []StepResult `json:"steps"`
}

// FailedStep returns the first failed step name
func (o Outcome) FailedStep() string {
	for _, s := range o.Steps {
		if s.Status == StatusFailed {
			return s.Step
		}
	}
	return ""
}

// AttemptRecorder stores the audit record of each attempt
type AttemptRecorder interface {
	RecordProvisioning(attempt database.ProvisioningAttempt) error
}

// Provisioner creates accounts on the remote host
type Provisioner struct {
	executor      remote.Executor
	resolver      *Resolver
	profile       config.AccountsConfig
	shell         string
	scriptTimeout time.Duration
	recorder      AttemptRecorder
	now           func() time.Time
}

// NewProvisioner creates a provisioner. recorder may be nil.
func NewProvisioner(executor remote.Executor, resolver *Resolver, profile config.AccountsConfig, shell string, scriptTimeout time.Duration, recorder AttemptRecorder) *Provisioner {
	return &Provisioner{
		executor:      executor,
		resolver:      resolver,
		profile:       profile,
		shell:         shell,
		scriptTimeout: scriptTimeout,
		recorder:      recorder,
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// Create runs the creation transaction: detect the layout, resolve the
// profile path, refuse duplicates, create, relocate and verify. Validation
// failures never reach the remote host.
//
// The existence check and the creation are separate round trips, so two
// concurrent requests for the same name can both pass the first check. The
// script repeats the check just before creating, which narrows the window.
//
// Caller cancellation is ignored once accepted; only the per-command timeouts
// bound the transaction.
func (p *Provisioner) Create(ctx context.Context, req Request) Outcome {
	ctx = context.WithoutCancel(ctx)
	req = req.Normalize()
	out := Outcome{AttemptID: uuid.NewString()}
	requestedAt := p.now()

	defer func() {
		p.record(req, out, requestedAt)
	}()

	if err := req.Validate(); err != nil {
		out.fail(StepValidate, KindValidation, err.Error())
		return out
	}
	out.pass(StepValidate, "")

	mode, err := p.resolver.DetectMode(ctx)
	if err != nil {
		out.fail(StepDetectMode, KindOf(err), err.Error())
		return out
	}
	out.Mode = mode.Name
	out.pass(StepDetectMode, mode.Name)

	target, err := p.resolver.Resolve(ctx, mode.Target, req.AccountName)
	if err != nil {
		out.fail(StepResolve, KindOf(err), err.Error())
		return out
	}
	legacy := ""
	if mode.Relocates() {
		legacy, err = p.resolver.Resolve(ctx, mode.Legacy, req.AccountName)
		if err != nil {
			out.fail(StepResolve, KindOf(err), err.Error())
			return out
		}
	}
	out.ResolvedPath = path.Join(p.resolver.MasterDir(), target)
	out.pass(StepResolve, target)

	existing, err := p.resolver.Exists(ctx, target)
	if err != nil {
		out.fail(StepExistence, KindTransport, err.Error())
		return out
	}
	if existing == VerificationPresent {
		out.fail(StepExistence, KindDuplicate, fmt.Sprintf("account %s already exists", req.AccountName))
		return out
	}
	out.pass(StepExistence, string(existing))

	plan := creationPlan{
		masterDir: p.resolver.MasterDir(),
		target:    target,
		legacy:    legacy,
		name:      req.AccountName,
		password:  req.Password,
		profile:   p.profile,
	}
	res := p.executor.Execute(ctx, remote.Script(p.shell, plan.script(), p.scriptTimeout))
	markers := parseMarkers(res.Stdout)

	verification := markers.verification
	if verification == VerificationUnknown && !markers.duplicate {
		// the script did not get far enough to verify; ask again
		verification, _ = p.resolver.Exists(ctx, target)
	}

	cls := ClassifyOutcome(res.Stdout, res.Stderr, res.ExitCode, verification)

	logging.Component("accounts").Info("account_create_attempt",
		"attempt_id", out.AttemptID,
		"account", req.AccountName,
		"rc", res.ExitCode,
		"timed_out", res.TimedOut,
		"verification", string(verification),
		"output", strings.ReplaceAll(res.Combined(), "\n", " | "),
	)

	out.recordScriptSteps(markers, mode, cls, verification)
	out.Succeeded = cls.Succeeded
	out.Kind = cls.Kind
	out.Ambiguous = cls.Ambiguous

	if cls.Succeeded {
		out.Message = "account created: " + req.AccountName
		if cls.Ambiguous {
			logging.Component("accounts").Warn("account_outcome_ambiguous",
				"attempt_id", out.AttemptID,
				"account", req.AccountName,
				"rc", res.ExitCode,
				"output", cls.Message,
			)
		}
		return out
	}

	out.Message = cls.Message
	return out
}

func (o *Outcome) pass(step, detail string) {
	o.Steps = append(o.Steps, StepResult{Step: step, Status: StatusOK, Detail: detail})
}

func (o *Outcome) fail(step string, kind Kind, message string) {
	o.Steps = append(o.Steps, StepResult{Step: step, Status: StatusFailed, Detail: message})
	o.Succeeded = false
	o.Kind = kind
	o.Message = message
}

func (o *Outcome) recordScriptSteps(m scriptMarkers, mode Mode, cls Classification, verification Verification) {
	if m.duplicate {
		o.Steps = append(o.Steps, StepResult{Step: StepCreate, Status: StatusFailed, Detail: "account appeared before creation"})
		return
	}

	switch {
	case !m.createRan:
		o.Steps = append(o.Steps, StepResult{Step: StepCreate, Status: StatusFailed, Detail: "no exit status reported"})
	case m.createExit != 0:
		o.Steps = append(o.Steps, StepResult{Step: StepCreate, Status: StatusFailed, Detail: fmt.Sprintf("exit status %d", m.createExit)})
	default:
		o.Steps = append(o.Steps, StepResult{Step: StepCreate, Status: StatusOK})
	}

	switch {
	case !mode.Relocates() || m.relocated == "skipped":
		o.Steps = append(o.Steps, StepResult{Step: StepRelocate, Status: StatusSkipped})
	case m.relocated == "yes":
		o.Steps = append(o.Steps, StepResult{Step: StepRelocate, Status: StatusOK})
	default:
		o.Steps = append(o.Steps, StepResult{Step: StepRelocate, Status: StatusSkipped, Detail: "nothing to move"})
	}

	status := StatusOK
	if !cls.Succeeded {
		status = StatusFailed
	}
	o.Steps = append(o.Steps, StepResult{Step: StepVerify, Status: status, Detail: string(verification)})
}

func (p *Provisioner) record(req Request, out Outcome, requestedAt time.Time) {
	if p.recorder == nil {
		return
	}
	attempt := database.ProvisioningAttempt{
		AttemptID:    out.AttemptID,
		AccountName:  req.AccountName,
		RequestedAt:  requestedAt,
		Mode:         out.Mode,
		ResolvedPath: out.ResolvedPath,
		Succeeded:    out.Succeeded,
		Kind:         string(out.Kind),
		FailedStep:   out.FailedStep(),
		Ambiguous:    out.Ambiguous,
		RemoteAddr:   req.Origin,
	}
	if !out.Succeeded {
		attempt.Message = out.Message
	}
	if err := p.recorder.RecordProvisioning(attempt); err != nil {
		logging.Component("accounts").Error("provisioning_audit_failed", "attempt_id", out.AttemptID, "error", err)
	}
}
