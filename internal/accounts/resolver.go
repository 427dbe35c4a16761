package accounts

import (
	"context"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/TheGojiOG/tw404-manager/internal/config"
	"github.com/TheGojiOG/tw404-manager/internal/remote"
)

// Verification is the tri-state answer of an existence probe
type Verification string

const (
	VerificationPresent Verification = "present"
	VerificationAbsent  Verification = "absent"
	VerificationUnknown Verification = "unknown"
)

// Mode describes where profiles live on this deployment. Target is the
// namespace of the canonical profile. Legacy, when set, is the namespace the
// creation tool writes into before the profile is moved.
type Mode struct {
	Name   string `json:"name"`
	Target string `json:"target"`
	Legacy string `json:"legacy,omitempty"`
}

// Relocates reports whether creation output has to be moved
func (m Mode) Relocates() bool {
	return m.Legacy != "" && m.Legacy != m.Target
}

// Resolver maps account names to profile paths using the remote hashing tool
type Resolver struct {
	executor remote.Executor
	accounts config.AccountsConfig
	root     string
	timeout  time.Duration
}

// NewResolver creates a resolver rooted at the deployment directory
func NewResolver(executor remote.Executor, accounts config.AccountsConfig, root string, timeout time.Duration) *Resolver {
	return &Resolver{executor: executor, accounts: accounts, root: root, timeout: timeout}
}

// MasterDir is the absolute directory all resolved paths are relative to
func (r *Resolver) MasterDir() string {
	return path.Join(r.root, r.accounts.MasterDir)
}

// DetectMode lists the deployment root and picks the primary namespace when
// its first worker directory exists.
func (r *Resolver) DetectMode(ctx context.Context) (Mode, error) {
	res := r.executor.Execute(ctx, remote.Run("ls "+remote.Quote(r.root), r.timeout))
	if res.ExitCode == -1 {
		return Mode{}, fmt.Errorf("%w: %s", ErrTransport, res.Combined())
	}
	if !res.Succeeded {
		return Mode{}, fmt.Errorf("failed to list %s: %s", r.root, res.Combined())
	}

	firstWorker := r.accounts.PrimaryNamespace + "0"
	for _, entry := range strings.Fields(res.Stdout) {
		if entry == firstWorker {
			return Mode{
				Name:   r.accounts.PrimaryNamespace,
				Target: r.accounts.PrimaryNamespace,
				Legacy: r.accounts.LegacyNamespace,
			}, nil
		}
	}
	return Mode{Name: r.accounts.LegacyNamespace, Target: r.accounts.LegacyNamespace}, nil
}

// Resolve returns the profile path of name in namespace, relative to MasterDir
func (r *Resolver) Resolve(ctx context.Context, namespace, name string) (string, error) {
	line := "cd " + remote.Quote(r.MasterDir()) + " && ./" + remote.QuoteAll(r.accounts.HashTool, "-n", "-l", "2", "-g", namespace, name)
	res := r.executor.Execute(ctx, remote.Run(line, r.timeout))
	if res.ExitCode == -1 {
		return "", fmt.Errorf("%w: %s", ErrTransport, res.Combined())
	}
	if !res.Succeeded {
		return "", fmt.Errorf("%w: %s exited %d: %s", ErrUnresolvable, r.accounts.HashTool, res.ExitCode, res.Combined())
	}

	resolved := strings.TrimSpace(res.Stdout)
	if err := checkResolvedPath(resolved); err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnresolvable, err)
	}
	return resolved, nil
}

func checkResolvedPath(p string) error {
	switch {
	case p == "":
		return fmt.Errorf("empty path")
	case strings.ContainsAny(p, " \t\r\n\x00"):
		return fmt.Errorf("path %q contains whitespace", p)
	case path.IsAbs(p):
		return fmt.Errorf("path %q is absolute", p)
	case path.Clean(p) != p:
		return fmt.Errorf("path %q is not clean", p)
	case p == ".." || strings.HasPrefix(p, "../"):
		return fmt.Errorf("path %q escapes the master directory", p)
	}
	return nil
}

// Exists probes for a profile file relative to MasterDir
func (r *Resolver) Exists(ctx context.Context, relative string) (Verification, error) {
	full := remote.Quote(path.Join(r.MasterDir(), relative))
	line := "if [ -f " + full + " ]; then echo present; else echo absent; fi"
	res := r.executor.Execute(ctx, remote.Run(line, r.timeout))

	switch strings.TrimSpace(res.Stdout) {
	case string(VerificationPresent):
		return VerificationPresent, nil
	case string(VerificationAbsent):
		return VerificationAbsent, nil
	}
	return VerificationUnknown, fmt.Errorf("%w: existence probe gave no answer: %s", ErrTransport, res.Combined())
}

// CanonicalPath resolves the absolute profile path of an existing account name
func (r *Resolver) CanonicalPath(ctx context.Context, name string) (Mode, string, error) {
	mode, err := r.DetectMode(ctx)
	if err != nil {
		return Mode{}, "", err
	}
	relative, err := r.Resolve(ctx, mode.Target, name)
	if err != nil {
		return mode, "", err
	}
	return mode, path.Join(r.MasterDir(), relative), nil
}
