package server

import (
	"context"
	"strings"
	"time"

	"github.com/TheGojiOG/tw404-manager/internal/remote"
)

// LivenessProbe decides whether one managed process is running
type LivenessProbe interface {
	Probe(ctx context.Context, p ManagedProcess) bool
}

// PgrepProbe matches the probe pattern against full command lines on the
// remote host. Any matching PID counts as running.
type PgrepProbe struct {
	Executor remote.Executor
	Timeout  time.Duration
}

func (p *PgrepProbe) Probe(ctx context.Context, process ManagedProcess) bool {
	res := p.Executor.Execute(ctx, remote.Run("pgrep -f "+remote.Quote(process.ProbePattern), p.Timeout))
	return strings.TrimSpace(res.Stdout) != ""
}
