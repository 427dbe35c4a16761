package server

import (
	"context"
	"time"

	"github.com/TheGojiOG/tw404-manager/internal/remote"
)

// HealthChecker confirms the remote host is reachable and the deployment root exists
type HealthChecker struct {
	executor remote.Executor
	root     string
	timeout  time.Duration
}

// NewHealthChecker creates a checker. executor should carry the shorter health connect bound.
func NewHealthChecker(executor remote.Executor, root string, timeout time.Duration) *HealthChecker {
	return &HealthChecker{executor: executor, root: root, timeout: timeout}
}

// Check returns true when the deployment root is visible on the remote host
func (h *HealthChecker) Check(ctx context.Context) bool {
	return h.executor.Execute(ctx, remote.Run("test -d "+remote.Quote(h.root), h.timeout)).Succeeded
}
