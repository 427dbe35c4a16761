package ssh

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/TheGojiOG/tw404-manager/internal/remote"
)

// sshConnectionError is the exit status the ssh binary reserves for its own failures
const sshConnectionError = 255

// OpenSSH runs commands through the system ssh binary, so host aliases and
// options from ~/.ssh/config apply.
type OpenSSH struct {
	Binary          string
	Host            string
	Port            int
	User            string
	KeyPath         string
	KnownHostsPath  string
	TrustOnFirstUse bool
	ConnectTimeout  time.Duration
}

// Args builds the ssh argument list for one remote command line
func (o *OpenSSH) Args(line string) []string {
	connectTimeout := o.ConnectTimeout
	if connectTimeout <= 0 {
		connectTimeout = 5 * time.Second
	}
	seconds := int(connectTimeout.Round(time.Second) / time.Second)
	if seconds < 1 {
		seconds = 1
	}

	hostKeyMode := "yes"
	if o.TrustOnFirstUse {
		hostKeyMode = "accept-new"
	}

	args := []string{
		"-o", "ConnectTimeout=" + strconv.Itoa(seconds),
		"-o", "BatchMode=yes",
		"-o", "StrictHostKeyChecking=" + hostKeyMode,
		"-o", "LogLevel=ERROR",
	}
	if o.KnownHostsPath != "" {
		args = append(args, "-o", "UserKnownHostsFile="+o.KnownHostsPath)
	}
	if o.Port != 0 && o.Port != 22 {
		args = append(args, "-p", strconv.Itoa(o.Port))
	}
	if o.User != "" {
		args = append(args, "-l", o.User)
	}
	if o.KeyPath != "" {
		args = append(args, "-i", o.KeyPath)
	}

	return append(args, o.Host, line)
}

// Execute runs cmd via the ssh binary. Exit status 255 is treated as a
// connection failure, which is how ssh reports its own errors.
func (o *OpenSSH) Execute(ctx context.Context, cmd remote.Command) remote.Result {
	timeout := cmd.Timeout
	if timeout <= 0 {
		timeout = defaultCommandTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	binary := o.Binary
	if binary == "" {
		binary = "ssh"
	}

	proc := exec.CommandContext(ctx, binary, o.Args(cmd.Line)...)
	proc.WaitDelay = time.Second

	var stdout, stderr bytes.Buffer
	proc.Stdout = &stdout
	proc.Stderr = &stderr
	if cmd.Stdin != "" {
		proc.Stdin = strings.NewReader(cmd.Stdin)
	}

	err := proc.Run()
	if ctx.Err() != nil {
		return failure(ctx, fmt.Sprintf("command timed out after %v", timeout))
	}
	if err == nil {
		return remote.Result{Succeeded: true, Stdout: stdout.String(), Stderr: stderr.String()}
	}

	var exitErr *exec.ExitError
	if !errors.As(err, &exitErr) {
		return remote.Failure(fmt.Sprintf("failed to run %s: %v", binary, err))
	}

	if exitErr.ExitCode() == sshConnectionError {
		diagnostic := strings.TrimSpace(stderr.String())
		if diagnostic == "" {
			diagnostic = "ssh exited with status 255"
		}
		return remote.Failure(fmt.Sprintf("ssh connection to %s failed: %s", o.Host, diagnostic))
	}

	return remote.Result{
		ExitCode: exitErr.ExitCode(),
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
	}
}
