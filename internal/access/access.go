package access

import (
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/TheGojiOG/tw404-manager/internal/accounts"
	"github.com/TheGojiOG/tw404-manager/internal/remote"
	"github.com/TheGojiOG/tw404-manager/internal/server"
)

// Result is the outcome of a GM or ban operation
type Result struct {
	Succeeded bool          `json:"success"`
	Kind      accounts.Kind `json:"kind,omitempty"`
	Message   string        `json:"message,omitempty"`
	Output    string        `json:"output,omitempty"`
}

// Manager edits the access-control files of the worker processes
type Manager struct {
	executor       remote.Executor
	resolver       *accounts.Resolver
	roster         *server.Roster
	banFile        string
	shell          string
	commandTimeout time.Duration
	scriptTimeout  time.Duration
}

// Options configures a Manager
type Options struct {
	BanFile        string
	Shell          string
	CommandTimeout time.Duration
	ScriptTimeout  time.Duration
}

// NewManager creates an access manager
func NewManager(executor remote.Executor, resolver *accounts.Resolver, roster *server.Roster, opts Options) *Manager {
	return &Manager{
		executor:       executor,
		resolver:       resolver,
		roster:         roster,
		banFile:        opts.BanFile,
		shell:          opts.Shell,
		commandTimeout: opts.CommandTimeout,
		scriptTimeout:  opts.ScriptTimeout,
	}
}

// ParseIP trims and validates an IPv4 or IPv6 address
func ParseIP(raw string) (string, error) {
	ip := strings.TrimSpace(raw)
	if ip == "" {
		return "", fmt.Errorf("ip is required")
	}
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return "", fmt.Errorf("invalid ip address %q", ip)
	}
	return parsed.String(), nil
}

func invalid(err error) Result {
	return Result{Kind: accounts.KindValidation, Message: err.Error()}
}

func transportFailure(res remote.Result) Result {
	return Result{Kind: accounts.KindTransport, Message: "remote host unreachable", Output: res.Combined()}
}
