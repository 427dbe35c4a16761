package access

import (
	"context"
	"fmt"
	"strings"

	"github.com/TheGojiOG/tw404-manager/internal/accounts"
	"github.com/TheGojiOG/tw404-manager/internal/logging"
	"github.com/TheGojiOG/tw404-manager/internal/remote"
)

const noSuchAccount = "ERROR: No such account"

// AssignGM binds an account to an IP on every worker's console configuration.
// The account password is read on the remote host and never leaves it.
// A cancelled caller does not abandon a half-written binding.
func (m *Manager) AssignGM(ctx context.Context, name, ip string) Result {
	ctx = context.WithoutCancel(ctx)
	name = strings.TrimSpace(name)
	if err := accounts.ValidateName(name); err != nil {
		return invalid(err)
	}
	ip, err := ParseIP(ip)
	if err != nil {
		return invalid(err)
	}

	_, profile, err := m.resolver.CanonicalPath(ctx, name)
	if err != nil {
		return Result{Kind: accounts.KindOf(err), Message: err.Error()}
	}

	res := m.executor.Execute(ctx, remote.Script(m.shell, m.gmScript(profile, name, ip), m.scriptTimeout))
	logging.Component("access").Info("gm_assign",
		"account", name,
		"ip", ip,
		"rc", res.ExitCode,
		"timed_out", res.TimedOut,
	)

	switch {
	case res.ExitCode == -1:
		return transportFailure(res)
	case strings.Contains(res.Stdout, noSuchAccount):
		return Result{Kind: accounts.KindPrecondition, Message: "no such account: " + name, Output: res.Combined()}
	case res.Succeeded && strings.Contains(res.Stdout, "SUCCESS"):
		return Result{Succeeded: true, Message: fmt.Sprintf("%s is now GM from %s", name, ip), Output: res.Combined()}
	}
	return Result{Kind: accounts.KindRemote, Message: "gm assignment failed", Output: res.Combined()}
}

func (m *Manager) gmScript(profile, name, ip string) string {
	q := remote.Quote
	var b strings.Builder
	line := func(s string) {
		b.WriteString(s)
		b.WriteByte('\n')
	}

	line("if [ ! -f " + q(profile) + " ]; then")
	line("  echo " + q(noSuchAccount))
	line("  exit 4")
	line("fi")
	line("PASS=$(grep password= " + q(profile) + ` | cut -d= -f2 | tr -d '"')`)
	for _, w := range m.roster.Workers() {
		conf := q(w.ConsoleConfigPath)
		line(`printf 'i\t%s\t255.255.255.255\n' ` + q(ip) + " >> " + conf + " || exit 5")
		line(`printf 'm\t%s\t%s\n' ` + q(name) + ` "$PASS" >> ` + conf + " || exit 5")
	}
	line("echo SUCCESS")
	return b.String()
}
