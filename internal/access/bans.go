package access

import (
	"bufio"
	"context"
	"fmt"
	"strings"

	"github.com/TheGojiOG/tw404-manager/internal/accounts"
	"github.com/TheGojiOG/tw404-manager/internal/logging"
	"github.com/TheGojiOG/tw404-manager/internal/remote"
)

const banPrefix = "b "

// BanIP appends a ban entry. Entries are not deduplicated.
func (m *Manager) BanIP(ctx context.Context, ip string) Result {
	ip, err := ParseIP(ip)
	if err != nil {
		return invalid(err)
	}

	line := "echo " + remote.Quote(banPrefix+ip) + " >> " + remote.Quote(m.banFile)
	res := m.executor.Execute(context.WithoutCancel(ctx), remote.Run(line, m.commandTimeout))
	logging.Component("access").Info("ban_ip", "ip", ip, "rc", res.ExitCode)

	switch {
	case res.ExitCode == -1:
		return transportFailure(res)
	case !res.Succeeded:
		return Result{Kind: accounts.KindRemote, Message: "failed to update ban list", Output: res.Combined()}
	}
	return Result{Succeeded: true, Message: "banned " + ip}
}

// ListBans returns the banned IPs in file order. A missing ban file is an
// empty list.
func (m *Manager) ListBans(ctx context.Context) ([]string, error) {
	line := "cat " + remote.Quote(m.banFile) + " 2>/dev/null || true"
	res := m.executor.Execute(ctx, remote.Run(line, m.commandTimeout))
	if res.ExitCode == -1 {
		return nil, fmt.Errorf("%w: %s", accounts.ErrTransport, res.Combined())
	}

	ips := []string{}
	scanner := bufio.NewScanner(strings.NewReader(res.Stdout))
	for scanner.Scan() {
		entry := strings.TrimSpace(scanner.Text())
		if entry == "" {
			continue
		}
		ips = append(ips, strings.TrimSpace(strings.TrimPrefix(entry, banPrefix)))
	}
	return ips, nil
}
