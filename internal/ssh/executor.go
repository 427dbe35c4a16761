package ssh

import (
	"fmt"

	"github.com/TheGojiOG/tw404-manager/internal/config"
	"github.com/TheGojiOG/tw404-manager/internal/remote"
)

// NewExecutor builds the executor selected by the remote transport setting.
// Only the native client can also stream files.
func NewExecutor(cfg config.RemoteConfig, hostKeys config.SSHConfig) (remote.Executor, error) {
	switch cfg.Transport {
	case config.TransportNative:
		return NewClient(ClientConfig{
			Host:            cfg.Host,
			Port:            cfg.Port,
			Username:        cfg.User,
			KeyPath:         cfg.KeyPath,
			Passphrase:      cfg.KeyPassphrase,
			UseAgent:        cfg.KeyPath == "",
			ConnectTimeout:  cfg.ConnectTimeout,
			KnownHostsPath:  hostKeys.KnownHostsPath,
			TrustOnFirstUse: hostKeys.TrustOnFirstUse,
		}), nil
	case config.TransportOpenSSH, "":
		return &OpenSSH{
			Binary:          cfg.SSHBinary,
			Host:            cfg.Host,
			Port:            cfg.Port,
			User:            cfg.User,
			KeyPath:         cfg.KeyPath,
			KnownHostsPath:  hostKeys.KnownHostsPath,
			TrustOnFirstUse: hostKeys.TrustOnFirstUse,
			ConnectTimeout:  cfg.ConnectTimeout,
		}, nil
	default:
		return nil, fmt.Errorf("unsupported remote transport: %s", cfg.Transport)
	}
}
