package app

import (
	"path/filepath"
	"testing"

	"github.com/TheGojiOG/tw404-manager/internal/config"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Storage.DataDir = dir
	cfg.Database.Path = filepath.Join(dir, "state.db")
	cfg.Security.SSH.KnownHostsPath = filepath.Join(dir, "known_hosts")
	return cfg
}

func TestNewWiresOpenSSHWithoutDownloads(t *testing.T) {
	a, err := New(testConfig(t), Options{})
	if err != nil {
		t.Fatalf("failed to wire app: %v", err)
	}
	defer a.Close()

	if a.Supervisor == nil || a.Provisioner == nil || a.Access == nil || a.Health == nil {
		t.Fatalf("components missing: %+v", a)
	}
	if a.Logs.CanDownload() {
		t.Fatalf("openssh transport must not offer downloads")
	}
	if a.DB != nil || a.Activity != nil {
		t.Fatalf("state must not be opened unless requested")
	}
}

func TestNewWiresNativeWithState(t *testing.T) {
	cfg := testConfig(t)
	cfg.Remote.Transport = config.TransportNative
	cfg.Remote.User = "tw404"

	a, err := New(cfg, Options{State: true})
	if err != nil {
		t.Fatalf("failed to wire app: %v", err)
	}

	if !a.Logs.CanDownload() {
		t.Fatalf("native transport should offer downloads")
	}
	if a.DB == nil || a.Activity == nil {
		t.Fatalf("expected state to be opened")
	}
	if _, err := a.DB.ProvisioningAttempts("", 10); err != nil {
		t.Fatalf("database not migrated: %v", err)
	}
	if err := a.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}
}

func TestNewRejectsUnknownTransport(t *testing.T) {
	cfg := testConfig(t)
	cfg.Remote.Transport = "telnet"

	if _, err := New(cfg, Options{}); err == nil {
		t.Fatalf("expected an error for an unknown transport")
	}
}
