package server

import (
	"errors"
	"testing"

	"github.com/TheGojiOG/tw404-manager/internal/config"
)

func TestRosterLookup(t *testing.T) {
	roster := newTestRoster(t)

	if _, err := roster.Lookup("jtales9"); !errors.Is(err, ErrUnknownProcess) {
		t.Fatalf("expected ErrUnknownProcess, got %v", err)
	}

	p, err := roster.Lookup("jtales1")
	if err != nil {
		t.Fatalf("lookup failed: %v", err)
	}
	if p.LaunchLine() != "cd /tw404/jtales0 && nohup ./start1 > logs/jtales1.log 2>&1 &" {
		t.Fatalf("unexpected launch line %q", p.LaunchLine())
	}
	if roster.Database().Name != "db" || len(roster.Workers()) != 3 {
		t.Fatalf("unexpected roster shape %v", roster.Names())
	}
}

func TestKillAllLineDeduplicatesPatterns(t *testing.T) {
	roster := newTestRoster(t)
	if got := roster.KillAllLine(); got != "pkill -9 db; pkill -9 jtales; true" {
		t.Fatalf("unexpected kill line %q", got)
	}
}

func TestNewRosterRejectsInvalidDeployment(t *testing.T) {
	d := config.DefaultDeployment()
	d.Processes = nil
	if _, err := NewRoster(d); err == nil {
		t.Fatalf("expected empty roster to be rejected")
	}
}
