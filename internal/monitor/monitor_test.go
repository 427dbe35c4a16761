package monitor

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/TheGojiOG/tw404-manager/internal/config"
	"github.com/TheGojiOG/tw404-manager/internal/server"
)

type scriptedProber struct {
	snapshots []map[string]bool
	calls     int
}

func (p *scriptedProber) Probe(context.Context) server.Status {
	snap := p.snapshots[len(p.snapshots)-1]
	if p.calls < len(p.snapshots) {
		snap = p.snapshots[p.calls]
	}
	p.calls++
	return server.Status{Processes: snap, CheckedAt: time.Date(2024, 1, 1, 0, 0, p.calls, 0, time.UTC)}
}

type recorder struct {
	mu         sync.Mutex
	samples    int
	changes    []Transition
	prunedAt   time.Time
	cleanedAge time.Duration
	broadcasts []string
}

func (r *recorder) RecordStatus(time.Time, map[string]bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.samples++
	return nil
}

func (r *recorder) PruneStatusHistory(cutoff time.Time) (int64, error) {
	r.prunedAt = cutoff
	return 3, nil
}

func (r *recorder) LogStatusChange(process string, running bool) error {
	r.changes = append(r.changes, Transition{Process: process, Running: running})
	return nil
}

func (r *recorder) CleanupOldActivities(olderThan time.Duration) error {
	r.cleanedAge = olderThan
	return nil
}

func (r *recorder) BroadcastToRoom(room, msgType string, payload interface{}) {
	r.broadcasts = append(r.broadcasts, room+"/"+msgType)
}

func newTestMonitor(t *testing.T, prober Prober, rec *recorder) *Monitor {
	t.Helper()
	m, err := New(prober, rec, rec, rec, config.MonitorConfig{Enabled: true, Schedule: "@every 1s", RetentionDays: 2})
	if err != nil {
		t.Fatalf("failed to create monitor: %v", err)
	}
	return m
}

func TestTickRecordsTransitions(t *testing.T) {
	prober := &scriptedProber{snapshots: []map[string]bool{
		{"db": true, "jtales0": true},
		{"db": true, "jtales0": false},
		{"db": true, "jtales0": false},
	}}
	rec := &recorder{}
	m := newTestMonitor(t, prober, rec)

	if _, ok := m.Latest(); ok {
		t.Fatalf("expected no snapshot before the first tick")
	}

	if got := m.Tick(context.Background()); len(got) != 0 {
		t.Fatalf("first snapshot must not report transitions, got %+v", got)
	}
	got := m.Tick(context.Background())
	if len(got) != 1 || got[0].Process != "jtales0" || got[0].Running {
		t.Fatalf("unexpected transitions %+v", got)
	}
	if got := m.Tick(context.Background()); len(got) != 0 {
		t.Fatalf("unchanged snapshot reported %+v", got)
	}

	if rec.samples != 3 || len(rec.changes) != 1 || len(rec.broadcasts) != 3 {
		t.Fatalf("unexpected side effects: %+v", rec)
	}
	if rec.broadcasts[0] != "status/status" {
		t.Fatalf("unexpected broadcast %s", rec.broadcasts[0])
	}

	latest, ok := m.Latest()
	if !ok || latest.Processes["jtales0"] {
		t.Fatalf("unexpected latest snapshot %+v", latest)
	}
}

func TestTickSkipsCancelledContext(t *testing.T) {
	prober := &scriptedProber{snapshots: []map[string]bool{{"db": true}}}
	m := newTestMonitor(t, prober, &recorder{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	m.Tick(ctx)
	if prober.calls != 0 {
		t.Fatalf("expected no probe after cancellation")
	}
}

func TestPruneUsesRetentionWindow(t *testing.T) {
	rec := &recorder{}
	m := newTestMonitor(t, &scriptedProber{snapshots: []map[string]bool{{}}}, rec)

	now := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)
	m.Prune(now)

	if !rec.prunedAt.Equal(now.Add(-48 * time.Hour)) {
		t.Fatalf("unexpected cutoff %v", rec.prunedAt)
	}
	if rec.cleanedAge != 48*time.Hour {
		t.Fatalf("unexpected activity retention %v", rec.cleanedAge)
	}
}

func TestNewRejectsBadSchedule(t *testing.T) {
	if _, err := New(&scriptedProber{}, nil, nil, nil, config.MonitorConfig{Schedule: "every now and then"}); err == nil {
		t.Fatalf("expected schedule error")
	}
}
