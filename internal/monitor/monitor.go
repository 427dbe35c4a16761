package monitor

import (
	"context"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/TheGojiOG/tw404-manager/internal/config"
	"github.com/TheGojiOG/tw404-manager/internal/server"
	"github.com/TheGojiOG/tw404-manager/internal/websocket"
	"github.com/robfig/cron/v3"
)

// Prober reports roster liveness
type Prober interface {
	Probe(ctx context.Context) server.Status
}

// HistoryStore persists status samples
type HistoryStore interface {
	RecordStatus(checkedAt time.Time, status map[string]bool) error
	PruneStatusHistory(cutoff time.Time) (int64, error)
}

// ActivityRecorder records status transitions in the operations log
type ActivityRecorder interface {
	LogStatusChange(process string, running bool) error
	CleanupOldActivities(olderThan time.Duration) error
}

// Broadcaster pushes updates to connected dashboards
type Broadcaster interface {
	BroadcastToRoom(room, msgType string, payload interface{})
}

// Transition is a change of one process between two snapshots
type Transition struct {
	Process string `json:"process"`
	Running bool   `json:"running"`
}

// Monitor probes the roster on a schedule and keeps the latest snapshot
type Monitor struct {
	prober      Prober
	history     HistoryStore
	activity    ActivityRecorder
	broadcaster Broadcaster
	schedule    cron.Schedule
	retention   time.Duration

	mu   sync.RWMutex
	last *server.Status
}

var parser = cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// New creates a monitor. history, activity and broadcaster may be nil.
func New(prober Prober, history HistoryStore, activity ActivityRecorder, broadcaster Broadcaster, cfg config.MonitorConfig) (*Monitor, error) {
	schedule, err := parser.Parse(cfg.Schedule)
	if err != nil {
		return nil, fmt.Errorf("invalid monitor schedule %q: %w", cfg.Schedule, err)
	}
	return &Monitor{
		prober:      prober,
		history:     history,
		activity:    activity,
		broadcaster: broadcaster,
		schedule:    schedule,
		retention:   time.Duration(cfg.RetentionDays) * 24 * time.Hour,
	}, nil
}

// Start runs the probe and retention jobs until ctx is cancelled
func (m *Monitor) Start(ctx context.Context) {
	c := cron.New(
		cron.WithParser(parser),
		cron.WithChain(cron.SkipIfStillRunning(cron.PrintfLogger(log.Default()))),
	)
	c.Schedule(m.schedule, cron.FuncJob(func() { m.Tick(ctx) }))
	if m.retention > 0 {
		c.Schedule(mustParse("@daily"), cron.FuncJob(func() { m.Prune(time.Now().UTC()) }))
	}
	c.Start()

	go func() {
		<-ctx.Done()
		log.Printf("[Monitor] Stopping roster monitor")
		<-c.Stop().Done()
	}()
}

func mustParse(schedule string) cron.Schedule {
	s, err := parser.Parse(schedule)
	if err != nil {
		panic(err)
	}
	return s
}

// Tick probes once, records the sample and reports transitions
func (m *Monitor) Tick(ctx context.Context) []Transition {
	if ctx.Err() != nil {
		return nil
	}
	status := m.prober.Probe(ctx)

	m.mu.Lock()
	previous := m.last
	m.last = &status
	m.mu.Unlock()

	transitions := diff(previous, status)

	if m.history != nil {
		if err := m.history.RecordStatus(status.CheckedAt, status.Processes); err != nil {
			log.Printf("[Monitor] Failed to record status history: %v", err)
		}
	}
	if m.activity != nil {
		for _, t := range transitions {
			if err := m.activity.LogStatusChange(t.Process, t.Running); err != nil {
				log.Printf("[Monitor] Failed to log status change for %s: %v", t.Process, err)
			}
		}
	}
	if m.broadcaster != nil {
		m.broadcaster.BroadcastToRoom(websocket.StatusRoom, "status", status)
	}
	return transitions
}

// Latest returns the most recent snapshot, if any probe has completed
func (m *Monitor) Latest() (server.Status, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.last == nil {
		return server.Status{}, false
	}
	return *m.last, true
}

// Prune drops history and activity older than the retention window
func (m *Monitor) Prune(now time.Time) {
	if m.retention <= 0 {
		return
	}
	if m.history != nil {
		removed, err := m.history.PruneStatusHistory(now.Add(-m.retention))
		if err != nil {
			log.Printf("[Monitor] Failed to prune status history: %v", err)
		} else if removed > 0 {
			log.Printf("[Monitor] Pruned %d status samples", removed)
		}
	}
	if m.activity != nil {
		if err := m.activity.CleanupOldActivities(m.retention); err != nil {
			log.Printf("[Monitor] Failed to prune activity log: %v", err)
		}
	}
}

// diff lists processes whose state changed. The first snapshot has no
// transitions.
func diff(previous *server.Status, current server.Status) []Transition {
	if previous == nil {
		return nil
	}
	var out []Transition
	for name, running := range current.Processes {
		was, known := previous.Processes[name]
		if known && was != running {
			out = append(out, Transition{Process: name, Running: running})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Process < out[j].Process })
	return out
}
