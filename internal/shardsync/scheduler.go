package shardsync

import (
	"context"
	"log/slog"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/Niskigvan/couchdb/internal/harness/clock"
	"github.com/Niskigvan/couchdb/internal/logging"
)

// Tunable keys accepted by Reconfigure. They match the config flag names so
// the config watcher can forward changes verbatim.
const (
	KeyDelay     = "sync-delay-ms"
	KeyFrequency = "sync-frequency-ms"
)

// Config carries everything the scheduler needs at construction time.
// Delay bounds how long a queued shard may wait; Frequency is the rotation
// tick of the debounce window.
type Config struct {
	Delay      time.Duration
	Frequency  time.Duration
	Controls   ControlSet
	Clock      clock.Clock
	Executor   *Executor
	Membership Membership
	Directory  Directory
}

// Scheduler is the single-holder actor that converts classified update-feed
// events into rate-limited push triggers. All state below is owned by the
// actor goroutine; producers reach it only through the mailbox.
type Scheduler struct {
	clock      clock.Clock
	ctl        ControlSet
	exec       *Executor
	membership Membership
	directory  Directory

	delay     time.Duration
	frequency time.Duration
	lastPush  time.Time // zero until the first flush check runs
	window    *Window

	mailbox chan any
	stopCh  chan struct{}
	doneCh  chan struct{}
	started atomic.Bool
}

type eventMsg struct {
	name string
	kind EventKind
}

type reconfigMsg struct {
	key   string
	value string
}

type snapshotMsg struct {
	reply chan Snapshot
}

// Snapshot is a point-in-time view of scheduler state for diagnostics.
type Snapshot struct {
	DelayMillis     int64      `json:"delay_ms"`
	FrequencyMillis int64      `json:"frequency_ms"`
	Buckets         int        `json:"buckets"`
	Pending         int        `json:"pending"`
	LastFlush       *time.Time `json:"last_flush,omitempty"`
	Queue           [][]string `json:"queue"`
}

// NewScheduler builds a scheduler with a window sized from the initial
// tunables. Start must be called before producers submit anything.
func NewScheduler(cfg Config) *Scheduler {
	if cfg.Clock == nil {
		cfg.Clock = clock.Wall{}
	}
	s := &Scheduler{
		clock:      cfg.Clock,
		ctl:        cfg.Controls,
		exec:       cfg.Executor,
		membership: cfg.Membership,
		directory:  cfg.Directory,
		delay:      cfg.Delay,
		frequency:  cfg.Frequency,
		mailbox:    make(chan any, 1024),
		stopCh:     make(chan struct{}),
		doneCh:     make(chan struct{}),
	}
	s.window = NewWindow(windowLen(s.delay, s.effFrequency()))
	metrics.WindowLen.Set(float64(s.window.Len()))
	return s
}

// Notify submits one update-feed event to the actor.
func (s *Scheduler) Notify(name string, kind EventKind) {
	s.mailbox <- eventMsg{name: name, kind: kind}
}

// Reconfigure submits a raw tunable change. The value is validated inside
// the actor; malformed input leaves the previous value in place.
func (s *Scheduler) Reconfigure(key, value string) {
	s.mailbox <- reconfigMsg{key: key, value: value}
}

// Snapshot asks the actor for its current state. ok is false when the actor
// did not answer within a second (not started, or shutting down).
func (s *Scheduler) Snapshot() (Snapshot, bool) {
	reply := make(chan Snapshot, 1)
	select {
	case s.mailbox <- snapshotMsg{reply: reply}:
	case <-time.After(time.Second):
		return Snapshot{}, false
	}
	select {
	case snap := <-reply:
		return snap, true
	case <-time.After(time.Second):
		return Snapshot{}, false
	}
}

// Start launches the actor goroutine. Repeated calls are no-ops.
func (s *Scheduler) Start(ctx context.Context) {
	if !s.started.CompareAndSwap(false, true) {
		return
	}
	go s.loop(ctx)
}

// Stop terminates the actor. Pending debounce state is dropped; the durable
// update feed will resurface anything that still needs pushing. Safe to call
// on a scheduler that was never started.
func (s *Scheduler) Stop() {
	close(s.stopCh)
	if s.started.Load() {
		<-s.doneCh
	}
}

func (s *Scheduler) loop(ctx context.Context) {
	defer close(s.doneCh)
	timer := time.NewTimer(s.effFrequency())
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case m := <-s.mailbox:
			s.rearm(timer, s.process(m))
		case <-timer.C:
			timer.Reset(s.flushCheck())
		}
	}
}

// rearm resets the timer to d, draining a concurrent expiry if needed. Only
// the most recently requested duration is honored.
func (s *Scheduler) rearm(timer *time.Timer, d time.Duration) {
	if !timer.Stop() {
		select {
		case <-timer.C:
		default:
		}
	}
	timer.Reset(d)
}

func (s *Scheduler) process(m any) time.Duration {
	switch m := m.(type) {
	case eventMsg:
		return s.handleEvent(m.name, m.kind)
	case reconfigMsg:
		return s.handleReconfig(m.key, m.value)
	case snapshotMsg:
		m.reply <- s.snapshot()
		return s.flushCheck()
	default:
		slog.Warn("dropping unexpected scheduler message", slog.Any("message", m))
		return s.flushCheck()
	}
}

// handleEvent applies one classified event and always falls through to the
// flush check so the timer is re-armed by every processed message.
func (s *Scheduler) handleEvent(name string, kind EventKind) time.Duration {
	c := Classify(s.ctl, name, kind)
	metrics.Events.WithLabelValues(classLabel(c.Class)).Inc()
	switch c.Class {
	case ControlUpdated:
		s.pushControl(c.Control)
	case ShardDeleted:
		logging.VInfo("sync", "forgetting deleted shard", slog.String("shard", string(c.Shard)))
		s.directory.ForgetShard(c.Shard)
	case ShardUpdated:
		if s.window.Insert(c.Shard) {
			logging.VInfo("sync", "queued shard for push", slog.String("shard", string(c.Shard)))
			metrics.Pending.Set(float64(s.window.Pending()))
		}
	}
	return s.flushCheck()
}

// pushControl propagates a control database immediately, bypassing the
// debounce window. The node list fans out to every live peer; the shard map
// and users database go to the next round-robin peer.
func (s *Scheduler) pushControl(db ControlDB) {
	switch db {
	case ControlNodes:
		for _, node := range s.membership.LiveNodes() {
			s.exec.PushTo(s.ctl.Nodes, node)
		}
	case ControlShards:
		s.pushToNext(s.ctl.Shards)
	case ControlUsers:
		s.pushToNext(s.ctl.Users)
	}
}

func (s *Scheduler) pushToNext(subject string) {
	node := s.membership.NextNode()
	if node == "" {
		slog.Warn("no live peer for control push, skipping this round", slog.String("subject", subject))
		return
	}
	s.exec.PushTo(subject, node)
}

// handleReconfig validates and applies a tunable change, then resizes the
// window so no queued shard is lost.
func (s *Scheduler) handleReconfig(key, value string) time.Duration {
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil || n < 0 {
		slog.Error("ignoring malformed sync tunable",
			slog.String("key", key), slog.String("value", value))
		metrics.ConfigErrors.Inc()
		return s.flushCheck()
	}
	d := time.Duration(n) * time.Millisecond
	switch key {
	case KeyDelay:
		s.delay = d
	case KeyFrequency:
		s.frequency = d
	default:
		slog.Warn("unknown sync tunable", slog.String("key", key))
		return s.flushCheck()
	}
	s.window.Resize(windowLen(s.delay, s.effFrequency()))
	metrics.WindowLen.Set(float64(s.window.Len()))
	slog.Info("sync tunables updated",
		slog.Duration("delay", s.delay),
		slog.Duration("frequency", s.frequency),
		slog.Int("buckets", s.window.Len()))
	return s.flushCheck()
}

// flushCheck is the periodic heart of the scheduler. It either records the
// first timestamp, flushes the oldest bucket, or reports how long until the
// current rotation interval elapses. The returned duration re-arms the timer.
func (s *Scheduler) flushCheck() time.Duration {
	freq := s.effFrequency()
	now := s.clock.Now()
	if s.lastPush.IsZero() {
		s.lastPush = now
		return freq
	}
	elapsed := now.Sub(s.lastPush)
	if elapsed > freq {
		for _, shard := range s.window.RotateOldest() {
			s.exec.Push(shard)
		}
		metrics.Flushes.Inc()
		metrics.Pending.Set(float64(s.window.Pending()))
		s.lastPush = now
		return freq
	}
	return freq - elapsed
}

func (s *Scheduler) snapshot() Snapshot {
	snap := Snapshot{
		DelayMillis:     s.delay.Milliseconds(),
		FrequencyMillis: s.frequency.Milliseconds(),
		Buckets:         s.window.Len(),
		Pending:         s.window.Pending(),
		Queue:           s.window.Snapshot(),
	}
	if !s.lastPush.IsZero() {
		t := s.lastPush
		snap.LastFlush = &t
	}
	return snap
}

// effFrequency never lets the rotation interval reach zero; a zero frequency
// is accepted from configuration but clamped to one millisecond here.
func (s *Scheduler) effFrequency() time.Duration {
	if s.frequency < time.Millisecond {
		return time.Millisecond
	}
	return s.frequency
}

// windowLen derives the bucket count from the tunables: one bucket per full
// rotation interval inside the delay bound, plus the bucket being filled.
func windowLen(delay, frequency time.Duration) int {
	return int(delay/frequency) + 1
}
