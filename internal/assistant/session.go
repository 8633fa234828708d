package assistant

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dnsops/zonebot/internal/store"
)

// ErrBusy is returned when a channel's thread already has a run in
// flight and the wait for it to finish exceeded the configured bound.
// Callers should tell the user to retry shortly rather than queue.
var ErrBusy = errors.New("assistant thread busy")

// RunError reports a run that reached a non-completed terminal state.
// Callers convert this into a generic apology; the raw status is for
// logs only.
type RunError struct {
	ThreadID string
	RunID    string
	Status   RunStatus
}

func (e *RunError) Error() string {
	return fmt.Sprintf("run %s on thread %s ended %s", e.RunID, e.ThreadID, e.Status)
}

// ManagerConfig holds session manager dependencies and tuning.
type ManagerConfig struct {
	API   API
	Store *store.Store
	// DefaultAssistant is the assistant id used by Converse.
	DefaultAssistant string
	// PollInterval is how often an in-flight run is re-checked.
	PollInterval time.Duration
	// RunTimeout bounds one run from submission to a terminal state.
	RunTimeout time.Duration
	// BusyWaitTimeout bounds how long a request waits for a busy thread.
	BusyWaitTimeout time.Duration
	Logger          *slog.Logger
}

// Manager owns the channel→thread mapping and serializes runs per
// thread. All work for one channel funnels through that channel's
// slot, so the assistant service never sees two concurrent runs on
// one thread; distinct channels proceed in parallel.
type Manager struct {
	api              API
	store            *store.Store
	defaultAssistant string
	pollInterval     time.Duration
	runTimeout       time.Duration
	busyWait         time.Duration
	logger           *slog.Logger

	slots keyedSlots
}

// NewManager creates a session manager.
func NewManager(cfg ManagerConfig) *Manager {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 2 * time.Second
	}
	if cfg.RunTimeout <= 0 {
		cfg.RunTimeout = 2 * time.Minute
	}
	if cfg.BusyWaitTimeout <= 0 {
		cfg.BusyWaitTimeout = 30 * time.Second
	}
	return &Manager{
		api:              cfg.API,
		store:            cfg.Store,
		defaultAssistant: cfg.DefaultAssistant,
		pollInterval:     cfg.PollInterval,
		runTimeout:       cfg.RunTimeout,
		busyWait:         cfg.BusyWaitTimeout,
		logger:           logger.With("component", "session"),
	}
}

// Converse appends the user's message to the channel's thread, runs
// the default assistant, and returns its reply.
func (m *Manager) Converse(ctx context.Context, channel, text string) (string, error) {
	return m.run(ctx, channel, m.defaultAssistant, []string{text})
}

// InjectAndConverse appends a data payload followed by an instruction
// prompt to the channel's thread, then runs the named assistant. Used
// by command handlers to feed provider data into the conversation.
func (m *Manager) InjectAndConverse(ctx context.Context, channel, assistantID, payload, prompt string) (string, error) {
	return m.run(ctx, channel, assistantID, []string{payload, prompt})
}

// run is the shared conversation turn: acquire the channel slot,
// resolve the thread, append messages, run to terminal, extract reply.
func (m *Manager) run(ctx context.Context, channel, assistantID string, messages []string) (string, error) {
	release, err := m.slots.acquire(ctx, channel, m.busyWait)
	if err != nil {
		return "", err
	}
	defer release()

	threadID, err := m.resolveThread(ctx, channel)
	if err != nil {
		return "", err
	}

	for _, msg := range messages {
		if err := m.api.AppendMessage(ctx, threadID, "user", msg); err != nil {
			return "", err
		}
	}

	runID, err := m.api.StartRun(ctx, threadID, assistantID)
	if err != nil {
		return "", err
	}

	status, err := m.awaitRun(ctx, threadID, runID)
	if err != nil {
		return "", err
	}
	if status != RunCompleted {
		return "", &RunError{ThreadID: threadID, RunID: runID, Status: status}
	}

	if err := m.store.Touch(channel); err != nil {
		m.logger.Warn("thread touch failed", "channel", channel, "error", err)
	}

	return m.api.LatestAssistantMessage(ctx, threadID)
}

// resolveThread returns the channel's thread id, creating one on first
// use. The caller holds the channel slot, so in-process creation is
// already serialized; the store's atomic claim additionally resolves
// races with other writers, in which case the freshly created thread
// is abandoned in favor of the claimed one.
func (m *Manager) resolveThread(ctx context.Context, channel string) (string, error) {
	threadID, ok, err := m.store.Lookup(channel)
	if err != nil {
		return "", fmt.Errorf("lookup thread: %w", err)
	}
	if ok {
		return threadID, nil
	}

	created, err := m.api.CreateThread(ctx)
	if err != nil {
		return "", err
	}

	winner, err := m.store.Claim(channel, created)
	if err != nil {
		return "", err
	}
	if winner != created {
		m.logger.Info("lost thread creation race, using existing thread",
			"channel", channel,
			"created", created,
			"existing", winner,
		)
	} else {
		m.logger.Info("thread created for channel",
			"channel", channel,
			"thread_id", created,
		)
	}
	return winner, nil
}

// awaitRun polls the run until it reaches a terminal state or the run
// timeout elapses. The assistant service exposes no completion push,
// so polling on a fixed interval is the contract.
func (m *Manager) awaitRun(ctx context.Context, threadID, runID string) (RunStatus, error) {
	deadline := time.Now().Add(m.runTimeout)

	for {
		status, err := m.api.GetRun(ctx, threadID, runID)
		if err != nil {
			return "", err
		}
		if status.Terminal() {
			return status, nil
		}

		if time.Now().After(deadline) {
			m.logger.Warn("run timed out",
				"thread_id", threadID,
				"run_id", runID,
				"timeout", m.runTimeout,
			)
			// The run may still be live on the service side, and a
			// thread accepts only one run at a time. Cancel it so the
			// channel's next turn does not trip over it. The caller's
			// ctx may already be done, so use a fresh one.
			cancelCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			if err := m.api.CancelRun(cancelCtx, threadID, runID); err != nil {
				m.logger.Warn("abandoned run cancel failed",
					"thread_id", threadID,
					"run_id", runID,
					"error", err,
				)
			}
			cancel()
			return "", &RunError{ThreadID: threadID, RunID: runID, Status: RunExpired}
		}

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(m.pollInterval):
		}
	}
}
