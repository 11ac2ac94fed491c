package orchestrator

import (
	"context"
	"sync"
	"time"
)

// Outcome is the terminal state of a run.
type Outcome string

const (
	// OutcomeCompleted means every turn ran and the conversation was ended.
	OutcomeCompleted Outcome = "completed"
	// OutcomeStopped means the conversation was ended externally or the
	// orchestrator shut down mid-run.
	OutcomeStopped Outcome = "stopped"
	// OutcomeAborted means the run could not start: missing or inactive
	// conversation, or fewer than two resolvable agents.
	OutcomeAborted Outcome = "aborted"
	// OutcomeFailed means a completion or persistence error ended the run.
	OutcomeFailed Outcome = "failed"
)

// Run is a handle on one background orchestration.
type Run struct {
	ConversationID string
	StartedAt      time.Time

	done chan struct{}

	mu       sync.Mutex
	outcome  Outcome
	err      error
	messages int
}

func newRun(conversationID string) *Run {
	return &Run{
		ConversationID: conversationID,
		StartedAt:      time.Now().UTC(),
		done:           make(chan struct{}),
	}
}

// Done is closed when the run has finished.
func (r *Run) Done() <-chan struct{} {
	return r.done
}

// Wait blocks until the run finishes or ctx is cancelled.
func (r *Run) Wait(ctx context.Context) error {
	select {
	case <-r.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Outcome returns the terminal state, empty while running.
func (r *Run) Outcome() Outcome {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.outcome
}

// Err returns the error that ended the run, if any.
func (r *Run) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

// Messages returns how many agent messages the run persisted.
func (r *Run) Messages() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.messages
}

func (r *Run) addMessage() {
	r.mu.Lock()
	r.messages++
	r.mu.Unlock()
}

func (r *Run) finish(outcome Outcome, err error) {
	r.mu.Lock()
	r.outcome = outcome
	r.err = err
	r.mu.Unlock()
}
