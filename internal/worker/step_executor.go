// Package worker contains the periodic sweeps: step execution, risk
// recalculation, and membership sync. Each worker owns a ticker loop with
// Start/Stop lifecycle and serializes its sweep across instances with a
// distributed lock.
package worker

import (
	"context"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/griphq/retention-engine/internal/domain"
	"github.com/griphq/retention-engine/internal/pkg/distlock"
	"github.com/griphq/retention-engine/internal/service/outreach"
)

// StepStore is the persistence surface the step executor sweeps over.
// ClaimDueSteps must atomically mark the returned rows as claimed so
// concurrent sweeps never double-send (the Postgres implementation does
// FOR UPDATE SKIP LOCKED and stamps a claim marker in one statement).
type StepStore interface {
	ClaimDueSteps(ctx context.Context, limit int) ([]domain.StepExecution, error)
	GetEnrollment(ctx context.Context, id string) (*domain.Enrollment, error)
	GetMember(ctx context.Context, id string) (*domain.Member, error)
	GetCommunity(ctx context.Context, id string) (*domain.Community, error)
	MarkStepExecuted(ctx context.Context, stepID string, executedAt time.Time, outcome *domain.StepOutcome, execErr *string) error
	AdvanceEnrollment(ctx context.Context, enrollmentID string, stepNumber int) error
}

// StepDispatcher is the outreach surface used for email steps.
type StepDispatcher interface {
	Dispatch(ctx context.Context, community *domain.Community, member *domain.Member, content domain.OutreachContent, opts outreach.SendOptions) domain.DispatchResult
}

// SweepResult aggregates one sweep. Errors are per-step and never abort the
// sweep; a caller that sees a non-empty list inspects the rows' error fields.
type SweepResult struct {
	Executed int      `json:"executed"`
	Errors   []string `json:"errors"`
}

const defaultStepBatchSize = 50

// StepExecutor claims due playbook step executions and runs them.
type StepExecutor struct {
	store      StepStore
	dispatcher StepDispatcher
	lock       distlock.Lock

	batchSize    int
	pollInterval time.Duration

	totalExecuted int64
	totalErrors   int64

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
	mu      sync.Mutex
}

// NewStepExecutor creates a step executor. lock may be nil for single
// instance deployments and tests; batchSize <= 0 selects the default of 50.
func NewStepExecutor(store StepStore, dispatcher StepDispatcher, lock distlock.Lock, pollInterval time.Duration, batchSize int) *StepExecutor {
	if pollInterval <= 0 {
		pollInterval = 15 * time.Minute
	}
	if batchSize <= 0 {
		batchSize = defaultStepBatchSize
	}
	return &StepExecutor{
		store:        store,
		dispatcher:   dispatcher,
		lock:         lock,
		batchSize:    batchSize,
		pollInterval: pollInterval,
	}
}

// Start begins the sweep loop.
func (e *StepExecutor) Start() {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return
	}
	e.running = true
	e.ctx, e.cancel = context.WithCancel(context.Background())
	e.mu.Unlock()

	log.Printf("[StepExecutor] Starting (interval %s, batch %d)", e.pollInterval, e.batchSize)

	e.wg.Add(1)
	go e.loop()
}

// Stop halts the loop and waits for an in-flight sweep to finish.
func (e *StepExecutor) Stop() {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return
	}
	e.running = false
	e.cancel()
	e.mu.Unlock()

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(30 * time.Second):
		log.Println("[StepExecutor] Shutdown timeout - forcing stop")
	}

	log.Printf("[StepExecutor] Stopped. Executed: %d, Errors: %d",
		atomic.LoadInt64(&e.totalExecuted), atomic.LoadInt64(&e.totalErrors))
}

func (e *StepExecutor) loop() {
	defer e.wg.Done()

	ticker := time.NewTicker(e.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-e.ctx.Done():
			return
		case <-ticker.C:
			e.sweep()
		}
	}
}

func (e *StepExecutor) sweep() {
	ctx, cancel := context.WithTimeout(e.ctx, 5*time.Minute)
	defer cancel()

	run := func(ctx context.Context) error {
		res, err := e.RunDueSteps(ctx, e.batchSize)
		if err != nil {
			return err
		}
		atomic.AddInt64(&e.totalExecuted, int64(res.Executed))
		atomic.AddInt64(&e.totalErrors, int64(len(res.Errors)))
		if res.Executed > 0 || len(res.Errors) > 0 {
			log.Printf("[StepExecutor] Sweep done: executed=%d errors=%d", res.Executed, len(res.Errors))
		}
		return nil
	}

	if e.lock == nil {
		if err := run(ctx); err != nil {
			log.Printf("[StepExecutor] Sweep failed: %v", err)
		}
		return
	}

	held, err := distlock.WithLock(ctx, e.lock, run)
	if err != nil {
		log.Printf("[StepExecutor] Sweep failed: %v", err)
	} else if !held {
		log.Println("[StepExecutor] Sweep lock held elsewhere, skipping")
	}
}

// RunDueSteps executes one bounded sweep over due steps. Faults are isolated
// per step: the failing row gets executed_at plus an error, the sweep moves
// on, and the aggregate carries the messages. The returned error is reserved
// for failures before any step was claimed (e.g. the claim query itself).
func (e *StepExecutor) RunDueSteps(ctx context.Context, batchSize int) (SweepResult, error) {
	if batchSize <= 0 {
		batchSize = defaultStepBatchSize
	}

	steps, err := e.store.ClaimDueSteps(ctx, batchSize)
	if err != nil {
		return SweepResult{}, fmt.Errorf("claim due steps: %w", err)
	}

	result := SweepResult{Errors: []string{}}
	for _, step := range steps {
		ok, stepErr := e.runStep(ctx, step)
		if ok {
			result.Executed++
		}
		if stepErr != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("step %s: %v", step.ID, stepErr))
		}
	}
	return result, nil
}

// runStep handles one claimed step. It reports whether the step counts as
// executed for the aggregate, plus any per-step error (already recorded on
// the row by the time it returns).
func (e *StepExecutor) runStep(ctx context.Context, step domain.StepExecution) (bool, error) {
	now := time.Now().UTC()

	enr, err := e.store.GetEnrollment(ctx, step.EnrollmentID)
	if err != nil || enr == nil {
		if err == nil {
			err = fmt.Errorf("enrollment %s not found", step.EnrollmentID)
		}
		e.recordFailure(ctx, step.ID, now, err)
		return false, err
	}

	// Steps of stopped/completed/failed enrollments are retired without
	// firing; their schedule rows would otherwise come due forever.
	if enr.Status != domain.EnrollmentActive {
		outcome := &domain.StepOutcome{Status: "skipped"}
		if err := e.store.MarkStepExecuted(ctx, step.ID, now, outcome, nil); err != nil {
			return false, err
		}
		return false, nil
	}

	switch step.StepType {
	case domain.StepWait, domain.StepCheckStatus:
		outcome := &domain.StepOutcome{Status: "completed"}
		if err := e.store.MarkStepExecuted(ctx, step.ID, now, outcome, nil); err != nil {
			e.recordFailure(ctx, step.ID, now, err)
			return false, err
		}
		if err := e.store.AdvanceEnrollment(ctx, enr.ID, step.StepNumber); err != nil {
			return true, err
		}
		return true, nil

	case domain.StepEmail:
		return e.runEmailStep(ctx, step, enr, now)

	default:
		err := fmt.Errorf("unknown step type %q", step.StepType)
		e.recordFailure(ctx, step.ID, now, err)
		return false, err
	}
}

func (e *StepExecutor) runEmailStep(ctx context.Context, step domain.StepExecution, enr *domain.Enrollment, now time.Time) (bool, error) {
	member, err := e.store.GetMember(ctx, enr.MemberID)
	if err != nil || member == nil {
		if err == nil {
			err = fmt.Errorf("member %s not found", enr.MemberID)
		}
		e.recordFailure(ctx, step.ID, now, err)
		return false, err
	}
	community, err := e.store.GetCommunity(ctx, member.CommunityID)
	if err != nil || community == nil {
		if err == nil {
			err = fmt.Errorf("community %s not found", member.CommunityID)
		}
		e.recordFailure(ctx, step.ID, now, err)
		return false, err
	}

	body := "We wanted to check in with you."
	if step.Content != nil && *step.Content != "" {
		body = *step.Content
	}
	content := domain.OutreachContent{Subject: "Retention check-in", Body: body}

	enrollmentID := enr.ID
	res := e.dispatcher.Dispatch(ctx, community, member, content, outreach.SendOptions{
		EnrollmentID: &enrollmentID,
	})

	success := res.Success
	outcome := &domain.StepOutcome{Channel: res.Channel, Success: &success}
	if err := e.store.MarkStepExecuted(ctx, step.ID, now, outcome, nil); err != nil {
		e.recordFailure(ctx, step.ID, now, err)
		return false, err
	}
	if err := e.store.AdvanceEnrollment(ctx, enr.ID, step.StepNumber); err != nil {
		return res.Success, err
	}

	if !res.Success {
		return false, fmt.Errorf("send failed on %s: %s", res.Channel, res.Error)
	}
	return true, nil
}

// recordFailure stamps the row executed with the error so a poisoned step is
// never re-claimed. A failure of the stamp itself is only logged; the sweep
// keeps going either way.
func (e *StepExecutor) recordFailure(ctx context.Context, stepID string, now time.Time, cause error) {
	msg := cause.Error()
	if err := e.store.MarkStepExecuted(ctx, stepID, now, nil, &msg); err != nil {
		log.Printf("[StepExecutor] Failed to record step %s error: %v", stepID, err)
	}
}
