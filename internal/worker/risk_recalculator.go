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
	"github.com/griphq/retention-engine/internal/risk"
)

// RiskStore is the persistence surface for the recalculation sweep.
// UpsertRiskScore must be keyed by member ID so re-runs are idempotent.
type RiskStore interface {
	ListCommunityIDs(ctx context.Context) ([]string, error)
	ListScorableMembers(ctx context.Context, communityID string) ([]domain.Member, error)
	UpsertRiskScore(ctx context.Context, score domain.RiskScore) error
}

// RecalcResult aggregates one recalculation sweep.
type RecalcResult struct {
	Scored int      `json:"scored"`
	Errors []string `json:"errors"`
}

// RiskRecalculator rescores every active, trialing, or past-due member on a
// fixed interval so risk levels track renewal windows as they approach.
type RiskRecalculator struct {
	store RiskStore
	lock  distlock.Lock

	interval time.Duration

	totalScored int64

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
	mu      sync.Mutex
}

// NewRiskRecalculator creates a recalculation sweep; interval <= 0 defaults
// to 6 hours. lock may be nil for single-instance deployments.
func NewRiskRecalculator(store RiskStore, lock distlock.Lock, interval time.Duration) *RiskRecalculator {
	if interval <= 0 {
		interval = 6 * time.Hour
	}
	return &RiskRecalculator{store: store, lock: lock, interval: interval}
}

// Start begins the sweep loop.
func (r *RiskRecalculator) Start() {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return
	}
	r.running = true
	r.ctx, r.cancel = context.WithCancel(context.Background())
	r.mu.Unlock()

	log.Printf("[RiskRecalculator] Starting (interval %s)", r.interval)

	r.wg.Add(1)
	go r.loop()
}

// Stop halts the loop and waits for an in-flight sweep to finish.
func (r *RiskRecalculator) Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	r.running = false
	r.cancel()
	r.mu.Unlock()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(30 * time.Second):
		log.Println("[RiskRecalculator] Shutdown timeout - forcing stop")
	}

	log.Printf("[RiskRecalculator] Stopped. Scored: %d", atomic.LoadInt64(&r.totalScored))
}

func (r *RiskRecalculator) loop() {
	defer r.wg.Done()

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-r.ctx.Done():
			return
		case <-ticker.C:
			r.sweep()
		}
	}
}

func (r *RiskRecalculator) sweep() {
	ctx, cancel := context.WithTimeout(r.ctx, 10*time.Minute)
	defer cancel()

	run := func(ctx context.Context) error {
		res, err := r.Recalculate(ctx)
		if err != nil {
			return err
		}
		atomic.AddInt64(&r.totalScored, int64(res.Scored))
		log.Printf("[RiskRecalculator] Sweep done: scored=%d errors=%d", res.Scored, len(res.Errors))
		return nil
	}

	if r.lock == nil {
		if err := run(ctx); err != nil {
			log.Printf("[RiskRecalculator] Sweep failed: %v", err)
		}
		return
	}

	held, err := distlock.WithLock(ctx, r.lock, run)
	if err != nil {
		log.Printf("[RiskRecalculator] Sweep failed: %v", err)
	} else if !held {
		log.Println("[RiskRecalculator] Sweep lock held elsewhere, skipping")
	}
}

// Recalculate scores every scorable member across all communities. A member
// whose upsert fails is recorded in the aggregate and the sweep continues;
// scoring itself cannot fail.
func (r *RiskRecalculator) Recalculate(ctx context.Context) (RecalcResult, error) {
	communityIDs, err := r.store.ListCommunityIDs(ctx)
	if err != nil {
		return RecalcResult{}, fmt.Errorf("list communities: %w", err)
	}

	now := time.Now().UTC()
	result := RecalcResult{Errors: []string{}}

	for _, communityID := range communityIDs {
		members, err := r.store.ListScorableMembers(ctx, communityID)
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("community %s: %v", communityID, err))
			continue
		}
		for i := range members {
			score := risk.ScoreMember(&members[i], now)
			if err := r.store.UpsertRiskScore(ctx, score); err != nil {
				result.Errors = append(result.Errors, fmt.Sprintf("member %s: %v", members[i].ID, err))
				continue
			}
			result.Scored++
		}
	}
	return result, nil
}
