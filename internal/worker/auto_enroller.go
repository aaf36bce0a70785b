package worker

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/griphq/retention-engine/internal/domain"
	"github.com/griphq/retention-engine/internal/pkg/distlock"
	"github.com/griphq/retention-engine/internal/service/enrollment"
)

// AutoEnrollStore is the read surface for the auto-enrollment sweep.
type AutoEnrollStore interface {
	ListCommunities(ctx context.Context) ([]domain.Community, error)
	ListActive(ctx context.Context, communityID string) ([]domain.Playbook, error)
	ListScorableMembers(ctx context.Context, communityID string) ([]domain.Member, error)
	GetForMember(ctx context.Context, memberID string) (*domain.RiskScore, error)
}

// PlaybookEnroller evaluates trigger conditions and enrolls members. The
// enrollment service satisfies it.
type PlaybookEnroller interface {
	Eligible(record map[string]any, pb *domain.Playbook) bool
	Enroll(ctx context.Context, playbookID, memberID string) (*enrollment.EnrollResult, error)
}

// AutoEnrollResult aggregates one auto-enrollment sweep.
type AutoEnrollResult struct {
	Enrolled int      `json:"enrolled"`
	Errors   []string `json:"errors"`
}

// AutoEnroller periodically matches scorable members against each active
// playbook's trigger conditions and enrolls the ones that qualify.
// Communities that have switched auto_enroll_playbooks off keep enrollment
// manual through the API.
type AutoEnroller struct {
	store    AutoEnrollStore
	enroller PlaybookEnroller
	lock     distlock.Lock

	interval time.Duration

	totalEnrolled int64

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
	mu      sync.Mutex
}

// NewAutoEnroller creates the auto-enrollment sweep; interval <= 0 defaults
// to 1 hour. lock may be nil for single-instance deployments.
func NewAutoEnroller(store AutoEnrollStore, enroller PlaybookEnroller, lock distlock.Lock, interval time.Duration) *AutoEnroller {
	if interval <= 0 {
		interval = time.Hour
	}
	return &AutoEnroller{store: store, enroller: enroller, lock: lock, interval: interval}
}

// Start begins the sweep loop.
func (a *AutoEnroller) Start() {
	a.mu.Lock()
	if a.running {
		a.mu.Unlock()
		return
	}
	a.running = true
	a.ctx, a.cancel = context.WithCancel(context.Background())
	a.mu.Unlock()

	log.Printf("[AutoEnroller] Starting (interval %s)", a.interval)

	a.wg.Add(1)
	go a.loop()
}

// Stop halts the loop and waits for an in-flight sweep to finish.
func (a *AutoEnroller) Stop() {
	a.mu.Lock()
	if !a.running {
		a.mu.Unlock()
		return
	}
	a.running = false
	a.cancel()
	a.mu.Unlock()

	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(30 * time.Second):
		log.Println("[AutoEnroller] Shutdown timeout - forcing stop")
	}

	log.Printf("[AutoEnroller] Stopped. Enrolled: %d", atomic.LoadInt64(&a.totalEnrolled))
}

func (a *AutoEnroller) loop() {
	defer a.wg.Done()

	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	for {
		select {
		case <-a.ctx.Done():
			return
		case <-ticker.C:
			a.sweep()
		}
	}
}

func (a *AutoEnroller) sweep() {
	ctx, cancel := context.WithTimeout(a.ctx, 10*time.Minute)
	defer cancel()

	run := func(ctx context.Context) error {
		res, err := a.EnrollEligible(ctx)
		if err != nil {
			return err
		}
		atomic.AddInt64(&a.totalEnrolled, int64(res.Enrolled))
		log.Printf("[AutoEnroller] Sweep done: enrolled=%d errors=%d", res.Enrolled, len(res.Errors))
		return nil
	}

	if a.lock == nil {
		if err := run(ctx); err != nil {
			log.Printf("[AutoEnroller] Sweep failed: %v", err)
		}
		return
	}

	held, err := distlock.WithLock(ctx, a.lock, run)
	if err != nil {
		log.Printf("[AutoEnroller] Sweep failed: %v", err)
	} else if !held {
		log.Println("[AutoEnroller] Sweep lock held elsewhere, skipping")
	}
}

// EnrollEligible walks each opted-in community's active playbooks and enrolls
// every scorable member whose fact record matches the trigger conditions.
// Members already actively enrolled in a playbook are skipped; other failures
// are recorded in the aggregate and the sweep continues.
func (a *AutoEnroller) EnrollEligible(ctx context.Context) (AutoEnrollResult, error) {
	communities, err := a.store.ListCommunities(ctx)
	if err != nil {
		return AutoEnrollResult{}, fmt.Errorf("list communities: %w", err)
	}

	now := time.Now().UTC()
	result := AutoEnrollResult{Errors: []string{}}

	for i := range communities {
		c := &communities[i]
		if !c.Settings.AutoEnrollPlaybooks {
			continue
		}

		playbooks, err := a.store.ListActive(ctx, c.ID)
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("community %s: %v", c.ID, err))
			continue
		}
		if len(playbooks) == 0 {
			continue
		}

		members, err := a.store.ListScorableMembers(ctx, c.ID)
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("community %s: %v", c.ID, err))
			continue
		}

		for j := range members {
			m := &members[j]
			riskScore, err := a.store.GetForMember(ctx, m.ID)
			if err != nil {
				result.Errors = append(result.Errors, fmt.Sprintf("member %s: %v", m.ID, err))
				continue
			}
			record := m.FactRecord(now, riskScore)

			for k := range playbooks {
				pb := &playbooks[k]
				if !a.enroller.Eligible(record, pb) {
					continue
				}
				if _, err := a.enroller.Enroll(ctx, pb.ID, m.ID); err != nil {
					if errors.Is(err, enrollment.ErrAlreadyEnrolled) {
						continue
					}
					result.Errors = append(result.Errors, fmt.Sprintf("member %s playbook %s: %v", m.ID, pb.ID, err))
					continue
				}
				result.Enrolled++
			}
		}
	}
	return result, nil
}
