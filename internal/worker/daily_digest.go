package worker

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/griphq/retention-engine/internal/domain"
	"github.com/griphq/retention-engine/internal/pkg/distlock"
	"github.com/griphq/retention-engine/internal/service/outreach"
)

// DigestStore is the read surface for the daily digest sweep.
type DigestStore interface {
	ListCommunities(ctx context.Context) ([]domain.Community, error)
	CountByLevel(ctx context.Context, communityID string) (map[domain.RiskLevel]int, error)
}

// DigestResult aggregates one digest sweep.
type DigestResult struct {
	Sent   int      `json:"sent"`
	Errors []string `json:"errors"`
}

// DailyDigest emails each opted-in community's operator a churn risk summary
// once a day: member count plus the per-level risk breakdown. Communities
// whose settings leave daily_digest_email off are skipped.
type DailyDigest struct {
	store     DigestStore
	transport outreach.Transport
	lock      distlock.Lock

	recipient string
	interval  time.Duration

	totalSent int64

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
	mu      sync.Mutex
}

// NewDailyDigest creates the digest sweep. recipient is the operator address
// digests are delivered to; an empty recipient turns every sweep into a
// no-op. interval <= 0 defaults to 24 hours, lock may be nil for
// single-instance deployments.
func NewDailyDigest(store DigestStore, transport outreach.Transport, lock distlock.Lock, recipient string, interval time.Duration) *DailyDigest {
	if interval <= 0 {
		interval = 24 * time.Hour
	}
	return &DailyDigest{store: store, transport: transport, lock: lock, recipient: recipient, interval: interval}
}

// Start begins the sweep loop.
func (d *DailyDigest) Start() {
	d.mu.Lock()
	if d.running {
		d.mu.Unlock()
		return
	}
	d.running = true
	d.ctx, d.cancel = context.WithCancel(context.Background())
	d.mu.Unlock()

	log.Printf("[DailyDigest] Starting (interval %s)", d.interval)
	if d.recipient == "" {
		log.Println("[DailyDigest] No digest recipient configured, sweeps will be no-ops")
	}

	d.wg.Add(1)
	go d.loop()
}

// Stop halts the loop and waits for an in-flight sweep to finish.
func (d *DailyDigest) Stop() {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return
	}
	d.running = false
	d.cancel()
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(30 * time.Second):
		log.Println("[DailyDigest] Shutdown timeout - forcing stop")
	}

	log.Printf("[DailyDigest] Stopped. Sent: %d", atomic.LoadInt64(&d.totalSent))
}

func (d *DailyDigest) loop() {
	defer d.wg.Done()

	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-d.ctx.Done():
			return
		case <-ticker.C:
			d.sweep()
		}
	}
}

func (d *DailyDigest) sweep() {
	ctx, cancel := context.WithTimeout(d.ctx, 10*time.Minute)
	defer cancel()

	run := func(ctx context.Context) error {
		res, err := d.SendDigests(ctx)
		if err != nil {
			return err
		}
		atomic.AddInt64(&d.totalSent, int64(res.Sent))
		log.Printf("[DailyDigest] Sweep done: sent=%d errors=%d", res.Sent, len(res.Errors))
		return nil
	}

	if d.lock == nil {
		if err := run(ctx); err != nil {
			log.Printf("[DailyDigest] Sweep failed: %v", err)
		}
		return
	}

	held, err := distlock.WithLock(ctx, d.lock, run)
	if err != nil {
		log.Printf("[DailyDigest] Sweep failed: %v", err)
	} else if !held {
		log.Println("[DailyDigest] Sweep lock held elsewhere, skipping")
	}
}

// SendDigests composes and sends one digest per opted-in community. Sends
// are best-effort: a community whose counts query or send fails is recorded
// in the aggregate and the sweep moves on.
func (d *DailyDigest) SendDigests(ctx context.Context) (DigestResult, error) {
	result := DigestResult{Errors: []string{}}
	if d.recipient == "" {
		return result, nil
	}

	communities, err := d.store.ListCommunities(ctx)
	if err != nil {
		return DigestResult{}, fmt.Errorf("list communities: %w", err)
	}

	for i := range communities {
		c := &communities[i]
		if !c.Settings.DailyDigestEmail {
			continue
		}

		counts, err := d.store.CountByLevel(ctx, c.ID)
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("community %s: %v", c.ID, err))
			continue
		}

		operator := &domain.Member{
			ID:          c.CreatorUserID,
			CommunityID: c.ID,
			Email:       &d.recipient,
		}
		if err := d.transport.Send(ctx, domain.ChannelEmail, operator, digestContent(c, counts)); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("community %s: %v", c.ID, err))
			continue
		}
		result.Sent++
	}
	return result, nil
}

func digestContent(c *domain.Community, counts map[domain.RiskLevel]int) domain.OutreachContent {
	var b strings.Builder
	fmt.Fprintf(&b, "Daily digest for %s (%d members)\n\n", c.Name, c.MemberCount)
	b.WriteString("Churn risk breakdown:\n")
	rows := []struct {
		label string
		level domain.RiskLevel
	}{
		{"Critical", domain.RiskCritical},
		{"High", domain.RiskHigh},
		{"Medium", domain.RiskMedium},
		{"Low", domain.RiskLow},
	}
	for _, row := range rows {
		fmt.Fprintf(&b, "  %-8s %d\n", row.label, counts[row.level])
	}
	b.WriteString("\nReview at-risk members: https://app.griphq.com/dashboard\n")

	return domain.OutreachContent{
		Subject: fmt.Sprintf("Grip Daily Digest — %s", c.Name),
		Body:    b.String(),
	}
}
