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
	"github.com/griphq/retention-engine/internal/whop"
)

// MembershipAPI is the slice of the Whop client the sync worker uses.
type MembershipAPI interface {
	ListMemberships(ctx context.Context, companyID string) ([]whop.Membership, error)
	ListMembers(ctx context.Context, companyID string) ([]whop.CompanyMember, error)
}

// SyncStore is the persistence surface for membership sync.
type SyncStore interface {
	ListCommunities(ctx context.Context) ([]domain.Community, error)
	// FindMemberByMembership returns nil when the membership has never been
	// synced into this community.
	FindMemberByMembership(ctx context.Context, communityID, whopMembershipID string) (*domain.Member, error)
	CreateMember(ctx context.Context, m *domain.Member) error
	UpdateMember(ctx context.Context, m *domain.Member) error
	UpdateMemberLTV(ctx context.Context, communityID, whopUserID string, ltvCents int64) error
	UpdateCommunityMemberCount(ctx context.Context, communityID string, count int) error
}

// SyncResult aggregates one sync of one community.
type SyncResult struct {
	Synced  int      `json:"synced"`
	Created int      `json:"created"`
	Updated int      `json:"updated"`
	Errors  []string `json:"errors"`
}

// MemberSyncer pulls memberships from Whop into the members table. It uses
// the memberships endpoint rather than members because only memberships
// carry renewal dates and billing status, which the risk model needs; LTV is
// backfilled from the members endpoint afterwards.
type MemberSyncer struct {
	api   MembershipAPI
	store SyncStore
	lock  distlock.Lock

	interval time.Duration

	totalSynced int64

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
	mu      sync.Mutex
}

// NewMemberSyncer creates the sync worker; interval <= 0 defaults to 1 hour.
func NewMemberSyncer(api MembershipAPI, store SyncStore, lock distlock.Lock, interval time.Duration) *MemberSyncer {
	if interval <= 0 {
		interval = time.Hour
	}
	return &MemberSyncer{api: api, store: store, lock: lock, interval: interval}
}

// Start begins the sync loop.
func (s *MemberSyncer) Start() {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.mu.Unlock()

	log.Printf("[MemberSyncer] Starting (interval %s)", s.interval)

	s.wg.Add(1)
	go s.loop()
}

// Stop halts the loop and waits for an in-flight sync to finish.
func (s *MemberSyncer) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.cancel()
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(30 * time.Second):
		log.Println("[MemberSyncer] Shutdown timeout - forcing stop")
	}

	log.Printf("[MemberSyncer] Stopped. Synced: %d", atomic.LoadInt64(&s.totalSynced))
}

func (s *MemberSyncer) loop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.sweep()
		}
	}
}

func (s *MemberSyncer) sweep() {
	ctx, cancel := context.WithTimeout(s.ctx, 15*time.Minute)
	defer cancel()

	run := func(ctx context.Context) error {
		communities, err := s.store.ListCommunities(ctx)
		if err != nil {
			return fmt.Errorf("list communities: %w", err)
		}
		for _, community := range communities {
			res, err := s.SyncCommunity(ctx, &community)
			if err != nil {
				log.Printf("[MemberSyncer] Community %s sync failed: %v", community.ID, err)
				continue
			}
			atomic.AddInt64(&s.totalSynced, int64(res.Synced))
			log.Printf("[MemberSyncer] Community %s: synced=%d created=%d updated=%d errors=%d",
				community.ID, res.Synced, res.Created, res.Updated, len(res.Errors))
		}
		return nil
	}

	if s.lock == nil {
		if err := run(ctx); err != nil {
			log.Printf("[MemberSyncer] Sweep failed: %v", err)
		}
		return
	}

	held, err := distlock.WithLock(ctx, s.lock, run)
	if err != nil {
		log.Printf("[MemberSyncer] Sweep failed: %v", err)
	} else if !held {
		log.Println("[MemberSyncer] Sweep lock held elsewhere, skipping")
	}
}

// SyncCommunity pulls every Whop membership for one community and upserts
// the member rows. A single bad membership is recorded and skipped; a
// failure of the memberships fetch itself is returned as an error.
func (s *MemberSyncer) SyncCommunity(ctx context.Context, community *domain.Community) (SyncResult, error) {
	memberships, err := s.api.ListMemberships(ctx, community.WhopCompanyID)
	if err != nil {
		return SyncResult{}, fmt.Errorf("fetch memberships: %w", err)
	}

	now := time.Now().UTC()
	result := SyncResult{Errors: []string{}}

	for _, membership := range memberships {
		created, err := s.upsertMember(ctx, community.ID, membership, now)
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("membership %s: %v", membership.ID, err))
			continue
		}
		result.Synced++
		if created {
			result.Created++
		} else {
			result.Updated++
		}
	}

	s.backfillLTV(ctx, community)

	if err := s.store.UpdateCommunityMemberCount(ctx, community.ID, result.Synced); err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("member count: %v", err))
	}
	return result, nil
}

func (s *MemberSyncer) upsertMember(ctx context.Context, communityID string, membership whop.Membership, now time.Time) (created bool, err error) {
	existing, err := s.store.FindMemberByMembership(ctx, communityID, membership.ID)
	if err != nil {
		return false, err
	}

	m := &domain.Member{
		CommunityID:        communityID,
		WhopMembershipID:   membership.ID,
		SubscriptionStatus: whop.MapStatus(membership.Status),
		CancelAtPeriodEnd:  membership.CancelAtPeriodEnd,
		UpdatedAt:          now,
	}
	if membership.User != nil {
		m.WhopUserID = membership.User.ID
		m.Email = membership.User.Email
		m.FirstName = membership.User.Name
		if membership.User.Username != "" {
			u := membership.User.Username
			m.Username = &u
		}
	}
	if membership.Plan != nil {
		m.PlanID = &membership.Plan.ID
	}
	if membership.Product != nil && membership.Product.Title != "" {
		title := membership.Product.Title
		m.PlanName = &title
	}
	if t := whop.ParseTimestamp(membership.RenewalPeriodStart); !t.IsZero() {
		m.CurrentPeriodStart = &t
	}
	if t := whop.ParseTimestamp(membership.RenewalPeriodEnd); !t.IsZero() {
		m.CurrentPeriodEnd = &t
	}
	if t := whop.ParseTimestamp(membership.JoinedAt); !t.IsZero() {
		tenure := int(now.Sub(t).Hours() / 24)
		m.TenureDays = &tenure
	}

	if existing != nil {
		m.ID = existing.ID
		// Counters and engagement flags are owned by other flows; carry the
		// stored values through the update.
		m.LTVCents = existing.LTVCents
		m.PreviousCancellations = existing.PreviousCancellations
		m.RecentPaymentFailures = existing.RecentPaymentFailures
		m.HasEngagementData = existing.HasEngagementData
		m.EngagementScore = existing.EngagementScore
		m.DiscordUserID = existing.DiscordUserID
		m.TelegramUserID = existing.TelegramUserID
		m.CreatedAt = existing.CreatedAt
		return false, s.store.UpdateMember(ctx, m)
	}

	m.CreatedAt = now
	return true, s.store.CreateMember(ctx, m)
}

// backfillLTV copies lifetime spend from the members endpoint. It is
// supplementary; failures never fail the sync.
func (s *MemberSyncer) backfillLTV(ctx context.Context, community *domain.Community) {
	members, err := s.api.ListMembers(ctx, community.WhopCompanyID)
	if err != nil {
		log.Printf("[MemberSyncer] LTV backfill skipped for %s: %v", community.ID, err)
		return
	}
	for _, cm := range members {
		if cm.User == nil || cm.User.ID == "" {
			continue
		}
		if err := s.store.UpdateMemberLTV(ctx, community.ID, cm.User.ID, cm.USDTotalSpent); err != nil {
			log.Printf("[MemberSyncer] LTV update failed for user %s: %v", cm.User.ID, err)
		}
	}
}
