package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/griphq/retention-engine/internal/domain"
	"github.com/griphq/retention-engine/internal/whop"
)

type stubAPI struct {
	memberships []whop.Membership
	members     []whop.CompanyMember
	listErr     error
}

func (a *stubAPI) ListMemberships(ctx context.Context, companyID string) ([]whop.Membership, error) {
	if a.listErr != nil {
		return nil, a.listErr
	}
	return a.memberships, nil
}

func (a *stubAPI) ListMembers(ctx context.Context, companyID string) ([]whop.CompanyMember, error) {
	return a.members, nil
}

type memSyncStore struct {
	byMembership map[string]*domain.Member
	createErr    map[string]error
	ltv          map[string]int64
	memberCount  map[string]int
	created      int
	updated      int
}

func newMemSyncStore() *memSyncStore {
	return &memSyncStore{
		byMembership: make(map[string]*domain.Member),
		createErr:    make(map[string]error),
		ltv:          make(map[string]int64),
		memberCount:  make(map[string]int),
	}
}

func (s *memSyncStore) ListCommunities(ctx context.Context) ([]domain.Community, error) {
	return nil, nil
}

func (s *memSyncStore) FindMemberByMembership(ctx context.Context, communityID, whopMembershipID string) (*domain.Member, error) {
	return s.byMembership[whopMembershipID], nil
}

func (s *memSyncStore) CreateMember(ctx context.Context, m *domain.Member) error {
	if err := s.createErr[m.WhopMembershipID]; err != nil {
		return err
	}
	cp := *m
	cp.ID = "id-" + m.WhopMembershipID
	s.byMembership[m.WhopMembershipID] = &cp
	s.created++
	return nil
}

func (s *memSyncStore) UpdateMember(ctx context.Context, m *domain.Member) error {
	cp := *m
	s.byMembership[m.WhopMembershipID] = &cp
	s.updated++
	return nil
}

func (s *memSyncStore) UpdateMemberLTV(ctx context.Context, communityID, whopUserID string, ltvCents int64) error {
	s.ltv[whopUserID] = ltvCents
	return nil
}

func (s *memSyncStore) UpdateCommunityMemberCount(ctx context.Context, communityID string, count int) error {
	s.memberCount[communityID] = count
	return nil
}

func testMembership(id, status string) whop.Membership {
	email := id + "@example.com"
	joined := time.Now().UTC().Add(-10 * 24 * time.Hour).Format(time.RFC3339)
	renewal := time.Now().UTC().Add(20 * 24 * time.Hour).Format(time.RFC3339)
	return whop.Membership{
		ID:               id,
		Status:           status,
		JoinedAt:         &joined,
		RenewalPeriodEnd: &renewal,
		User:             &whop.User{ID: "user-" + id, Email: &email, Username: "u-" + id},
		Product:          &whop.Product{ID: "prod-1", Title: "Pro Monthly"},
	}
}

func TestSyncCommunityCreatesAndUpdates(t *testing.T) {
	api := &stubAPI{
		memberships: []whop.Membership{
			testMembership("ms-1", "active"),
			testMembership("ms-2", "canceling"),
		},
		members: []whop.CompanyMember{
			{User: &whop.User{ID: "user-ms-1", Username: "u"}, USDTotalSpent: 9900},
		},
	}
	store := newMemSyncStore()
	syncer := NewMemberSyncer(api, store, nil, time.Hour)
	community := &domain.Community{ID: "com-1", WhopCompanyID: "biz_1"}

	res, err := syncer.SyncCommunity(context.Background(), community)
	if err != nil {
		t.Fatalf("SyncCommunity: %v", err)
	}
	if res.Synced != 2 || res.Created != 2 || res.Updated != 0 || len(res.Errors) != 0 {
		t.Fatalf("first sync result = %+v", res)
	}

	m := store.byMembership["ms-1"]
	if m.SubscriptionStatus != domain.SubscriptionActive {
		t.Errorf("status = %s", m.SubscriptionStatus)
	}
	if m.TenureDays == nil || *m.TenureDays != 10 {
		t.Errorf("tenure = %v, want 10", m.TenureDays)
	}
	if m.CurrentPeriodEnd == nil {
		t.Error("renewal period end not parsed")
	}
	if store.byMembership["ms-2"].SubscriptionStatus != domain.SubscriptionCancelled {
		t.Error("canceling must map to cancelled")
	}
	if store.ltv["user-ms-1"] != 9900 {
		t.Errorf("ltv = %d", store.ltv["user-ms-1"])
	}
	if store.memberCount["com-1"] != 2 {
		t.Errorf("member count = %d", store.memberCount["com-1"])
	}

	// second sync updates in place
	res, err = syncer.SyncCommunity(context.Background(), community)
	if err != nil {
		t.Fatalf("second sync: %v", err)
	}
	if res.Created != 0 || res.Updated != 2 {
		t.Fatalf("second sync result = %+v", res)
	}
}

func TestSyncCommunityPreservesLocalFields(t *testing.T) {
	api := &stubAPI{memberships: []whop.Membership{testMembership("ms-1", "active")}}
	store := newMemSyncStore()
	discord := "discord-1"
	engagement := 42.0
	store.byMembership["ms-1"] = &domain.Member{
		ID: "id-ms-1", CommunityID: "com-1", WhopMembershipID: "ms-1",
		LTVCents: 5000, PreviousCancellations: 2, RecentPaymentFailures: 1,
		HasEngagementData: true, EngagementScore: &engagement,
		DiscordUserID: &discord,
	}

	syncer := NewMemberSyncer(api, store, nil, time.Hour)
	if _, err := syncer.SyncCommunity(context.Background(), &domain.Community{ID: "com-1", WhopCompanyID: "biz_1"}); err != nil {
		t.Fatalf("SyncCommunity: %v", err)
	}

	m := store.byMembership["ms-1"]
	if m.LTVCents != 5000 || m.PreviousCancellations != 2 || m.RecentPaymentFailures != 1 {
		t.Errorf("local counters overwritten: %+v", m)
	}
	if !m.HasEngagementData || m.EngagementScore == nil || *m.EngagementScore != 42.0 {
		t.Error("engagement fields overwritten")
	}
	if m.DiscordUserID == nil || *m.DiscordUserID != "discord-1" {
		t.Error("channel links overwritten")
	}
}

func TestSyncCommunityWithoutJoinedAt(t *testing.T) {
	ms := testMembership("ms-1", "active")
	ms.JoinedAt = nil
	api := &stubAPI{memberships: []whop.Membership{ms}}
	store := newMemSyncStore()

	syncer := NewMemberSyncer(api, store, nil, time.Hour)
	res, err := syncer.SyncCommunity(context.Background(), &domain.Community{ID: "com-1", WhopCompanyID: "biz_1"})
	if err != nil {
		t.Fatalf("SyncCommunity: %v", err)
	}
	if res.Synced != 1 || res.Created != 1 || len(res.Errors) != 0 {
		t.Fatalf("result = %+v", res)
	}
	// Whop omits joined_at for some membership states; tenure stays unknown
	// rather than defaulting to zero days.
	if m := store.byMembership["ms-1"]; m.TenureDays != nil {
		t.Errorf("tenure = %v, want nil when joined_at is absent", *m.TenureDays)
	}
}

func TestSyncCommunityIsolatesBadMembership(t *testing.T) {
	api := &stubAPI{memberships: []whop.Membership{
		testMembership("ms-bad", "active"),
		testMembership("ms-ok", "active"),
	}}
	store := newMemSyncStore()
	store.createErr["ms-bad"] = errors.New("insert failed")

	syncer := NewMemberSyncer(api, store, nil, time.Hour)
	res, err := syncer.SyncCommunity(context.Background(), &domain.Community{ID: "com-1", WhopCompanyID: "biz_1"})
	if err != nil {
		t.Fatalf("SyncCommunity: %v", err)
	}
	if res.Synced != 1 || len(res.Errors) != 1 {
		t.Fatalf("result = %+v", res)
	}
	if _, ok := store.byMembership["ms-ok"]; !ok {
		t.Error("healthy membership must still sync")
	}
}

func TestSyncCommunityFetchFailure(t *testing.T) {
	api := &stubAPI{listErr: errors.New("whop down")}
	syncer := NewMemberSyncer(api, newMemSyncStore(), nil, time.Hour)

	if _, err := syncer.SyncCommunity(context.Background(), &domain.Community{ID: "com-1", WhopCompanyID: "biz_1"}); err == nil {
		t.Fatal("expected error when the memberships fetch fails")
	}
}
