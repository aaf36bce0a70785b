package api

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/griphq/retention-engine/internal/domain"
	"github.com/griphq/retention-engine/internal/repository/postgres"
	"github.com/griphq/retention-engine/internal/service/enrollment"
	"github.com/griphq/retention-engine/internal/service/outreach"
	"github.com/griphq/retention-engine/internal/worker"
)

type fakeMembers struct{ byID map[string]*domain.Member }

func (f *fakeMembers) Get(_ context.Context, id string) (*domain.Member, error) {
	if m, ok := f.byID[id]; ok {
		return m, nil
	}
	return nil, postgres.ErrMemberNotFound
}

func (f *fakeMembers) List(_ context.Context, communityID string, limit, offset int) ([]domain.Member, error) {
	var out []domain.Member
	for _, m := range f.byID {
		if m.CommunityID == communityID {
			out = append(out, *m)
		}
	}
	return out, nil
}

type fakeCommunities struct{ byID map[string]*domain.Community }

func (f *fakeCommunities) Get(_ context.Context, id string) (*domain.Community, error) {
	if c, ok := f.byID[id]; ok {
		return c, nil
	}
	return nil, postgres.ErrCommunityNotFound
}

type fakeRisk struct{ byMember map[string]*domain.RiskScore }

func (f *fakeRisk) GetForMember(_ context.Context, memberID string) (*domain.RiskScore, error) {
	return f.byMember[memberID], nil
}

func (f *fakeRisk) CountByLevel(_ context.Context, _ string) (map[domain.RiskLevel]int, error) {
	return map[domain.RiskLevel]int{domain.RiskLow: 3}, nil
}

type fakeOutreachLog struct{}

func (f *fakeOutreachLog) ListForMember(_ context.Context, _ string, _ int) ([]domain.OutreachLogEntry, error) {
	return nil, nil
}

type fakePlaybooks struct {
	playbooks []domain.Playbook
	setActive map[string]bool
}

func (f *fakePlaybooks) List(_ context.Context, _ string) ([]domain.Playbook, error) {
	return f.playbooks, nil
}

func (f *fakePlaybooks) SeedSystemPlaybooks(_ context.Context, _ string) (int, error) {
	return 4, nil
}

func (f *fakePlaybooks) SetActive(_ context.Context, id string, active bool) error {
	for _, p := range f.playbooks {
		if p.ID == id {
			if f.setActive == nil {
				f.setActive = map[string]bool{}
			}
			f.setActive[id] = active
			return nil
		}
	}
	return sql.ErrNoRows
}

type fakeEnroller struct{ err error }

func (f *fakeEnroller) Enroll(_ context.Context, playbookID, memberID string) (*enrollment.EnrollResult, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &enrollment.EnrollResult{EnrollmentID: "enr-1"}, nil
}

type fakeSteps struct{ result worker.SweepResult }

func (f *fakeSteps) RunDueSteps(_ context.Context, _ int) (worker.SweepResult, error) {
	return f.result, nil
}

type fakeRiskRunner struct{}

func (f *fakeRiskRunner) Recalculate(_ context.Context) (worker.RecalcResult, error) {
	return worker.RecalcResult{Scored: 7}, nil
}

type fakeSync struct{}

func (f *fakeSync) SyncCommunity(_ context.Context, _ *domain.Community) (worker.SyncResult, error) {
	return worker.SyncResult{Synced: 2, Created: 1, Updated: 1}, nil
}

type fakeSender struct {
	result domain.DispatchResult
	calls  int
}

func (f *fakeSender) Dispatch(_ context.Context, _ *domain.Community, _ *domain.Member, _ domain.OutreachContent, _ outreach.SendOptions) domain.DispatchResult {
	f.calls++
	return f.result
}

type fixture struct {
	handlers    *Handlers
	members     *fakeMembers
	communities *fakeCommunities
	playbooks   *fakePlaybooks
	enroller    *fakeEnroller
	sender      *fakeSender
}

func strp(s string) *string { return &s }

func newFixture() *fixture {
	f := &fixture{
		members: &fakeMembers{byID: map[string]*domain.Member{
			"mem-1": {ID: "mem-1", CommunityID: "com-1", Email: strp("alice@example.com"), FirstName: strp("Alice")},
		}},
		communities: &fakeCommunities{byID: map[string]*domain.Community{
			"com-1": {ID: "com-1", Name: "Traders Guild", PlanTier: domain.TierGrowth},
			"com-free": {ID: "com-free", Name: "Free Guild", PlanTier: domain.TierFree},
		}},
		playbooks: &fakePlaybooks{playbooks: []domain.Playbook{
			{ID: "pb-1", CommunityID: "com-1", Name: "Renewal Rescue", MinTier: domain.TierStarter},
			{ID: "pb-pro", CommunityID: "com-1", Name: "VIP Touch", MinTier: domain.TierPro},
		}},
		enroller: &fakeEnroller{},
		sender:   &fakeSender{result: domain.DispatchResult{Channel: domain.ChannelEmail, Success: true}},
	}
	f.handlers = NewHandlers(
		f.members, f.communities, &fakeRisk{byMember: map[string]*domain.RiskScore{}},
		&fakeOutreachLog{}, f.playbooks, f.enroller, &fakeSteps{result: worker.SweepResult{Executed: 3}},
		&fakeRiskRunner{}, &fakeSync{}, f.sender, outreach.NewRenderer(),
	)
	return f
}

func doRequest(t *testing.T, h *Handlers, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	SetupRoutes(h).ServeHTTP(rec, req)
	return rec
}

func TestHealthCheck(t *testing.T) {
	f := newFixture()
	rec := doRequest(t, f.handlers, http.MethodGet, "/health", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

func TestGetMemberNotFound(t *testing.T) {
	f := newFixture()
	rec := doRequest(t, f.handlers, http.MethodGet, "/api/members/nope", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestGetMemberIncludesRiskAndHistory(t *testing.T) {
	f := newFixture()
	rec := doRequest(t, f.handlers, http.MethodGet, "/api/members/mem-1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	var body map[string]json.RawMessage
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	for _, key := range []string{"member", "risk", "outreach"} {
		if _, ok := body[key]; !ok {
			t.Errorf("response missing %q", key)
		}
	}
}

func TestEnrollMember(t *testing.T) {
	f := newFixture()
	rec := doRequest(t, f.handlers, http.MethodPost, "/api/playbooks/pb-1/enroll", `{"member_id":"mem-1"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201: %s", rec.Code, rec.Body.String())
	}
}

func TestEnrollMemberRequiresMemberID(t *testing.T) {
	f := newFixture()
	rec := doRequest(t, f.handlers, http.MethodPost, "/api/playbooks/pb-1/enroll", `{}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestEnrollMemberConflict(t *testing.T) {
	f := newFixture()
	f.enroller.err = enrollment.ErrAlreadyEnrolled
	rec := doRequest(t, f.handlers, http.MethodPost, "/api/playbooks/pb-1/enroll", `{"member_id":"mem-1"}`)
	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", rec.Code)
	}
}

func TestActivatePlaybookWithinPlan(t *testing.T) {
	f := newFixture()
	rec := doRequest(t, f.handlers, http.MethodPost, "/api/communities/com-1/playbooks/pb-1/activate", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	if !f.playbooks.setActive["pb-1"] {
		t.Error("playbook was not activated")
	}
}

func TestActivatePlaybookBelowMinTier(t *testing.T) {
	f := newFixture()
	rec := doRequest(t, f.handlers, http.MethodPost, "/api/communities/com-1/playbooks/pb-pro/activate", "")
	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403: %s", rec.Code, rec.Body.String())
	}
}

func TestActivatePlaybookAtPlanLimit(t *testing.T) {
	f := newFixture()
	// growth allows 3 active playbooks
	f.playbooks.playbooks = append(f.playbooks.playbooks,
		domain.Playbook{ID: "a", Active: true},
		domain.Playbook{ID: "b", Active: true},
		domain.Playbook{ID: "c", Active: true},
	)
	rec := doRequest(t, f.handlers, http.MethodPost, "/api/communities/com-1/playbooks/pb-1/activate", "")
	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403: %s", rec.Code, rec.Body.String())
	}
}

func TestExecuteStepsReturnsSweepResult(t *testing.T) {
	f := newFixture()
	rec := doRequest(t, f.handlers, http.MethodPost, "/api/playbooks/execute", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	var result worker.SweepResult
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if result.Executed != 3 {
		t.Errorf("executed = %d, want 3", result.Executed)
	}
}

func TestSendOutreachGatedByPlan(t *testing.T) {
	f := newFixture()
	f.members.byID["mem-free"] = &domain.Member{ID: "mem-free", CommunityID: "com-free"}
	rec := doRequest(t, f.handlers, http.MethodPost, "/api/outreach/send",
		`{"community_id":"com-free","member_id":"mem-free","template_id":"check_in"}`)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403: %s", rec.Code, rec.Body.String())
	}
	if f.sender.calls != 0 {
		t.Error("dispatch should not run for a gated plan")
	}
}

func TestSendOutreachDispatches(t *testing.T) {
	f := newFixture()
	rec := doRequest(t, f.handlers, http.MethodPost, "/api/outreach/send",
		`{"community_id":"com-1","member_id":"mem-1","template_id":"check_in"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	if f.sender.calls != 1 {
		t.Errorf("dispatch calls = %d, want 1", f.sender.calls)
	}
}

func TestSendOutreachUnknownTemplate(t *testing.T) {
	f := newFixture()
	rec := doRequest(t, f.handlers, http.MethodPost, "/api/outreach/send",
		`{"community_id":"com-1","member_id":"mem-1","template_id":"nope"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400: %s", rec.Code, rec.Body.String())
	}
}

func TestSendOutreachNoReachableChannel(t *testing.T) {
	f := newFixture()
	f.sender.result = domain.DispatchResult{Channel: domain.ChannelNone, Success: false, Error: "no reachable channel for member"}
	rec := doRequest(t, f.handlers, http.MethodPost, "/api/outreach/send",
		`{"community_id":"com-1","member_id":"mem-1","template_id":"check_in"}`)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422: %s", rec.Code, rec.Body.String())
	}
}
