package worker

import (
	"context"
	"errors"
	"testing"

	"github.com/griphq/retention-engine/internal/domain"
	"github.com/griphq/retention-engine/internal/playbook"
	"github.com/griphq/retention-engine/internal/service/enrollment"
)

type autoEnrollStoreFake struct {
	communities []domain.Community
	playbooks   map[string][]domain.Playbook
	members     map[string][]domain.Member
	risks       map[string]*domain.RiskScore
}

func (s *autoEnrollStoreFake) ListCommunities(ctx context.Context) ([]domain.Community, error) {
	return s.communities, nil
}

func (s *autoEnrollStoreFake) ListActive(ctx context.Context, communityID string) ([]domain.Playbook, error) {
	return s.playbooks[communityID], nil
}

func (s *autoEnrollStoreFake) ListScorableMembers(ctx context.Context, communityID string) ([]domain.Member, error) {
	return s.members[communityID], nil
}

func (s *autoEnrollStoreFake) GetForMember(ctx context.Context, memberID string) (*domain.RiskScore, error) {
	return s.risks[memberID], nil
}

// enrollerFake matches trigger conditions with the real evaluator but
// records enrollments in memory.
type enrollerFake struct {
	enrolled  [][2]string
	preExists map[string]bool
	enrollErr error
}

func (e *enrollerFake) Eligible(record map[string]any, pb *domain.Playbook) bool {
	return playbook.Matches(record, pb.TriggerConditions)
}

func (e *enrollerFake) Enroll(ctx context.Context, playbookID, memberID string) (*enrollment.EnrollResult, error) {
	if e.enrollErr != nil {
		return nil, e.enrollErr
	}
	if e.preExists[playbookID+"/"+memberID] {
		return nil, enrollment.ErrAlreadyEnrolled
	}
	e.enrolled = append(e.enrolled, [2]string{playbookID, memberID})
	return &enrollment.EnrollResult{EnrollmentID: "enr-1"}, nil
}

func highRiskPlaybook(id, communityID string) domain.Playbook {
	return domain.Playbook{
		ID:          id,
		CommunityID: communityID,
		Name:        "Renewal Risk",
		TriggerConditions: []domain.TriggerCondition{
			{Field: "risk_level", Operator: domain.OpIn, Value: []any{"high", "critical"}},
		},
	}
}

func autoEnrollCommunity(id string, enabled bool) domain.Community {
	return domain.Community{
		ID:       id,
		Name:     "Test Community",
		Settings: domain.CommunitySettings{AutoEnrollPlaybooks: enabled},
	}
}

func TestEnrollEligibleMatchesAndEnrolls(t *testing.T) {
	store := &autoEnrollStoreFake{
		communities: []domain.Community{autoEnrollCommunity("com-1", true)},
		playbooks:   map[string][]domain.Playbook{"com-1": {highRiskPlaybook("pb-1", "com-1")}},
		members: map[string][]domain.Member{
			"com-1": {
				{ID: "mem-risky", CommunityID: "com-1"},
				{ID: "mem-safe", CommunityID: "com-1"},
				{ID: "mem-unscored", CommunityID: "com-1"},
			},
		},
		risks: map[string]*domain.RiskScore{
			"mem-risky": {MemberID: "mem-risky", Score: 80, Level: domain.RiskHigh},
			"mem-safe":  {MemberID: "mem-safe", Score: 10, Level: domain.RiskLow},
		},
	}
	enroller := &enrollerFake{}

	sweep := NewAutoEnroller(store, enroller, nil, 0)
	res, err := sweep.EnrollEligible(context.Background())
	if err != nil {
		t.Fatalf("EnrollEligible: %v", err)
	}
	if res.Enrolled != 1 || len(res.Errors) != 0 {
		t.Fatalf("result = %+v", res)
	}
	if len(enroller.enrolled) != 1 || enroller.enrolled[0] != [2]string{"pb-1", "mem-risky"} {
		t.Fatalf("enrolled = %v", enroller.enrolled)
	}
}

func TestEnrollEligibleRespectsCommunityToggle(t *testing.T) {
	store := &autoEnrollStoreFake{
		communities: []domain.Community{autoEnrollCommunity("com-1", false)},
		playbooks:   map[string][]domain.Playbook{"com-1": {highRiskPlaybook("pb-1", "com-1")}},
		members: map[string][]domain.Member{
			"com-1": {{ID: "mem-risky", CommunityID: "com-1"}},
		},
		risks: map[string]*domain.RiskScore{
			"mem-risky": {MemberID: "mem-risky", Score: 90, Level: domain.RiskCritical},
		},
	}
	enroller := &enrollerFake{}

	sweep := NewAutoEnroller(store, enroller, nil, 0)
	res, err := sweep.EnrollEligible(context.Background())
	if err != nil {
		t.Fatalf("EnrollEligible: %v", err)
	}
	if res.Enrolled != 0 || len(enroller.enrolled) != 0 {
		t.Fatalf("disabled community must not auto-enroll, result = %+v", res)
	}
}

func TestEnrollEligibleSkipsActiveEnrollments(t *testing.T) {
	store := &autoEnrollStoreFake{
		communities: []domain.Community{autoEnrollCommunity("com-1", true)},
		playbooks:   map[string][]domain.Playbook{"com-1": {highRiskPlaybook("pb-1", "com-1")}},
		members: map[string][]domain.Member{
			"com-1": {{ID: "mem-risky", CommunityID: "com-1"}},
		},
		risks: map[string]*domain.RiskScore{
			"mem-risky": {MemberID: "mem-risky", Score: 80, Level: domain.RiskHigh},
		},
	}
	enroller := &enrollerFake{preExists: map[string]bool{"pb-1/mem-risky": true}}

	sweep := NewAutoEnroller(store, enroller, nil, 0)
	res, err := sweep.EnrollEligible(context.Background())
	if err != nil {
		t.Fatalf("EnrollEligible: %v", err)
	}
	// an already-active enrollment is the steady state, not an error
	if res.Enrolled != 0 || len(res.Errors) != 0 {
		t.Fatalf("result = %+v", res)
	}
}

func TestEnrollEligibleRecordsEnrollFailures(t *testing.T) {
	store := &autoEnrollStoreFake{
		communities: []domain.Community{autoEnrollCommunity("com-1", true)},
		playbooks:   map[string][]domain.Playbook{"com-1": {highRiskPlaybook("pb-1", "com-1")}},
		members: map[string][]domain.Member{
			"com-1": {{ID: "mem-risky", CommunityID: "com-1"}},
		},
		risks: map[string]*domain.RiskScore{
			"mem-risky": {MemberID: "mem-risky", Score: 80, Level: domain.RiskHigh},
		},
	}
	enroller := &enrollerFake{enrollErr: errors.New("insert failed")}

	sweep := NewAutoEnroller(store, enroller, nil, 0)
	res, err := sweep.EnrollEligible(context.Background())
	if err != nil {
		t.Fatalf("EnrollEligible: %v", err)
	}
	if res.Enrolled != 0 || len(res.Errors) != 1 {
		t.Fatalf("result = %+v", res)
	}
}
