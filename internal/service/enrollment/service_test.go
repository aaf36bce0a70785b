package enrollment_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/griphq/retention-engine/internal/domain"
	"github.com/griphq/retention-engine/internal/service/enrollment"
)

type memRepo struct {
	mu          sync.Mutex
	playbooks   map[string]*domain.Playbook
	enrollments map[string]*domain.Enrollment
	schedules   map[string][]domain.StepExecution
	enrollCount map[string]int
}

func newMemRepo() *memRepo {
	return &memRepo{
		playbooks:   make(map[string]*domain.Playbook),
		enrollments: make(map[string]*domain.Enrollment),
		schedules:   make(map[string][]domain.StepExecution),
		enrollCount: make(map[string]int),
	}
}

func (r *memRepo) GetPlaybook(ctx context.Context, id string) (*domain.Playbook, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	pb, ok := r.playbooks[id]
	if !ok {
		return nil, enrollment.ErrPlaybookNotFound
	}
	cp := *pb
	return &cp, nil
}

func (r *memRepo) FindEnrollment(ctx context.Context, playbookID, memberID string) (*domain.Enrollment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.enrollments {
		if e.PlaybookID == playbookID && e.MemberID == memberID {
			cp := *e
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *memRepo) CreateEnrollment(ctx context.Context, e *domain.Enrollment) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, ex := range r.enrollments {
		if ex.PlaybookID == e.PlaybookID && ex.MemberID == e.MemberID {
			return "", fmt.Errorf("duplicate enrollment for pair")
		}
	}
	cp := *e
	r.enrollments[e.ID] = &cp
	return e.ID, nil
}

func (r *memRepo) ResetEnrollment(ctx context.Context, id string, enrolledAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.enrollments[id]
	if !ok {
		return enrollment.ErrEnrollmentNotFound
	}
	e.Status = domain.EnrollmentActive
	e.CurrentStep = 0
	e.EnrolledAt = enrolledAt
	e.CompletedAt = nil
	e.Outcome = nil
	return nil
}

func (r *memRepo) ReplaceStepSchedule(ctx context.Context, enrollmentID string, steps []domain.StepExecution) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.schedules[enrollmentID] = append([]domain.StepExecution(nil), steps...)
	return nil
}

func (r *memRepo) IncrementEnrollmentCount(ctx context.Context, playbookID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.enrollCount[playbookID]++
	return nil
}

func (r *memRepo) UpdateEnrollmentStatus(ctx context.Context, id string, status domain.EnrollmentStatus, outcome *string, completedAt *time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.enrollments[id]
	if !ok {
		return enrollment.ErrEnrollmentNotFound
	}
	e.Status = status
	e.Outcome = outcome
	e.CompletedAt = completedAt
	return nil
}

func strp(s string) *string { return &s }

func seedPlaybook(r *memRepo) *domain.Playbook {
	pb := &domain.Playbook{
		ID:          "pb-1",
		CommunityID: "com-1",
		Name:        "Renewal Risk",
		Type:        domain.PlaybookSystem,
		Active:      true,
		TriggerConditions: []domain.TriggerCondition{
			{Field: "days_until_renewal", Operator: domain.OpLte, Value: 7},
		},
		Steps: []domain.PlaybookStep{
			{StepNumber: 1, Type: domain.StepEmail, DelayHours: 0, Subject: strp("Hi"), Content: strp("first")},
			{StepNumber: 2, Type: domain.StepWait, DelayHours: 48},
			{StepNumber: 3, Type: domain.StepEmail, DelayHours: 24, Content: strp("last")},
		},
	}
	r.playbooks[pb.ID] = pb
	return pb
}

func TestEnrollCreatesScheduleWithCumulativeDelays(t *testing.T) {
	repo := newMemRepo()
	seedPlaybook(repo)
	svc := enrollment.NewService(repo)

	res, err := svc.Enroll(context.Background(), "pb-1", "mem-1")
	if err != nil {
		t.Fatalf("Enroll: %v", err)
	}
	if res.EnrollmentID == "" {
		t.Fatal("expected enrollment ID")
	}

	sched := repo.schedules[res.EnrollmentID]
	if len(sched) != 3 {
		t.Fatalf("expected 3 scheduled steps, got %d", len(sched))
	}

	e := repo.enrollments[res.EnrollmentID]
	base := e.EnrolledAt
	wantOffsets := []time.Duration{0, 48 * time.Hour, 72 * time.Hour}
	for i, se := range sched {
		if got := se.ScheduledFor.Sub(base); got != wantOffsets[i] {
			t.Errorf("step %d: scheduled offset = %v, want %v", se.StepNumber, got, wantOffsets[i])
		}
		if se.ExecutedAt != nil {
			t.Errorf("step %d: expected pending step", se.StepNumber)
		}
	}
	if sched[0].Channel == nil || *sched[0].Channel != domain.ChannelEmail {
		t.Error("email step should carry the email channel")
	}
	if sched[1].Channel != nil {
		t.Error("wait step should not carry a channel")
	}
	if repo.enrollCount["pb-1"] != 1 {
		t.Errorf("enrollment count = %d, want 1", repo.enrollCount["pb-1"])
	}
}

func TestEnrollRejectsActiveDuplicate(t *testing.T) {
	repo := newMemRepo()
	seedPlaybook(repo)
	svc := enrollment.NewService(repo)

	if _, err := svc.Enroll(context.Background(), "pb-1", "mem-1"); err != nil {
		t.Fatalf("first Enroll: %v", err)
	}
	_, err := svc.Enroll(context.Background(), "pb-1", "mem-1")
	if !errors.Is(err, enrollment.ErrAlreadyEnrolled) {
		t.Fatalf("expected ErrAlreadyEnrolled, got %v", err)
	}
	if len(repo.enrollments) != 1 {
		t.Fatalf("expected a single enrollment row, got %d", len(repo.enrollments))
	}
}

func TestEnrollResetsInactiveRow(t *testing.T) {
	repo := newMemRepo()
	seedPlaybook(repo)
	svc := enrollment.NewService(repo)
	ctx := context.Background()

	res, err := svc.Enroll(ctx, "pb-1", "mem-1")
	if err != nil {
		t.Fatalf("Enroll: %v", err)
	}
	if err := svc.Stop(ctx, res.EnrollmentID, "member_churned"); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if got := repo.enrollments[res.EnrollmentID].Status; got != domain.EnrollmentStopped {
		t.Fatalf("status after stop = %s", got)
	}

	res2, err := svc.Enroll(ctx, "pb-1", "mem-1")
	if err != nil {
		t.Fatalf("re-Enroll: %v", err)
	}
	if res2.EnrollmentID != res.EnrollmentID {
		t.Fatalf("re-enrollment should reuse the row: %s vs %s", res2.EnrollmentID, res.EnrollmentID)
	}

	e := repo.enrollments[res2.EnrollmentID]
	if e.Status != domain.EnrollmentActive {
		t.Errorf("status = %s, want active", e.Status)
	}
	if e.CurrentStep != 0 {
		t.Errorf("current step = %d, want 0", e.CurrentStep)
	}
	if e.CompletedAt != nil || e.Outcome != nil {
		t.Error("completed_at and outcome should be cleared on reset")
	}
	if len(repo.enrollments) != 1 {
		t.Fatalf("expected a single enrollment row, got %d", len(repo.enrollments))
	}
	if repo.enrollCount["pb-1"] != 2 {
		t.Errorf("enrollment count = %d, want 2", repo.enrollCount["pb-1"])
	}
}

func TestEnrollUnknownPlaybook(t *testing.T) {
	repo := newMemRepo()
	svc := enrollment.NewService(repo)

	_, err := svc.Enroll(context.Background(), "missing", "mem-1")
	if !errors.Is(err, enrollment.ErrPlaybookNotFound) {
		t.Fatalf("expected ErrPlaybookNotFound, got %v", err)
	}
}

func TestEligible(t *testing.T) {
	repo := newMemRepo()
	pb := seedPlaybook(repo)
	svc := enrollment.NewService(repo)

	if !svc.Eligible(map[string]any{"days_until_renewal": 5}, pb) {
		t.Error("expected record within threshold to be eligible")
	}
	if svc.Eligible(map[string]any{"days_until_renewal": 30}, pb) {
		t.Error("expected record past threshold to be ineligible")
	}
	if svc.Eligible(map[string]any{}, pb) {
		t.Error("missing field should fail the condition")
	}
}
