package enrollment

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/griphq/retention-engine/internal/domain"
	"github.com/griphq/retention-engine/internal/playbook"
)

// Service implements the enrollment lifecycle. All public methods are safe
// for concurrent use if the underlying repository is concurrency-safe.
type Service struct {
	repo Repository
}

// NewService creates an enrollment service backed by the given repository.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// EnrollResult is returned on a successful enrollment.
type EnrollResult struct {
	EnrollmentID string `json:"enrollment_id"`
}

// Eligible reports whether a member fact record satisfies the playbook's
// trigger conditions. The caller (cron sweep or event handler) decides when
// to evaluate eligibility; Enroll itself does not re-check it.
func (s *Service) Eligible(record map[string]any, pb *domain.Playbook) bool {
	return playbook.Matches(record, pb.TriggerConditions)
}

// Enroll enrolls a member into a playbook. If a non-active enrollment row
// already exists for the pair it is reset rather than duplicated; an active
// row yields ErrAlreadyEnrolled. On success the full step schedule is
// generated from the playbook definition as of now and persisted - the
// schedule is frozen and not revised if the playbook is edited later.
func (s *Service) Enroll(ctx context.Context, playbookID, memberID string) (*EnrollResult, error) {
	existing, err := s.repo.FindEnrollment(ctx, playbookID, memberID)
	if err != nil {
		return nil, fmt.Errorf("find enrollment: %w", err)
	}
	if existing != nil && existing.Status == domain.EnrollmentActive {
		return nil, ErrAlreadyEnrolled
	}

	pb, err := s.repo.GetPlaybook(ctx, playbookID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	var enrollmentID string

	if existing != nil {
		if err := s.repo.ResetEnrollment(ctx, existing.ID, now); err != nil {
			return nil, fmt.Errorf("reset enrollment: %w", err)
		}
		enrollmentID = existing.ID
	} else {
		id, err := s.repo.CreateEnrollment(ctx, &domain.Enrollment{
			ID:          uuid.New().String(),
			PlaybookID:  playbookID,
			MemberID:    memberID,
			CurrentStep: 0,
			Status:      domain.EnrollmentActive,
			EnrolledAt:  now,
		})
		if err != nil {
			return nil, fmt.Errorf("create enrollment: %w", err)
		}
		enrollmentID = id
	}

	schedule := playbook.BuildSchedule(enrollmentID, pb.Steps, now)
	if err := s.repo.ReplaceStepSchedule(ctx, enrollmentID, schedule); err != nil {
		return nil, fmt.Errorf("persist step schedule: %w", err)
	}

	if err := s.repo.IncrementEnrollmentCount(ctx, playbookID); err != nil {
		return nil, fmt.Errorf("increment enrollment count: %w", err)
	}

	return &EnrollResult{EnrollmentID: enrollmentID}, nil
}

// Stop halts an active enrollment. Pending steps are not deleted; the
// executor skips steps of non-active enrollments when they come due.
func (s *Service) Stop(ctx context.Context, enrollmentID, outcome string) error {
	now := time.Now().UTC()
	var oc *string
	if outcome != "" {
		oc = &outcome
	}
	return s.repo.UpdateEnrollmentStatus(ctx, enrollmentID, domain.EnrollmentStopped, oc, &now)
}
