package enrollment

import (
	"context"
	"time"

	"github.com/griphq/retention-engine/internal/domain"
)

// Repository defines the data access contract for enrollments and their
// step schedules. Implementations must be safe for concurrent use, and
// CreateEnrollment must be atomic against concurrent enrollment of the same
// (playbook, member) pair (the Postgres implementation relies on a unique
// index).
type Repository interface {
	// GetPlaybook returns a playbook definition. Returns ErrPlaybookNotFound
	// if it doesn't exist.
	GetPlaybook(ctx context.Context, id string) (*domain.Playbook, error)

	// FindEnrollment returns the enrollment row for the pair, or nil when
	// the member has never been enrolled in the playbook.
	FindEnrollment(ctx context.Context, playbookID, memberID string) (*domain.Enrollment, error)

	// CreateEnrollment inserts a fresh active enrollment and returns its ID.
	CreateEnrollment(ctx context.Context, e *domain.Enrollment) (string, error)

	// ResetEnrollment reactivates an existing row: status=active,
	// current_step=0, enrolled_at=enrolledAt, completed_at and outcome
	// cleared.
	ResetEnrollment(ctx context.Context, id string, enrolledAt time.Time) error

	// ReplaceStepSchedule deletes any prior step executions for the
	// enrollment and inserts the given schedule.
	ReplaceStepSchedule(ctx context.Context, enrollmentID string, steps []domain.StepExecution) error

	// IncrementEnrollmentCount bumps the playbook's total_enrollments.
	IncrementEnrollmentCount(ctx context.Context, playbookID string) error

	// UpdateEnrollmentStatus transitions an enrollment's status, recording
	// outcome and completion time. Returns ErrEnrollmentNotFound for an
	// unknown ID.
	UpdateEnrollmentStatus(ctx context.Context, id string, status domain.EnrollmentStatus, outcome *string, completedAt *time.Time) error
}
