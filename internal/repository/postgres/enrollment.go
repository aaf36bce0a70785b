package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/griphq/retention-engine/internal/domain"
	"github.com/griphq/retention-engine/internal/service/enrollment"
)

// EnrollmentRepo implements enrollment.Repository against PostgreSQL.
// A unique index on (playbook_id, member_id) backs the single-row-per-pair
// invariant; concurrent enrollments of the same pair race on it and the
// loser surfaces a constraint error instead of inserting a duplicate.
type EnrollmentRepo struct{ db *sql.DB }

// NewEnrollmentRepo creates a Postgres-backed enrollment repository.
func NewEnrollmentRepo(db *sql.DB) *EnrollmentRepo { return &EnrollmentRepo{db: db} }

func (r *EnrollmentRepo) GetPlaybook(ctx context.Context, id string) (*domain.Playbook, error) {
	p := &domain.Playbook{}
	var conditionsJSON, stepsJSON []byte
	err := r.db.QueryRowContext(ctx, `
		SELECT id, community_id, name, COALESCE(emoji,''), description, playbook_type,
		       trigger_conditions, steps, active, min_tier,
		       total_enrollments, total_completions, successful_outcomes, created_at
		FROM playbooks
		WHERE id = $1
	`, id).Scan(
		&p.ID, &p.CommunityID, &p.Name, &p.Emoji, &p.Description, &p.Type,
		&conditionsJSON, &stepsJSON, &p.Active, &p.MinTier,
		&p.TotalEnrollments, &p.TotalCompletions, &p.SuccessfulOutcomes, &p.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, enrollment.ErrPlaybookNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get playbook: %w", err)
	}
	if err := json.Unmarshal(conditionsJSON, &p.TriggerConditions); err != nil {
		return nil, fmt.Errorf("decode trigger conditions: %w", err)
	}
	if err := json.Unmarshal(stepsJSON, &p.Steps); err != nil {
		return nil, fmt.Errorf("decode steps: %w", err)
	}
	return p, nil
}

func (r *EnrollmentRepo) FindEnrollment(ctx context.Context, playbookID, memberID string) (*domain.Enrollment, error) {
	e := &domain.Enrollment{}
	err := r.db.QueryRowContext(ctx, `
		SELECT id, playbook_id, member_id, current_step, status, enrolled_at, completed_at, outcome
		FROM playbook_enrollments
		WHERE playbook_id = $1 AND member_id = $2
	`, playbookID, memberID).Scan(
		&e.ID, &e.PlaybookID, &e.MemberID, &e.CurrentStep, &e.Status,
		&e.EnrolledAt, &e.CompletedAt, &e.Outcome,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find enrollment: %w", err)
	}
	return e, nil
}

func (r *EnrollmentRepo) CreateEnrollment(ctx context.Context, e *domain.Enrollment) (string, error) {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO playbook_enrollments
			(id, playbook_id, member_id, current_step, status, enrolled_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, e.ID, e.PlaybookID, e.MemberID, e.CurrentStep, e.Status, e.EnrolledAt)
	if err != nil {
		return "", fmt.Errorf("create enrollment: %w", err)
	}
	return e.ID, nil
}

func (r *EnrollmentRepo) ResetEnrollment(ctx context.Context, id string, enrolledAt time.Time) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE playbook_enrollments
		SET status = 'active', current_step = 0, enrolled_at = $2,
		    completed_at = NULL, outcome = NULL
		WHERE id = $1
	`, id, enrolledAt)
	if err != nil {
		return fmt.Errorf("reset enrollment: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return enrollment.ErrEnrollmentNotFound
	}
	return nil
}

func (r *EnrollmentRepo) ReplaceStepSchedule(ctx context.Context, enrollmentID string, steps []domain.StepExecution) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schedule tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		DELETE FROM playbook_step_executions WHERE enrollment_id = $1
	`, enrollmentID); err != nil {
		return fmt.Errorf("clear old schedule: %w", err)
	}

	for _, s := range steps {
		id := s.ID
		if id == "" {
			id = uuid.New().String()
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO playbook_step_executions
				(id, enrollment_id, step_number, step_type, channel, scheduled_for, content)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`, id, enrollmentID, s.StepNumber, s.StepType, s.Channel, s.ScheduledFor, s.Content); err != nil {
			return fmt.Errorf("insert step %d: %w", s.StepNumber, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schedule: %w", err)
	}
	return nil
}

func (r *EnrollmentRepo) IncrementEnrollmentCount(ctx context.Context, playbookID string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE playbooks SET total_enrollments = total_enrollments + 1 WHERE id = $1
	`, playbookID)
	if err != nil {
		return fmt.Errorf("increment enrollment count: %w", err)
	}
	return nil
}

func (r *EnrollmentRepo) UpdateEnrollmentStatus(ctx context.Context, id string, status domain.EnrollmentStatus, outcome *string, completedAt *time.Time) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE playbook_enrollments
		SET status = $2, outcome = $3, completed_at = $4
		WHERE id = $1
	`, id, status, outcome, completedAt)
	if err != nil {
		return fmt.Errorf("update enrollment status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return enrollment.ErrEnrollmentNotFound
	}
	return nil
}
