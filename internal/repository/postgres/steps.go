package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/griphq/retention-engine/internal/domain"
)

// StepRepo implements the step executor's persistence surface
// (worker.StepStore) against PostgreSQL.
type StepRepo struct{ db *sql.DB }

// NewStepRepo creates a Postgres-backed step repository.
func NewStepRepo(db *sql.DB) *StepRepo { return &StepRepo{db: db} }

// ClaimDueSteps atomically claims up to limit due steps. The inner select
// uses FOR UPDATE SKIP LOCKED so concurrent sweeps partition the due set
// instead of blocking or double-claiming, and the claim marker keeps a
// crashed sweep's rows from being re-sent before an operator inspects them.
func (r *StepRepo) ClaimDueSteps(ctx context.Context, limit int) ([]domain.StepExecution, error) {
	rows, err := r.db.QueryContext(ctx, `
		UPDATE playbook_step_executions
		SET claimed_at = NOW()
		WHERE id IN (
			SELECT id FROM playbook_step_executions
			WHERE executed_at IS NULL
			  AND claimed_at IS NULL
			  AND scheduled_for <= NOW()
			ORDER BY scheduled_for ASC
			LIMIT $1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING id, enrollment_id, step_number, step_type, channel, scheduled_for, content
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("claim due steps: %w", err)
	}
	defer rows.Close()

	var out []domain.StepExecution
	for rows.Next() {
		var s domain.StepExecution
		if err := rows.Scan(
			&s.ID, &s.EnrollmentID, &s.StepNumber, &s.StepType,
			&s.Channel, &s.ScheduledFor, &s.Content,
		); err != nil {
			return nil, fmt.Errorf("scan claimed step: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *StepRepo) GetEnrollment(ctx context.Context, id string) (*domain.Enrollment, error) {
	e := &domain.Enrollment{}
	err := r.db.QueryRowContext(ctx, `
		SELECT id, playbook_id, member_id, current_step, status, enrolled_at, completed_at, outcome
		FROM playbook_enrollments
		WHERE id = $1
	`, id).Scan(
		&e.ID, &e.PlaybookID, &e.MemberID, &e.CurrentStep, &e.Status,
		&e.EnrolledAt, &e.CompletedAt, &e.Outcome,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get enrollment: %w", err)
	}
	return e, nil
}

func (r *StepRepo) GetMember(ctx context.Context, id string) (*domain.Member, error) {
	return getMember(ctx, r.db, id)
}

func (r *StepRepo) GetCommunity(ctx context.Context, id string) (*domain.Community, error) {
	return getCommunity(ctx, r.db, id)
}

func (r *StepRepo) MarkStepExecuted(ctx context.Context, stepID string, executedAt time.Time, outcome *domain.StepOutcome, execErr *string) error {
	var outcomeJSON []byte
	if outcome != nil {
		var err error
		outcomeJSON, err = json.Marshal(outcome)
		if err != nil {
			return fmt.Errorf("encode outcome: %w", err)
		}
	}
	_, err := r.db.ExecContext(ctx, `
		UPDATE playbook_step_executions
		SET executed_at = $2, outcome = $3, error = $4
		WHERE id = $1
	`, stepID, executedAt, outcomeJSON, execErr)
	if err != nil {
		return fmt.Errorf("mark step executed: %w", err)
	}
	return nil
}

func (r *StepRepo) AdvanceEnrollment(ctx context.Context, enrollmentID string, stepNumber int) error {
	// current_step only moves forward; a re-delivered earlier step must not
	// rewind progress.
	_, err := r.db.ExecContext(ctx, `
		UPDATE playbook_enrollments
		SET current_step = GREATEST(current_step, $2)
		WHERE id = $1
	`, enrollmentID, stepNumber)
	if err != nil {
		return fmt.Errorf("advance enrollment: %w", err)
	}
	return nil
}
