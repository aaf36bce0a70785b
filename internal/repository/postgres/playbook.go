package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/griphq/retention-engine/internal/domain"
	"github.com/griphq/retention-engine/internal/playbook"
)

// PlaybookRepo implements playbook listing and seeding for the API layer.
// The enrollment service reads playbooks through EnrollmentRepo.
type PlaybookRepo struct{ db *sql.DB }

// NewPlaybookRepo creates a Postgres-backed playbook repository.
func NewPlaybookRepo(db *sql.DB) *PlaybookRepo { return &PlaybookRepo{db: db} }

// List returns a community's playbooks, system ones first.
func (r *PlaybookRepo) List(ctx context.Context, communityID string) ([]domain.Playbook, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, community_id, name, COALESCE(emoji,''), description, playbook_type,
		       trigger_conditions, steps, active, min_tier,
		       total_enrollments, total_completions, successful_outcomes, created_at
		FROM playbooks
		WHERE community_id = $1
		ORDER BY playbook_type, created_at
	`, communityID)
	if err != nil {
		return nil, fmt.Errorf("list playbooks: %w", err)
	}
	defer rows.Close()

	var out []domain.Playbook
	for rows.Next() {
		var p domain.Playbook
		var conditionsJSON, stepsJSON []byte
		if err := rows.Scan(
			&p.ID, &p.CommunityID, &p.Name, &p.Emoji, &p.Description, &p.Type,
			&conditionsJSON, &stepsJSON, &p.Active, &p.MinTier,
			&p.TotalEnrollments, &p.TotalCompletions, &p.SuccessfulOutcomes, &p.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan playbook: %w", err)
		}
		if err := json.Unmarshal(conditionsJSON, &p.TriggerConditions); err != nil {
			return nil, fmt.Errorf("decode trigger conditions: %w", err)
		}
		if err := json.Unmarshal(stepsJSON, &p.Steps); err != nil {
			return nil, fmt.Errorf("decode steps: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// ListActive returns the active playbooks for auto-enrollment evaluation.
func (r *PlaybookRepo) ListActive(ctx context.Context, communityID string) ([]domain.Playbook, error) {
	all, err := r.List(ctx, communityID)
	if err != nil {
		return nil, err
	}
	active := all[:0]
	for _, p := range all {
		if p.Active {
			active = append(active, p)
		}
	}
	return active, nil
}

// SeedSystemPlaybooks inserts the built-in playbooks for a community,
// skipping any it already has (idempotent by (community_id, name)).
func (r *PlaybookRepo) SeedSystemPlaybooks(ctx context.Context, communityID string) (int, error) {
	seeded := 0
	for _, p := range playbook.SystemPlaybooks() {
		conditionsJSON, err := json.Marshal(p.TriggerConditions)
		if err != nil {
			return seeded, fmt.Errorf("encode trigger conditions: %w", err)
		}
		stepsJSON, err := json.Marshal(p.Steps)
		if err != nil {
			return seeded, fmt.Errorf("encode steps: %w", err)
		}
		res, err := r.db.ExecContext(ctx, `
			INSERT INTO playbooks
				(id, community_id, name, emoji, description, playbook_type,
				 trigger_conditions, steps, active, min_tier, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, false, $9, NOW())
			ON CONFLICT (community_id, name) DO NOTHING
		`, uuid.New().String(), communityID, p.Name, p.Emoji, p.Description,
			p.Type, conditionsJSON, stepsJSON, p.MinTier)
		if err != nil {
			return seeded, fmt.Errorf("seed playbook %q: %w", p.Name, err)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			seeded++
		}
	}
	return seeded, nil
}

// SetActive toggles a playbook on or off.
func (r *PlaybookRepo) SetActive(ctx context.Context, id string, active bool) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE playbooks SET active = $2 WHERE id = $1`, id, active)
	if err != nil {
		return fmt.Errorf("set playbook active: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	return nil
}
