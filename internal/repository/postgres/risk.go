package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/griphq/retention-engine/internal/domain"
)

// RiskRepo implements risk-score persistence. One row per member, recreated
// whole on every scoring run.
type RiskRepo struct{ db *sql.DB }

// NewRiskRepo creates a Postgres-backed risk-score repository.
func NewRiskRepo(db *sql.DB) *RiskRepo { return &RiskRepo{db: db} }

// UpsertRiskScore writes a member's score, keyed by member_id so concurrent
// or repeated sweeps converge on a single row.
func (r *RiskRepo) UpsertRiskScore(ctx context.Context, score domain.RiskScore) error {
	if score.ID == "" {
		score.ID = uuid.New().String()
	}
	factorsJSON, err := json.Marshal(score.Factors)
	if err != nil {
		return fmt.Errorf("encode risk factors: %w", err)
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO risk_scores
			(id, member_id, score, risk_level, risk_factors, data_confidence, calculated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (member_id) DO UPDATE SET
			score = EXCLUDED.score,
			risk_level = EXCLUDED.risk_level,
			risk_factors = EXCLUDED.risk_factors,
			data_confidence = EXCLUDED.data_confidence,
			calculated_at = EXCLUDED.calculated_at
	`, score.ID, score.MemberID, score.Score, score.Level, factorsJSON,
		score.Confidence, score.CalculatedAt)
	if err != nil {
		return fmt.Errorf("upsert risk score: %w", err)
	}
	return nil
}

// GetForMember returns a member's current score, or nil when the member has
// never been scored.
func (r *RiskRepo) GetForMember(ctx context.Context, memberID string) (*domain.RiskScore, error) {
	s := &domain.RiskScore{}
	var factorsJSON []byte
	err := r.db.QueryRowContext(ctx, `
		SELECT id, member_id, score, risk_level, risk_factors, data_confidence, calculated_at
		FROM risk_scores
		WHERE member_id = $1
	`, memberID).Scan(
		&s.ID, &s.MemberID, &s.Score, &s.Level, &factorsJSON, &s.Confidence, &s.CalculatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get risk score: %w", err)
	}
	if err := json.Unmarshal(factorsJSON, &s.Factors); err != nil {
		return nil, fmt.Errorf("decode risk factors: %w", err)
	}
	return s, nil
}

// CountByLevel returns the per-level member counts for a community's
// dashboard summary.
func (r *RiskRepo) CountByLevel(ctx context.Context, communityID string) (map[domain.RiskLevel]int, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT rs.risk_level, COUNT(*)
		FROM risk_scores rs
		JOIN members m ON m.id = rs.member_id
		WHERE m.community_id = $1
		GROUP BY rs.risk_level
	`, communityID)
	if err != nil {
		return nil, fmt.Errorf("count risk levels: %w", err)
	}
	defer rows.Close()

	out := make(map[domain.RiskLevel]int)
	for rows.Next() {
		var level domain.RiskLevel
		var n int
		if err := rows.Scan(&level, &n); err != nil {
			return nil, fmt.Errorf("scan risk count: %w", err)
		}
		out[level] = n
	}
	return out, rows.Err()
}
