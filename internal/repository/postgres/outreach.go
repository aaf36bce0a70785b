package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/griphq/retention-engine/internal/domain"
)

// OutreachRepo implements the append-only outreach log.
type OutreachRepo struct{ db *sql.DB }

// NewOutreachRepo creates a Postgres-backed outreach log repository.
func NewOutreachRepo(db *sql.DB) *OutreachRepo { return &OutreachRepo{db: db} }

func (r *OutreachRepo) LogOutreach(ctx context.Context, e *domain.OutreachLogEntry) error {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO outreach_log
			(id, member_id, community_id, channel, template_id,
			 playbook_enrollment_id, subject, content, sent_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW())
	`, e.ID, e.MemberID, e.CommunityID, e.Channel, e.TemplateID,
		e.PlaybookEnrollmentID, e.Subject, e.Content, e.SentAt)
	if err != nil {
		return fmt.Errorf("log outreach: %w", err)
	}
	return nil
}

// ListForMember returns a member's outreach history, newest first.
func (r *OutreachRepo) ListForMember(ctx context.Context, memberID string, limit int) ([]domain.OutreachLogEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, member_id, community_id, channel, template_id,
		       playbook_enrollment_id, subject, content, sent_at,
		       delivered_at, opened_at, responded_at, bounced, created_at
		FROM outreach_log
		WHERE member_id = $1
		ORDER BY sent_at DESC
		LIMIT $2
	`, memberID, limit)
	if err != nil {
		return nil, fmt.Errorf("list outreach: %w", err)
	}
	defer rows.Close()

	var out []domain.OutreachLogEntry
	for rows.Next() {
		var e domain.OutreachLogEntry
		if err := rows.Scan(
			&e.ID, &e.MemberID, &e.CommunityID, &e.Channel, &e.TemplateID,
			&e.PlaybookEnrollmentID, &e.Subject, &e.Content, &e.SentAt,
			&e.DeliveredAt, &e.OpenedAt, &e.RespondedAt, &e.Bounced, &e.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan outreach entry: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// MarkDelivered backfills the delivery timestamp from a transport webhook.
func (r *OutreachRepo) MarkDelivered(ctx context.Context, id string) error {
	return r.stamp(ctx, id, "delivered_at")
}

// MarkOpened backfills the open timestamp from a transport webhook.
func (r *OutreachRepo) MarkOpened(ctx context.Context, id string) error {
	return r.stamp(ctx, id, "opened_at")
}

func (r *OutreachRepo) stamp(ctx context.Context, id, column string) error {
	// column is one of the fixed names above, never caller input
	res, err := r.db.ExecContext(ctx,
		fmt.Sprintf(`UPDATE outreach_log SET %s = NOW() WHERE id = $1`, column), id)
	if err != nil {
		return fmt.Errorf("stamp %s: %w", column, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	return nil
}
