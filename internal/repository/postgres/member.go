package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/griphq/retention-engine/internal/domain"
)

// ErrMemberNotFound is returned for lookups of unknown member IDs.
var ErrMemberNotFound = fmt.Errorf("member not found")

const memberColumns = `
	id, community_id, whop_membership_id, whop_user_id, email, username,
	first_name, subscription_status, plan_id, plan_name, plan_price_cents,
	current_period_start, current_period_end, cancel_at_period_end,
	ltv_cents, tenure_days, previous_cancellations, recent_payment_failures,
	discord_user_id, telegram_user_id, has_engagement_data, engagement_score,
	created_at, updated_at`

func scanMember(row interface{ Scan(...any) error }) (*domain.Member, error) {
	m := &domain.Member{}
	err := row.Scan(
		&m.ID, &m.CommunityID, &m.WhopMembershipID, &m.WhopUserID, &m.Email, &m.Username,
		&m.FirstName, &m.SubscriptionStatus, &m.PlanID, &m.PlanName, &m.PlanPriceCents,
		&m.CurrentPeriodStart, &m.CurrentPeriodEnd, &m.CancelAtPeriodEnd,
		&m.LTVCents, &m.TenureDays, &m.PreviousCancellations, &m.RecentPaymentFailures,
		&m.DiscordUserID, &m.TelegramUserID, &m.HasEngagementData, &m.EngagementScore,
		&m.CreatedAt, &m.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return m, nil
}

func getMember(ctx context.Context, db *sql.DB, id string) (*domain.Member, error) {
	m, err := scanMember(db.QueryRowContext(ctx,
		`SELECT `+memberColumns+` FROM members WHERE id = $1`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get member: %w", err)
	}
	return m, nil
}

// MemberRepo implements member persistence for the sync worker
// (worker.SyncStore, together with CommunityRepo queries it embeds) and the
// API layer.
type MemberRepo struct{ db *sql.DB }

// NewMemberRepo creates a Postgres-backed member repository.
func NewMemberRepo(db *sql.DB) *MemberRepo { return &MemberRepo{db: db} }

// Get returns one member or ErrMemberNotFound.
func (r *MemberRepo) Get(ctx context.Context, id string) (*domain.Member, error) {
	m, err := getMember(ctx, r.db, id)
	if err != nil {
		return nil, err
	}
	if m == nil {
		return nil, ErrMemberNotFound
	}
	return m, nil
}

// List returns a community's members ordered by most recently updated.
func (r *MemberRepo) List(ctx context.Context, communityID string, limit, offset int) ([]domain.Member, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+memberColumns+` FROM members
		 WHERE community_id = $1
		 ORDER BY updated_at DESC
		 LIMIT $2 OFFSET $3`, communityID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	defer rows.Close()

	var out []domain.Member
	for rows.Next() {
		m, err := scanMember(rows)
		if err != nil {
			return nil, fmt.Errorf("scan member: %w", err)
		}
		out = append(out, *m)
	}
	return out, rows.Err()
}

func (r *MemberRepo) FindMemberByMembership(ctx context.Context, communityID, whopMembershipID string) (*domain.Member, error) {
	m, err := scanMember(r.db.QueryRowContext(ctx,
		`SELECT `+memberColumns+` FROM members
		 WHERE community_id = $1 AND whop_membership_id = $2`, communityID, whopMembershipID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find member by membership: %w", err)
	}
	return m, nil
}

func (r *MemberRepo) CreateMember(ctx context.Context, m *domain.Member) error {
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO members
			(id, community_id, whop_membership_id, whop_user_id, email, username,
			 first_name, subscription_status, plan_id, plan_name, plan_price_cents,
			 current_period_start, current_period_end, cancel_at_period_end,
			 ltv_cents, tenure_days, previous_cancellations, recent_payment_failures,
			 discord_user_id, telegram_user_id, has_engagement_data, engagement_score,
			 created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23,$24)
	`, m.ID, m.CommunityID, m.WhopMembershipID, m.WhopUserID, m.Email, m.Username,
		m.FirstName, m.SubscriptionStatus, m.PlanID, m.PlanName, m.PlanPriceCents,
		m.CurrentPeriodStart, m.CurrentPeriodEnd, m.CancelAtPeriodEnd,
		m.LTVCents, m.TenureDays, m.PreviousCancellations, m.RecentPaymentFailures,
		m.DiscordUserID, m.TelegramUserID, m.HasEngagementData, m.EngagementScore,
		m.CreatedAt, m.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create member: %w", err)
	}
	return nil
}

func (r *MemberRepo) UpdateMember(ctx context.Context, m *domain.Member) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE members SET
			whop_user_id = $2, email = $3, username = $4, first_name = $5,
			subscription_status = $6, plan_id = $7, plan_name = $8,
			current_period_start = $9, current_period_end = $10,
			cancel_at_period_end = $11, tenure_days = $12, updated_at = $13
		WHERE id = $1
	`, m.ID, m.WhopUserID, m.Email, m.Username, m.FirstName,
		m.SubscriptionStatus, m.PlanID, m.PlanName,
		m.CurrentPeriodStart, m.CurrentPeriodEnd,
		m.CancelAtPeriodEnd, m.TenureDays, m.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update member: %w", err)
	}
	return nil
}

func (r *MemberRepo) UpdateMemberLTV(ctx context.Context, communityID, whopUserID string, ltvCents int64) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE members SET ltv_cents = $3
		WHERE community_id = $1 AND whop_user_id = $2
	`, communityID, whopUserID, ltvCents)
	if err != nil {
		return fmt.Errorf("update member ltv: %w", err)
	}
	return nil
}

// ListScorableMembers returns the members the risk sweep rescores: everyone
// not already churned.
func (r *MemberRepo) ListScorableMembers(ctx context.Context, communityID string) ([]domain.Member, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+memberColumns+` FROM members
		 WHERE community_id = $1
		   AND subscription_status IN ('active', 'trialing', 'past_due')`, communityID)
	if err != nil {
		return nil, fmt.Errorf("list scorable members: %w", err)
	}
	defer rows.Close()

	var out []domain.Member
	for rows.Next() {
		m, err := scanMember(rows)
		if err != nil {
			return nil, fmt.Errorf("scan member: %w", err)
		}
		out = append(out, *m)
	}
	return out, rows.Err()
}
