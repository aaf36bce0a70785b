package domain

import (
	"math"
	"time"
)

// SubscriptionStatus is the simplified membership state mapped from the
// billing provider's richer status set.
type SubscriptionStatus string

const (
	SubscriptionActive    SubscriptionStatus = "active"
	SubscriptionCancelled SubscriptionStatus = "cancelled"
	SubscriptionPastDue   SubscriptionStatus = "past_due"
	SubscriptionTrialing  SubscriptionStatus = "trialing"
)

// Member is one community member as synced from the membership provider.
type Member struct {
	ID          string `json:"id" db:"id"`
	CommunityID string `json:"community_id" db:"community_id"`

	WhopMembershipID   string             `json:"whop_membership_id" db:"whop_membership_id"`
	WhopUserID         string             `json:"whop_user_id" db:"whop_user_id"`
	Email              *string            `json:"email" db:"email"`
	Username           *string            `json:"username" db:"username"`
	FirstName          *string            `json:"first_name" db:"first_name"`
	SubscriptionStatus SubscriptionStatus `json:"subscription_status" db:"subscription_status"`
	PlanID             *string            `json:"plan_id" db:"plan_id"`
	PlanName           *string            `json:"plan_name" db:"plan_name"`
	PlanPriceCents     *int64             `json:"plan_price_cents" db:"plan_price_cents"`
	CurrentPeriodStart *time.Time         `json:"current_period_start" db:"current_period_start"`
	CurrentPeriodEnd   *time.Time         `json:"current_period_end" db:"current_period_end"`
	CancelAtPeriodEnd  bool               `json:"cancel_at_period_end" db:"cancel_at_period_end"`
	LTVCents           int64              `json:"ltv_cents" db:"ltv_cents"`
	TenureDays         *int               `json:"tenure_days" db:"tenure_days"`

	PreviousCancellations int `json:"previous_cancellations" db:"previous_cancellations"`
	RecentPaymentFailures int `json:"recent_payment_failures" db:"recent_payment_failures"`

	DiscordUserID  *string `json:"discord_user_id" db:"discord_user_id"`
	TelegramUserID *string `json:"telegram_user_id" db:"telegram_user_id"`

	HasEngagementData bool     `json:"has_engagement_data" db:"has_engagement_data"`
	EngagementScore   *float64 `json:"engagement_score,omitempty" db:"engagement_score"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// MemberFacts is the immutable snapshot the risk scorer and trigger
// evaluator consume. It is derived from a Member at evaluation time; the
// sync worker owns keeping the underlying fields fresh.
type MemberFacts struct {
	TenureDays            int
	SubscriptionStatus    SubscriptionStatus
	CancelAtPeriodEnd     bool
	RecentPaymentFailures int
	PreviousCancellations int
	DaysUntilRenewal      *int
	EngagementScore       *float64
	HasEngagementData     bool
}

// DaysUntilRenewal returns the whole days (ceiling) until periodEnd, or nil
// when no period end is known. Negative values mean the period has lapsed.
func DaysUntilRenewal(periodEnd *time.Time, now time.Time) *int {
	if periodEnd == nil {
		return nil
	}
	days := int(math.Ceil(periodEnd.Sub(now).Hours() / 24))
	return &days
}

// Facts derives the scoring snapshot for this member as of now.
func (m *Member) Facts(now time.Time) MemberFacts {
	tenure := 0
	if m.TenureDays != nil {
		tenure = *m.TenureDays
	}
	return MemberFacts{
		TenureDays:            tenure,
		SubscriptionStatus:    m.SubscriptionStatus,
		CancelAtPeriodEnd:     m.CancelAtPeriodEnd,
		RecentPaymentFailures: m.RecentPaymentFailures,
		PreviousCancellations: m.PreviousCancellations,
		DaysUntilRenewal:      DaysUntilRenewal(m.CurrentPeriodEnd, now),
		EngagementScore:       m.EngagementScore,
		HasEngagementData:     m.HasEngagementData,
	}
}

// FactRecord flattens the member (and optionally its latest risk score) into
// the field set that playbook trigger conditions match against. Fields with
// no value are omitted so that conditions on them fail rather than comparing
// against zero values.
func (m *Member) FactRecord(now time.Time, risk *RiskScore) map[string]any {
	rec := map[string]any{
		"subscription_status":     string(m.SubscriptionStatus),
		"cancel_at_period_end":    m.CancelAtPeriodEnd,
		"recent_payment_failures": m.RecentPaymentFailures,
		"previous_cancellations":  m.PreviousCancellations,
		"has_engagement_data":     m.HasEngagementData,
		"ltv_cents":               m.LTVCents,
	}
	if m.TenureDays != nil {
		rec["tenure_days"] = *m.TenureDays
	}
	if d := DaysUntilRenewal(m.CurrentPeriodEnd, now); d != nil {
		rec["days_until_renewal"] = *d
	}
	if m.EngagementScore != nil {
		rec["engagement_score"] = *m.EngagementScore
	}
	if m.PlanID != nil {
		rec["plan_id"] = *m.PlanID
	}
	if risk != nil {
		rec["risk_score"] = risk.Score
		rec["risk_level"] = string(risk.Level)
	}
	return rec
}
