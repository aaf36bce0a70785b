// Package risk computes churn-risk scores from member facts. Scoring is a
// total pure function: every input produces a score, a level, an ordered
// factor list, and a confidence tier, and it never fails.
package risk

import (
	"fmt"
	"time"

	"github.com/griphq/retention-engine/internal/domain"
)

// Result is the outcome of scoring one member.
type Result struct {
	Score      int                   `json:"score"`
	Level      domain.RiskLevel      `json:"level"`
	Factors    []domain.RiskFactor   `json:"factors"`
	Confidence domain.DataConfidence `json:"confidence"`
}

// Score applies the additive point model to the given facts. Factors are
// appended in a fixed order so the output list is stable; the total is
// capped at 100.
func Score(facts domain.MemberFacts) Result {
	score := 0
	factors := []domain.RiskFactor{}

	add := func(points int, factor string, severity domain.RiskLevel, desc string) {
		score += points
		factors = append(factors, domain.RiskFactor{
			Factor:      factor,
			Severity:    severity,
			Points:      points,
			Description: desc,
		})
	}

	// Renewal proximity and scheduled cancellation.
	renewal := facts.DaysUntilRenewal
	if renewal != nil && *renewal <= 7 && *renewal > 0 {
		add(15, "renewal_imminent", domain.RiskHigh,
			fmt.Sprintf("Renewal in %d days", *renewal))
	}
	if facts.CancelAtPeriodEnd {
		add(10, "cancellation_scheduled", domain.RiskCritical,
			"Cancellation scheduled at period end")
	}

	// Payment failures.
	if facts.RecentPaymentFailures > 0 {
		pts := 20
		if facts.RecentPaymentFailures >= 2 {
			pts = 25
		}
		add(pts, "payment_failure", domain.RiskCritical,
			fmt.Sprintf("%d failed payment(s) in last 30 days", facts.RecentPaymentFailures))
	}

	// Early lifecycle risk.
	if facts.TenureDays < 14 {
		add(10, "new_member", domain.RiskMedium,
			fmt.Sprintf("Joined %d days ago - critical onboarding window", facts.TenureDays))
		if !facts.HasEngagementData {
			add(10, "no_engagement_visibility", domain.RiskMedium,
				"No engagement tracking - consider connecting Discord")
		}
	}

	// First renewal approaching.
	if facts.TenureDays < 35 && renewal != nil && *renewal <= 10 {
		add(15, "first_renewal", domain.RiskHigh,
			"First renewal approaching - highest churn risk period")
	}

	// Previous cancellations: flat points regardless of count.
	if facts.PreviousCancellations > 0 {
		add(10, "previous_cancellation", domain.RiskMedium,
			fmt.Sprintf("Previously cancelled %d time(s)", facts.PreviousCancellations))
	}

	// Engagement signal, only when real engagement data is connected.
	if facts.HasEngagementData && facts.EngagementScore != nil {
		switch {
		case *facts.EngagementScore < 15:
			add(20, "very_low_engagement", domain.RiskHigh,
				"Engagement significantly below community average")
		case *facts.EngagementScore < 30:
			add(10, "declining_engagement", domain.RiskMedium,
				"Engagement declining over recent weeks")
		}
	}

	if score > 100 {
		score = 100
	}

	return Result{
		Score:      score,
		Level:      domain.LevelForScore(score),
		Factors:    factors,
		Confidence: confidence(facts),
	}
}

func confidence(facts domain.MemberFacts) domain.DataConfidence {
	if facts.HasEngagementData {
		return domain.ConfidenceHigh
	}
	if facts.TenureDays > 30 {
		return domain.ConfidenceMedium
	}
	return domain.ConfidenceLow
}

// ScoreMember scores a member as of now and returns a RiskScore ready for
// upsert (ID assignment is left to the repository).
func ScoreMember(m *domain.Member, now time.Time) domain.RiskScore {
	res := Score(m.Facts(now))
	return domain.RiskScore{
		MemberID:     m.ID,
		Score:        res.Score,
		Level:        res.Level,
		Factors:      res.Factors,
		Confidence:   res.Confidence,
		CalculatedAt: now,
	}
}
