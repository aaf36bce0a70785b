package domain

import "time"

// RiskLevel buckets a numeric churn-risk score. Factor severities reuse the
// same scale.
type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

// LevelForScore maps a 0-100 score onto its risk level bucket.
func LevelForScore(score int) RiskLevel {
	switch {
	case score >= 70:
		return RiskCritical
	case score >= 40:
		return RiskHigh
	case score >= 20:
		return RiskMedium
	default:
		return RiskLow
	}
}

// DataConfidence indicates how much of a score is backed by real engagement
// data versus inferred from billing facts alone.
type DataConfidence string

const (
	ConfidenceLow    DataConfidence = "low"
	ConfidenceMedium DataConfidence = "medium"
	ConfidenceHigh   DataConfidence = "high"
)

// RiskFactor is one named, point-weighted contributor to a member's score.
type RiskFactor struct {
	Factor      string    `json:"factor"`
	Severity    RiskLevel `json:"severity"`
	Points      int       `json:"points"`
	Description string    `json:"description"`
}

// RiskScore is the persisted scoring result, one row per member (upsert
// keyed by MemberID). It is recreated whole on every scoring run.
type RiskScore struct {
	ID           string         `json:"id" db:"id"`
	MemberID     string         `json:"member_id" db:"member_id"`
	Score        int            `json:"score" db:"score"`
	Level        RiskLevel      `json:"risk_level" db:"risk_level"`
	Factors      []RiskFactor   `json:"risk_factors" db:"risk_factors"`
	Confidence   DataConfidence `json:"data_confidence" db:"data_confidence"`
	CalculatedAt time.Time      `json:"calculated_at" db:"calculated_at"`
}
