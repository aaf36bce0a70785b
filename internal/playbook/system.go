package playbook

import "github.com/griphq/retention-engine/internal/domain"

func strp(s string) *string { return &s }

// SystemPlaybooks returns the built-in playbook definitions seeded for every
// community. IDs and community bindings are assigned at seed time.
func SystemPlaybooks() []domain.Playbook {
	return []domain.Playbook{
		{
			Name:        "New Member Fast Start",
			Emoji:       "\U0001F680",
			Description: strp("Welcome sequence for new members in their first 7 days"),
			Type:        domain.PlaybookSystem,
			MinTier:     domain.TierStarter,
			TriggerConditions: []domain.TriggerCondition{
				{Field: "tenure_days", Operator: domain.OpLt, Value: 7},
				{Field: "subscription_status", Operator: domain.OpEq, Value: "active"},
			},
			Steps: []domain.PlaybookStep{
				{StepNumber: 1, Type: domain.StepEmail, DelayHours: 0, TemplateID: strp("welcome_fast_start"), Subject: strp("Welcome!"), Content: strp("Welcome to the community!")},
				{StepNumber: 2, Type: domain.StepWait, DelayHours: 48},
				{StepNumber: 3, Type: domain.StepEmail, DelayHours: 0, Subject: strp("How's it going?"), Content: strp("Checking in on your first week")},
			},
		},
		{
			Name:        "Silent Revival",
			Emoji:       "\U0001F47B",
			Description: strp("Re-engage members who have gone quiet"),
			Type:        domain.PlaybookSystem,
			MinTier:     domain.TierGrowth,
			TriggerConditions: []domain.TriggerCondition{
				{Field: "risk_level", Operator: domain.OpIn, Value: []string{"high", "critical"}},
			},
			Steps: []domain.PlaybookStep{
				{StepNumber: 1, Type: domain.StepEmail, DelayHours: 0, TemplateID: strp("check_in"), Subject: strp("We miss you!"), Content: strp("We noticed you've been quiet")},
				{StepNumber: 2, Type: domain.StepWait, DelayHours: 72},
				{StepNumber: 3, Type: domain.StepCheckStatus, DelayHours: 0},
				{StepNumber: 4, Type: domain.StepEmail, DelayHours: 24, Subject: strp("Still there?"), Content: strp("Just checking in one more time")},
			},
		},
		{
			Name:        "Renewal Risk",
			Emoji:       "⏰",
			Description: strp("Proactive outreach before renewal for at-risk members"),
			Type:        domain.PlaybookSystem,
			MinTier:     domain.TierGrowth,
			TriggerConditions: []domain.TriggerCondition{
				{Field: "days_until_renewal", Operator: domain.OpLte, Value: 7},
				{Field: "risk_level", Operator: domain.OpIn, Value: []string{"medium", "high", "critical"}},
			},
			Steps: []domain.PlaybookStep{
				{StepNumber: 1, Type: domain.StepEmail, DelayHours: 0, TemplateID: strp("renewal_reminder"), Subject: strp("Your renewal is coming up"), Content: strp("Renewal reminder")},
				{StepNumber: 2, Type: domain.StepWait, DelayHours: 48},
				{StepNumber: 3, Type: domain.StepCheckStatus, DelayHours: 0},
			},
		},
		{
			Name:        "Payment Recovery",
			Emoji:       "\U0001F4B3",
			Description: strp("Recover failed payments before involuntary churn"),
			Type:        domain.PlaybookSystem,
			MinTier:     domain.TierGrowth,
			TriggerConditions: []domain.TriggerCondition{
				{Field: "recent_payment_failures", Operator: domain.OpGt, Value: 0},
			},
			Steps: []domain.PlaybookStep{
				{StepNumber: 1, Type: domain.StepEmail, DelayHours: 0, TemplateID: strp("payment_recovery"), Subject: strp("Payment issue"), Content: strp("Please update your payment")},
				{StepNumber: 2, Type: domain.StepWait, DelayHours: 48},
				{StepNumber: 3, Type: domain.StepEmail, DelayHours: 0, Subject: strp("Urgent: payment needed"), Content: strp("Your access may be interrupted")},
			},
		},
	}
}
