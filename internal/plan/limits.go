// Package plan gates features by the community's subscription tier.
package plan

import "github.com/griphq/retention-engine/internal/domain"

// Unlimited marks a count that has no cap on the tier.
const Unlimited = -1

// Limits describes what a tier may use. Counts of Unlimited mean no cap.
type Limits struct {
	MaxMembers          int
	Playbooks           int
	ManualEmails        int
	AutomatedOutreach   bool
	DiscordIntegration  bool
	TelegramIntegration bool
	AIPersonalization   bool
	ABTesting           bool
	MultiCommunity      bool
	WhiteLabel          bool
	PriceUSD            int
	Label               string
}

var limits = map[domain.PlanTier]Limits{
	domain.TierFree: {
		MaxMembers: 50, Playbooks: 0, ManualEmails: 0,
		PriceUSD: 0, Label: "Free",
	},
	domain.TierStarter: {
		MaxMembers: 500, Playbooks: 1, ManualEmails: Unlimited,
		DiscordIntegration: true,
		PriceUSD:           49, Label: "Starter",
	},
	domain.TierGrowth: {
		MaxMembers: 2000, Playbooks: 3, ManualEmails: Unlimited,
		AutomatedOutreach: true, DiscordIntegration: true,
		TelegramIntegration: true, AIPersonalization: true, ABTesting: true,
		PriceUSD: 149, Label: "Growth",
	},
	domain.TierPro: {
		MaxMembers: Unlimited, Playbooks: Unlimited, ManualEmails: Unlimited,
		AutomatedOutreach: true, DiscordIntegration: true,
		TelegramIntegration: true, AIPersonalization: true, ABTesting: true,
		PriceUSD: 299, Label: "Pro",
	},
	domain.TierEnterprise: {
		MaxMembers: Unlimited, Playbooks: Unlimited, ManualEmails: Unlimited,
		AutomatedOutreach: true, DiscordIntegration: true,
		TelegramIntegration: true, AIPersonalization: true, ABTesting: true,
		MultiCommunity: true, WhiteLabel: true,
		PriceUSD: 999, Label: "Enterprise",
	},
}

var tierOrder = []domain.PlanTier{
	domain.TierFree, domain.TierStarter, domain.TierGrowth,
	domain.TierPro, domain.TierEnterprise,
}

// For returns a tier's limits. Unknown tiers get the free limits.
func For(tier domain.PlanTier) Limits {
	if l, ok := limits[tier]; ok {
		return l
	}
	return limits[domain.TierFree]
}

// Allows reports whether a tier-capped count admits one more. A current
// count below zero is treated as zero.
func Allows(cap, current int) bool {
	if cap == Unlimited {
		return true
	}
	if current < 0 {
		current = 0
	}
	return current < cap
}

// CanActivatePlaybook reports whether a community on the tier may have one
// more active playbook given how many it already runs.
func CanActivatePlaybook(tier domain.PlanTier, activeCount int) bool {
	return Allows(For(tier).Playbooks, activeCount)
}

// CanSendManualEmail reports whether the tier includes operator-initiated
// outreach at all.
func CanSendManualEmail(tier domain.PlanTier) bool {
	l := For(tier)
	return l.ManualEmails == Unlimited || l.ManualEmails > 0
}

// MeetsMinTier reports whether a community's tier is at or above the
// playbook's minimum tier.
func MeetsMinTier(tier, min domain.PlanTier) bool {
	return rank(tier) >= rank(min)
}

// UpgradeTier returns the next tier up, or empty when already at the top
// (or the tier is unknown).
func UpgradeTier(tier domain.PlanTier) domain.PlanTier {
	for i, t := range tierOrder {
		if t == tier && i < len(tierOrder)-1 {
			return tierOrder[i+1]
		}
	}
	return ""
}

func rank(t domain.PlanTier) int {
	for i, tier := range tierOrder {
		if tier == t {
			return i
		}
	}
	return 0
}
