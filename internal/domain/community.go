package domain

import "time"

// PlanTier is the community's subscription tier on the platform itself.
type PlanTier string

const (
	TierFree       PlanTier = "free"
	TierStarter    PlanTier = "starter"
	TierGrowth     PlanTier = "growth"
	TierPro        PlanTier = "pro"
	TierEnterprise PlanTier = "enterprise"
)

// CommunitySettings holds operator-tunable behavior. OutreachChannelPriority
// is the ordered list the dispatcher walks when choosing a channel; an empty
// list falls back to DefaultChannelPriority.
type CommunitySettings struct {
	OutreachChannelPriority []Channel `json:"outreach_channel_priority"`
	AutoEnrollPlaybooks     bool      `json:"auto_enroll_playbooks"`
	DailyDigestEmail        bool      `json:"daily_digest_email"`
}

// Community is one operator-owned community with its integration flags.
type Community struct {
	ID            string `json:"id" db:"id"`
	WhopCompanyID string `json:"whop_company_id" db:"whop_company_id"`
	CreatorUserID string `json:"creator_user_id" db:"creator_user_id"`
	Name          string `json:"name" db:"name"`

	DiscordGuildID       *string `json:"discord_guild_id" db:"discord_guild_id"`
	DiscordBotInstalled  bool    `json:"discord_bot_installed" db:"discord_bot_installed"`
	TelegramBotInstalled bool    `json:"telegram_bot_installed" db:"telegram_bot_installed"`
	WhopChatEnabled      bool    `json:"whop_chat_enabled" db:"whop_chat_enabled"`

	PlanTier    PlanTier          `json:"plan_tier" db:"plan_tier"`
	MemberCount int               `json:"member_count" db:"member_count"`
	Settings    CommunitySettings `json:"settings" db:"settings"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// ChannelPriority returns the community's configured channel order, with
// legacy aliases normalized, or the default order when unset.
func (c *Community) ChannelPriority() []Channel {
	if len(c.Settings.OutreachChannelPriority) == 0 {
		return DefaultChannelPriority()
	}
	out := make([]Channel, 0, len(c.Settings.OutreachChannelPriority))
	for _, ch := range c.Settings.OutreachChannelPriority {
		out = append(out, NormalizeChannel(ch))
	}
	return out
}
