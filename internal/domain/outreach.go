package domain

import "time"

// Channel is an outreach delivery medium.
type Channel string

const (
	ChannelEmail     Channel = "email"
	ChannelWhopChat  Channel = "whop_chat"
	ChannelDiscordDM Channel = "discord_dm"
	ChannelTelegram  Channel = "telegram"

	// ChannelNone is returned by the dispatcher when no channel is reachable.
	ChannelNone Channel = "none"
)

// NormalizeChannel maps legacy aliases stored in community settings onto the
// canonical channel identifiers ("discord" predates "discord_dm").
func NormalizeChannel(ch Channel) Channel {
	if ch == "discord" {
		return ChannelDiscordDM
	}
	return ch
}

// DefaultChannelPriority is the dispatch order used when a community has not
// configured its own.
func DefaultChannelPriority() []Channel {
	return []Channel{ChannelEmail, ChannelWhopChat, ChannelDiscordDM, ChannelTelegram}
}

// OutreachContent is the message handed to the dispatcher.
type OutreachContent struct {
	Subject string
	Body    string
}

// DispatchResult reports which channel was attempted and whether the send
// succeeded. Channel is ChannelNone when no channel was reachable.
type DispatchResult struct {
	Channel Channel `json:"channel"`
	Success bool    `json:"success"`
	Error   string  `json:"error,omitempty"`
}

// OutreachLogEntry is the append-only record of a successful send. Delivery
// and engagement timestamps are backfilled by webhook ingestion, not by the
// dispatcher.
type OutreachLogEntry struct {
	ID                   string     `json:"id" db:"id"`
	MemberID             string     `json:"member_id" db:"member_id"`
	CommunityID          string     `json:"community_id" db:"community_id"`
	Channel              Channel    `json:"channel" db:"channel"`
	TemplateID           *string    `json:"template_id" db:"template_id"`
	PlaybookEnrollmentID *string    `json:"playbook_enrollment_id" db:"playbook_enrollment_id"`
	Subject              *string    `json:"subject" db:"subject"`
	Content              string     `json:"content" db:"content"`
	SentAt               time.Time  `json:"sent_at" db:"sent_at"`
	DeliveredAt          *time.Time `json:"delivered_at" db:"delivered_at"`
	OpenedAt             *time.Time `json:"opened_at" db:"opened_at"`
	RespondedAt          *time.Time `json:"responded_at" db:"responded_at"`
	Bounced              bool       `json:"bounced" db:"bounced"`
	CreatedAt            time.Time  `json:"created_at" db:"created_at"`
}
