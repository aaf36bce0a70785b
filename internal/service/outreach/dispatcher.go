package outreach

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/griphq/retention-engine/internal/domain"
	"github.com/griphq/retention-engine/internal/pkg/logger"
)

// ErrChannelUnsupported is returned by a Transport that has no sender wired
// for the requested channel. The dispatcher treats it like an unreachable
// channel and moves on to the next one in priority order.
var ErrChannelUnsupported = errors.New("channel not supported by transport")

// Transport delivers a message on a concrete channel. Implementations wrap
// the SES client, the Whop chat API, and the bot gateways.
type Transport interface {
	Send(ctx context.Context, channel domain.Channel, member *domain.Member, content domain.OutreachContent) error
}

// Repository persists the append-only outreach log.
type Repository interface {
	LogOutreach(ctx context.Context, entry *domain.OutreachLogEntry) error
}

// SendOptions carries optional attribution for the log entry.
type SendOptions struct {
	TemplateID   *string
	EnrollmentID *string
}

// Dispatcher routes outreach through the best available channel.
type Dispatcher struct {
	transport Transport
	repo      Repository
}

// NewDispatcher creates a dispatcher over the given transport and log store.
func NewDispatcher(transport Transport, repo Repository) *Dispatcher {
	return &Dispatcher{transport: transport, repo: repo}
}

// CanReach reports whether a member is contactable on a channel given the
// community's integrations. Reachability is about addressing, not about
// transport health.
func CanReach(c *domain.Community, m *domain.Member, ch domain.Channel) bool {
	switch domain.NormalizeChannel(ch) {
	case domain.ChannelEmail:
		return m.Email != nil && *m.Email != ""
	case domain.ChannelWhopChat:
		return c.WhopChatEnabled
	case domain.ChannelDiscordDM:
		return c.DiscordBotInstalled && m.DiscordUserID != nil && *m.DiscordUserID != ""
	case domain.ChannelTelegram:
		return c.TelegramBotInstalled && m.TelegramUserID != nil && *m.TelegramUserID != ""
	default:
		return false
	}
}

// Dispatch sends content to the member over the first reachable channel in
// the community's priority order. A transport failure on the attempted
// channel does not fall through to the next channel; retrying on a different
// medium risks duplicate contact if the first send actually left the
// building. Channels the transport declines with ErrChannelUnsupported are
// skipped the same way unreachable ones are.
func (d *Dispatcher) Dispatch(ctx context.Context, community *domain.Community, member *domain.Member, content domain.OutreachContent, opts SendOptions) domain.DispatchResult {
	for _, ch := range community.ChannelPriority() {
		ch = domain.NormalizeChannel(ch)
		if !CanReach(community, member, ch) {
			continue
		}

		err := d.transport.Send(ctx, ch, member, content)
		if errors.Is(err, ErrChannelUnsupported) {
			continue
		}
		if err != nil {
			logger.Warn("outreach send failed",
				"channel", string(ch),
				"member_id", member.ID,
				"error", err.Error())
			return domain.DispatchResult{Channel: ch, Success: false, Error: err.Error()}
		}

		if logErr := d.logSend(ctx, community, member, ch, content, opts); logErr != nil {
			logger.Error("outreach log write failed",
				"channel", string(ch),
				"member_id", member.ID,
				"error", logErr.Error())
		}
		logger.Info("outreach sent",
			"channel", string(ch),
			"member_id", member.ID,
			"community_id", community.ID)
		return domain.DispatchResult{Channel: ch, Success: true}
	}

	return domain.DispatchResult{
		Channel: domain.ChannelNone,
		Success: false,
		Error:   "no reachable channel for member",
	}
}

func (d *Dispatcher) logSend(ctx context.Context, community *domain.Community, member *domain.Member, ch domain.Channel, content domain.OutreachContent, opts SendOptions) error {
	entry := &domain.OutreachLogEntry{
		ID:                   uuid.New().String(),
		MemberID:             member.ID,
		CommunityID:          community.ID,
		Channel:              ch,
		TemplateID:           opts.TemplateID,
		PlaybookEnrollmentID: opts.EnrollmentID,
		Content:              content.Body,
		SentAt:               time.Now().UTC(),
	}
	if content.Subject != "" {
		s := content.Subject
		entry.Subject = &s
	}
	if err := d.repo.LogOutreach(ctx, entry); err != nil {
		return fmt.Errorf("log outreach: %w", err)
	}
	return nil
}
