package transport

import (
	"context"

	"github.com/griphq/retention-engine/internal/domain"
	"github.com/griphq/retention-engine/internal/pkg/logger"
	"github.com/griphq/retention-engine/internal/service/outreach"
)

// NoopSender stands in for real transports in development. Email sends are
// logged and reported as delivered; other channels are declined so dispatch
// behaves the same as with the SES sender.
type NoopSender struct{}

func (NoopSender) Send(_ context.Context, channel domain.Channel, member *domain.Member, content domain.OutreachContent) error {
	if domain.NormalizeChannel(channel) != domain.ChannelEmail {
		return outreach.ErrChannelUnsupported
	}
	logger.Info("noop send",
		"member_id", member.ID,
		"subject", content.Subject)
	return nil
}
