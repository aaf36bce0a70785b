package transport

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"

	"github.com/griphq/retention-engine/internal/domain"
	"github.com/griphq/retention-engine/internal/pkg/logger"
	"github.com/griphq/retention-engine/internal/service/outreach"
)

// sesAPI is the slice of the SES v2 client the sender uses.
type sesAPI interface {
	SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

// SESSender delivers email outreach through AWS SES v2. It only handles the
// email channel; everything else is declined with ErrChannelUnsupported so
// the dispatcher can try the next channel in priority order.
type SESSender struct {
	client    sesAPI
	fromEmail string
	fromName  string
	log       *logger.Logger
}

// NewSESSender creates an SES-backed email sender with static credentials.
func NewSESSender(ctx context.Context, accessKey, secretKey, region, fromEmail, fromName string) (*SESSender, error) {
	if region == "" {
		region = "us-east-1"
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(accessKey, secretKey, "")),
	)
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}
	return &SESSender{
		client:    sesv2.NewFromConfig(cfg),
		fromEmail: fromEmail,
		fromName:  fromName,
		log:       logger.Component("ses"),
	}, nil
}

// Send implements the outreach Transport port for the email channel.
func (s *SESSender) Send(ctx context.Context, channel domain.Channel, member *domain.Member, content domain.OutreachContent) error {
	if domain.NormalizeChannel(channel) != domain.ChannelEmail {
		return outreach.ErrChannelUnsupported
	}
	if member.Email == nil || *member.Email == "" {
		return fmt.Errorf("member %s has no email address", member.ID)
	}

	input := &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(fmt.Sprintf("%s <%s>", s.fromName, s.fromEmail)),
		Destination:      &types.Destination{ToAddresses: []string{*member.Email}},
		Content: &types.EmailContent{
			Simple: &types.Message{
				Subject: &types.Content{Data: aws.String(content.Subject), Charset: aws.String("UTF-8")},
				Body: &types.Body{
					Text: &types.Content{Data: aws.String(content.Body), Charset: aws.String("UTF-8")},
				},
			},
		},
		EmailTags: []types.MessageTag{
			{Name: aws.String("member_id"), Value: aws.String(member.ID)},
		},
	}

	result, err := s.client.SendEmail(ctx, input)
	if err != nil {
		return fmt.Errorf("ses send to %s: %w", logger.RedactEmail(*member.Email), err)
	}

	messageID := ""
	if result.MessageId != nil {
		messageID = *result.MessageId
	}
	s.log.Info("email sent",
		"recipient", *member.Email,
		"member_id", member.ID,
		"message_id", messageID)
	return nil
}
