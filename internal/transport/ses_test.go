package transport

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"

	"github.com/griphq/retention-engine/internal/domain"
	"github.com/griphq/retention-engine/internal/pkg/logger"
	"github.com/griphq/retention-engine/internal/service/outreach"
)

type stubSES struct {
	lastInput *sesv2.SendEmailInput
	err       error
}

func (s *stubSES) SendEmail(_ context.Context, params *sesv2.SendEmailInput, _ ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error) {
	s.lastInput = params
	if s.err != nil {
		return nil, s.err
	}
	return &sesv2.SendEmailOutput{MessageId: aws.String("msg-123")}, nil
}

func testSender(api sesAPI) *SESSender {
	return &SESSender{
		client:    api,
		fromEmail: "care@griphq.com",
		fromName:  "Grip",
		log:       logger.Component("ses"),
	}
}

func strp(s string) *string { return &s }

func TestSendBuildsSESInput(t *testing.T) {
	stub := &stubSES{}
	sender := testSender(stub)

	member := &domain.Member{ID: "mem-1", Email: strp("alice@example.com")}
	content := domain.OutreachContent{Subject: "Quick check-in", Body: "Hey Alice"}

	if err := sender.Send(context.Background(), domain.ChannelEmail, member, content); err != nil {
		t.Fatalf("Send: %v", err)
	}

	in := stub.lastInput
	if in == nil {
		t.Fatal("no SendEmail call recorded")
	}
	if got := *in.FromEmailAddress; got != "Grip <care@griphq.com>" {
		t.Errorf("from = %q", got)
	}
	if got := in.Destination.ToAddresses; len(got) != 1 || got[0] != "alice@example.com" {
		t.Errorf("destination = %v", got)
	}
	if got := *in.Content.Simple.Subject.Data; got != "Quick check-in" {
		t.Errorf("subject = %q", got)
	}
	if got := *in.Content.Simple.Body.Text.Data; got != "Hey Alice" {
		t.Errorf("body = %q", got)
	}
}

func TestSendDeclinesNonEmailChannels(t *testing.T) {
	stub := &stubSES{}
	sender := testSender(stub)
	member := &domain.Member{ID: "mem-1", Email: strp("alice@example.com")}

	for _, ch := range []domain.Channel{domain.ChannelDiscordDM, domain.ChannelTelegram, domain.ChannelWhopChat} {
		err := sender.Send(context.Background(), ch, member, domain.OutreachContent{Body: "hi"})
		if !errors.Is(err, outreach.ErrChannelUnsupported) {
			t.Errorf("channel %s: err = %v, want ErrChannelUnsupported", ch, err)
		}
	}
	if stub.lastInput != nil {
		t.Error("SendEmail was called for a non-email channel")
	}
}

func TestSendRequiresEmailAddress(t *testing.T) {
	sender := testSender(&stubSES{})
	member := &domain.Member{ID: "mem-1"}

	err := sender.Send(context.Background(), domain.ChannelEmail, member, domain.OutreachContent{Body: "hi"})
	if err == nil {
		t.Fatal("expected error for member without email")
	}
}

func TestSendWrapsTransportError(t *testing.T) {
	stub := &stubSES{err: errors.New("throttled")}
	sender := testSender(stub)
	member := &domain.Member{ID: "mem-1", Email: strp("alice@example.com")}

	err := sender.Send(context.Background(), domain.ChannelEmail, member, domain.OutreachContent{Body: "hi"})
	if err == nil || !errors.Is(err, stub.err) {
		t.Fatalf("err = %v, want wrapped throttled error", err)
	}
}
