package notify

import (
	"context"
	"fmt"

	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
	"github.com/twilio/twilio-go"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"

	"rental-marketplace/internal/config"
	"rental-marketplace/internal/logger"
	"rental-marketplace/internal/models"
)

// Message is a rendered verification request for one owner
type Message struct {
	Owner   models.User
	Subject string
	Text    string
	HTML    string
	SMS     string
}

// Channel delivers a message over one medium
type Channel interface {
	Name() string
	// Accepts reports whether the owner can be reached on this channel
	Accepts(owner models.User) bool
	Send(ctx context.Context, msg Message) error
}

type mailSender interface {
	Send(email *mail.SGMailV3) (*rest.Response, error)
}

// EmailChannel sends through SendGrid
type EmailChannel struct {
	client    mailSender
	fromName  string
	fromEmail string
	sandbox   bool
}

func NewEmailChannel(cfg config.SendGridConfig, orgName string) *EmailChannel {
	return &EmailChannel{
		client:    sendgrid.NewSendClient(cfg.APIKey),
		fromName:  orgName,
		fromEmail: cfg.FromEmail,
		sandbox:   cfg.SandboxMode,
	}
}

func (c *EmailChannel) Name() string { return "email" }

func (c *EmailChannel) Accepts(owner models.User) bool {
	return owner.Email != "" && owner.NotificationPreferences.Data().AllowsEmail()
}

func (c *EmailChannel) Send(_ context.Context, msg Message) error {
	from := mail.NewEmail(c.fromName, c.fromEmail)
	to := mail.NewEmail(msg.Owner.FullName, msg.Owner.Email)
	message := mail.NewSingleEmail(from, msg.Subject, to, msg.Text, msg.HTML)

	if c.sandbox {
		ms := mail.NewMailSettings()
		ms.SetSandboxMode(mail.NewSetting(true))
		message.MailSettings = ms
	}

	resp, err := c.client.Send(message)
	if err != nil {
		return fmt.Errorf("failed to send email via sendgrid: %w", err)
	}
	if resp != nil && resp.StatusCode >= 300 {
		return fmt.Errorf("sendgrid rejected email: status %d", resp.StatusCode)
	}
	return nil
}

type messageCreator interface {
	CreateMessage(params *twilioApi.CreateMessageParams) (*twilioApi.ApiV2010Message, error)
}

// SMSChannel sends through Twilio
type SMSChannel struct {
	client    messageCreator
	fromPhone string
}

func NewSMSChannel(cfg config.TwilioConfig) *SMSChannel {
	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: cfg.AccountSID,
		Password: cfg.AuthToken,
	})
	return &SMSChannel{
		client:    client.Api,
		fromPhone: cfg.FromPhone,
	}
}

func (c *SMSChannel) Name() string { return "sms" }

func (c *SMSChannel) Accepts(owner models.User) bool {
	return owner.PhoneNumber != "" && owner.NotificationPreferences.Data().AllowsSMS()
}

func (c *SMSChannel) Send(_ context.Context, msg Message) error {
	params := &twilioApi.CreateMessageParams{}
	params.SetTo(msg.Owner.PhoneNumber)
	params.SetFrom(c.fromPhone)
	params.SetBody(msg.SMS)

	if _, err := c.client.CreateMessage(params); err != nil {
		return fmt.Errorf("failed to send sms via twilio: %w", err)
	}
	return nil
}

// LogChannel writes the message to the log; used when no provider is configured
type LogChannel struct{}

func (LogChannel) Name() string { return "log" }

func (LogChannel) Accepts(models.User) bool { return true }

func (LogChannel) Send(_ context.Context, msg Message) error {
	logger.Log.WithField("owner_id", msg.Owner.ID).Infof("Notification: %s", msg.Text)
	return nil
}
