package notify

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"
	"gorm.io/datatypes"

	"rental-marketplace/internal/config"
	"rental-marketplace/internal/models"
	"rental-marketplace/internal/verification"
)

type fakeMail struct {
	status int
	err    error
	sent   []*mail.SGMailV3
}

func (m *fakeMail) Send(email *mail.SGMailV3) (*rest.Response, error) {
	m.sent = append(m.sent, email)
	if m.err != nil {
		return nil, m.err
	}
	return &rest.Response{StatusCode: m.status}, nil
}

type fakeSMS struct {
	err  error
	sent []*twilioApi.CreateMessageParams
}

func (s *fakeSMS) CreateMessage(params *twilioApi.CreateMessageParams) (*twilioApi.ApiV2010Message, error) {
	s.sent = append(s.sent, params)
	if s.err != nil {
		return nil, s.err
	}
	return &twilioApi.ApiV2010Message{}, nil
}

func testConfig() config.NotificationsConfig {
	return config.NotificationsConfig{
		FrontendURL:      "https://rentals.example.com/",
		OrganizationName: "Rentals",
		Breaker:          config.BreakerConfig{FailureThreshold: 2, ResetTimeoutSeconds: 60},
	}
}

func owner(prefs models.NotificationPreferences) models.User {
	return models.User{
		ID:                      7,
		Email:                   "owner@example.com",
		FullName:                "Amina",
		PhoneNumber:             "+254700000000",
		NotificationPreferences: datatypes.NewJSONType(prefs),
	}
}

func request(u models.User) verification.NotificationRequest {
	return verification.NotificationRequest{
		VerificationID: 42,
		PropertyID:     3,
		PropertyTitle:  "Garden cottage",
		Expiration:     time.Date(2026, 3, 13, 12, 0, 0, 0, time.UTC),
		Owner:          u,
	}
}

func TestDispatcherSendsOnAllAcceptedChannels(t *testing.T) {
	m := &fakeMail{status: 202}
	s := &fakeSMS{}
	d := NewDispatcherWithChannels(testConfig(),
		&EmailChannel{client: m, fromName: "Rentals", fromEmail: "noreply@example.com"},
		&SMSChannel{client: s, fromPhone: "+15550001111"},
	)

	delivery, err := d.SendVerificationRequest(context.Background(), request(owner(models.NotificationPreferences{})))
	require.NoError(t, err)
	assert.Equal(t, "email,sms", delivery.Channel)

	require.Len(t, m.sent, 1)
	assert.Equal(t, "Rentals - Please verify your listing", m.sent[0].Subject)
	require.Len(t, s.sent, 1)
	require.NotNil(t, s.sent[0].Body)
	assert.Contains(t, *s.sent[0].Body, "Reply YES or NO")
	assert.Contains(t, *s.sent[0].Body, "https://rentals.example.com/verifications/42")
	assert.Equal(t, "+254700000000", *s.sent[0].To)
}

func TestDispatcherHonoursPreferences(t *testing.T) {
	off := false
	m := &fakeMail{status: 202}
	s := &fakeSMS{}
	d := NewDispatcherWithChannels(testConfig(),
		&EmailChannel{client: m},
		&SMSChannel{client: s},
	)

	delivery, err := d.SendVerificationRequest(context.Background(), request(owner(models.NotificationPreferences{SMS: &off})))
	require.NoError(t, err)
	assert.Equal(t, "email", delivery.Channel)
	assert.Empty(t, s.sent)
}

func TestDispatcherPartialFailureStillDelivers(t *testing.T) {
	m := &fakeMail{status: 500}
	s := &fakeSMS{}
	d := NewDispatcherWithChannels(testConfig(), &EmailChannel{client: m}, &SMSChannel{client: s})

	delivery, err := d.SendVerificationRequest(context.Background(), request(owner(models.NotificationPreferences{})))
	require.NoError(t, err)
	assert.Equal(t, "sms", delivery.Channel)
}

func TestDispatcherAllChannelsFail(t *testing.T) {
	m := &fakeMail{err: errors.New("connection reset")}
	s := &fakeSMS{err: errors.New("invalid number")}
	d := NewDispatcherWithChannels(testConfig(), &EmailChannel{client: m}, &SMSChannel{client: s})

	_, err := d.SendVerificationRequest(context.Background(), request(owner(models.NotificationPreferences{})))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "email")
	assert.Contains(t, err.Error(), "sms")
}

func TestDispatcherNoReachableChannel(t *testing.T) {
	off := false
	d := NewDispatcherWithChannels(testConfig(), &EmailChannel{client: &fakeMail{status: 202}})

	_, err := d.SendVerificationRequest(context.Background(), request(owner(models.NotificationPreferences{Email: &off})))
	assert.ErrorIs(t, err, ErrNoChannel)
}

func TestDispatcherSkipsOpenCircuit(t *testing.T) {
	m := &fakeMail{err: errors.New("timeout")}
	d := NewDispatcherWithChannels(testConfig(), &EmailChannel{client: m})
	req := request(owner(models.NotificationPreferences{}))

	for i := 0; i < 2; i++ {
		_, err := d.SendVerificationRequest(context.Background(), req)
		require.Error(t, err)
	}
	_, err := d.SendVerificationRequest(context.Background(), req)
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "circuit open"))
	assert.Len(t, m.sent, 2)

	status := d.BreakerStatus()["email"].(map[string]interface{})
	assert.Equal(t, true, status["open"])
	assert.Equal(t, 2, status["failures"])
}

func TestEmailChannelSandbox(t *testing.T) {
	m := &fakeMail{status: 202}
	ch := &EmailChannel{client: m, fromName: "Rentals", fromEmail: "noreply@example.com", sandbox: true}

	require.NoError(t, ch.Send(context.Background(), Message{Owner: owner(models.NotificationPreferences{}), Subject: "s", Text: "t", HTML: "<p>t</p>"}))
	require.Len(t, m.sent, 1)
	require.NotNil(t, m.sent[0].MailSettings)
	require.NotNil(t, m.sent[0].MailSettings.SandboxMode)
	assert.True(t, *m.sent[0].MailSettings.SandboxMode.Enable)
}

func TestRenderEscapesHTML(t *testing.T) {
	d := NewDispatcherWithChannels(testConfig())
	req := request(owner(models.NotificationPreferences{}))
	req.PropertyTitle = "<b>Loft</b>"

	msg := d.render(req)
	assert.Contains(t, msg.HTML, "&lt;b&gt;Loft&lt;/b&gt;")
	assert.Contains(t, msg.Text, "<b>Loft</b>")
}

func TestCircuitBreaker(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	cb := NewCircuitBreaker("email", 3, time.Minute)
	cb.now = func() time.Time { return now }

	cb.RecordFailure()
	cb.RecordFailure()
	assert.True(t, cb.CanProceed())
	cb.RecordSuccess()
	cb.RecordFailure()
	cb.RecordFailure()
	assert.True(t, cb.CanProceed(), "success resets the consecutive count")

	cb.RecordFailure()
	assert.False(t, cb.CanProceed())

	now = now.Add(30 * time.Second)
	assert.False(t, cb.CanProceed())

	now = now.Add(31 * time.Second)
	assert.True(t, cb.CanProceed(), "half-open after reset timeout")

	isOpen, failures, total := cb.GetStatus()
	assert.False(t, isOpen)
	assert.Equal(t, 5, failures)
	assert.Equal(t, 6, total)
}
