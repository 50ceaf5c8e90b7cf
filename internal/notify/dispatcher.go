package notify

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"rental-marketplace/internal/config"
	"rental-marketplace/internal/logger"
	"rental-marketplace/internal/verification"
)

// ErrNoChannel is returned when the owner cannot be reached on any channel
var ErrNoChannel = errors.New("no_notification_channel")

type guardedChannel struct {
	Channel
	breaker *CircuitBreaker
}

// Dispatcher sends verification requests on every channel the owner accepts.
// A request succeeds when at least one channel delivers it.
type Dispatcher struct {
	channels    []guardedChannel
	frontendURL string
	orgName     string
	log         *logrus.Entry
}

// NewDispatcher wires SendGrid and Twilio when credentials are configured,
// and falls back to logging otherwise.
func NewDispatcher(cfg config.NotificationsConfig) *Dispatcher {
	var channels []Channel
	if cfg.SendGrid.APIKey != "" {
		channels = append(channels, NewEmailChannel(cfg.SendGrid, cfg.OrganizationName))
	}
	if cfg.Twilio.AccountSID != "" {
		channels = append(channels, NewSMSChannel(cfg.Twilio))
	}
	if len(channels) == 0 {
		logger.Log.Warn("Notification: no email or SMS provider configured, owner notifications will only be logged")
		channels = append(channels, LogChannel{})
	}
	return NewDispatcherWithChannels(cfg, channels...)
}

// NewDispatcherWithChannels builds a dispatcher over explicit channels
func NewDispatcherWithChannels(cfg config.NotificationsConfig, channels ...Channel) *Dispatcher {
	d := &Dispatcher{
		frontendURL: strings.TrimRight(cfg.FrontendURL, "/"),
		orgName:     cfg.OrganizationName,
		log:         logger.Log.WithField("component", "notify"),
	}
	for _, ch := range channels {
		d.channels = append(d.channels, guardedChannel{
			Channel: ch,
			breaker: NewCircuitBreaker(ch.Name(), cfg.Breaker.FailureThreshold, cfg.Breaker.GetResetTimeout()),
		})
	}
	return d
}

// SendVerificationRequest implements verification.NotificationSender
func (d *Dispatcher) SendVerificationRequest(ctx context.Context, req verification.NotificationRequest) (verification.Delivery, error) {
	msg := d.render(req)

	var (
		delivered []string
		errs      []error
	)
	for _, ch := range d.channels {
		if !ch.Accepts(req.Owner) {
			continue
		}
		if !ch.breaker.CanProceed() {
			errs = append(errs, fmt.Errorf("%s: circuit open", ch.Name()))
			continue
		}
		if err := ch.Send(ctx, msg); err != nil {
			ch.breaker.RecordFailure()
			d.log.WithError(err).WithFields(logrus.Fields{
				"channel":         ch.Name(),
				"verification_id": req.VerificationID,
			}).Warn("Notification: channel delivery failed")
			errs = append(errs, fmt.Errorf("%s: %w", ch.Name(), err))
			continue
		}
		ch.breaker.RecordSuccess()
		delivered = append(delivered, ch.Name())
	}

	if len(delivered) > 0 {
		return verification.Delivery{Channel: strings.Join(delivered, ",")}, nil
	}
	if len(errs) == 0 {
		return verification.Delivery{}, ErrNoChannel
	}
	return verification.Delivery{}, errors.Join(errs...)
}

// BreakerStatus reports each channel's breaker for the admin API
func (d *Dispatcher) BreakerStatus() map[string]interface{} {
	status := make(map[string]interface{}, len(d.channels))
	for _, ch := range d.channels {
		isOpen, failures, total := ch.breaker.GetStatus()
		status[ch.Name()] = map[string]interface{}{
			"open":     isOpen,
			"failures": failures,
			"total":    total,
		}
	}
	return status
}

func (d *Dispatcher) render(req verification.NotificationRequest) Message {
	link := fmt.Sprintf("%s/verifications/%d", d.frontendURL, req.VerificationID)
	deadline := req.Expiration.UTC().Format(time.RFC1123)
	name := req.Owner.FullName
	if name == "" {
		name = "there"
	}

	text := fmt.Sprintf("Hi %s, please confirm whether \"%s\" is still available before %s: %s",
		name, req.PropertyTitle, deadline, link)
	body := fmt.Sprintf(`<p>Hi %s,</p>
<p>Please confirm whether <strong>%s</strong> is still available.</p>
<p><a href="%s">Respond to this verification</a> before %s.</p>
<p>Listings that are not confirmed lose reliability in search.</p>`,
		html.EscapeString(name), html.EscapeString(req.PropertyTitle), link, deadline)
	sms := fmt.Sprintf("%s: is \"%s\" still available? Reply YES or NO, or respond at %s",
		d.orgName, req.PropertyTitle, link)

	return Message{
		Owner:   req.Owner,
		Subject: fmt.Sprintf("%s - Please verify your listing", d.orgName),
		Text:    text,
		HTML:    body,
		SMS:     sms,
	}
}
