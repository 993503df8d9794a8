// Package notify delivers OTP codes and account mail by email, and optionally
// by SMS. Every outbound channel runs behind a circuit breaker.
package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker"

	"task-manager/config"
	"task-manager/logging"
)

var ErrSMSDisabled = errors.New("sms channel is not configured")

// Message is one email.
type Message struct {
	To      string
	Subject string
	Body    string
}

type Mailer interface {
	Send(ctx context.Context, m Message) error
}

type SMSSender interface {
	SendSMS(ctx context.Context, to, body string) error
}

// Notifier is what request handlers use to reach users.
type Notifier interface {
	SendEmail(ctx context.Context, to, subject, body string) error
	SendOTP(ctx context.Context, purpose, email, phone, code string) error
}

// OTP mail subjects.
const (
	PurposeRegistration = "Your Registration OTP"
	PurposeLogin        = "Your Login OTP"
	PurposeResend       = "Your Login OTP (resend)"
)

type Service struct {
	mail        Mailer
	sms         SMSSender
	mailBreaker *gobreaker.CircuitBreaker
	smsBreaker  *gobreaker.CircuitBreaker
}

func newBreaker(name string) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > 3
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Logger.Infof("Event ID: CIRCUIT_BREAKER_STATE_CHANGE, Description: Circuit Breaker '%s' changed from '%s' to '%s'", name, from.String(), to.String())
		},
	})
}

// NewService wires mail and an optional SMS sender. sms may be nil.
func NewService(mail Mailer, sms SMSSender) *Service {
	return &Service{
		mail:        mail,
		sms:         sms,
		mailBreaker: newBreaker("mail-cb"),
		smsBreaker:  newBreaker("sms-cb"),
	}
}

// New builds the service described by cfg.
func New(cfg config.Config) *Service {
	var mail Mailer
	switch cfg.EmailBackend {
	case "console":
		mail = NewOutbox()
	default:
		mail = &SMTPMailer{
			Host:     cfg.EmailHost,
			Port:     cfg.EmailPort,
			Username: cfg.EmailHostUser,
			Password: cfg.EmailHostPassword,
			From:     cfg.DefaultFromEmail,
		}
	}
	var sms SMSSender
	if cfg.SMSEnabled() {
		sms = NewTwilioSender(cfg.TwilioAccountSID, cfg.TwilioAuthToken, cfg.TwilioFrom)
	}
	return NewService(mail, sms)
}

func (s *Service) SendEmail(ctx context.Context, to, subject, body string) error {
	if to == "" {
		return errors.New("no recipient address")
	}
	_, err := s.mailBreaker.Execute(func() (interface{}, error) {
		return nil, s.mail.Send(ctx, Message{To: to, Subject: subject, Body: body})
	})
	if err != nil {
		logging.Logger.Errorf("Event ID: EMAIL_SEND_FAILED, Description: sending %q to %s: %v", subject, to, err)
		return fmt.Errorf("send email: %w", err)
	}
	logging.Logger.Infof("Event ID: EMAIL_SENT, Description: %q sent to %s", subject, to)
	return nil
}

func (s *Service) SendSMS(ctx context.Context, to, body string) error {
	if s.sms == nil {
		return ErrSMSDisabled
	}
	_, err := s.smsBreaker.Execute(func() (interface{}, error) {
		return nil, s.sms.SendSMS(ctx, to, body)
	})
	if err != nil {
		logging.Logger.Errorf("Event ID: SMS_SEND_FAILED, Description: sending sms to %s: %v", to, err)
		return fmt.Errorf("send sms: %w", err)
	}
	return nil
}

// OTPBody is the text of every OTP message.
func OTPBody(code string) string {
	return fmt.Sprintf("Your OTP is %s. It is valid for 5 minutes.", code)
}

// SendOTP mails code to email. When a phone number is known and SMS is
// configured the code is also texted; an SMS failure alone is not an error.
func (s *Service) SendOTP(ctx context.Context, purpose, email, phone, code string) error {
	if err := s.SendEmail(ctx, email, purpose, OTPBody(code)); err != nil {
		return err
	}
	if phone != "" && s.sms != nil {
		if err := s.SendSMS(ctx, phone, OTPBody(code)); err != nil {
			logging.Logger.Warnf("Event ID: OTP_SMS_SKIPPED, Description: %v", err)
		}
	}
	return nil
}
