package notify

import (
	"context"
	"errors"
	"strings"
	"testing"

	"task-manager/config"
)

type failingMailer struct{ calls int }

func (f *failingMailer) Send(context.Context, Message) error {
	f.calls++
	return errors.New("relay down")
}

type recordingSMS struct{ sent []string }

func (r *recordingSMS) SendSMS(_ context.Context, to, body string) error {
	r.sent = append(r.sent, to+":"+body)
	return nil
}

func TestSendOTP_EmailAndSMS(t *testing.T) {
	outbox := NewOutbox()
	sms := &recordingSMS{}
	s := NewService(outbox, sms)

	if err := s.SendOTP(context.Background(), PurposeLogin, "amy@example.com", "+15550001111", "123456"); err != nil {
		t.Fatal(err)
	}
	m, ok := outbox.Last()
	if !ok || m.To != "amy@example.com" || m.Subject != PurposeLogin || !strings.Contains(m.Body, "123456") {
		t.Fatalf("mail = %+v", m)
	}
	if len(sms.sent) != 1 || !strings.HasPrefix(sms.sent[0], "+15550001111:") {
		t.Fatalf("sms = %v", sms.sent)
	}
}

func TestSendSMS_Disabled(t *testing.T) {
	s := NewService(NewOutbox(), nil)
	if err := s.SendSMS(context.Background(), "+1555", "hi"); !errors.Is(err, ErrSMSDisabled) {
		t.Fatalf("err = %v", err)
	}
	if err := s.SendOTP(context.Background(), PurposeLogin, "a@b.c", "+1555", "000000"); err != nil {
		t.Fatalf("missing sms channel must not fail OTP: %v", err)
	}
}

func TestBreakerOpensAfterFailures(t *testing.T) {
	mailer := &failingMailer{}
	s := NewService(mailer, nil)
	for i := 0; i < 10; i++ {
		if err := s.SendEmail(context.Background(), "a@b.c", "s", "b"); err == nil {
			t.Fatal("expected failure")
		}
	}
	if mailer.calls != 4 {
		t.Fatalf("breaker should stop calls after 4 failures, got %d", mailer.calls)
	}
}

func TestSendEmail_NoRecipient(t *testing.T) {
	if err := NewService(NewOutbox(), nil).SendEmail(context.Background(), "", "s", "b"); err == nil {
		t.Fatal("expected error")
	}
}

func TestNew_ConsoleBackend(t *testing.T) {
	cfg := config.Default()
	cfg.EmailBackend = "console"
	s := New(cfg)
	if _, ok := s.mail.(*Outbox); !ok {
		t.Fatalf("mailer = %T", s.mail)
	}
	if s.sms != nil {
		t.Fatal("sms should be off without twilio settings")
	}
}

func TestBuildMessage(t *testing.T) {
	msg := string(buildMessage("Tasks <noreply@example.com>", Message{To: "a@b.c", Subject: "Hi", Body: "Body"}))
	if !strings.Contains(msg, "Subject: Hi\r\n") || !strings.HasSuffix(msg, "\r\nBody\r\n") {
		t.Fatalf("message = %q", msg)
	}
	if got := envelopeAddress("Tasks <noreply@example.com>"); got != "noreply@example.com" {
		t.Fatalf("envelope = %q", got)
	}
}
