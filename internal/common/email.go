package common

// EmailSender delivers a rendered message to one recipient.
type EmailSender interface {
	Send(to, subject, html string) error
}

// Email is a message captured by InMemoryEmail.
type Email struct {
	To      string
	Subject string
	HTML    string
}

// InMemoryEmail collects sent messages for assertions in tests.
type InMemoryEmail struct {
	Outbox []Email
}

func (m *InMemoryEmail) Send(to, subject, html string) error {
	if m != nil {
		m.Outbox = append(m.Outbox, Email{To: to, Subject: subject, HTML: html})
	}
	return nil
}

// NopEmailSender discards every message.
type NopEmailSender struct{}

func (NopEmailSender) Send(string, string, string) error { return nil }
