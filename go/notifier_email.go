package slurmproxy

import (
	"fmt"
	"log"

	gomail "github.com/wneessen/go-mail"
)

// EmailNotifier delivers notifications over SMTP with STARTTLS and plain
// authentication.
type EmailNotifier struct {
	Config SMTPConfig
}

// NewEmailNotifier creates a new EmailNotifier instance.
func NewEmailNotifier(config SMTPConfig) *EmailNotifier {
	return &EmailNotifier{Config: config}
}

// Notify sends one plain-text email. The parameter bag supplies sender,
// recipient and subject; the message becomes the body.
func (n *EmailNotifier) Notify(message string, params map[string]string) error {
	sender := params["sender"]
	recipient := params["recipient"]
	subject := params["subject"]

	if err := validateEmailEnvelope(sender, recipient, subject, message); err != nil {
		return err
	}
	log.Printf("Sending email to %s with subject '%s'", recipient, subject)

	msg := gomail.NewMsg()
	if err := msg.From(sender); err != nil {
		return fmt.Errorf("failed to set email sender: %v", err)
	}
	if err := msg.To(recipient); err != nil {
		return fmt.Errorf("failed to set email recipient: %v", err)
	}
	msg.Subject(subject)
	msg.SetBodyString(gomail.TypeTextPlain, message)

	client, err := gomail.NewClient(n.Config.Server,
		gomail.WithPort(n.Config.Port),
		gomail.WithTLSPolicy(gomail.TLSMandatory),
		gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
		gomail.WithUsername(n.Config.Username),
		gomail.WithPassword(n.Config.Password),
	)
	if err != nil {
		return &TransportError{Op: "smtp client", Err: err}
	}
	if err := client.DialAndSend(msg); err != nil {
		return &TransportError{Op: "smtp send", Err: err}
	}
	return nil
}

// assert that EmailNotifier implements Notifier at compile-time rather than
// run-time
var _ Notifier = (*EmailNotifier)(nil)
