package slurmproxy

import (
	"context"
	"encoding/base64"
	"fmt"
	"log"
	"os"

	"golang.org/x/oauth2/google"
	gmail "google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"
)

// GmailNotifier delivers notifications through the Gmail API using service
// credentials loaded from a JSON file.
type GmailNotifier struct {
	Config GmailConfig
}

// NewGmailNotifier creates a new GmailNotifier instance.
func NewGmailNotifier(config GmailConfig) *GmailNotifier {
	return &GmailNotifier{Config: config}
}

// Notify sends one plain-text email through the authenticated Gmail account.
// The parameter bag supplies sender, recipient and subject; the message
// becomes the body.
func (n *GmailNotifier) Notify(message string, params map[string]string) error {
	sender := params["sender"]
	recipient := params["recipient"]
	subject := params["subject"]

	if err := validateEmailEnvelope(sender, recipient, subject, message); err != nil {
		return err
	}
	log.Printf("Sending Gmail to %s with subject '%s'", recipient, subject)

	credentials, err := os.ReadFile(n.Config.CredentialsPath)
	if err != nil {
		return fmt.Errorf("failed to read Gmail credentials file: %v", err)
	}

	ctx := context.Background()
	creds, err := google.CredentialsFromJSON(ctx, credentials, gmail.GmailSendScope)
	if err != nil {
		return fmt.Errorf("failed to load Gmail credentials: %v", err)
	}

	service, err := gmail.NewService(ctx, option.WithCredentials(creds))
	if err != nil {
		return &TransportError{Op: "gmail service", Err: err}
	}

	rfc822 := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\n\r\n%s", sender, recipient, subject, message)
	gmailMessage := &gmail.Message{
		Raw: base64.URLEncoding.EncodeToString([]byte(rfc822)),
	}
	sent, err := service.Users.Messages.Send("me", gmailMessage).Do()
	if err != nil {
		return &TransportError{Op: "gmail send", Err: err}
	}
	log.Printf("Gmail sent successfully: %s", sent.Id)
	return nil
}

// assert that GmailNotifier implements Notifier at compile-time rather than
// run-time
var _ Notifier = (*GmailNotifier)(nil)
