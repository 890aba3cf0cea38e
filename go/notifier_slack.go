package slurmproxy

import (
	"fmt"

	"github.com/slack-go/slack"
)

// SlackNotifier posts notifications to a Slack channel through a bot token.
type SlackNotifier struct {
	Config SlackConfig
}

// NewSlackNotifier creates a new SlackNotifier instance.
func NewSlackNotifier(config SlackConfig) *SlackNotifier {
	return &SlackNotifier{Config: config}
}

// Notify posts the message to the channel named in the parameter bag, or to
// the configured default channel when none is given.
func (n *SlackNotifier) Notify(message string, params map[string]string) error {
	if message == "" {
		return fmt.Errorf("empty Slack message")
	}
	channel := params["channel"]
	if channel == "" {
		channel = n.Config.Channel
	}

	client := slack.New(n.Config.BotToken)
	_, _, err := client.PostMessage(channel, slack.MsgOptionText(message, false))
	if err != nil {
		return &TransportError{Op: "slack post", Err: err}
	}
	return nil
}

// assert that SlackNotifier implements Notifier at compile-time rather than
// run-time
var _ Notifier = (*SlackNotifier)(nil)
