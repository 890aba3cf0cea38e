package slurmproxy

import (
	"fmt"
	"io"
	"os"
)

// TestNotifier writes notifications to stderr. It is the sink wired into the
// generic task type and into integration smoke tests.
type TestNotifier struct {
	Out io.Writer
}

// NewTestNotifier creates a new TestNotifier writing to stderr.
func NewTestNotifier() *TestNotifier {
	return &TestNotifier{Out: os.Stderr}
}

// Notify writes the message to the sink.
func (n *TestNotifier) Notify(message string, params map[string]string) error {
	_, err := fmt.Fprintf(n.Out, " * %s\n", message)
	return err
}

// assert that TestNotifier implements Notifier at compile-time rather than
// run-time
var _ Notifier = (*TestNotifier)(nil)
