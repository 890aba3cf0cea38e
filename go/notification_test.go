package slurmproxy

import (
	"bytes"
	"fmt"
	"strings"
	"testing"
)

// countingNotifier records every message it receives.
type countingNotifier struct {
	messages []string
	params   []map[string]string
}

func (n *countingNotifier) Notify(message string, params map[string]string) error {
	n.messages = append(n.messages, message)
	n.params = append(n.params, params)
	return nil
}

// failingNotifier always fails.
type failingNotifier struct{}

func (n *failingNotifier) Notify(message string, params map[string]string) error {
	return fmt.Errorf("delivery failed")
}

func TestMergeNotificationPolicies(t *testing.T) {
	catalog := NotificationPolicy{
		Methods: []NotificationMethod{NotificationMethodTest, NotificationMethodEmail},
		Params: NotificationParams{
			"email": {
				"sender":    "a@b.co",
				"recipient": "c@d.co",
				"subject":   "done",
			},
		},
	}
	override := &NotificationPolicy{
		Methods: []NotificationMethod{NotificationMethodSlack, NotificationMethodEmail},
		Params: NotificationParams{
			"email": {"recipient": "e@f.co"},
			"slack": {"channel": "jobs"},
		},
	}

	merged := MergeNotificationPolicies(catalog, override)

	if len(merged.Methods) != 3 {
		t.Fatalf("Expected 3 merged methods, got %d: %v", len(merged.Methods), merged.Methods)
	}
	if merged.Params["email"]["sender"] != "a@b.co" {
		t.Errorf("Catalog default should survive: %v", merged.Params["email"])
	}
	if merged.Params["email"]["recipient"] != "e@f.co" {
		t.Errorf("Task-level override should win: %v", merged.Params["email"])
	}
	if merged.Params["slack"]["channel"] != "jobs" {
		t.Errorf("Task-level params for added method should appear: %v", merged.Params["slack"])
	}

	// The merge must not alias the catalog's parameter maps.
	merged.Params["email"]["subject"] = "changed"
	if catalog.Params["email"]["subject"] != "done" {
		t.Error("Merged policy aliases the catalog parameter map")
	}
}

func TestMergeNotificationPoliciesNilOverride(t *testing.T) {
	catalog := NotificationPolicy{
		Methods: []NotificationMethod{NotificationMethodTest},
		Params:  NotificationParams{"test": {}},
	}
	merged := MergeNotificationPolicies(catalog, nil)
	if len(merged.Methods) != 1 || merged.Methods[0] != NotificationMethodTest {
		t.Errorf("Unexpected merged methods: %v", merged.Methods)
	}
}

func TestValidateEmailEnvelope(t *testing.T) {
	if err := validateEmailEnvelope("a@b.co", "c@d.co", "subject", "body"); err != nil {
		t.Errorf("Expected valid envelope, got %v", err)
	}
	if err := validateEmailEnvelope("not-an-address", "c@d.co", "s", "b"); err == nil {
		t.Error("Expected error for invalid sender, got none")
	}
	if err := validateEmailEnvelope("a@b.co", "nope", "s", "b"); err == nil {
		t.Error("Expected error for invalid recipient, got none")
	}
	if err := validateEmailEnvelope("a@b.co", "c@d.co", "   ", "b"); err == nil {
		t.Error("Expected error for blank subject, got none")
	}
	if err := validateEmailEnvelope("a@b.co", "c@d.co", "s", ""); err == nil {
		t.Error("Expected error for empty body, got none")
	}
}

// testCatalog returns a catalog whose only notification method is the given
// list, for exercising the hub without real transports.
func testCatalog(methods ...NotificationMethod) TaskCatalog {
	return TaskCatalog{
		"echo_hello_world": {
			Cmd: "echo",
			Notification: NotificationPolicy{
				Methods: methods,
				Params: NotificationParams{
					"email": {
						"sender":    "a@b.co",
						"recipient": "c@d.co",
						"subject":   "done",
					},
				},
			},
		},
	}
}

func TestNotifierHubDispatch(t *testing.T) {
	counting := &countingNotifier{}
	catalog := testCatalog(NotificationMethodTest, NotificationMethodEmail)
	hub := NewNotifierHub(catalog, func(method NotificationMethod) (Notifier, error) {
		return counting, nil
	})

	record := &JobRecord{
		SlurmJobID:    1002,
		SlurmUsername: "alice",
		SlurmJobState: "RUNNING",
		Task:          *sampleTask("u1"),
	}
	if ok := hub.Dispatch(record, "COMPLETED"); !ok {
		t.Error("Expected dispatch to succeed")
	}
	if len(counting.messages) != 2 {
		t.Fatalf("Expected 2 notifications, got %d", len(counting.messages))
	}
	if !strings.Contains(counting.messages[0], "1002") {
		t.Errorf("Expected message to reference the job id, got %q", counting.messages[0])
	}
	// The email parameter bag is handed through to the notifier.
	if counting.params[1]["recipient"] != "c@d.co" {
		t.Errorf("Expected email params in dispatch, got %v", counting.params[1])
	}
}

func TestNotifierHubDispatchUnknownMethod(t *testing.T) {
	catalog := testCatalog(NotificationMethod("CARRIER_PIGEON"))
	hub := NewNotifierHub(catalog, NewNotifierFactory(&Config{}))

	record := &JobRecord{SlurmJobID: 7, Task: *sampleTask("u2")}
	if ok := hub.Dispatch(record, "FAILED"); ok {
		t.Error("Expected dispatch to report failure for unknown method")
	}
}

func TestNotifierHubDispatchBestEffort(t *testing.T) {
	counting := &countingNotifier{}
	catalog := testCatalog(NotificationMethodEmail, NotificationMethodTest)
	hub := NewNotifierHub(catalog, func(method NotificationMethod) (Notifier, error) {
		if method == NotificationMethodEmail {
			return &failingNotifier{}, nil
		}
		return counting, nil
	})

	record := &JobRecord{SlurmJobID: 8, Task: *sampleTask("u3")}
	// A failing transport must not stop the remaining ones.
	if ok := hub.Dispatch(record, "TIMEOUT"); !ok {
		t.Error("Expected dispatch to succeed despite one failing transport")
	}
	if len(counting.messages) != 1 {
		t.Errorf("Expected the second transport to run, got %d messages", len(counting.messages))
	}
}

func TestTestNotifierWritesToSink(t *testing.T) {
	var buf bytes.Buffer
	notifier := &TestNotifier{Out: &buf}
	if err := notifier.Notify("hello", nil); err != nil {
		t.Fatalf("Failed to notify: %v", err)
	}
	if !strings.Contains(buf.String(), "hello") {
		t.Errorf("Unexpected sink contents: %q", buf.String())
	}
}

func TestEmailNotifierRejectsBadEnvelope(t *testing.T) {
	notifier := NewEmailNotifier(SMTPConfig{Server: "smtp.example.com", Port: 587})
	err := notifier.Notify("body", map[string]string{
		"sender":    "invalid",
		"recipient": "c@d.co",
		"subject":   "s",
	})
	if err == nil {
		t.Error("Expected error for invalid sender, got none")
	}
}

func TestSlackNotifierRejectsEmptyMessage(t *testing.T) {
	notifier := NewSlackNotifier(SlackConfig{BotToken: "token", Channel: "general"})
	if err := notifier.Notify("", nil); err == nil {
		t.Error("Expected error for empty message, got none")
	}
}
