package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/noah-isme/backend-streamshop/internal/common"
	"github.com/noah-isme/backend-streamshop/internal/events"
)

// EmailNotifier sends transactional emails for selected topics.
type EmailNotifier struct {
	Mail         common.EmailSender
	Enabled      bool
	From         string
	TopicToggles map[string]bool
}

var topicSubjects = map[string]string{
	events.TopicOrderCreated:   "Order received",
	events.TopicOrderPaid:      "Payment confirmed",
	events.TopicOrderFulfilled: "Your subscription is active",
	events.TopicOrderCancelled: "Order cancelled",
}

// Notify implements the events.Notifier interface. Events without a
// resolvable recipient are silently skipped.
func (n EmailNotifier) Notify(_ context.Context, event events.Event) error {
	if !n.Enabled || n.Mail == nil || !n.topicEnabled(event.Topic) {
		return nil
	}
	to, subject, body := renderEmail(event)
	if to == "" {
		return nil
	}
	return n.Mail.Send(to, subject, body)
}

func (n EmailNotifier) topicEnabled(topic string) bool {
	if n.TopicToggles == nil {
		return true
	}
	enabled, ok := n.TopicToggles[topic]
	return !ok || enabled
}

func renderEmail(event events.Event) (to, subject, body string) {
	payload := map[string]any{}
	if len(event.Payload) > 0 {
		if err := json.Unmarshal(event.Payload, &payload); err != nil {
			return "", "", ""
		}
	}
	to = recipientOf(payload)
	if to == "" {
		return "", "", ""
	}
	subject, ok := topicSubjects[event.Topic]
	if !ok {
		subject = fmt.Sprintf("Notification %s", event.Topic)
	}
	return to, subject, renderBody(event.Topic, payload, event.OccurredAt)
}

func recipientOf(payload map[string]any) string {
	for _, key := range []string{"email", "recipient", "customerEmail"} {
		if s, ok := payload[key].(string); ok {
			if s = strings.TrimSpace(s); s != "" {
				return s
			}
		}
	}
	return ""
}

func renderBody(topic string, payload map[string]any, occurred time.Time) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Event %s occurred at %s.", topic, occurred.Format(time.RFC3339))

	lines := []struct{ key, label string }{
		{"orderId", "Order ID: %s"},
		{"total", "Total: %s"},
		{"savings", "Volume discount savings: %s"},
	}
	for _, line := range lines {
		if v, ok := payload[line.key].(string); ok && v != "" {
			b.WriteByte('\n')
			fmt.Fprintf(&b, line.label, v)
		}
	}
	if note, ok := payload["message"].(string); ok && note != "" {
		b.WriteByte('\n')
		b.WriteString(note)
	}
	return b.String()
}
