package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/noah-isme/backend-streamshop/internal/common"
	"github.com/noah-isme/backend-streamshop/internal/events"
	"github.com/noah-isme/backend-streamshop/internal/queue"
)

const emailSendTask = "email-send"

// EmailTask is the queue payload for a rendered email.
type EmailTask struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// Dispatcher enqueues rendered emails instead of sending them inline, so a
// slow SMTP upstream never blocks the request path.
type Dispatcher struct {
	Queue              queue.Enqueuer
	DefaultMaxAttempts int
	TopicToggles       map[string]bool
}

// Notify implements the events.Notifier interface by enqueueing an email task.
func (d Dispatcher) Notify(ctx context.Context, event events.Event) error {
	if d.Queue.R == nil {
		return nil
	}
	if d.TopicToggles != nil {
		if enabled, ok := d.TopicToggles[event.Topic]; ok && !enabled {
			return nil
		}
	}
	to, subject, body := renderEmail(event)
	if to == "" {
		return nil
	}
	payload, err := json.Marshal(EmailTask{To: to, Subject: subject, Body: body})
	if err != nil {
		return err
	}
	maxAttempts := d.DefaultMaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 6
	}
	return d.Queue.Enqueue(ctx, queue.Task{
		Kind:           emailSendTask,
		Payload:        payload,
		IdempotencyKey: event.ID + ":" + event.Topic,
		MaxAttempts:    maxAttempts,
	})
}

// EmailSendTask returns the queue kind used for outbound emails.
func EmailSendTask() string {
	return emailSendTask
}

// HandleEmailTask returns a queue handler that delivers enqueued emails.
func HandleEmailTask(sender common.EmailSender) func(context.Context, queue.Task) error {
	return func(_ context.Context, task queue.Task) error {
		if sender == nil {
			return nil
		}
		var email EmailTask
		if err := json.Unmarshal(task.Payload, &email); err != nil {
			return fmt.Errorf("notify: decode email task: %w", err)
		}
		if email.To == "" {
			return nil
		}
		return sender.Send(email.To, email.Subject, email.Body)
	}
}
