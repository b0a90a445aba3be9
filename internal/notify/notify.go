// Package notify delivers batch lifecycle notifications to operators
// through desktop popups, Slack webhooks, or the server log.
package notify

import (
	"fmt"

	"github.com/octapulse-dev/octapulse-core/internal/domain"
)

// NotificationType represents the severity of a notification
type NotificationType int

const (
	NotifyInfo NotificationType = iota
	NotifySuccess
	NotifyWarning
	NotifyError
)

// Notification represents a notification to be sent
type Notification struct {
	Title   string
	Message string
	Type    NotificationType
	BatchID string // Optional batch reference
}

// Notifier is the interface for sending notifications
type Notifier interface {
	Send(n Notification) error
}

// FromBatch builds the completion notification for a finished batch
func FromBatch(sum domain.BatchSummary) Notification {
	n := Notification{BatchID: sum.BatchID}
	switch {
	case sum.Status == domain.BatchFailed:
		n.Type = NotifyError
		n.Title = "Batch analysis failed"
		n.Message = sum.Message
		if n.Message == "" {
			n.Message = fmt.Sprintf("%d of %d images finished before the failure",
				sum.CompletedImages+sum.FailedImages, sum.TotalImages)
		}
	case sum.FailedImages > 0:
		n.Type = NotifyWarning
		n.Title = "Batch analysis completed with failures"
		n.Message = fmt.Sprintf("%d analyzed, %d failed of %d images",
			sum.CompletedImages, sum.FailedImages, sum.TotalImages)
	default:
		n.Type = NotifySuccess
		n.Title = "Batch analysis complete"
		n.Message = fmt.Sprintf("All %d images analyzed", sum.TotalImages)
	}
	return n
}

// MultiNotifier sends to multiple notifiers
type MultiNotifier struct {
	notifiers []Notifier
}

// NewMultiNotifier creates a notifier that sends to all provided notifiers
func NewMultiNotifier(notifiers ...Notifier) *MultiNotifier {
	return &MultiNotifier{notifiers: notifiers}
}

// Send sends the notification to all notifiers
func (m *MultiNotifier) Send(n Notification) error {
	var lastErr error
	for _, notifier := range m.notifiers {
		if err := notifier.Send(n); err != nil {
			lastErr = err
		}
	}
	return lastErr
}

// NoopNotifier does nothing (for testing or disabled notifications)
type NoopNotifier struct{}

func (NoopNotifier) Send(n Notification) error { return nil }
