package notify

import "log/slog"

// LogNotifier writes notifications to the structured log. It is the
// always-on fallback in server mode where no desktop session exists.
type LogNotifier struct {
	log *slog.Logger
}

// NewLogNotifier creates a notifier backed by the given logger
func NewLogNotifier(log *slog.Logger) *LogNotifier {
	if log == nil {
		log = slog.Default()
	}
	return &LogNotifier{log: log.With("component", "notify")}
}

// Send logs the notification at a level matching its severity
func (l *LogNotifier) Send(n Notification) error {
	args := []any{"message", n.Message}
	if n.BatchID != "" {
		args = append(args, "batch_id", n.BatchID)
	}
	switch n.Type {
	case NotifyError:
		l.log.Error(n.Title, args...)
	case NotifyWarning:
		l.log.Warn(n.Title, args...)
	default:
		l.log.Info(n.Title, args...)
	}
	return nil
}
