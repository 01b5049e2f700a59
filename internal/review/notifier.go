package review

import "go.uber.org/zap"

// NoticeKind classifies a user-facing notification.
type NoticeKind string

const (
	NoticeInfo    NoticeKind = "info"
	NoticeWarning NoticeKind = "warning"
	NoticeError   NoticeKind = "error"
)

// Notifier is the injectable sink for transient user-facing notifications.
// The reconciliation core never talks to a UI directly; whatever presents
// toasts, status lines, or log output implements this.
type Notifier interface {
	Notify(kind NoticeKind, message string)
}

// LogNotifier delivers notices to the global zap logger. It is the default
// sink for CLI invocations.
type LogNotifier struct{}

func (LogNotifier) Notify(kind NoticeKind, message string) {
	switch kind {
	case NoticeError:
		zap.L().Error(message)
	case NoticeWarning:
		zap.L().Warn(message)
	default:
		zap.L().Info(message)
	}
}
