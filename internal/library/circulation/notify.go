package circulation

import (
	"context"
	"log"
)

type Severity int

const (
	SeverityInfo Severity = iota
	SeverityWarning
	SeverityError
)

func (s Severity) String() string {
	switch s {
	case SeverityWarning:
		return "WARN"
	case SeverityError:
		return "ERROR"
	default:
		return "INFO"
	}
}

// Notifier receives the user-facing outcome of circulation operations.
type Notifier interface {
	Notify(ctx context.Context, msg string, sev Severity)
}

// LogNotifier writes notices to a standard logger as "[LEVEL] msg".
type LogNotifier struct {
	Logger *log.Logger
}

func (n LogNotifier) Notify(_ context.Context, msg string, sev Severity) {
	if n.Logger == nil {
		log.Printf("[%s] %s", sev, msg)
		return
	}
	n.Logger.Printf("[%s] %s", sev, msg)
}

type nopNotifier struct{}

func (nopNotifier) Notify(context.Context, string, Severity) {}
