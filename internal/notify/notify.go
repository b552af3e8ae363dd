// Package notify abstracts operator alerts. Delivery transports live
// outside this module; the default sink is the log.
package notify

import (
	"ctacore/internal/logger"
)

// Notifier delivers a short text alert to the operator.
type Notifier interface {
	SendText(msg string) error
}

// LogNotifier writes alerts to the process log.
type LogNotifier struct{}

func (LogNotifier) SendText(msg string) error {
	logger.Warnf("NOTIFY: %s", msg)
	return nil
}

// Nop drops alerts. Used in tests.
type Nop struct{}

func (Nop) SendText(string) error { return nil }
