// Package notifier sends desktop notifications when long-running dispatches finish
package notifier

import (
	"fmt"
	"strings"
	"time"

	"github.com/finnctl/finnctl/pkg/logger"
	"github.com/finnctl/finnctl/pkg/types"
	"github.com/gen2brain/beeep"
)

// SendFunc delivers one notification
type SendFunc func(title, message string) error

// RunNotifier reports finished builds and driver runs
type RunNotifier struct {
	enabled bool
	beep    bool
	send    SendFunc
	logger  logger.Logger
}

// Config represents notification configuration
type Config struct {
	Enabled bool
	// Beep additionally sounds the terminal bell on failure
	Beep bool
}

// New creates a notifier that delivers through beeep
func New(config Config, log logger.Logger) *RunNotifier {
	return NewWithSender(config, log, func(title, message string) error {
		return beeep.Notify(title, message, "")
	})
}

// NewWithSender creates a notifier with a custom delivery function
func NewWithSender(config Config, log logger.Logger, send SendFunc) *RunNotifier {
	return &RunNotifier{
		enabled: config.Enabled,
		beep:    config.Beep,
		send:    send,
		logger:  logger.OrNop(log),
	}
}

// NotifyRunFinished notifies about a finished dispatch
func (n *RunNotifier) NotifyRunFinished(record types.RunRecord) {
	if record.ExitCode == 0 && record.Error == "" {
		n.NotifyRunSuccess(record.Project, record.Kind, record.Duration())
		return
	}
	n.NotifyRunFailure(record.Project, record.Kind, record.ExitCode)
}

// NotifyRunSuccess notifies that a dispatch succeeded
func (n *RunNotifier) NotifyRunSuccess(project string, kind types.RunKind, duration time.Duration) {
	if !n.enabled {
		return
	}

	title := "✅ FINN " + kindLabel(kind) + " succeeded"
	message := fmt.Sprintf("%s finished in %s", project, formatDuration(duration))

	n.deliver(title, message)
}

// NotifyRunFailure notifies that a dispatch failed
func (n *RunNotifier) NotifyRunFailure(project string, kind types.RunKind, exitCode int) {
	if !n.enabled {
		return
	}

	title := "❌ FINN " + kindLabel(kind) + " failed"
	message := fmt.Sprintf("%s exited with status %d", project, exitCode)

	n.deliver(title, message)

	if n.beep {
		if err := beeep.Beep(beeep.DefaultFreq, beeep.DefaultDuration); err != nil {
			n.logger.Debug("Failed to play sound", logger.WithError(err))
		}
	}
}

func (n *RunNotifier) deliver(title, message string) {
	if err := n.send(title, message); err != nil {
		// Headless cluster nodes have no notification daemon
		n.logger.Debug("Failed to send notification", logger.WithError(err))
		n.logger.Info(fmt.Sprintf("%s: %s", title, message))
	}
}

func kindLabel(kind types.RunKind) string {
	switch kind {
	case types.RunKindPythonDriver:
		return "Python driver"
	case types.RunKindCppDriver:
		return "C++ driver"
	default:
		return strings.ToLower(string(kind))
	}
}

func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm%ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	return fmt.Sprintf("%dh%dm", int(d.Hours()), int(d.Minutes())%60)
}
