package infrastructure

import (
	"fmt"
	"os/exec"
	"strings"

	"github.com/yourusername/axolutly-go/internal/domain"
	"go.uber.org/zap"
)

// NotificationService sends desktop notifications about session outcomes
type NotificationService struct {
	config *domain.NotificationConfig
	logger *zap.Logger
	run    func(name string, args ...string) error
}

// NewNotificationService creates a new notification service
func NewNotificationService(config *domain.NotificationConfig, logger *zap.Logger) *NotificationService {
	return &NotificationService{
		config: config,
		logger: logger,
		run: func(name string, args ...string) error {
			return exec.Command(name, args...).Run()
		},
	}
}

// Send sends a notification
func (n *NotificationService) Send(title, message string) error {
	if !n.config.Enabled {
		n.logger.Debug("Notifications disabled, skipping",
			zap.String("title", title),
			zap.String("message", message))
		return nil
	}

	var err error
	switch n.config.Method {
	case "osascript":
		script := fmt.Sprintf(`display notification "%s" with title "%s"`, appleScriptEscape(message), appleScriptEscape(title))
		if n.config.Sound {
			script += ` sound name "Glass"`
		}
		err = n.run("osascript", "-e", script)
	case "notify-send":
		err = n.run("notify-send", "--app-name=axolutly", title, message)
	case "none", "":
		return nil
	default:
		n.logger.Warn("Unknown notification method", zap.String("method", n.config.Method))
		return nil
	}

	if err != nil {
		n.logger.Error("Failed to send notification",
			zap.String("method", n.config.Method),
			zap.Error(err))
		return err
	}

	n.logger.Debug("Notification sent",
		zap.String("title", title),
		zap.String("message", message))
	return nil
}

// Notify maps a session event to a notification. Events that need no
// attention are ignored.
func (n *NotificationService) Notify(url string, platform domain.Platform, ev domain.Event) {
	switch ev.Type {
	case domain.EventAuthRequested:
		n.Send("Sign-in Required",
			fmt.Sprintf("Sign in to %s in %s, then confirm", platform, ev.Browser))
	case domain.EventAuthNotice:
		n.Send("Sign-in", ev.Message)
	case domain.EventConfirmationRequested:
		n.Send("File Exists", fmt.Sprintf("Replace %s?", fileName(ev)))
	case domain.EventFinished:
		n.Send("Download Finished", fmt.Sprintf("Saved: %s (%s)", truncateString(ev.Path, 40), platform))
	case domain.EventFailed:
		if ev.Neutral {
			n.Send("Download Stopped", truncateString(url, 40))
			return
		}
		n.Send("Download Failed", fmt.Sprintf("%s (%s): %s", truncateString(url, 30), platform, truncateString(ev.Message, 80)))
	case domain.EventCancelled:
		n.Send("Download Stopped", truncateString(url, 40))
	}
}

func fileName(ev domain.Event) string {
	if ev.Confirmation == nil {
		return "file"
	}
	parts := strings.Split(strings.ReplaceAll(ev.Confirmation.File, "\\", "/"), "/")
	return parts[len(parts)-1]
}

func appleScriptEscape(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return strings.ReplaceAll(s, `"`, `\"`)
}

// truncateString truncates a string to the specified length
func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
