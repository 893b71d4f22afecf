package notifications

import (
	"stockpilot/internal/logger"
)

// LogNotifier writes alerts to the bot log. Used when Telegram credentials
// are not configured.
type LogNotifier struct {
	log *logger.Logger
}

func NewLogNotifier(log *logger.Logger) *LogNotifier {
	return &LogNotifier{log: log}
}

func (n *LogNotifier) SendAlert(level, message string) error {
	switch level {
	case "warning":
		n.log.Warning("ALERT: %s", message)
	case "error":
		n.log.Error("ALERT: %s", message)
	default:
		n.log.Info("ALERT: %s", message)
	}
	return nil
}
