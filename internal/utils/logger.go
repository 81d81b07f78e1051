package utils

import (
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// Logger is the process-wide structured logger.
var Logger = logrus.New()

type appNameHook struct {
	appName string
}

// Levels implements logrus.Hook.
func (h *appNameHook) Levels() []logrus.Level {
	return logrus.AllLevels
}

// Fire implements logrus.Hook.
func (h *appNameHook) Fire(entry *logrus.Entry) error {
	entry.Message = "[" + h.appName + "] " + entry.Message
	return nil
}

// InitLogger configures Logger for the given app name and level ("debug", "info", ...).
// An unparseable level falls back to info.
func InitLogger(appName, levelStr string) {
	Logger.SetOutput(os.Stdout)

	levelStr = strings.ToLower(strings.TrimSpace(levelStr))
	if levelStr == "" {
		levelStr = "info"
	}
	level, err := logrus.ParseLevel(levelStr)
	if err != nil {
		Logger.Warnf("Invalid LOG_LEVEL '%s', defaulting to INFO", levelStr)
		level = logrus.InfoLevel
	}
	Logger.SetLevel(level)

	Logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})

	Logger.AddHook(&appNameHook{appName})
}
