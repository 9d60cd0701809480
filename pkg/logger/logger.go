package logger

import (
	"os"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/wadispatch/pkg/config"
)

// Init configures the process-wide logrus logger from the log section.
func Init(lc config.Log) {
	logrus.SetOutput(os.Stdout)
	switch strings.ToLower(lc.Format) {
	case "json":
		logrus.SetFormatter(&logrus.JSONFormatter{TimestampFormat: "2006-01-02T15:04:05.000Z07:00"})
	default:
		logrus.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: "2006-01-02 15:04:05",
		})
	}

	level, err := logrus.ParseLevel(lc.Level)
	if err != nil {
		logrus.Warnf("[LOGGER] unknown level %q, using info", lc.Level)
		level = logrus.InfoLevel
	}
	logrus.SetLevel(level)
}

// For returns an entry tagged with the component name.
func For(component string) *logrus.Entry {
	return logrus.WithField("component", component)
}
