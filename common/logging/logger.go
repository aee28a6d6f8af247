package logging

import (
	"os"
	"path"
	"time"

	"github.com/lestrrat/go-file-rotatelogs"
	"github.com/rifflock/lfshook"
	"github.com/sirupsen/logrus"
)

type utcFormatter struct {
	logrus.Formatter
}

func (f utcFormatter) Format(entry *logrus.Entry) ([]byte, error) {
	entry.Time = entry.Time.UTC()
	return f.Formatter.Format(entry)
}

func Setup(dir string, colors bool, json bool, level string) error {
	if level == "" {
		level = "info"
	}
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return err
	}
	logrus.SetLevel(lvl)
	logrus.SetFormatter(newFormatter(colors, json))

	// Stdout carries the interactive progress line; logs go to stderr and,
	// when a directory is configured, to a rotated file.
	logrus.SetOutput(os.Stderr)

	if dir == "" || dir == "-" {
		return nil
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	logFile := path.Join(dir, "media_archiver.log")
	writer, err := rotatelogs.New(
		logFile+".%Y%m%d%H%M",
		rotatelogs.WithLinkName(logFile),
		rotatelogs.WithMaxAge(14*24*time.Hour),
		rotatelogs.WithRotationTime(24*time.Hour),
	)
	if err != nil {
		return err
	}

	// No colors in the file copy regardless of the console setting.
	logrus.AddHook(lfshook.NewHook(writer, newFormatter(false, json)))
	return nil
}

func newFormatter(colors bool, json bool) logrus.Formatter {
	var inner logrus.Formatter
	if json {
		inner = &logrus.JSONFormatter{
			TimestampFormat: "2006-01-02 15:04:05.000 Z07:00",
		}
	} else {
		inner = &logrus.TextFormatter{
			TimestampFormat:  "2006-01-02 15:04:05.000 Z07:00",
			FullTimestamp:    true,
			ForceColors:      colors,
			DisableColors:    !colors,
			QuoteEmptyFields: true,
		}
	}
	return &utcFormatter{inner}
}

// SendToDebugLogger satisfies the ants pool's Logger interface and routes
// everything to logrus at debug.
type SendToDebugLogger struct {
}

func (*SendToDebugLogger) Print(v ...interface{}) {
	logrus.Debug(v...)
}

func (*SendToDebugLogger) Printf(format string, v ...interface{}) {
	logrus.Debugf(format, v...)
}

func (*SendToDebugLogger) Println(v ...interface{}) {
	logrus.Debugln(v...)
}

func (*SendToDebugLogger) Fatalf(format string, v ...interface{}) {
	logrus.Fatalf(format, v...)
}
