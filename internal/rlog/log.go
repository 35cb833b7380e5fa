// Package rlog provides the per-task logger threaded explicitly through
// the pipeline, instead of a process-global logging handle (spec §9,
// "Global worker-level file-logger").
package rlog

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/mgutz/ansi"
	"github.com/sirupsen/logrus"
)

// Logger is the interface every pipeline stage receives. Implementations
// must be safe for sequential use by a single task's worker.
type Logger interface {
	Debugf(format string, args ...interface{})
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
	WithField(key string, value interface{}) Logger
}

type taskLogger struct {
	entry *logrus.Entry
}

// taskFormatter renders `[<timestamp>] [<level-first-char>] <message>`
// as required by spec §4.8.
type taskFormatter struct {
	colored bool
}

func (f *taskFormatter) Format(entry *logrus.Entry) ([]byte, error) {
	level := entry.Level.String()
	letter := "I"
	if len(level) > 0 {
		letter = string([]rune(level)[0])
	}

	line := fmt.Sprintf("[%s] [%s] %s\n", entry.Time.Format(time.RFC3339), letter, entry.Message)
	if f.colored {
		line = ansi.Color(line, levelColor(entry.Level))
	}

	return []byte(line), nil
}

func levelColor(level logrus.Level) string {
	switch level {
	case logrus.ErrorLevel, logrus.FatalLevel, logrus.PanicLevel:
		return "red"
	case logrus.WarnLevel:
		return "yellow"
	default:
		return "default"
	}
}

// New builds a Logger that writes to w (typically stdout). A task's log
// file attached with AttachFile receives the same records alongside w.
func New(w io.Writer) Logger {
	l := logrus.New()
	l.SetOutput(w)
	l.SetFormatter(&taskFormatter{})
	l.SetLevel(logrus.DebugLevel)

	return &taskLogger{entry: logrus.NewEntry(l)}
}

func (t *taskLogger) Debugf(format string, args ...interface{}) { t.entry.Debugf(format, args...) }
func (t *taskLogger) Infof(format string, args ...interface{})  { t.entry.Infof(format, args...) }
func (t *taskLogger) Warnf(format string, args ...interface{})  { t.entry.Warnf(format, args...) }
func (t *taskLogger) Errorf(format string, args ...interface{}) { t.entry.Errorf(format, args...) }

func (t *taskLogger) WithField(key string, value interface{}) Logger {
	return &taskLogger{entry: t.entry.WithField(key, value)}
}

// FileHandle is the attach/detach handle returned by AttachFile; it
// implements the idempotent begin_logging/end_logging pair of spec §4.8.
type FileHandle struct {
	file   *os.File
	hook   *fileHook
	logger *taskLogger
}

type fileHook struct {
	writer    io.Writer
	formatter logrus.Formatter
}

func (h *fileHook) Levels() []logrus.Level { return logrus.AllLevels }

func (h *fileHook) Fire(entry *logrus.Entry) error {
	line, err := h.formatter.Format(entry)
	if err != nil {
		return err
	}

	_, err = h.writer.Write(line)
	return err
}

// AttachFile opens path and attaches a hook writing every log record to
// it, in addition to l's existing output. Idempotent: when a file hook
// is already attached to l's logger, it opens nothing and returns a
// handle whose Detach does nothing.
func AttachFile(l Logger, path string) (*FileHandle, error) {
	tl, ok := l.(*taskLogger)
	if !ok {
		return nil, fmt.Errorf("rlog: AttachFile requires a logger created by rlog.New")
	}

	for _, existing := range tl.entry.Logger.Hooks[logrus.InfoLevel] {
		if _, attached := existing.(*fileHook); attached {
			return &FileHandle{}, nil
		}
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}

	hook := &fileHook{writer: f, formatter: &taskFormatter{}}
	tl.entry.Logger.AddHook(hook)

	return &FileHandle{file: f, hook: hook, logger: tl}, nil
}

// Detach removes the file hook and closes the underlying file. Safe to
// call on a nil handle or to call twice.
func (h *FileHandle) Detach() error {
	if h == nil || h.file == nil {
		return nil
	}

	logger := h.logger.entry.Logger

	for lvl := range logger.Hooks {
		var kept []logrus.Hook
		for _, candidate := range logger.Hooks[lvl] {
			if candidate != logrus.Hook(h.hook) {
				kept = append(kept, candidate)
			}
		}
		logger.Hooks[lvl] = kept
	}

	err := h.file.Close()
	h.file = nil

	return err
}
