package pipeline_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/abrt/retrace-worker/internal/rlog"
	"github.com/abrt/retrace-worker/pipeline"
)

type recordingLogger struct {
	warnings []string
}

func (l *recordingLogger) Debugf(string, ...interface{}) {}
func (l *recordingLogger) Infof(string, ...interface{})  {}
func (l *recordingLogger) Warnf(format string, args ...interface{}) {
	l.warnings = append(l.warnings, format)
}
func (l *recordingLogger) Errorf(string, ...interface{}) {}

func (l *recordingLogger) WithField(string, interface{}) rlog.Logger {
	return l
}

func TestDownloadRemoteNoURLsIsNoOp(t *testing.T) {
	t.Parallel()

	l := &recordingLogger{}
	pipeline.DownloadRemote(context.Background(), l, t.TempDir(), nil)

	require.Empty(t, l.warnings)
}

func TestDownloadRemoteLogsFailureWithoutFailingTask(t *testing.T) {
	t.Parallel()

	l := &recordingLogger{}

	require.NotPanics(t, func() {
		pipeline.DownloadRemote(context.Background(), l, t.TempDir(), []string{"not-a-valid-source::/nowhere"})
	})

	require.NotEmpty(t, l.warnings)
}
