package hooks_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/abrt/retrace-worker/hooks"
	"github.com/abrt/retrace-worker/internal/rlog"
	"github.com/abrt/retrace-worker/task"
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

func TestRunInvokesRegisteredHooksInOrder(t *testing.T) {
	t.Parallel()

	r := hooks.NewRegistry()

	var calls []string

	r.Register(hooks.PreStart, func(t *task.Task) error {
		calls = append(calls, "first")
		return nil
	})
	r.Register(hooks.PreStart, func(t *task.Task) error {
		calls = append(calls, "second")
		return nil
	})

	hooks.Run(r, &recordingLogger{}, hooks.PreStart, &task.Task{ID: 1})

	require.Equal(t, []string{"first", "second"}, calls)
}

func TestRunLogsHookFailureAndContinues(t *testing.T) {
	t.Parallel()

	r := hooks.NewRegistry()

	var ran bool

	r.Register(hooks.Fail, func(t *task.Task) error {
		return errors.New("boom")
	})
	r.Register(hooks.Fail, func(t *task.Task) error {
		ran = true
		return nil
	})

	l := &recordingLogger{}
	hooks.Run(r, l, hooks.Fail, &task.Task{ID: 1})

	require.True(t, ran)
	require.Len(t, l.warnings, 1)
}

func TestRunOnNilRegistryIsNoOp(t *testing.T) {
	t.Parallel()

	require.NotPanics(t, func() {
		hooks.Run(nil, &recordingLogger{}, hooks.Success, &task.Task{ID: 1})
	})
}
