package pipeline_test

import "github.com/abrt/retrace-worker/internal/rlog"

// testLogger discards everything; it satisfies rlog.Logger for tests
// that don't assert on log output.
type testLogger struct{}

func (testLogger) Debugf(string, ...interface{}) {}
func (testLogger) Infof(string, ...interface{})  {}
func (testLogger) Warnf(string, ...interface{})  {}
func (testLogger) Errorf(string, ...interface{}) {}

func (l testLogger) WithField(string, interface{}) rlog.Logger {
	return l
}
