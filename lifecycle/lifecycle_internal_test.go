package lifecycle

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/abrt/retrace-worker/internal/rerrors"
	"github.com/abrt/retrace-worker/internal/rlog"
	"github.com/abrt/retrace-worker/task"
)

type nopLogger struct{}

func (nopLogger) Debugf(string, ...interface{}) {}
func (nopLogger) Infof(string, ...interface{})  {}
func (nopLogger) Warnf(string, ...interface{})  {}
func (nopLogger) Errorf(string, ...interface{}) {}

func (l nopLogger) WithField(string, interface{}) rlog.Logger {
	return l
}

func TestCodeForMapsKnownErrorTypes(t *testing.T) {
	t.Parallel()

	tests := []struct {
		err  error
		want rerrors.Code
	}{
		{&rerrors.MissingRequiredFileError{File: "package"}, rerrors.CodeInputInvalid},
		{&rerrors.OversizeFileError{File: "coredump"}, rerrors.CodeInputInvalid},
		{&rerrors.InvalidPackageNameError{Raw: "bogus"}, rerrors.CodeInputInvalid},
		{&rerrors.UnknownReleaseError{Source: "os_release"}, rerrors.CodeInputInvalid},
		{&rerrors.UnsupportedReleaseError{Release: "plan9-1"}, rerrors.CodeResourceMissing},
		{&rerrors.EnvironmentBuildError{Backend: "podman"}, rerrors.CodeEnvironmentBuild},
		{&rerrors.DebuggerFailureError{Tool: "gdb.sh"}, rerrors.CodeDebuggerFailure},
		{&rerrors.SmallKernelLogError{Size: 4}, rerrors.CodeDebuggerFailure},
		{rerrors.Errorf("unexpected"), rerrors.CodeInternal},
	}

	for _, tt := range tests {
		require.Equal(t, tt.want, codeFor(tt.err))
	}
}

func TestSymlinkLogCreatesLink(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	logFile := filepath.Join(dir, "retrace.log")
	require.NoError(t, os.WriteFile(logFile, []byte("log"), 0o644))

	resultsDir := filepath.Join(dir, "results")
	require.NoError(t, os.Mkdir(resultsDir, 0o755))

	tsk := &task.Task{LogFile: logFile, ResultsDir: resultsDir}

	symlinkLog(nopLogger{}, tsk)

	target, err := os.Readlink(filepath.Join(resultsDir, "retrace-log"))
	require.NoError(t, err)
	require.Equal(t, logFile, target)
}

func TestSymlinkLogIsIdempotent(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	logFile := filepath.Join(dir, "retrace.log")
	require.NoError(t, os.WriteFile(logFile, []byte("log"), 0o644))

	resultsDir := filepath.Join(dir, "results")
	require.NoError(t, os.Mkdir(resultsDir, 0o755))

	tsk := &task.Task{LogFile: logFile, ResultsDir: resultsDir}

	symlinkLog(nopLogger{}, tsk)
	symlinkLog(nopLogger{}, tsk)

	target, err := os.Readlink(filepath.Join(resultsDir, "retrace-log"))
	require.NoError(t, err)
	require.Equal(t, logFile, target)
}

func TestSymlinkLogSkipsWhenNoLogFile(t *testing.T) {
	t.Parallel()

	tsk := &task.Task{ResultsDir: t.TempDir()}

	symlinkLog(nopLogger{}, tsk)

	_, err := os.Readlink(filepath.Join(tsk.ResultsDir, "retrace-log"))
	require.Error(t, err)
}

func TestGuessVmcoreReleaseFallsBackToFedoraDefault(t *testing.T) {
	t.Parallel()

	tsk := &task.Task{CrashDir: t.TempDir()}

	release := guessVmcoreRelease(tsk)

	require.Equal(t, task.DistroFedora, release.Distribution)
	require.Equal(t, "latest", release.Version)
}

func TestGuessVmcoreReleaseUsesCustomPackageGuess(t *testing.T) {
	t.Parallel()

	tsk := &task.Task{CrashDir: t.TempDir(), CustomPackage: "firefox-115.0-1.fc38.x86_64"}

	release := guessVmcoreRelease(tsk)

	require.Equal(t, task.DistroFedora, release.Distribution)
	require.Equal(t, "38", release.Version)
}

func TestOverlayCustomFilesWritesPresentFields(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	tsk := &task.Task{
		CrashDir:        dir,
		CustomExecutable: "/usr/bin/firefox",
		CustomPackage:    "firefox-115.0-1.fc38.x86_64",
	}

	overlayCustomFiles(tsk)

	exe, err := os.ReadFile(filepath.Join(dir, "executable"))
	require.NoError(t, err)
	require.Equal(t, "/usr/bin/firefox", string(exe))

	pkg, err := os.ReadFile(filepath.Join(dir, "package"))
	require.NoError(t, err)
	require.Equal(t, "firefox-115.0-1.fc38.x86_64", string(pkg))

	_, err = os.ReadFile(filepath.Join(dir, "os_release"))
	require.Error(t, err)
}
