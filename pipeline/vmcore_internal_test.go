package pipeline

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/abrt/retrace-worker/internal/rlog"
	"github.com/abrt/retrace-worker/task"
)

// nopLogger discards everything; it satisfies rlog.Logger for
// white-box tests in this package that don't assert on log output.
type nopLogger struct{}

func (nopLogger) Debugf(string, ...interface{}) {}
func (nopLogger) Infof(string, ...interface{})  {}
func (nopLogger) Warnf(string, ...interface{})  {}
func (nopLogger) Errorf(string, ...interface{}) {}

func (l nopLogger) WithField(string, interface{}) rlog.Logger {
	return l
}

func TestLocateVmcoreFindsDirectFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "vmcore"), []byte("data"), 0o644))

	path, err := locateVmcore(dir)
	require.NoError(t, err)
	require.Equal(t, filepath.Join(dir, "vmcore"), path)
}

func TestLocateVmcoreFindsSnapshotSuffix(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	suffix := task.SnapshotSuffixes[0]
	require.NoError(t, os.WriteFile(filepath.Join(dir, "vmcore"+suffix), []byte("data"), 0o644))

	path, err := locateVmcore(dir)
	require.NoError(t, err)
	require.Equal(t, filepath.Join(dir, "vmcore"+suffix), path)
}

func TestLocateVmcoreMissing(t *testing.T) {
	t.Parallel()

	_, err := locateVmcore(t.TempDir())
	require.Error(t, err)
}

func TestIsFlattenedFormatDetectsMagic(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "vmcore")
	require.NoError(t, os.WriteFile(path, []byte("makedumpfile-flat-format  extra"), 0o644))

	flat, err := isFlattenedFormat(path)
	require.NoError(t, err)
	require.True(t, flat)
}

func TestIsFlattenedFormatRejectsRegularVmcore(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "vmcore")
	require.NoError(t, os.WriteFile(path, []byte("ELF-core-dump-not-flattened"), 0o644))

	flat, err := isFlattenedFormat(path)
	require.NoError(t, err)
	require.False(t, flat)
}

func TestParseKernelRelease(t *testing.T) {
	t.Parallel()

	sys := "      KERNEL: vmlinux\n     RELEASE: 6.8.0-1.el9.x86_64\n       CSIZE: 1234\n"
	require.Equal(t, "6.8.0-1.el9.x86_64", parseKernelRelease(sys))
}

func TestParseKernelReleaseMissing(t *testing.T) {
	t.Parallel()

	require.Equal(t, "", parseKernelRelease("no release line here"))
}

func TestCrashInvocationsBuildsMinimalAndFullVectors(t *testing.T) {
	t.Parallel()

	backend := &NativeBackend{}
	h := Handle{}

	minimal, full := crashInvocations(backend, h, "crash", "/crash/vmcore", "/debug/vmlinux")

	require.Equal(t, []string{"crash", "-s", "/crash/vmcore", "/debug/vmlinux"}, full)
	require.Equal(t, []string{"crash", "-s", "/crash/vmcore", "/debug/vmlinux", "--minimal"}, minimal)
}

func TestCrashInvocationsWrapsPerBackend(t *testing.T) {
	t.Parallel()

	backend := &PodmanBackend{}
	h := Handle{Container: "retrace-9"}

	minimal, full := crashInvocations(backend, h, "crash", "/crash/vmcore", "/debug/vmlinux")

	require.Equal(t, []string{"podman", "exec", "retrace-9", "crash", "-s", "/crash/vmcore", "/debug/vmlinux"}, full)
	require.Equal(t, []string{"podman", "exec", "retrace-9", "crash", "-s", "/crash/vmcore", "/debug/vmlinux", "--minimal"}, minimal)
}

func TestBuildCrashrcWithVmlinux(t *testing.T) {
	t.Parallel()

	rc := buildCrashrc("/var/cache/retrace/debuginfo/6.8.0/usr/lib/debug/lib/modules/6.8.0/vmlinux", "/var/spool/retrace/42/crash")

	require.Contains(t, rc, "mod -S /var/cache/retrace/debuginfo/6.8.0/usr/lib/debug/lib/modules/6.8.0 > /dev/null")
	require.Contains(t, rc, "cd /var/spool/retrace/42/crash")
}

func TestBuildCrashrcWithoutVmlinux(t *testing.T) {
	t.Parallel()

	rc := buildCrashrc("", "/var/spool/retrace/42/crash")

	require.NotContains(t, rc, "mod -S")
	require.Contains(t, rc, "cd /var/spool/retrace/42/crash")
}

func TestEnsureGroupReadableAddsBit(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "vmcore")
	require.NoError(t, os.WriteFile(path, []byte("data"), 0o600))

	require.NoError(t, ensureGroupReadable(nopLogger{}, path))

	info, err := os.Stat(path)
	require.NoError(t, err)
	require.NotZero(t, info.Mode().Perm()&0o040)
}
