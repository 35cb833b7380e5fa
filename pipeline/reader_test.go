package pipeline_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/abrt/retrace-worker/pipeline"
	"github.com/abrt/retrace-worker/task"
)

func TestCheckRequired(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "coredump"), []byte("x"), 0o644))

	require.True(t, pipeline.CheckRequired("coredump", dir))
	require.False(t, pipeline.CheckRequired("executable", dir))
}

func TestCheckRequiredVmcoreSnapshotSuffix(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "vmcore.xz"), []byte("x"), 0o644))

	require.True(t, pipeline.CheckRequired("vmcore", dir))
}

func TestCheckAllRequired(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	err := pipeline.CheckAllRequired(task.TypeRetrace, dir)
	require.Error(t, err)

	for _, f := range task.RequiredFiles[task.TypeRetrace] {
		require.NoError(t, os.WriteFile(filepath.Join(dir, f), []byte("x"), 0o644))
	}

	require.NoError(t, pipeline.CheckAllRequired(task.TypeRetrace, dir))
}

func TestReadPackage(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "package"), []byte("firefox-115.0-1.fc38.x86_64\n"), 0o644))

	pkg, err := pipeline.ReadPackage(dir)
	require.NoError(t, err)
	require.Equal(t, "firefox", pkg.Name)
	require.Equal(t, "115.0", pkg.Version)
	require.Equal(t, "1.fc38", pkg.Release)
	require.Equal(t, "x86_64", pkg.Arch)
}

func TestReadPackageInvalidGrammar(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "package"), []byte("not a package name"), 0o644))

	_, err := pipeline.ReadPackage(dir)
	require.Error(t, err)
}

func TestReadReleaseFromOSRelease(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "os_release"), []byte("Fedora release 38 (Thirty Eight)"), 0o644))

	release, plugin, err := pipeline.ReadRelease(dir, "x86_64", nil)
	require.NoError(t, err)
	require.NotNil(t, plugin)
	require.Equal(t, task.DistroFedora, release.Distribution)
	require.Equal(t, "38", release.Version)
	require.Equal(t, "x86_64", release.Architecture)
}

func TestReadReleaseFallsBackToPackageGuess(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	pkg := pipeline.ParsedPackage{Raw: "firefox-115.0-1.fc38.x86_64"}

	release, _, err := pipeline.ReadRelease(dir, "x86_64", &pkg)
	require.NoError(t, err)
	require.Equal(t, task.DistroFedora, release.Distribution)
	require.Equal(t, "38", release.Version)
}

func TestReadReleaseUnknown(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	_, _, err := pipeline.ReadRelease(dir, "x86_64", nil)
	require.Error(t, err)
}

func TestReadReleaseExecutablePrefixStrip(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "rootdir"), []byte("/mnt/root"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "executable"), []byte("/mnt/root/usr/bin/firefox"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "os_release_in_rootdir"), []byte("Fedora release 38 (Thirty Eight)"), 0o644))

	_, _, err := pipeline.ReadRelease(dir, "x86_64", nil)
	require.NoError(t, err)

	rewritten, err := os.ReadFile(filepath.Join(dir, "executable"))
	require.NoError(t, err)
	require.Equal(t, "/usr/bin/firefox", string(rewritten))
}
