package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gofrs/flock"
	"github.com/google/uuid"

	"github.com/abrt/retrace-worker/config"
	"github.com/abrt/retrace-worker/internal/rcache"
	"github.com/abrt/retrace-worker/internal/rerrors"
	"github.com/abrt/retrace-worker/internal/rlog"
	"github.com/abrt/retrace-worker/internal/rshell"
	"github.com/abrt/retrace-worker/plugins"
	"github.com/abrt/retrace-worker/task"
)

// PodmanBackend materialises one container image per release and runs
// the debugger inside it (spec §4.4 "Podman backend").
type PodmanBackend struct {
	cfg    *config.RetraceConfig
	images *rcache.ImageCache
}

var _ Backend = (*PodmanBackend)(nil)

// GDB delimiters consumed bit-exact by downstream parsers (spec §6).
const (
	PythonLabelStart     = "PYTHON_LABEL_START"
	PythonLabelEnd       = "PYTHON_LABEL_END"
	ExploitableSeparator = "EXPLOITABLE_SEPARATOR"
)

func (b *PodmanBackend) Prepare(ctx context.Context, l rlog.Logger, t *task.Task, release task.Release, plugin *plugins.Plugin, packages []string) (Handle, error) {
	tag := release.ImageTag()

	if err := b.ensureImageExists(ctx, l, tag, release, plugin, packages); err != nil {
		return Handle{}, err
	}

	return Handle{Release: release, TaskID: t.ID, CrashDir: t.CrashDir, Container: fmt.Sprintf("retrace-%d", t.ID)}, nil
}

// ensureImageExists implements spec §4.4's idempotent image build and
// §8 property 6: when `podman image inspect` succeeds, no build runs.
// A per-tag flock serializes the local fast path across goroutines of
// this process; podman's own locking remains authoritative across
// processes (spec §5 "Shared resources").
func (b *PodmanBackend) ensureImageExists(ctx context.Context, l rlog.Logger, tag string, release task.Release, plugin *plugins.Plugin, packages []string) error {
	if b.images.Known(tag) {
		return nil
	}

	lockPath := filepath.Join(os.TempDir(), "retrace-image-"+release.ID()+".lock")
	fl := flock.New(lockPath)

	if err := fl.Lock(); err != nil {
		return rerrors.WithStackTrace(err)
	}
	defer fl.Unlock()

	if b.images.Known(tag) {
		return nil
	}

	result, err := rshell.Run(ctx, l, "podman", []string{"image", "inspect", tag}, rshell.Options{})
	if err == nil && result.ExitCode == 0 {
		b.images.MarkBuilt(tag)
		return nil
	}

	buildDir, cleanup, err := scopedTempDir("retrace-build-" + uuid.NewString())
	if err != nil {
		return err
	}
	defer cleanup()

	repoFile := filepath.Join(buildDir, "retrace-"+string(release.Distribution))
	if err := writeRepoFile(repoFile, release, b.cfg); err != nil {
		return err
	}

	gdbScript := filepath.Join(buildDir, "gdb.sh")
	if err := writeGDBScript(gdbScript, plugin, false); err != nil {
		return err
	}

	if b.cfg.RequireGPGCheck {
		if err := validateGPGKeys(GPGKeyString(plugin, release)); err != nil {
			return &rerrors.EnvironmentBuildError{Backend: "podman", Stderr: err.Error()}
		}
	}

	containerfile := filepath.Join(buildDir, "Containerfile")
	if err := writePodmanContainerfile(containerfile, filepath.Base(repoFile), release, plugin, packages, b.cfg); err != nil {
		return err
	}

	args := []string{
		"build", "--quiet", "--force-rm",
		"--file", containerfile,
		"--volume", b.cfg.RepoDir + ":" + b.cfg.RepoDir + ":ro",
	}

	if b.cfg.RequireGPGCheck {
		args = append(args, "--volume", b.cfg.RepoDir+"/gpg:"+b.cfg.RepoDir+"/gpg:ro")
	}

	if b.cfg.UseFafPackages {
		args = append(args, "--volume", b.cfg.FafLinkDir+":"+b.cfg.FafLinkDir+":ro")
	}

	args = append(args, "--tag", tag)

	buildResult, err := rshell.Run(ctx, l, "podman", args, rshell.Options{WorkingDir: buildDir})
	if err != nil {
		return err
	}

	if buildResult.ExitCode != 0 {
		return &rerrors.EnvironmentBuildError{Backend: "podman", Stderr: buildResult.Stderr}
	}

	b.images.MarkBuilt(tag)

	return nil
}

func (b *PodmanBackend) WrapDebuggerArgv(h Handle, argv []string) []string {
	return append([]string{"podman", "exec", h.Container}, argv...)
}

func (b *PodmanBackend) Teardown(h Handle) error {
	return nil
}

// writeRepoFile writes the DNF repository file consumed both by the
// Containerfile's `dnf install` step and by gdb.sh's environment (spec
// §4.4 item 1).
func writeRepoFile(path string, release task.Release, cfg *config.RetraceConfig) error {
	repoPath := filepath.Join(cfg.RepoDir, release.ID())

	content := fmt.Sprintf("[retrace-%s]\nname=retrace-%s\nbaseurl=file://%s/\ngpgcheck=%d\n",
		release.Distribution, release.Distribution, repoPath, boolToInt(cfg.RequireGPGCheck))

	return os.WriteFile(path, []byte(content), 0o644)
}

// writeGDBScript renders the fixed, ordered GDB batch-mode command list
// of spec §4.4 item 2. The `file $1` line is omitted when debuginfod is
// enabled (spec §4.4).
func writeGDBScript(path string, plugin *plugins.Plugin, debuginfodEnabled bool) error {
	var b strings.Builder

	b.WriteString("#!/bin/sh\n")
	b.WriteString(plugin.GDBBinary + " -batch \\\n")
	b.WriteString("  -ex 'python exec(open(\"/usr/share/gdb/python/exploitable.py\").read())' \\\n")

	if !debuginfodEnabled {
		b.WriteString("  -ex 'file $1' \\\n")
	}

	b.WriteString("  -ex 'core-file /var/spool/abrt/crash/coredump' \\\n")
	b.WriteString("  -ex 'echo " + PythonLabelStart + "\\n' \\\n")
	b.WriteString("  -ex 'py-bt' \\\n")
	b.WriteString("  -ex 'py-list' \\\n")
	b.WriteString("  -ex 'py-locals' \\\n")
	b.WriteString("  -ex 'echo " + PythonLabelEnd + "\\n' \\\n")
	b.WriteString("  -ex 'thread apply all -ascending backtrace full 2048' \\\n")
	b.WriteString("  -ex 'info sharedlib' \\\n")
	b.WriteString("  -ex 'print (char*)__abort_msg' \\\n")
	b.WriteString("  -ex 'print (char*)__glib_assert_msg' \\\n")
	b.WriteString("  -ex 'info registers' \\\n")
	b.WriteString("  -ex 'disassemble' \\\n")
	b.WriteString("  -ex 'echo " + ExploitableSeparator + "\\n' \\\n")
	b.WriteString("  -ex 'abrt-exploitable'\n")

	return os.WriteFile(path, []byte(b.String()), 0o755)
}

// writePodmanContainerfile renders the per-release image build of spec
// §4.4 item 3.
func writePodmanContainerfile(path, repoFileName string, release task.Release, plugin *plugins.Plugin, packages []string, cfg *config.RetraceConfig) error {
	var b strings.Builder

	fmt.Fprintf(&b, "FROM %s:%s\n", release.Distribution, release.Version)
	b.WriteString("RUN useradd -m -u 1000 retrace && mkdir -p /var/spool/abrt/crash\n")
	fmt.Fprintf(&b, "COPY %s /etc/yum.repos.d/retrace-%s.repo\n", repoFileName, release.Distribution)
	b.WriteString("COPY gdb.sh /usr/local/bin/gdb.sh\n")

	if cfg.RequireGPGCheck {
		b.WriteString("RUN rpm --import " + GPGKeyString(plugin, release) + "\n")
	}

	fmt.Fprintf(&b, "RUN dnf install --assumeyes --setopt=tsflags=nodocs --releasever=%s --repo=retrace-%s abrt-addon-ccpp %s\n",
		release.Version, release.Distribution, plugin.GDBPackage)
	b.WriteString("RUN dnf clean all\n")

	return os.WriteFile(path, []byte(b.String()), 0o644)
}

func boolToInt(v bool) int {
	if v {
		return 1
	}

	return 0
}
