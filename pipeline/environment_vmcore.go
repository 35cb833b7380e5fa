package pipeline

import (
	"context"
	"fmt"
	"os"
	"os/user"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/abrt/retrace-worker/config"
	"github.com/abrt/retrace-worker/internal/rerrors"
	"github.com/abrt/retrace-worker/internal/rlog"
	"github.com/abrt/retrace-worker/internal/rshell"
	"github.com/abrt/retrace-worker/task"
)

// VmcoreBackend is the extra preparation step the podman and mock
// backends need for kernel vmcore tasks (spec §4.4 "For vmcore tasks
// with the podman backend" / "For the vmcore + mock path"). Native has
// nothing extra to do, so it does not implement this interface; the
// lifecycle checks for it with a type assertion and falls back to
// Backend.Prepare when it is absent.
type VmcoreBackend interface {
	PrepareVmcore(ctx context.Context, l rlog.Logger, t *task.Task, release task.Release, vmcorePath string) (Handle, error)
}

var (
	_ VmcoreBackend = (*PodmanBackend)(nil)
	_ VmcoreBackend = (*MockBackend)(nil)
)

// vmcoreChrootPackages is the fixed install list shared by both
// isolation backends for vmcore analysis (spec §4.4).
var vmcoreChrootPackages = []string{"bash", "coreutils", "cpio", "crash", "findutils", "rpm", "shadow-utils"}

func (b *PodmanBackend) PrepareVmcore(ctx context.Context, l rlog.Logger, t *task.Task, release task.Release, vmcorePath string) (Handle, error) {
	tag := fmt.Sprintf("retrace-image:%d", t.ID)

	saveDir := mustAbs(t.SaveDir)
	containerfile := filepath.Join(saveDir, "Containerfile")
	if err := writeVmcoreContainerfile(containerfile, release, vmcorePath, b.cfg); err != nil {
		return Handle{}, err
	}

	buildResult, err := rshell.Run(ctx, l, "podman", []string{"build", "--quiet", "--force-rm", "--file", containerfile, "--tag", tag, saveDir}, rshell.Options{})
	if err != nil {
		return Handle{}, err
	}

	if buildResult.ExitCode != 0 {
		return Handle{}, &rerrors.EnvironmentBuildError{Backend: "podman", Stderr: buildResult.Stderr}
	}

	container := fmt.Sprintf("retrace-%d", t.ID)

	runResult, err := rshell.Run(ctx, l, "podman", []string{"run", "--detach", "--rm", "--name", container, tag}, rshell.Options{})
	if err != nil {
		return Handle{}, err
	}

	if runResult.ExitCode != 0 {
		return Handle{}, &rerrors.EnvironmentBuildError{Backend: "podman", Stderr: runResult.Stderr}
	}

	return Handle{Release: release, TaskID: t.ID, CrashDir: t.CrashDir, Container: container}, nil
}

// writeVmcoreContainerfile installs the fixed vmcore-analysis package
// set plus kernel-debuginfo from any enabled debuginfo repo, copies the
// vmcore in, and sets the default command (spec §4.4).
func writeVmcoreContainerfile(path string, release task.Release, vmcorePath string, cfg *config.RetraceConfig) error {
	var b strings.Builder

	fmt.Fprintf(&b, "FROM %s:%s\n", release.Distribution, release.Version)
	fmt.Fprintf(&b, "RUN dnf install --assumeyes --setopt=tsflags=nodocs --releasever=%s %s kernel-debuginfo\n",
		release.Version, strings.Join(vmcoreChrootPackages, " "))
	b.WriteString("RUN useradd -m -u 1000 retrace && mkdir -p /var/spool/abrt/crash\n")
	fmt.Fprintf(&b, "COPY %s /var/spool/abrt/crash/vmcore\n", filepath.Base(vmcorePath))
	b.WriteString("CMD [\"sleep\", \"infinity\"]\n")

	return os.WriteFile(path, []byte(b.String()), 0o644)
}

func (b *MockBackend) PrepareVmcore(ctx context.Context, l rlog.Logger, t *task.Task, release task.Release, vmcorePath string) (Handle, error) {
	cfgDir := filepath.Join(b.cfg.SaveDir, fmt.Sprintf("%d-kernel", t.ID))

	if err := os.RemoveAll(cfgDir); err != nil {
		return Handle{}, rerrors.WithStackTrace(err)
	}

	gid, err := mockGroupGID()
	if err != nil {
		return Handle{}, err
	}

	oldUmask := umask(0o027)
	defer umask(oldUmask)

	if err := os.MkdirAll(cfgDir, 0o750); err != nil {
		return Handle{}, rerrors.WithStackTrace(err)
	}

	if err := os.Chown(cfgDir, -1, gid); err != nil {
		l.Warnf("could not chown %s to group mock: %v", cfgDir, err)
	}

	repoTemplate := strings.ReplaceAll(b.cfg.KernelChrootRepo, "$ARCH", release.Architecture)

	var cfgBody strings.Builder
	fmt.Fprintf(&cfgBody, "config_opts['root'] = %q\n", release.ID()+"-kernel")
	fmt.Fprintf(&cfgBody, "config_opts['target_arch'] = %q\n", release.Architecture)
	fmt.Fprintf(&cfgBody, "config_opts['chroot_setup_cmd'] = 'install %s'\n", strings.Join(vmcoreChrootPackages, " "))
	fmt.Fprintf(&cfgBody, "config_opts['releasever'] = %q\n", release.Version)
	cfgBody.WriteString("config_opts['plugin_conf']['bind_mount_enable'] = True\n")
	fmt.Fprintf(&cfgBody, "config_opts['plugin_conf']['bind_mount_opts']['dirs'].append((%q, %q))\n", b.cfg.RepoDir, b.cfg.RepoDir)
	fmt.Fprintf(&cfgBody, "config_opts['plugin_conf']['bind_mount_opts']['dirs'].append((%q, %q))\n", b.cfg.SaveDir, b.cfg.SaveDir)
	cfgBody.WriteString("config_opts['yum.conf'] = '''\n")
	fmt.Fprintf(&cfgBody, "[kernel]\nname=kernel\nbaseurl=%s\n", repoTemplate)
	cfgBody.WriteString("'''\n")

	if err := os.WriteFile(filepath.Join(cfgDir, "default.cfg"), []byte(cfgBody.String()), 0o640); err != nil {
		return Handle{}, rerrors.WithStackTrace(err)
	}

	if err := symlinkMockDefaults(cfgDir); err != nil {
		return Handle{}, err
	}

	initResult, err := rshell.Run(ctx, l, "mock", []string{"init", "--resultdir", filepath.Join(cfgDir, "log"), "--configdir", cfgDir}, rshell.Options{})
	if err != nil {
		return Handle{}, err
	}

	if initResult.ExitCode != 0 {
		return Handle{}, &rerrors.EnvironmentBuildError{Backend: "mock", Stderr: initResult.Stderr}
	}

	return Handle{Release: release, TaskID: t.ID, ConfigDir: cfgDir, CrashDir: t.CrashDir}, nil
}

func mockGroupGID() (int, error) {
	g, err := user.LookupGroup("mock")
	if err != nil {
		return -1, rerrors.WithStackTrace(err)
	}

	gid, err := strconv.Atoi(g.Gid)
	if err != nil {
		return -1, rerrors.WithStackTrace(err)
	}

	return gid, nil
}
