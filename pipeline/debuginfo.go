package pipeline

import (
	"context"
	"os"
	"path/filepath"

	"github.com/abrt/retrace-worker/internal/rerrors"
	"github.com/abrt/retrace-worker/internal/rlog"
	"github.com/abrt/retrace-worker/internal/rshell"
	"github.com/abrt/retrace-worker/task"
)

// KernelDebuginfoPreparer resolves vmlinux paths by installing the
// matching kernel-debuginfo package into a per-release cache directory
// via dnf, the host-native counterpart to §4.4's container-based
// package installs (spec §4.6 step 4, "Delegated to
// KernelVMcore.prepare_debuginfo").
type KernelDebuginfoPreparer struct {
	CacheDir string
	Logger   rlog.Logger
}

var _ DebuginfoPreparer = (*KernelDebuginfoPreparer)(nil)

func (p *KernelDebuginfoPreparer) PrepareDebuginfo(ctx context.Context, release task.Release, kv task.KernelVer) (string, error) {
	l := p.Logger
	if l == nil {
		l = rlog.New(os.Stdout)
	}

	destDir := filepath.Join(p.CacheDir, kv.String())

	vmlinux := filepath.Join(destDir, "usr", "lib", "debug", "lib", "modules", kv.String(), "vmlinux")
	if isRegularFile(vmlinux) {
		return vmlinux, nil
	}

	pkgName := "kernel-debuginfo-" + kv.Release

	result, err := rshell.Run(ctx, l, "dnf", []string{
		"install", "--assumeyes", "--installroot", destDir,
		"--releasever", release.Version, pkgName,
	}, rshell.Options{})
	if err != nil {
		return "", rerrors.WithStackTrace(err)
	}

	if result.ExitCode != 0 {
		return "", rerrors.Errorf("prepare_debuginfo: dnf install %s failed: %s", pkgName, result.Stderr)
	}

	if !isRegularFile(vmlinux) {
		return "", rerrors.Errorf("prepare_debuginfo: %s not found after installing %s", vmlinux, pkgName)
	}

	return vmlinux, nil
}
