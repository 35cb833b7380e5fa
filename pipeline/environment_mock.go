package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/abrt/retrace-worker/config"
	"github.com/abrt/retrace-worker/internal/rerrors"
	"github.com/abrt/retrace-worker/internal/rlog"
	"github.com/abrt/retrace-worker/internal/rshell"
	"github.com/abrt/retrace-worker/plugins"
	"github.com/abrt/retrace-worker/task"
)

// MockBackend chroots the debugger via `mock` (spec §4.4 "Mock
// backend").
type MockBackend struct {
	cfg *config.RetraceConfig
}

var _ Backend = (*MockBackend)(nil)

func (b *MockBackend) Prepare(ctx context.Context, l rlog.Logger, t *task.Task, release task.Release, plugin *plugins.Plugin, packages []string) (Handle, error) {
	if err := writeMockConfig(t.SaveDir, release, plugin, packages, b.cfg, t.CrashDir); err != nil {
		return Handle{}, err
	}

	if err := symlinkMockDefaults(t.SaveDir); err != nil {
		return Handle{}, err
	}

	resultDir := filepath.Join(t.SaveDir, "log")

	initResult, err := rshell.Run(ctx, l, "mock", []string{"init", "--resultdir", resultDir, "--configdir", t.SaveDir}, rshell.Options{})
	if err != nil {
		return Handle{}, err
	}

	if initResult.ExitCode != 0 {
		return Handle{}, &rerrors.EnvironmentBuildError{Backend: "mock", Stderr: initResult.Stderr}
	}

	chgrpResult, err := rshell.Run(ctx, l, "mock", []string{"--configdir", t.SaveDir, "chroot", "--", "chgrp", "-R", "mock", "/var/spool/abrt/crash"}, rshell.Options{})
	if err != nil {
		return Handle{}, err
	}

	if chgrpResult.ExitCode != 0 {
		l.Warnf("mock chroot chgrp failed: %s", chgrpResult.Stderr)
	}

	return Handle{Release: release, TaskID: t.ID, ConfigDir: t.SaveDir, CrashDir: t.CrashDir}, nil
}

func (b *MockBackend) WrapDebuggerArgv(h Handle, argv []string) []string {
	return append([]string{"mock", "--configdir", h.ConfigDir, "--cwd", h.CrashDir, "chroot", "--"}, argv...)
}

func (b *MockBackend) Teardown(h Handle) error {
	return nil
}

// writeMockConfig writes <savedir>/default.cfg (spec §4.4 "Mock
// backend").
func writeMockConfig(saveDir string, release task.Release, plugin *plugins.Plugin, packages []string, cfg *config.RetraceConfig, crashDir string) error {
	installList := append([]string{}, packages...)
	installList = append(installList, "abrt-addon-ccpp", "shadow-utils", plugin.GDBPackage, "rpm")

	repoPath := filepath.Join(cfg.RepoDir, release.ID())

	var b strings.Builder

	fmt.Fprintf(&b, "config_opts['root'] = %q\n", release.ID())
	fmt.Fprintf(&b, "config_opts['target_arch'] = %q\n", release.Architecture)
	fmt.Fprintf(&b, "config_opts['chroot_setup_cmd'] = 'install %s'\n", strings.Join(installList, " "))
	fmt.Fprintf(&b, "config_opts['releasever'] = %q\n", release.Version)
	b.WriteString("config_opts['package_manager'] = 'dnf'\n")
	b.WriteString("config_opts['use_host_resolv'] = False\n")
	b.WriteString("config_opts['plugin_conf']['bind_mount_enable'] = True\n")
	fmt.Fprintf(&b, "config_opts['plugin_conf']['bind_mount_opts']['dirs'].append((%q, %q))\n", repoPath, repoPath)

	if cfg.RequireGPGCheck {
		gpgDir := filepath.Join(cfg.RepoDir, "gpg")
		fmt.Fprintf(&b, "config_opts['plugin_conf']['bind_mount_opts']['dirs'].append((%q, %q))\n", gpgDir, gpgDir)
	}

	fmt.Fprintf(&b, "config_opts['plugin_conf']['bind_mount_opts']['dirs'].append((%q, '/var/spool/abrt/crash'))\n", crashDir)

	b.WriteString("config_opts['yum.conf'] = '''\n")
	fmt.Fprintf(&b, "[%s]\nname=%s\nbaseurl=file://%s/\ngpgcheck=%d\n", release.Distribution, release.Distribution, repoPath, boolToInt(cfg.RequireGPGCheck))
	b.WriteString("'''\n")

	return os.WriteFile(filepath.Join(saveDir, "default.cfg"), []byte(b.String()), 0o644)
}

func symlinkMockDefaults(saveDir string) error {
	links := map[string]string{
		"/etc/mock/site-defaults.cfg": filepath.Join(saveDir, "site-defaults.cfg"),
		"/etc/mock/logging.ini":       filepath.Join(saveDir, "logging.ini"),
	}

	for target, link := range links {
		_ = os.Remove(link)

		if err := os.Symlink(target, link); err != nil {
			return rerrors.WithStackTrace(err)
		}
	}

	return nil
}
