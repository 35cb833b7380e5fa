package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/abrt/retrace-worker/internal/rerrors"
	"github.com/abrt/retrace-worker/internal/rlog"
	"github.com/abrt/retrace-worker/internal/rshell"
	"github.com/abrt/retrace-worker/task"
)

// smallKernelLogThreshold is the byte floor below which a minimal
// kernel log is considered suspiciously small (spec §4.6 step 6).
const smallKernelLogThreshold = 1024

// DebuginfoPreparer resolves a kernel vmlinux path for a given release
// and kernel version, delegated to an external KernelVMcore collaborator
// (spec §4.6 step 4).
type DebuginfoPreparer interface {
	PrepareDebuginfo(ctx context.Context, release task.Release, kv task.KernelVer) (vmlinuxPath string, err error)
}

// VmcoreResult is what VmcoreDriver hands the lifecycle: the kernel log
// backtrace, an optional sys dump, the crashrc content, and whether the
// task should be downgraded to a minimal crash command on future runs
// (spec §4.6 steps 6, 7, 10).
type VmcoreResult struct {
	KernelLog        string
	Sys              string
	HasSys           bool
	Crashrc          string
	DowngradeMinimal bool
}

// VmcoreDriver runs the conceptual state machine of spec §4.6: probe,
// optional flattened-format conversion, kernel-release identification,
// debuginfo preparation, the two crash invocations, page stripping,
// readability repair, and crashrc generation.
func VmcoreDriver(ctx context.Context, l rlog.Logger, backend Backend, h Handle, t *task.Task, crashCmd string, debuginfo DebuginfoPreparer, kv *task.KernelVer) (VmcoreResult, error) {
	vmcorePath, err := locateVmcore(t.CrashDir)
	if err != nil {
		return VmcoreResult{}, err
	}

	if err := convertIfFlattened(ctx, l, vmcorePath); err != nil {
		return VmcoreResult{}, err
	}

	resolvedKV, err := resolveKernelVer(ctx, l, crashCmd, vmcorePath, kv)
	if err != nil {
		return VmcoreResult{}, err
	}

	vmlinux, err := debuginfo.PrepareDebuginfo(ctx, h.Release, resolvedKV)
	if err != nil {
		return VmcoreResult{}, rerrors.WithStackTrace(err)
	}

	minimalArgv, fullArgv := crashInvocations(backend, h, crashCmd, vmcorePath, vmlinux)

	logResult, err := rshell.Run(ctx, l, minimalArgv[0], minimalArgv[1:], rshell.Options{Stdin: "log\nquit\n"})
	if err != nil {
		return VmcoreResult{}, &rerrors.DebuggerFailureError{Tool: "crash --minimal", Detail: err.Error()}
	}

	kernelLog := logResult.Stdout

	sysResult, err := rshell.Run(ctx, l, fullArgv[0], fullArgv[1:], rshell.Options{Stdin: "sys\nquit\n"})
	if err != nil {
		return VmcoreResult{}, &rerrors.DebuggerFailureError{Tool: "crash", Detail: err.Error()}
	}

	if len(kernelLog) < smallKernelLogThreshold && sysResult.ExitCode != 0 {
		return VmcoreResult{}, &rerrors.SmallKernelLogError{Size: len(kernelLog)}
	}

	out := VmcoreResult{KernelLog: kernelLog}

	if sysResult.ExitCode == 0 && sysResult.Stdout != "" {
		out.Sys = sysResult.Stdout
		out.HasSys = true
	} else {
		out.DowngradeMinimal = true
	}

	if err := stripExtraPages(ctx, l, vmcorePath, resolvedKV); err != nil {
		l.Warnf("extra-page stripping failed: %v", err)
	}

	if err := ensureGroupReadable(l, vmcorePath); err != nil {
		l.Warnf("could not make %s group-readable: %v", vmcorePath, err)
	}

	out.Crashrc = buildCrashrc(vmlinux, t.ResultsDir)

	return out, nil
}

// locateVmcore finds the vmcore file or one of its recognised
// snapshot-suffixed siblings (spec §4.6 step 1, §4.1).
func locateVmcore(crashDir string) (string, error) {
	direct := filepath.Join(crashDir, "vmcore")
	if isRegularFile(direct) {
		return direct, nil
	}

	for _, suffix := range task.SnapshotSuffixes {
		candidate := direct + suffix
		if isRegularFile(candidate) {
			return candidate, nil
		}
	}

	return "", &rerrors.MissingRequiredFileError{File: "vmcore", Dir: crashDir}
}

// convertIfFlattened converts a flattened-format vmcore in place via
// makedumpfile, logging the size delta (spec §4.6 step 2).
func convertIfFlattened(ctx context.Context, l rlog.Logger, vmcorePath string) error {
	isFlat, err := isFlattenedFormat(vmcorePath)
	if err != nil {
		return rerrors.WithStackTrace(err)
	}

	if !isFlat {
		return nil
	}

	before, err := fileSize(vmcorePath)
	if err != nil {
		return err
	}

	converted := vmcorePath + ".converted"

	result, err := rshell.Run(ctx, l, "makedumpfile", []string{"-R", converted, vmcorePath}, rshell.Options{})
	if err != nil {
		return &rerrors.DebuggerFailureError{Tool: "makedumpfile", Detail: err.Error()}
	}

	if result.ExitCode != 0 {
		return &rerrors.DebuggerFailureError{Tool: "makedumpfile", Detail: result.Stderr}
	}

	if err := os.Rename(converted, vmcorePath); err != nil {
		return rerrors.WithStackTrace(err)
	}

	after, err := fileSize(vmcorePath)
	if err != nil {
		return err
	}

	l.Infof("converted flattened vmcore %s: %d -> %d bytes", vmcorePath, before, after)

	return nil
}

// isFlattenedFormat reads makedumpfile's flattened-format magic from the
// file header.
func isFlattenedFormat(path string) (bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return false, err
	}
	defer f.Close()

	header := make([]byte, len("makedumpfile-flat-format"))
	n, err := f.Read(header)
	if err != nil && n == 0 {
		return false, err
	}

	return strings.HasPrefix(string(header[:n]), "makedumpfile-flat-format"), nil
}

func fileSize(path string) (int64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, rerrors.WithStackTrace(err)
	}

	return info.Size(), nil
}

// resolveKernelVer honours a caller-supplied KernelVer, or parses one by
// running the configured crash command split into argv (spec §4.6 step
// 3).
func resolveKernelVer(ctx context.Context, l rlog.Logger, crashCmd, vmcorePath string, kv *task.KernelVer) (task.KernelVer, error) {
	if kv != nil {
		return *kv, nil
	}

	argv, err := rshell.Argv(crashCmd)
	if err != nil {
		return task.KernelVer{}, rerrors.WithStackTrace(err)
	}

	argv = append(argv, "-s", vmcorePath)

	result, err := rshell.Run(ctx, l, argv[0], argv[1:], rshell.Options{Stdin: "sys\nquit\n"})
	if err != nil {
		return task.KernelVer{}, &rerrors.DebuggerFailureError{Tool: "crash", Detail: err.Error()}
	}

	release := parseKernelRelease(result.Stdout)
	if release == "" {
		return task.KernelVer{}, rerrors.Errorf("vmcore driver: could not determine kernel release")
	}

	return task.KernelVer{Release: release}, nil
}

// parseKernelRelease pulls the RELEASE value out of `crash sys` output,
// e.g. a line "RELEASE: 6.8.0-1.el9.x86_64".
func parseKernelRelease(sysOutput string) string {
	for _, line := range strings.Split(sysOutput, "\n") {
		line = strings.TrimSpace(line)

		if after, ok := strings.CutPrefix(line, "RELEASE:"); ok {
			return strings.TrimSpace(after)
		}
	}

	return ""
}

// crashInvocations builds the minimal and full argv vectors of spec
// §4.6 step 5, wrapped for the current backend.
func crashInvocations(backend Backend, h Handle, crashCmd, vmcorePath, vmlinux string) (minimal, full []string) {
	base, err := rshell.Argv(crashCmd)
	if err != nil {
		base = []string{crashCmd}
	}

	full = append(append([]string{}, base...), "-s", vmcorePath, vmlinux)
	minimal = append(append([]string{}, full...), "--minimal")

	return backend.WrapDebuggerArgv(h, minimal), backend.WrapDebuggerArgv(h, full)
}

// stripExtraPages re-runs makedumpfile to drop pages no longer needed
// for the identified kernel, logging the size delta (spec §4.6 step 8).
func stripExtraPages(ctx context.Context, l rlog.Logger, vmcorePath string, kv task.KernelVer) error {
	before, err := fileSize(vmcorePath)
	if err != nil {
		return err
	}

	stripped := vmcorePath + ".stripped"

	result, err := rshell.Run(ctx, l, "makedumpfile", []string{"--dump-level", "31", "-d", "31", "-x", kv.String(), vmcorePath, stripped}, rshell.Options{})
	if err != nil {
		return err
	}

	if result.ExitCode != 0 {
		os.Remove(stripped)
		return fmt.Errorf("makedumpfile: %s", result.Stderr)
	}

	if err := os.Rename(stripped, vmcorePath); err != nil {
		return rerrors.WithStackTrace(err)
	}

	after, err := fileSize(vmcorePath)
	if err != nil {
		return err
	}

	l.Infof("stripped extra pages from %s: %d -> %d bytes", vmcorePath, before, after)

	return nil
}

// ensureGroupReadable chmods the vmcore group-readable if it is not
// already (spec §4.6 step 9, non-fatal on failure).
func ensureGroupReadable(l rlog.Logger, vmcorePath string) error {
	info, err := os.Stat(vmcorePath)
	if err != nil {
		return rerrors.WithStackTrace(err)
	}

	if info.Mode().Perm()&0o040 != 0 {
		return nil
	}

	return os.Chmod(vmcorePath, info.Mode().Perm()|0o040)
}

// buildCrashrc renders the crashrc content of spec §4.6 step 10.
func buildCrashrc(vmlinux, resultsDir string) string {
	var b strings.Builder

	if vmlinux != "" {
		fmt.Fprintf(&b, "mod -S %s > /dev/null\n", filepath.Dir(vmlinux))
	}

	fmt.Fprintf(&b, "cd %s\n", resultsDir)

	return b.String()
}
