// Package lifecycle drives one task through the status DAG of spec
// §4.8: INIT → ANALYZE → BACKTRACE → CLEANUP → STATS → SUCCESS, or a
// shortcut to FAIL from any state. It is the orchestrator that wires
// together C1 through C7 (package pipeline), the hook registry, crash
// statistics persistence, and e-mail notification.
package lifecycle

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/abrt/retrace-worker/config"
	"github.com/abrt/retrace-worker/hooks"
	"github.com/abrt/retrace-worker/internal/rcache"
	"github.com/abrt/retrace-worker/internal/rerrors"
	"github.com/abrt/retrace-worker/internal/rlog"
	"github.com/abrt/retrace-worker/internal/rtelemetry"
	"github.com/abrt/retrace-worker/notify"
	"github.com/abrt/retrace-worker/pipeline"
	"github.com/abrt/retrace-worker/plugins"
	"github.com/abrt/retrace-worker/stats"
	"github.com/abrt/retrace-worker/task"
)

// Runner holds every collaborator a task run needs, threaded explicitly
// instead of read off package globals (spec §9, mirroring the teacher's
// explicit-options-over-globals convention).
type Runner struct {
	Store       *task.Store
	Cfg         *config.RetraceConfig
	Images      *rcache.ImageCache
	ActiveTasks *rcache.ActiveTaskCounter
	Hooks       *hooks.Registry
	StatsDB     *stats.DB
	Notifier    notify.Sender
	Debuginfo   pipeline.DebuginfoPreparer
	Host        string
}

// statsAccum is the in-flight record built up over a single run,
// mirroring the original's self.stats dict (spec §4.8 "start").
type statsAccum struct {
	taskID     int
	starttime  time.Time
	status     string
	pkg        string
	version    string
	arch       string
	prerunning int
	pkgList    []string
	missing    []pipeline.Missing
}

// Start runs start(kernelver?, arch?) through either success or the
// fail path, returning a *rerrors.WorkerError on any fatal condition
// (spec §4.8 "start").
func (r *Runner) Start(ctx context.Context, l rlog.Logger, t *task.Task, kv *task.KernelVer, arch string) error {
	fh, err := rlog.AttachFile(l, t.LogFile)
	if err == nil {
		defer fh.Detach()
	}

	hooks.Run(r.Hooks, l, hooks.PreStart, t)

	acc := &statsAccum{
		taskID:     t.ID,
		starttime:  time.Now(),
		status:     task.StatusFail.String(),
		prerunning: r.ActiveTasks.Begin() - 1,
	}
	defer r.ActiveTasks.End()

	started := time.Now()
	t.Started = &started

	hooks.Run(r.Hooks, l, hooks.Start, t)

	pipeline.DownloadRemote(ctx, l, t.CrashDir, t.RemoteURLs)

	overlayCustomFiles(t)

	if err := pipeline.CheckAllRequired(t.Type, t.CrashDir); err != nil {
		return r.fail(ctx, l, t, acc, err)
	}

	runErr := rtelemetry.Trace(ctx, "lifecycle.run", map[string]interface{}{
		"task_id": t.ID,
		"type":    string(t.Type),
	}, func(ctx context.Context) error {
		switch t.Type {
		case task.TypeVmcore, task.TypeVmcoreInteractive:
			return r.runVmcore(ctx, l, t, acc, kv)
		default:
			return r.runUserRetrace(ctx, l, t, acc, arch)
		}
	})
	if runErr != nil {
		return r.fail(ctx, l, t, acc, runErr)
	}

	return r.succeed(ctx, l, t, acc)
}

// overlayCustomFiles copies custom_executable / custom_package /
// custom_os_release from the task into its crash directory (spec §4.8
// "start").
func overlayCustomFiles(t *task.Task) {
	overlay := func(name, content string) {
		if content == "" {
			return
		}

		path := t.CrashDir + "/" + name
		_ = os.WriteFile(path, []byte(content), 0o644)
	}

	overlay("executable", t.CustomExecutable)
	overlay("package", t.CustomPackage)
	overlay("os_release", t.CustomOSRelease)
}

func (r *Runner) runUserRetrace(ctx context.Context, l rlog.Logger, t *task.Task, acc *statsAccum, arch string) error {
	t.SetStatus(task.StatusAnalyze)
	l.Infof(task.StatusAnalyze.String())

	pkg, err := pipeline.ReadPackage(t.CrashDir)
	if err != nil {
		return err
	}

	acc.pkg, acc.version, acc.arch = pkg.Name, pkg.Version+"-"+pkg.Release, pkg.Arch

	release, plugin, err := pipeline.ReadRelease(t.CrashDir, arch, &pkg)
	if err != nil {
		return err
	}

	hooks.Run(r.Hooks, l, hooks.PrePrepareDebuginfo, t)

	resolution, err := pipeline.ResolvePackages(ctx, l, t.CrashDir, t.CrashDir+"/coredump", r.Cfg.RepoDir, release)
	if err != nil {
		return err
	}

	hooks.Run(r.Hooks, l, hooks.PostPrepareDebuginfo, t)

	hooks.Run(r.Hooks, l, hooks.PrePrepareEnvironment, t)

	backend := pipeline.NewBackend(r.Cfg, r.Images)

	h, err := backend.Prepare(ctx, l, t, release, plugin, resolution.Packages)
	if err != nil {
		return err
	}

	hooks.Run(r.Hooks, l, hooks.PostPrepareEnvironment, t)

	t.SetStatus(task.StatusBacktrace)
	l.Infof(task.StatusBacktrace.String())

	hooks.Run(r.Hooks, l, hooks.PreRetrace, t)

	result, err := pipeline.RetraceUser(ctx, l, backend, h, t)
	if err != nil {
		return err
	}

	hooks.Run(r.Hooks, l, hooks.PostRetrace, t)

	t.CrashRC = result.Backtrace

	if result.HasVerdict {
		if err := r.Store.WriteResult(t, task.ResultKeyExploitable, []byte(result.Exploitable)); err != nil {
			l.Warnf("could not persist exploitable verdict: %v", err)
		}
	}

	if len(resolution.Packages) > 0 {
		acc.pkgList = resolution.Packages
	}

	acc.missing = resolution.Missing

	return r.cleanupAndStats(ctx, l, t, acc)
}

// guessVmcoreRelease resolves the distribution/version to build the
// per-task vmcore container against, preferring an os_release file in
// the crash directory and falling back to the custom package name, then
// to a bare Fedora default.
func guessVmcoreRelease(t *task.Task) task.Release {
	if release, _, err := pipeline.ReadRelease(t.CrashDir, "x86_64", nil); err == nil {
		return release
	}

	if t.CustomPackage != "" {
		if release, _, ok := plugins.GuessFromPackage(t.CustomPackage); ok {
			return release
		}
	}

	return task.Release{Distribution: task.DistroFedora, Version: "latest", Architecture: "x86_64"}
}

func (r *Runner) runVmcore(ctx context.Context, l rlog.Logger, t *task.Task, acc *statsAccum, kv *task.KernelVer) error {
	t.SetStatus(task.StatusAnalyze)
	l.Infof(task.StatusAnalyze.String())

	release := guessVmcoreRelease(t)

	hooks.Run(r.Hooks, l, hooks.PrePrepareEnvironment, t)

	backend := pipeline.NewBackend(r.Cfg, r.Images)

	var (
		h   pipeline.Handle
		err error
	)

	if vmcoreBackend, ok := backend.(pipeline.VmcoreBackend); ok {
		h, err = vmcoreBackend.PrepareVmcore(ctx, l, t, release, t.CrashDir+"/vmcore")
	} else {
		h, err = backend.Prepare(ctx, l, t, release, nil, nil)
	}
	if err != nil {
		return err
	}

	hooks.Run(r.Hooks, l, hooks.PostPrepareEnvironment, t)

	t.SetStatus(task.StatusBacktrace)
	l.Infof(task.StatusBacktrace.String())

	hooks.Run(r.Hooks, l, hooks.PreRetrace, t)

	crashCmd := t.CustomCrashCommand
	if crashCmd == "" {
		crashCmd = "crash"
	}

	result, err := pipeline.VmcoreDriver(ctx, l, backend, h, t, crashCmd, r.Debuginfo, kv)
	if err != nil {
		return err
	}

	hooks.Run(r.Hooks, l, hooks.PostRetrace, t)

	t.CrashRC = result.Crashrc

	if result.HasSys {
		if err := r.Store.WriteResult(t, task.ResultKeySys, []byte(result.Sys)); err != nil {
			l.Warnf("could not persist sys dump: %v", err)
		}
	} else if result.DowngradeMinimal {
		t.CustomCrashCommand = crashCmd + " --minimal"
	}

	return r.cleanupAndStats(ctx, l, t, acc)
}

// cleanupAndStats runs the conditional cleanup shared by both pipelines
// (CLEANUP status and clean_task, skipped for interactive/debug types).
// It does not persist statistics; Start runs the success path through
// succeed once the pipeline has returned (spec §4.8 "Success path").
func (r *Runner) cleanupAndStats(ctx context.Context, l rlog.Logger, t *task.Task, acc *statsAccum) error {
	if t.Type != task.TypeDebug && t.Type != task.TypeRetraceInteractive && t.Type != task.TypeVmcoreInteractive {
		t.SetStatus(task.StatusCleanup)
		l.Infof(task.StatusCleanup.String())

		hooks.Run(r.Hooks, l, hooks.PreCleanTask, t)

		if err := r.Store.Clean(t); err != nil {
			l.Warnf("clean_task failed: %v", err)
		}

		hooks.Run(r.Hooks, l, hooks.PostCleanTask, t)
	}

	return nil
}

// succeed finishes a task that reached the end of its pipeline without
// error: STATS then SUCCESS (spec §4.8 "Success path").
func (r *Runner) succeed(ctx context.Context, l rlog.Logger, t *task.Task, acc *statsAccum) error {
	t.SetStatus(task.StatusStats)
	l.Infof(task.StatusStats.String())

	finished := time.Now()
	t.Finished = &finished
	duration := int(finished.Sub(acc.starttime).Seconds())

	l.Infof("crash statistics: taskid=%d package=%s version=%s arch=%s duration=%ds", t.ID, acc.pkg, acc.version, acc.arch, duration)

	r.persistSuccessStats(l, t, acc, duration)

	l.Infof("retrace took %d seconds", duration)
	l.Infof(task.StatusSuccess.String())
	t.SetStatus(task.StatusSuccess)

	hooks.Run(r.Hooks, l, hooks.Success, t)

	if r.Cfg.EmailNotify && len(t.Notify) > 0 {
		r.notify(l, t, true)
	}

	return nil
}

func (r *Runner) persistSuccessStats(l rlog.Logger, t *task.Task, acc *statsAccum, duration int) {
	if r.StatsDB == nil {
		return
	}

	rec := stats.Record{
		TaskID:    t.ID,
		StartTime: acc.starttime,
		Status:    task.StatusSuccess.String(),
		Package:   acc.pkg,
		Version:   acc.version,
		Arch:      acc.arch,
		Duration:  duration,
	}

	statsID, err := r.StatsDB.SaveCrashstats(rec)
	if err != nil {
		l.Warnf("save_crashstats failed: %v", err)
		return
	}

	if err := r.StatsDB.SaveCrashstatsSuccess(statsID, acc.prerunning, r.ActiveTasks.Count(), 0, duration); err != nil {
		l.Warnf("save_crashstats_success failed: %v", err)
	}

	// Package list's first entry, the crash's own package, is excluded
	// from persisted packages (spec §8 property 4).
	if len(acc.pkgList) > 1 {
		if err := r.StatsDB.SaveCrashstatsPackages(statsID, acc.pkgList[1:]); err != nil {
			l.Warnf("save_crashstats_packages failed: %v", err)
		}
	}

	if len(acc.missing) > 0 {
		entries := make([]stats.BuildIDEntry, len(acc.missing))
		for i, m := range acc.missing {
			entries[i] = stats.BuildIDEntry{Soname: m.Soname, BuildID: m.BuildID}
		}

		if err := r.StatsDB.SaveCrashstatsBuildIDs(statsID, entries); err != nil {
			l.Warnf("save_crashstats_build_ids failed: %v", err)
		}
	}
}

// fail runs the fail path of spec §4.8: status FAIL, finished time,
// notification, log symlink, stats persistence (warn-only), conditional
// cleanup, the fail hook, and a typed worker error.
func (r *Runner) fail(ctx context.Context, l rlog.Logger, t *task.Task, acc *statsAccum, cause error) error {
	t.SetStatus(task.StatusFail)

	finished := time.Now()
	t.Finished = &finished

	if r.Cfg.EmailNotify && len(t.Notify) > 0 {
		r.notify(l, t, false)
	}

	symlinkLog(l, t)

	duration := int(finished.Sub(acc.starttime).Seconds())

	if r.StatsDB != nil {
		rec := stats.Record{
			TaskID:    t.ID,
			StartTime: acc.starttime,
			Status:    task.StatusFail.String(),
			Package:   acc.pkg,
			Version:   acc.version,
			Arch:      acc.arch,
			Duration:  duration,
		}

		if _, err := r.StatsDB.SaveCrashstats(rec); err != nil {
			l.Warnf("save_crashstats failed: %v", err)
		}
	}

	if t.Type != task.TypeDebug && t.Type != task.TypeRetraceInteractive && t.Type != task.TypeVmcoreInteractive {
		if err := r.Store.Clean(t); err != nil {
			l.Warnf("clean_task failed: %v", err)
		}
	}

	hooks.Run(r.Hooks, l, hooks.Fail, t)

	return &rerrors.WorkerError{TaskID: t.ID, Code: codeFor(cause), Cause: cause}
}

func codeFor(err error) rerrors.Code {
	switch err.(type) {
	case *rerrors.MissingRequiredFileError, *rerrors.OversizeFileError, *rerrors.InvalidPackageNameError, *rerrors.UnknownReleaseError:
		return rerrors.CodeInputInvalid
	case *rerrors.UnsupportedReleaseError:
		return rerrors.CodeResourceMissing
	case *rerrors.EnvironmentBuildError:
		return rerrors.CodeEnvironmentBuild
	case *rerrors.DebuggerFailureError, *rerrors.SmallKernelLogError:
		return rerrors.CodeDebuggerFailure
	default:
		return rerrors.CodeInternal
	}
}

// symlinkLog symlinks the task's log into its results directory as
// retrace-log, ignoring "already exists" (spec §4.8 "Fail path").
func symlinkLog(l rlog.Logger, t *task.Task) {
	if t.LogFile == "" {
		return
	}

	target := t.ResultsDir + "/retrace-log"

	if err := os.Symlink(t.LogFile, target); err != nil && !os.IsExist(err) {
		l.Warnf("could not symlink retrace-log: %v", err)
	}
}

func (r *Runner) notify(l rlog.Logger, t *task.Task, succeeded bool) {
	if r.Notifier == nil {
		return
	}

	var started, finished time.Time
	if t.Started != nil {
		started = *t.Started
	}
	if t.Finished != nil {
		finished = *t.Finished
	}

	var logContent string
	if raw, err := os.ReadFile(t.LogFile); err == nil {
		logContent = string(raw)
	}

	msg := notify.Compose(fmt.Sprintf("Retrace Server <%s>", r.Cfg.EmailNotifyFrom), t.Notify, notify.TaskInfo{
		TaskID:     t.ID,
		Host:       r.Host,
		Succeeded:  succeeded,
		SaveDir:    t.SaveDir,
		Started:    started,
		Finished:   finished,
		MD5:        t.MD5,
		RemoteURLs: t.RemoteURLs,
		Log:        logContent,
		RepoDir:    r.Cfg.RepoDir,
		IsVmcore:   t.Type == task.TypeVmcore || t.Type == task.TypeVmcoreInteractive,
	})

	if err := r.Notifier.Send(msg); err != nil {
		l.Warnf("failed to send e-mail: %v", err)
	}
}
