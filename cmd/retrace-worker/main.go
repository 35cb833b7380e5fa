// Command retrace-worker runs a single task through the pipeline of
// spec §4: given a task id already laid out on disk by the submission
// layer, it drives that task from INIT to SUCCESS or FAIL and exits
// with a matching status code.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/abrt/retrace-worker/config"
	"github.com/abrt/retrace-worker/hooks"
	"github.com/abrt/retrace-worker/internal/rcache"
	"github.com/abrt/retrace-worker/internal/rerrors"
	"github.com/abrt/retrace-worker/internal/rlog"
	"github.com/abrt/retrace-worker/internal/rtelemetry"
	"github.com/abrt/retrace-worker/lifecycle"
	"github.com/abrt/retrace-worker/notify"
	"github.com/abrt/retrace-worker/pipeline"
	"github.com/abrt/retrace-worker/stats"
	"github.com/abrt/retrace-worker/task"
)

func main() {
	app := &cli.App{
		Name:  "retrace-worker",
		Usage: "run one retrace task to completion",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Value: "/etc/retrace-worker.hcl", Usage: "path to the HCL configuration file"},
			&cli.StringFlag{Name: "type", Value: string(task.TypeRetrace), Usage: "task type: RETRACE, RETRACE_INTERACTIVE, DEBUG, VMCORE, VMCORE_INTERACTIVE"},
			&cli.StringFlag{Name: "arch", Value: "x86_64", Usage: "crash architecture"},
			&cli.StringFlag{Name: "kernelver", Usage: "caller-supplied kernel release, skips auto-detection for vmcore tasks"},
			&cli.StringFlag{Name: "stats-dsn", Usage: "database/sql DSN for the crash-statistics database"},
			&cli.StringFlag{Name: "smtp-addr", Value: "localhost:25", Usage: "SMTP server address for task notifications"},
		},
		ArgsUsage: "<task-id>",
		Action:    runTask,
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitCodeFor(err))
	}
}

func runTask(c *cli.Context) error {
	if c.NArg() != 1 {
		return cli.Exit("exactly one task id is required", 2)
	}

	var taskID int
	if _, err := fmt.Sscanf(c.Args().First(), "%d", &taskID); err != nil {
		return cli.Exit(fmt.Sprintf("invalid task id %q", c.Args().First()), 2)
	}

	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return err
	}

	ctx := context.Background()

	shutdown, err := rtelemetry.Init(ctx, cfg.TelemetryEnabled)
	if err != nil {
		return err
	}
	defer shutdown(ctx)

	l := rlog.New(os.Stdout)

	store := task.NewStore(cfg.SaveDir)

	typ := task.Type(c.String("type"))

	t, err := store.Load(taskID, typ)
	if err != nil {
		return err
	}

	var kv *task.KernelVer
	if raw := c.String("kernelver"); raw != "" {
		kv = &task.KernelVer{Release: raw, Architecture: c.String("arch")}
	}

	var statsDB *stats.DB
	if dsn := c.String("stats-dsn"); dsn != "" {
		statsDB, err = stats.OpenDB(dsn)
		if err != nil {
			l.Warnf("crash statistics database unavailable: %v", err)
		} else {
			defer statsDB.Close()
		}
	}

	host, _ := os.Hostname()

	runner := &lifecycle.Runner{
		Store:       store,
		Cfg:         cfg,
		Images:      rcache.NewImageCache(),
		ActiveTasks: rcache.NewActiveTaskCounter(),
		Hooks:       hooks.NewRegistry(),
		StatsDB:     statsDB,
		Notifier:    &notify.SMTPSender{Addr: c.String("smtp-addr")},
		Debuginfo:   &pipeline.KernelDebuginfoPreparer{CacheDir: cfg.RepoDir + "/debuginfo-cache", Logger: l},
		Host:        host,
	}

	return runner.Start(ctx, l, t, kv, c.String("arch"))
}

// exitCodeFor maps a *rerrors.WorkerError's code onto a process exit
// status; any other error exits 1.
func exitCodeFor(err error) int {
	var workerErr *rerrors.WorkerError
	if errors.As(err, &workerErr) {
		return int(workerErr.Code)
	}

	var exitCoder cli.ExitCoder
	if errors.As(err, &exitCoder) {
		return exitCoder.ExitCode()
	}

	return 1
}
