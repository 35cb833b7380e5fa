// Package rshell runs external subprocesses the way the rest of the
// pipeline needs them run: with captured stdout/stderr, optional piped
// stdin, and a working directory — the only concurrent actors the
// worker ever waits on (spec §5).
package rshell

import (
	"bytes"
	"context"
	"os/exec"
	"strings"

	"github.com/abrt/retrace-worker/internal/rlog"
	"github.com/abrt/retrace-worker/internal/rtelemetry"
)

// Options configures a single subprocess invocation.
type Options struct {
	WorkingDir string
	Stdin      string
	Env        []string
}

// Result captures everything a caller of the pipeline's debugger/build
// tooling needs to make a pass/fail decision.
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// Run executes name with args, waits for completion and returns the
// captured result. A non-zero exit is reported via ExitCode, not err;
// err is reserved for failures to even start the process.
func Run(ctx context.Context, l rlog.Logger, name string, args []string, opts Options) (Result, error) {
	var result Result

	traceErr := rtelemetry.Trace(ctx, "rshell.Run", map[string]interface{}{
		"command": name,
	}, func(ctx context.Context) error {
		l.Debugf("running %s %s", name, strings.Join(args, " "))

		cmd := exec.CommandContext(ctx, name, args...)
		cmd.Dir = opts.WorkingDir
		cmd.Env = opts.Env

		if opts.Stdin != "" {
			cmd.Stdin = strings.NewReader(opts.Stdin)
		}

		var stdout, stderr bytes.Buffer
		cmd.Stdout = &stdout
		cmd.Stderr = &stderr

		err := cmd.Run()

		result.Stdout = stdout.String()
		result.Stderr = stderr.String()
		result.ExitCode = exitCodeOf(err)

		if result.Stderr != "" {
			l.Debugf("%s stderr: %s", name, result.Stderr)
		}

		if err != nil {
			if _, isExit := err.(*exec.ExitError); isExit {
				return nil
			}

			return err
		}

		return nil
	})

	return result, traceErr
}

func exitCodeOf(err error) int {
	if err == nil {
		return 0
	}

	if exitErr, ok := err.(*exec.ExitError); ok {
		return exitErr.ExitCode()
	}

	return -1
}

// Argv splits a configured command-line string (e.g. a custom crash
// command or crash utility invocation) into an argv vector using shell
// quoting rules, per spec §4.6 step 5.
func Argv(line string) ([]string, error) {
	return shlexSplit(line)
}
