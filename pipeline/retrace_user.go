package pipeline

import (
	"context"
	"strings"

	"github.com/abrt/retrace-worker/internal/rerrors"
	"github.com/abrt/retrace-worker/internal/rlog"
	"github.com/abrt/retrace-worker/internal/rshell"
	"github.com/abrt/retrace-worker/task"
)

// RetraceUserResult is what RetraceUser hands back to the lifecycle:
// the textual backtrace always, and an exploitability verdict when GDB
// produced one (spec §4.5).
type RetraceUserResult struct {
	Backtrace   string
	Exploitable string
	HasVerdict  bool
}

// RetraceUser runs gdb.sh inside the prepared environment. The whole of
// its stdout is the backtrace; the exploitability verdict is the text
// after ExploitableSeparator (spec §4.5 "Retrace Driver — user
// coredump").
func RetraceUser(ctx context.Context, l rlog.Logger, backend Backend, h Handle, t *task.Task) (RetraceUserResult, error) {
	argv := backend.WrapDebuggerArgv(h, []string{"/usr/local/bin/gdb.sh", "/var/spool/abrt/crash/" + t.CustomExecutable})

	result, err := rshell.Run(ctx, l, argv[0], argv[1:], rshell.Options{})
	if err != nil {
		return RetraceUserResult{}, &rerrors.DebuggerFailureError{Tool: "gdb.sh", Detail: err.Error()}
	}

	if result.ExitCode != 0 {
		return RetraceUserResult{}, &rerrors.DebuggerFailureError{Tool: "gdb.sh", Detail: result.Stderr}
	}

	out := RetraceUserResult{Backtrace: result.Stdout}

	if verdict, ok := extractExploitableVerdict(result.Stdout); ok {
		out.Exploitable = verdict
		out.HasVerdict = true
	}

	return out, nil
}

// extractExploitableVerdict returns the text following
// ExploitableSeparator, trimmed, if that marker appears in output.
func extractExploitableVerdict(output string) (string, bool) {
	idx := strings.Index(output, ExploitableSeparator)
	if idx < 0 {
		return "", false
	}

	rest := output[idx+len(ExploitableSeparator):]
	rest = strings.TrimLeft(rest, "\n")
	verdict := strings.TrimSpace(rest)

	if verdict == "" {
		return "", false
	}

	return verdict, true
}
