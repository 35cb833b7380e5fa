package pipeline

import (
	"context"

	"github.com/abrt/retrace-worker/internal/rlog"
	"github.com/abrt/retrace-worker/plugins"
	"github.com/abrt/retrace-worker/task"
)

// NativeBackend runs tooling directly on the host, performing no
// provisioning (spec §4.4 "Native backend").
type NativeBackend struct{}

var _ Backend = (*NativeBackend)(nil)

func (b *NativeBackend) Prepare(ctx context.Context, l rlog.Logger, t *task.Task, release task.Release, plugin *plugins.Plugin, packages []string) (Handle, error) {
	return Handle{Release: release, TaskID: t.ID, CrashDir: t.CrashDir}, nil
}

func (b *NativeBackend) WrapDebuggerArgv(h Handle, argv []string) []string {
	return argv
}

func (b *NativeBackend) Teardown(h Handle) error {
	return nil
}
