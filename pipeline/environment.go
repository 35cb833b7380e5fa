package pipeline

import (
	"context"

	"github.com/abrt/retrace-worker/config"
	"github.com/abrt/retrace-worker/internal/rcache"
	"github.com/abrt/retrace-worker/internal/rlog"
	"github.com/abrt/retrace-worker/plugins"
	"github.com/abrt/retrace-worker/task"
)

// Handle is an opaque, backend-specific reference to a prepared
// analysis environment (spec §9 "three-way backend dispatch").
type Handle struct {
	Release   task.Release
	ConfigDir string
	CrashDir  string
	WorkDir   string
	TaskID    int
	Container string
}

// Backend is the small strategy interface spec §9 calls for: each
// concrete backend hides its file-writing and subprocess logic behind
// three operations.
type Backend interface {
	// Prepare materialises the analysis environment for release with
	// packages installed, returning a Handle used by the rest of the
	// pipeline.
	Prepare(ctx context.Context, l rlog.Logger, t *task.Task, release task.Release, plugin *plugins.Plugin, packages []string) (Handle, error)

	// WrapDebuggerArgv wraps argv so it executes inside h's environment
	// (spec §4.6 step 5, §4.4 gdb.sh invocation).
	WrapDebuggerArgv(h Handle, argv []string) []string

	// Teardown releases any resources Prepare acquired beyond the
	// cached, release-keyed image (spec §3 Lifecycles).
	Teardown(h Handle) error
}

// NewBackend dispatches on cfg.RetraceEnvironment (spec §4.4, §9).
func NewBackend(cfg *config.RetraceConfig, images *rcache.ImageCache) Backend {
	switch cfg.RetraceEnvironment {
	case config.BackendPodman:
		return &PodmanBackend{cfg: cfg, images: images}
	case config.BackendNative:
		return &NativeBackend{}
	default:
		return &MockBackend{cfg: cfg}
	}
}
