package pipeline_test

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/abrt/retrace-worker/config"
	"github.com/abrt/retrace-worker/internal/rcache"
	"github.com/abrt/retrace-worker/pipeline"
)

func TestNewBackendDispatch(t *testing.T) {
	t.Parallel()

	images := rcache.NewImageCache()

	tests := []struct {
		env  config.Backend
		want string
	}{
		{config.BackendMock, "*pipeline.MockBackend"},
		{config.BackendPodman, "*pipeline.PodmanBackend"},
		{config.BackendNative, "*pipeline.NativeBackend"},
	}

	for _, tt := range tests {
		cfg := &config.RetraceConfig{RetraceEnvironment: tt.env}
		backend := pipeline.NewBackend(cfg, images)
		require.NotNil(t, backend)
		require.Equal(t, tt.want, fmt.Sprintf("%T", backend))
	}
}

func TestNativeBackendWrapsArgvUnchanged(t *testing.T) {
	t.Parallel()

	backend := &pipeline.NativeBackend{}
	argv := []string{"crash", "-s", "vmcore", "vmlinux"}

	require.Equal(t, argv, backend.WrapDebuggerArgv(pipeline.Handle{}, argv))
}

func TestPodmanBackendWrapsArgvWithExec(t *testing.T) {
	t.Parallel()

	backend := &pipeline.PodmanBackend{}
	h := pipeline.Handle{Container: "retrace-7"}

	got := backend.WrapDebuggerArgv(h, []string{"/usr/local/bin/gdb.sh"})
	require.Equal(t, []string{"podman", "exec", "retrace-7", "/usr/local/bin/gdb.sh"}, got)
}
