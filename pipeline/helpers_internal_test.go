package pipeline

import (
	"github.com/abrt/retrace-worker/config"
	"github.com/abrt/retrace-worker/task"
)

func testFedoraRelease() task.Release {
	return task.Release{Distribution: task.DistroFedora, Version: "38", Architecture: "x86_64"}
}

func testCfg() *config.RetraceConfig {
	return &config.RetraceConfig{RepoDir: "/var/cache/retrace/repos"}
}
