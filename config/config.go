// Package config loads the worker's configuration file, mapping the
// recognized keys of spec §6 onto HCL attributes (hashicorp/hcl/v2,
// the same library the teacher uses for its own root config).
package config

import (
	"github.com/hashicorp/hcl/v2/hclsimple"

	"github.com/abrt/retrace-worker/internal/rerrors"
)

// Backend is the configured analysis environment strategy.
type Backend string

const (
	BackendMock   Backend = "mock"
	BackendPodman Backend = "podman"
	BackendNative Backend = "native"
)

// RetraceConfig mirrors the "Configuration (recognized keys)" table of
// spec §6, plus a small set of ambient additions (ambient ledger in
// SPEC_FULL.md).
type RetraceConfig struct {
	EmailNotify     bool   `hcl:"email_notify,optional"`
	EmailNotifyFrom string `hcl:"email_notify_from,optional"`

	RepoDir         string `hcl:"repo_dir"`
	RequireGPGCheck bool   `hcl:"require_gpg_check,optional"`

	UseFafPackages bool   `hcl:"use_faf_packages,optional"`
	FafLinkDir     string `hcl:"faf_link_dir,optional"`

	RetraceEnvironment Backend `hcl:"retrace_environment,optional"`
	SaveDir            string  `hcl:"save_dir"`
	KernelChrootRepo   string  `hcl:"kernel_chroot_repo,optional"`
	AuthGroup          string  `hcl:"auth_group,optional"`

	// Ambient additions.
	LogDir           string `hcl:"log_dir,optional"`
	TelemetryEnabled bool   `hcl:"telemetry_enabled,optional"`

	// ImageCacheTTL is reserved and currently unused; see DESIGN.md's
	// open-question entry mirroring spec §9's "rootsize" note.
	ImageCacheTTL int `hcl:"image_cache_ttl_seconds,optional"`
}

// Load parses path as HCL into a RetraceConfig and validates it.
func Load(path string) (*RetraceConfig, error) {
	cfg := &RetraceConfig{RetraceEnvironment: BackendMock}

	if err := hclsimple.DecodeFile(path, nil, cfg); err != nil {
		return nil, rerrors.WithStackTrace(err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate enforces which keys are required for the configured backend.
func (cfg *RetraceConfig) Validate() error {
	if cfg.RepoDir == "" {
		return rerrors.Errorf("config: repo_dir is required")
	}

	switch cfg.RetraceEnvironment {
	case BackendMock, BackendPodman, BackendNative:
	default:
		return rerrors.Errorf("config: retrace_environment %q is not one of mock, podman, native", cfg.RetraceEnvironment)
	}

	if cfg.RetraceEnvironment == BackendMock && cfg.SaveDir == "" {
		return rerrors.Errorf("config: save_dir is required when retrace_environment is mock")
	}

	if cfg.UseFafPackages && cfg.FafLinkDir == "" {
		return rerrors.Errorf("config: faf_link_dir is required when use_faf_packages is set")
	}

	if cfg.EmailNotify && cfg.EmailNotifyFrom == "" {
		return rerrors.Errorf("config: email_notify_from is required when email_notify is set")
	}

	return nil
}
