package plugins_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/abrt/retrace-worker/plugins"
	"github.com/abrt/retrace-worker/task"
)

func TestMatchRelease(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		content    string
		wantDistro task.Distribution
		wantVer    string
		wantRaw    bool
		wantPre    string
	}{
		{
			name:       "fedora release",
			content:    "Fedora release 38 (Thirty Eight)",
			wantDistro: task.DistroFedora,
			wantVer:    "38",
		},
		{
			name:       "fedora rawhide",
			content:    "Fedora release 41 (Rawhide)",
			wantDistro: task.DistroFedora,
			wantVer:    "rawhide",
			wantRaw:    true,
			wantPre:    "40",
		},
		{
			name:       "rhel release",
			content:    "Red Hat Enterprise Linux release 9.3 (Plow)",
			wantDistro: task.DistroRHEL,
			wantVer:    "9.3",
		},
		{
			name:       "centos release",
			content:    "CentOS Linux release 7.9.2009 (Core)",
			wantDistro: task.DistroCentOS,
			wantVer:    "7",
		},
		{
			name:    "unrecognised",
			content: "Some Other OS release 1",
		},
	}

	for _, tt := range tests {
		tt := tt

		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			release, p, ok := plugins.MatchRelease(tt.content)
			if tt.wantDistro == "" {
				require.False(t, ok)
				return
			}

			require.True(t, ok)
			require.NotNil(t, p)
			require.Equal(t, tt.wantDistro, release.Distribution)
			require.Equal(t, tt.wantVer, release.Version)
			require.Equal(t, tt.wantRaw, release.IsRawhide)
			require.Equal(t, tt.wantPre, release.PreRawhideVersion)
		})
	}
}

func TestGuessFromPackage(t *testing.T) {
	t.Parallel()

	release, p, ok := plugins.GuessFromPackage("firefox-115.0-1.fc38.x86_64")
	require.True(t, ok)
	require.Equal(t, task.DistroFedora, release.Distribution)
	require.Equal(t, "38", release.Version)
	require.Equal(t, "gdb", p.GDBPackage)

	_, _, ok = plugins.GuessFromPackage("not-a-recognised-nvr")
	require.False(t, ok)
}

func TestGPGKeys(t *testing.T) {
	t.Parallel()

	p := plugins.Registry[0]

	release := task.Release{Version: "41", IsRawhide: true, PreRawhideVersion: "40"}
	keys := plugins.GPGKeys(p, release, "file://")

	require.Contains(t, keys, "file:///etc/pki/rpm-gpg/RPM-GPG-KEY-fedora-41-x86_64")
	require.Contains(t, keys, "file:///etc/pki/rpm-gpg/RPM-GPG-KEY-fedora-40-x86_64")
}
