package stats_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/abrt/retrace-worker/stats"
)

func TestOpenDBRejectsMalformedDSN(t *testing.T) {
	t.Parallel()

	_, err := stats.OpenDB("not a valid dsn \x00")
	require.Error(t, err)
}

func TestOpenDBFailsWhenUnreachable(t *testing.T) {
	t.Parallel()

	// Valid DSN syntax, but nothing listens on this port, so Ping must
	// fail and OpenDB must surface that instead of handing back a dead
	// connection.
	_, err := stats.OpenDB("retrace:retrace@tcp(127.0.0.1:1)/crashstats?timeout=1s")
	require.Error(t, err)
}

func TestBuildIDEntryFields(t *testing.T) {
	t.Parallel()

	entry := stats.BuildIDEntry{Soname: "libfoo.so.1", BuildID: "abcdef"}
	require.Equal(t, "libfoo.so.1", entry.Soname)
	require.Equal(t, "abcdef", entry.BuildID)
}
