package pipeline

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestExtractExploitableVerdictFound(t *testing.T) {
	t.Parallel()

	output := "#0  0x00007f in foo ()\n#1  0x00007f in main ()\n" + ExploitableSeparator + "\nLikely exploitable, reason: stack overflow\n"

	verdict, ok := extractExploitableVerdict(output)
	require.True(t, ok)
	require.Equal(t, "Likely exploitable, reason: stack overflow", verdict)
}

func TestExtractExploitableVerdictAbsent(t *testing.T) {
	t.Parallel()

	_, ok := extractExploitableVerdict("#0  0x00007f in foo ()\n")
	require.False(t, ok)
}

func TestExtractExploitableVerdictEmptyAfterSeparator(t *testing.T) {
	t.Parallel()

	_, ok := extractExploitableVerdict("backtrace\n" + ExploitableSeparator + "\n\n")
	require.False(t, ok)
}
