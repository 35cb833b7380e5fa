package notify_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/abrt/retrace-worker/notify"
)

func TestComposeSubject(t *testing.T) {
	t.Parallel()

	msg := notify.Compose("Retrace Server <noreply@example.com>", []string{"user@example.com"}, notify.TaskInfo{
		TaskID:    42,
		Host:      "worker1",
		Succeeded: true,
		Started:   time.Now(),
		Finished:  time.Now(),
	})

	require.Equal(t, "Retrace Task #42 on worker1 succeeded", msg.Subject)
	require.Contains(t, msg.Body, "Task #42")
}

func TestComposeFailedVmcoreIncludesRecoveryHint(t *testing.T) {
	t.Parallel()

	msg := notify.Compose("from@example.com", nil, notify.TaskInfo{
		TaskID:    7,
		Host:      "worker1",
		Succeeded: false,
		IsVmcore:  true,
		RepoDir:   "/var/cache/retrace/repos",
	})

	require.Contains(t, msg.Body, "retrace-server-task restart --kernelver")
	require.Contains(t, msg.Body, "/var/cache/retrace/repos/download/")
}

func TestComposeStripsFTPPrefixFromRemoteFiles(t *testing.T) {
	t.Parallel()

	msg := notify.Compose("from@example.com", nil, notify.TaskInfo{
		TaskID:     1,
		RemoteURLs: []string{"FTP ftp://example.com/crash.tar.gz"},
	})

	require.Contains(t, msg.Body, "Remote file: ftp://example.com/crash.tar.gz")
	require.NotContains(t, msg.Body, "FTP ftp://example.com/crash.tar.gz")
}

func TestSMTPSenderSkipsWithNoRecipients(t *testing.T) {
	t.Parallel()

	sender := &notify.SMTPSender{Addr: "localhost:0"}
	require.NoError(t, sender.Send(notify.Message{}))
}
