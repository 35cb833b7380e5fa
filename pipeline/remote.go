package pipeline

import (
	"context"
	"path/filepath"

	"github.com/hashicorp/go-getter"
	"github.com/hashicorp/go-multierror"

	"github.com/abrt/retrace-worker/internal/rlog"
)

// DownloadRemote fetches each of urls into crashDir using go-getter's
// file/http/s3 detection, one file at a time. Individual failures are
// collected and logged but never fatal (spec §4.8 "start": "triggers
// remote download (best-effort; individual download errors are logged
// but do not fail the task)").
func DownloadRemote(ctx context.Context, l rlog.Logger, crashDir string, urls []string) {
	var errs *multierror.Error

	for _, url := range urls {
		dst := filepath.Join(crashDir, filepath.Base(url))

		client := &getter.Client{
			Ctx:  ctx,
			Src:  url,
			Dst:  dst,
			Pwd:  crashDir,
			Mode: getter.ClientModeFile,
		}

		if err := client.Get(); err != nil {
			errs = multierror.Append(errs, err)
			l.Warnf("download_remote: %s: %v", url, err)
		}
	}

	if errs.ErrorOrNil() != nil {
		l.Warnf("download_remote: %d of %d files failed", len(errs.Errors), len(urls))
	}
}
