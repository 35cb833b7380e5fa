package pipeline

import (
	"os"
	"regexp"

	"github.com/abrt/retrace-worker/internal/rlog"
)

var md5HexRegex = regexp.MustCompile(`^[0-9a-fA-F]{32}$`)

// DedupVmcore hardlinks self's vmcore onto primary's when both describe
// the same bytes, reclaiming self's disk usage (spec §4.7 "Vmcore
// Deduplicator"). It returns the number of bytes saved, or 0 on any
// failure or skip path; it never returns an error, matching the
// original's "log and abort" contract (spec §7 "Integrity mismatch").
func DedupVmcore(l rlog.Logger, selfPath, selfMD5 string, primaryPath, primaryMD5 string) int64 {
	selfInfo, err := os.Stat(selfPath)
	if err != nil {
		l.Warnf("dedup: stat %s: %v", selfPath, err)
		return 0
	}

	primaryInfo, err := os.Stat(primaryPath)
	if err != nil {
		l.Warnf("dedup: stat %s: %v", primaryPath, err)
		return 0
	}

	if os.SameFile(selfInfo, primaryInfo) {
		return 0
	}

	if selfInfo.Size() != primaryInfo.Size() {
		return 0
	}

	if !md5HexRegex.MatchString(selfMD5) || !md5HexRegex.MatchString(primaryMD5) {
		return 0
	}

	if selfMD5 != primaryMD5 {
		return 0
	}

	linkPath := selfPath + "-link"

	if err := os.Link(primaryPath, linkPath); err != nil {
		l.Warnf("dedup: link %s -> %s: %v", linkPath, primaryPath, err)
		return 0
	}

	if err := os.Remove(selfPath); err != nil {
		l.Warnf("dedup: unlink %s: %v", selfPath, err)
		os.Remove(linkPath)
		return 0
	}

	if err := os.Rename(linkPath, selfPath); err != nil {
		l.Warnf("dedup: rename %s -> %s: %v", linkPath, selfPath, err)
		os.Remove(linkPath)
		return 0
	}

	return selfInfo.Size()
}
