// Package pipeline implements components C1 through C7 of the retrace
// task state machine of spec §4; the C8 task lifecycle that drives them
// sequentially per task lives in package lifecycle.
package pipeline

import (
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/abrt/retrace-worker/internal/rerrors"
	"github.com/abrt/retrace-worker/plugins"
	"github.com/abrt/retrace-worker/task"
)

// rpmNameRegex is the RPM-name grammar the raw `package` file must
// match (spec §4.1 read_package). NVR form: name-version-release.arch.
var rpmNameRegex = regexp.MustCompile(`^([A-Za-z0-9_.+-]+)-([A-Za-z0-9_.]+)-([A-Za-z0-9_.]+)\.([a-z0-9_]+)$`)

// ParsedPackage is the structured form of the raw `package` file.
type ParsedPackage struct {
	Raw     string
	Name    string
	Version string
	Release string
	Arch    string
}

// CheckRequired reports whether file is present under dir, applying the
// vmcore snapshot-suffix special case (spec §4.1, §8 property 2).
func CheckRequired(file, dir string) bool {
	path := filepath.Join(dir, file)
	if isRegularFile(path) {
		return true
	}

	if file != "vmcore" {
		return false
	}

	for _, suffix := range task.SnapshotSuffixes {
		if isRegularFile(path + suffix) {
			return true
		}
	}

	return false
}

func isRegularFile(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}

	return info.Mode().IsRegular()
}

// CheckAllRequired verifies every entry in task.RequiredFiles[typ] is
// present under dir (spec §8 property 2).
func CheckAllRequired(typ task.Type, dir string) error {
	for _, file := range task.RequiredFiles[typ] {
		if !CheckRequired(file, dir) {
			return &rerrors.MissingRequiredFileError{File: file, Dir: dir}
		}
	}

	return nil
}

// readCapped reads dir/name, truncated at the cap registered in
// task.AllowedFileCaps.
func readCapped(dir, name string) (string, error) {
	capBytes, ok := task.AllowedFileCaps[name]
	if !ok {
		capBytes = 4096
	}

	path := filepath.Join(dir, name)

	f, err := os.Open(path)
	if err != nil {
		return "", rerrors.WithStackTrace(err)
	}
	defer f.Close()

	buf := make([]byte, capBytes)

	n, err := io.ReadFull(f, buf)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return "", rerrors.WithStackTrace(err)
	}

	return strings.TrimRight(string(buf[:n]), "\n"), nil
}

// ReadPackage reads and validates dir/package (spec §4.1 read_package).
func ReadPackage(dir string) (ParsedPackage, error) {
	raw, err := readCapped(dir, "package")
	if err != nil {
		return ParsedPackage{}, err
	}

	m := rpmNameRegex.FindStringSubmatch(raw)
	if m == nil {
		return ParsedPackage{}, &rerrors.InvalidPackageNameError{Raw: raw}
	}

	parsed := ParsedPackage{Raw: raw, Name: m[1], Version: m[2], Release: m[3], Arch: m[4]}
	if parsed.Name == "" {
		return ParsedPackage{}, &rerrors.InvalidPackageNameError{Raw: raw}
	}

	return parsed, nil
}

// ReadRelease resolves a task's Release following the order documented
// in spec §4.1 read_release: rootdir-relative os_release, then
// os_release, then release; falling back to package-name guessing.
func ReadRelease(dir, arch string, pkg *ParsedPackage) (task.Release, *plugins.Plugin, error) {
	content, err := releaseContent(dir)
	if err != nil {
		return task.Release{}, nil, err
	}

	if content != "" {
		if r, p, ok := plugins.MatchRelease(content); ok {
			r.Architecture = arch
			return r, p, nil
		}
	}

	if pkg != nil {
		if r, p, ok := plugins.GuessFromPackage(pkg.Raw); ok {
			r.Architecture = arch
			return r, p, nil
		}
	}

	return task.Release{}, nil, &rerrors.UnknownReleaseError{Source: dir}
}

// releaseContent implements the rootdir/os_release_in_rootdir/os_release
// /release resolution order, and the executable-prefix-strip side
// effect (spec §4.1, §8 property 7).
func releaseContent(dir string) (content string, err error) {
	rootdirPath := filepath.Join(dir, "rootdir")

	if isRegularFile(rootdirPath) {
		rootdir, rErr := readCapped(dir, "rootdir")
		if rErr != nil {
			return "", rErr
		}

		executable, eErr := readCapped(dir, "executable")
		if eErr != nil {
			return "", eErr
		}

		if strings.HasPrefix(executable, rootdir) {
			stripped := strings.TrimPrefix(executable, rootdir)
			if writeErr := os.WriteFile(filepath.Join(dir, "executable"), []byte(stripped), 0o644); writeErr != nil {
				return "", rerrors.WithStackTrace(writeErr)
			}
		}

		if isRegularFile(filepath.Join(dir, "os_release_in_rootdir")) {
			return readCapped(dir, "os_release_in_rootdir")
		}
	}

	if isRegularFile(filepath.Join(dir, "os_release")) {
		return readCapped(dir, "os_release")
	}

	if isRegularFile(filepath.Join(dir, "release")) {
		return readCapped(dir, "release")
	}

	return "", nil
}
