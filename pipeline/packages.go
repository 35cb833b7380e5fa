package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/abrt/retrace-worker/internal/rlog"
	"github.com/abrt/retrace-worker/internal/rshell"
	"github.com/abrt/retrace-worker/task"
)

// RepoPrefix prefixes the repository id written for coredump2packages
// (spec §4.3).
const RepoPrefix = "retrace-local-"

// Missing is one unresolved (soname, build-id) tuple (spec §4.3 section
// 2).
type Missing struct {
	Soname  string
	BuildID string
}

// PackageResolution is the result of resolving a coredump's required
// packages (spec §4.3).
type PackageResolution struct {
	Packages []string
	Missing  []Missing
}

// ResolvePackages runs coredump2packages (or reads a pre-supplied
// `packages` file) and parses its two-section output. Invoked only for
// user-coredump pipelines when debuginfod is disabled (spec §4.3).
func ResolvePackages(ctx context.Context, l rlog.Logger, crashDir, coredumpPath, repoDir string, release task.Release) (PackageResolution, error) {
	packagesFile := filepath.Join(crashDir, "packages")
	if isRegularFile(packagesFile) {
		raw, err := os.ReadFile(packagesFile)
		if err != nil {
			return PackageResolution{}, err
		}

		return PackageResolution{Packages: strings.Fields(string(raw))}, nil
	}

	repoFile, err := writeLocalRepoFile(crashDir, repoDir, release)
	if err != nil {
		return PackageResolution{}, err
	}

	configPath := filepath.Join(crashDir, "coredump2packages.conf")
	logPath := filepath.Join(crashDir, "coredump2packages.log")

	result, err := rshell.Run(ctx, l, "coredump2packages", []string{
		coredumpPath,
		"--repos=" + repoFile,
		"--config=" + configPath,
		"--log=" + logPath,
	}, rshell.Options{})
	if err != nil {
		return PackageResolution{}, err
	}

	if result.Stderr != "" {
		l.Warnf("coredump2packages stderr: %s", result.Stderr)
	}

	if result.ExitCode != 0 {
		return PackageResolution{}, rshellNonZero("coredump2packages", result)
	}

	return parseCoredump2Packages(result.Stdout, release.Distribution == "fedora"), nil
}

// writeLocalRepoFile writes a single local file-URL repo keyed
// `<REPO_PREFIX><release-id>` (spec §4.3).
func writeLocalRepoFile(crashDir, repoDir string, release task.Release) (string, error) {
	path := filepath.Join(crashDir, "coredump2packages-repos.conf")

	content := "[" + RepoPrefix + release.ID() + "]\n" +
		"name=" + RepoPrefix + release.ID() + "\n" +
		"baseurl=file://" + filepath.Join(repoDir, release.ID()) + "\n" +
		"enabled=1\n"

	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return "", err
	}

	return path, nil
}

// parseCoredump2Packages parses the two-section, blank-line-separated
// stdout contract of spec §4.3.
func parseCoredump2Packages(stdout string, fedora bool) PackageResolution {
	sections := strings.SplitN(stdout, "\n\n", 2)

	var res PackageResolution

	var sawDB4, sawLibDB bool

	for _, line := range strings.Split(sections[0], "\n") {
		name := strings.TrimSpace(line)
		if name == "" {
			continue
		}

		if fedora && strings.HasPrefix(name, "gnome") {
			res.Packages = append(res.Packages, name, "desktop-backgrounds-gnome")
			continue
		}

		if fedora && name == "db4-debuginfo" {
			if sawLibDB {
				continue
			}

			sawDB4 = true
		}

		if fedora && name == "libdb-debuginfo" {
			if sawDB4 {
				continue
			}

			sawLibDB = true
		}

		res.Packages = append(res.Packages, name)
	}

	if len(sections) < 2 {
		return res
	}

	for _, line := range strings.Split(sections[1], "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		fields := strings.Fields(line)
		if len(fields) != 2 {
			continue
		}

		soname := fields[0]
		if soname == "-" {
			soname = ""
		}

		res.Missing = append(res.Missing, Missing{Soname: soname, BuildID: fields[1]})
	}

	return res
}

func rshellNonZero(tool string, result rshell.Result) error {
	return &toolFailure{tool: tool, exitCode: result.ExitCode, stderr: result.Stderr}
}

// toolFailure reports a non-zero exit from one of the pipeline's
// external subprocess contracts (spec §6 "Subprocess contracts").
type toolFailure struct {
	tool     string
	exitCode int
	stderr   string
}

func (e *toolFailure) Error() string {
	return e.tool + " exited with code " + strconv.Itoa(e.exitCode) + ": " + e.stderr
}
