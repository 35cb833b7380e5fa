// Package plugins is the closed set of distribution strategies spec §9
// calls for in place of the original's dynamic plugin-module registry:
// each value carries a release-name regex, a package-name fallback
// regex, GPG-key templates, and the GDB binary/package for that
// distribution.
package plugins

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/abrt/retrace-worker/task"
)

// Plugin is one distribution strategy (spec §9).
type Plugin struct {
	Distribution task.Distribution

	// ReleaseRegex matches release-file contents, e.g. os_release, and
	// must capture a "version" named group.
	ReleaseRegex *regexp.Regexp

	// PackageRegex is the second-chance, name-based guess (spec §4.1
	// read_release fallback).
	PackageRegex *regexp.Regexp

	// GPGKeyTemplates are `fmt`-style templates that may contain a
	// single "%s" for the release version; a template without "%s" is
	// used as is (spec §4.4 "GPG-key string construction").
	GPGKeyTemplates []string

	GDBBinary  string
	GDBPackage string
}

// Registry is the ordered, first-match list of known plugins.
var Registry = []*Plugin{
	{
		Distribution:    task.DistroFedora,
		ReleaseRegex:    regexp.MustCompile(`(?i)Fedora release (?P<version>\d+)(?:\s*\(Rawhide\))?`),
		PackageRegex:    regexp.MustCompile(`\.fc(?P<version>\d+)\.`),
		GPGKeyTemplates: []string{"/etc/pki/rpm-gpg/RPM-GPG-KEY-fedora-%s-x86_64"},
		GDBBinary:       "gdb",
		GDBPackage:      "gdb",
	},
	{
		Distribution:    task.DistroRHEL,
		ReleaseRegex:    regexp.MustCompile(`(?i)Red Hat Enterprise Linux.*release (?P<version>\d+(?:\.\d+)?)`),
		PackageRegex:    regexp.MustCompile(`\.el(?P<version>\d+)\.`),
		GPGKeyTemplates: []string{"/etc/pki/rpm-gpg/RPM-GPG-KEY-redhat-release"},
		GDBBinary:       "gdb",
		GDBPackage:      "gdb",
	},
	{
		Distribution:    task.DistroCentOS,
		ReleaseRegex:    regexp.MustCompile(`(?i)CentOS.*release (?P<version>\d+)`),
		PackageRegex:    regexp.MustCompile(`\.el(?P<version>\d+)\.centos\.`),
		GPGKeyTemplates: []string{"/etc/pki/rpm-gpg/RPM-GPG-KEY-CentOS-%s"},
		GDBBinary:       "gdb",
		GDBPackage:      "gdb",
	},
}

// MatchRelease tries every plugin's ReleaseRegex against content, in
// registry order, returning the first match and the plugin that
// produced it (spec §4.1 read_release, §9 "first-match on
// release-name parsing").
func MatchRelease(content string) (task.Release, *Plugin, bool) {
	for _, p := range Registry {
		m := p.ReleaseRegex.FindStringSubmatch(content)
		if m == nil {
			continue
		}

		version := submatch(p.ReleaseRegex, m, "version")

		return normalizeRawhide(task.Release{
			Distribution: p.Distribution,
			Version:      version,
			ReleaseName:  content,
		}), p, true
	}

	return task.Release{}, nil, false
}

// GuessFromPackage is the second-chance lookup of spec §2/§4.1, matching
// a package's NVR against each plugin's PackageRegex.
func GuessFromPackage(pkg string) (task.Release, *Plugin, bool) {
	for _, p := range Registry {
		m := p.PackageRegex.FindStringSubmatch(pkg)
		if m == nil {
			continue
		}

		version := submatch(p.PackageRegex, m, "version")

		return task.Release{
			Distribution: p.Distribution,
			Version:      version,
		}, p, true
	}

	return task.Release{}, nil, false
}

func submatch(re *regexp.Regexp, m []string, name string) string {
	for i, n := range re.SubexpNames() {
		if n == name && i < len(m) {
			return m[i]
		}
	}

	return ""
}

// normalizeRawhide applies the rawhide remap: a version containing
// "rawhide" (case-insensitive) is rewritten to the literal "rawhide"
// and the preceding integer version is retained for GPG-key fallback
// (spec §3, §8 property 3).
func normalizeRawhide(r task.Release) task.Release {
	if !strings.Contains(strings.ToLower(r.Version), "rawhide") && !strings.Contains(strings.ToLower(r.ReleaseName), "rawhide") {
		return r
	}

	r.IsRawhide = true

	n, err := strconv.Atoi(r.Version)
	if err == nil {
		r.PreRawhideVersion = strconv.Itoa(n - 1)
	}

	r.Version = "rawhide"

	return r
}

// GPGKeys constructs the space-separated GPG-key string for p and r,
// applying the scheme prefix and the rawhide fallback-key append (spec
// §4.4 "GPG-key string construction", §8 property/scenario S6).
func GPGKeys(p *Plugin, r task.Release, scheme string) string {
	if scheme == "" {
		scheme = "file://"
	}

	var keys []string

	for _, tmpl := range p.GPGKeyTemplates {
		keys = append(keys, scheme+renderKeyTemplate(tmpl, r.Version))
	}

	if r.PreRawhideVersion != "" && len(p.GPGKeyTemplates) > 0 {
		keys = append(keys, scheme+renderKeyTemplate(p.GPGKeyTemplates[0], r.PreRawhideVersion))
	}

	return strings.Join(keys, " ")
}

func renderKeyTemplate(tmpl, version string) string {
	if strings.Contains(tmpl, "%s") {
		return fmt.Sprintf(tmpl, version)
	}

	return tmpl
}
