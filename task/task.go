// Package task defines the task descriptor and the small closed data
// tables (§6 REQUIRED_FILES, ALLOWED_FILES) the rest of the pipeline
// reads from it. Task storage itself — the persisted per-task
// directories and status flags — is an external collaborator (spec
// §1); Store below is this module's reference implementation of that
// boundary, not a requirement the pipeline depends on directly.
package task

import "time"

// Type is one of the five task kinds spec §3 enumerates.
type Type string

const (
	TypeRetrace            Type = "RETRACE"
	TypeRetraceInteractive Type = "RETRACE_INTERACTIVE"
	TypeDebug              Type = "DEBUG"
	TypeVmcore             Type = "VMCORE"
	TypeVmcoreInteractive  Type = "VMCORE_INTERACTIVE"
)

// Status is a node in the DAG of spec §4.8.
type Status int

const (
	StatusInit Status = iota
	StatusAnalyze
	StatusBacktrace
	StatusCleanup
	StatusStats
	StatusSuccess
	StatusFail
)

// Order is the documented status DAG, exposed as data so the
// monotonicity property (spec §8 property 1) is directly testable.
var Order = []Status{StatusInit, StatusAnalyze, StatusBacktrace, StatusCleanup, StatusStats, StatusSuccess}

func (s Status) String() string {
	switch s {
	case StatusInit:
		return "INIT"
	case StatusAnalyze:
		return "ANALYZE"
	case StatusBacktrace:
		return "BACKTRACE"
	case StatusCleanup:
		return "CLEANUP"
	case StatusStats:
		return "STATS"
	case StatusSuccess:
		return "SUCCESS"
	case StatusFail:
		return "FAIL"
	default:
		return "UNKNOWN"
	}
}

// RequiredFiles enumerates, per task type, the crash-directory files
// check_required must find present before the pipeline begins (spec
// §4.1, §6).
var RequiredFiles = map[Type][]string{
	TypeRetrace:            {"coredump", "executable", "package"},
	TypeRetraceInteractive: {"coredump", "executable", "package"},
	TypeDebug:              {"coredump", "executable", "package"},
	TypeVmcore:             {"vmcore"},
	TypeVmcoreInteractive:  {"vmcore"},
}

// SnapshotSuffixes are the recognised suffixes a sibling of "vmcore"
// may carry and still satisfy check_required (spec §4.1).
var SnapshotSuffixes = []string{".xz", ".zst", ".gz", ".bz2", ".lzo", ".flattened"}

// AllowedFileCaps are the byte caps §6 mandates reads be truncated at.
var AllowedFileCaps = map[string]int64{
	"package":    512,
	"executable": 1024,
	"rootdir":    1024,
	"os_release": 8192,
}

// Task is the opaque descriptor the pipeline is handed (spec §3).
type Task struct {
	ID int

	Type     Type
	SaveDir  string
	CrashDir string

	Status   Status
	Started  *time.Time
	Finished *time.Time

	Notify     []string
	RemoteURLs []string

	CustomCrashCommand string
	CustomExecutable   string
	CustomPackage      string
	CustomOSRelease    string

	MD5         string
	LogFile     string
	ResultsDir  string

	// CrashRC holds the generated crashrc content for vmcore tasks
	// (spec §4.6 step 10), persisted by the task-storage collaborator.
	CrashRC string
}

// SetStatus records a new status. Callers in the lifecycle package are
// responsible for respecting the documented DAG; Task itself does not
// enforce monotonicity so that tests can exercise invalid transitions.
func (t *Task) SetStatus(s Status) {
	t.Status = s
}

// ResultsBagKey names the well-known entries a task's opaque results
// directory may hold (spec §6 "Persisted state").
const (
	ResultKeyExploitable = "exploitable"
	ResultKeySys         = "sys"
)
