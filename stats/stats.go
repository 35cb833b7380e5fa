// Package stats persists crash statistics to the external database spec
// §6 calls for (init_crashstats_db, save_crashstats,
// save_crashstats_packages, save_crashstats_build_ids,
// save_crashstats_success). It is a thin database/sql layer over
// go-sql-driver/mysql, the MySQL driver already present in the
// dependency graph the teacher's own go.mod resolves.
package stats

import (
	"database/sql"
	"time"

	_ "github.com/go-sql-driver/mysql"

	"github.com/abrt/retrace-worker/internal/rerrors"
)

// Record is the row shape collected through a task's run, mirroring the
// original's `self.stats` dict (spec §4.8 "start").
type Record struct {
	TaskID    int
	StartTime time.Time
	Status    string

	Package string
	Version string
	Arch    string

	Duration int
}

// DB wraps the crash-statistics connection. Callers obtain one with
// OpenDB and persist through its methods; every method is best-effort
// from the caller's perspective (spec §7 "stats persistence" is
// warn-only on error).
type DB struct {
	conn *sql.DB
}

// OpenDB opens the crash-statistics database given a standard
// database/sql DSN (init_crashstats_db in the original).
func OpenDB(dsn string) (*DB, error) {
	conn, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, rerrors.WithStackTrace(err)
	}

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, rerrors.WithStackTrace(err)
	}

	return &DB{conn: conn}, nil
}

// Close releases the underlying connection pool.
func (db *DB) Close() error {
	return db.conn.Close()
}

// SaveCrashstats inserts rec and returns the generated stats row id
// (save_crashstats).
func (db *DB) SaveCrashstats(rec Record) (int64, error) {
	res, err := db.conn.Exec(
		`INSERT INTO tasks_stats (taskid, starttime, status, package, version, arch, duration)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.TaskID, rec.StartTime, rec.Status, rec.Package, rec.Version, rec.Arch, rec.Duration,
	)
	if err != nil {
		return 0, rerrors.WithStackTrace(err)
	}

	return res.LastInsertId()
}

// SaveCrashstatsSuccess records the concurrency snapshot and duration of
// a successful task (save_crashstats_success, spec §4.8 "Success path").
// rootsize is currently always 0 (spec §9's open question on the
// original's disabled root-size accounting).
func (db *DB) SaveCrashstatsSuccess(statsID int64, prerunning, activeNow int, rootsize int64, duration int) error {
	_, err := db.conn.Exec(
		`UPDATE tasks_stats SET prerunning = ?, postrunning = ?, rootsize = ?, duration = ? WHERE id = ?`,
		prerunning, activeNow, rootsize, duration, statsID,
	)

	return rerrors.WithStackTrace(err)
}

// SaveCrashstatsPackages persists the resolved package list, excluding
// the crash's own package (spec §8 property 4).
func (db *DB) SaveCrashstatsPackages(statsID int64, packages []string) error {
	for _, pkg := range packages {
		if _, err := db.conn.Exec(`INSERT INTO tasks_stats_packages (statsid, package) VALUES (?, ?)`, statsID, pkg); err != nil {
			return rerrors.WithStackTrace(err)
		}
	}

	return nil
}

// SaveCrashstatsBuildIDs persists the unresolved (soname, build-id)
// pairs a package resolution reported (spec §4.3 section 2).
func (db *DB) SaveCrashstatsBuildIDs(statsID int64, missing []BuildIDEntry) error {
	for _, m := range missing {
		if _, err := db.conn.Exec(`INSERT INTO tasks_stats_build_ids (statsid, soname, build_id) VALUES (?, ?, ?)`, statsID, m.Soname, m.BuildID); err != nil {
			return rerrors.WithStackTrace(err)
		}
	}

	return nil
}

// BuildIDEntry mirrors pipeline.Missing without importing the pipeline
// package, keeping stats free of a dependency on the task-execution
// layer.
type BuildIDEntry struct {
	Soname  string
	BuildID string
}
