// Package sqlitesink is the reference probe.LogSink backend: one SQLite
// table per probe key, written via the pure-Go modernc.org/sqlite driver
// (SPEC_FULL.md's domain stack, grounded on wizardbeard-protogonos's
// storage layer choice of a pure-Go driver with no cgo dependency).
//
// This is a swappable, replaceable backend, not a core dependency: chunk
// and simrun only ever see the probe.LogSink interface.
package sqlitesink

import (
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"
	"golang.org/x/text/unicode/norm"

	"github.com/nengodist/nengodist"
	"github.com/nengodist/nengodist/internal/obslog"
	"github.com/nengodist/nengodist/internal/runid"
)

// Sink is a probe.LogSink backed by a SQLite database file.
type Sink struct {
	db     *sql.DB
	run    runid.ID
	logger *obslog.Logger

	mu     sync.Mutex
	tables map[nengodist.Key]tableInfo
}

type tableInfo struct {
	name  string
	width int
}

// Open creates (or appends to) a SQLite database at path, stamping writes
// with run's identifier so concurrent runs sharing a directory don't
// collide in diagnostics.
func Open(path string, run runid.ID, logger *obslog.Logger) (*Sink, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, nengodist.WrapIOError(err, "sqlitesink: open "+path)
	}
	if logger == nil {
		logger = obslog.Default()
	}
	s := &Sink{db: db, run: run, logger: logger, tables: make(map[nengodist.Key]tableInfo)}
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS probe_runs (
		run_id TEXT PRIMARY KEY,
		started_at TEXT NOT NULL
	)`); err != nil {
		db.Close()
		return nil, nengodist.WrapIOError(err, "sqlitesink: create probe_runs")
	}
	if _, err := db.Exec(`INSERT OR IGNORE INTO probe_runs(run_id, started_at) VALUES (?, ?)`,
		run.String(), time.Now().UTC().Format(time.RFC3339)); err != nil {
		db.Close()
		return nil, nengodist.WrapIOError(err, "sqlitesink: record run")
	}
	return s, nil
}

// tableName derives a stable, safe SQL identifier from a probe key and
// label: the label is NFC-normalized (golang.org/x/text/unicode/norm) so
// visually identical but byte-distinct labels never produce two tables,
// then every non [a-zA-Z0-9_] byte is folded to '_'.
func tableName(key nengodist.Key, label string) string {
	clean := norm.NFC.String(label)
	var b strings.Builder
	for _, r := range clean {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return fmt.Sprintf("probe_%d_%s", uint64(key), b.String())
}

func (s *Sink) ensureTable(key nengodist.Key, label string, width int) (tableInfo, error) {
	if info, ok := s.tables[key]; ok {
		return info, nil
	}
	name := tableName(key, label)
	cols := make([]string, width)
	for i := range cols {
		cols[i] = fmt.Sprintf("elem%d REAL NOT NULL", i)
	}
	ddl := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		run_id TEXT NOT NULL,
		step_seq INTEGER NOT NULL,
		%s
	)`, name, strings.Join(cols, ",\n\t\t"))
	if _, err := s.db.Exec(ddl); err != nil {
		return tableInfo{}, nengodist.WrapIOError(err, "sqlitesink: create table "+name)
	}
	info := tableInfo{name: name, width: width}
	s.tables[key] = info
	return info, nil
}

// WriteBlock implements probe.LogSink: it appends rows to the key's table
// inside one transaction, creating the table on first use.
func (s *Sink) WriteBlock(key nengodist.Key, label string, rows [][]float64) error {
	if len(rows) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	start := time.Now()
	info, err := s.ensureTable(key, label, len(rows[0]))
	if err != nil {
		return err
	}

	tx, err := s.db.Begin()
	if err != nil {
		return nengodist.WrapIOError(err, "sqlitesink: begin tx")
	}
	placeholders := make([]string, info.width+2)
	for i := range placeholders {
		placeholders[i] = "?"
	}
	stmt, err := tx.Prepare(fmt.Sprintf("INSERT INTO %s VALUES (%s)", info.name, strings.Join(placeholders, ",")))
	if err != nil {
		tx.Rollback()
		return nengodist.WrapIOError(err, "sqlitesink: prepare insert")
	}
	defer stmt.Close()

	var bytesWritten int64
	for seq, row := range rows {
		args := make([]any, 0, info.width+2)
		args = append(args, s.run.String(), seq)
		for _, v := range row {
			args = append(args, v)
		}
		if _, err := stmt.Exec(args...); err != nil {
			tx.Rollback()
			return nengodist.WrapIOError(err, "sqlitesink: insert row")
		}
		bytesWritten += int64(len(row)) * 8
	}
	if err := tx.Commit(); err != nil {
		return nengodist.WrapIOError(err, "sqlitesink: commit")
	}
	s.logger.FlushSummary(info.name, bytesWritten, len(rows), time.Since(start))
	return nil
}

// ReadBlock implements probe.Reader: it returns every row ever written for
// key, in insertion order, across all runs sharing this database file.
func (s *Sink) ReadBlock(key nengodist.Key) ([][]float64, error) {
	s.mu.Lock()
	info, ok := s.tables[key]
	s.mu.Unlock()
	if !ok {
		return nil, nil
	}

	cols := make([]string, info.width)
	for i := range cols {
		cols[i] = fmt.Sprintf("elem%d", i)
	}
	rows, err := s.db.Query(fmt.Sprintf("SELECT %s FROM %s ORDER BY rowid", strings.Join(cols, ","), info.name))
	if err != nil {
		return nil, nengodist.WrapIOError(err, "sqlitesink: query "+info.name)
	}
	defer rows.Close()

	var out [][]float64
	for rows.Next() {
		row := make([]float64, info.width)
		scan := make([]any, info.width)
		for i := range row {
			scan[i] = &row[i]
		}
		if err := rows.Scan(scan...); err != nil {
			return nil, nengodist.WrapIOError(err, "sqlitesink: scan row")
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// Close closes the underlying database handle.
func (s *Sink) Close() error {
	if err := s.db.Close(); err != nil {
		return nengodist.WrapIOError(err, "sqlitesink: close")
	}
	return nil
}
