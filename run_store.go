package main

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"Fleetbench/pkg/driver"
	"Fleetbench/pkg/types"
)

// Run status values
const (
	RunStatusRunning   = "running"
	RunStatusCompleted = "completed"
	RunStatusCancelled = "cancelled"
	RunStatusFailed    = "failed"
)

// ErrRunNotFound is returned for unknown run IDs
var ErrRunNotFound = errors.New("run not found")

// ========================================
// RunStore - SQLite 实验数据存储
// ========================================

type RunStore struct {
	db     *sql.DB
	dbPath string

	// 预编译语句
	stmtInsertRun      *sql.Stmt
	stmtFinishRun      *sql.Stmt
	stmtInsertLaunch   *sql.Stmt
	stmtInsertSnapshot *sql.Stmt
	stmtInsertFrame    *sql.Stmt
}

// seq is assigned inside the insert so that samples keep the order they were
// taken in, even when two samples share a millisecond.
const runSchemaSQL = `
PRAGMA journal_mode = WAL;
PRAGMA synchronous = NORMAL;

-- ==================== Runs 表 ====================
CREATE TABLE IF NOT EXISTS runs (
    id TEXT PRIMARY KEY,
    mode TEXT NOT NULL,
    device_serial TEXT NOT NULL DEFAULT '',
    config TEXT NOT NULL DEFAULT '{}',
    started_at INTEGER NOT NULL,
    finished_at INTEGER DEFAULT 0,
    status TEXT NOT NULL DEFAULT 'running'
);

CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at DESC);

-- ==================== Launch Samples 表 ====================
CREATE TABLE IF NOT EXISTS launch_samples (
    run_id TEXT NOT NULL,
    seq INTEGER NOT NULL,
    package TEXT NOT NULL,
    iteration INTEGER NOT NULL,
    status TEXT NOT NULL,
    launch_state TEXT NOT NULL,
    bucket TEXT NOT NULL,
    wait_ms INTEGER NOT NULL,
    total_ms INTEGER NOT NULL DEFAULT 0,
    recorded_at INTEGER NOT NULL,
    PRIMARY KEY (run_id, seq),
    FOREIGN KEY (run_id) REFERENCES runs(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_launch_samples_package ON launch_samples(run_id, package);

-- ==================== Cache Snapshots 表 ====================
CREATE TABLE IF NOT EXISTS cache_snapshots (
    run_id TEXT NOT NULL,
    seq INTEGER NOT NULL,
    package TEXT NOT NULL,
    cached_count INTEGER NOT NULL,
    cached_apps TEXT NOT NULL DEFAULT '[]',
    recorded_at INTEGER NOT NULL,
    PRIMARY KEY (run_id, seq),
    FOREIGN KEY (run_id) REFERENCES runs(id) ON DELETE CASCADE
);

-- ==================== Frame Samples 表 ====================
CREATE TABLE IF NOT EXISTS frame_samples (
    run_id TEXT NOT NULL,
    seq INTEGER NOT NULL,
    package TEXT NOT NULL,
    draw_ms REAL NOT NULL,
    prepare_ms REAL NOT NULL,
    process_ms REAL NOT NULL,
    execute_ms REAL NOT NULL,
    recorded_at INTEGER NOT NULL,
    PRIMARY KEY (run_id, seq),
    FOREIGN KEY (run_id) REFERENCES runs(id) ON DELETE CASCADE
);
`

// NewRunStore opens (or creates) runs.db under dataDir
func NewRunStore(dataDir string) (*RunStore, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, "runs.db")
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_synchronous=NORMAL&_foreign_keys=ON")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite 单写入
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	store := &RunStore{db: db, dbPath: dbPath}

	if _, err := db.Exec(runSchemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to init schema: %w", err)
	}
	if err := store.prepareStatements(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to prepare statements: %w", err)
	}
	return store, nil
}

func (s *RunStore) prepareStatements() error {
	var err error

	s.stmtInsertRun, err = s.db.Prepare(`
		INSERT INTO runs (id, mode, device_serial, config, started_at, status)
		VALUES (?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("prepare insert run: %w", err)
	}

	s.stmtFinishRun, err = s.db.Prepare(`
		UPDATE runs SET finished_at = ?, status = ? WHERE id = ?
	`)
	if err != nil {
		return fmt.Errorf("prepare finish run: %w", err)
	}

	s.stmtInsertLaunch, err = s.db.Prepare(`
		INSERT INTO launch_samples (
			run_id, seq, package, iteration, status, launch_state, bucket,
			wait_ms, total_ms, recorded_at
		) VALUES (
			?, (SELECT COALESCE(MAX(seq), -1) + 1 FROM launch_samples WHERE run_id = ?),
			?, ?, ?, ?, ?, ?, ?, ?
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare insert launch: %w", err)
	}

	s.stmtInsertSnapshot, err = s.db.Prepare(`
		INSERT INTO cache_snapshots (run_id, seq, package, cached_count, cached_apps, recorded_at)
		VALUES (
			?, (SELECT COALESCE(MAX(seq), -1) + 1 FROM cache_snapshots WHERE run_id = ?),
			?, ?, ?, ?
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare insert snapshot: %w", err)
	}

	s.stmtInsertFrame, err = s.db.Prepare(`
		INSERT INTO frame_samples (
			run_id, seq, package, draw_ms, prepare_ms, process_ms, execute_ms, recorded_at
		) VALUES (
			?, (SELECT COALESCE(MAX(seq), -1) + 1 FROM frame_samples WHERE run_id = ?),
			?, ?, ?, ?, ?, ?
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare insert frame: %w", err)
	}
	return nil
}

// Close releases statements and the database handle
func (s *RunStore) Close() error {
	for _, stmt := range []*sql.Stmt{
		s.stmtInsertRun, s.stmtFinishRun, s.stmtInsertLaunch, s.stmtInsertSnapshot, s.stmtInsertFrame,
	} {
		if stmt != nil {
			stmt.Close()
		}
	}
	return s.db.Close()
}

// DBPath returns the database file location
func (s *RunStore) DBPath() string {
	return s.dbPath
}

// ========================================
// Run 操作
// ========================================

// CreateRun registers a new run and returns its ID
func (s *RunStore) CreateRun(mode, serial string, cfg driver.Config, startedAt time.Time) (string, error) {
	raw, err := json.Marshal(cfg)
	if err != nil {
		return "", fmt.Errorf("encode run config: %w", err)
	}
	id := uuid.New().String()
	if _, err := s.stmtInsertRun.Exec(id, mode, serial, string(raw), startedAt.UnixMilli(), RunStatusRunning); err != nil {
		return "", fmt.Errorf("insert run: %w", err)
	}
	return id, nil
}

// FinishRun stamps the end time and final status of a run
func (s *RunStore) FinishRun(id, status string, finishedAt time.Time) error {
	res, err := s.stmtFinishRun.Exec(finishedAt.UnixMilli(), status, id)
	if err != nil {
		return fmt.Errorf("finish run %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("finish run %s: %w", id, ErrRunNotFound)
	}
	return nil
}

// DeleteRun removes a run together with all of its samples
func (s *RunStore) DeleteRun(id string) error {
	res, err := s.db.Exec(`DELETE FROM runs WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("delete run %s: %w", id, ErrRunNotFound)
	}
	return nil
}

// ListRuns returns the newest runs first; limit <= 0 lists everything
func (s *RunStore) ListRuns(limit int) ([]types.RunSummary, error) {
	query := `
		SELECT r.id, r.mode, r.device_serial, r.status, r.started_at, r.finished_at,
			(SELECT COUNT(*) FROM launch_samples l WHERE l.run_id = r.id)
		FROM runs r
		ORDER BY r.started_at DESC
	`
	if limit > 0 {
		query += fmt.Sprintf(` LIMIT %d`, limit)
	}

	rows, err := s.db.Query(query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []types.RunSummary
	for rows.Next() {
		var r types.RunSummary
		var started, finished int64
		if err := rows.Scan(&r.ID, &r.Mode, &r.DeviceSerial, &r.Status, &started, &finished, &r.Launches); err != nil {
			return nil, err
		}
		r.StartedAt = time.UnixMilli(started)
		if finished > 0 {
			r.FinishedAt = time.UnixMilli(finished)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// ========================================
// Sample 写入
// ========================================

// RecordLaunch persists one accepted launch
func (s *RunStore) RecordLaunch(runID string, sample driver.LaunchSample) error {
	res := sample.Result
	_, err := s.stmtInsertLaunch.Exec(
		runID, runID,
		sample.Package, sample.Iteration, res.Status, string(res.LaunchState), res.LaunchState.Bucket(),
		res.WaitTimeMs, res.TotalTimeMs, sample.At.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("insert launch sample: %w", err)
	}
	return nil
}

// RecordCacheSnapshot persists one cached-app set
func (s *RunStore) RecordCacheSnapshot(runID string, snap driver.CacheSnapshot) error {
	apps, err := json.Marshal(snap.Cached.Sorted())
	if err != nil {
		return err
	}
	_, err = s.stmtInsertSnapshot.Exec(runID, runID, snap.Package, snap.Cached.Len(), string(apps), snap.At.UnixMilli())
	if err != nil {
		return fmt.Errorf("insert cache snapshot: %w", err)
	}
	return nil
}

// RecordFrames persists a batch of frame samples in one transaction
func (s *RunStore) RecordFrames(runID, pkg string, frames []types.FrameSample, at time.Time) error {
	if len(frames) == 0 {
		return nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt := tx.Stmt(s.stmtInsertFrame)
	for _, f := range frames {
		if _, err := stmt.Exec(runID, runID, pkg, f.DrawMs, f.PrepareMs, f.ProcessMs, f.ExecuteMs, at.UnixMilli()); err != nil {
			return fmt.Errorf("insert frame sample: %w", err)
		}
	}
	return tx.Commit()
}

// ========================================
// Report 读取
// ========================================

// LoadReport rebuilds the report of a run from its stored samples. Buckets
// keep the order the launches were taken in.
func (s *RunStore) LoadReport(runID string) (types.Report, error) {
	var rep types.Report
	var rawCfg string
	var started, finished int64
	err := s.db.QueryRow(`
		SELECT id, mode, device_serial, config, started_at, finished_at FROM runs WHERE id = ?
	`, runID).Scan(&rep.RunID, &rep.Mode, &rep.DeviceSerial, &rawCfg, &started, &finished)
	if errors.Is(err, sql.ErrNoRows) {
		return rep, fmt.Errorf("load report %s: %w", runID, ErrRunNotFound)
	}
	if err != nil {
		return rep, err
	}

	var cfg driver.Config
	if err := json.Unmarshal([]byte(rawCfg), &cfg); err != nil {
		LogWarn("store").Err(err).Str("run", runID).Msg("Stored run config is unreadable, app order falls back to sample order")
	}
	acc := driver.NewAccumulator(cfg.Packages())

	rows, err := s.db.Query(`
		SELECT package, launch_state, wait_ms FROM launch_samples WHERE run_id = ? ORDER BY seq
	`, runID)
	if err != nil {
		return rep, err
	}
	for rows.Next() {
		var pkg, state string
		var wait int
		if err := rows.Scan(&pkg, &state, &wait); err != nil {
			rows.Close()
			return rep, err
		}
		acc.Add(pkg, types.LaunchState(state), wait)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return rep, err
	}

	counts, err := s.db.Query(`SELECT cached_count FROM cache_snapshots WHERE run_id = ? ORDER BY seq`, runID)
	if err != nil {
		return rep, err
	}
	for counts.Next() {
		var n int
		if err := counts.Scan(&n); err != nil {
			counts.Close()
			return rep, err
		}
		acc.AddCachedCount(n)
	}
	counts.Close()
	if err := counts.Err(); err != nil {
		return rep, err
	}

	out := acc.Report(rep.Mode)
	out.RunID = rep.RunID
	out.DeviceSerial = rep.DeviceSerial
	out.StartedAt = time.UnixMilli(started)
	if finished > 0 {
		out.FinishedAt = time.UnixMilli(finished)
	}
	return out, nil
}

// LoadFrames returns the frame samples of a run in capture order
func (s *RunStore) LoadFrames(runID string) ([]types.FrameSample, error) {
	rows, err := s.db.Query(`
		SELECT draw_ms, prepare_ms, process_ms, execute_ms FROM frame_samples WHERE run_id = ? ORDER BY seq
	`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var frames []types.FrameSample
	for rows.Next() {
		var f types.FrameSample
		if err := rows.Scan(&f.DrawMs, &f.PrepareMs, &f.ProcessMs, &f.ExecuteMs); err != nil {
			return nil, err
		}
		frames = append(frames, f)
	}
	return frames, rows.Err()
}

// ========================================
// driver.Recorder
// ========================================

// runRecorder binds the store to one run
type runRecorder struct {
	store *RunStore
	runID string
}

func (r runRecorder) RecordLaunch(s driver.LaunchSample) error {
	return r.store.RecordLaunch(r.runID, s)
}

func (r runRecorder) RecordCacheSnapshot(s driver.CacheSnapshot) error {
	return r.store.RecordCacheSnapshot(r.runID, s)
}

// Recorder returns a driver.Recorder writing into runID
func (s *RunStore) Recorder(runID string) driver.Recorder {
	return runRecorder{store: s, runID: runID}
}
