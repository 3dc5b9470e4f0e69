package archive

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/openleague/livematch/internal/events"
	"github.com/openleague/livematch/internal/telemetry"

	_ "modernc.org/sqlite"
)

const (
	maxStoreBytes  int64   = 1 << 30 // 1 GiB
	evictPct       float64 = 0.10    // evict oldest 10% of rows
	vacuumInterval         = 10      // incremental vacuum every N evictions
)

// MatchRecord is one completed match as persisted in the archive.
type MatchRecord struct {
	RowID       int64
	MatchID     string
	HomeTeamID  string
	HomeTeam    string
	AwayTeamID  string
	AwayTeam    string
	HomeScore   int
	AwayScore   int
	Attendance  int
	GameTime    int
	MaxTime     int
	CompletedAt time.Time
	ErrorFlag   bool
	ErrorReason string
	EventCount  int
	Log         []events.GameEvent
}

// Store persists completed matches in a FIFO SQLite database capped at
// ~1 GiB. The oldest 10% of rows are evicted when the cap is exceeded.
type Store struct {
	db           *sql.DB
	mu           sync.Mutex
	cachedSize   int64
	rowCount     int64
	evictCounter int
}

func OpenStore(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create archive dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	db.SetMaxOpenConns(1)

	var avMode int
	if err := db.QueryRow(`PRAGMA auto_vacuum`).Scan(&avMode); err != nil {
		db.Close()
		return nil, fmt.Errorf("read auto_vacuum: %w", err)
	}
	if avMode != 2 {
		if _, err := db.Exec(`PRAGMA auto_vacuum = INCREMENTAL`); err != nil {
			db.Close()
			return nil, fmt.Errorf("set auto_vacuum: %w", err)
		}
		if _, err := db.Exec(`VACUUM`); err != nil {
			telemetry.Warnf("archive: VACUUM to enable auto_vacuum failed: %v", err)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init archive schema: %w", err)
	}

	var size int64
	db.QueryRow(`SELECT COALESCE(page_count * page_size, 0) FROM pragma_page_count(), pragma_page_size()`).Scan(&size)
	var rowCount int64
	db.QueryRow(`SELECT COUNT(*) FROM completed_matches`).Scan(&rowCount)

	telemetry.Plainf("archive: opened %s  size=%d  rows=%d", path, size, rowCount)
	return &Store{db: db, cachedSize: size, rowCount: rowCount}, nil
}

const schema = `CREATE TABLE IF NOT EXISTS completed_matches (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	match_id     TEXT    NOT NULL UNIQUE,
	home_team_id TEXT    NOT NULL,
	home_team    TEXT    NOT NULL,
	away_team_id TEXT    NOT NULL,
	away_team    TEXT    NOT NULL,
	home_score   INTEGER NOT NULL,
	away_score   INTEGER NOT NULL,
	attendance   INTEGER NOT NULL,
	game_time    INTEGER NOT NULL,
	max_time     INTEGER NOT NULL,
	completed_at TEXT    NOT NULL,
	error_flag   INTEGER NOT NULL DEFAULT 0,
	error_reason TEXT    NOT NULL DEFAULT '',
	event_count  INTEGER NOT NULL,
	event_log    TEXT    NOT NULL
)`

// Insert stores a completed match and returns the row ID.
func (s *Store) Insert(rec MatchRecord) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	logJSON, err := json.Marshal(rec.Log)
	if err != nil {
		return 0, fmt.Errorf("marshal event log: %w", err)
	}

	res, err := s.db.Exec(
		`INSERT INTO completed_matches (
			match_id, home_team_id, home_team, away_team_id, away_team,
			home_score, away_score, attendance, game_time, max_time,
			completed_at, error_flag, error_reason, event_count, event_log
		) VALUES (?,?,?,?,?, ?,?,?,?,?, ?,?,?,?,?)`,
		rec.MatchID, rec.HomeTeamID, rec.HomeTeam, rec.AwayTeamID, rec.AwayTeam,
		rec.HomeScore, rec.AwayScore, rec.Attendance, rec.GameTime, rec.MaxTime,
		rec.CompletedAt.UTC().Format(time.RFC3339Nano),
		boolInt(rec.ErrorFlag), rec.ErrorReason, len(rec.Log), string(logJSON),
	)
	if err != nil {
		return 0, fmt.Errorf("insert completed match: %w", err)
	}

	id, _ := res.LastInsertId()
	s.rowCount++
	s.refreshSize()
	if s.cachedSize > maxStoreBytes {
		s.evict()
	}
	return id, nil
}

// Get loads one archived match by match id.
func (s *Store) Get(matchID string) (MatchRecord, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	row := s.db.QueryRow(
		`SELECT id, match_id, home_team_id, home_team, away_team_id, away_team,
			home_score, away_score, attendance, game_time, max_time,
			completed_at, error_flag, error_reason, event_count, event_log
		 FROM completed_matches WHERE match_id = ?`, matchID)

	rec, err := scanRecord(row)
	if err == sql.ErrNoRows {
		return MatchRecord{}, false, nil
	}
	if err != nil {
		return MatchRecord{}, false, err
	}
	return rec, true, nil
}

// Recent returns up to limit archived matches, newest first.
func (s *Store) Recent(limit int) ([]MatchRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.Query(
		`SELECT id, match_id, home_team_id, home_team, away_team_id, away_team,
			home_score, away_score, attendance, game_time, max_time,
			completed_at, error_flag, error_reason, event_count, event_log
		 FROM completed_matches ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []MatchRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(sc scanner) (MatchRecord, error) {
	var rec MatchRecord
	var completedAt string
	var errorFlag int
	var logJSON string

	if err := sc.Scan(&rec.RowID, &rec.MatchID,
		&rec.HomeTeamID, &rec.HomeTeam, &rec.AwayTeamID, &rec.AwayTeam,
		&rec.HomeScore, &rec.AwayScore, &rec.Attendance, &rec.GameTime, &rec.MaxTime,
		&completedAt, &errorFlag, &rec.ErrorReason, &rec.EventCount, &logJSON,
	); err != nil {
		return MatchRecord{}, err
	}

	rec.ErrorFlag = errorFlag != 0
	if ts, err := time.Parse(time.RFC3339Nano, completedAt); err == nil {
		rec.CompletedAt = ts
	}
	if err := json.Unmarshal([]byte(logJSON), &rec.Log); err != nil {
		return MatchRecord{}, fmt.Errorf("decode event log for %s: %w", rec.MatchID, err)
	}
	return rec, nil
}

// refreshSize re-reads the database file size from SQLite pragmas.
// Must be called with s.mu held.
func (s *Store) refreshSize() {
	var size int64
	row := s.db.QueryRow(`SELECT COALESCE(page_count * page_size, 0) FROM pragma_page_count(), pragma_page_size()`)
	if err := row.Scan(&size); err == nil {
		s.cachedSize = size
	}
}

// evict deletes the oldest 10% of rows by count.
// Must be called with s.mu held.
func (s *Store) evict() {
	toDelete := int64(float64(s.rowCount) * evictPct)
	if toDelete < 1 {
		toDelete = 1
	}

	res, err := s.db.Exec(
		`DELETE FROM completed_matches WHERE id IN (
			SELECT id FROM completed_matches ORDER BY id ASC LIMIT ?
		)`, toDelete,
	)
	if err != nil {
		telemetry.Warnf("archive evict: %v", err)
		return
	}

	deleted, _ := res.RowsAffected()
	s.rowCount -= deleted
	s.evictCounter++

	telemetry.Infof("archive: evicted %d rows (target %d)", deleted, toDelete)

	if s.evictCounter%vacuumInterval == 0 {
		s.db.Exec(`PRAGMA incremental_vacuum`)
	}

	s.refreshSize()
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
