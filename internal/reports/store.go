package reports

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// ErrNotFound is returned when no report has the requested id.
var ErrNotFound = errors.New("report not found")

// Store persists report jobs in SQLite so a restart does not lose
// queued work. All methods are safe for concurrent use.
type Store struct {
	db *sql.DB
}

// NewStore opens (creating if needed) the report database at dbPath.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	_, err := s.db.Exec(`
	CREATE TABLE IF NOT EXISTS reports (
		id           TEXT PRIMARY KEY,
		type         TEXT NOT NULL,
		status       TEXT NOT NULL,
		created_at   TEXT NOT NULL,
		completed_at TEXT,
		data         TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_reports_status ON reports(status);
	`)
	return err
}

// Create inserts a new job.
func (s *Store) Create(r *Report) error {
	_, err := s.db.Exec(
		`INSERT INTO reports (id, type, status, created_at) VALUES (?, ?, ?, ?)`,
		r.ID, r.Type, string(r.Status), r.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("create report %s: %w", r.ID, err)
	}
	return nil
}

// Get returns the job with the given id, or ErrNotFound.
func (s *Store) Get(id string) (*Report, error) {
	row := s.db.QueryRow(
		`SELECT id, type, status, created_at, completed_at, data FROM reports WHERE id = ?`, id,
	)
	r, err := scanReport(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get report %s: %w", id, err)
	}
	return r, nil
}

// Complete records the job's result.
func (s *Store) Complete(id string, data Data, at time.Time) error {
	body, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("encode report %s: %w", id, err)
	}
	return s.finish(id, StatusCompleted, at, body)
}

// Fail marks the job failed.
func (s *Store) Fail(id string, at time.Time) error {
	return s.finish(id, StatusFailed, at, nil)
}

func (s *Store) finish(id string, status Status, at time.Time, body []byte) error {
	var data sql.NullString
	if body != nil {
		data = sql.NullString{String: string(body), Valid: true}
	}
	res, err := s.db.Exec(
		`UPDATE reports SET status = ?, completed_at = ?, data = ? WHERE id = ?`,
		string(status), at.UTC().Format(time.RFC3339Nano), data, id,
	)
	if err != nil {
		return fmt.Errorf("finish report %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// Pending returns every job still processing, oldest first.
func (s *Store) Pending() ([]*Report, error) {
	rows, err := s.db.Query(
		`SELECT id, type, status, created_at, completed_at, data FROM reports
		 WHERE status = ? ORDER BY created_at`, string(StatusProcessing),
	)
	if err != nil {
		return nil, fmt.Errorf("list pending: %w", err)
	}
	defer rows.Close()

	var out []*Report
	for rows.Next() {
		r, err := scanReport(rows)
		if err != nil {
			return nil, fmt.Errorf("scan pending: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanReport(sc scanner) (*Report, error) {
	var (
		r         Report
		status    string
		completed sql.NullString
		data      sql.NullString
	)
	if err := sc.Scan(&r.ID, &r.Type, &status, &r.CreatedAt, &completed, &data); err != nil {
		return nil, err
	}
	r.Status = Status(status)
	r.CompletedAt = completed.String
	if data.Valid && data.String != "" {
		var d Data
		if err := json.Unmarshal([]byte(data.String), &d); err != nil {
			return nil, fmt.Errorf("decode data: %w", err)
		}
		r.Data = &d
	}
	return &r, nil
}
