package sqlite

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"time"

	"github.com/cwygoda/clipper/internal/domain"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS archived_jobs (
    id            TEXT PRIMARY KEY,
    url           TEXT NOT NULL,
    format        TEXT NOT NULL DEFAULT '',
    status        TEXT NOT NULL,
    error         TEXT,
    file_name     TEXT,
    file_size     INTEGER NOT NULL DEFAULT 0,
    reason        TEXT NOT NULL,
    created_at    DATETIME NOT NULL,
    finished_at   DATETIME,
    downloaded_at DATETIME,
    archived_at   DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_archived_jobs_archived_at ON archived_jobs(archived_at);
`

// Archive implements domain.JobArchive using SQLite.
type Archive struct {
	db *sql.DB
}

// New opens the archive at dbPath, initializing the schema if needed.
func New(dbPath string) (*Archive, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, err
	}

	return &Archive{db: db}, nil
}

// Close closes the database connection.
func (a *Archive) Close() error {
	return a.db.Close()
}

// Ping checks the database connection.
func (a *Archive) Ping(ctx context.Context) error {
	return a.db.PingContext(ctx)
}

// Archive stores rec. Re-archiving the same id replaces the earlier row.
func (a *Archive) Archive(ctx context.Context, rec domain.ArchivedJob) error {
	if rec.ArchivedAt.IsZero() {
		rec.ArchivedAt = time.Now()
	}
	_, err := a.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO archived_jobs
		 (id, url, format, status, error, file_name, file_size, reason,
		  created_at, finished_at, downloaded_at, archived_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.URL, rec.Format, string(rec.Status),
		nullString(rec.Error), nullString(rec.FileName), rec.FileSize, rec.Reason,
		rec.CreatedAt, nullTime(rec.FinishedAt), nullTime(rec.DownloadedAt), rec.ArchivedAt,
	)
	return err
}

// Get retrieves one archived job.
func (a *Archive) Get(ctx context.Context, id string) (*domain.ArchivedJob, error) {
	row := a.db.QueryRowContext(ctx, selectColumns+` WHERE id = ?`, id)
	return scanArchived(row)
}

// Recent returns up to limit archived jobs, newest first.
func (a *Archive) Recent(ctx context.Context, limit int) ([]domain.ArchivedJob, error) {
	rows, err := a.db.QueryContext(ctx,
		selectColumns+` ORDER BY archived_at DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var recs []domain.ArchivedJob
	for rows.Next() {
		rec, err := scanArchived(rows)
		if err != nil {
			return nil, err
		}
		recs = append(recs, *rec)
	}
	return recs, rows.Err()
}

const selectColumns = `SELECT id, url, format, status, COALESCE(error, ''), COALESCE(file_name, ''),
	file_size, reason, created_at, finished_at, downloaded_at, archived_at
	FROM archived_jobs`

type scanner interface {
	Scan(dest ...any) error
}

func scanArchived(row scanner) (*domain.ArchivedJob, error) {
	var rec domain.ArchivedJob
	var status string
	var finished, downloaded sql.NullTime
	err := row.Scan(&rec.ID, &rec.URL, &rec.Format, &status, &rec.Error, &rec.FileName,
		&rec.FileSize, &rec.Reason, &rec.CreatedAt, &finished, &downloaded, &rec.ArchivedAt)
	if err == sql.ErrNoRows {
		return nil, domain.ErrJobNotFound
	}
	if err != nil {
		return nil, err
	}
	rec.Status = domain.JobStatus(status)
	if finished.Valid {
		rec.FinishedAt = finished.Time
	}
	if downloaded.Valid {
		rec.DownloadedAt = downloaded.Time
	}
	return &rec, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}
