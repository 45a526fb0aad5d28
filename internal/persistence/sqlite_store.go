package persistence

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/subhub/youtube-subtitle-hub/internal/jobs"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("db path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	store := &SQLiteStore{db: db}
	if err := store.init(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLiteStore) init(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "PRAGMA journal_mode = WAL;"); err != nil {
		return fmt.Errorf("set WAL mode: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, "PRAGMA busy_timeout = 5000;"); err != nil {
		return fmt.Errorf("set busy timeout: %w", err)
	}
	// Bootstrap schema_migrations table so we can track applied versions.
	if _, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		version INTEGER PRIMARY KEY,
		applied_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	);`); err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}

	entries, err := migrationFiles.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("read migrations: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		version := migrationVersion(entry.Name())
		if version <= 0 {
			continue
		}
		var exists int
		if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM schema_migrations WHERE version = ?`, version).Scan(&exists); err != nil {
			return fmt.Errorf("check migration %s: %w", entry.Name(), err)
		}
		if exists > 0 {
			continue
		}
		content, err := migrationFiles.ReadFile(filepath.Join("migrations", entry.Name()))
		if err != nil {
			return fmt.Errorf("read migration %s: %w", entry.Name(), err)
		}
		if _, err := s.db.ExecContext(ctx, string(content)); err != nil {
			return fmt.Errorf("apply migration %s: %w", entry.Name(), err)
		}
		if _, err := s.db.ExecContext(ctx, `INSERT INTO schema_migrations (version) VALUES (?)`, version); err != nil {
			return fmt.Errorf("record migration %s: %w", entry.Name(), err)
		}
	}
	return nil
}

// migrationVersion extracts the leading integer from a migration filename (e.g. "001_init.sql" → 1).
func migrationVersion(name string) int {
	for i, c := range name {
		if c < '0' || c > '9' {
			if i == 0 {
				return 0
			}
			n, _ := strconv.Atoi(name[:i])
			return n
		}
	}
	n, _ := strconv.Atoi(name)
	return n
}

func (s *SQLiteStore) LoadJobs(ctx context.Context) ([]*jobs.Job, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT id, kind, url, quality, status, progress_percent, message,
		        result_file, result_filename, result_size, result_size_human, result_format_note,
		        error, created_at, updated_at
		 FROM jobs
		 ORDER BY created_at ASC`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ret := make([]*jobs.Job, 0)
	for rows.Next() {
		var (
			item   jobs.Job
			kind   string
			status string
			result jobs.Result
		)
		if err := rows.Scan(
			&item.ID,
			&kind,
			&item.URL,
			&item.Quality,
			&status,
			&item.ProgressPercent,
			&item.Message,
			&result.File,
			&result.Filename,
			&result.FileSize,
			&result.FileSizeHuman,
			&result.FormatNote,
			&item.Error,
			&item.CreatedAt,
			&item.UpdatedAt,
		); err != nil {
			return nil, err
		}
		item.Kind = jobs.Kind(kind)
		item.Status = jobs.Status(status)
		if result.File != "" {
			item.Result = &result
		}
		ret = append(ret, &item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return ret, nil
}

func (s *SQLiteStore) DeleteJob(ctx context.Context, jobID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM jobs WHERE id = ?`, jobID)
	return err
}

func (s *SQLiteStore) UpsertJob(ctx context.Context, job *jobs.Job) error {
	if job == nil {
		return fmt.Errorf("job is nil")
	}
	result := job.Result
	if result == nil {
		result = &jobs.Result{}
	}
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO jobs (
			id, kind, url, quality, status, progress_percent, message,
			result_file, result_filename, result_size, result_size_human, result_format_note,
			error, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			kind=excluded.kind,
			url=excluded.url,
			quality=excluded.quality,
			status=excluded.status,
			progress_percent=excluded.progress_percent,
			message=excluded.message,
			result_file=excluded.result_file,
			result_filename=excluded.result_filename,
			result_size=excluded.result_size,
			result_size_human=excluded.result_size_human,
			result_format_note=excluded.result_format_note,
			error=excluded.error,
			updated_at=excluded.updated_at`,
		job.ID,
		string(job.Kind),
		job.URL,
		job.Quality,
		string(job.Status),
		job.ProgressPercent,
		job.Message,
		result.File,
		result.Filename,
		result.FileSize,
		result.FileSizeHuman,
		result.FormatNote,
		job.Error,
		job.CreatedAt,
		job.UpdatedAt,
	)
	return err
}

func (s *SQLiteStore) GetSubtitleCache(ctx context.Context, cacheKey string) (*SubtitleCacheEntry, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT cache_key, job_id, subtitle_file, prompt_file, prompt_preview, video_url, video_title, downloaded_at
		 FROM subtitle_cache WHERE cache_key = ?`,
		cacheKey,
	)

	var entry SubtitleCacheEntry
	err := row.Scan(
		&entry.CacheKey,
		&entry.JobID,
		&entry.SubtitleFile,
		&entry.PromptFile,
		&entry.PromptPreview,
		&entry.VideoURL,
		&entry.VideoTitle,
		&entry.DownloadedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

func (s *SQLiteStore) PutSubtitleCache(ctx context.Context, entry *SubtitleCacheEntry) error {
	if entry == nil {
		return fmt.Errorf("cache entry is nil")
	}
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO subtitle_cache (
			cache_key, job_id, subtitle_file, prompt_file, prompt_preview, video_url, video_title, downloaded_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(cache_key) DO UPDATE SET
			job_id=excluded.job_id,
			subtitle_file=excluded.subtitle_file,
			prompt_file=excluded.prompt_file,
			prompt_preview=excluded.prompt_preview,
			video_url=excluded.video_url,
			video_title=excluded.video_title,
			downloaded_at=excluded.downloaded_at`,
		entry.CacheKey,
		entry.JobID,
		entry.SubtitleFile,
		entry.PromptFile,
		entry.PromptPreview,
		entry.VideoURL,
		entry.VideoTitle,
		entry.DownloadedAt,
	)
	return err
}

func (s *SQLiteStore) DeleteSubtitleCache(ctx context.Context, cacheKey string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM subtitle_cache WHERE cache_key = ?`, cacheKey)
	return err
}
