package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog/log"

	"clipstack/internal/domain"
	"clipstack/internal/ports"
)

// Fixed width so that timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

const columns = `id, task_id, hosting_public_id, instagram_username, email, linkedin_profile,
	original_filename, status, hosting_url, metadata, message, updated_at,
	render_job_id, render_url, poster_url`

var _ ports.TaskStore = (*Store)(nil)

type Store struct {
	db  *sql.DB
	now func() time.Time
}

func Open(path string) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?_busy_timeout=5000&_txlock=immediate&_journal_mode=WAL", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite %s: %w", path, err)
	}

	log.Info().Str("path", path).Msg("opened sqlite task store")
	return &Store{db: db, now: time.Now}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) EnsureSchema(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS tasks (
    id                 INTEGER PRIMARY KEY AUTOINCREMENT,
    task_id            TEXT NOT NULL UNIQUE,
    hosting_public_id  TEXT NOT NULL DEFAULT '',
    instagram_username TEXT NOT NULL DEFAULT '',
    email              TEXT NOT NULL DEFAULT '',
    linkedin_profile   TEXT NOT NULL DEFAULT '',
    original_filename  TEXT NOT NULL DEFAULT '',
    status             TEXT NOT NULL,
    hosting_url        TEXT NOT NULL DEFAULT '',
    metadata           TEXT,
    message            TEXT NOT NULL DEFAULT '',
    updated_at         TEXT NOT NULL,
    render_job_id      TEXT NOT NULL DEFAULT '',
    render_url         TEXT NOT NULL DEFAULT '',
    poster_url         TEXT NOT NULL DEFAULT ''
)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_tasks_hosting_public_id ON tasks (hosting_public_id) WHERE hosting_public_id <> ''`,
		`CREATE INDEX IF NOT EXISTS idx_tasks_instagram_username ON tasks (instagram_username)`,
		`CREATE INDEX IF NOT EXISTS idx_tasks_email ON tasks (email)`,
		`CREATE INDEX IF NOT EXISTS idx_tasks_linkedin_profile ON tasks (linkedin_profile)`,
	}

	return s.withTx(ctx, func(tx *sql.Tx) error {
		for _, stmt := range statements {
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("ensure task schema: %w", err)
			}
		}
		return nil
	})
}

func (s *Store) Create(ctx context.Context, t *domain.Task) (*domain.Task, error) {
	out := t.Clone()
	out.Timestamp = s.timestamp()

	meta, err := encodeMetadata(out.Metadata)
	if err != nil {
		return nil, err
	}

	err = s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
INSERT INTO tasks (
    task_id, hosting_public_id, instagram_username, email, linkedin_profile,
    original_filename, status, hosting_url, metadata, message, updated_at,
    render_job_id, render_url, poster_url
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			out.TaskID, out.HostingPublicID, out.InstagramUsername, out.Email, out.LinkedinProfile,
			out.OriginalFilename, string(out.Status), out.HostingURL, meta, out.Message,
			out.Timestamp.Format(timeLayout), out.RenderJobID, out.RenderURL, out.PosterURL,
		)
		if err != nil {
			return err
		}
		out.ID, err = res.LastInsertId()
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("create task %s: %w", t.TaskID, err)
	}

	log.Ctx(ctx).Info().Str("task_id", out.TaskID).Msg("task added")
	return out, nil
}

func (s *Store) GetByTaskID(ctx context.Context, taskID string) (*domain.Task, error) {
	return s.getOne(ctx, `SELECT `+columns+` FROM tasks WHERE task_id = ?`, taskID)
}

func (s *Store) GetByHostingPublicID(ctx context.Context, publicID string) (*domain.Task, error) {
	if publicID == "" {
		return nil, domain.ErrTaskNotFound
	}
	return s.getOne(ctx, `SELECT `+columns+` FROM tasks WHERE hosting_public_id = ?`, publicID)
}

func (s *Store) Update(ctx context.Context, taskID string, fn func(t *domain.Task)) (*domain.Task, error) {
	var out *domain.Task

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		t, err := scanTask(tx.QueryRowContext(ctx, `SELECT `+columns+` FROM tasks WHERE task_id = ?`, taskID))
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ErrTaskNotFound
		}
		if err != nil {
			return err
		}

		fn(t)
		t.TaskID = taskID
		t.Timestamp = s.timestamp()

		meta, err := encodeMetadata(t.Metadata)
		if err != nil {
			return err
		}

		_, err = tx.ExecContext(ctx, `
UPDATE tasks SET
    hosting_public_id = ?, instagram_username = ?, email = ?, linkedin_profile = ?,
    original_filename = ?, status = ?, hosting_url = ?, metadata = ?, message = ?,
    updated_at = ?, render_job_id = ?, render_url = ?, poster_url = ?
WHERE id = ?`,
			t.HostingPublicID, t.InstagramUsername, t.Email, t.LinkedinProfile,
			t.OriginalFilename, string(t.Status), t.HostingURL, meta, t.Message,
			t.Timestamp.Format(timeLayout), t.RenderJobID, t.RenderURL, t.PosterURL, t.ID,
		)
		out = t
		return err
	})
	if errors.Is(err, domain.ErrTaskNotFound) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("update task %s: %w", taskID, err)
	}

	log.Ctx(ctx).Debug().Str("task_id", taskID).Str("status", string(out.Status)).Msg("task updated")
	return out, nil
}

func (s *Store) Delete(ctx context.Context, id int64) (bool, error) {
	var deleted bool
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `DELETE FROM tasks WHERE id = ?`, id)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		deleted = n > 0
		return err
	})
	if err != nil {
		return false, fmt.Errorf("delete task %d: %w", id, err)
	}
	if deleted {
		log.Ctx(ctx).Warn().Int64("id", id).Msg("task deleted")
	}
	return deleted, nil
}

func (s *Store) ListByOwner(ctx context.Context, owner domain.Owner) ([]*domain.Task, error) {
	var conds []string
	var args []any
	if owner.InstagramUsername != "" {
		conds = append(conds, "instagram_username = ?")
		args = append(args, owner.InstagramUsername)
	}
	if owner.Email != "" {
		conds = append(conds, "email = ?")
		args = append(args, owner.Email)
	}
	if owner.LinkedinProfile != "" {
		conds = append(conds, "linkedin_profile = ?")
		args = append(args, owner.LinkedinProfile)
	}
	if len(conds) == 0 {
		return []*domain.Task{}, nil
	}

	return s.getMany(ctx, `SELECT `+columns+` FROM tasks WHERE `+strings.Join(conds, " OR ")+
		` ORDER BY updated_at DESC, id DESC`, args...)
}

func (s *Store) ListPendingRenders(ctx context.Context) ([]*domain.Task, error) {
	tasks, err := s.getMany(ctx, `SELECT `+columns+` FROM tasks WHERE render_job_id <> '' ORDER BY updated_at`)
	if err != nil {
		return nil, err
	}

	pending := tasks[:0]
	for _, t := range tasks {
		if t.RenderOutstanding() {
			pending = append(pending, t)
		}
	}
	return pending, nil
}

func (s *Store) getOne(ctx context.Context, query string, args ...any) (*domain.Task, error) {
	t, err := scanTask(s.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrTaskNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get task: %w", err)
	}
	return t, nil
}

func (s *Store) getMany(ctx context.Context, query string, args ...any) ([]*domain.Task, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	tasks := []*domain.Task{}
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("list tasks: %w", err)
		}
		tasks = append(tasks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	return tasks, nil
}

func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
			return
		}
		err = tx.Commit()
	}()
	return fn(tx)
}

func (s *Store) timestamp() time.Time {
	return s.now().UTC()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanTask(row scanner) (*domain.Task, error) {
	var t domain.Task
	var status, updatedAt string
	var meta sql.NullString

	err := row.Scan(
		&t.ID, &t.TaskID, &t.HostingPublicID, &t.InstagramUsername, &t.Email, &t.LinkedinProfile,
		&t.OriginalFilename, &status, &t.HostingURL, &meta, &t.Message, &updatedAt,
		&t.RenderJobID, &t.RenderURL, &t.PosterURL,
	)
	if err != nil {
		return nil, err
	}

	t.Status = domain.TaskStatus(status)
	if t.Timestamp, err = time.Parse(timeLayout, updatedAt); err != nil {
		return nil, fmt.Errorf("decode timestamp of %s: %w", t.TaskID, err)
	}
	if meta.Valid && meta.String != "" {
		if err := json.Unmarshal([]byte(meta.String), &t.Metadata); err != nil {
			return nil, fmt.Errorf("decode metadata of %s: %w", t.TaskID, err)
		}
	}
	return &t, nil
}

func encodeMetadata(m domain.Metadata) (sql.NullString, error) {
	if m == nil {
		return sql.NullString{}, nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("encode metadata: %w", err)
	}
	return sql.NullString{String: string(b), Valid: true}, nil
}
