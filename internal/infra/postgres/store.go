package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"

	"clipstack/internal/domain"
	"clipstack/internal/ports"
)

const columns = `id, task_id, hosting_public_id, instagram_username, email, linkedin_profile,
	original_filename, status, hosting_url, metadata, message, updated_at,
	render_job_id, render_url, poster_url`

var _ ports.TaskStore = (*Store)(nil)

type Store struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

func Connect(ctx context.Context, url string) (*Store, error) {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	log.Ctx(ctx).Info().Msg("connected to postgres")
	return &Store{pool: pool, now: time.Now}, nil
}

func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

func (s *Store) EnsureSchema(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS tasks (
    id                 BIGSERIAL PRIMARY KEY,
    task_id            TEXT NOT NULL UNIQUE,
    hosting_public_id  TEXT NOT NULL DEFAULT '',
    instagram_username TEXT NOT NULL DEFAULT '',
    email              TEXT NOT NULL DEFAULT '',
    linkedin_profile   TEXT NOT NULL DEFAULT '',
    original_filename  TEXT NOT NULL DEFAULT '',
    status             TEXT NOT NULL,
    hosting_url        TEXT NOT NULL DEFAULT '',
    metadata           JSONB,
    message            TEXT NOT NULL DEFAULT '',
    updated_at         TIMESTAMPTZ NOT NULL DEFAULT now(),
    render_job_id      TEXT NOT NULL DEFAULT '',
    render_url         TEXT NOT NULL DEFAULT '',
    poster_url         TEXT NOT NULL DEFAULT ''
)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_tasks_hosting_public_id ON tasks (hosting_public_id) WHERE hosting_public_id <> ''`,
		`CREATE INDEX IF NOT EXISTS idx_tasks_instagram_username ON tasks (instagram_username)`,
		`CREATE INDEX IF NOT EXISTS idx_tasks_email ON tasks (email)`,
		`CREATE INDEX IF NOT EXISTS idx_tasks_linkedin_profile ON tasks (linkedin_profile)`,
		`CREATE INDEX IF NOT EXISTS idx_tasks_render_job_id ON tasks (render_job_id) WHERE render_job_id <> ''`,
	}

	for _, stmt := range statements {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure task schema: %w", err)
		}
	}
	return nil
}

func (s *Store) Create(ctx context.Context, t *domain.Task) (*domain.Task, error) {
	out := t.Clone()
	out.Timestamp = s.timestamp()

	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		return tx.QueryRow(ctx, `
INSERT INTO tasks (
    task_id, hosting_public_id, instagram_username, email, linkedin_profile,
    original_filename, status, hosting_url, metadata, message, updated_at,
    render_job_id, render_url, poster_url
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
RETURNING id`,
			out.TaskID, out.HostingPublicID, out.InstagramUsername, out.Email, out.LinkedinProfile,
			out.OriginalFilename, string(out.Status), out.HostingURL, out.Metadata, out.Message, out.Timestamp,
			out.RenderJobID, out.RenderURL, out.PosterURL,
		).Scan(&out.ID)
	})
	if err != nil {
		return nil, fmt.Errorf("create task %s: %w", t.TaskID, err)
	}

	log.Ctx(ctx).Info().Str("task_id", out.TaskID).Msg("task added")
	return out, nil
}

func (s *Store) GetByTaskID(ctx context.Context, taskID string) (*domain.Task, error) {
	return s.getOne(ctx, `SELECT `+columns+` FROM tasks WHERE task_id = $1`, taskID)
}

func (s *Store) GetByHostingPublicID(ctx context.Context, publicID string) (*domain.Task, error) {
	if publicID == "" {
		return nil, domain.ErrTaskNotFound
	}
	return s.getOne(ctx, `SELECT `+columns+` FROM tasks WHERE hosting_public_id = $1`, publicID)
}

func (s *Store) Update(ctx context.Context, taskID string, fn func(t *domain.Task)) (*domain.Task, error) {
	var out *domain.Task

	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		t, err := scanTask(tx.QueryRow(ctx, `SELECT `+columns+` FROM tasks WHERE task_id = $1 FOR UPDATE`, taskID))
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ErrTaskNotFound
		}
		if err != nil {
			return err
		}

		fn(t)
		t.TaskID = taskID
		t.Timestamp = s.timestamp()

		_, err = tx.Exec(ctx, `
UPDATE tasks SET
    hosting_public_id = $2, instagram_username = $3, email = $4, linkedin_profile = $5,
    original_filename = $6, status = $7, hosting_url = $8, metadata = $9, message = $10,
    updated_at = $11, render_job_id = $12, render_url = $13, poster_url = $14
WHERE id = $1`,
			t.ID, t.HostingPublicID, t.InstagramUsername, t.Email, t.LinkedinProfile,
			t.OriginalFilename, string(t.Status), t.HostingURL, t.Metadata, t.Message,
			t.Timestamp, t.RenderJobID, t.RenderURL, t.PosterURL,
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
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `DELETE FROM tasks WHERE id = $1`, id)
		deleted = tag.RowsAffected() > 0
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
	for col, v := range map[string]string{
		"instagram_username": owner.InstagramUsername,
		"email":              owner.Email,
		"linkedin_profile":   owner.LinkedinProfile,
	} {
		if v == "" {
			continue
		}
		args = append(args, v)
		conds = append(conds, fmt.Sprintf("%s = $%d", col, len(args)))
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
	var t *domain.Task
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		var err error
		t, err = scanTask(tx.QueryRow(ctx, query, args...))
		return err
	})
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrTaskNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get task: %w", err)
	}
	return t, nil
}

func (s *Store) getMany(ctx context.Context, query string, args ...any) ([]*domain.Task, error) {
	tasks := []*domain.Task{}
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			t, err := scanTask(rows)
			if err != nil {
				return err
			}
			tasks = append(tasks, t)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	return tasks, nil
}

// timestamp matches the microsecond precision of TIMESTAMPTZ so returned
// tasks compare equal to what a later read yields.
func (s *Store) timestamp() time.Time {
	return s.now().UTC().Truncate(time.Microsecond)
}

func scanTask(row pgx.Row) (*domain.Task, error) {
	var t domain.Task
	var status string
	var meta []byte

	err := row.Scan(
		&t.ID, &t.TaskID, &t.HostingPublicID, &t.InstagramUsername, &t.Email, &t.LinkedinProfile,
		&t.OriginalFilename, &status, &t.HostingURL, &meta, &t.Message, &t.Timestamp,
		&t.RenderJobID, &t.RenderURL, &t.PosterURL,
	)
	if err != nil {
		return nil, err
	}

	t.Status = domain.TaskStatus(status)
	t.Timestamp = t.Timestamp.UTC()
	if len(meta) > 0 {
		if err := json.Unmarshal(meta, &t.Metadata); err != nil {
			return nil, fmt.Errorf("decode metadata of %s: %w", t.TaskID, err)
		}
	}
	return &t, nil
}
