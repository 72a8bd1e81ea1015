package usecase

import (
	"context"
	"errors"
	"io"
	"sort"
	"sync"
	"time"

	"clipstack/internal/domain"
	"clipstack/internal/infra/memlock"
	"clipstack/internal/ports"
)

type memStore struct {
	mu    sync.Mutex
	seq   int64
	clock time.Time
	tasks map[string]*domain.Task
}

func newMemStore() *memStore {
	return &memStore{
		clock: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		tasks: map[string]*domain.Task{},
	}
}

func (s *memStore) tick() time.Time {
	s.clock = s.clock.Add(time.Second)
	return s.clock
}

func (s *memStore) Create(_ context.Context, t *domain.Task) (*domain.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.tasks[t.TaskID]; ok {
		return nil, errors.New("duplicate task id")
	}
	s.seq++
	c := t.Clone()
	c.ID = s.seq
	c.Timestamp = s.tick()
	s.tasks[c.TaskID] = c
	return c.Clone(), nil
}

func (s *memStore) GetByTaskID(_ context.Context, taskID string) (*domain.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tasks[taskID]
	if !ok {
		return nil, domain.ErrTaskNotFound
	}
	return t.Clone(), nil
}

func (s *memStore) GetByHostingPublicID(_ context.Context, publicID string) (*domain.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, t := range s.tasks {
		if publicID != "" && t.HostingPublicID == publicID {
			return t.Clone(), nil
		}
	}
	return nil, domain.ErrTaskNotFound
}

func (s *memStore) Update(_ context.Context, taskID string, fn func(t *domain.Task)) (*domain.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tasks[taskID]
	if !ok {
		return nil, domain.ErrTaskNotFound
	}
	c := t.Clone()
	fn(c)
	c.TaskID = taskID
	c.Timestamp = s.tick()
	s.tasks[taskID] = c
	return c.Clone(), nil
}

func (s *memStore) Delete(_ context.Context, id int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for k, t := range s.tasks {
		if t.ID == id {
			delete(s.tasks, k)
			return true, nil
		}
	}
	return false, nil
}

func (s *memStore) ListByOwner(_ context.Context, o domain.Owner) ([]*domain.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := []*domain.Task{}
	for _, t := range s.tasks {
		if (o.InstagramUsername != "" && t.InstagramUsername == o.InstagramUsername) ||
			(o.Email != "" && t.Email == o.Email) ||
			(o.LinkedinProfile != "" && t.LinkedinProfile == o.LinkedinProfile) {
			out = append(out, t.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	return out, nil
}

func (s *memStore) ListPendingRenders(_ context.Context) ([]*domain.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := []*domain.Task{}
	for _, t := range s.tasks {
		if t.RenderOutstanding() {
			out = append(out, t.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *memStore) EnsureSchema(context.Context) error { return nil }
func (s *memStore) Close() error                       { return nil }

func (s *memStore) put(t *domain.Task) *domain.Task {
	created, err := s.Create(context.Background(), t)
	if err != nil {
		panic(err)
	}
	return created
}

type fakeHosting struct {
	UploadFunc func(ctx context.Context, r io.Reader, publicID string) (domain.Metadata, error)
	ExistsFunc func(ctx context.Context, publicID string) bool
	DeleteFunc func(ctx context.Context, publicID string) error

	mu       sync.Mutex
	uploaded []string
	deleted  []string
}

func (f *fakeHosting) Upload(ctx context.Context, r io.Reader, publicID string) (domain.Metadata, error) {
	f.mu.Lock()
	f.uploaded = append(f.uploaded, publicID)
	f.mu.Unlock()
	return f.UploadFunc(ctx, r, publicID)
}

func (f *fakeHosting) Exists(ctx context.Context, publicID string) bool {
	if f.ExistsFunc == nil {
		return true
	}
	return f.ExistsFunc(ctx, publicID)
}

func (f *fakeHosting) Delete(ctx context.Context, publicID string) error {
	f.mu.Lock()
	f.deleted = append(f.deleted, publicID)
	f.mu.Unlock()
	if f.DeleteFunc == nil {
		return nil
	}
	return f.DeleteFunc(ctx, publicID)
}

func (f *fakeHosting) PublicID(ownerKey, name string) string {
	return "videos/" + ownerKey + "/" + name
}

type fakeRenderer struct {
	SubmitFunc func(ctx context.Context, sources []ports.RenderSource, deco ports.Decoration) (string, error)
	StatusFunc func(ctx context.Context, jobID string) (domain.RenderStatus, error)

	mu      sync.Mutex
	submits [][]ports.RenderSource
	decos   []ports.Decoration
	polls   int
}

func (f *fakeRenderer) Submit(ctx context.Context, sources []ports.RenderSource, deco ports.Decoration) (string, error) {
	f.mu.Lock()
	f.submits = append(f.submits, sources)
	f.decos = append(f.decos, deco)
	f.mu.Unlock()
	return f.SubmitFunc(ctx, sources, deco)
}

func (f *fakeRenderer) Status(ctx context.Context, jobID string) (domain.RenderStatus, error) {
	f.mu.Lock()
	f.polls++
	f.mu.Unlock()
	return f.StatusFunc(ctx, jobID)
}

func (f *fakeRenderer) submitCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.submits)
}

type fixture struct {
	store    *memStore
	hosting  *fakeHosting
	renderer *fakeRenderer
	lc       *Lifecycle
}

func newFixture() *fixture {
	f := &fixture{
		store:   newMemStore(),
		hosting: &fakeHosting{},
		renderer: &fakeRenderer{
			SubmitFunc: func(context.Context, []ports.RenderSource, ports.Decoration) (string, error) {
				return "job-1", nil
			},
			StatusFunc: func(context.Context, string) (domain.RenderStatus, error) {
				return domain.RenderStatus{Status: "rendering"}, nil
			},
		},
	}
	f.lc = NewLifecycle(f.store, f.hosting, f.renderer, memlock.New())

	var n int
	f.lc.newID = func() string {
		n++
		return []string{"aaaaaaaa-1111", "bbbbbbbb-2222", "cccccccc-3333", "dddddddd-4444"}[(n-1)%4]
	}
	return f
}

func fullMetadata(duration float64) domain.Metadata {
	return domain.Metadata{
		"secure_url": "https://res.example/clip.mp4",
		"duration":   duration,
		"width":      1280.0,
		"height":     720.0,
		"bytes":      5000000.0,
	}
}

func completedTask(id, user string, duration float64) *domain.Task {
	return &domain.Task{
		TaskID:            id,
		HostingPublicID:   "videos/" + user + "/" + id,
		InstagramUsername: user,
		OriginalFilename:  id + ".mp4",
		Status:            domain.StatusCompleted,
		HostingURL:        "https://res.example/" + id + ".mp4",
		Metadata:          fullMetadata(duration),
	}
}
