package ports

import (
	"context"

	"clipstack/internal/domain"
)

type TaskStore interface {
	Create(ctx context.Context, t *domain.Task) (*domain.Task, error)
	GetByTaskID(ctx context.Context, taskID string) (*domain.Task, error)
	GetByHostingPublicID(ctx context.Context, publicID string) (*domain.Task, error)
	// Update applies fn to the stored task inside one transaction and returns the result.
	Update(ctx context.Context, taskID string, fn func(t *domain.Task)) (*domain.Task, error)
	Delete(ctx context.Context, id int64) (bool, error)
	ListByOwner(ctx context.Context, owner domain.Owner) ([]*domain.Task, error)
	ListPendingRenders(ctx context.Context) ([]*domain.Task, error)
	EnsureSchema(ctx context.Context) error
	Close() error
}
