package ports

import (
	"context"
	"io"

	"clipstack/internal/domain"
)

type Hosting interface {
	Upload(ctx context.Context, r io.Reader, publicID string) (domain.Metadata, error)
	Exists(ctx context.Context, publicID string) bool
	Delete(ctx context.Context, publicID string) error
	// PublicID returns the provider path for an owner's asset.
	PublicID(ownerKey, name string) string
}

// RenderSource is one clip of a render timeline.
type RenderSource struct {
	URL      string
	Metadata domain.Metadata
}

type Decoration struct {
	Title      string
	Transition string
}

type Renderer interface {
	Submit(ctx context.Context, sources []RenderSource, deco Decoration) (string, error)
	Status(ctx context.Context, jobID string) (domain.RenderStatus, error)
}
