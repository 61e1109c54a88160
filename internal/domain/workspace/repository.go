package workspace

import (
	"context"

	"github.com/google/uuid"

	"github.com/ampairs/backend/internal/domain/shared"
)

// ErrNotFound is returned when no workspace has the requested slug
var ErrNotFound = shared.NewDomainError("NOT_FOUND", "Workspace not found")

// Repository persists workspaces in the master database
type Repository interface {
	FindBySlug(ctx context.Context, slug string) (*Workspace, error)
	FindActive(ctx context.Context) ([]Workspace, error)
	Save(ctx context.Context, w *Workspace) error
	AddMember(ctx context.Context, m Member) error
	IsMember(ctx context.Context, slug string, userID uuid.UUID) (bool, error)
}
