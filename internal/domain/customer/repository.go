package customer

import (
	"context"

	"github.com/google/uuid"

	"github.com/ampairs/backend/internal/domain/shared"
)

// ErrNotFound is returned when a customer does not exist in the tenant's datasource
var ErrNotFound = shared.NewDomainError("NOT_FOUND", "Customer not found")

// ErrCodeTaken is returned when another customer already uses the code
var ErrCodeTaken = shared.NewDomainError("ALREADY_EXISTS", "Customer code already exists")

// Repository defines customer persistence. Every method runs against the
// datasource of the tenant carried by ctx.
type Repository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*Customer, error)
	FindAll(ctx context.Context, filter shared.Filter) ([]Customer, int64, error)
	ExistsByCode(ctx context.Context, code string) (bool, error)
	Save(ctx context.Context, c *Customer) error
}
