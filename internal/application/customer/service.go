// Package customer holds the customer use cases. Every operation runs against
// the datasource of the tenant active in the caller's context.
package customer

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ampairs/backend/internal/domain/customer"
	"github.com/ampairs/backend/internal/domain/shared"
	"github.com/ampairs/backend/internal/infrastructure/logger"
	"github.com/ampairs/backend/internal/infrastructure/tenancy"
)

// Service handles customer-related business operations
type Service struct {
	repo      customer.Repository
	publisher shared.EventPublisher
}

// NewService creates a new customer Service
func NewService(repo customer.Repository, publisher shared.EventPublisher) *Service {
	return &Service{repo: repo, publisher: publisher}
}

// Create creates a new customer for the tenant in ctx
func (s *Service) Create(ctx context.Context, req CreateCustomerRequest) (*CustomerResponse, error) {
	tenantID, err := tenancy.RequireFromContext(ctx)
	if err != nil {
		return nil, err
	}

	exists, err := s.repo.ExistsByCode(ctx, req.Code)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, customer.ErrCodeTaken
	}

	c, err := customer.New(tenantID.String(), req.Code, req.Name)
	if err != nil {
		return nil, err
	}
	if req.Phone != "" || req.Email != "" {
		if err := c.SetContact(req.Phone, req.Email); err != nil {
			return nil, err
		}
	}
	if req.CreditLimit != nil {
		if err := c.SetCreditLimit(*req.CreditLimit); err != nil {
			return nil, err
		}
	}
	c.GSTIN = strings.ToUpper(strings.TrimSpace(req.GSTIN))
	c.City = strings.TrimSpace(req.City)

	if err := s.repo.Save(ctx, c); err != nil {
		return nil, err
	}

	// the customer is stored; a failed publish only loses the activity entry
	if err := s.publisher.PublishAsync(ctx, c.PullDomainEvents()...); err != nil {
		logger.L(ctx).Warn("Failed to publish customer events",
			zap.String("customer_id", c.ID.String()),
			zap.Error(err),
		)
	}

	response := ToCustomerResponse(c)
	return &response, nil
}

// GetByID retrieves a customer by ID
func (s *Service) GetByID(ctx context.Context, id uuid.UUID) (*CustomerResponse, error) {
	c, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	response := ToCustomerResponse(c)
	return &response, nil
}

// List returns one page of customers and the total count
func (s *Service) List(ctx context.Context, filter CustomerListFilter) ([]CustomerResponse, int64, error) {
	f := shared.DefaultFilter()
	f.Search = strings.TrimSpace(filter.Search)
	if filter.Page > 0 {
		f.Page = filter.Page
	}
	if filter.PageSize > 0 {
		f.PageSize = filter.PageSize
	}
	if filter.OrderBy != "" {
		f.OrderBy = filter.OrderBy
	}
	if filter.OrderDir != "" {
		f.OrderDir = filter.OrderDir
	}

	customers, total, err := s.repo.FindAll(ctx, f.Normalize())
	if err != nil {
		return nil, 0, err
	}
	result := make([]CustomerResponse, len(customers))
	for i := range customers {
		result[i] = ToCustomerResponse(&customers[i])
	}
	return result, total, nil
}
