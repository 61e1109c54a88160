package persistence

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/ampairs/backend/internal/domain/customer"
	"github.com/ampairs/backend/internal/domain/shared"
	"github.com/ampairs/backend/internal/infrastructure/persistence/models"
)

// Sessions opens a gorm session on the datasource of the tenant carried by ctx.
// tenant.SessionFactory is the production implementation.
type Sessions interface {
	Session(ctx context.Context) (*gorm.DB, error)
}

// GormCustomerRepository implements customer.Repository on the tenant's datasource.
type GormCustomerRepository struct {
	sessions Sessions
}

// NewGormCustomerRepository creates a new GormCustomerRepository
func NewGormCustomerRepository(sessions Sessions) *GormCustomerRepository {
	return &GormCustomerRepository{sessions: sessions}
}

// FindByID finds a customer by its ID
func (r *GormCustomerRepository) FindByID(ctx context.Context, id uuid.UUID) (*customer.Customer, error) {
	db, err := r.sessions.Session(ctx)
	if err != nil {
		return nil, err
	}
	var model models.CustomerModel
	if err := db.First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, customer.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindAll returns one page of customers and the total matching the filter
func (r *GormCustomerRepository) FindAll(ctx context.Context, filter shared.Filter) ([]customer.Customer, int64, error) {
	db, err := r.sessions.Session(ctx)
	if err != nil {
		return nil, 0, err
	}
	filter = filter.Normalize()

	query := db.Model(&models.CustomerModel{})
	if filter.Search != "" {
		pattern := "%" + strings.ToLower(filter.Search) + "%"
		query = query.Where("LOWER(name) LIKE ? OR LOWER(code) LIKE ? OR phone LIKE ?", pattern, pattern, pattern)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var rows []models.CustomerModel
	if err := query.
		Order(customerOrder(filter)).
		Offset(filter.Offset()).
		Limit(filter.PageSize).
		Find(&rows).Error; err != nil {
		return nil, 0, err
	}

	customers := make([]customer.Customer, len(rows))
	for i := range rows {
		customers[i] = *rows[i].ToDomain()
	}
	return customers, total, nil
}

// customerSortColumns maps the sort keys accepted from clients to columns.
// Anything else falls back to created_at so no client text reaches ORDER BY.
var customerSortColumns = map[string]string{
	"id":           "id",
	"code":         "code",
	"name":         "name",
	"city":         "city",
	"status":       "status",
	"credit_limit": "credit_limit",
	"created_at":   "created_at",
	"updated_at":   "updated_at",
	"createdAt":    "created_at",
	"updatedAt":    "updated_at",
	"creditLimit":  "credit_limit",
}

func customerOrder(filter shared.Filter) string {
	column, ok := customerSortColumns[strings.TrimSpace(filter.OrderBy)]
	if !ok {
		column = "created_at"
	}
	if strings.EqualFold(strings.TrimSpace(filter.OrderDir), "asc") {
		return column + " ASC"
	}
	return column + " DESC"
}

// ExistsByCode checks if a customer code is already in use
func (r *GormCustomerRepository) ExistsByCode(ctx context.Context, code string) (bool, error) {
	db, err := r.sessions.Session(ctx)
	if err != nil {
		return false, err
	}
	var count int64
	if err := db.Model(&models.CustomerModel{}).
		Where("code = ?", strings.ToUpper(code)).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// Save creates or updates a customer
func (r *GormCustomerRepository) Save(ctx context.Context, c *customer.Customer) error {
	db, err := r.sessions.Session(ctx)
	if err != nil {
		return err
	}
	return db.Save(models.CustomerFromDomain(c)).Error
}

// Ensure GormCustomerRepository implements customer.Repository
var _ customer.Repository = (*GormCustomerRepository)(nil)
