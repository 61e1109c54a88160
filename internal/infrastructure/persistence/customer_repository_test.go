package persistence

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ampairs/backend/internal/domain/customer"
	"github.com/ampairs/backend/internal/domain/shared"
	"github.com/ampairs/backend/internal/infrastructure/tenancy"
)

func newCustomer(t *testing.T, tenantID, code, name string) *customer.Customer {
	t.Helper()
	c, err := customer.New(tenantID, code, name)
	require.NoError(t, err)
	return c
}

func TestGormCustomerRepository_SaveAndFind(t *testing.T) {
	repo := NewGormCustomerRepository(tenantSessions(t, "acme-corp"))
	ctx := tenantCtx("acme-corp")

	c := newCustomer(t, "acme-corp", "c-001", "Road Runner Supplies")
	require.NoError(t, c.SetCreditLimit(decimal.RequireFromString("1250.50")))
	require.NoError(t, repo.Save(ctx, c))

	found, err := repo.FindByID(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, "C-001", found.Code)
	assert.Equal(t, "1250.50", found.CreditLimit.StringFixed(2))

	found.Deactivate()
	require.NoError(t, repo.Save(ctx, found))

	again, err := repo.FindByID(ctx, c.ID)
	require.NoError(t, err)
	assert.False(t, again.IsActive())
	assert.Equal(t, 2, again.GetVersion())

	_, err = repo.FindByID(ctx, uuid.New())
	assert.ErrorIs(t, err, customer.ErrNotFound)
}

// The same repository instance serves each tenant from its own database.
func TestGormCustomerRepository_TenantIsolation(t *testing.T) {
	repo := NewGormCustomerRepository(tenantSessions(t, "acme-corp", "globex"))

	acme := newCustomer(t, "acme-corp", "c-001", "Acme Only")
	require.NoError(t, repo.Save(tenantCtx("acme-corp"), acme))

	_, err := repo.FindByID(tenantCtx("globex"), acme.ID)
	assert.ErrorIs(t, err, customer.ErrNotFound)

	exists, err := repo.ExistsByCode(tenantCtx("globex"), "C-001")
	require.NoError(t, err)
	assert.False(t, exists)

	exists, err = repo.ExistsByCode(tenantCtx("acme-corp"), "c-001")
	require.NoError(t, err)
	assert.True(t, exists)

	_, total, err := repo.FindAll(context.Background(), shared.DefaultFilter())
	require.NoError(t, err)
	assert.Zero(t, total, "no tenant reads the shared database")
}

func TestGormCustomerRepository_UnknownTenant(t *testing.T) {
	repo := NewGormCustomerRepository(tenantSessions(t, "acme-corp"))
	ctx := tenantCtx("initech")

	_, err := repo.FindByID(ctx, uuid.New())
	assert.ErrorIs(t, err, tenancy.ErrUnknownTenant)
	_, _, err = repo.FindAll(ctx, shared.DefaultFilter())
	assert.ErrorIs(t, err, tenancy.ErrUnknownTenant)
	assert.ErrorIs(t, repo.Save(ctx, newCustomer(t, "initech", "c-1", "x")), tenancy.ErrUnknownTenant)
}

func TestGormCustomerRepository_FindAll(t *testing.T) {
	repo := NewGormCustomerRepository(tenantSessions(t, "acme-corp"))
	ctx := tenantCtx("acme-corp")

	for i := 1; i <= 5; i++ {
		require.NoError(t, repo.Save(ctx, newCustomer(t, "acme-corp", fmt.Sprintf("c-%03d", i), fmt.Sprintf("Customer %d", i))))
	}
	require.NoError(t, repo.Save(ctx, newCustomer(t, "acme-corp", "w-001", "Wile E. Coyote")))

	tests := []struct {
		name   string
		filter shared.Filter
		total  int64
		codes  []string
	}{
		{"first page", shared.Filter{Page: 1, PageSize: 2, OrderBy: "code", OrderDir: "asc"}, 6, []string{"C-001", "C-002"}},
		{"last page", shared.Filter{Page: 3, PageSize: 2, OrderBy: "code", OrderDir: "asc"}, 6, []string{"C-005", "W-001"}},
		{"search", shared.Filter{Search: "coyote"}, 1, []string{"W-001"}},
		{"bad sort falls back", shared.Filter{PageSize: 1, OrderBy: "1; DROP TABLE customers", OrderDir: "asc"}, 6, []string{"C-001"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			list, total, err := repo.FindAll(ctx, tt.filter)
			require.NoError(t, err)
			assert.Equal(t, tt.total, total)
			codes := make([]string, len(list))
			for i := range list {
				codes[i] = list[i].Code
			}
			assert.Equal(t, tt.codes, codes)
		})
	}
}

func TestCustomerOrder(t *testing.T) {
	tests := []struct {
		orderBy, orderDir, want string
	}{
		{"name", "asc", "name ASC"},
		{"creditLimit", "ASC ", "credit_limit ASC"},
		{"", "", "created_at DESC"},
		{"name desc, (select 1)", "asc", "created_at ASC"},
		{"city", "sideways", "city DESC"},
	}
	for _, tt := range tests {
		got := customerOrder(shared.Filter{OrderBy: tt.orderBy, OrderDir: tt.orderDir})
		assert.Equal(t, tt.want, got, "%q %q", tt.orderBy, tt.orderDir)
	}
}
