package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	customerapp "github.com/ampairs/backend/internal/application/customer"
	"github.com/ampairs/backend/internal/domain/shared"
	"github.com/ampairs/backend/internal/infrastructure/tenancy"
	"github.com/ampairs/backend/internal/interfaces/http/dto"
)

type MockCustomerService struct {
	mock.Mock
}

func (m *MockCustomerService) Create(ctx context.Context, req customerapp.CreateCustomerRequest) (*customerapp.CustomerResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*customerapp.CustomerResponse), args.Error(1)
}

func (m *MockCustomerService) GetByID(ctx context.Context, id uuid.UUID) (*customerapp.CustomerResponse, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*customerapp.CustomerResponse), args.Error(1)
}

func (m *MockCustomerService) List(ctx context.Context, filter customerapp.CustomerListFilter) ([]customerapp.CustomerResponse, int64, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, 0, args.Error(2)
	}
	return args.Get(0).([]customerapp.CustomerResponse), args.Get(1).(int64), args.Error(2)
}

func newCustomerRouter(svc CustomerService) *gin.Engine {
	h := NewCustomerHandler(svc)
	r := gin.New()
	r.POST("/customers", h.Create)
	r.GET("/customers", h.List)
	r.GET("/customers/:id", h.GetByID)
	return r
}

func sampleCustomer() *customerapp.CustomerResponse {
	now := time.Now().UTC()
	return &customerapp.CustomerResponse{
		ID:          uuid.New(),
		Code:        "C-001",
		Name:        "Sharma Traders",
		Status:      "active",
		CreditLimit: decimal.NewFromInt(5000),
		CreatedAt:   now,
		UpdatedAt:   now,
		Version:     1,
	}
}

func TestCustomerHandler_Create(t *testing.T) {
	t.Run("created", func(t *testing.T) {
		svc := new(MockCustomerService)
		created := sampleCustomer()
		svc.On("Create", mock.Anything, mock.MatchedBy(func(req customerapp.CreateCustomerRequest) bool {
			return req.Code == "C-001" && req.Name == "Sharma Traders"
		})).Return(created, nil)

		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/customers", strings.NewReader(`{"code":"C-001","name":"Sharma Traders"}`))
		req.Header.Set("Content-Type", "application/json")
		newCustomerRouter(svc).ServeHTTP(w, req)

		assert.Equal(t, http.StatusCreated, w.Code)
		var resp struct {
			Data customerapp.CustomerResponse `json:"data"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, created.ID, resp.Data.ID)
		svc.AssertExpectations(t)
	})

	t.Run("binding failure never reaches the service", func(t *testing.T) {
		svc := new(MockCustomerService)

		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/customers", strings.NewReader(`{"code":"C-001"}`))
		req.Header.Set("Content-Type", "application/json")
		newCustomerRouter(svc).ServeHTTP(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, dto.ErrCodeValidation, decodeResponse(t, w).Error.Code)
		svc.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	})

	t.Run("duplicate code", func(t *testing.T) {
		svc := new(MockCustomerService)
		svc.On("Create", mock.Anything, mock.Anything).
			Return(nil, shared.NewDomainError("ALREADY_EXISTS", "Customer code already exists"))

		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/customers", strings.NewReader(`{"code":"C-001","name":"Dup"}`))
		req.Header.Set("Content-Type", "application/json")
		newCustomerRouter(svc).ServeHTTP(w, req)

		assert.Equal(t, http.StatusConflict, w.Code)
		assert.Equal(t, dto.ErrCodeAlreadyExists, decodeResponse(t, w).Error.Code)
	})

	t.Run("datasource down", func(t *testing.T) {
		svc := new(MockCustomerService)
		svc.On("Create", mock.Anything, mock.Anything).Return(nil, tenancy.ErrConnectionUnavailable)

		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/customers", strings.NewReader(`{"code":"C-002","name":"Down"}`))
		req.Header.Set("Content-Type", "application/json")
		newCustomerRouter(svc).ServeHTTP(w, req)

		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
		assert.Equal(t, dto.ErrCodeDataSourceUnavailable, decodeResponse(t, w).Error.Code)
	})
}

func TestCustomerHandler_GetByID(t *testing.T) {
	t.Run("found", func(t *testing.T) {
		svc := new(MockCustomerService)
		found := sampleCustomer()
		svc.On("GetByID", mock.Anything, found.ID).Return(found, nil)

		w := httptest.NewRecorder()
		newCustomerRouter(svc).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/customers/"+found.ID.String(), nil))

		assert.Equal(t, http.StatusOK, w.Code)
		svc.AssertExpectations(t)
	})

	t.Run("malformed id", func(t *testing.T) {
		svc := new(MockCustomerService)

		w := httptest.NewRecorder()
		newCustomerRouter(svc).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/customers/not-a-uuid", nil))

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, dto.ErrCodeBadRequest, decodeResponse(t, w).Error.Code)
		svc.AssertNotCalled(t, "GetByID", mock.Anything, mock.Anything)
	})

	t.Run("not found", func(t *testing.T) {
		svc := new(MockCustomerService)
		id := uuid.New()
		svc.On("GetByID", mock.Anything, id).Return(nil, shared.ErrNotFound)

		w := httptest.NewRecorder()
		newCustomerRouter(svc).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/customers/"+id.String(), nil))

		assert.Equal(t, http.StatusNotFound, w.Code)
		assert.Equal(t, dto.ErrCodeNotFound, decodeResponse(t, w).Error.Code)
	})
}

func TestCustomerHandler_List(t *testing.T) {
	t.Run("defaults pagination meta", func(t *testing.T) {
		svc := new(MockCustomerService)
		svc.On("List", mock.Anything, customerapp.CustomerListFilter{Search: "sharma"}).
			Return([]customerapp.CustomerResponse{*sampleCustomer()}, int64(41), nil)

		w := httptest.NewRecorder()
		newCustomerRouter(svc).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/customers?search=sharma", nil))

		require.Equal(t, http.StatusOK, w.Code)
		resp := decodeResponse(t, w)
		require.NotNil(t, resp.Meta)
		assert.Equal(t, int64(41), resp.Meta.Total)
		assert.Equal(t, 1, resp.Meta.Page)
		assert.Equal(t, 20, resp.Meta.PageSize)
		assert.Equal(t, 3, resp.Meta.TotalPages)
	})

	t.Run("explicit page", func(t *testing.T) {
		svc := new(MockCustomerService)
		svc.On("List", mock.Anything, customerapp.CustomerListFilter{Page: 2, PageSize: 10, OrderDir: "asc"}).
			Return([]customerapp.CustomerResponse{}, int64(11), nil)

		w := httptest.NewRecorder()
		newCustomerRouter(svc).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/customers?page=2&page_size=10&order_dir=asc", nil))

		require.Equal(t, http.StatusOK, w.Code)
		resp := decodeResponse(t, w)
		assert.Equal(t, 2, resp.Meta.Page)
		assert.Equal(t, 2, resp.Meta.TotalPages)
	})

	t.Run("invalid page size", func(t *testing.T) {
		svc := new(MockCustomerService)

		w := httptest.NewRecorder()
		newCustomerRouter(svc).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/customers?page_size=500", nil))

		assert.Equal(t, http.StatusBadRequest, w.Code)
		svc.AssertNotCalled(t, "List", mock.Anything, mock.Anything)
	})
}
