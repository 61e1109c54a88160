// Package customer holds the customer aggregate. Customers live inside a
// tenant's own datasource, so the entity carries no tenant column: the
// datasource it was loaded from is its tenant.
package customer

import (
	"net/mail"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/ampairs/backend/internal/domain/shared"
)

// Status represents the status of a customer
type Status string

const (
	StatusActive   Status = "active"
	StatusInactive Status = "inactive"
)

var (
	codePattern  = regexp.MustCompile(`^[A-Za-z0-9_-]{1,50}$`)
	phonePattern = regexp.MustCompile(`^\+?[0-9 ()-]{6,20}$`)
)

// Customer is the aggregate root for customer operations
type Customer struct {
	shared.BaseAggregateRoot
	Code        string
	Name        string
	Phone       string
	Email       string
	GSTIN       string
	City        string
	Status      Status
	CreditLimit decimal.Decimal
}

// New creates a customer owned by tenantID and records a CustomerCreated event.
func New(tenantID, code, name string) (*Customer, error) {
	code = strings.TrimSpace(code)
	name = strings.TrimSpace(name)
	if !codePattern.MatchString(code) {
		return nil, shared.NewDomainError("INVALID_CODE", "Customer code must be 1-50 letters, digits, '-' or '_'")
	}
	if err := validateName(name); err != nil {
		return nil, err
	}

	c := &Customer{
		BaseAggregateRoot: shared.NewBaseAggregateRoot(),
		Code:              strings.ToUpper(code),
		Name:              name,
		Status:            StatusActive,
		CreditLimit:       decimal.Zero,
	}
	c.AddDomainEvent(NewCreatedEvent(c, tenantID))
	return c, nil
}

// SetContact sets phone and email. Empty values clear the field.
func (c *Customer) SetContact(phone, email string) error {
	phone = strings.TrimSpace(phone)
	email = strings.TrimSpace(email)
	if phone != "" && !phonePattern.MatchString(phone) {
		return shared.NewDomainError("INVALID_PHONE", "Invalid phone number")
	}
	if email != "" {
		if _, err := mail.ParseAddress(email); err != nil {
			return shared.NewDomainError("INVALID_EMAIL", "Invalid email address")
		}
	}
	c.Phone = phone
	c.Email = email
	c.Touch()
	return nil
}

// SetCreditLimit sets the credit limit; negative limits are rejected
func (c *Customer) SetCreditLimit(limit decimal.Decimal) error {
	if limit.IsNegative() {
		return shared.NewDomainError("INVALID_CREDIT_LIMIT", "Credit limit cannot be negative")
	}
	c.CreditLimit = limit.Round(2)
	c.Touch()
	return nil
}

// Deactivate marks the customer inactive
func (c *Customer) Deactivate() {
	c.Status = StatusInactive
	c.IncrementVersion()
}

// IsActive reports whether the customer can be transacted with
func (c *Customer) IsActive() bool {
	return c.Status == StatusActive
}

func validateName(name string) error {
	if name == "" {
		return shared.NewDomainError("INVALID_NAME", "Customer name cannot be empty")
	}
	if len(name) > 200 {
		return shared.NewDomainError("INVALID_NAME", "Customer name cannot exceed 200 characters")
	}
	return nil
}
