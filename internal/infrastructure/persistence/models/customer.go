package models

import (
	"github.com/shopspring/decimal"

	"github.com/ampairs/backend/internal/domain/customer"
)

// CustomerModel is the persistence model for the Customer domain entity.
type CustomerModel struct {
	AggregateModel
	Code        string          `gorm:"type:varchar(50);not null;uniqueIndex"`
	Name        string          `gorm:"type:varchar(200);not null"`
	Phone       string          `gorm:"type:varchar(50);index"`
	Email       string          `gorm:"type:varchar(200)"`
	GSTIN       string          `gorm:"column:gstin;type:varchar(15)"`
	City        string          `gorm:"type:varchar(100)"`
	Status      customer.Status `gorm:"type:varchar(20);not null;default:'active'"`
	CreditLimit decimal.Decimal `gorm:"type:decimal(18,2);not null;default:0"`
}

// TableName returns the table name for GORM
func (CustomerModel) TableName() string {
	return "customers"
}

// ToDomain converts the persistence model to a domain Customer entity.
func (m *CustomerModel) ToDomain() *customer.Customer {
	return &customer.Customer{
		BaseAggregateRoot: m.Aggregate(),
		Code:              m.Code,
		Name:              m.Name,
		Phone:             m.Phone,
		Email:             m.Email,
		GSTIN:             m.GSTIN,
		City:              m.City,
		Status:            m.Status,
		CreditLimit:       m.CreditLimit,
	}
}

// CustomerFromDomain creates a new persistence model from a domain Customer.
func CustomerFromDomain(c *customer.Customer) *CustomerModel {
	m := &CustomerModel{
		Code:        c.Code,
		Name:        c.Name,
		Phone:       c.Phone,
		Email:       c.Email,
		GSTIN:       c.GSTIN,
		City:        c.City,
		Status:      c.Status,
		CreditLimit: c.CreditLimit,
	}
	m.SetAggregate(c.BaseAggregateRoot)
	return m
}
