package documents

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type CreateQuotationRequest struct {
	CompanyID    uuid.UUID           `json:"company_id" validate:"required"`
	ContactName  string              `json:"contact_name" validate:"required,max=200"`
	ContactEmail string              `json:"contact_email" validate:"omitempty,email"`
	ContactPhone string              `json:"contact_phone" validate:"omitempty,max=50"`
	IssueDate    time.Time           `json:"issue_date" validate:"required"`
	ValidityDays int                 `json:"validity_days" validate:"required,gt=0,lte=365"`
	Discount     decimal.Decimal     `json:"discount"`
	Items        []CreateItemRequest `json:"items" validate:"required,min=1,dive"`
}

type CreateItemRequest struct {
	ProductCode string          `json:"product_code" validate:"required,max=50"`
	ProductName string          `json:"product_name" validate:"required,max=200"`
	Unit        string          `json:"unit" validate:"required,max=20"`
	Quantity    decimal.Decimal `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	// TaxConfigID resolves the snapshot tax rate through the active tax
	// configuration; TaxRate is used directly when no config is given.
	TaxConfigID *uuid.UUID      `json:"tax_config_id,omitempty"`
	TaxRate     decimal.Decimal `json:"tax_rate"`
}

type UpdateQuotationRequest struct {
	ContactName  *string              `json:"contact_name,omitempty" validate:"omitempty,max=200"`
	ContactEmail *string              `json:"contact_email,omitempty" validate:"omitempty,email"`
	ContactPhone *string              `json:"contact_phone,omitempty" validate:"omitempty,max=50"`
	IssueDate    *time.Time           `json:"issue_date,omitempty"`
	ValidityDays *int                 `json:"validity_days,omitempty" validate:"omitempty,gt=0,lte=365"`
	Discount     *decimal.Decimal     `json:"discount,omitempty"`
	Items        *[]CreateItemRequest `json:"items,omitempty" validate:"omitempty,min=1,dive"`
}

type ChangeStatusRequest struct {
	Status string `json:"status" validate:"required"`
	Reason string `json:"reason,omitempty" validate:"max=500"`
}

// ConversionResult is the orchestrator's outcome. An idempotent repeat is a
// success pointing at the existing order, not an error.
type ConversionResult struct {
	Success bool      `json:"success"`
	Order   *Document `json:"order,omitempty"`
	Message string    `json:"message"`
	Errors  []string  `json:"errors,omitempty"`
}
