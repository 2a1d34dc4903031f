// Package documents implements the commercial document lifecycle: quotations,
// their approval workflow, and conversion into fulfillment orders.
package documents

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// DocumentKind disambiguates quotations from orders; both share one shape.
type DocumentKind string

const (
	KindQuotation DocumentKind = "quotation"
	KindOrder     DocumentKind = "order"
)

// QuotationStatus values, case-sensitive across the API boundary.
type QuotationStatus string

const (
	QuotationDraft       QuotationStatus = "draft"
	QuotationGenerated   QuotationStatus = "generated"
	QuotationUnderReview QuotationStatus = "under_review"
	QuotationApproved    QuotationStatus = "approved"
	QuotationRejected    QuotationStatus = "rejected"
	QuotationExpired     QuotationStatus = "expired"
	QuotationConverted   QuotationStatus = "converted"
)

// OrderStatus values, case-sensitive across the API boundary.
type OrderStatus string

const (
	OrderPending    OrderStatus = "pending"
	OrderConfirmed  OrderStatus = "confirmed"
	OrderInProgress OrderStatus = "in_progress"
	OrderReady      OrderStatus = "ready"
	OrderShipped    OrderStatus = "shipped"
	OrderDelivered  OrderStatus = "delivered"
	OrderCancelled  OrderStatus = "cancelled"
)

// Role is the acting user's privilege level, resolved through the store.
type Role string

const (
	RoleAdmin  Role = "admin"
	RoleSeller Role = "seller"
	RoleViewer Role = "viewer"
)

// CompanyStatus is the lifecycle state of the customer company.
type CompanyStatus string

const (
	CompanyActive    CompanyStatus = "active"
	CompanySuspended CompanyStatus = "suspended"
	CompanyArchived  CompanyStatus = "archived"
)

// Document is a quotation or an order. Status holds the quotation status for
// quotations and the order status for orders.
type Document struct {
	ID           uuid.UUID       `json:"id" db:"id"`
	Folio        string          `json:"folio" db:"folio"`
	Kind         DocumentKind    `json:"kind" db:"kind"`
	Status       string          `json:"status" db:"status"`
	CompanyID    uuid.UUID       `json:"company_id" db:"company_id"`
	ContactName  string          `json:"contact_name" db:"contact_name"`
	ContactEmail string          `json:"contact_email" db:"contact_email"`
	ContactPhone string          `json:"contact_phone" db:"contact_phone"`
	IssueDate    time.Time       `json:"issue_date" db:"issue_date"`
	ValidityDays int             `json:"validity_days,omitempty" db:"validity_days"`
	Subtotal     decimal.Decimal `json:"subtotal" db:"subtotal"`
	TaxAmount    decimal.Decimal `json:"tax_amount" db:"tax_amount"`
	Discount     decimal.Decimal `json:"discount" db:"discount"`
	Total        decimal.Decimal `json:"total" db:"total"`
	QuotationID  *uuid.UUID      `json:"quotation_id,omitempty" db:"quotation_id"`
	CreatedBy    uuid.UUID       `json:"created_by" db:"created_by"`
	CreatedAt    time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at" db:"updated_at"`
	Items        []DocumentItem  `json:"items,omitempty" db:"-"`
}

// DocumentItem is one line of a document. UnitPrice and TaxRate are snapshots
// taken when the line was added and are never re-derived from the catalog.
type DocumentItem struct {
	ID          uuid.UUID       `json:"id" db:"id"`
	DocumentID  uuid.UUID       `json:"document_id" db:"document_id"`
	ProductCode string          `json:"product_code" db:"product_code"`
	ProductName string          `json:"product_name" db:"product_name"`
	Unit        string          `json:"unit" db:"unit"`
	Quantity    decimal.Decimal `json:"quantity" db:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price" db:"unit_price"`
	TaxRate     decimal.Decimal `json:"tax_rate" db:"tax_rate"`
	TaxAmount   decimal.Decimal `json:"tax_amount" db:"tax_amount"`
	Subtotal    decimal.Decimal `json:"subtotal" db:"subtotal"`
	Total       decimal.Decimal `json:"total" db:"total"`
	CreatedAt   time.Time       `json:"created_at" db:"created_at"`
}

// StatusHistoryEntry is an append-only audit record of one transition.
type StatusHistoryEntry struct {
	ID         int64     `json:"id" db:"id"`
	DocumentID uuid.UUID `json:"document_id" db:"document_id"`
	StatusType string    `json:"status_type" db:"status_type"` // "quotation" | "order"
	OldStatus  string    `json:"old_status" db:"old_status"`
	NewStatus  string    `json:"new_status" db:"new_status"`
	ChangedBy  uuid.UUID `json:"changed_by" db:"changed_by"`
	ChangedAt  time.Time `json:"changed_at" db:"changed_at"`
	Reason     string    `json:"reason,omitempty" db:"reason"`
}

// TaxConfiguration is a read-only tax input, loaded through the store.
type TaxConfiguration struct {
	ID        uuid.UUID       `json:"id" db:"id"`
	Name      string          `json:"name" db:"name"`
	Kind      string          `json:"kind" db:"kind"` // "percentage" | "fixed_amount"
	Rate      decimal.Decimal `json:"rate" db:"rate"`
	Amount    decimal.Decimal `json:"amount" db:"amount"`
	IsDefault bool            `json:"is_default" db:"is_default"`
	IsActive  bool            `json:"is_active" db:"is_active"`
}

// IsExpired reports whether a quotation issued on issueDate with the given
// validity window has lapsed at the reference time.
func IsExpired(issueDate time.Time, validityDays int, now time.Time) bool {
	return now.After(issueDate.AddDate(0, 0, validityDays))
}
