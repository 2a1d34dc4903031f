package documents

import (
	"context"
	"errors"
	"fmt"
	"regexp"

	"github.com/google/uuid"

	"github.com/cotiza-erp/cotiza-erp/internal/money"
)

var (
	quotationFolioRe = regexp.MustCompile(`^COT-\d{8}$`)
	orderFolioRe     = regexp.MustCompile(`^ORD-\d{8}$`)
)

// ValidationResult aggregates every rule failure for one check. Checks are
// never fail-fast: a caller can surface all problems at once.
type ValidationResult struct {
	Valid  bool     `json:"valid"`
	Errors []string `json:"errors,omitempty"`
}

// OrderTransitionResult extends ValidationResult with advisory warnings.
type OrderTransitionResult struct {
	Valid    bool     `json:"valid"`
	Errors   []string `json:"errors,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
}

func (r *ValidationResult) addError(format string, args ...interface{}) {
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
}

// Validator runs the composite business-rule checks that gate conversion and
// status changes. It reads through the store and never writes.
type Validator struct {
	store Store
}

// NewValidator builds a Validator over the given store.
func NewValidator(store Store) *Validator {
	return &Validator{store: store}
}

// ValidateQuotationConversion checks every precondition for converting a
// quotation. All applicable failures accumulate; the check order matches the
// user-facing workflow (existence, status, duplicate, items, role, company).
func (v *Validator) ValidateQuotationConversion(ctx context.Context, quotationID, userID uuid.UUID) (ValidationResult, error) {
	var result ValidationResult

	doc, err := v.store.GetDocument(ctx, quotationID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			result.addError("quotation %s not found", quotationID)
			return result, nil
		}
		return result, fmt.Errorf("get quotation: %w", err)
	}
	if doc.Kind != KindQuotation {
		result.addError("document %s is not a quotation", doc.Folio)
		return result, nil
	}

	switch QuotationStatus(doc.Status) {
	case QuotationApproved:
		// eligible
	case QuotationConverted:
		result.addError("quotation %s has already been converted", doc.Folio)
	default:
		result.addError("quotation must be approved before conversion (current status: %s)", doc.Status)
	}

	existing, err := v.store.FindOrderByQuotationID(ctx, quotationID)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return result, fmt.Errorf("find existing order: %w", err)
	}
	if existing != nil {
		result.addError("order %s already references quotation %s", existing.Folio, doc.Folio)
	}

	if len(doc.Items) == 0 {
		result.addError("quotation has no items")
	}

	role, err := v.store.GetUserRole(ctx, userID)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return result, fmt.Errorf("get user role: %w", err)
	}
	if role != RoleAdmin {
		result.addError("only administrators can convert quotations")
	}

	companyStatus, err := v.store.GetCompanyStatus(ctx, doc.CompanyID)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return result, fmt.Errorf("get company status: %w", err)
	}
	if companyStatus != CompanyActive {
		result.addError("company is not active (status: %s)", companyStatus)
	}

	result.Valid = len(result.Errors) == 0
	return result, nil
}

// ValidateOrderStatusTransition layers the role gate over the order machine.
// Role first, then terminal state, then the table; skipped-stage advisories
// land in Warnings and never flip Valid.
func (v *Validator) ValidateOrderStatusTransition(from, to OrderStatus, actorRole Role) OrderTransitionResult {
	var result OrderTransitionResult

	if actorRole != RoleAdmin {
		result.Errors = append(result.Errors, "only administrators can change order status")
		return result
	}

	check := ValidateOrderTransition(from, to)
	if !check.Valid {
		result.Errors = append(result.Errors, check.Reason)
		return result
	}

	result.Valid = true
	result.Warnings = check.Warnings
	return result
}

// ValidateFolioUniqueness checks the folio format for its kind and that no
// other document already carries it.
func (v *Validator) ValidateFolioUniqueness(ctx context.Context, folio string, kind DocumentKind) (ValidationResult, error) {
	var result ValidationResult

	switch kind {
	case KindQuotation:
		if !quotationFolioRe.MatchString(folio) {
			result.addError("quotation folio %q must follow format COT-XXXXXXXX", folio)
		}
	case KindOrder:
		if !orderFolioRe.MatchString(folio) {
			result.addError("order folio %q must follow format ORD-XXXXXXXX", folio)
		}
	default:
		result.addError("unknown document kind %q", kind)
	}

	existing, err := v.store.GetDocumentByFolio(ctx, folio)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return result, fmt.Errorf("lookup folio: %w", err)
	}
	if existing != nil {
		result.addError("folio %s is already in use", folio)
	}

	result.Valid = len(result.Errors) == 0
	return result, nil
}

// ValidateDocumentDataIntegrity checks required fields and per-line formulas.
// A mismatch between stored and recomputed amounts means data corruption, not
// user error; callers treat it as fatal for the operation.
func (v *Validator) ValidateDocumentDataIntegrity(ctx context.Context, documentID uuid.UUID) (ValidationResult, error) {
	var result ValidationResult

	doc, err := v.store.GetDocument(ctx, documentID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			result.addError("document %s not found", documentID)
			return result, nil
		}
		return result, fmt.Errorf("get document: %w", err)
	}

	if doc.Folio == "" {
		result.addError("document has no folio")
	}
	if doc.CompanyID == uuid.Nil {
		result.addError("document has no company")
	}
	if doc.IssueDate.IsZero() {
		result.addError("document has no issue date")
	}
	if len(doc.Items) == 0 {
		result.addError("document has no items")
	}
	if !doc.Total.IsPositive() {
		result.addError("document total must be greater than zero")
	}

	for i, item := range doc.Items {
		if !item.Quantity.IsPositive() {
			result.addError("item %d: quantity must be greater than zero", i+1)
		}
		if item.UnitPrice.IsNegative() {
			result.addError("item %d: unit price cannot be negative", i+1)
		}
		expected, err := money.LineItem(item.Quantity, item.UnitPrice, item.TaxRate)
		if err != nil {
			result.addError("item %d: %v", i+1, err)
			continue
		}
		if !expected.Total.Equal(item.Total) || !expected.Subtotal.Equal(item.Subtotal) || !expected.TaxAmount.Equal(item.TaxAmount) {
			result.addError("item %d: stored amounts do not match %s x %s at rate %s",
				i+1, item.Quantity, item.UnitPrice, item.TaxRate)
		}
	}

	if !documentTotalHolds(doc) {
		result.addError("document total %s does not equal subtotal %s + tax %s - discount %s",
			doc.Total, doc.Subtotal, doc.TaxAmount, doc.Discount)
	}

	result.Valid = len(result.Errors) == 0
	return result, nil
}

// ValidatePreConversion is the final gate before the orchestrator runs:
// conversion eligibility plus document integrity in one aggregate result.
func (v *Validator) ValidatePreConversion(ctx context.Context, quotationID, userID uuid.UUID) (ValidationResult, error) {
	conversion, err := v.ValidateQuotationConversion(ctx, quotationID, userID)
	if err != nil {
		return ValidationResult{}, err
	}
	integrity, err := v.ValidateDocumentDataIntegrity(ctx, quotationID)
	if err != nil {
		return ValidationResult{}, err
	}

	combined := ValidationResult{Errors: append(conversion.Errors, integrity.Errors...)}
	combined.Valid = len(combined.Errors) == 0
	return combined, nil
}

// documentTotalHolds checks total == round(subtotal + tax - discount).
func documentTotalHolds(doc *Document) bool {
	expected := money.RoundCurrency(doc.Subtotal.Add(doc.TaxAmount).Sub(doc.Discount))
	return expected.Equal(doc.Total)
}
