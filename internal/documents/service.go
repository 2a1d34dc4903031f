package documents

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/cotiza-erp/cotiza-erp/internal/money"
)

var (
	// ErrForbidden indicates the acting user lacks the required role.
	ErrForbidden = errors.New("forbidden")
	// ErrImmutable indicates the document can no longer be edited.
	ErrImmutable = errors.New("document is immutable")
)

// Service carries the quotation/order lifecycle operations that sit between
// the HTTP layer and the store.
type Service struct {
	store     Store
	validator *Validator
	folios    *FolioGenerator
	logger    *slog.Logger
	now       func() time.Time
}

// NewService builds a Service.
func NewService(store Store, validator *Validator, folios *FolioGenerator, logger *slog.Logger) *Service {
	return &Service{
		store:     store,
		validator: validator,
		folios:    folios,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Create builds a draft quotation with snapshot-priced items. Every line goes
// through the calculation engine, and the document totals come from the
// sum-then-round aggregation.
func (s *Service) Create(ctx context.Context, req CreateQuotationRequest, createdBy uuid.UUID) (*Document, error) {
	items, totals, err := s.buildItems(ctx, req.Items)
	if err != nil {
		return nil, err
	}

	discount := req.Discount
	if discount.IsNegative() {
		return nil, fmt.Errorf("%w: discount %s", money.ErrNegativeInput, discount)
	}

	folio, err := s.folios.Generate(ctx, KindQuotation)
	if err != nil {
		return nil, fmt.Errorf("generate folio: %w", err)
	}

	doc := Document{
		ID:           uuid.New(),
		Folio:        folio,
		Kind:         KindQuotation,
		Status:       string(QuotationDraft),
		CompanyID:    req.CompanyID,
		ContactName:  req.ContactName,
		ContactEmail: req.ContactEmail,
		ContactPhone: req.ContactPhone,
		IssueDate:    req.IssueDate,
		ValidityDays: req.ValidityDays,
		Subtotal:     totals.Subtotal,
		TaxAmount:    totals.TaxAmount,
		Discount:     discount,
		Total:        money.RoundCurrency(totals.Subtotal.Add(totals.TaxAmount).Sub(discount)),
		CreatedBy:    createdBy,
	}

	var created *Document
	err = s.store.WithTx(ctx, func(ctx context.Context, tx Store) error {
		var err error
		created, err = tx.InsertDocumentWithItems(ctx, doc, items)
		if err != nil {
			return fmt.Errorf("insert quotation: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("quotation created",
		slog.String("folio", created.Folio),
		slog.String("company_id", created.CompanyID.String()))
	return created, nil
}

// Update edits a draft quotation. Any other status is immutable through this
// path; converted quotations are immutable everywhere.
func (s *Service) Update(ctx context.Context, id uuid.UUID, req UpdateQuotationRequest) (*Document, error) {
	existing, err := s.store.GetDocument(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get quotation: %w", err)
	}
	if existing.Kind != KindQuotation {
		return nil, fmt.Errorf("%w: document %s is not a quotation", ErrNotFound, id)
	}
	if QuotationStatus(existing.Status) != QuotationDraft {
		return nil, fmt.Errorf("%w: only draft quotations can be edited", ErrImmutable)
	}

	updates := make(map[string]interface{})
	if req.ContactName != nil {
		updates["contact_name"] = *req.ContactName
	}
	if req.ContactEmail != nil {
		updates["contact_email"] = *req.ContactEmail
	}
	if req.ContactPhone != nil {
		updates["contact_phone"] = *req.ContactPhone
	}
	if req.IssueDate != nil {
		updates["issue_date"] = *req.IssueDate
	}
	if req.ValidityDays != nil {
		updates["validity_days"] = *req.ValidityDays
	}

	discount := existing.Discount
	if req.Discount != nil {
		if req.Discount.IsNegative() {
			return nil, fmt.Errorf("%w: discount %s", money.ErrNegativeInput, *req.Discount)
		}
		discount = *req.Discount
	}

	var items []DocumentItem
	subtotal, taxAmount := existing.Subtotal, existing.TaxAmount
	if req.Items != nil {
		var totals money.DocumentTotals
		items, totals, err = s.buildItems(ctx, *req.Items)
		if err != nil {
			return nil, err
		}
		subtotal, taxAmount = totals.Subtotal, totals.TaxAmount
	}

	if req.Items != nil || req.Discount != nil {
		updates["subtotal"] = subtotal
		updates["tax_amount"] = taxAmount
		updates["discount"] = discount
		updates["total"] = money.RoundCurrency(subtotal.Add(taxAmount).Sub(discount))
	}

	err = s.store.WithTx(ctx, func(ctx context.Context, tx Store) error {
		if len(updates) > 0 {
			if err := tx.UpdateDocument(ctx, id, updates); err != nil {
				return fmt.Errorf("update quotation: %w", err)
			}
		}
		if req.Items != nil {
			if err := tx.ReplaceItems(ctx, id, items); err != nil {
				return fmt.Errorf("replace items: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return s.store.GetDocument(ctx, id)
}

// ChangeQuotationStatus applies one workflow transition. Approval and
// rejection are reserved for administrators; conversion never goes through
// here, only through the orchestrator.
func (s *Service) ChangeQuotationStatus(ctx context.Context, id uuid.UUID, to QuotationStatus, userID uuid.UUID, reason string) (*Document, error) {
	if to == QuotationConverted {
		return nil, fmt.Errorf("%w: conversion must go through the convert operation", ErrIllegalTransition)
	}

	doc, err := s.store.GetDocument(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get quotation: %w", err)
	}
	if doc.Kind != KindQuotation {
		return nil, fmt.Errorf("%w: document %s is not a quotation", ErrNotFound, id)
	}

	role, err := s.store.GetUserRole(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("get user role: %w", err)
	}
	if role == RoleViewer {
		return nil, fmt.Errorf("%w: viewers cannot change quotation status", ErrForbidden)
	}
	if (to == QuotationApproved || to == QuotationRejected) && role != RoleAdmin {
		return nil, fmt.Errorf("%w: only administrators can approve or reject quotations", ErrForbidden)
	}

	from := QuotationStatus(doc.Status)
	if check := ValidateQuotationTransition(from, to); !check.Valid {
		return nil, fmt.Errorf("%w: %s", ErrIllegalTransition, check.Reason)
	}

	err = s.store.WithTx(ctx, func(ctx context.Context, tx Store) error {
		if err := tx.UpdateDocumentStatus(ctx, id, string(from), string(to)); err != nil {
			return fmt.Errorf("update status: %w", err)
		}
		return tx.AppendStatusHistory(ctx, StatusHistoryEntry{
			DocumentID: id,
			StatusType: string(KindQuotation),
			OldStatus:  string(from),
			NewStatus:  string(to),
			ChangedBy:  userID,
			ChangedAt:  s.now(),
			Reason:     reason,
		})
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("quotation status changed",
		slog.String("folio", doc.Folio),
		slog.String("from", string(from)),
		slog.String("to", string(to)))
	return s.store.GetDocument(ctx, id)
}

// ChangeOrderStatus applies one order transition. The validator gates the
// role and the machine; warnings are logged and returned, never blocking.
func (s *Service) ChangeOrderStatus(ctx context.Context, id uuid.UUID, to OrderStatus, userID uuid.UUID, reason string) (*Document, []string, error) {
	doc, err := s.store.GetDocument(ctx, id)
	if err != nil {
		return nil, nil, fmt.Errorf("get order: %w", err)
	}
	if doc.Kind != KindOrder {
		return nil, nil, fmt.Errorf("%w: document %s is not an order", ErrNotFound, id)
	}

	role, err := s.store.GetUserRole(ctx, userID)
	if err != nil {
		return nil, nil, fmt.Errorf("get user role: %w", err)
	}

	from := OrderStatus(doc.Status)
	result := s.validator.ValidateOrderStatusTransition(from, to, role)
	if !result.Valid {
		return nil, result.Warnings, fmt.Errorf("%w: %s", ErrIllegalTransition, result.Errors[0])
	}
	for _, w := range result.Warnings {
		s.logger.Warn("order transition advisory",
			slog.String("folio", doc.Folio), slog.String("warning", w))
	}

	err = s.store.WithTx(ctx, func(ctx context.Context, tx Store) error {
		if err := tx.UpdateDocumentStatus(ctx, id, string(from), string(to)); err != nil {
			return fmt.Errorf("update status: %w", err)
		}
		return tx.AppendStatusHistory(ctx, StatusHistoryEntry{
			DocumentID: id,
			StatusType: string(KindOrder),
			OldStatus:  string(from),
			NewStatus:  string(to),
			ChangedBy:  userID,
			ChangedAt:  s.now(),
			Reason:     reason,
		})
	})
	if err != nil {
		return nil, result.Warnings, err
	}

	updated, err := s.store.GetDocument(ctx, id)
	return updated, result.Warnings, err
}

// ExpireQuotations sweeps generated/under_review quotations whose validity
// window has lapsed. It is the only system-initiated transition and still
// passes through the state machine.
func (s *Service) ExpireQuotations(ctx context.Context) (int, error) {
	now := s.now()
	candidates, err := s.store.ListExpiryCandidates(ctx, now)
	if err != nil {
		return 0, fmt.Errorf("list expiry candidates: %w", err)
	}

	expired := 0
	for _, doc := range candidates {
		from := QuotationStatus(doc.Status)
		if !IsExpired(doc.IssueDate, doc.ValidityDays, now) {
			continue
		}
		if check := ValidateQuotationTransition(from, QuotationExpired); !check.Valid {
			s.logger.Warn("expiry sweep skipped document",
				slog.String("folio", doc.Folio), slog.String("reason", check.Reason))
			continue
		}

		docID := doc.ID
		err := s.store.WithTx(ctx, func(ctx context.Context, tx Store) error {
			if err := tx.UpdateDocumentStatus(ctx, docID, string(from), string(QuotationExpired)); err != nil {
				return err
			}
			return tx.AppendStatusHistory(ctx, StatusHistoryEntry{
				DocumentID: docID,
				StatusType: string(KindQuotation),
				OldStatus:  string(from),
				NewStatus:  string(QuotationExpired),
				ChangedBy:  uuid.Nil,
				ChangedAt:  now,
				Reason:     "validity window elapsed",
			})
		})
		if err != nil {
			if errors.Is(err, ErrConflict) {
				s.logger.Warn("expiry sweep raced another transition",
					slog.String("folio", doc.Folio))
				continue
			}
			return expired, fmt.Errorf("expire %s: %w", doc.Folio, err)
		}
		expired++
	}

	if expired > 0 {
		s.logger.Info("expiry sweep completed", slog.Int("expired", expired))
	}
	return expired, nil
}

// Get returns one document with its items.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Document, error) {
	return s.store.GetDocument(ctx, id)
}

// List returns documents matching the filter.
func (s *Service) List(ctx context.Context, req ListDocumentsRequest) ([]Document, int, error) {
	if req.Limit <= 0 || req.Limit > 500 {
		req.Limit = 50
	}
	return s.store.ListDocuments(ctx, req)
}

// History returns the append-only transition ledger of a document.
func (s *Service) History(ctx context.Context, documentID uuid.UUID) ([]StatusHistoryEntry, error) {
	return s.store.ListStatusHistory(ctx, documentID)
}

// buildItems resolves tax snapshots and runs every line through the
// calculation engine.
func (s *Service) buildItems(ctx context.Context, reqs []CreateItemRequest) ([]DocumentItem, money.DocumentTotals, error) {
	items := make([]DocumentItem, 0, len(reqs))
	amounts := make([]money.ItemAmounts, 0, len(reqs))

	for i, req := range reqs {
		taxRate := req.TaxRate
		if req.TaxConfigID != nil {
			cfg, err := s.store.GetActiveTaxConfig(ctx, *req.TaxConfigID)
			if err != nil {
				if errors.Is(err, ErrNotFound) {
					// Inactive or missing config contributes no tax.
					taxRate = decimal.Zero
				} else {
					return nil, money.DocumentTotals{}, fmt.Errorf("item %d: resolve tax config: %w", i+1, err)
				}
			} else {
				taxRate = cfg.Rate
			}
		}

		quantity := money.RoundQuantity(req.Quantity)
		totals, err := money.LineItem(quantity, req.UnitPrice, taxRate)
		if err != nil {
			return nil, money.DocumentTotals{}, fmt.Errorf("item %d: %w", i+1, err)
		}

		items = append(items, DocumentItem{
			ID:          uuid.New(),
			ProductCode: req.ProductCode,
			ProductName: req.ProductName,
			Unit:        req.Unit,
			Quantity:    quantity,
			UnitPrice:   money.RoundCurrency(req.UnitPrice),
			TaxRate:     taxRate,
			TaxAmount:   totals.TaxAmount,
			Subtotal:    totals.Subtotal,
			Total:       totals.Total,
		})
		amounts = append(amounts, money.ItemAmounts{
			Subtotal:  totals.Subtotal,
			TaxAmount: totals.TaxAmount,
			Total:     totals.Total,
		})
	}

	return items, money.DocumentTotalsOf(amounts), nil
}
