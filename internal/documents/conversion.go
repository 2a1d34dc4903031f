package documents

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/cotiza-erp/cotiza-erp/internal/money"
	"github.com/cotiza-erp/cotiza-erp/internal/observability"
)

// ErrIntegrityViolation indicates stored totals disagree with recomputed
// ones. The operation aborts loudly; data is never silently corrected.
var ErrIntegrityViolation = errors.New("document integrity violation")

// Converter turns exactly one approved quotation into exactly one order.
// The write path runs inside a single transaction; the at-most-one guarantee
// rides on the store's unique index over the order's quotation reference, so
// concurrent attempts collapse to one success and conflict rejections.
type Converter struct {
	store     Store
	validator *Validator
	logger    *slog.Logger
	metrics   *observability.Metrics
	now       func() time.Time
}

// NewConverter builds a Converter. metrics may be nil.
func NewConverter(store Store, validator *Validator, logger *slog.Logger, metrics *observability.Metrics) *Converter {
	return &Converter{
		store:     store,
		validator: validator,
		logger:    logger,
		metrics:   metrics,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Convert executes the conversion workflow: validate, then inside one
// transaction re-read the quotation, revalidate its transition, reserve an
// order folio, snapshot the quotation items, verify totals, persist the order
// and flip the quotation to converted, then record history. The status flip is
// conditional on the status the transaction read, so a transition committed by
// anyone else in between aborts the whole unit. Retries are idempotent: a
// prior success is detected through the existing order and reported as
// success, never as a duplicate.
func (c *Converter) Convert(ctx context.Context, quotationID, userID uuid.UUID) (ConversionResult, error) {
	if existing, ok, err := c.findExisting(ctx, quotationID); err != nil {
		return ConversionResult{}, err
	} else if ok {
		c.observe("idempotent")
		return ConversionResult{
			Success: true,
			Order:   existing,
			Message: fmt.Sprintf("quotation already converted; order %s exists", existing.Folio),
		}, nil
	}

	check, err := c.validator.ValidatePreConversion(ctx, quotationID, userID)
	if err != nil {
		return ConversionResult{}, fmt.Errorf("pre-conversion validation: %w", err)
	}
	if !check.Valid {
		c.observe("rejected")
		return ConversionResult{
			Message: "quotation cannot be converted",
			Errors:  check.Errors,
		}, nil
	}

	var quotation, order *Document
	err = c.store.WithTx(ctx, func(ctx context.Context, tx Store) error {
		// Re-read inside the transaction: the pre-validation read is stale
		// the moment any concurrent transition (the expiry sweep included)
		// commits, and the flip below must be judged against the row the
		// transaction actually sees.
		var err error
		quotation, err = tx.GetDocument(ctx, quotationID)
		if err != nil {
			return fmt.Errorf("get quotation: %w", err)
		}

		from := QuotationStatus(quotation.Status)
		if check := ValidateQuotationTransition(from, QuotationConverted); !check.Valid {
			return fmt.Errorf("%w: %s", ErrIllegalTransition, check.Reason)
		}

		folio, err := NewFolioGenerator(tx, c.logger).Generate(ctx, KindOrder)
		if err != nil {
			return fmt.Errorf("generate order folio: %w", err)
		}

		items := snapshotItems(quotation.Items)

		// The snapshot must reproduce the quotation's totals exactly.
		// A mismatch means corrupted source data.
		amounts := make([]money.ItemAmounts, len(items))
		for i, it := range items {
			amounts[i] = money.ItemAmounts{Subtotal: it.Subtotal, TaxAmount: it.TaxAmount, Total: it.Total}
		}
		recomputed := money.DocumentTotalsOf(amounts)
		total := money.RoundCurrency(recomputed.Subtotal.Add(recomputed.TaxAmount).Sub(quotation.Discount))
		if !recomputed.Subtotal.Equal(quotation.Subtotal) ||
			!recomputed.TaxAmount.Equal(quotation.TaxAmount) ||
			!total.Equal(quotation.Total) {
			return fmt.Errorf("%w: order totals %s/%s/%s do not match quotation %s",
				ErrIntegrityViolation, recomputed.Subtotal, recomputed.TaxAmount, total, quotation.Folio)
		}

		quotationRef := quotation.ID
		order, err = tx.InsertDocumentWithItems(ctx, Document{
			ID:           uuid.New(),
			Folio:        folio,
			Kind:         KindOrder,
			Status:       string(OrderPending),
			CompanyID:    quotation.CompanyID,
			ContactName:  quotation.ContactName,
			ContactEmail: quotation.ContactEmail,
			ContactPhone: quotation.ContactPhone,
			IssueDate:    c.now(),
			Subtotal:     quotation.Subtotal,
			TaxAmount:    quotation.TaxAmount,
			Discount:     quotation.Discount,
			Total:        quotation.Total,
			QuotationID:  &quotationRef,
			CreatedBy:    userID,
		}, items)
		if err != nil {
			return fmt.Errorf("insert order: %w", err)
		}

		if err := tx.UpdateDocumentStatus(ctx, quotation.ID, string(from), string(QuotationConverted)); err != nil {
			return fmt.Errorf("mark quotation converted: %w", err)
		}
		return tx.AppendStatusHistory(ctx, StatusHistoryEntry{
			DocumentID: quotation.ID,
			StatusType: string(KindQuotation),
			OldStatus:  string(from),
			NewStatus:  string(QuotationConverted),
			ChangedBy:  userID,
			ChangedAt:  c.now(),
			Reason:     fmt.Sprintf("converted to order %s", folio),
		})
	})
	if err != nil {
		if errors.Is(err, ErrIllegalTransition) {
			// The quotation left the approved state between pre-validation
			// and the transaction. Nothing was written.
			c.observe("rejected")
			return ConversionResult{
				Message: "quotation cannot be converted",
				Errors:  []string{err.Error()},
			}, nil
		}
		if errors.Is(err, ErrConflict) {
			// A concurrent attempt won the race. Resolve idempotently.
			if existing, ok, ferr := c.findExisting(ctx, quotationID); ferr == nil && ok {
				c.observe("idempotent")
				return ConversionResult{
					Success: true,
					Order:   existing,
					Message: fmt.Sprintf("quotation already converted; order %s exists", existing.Folio),
				}, nil
			}
			c.observe("conflict")
			return ConversionResult{
				Message: "quotation was converted by a concurrent request",
				Errors:  []string{"order already exists for this quotation"},
			}, nil
		}
		c.observe("failure")
		return ConversionResult{}, err
	}

	c.observe("success")
	c.logger.Info("quotation converted",
		slog.String("quotation", quotation.Folio),
		slog.String("order", order.Folio),
		slog.String("user_id", userID.String()))
	return ConversionResult{
		Success: true,
		Order:   order,
		Message: fmt.Sprintf("order %s created from quotation %s", order.Folio, quotation.Folio),
	}, nil
}

// findExisting reports whether the quotation already has an order.
func (c *Converter) findExisting(ctx context.Context, quotationID uuid.UUID) (*Document, bool, error) {
	order, err := c.store.FindOrderByQuotationID(ctx, quotationID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("find existing order: %w", err)
	}
	return order, true, nil
}

// snapshotItems copies quotation lines into fresh order items. Unit prices
// and tax rates are contractual at quote time and carry over unchanged.
func snapshotItems(items []DocumentItem) []DocumentItem {
	out := make([]DocumentItem, len(items))
	for i, it := range items {
		out[i] = DocumentItem{
			ID:          uuid.New(),
			ProductCode: it.ProductCode,
			ProductName: it.ProductName,
			Unit:        it.Unit,
			Quantity:    it.Quantity,
			UnitPrice:   it.UnitPrice,
			TaxRate:     it.TaxRate,
			TaxAmount:   it.TaxAmount,
			Subtotal:    it.Subtotal,
			Total:       it.Total,
		}
	}
	return out
}

func (c *Converter) observe(result string) {
	if c.metrics != nil {
		c.metrics.ObserveConversion(result)
	}
}
