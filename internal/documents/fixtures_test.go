package documents

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/cotiza-erp/cotiza-erp/internal/money"
)

var testLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

func num(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(s)
	require.NoError(t, err)
	return d
}

// testItem computes a line through the calculation engine so stored and
// recomputed amounts agree.
func testItem(t *testing.T, code, qty, price, rate string) DocumentItem {
	t.Helper()
	totals, err := money.LineItem(num(t, qty), num(t, price), num(t, rate))
	require.NoError(t, err)
	return DocumentItem{
		ID:          uuid.New(),
		ProductCode: code,
		ProductName: "Product " + code,
		Unit:        "pz",
		Quantity:    num(t, qty),
		UnitPrice:   num(t, price),
		TaxRate:     num(t, rate),
		TaxAmount:   totals.TaxAmount,
		Subtotal:    totals.Subtotal,
		Total:       totals.Total,
	}
}

// seedQuotation inserts a quotation with consistent totals into the mock
// store, along with an active owning company.
func seedQuotation(t *testing.T, m *mockStore, status QuotationStatus, items ...DocumentItem) *Document {
	t.Helper()
	if len(items) == 0 {
		items = []DocumentItem{
			testItem(t, "A", "5", "150.00", "0.16"),
			testItem(t, "B", "2", "300.00", "0.16"),
		}
	}

	amounts := make([]money.ItemAmounts, len(items))
	for i, it := range items {
		amounts[i] = money.ItemAmounts{Subtotal: it.Subtotal, TaxAmount: it.TaxAmount, Total: it.Total}
	}
	totals := money.DocumentTotalsOf(amounts)

	ctx := context.Background()
	folio, err := m.ReserveFolio(ctx, KindQuotation)
	require.NoError(t, err)

	companyID := uuid.New()
	m.companies[companyID] = CompanyActive

	doc, err := m.InsertDocumentWithItems(ctx, Document{
		ID:           uuid.New(),
		Folio:        folio,
		Kind:         KindQuotation,
		Status:       string(status),
		CompanyID:    companyID,
		ContactName:  "Test Contact",
		ContactEmail: "contact@example.com",
		IssueDate:    time.Now().UTC().AddDate(0, 0, -1),
		ValidityDays: 30,
		Subtotal:     totals.Subtotal,
		TaxAmount:    totals.TaxAmount,
		Discount:     decimal.Zero,
		Total:        totals.Total,
		CreatedBy:    uuid.New(),
	}, items)
	require.NoError(t, err)
	return doc
}

// seedUser registers a user with the given role and returns its id.
func seedUser(m *mockStore, role Role) uuid.UUID {
	id := uuid.New()
	m.roles[id] = role
	return id
}
