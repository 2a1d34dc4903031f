package documents

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cotiza-erp/cotiza-erp/internal/money"
)

func newTestService(store *mockStore) *Service {
	return NewService(store, NewValidator(store), NewFolioGenerator(store, testLogger), testLogger)
}

// seedOrder inserts an order in the given status, detached from any quotation.
func seedOrder(t *testing.T, store *mockStore, status OrderStatus) *Document {
	t.Helper()
	ctx := context.Background()
	folio, err := store.ReserveFolio(ctx, KindOrder)
	require.NoError(t, err)

	companyID := uuid.New()
	store.companies[companyID] = CompanyActive

	item := testItem(t, "X", "1", "100.00", "0.16")
	doc, err := store.InsertDocumentWithItems(ctx, Document{
		Folio:     folio,
		Kind:      KindOrder,
		Status:    string(status),
		CompanyID: companyID,
		IssueDate: time.Now().UTC(),
		Subtotal:  item.Subtotal,
		TaxAmount: item.TaxAmount,
		Total:     item.Total,
		CreatedBy: uuid.New(),
	}, []DocumentItem{item})
	require.NoError(t, err)
	return doc
}

func TestServiceCreate(t *testing.T) {
	store := newMockStore()
	svc := newTestService(store)

	companyID := uuid.New()
	store.companies[companyID] = CompanyActive

	created, err := svc.Create(context.Background(), CreateQuotationRequest{
		CompanyID:    companyID,
		ContactName:  "Ana Torres",
		ContactEmail: "ana@example.com",
		IssueDate:    time.Now().UTC(),
		ValidityDays: 30,
		Items: []CreateItemRequest{
			{ProductCode: "A", ProductName: "Widget A", Unit: "pz", Quantity: num(t, "5"), UnitPrice: num(t, "150.00"), TaxRate: num(t, "0.16")},
			{ProductCode: "B", ProductName: "Widget B", Unit: "pz", Quantity: num(t, "2"), UnitPrice: num(t, "300.00"), TaxRate: num(t, "0.16")},
		},
	}, uuid.New())
	require.NoError(t, err)

	assert.Equal(t, "COT-00000001", created.Folio)
	assert.Equal(t, string(QuotationDraft), created.Status)
	assert.True(t, created.Subtotal.Equal(num(t, "1350.00")), "subtotal %s", created.Subtotal)
	assert.True(t, created.TaxAmount.Equal(num(t, "216.00")), "tax %s", created.TaxAmount)
	assert.True(t, created.Total.Equal(num(t, "1566.00")), "total %s", created.Total)
	require.Len(t, created.Items, 2)
	assert.True(t, created.Items[0].Total.Equal(num(t, "870.00")))
	assert.True(t, created.Items[1].Total.Equal(num(t, "696.00")))
}

func TestServiceCreateWithDiscount(t *testing.T) {
	store := newMockStore()
	svc := newTestService(store)

	companyID := uuid.New()
	store.companies[companyID] = CompanyActive

	created, err := svc.Create(context.Background(), CreateQuotationRequest{
		CompanyID:    companyID,
		ContactName:  "Ana Torres",
		IssueDate:    time.Now().UTC(),
		ValidityDays: 15,
		Discount:     num(t, "66.00"),
		Items: []CreateItemRequest{
			{ProductCode: "A", ProductName: "Widget A", Unit: "pz", Quantity: num(t, "5"), UnitPrice: num(t, "150.00"), TaxRate: num(t, "0.16")},
			{ProductCode: "B", ProductName: "Widget B", Unit: "pz", Quantity: num(t, "2"), UnitPrice: num(t, "300.00"), TaxRate: num(t, "0.16")},
		},
	}, uuid.New())
	require.NoError(t, err)
	assert.True(t, created.Total.Equal(num(t, "1500.00")), "total %s", created.Total)
}

func TestServiceCreateResolvesTaxConfig(t *testing.T) {
	store := newMockStore()
	svc := newTestService(store)

	companyID := uuid.New()
	store.companies[companyID] = CompanyActive

	activeID := uuid.New()
	store.taxConfigs[activeID] = TaxConfiguration{
		ID: activeID, Name: "IVA", Kind: "percentage", Rate: num(t, "0.16"), IsActive: true,
	}
	inactiveID := uuid.New()
	store.taxConfigs[inactiveID] = TaxConfiguration{
		ID: inactiveID, Name: "Old IVA", Kind: "percentage", Rate: num(t, "0.15"),
	}

	created, err := svc.Create(context.Background(), CreateQuotationRequest{
		CompanyID:    companyID,
		ContactName:  "Ana Torres",
		IssueDate:    time.Now().UTC(),
		ValidityDays: 30,
		Items: []CreateItemRequest{
			{ProductCode: "A", ProductName: "Widget A", Unit: "pz", Quantity: num(t, "1"), UnitPrice: num(t, "100.00"), TaxConfigID: &activeID},
			{ProductCode: "B", ProductName: "Widget B", Unit: "pz", Quantity: num(t, "1"), UnitPrice: num(t, "100.00"), TaxConfigID: &inactiveID},
		},
	}, uuid.New())
	require.NoError(t, err)

	require.Len(t, created.Items, 2)
	assert.True(t, created.Items[0].TaxRate.Equal(num(t, "0.16")))
	assert.True(t, created.Items[0].TaxAmount.Equal(num(t, "16.00")))
	assert.True(t, created.Items[1].TaxRate.IsZero(), "inactive config must contribute no tax")
	assert.True(t, created.Items[1].TaxAmount.IsZero())
}

func TestServiceCreateRejectsNegativeInputs(t *testing.T) {
	store := newMockStore()
	svc := newTestService(store)

	_, err := svc.Create(context.Background(), CreateQuotationRequest{
		CompanyID:    uuid.New(),
		ContactName:  "Ana Torres",
		IssueDate:    time.Now().UTC(),
		ValidityDays: 30,
		Items: []CreateItemRequest{
			{ProductCode: "A", ProductName: "Widget A", Unit: "pz", Quantity: num(t, "-1"), UnitPrice: num(t, "100.00")},
		},
	}, uuid.New())
	assert.ErrorIs(t, err, money.ErrNegativeInput)

	_, err = svc.Create(context.Background(), CreateQuotationRequest{
		CompanyID:    uuid.New(),
		ContactName:  "Ana Torres",
		IssueDate:    time.Now().UTC(),
		ValidityDays: 30,
		Discount:     num(t, "-5"),
		Items: []CreateItemRequest{
			{ProductCode: "A", ProductName: "Widget A", Unit: "pz", Quantity: num(t, "1"), UnitPrice: num(t, "100.00")},
		},
	}, uuid.New())
	assert.ErrorIs(t, err, money.ErrNegativeInput)
}

func TestServiceUpdateDraftOnly(t *testing.T) {
	store := newMockStore()
	svc := newTestService(store)

	draft := seedQuotation(t, store, QuotationDraft)
	name := "Nuevo Contacto"
	updated, err := svc.Update(context.Background(), draft.ID, UpdateQuotationRequest{ContactName: &name})
	require.NoError(t, err)
	assert.Equal(t, "Nuevo Contacto", updated.ContactName)

	generated := seedQuotation(t, store, QuotationGenerated)
	_, err = svc.Update(context.Background(), generated.ID, UpdateQuotationRequest{ContactName: &name})
	assert.ErrorIs(t, err, ErrImmutable)
}

func TestServiceUpdateRecomputesTotals(t *testing.T) {
	store := newMockStore()
	svc := newTestService(store)

	draft := seedQuotation(t, store, QuotationDraft)
	items := []CreateItemRequest{
		{ProductCode: "C", ProductName: "Widget C", Unit: "pz", Quantity: num(t, "10"), UnitPrice: num(t, "50.00"), TaxRate: num(t, "0.16")},
	}
	updated, err := svc.Update(context.Background(), draft.ID, UpdateQuotationRequest{Items: &items})
	require.NoError(t, err)

	assert.True(t, updated.Subtotal.Equal(num(t, "500.00")), "subtotal %s", updated.Subtotal)
	assert.True(t, updated.TaxAmount.Equal(num(t, "80.00")), "tax %s", updated.TaxAmount)
	assert.True(t, updated.Total.Equal(num(t, "580.00")), "total %s", updated.Total)
	require.Len(t, updated.Items, 1)
	assert.Equal(t, "C", updated.Items[0].ProductCode)
}

func TestServiceChangeQuotationStatus(t *testing.T) {
	ctx := context.Background()

	t.Run("seller can generate", func(t *testing.T) {
		store := newMockStore()
		svc := newTestService(store)
		draft := seedQuotation(t, store, QuotationDraft)
		seller := seedUser(store, RoleSeller)

		updated, err := svc.ChangeQuotationStatus(ctx, draft.ID, QuotationGenerated, seller, "")
		require.NoError(t, err)
		assert.Equal(t, string(QuotationGenerated), updated.Status)

		history, err := svc.History(ctx, draft.ID)
		require.NoError(t, err)
		require.Len(t, history, 1)
		assert.Equal(t, "draft", history[0].OldStatus)
		assert.Equal(t, "generated", history[0].NewStatus)
		assert.Equal(t, seller, history[0].ChangedBy)
	})

	t.Run("only admins approve", func(t *testing.T) {
		store := newMockStore()
		svc := newTestService(store)
		q := seedQuotation(t, store, QuotationUnderReview)
		seller := seedUser(store, RoleSeller)
		admin := seedUser(store, RoleAdmin)

		_, err := svc.ChangeQuotationStatus(ctx, q.ID, QuotationApproved, seller, "")
		assert.ErrorIs(t, err, ErrForbidden)

		updated, err := svc.ChangeQuotationStatus(ctx, q.ID, QuotationApproved, admin, "looks good")
		require.NoError(t, err)
		assert.Equal(t, string(QuotationApproved), updated.Status)
	})

	t.Run("viewers cannot change status", func(t *testing.T) {
		store := newMockStore()
		svc := newTestService(store)
		draft := seedQuotation(t, store, QuotationDraft)
		viewer := seedUser(store, RoleViewer)

		_, err := svc.ChangeQuotationStatus(ctx, draft.ID, QuotationGenerated, viewer, "")
		assert.ErrorIs(t, err, ErrForbidden)
	})

	t.Run("illegal transition rejected", func(t *testing.T) {
		store := newMockStore()
		svc := newTestService(store)
		draft := seedQuotation(t, store, QuotationDraft)
		admin := seedUser(store, RoleAdmin)

		_, err := svc.ChangeQuotationStatus(ctx, draft.ID, QuotationApproved, admin, "")
		assert.ErrorIs(t, err, ErrIllegalTransition)
	})

	t.Run("store failure propagates", func(t *testing.T) {
		store := newMockStore()
		svc := newTestService(store)
		draft := seedQuotation(t, store, QuotationDraft)
		seller := seedUser(store, RoleSeller)
		store.failUpdateStatus = ErrUnavailable

		_, err := svc.ChangeQuotationStatus(ctx, draft.ID, QuotationGenerated, seller, "")
		assert.ErrorIs(t, err, ErrUnavailable)
	})

	t.Run("conversion blocked here", func(t *testing.T) {
		store := newMockStore()
		svc := newTestService(store)
		approved := seedQuotation(t, store, QuotationApproved)
		admin := seedUser(store, RoleAdmin)

		_, err := svc.ChangeQuotationStatus(ctx, approved.ID, QuotationConverted, admin, "")
		assert.ErrorIs(t, err, ErrIllegalTransition)
	})
}

func TestServiceChangeOrderStatus(t *testing.T) {
	ctx := context.Background()

	t.Run("admin advances order", func(t *testing.T) {
		store := newMockStore()
		svc := newTestService(store)
		order := seedOrder(t, store, OrderPending)
		admin := seedUser(store, RoleAdmin)

		updated, warnings, err := svc.ChangeOrderStatus(ctx, order.ID, OrderConfirmed, admin, "")
		require.NoError(t, err)
		assert.Equal(t, string(OrderConfirmed), updated.Status)
		assert.Empty(t, warnings)
	})

	t.Run("skipping stages warns", func(t *testing.T) {
		store := newMockStore()
		svc := newTestService(store)
		order := seedOrder(t, store, OrderPending)
		admin := seedUser(store, RoleAdmin)

		updated, warnings, err := svc.ChangeOrderStatus(ctx, order.ID, OrderShipped, admin, "rush delivery")
		require.NoError(t, err)
		assert.Equal(t, string(OrderShipped), updated.Status)
		assert.Equal(t, []string{
			"skipping stage confirmed",
			"skipping stage in_progress",
			"skipping stage ready",
		}, warnings)
	})

	t.Run("non-admin rejected", func(t *testing.T) {
		store := newMockStore()
		svc := newTestService(store)
		order := seedOrder(t, store, OrderPending)
		seller := seedUser(store, RoleSeller)

		_, _, err := svc.ChangeOrderStatus(ctx, order.ID, OrderConfirmed, seller, "")
		assert.ErrorIs(t, err, ErrIllegalTransition)
	})

	t.Run("terminal order frozen", func(t *testing.T) {
		store := newMockStore()
		svc := newTestService(store)
		order := seedOrder(t, store, OrderDelivered)
		admin := seedUser(store, RoleAdmin)

		_, _, err := svc.ChangeOrderStatus(ctx, order.ID, OrderPending, admin, "")
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrIllegalTransition)
		assert.Contains(t, err.Error(), "cannot change status of delivered orders")
	})

	t.Run("quotation id rejected", func(t *testing.T) {
		store := newMockStore()
		svc := newTestService(store)
		q := seedQuotation(t, store, QuotationApproved)
		admin := seedUser(store, RoleAdmin)

		_, _, err := svc.ChangeOrderStatus(ctx, q.ID, OrderConfirmed, admin, "")
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestServiceExpireQuotations(t *testing.T) {
	store := newMockStore()
	svc := newTestService(store)
	ctx := context.Background()

	lapsed := seedQuotation(t, store, QuotationGenerated)
	store.docs[lapsed.ID].IssueDate = time.Now().UTC().AddDate(0, 0, -40)

	current := seedQuotation(t, store, QuotationGenerated)
	store.docs[current.ID].ValidityDays = 90

	draft := seedQuotation(t, store, QuotationDraft)
	store.docs[draft.ID].IssueDate = time.Now().UTC().AddDate(0, 0, -40)

	expired, err := svc.ExpireQuotations(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, expired)

	got, err := store.GetDocument(ctx, lapsed.ID)
	require.NoError(t, err)
	assert.Equal(t, string(QuotationExpired), got.Status)

	got, err = store.GetDocument(ctx, current.ID)
	require.NoError(t, err)
	assert.Equal(t, string(QuotationGenerated), got.Status)

	got, err = store.GetDocument(ctx, draft.ID)
	require.NoError(t, err)
	assert.Equal(t, string(QuotationDraft), got.Status, "drafts never auto-expire")

	history, err := store.ListStatusHistory(ctx, lapsed.ID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, uuid.Nil, history[0].ChangedBy)
	assert.Equal(t, "validity window elapsed", history[0].Reason)
}

func TestServiceExpireQuotationsHistoryFailure(t *testing.T) {
	store := newMockStore()
	svc := newTestService(store)

	lapsed := seedQuotation(t, store, QuotationGenerated)
	store.docs[lapsed.ID].IssueDate = time.Now().UTC().AddDate(0, 0, -40)
	store.failHistory = ErrUnavailable

	expired, err := svc.ExpireQuotations(context.Background())
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.Equal(t, 0, expired)
}

func TestServiceChangeQuotationStatusLosesRace(t *testing.T) {
	base := newMockStore()
	ctx := context.Background()

	q := seedQuotation(t, base, QuotationUnderReview)
	admin := seedUser(base, RoleAdmin)
	store := &racingStore{mockStore: base, docID: q.ID, status: string(QuotationRejected)}
	svc := NewService(store, NewValidator(store), NewFolioGenerator(store, testLogger), testLogger)

	_, err := svc.ChangeQuotationStatus(ctx, q.ID, QuotationApproved, admin, "")
	assert.ErrorIs(t, err, ErrConflict)

	final, gerr := base.GetDocument(ctx, q.ID)
	require.NoError(t, gerr)
	assert.Equal(t, string(QuotationRejected), final.Status, "the first committed transition must stand")

	history, herr := base.ListStatusHistory(ctx, q.ID)
	require.NoError(t, herr)
	assert.Empty(t, history)
}

func TestServiceExpireQuotationsSkipsRacedDocument(t *testing.T) {
	base := newMockStore()
	ctx := context.Background()

	lapsed := seedQuotation(t, base, QuotationGenerated)
	base.docs[lapsed.ID].IssueDate = time.Now().UTC().AddDate(0, 0, -40)
	store := &racingStore{mockStore: base, docID: lapsed.ID, status: string(QuotationApproved)}
	svc := NewService(store, NewValidator(store), NewFolioGenerator(store, testLogger), testLogger)

	expired, err := svc.ExpireQuotations(ctx)
	require.NoError(t, err, "a raced document is skipped, not an error")
	assert.Equal(t, 0, expired)

	final, gerr := base.GetDocument(ctx, lapsed.ID)
	require.NoError(t, gerr)
	assert.Equal(t, string(QuotationApproved), final.Status)
}

func TestServiceListDefaultsLimit(t *testing.T) {
	store := newMockStore()
	svc := newTestService(store)
	seedQuotation(t, store, QuotationDraft)

	kind := KindQuotation
	docs, total, err := svc.List(context.Background(), ListDocumentsRequest{Kind: &kind})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Len(t, docs, 1)
}
