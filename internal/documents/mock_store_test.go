package documents

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// mockStore is an in-memory Store for tests. It enforces the same uniqueness
// rules the real schema does: one document per folio and at most one order per
// quotation. The fail* fields inject errors into specific operations.
type mockStore struct {
	mu         sync.Mutex
	docs       map[uuid.UUID]*Document
	history    []StatusHistoryEntry
	folioSeq   map[DocumentKind]int64
	taxConfigs map[uuid.UUID]TaxConfiguration
	roles      map[uuid.UUID]Role
	companies  map[uuid.UUID]CompanyStatus

	failGet          error
	failInsert       error
	failUpdateStatus error
	failReserveFolio error
	failHistory      error
}

func newMockStore() *mockStore {
	return &mockStore{
		docs:       make(map[uuid.UUID]*Document),
		folioSeq:   make(map[DocumentKind]int64),
		taxConfigs: make(map[uuid.UUID]TaxConfiguration),
		roles:      make(map[uuid.UUID]Role),
		companies:  make(map[uuid.UUID]CompanyStatus),
	}
}

func (m *mockStore) WithTx(ctx context.Context, fn func(context.Context, Store) error) error {
	return fn(ctx, m)
}

func (m *mockStore) GetDocument(_ context.Context, id uuid.UUID) (*Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failGet != nil {
		return nil, m.failGet
	}
	doc, ok := m.docs[id]
	if !ok {
		return nil, ErrNotFound
	}
	return copyDoc(doc), nil
}

func (m *mockStore) GetDocumentByFolio(_ context.Context, folio string) (*Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, doc := range m.docs {
		if doc.Folio == folio {
			return copyDoc(doc), nil
		}
	}
	return nil, ErrNotFound
}

func (m *mockStore) FindOrderByQuotationID(_ context.Context, quotationID uuid.UUID) (*Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, doc := range m.docs {
		if doc.Kind == KindOrder && doc.QuotationID != nil && *doc.QuotationID == quotationID {
			return copyDoc(doc), nil
		}
	}
	return nil, ErrNotFound
}

func (m *mockStore) ListDocuments(_ context.Context, req ListDocumentsRequest) ([]Document, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Document
	for _, doc := range m.docs {
		if req.Kind != nil && doc.Kind != *req.Kind {
			continue
		}
		if req.CompanyID != nil && doc.CompanyID != *req.CompanyID {
			continue
		}
		if req.Status != nil && doc.Status != *req.Status {
			continue
		}
		out = append(out, *copyDoc(doc))
	}
	return out, len(out), nil
}

func (m *mockStore) ListExpiryCandidates(_ context.Context, now time.Time) ([]Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Document
	for _, doc := range m.docs {
		if doc.Kind != KindQuotation {
			continue
		}
		status := QuotationStatus(doc.Status)
		if status != QuotationGenerated && status != QuotationUnderReview {
			continue
		}
		if IsExpired(doc.IssueDate, doc.ValidityDays, now) {
			out = append(out, *copyDoc(doc))
		}
	}
	return out, nil
}

func (m *mockStore) InsertDocumentWithItems(_ context.Context, doc Document, items []DocumentItem) (*Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failInsert != nil {
		return nil, m.failInsert
	}
	if doc.ID == uuid.Nil {
		doc.ID = uuid.New()
	}
	for _, existing := range m.docs {
		if existing.Folio == doc.Folio {
			return nil, fmt.Errorf("%w: documents_folio_key", ErrConflict)
		}
		if doc.Kind == KindOrder && doc.QuotationID != nil &&
			existing.Kind == KindOrder && existing.QuotationID != nil &&
			*existing.QuotationID == *doc.QuotationID {
			return nil, fmt.Errorf("%w: documents_quotation_id_key", ErrConflict)
		}
	}

	now := time.Now().UTC()
	doc.CreatedAt = now
	doc.UpdatedAt = now
	doc.Items = nil
	for _, item := range items {
		if item.ID == uuid.Nil {
			item.ID = uuid.New()
		}
		item.DocumentID = doc.ID
		item.CreatedAt = now
		doc.Items = append(doc.Items, item)
	}
	m.docs[doc.ID] = copyDoc(&doc)
	return copyDoc(&doc), nil
}

func (m *mockStore) UpdateDocument(_ context.Context, id uuid.UUID, updates map[string]interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	doc, ok := m.docs[id]
	if !ok {
		return ErrNotFound
	}
	for col, v := range updates {
		switch col {
		case "contact_name":
			doc.ContactName = v.(string)
		case "contact_email":
			doc.ContactEmail = v.(string)
		case "contact_phone":
			doc.ContactPhone = v.(string)
		case "issue_date":
			doc.IssueDate = v.(time.Time)
		case "validity_days":
			doc.ValidityDays = v.(int)
		case "subtotal":
			doc.Subtotal = v.(decimal.Decimal)
		case "tax_amount":
			doc.TaxAmount = v.(decimal.Decimal)
		case "discount":
			doc.Discount = v.(decimal.Decimal)
		case "total":
			doc.Total = v.(decimal.Decimal)
		}
	}
	doc.UpdatedAt = time.Now().UTC()
	return nil
}

func (m *mockStore) ReplaceItems(_ context.Context, documentID uuid.UUID, items []DocumentItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	doc, ok := m.docs[documentID]
	if !ok {
		return ErrNotFound
	}
	doc.Items = nil
	now := time.Now().UTC()
	for _, item := range items {
		if item.ID == uuid.Nil {
			item.ID = uuid.New()
		}
		item.DocumentID = documentID
		item.CreatedAt = now
		doc.Items = append(doc.Items, item)
	}
	return nil
}

func (m *mockStore) UpdateDocumentStatus(_ context.Context, id uuid.UUID, fromStatus, toStatus string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failUpdateStatus != nil {
		return m.failUpdateStatus
	}
	doc, ok := m.docs[id]
	if !ok {
		return ErrNotFound
	}
	if doc.Status != fromStatus {
		return fmt.Errorf("%w: document %s is no longer %s", ErrConflict, id, fromStatus)
	}
	doc.Status = toStatus
	doc.UpdatedAt = time.Now().UTC()
	return nil
}

func (m *mockStore) AppendStatusHistory(_ context.Context, entry StatusHistoryEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failHistory != nil {
		return m.failHistory
	}
	entry.ID = int64(len(m.history) + 1)
	if entry.ChangedAt.IsZero() {
		entry.ChangedAt = time.Now().UTC()
	}
	m.history = append(m.history, entry)
	return nil
}

func (m *mockStore) ListStatusHistory(_ context.Context, documentID uuid.UUID) ([]StatusHistoryEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []StatusHistoryEntry
	for _, e := range m.history {
		if e.DocumentID == documentID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *mockStore) ReserveFolio(_ context.Context, kind DocumentKind) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failReserveFolio != nil {
		return "", m.failReserveFolio
	}
	prefix := "COT"
	if kind == KindOrder {
		prefix = "ORD"
	}
	m.folioSeq[kind]++
	return fmt.Sprintf("%s-%08d", prefix, m.folioSeq[kind]), nil
}

func (m *mockStore) GetActiveTaxConfig(_ context.Context, id uuid.UUID) (*TaxConfiguration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cfg, ok := m.taxConfigs[id]
	if !ok || !cfg.IsActive {
		return nil, ErrNotFound
	}
	out := cfg
	return &out, nil
}

func (m *mockStore) ListActiveTaxConfigs(_ context.Context) ([]TaxConfiguration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []TaxConfiguration
	for _, cfg := range m.taxConfigs {
		if cfg.IsActive {
			out = append(out, cfg)
		}
	}
	return out, nil
}

func (m *mockStore) GetUserRole(_ context.Context, userID uuid.UUID) (Role, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	role, ok := m.roles[userID]
	if !ok {
		return "", ErrNotFound
	}
	return role, nil
}

func (m *mockStore) GetCompanyStatus(_ context.Context, companyID uuid.UUID) (CompanyStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	status, ok := m.companies[companyID]
	if !ok {
		return "", ErrNotFound
	}
	return status, nil
}

func copyDoc(doc *Document) *Document {
	out := *doc
	out.Items = append([]DocumentItem(nil), doc.Items...)
	if doc.QuotationID != nil {
		id := *doc.QuotationID
		out.QuotationID = &id
	}
	return &out
}
