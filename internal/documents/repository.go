package documents

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/cotiza-erp/cotiza-erp/internal/platform/db"
)

var (
	// ErrNotFound indicates the requested record does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrConflict indicates a uniqueness constraint rejected a write.
	ErrConflict = errors.New("conflicting record already exists")
	// ErrUnavailable indicates a transient store failure; safe to retry.
	ErrUnavailable = errors.New("store unavailable")
)

// Store is the persistence boundary of the document lifecycle. Pure
// components never touch it; validation, folio generation and conversion go
// through it exclusively.
type Store interface {
	WithTx(ctx context.Context, fn func(context.Context, Store) error) error

	GetDocument(ctx context.Context, id uuid.UUID) (*Document, error)
	GetDocumentByFolio(ctx context.Context, folio string) (*Document, error)
	FindOrderByQuotationID(ctx context.Context, quotationID uuid.UUID) (*Document, error)
	ListDocuments(ctx context.Context, req ListDocumentsRequest) ([]Document, int, error)
	ListExpiryCandidates(ctx context.Context, now time.Time) ([]Document, error)

	InsertDocumentWithItems(ctx context.Context, doc Document, items []DocumentItem) (*Document, error)
	UpdateDocument(ctx context.Context, id uuid.UUID, updates map[string]interface{}) error
	ReplaceItems(ctx context.Context, documentID uuid.UUID, items []DocumentItem) error
	UpdateDocumentStatus(ctx context.Context, id uuid.UUID, fromStatus, toStatus string) error

	AppendStatusHistory(ctx context.Context, entry StatusHistoryEntry) error
	ListStatusHistory(ctx context.Context, documentID uuid.UUID) ([]StatusHistoryEntry, error)

	ReserveFolio(ctx context.Context, kind DocumentKind) (string, error)

	GetActiveTaxConfig(ctx context.Context, id uuid.UUID) (*TaxConfiguration, error)
	ListActiveTaxConfigs(ctx context.Context) ([]TaxConfiguration, error)
	GetUserRole(ctx context.Context, userID uuid.UUID) (Role, error)
	GetCompanyStatus(ctx context.Context, companyID uuid.UUID) (CompanyStatus, error)
}

// ListDocumentsRequest filters document listings.
type ListDocumentsRequest struct {
	Kind      *DocumentKind
	CompanyID *uuid.UUID
	Status    *string
	Limit     int
	Offset    int
}

type dbtx interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

type store struct {
	db   dbtx
	pool *pgxpool.Pool
}

// NewStore builds the PostgreSQL-backed Store.
func NewStore(pool *pgxpool.Pool) Store {
	return &store{db: pool, pool: pool}
}

func (s *store) WithTx(ctx context.Context, fn func(context.Context, Store) error) error {
	return db.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		return fn(ctx, &store{db: tx, pool: s.pool})
	})
}

const documentColumns = `id, folio, kind, status, company_id, contact_name, contact_email,
	contact_phone, issue_date, validity_days, subtotal, tax_amount, discount, total,
	quotation_id, created_by, created_at, updated_at`

func (s *store) GetDocument(ctx context.Context, id uuid.UUID) (*Document, error) {
	row := s.db.QueryRow(ctx, fmt.Sprintf(`SELECT %s FROM documents WHERE id = $1`, documentColumns), id)
	return s.scanDocumentWithItems(ctx, row)
}

func (s *store) GetDocumentByFolio(ctx context.Context, folio string) (*Document, error) {
	row := s.db.QueryRow(ctx, fmt.Sprintf(`SELECT %s FROM documents WHERE folio = $1`, documentColumns), folio)
	return s.scanDocumentWithItems(ctx, row)
}

func (s *store) FindOrderByQuotationID(ctx context.Context, quotationID uuid.UUID) (*Document, error) {
	row := s.db.QueryRow(ctx,
		fmt.Sprintf(`SELECT %s FROM documents WHERE kind = 'order' AND quotation_id = $1`, documentColumns),
		quotationID)
	return s.scanDocumentWithItems(ctx, row)
}

func (s *store) ListDocuments(ctx context.Context, req ListDocumentsRequest) ([]Document, int, error) {
	conditions := []string{"TRUE"}
	var args []interface{}
	argPos := 1

	if req.Kind != nil {
		conditions = append(conditions, fmt.Sprintf("kind = $%d", argPos))
		args = append(args, *req.Kind)
		argPos++
	}
	if req.CompanyID != nil {
		conditions = append(conditions, fmt.Sprintf("company_id = $%d", argPos))
		args = append(args, *req.CompanyID)
		argPos++
	}
	if req.Status != nil {
		conditions = append(conditions, fmt.Sprintf("status = $%d", argPos))
		args = append(args, *req.Status)
		argPos++
	}

	whereClause := "WHERE " + conditions[0]
	for i := 1; i < len(conditions); i++ {
		whereClause += " AND " + conditions[i]
	}

	var total int
	if err := s.db.QueryRow(ctx, fmt.Sprintf(`SELECT COUNT(*) FROM documents %s`, whereClause), args...).Scan(&total); err != nil {
		return nil, 0, mapStoreErr(err)
	}

	query := fmt.Sprintf(`SELECT %s FROM documents %s ORDER BY issue_date DESC, folio DESC LIMIT $%d OFFSET $%d`,
		documentColumns, whereClause, argPos, argPos+1)
	args = append(args, req.Limit, req.Offset)

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, mapStoreErr(err)
	}
	defer rows.Close()

	var docs []Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, 0, err
		}
		docs = append(docs, *doc)
	}
	return docs, total, rows.Err()
}

func (s *store) ListExpiryCandidates(ctx context.Context, now time.Time) ([]Document, error) {
	rows, err := s.db.Query(ctx, fmt.Sprintf(`
		SELECT %s FROM documents
		WHERE kind = 'quotation'
		  AND status IN ('generated', 'under_review')
		  AND issue_date + make_interval(days => validity_days) < $1
		ORDER BY issue_date`, documentColumns), now)
	if err != nil {
		return nil, mapStoreErr(err)
	}
	defer rows.Close()

	var docs []Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, *doc)
	}
	return docs, rows.Err()
}

func (s *store) InsertDocumentWithItems(ctx context.Context, doc Document, items []DocumentItem) (*Document, error) {
	if doc.ID == uuid.Nil {
		doc.ID = uuid.New()
	}
	_, err := s.db.Exec(ctx, `
		INSERT INTO documents (id, folio, kind, status, company_id, contact_name, contact_email,
			contact_phone, issue_date, validity_days, subtotal, tax_amount, discount, total,
			quotation_id, created_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, NOW(), NOW())`,
		doc.ID, doc.Folio, doc.Kind, doc.Status, doc.CompanyID, doc.ContactName, doc.ContactEmail,
		doc.ContactPhone, doc.IssueDate, doc.ValidityDays,
		numeric(doc.Subtotal), numeric(doc.TaxAmount), numeric(doc.Discount), numeric(doc.Total),
		doc.QuotationID, doc.CreatedBy)
	if err != nil {
		return nil, mapStoreErr(err)
	}

	for _, item := range items {
		if item.ID == uuid.Nil {
			item.ID = uuid.New()
		}
		_, err := s.db.Exec(ctx, `
			INSERT INTO document_items (id, document_id, product_code, product_name, unit,
				quantity, unit_price, tax_rate, tax_amount, subtotal, total, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, NOW())`,
			item.ID, doc.ID, item.ProductCode, item.ProductName, item.Unit,
			numeric(item.Quantity), numeric(item.UnitPrice), numeric(item.TaxRate),
			numeric(item.TaxAmount), numeric(item.Subtotal), numeric(item.Total))
		if err != nil {
			return nil, mapStoreErr(err)
		}
	}

	return s.GetDocument(ctx, doc.ID)
}

func (s *store) UpdateDocument(ctx context.Context, id uuid.UUID, updates map[string]interface{}) error {
	query := "UPDATE documents SET updated_at = NOW()"
	var args []interface{}
	argPos := 1

	for _, col := range []string{"contact_name", "contact_email", "contact_phone", "issue_date",
		"validity_days", "subtotal", "tax_amount", "discount", "total"} {
		if v, ok := updates[col]; ok {
			if d, isDecimal := v.(decimal.Decimal); isDecimal {
				v = numeric(d)
			}
			query += fmt.Sprintf(", %s = $%d", col, argPos)
			args = append(args, v)
			argPos++
		}
	}

	query += fmt.Sprintf(" WHERE id = $%d", argPos)
	args = append(args, id)

	tag, err := s.db.Exec(ctx, query, args...)
	if err != nil {
		return mapStoreErr(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *store) ReplaceItems(ctx context.Context, documentID uuid.UUID, items []DocumentItem) error {
	if _, err := s.db.Exec(ctx, `DELETE FROM document_items WHERE document_id = $1`, documentID); err != nil {
		return mapStoreErr(err)
	}
	for _, item := range items {
		if item.ID == uuid.Nil {
			item.ID = uuid.New()
		}
		_, err := s.db.Exec(ctx, `
			INSERT INTO document_items (id, document_id, product_code, product_name, unit,
				quantity, unit_price, tax_rate, tax_amount, subtotal, total, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, NOW())`,
			item.ID, documentID, item.ProductCode, item.ProductName, item.Unit,
			numeric(item.Quantity), numeric(item.UnitPrice), numeric(item.TaxRate),
			numeric(item.TaxAmount), numeric(item.Subtotal), numeric(item.Total))
		if err != nil {
			return mapStoreErr(err)
		}
	}
	return nil
}

// UpdateDocumentStatus flips the status only while the row still carries the
// expected previous one. Zero rows means a concurrent transition committed
// first; callers decide whether that is a conflict or a skip.
func (s *store) UpdateDocumentStatus(ctx context.Context, id uuid.UUID, fromStatus, toStatus string) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE documents SET status = $1, updated_at = NOW() WHERE id = $2 AND status = $3`,
		toStatus, id, fromStatus)
	if err != nil {
		return mapStoreErr(err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: document %s is no longer %s", ErrConflict, id, fromStatus)
	}
	return nil
}

func (s *store) AppendStatusHistory(ctx context.Context, entry StatusHistoryEntry) error {
	changedAt := entry.ChangedAt
	if changedAt.IsZero() {
		changedAt = time.Now().UTC()
	}
	_, err := s.db.Exec(ctx, `
		INSERT INTO status_history (document_id, status_type, old_status, new_status, changed_by, changed_at, reason)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		entry.DocumentID, entry.StatusType, entry.OldStatus, entry.NewStatus,
		entry.ChangedBy, changedAt, entry.Reason)
	return mapStoreErr(err)
}

func (s *store) ListStatusHistory(ctx context.Context, documentID uuid.UUID) ([]StatusHistoryEntry, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, document_id, status_type, old_status, new_status, changed_by, changed_at, COALESCE(reason, '')
		FROM status_history WHERE document_id = $1 ORDER BY changed_at, id`, documentID)
	if err != nil {
		return nil, mapStoreErr(err)
	}
	defer rows.Close()

	var entries []StatusHistoryEntry
	for rows.Next() {
		var e StatusHistoryEntry
		if err := rows.Scan(&e.ID, &e.DocumentID, &e.StatusType, &e.OldStatus, &e.NewStatus,
			&e.ChangedBy, &e.ChangedAt, &e.Reason); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// ReserveFolio atomically advances the per-kind sequence and returns the next
// folio. The upsert-returning form makes the check-and-reserve a single
// statement, so two concurrent callers can never observe the same value.
func (s *store) ReserveFolio(ctx context.Context, kind DocumentKind) (string, error) {
	prefix := "COT"
	if kind == KindOrder {
		prefix = "ORD"
	}
	var seq int64
	err := s.db.QueryRow(ctx, `
		INSERT INTO folio_sequences (kind, seq)
		VALUES ($1, 1)
		ON CONFLICT (kind)
		DO UPDATE SET seq = folio_sequences.seq + 1
		RETURNING seq`, kind).Scan(&seq)
	if err != nil {
		return "", mapStoreErr(err)
	}
	return fmt.Sprintf("%s-%08d", prefix, seq), nil
}

func (s *store) GetActiveTaxConfig(ctx context.Context, id uuid.UUID) (*TaxConfiguration, error) {
	row := s.db.QueryRow(ctx, `
		SELECT id, name, kind, rate, amount, is_default, is_active
		FROM tax_configurations WHERE id = $1 AND is_active`, id)
	cfg, err := scanTaxConfig(row)
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

func (s *store) ListActiveTaxConfigs(ctx context.Context) ([]TaxConfiguration, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, name, kind, rate, amount, is_default, is_active
		FROM tax_configurations WHERE is_active ORDER BY name`)
	if err != nil {
		return nil, mapStoreErr(err)
	}
	defer rows.Close()

	var configs []TaxConfiguration
	for rows.Next() {
		cfg, err := scanTaxConfig(rows)
		if err != nil {
			return nil, err
		}
		configs = append(configs, *cfg)
	}
	return configs, rows.Err()
}

func (s *store) GetUserRole(ctx context.Context, userID uuid.UUID) (Role, error) {
	var role string
	err := s.db.QueryRow(ctx, `SELECT role FROM users WHERE id = $1`, userID).Scan(&role)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrNotFound
		}
		return "", mapStoreErr(err)
	}
	return Role(role), nil
}

func (s *store) GetCompanyStatus(ctx context.Context, companyID uuid.UUID) (CompanyStatus, error) {
	var status string
	err := s.db.QueryRow(ctx, `SELECT status FROM companies WHERE id = $1`, companyID).Scan(&status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrNotFound
		}
		return "", mapStoreErr(err)
	}
	return CompanyStatus(status), nil
}

func (s *store) scanDocumentWithItems(ctx context.Context, row pgx.Row) (*Document, error) {
	doc, err := scanDocument(row)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.Query(ctx, `
		SELECT id, document_id, product_code, product_name, unit,
			quantity, unit_price, tax_rate, tax_amount, subtotal, total, created_at
		FROM document_items WHERE document_id = $1 ORDER BY created_at, id`, doc.ID)
	if err != nil {
		return nil, mapStoreErr(err)
	}
	defer rows.Close()

	for rows.Next() {
		var item DocumentItem
		var quantity, unitPrice, taxRate, taxAmount, subtotal, total pgtype.Numeric
		if err := rows.Scan(&item.ID, &item.DocumentID, &item.ProductCode, &item.ProductName,
			&item.Unit, &quantity, &unitPrice, &taxRate, &taxAmount, &subtotal, &total,
			&item.CreatedAt); err != nil {
			return nil, err
		}
		item.Quantity = fromNumeric(quantity)
		item.UnitPrice = fromNumeric(unitPrice)
		item.TaxRate = fromNumeric(taxRate)
		item.TaxAmount = fromNumeric(taxAmount)
		item.Subtotal = fromNumeric(subtotal)
		item.Total = fromNumeric(total)
		doc.Items = append(doc.Items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return doc, nil
}

func scanDocument(row pgx.Row) (*Document, error) {
	var doc Document
	var subtotal, taxAmount, discount, total pgtype.Numeric
	var quotationID pgtype.UUID
	err := row.Scan(&doc.ID, &doc.Folio, &doc.Kind, &doc.Status, &doc.CompanyID,
		&doc.ContactName, &doc.ContactEmail, &doc.ContactPhone, &doc.IssueDate,
		&doc.ValidityDays, &subtotal, &taxAmount, &discount, &total,
		&quotationID, &doc.CreatedBy, &doc.CreatedAt, &doc.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, mapStoreErr(err)
	}
	doc.Subtotal = fromNumeric(subtotal)
	doc.TaxAmount = fromNumeric(taxAmount)
	doc.Discount = fromNumeric(discount)
	doc.Total = fromNumeric(total)
	if quotationID.Valid {
		id := uuid.UUID(quotationID.Bytes)
		doc.QuotationID = &id
	}
	return &doc, nil
}

func scanTaxConfig(row pgx.Row) (*TaxConfiguration, error) {
	var cfg TaxConfiguration
	var rate, amount pgtype.Numeric
	err := row.Scan(&cfg.ID, &cfg.Name, &cfg.Kind, &rate, &amount, &cfg.IsDefault, &cfg.IsActive)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, mapStoreErr(err)
	}
	cfg.Rate = fromNumeric(rate)
	cfg.Amount = fromNumeric(amount)
	return &cfg, nil
}

func numeric(d decimal.Decimal) pgtype.Numeric {
	var n pgtype.Numeric
	_ = n.Scan(d.String())
	return n
}

func fromNumeric(n pgtype.Numeric) decimal.Decimal {
	if !n.Valid || n.Int == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(n.Int, n.Exp)
}

// mapStoreErr folds driver errors into the package sentinels: 23505 becomes
// ErrConflict (the at-most-one-order guarantee rides on this), connection
// failures become ErrUnavailable.
func mapStoreErr(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if pgErr.Code == "23505" {
			return fmt.Errorf("%w: %s", ErrConflict, pgErr.ConstraintName)
		}
		if pgErr.Code[:2] == "08" || pgErr.Code == "57P01" {
			return fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		return err
	}
	return err
}
