package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"gearshop/backend/internal/domain"
	"gearshop/backend/internal/store"
	"gearshop/backend/internal/xid"
)

type Store struct {
	db *sql.DB
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// productTables maps a category onto its table. The catalog keeps six
// parallel tables with an identical shape, one per category.
var productTables = map[string]string{
	domain.ProductTypeLaptop:      "products_laptop",
	domain.ProductTypeMonitor:     "products_monitor",
	domain.ProductTypePeripheral:  "products_peripheral",
	domain.ProductTypeGamingChair: "products_gaming_chair",
	domain.ProductTypeDesktop:     "products_desktop",
	domain.ProductTypeComponent:   "products_component",
}

func productTable(productType string) (string, error) {
	table, ok := productTables[productType]
	if !ok {
		return "", store.ErrUnsupportedProductType
	}
	return table, nil
}

const productColumns = `id, name, brand, model, attributes, purchase_cents, price_cents, current_stock, min_stock, status, supplier_id, barcode, image_url, created_by, created_at, updated_at`

func scanProduct(row interface{ Scan(...any) error }, productType string) (*domain.Product, error) {
	var p domain.Product
	var supplierID, barcode, imageURL, createdBy sql.NullString
	err := row.Scan(&p.ID, &p.Name, &p.Brand, &p.Model, &p.Attributes, &p.PurchaseCents, &p.PriceCents,
		&p.CurrentStock, &p.MinStock, &p.Status, &supplierID, &barcode, &imageURL, &createdBy,
		&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	p.Type = productType
	p.SupplierID = supplierID.String
	p.Barcode = barcode.String
	p.ImageURL = imageURL.String
	p.CreatedBy = createdBy.String
	p.CreatedAt = p.CreatedAt.UTC()
	p.UpdatedAt = p.UpdatedAt.UTC()
	return &p, nil
}

func (s *Store) ListProducts(ctx context.Context, productType string, status string) ([]domain.Product, error) {
	types := domain.ProductTypes
	if productType != "" {
		if _, err := productTable(productType); err != nil {
			return nil, err
		}
		types = []string{productType}
	}

	products := make([]domain.Product, 0, 128)
	for _, t := range types {
		table, err := productTable(t)
		if err != nil {
			return nil, err
		}
		query := fmt.Sprintf(`SELECT %s FROM %s`, productColumns, table)
		args := []any{}
		if status != "" {
			query += ` WHERE status = $1`
			args = append(args, status)
		}
		query += ` ORDER BY name`

		rows, err := s.db.QueryContext(ctx, query, args...)
		if err != nil {
			return nil, err
		}
		for rows.Next() {
			p, err := scanProduct(rows, t)
			if err != nil {
				_ = rows.Close()
				return nil, err
			}
			products = append(products, *p)
		}
		if err := rows.Err(); err != nil {
			_ = rows.Close()
			return nil, err
		}
		_ = rows.Close()
	}
	return products, nil
}

func (s *Store) CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	table, err := productTable(product.Type)
	if err != nil {
		return nil, err
	}
	if product.Name == "" || product.PriceCents < 1 || product.CurrentStock < 0 {
		return nil, store.ErrInvalidSale
	}
	if product.ID == "" {
		product.ID = xid.New("prd")
	}
	product.Status = domain.StockStatusFor(product.CurrentStock, product.MinStock)

	_, err = s.db.ExecContext(ctx, fmt.Sprintf(`
		INSERT INTO %s (id, name, brand, model, attributes, purchase_cents, price_cents, current_stock, min_stock, status, supplier_id, barcode, image_url, created_by, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,now(),now())
	`, table), product.ID, product.Name, product.Brand, product.Model, product.Attributes,
		product.PurchaseCents, product.PriceCents, product.CurrentStock, product.MinStock, product.Status,
		nullIfEmpty(product.SupplierID), nullIfEmpty(product.Barcode), nullIfEmpty(product.ImageURL), nullIfEmpty(product.CreatedBy))
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrInvalidSale
		}
		return nil, err
	}

	now := time.Now().UTC()
	product.CreatedAt = now
	product.UpdatedAt = now
	created := product
	return &created, nil
}

func (s *Store) GetProduct(ctx context.Context, productType string, id string) (*domain.Product, error) {
	table, err := productTable(productType)
	if err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx, fmt.Sprintf(`SELECT %s FROM %s WHERE id = $1`, productColumns, table), id)
	product, err := scanProduct(row, productType)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return product, nil
}

func (s *Store) UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	table, err := productTable(product.Type)
	if err != nil {
		return nil, err
	}
	if product.Name == "" || product.PriceCents < 1 {
		return nil, store.ErrInvalidSale
	}

	// Stock is not editable here; it moves through AdjustStock and the
	// sale paths, and status is recomputed alongside each stock change.
	res, err := s.db.ExecContext(ctx, fmt.Sprintf(`
		UPDATE %s
		SET name = $2, brand = $3, model = $4, attributes = $5, purchase_cents = $6, price_cents = $7,
		    min_stock = $8, status = CASE WHEN current_stock <= 0 THEN 'out_of_stock' WHEN current_stock <= $8 THEN 'low_stock' ELSE 'in_stock' END,
		    supplier_id = $9, barcode = $10, image_url = $11, updated_at = now()
		WHERE id = $1
	`, table), product.ID, product.Name, product.Brand, product.Model, product.Attributes,
		product.PurchaseCents, product.PriceCents, product.MinStock,
		nullIfEmpty(product.SupplierID), nullIfEmpty(product.Barcode), nullIfEmpty(product.ImageURL))
	if err != nil {
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, store.ErrNotFound
	}

	return s.GetProduct(ctx, product.Type, product.ID)
}

func (s *Store) DeleteProduct(ctx context.Context, productType string, id string) error {
	table, err := productTable(productType)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE id = $1`, table), id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) AdjustStock(ctx context.Context, productType string, id string, delta int) (*domain.Product, error) {
	table, err := productTable(productType)
	if err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	if err := adjustStockTx(ctx, tx, table, id, delta); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return s.GetProduct(ctx, productType, id)
}

// adjustStockTx locks the product row, enforces the non-negative stock
// invariant and recomputes the derived status, all inside the caller's
// transaction.
func adjustStockTx(ctx context.Context, tx *sql.Tx, table string, id string, delta int) error {
	var current, minStock int
	err := tx.QueryRowContext(ctx, fmt.Sprintf(`
		SELECT current_stock, min_stock FROM %s WHERE id = $1 FOR UPDATE
	`, table), id).Scan(&current, &minStock)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return store.ErrNotFound
		}
		return err
	}

	next := current + delta
	if next < 0 {
		return fmt.Errorf("%w: product %s has %d, need %d", store.ErrInsufficientStock, id, current, -delta)
	}

	_, err = tx.ExecContext(ctx, fmt.Sprintf(`
		UPDATE %s SET current_stock = $2, status = $3, updated_at = now() WHERE id = $1
	`, table), id, next, domain.StockStatusFor(next, minStock))
	return err
}

func (s *Store) NextReference(ctx context.Context, kind string, year int) (string, error) {
	var lastSeq int
	err := s.db.QueryRowContext(ctx, `
		SELECT COALESCE((SELECT last_seq FROM reference_counters WHERE kind = $1 AND year = $2), 0)
	`, kind, year).Scan(&lastSeq)
	if err != nil {
		return "", err
	}

	seq := lastSeq
	for {
		seq++
		ref := formatReference(kind, seq, year)
		taken, err := s.ReferenceTaken(ctx, ref, "")
		if err != nil {
			return "", err
		}
		if !taken {
			return ref, nil
		}
	}
}

func (s *Store) ReferenceTaken(ctx context.Context, reference string, excludeSaleID string) (bool, error) {
	var taken bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS(SELECT 1 FROM sales WHERE reference = $1 AND id <> $2)
	`, reference, excludeSaleID).Scan(&taken)
	return taken, err
}

// allocateReferenceTx bumps the per-year counter and skips over numbers
// issued by hand. The counter only moves forward, so a deleted sale's
// number is never reallocated; the unique constraint on sales.reference
// backs the whole scheme against concurrent allocations.
func allocateReferenceTx(ctx context.Context, tx *sql.Tx, kind string, year int) (string, error) {
	for {
		var seq int
		err := tx.QueryRowContext(ctx, `
			INSERT INTO reference_counters (kind, year, last_seq)
			VALUES ($1, $2, 1)
			ON CONFLICT (kind, year) DO UPDATE SET last_seq = reference_counters.last_seq + 1
			RETURNING last_seq
		`, kind, year).Scan(&seq)
		if err != nil {
			return "", err
		}

		ref := formatReference(kind, seq, year)
		var taken bool
		if err := tx.QueryRowContext(ctx, `
			SELECT EXISTS(SELECT 1 FROM sales WHERE reference = $1)
		`, ref).Scan(&taken); err != nil {
			return "", err
		}
		if !taken {
			return ref, nil
		}
	}
}

func formatReference(kind string, seq, year int) string {
	if kind == domain.SaleKindPurchaseOrder {
		return fmt.Sprintf("BA %d-%d", seq, year)
	}
	return fmt.Sprintf("%d/%d", seq, year)
}

func (s *Store) CreateSale(ctx context.Context, draft store.SaleDraft) (*domain.Sale, error) {
	sale := draft.Sale
	if sale.ID == "" {
		sale.ID = xid.New("sal")
	}
	if sale.Date.IsZero() {
		sale.Date = time.Now().UTC()
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	if sale.Reference == "" {
		sale.Reference, err = allocateReferenceTx(ctx, tx, sale.Kind, sale.Date.Year())
		if err != nil {
			return nil, err
		}
	} else {
		var taken bool
		if err := tx.QueryRowContext(ctx, `
			SELECT EXISTS(SELECT 1 FROM sales WHERE reference = $1)
		`, sale.Reference).Scan(&taken); err != nil {
			return nil, err
		}
		if taken {
			return nil, store.ErrDuplicateReference
		}
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO sales (id, reference, kind, date, client_id, seller, subtotal_cents, tax_cents, discount_cents,
		                   delivery_fee_cents, total_cents, payment_mode, channel, status, delivery_address,
		                   delivery_date, notes, created_by, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,now(),now())
	`, sale.ID, sale.Reference, sale.Kind, sale.Date, nullIfEmpty(sale.ClientID), nullIfEmpty(sale.Seller),
		sale.SubtotalCents, sale.TaxCents, sale.DiscountCents, sale.DeliveryFeeCents, sale.TotalCents,
		sale.PaymentMode, sale.Channel, sale.Status, nullIfEmpty(sale.DeliveryAddress),
		nullTime(sale.DeliveryDate), nullIfEmpty(sale.Notes), nullIfEmpty(sale.CreatedBy))
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrDuplicateReference
		}
		return nil, err
	}

	// Stock moves line by line under row locks, inside this transaction:
	// an insufficient line aborts everything, leaving no header, lines,
	// payments or ledger rows behind.
	for _, line := range draft.Lines {
		table, err := productTable(line.ProductType)
		if err != nil {
			return nil, err
		}
		if err := adjustStockTx(ctx, tx, table, line.ProductID, -line.Qty); err != nil {
			return nil, err
		}
		if line.ID == "" {
			line.ID = xid.New("lin")
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO sale_lines (id, sale_id, product_id, product_type, name, brand, model, unit_price_cents,
			                        unit_price_ttc_cents, qty, unit_discount_cents, total_cents, image_url)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
		`, line.ID, sale.ID, line.ProductID, line.ProductType, line.Name, line.Brand, line.Model,
			line.UnitPriceCents, line.UnitPriceTTCCents, line.Qty, line.UnitDiscountCents, line.TotalCents,
			nullIfEmpty(line.ImageURL))
		if err != nil {
			return nil, err
		}
	}

	for _, payment := range draft.Payments {
		if payment.ID == "" {
			payment.ID = xid.New("pay")
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO sale_payments (id, sale_id, amount_cents, mode, check_number, check_due_date, bank_account_id, status, created_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,now())
		`, payment.ID, sale.ID, payment.AmountCents, payment.Mode, nullIfEmpty(payment.CheckNumber),
			nullTime(payment.CheckDueDate), nullIfEmpty(payment.BankAccountID), payment.Status)
		if err != nil {
			return nil, err
		}
	}

	for _, check := range draft.Checks {
		if check.ID == "" {
			check.ID = xid.New("chk")
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO checks (id, number, amount_cents, issue_date, due_date, client_name, client_email, sale_id, status, created_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,now())
		`, check.ID, check.Number, check.AmountCents, nullTime(check.IssueDate), nullTime(check.DueDate),
			nullIfEmpty(check.ClientName), nullIfEmpty(check.ClientEmail), sale.ID, domain.CheckStatusPending)
		if err != nil {
			return nil, err
		}
	}

	for _, entry := range draft.Ledger {
		entry.SaleID = sale.ID
		if err := appendLedgerTx(ctx, tx, entry); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrDuplicateReference
		}
		return nil, err
	}

	return s.GetSale(ctx, sale.ID)
}

const saleColumns = `id, reference, kind, date, client_id, seller, subtotal_cents, tax_cents, discount_cents, delivery_fee_cents, total_cents, payment_mode, channel, status, delivery_address, delivery_date, notes, created_by, created_at, updated_at`

func scanSale(row interface{ Scan(...any) error }) (*domain.Sale, error) {
	var sale domain.Sale
	var clientID, seller, deliveryAddress, notes, createdBy sql.NullString
	var deliveryDate sql.NullTime
	err := row.Scan(&sale.ID, &sale.Reference, &sale.Kind, &sale.Date, &clientID, &seller,
		&sale.SubtotalCents, &sale.TaxCents, &sale.DiscountCents, &sale.DeliveryFeeCents, &sale.TotalCents,
		&sale.PaymentMode, &sale.Channel, &sale.Status, &deliveryAddress, &deliveryDate, &notes, &createdBy,
		&sale.CreatedAt, &sale.UpdatedAt)
	if err != nil {
		return nil, err
	}
	sale.ClientID = clientID.String
	sale.Seller = seller.String
	sale.DeliveryAddress = deliveryAddress.String
	sale.Notes = notes.String
	sale.CreatedBy = createdBy.String
	if deliveryDate.Valid {
		d := deliveryDate.Time.UTC()
		sale.DeliveryDate = &d
	}
	sale.Date = sale.Date.UTC()
	sale.CreatedAt = sale.CreatedAt.UTC()
	sale.UpdatedAt = sale.UpdatedAt.UTC()
	return &sale, nil
}

func (s *Store) GetSale(ctx context.Context, id string) (*domain.Sale, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+saleColumns+` FROM sales WHERE id = $1`, id)
	sale, err := scanSale(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}

	sale.Lines, err = s.saleLines(ctx, id)
	if err != nil {
		return nil, err
	}
	sale.Payments, err = s.salePayments(ctx, id)
	if err != nil {
		return nil, err
	}
	return sale, nil
}

func (s *Store) saleLines(ctx context.Context, saleID string) ([]domain.SaleLine, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, sale_id, product_id, product_type, name, brand, model, unit_price_cents, unit_price_ttc_cents,
		       qty, unit_discount_cents, total_cents, image_url
		FROM sale_lines
		WHERE sale_id = $1
		ORDER BY id
	`, saleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	lines := make([]domain.SaleLine, 0, 8)
	for rows.Next() {
		var line domain.SaleLine
		var imageURL sql.NullString
		if err := rows.Scan(&line.ID, &line.SaleID, &line.ProductID, &line.ProductType, &line.Name, &line.Brand,
			&line.Model, &line.UnitPriceCents, &line.UnitPriceTTCCents, &line.Qty, &line.UnitDiscountCents,
			&line.TotalCents, &imageURL); err != nil {
			return nil, err
		}
		line.ImageURL = imageURL.String
		lines = append(lines, line)
	}
	return lines, rows.Err()
}

func (s *Store) salePayments(ctx context.Context, saleID string) ([]domain.Payment, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, sale_id, amount_cents, mode, check_number, check_due_date, bank_account_id, status, created_at
		FROM sale_payments
		WHERE sale_id = $1
		ORDER BY id
	`, saleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	payments := make([]domain.Payment, 0, 4)
	for rows.Next() {
		var payment domain.Payment
		var checkNumber, bankAccountID sql.NullString
		var dueDate sql.NullTime
		if err := rows.Scan(&payment.ID, &payment.SaleID, &payment.AmountCents, &payment.Mode, &checkNumber,
			&dueDate, &bankAccountID, &payment.Status, &payment.CreatedAt); err != nil {
			return nil, err
		}
		payment.CheckNumber = checkNumber.String
		payment.BankAccountID = bankAccountID.String
		if dueDate.Valid {
			d := dueDate.Time.UTC()
			payment.CheckDueDate = &d
		}
		payment.CreatedAt = payment.CreatedAt.UTC()
		payments = append(payments, payment)
	}
	return payments, rows.Err()
}

func (s *Store) ListSales(ctx context.Context, filter domain.SaleListFilter) ([]domain.Sale, error) {
	query := `SELECT ` + saleColumns + ` FROM sales`
	conds := make([]string, 0, 4)
	args := make([]any, 0, 4)
	if filter.Kind != "" {
		args = append(args, filter.Kind)
		conds = append(conds, fmt.Sprintf("kind = $%d", len(args)))
	}
	if filter.Status != "" {
		args = append(args, filter.Status)
		conds = append(conds, fmt.Sprintf("status = $%d", len(args)))
	}
	if filter.ClientID != "" {
		args = append(args, filter.ClientID)
		conds = append(conds, fmt.Sprintf("client_id = $%d", len(args)))
	}
	if filter.Year != 0 {
		args = append(args, filter.Year)
		conds = append(conds, fmt.Sprintf("EXTRACT(YEAR FROM date) = $%d", len(args)))
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY date DESC, id DESC"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sales := make([]domain.Sale, 0, 32)
	for rows.Next() {
		sale, err := scanSale(rows)
		if err != nil {
			return nil, err
		}
		sales = append(sales, *sale)
	}
	return sales, rows.Err()
}

func (s *Store) UpdateSale(ctx context.Context, sale domain.Sale, restock bool) (*domain.Sale, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	if restock {
		if err := restockLinesTx(ctx, tx, sale.ID); err != nil {
			return nil, err
		}
	}

	res, err := tx.ExecContext(ctx, `
		UPDATE sales
		SET reference = $2, client_id = $3, status = $4, notes = $5, delivery_address = $6, delivery_date = $7,
		    discount_cents = $8, total_cents = $9, updated_at = now()
		WHERE id = $1
	`, sale.ID, sale.Reference, nullIfEmpty(sale.ClientID), sale.Status, nullIfEmpty(sale.Notes),
		nullIfEmpty(sale.DeliveryAddress), nullTime(sale.DeliveryDate), sale.DiscountCents, sale.TotalCents)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrDuplicateReference
		}
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, store.ErrNotFound
	}

	if err := tx.Commit(); err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrDuplicateReference
		}
		return nil, err
	}
	return s.GetSale(ctx, sale.ID)
}

// restockLinesTx restores the on-hand quantity for every line of a
// sale. A refund has no upper bound, so failures here are only missing
// products, which are logged upstream.
func restockLinesTx(ctx context.Context, tx *sql.Tx, saleID string) error {
	rows, err := tx.QueryContext(ctx, `
		SELECT product_id, product_type, qty FROM sale_lines WHERE sale_id = $1
	`, saleID)
	if err != nil {
		return err
	}
	type lineRef struct {
		productID   string
		productType string
		qty         int
	}
	lines := make([]lineRef, 0, 8)
	for rows.Next() {
		var line lineRef
		if err := rows.Scan(&line.productID, &line.productType, &line.qty); err != nil {
			_ = rows.Close()
			return err
		}
		lines = append(lines, line)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return err
	}
	_ = rows.Close()

	for _, line := range lines {
		table, err := productTable(line.productType)
		if err != nil {
			return err
		}
		if err := adjustStockTx(ctx, tx, table, line.productID, line.qty); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				// A deleted catalog row cannot be restocked; the sale
				// transition still proceeds.
				continue
			}
			return err
		}
	}
	return nil
}

func (s *Store) CancelSale(ctx context.Context, id string, status string, reason string) (*domain.Sale, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var currentStatus, notes string
	var notesNull sql.NullString
	err = tx.QueryRowContext(ctx, `
		SELECT status, notes FROM sales WHERE id = $1 FOR UPDATE
	`, id).Scan(&currentStatus, &notesNull)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	notes = notesNull.String
	if currentStatus == domain.SaleStatusCancelled || currentStatus == domain.SaleStatusRefunded {
		return nil, fmt.Errorf("%w: sale %s is already %s", store.ErrInvalidSale, id, currentStatus)
	}

	if err := restockLinesTx(ctx, tx, id); err != nil {
		return nil, err
	}

	// Offsetting entries keep the books append-only.
	entryRows, err := tx.QueryContext(ctx, `
		SELECT book, direction, amount_cents, description, category, bank_account_id, counterparty, created_by
		FROM ledger_entries
		WHERE sale_id = $1
	`, id)
	if err != nil {
		return nil, err
	}
	reversals := make([]domain.LedgerEntry, 0, 4)
	for entryRows.Next() {
		var entry domain.LedgerEntry
		var category, bankAccountID, counterparty, createdBy sql.NullString
		if err := entryRows.Scan(&entry.Book, &entry.Direction, &entry.AmountCents, &entry.Description,
			&category, &bankAccountID, &counterparty, &createdBy); err != nil {
			_ = entryRows.Close()
			return nil, err
		}
		entry.Category = category.String
		entry.BankAccountID = bankAccountID.String
		entry.Counterparty = counterparty.String
		entry.CreatedBy = createdBy.String
		entry.SaleID = id
		entry.Direction = oppositeDirection(entry.Direction)
		entry.Description = "reversal: " + entry.Description
		reversals = append(reversals, entry)
	}
	if err := entryRows.Err(); err != nil {
		_ = entryRows.Close()
		return nil, err
	}
	_ = entryRows.Close()
	for _, entry := range reversals {
		if err := appendLedgerTx(ctx, tx, entry); err != nil {
			return nil, err
		}
	}

	if reason != "" {
		notes = strings.TrimSpace(notes + "\n" + reason)
	}
	_, err = tx.ExecContext(ctx, `
		UPDATE sales SET status = $2, notes = $3, updated_at = now() WHERE id = $1
	`, id, status, nullIfEmpty(notes))
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return s.GetSale(ctx, id)
}

func (s *Store) DeleteSale(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var status string
	err = tx.QueryRowContext(ctx, `SELECT status FROM sales WHERE id = $1 FOR UPDATE`, id).Scan(&status)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return store.ErrNotFound
		}
		return err
	}

	// Cancelled and refunded sales already had their stock restored.
	if status != domain.SaleStatusCancelled && status != domain.SaleStatusRefunded {
		if err := restockLinesTx(ctx, tx, id); err != nil {
			return err
		}
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM ledger_entries WHERE sale_id = $1`, id); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM checks WHERE sale_id = $1`, id); err != nil {
		return err
	}
	// Lines and payments cascade from the header.
	if _, err := tx.ExecContext(ctx, `DELETE FROM sales WHERE id = $1`, id); err != nil {
		return err
	}

	return tx.Commit()
}

const checkColumns = `id, number, amount_cents, issue_date, due_date, client_name, client_email, sale_id, status, cash_method, bank_account_id, cashed_at, created_at`

func scanCheck(row interface{ Scan(...any) error }) (*domain.Check, error) {
	var check domain.Check
	var issueDate, dueDate, cashedAt sql.NullTime
	var clientName, clientEmail, saleID, cashMethod, bankAccountID sql.NullString
	err := row.Scan(&check.ID, &check.Number, &check.AmountCents, &issueDate, &dueDate, &clientName,
		&clientEmail, &saleID, &check.Status, &cashMethod, &bankAccountID, &cashedAt, &check.CreatedAt)
	if err != nil {
		return nil, err
	}
	check.ClientName = clientName.String
	check.ClientEmail = clientEmail.String
	check.SaleID = saleID.String
	check.CashMethod = cashMethod.String
	check.BankAccountID = bankAccountID.String
	if issueDate.Valid {
		d := issueDate.Time.UTC()
		check.IssueDate = &d
	}
	if dueDate.Valid {
		d := dueDate.Time.UTC()
		check.DueDate = &d
	}
	if cashedAt.Valid {
		d := cashedAt.Time.UTC()
		check.CashedAt = &d
	}
	check.CreatedAt = check.CreatedAt.UTC()
	return &check, nil
}

func (s *Store) CreateCheck(ctx context.Context, check domain.Check) (*domain.Check, error) {
	if check.Number == "" || check.AmountCents < 1 {
		return nil, store.ErrInvalidSale
	}
	if check.ID == "" {
		check.ID = xid.New("chk")
	}
	if check.Status == "" {
		check.Status = domain.CheckStatusPending
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO checks (id, number, amount_cents, issue_date, due_date, client_name, client_email, sale_id, status, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,now())
	`, check.ID, check.Number, check.AmountCents, nullTime(check.IssueDate), nullTime(check.DueDate),
		nullIfEmpty(check.ClientName), nullIfEmpty(check.ClientEmail), nullIfEmpty(check.SaleID), check.Status)
	if err != nil {
		return nil, err
	}
	return s.GetCheck(ctx, check.ID)
}

func (s *Store) GetCheck(ctx context.Context, id string) (*domain.Check, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+checkColumns+` FROM checks WHERE id = $1`, id)
	check, err := scanCheck(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return check, nil
}

func (s *Store) ListChecks(ctx context.Context, status string, limit int) ([]domain.Check, error) {
	if limit < 1 {
		limit = 100
	}
	query := `SELECT ` + checkColumns + ` FROM checks`
	args := []any{}
	if status != "" {
		query += ` WHERE status = $1`
		args = append(args, status)
	}
	args = append(args, limit)
	query += fmt.Sprintf(` ORDER BY created_at DESC, id DESC LIMIT $%d`, len(args))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	checks := make([]domain.Check, 0, limit)
	for rows.Next() {
		check, err := scanCheck(rows)
		if err != nil {
			return nil, err
		}
		checks = append(checks, *check)
	}
	return checks, rows.Err()
}

func (s *Store) SettleCheck(ctx context.Context, id string, status string, method string, bankAccountID string) (*domain.Check, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var currentStatus, number string
	var amountCents int64
	var saleID sql.NullString
	err = tx.QueryRowContext(ctx, `
		SELECT status, number, amount_cents, sale_id FROM checks WHERE id = $1 FOR UPDATE
	`, id).Scan(&currentStatus, &number, &amountCents, &saleID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	if currentStatus != domain.CheckStatusPending {
		return nil, fmt.Errorf("%w: check %s is already %s", store.ErrInvalidSale, id, currentStatus)
	}

	if status == domain.CheckStatusCashed {
		entry := domain.LedgerEntry{
			Book:        domain.LedgerBookCash,
			Direction:   domain.LedgerDirectionIn,
			AmountCents: amountCents,
			Description: fmt.Sprintf("check %s cashed", number),
			Category:    "check",
			SaleID:      saleID.String,
		}
		if method == domain.CheckCashMethodTransfer {
			var exists bool
			if err := tx.QueryRowContext(ctx, `
				SELECT EXISTS(SELECT 1 FROM bank_accounts WHERE id = $1)
			`, bankAccountID).Scan(&exists); err != nil {
				return nil, err
			}
			if !exists {
				return nil, store.ErrNotFound
			}
			entry.Book = domain.LedgerBookBank
			entry.BankAccountID = bankAccountID
		}
		if err := appendLedgerTx(ctx, tx, entry); err != nil {
			return nil, err
		}
		_, err = tx.ExecContext(ctx, `
			UPDATE checks SET status = $2, cash_method = $3, bank_account_id = $4, cashed_at = now() WHERE id = $1
		`, id, status, method, nullIfEmpty(bankAccountID))
	} else {
		_, err = tx.ExecContext(ctx, `UPDATE checks SET status = $2 WHERE id = $1`, id, status)
	}
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return s.GetCheck(ctx, id)
}

func appendLedgerTx(ctx context.Context, tx *sql.Tx, entry domain.LedgerEntry) error {
	if entry.ID == "" {
		entry.ID = xid.New("led")
	}
	_, err := tx.ExecContext(ctx, `
		INSERT INTO ledger_entries (id, book, direction, amount_cents, description, category, sale_id,
		                            bank_account_id, counterparty, reconciled, created_by, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,now())
	`, entry.ID, entry.Book, entry.Direction, entry.AmountCents, entry.Description, nullIfEmpty(entry.Category),
		nullIfEmpty(entry.SaleID), nullIfEmpty(entry.BankAccountID), nullIfEmpty(entry.Counterparty),
		entry.Reconciled, nullIfEmpty(entry.CreatedBy))
	return err
}

func (s *Store) AppendLedgerEntry(ctx context.Context, entry domain.LedgerEntry) (*domain.LedgerEntry, error) {
	if entry.AmountCents < 1 || (entry.Direction != domain.LedgerDirectionIn && entry.Direction != domain.LedgerDirectionOut) {
		return nil, store.ErrInvalidSale
	}
	if entry.Book == domain.LedgerBookBank && entry.BankAccountID == "" {
		return nil, store.ErrInvalidSale
	}
	if entry.ID == "" {
		entry.ID = xid.New("led")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()
	if err := appendLedgerTx(ctx, tx, entry); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}

	entries, err := s.ListLedgerEntries(ctx, domain.LedgerListFilter{Limit: 1, Book: entry.Book})
	if err != nil || len(entries) == 0 {
		entry.CreatedAt = time.Now().UTC()
		return &entry, nil
	}
	return &entries[0], nil
}

func (s *Store) ListLedgerEntries(ctx context.Context, filter domain.LedgerListFilter) ([]domain.LedgerEntry, error) {
	query := `
		SELECT id, book, direction, amount_cents, description, category, sale_id, bank_account_id,
		       counterparty, reconciled, created_by, created_at
		FROM ledger_entries`
	conds := make([]string, 0, 2)
	args := make([]any, 0, 3)
	if filter.Book != "" {
		args = append(args, filter.Book)
		conds = append(conds, fmt.Sprintf("book = $%d", len(args)))
	}
	if filter.SaleID != "" {
		args = append(args, filter.SaleID)
		conds = append(conds, fmt.Sprintf("sale_id = $%d", len(args)))
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY created_at DESC, id DESC"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := make([]domain.LedgerEntry, 0, 32)
	for rows.Next() {
		var entry domain.LedgerEntry
		var category, saleID, bankAccountID, counterparty, createdBy sql.NullString
		if err := rows.Scan(&entry.ID, &entry.Book, &entry.Direction, &entry.AmountCents, &entry.Description,
			&category, &saleID, &bankAccountID, &counterparty, &entry.Reconciled, &createdBy, &entry.CreatedAt); err != nil {
			return nil, err
		}
		entry.Category = category.String
		entry.SaleID = saleID.String
		entry.BankAccountID = bankAccountID.String
		entry.Counterparty = counterparty.String
		entry.CreatedBy = createdBy.String
		entry.CreatedAt = entry.CreatedAt.UTC()
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

func (s *Store) SetLedgerReconciled(ctx context.Context, id string, reconciled bool) (*domain.LedgerEntry, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE ledger_entries SET reconciled = $2 WHERE id = $1
	`, id, reconciled)
	if err != nil {
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, store.ErrNotFound
	}

	var entry domain.LedgerEntry
	var category, saleID, bankAccountID, counterparty, createdBy sql.NullString
	err = s.db.QueryRowContext(ctx, `
		SELECT id, book, direction, amount_cents, description, category, sale_id, bank_account_id,
		       counterparty, reconciled, created_by, created_at
		FROM ledger_entries WHERE id = $1
	`, id).Scan(&entry.ID, &entry.Book, &entry.Direction, &entry.AmountCents, &entry.Description,
		&category, &saleID, &bankAccountID, &counterparty, &entry.Reconciled, &createdBy, &entry.CreatedAt)
	if err != nil {
		return nil, err
	}
	entry.Category = category.String
	entry.SaleID = saleID.String
	entry.BankAccountID = bankAccountID.String
	entry.Counterparty = counterparty.String
	entry.CreatedBy = createdBy.String
	entry.CreatedAt = entry.CreatedAt.UTC()
	return &entry, nil
}

func insertReturnTx(ctx context.Context, tx *sql.Tx, ret domain.Return) (domain.Return, error) {
	if ret.ID == "" {
		ret.ID = xid.New("ret")
	}
	if ret.Status == "" {
		ret.Status = domain.ReturnStatusPending
	}
	_, err := tx.ExecContext(ctx, `
		INSERT INTO returns (id, product_id, product_type, product_name, qty, unit_price_cents, total_cents,
		                     reason, kind, client_id, status, created_by, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,now())
	`, ret.ID, ret.ProductID, ret.ProductType, ret.ProductName, ret.Qty, ret.UnitPriceCents, ret.TotalCents,
		nullIfEmpty(ret.Reason), ret.Kind, nullIfEmpty(ret.ClientID), ret.Status, nullIfEmpty(ret.CreatedBy))
	return ret, err
}

func (s *Store) CreateReturn(ctx context.Context, ret domain.Return) (*domain.Return, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	created, err := insertReturnTx(ctx, tx, ret)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	created.CreatedAt = time.Now().UTC()
	return &created, nil
}

func (s *Store) ListReturns(ctx context.Context, status string, limit int) ([]domain.Return, error) {
	if limit < 1 {
		limit = 100
	}
	query := `
		SELECT id, product_id, product_type, product_name, qty, unit_price_cents, total_cents, reason, kind,
		       client_id, status, created_by, created_at
		FROM returns`
	args := []any{}
	if status != "" {
		query += ` WHERE status = $1`
		args = append(args, status)
	}
	args = append(args, limit)
	query += fmt.Sprintf(` ORDER BY created_at DESC, id DESC LIMIT $%d`, len(args))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	returns := make([]domain.Return, 0, limit)
	for rows.Next() {
		var ret domain.Return
		var reason, clientID, createdBy sql.NullString
		if err := rows.Scan(&ret.ID, &ret.ProductID, &ret.ProductType, &ret.ProductName, &ret.Qty,
			&ret.UnitPriceCents, &ret.TotalCents, &reason, &ret.Kind, &clientID, &ret.Status, &createdBy,
			&ret.CreatedAt); err != nil {
			return nil, err
		}
		ret.Reason = reason.String
		ret.ClientID = clientID.String
		ret.CreatedBy = createdBy.String
		ret.CreatedAt = ret.CreatedAt.UTC()
		returns = append(returns, ret)
	}
	return returns, rows.Err()
}

func (s *Store) CreateReprise(ctx context.Context, ret domain.Return, reprise domain.Reprise, settlement *domain.LedgerEntry) (*domain.Reprise, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	createdReturn, err := insertReturnTx(ctx, tx, ret)
	if err != nil {
		return nil, err
	}

	if reprise.ID == "" {
		reprise.ID = xid.New("rep")
	}
	reprise.ReturnID = createdReturn.ID
	var newID, newType, newName any
	var newPrice, newQty any
	if reprise.NewProduct != nil {
		newID = reprise.NewProduct.ProductID
		newType = reprise.NewProduct.ProductType
		newName = reprise.NewProduct.Name
		newPrice = reprise.NewProduct.UnitPriceCents
		newQty = reprise.NewProduct.Qty
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO reprises (id, return_id, client_id, old_product_id, old_product_type, old_name,
		                      old_unit_price_cents, old_qty, new_product_id, new_product_type, new_name,
		                      new_unit_price_cents, new_qty, delta_cents, settlement_mode, bank_account_id,
		                      status, notes, created_by, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,now())
	`, reprise.ID, reprise.ReturnID, reprise.ClientID, reprise.OldProduct.ProductID, reprise.OldProduct.ProductType,
		reprise.OldProduct.Name, reprise.OldProduct.UnitPriceCents, reprise.OldProduct.Qty,
		newID, newType, newName, newPrice, newQty, reprise.DeltaCents,
		nullIfEmpty(reprise.SettlementMode), nullIfEmpty(reprise.BankAccountID), reprise.Status,
		nullIfEmpty(reprise.Notes), nullIfEmpty(reprise.CreatedBy))
	if err != nil {
		return nil, err
	}

	if settlement != nil {
		if err := appendLedgerTx(ctx, tx, *settlement); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	reprise.CreatedAt = time.Now().UTC()
	created := reprise
	return &created, nil
}

func (s *Store) ListReprises(ctx context.Context, limit int) ([]domain.Reprise, error) {
	if limit < 1 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, return_id, client_id, old_product_id, old_product_type, old_name, old_unit_price_cents,
		       old_qty, new_product_id, new_product_type, new_name, new_unit_price_cents, new_qty, delta_cents,
		       settlement_mode, bank_account_id, status, notes, created_by, created_at
		FROM reprises
		ORDER BY created_at DESC, id DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	reprises := make([]domain.Reprise, 0, limit)
	for rows.Next() {
		var reprise domain.Reprise
		var newID, newType, newName, settlementMode, bankAccountID, notes, createdBy sql.NullString
		var newPrice sql.NullInt64
		var newQty sql.NullInt64
		if err := rows.Scan(&reprise.ID, &reprise.ReturnID, &reprise.ClientID, &reprise.OldProduct.ProductID,
			&reprise.OldProduct.ProductType, &reprise.OldProduct.Name, &reprise.OldProduct.UnitPriceCents,
			&reprise.OldProduct.Qty, &newID, &newType, &newName, &newPrice, &newQty, &reprise.DeltaCents,
			&settlementMode, &bankAccountID, &reprise.Status, &notes, &createdBy, &reprise.CreatedAt); err != nil {
			return nil, err
		}
		if newID.Valid {
			reprise.NewProduct = &domain.RepriseProduct{
				ProductID:      newID.String,
				ProductType:    newType.String,
				Name:           newName.String,
				UnitPriceCents: newPrice.Int64,
				Qty:            int(newQty.Int64),
			}
		}
		reprise.SettlementMode = settlementMode.String
		reprise.BankAccountID = bankAccountID.String
		reprise.Notes = notes.String
		reprise.CreatedBy = createdBy.String
		reprise.CreatedAt = reprise.CreatedAt.UTC()
		reprises = append(reprises, reprise)
	}
	return reprises, rows.Err()
}

func (s *Store) CreateClient(ctx context.Context, client domain.Client) (*domain.Client, error) {
	if client.Name == "" {
		return nil, store.ErrInvalidSale
	}
	if client.ID == "" {
		client.ID = xid.New("cli")
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO clients (id, name, email, phone, address, created_by, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,now(),now())
	`, client.ID, client.Name, nullIfEmpty(client.Email), nullIfEmpty(client.Phone),
		nullIfEmpty(client.Address), nullIfEmpty(client.CreatedBy))
	if err != nil {
		return nil, err
	}
	return s.GetClient(ctx, client.ID)
}

func (s *Store) GetClient(ctx context.Context, id string) (*domain.Client, error) {
	var client domain.Client
	var email, phone, address, createdBy sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, email, phone, address, created_by, created_at, updated_at
		FROM clients WHERE id = $1
	`, id).Scan(&client.ID, &client.Name, &email, &phone, &address, &createdBy, &client.CreatedAt, &client.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	client.Email = email.String
	client.Phone = phone.String
	client.Address = address.String
	client.CreatedBy = createdBy.String
	client.CreatedAt = client.CreatedAt.UTC()
	client.UpdatedAt = client.UpdatedAt.UTC()
	return &client, nil
}

func (s *Store) ListClients(ctx context.Context) ([]domain.Client, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, email, phone, address, created_by, created_at, updated_at
		FROM clients ORDER BY name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	clients := make([]domain.Client, 0, 64)
	for rows.Next() {
		var client domain.Client
		var email, phone, address, createdBy sql.NullString
		if err := rows.Scan(&client.ID, &client.Name, &email, &phone, &address, &createdBy,
			&client.CreatedAt, &client.UpdatedAt); err != nil {
			return nil, err
		}
		client.Email = email.String
		client.Phone = phone.String
		client.Address = address.String
		client.CreatedBy = createdBy.String
		client.CreatedAt = client.CreatedAt.UTC()
		client.UpdatedAt = client.UpdatedAt.UTC()
		clients = append(clients, client)
	}
	return clients, rows.Err()
}

func (s *Store) UpdateClient(ctx context.Context, client domain.Client) (*domain.Client, error) {
	if client.Name == "" {
		return nil, store.ErrInvalidSale
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE clients SET name = $2, email = $3, phone = $4, address = $5, updated_at = now() WHERE id = $1
	`, client.ID, client.Name, nullIfEmpty(client.Email), nullIfEmpty(client.Phone), nullIfEmpty(client.Address))
	if err != nil {
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, store.ErrNotFound
	}
	return s.GetClient(ctx, client.ID)
}

func (s *Store) DeleteClient(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM clients WHERE id = $1`, id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) CreateSupplier(ctx context.Context, supplier domain.Supplier) (*domain.Supplier, error) {
	if supplier.Name == "" {
		return nil, store.ErrInvalidSale
	}
	if supplier.ID == "" {
		supplier.ID = xid.New("sup")
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO suppliers (id, name, contact, phone, created_at)
		VALUES ($1,$2,$3,$4,now())
	`, supplier.ID, supplier.Name, nullIfEmpty(supplier.Contact), nullIfEmpty(supplier.Phone))
	if err != nil {
		return nil, err
	}
	supplier.CreatedAt = time.Now().UTC()
	created := supplier
	return &created, nil
}

func (s *Store) ListSuppliers(ctx context.Context) ([]domain.Supplier, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, contact, phone, created_at FROM suppliers ORDER BY name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	suppliers := make([]domain.Supplier, 0, 32)
	for rows.Next() {
		var supplier domain.Supplier
		var contact, phone sql.NullString
		if err := rows.Scan(&supplier.ID, &supplier.Name, &contact, &phone, &supplier.CreatedAt); err != nil {
			return nil, err
		}
		supplier.Contact = contact.String
		supplier.Phone = phone.String
		supplier.CreatedAt = supplier.CreatedAt.UTC()
		suppliers = append(suppliers, supplier)
	}
	return suppliers, rows.Err()
}

func (s *Store) CreateBankAccount(ctx context.Context, account domain.BankAccount) (*domain.BankAccount, error) {
	if account.Label == "" {
		return nil, store.ErrInvalidSale
	}
	if account.ID == "" {
		account.ID = xid.New("ba")
	}
	account.Active = true
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO bank_accounts (id, label, bank_name, number, active, created_at)
		VALUES ($1,$2,$3,$4,$5,now())
	`, account.ID, account.Label, nullIfEmpty(account.BankName), nullIfEmpty(account.Number), account.Active)
	if err != nil {
		return nil, err
	}
	account.CreatedAt = time.Now().UTC()
	created := account
	return &created, nil
}

func (s *Store) GetBankAccount(ctx context.Context, id string) (*domain.BankAccount, error) {
	var account domain.BankAccount
	var bankName, number sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT id, label, bank_name, number, active, created_at FROM bank_accounts WHERE id = $1
	`, id).Scan(&account.ID, &account.Label, &bankName, &number, &account.Active, &account.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	account.BankName = bankName.String
	account.Number = number.String
	account.CreatedAt = account.CreatedAt.UTC()
	return &account, nil
}

func (s *Store) ListBankAccounts(ctx context.Context) ([]domain.BankAccount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, label, bank_name, number, active, created_at FROM bank_accounts ORDER BY label
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	accounts := make([]domain.BankAccount, 0, 8)
	for rows.Next() {
		var account domain.BankAccount
		var bankName, number sql.NullString
		if err := rows.Scan(&account.ID, &account.Label, &bankName, &number, &account.Active, &account.CreatedAt); err != nil {
			return nil, err
		}
		account.BankName = bankName.String
		account.Number = number.String
		account.CreatedAt = account.CreatedAt.UTC()
		accounts = append(accounts, account)
	}
	return accounts, rows.Err()
}

func (s *Store) CreateAssignment(ctx context.Context, assignment domain.Assignment) (*domain.Assignment, error) {
	if assignment.Title == "" || assignment.Assignee == "" {
		return nil, store.ErrInvalidSale
	}
	if assignment.ID == "" {
		assignment.ID = xid.New("tsk")
	}
	if assignment.Status == "" {
		assignment.Status = domain.AssignmentStatusOpen
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO assignments (id, title, detail, assignee, status, due_date, created_by, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,now(),now())
	`, assignment.ID, assignment.Title, nullIfEmpty(assignment.Detail), assignment.Assignee, assignment.Status,
		nullTime(assignment.DueDate), nullIfEmpty(assignment.CreatedBy))
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	assignment.CreatedAt = now
	assignment.UpdatedAt = now
	created := assignment
	return &created, nil
}

func (s *Store) ListAssignments(ctx context.Context, assignee string, status string) ([]domain.Assignment, error) {
	query := `
		SELECT id, title, detail, assignee, status, due_date, created_by, created_at, updated_at
		FROM assignments`
	conds := make([]string, 0, 2)
	args := make([]any, 0, 2)
	if assignee != "" {
		args = append(args, assignee)
		conds = append(conds, fmt.Sprintf("assignee = $%d", len(args)))
	}
	if status != "" {
		args = append(args, status)
		conds = append(conds, fmt.Sprintf("status = $%d", len(args)))
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY created_at DESC, id DESC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	assignments := make([]domain.Assignment, 0, 32)
	for rows.Next() {
		var assignment domain.Assignment
		var detail, createdBy sql.NullString
		var dueDate sql.NullTime
		if err := rows.Scan(&assignment.ID, &assignment.Title, &detail, &assignment.Assignee, &assignment.Status,
			&dueDate, &createdBy, &assignment.CreatedAt, &assignment.UpdatedAt); err != nil {
			return nil, err
		}
		assignment.Detail = detail.String
		assignment.CreatedBy = createdBy.String
		if dueDate.Valid {
			d := dueDate.Time.UTC()
			assignment.DueDate = &d
		}
		assignment.CreatedAt = assignment.CreatedAt.UTC()
		assignment.UpdatedAt = assignment.UpdatedAt.UTC()
		assignments = append(assignments, assignment)
	}
	return assignments, rows.Err()
}

func (s *Store) UpdateAssignmentStatus(ctx context.Context, id string, status string) (*domain.Assignment, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE assignments SET status = $2, updated_at = now() WHERE id = $1
	`, id, status)
	if err != nil {
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, store.ErrNotFound
	}

	var assignment domain.Assignment
	var detail, createdBy sql.NullString
	var dueDate sql.NullTime
	err = s.db.QueryRowContext(ctx, `
		SELECT id, title, detail, assignee, status, due_date, created_by, created_at, updated_at
		FROM assignments WHERE id = $1
	`, id).Scan(&assignment.ID, &assignment.Title, &detail, &assignment.Assignee, &assignment.Status,
		&dueDate, &createdBy, &assignment.CreatedAt, &assignment.UpdatedAt)
	if err != nil {
		return nil, err
	}
	assignment.Detail = detail.String
	assignment.CreatedBy = createdBy.String
	if dueDate.Valid {
		d := dueDate.Time.UTC()
		assignment.DueDate = &d
	}
	assignment.CreatedAt = assignment.CreatedAt.UTC()
	assignment.UpdatedAt = assignment.UpdatedAt.UTC()
	return &assignment, nil
}

func (s *Store) CreateAuditLog(ctx context.Context, entry domain.AuditLog) error {
	if entry.ID == "" {
		entry.ID = xid.New("audit")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_logs (id, actor_username, actor_role, action, entity_type, entity_id, detail, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, entry.ID, entry.ActorUsername, entry.ActorRole, entry.Action, entry.EntityType,
		nullIfEmpty(entry.EntityID), nullIfEmpty(entry.Detail), entry.CreatedAt)
	return err
}

func (s *Store) ListAuditLogs(ctx context.Context, limit int) ([]domain.AuditLog, error) {
	if limit < 1 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, actor_username, actor_role, action, entity_type, entity_id, detail, created_at
		FROM audit_logs
		ORDER BY created_at DESC, id DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	logs := make([]domain.AuditLog, 0, limit)
	for rows.Next() {
		var entry domain.AuditLog
		var entityID, detail sql.NullString
		if err := rows.Scan(&entry.ID, &entry.ActorUsername, &entry.ActorRole, &entry.Action, &entry.EntityType,
			&entityID, &detail, &entry.CreatedAt); err != nil {
			return nil, err
		}
		entry.EntityID = entityID.String
		entry.Detail = detail.String
		entry.CreatedAt = entry.CreatedAt.UTC()
		logs = append(logs, entry)
	}
	return logs, rows.Err()
}

func (s *Store) CreateUser(ctx context.Context, user domain.UserAccount) error {
	if user.Username == "" || user.Password == "" {
		return store.ErrInvalidSale
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (username, password, role, active, created_at)
		VALUES ($1,$2,$3,$4,$5)
	`, user.Username, user.Password, user.Role, user.Active, user.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrInvalidSale
		}
		return err
	}
	return nil
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.UserAccount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT username, password, role, active, created_at FROM users ORDER BY username
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]domain.UserAccount, 0, 16)
	for rows.Next() {
		var user domain.UserAccount
		if err := rows.Scan(&user.Username, &user.Password, &user.Role, &user.Active, &user.CreatedAt); err != nil {
			return nil, err
		}
		user.CreatedAt = user.CreatedAt.UTC()
		users = append(users, user)
	}
	return users, rows.Err()
}

func (s *Store) UpdateUserPassword(ctx context.Context, username string, password string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE users SET password = $2 WHERE username = $1
	`, username, password)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func oppositeDirection(direction string) string {
	if direction == domain.LedgerDirectionIn {
		return domain.LedgerDirectionOut
	}
	return domain.LedgerDirectionIn
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

func nullIfEmpty(val string) any {
	if val == "" {
		return nil
	}
	return val
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}
