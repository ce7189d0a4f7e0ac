package store

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"mwpos/m/domain"
	"mwpos/m/internal/report"
	"mwpos/m/internal/sales"
)

// ReportPageSize bounds one page of the interactive sales report.
const ReportPageSize = 15

var (
	ErrSaleNotFound     = errors.New("sale not found")
	ErrProductNotFound  = errors.New("product not found")
	ErrCustomerNotFound = errors.New("customer not found")
)

// Store is the data-access layer for products, customers and sales.
type Store struct {
	db *sqlx.DB
}

// New constructs a Store.
func New(db *sqlx.DB) *Store {
	return &Store{db: db}
}

// SaleInput carries the validated attributes of a sale create or update.
// Items are already normalized.
type SaleInput struct {
	SaleKind      string
	CustomerID    *int64
	CustomerName  string
	OrderType     string
	PaymentMethod string
	Status        string
	Notes         string
	Items         []sales.LineItem
}

// saleColumns resolves the display customer name at query time: a linked
// customer's full name wins, then the stored walk-in name, then the default
// label.
const saleColumns = `s.id, s.receipt_no, s.sale_kind, s.customer_id,
	COALESCE(c.fullname, NULLIF(s.customer_name, ''), 'Walk-in Customer') AS customer_name,
	s.order_type, s.payment_method, s.status, s.notes, s.total_amount, s.created_at`

// CreateSale persists a new sale with its line items. Each line's unit price
// and product name are snapshotted from the catalog inside the transaction;
// total_amount is the sum of the line subtotals.
func (s *Store) CreateSale(in SaleInput) (domain.Sale, error) {
	tx, err := s.db.Beginx()
	if err != nil {
		return domain.Sale{}, err
	}
	defer tx.Rollback()

	if err := verifyCustomer(tx, in); err != nil {
		return domain.Sale{}, err
	}

	var saleID int64
	err = tx.QueryRowx(
		`INSERT INTO sales (receipt_no, sale_kind, customer_id, customer_name, order_type, payment_method, status, notes, total_amount)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, '0') RETURNING id`,
		uuid.NewString(), in.SaleKind, in.CustomerID, in.CustomerName,
		in.OrderType, in.PaymentMethod, in.Status, in.Notes,
	).Scan(&saleID)
	if err != nil {
		return domain.Sale{}, err
	}

	if err := writeItems(tx, saleID, in.Items); err != nil {
		return domain.Sale{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Sale{}, err
	}
	return s.Sale(saleID)
}

// UpdateSale replaces the sale's attributes and its entire item set. Prices
// are snapshotted again at update time. An empty item set is legal here: a
// sale is routinely emptied right before it is voided.
func (s *Store) UpdateSale(id int64, in SaleInput) (domain.Sale, error) {
	tx, err := s.db.Beginx()
	if err != nil {
		return domain.Sale{}, err
	}
	defer tx.Rollback()

	if err := verifyCustomer(tx, in); err != nil {
		return domain.Sale{}, err
	}

	res, err := tx.Exec(
		`UPDATE sales SET sale_kind = $1, customer_id = $2, customer_name = $3,
		 order_type = $4, payment_method = $5, status = $6, notes = $7 WHERE id = $8`,
		in.SaleKind, in.CustomerID, in.CustomerName,
		in.OrderType, in.PaymentMethod, in.Status, in.Notes, id,
	)
	if err != nil {
		return domain.Sale{}, err
	}
	if n, err := res.RowsAffected(); err != nil {
		return domain.Sale{}, err
	} else if n == 0 {
		return domain.Sale{}, ErrSaleNotFound
	}

	if _, err := tx.Exec(`DELETE FROM sale_items WHERE sale_id = $1`, id); err != nil {
		return domain.Sale{}, err
	}
	if err := writeItems(tx, id, in.Items); err != nil {
		return domain.Sale{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Sale{}, err
	}
	return s.Sale(id)
}

// writeItems snapshots each line against the catalog, inserts the lines and
// stores the recomputed total on the sale.
func writeItems(tx *sqlx.Tx, saleID int64, items []sales.LineItem) error {
	total := decimal.Zero
	for _, it := range items {
		var p domain.Product
		err := tx.Get(&p, `SELECT id, name, price, created_at FROM products WHERE id = $1`, it.ProductID)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%w: id %d", ErrProductNotFound, it.ProductID)
		}
		if err != nil {
			return err
		}

		subtotal := p.Price.Mul(decimal.NewFromInt(it.Quantity))
		total = total.Add(subtotal)

		_, err = tx.Exec(
			`INSERT INTO sale_items (sale_id, product_id, product_name, quantity, unit_price, subtotal)
			 VALUES ($1, $2, $3, $4, $5, $6)`,
			saleID, p.ID, p.Name, it.Quantity, p.Price.StringFixed(2), subtotal.StringFixed(2),
		)
		if err != nil {
			return err
		}
	}

	_, err := tx.Exec(`UPDATE sales SET total_amount = $1 WHERE id = $2`, total.StringFixed(2), saleID)
	return err
}

func verifyCustomer(tx *sqlx.Tx, in SaleInput) error {
	if in.SaleKind != domain.SaleKindCustomer {
		return nil
	}
	if in.CustomerID == nil {
		return ErrCustomerNotFound
	}
	var exists bool
	if err := tx.Get(&exists, `SELECT EXISTS(SELECT 1 FROM customers WHERE id = $1)`, *in.CustomerID); err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("%w: id %d", ErrCustomerNotFound, *in.CustomerID)
	}
	return nil
}

// DeleteSale removes the sale and its line items. Hard delete, no tombstone.
func (s *Store) DeleteSale(id int64) error {
	tx, err := s.db.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM sale_items WHERE sale_id = $1`, id); err != nil {
		return err
	}
	res, err := tx.Exec(`DELETE FROM sales WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err != nil {
		return err
	} else if n == 0 {
		return ErrSaleNotFound
	}
	return tx.Commit()
}

// Sale loads one sale with its line items.
func (s *Store) Sale(id int64) (domain.Sale, error) {
	var sale domain.Sale
	err := s.db.Get(&sale,
		`SELECT `+saleColumns+` FROM sales s LEFT JOIN customers c ON c.id = s.customer_id WHERE s.id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Sale{}, ErrSaleNotFound
	}
	if err != nil {
		return domain.Sale{}, err
	}

	out, err := s.attachItems([]domain.Sale{sale})
	if err != nil {
		return domain.Sale{}, err
	}
	return out[0], nil
}

// AllSales returns every sale, newest first, with items attached.
func (s *Store) AllSales() ([]domain.Sale, error) {
	var list []domain.Sale
	err := s.db.Select(&list,
		`SELECT `+saleColumns+` FROM sales s LEFT JOIN customers c ON c.id = s.customer_id
		 ORDER BY s.created_at DESC, s.id DESC`)
	if err != nil {
		return nil, err
	}
	return s.attachItems(list)
}

// reportClauses builds the WHERE fragment for a report filter. The row query
// and the total query share it, so the two can never disagree on membership.
func reportClauses(f report.Filter) (string, []any) {
	var (
		clauses []string
		args    []any
	)
	if f.Type != "" && f.Type != report.TypeAll {
		args = append(args, f.Type)
		clauses = append(clauses, fmt.Sprintf("s.order_type = $%d", len(args)))
	}
	if f.DateStart != "" {
		args = append(args, f.DateStart)
		clauses = append(clauses, fmt.Sprintf("DATE(s.created_at) >= $%d", len(args)))
	}
	if f.DateEnd != "" {
		args = append(args, f.DateEnd)
		clauses = append(clauses, fmt.Sprintf("DATE(s.created_at) <= $%d", len(args)))
	}
	if f.ProductID > 0 {
		args = append(args, f.ProductID)
		clauses = append(clauses, fmt.Sprintf(
			"EXISTS (SELECT 1 FROM sale_items si WHERE si.sale_id = s.id AND si.product_id = $%d)", len(args)))
	}
	if len(clauses) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

// SalesReport fetches the sales matching the filter, newest first. With
// paginate=true it returns one bounded page (1-based); with paginate=false it
// returns the complete filtered set, as required by the export channels.
// Both modes apply the identical filter clauses.
func (s *Store) SalesReport(f report.Filter, paginate bool, page int) ([]domain.Sale, error) {
	where, args := reportClauses(f)
	query := `SELECT ` + saleColumns + ` FROM sales s LEFT JOIN customers c ON c.id = s.customer_id` +
		where + ` ORDER BY s.created_at DESC, s.id DESC`

	if paginate {
		if page < 1 {
			page = 1
		}
		args = append(args, ReportPageSize)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
		args = append(args, (page-1)*ReportPageSize)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	var list []domain.Sale
	if err := s.db.Select(&list, query, args...); err != nil {
		return nil, err
	}
	return s.attachItems(list)
}

// SalesReportTotal computes the grand total over the entire filtered set,
// ignoring pagination. It reconciles with the sum of the projected row
// amounts for the same filter: both are sums of line subtotals.
func (s *Store) SalesReportTotal(f report.Filter) (decimal.Decimal, error) {
	where, args := reportClauses(f)
	query := `SELECT COALESCE(SUM(si.subtotal), 0)
		FROM sales s JOIN sale_items si ON si.sale_id = s.id` + where

	var total float64
	if err := s.db.Get(&total, query, args...); err != nil {
		return decimal.Zero, err
	}
	return decimal.NewFromFloat(total).Round(2), nil
}

// attachItems batch-loads line items for the given sales in one query.
func (s *Store) attachItems(list []domain.Sale) ([]domain.Sale, error) {
	if len(list) == 0 {
		return []domain.Sale{}, nil
	}

	ids := make([]int64, len(list))
	for i, sale := range list {
		ids[i] = sale.ID
	}

	query, args, err := sqlx.In(
		`SELECT id, sale_id, product_id, product_name, quantity, unit_price, subtotal
		 FROM sale_items WHERE sale_id IN (?) ORDER BY sale_id, id`, ids)
	if err != nil {
		return nil, err
	}
	query = s.db.Rebind(query)

	var items []domain.SaleItem
	if err := s.db.Select(&items, query, args...); err != nil {
		return nil, err
	}

	bySale := make(map[int64][]domain.SaleItem, len(list))
	for _, it := range items {
		bySale[it.SaleID] = append(bySale[it.SaleID], it)
	}
	for i := range list {
		if bySale[list[i].ID] == nil {
			list[i].Items = []domain.SaleItem{}
		} else {
			list[i].Items = bySale[list[i].ID]
		}
	}
	return list, nil
}

// Products returns the catalog ordered by name.
func (s *Store) Products() ([]domain.Product, error) {
	var products []domain.Product
	err := s.db.Select(&products, `SELECT id, name, price, created_at FROM products ORDER BY name`)
	return products, err
}

// CreateCustomer registers a customer record.
func (s *Store) CreateCustomer(fullname, phone string) (domain.Customer, error) {
	var c domain.Customer
	err := s.db.Get(&c,
		`INSERT INTO customers (fullname, phone) VALUES ($1, $2) RETURNING id, fullname, phone, created_at`,
		fullname, phone)
	return c, err
}

// Customers returns all registered customers ordered by name.
func (s *Store) Customers() ([]domain.Customer, error) {
	var customers []domain.Customer
	err := s.db.Select(&customers, `SELECT id, fullname, phone, created_at FROM customers ORDER BY fullname`)
	return customers, err
}
