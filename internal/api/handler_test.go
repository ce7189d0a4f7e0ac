package api

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	_ "modernc.org/sqlite"

	"mwpos/m/internal/migrations"
)

func newTestHandler(t *testing.T) (*Handler, *sqlx.DB) {
	t.Helper()
	db, err := sqlx.Connect("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })

	migrations.Run(db)

	_, err = db.Exec(`INSERT INTO products (name, price) VALUES
		('Round Gallon Refill (5gal)', '50.00'),
		('Faucet Pump', '120.00')`)
	require.NoError(t, err)

	return New(db, "test-secret"), db
}

func managerToken(t *testing.T, h *Handler) string {
	t.Helper()
	token, err := h.generateToken(1, "alice", "manager")
	require.NoError(t, err)
	return token
}

func doJSON(t *testing.T, h *Handler, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.Router().ServeHTTP(rec, req)
	return rec
}

func saleBody(items map[string]map[string]int64) map[string]any {
	rawItems := map[string]any{}
	for key, it := range items {
		rawItems[key] = map[string]any{"product_id": it["product_id"], "quantity": it["quantity"]}
	}
	return map[string]any{
		"order_type":     "walk-in",
		"payment_method": "cash",
		"items":          rawItems,
	}
}

func TestCreateSaleEndToEnd(t *testing.T) {
	h, _ := newTestHandler(t)
	token := managerToken(t, h)

	rec := doJSON(t, h, http.MethodPost, "/sales", token, saleBody(map[string]map[string]int64{
		"1": {"product_id": 1, "quantity": 2},
		"2": {"product_id": 2, "quantity": 0},
	}))

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var sale struct {
		ID          int64  `json:"id"`
		TotalAmount string `json:"total_amount"`
		Items       []struct {
			ProductID int64  `json:"product_id"`
			Subtotal  string `json:"subtotal"`
		} `json:"items"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &sale))

	// Product 2 had quantity 0 and was dropped in normalization.
	require.Len(t, sale.Items, 1)
	assert.Equal(t, int64(1), sale.Items[0].ProductID)
	assert.Equal(t, "100", sale.Items[0].Subtotal)
	assert.Equal(t, "100", sale.TotalAmount)
}

func TestCreateSaleAllZeroQuantitiesFailsWithoutPersisting(t *testing.T) {
	h, db := newTestHandler(t)
	token := managerToken(t, h)

	rec := doJSON(t, h, http.MethodPost, "/sales", token, saleBody(map[string]map[string]int64{
		"1": {"product_id": 1, "quantity": 0},
		"2": {"product_id": 2, "quantity": 0},
	}))

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "select at least one product")

	var count int
	require.NoError(t, db.Get(&count, `SELECT COUNT(*) FROM sales`))
	assert.Zero(t, count)
}

func TestCreateSaleRequiresAuth(t *testing.T) {
	h, _ := newTestHandler(t)

	rec := doJSON(t, h, http.MethodPost, "/sales", "", saleBody(map[string]map[string]int64{
		"1": {"product_id": 1, "quantity": 1},
	}))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRegisterAndLogin(t *testing.T) {
	h, _ := newTestHandler(t)

	rec := doJSON(t, h, http.MethodPost, "/auth/register", "", map[string]any{
		"username": "bob",
		"email":    "Bob@Example.com",
		"password": "hunter2!",
		"role":     "cashier",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = doJSON(t, h, http.MethodPost, "/auth/login", "", map[string]any{
		"email":    "bob@example.com",
		"password": "hunter2!",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.Token)

	rec = doJSON(t, h, http.MethodPost, "/auth/login", "", map[string]any{
		"email":    "bob@example.com",
		"password": "wrong",
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestDeleteSaleRequiresManager(t *testing.T) {
	h, _ := newTestHandler(t)
	manager := managerToken(t, h)

	rec := doJSON(t, h, http.MethodPost, "/sales", manager, saleBody(map[string]map[string]int64{
		"1": {"product_id": 1, "quantity": 1},
	}))
	require.Equal(t, http.StatusCreated, rec.Code)

	cashier, err := h.generateToken(2, "carol", "cashier")
	require.NoError(t, err)

	rec = doJSON(t, h, http.MethodDelete, "/sales/1", cashier, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = doJSON(t, h, http.MethodDelete, "/sales/1", manager, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestSaleReceiptCarriesCashierAndZeroTax(t *testing.T) {
	h, _ := newTestHandler(t)
	token := managerToken(t, h)

	rec := doJSON(t, h, http.MethodPost, "/sales", token, saleBody(map[string]map[string]int64{
		"1": {"product_id": 1, "quantity": 2},
	}))
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doJSON(t, h, http.MethodGet, "/sales/1/receipt", token, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var receipt struct {
		Cashier  string `json:"cashier"`
		TaxRate  string `json:"tax_rate"`
		Tax      string `json:"tax"`
		Subtotal string `json:"subtotal"`
		Total    string `json:"total"`
		Store    struct {
			Name string `json:"name"`
		} `json:"store"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &receipt))
	assert.Equal(t, "alice", receipt.Cashier)
	assert.Equal(t, "0%", receipt.TaxRate)
	assert.Equal(t, "0", receipt.Tax)
	assert.Equal(t, receipt.Subtotal, receipt.Total)
	assert.Equal(t, "MW Waters", receipt.Store.Name)
}

func TestSalesReportPaginatedView(t *testing.T) {
	h, _ := newTestHandler(t)
	token := managerToken(t, h)

	for i := 0; i < 3; i++ {
		rec := doJSON(t, h, http.MethodPost, "/sales", token, saleBody(map[string]map[string]int64{
			"1": {"product_id": 1, "quantity": 2},
		}))
		require.Equal(t, http.StatusCreated, rec.Code)
	}

	rec := doJSON(t, h, http.MethodGet, "/reports/sales?type=all", token, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp struct {
		Headings    []string         `json:"headings"`
		Rows        []map[string]any `json:"rows"`
		TotalAmount string           `json:"total_amount"`
		PerPage     int              `json:"per_page"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, []string{"Date", "Customer", "Product", "Quantity", "Amount", "Payment Method", "Status"}, resp.Headings)
	assert.Len(t, resp.Rows, 3)
	assert.Equal(t, "300", resp.TotalAmount)
	assert.Equal(t, 15, resp.PerPage)
}

func TestSalesReportCSVExport(t *testing.T) {
	h, _ := newTestHandler(t)
	token := managerToken(t, h)

	rec := doJSON(t, h, http.MethodPost, "/sales", token, saleBody(map[string]map[string]int64{
		"1": {"product_id": 1, "quantity": 2},
		"2": {"product_id": 2, "quantity": 1},
	}))
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doJSON(t, h, http.MethodGet, "/reports/sales?export=csv", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/csv", rec.Header().Get("Content-Type"))
	assert.Equal(t, `attachment; filename="sales-report.csv"`, rec.Header().Get("Content-Disposition"))

	records, err := csv.NewReader(strings.NewReader(rec.Body.String())).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, []string{"Date", "Customer", "Product", "Quantity", "Amount", "Payment Method", "Status"}, records[0])
}

func TestSalesReportExcelExportEmptyFilter(t *testing.T) {
	h, _ := newTestHandler(t)
	token := managerToken(t, h)

	rec := doJSON(t, h, http.MethodGet, "/reports/sales?export=excel&date_start=2031-01-01", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, `attachment; filename="sales-report.xlsx"`, rec.Header().Get("Content-Disposition"))

	wb, err := excelize.OpenReader(bytes.NewReader(rec.Body.Bytes()))
	require.NoError(t, err)
	defer wb.Close()

	rows, err := wb.GetRows("Sales Report")
	require.NoError(t, err)
	require.Len(t, rows, 1) // header only
	assert.Equal(t, []string{"Date", "Customer", "Product", "Quantity", "Amount", "Payment Method", "Status"}, rows[0])

	// And the aggregator agrees the filtered set is worth zero.
	rec = doJSON(t, h, http.MethodGet, "/reports/sales?date_start=2031-01-01", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		TotalAmount string `json:"total_amount"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "0", resp.TotalAmount)
}

func TestSalesReportPDFExport(t *testing.T) {
	h, _ := newTestHandler(t)
	token := managerToken(t, h)

	rec := doJSON(t, h, http.MethodPost, "/sales", token, saleBody(map[string]map[string]int64{
		"1": {"product_id": 1, "quantity": 1},
	}))
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doJSON(t, h, http.MethodGet, "/reports/sales?export=pdf", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/pdf", rec.Header().Get("Content-Type"))
	assert.True(t, bytes.HasPrefix(rec.Body.Bytes(), []byte("%PDF")))
}

func TestSalesReportRejectsBadDates(t *testing.T) {
	h, _ := newTestHandler(t)
	token := managerToken(t, h)

	rec := doJSON(t, h, http.MethodGet, "/reports/sales?date_start=14-08-2026", token, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, h, http.MethodGet, "/reports/sales?type=bogus", token, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSalesReportRequiresManager(t *testing.T) {
	h, _ := newTestHandler(t)

	cashier, err := h.generateToken(2, "carol", "cashier")
	require.NoError(t, err)

	rec := doJSON(t, h, http.MethodGet, "/reports/sales", cashier, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestUpdateSaleMayEmptyItems(t *testing.T) {
	h, _ := newTestHandler(t)
	token := managerToken(t, h)

	rec := doJSON(t, h, http.MethodPost, "/sales", token, saleBody(map[string]map[string]int64{
		"1": {"product_id": 1, "quantity": 2},
	}))
	require.Equal(t, http.StatusCreated, rec.Code)

	body := saleBody(map[string]map[string]int64{
		"1": {"product_id": 1, "quantity": 0},
	})
	body["status"] = "cancelled"

	rec = doJSON(t, h, http.MethodPut, "/sales/1", token, body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var sale struct {
		Status      string `json:"status"`
		TotalAmount string `json:"total_amount"`
		Items       []any  `json:"items"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &sale))
	assert.Equal(t, "cancelled", sale.Status)
	assert.Equal(t, "0", sale.TotalAmount)
	assert.Empty(t, sale.Items)

	// The emptied sale stays visible to reporting.
	rec = doJSON(t, h, http.MethodGet, "/reports/sales?export=csv", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	records, err := csv.NewReader(strings.NewReader(rec.Body.String())).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "No items", records[1][2])
	assert.Equal(t, "0", records[1][3])
	assert.Equal(t, "0.00", records[1][4])
}

func TestShowAndListSales(t *testing.T) {
	h, _ := newTestHandler(t)
	token := managerToken(t, h)

	for i := 0; i < 2; i++ {
		rec := doJSON(t, h, http.MethodPost, "/sales", token, saleBody(map[string]map[string]int64{
			"1": {"product_id": 1, "quantity": int64(i + 1)},
		}))
		require.Equal(t, http.StatusCreated, rec.Code)
	}

	rec := doJSON(t, h, http.MethodGet, "/sales", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Len(t, list, 2)

	rec = doJSON(t, h, http.MethodGet, "/sales/1", token, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, h, http.MethodGet, "/sales/99", token, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCustomerSaleFlow(t *testing.T) {
	h, _ := newTestHandler(t)
	token := managerToken(t, h)

	rec := doJSON(t, h, http.MethodPost, "/customers", token, map[string]any{
		"fullname": "Maria Santos",
		"phone":    "0917-000-0000",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	body := saleBody(map[string]map[string]int64{
		"1": {"product_id": 1, "quantity": 1},
	})
	body["sale_kind"] = "customer"
	body["customer_id"] = 1

	rec = doJSON(t, h, http.MethodPost, "/sales", token, body)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var sale struct {
		CustomerName string `json:"customer_name"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &sale))
	assert.Equal(t, "Maria Santos", sale.CustomerName)
}

func TestCreateSaleRejectsConflictingCustomerFields(t *testing.T) {
	h, _ := newTestHandler(t)
	token := managerToken(t, h)

	body := saleBody(map[string]map[string]int64{
		"1": {"product_id": 1, "quantity": 1},
	})
	body["sale_kind"] = "customer"
	body["customer_id"] = 1
	body["customer_name"] = "someone else"

	rec := doJSON(t, h, http.MethodPost, "/sales", token, body)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "walk-in")
}

func TestHealth(t *testing.T) {
	h, _ := newTestHandler(t)
	rec := doJSON(t, h, http.MethodGet, "/health", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), fmt.Sprintf("%q", "ok"))
}
