package api

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/golang-jwt/jwt/v5"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"

	"mwpos/m/domain"
	"mwpos/m/internal/export"
	"mwpos/m/internal/report"
	"mwpos/m/internal/sales"
	"mwpos/m/internal/store"
)

type ctxKey string

const (
	ctxUserID   ctxKey = "userID"
	ctxUsername ctxKey = "username"
	ctxRole     ctxKey = "role"
)

// Handler bundles dependencies for HTTP handlers.
type Handler struct {
	db     *sqlx.DB
	store  *store.Store
	secret string
}

// New constructs a Handler.
func New(db *sqlx.DB, secret string) *Handler {
	return &Handler{db: db, store: store.New(db), secret: secret}
}

// Router wires up the HTTP API.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
	}))
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/health", h.health)

	r.Route("/auth", func(r chi.Router) {
		r.Post("/register", h.register)
		r.Post("/login", h.login)
	})

	r.Group(func(pr chi.Router) {
		pr.Use(h.authMiddleware)

		pr.Get("/products", h.listProducts)

		pr.Route("/customers", func(r chi.Router) {
			r.Post("/", h.createCustomer)
			r.Get("/", h.listCustomers)
		})

		pr.Route("/sales", func(r chi.Router) {
			r.Post("/", h.createSale)
			r.Get("/", h.listSales)
			r.Get("/{id}", h.showSale)
			r.Put("/{id}", h.updateSale)
			r.Delete("/{id}", h.deleteSale)
			r.Get("/{id}/receipt", h.saleReceipt)
		})

		pr.Get("/reports/sales", h.salesReport)
	})

	return r
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Authentication helpers

type authClaims struct {
	UserID   int64  `json:"user_id"`
	Username string `json:"username"`
	Role     string `json:"role"`
	jwt.RegisteredClaims
}

func (h *Handler) generateToken(userID int64, username, role string) (string, error) {
	claims := authClaims{
		UserID:   userID,
		Username: username,
		Role:     role,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(24 * time.Hour)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(h.secret))
}

func (h *Handler) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if header == "" || !strings.HasPrefix(strings.ToLower(header), "bearer ") {
			respondError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}
		tokenString := strings.TrimSpace(header[len("Bearer "):])
		token, err := jwt.ParseWithClaims(tokenString, &authClaims{}, func(token *jwt.Token) (interface{}, error) {
			if token.Method != jwt.SigningMethodHS256 {
				return nil, errors.New("unexpected signing method")
			}
			return []byte(h.secret), nil
		})
		if err != nil || !token.Valid {
			respondError(w, http.StatusUnauthorized, "invalid token")
			return
		}
		claims, ok := token.Claims.(*authClaims)
		if !ok {
			respondError(w, http.StatusUnauthorized, "invalid token claims")
			return
		}
		ctx := context.WithValue(r.Context(), ctxUserID, claims.UserID)
		ctx = context.WithValue(ctx, ctxUsername, claims.Username)
		ctx = context.WithValue(ctx, ctxRole, claims.Role)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (h *Handler) requireRole(w http.ResponseWriter, r *http.Request, allowed ...string) bool {
	role := r.Context().Value(ctxRole)
	if role == nil {
		respondError(w, http.StatusUnauthorized, "missing role")
		return false
	}
	current := role.(string)
	for _, allowedRole := range allowed {
		if current == allowedRole {
			return true
		}
	}
	respondError(w, http.StatusForbidden, "insufficient permissions")
	return false
}

func usernameFromContext(r *http.Request) string {
	if val := r.Context().Value(ctxUsername); val != nil {
		if name, ok := val.(string); ok {
			return name
		}
	}
	return ""
}

// Auth handlers

type registerRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

type authResponse struct {
	Token string      `json:"token"`
	User  domain.User `json:"user"`
}

func (h *Handler) register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Username == "" || req.Email == "" || req.Password == "" || req.Role == "" {
		respondError(w, http.StatusBadRequest, "username, email, password and role are required")
		return
	}
	if req.Role != domain.RoleManager && req.Role != domain.RoleCashier {
		respondError(w, http.StatusBadRequest, "role must be manager or cashier")
		return
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to secure password")
		return
	}

	var userID int64
	err = h.db.QueryRowx(
		`INSERT INTO users (username, email, password, role) VALUES ($1, $2, $3, $4) RETURNING id`,
		req.Username, strings.ToLower(req.Email), hashed, req.Role,
	).Scan(&userID)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint") || strings.Contains(err.Error(), "unique constraint") {
			respondError(w, http.StatusConflict, "email already exists")
		} else {
			respondError(w, http.StatusInternalServerError, "db error: "+err.Error())
		}
		return
	}

	token, err := h.generateToken(userID, req.Username, req.Role)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to generate token")
		return
	}

	respondJSON(w, http.StatusCreated, authResponse{
		Token: token,
		User:  domain.User{ID: userID, Username: req.Username, Email: strings.ToLower(req.Email), Role: req.Role},
	})
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	var user domain.User
	err := h.db.Get(&user,
		`SELECT id, username, email, password, role, created_at FROM users WHERE email = $1`,
		strings.ToLower(req.Email))
	if err != nil {
		respondError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	if bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(req.Password)) != nil {
		respondError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	token, err := h.generateToken(user.ID, user.Username, user.Role)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to generate token")
		return
	}

	user.Password = ""
	respondJSON(w, http.StatusOK, authResponse{Token: token, User: user})
}

// Catalog and customers

func (h *Handler) listProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.store.Products()
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to list products")
		return
	}
	respondJSON(w, http.StatusOK, products)
}

type customerRequest struct {
	Fullname string `json:"fullname"`
	Phone    string `json:"phone"`
}

func (h *Handler) createCustomer(w http.ResponseWriter, r *http.Request) {
	var req customerRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.Fullname) == "" {
		respondError(w, http.StatusBadRequest, "fullname is required")
		return
	}
	c, err := h.store.CreateCustomer(strings.TrimSpace(req.Fullname), strings.TrimSpace(req.Phone))
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to create customer")
		return
	}
	respondJSON(w, http.StatusCreated, c)
}

func (h *Handler) listCustomers(w http.ResponseWriter, r *http.Request) {
	customers, err := h.store.Customers()
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to list customers")
		return
	}
	respondJSON(w, http.StatusOK, customers)
}

// Sales handlers

type saleRequest struct {
	SaleKind      string                   `json:"sale_kind"`
	CustomerID    *int64                   `json:"customer_id,omitempty"`
	CustomerName  string                   `json:"customer_name,omitempty"`
	OrderType     string                   `json:"order_type"`
	PaymentMethod string                   `json:"payment_method"`
	Status        string                   `json:"status,omitempty"`
	Notes         string                   `json:"notes,omitempty"`
	Items         map[string]sales.RawItem `json:"items"`
}

// validate checks everything except the item list, which the normalizer owns.
func (req *saleRequest) validate() error {
	if req.SaleKind == "" {
		if req.CustomerID != nil {
			req.SaleKind = domain.SaleKindCustomer
		} else {
			req.SaleKind = domain.SaleKindWalkIn
		}
	}
	switch req.SaleKind {
	case domain.SaleKindWalkIn:
		if req.CustomerID != nil {
			return errors.New("a walk-in sale cannot reference a registered customer")
		}
	case domain.SaleKindCustomer:
		if req.CustomerID == nil {
			return errors.New("customer_id is required for a customer sale")
		}
		if strings.TrimSpace(req.CustomerName) != "" {
			return errors.New("customer_name is only valid for walk-in sales")
		}
	default:
		return errors.New("sale_kind must be walk-in or customer")
	}
	if !domain.ValidOrderType(req.OrderType) {
		return errors.New("order_type must be walk-in, delivery or pickup")
	}
	if strings.TrimSpace(req.PaymentMethod) == "" {
		return errors.New("payment_method is required")
	}
	if req.Status == "" {
		req.Status = domain.StatusCompleted
	}
	if !domain.ValidStatus(req.Status) {
		return errors.New("status must be pending, completed or cancelled")
	}
	return nil
}

func (req *saleRequest) input(items []sales.LineItem) store.SaleInput {
	return store.SaleInput{
		SaleKind:      req.SaleKind,
		CustomerID:    req.CustomerID,
		CustomerName:  strings.TrimSpace(req.CustomerName),
		OrderType:     req.OrderType,
		PaymentMethod: req.PaymentMethod,
		Status:        req.Status,
		Notes:         req.Notes,
		Items:         items,
	}
}

func (h *Handler) createSale(w http.ResponseWriter, r *http.Request) {
	var req saleRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := req.validate(); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	items, err := sales.NormalizeForCreate(req.Items)
	if err != nil {
		// Validation failure: nothing reaches the store.
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	sale, err := h.store.CreateSale(req.input(items))
	if err != nil {
		h.respondSaleError(w, "error creating sale", err)
		return
	}
	respondJSON(w, http.StatusCreated, sale)
}

func (h *Handler) updateSale(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid sale id")
		return
	}

	var req saleRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := req.validate(); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	// No empty-list guard on update: reducing a sale to zero items is legal.
	items := sales.Normalize(req.Items)

	sale, err := h.store.UpdateSale(id, req.input(items))
	if err != nil {
		h.respondSaleError(w, "error updating sale", err)
		return
	}
	respondJSON(w, http.StatusOK, sale)
}

func (h *Handler) respondSaleError(w http.ResponseWriter, prefix string, err error) {
	switch {
	case errors.Is(err, store.ErrSaleNotFound):
		respondError(w, http.StatusNotFound, "sale not found")
	case errors.Is(err, store.ErrProductNotFound), errors.Is(err, store.ErrCustomerNotFound):
		respondError(w, http.StatusBadRequest, prefix+": "+err.Error())
	default:
		log.Printf("%s: %v", prefix, err)
		respondError(w, http.StatusInternalServerError, prefix+": "+err.Error())
	}
}

func (h *Handler) deleteSale(w http.ResponseWriter, r *http.Request) {
	if !h.requireRole(w, r, domain.RoleManager) {
		return
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid sale id")
		return
	}
	if err := h.store.DeleteSale(id); err != nil {
		h.respondSaleError(w, "error deleting sale", err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "sale deleted"})
}

func (h *Handler) listSales(w http.ResponseWriter, r *http.Request) {
	list, err := h.store.AllSales()
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to list sales")
		return
	}
	respondJSON(w, http.StatusOK, list)
}

func (h *Handler) showSale(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid sale id")
		return
	}
	sale, err := h.store.Sale(id)
	if err != nil {
		h.respondSaleError(w, "error loading sale", err)
		return
	}
	respondJSON(w, http.StatusOK, sale)
}

// Receipt

type receiptStore struct {
	Name    string `json:"name"`
	Address string `json:"address"`
	Phone   string `json:"phone"`
}

type receiptResponse struct {
	Store    receiptStore    `json:"store"`
	Sale     domain.Sale     `json:"sale"`
	Cashier  string          `json:"cashier"`
	Subtotal decimal.Decimal `json:"subtotal"`
	TaxRate  string          `json:"tax_rate"`
	Tax      decimal.Decimal `json:"tax"`
	Total    decimal.Decimal `json:"total"`
	Footer   string          `json:"footer"`
}

// buildReceipt assembles the printable receipt payload. The cashier name is
// an explicit argument: receipt content never reads ambient request state.
func buildReceipt(sale domain.Sale, cashier string) receiptResponse {
	// Tax rate is fixed at zero; the line is kept so receipts show it.
	return receiptResponse{
		Store: receiptStore{
			Name:    "MW Waters",
			Address: "123 Main Street, Your City",
			Phone:   "(123) 456-7890",
		},
		Sale:     sale,
		Cashier:  cashier,
		Subtotal: sale.TotalAmount,
		TaxRate:  "0%",
		Tax:      decimal.Zero,
		Total:    sale.TotalAmount,
		Footer:   "Thank you for your purchase!",
	}
}

func (h *Handler) saleReceipt(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid sale id")
		return
	}
	sale, err := h.store.Sale(id)
	if err != nil {
		h.respondSaleError(w, "error loading sale", err)
		return
	}
	respondJSON(w, http.StatusOK, buildReceipt(sale, usernameFromContext(r)))
}

// Reports

func (h *Handler) salesReport(w http.ResponseWriter, r *http.Request) {
	if !h.requireRole(w, r, domain.RoleManager) {
		return
	}

	q := r.URL.Query()
	f := report.Filter{
		Type:      strings.TrimSpace(q.Get("type")),
		DateStart: strings.TrimSpace(q.Get("date_start")),
		DateEnd:   strings.TrimSpace(q.Get("date_end")),
	}
	if f.Type == "" {
		f.Type = report.TypeAll
	}
	if raw := strings.TrimSpace(q.Get("product_id")); raw != "" {
		pid, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			respondError(w, http.StatusBadRequest, "product_id must be an integer")
			return
		}
		f.ProductID = pid
	}
	if err := f.Validate(); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	if q.Has("export") {
		h.exportReport(w, f, q.Get("export"))
		return
	}

	page := 1
	if raw := strings.TrimSpace(q.Get("page")); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			page = n
		}
	}

	pageSales, err := h.store.SalesReport(f, true, page)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to fetch sales report")
		return
	}
	total, err := h.store.SalesReportTotal(f)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to compute report total")
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"headings":     report.Headings(),
		"rows":         report.ProjectAll(pageSales),
		"total_amount": total,
		"page":         page,
		"per_page":     store.ReportPageSize,
		"filter":       f,
	})
}

// exportReport serves the full (non-paginated) filtered set through the
// channel picked by format: pdf and excel become document downloads, any
// other value streams CSV.
func (h *Handler) exportReport(w http.ResponseWriter, f report.Filter, format string) {
	all, err := h.store.SalesReport(f, false, 0)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to fetch sales report")
		return
	}

	switch format {
	case "pdf":
		h.downloadDocument(w, report.NewSalesExport(all), "sales-report.pdf")
	case "excel":
		h.downloadDocument(w, report.NewSalesExport(all), "sales-report.xlsx")
	default:
		w.Header().Set("Content-Type", "text/csv")
		w.Header().Set("Content-Disposition", `attachment; filename="sales-report.csv"`)
		if err := report.StreamCSV(w, all); err != nil {
			// The header is already on the wire; all we can do is log.
			log.Printf("csv export aborted: %v", err)
		}
	}
}

func (h *Handler) downloadDocument(w http.ResponseWriter, e export.Export, filename string) {
	err := export.Download(w, e, filename)
	if errors.Is(err, export.ErrRenderFailed) {
		log.Printf("error rendering %s: %v", filename, err)
		respondError(w, http.StatusInternalServerError, "error rendering export: "+err.Error())
		return
	}
	if err != nil {
		log.Printf("error sending %s: %v", filename, err)
	}
}

// Helpers

func decodeJSON(r *http.Request, dest interface{}) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(dest)
}

func respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	encoder := json.NewEncoder(w)
	encoder.SetEscapeHTML(false)
	_ = encoder.Encode(payload)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
