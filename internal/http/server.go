package http

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"moneta/internal/core"
	"moneta/internal/log"
	"moneta/internal/services"
)

// OwnerHeader carries the caller's identity. Requests without it are
// rejected; identity verification itself lives upstream of this service.
const OwnerHeader = "X-Owner-ID"

// AccountService is the registry surface the handlers need.
type AccountService interface {
	Create(ctx context.Context, ownerID string, in services.PaymentMethodInput) (core.PaymentMethod, error)
	Get(ctx context.Context, ownerID, id string) (core.PaymentMethod, error)
	List(ctx context.Context, ownerID string) ([]core.PaymentMethod, error)
	Update(ctx context.Context, ownerID, id, name, color string) (core.PaymentMethod, error)
	SetDefault(ctx context.Context, ownerID, id string) error
	Archive(ctx context.Context, ownerID, id string) (core.PaymentMethod, error)
	Delete(ctx context.Context, ownerID, id string) error
}

type LedgerService interface {
	Create(ctx context.Context, ownerID string, in services.TransactionInput) (core.Transaction, error)
	Get(ctx context.Context, ownerID, id string) (core.Transaction, error)
	List(ctx context.Context, ownerID string, f services.ListFilter) ([]core.Transaction, error)
	Update(ctx context.Context, ownerID, id string, patch services.TransactionPatch) (core.Transaction, error)
	Delete(ctx context.Context, ownerID, id string) error
	CreateCategory(ctx context.Context, ownerID, name string, kind core.TransactionType) (core.Category, error)
	ListCategories(ctx context.Context, ownerID string) ([]core.Category, error)
	EnsureTag(ctx context.Context, ownerID, name string) (core.Tag, error)
	ListTags(ctx context.Context, ownerID string) ([]core.Tag, error)
}

type TransferService interface {
	CreateTransfer(ctx context.Context, ownerID string, in services.TransferInput) (core.TransferPair, error)
	GetTransfer(ctx context.Context, ownerID, legID string) (core.TransferPair, error)
	ListTransfers(ctx context.Context, ownerID string) ([]core.TransferPair, error)
	DeleteTransfer(ctx context.Context, ownerID, legID string) error
}

type BalanceService interface {
	ForAccount(ctx context.Context, ownerID, paymentMethodID string) (services.AccountBalance, error)
	Total(ctx context.Context, ownerID string) (services.TotalBalance, error)
}

type BudgetService interface {
	Create(ctx context.Context, ownerID string, in services.BudgetInput) (core.Budget, error)
	Get(ctx context.Context, ownerID, id string) (core.Budget, error)
	List(ctx context.Context, ownerID, period string) ([]core.Budget, error)
	UpdateAmount(ctx context.Context, ownerID, id string, amount decimal.Decimal) (core.Budget, error)
	Delete(ctx context.Context, ownerID, id string) error
	Status(ctx context.Context, ownerID, id string) (services.BudgetStatus, error)
	StatusForPeriod(ctx context.Context, ownerID, period string) ([]services.BudgetStatus, error)
	Breakdown(ctx context.Context, ownerID, id string) ([]services.BreakdownEntry, error)
}

// OwnerProvisioner creates the owner row on first sight so every request
// operates against a known base currency.
type OwnerProvisioner interface {
	EnsureOwner(ctx context.Context, ownerID, baseCurrency string) error
}

type Server struct {
	http.Server

	accounts  AccountService
	ledger    LedgerService
	transfers TransferService
	balances  BalanceService
	budgets   BudgetService

	owners       OwnerProvisioner
	baseCurrency string

	rateLimiter  *rateLimiter
	shutdownOnce sync.Once
}

// NewServer wires routes and middleware, returning a ready-to-run server.
func NewServer(addr string, accounts AccountService, ledger LedgerService, transfers TransferService, balances BalanceService, budgets BudgetService, owners OwnerProvisioner, baseCurrency string) *Server {
	mux := http.NewServeMux()

	s := &Server{
		Server: http.Server{
			Addr:    addr,
			Handler: mux,
		},
		accounts:     accounts,
		ledger:       ledger,
		transfers:    transfers,
		balances:     balances,
		budgets:      budgets,
		owners:       owners,
		baseCurrency: baseCurrency,
		rateLimiter:  newRateLimiter(),
	}

	mux.HandleFunc("GET /healthz", handleHealth)
	mux.HandleFunc("GET /readyz", handleReady)

	mux.HandleFunc("POST /api/accounts", s.withRequest(s.handleCreateAccount))
	mux.HandleFunc("GET /api/accounts", s.withRequest(s.handleListAccounts))
	mux.HandleFunc("GET /api/accounts/{id}", s.withRequest(s.handleGetAccount))
	mux.HandleFunc("PUT /api/accounts/{id}", s.withRequest(s.handleUpdateAccount))
	mux.HandleFunc("DELETE /api/accounts/{id}", s.withRequest(s.handleDeleteAccount))
	mux.HandleFunc("POST /api/accounts/{id}/default", s.withRequest(s.handleSetDefaultAccount))
	mux.HandleFunc("POST /api/accounts/{id}/archive", s.withRequest(s.handleArchiveAccount))
	mux.HandleFunc("GET /api/accounts/{id}/balance", s.withRequest(s.handleAccountBalance))

	mux.HandleFunc("POST /api/transactions", s.withRequest(s.handleCreateTransaction))
	mux.HandleFunc("GET /api/transactions", s.withRequest(s.handleListTransactions))
	mux.HandleFunc("GET /api/transactions/{id}", s.withRequest(s.handleGetTransaction))
	mux.HandleFunc("PUT /api/transactions/{id}", s.withRequest(s.handleUpdateTransaction))
	mux.HandleFunc("DELETE /api/transactions/{id}", s.withRequest(s.handleDeleteTransaction))

	mux.HandleFunc("POST /api/transfers", s.withRequest(s.handleCreateTransfer))
	mux.HandleFunc("GET /api/transfers", s.withRequest(s.handleListTransfers))
	mux.HandleFunc("GET /api/transfers/{id}", s.withRequest(s.handleGetTransfer))
	mux.HandleFunc("DELETE /api/transfers/{id}", s.withRequest(s.handleDeleteTransfer))

	mux.HandleFunc("GET /api/balance", s.withRequest(s.handleTotalBalance))

	mux.HandleFunc("POST /api/budgets", s.withRequest(s.handleCreateBudget))
	mux.HandleFunc("GET /api/budgets", s.withRequest(s.handleListBudgets))
	mux.HandleFunc("GET /api/budgets/{id}", s.withRequest(s.handleGetBudget))
	mux.HandleFunc("PUT /api/budgets/{id}", s.withRequest(s.handleUpdateBudget))
	mux.HandleFunc("DELETE /api/budgets/{id}", s.withRequest(s.handleDeleteBudget))
	mux.HandleFunc("GET /api/budgets/{id}/status", s.withRequest(s.handleBudgetStatus))
	mux.HandleFunc("GET /api/budgets/{id}/breakdown", s.withRequest(s.handleBudgetBreakdown))

	mux.HandleFunc("POST /api/categories", s.withRequest(s.handleCreateCategory))
	mux.HandleFunc("GET /api/categories", s.withRequest(s.handleListCategories))
	mux.HandleFunc("POST /api/tags", s.withRequest(s.handleCreateTag))
	mux.HandleFunc("GET /api/tags", s.withRequest(s.handleListTags))

	return s
}

// withRequest adds request logging, a request id, rate limiting on writes and
// owner provisioning to a handler.
func (s *Server) withRequest(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		clientIP := r.Header.Get("X-Forwarded-For")
		if clientIP == "" {
			clientIP = r.Header.Get("X-Real-IP")
		}
		if clientIP == "" {
			clientIP = r.RemoteAddr
		}

		requestID := generateRequestID()
		ctx := context.WithValue(r.Context(), requestIDKey, requestID)
		logger := log.FromContext(ctx).With(log.FieldRequestID, requestID)
		ctx = context.WithValue(ctx, log.LoggerContextKey, logger)
		r = r.WithContext(ctx)

		logger.InfoContext(ctx, "Request started",
			log.FieldMethod, r.Method,
			log.FieldPath, r.URL.Path,
			log.FieldClientIP, clientIP)

		if r.Method != http.MethodGet && !s.rateLimiter.allow(clientIP) {
			logger.WarnContext(ctx, "Rate limit exceeded",
				log.FieldClientIP, clientIP,
				log.FieldMethod, r.Method,
				log.FieldPath, r.URL.Path)
			NewResponse().
				Status(http.StatusTooManyRequests).
				Header("Retry-After", "60").
				Error("rate limit exceeded").
				Write(w)
			return
		}

		if ownerID := ownerID(r); ownerID != "" && s.owners != nil {
			if err := s.owners.EnsureOwner(ctx, ownerID, s.baseCurrency); err != nil {
				writeError(w, r, fmt.Errorf("provision owner: %w", err))
				return
			}
		}

		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next(rw, r)

		logger.InfoContext(ctx, "Request completed",
			log.FieldMethod, r.Method,
			log.FieldPath, r.URL.Path,
			log.FieldStatusCode, rw.statusCode,
			log.FieldDuration, time.Since(start).Milliseconds())
	}
}

type contextKey string

const requestIDKey contextKey = "request_id"

// responseWriter wraps http.ResponseWriter to capture the status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// generateRequestID creates a unique request ID for tracing
func generateRequestID() string {
	bytes := make([]byte, 8)
	if _, err := rand.Read(bytes); err != nil {
		return fmt.Sprintf("req_%d", time.Now().UnixNano())
	}
	return "req_" + hex.EncodeToString(bytes)
}

func ownerID(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get(OwnerHeader))
}

// Shutdown stops background routines and the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		if s.rateLimiter != nil {
			s.rateLimiter.stop()
		}
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func handleReady(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}
