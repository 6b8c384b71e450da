package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/blogle/dojo-sub001/internal/cache"
	"github.com/blogle/dojo-sub001/internal/core"
	"github.com/blogle/dojo-sub001/internal/log"
	"github.com/blogle/dojo-sub001/internal/middleware/ratelimit"
	"github.com/blogle/dojo-sub001/internal/middleware/security"
	"github.com/blogle/dojo-sub001/internal/middleware/trace"
	"github.com/blogle/dojo-sub001/internal/services"
)

// Ledger is the part of the ledger service exposed over HTTP.
type Ledger interface {
	CreateTransaction(ctx context.Context, p core.TransactionPayload) (core.TransactionView, error)
	EditTransaction(ctx context.Context, conceptID uuid.UUID, p core.TransactionPayload) (core.TransactionView, error)
	DeleteTransaction(ctx context.Context, conceptID uuid.UUID) error
	TransactionAsOf(ctx context.Context, conceptID uuid.UUID, ts time.Time) (core.TransactionVersion, error)
	TransactionHistory(ctx context.Context, conceptID uuid.UUID) ([]core.TransactionVersion, error)

	CreateTransfer(ctx context.Context, p core.TransferPayload) (core.TransferView, error)
	DeleteTransfer(ctx context.Context, transferID uuid.UUID) error

	CreateAllocation(ctx context.Context, p core.AllocationPayload) (core.AllocationView, error)
	EditAllocation(ctx context.Context, conceptID uuid.UUID, p core.AllocationPayload) (core.AllocationView, error)
	DeleteAllocation(ctx context.Context, conceptID uuid.UUID) error
	AllocationAsOf(ctx context.Context, conceptID uuid.UUID, ts time.Time) (core.AllocationVersion, error)

	CreateAccount(ctx context.Context, p core.AccountPayload) (core.Account, error)
	UpdateAccount(ctx context.Context, accountID string, p core.AccountUpdatePayload) (core.Account, error)
	DeactivateAccount(ctx context.Context, accountID string) error
	CreateCategoryGroup(ctx context.Context, p core.CategoryGroupPayload) (core.CategoryGroup, error)
	UpdateCategoryGroup(ctx context.Context, groupID string, p core.CategoryGroupUpdatePayload) (core.CategoryGroup, error)
	DeactivateCategoryGroup(ctx context.Context, groupID string) error
	CreateCategory(ctx context.Context, p core.CategoryPayload) (core.Category, error)
	UpdateCategory(ctx context.Context, categoryID string, p core.CategoryUpdatePayload) (core.Category, error)
	DeactivateCategory(ctx context.Context, categoryID string) error

	Reconcile(ctx context.Context, accountID string, p core.ReconciliationPayload) (core.Reconciliation, error)
	LatestReconciliation(ctx context.Context, accountID string) (core.Reconciliation, error)
	ReconciliationWorksheet(ctx context.Context, accountID string) (core.Worksheet, error)

	Accounts(ctx context.Context) ([]core.Account, error)
	Categories(ctx context.Context) ([]core.Category, error)
	CategoryGroups(ctx context.Context) ([]core.CategoryGroup, error)
	RecentTransactions(ctx context.Context, limit int) ([]core.TransactionVersion, error)
	AllocationsForMonth(ctx context.Context, month core.Date, limit int) ([]core.AllocationVersion, error)

	AccountBalance(ctx context.Context, accountID string) (int64, error)
	AccountBalanceAsOf(ctx context.Context, accountID string, ts time.Time) (int64, error)
	ReadyToAssign(ctx context.Context, month core.Date) (int64, error)
	CategoryMonthlyState(ctx context.Context, categoryID string, month core.Date) (core.MonthlyState, error)
	BudgetMonth(ctx context.Context, month core.Date) (core.MonthSummary, error)

	ReadCacheStats() cache.Stats
}

var _ Ledger = (*services.Ledger)(nil)

// Pinger reports whether a dependency can serve requests.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Options configures the API server.
type Options struct {
	Logger    *log.Logger
	RateLimit ratelimit.Config
	// TrustedProxies are CIDRs, beyond private networks, whose forwarding
	// headers are believed.
	TrustedProxies []string
	// Ready backs /readyz. Nil reports ready.
	Ready Pinger
	Clock core.Clock
}

// Server serves the ledger JSON API.
type Server struct {
	http.Server

	ledger Ledger
	ready  Pinger
	clock  core.Clock
	logger *log.Logger

	limiter  *ratelimit.Limiter
	detector *security.Detector
	tracer   *trace.Middleware
	headers  *security.HeadersMiddleware

	startedAt    time.Time
	shutdownOnce sync.Once
}

// NewServer wires the routes and middleware chain. It fails only when a
// trusted proxy CIDR cannot be parsed.
func NewServer(addr string, ledger Ledger, opts Options) (*Server, error) {
	logger := opts.Logger
	if logger == nil {
		logger = log.FromContext(context.Background())
	}
	clock := opts.Clock
	if clock == nil {
		clock = core.SystemClock{}
	}

	detector := security.NewDetector()
	for _, cidr := range opts.TrustedProxies {
		if err := detector.AddTrustedProxy(cidr); err != nil {
			return nil, err
		}
	}

	s := &Server{
		ledger:    ledger,
		ready:     opts.Ready,
		clock:     clock,
		logger:    logger.WithComponent(log.ComponentHTTP),
		limiter:   ratelimit.NewLimiter(opts.RateLimit),
		detector:  detector,
		headers:   security.NewHeadersMiddleware(security.DefaultHeadersConfig()),
		startedAt: time.Now(),
	}
	s.tracer = trace.NewMiddleware(s.logger, detector.ExtractClientIP)

	mux := http.NewServeMux()
	s.routes(mux)

	var handler http.Handler = mux
	handler = s.limiter.Middleware(detector.ExtractClientIP, func(w http.ResponseWriter, r *http.Request) {
		TooManyRequestsError(r).Write(w)
	})(handler)
	handler = detector.Middleware(func(w http.ResponseWriter, r *http.Request) {
		s.logger.WarnContext(r.Context(), "Suspicious request blocked",
			"method", r.Method,
			"path", r.URL.Path,
			"client_ip", detector.ExtractClientIP(r))
		BadRequestError(r, "request rejected").Write(w)
	})(handler)
	handler = s.headers.Middleware(handler)
	handler = s.tracer.Middleware(handler)
	handler = otelhttp.NewHandler(handler, "ledger-api")

	s.Addr = addr
	s.Handler = handler
	s.ReadHeaderTimeout = 5 * time.Second
	s.ReadTimeout = 15 * time.Second
	s.WriteTimeout = 15 * time.Second
	s.IdleTimeout = 60 * time.Second
	return s, nil
}

func (s *Server) routes(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.HandleFunc("GET /metrics", s.handleMetrics)

	mux.HandleFunc("GET /v1/transactions", s.handleListTransactions)
	mux.HandleFunc("POST /v1/transactions", s.handleCreateTransaction)
	mux.HandleFunc("GET /v1/transactions/{id}", s.handleGetTransaction)
	mux.HandleFunc("GET /v1/transactions/{id}/history", s.handleTransactionHistory)
	mux.HandleFunc("PUT /v1/transactions/{id}", s.handleEditTransaction)
	mux.HandleFunc("DELETE /v1/transactions/{id}", s.handleDeleteTransaction)

	mux.HandleFunc("POST /v1/transfers", s.handleCreateTransfer)
	mux.HandleFunc("DELETE /v1/transfers/{id}", s.handleDeleteTransfer)

	mux.HandleFunc("GET /v1/allocations", s.handleListAllocations)
	mux.HandleFunc("POST /v1/allocations", s.handleCreateAllocation)
	mux.HandleFunc("GET /v1/allocations/{id}", s.handleGetAllocation)
	mux.HandleFunc("PUT /v1/allocations/{id}", s.handleEditAllocation)
	mux.HandleFunc("DELETE /v1/allocations/{id}", s.handleDeleteAllocation)

	mux.HandleFunc("GET /v1/accounts", s.handleListAccounts)
	mux.HandleFunc("POST /v1/accounts", s.handleCreateAccount)
	mux.HandleFunc("PUT /v1/accounts/{id}", s.handleUpdateAccount)
	mux.HandleFunc("DELETE /v1/accounts/{id}", s.handleDeactivateAccount)
	mux.HandleFunc("GET /v1/accounts/{id}/balance", s.handleAccountBalance)
	mux.HandleFunc("POST /v1/accounts/{id}/reconciliations", s.handleReconcile)
	mux.HandleFunc("GET /v1/accounts/{id}/reconciliations/latest", s.handleLatestReconciliation)
	mux.HandleFunc("GET /v1/accounts/{id}/reconciliations/worksheet", s.handleReconciliationWorksheet)

	mux.HandleFunc("GET /v1/category-groups", s.handleListCategoryGroups)
	mux.HandleFunc("POST /v1/category-groups", s.handleCreateCategoryGroup)
	mux.HandleFunc("PUT /v1/category-groups/{id}", s.handleUpdateCategoryGroup)
	mux.HandleFunc("DELETE /v1/category-groups/{id}", s.handleDeactivateCategoryGroup)
	mux.HandleFunc("GET /v1/categories", s.handleListCategories)
	mux.HandleFunc("POST /v1/categories", s.handleCreateCategory)
	mux.HandleFunc("PUT /v1/categories/{id}", s.handleUpdateCategory)
	mux.HandleFunc("DELETE /v1/categories/{id}", s.handleDeactivateCategory)
	mux.HandleFunc("GET /v1/categories/{id}/months/{month}", s.handleCategoryMonth)

	mux.HandleFunc("GET /v1/budget/{month}", s.handleBudgetMonth)
	mux.HandleFunc("GET /v1/ready-to-assign/{month}", s.handleReadyToAssign)
}

// Shutdown stops accepting requests, drains in-flight ones and stops the
// rate limiter. Only the first call has any effect.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.limiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}
