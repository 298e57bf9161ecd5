package http

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"famiglia/internal/cache"
	"famiglia/internal/core"
	"famiglia/internal/middleware/ratelimit"
	"famiglia/internal/middleware/security"
	"famiglia/internal/middleware/trace"
	"famiglia/internal/services"
)

// MembershipAPI covers group lifecycle and member administration.
type MembershipAPI interface {
	CreateGroup(ctx context.Context, userID int64, name, description string) (core.FamilyGroup, core.Member, error)
	GetGroup(ctx context.Context, userID, familyID int64) (core.FamilyGroup, error)
	RotateInvite(ctx context.Context, userID, familyID int64) (core.FamilyGroup, error)
	JoinByInvite(ctx context.Context, userID int64, code string) (core.Member, error)
	ApproveMember(ctx context.Context, userID, familyID, memberID int64) (core.Member, error)
	RejectMember(ctx context.Context, userID, familyID, memberID int64) error
	BlockMember(ctx context.Context, userID, familyID, memberID int64) (core.Member, error)
	ListMembers(ctx context.Context, userID, familyID int64) ([]core.Member, error)
}

// AccountAPI manages account sharing declarations.
type AccountAPI interface {
	SetSharedAccounts(ctx context.Context, userID, familyID, memberID int64, accountIDs []int64) error
	AddSharedAccounts(ctx context.Context, userID, familyID, memberID int64, accountIDs []int64) error
	RemoveSharedAccount(ctx context.Context, userID, familyID, memberID, accountID int64) error
	ListSharedAccounts(ctx context.Context, userID, familyID int64) ([]core.SharedAccount, error)
}

// BudgetAPI covers budgets and member spending limits.
type BudgetAPI interface {
	CreateBudget(ctx context.Context, userID int64, b core.Budget) (core.Budget, error)
	DeleteBudget(ctx context.Context, userID, familyID, budgetID int64) error
	GetBudgetStatus(ctx context.Context, userID, familyID, budgetID int64) (services.BudgetStatus, error)
	ListBudgetStatuses(ctx context.Context, userID, familyID int64) ([]services.BudgetStatus, error)
	CreateMemberLimit(ctx context.Context, userID int64, l core.MemberLimit) (core.MemberLimit, error)
	DeleteMemberLimit(ctx context.Context, userID, familyID, limitID int64) error
	GetLimitStatus(ctx context.Context, userID, familyID, limitID int64) (services.LimitStatus, error)
	UnlockLimit(ctx context.Context, userID, familyID, limitID int64) error
}

// GoalAPI covers savings goals and contributions.
type GoalAPI interface {
	CreateGoal(ctx context.Context, userID int64, g core.Goal) (core.Goal, error)
	GetGoal(ctx context.Context, userID, familyID, goalID int64) (core.Goal, error)
	ListGoals(ctx context.Context, userID, familyID int64) ([]core.Goal, error)
	ListContributions(ctx context.Context, userID, familyID, goalID int64) ([]core.GoalContribution, error)
	DeleteGoal(ctx context.Context, userID, familyID, goalID int64) error
	Contribute(ctx context.Context, userID, familyID, goalID int64, amount core.Money, sourceAccountID int64) (core.Goal, error)
}

// TransferAPI covers the transfer request and approval workflow.
type TransferAPI interface {
	RequestTransfer(ctx context.Context, userID, familyID int64, recipient core.Recipient, fromAccountID int64, amount core.Money, description string) (core.Transfer, error)
	ApproveTransfer(ctx context.Context, userID, familyID, transferID int64, approve bool) (core.Transfer, error)
	RetryExecution(ctx context.Context, userID, familyID, transferID int64) (core.Transfer, error)
	GetTransfer(ctx context.Context, userID, familyID, transferID int64) (core.Transfer, error)
	ListTransfers(ctx context.Context, userID, familyID int64, status core.TransferStatus) ([]core.Transfer, error)
}

// NotificationAPI covers member-facing notification delivery.
type NotificationAPI interface {
	List(ctx context.Context, userID, familyID int64, limit int) ([]core.Notification, error)
	MarkRead(ctx context.Context, userID, familyID, notificationID int64) error
}

// Services bundles the service dependencies the server exposes.
type Services struct {
	Membership    MembershipAPI
	Accounts      AccountAPI
	Budgets       BudgetAPI
	Goals         GoalAPI
	Transfers     TransferAPI
	Notifications NotificationAPI
}

type Server struct {
	http.Server

	svc Services

	limiter  *ratelimit.Limiter
	tracer   *trace.Middleware
	headers  *security.HeadersMiddleware
	detector *security.Detector

	// Budget statuses are recomputed from the transaction table on every
	// read; a short TTL takes the repeated-read pressure off SQLite.
	statusCache  *cache.LRUCache[[]services.BudgetStatus]
	cacheManager *cache.Manager

	shutdownOnce sync.Once
}

// NewServer configures routes and middleware, returning a ready-to-run server.
func NewServer(addr string, svc Services) *Server {
	mux := http.NewServeMux()

	detector := security.NewDetector()

	s := &Server{
		svc:          svc,
		limiter:      ratelimit.NewLimiter(ratelimit.DefaultConfig()),
		detector:     detector,
		headers:      security.NewHeadersMiddleware(security.DefaultHeadersConfig()),
		statusCache:  cache.NewLRUCache[[]services.BudgetStatus](500, 30*time.Second),
		cacheManager: cache.NewManager(),
	}
	s.tracer = trace.NewMiddleware(detector.ExtractClientIP)

	s.cacheManager.Register(s.statusCache)
	s.cacheManager.StartCleanup(10 * time.Minute)

	mux.HandleFunc("GET /healthz", handleHealth)
	mux.HandleFunc("GET /readyz", handleReady)

	mux.HandleFunc("POST /api/v1/groups", s.handleCreateGroup)
	mux.HandleFunc("POST /api/v1/groups/join", s.handleJoinGroup)
	mux.HandleFunc("GET /api/v1/groups/{familyID}", s.handleGetGroup)
	mux.HandleFunc("POST /api/v1/groups/{familyID}/invite", s.handleRotateInvite)
	mux.HandleFunc("GET /api/v1/groups/{familyID}/members", s.handleListMembers)
	mux.HandleFunc("POST /api/v1/groups/{familyID}/members/{memberID}/approve", s.handleApproveMember)
	mux.HandleFunc("POST /api/v1/groups/{familyID}/members/{memberID}/reject", s.handleRejectMember)
	mux.HandleFunc("POST /api/v1/groups/{familyID}/members/{memberID}/block", s.handleBlockMember)

	mux.HandleFunc("GET /api/v1/groups/{familyID}/accounts", s.handleListSharedAccounts)
	mux.HandleFunc("PUT /api/v1/groups/{familyID}/members/{memberID}/accounts", s.handleSetSharedAccounts)
	mux.HandleFunc("POST /api/v1/groups/{familyID}/members/{memberID}/accounts", s.handleAddSharedAccounts)
	mux.HandleFunc("DELETE /api/v1/groups/{familyID}/members/{memberID}/accounts/{accountID}", s.handleRemoveSharedAccount)

	mux.HandleFunc("POST /api/v1/groups/{familyID}/budgets", s.handleCreateBudget)
	mux.HandleFunc("GET /api/v1/groups/{familyID}/budgets", s.handleListBudgets)
	mux.HandleFunc("GET /api/v1/groups/{familyID}/budgets/{budgetID}", s.handleGetBudget)
	mux.HandleFunc("DELETE /api/v1/groups/{familyID}/budgets/{budgetID}", s.handleDeleteBudget)

	mux.HandleFunc("POST /api/v1/groups/{familyID}/limits", s.handleCreateLimit)
	mux.HandleFunc("GET /api/v1/groups/{familyID}/limits/{limitID}", s.handleGetLimit)
	mux.HandleFunc("DELETE /api/v1/groups/{familyID}/limits/{limitID}", s.handleDeleteLimit)
	mux.HandleFunc("POST /api/v1/groups/{familyID}/limits/{limitID}/unlock", s.handleUnlockLimit)

	mux.HandleFunc("POST /api/v1/groups/{familyID}/goals", s.handleCreateGoal)
	mux.HandleFunc("GET /api/v1/groups/{familyID}/goals", s.handleListGoals)
	mux.HandleFunc("GET /api/v1/groups/{familyID}/goals/{goalID}", s.handleGetGoal)
	mux.HandleFunc("DELETE /api/v1/groups/{familyID}/goals/{goalID}", s.handleDeleteGoal)
	mux.HandleFunc("POST /api/v1/groups/{familyID}/goals/{goalID}/contributions", s.handleContribute)
	mux.HandleFunc("GET /api/v1/groups/{familyID}/goals/{goalID}/contributions", s.handleListContributions)

	mux.HandleFunc("POST /api/v1/groups/{familyID}/transfers", s.handleRequestTransfer)
	mux.HandleFunc("GET /api/v1/groups/{familyID}/transfers", s.handleListTransfers)
	mux.HandleFunc("GET /api/v1/groups/{familyID}/transfers/{transferID}", s.handleGetTransfer)
	mux.HandleFunc("POST /api/v1/groups/{familyID}/transfers/{transferID}/approve", s.handleApproveTransfer)
	mux.HandleFunc("POST /api/v1/groups/{familyID}/transfers/{transferID}/retry", s.handleRetryTransfer)

	mux.HandleFunc("GET /api/v1/groups/{familyID}/notifications", s.handleListNotifications)
	mux.HandleFunc("POST /api/v1/groups/{familyID}/notifications/{notificationID}/read", s.handleMarkNotificationRead)

	handler := s.headers.Middleware(mux)
	handler = s.limiter.Middleware(s.detector.ExtractClientIP, nil)(handler)
	handler = s.withDetection(handler)
	handler = s.tracer.Middleware(handler)

	s.Server = http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	return s
}

// withDetection logs requests matching known probe patterns. Detection is
// observational only; rate limiting handles abusive volume.
func (s *Server) withDetection(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.detector.DetectSuspiciousRequest(r) {
			slog.WarnContext(r.Context(), "Suspicious request detected",
				"path", r.URL.Path,
				"client_ip", s.detector.ExtractClientIP(r),
				"user_agent", r.Header.Get("User-Agent"))
		}
		next.ServeHTTP(w, r)
	})
}

// Shutdown stops the cleanup routines and then the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error

	s.shutdownOnce.Do(func() {
		s.cacheManager.Stop()
		s.limiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})

	return shutdownErr
}

func (s *Server) invalidateStatuses(familyID int64) {
	s.statusCache.Delete(statusCacheKey(familyID))
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func handleReady(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}
