package handlers

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-pdfops-backend/internal/catalog"
	"github.com/tbourn/go-pdfops-backend/internal/domain"
	"github.com/tbourn/go-pdfops-backend/internal/http/middleware"
	"github.com/tbourn/go-pdfops-backend/internal/services"
	"github.com/tbourn/go-pdfops-backend/internal/utils"
)

// MeteringService is the credit API consumed by the handlers.
type MeteringService interface {
	Operations() []catalog.OperationDefinition
	SearchOperations(query string, limit int) []catalog.OperationDefinition
	Packs() []catalog.CreditPack
	EstimateCost(operationID string, quantity int) (int64, error)
	GetBalance(ctx context.Context, id services.Identity) (int64, error)
	IsBypass(id services.Identity) bool
	ListLedger(ctx context.Context, userID string, page, pageSize int) ([]domain.LedgerEntry, int64, error)
	LedgerStats(ctx context.Context, userID string) (int64, *time.Time, error)
	RecordOutcome(ctx context.Context, id services.Identity, actionKey string, success bool, quantity int, attrs map[string]string) (*domain.LedgerEntry, error)
	GrantPurchase(ctx context.Context, userID, packID, externalRef string) (*domain.LedgerEntry, bool, error)
	Refund(ctx context.Context, userID, originalEntryID string, attrs map[string]string) (*domain.LedgerEntry, error)
	Reconcile(ctx context.Context, userID string, repair bool) (*services.ReconcileReport, error)
}

// OperationGateway is the job API consumed by the handlers.
type OperationGateway interface {
	Submit(ctx context.Context, req services.SubmitRequest) (*services.SubmitResult, error)
	MarkRunning(ctx context.Context, jobID string) (*domain.OperationJob, error)
	ReportOutcome(ctx context.Context, jobID string, success bool, attrs map[string]string) (*domain.LedgerEntry, error)
	GetJob(ctx context.Context, userID, jobID string) (*domain.OperationJob, error)
	ListJobs(ctx context.Context, userID string, status domain.JobStatus, page, pageSize int) ([]domain.OperationJob, int64, error)
	JobStats(ctx context.Context, userID string) (int64, *time.Time, error)
}

// Handlers groups the operation, credit and job endpoints.
type Handlers struct {
	metering MeteringService
	gateway  OperationGateway
}

// New binds the handlers to their services.
func New(m MeteringService, g OperationGateway) *Handlers {
	return &Handlers{metering: m, gateway: g}
}

// identity is the caller as resolved by middleware.Identity.
func identity(c *gin.Context) services.Identity {
	return services.Identity{UserID: middleware.UserIDFrom(c), Email: middleware.EmailFrom(c)}
}

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// Pagination carries pagination metadata for list responses.
type Pagination struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
	HasNext    bool  `json:"has_next"`
}

func pagination(c *gin.Context) (page, pageSize int) {
	return utils.Page(c.Query("page"), c.Query("page_size"), defaultPageSize, maxPageSize)
}

func newPagination(page, pageSize int, total int64) Pagination {
	pages := utils.TotalPages(total, pageSize)
	return Pagination{Page: page, PageSize: pageSize, Total: total, TotalPages: pages, HasNext: page < pages}
}
