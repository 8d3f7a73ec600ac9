// Operation HTTP handlers.
//
//   - GET  /operations                     (catalog)
//   - GET  /operations/{id}/estimate       (cost preview, no side effects)
//   - POST /documents/{id}/operations      (submit a paid operation, 202)
package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-pdfops-backend/internal/catalog"
	"github.com/tbourn/go-pdfops-backend/internal/domain"
	"github.com/tbourn/go-pdfops-backend/internal/http/middleware"
	"github.com/tbourn/go-pdfops-backend/internal/services"
	"github.com/tbourn/go-pdfops-backend/internal/utils"
)

// OperationsResponse lists the catalog.
type OperationsResponse struct {
	Operations []catalog.OperationDefinition `json:"operations"`
}

// EstimateResponse is the cost of an operation at a quantity.
type EstimateResponse struct {
	OperationID string `json:"operation_id" example:"split_pages"`
	Quantity    int    `json:"quantity" example:"3"`
	Credits     int64  `json:"credits" example:"3"`
}

// SubmitOperationRequest is the payload of an operation submission.
type SubmitOperationRequest struct {
	OperationID          string            `json:"operation_id" binding:"required" example:"merge_documents"`
	StoragePath          string            `json:"storage_path" example:"uploads/users/user123/report.pdf"`
	SecondaryStoragePath string            `json:"secondary_storage_path,omitempty" example:"uploads/users/user123/appendix.pdf"`
	Quantity             int               `json:"quantity,omitempty" example:"1"`
	Metadata             map[string]string `json:"metadata,omitempty"`
}

// SubmitOperationResponse is the accepted job.
type SubmitOperationResponse struct {
	JobID    string              `json:"job_id"`
	Status   domain.JobStatus    `json:"status" example:"queued"`
	Entry    *domain.LedgerEntry `json:"ledger_entry"`
	Replayed bool                `json:"replayed"`
}

// ListOperations godoc
// @ID          listOperations
// @Summary     List PDF operations
// @Description Returns the operation catalog with per-unit credit costs.
// @Description With q, returns the best matches for a tool search ("combine", "rotate pages").
// @Tags        Operations
// @Produce     json
// @Param       q      query  string  false  "Search text"
// @Param       limit  query  int     false  "Max results with q"  minimum(1) maximum(20) default(5)
// @Success     200  {object}  handlers.OperationsResponse
// @Router      /operations [get]
func (h *Handlers) ListOperations(c *gin.Context) {
	q := strings.TrimSpace(c.Query("q"))
	if q == "" {
		ok(c, http.StatusOK, OperationsResponse{Operations: h.metering.Operations()})
		return
	}
	limit := utils.AtoiDefault(c.Query("limit"), 5)
	if limit < 1 || limit > 20 {
		limit = 5
	}
	ops := h.metering.SearchOperations(q, limit)
	if ops == nil {
		ops = []catalog.OperationDefinition{}
	}
	ok(c, http.StatusOK, OperationsResponse{Operations: ops})
}

// EstimateCost godoc
// @ID          estimateCost
// @Summary     Estimate operation cost
// @Tags        Operations
// @Produce     json
// @Param       id        path   string  true   "Operation ID"  example(split_pages)
// @Param       quantity  query  int     false  "Quantity"      minimum(1) default(1)
// @Success     200  {object}  handlers.EstimateResponse
// @Failure     400  {object}  handlers.ErrorResponse  "Unknown operation or bad quantity"
// @Router      /operations/{id}/estimate [get]
func (h *Handlers) EstimateCost(c *gin.Context) {
	qty := catalog.ClampQuantity(utils.AtoiDefault(c.Query("quantity"), 1))
	cost, err := h.metering.EstimateCost(c.Param("id"), qty)
	if err != nil {
		failService(c, err)
		return
	}
	ok(c, http.StatusOK, EstimateResponse{OperationID: catalog.NormalizeID(c.Param("id")), Quantity: qty, Credits: cost})
}

// SubmitOperation godoc
// @ID          submitOperation
// @Summary     Submit a PDF operation
// @Description Validates inputs and ownership, charges credits and queues the job.
// @Description Retrying with the same Idempotency-Key returns the original job (200) without a second charge.
// @Tags        Operations
// @Accept      json
// @Produce     json
// @Param       X-User-ID        header  string  true   "User ID"          example(user123)
// @Param       X-User-Email     header  string  false  "User email"
// @Param       Idempotency-Key  header  string  false  "Idempotency key"  example(3f1c-retry-1)
// @Param       id               path    string  true   "Document ID"
// @Param       body             body    handlers.SubmitOperationRequest  true  "Submission"
// @Success     202  {object}  handlers.SubmitOperationResponse
// @Success     200  {object}  handlers.SubmitOperationResponse  "Idempotent replay"
// @Failure     400  {object}  handlers.ErrorResponse  "Unknown operation or missing input"
// @Failure     402  {object}  handlers.ErrorResponse  "Insufficient credits"
// @Failure     403  {object}  handlers.ErrorResponse  "Storage path not owned by user"
// @Failure     409  {object}  handlers.ErrorResponse  "Concurrent update"
// @Failure     500  {object}  handlers.ErrorResponse  "Operation failed"
// @Router      /documents/{id}/operations [post]
func (h *Handlers) SubmitOperation(c *gin.Context) {
	var req SubmitOperationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	key, _ := middleware.GetIdempotencyKey(c)

	res, err := h.gateway.Submit(c.Request.Context(), services.SubmitRequest{
		Identity:             identity(c),
		DocumentID:           strings.TrimSpace(c.Param("id")),
		OperationID:          req.OperationID,
		StoragePath:          strings.TrimSpace(req.StoragePath),
		SecondaryStoragePath: strings.TrimSpace(req.SecondaryStoragePath),
		Quantity:             req.Quantity,
		Attributes:           req.Metadata,
		IdempotencyKey:       key,
	})
	if err != nil {
		failService(c, err)
		return
	}

	status := http.StatusAccepted
	if res.Replayed {
		status = http.StatusOK
	}
	ok(c, status, SubmitOperationResponse{
		JobID:    res.Job.ID,
		Status:   res.Job.Status,
		Entry:    res.Entry,
		Replayed: res.Replayed,
	})
}
