// Job HTTP handlers.
//
//   - GET  /jobs                 (caller's jobs, optional ?status=)
//   - GET  /jobs/{id}            (single job)
//   - POST /jobs/{id}/start      (executor: queued -> running)
//   - POST /jobs/{id}/outcome    (executor: settle, refunding on failure)
package handlers

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-pdfops-backend/internal/domain"
	"github.com/tbourn/go-pdfops-backend/internal/services"
)

// JobsResponse wraps a page of jobs.
type JobsResponse struct {
	Jobs       []domain.OperationJob `json:"jobs"`
	Pagination Pagination            `json:"pagination"`
}

// JobOutcomeRequest is reported by the executor once a job finishes.
type JobOutcomeRequest struct {
	Success  *bool             `json:"success" binding:"required"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// JobOutcomeResponse is the settled job and the entry that settled it.
type JobOutcomeResponse struct {
	JobID  string              `json:"job_id"`
	Status domain.JobStatus    `json:"status" example:"succeeded"`
	Entry  *domain.LedgerEntry `json:"ledger_entry"`
}

// ListJobs godoc
// @ID          listJobs
// @Summary     List jobs (paginated)
// @Tags        Jobs
// @Produce     json
// @Param       X-User-ID      header  string  true   "User ID"  example(user123)
// @Param       If-None-Match  header  string  false  "Return 304 if ETag matches"
// @Param       status         query   string  false  "Filter by status"  Enums(queued, running, succeeded, failed)
// @Param       page           query   int     false  "Page number"     minimum(1) default(1)
// @Param       page_size      query   int     false  "Items per page"  minimum(1) maximum(100) default(20)
// @Success     200  {object}  handlers.JobsResponse
// @Header      200  {string}  ETag  "Weak ETag for current result"
// @Success     304  {string}  string  "Not Modified"
// @Failure     400  {object}  handlers.ErrorResponse  "Invalid status"
// @Router      /jobs [get]
func (h *Handlers) ListJobs(c *gin.Context) {
	ctx := c.Request.Context()
	uid := identity(c).UserID
	page, pageSize := pagination(c)
	status := domain.JobStatus(strings.ToLower(strings.TrimSpace(c.Query("status"))))

	if status != "" && !status.Valid() {
		failService(c, services.ErrInvalidStatus)
		return
	}

	// Jobs change state in place, so the validator tracks updated_at.
	if count, newest, err := h.gateway.JobStats(ctx, uid); err == nil {
		var ts int64
		if newest != nil {
			ts = newest.UnixNano()
		}
		etag := fmt.Sprintf(`W/"jobs:%s:%s:%d:%d:%d:%d"`, uid, status, count, ts, page, pageSize)
		c.Header("ETag", etag)
		if inm := c.GetHeader("If-None-Match"); inm != "" && inm == etag {
			c.Status(http.StatusNotModified)
			return
		}
	}

	items, total, err := h.gateway.ListJobs(ctx, uid, status, page, pageSize)
	if err != nil {
		failService(c, err)
		return
	}
	ok(c, http.StatusOK, JobsResponse{Jobs: items, Pagination: newPagination(page, pageSize, total)})
}

// GetJob godoc
// @ID          getJob
// @Summary     Get a job
// @Tags        Jobs
// @Produce     json
// @Param       X-User-ID  header  string  true  "User ID"  example(user123)
// @Param       id         path    string  true  "Job ID"
// @Success     200  {object}  domain.OperationJob
// @Failure     404  {object}  handlers.ErrorResponse  "Job not found"
// @Router      /jobs/{id} [get]
func (h *Handlers) GetJob(c *gin.Context) {
	j, err := h.gateway.GetJob(c.Request.Context(), identity(c).UserID, c.Param("id"))
	if err != nil {
		failService(c, err)
		return
	}
	ok(c, http.StatusOK, j)
}

// StartJob godoc
// @ID          startJob
// @Summary     Mark a job running
// @Tags        Jobs
// @Produce     json
// @Param       X-Executor-Token  header  string  true  "Executor token"
// @Param       id                path    string  true  "Job ID"
// @Success     200  {object}  domain.OperationJob
// @Failure     404  {object}  handlers.ErrorResponse  "Job not found"
// @Failure     409  {object}  handlers.ErrorResponse  "Job already finished"
// @Router      /jobs/{id}/start [post]
func (h *Handlers) StartJob(c *gin.Context) {
	j, err := h.gateway.MarkRunning(c.Request.Context(), c.Param("id"))
	if err != nil {
		failService(c, err)
		return
	}
	ok(c, http.StatusOK, j)
}

// ReportJobOutcome godoc
// @ID          reportJobOutcome
// @Summary     Report a job outcome
// @Description Success keeps the debit. Failure refunds it exactly once. Repeating the same outcome is a no-op.
// @Tags        Jobs
// @Accept      json
// @Produce     json
// @Param       X-Executor-Token  header  string  true  "Executor token"
// @Param       id                path    string  true  "Job ID"
// @Param       body              body    handlers.JobOutcomeRequest  true  "Outcome"
// @Success     200  {object}  handlers.JobOutcomeResponse
// @Failure     404  {object}  handlers.ErrorResponse  "Job not found"
// @Failure     409  {object}  handlers.ErrorResponse  "Job finalized with a different outcome"
// @Router      /jobs/{id}/outcome [post]
func (h *Handlers) ReportJobOutcome(c *gin.Context) {
	var req JobOutcomeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "success is required")
		return
	}
	e, err := h.gateway.ReportOutcome(c.Request.Context(), c.Param("id"), *req.Success, req.Metadata)
	if err != nil {
		failService(c, err)
		return
	}
	status := domain.JobSucceeded
	if !*req.Success {
		status = domain.JobFailed
	}
	ok(c, http.StatusOK, JobOutcomeResponse{JobID: c.Param("id"), Status: status, Entry: e})
}
