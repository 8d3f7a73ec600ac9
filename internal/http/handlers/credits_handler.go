// Credit HTTP handlers.
//
//   - GET  /credits/balance     (current balance, unlimited for bypass accounts)
//   - GET  /credits/ledger      (paginated, weak ETag)
//   - GET  /credits/packs       (purchasable packs)
//   - POST /credits/outcomes    (charge and settle in one step)
//   - POST /credits/purchases   (executor: grant a paid pack)
//   - POST /credits/refunds     (executor: compensate a debit)
//   - POST /credits/reconcile   (executor: compare ledger and balance)
package handlers

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-pdfops-backend/internal/catalog"
	"github.com/tbourn/go-pdfops-backend/internal/domain"
)

// BalanceResponse is the caller's credit balance.
type BalanceResponse struct {
	UserID    string `json:"user_id" example:"user123"`
	Balance   int64  `json:"balance" example:"42"`
	Unlimited bool   `json:"unlimited"`
}

// LedgerResponse wraps a page of ledger entries.
type LedgerResponse struct {
	Entries    []domain.LedgerEntry `json:"entries"`
	Pagination Pagination           `json:"pagination"`
}

// PacksResponse lists credit packs.
type PacksResponse struct {
	Packs []catalog.CreditPack `json:"packs"`
}

// RecordOutcomeRequest settles an operation that ran outside the job flow.
type RecordOutcomeRequest struct {
	ActionKey string            `json:"action_key" binding:"required" example:"watermark"`
	Success   *bool             `json:"success" binding:"required"`
	Quantity  int               `json:"quantity,omitempty" example:"1"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// GrantPurchaseRequest grants a paid credit pack.
type GrantPurchaseRequest struct {
	UserID      string `json:"user_id" binding:"required" example:"user123"`
	PackID      string `json:"pack_id" binding:"required" example:"pack_medium"`
	ExternalRef string `json:"external_ref" binding:"required" example:"pi_3Nq2"`
}

// RefundRequest compensates a debit entry.
type RefundRequest struct {
	UserID   string            `json:"user_id" binding:"required" example:"user123"`
	EntryID  string            `json:"entry_id" binding:"required"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// ReconcileRequest selects the account to reconcile.
type ReconcileRequest struct {
	UserID string `json:"user_id" binding:"required" example:"user123"`
	Repair bool   `json:"repair"`
}

// GetBalance godoc
// @ID          getBalance
// @Summary     Get credit balance
// @Tags        Credits
// @Produce     json
// @Param       X-User-ID  header  string  true  "User ID"  example(user123)
// @Success     200  {object}  handlers.BalanceResponse
// @Failure     500  {object}  handlers.ErrorResponse  "Operation failed"
// @Router      /credits/balance [get]
func (h *Handlers) GetBalance(c *gin.Context) {
	id := identity(c)
	bal, err := h.metering.GetBalance(c.Request.Context(), id)
	if err != nil {
		failService(c, err)
		return
	}
	ok(c, http.StatusOK, BalanceResponse{UserID: id.UserID, Balance: bal, Unlimited: h.metering.IsBypass(id)})
}

// ListLedger godoc
// @ID          listLedger
// @Summary     List ledger entries (paginated)
// @Description Most recent first. Supports weak ETag via If-None-Match and may return 304.
// @Tags        Credits
// @Produce     json
// @Param       X-User-ID      header  string  true   "User ID"                     example(user123)
// @Param       If-None-Match  header  string  false  "Return 304 if ETag matches"
// @Param       page           query   int     false  "Page number"     minimum(1) default(1)
// @Param       page_size      query   int     false  "Items per page"  minimum(1) maximum(100) default(20)
// @Success     200  {object}  handlers.LedgerResponse
// @Header      200  {string}  ETag  "Weak ETag for current result"
// @Success     304  {string}  string  "Not Modified"
// @Failure     500  {object}  handlers.ErrorResponse  "Operation failed"
// @Router      /credits/ledger [get]
func (h *Handlers) ListLedger(c *gin.Context) {
	ctx := c.Request.Context()
	uid := identity(c).UserID
	page, pageSize := pagination(c)

	// Best effort: a stats failure just skips the conditional response.
	if count, newest, err := h.metering.LedgerStats(ctx, uid); err == nil {
		var ts int64
		if newest != nil {
			ts = newest.UnixNano()
		}
		etag := fmt.Sprintf(`W/"ledger:%s:%d:%d:%d:%d"`, uid, count, ts, page, pageSize)
		c.Header("ETag", etag)
		if inm := c.GetHeader("If-None-Match"); inm != "" && inm == etag {
			c.Status(http.StatusNotModified)
			return
		}
	}

	items, total, err := h.metering.ListLedger(ctx, uid, page, pageSize)
	if err != nil {
		failService(c, err)
		return
	}
	ok(c, http.StatusOK, LedgerResponse{Entries: items, Pagination: newPagination(page, pageSize, total)})
}

// ListPacks godoc
// @ID          listPacks
// @Summary     List credit packs
// @Tags        Credits
// @Produce     json
// @Success     200  {object}  handlers.PacksResponse
// @Router      /credits/packs [get]
func (h *Handlers) ListPacks(c *gin.Context) {
	ok(c, http.StatusOK, PacksResponse{Packs: h.metering.Packs()})
}

// RecordOutcome godoc
// @ID          recordOutcome
// @Summary     Record an operation outcome
// @Description Success writes one debit. Failure writes a failed debit and its refund (net zero).
// @Tags        Credits
// @Accept      json
// @Produce     json
// @Param       X-User-ID  header  string  true  "User ID"  example(user123)
// @Param       body       body    handlers.RecordOutcomeRequest  true  "Outcome"
// @Success     201  {object}  domain.LedgerEntry
// @Failure     400  {object}  handlers.ErrorResponse  "Unknown operation"
// @Failure     402  {object}  handlers.ErrorResponse  "Insufficient credits"
// @Failure     500  {object}  handlers.ErrorResponse  "Operation failed"
// @Router      /credits/outcomes [post]
func (h *Handlers) RecordOutcome(c *gin.Context) {
	var req RecordOutcomeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "action_key and success are required")
		return
	}
	e, err := h.metering.RecordOutcome(c.Request.Context(), identity(c), req.ActionKey, *req.Success, req.Quantity, req.Metadata)
	if err != nil {
		failService(c, err)
		return
	}
	ok(c, http.StatusCreated, e)
}

// GrantPurchase godoc
// @ID          grantPurchase
// @Summary     Grant a purchased credit pack
// @Description Idempotent per external_ref: a replay returns the original grant with 200.
// @Tags        Credits
// @Accept      json
// @Produce     json
// @Param       X-Executor-Token  header  string  true  "Billing token"
// @Param       body              body    handlers.GrantPurchaseRequest  true  "Purchase"
// @Success     201  {object}  domain.LedgerEntry
// @Success     200  {object}  domain.LedgerEntry  "Replay"
// @Failure     400  {object}  handlers.ErrorResponse  "Unknown pack"
// @Failure     401  {object}  handlers.ErrorResponse  "Invalid token"
// @Failure     409  {object}  handlers.ErrorResponse  "Reference used by another user"
// @Router      /credits/purchases [post]
func (h *Handlers) GrantPurchase(c *gin.Context) {
	var req GrantPurchaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "user_id, pack_id and external_ref are required")
		return
	}
	e, replayed, err := h.metering.GrantPurchase(c.Request.Context(), strings.TrimSpace(req.UserID), req.PackID, strings.TrimSpace(req.ExternalRef))
	if err != nil {
		failService(c, err)
		return
	}
	status := http.StatusCreated
	if replayed {
		status = http.StatusOK
	}
	ok(c, status, e)
}

// Refund godoc
// @ID          refundEntry
// @Summary     Refund a debit entry
// @Description Idempotent per entry: a repeated call returns the existing refund.
// @Tags        Credits
// @Accept      json
// @Produce     json
// @Param       X-Executor-Token  header  string  true  "Executor token"
// @Param       body              body    handlers.RefundRequest  true  "Refund"
// @Success     200  {object}  domain.LedgerEntry
// @Failure     404  {object}  handlers.ErrorResponse  "Entry not found"
// @Failure     409  {object}  handlers.ErrorResponse  "Not refundable"
// @Router      /credits/refunds [post]
func (h *Handlers) Refund(c *gin.Context) {
	var req RefundRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "user_id and entry_id are required")
		return
	}
	e, err := h.metering.Refund(c.Request.Context(), req.UserID, req.EntryID, req.Metadata)
	if err != nil {
		failService(c, err)
		return
	}
	ok(c, http.StatusOK, e)
}

// Reconcile godoc
// @ID          reconcile
// @Summary     Reconcile a balance with its ledger
// @Tags        Credits
// @Accept      json
// @Produce     json
// @Param       X-Executor-Token  header  string  true  "Executor token"
// @Param       body              body    handlers.ReconcileRequest  true  "Account"
// @Success     200  {object}  services.ReconcileReport
// @Router      /credits/reconcile [post]
func (h *Handlers) Reconcile(c *gin.Context) {
	var req ReconcileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "user_id is required")
		return
	}
	rep, err := h.metering.Reconcile(c.Request.Context(), req.UserID, req.Repair)
	if err != nil {
		failService(c, err)
		return
	}
	ok(c, http.StatusOK, rep)
}
