// Package services – OperationGateway
//
// OperationGateway is the front door for paid PDF operations. It validates a
// submission (catalog, required inputs, storage ownership), reserves credits
// through MeteringService and persists the queued job in the same
// transaction as the debit. Executors report back through MarkRunning and
// ReportOutcome; a failed execution refunds the original debit exactly once.
package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/tbourn/go-pdfops-backend/internal/catalog"
	"github.com/tbourn/go-pdfops-backend/internal/domain"
	"github.com/tbourn/go-pdfops-backend/internal/observability"
	"github.com/tbourn/go-pdfops-backend/internal/repo"

	// OpenTelemetry
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// DefaultIdempotencyTTL is used when the gateway has no TTL configured.
const DefaultIdempotencyTTL = 24 * time.Hour

// OperationGateway accepts operation submissions and settles their outcome.
type OperationGateway struct {
	DB             *gorm.DB
	Catalog        *catalog.Catalog
	Metering       *MeteringService
	IdempotencyTTL time.Duration
}

// NewOperationGateway wires a gateway on top of m.
func NewOperationGateway(m *MeteringService, ttl time.Duration) *OperationGateway {
	if ttl <= 0 {
		ttl = DefaultIdempotencyTTL
	}
	return &OperationGateway{DB: m.DB, Catalog: m.Catalog, Metering: m, IdempotencyTTL: ttl}
}

// SubmitRequest is one operation submission on a document.
type SubmitRequest struct {
	Identity             Identity
	DocumentID           string
	OperationID          string
	StoragePath          string
	SecondaryStoragePath string
	Quantity             int
	Attributes           map[string]string
	IdempotencyKey       string
}

// SubmitResult is the accepted job and the entry that paid for it. Replayed
// is set when an earlier submission with the same idempotency key is returned.
type SubmitResult struct {
	Job      *domain.OperationJob
	Entry    *domain.LedgerEntry
	Replayed bool
}

// SubmitScope namespaces submission idempotency keys per document.
func SubmitScope(documentID string) string { return "submit:" + documentID }

func (g *OperationGateway) validate(req SubmitRequest) (catalog.OperationDefinition, error) {
	if strings.TrimSpace(req.Identity.UserID) == "" || strings.TrimSpace(req.DocumentID) == "" {
		return catalog.OperationDefinition{}, ErrMissingInput
	}
	// Ownership is checked first: a foreign path is Forbidden whatever the
	// operation or balance.
	for _, p := range []string{req.StoragePath, req.SecondaryStoragePath} {
		if p != "" && !OwnsPath(req.Identity.UserID, p) {
			return catalog.OperationDefinition{}, ErrForbidden
		}
	}
	op, ok := g.Catalog.Get(req.OperationID)
	if !ok {
		return op, ErrUnknownOperation
	}
	if op.RequiresUpload && req.StoragePath == "" {
		return op, fmt.Errorf("%w: storage path", ErrMissingInput)
	}
	if op.RequiresSecondFile && req.SecondaryStoragePath == "" {
		return op, fmt.Errorf("%w: secondary storage path", ErrMissingInput)
	}
	return op, nil
}

// Submit validates req, reserves its credits and persists a queued job. The
// debit and the job are committed together. With an idempotency key, a
// repeated submission returns the original job without a second debit.
func (g *OperationGateway) Submit(ctx context.Context, req SubmitRequest) (res *SubmitResult, err error) {
	ctx, span := otel.Tracer("services/OperationGateway").Start(ctx, "Submit",
		trace.WithAttributes(
			attribute.String("user.id", req.Identity.UserID),
			attribute.String("document.id", req.DocumentID),
			attribute.String("operation.id", req.OperationID),
			attribute.Bool("idempotent", req.IdempotencyKey != ""),
		),
	)
	defer func() { observability.EndSpan(span, err, ErrInsufficientCredits, ErrUnknownOperation, ErrForbidden) }()

	op, err := g.validate(req)
	if err != nil {
		g.Metering.reject(ctx, req.Identity, req.OperationID, err)
		return nil, err
	}
	c, err := newCharge(req.Identity, op.ID, req.Quantity, req.Attributes)
	if err != nil {
		g.Metering.reject(ctx, req.Identity, op.ID, err)
		return nil, err
	}
	c.jobID = uuid.NewString()
	userID := req.Identity.UserID

	res = &SubmitResult{}
	err = g.Metering.withUserLock(ctx, userID, func(tx *gorm.DB) error {
		if req.IdempotencyKey != "" {
			rec, gerr := repo.GetIdempotency(ctx, tx, userID, SubmitScope(req.DocumentID), req.IdempotencyKey, time.Now().UTC())
			if gerr == nil {
				return g.replay(ctx, tx, userID, rec.ResourceID, res)
			}
			if !errors.Is(gerr, repo.ErrNotFound) {
				return gerr
			}
		}

		entry, rerr := g.Metering.reserveTx(ctx, tx, c)
		if rerr != nil {
			return rerr
		}

		job := &domain.OperationJob{
			ID:            c.jobID,
			UserID:        userID,
			DocumentID:    req.DocumentID,
			OperationID:   op.ID,
			StoragePath:   req.StoragePath,
			Quantity:      c.quantity,
			Status:        domain.JobQueued,
			LedgerEntryID: entry.ID,
		}
		if req.SecondaryStoragePath != "" {
			p := req.SecondaryStoragePath
			job.SecondaryStoragePath = &p
		}
		if jerr := repo.CreateJob(ctx, tx, job); jerr != nil {
			return jerr
		}

		if req.IdempotencyKey != "" {
			_, ierr := repo.CreateIdempotency(ctx, tx, userID, SubmitScope(req.DocumentID), req.IdempotencyKey, job.ID, http.StatusAccepted, g.IdempotencyTTL)
			if errors.Is(ierr, repo.ErrDuplicate) {
				return ErrConcurrencyConflict
			}
			if ierr != nil {
				return ierr
			}
		}
		res.Job, res.Entry = job, entry
		return nil
	})
	if err != nil {
		g.Metering.reject(ctx, req.Identity, op.ID, err)
		return nil, err
	}

	if !res.Replayed {
		g.Metering.recordCharge(ctx, res.Entry)
		zerolog.Ctx(ctx).Info().
			Str("user_id", userID).
			Str("job_id", res.Job.ID).
			Str("operation", op.ID).
			Int64("credits", res.Entry.Credits).
			Msg("operation queued")
	}
	return res, nil
}

func (g *OperationGateway) replay(ctx context.Context, tx *gorm.DB, userID, jobID string, res *SubmitResult) error {
	job, err := repo.GetUserJob(ctx, tx, jobID, userID)
	if err != nil {
		return err
	}
	entry, err := repo.GetEntry(ctx, tx, job.LedgerEntryID, userID)
	if err != nil {
		return err
	}
	res.Job, res.Entry, res.Replayed = job, entry, true
	return nil
}

func (g *OperationGateway) loadJob(ctx context.Context, jobID string) (*domain.OperationJob, error) {
	job, err := repo.GetJob(ctx, g.DB, jobID)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, persistence(err)
	}
	return job, nil
}

// MarkRunning moves a queued job to running. Marking a running job again is
// a no-op; a finished job returns ErrJobFinalized.
func (g *OperationGateway) MarkRunning(ctx context.Context, jobID string) (job *domain.OperationJob, err error) {
	ctx, span := otel.Tracer("services/OperationGateway").Start(ctx, "MarkRunning",
		trace.WithAttributes(attribute.String("job.id", jobID)),
	)
	defer func() { observability.EndSpan(span, err, ErrJobNotFound, ErrJobFinalized) }()

	job, err = g.loadJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	switch {
	case job.Status == domain.JobRunning:
		return job, nil
	case job.Status.Terminal():
		return nil, ErrJobFinalized
	}

	ok, err := repo.TransitionJob(ctx, g.DB, jobID, []domain.JobStatus{domain.JobQueued}, domain.JobRunning)
	if err != nil {
		return nil, persistence(err)
	}
	if !ok {
		// Lost a race; report whatever state won.
		if job, err = g.loadJob(ctx, jobID); err != nil {
			return nil, err
		}
		if job.Status == domain.JobRunning {
			return job, nil
		}
		return nil, ErrJobFinalized
	}
	return g.loadJob(ctx, jobID)
}

// ReportOutcome settles job jobID. Success returns the original debit.
// Failure of a refundable operation refunds the debit and returns the refund
// entry; jobs that were not charged (bypass or zero cost) or whose operation
// is not refundable return their original entry. Reporting the
// same outcome twice is idempotent; a conflicting outcome is ErrJobFinalized.
func (g *OperationGateway) ReportOutcome(ctx context.Context, jobID string, success bool, attrs map[string]string) (entry *domain.LedgerEntry, err error) {
	ctx, span := otel.Tracer("services/OperationGateway").Start(ctx, "ReportOutcome",
		trace.WithAttributes(
			attribute.String("job.id", jobID),
			attribute.Bool("success", success),
		),
	)
	defer func() { observability.EndSpan(span, err, ErrJobNotFound, ErrJobFinalized) }()

	if err = validateAttributes(attrs); err != nil {
		return nil, err
	}
	job, err := g.loadJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	target := domain.JobFailed
	if success {
		target = domain.JobSucceeded
	}

	var refunded bool
	err = g.Metering.withUserLock(ctx, job.UserID, func(tx *gorm.DB) error {
		cur, gerr := repo.GetJob(ctx, tx, jobID)
		if gerr != nil {
			return gerr
		}
		orig, gerr := repo.GetEntry(ctx, tx, cur.LedgerEntryID, cur.UserID)
		if gerr != nil {
			return gerr
		}

		if cur.Status.Terminal() {
			if cur.Status != target {
				return ErrJobFinalized
			}
			entry = orig
			if !success {
				if r, ferr := repo.FindRefundFor(ctx, tx, orig.ID); ferr == nil {
					entry = r
				} else if !errors.Is(ferr, repo.ErrNotFound) {
					return ferr
				}
			}
			return nil
		}

		ok, terr := repo.TransitionJob(ctx, tx, jobID, []domain.JobStatus{domain.JobQueued, domain.JobRunning}, target)
		if terr != nil {
			return terr
		}
		if !ok {
			return ErrConcurrencyConflict
		}

		entry = orig
		if success || orig.Credits >= 0 || orig.Status != domain.EntrySuccess {
			return nil
		}
		if op, known := g.Metering.Catalog.Get(cur.OperationID); known && !op.Refundable {
			return nil
		}
		r, created, rerr := g.Metering.refundTx(ctx, tx, orig, attrs)
		if rerr != nil {
			return rerr
		}
		entry, refunded = r, created
		return nil
	})
	if err != nil {
		return nil, err
	}

	if refunded {
		recordEntries(entry)
		observability.RecordRefund(entry.ActionKey, entry.Credits)
	}
	zerolog.Ctx(ctx).Info().
		Str("user_id", job.UserID).
		Str("job_id", jobID).
		Str("status", string(target)).
		Bool("refunded", refunded).
		Msg("operation outcome reported")
	return entry, nil
}

// GetJob returns userID's job jobID.
func (g *OperationGateway) GetJob(ctx context.Context, userID, jobID string) (*domain.OperationJob, error) {
	job, err := repo.GetUserJob(ctx, g.DB, jobID, userID)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, persistence(err)
	}
	return job, nil
}

// JobStats returns the (count, newest update) validator of userID's jobs.
func (g *OperationGateway) JobStats(ctx context.Context, userID string) (int64, *time.Time, error) {
	return repo.JobStats(ctx, g.DB, userID)
}

// ListJobs returns a page of userID's jobs, newest first, optionally filtered
// by status, and the total count.
func (g *OperationGateway) ListJobs(ctx context.Context, userID string, status domain.JobStatus, page, pageSize int) ([]domain.OperationJob, int64, error) {
	if status != "" && !status.Valid() {
		return nil, 0, ErrInvalidStatus
	}
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}

	total, err := repo.CountJobs(ctx, g.DB, userID, status)
	if err != nil {
		return nil, 0, persistence(err)
	}
	if total == 0 {
		return []domain.OperationJob{}, 0, nil
	}
	items, err := repo.ListJobsPage(ctx, g.DB, userID, status, (page-1)*pageSize, pageSize)
	if err != nil {
		return nil, 0, persistence(err)
	}
	return items, total, nil
}
