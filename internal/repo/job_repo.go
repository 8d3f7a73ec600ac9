package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-pdfops-backend/internal/domain"
)

// CreateJob inserts j, generating an ID and timestamps when unset.
func CreateJob(ctx context.Context, db *gorm.DB, j *domain.OperationJob) error {
	if j.ID == "" {
		j.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if j.CreatedAt.IsZero() {
		j.CreatedAt = now
	}
	if j.UpdatedAt.IsZero() {
		j.UpdatedAt = j.CreatedAt
	}
	return db.WithContext(ctx).Create(j).Error
}

// GetJob fetches a job by id regardless of owner (executor callbacks).
func GetJob(ctx context.Context, db *gorm.DB, id string) (*domain.OperationJob, error) {
	var j domain.OperationJob
	if err := db.WithContext(ctx).Where("id = ?", id).First(&j).Error; err != nil {
		return nil, err
	}
	return &j, nil
}

// GetUserJob fetches a job by id scoped to its owner.
func GetUserJob(ctx context.Context, db *gorm.DB, id, userID string) (*domain.OperationJob, error) {
	var j domain.OperationJob
	if err := db.WithContext(ctx).Where("id = ? AND user_id = ?", id, userID).First(&j).Error; err != nil {
		return nil, err
	}
	return &j, nil
}

// TransitionJob moves job id to status `to` only if its current status is one
// of `from`. It reports whether the row changed. Terminal states stamp
// finished_at.
func TransitionJob(ctx context.Context, db *gorm.DB, id string, from []domain.JobStatus, to domain.JobStatus) (bool, error) {
	now := time.Now().UTC()
	updates := map[string]any{
		"status":     to,
		"updated_at": now,
	}
	if to.Terminal() {
		updates["finished_at"] = now
	}
	res := db.WithContext(ctx).
		Model(&domain.OperationJob{}).
		Where("id = ? AND status IN ?", id, from).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func jobsQuery(ctx context.Context, db *gorm.DB, userID string, status domain.JobStatus) *gorm.DB {
	q := db.WithContext(ctx).Model(&domain.OperationJob{}).Where("user_id = ?", userID)
	if status != "" {
		q = q.Where("status = ?", status)
	}
	return q
}

// CountJobs returns the number of userID's jobs, optionally filtered by status.
func CountJobs(ctx context.Context, db *gorm.DB, userID string, status domain.JobStatus) (int64, error) {
	var total int64
	err := jobsQuery(ctx, db, userID, status).Count(&total).Error
	return total, err
}

// ListJobsPage returns a page of userID's jobs, newest first.
func ListJobsPage(ctx context.Context, db *gorm.DB, userID string, status domain.JobStatus, offset, limit int) ([]domain.OperationJob, error) {
	var out []domain.OperationJob
	err := jobsQuery(ctx, db, userID, status).
		Order("created_at desc").
		Order("id desc").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}
