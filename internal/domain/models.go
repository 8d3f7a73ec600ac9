// Package domain defines the persistence models for the credit ledger,
// materialized credit accounts, and queued PDF operation jobs. These types
// are mapped with GORM and form the core data layer of the metering service.
package domain

import (
	"time"

	"gorm.io/datatypes"
)

// EntryStatus is the outcome recorded on a ledger entry.
type EntryStatus string

const (
	EntrySuccess  EntryStatus = "success"
	EntryFailed   EntryStatus = "failed"
	EntryRefunded EntryStatus = "refunded"
	EntryBypassed EntryStatus = "bypassed"
)

// Valid reports whether s is one of the known entry statuses.
func (s EntryStatus) Valid() bool {
	switch s {
	case EntrySuccess, EntryFailed, EntryRefunded, EntryBypassed:
		return true
	}
	return false
}

// Metadata attribute bounds.
const (
	MaxAttributes     = 16
	MaxAttributeKey   = 64
	MaxAttributeValue = 256
)

// EntryMetadata is the typed JSON payload attached to every ledger entry.
// Only the fields relevant to the entry's kind are set.
type EntryMetadata struct {
	Quantity       int               `json:"quantity,omitempty"`
	BaseCost       int64             `json:"base_cost,omitempty"`
	RefundFor      string            `json:"refund_for,omitempty"`
	JobID          string            `json:"job_id,omitempty"`
	PackID         string            `json:"pack_id,omitempty"`
	InternalBypass bool              `json:"internal_bypass,omitempty"`
	Attributes     map[string]string `json:"attributes,omitempty"`
}

// LedgerEntry is one append-only row of the credit ledger. A user's balance
// is the sum of Credits over all of their entries. Debits are negative,
// refunds and purchases positive, bypass entries zero.
//
// RefundFor is unique: an original entry can be compensated at most once.
// ExternalRef is unique: a payment reference can be granted at most once.
type LedgerEntry struct {
	ID          string                            `json:"id"           gorm:"type:char(36);primaryKey"`
	UserID      string                            `json:"user_id"      gorm:"type:varchar(64);not null;index:idx_ledger_user_created,priority:1"`
	ActionKey   string                            `json:"action_key"   gorm:"type:varchar(64);not null"`
	Credits     int64                             `json:"credits"      gorm:"not null"`
	Status      EntryStatus                       `json:"status"       gorm:"type:varchar(16);not null;check:status IN ('success','failed','refunded','bypassed')"`
	RefundFor   *string                           `json:"refund_for,omitempty"   gorm:"type:char(36);uniqueIndex:ux_ledger_refund_for"`
	ExternalRef *string                           `json:"external_ref,omitempty" gorm:"type:varchar(128);uniqueIndex:ux_ledger_external_ref"`
	Metadata    datatypes.JSONType[EntryMetadata] `json:"metadata"`
	CreatedAt   time.Time                         `json:"created_at"   gorm:"not null;index:idx_ledger_user_created,priority:2,sort:desc"`
}

// TableName returns the database table name for LedgerEntry.
func (LedgerEntry) TableName() string { return "credit_ledger" }

// Meta returns the decoded metadata payload.
func (e LedgerEntry) Meta() EntryMetadata { return e.Metadata.Data() }

// CreditAccount is the materialized balance of a user, kept equal to the sum
// of the user's ledger entries. Every balance mutation updates it with a
// conditional UPDATE in the same transaction as the ledger append, which
// makes this row the per-user serialization point in the database.
type CreditAccount struct {
	UserID    string    `json:"user_id"    gorm:"type:varchar(64);primaryKey"`
	Balance   int64     `json:"balance"    gorm:"not null;default:0"`
	Version   int64     `json:"version"    gorm:"not null;default:0"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName returns the database table name for CreditAccount.
func (CreditAccount) TableName() string { return "credit_accounts" }

// JobStatus is the lifecycle state of an operation job.
type JobStatus string

const (
	JobQueued    JobStatus = "queued"
	JobRunning   JobStatus = "running"
	JobSucceeded JobStatus = "succeeded"
	JobFailed    JobStatus = "failed"
)

// Terminal reports whether no further transitions are allowed.
func (s JobStatus) Terminal() bool { return s == JobSucceeded || s == JobFailed }

// Valid reports whether s is a known job status.
func (s JobStatus) Valid() bool {
	switch s {
	case JobQueued, JobRunning, JobSucceeded, JobFailed:
		return true
	}
	return false
}

// OperationJob is a PDF operation accepted for execution. It references the
// ledger entry that paid for it so a failed execution can be refunded.
type OperationJob struct {
	ID                   string     `json:"id"                               gorm:"type:char(36);primaryKey"`
	UserID               string     `json:"user_id"                          gorm:"type:varchar(64);not null;index:idx_jobs_user_status,priority:1"`
	DocumentID           string     `json:"document_id"                      gorm:"type:varchar(128);not null"`
	OperationID          string     `json:"operation_id"                     gorm:"type:varchar(64);not null"`
	StoragePath          string     `json:"storage_path,omitempty"           gorm:"type:text"`
	SecondaryStoragePath *string    `json:"secondary_storage_path,omitempty" gorm:"type:text"`
	Quantity             int        `json:"quantity"                         gorm:"not null;default:1"`
	Status               JobStatus  `json:"status"                           gorm:"type:varchar(16);not null;index:idx_jobs_user_status,priority:2;check:status IN ('queued','running','succeeded','failed')"`
	LedgerEntryID        string     `json:"ledger_entry_id"                  gorm:"type:char(36);not null;index"`
	CreatedAt            time.Time  `json:"created_at"`
	UpdatedAt            time.Time  `json:"updated_at"`
	FinishedAt           *time.Time `json:"finished_at,omitempty"`
}

// TableName returns the database table name for OperationJob.
func (OperationJob) TableName() string { return "operation_jobs" }
