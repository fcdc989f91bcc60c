package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// JobStatus is both the stored and the exposed status of a job listing.
//
//	pending ──► confirmed ──► expired ──► confirmed (reactivate)
//	   │            │  ▲
//	   │            └──┘ renew
//	   └────────────┴──► rejected
//
// rejected is terminal. expired is derived from expires_at and only leaves
// through an explicit reactivation.
type JobStatus string

const (
	JobPending   JobStatus = "pending"
	JobConfirmed JobStatus = "confirmed"
	JobExpired   JobStatus = "expired"
	JobRejected  JobStatus = "rejected"
)

// jobTransitions lists every allowed (from → to) pair. confirmed → confirmed is a renewal.
var jobTransitions = map[JobStatus][]JobStatus{
	JobPending:   {JobConfirmed, JobRejected},
	JobConfirmed: {JobConfirmed, JobExpired, JobRejected},
	JobExpired:   {JobConfirmed},
}

// ParseJobStatus converts a raw string to a JobStatus.
func ParseJobStatus(s string) (JobStatus, error) {
	st := JobStatus(s)
	switch st {
	case JobPending, JobConfirmed, JobExpired, JobRejected:
		return st, nil
	}
	return "", fmt.Errorf("unknown job status %q", s)
}

// IsJobTransitionAllowed reports whether from → to is an edge of the job state machine.
func IsJobTransitionAllowed(from, to JobStatus) bool {
	for _, s := range jobTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// JobListing is a paid job post. ProjectID is an optional association; the job
// is removed together with its project.
type JobListing struct {
	ID             uuid.UUID       `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	ProjectID      *uuid.UUID      `gorm:"column:project_id;type:uuid;index" json:"project_id"`
	Project        *Project        `gorm:"foreignKey:ProjectID;constraint:OnUpdate:CASCADE,OnDelete:RESTRICT" json:"-"`
	Title          string          `gorm:"column:title;not null" json:"title"`
	Company        string          `gorm:"column:company;not null" json:"company"`
	OwnerIdentity  string          `gorm:"column:owner_identity;not null;index" json:"owner_identity"`
	Status         JobStatus       `gorm:"column:status;type:varchar(20);not null;default:'pending';index" json:"status"`
	DurationMonths int             `gorm:"column:listing_duration;not null" json:"listing_duration"`
	Featured       bool            `gorm:"column:is_featured;not null;default:false" json:"is_featured"`
	FeeAmount      decimal.Decimal `gorm:"column:payment_amount;type:decimal(18,2);not null" json:"-"`
	FeeCurrency    Currency        `gorm:"column:payment_currency;type:varchar(10);not null" json:"-"`
	TxReference    *string         `gorm:"column:tx_hash" json:"tx_hash"`
	ExpiresAt      *time.Time      `gorm:"column:expires_at;index" json:"expires_at"`
	CreatedAt      time.Time       `gorm:"column:created_at" json:"created_at"`
	UpdatedAt      time.Time       `gorm:"column:updated_at" json:"updated_at"`
}

func (JobListing) TableName() string {
	return "job_listings"
}

func (j *JobListing) BeforeCreate(tx *gorm.DB) error {
	if j.ID == uuid.Nil {
		j.ID = uuid.New()
	}
	return nil
}

// Fee returns the stored listing fee as Money.
func (j *JobListing) Fee() Money {
	return NewMoney(j.FeeAmount, j.FeeCurrency)
}

// StatusAt reconciles the stored status with expires_at at instant now.
func (j *JobListing) StatusAt(now time.Time) JobStatus {
	return JobStatusAt(j.Status, j.ExpiresAt, now)
}

// JobStatusAt is the read-time predicate: a pending or confirmed job whose
// expires_at has passed is expired whatever the stored value says. Rejected
// stays rejected.
func JobStatusAt(stored JobStatus, expiresAt *time.Time, now time.Time) JobStatus {
	if stored == JobRejected || stored == JobExpired {
		return stored
	}
	if expiresAt != nil && expiresAt.Before(now) {
		return JobExpired
	}
	return stored
}
