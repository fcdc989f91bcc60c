package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Subject types for LifecycleEvent.
const (
	SubjectJob      = "job"
	SubjectCampaign = "campaign"
	SubjectProject  = "project"
)

// Event types written by the lifecycle, ledger and cascade services.
const (
	EventCreated      = "CREATED"
	EventConfirmed    = "CONFIRMED"
	EventRenewed      = "RENEWED"
	EventReactivated  = "REACTIVATED"
	EventRejected     = "REJECTED"
	EventVerified     = "VERIFIED"
	EventExpired      = "EXPIRED"
	EventFinalized    = "FINALIZED"
	EventContribution = "CONTRIBUTION"
	EventFunded       = "FUNDED"
	EventRepaired     = "REPAIRED"
	EventPurged       = "PURGED"
	EventDeleted      = "DELETED"
)

// LifecycleEvent is the audit trail of state transitions, written in the same
// transaction as the transition itself.
type LifecycleEvent struct {
	EventID     uuid.UUID      `gorm:"column:event_id;type:uuid;primaryKey" json:"event_id"`
	SubjectType string         `gorm:"column:subject_type;type:varchar(20);not null;index:idx_event_subject,priority:1" json:"subject_type"`
	SubjectID   uuid.UUID      `gorm:"column:subject_id;type:uuid;not null;index:idx_event_subject,priority:2" json:"subject_id"`
	EventType   string         `gorm:"column:event_type;type:varchar(30);not null" json:"event_type"`
	Actor       *string        `gorm:"column:actor" json:"actor"`
	EventData   datatypes.JSON `gorm:"column:event_data;type:jsonb;not null" json:"event_data"`
	CreatedAt   time.Time      `gorm:"column:created_at" json:"created_at"`
}

func (LifecycleEvent) TableName() string {
	return "lifecycle_events"
}

func (e *LifecycleEvent) BeforeCreate(tx *gorm.DB) error {
	if e.EventID == uuid.Nil {
		e.EventID = uuid.New()
	}
	return nil
}

// NewLifecycleEvent builds an event row; an empty actor is stored as NULL.
func NewLifecycleEvent(subjectType string, subjectID uuid.UUID, eventType, actor string, data map[string]interface{}) *LifecycleEvent {
	if data == nil {
		data = map[string]interface{}{}
	}
	eventDataBytes, _ := json.Marshal(data)
	e := &LifecycleEvent{
		SubjectType: subjectType,
		SubjectID:   subjectID,
		EventType:   eventType,
		EventData:   datatypes.JSON(eventDataBytes),
	}
	if actor != "" {
		e.Actor = &actor
	}
	return e
}

// Ledger audit actions.
const (
	AuditRepair = "repair"
	AuditPurge  = "purge"
)

// LedgerAudit records the before/after values of every administrative change to
// a campaign's aggregate. Rows outlive the campaign on purpose; campaign_id is not
// a foreign key.
type LedgerAudit struct {
	AuditID    uuid.UUID      `gorm:"column:audit_id;type:uuid;primaryKey" json:"audit_id"`
	CampaignID uuid.UUID      `gorm:"column:campaign_id;type:uuid;not null;index" json:"campaign_id"`
	Action     string         `gorm:"column:action;type:varchar(20);not null" json:"action"`
	Actor      string         `gorm:"column:actor;not null" json:"actor"`
	Before     datatypes.JSON `gorm:"column:before_state;type:jsonb;not null" json:"before"`
	After      datatypes.JSON `gorm:"column:after_state;type:jsonb;not null" json:"after"`
	CreatedAt  time.Time      `gorm:"column:created_at" json:"created_at"`
}

func (LedgerAudit) TableName() string {
	return "ledger_audits"
}

func (a *LedgerAudit) BeforeCreate(tx *gorm.DB) error {
	if a.AuditID == uuid.Nil {
		a.AuditID = uuid.New()
	}
	return nil
}

// Models lists every table the engine owns, parents before children.
func Models() []interface{} {
	return []interface{}{
		&Project{}, &FundingCampaign{}, &Contribution{}, &JobListing{},
		&LifecycleEvent{}, &LedgerAudit{},
	}
}
