package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// ProjectStatus values for Project.Status.
type ProjectStatus string

const (
	ProjectPending  ProjectStatus = "pending"
	ProjectVerified ProjectStatus = "verified"
	ProjectRejected ProjectStatus = "rejected"
)

// Project owns zero-or-one active FundingCampaign and any number of JobListings.
type Project struct {
	ID            uuid.UUID       `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	Title         string          `gorm:"column:title;not null" json:"title"`
	OwnerIdentity string          `gorm:"column:owner_identity;not null;index" json:"owner_identity"`
	Status        ProjectStatus   `gorm:"column:status;type:varchar(20);not null;default:'pending'" json:"status"`
	VerifiedBy    *string         `gorm:"column:verified_by" json:"verified_by"`
	VerifiedAt    *time.Time      `gorm:"column:verified_at" json:"verified_at"`
	ListingMonths int             `gorm:"column:listing_months;not null;default:1" json:"listing_months"`
	Featured      bool            `gorm:"column:is_featured;not null;default:false" json:"is_featured"`
	ListingFee    decimal.Decimal `gorm:"column:listing_fee;type:decimal(18,2);not null" json:"-"`
	ListingFeeCur Currency        `gorm:"column:listing_fee_currency;type:varchar(10);not null" json:"-"`
	CreatedAt     time.Time       `gorm:"column:created_at" json:"created_at"`
	UpdatedAt     time.Time       `gorm:"column:updated_at" json:"updated_at"`
}

func (Project) TableName() string {
	return "projects"
}

func (p *Project) BeforeCreate(tx *gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}

// Fee returns the stored listing fee as Money.
func (p *Project) Fee() Money {
	return NewMoney(p.ListingFee, p.ListingFeeCur)
}
