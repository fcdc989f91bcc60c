package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// CampaignStatus is the exposed status of a funding campaign. It is never
// stored; see CampaignStatusAt.
type CampaignStatus string

const (
	CampaignActive  CampaignStatus = "active"
	CampaignFunded  CampaignStatus = "funded"
	CampaignExpired CampaignStatus = "expired"
	CampaignClosed  CampaignStatus = "closed"
)

// FundingCampaign tracks a goal and the running total of its contributions.
// CurrentFunding is a write-through aggregate over Contribution rows and must
// equal their sum after every committed write.
type FundingCampaign struct {
	ID             uuid.UUID       `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	ProjectID      uuid.UUID       `gorm:"column:project_id;type:uuid;not null;index;uniqueIndex:idx_project_active_campaign,where:is_active = true" json:"project_id"`
	Project        *Project        `gorm:"foreignKey:ProjectID;constraint:OnUpdate:CASCADE,OnDelete:RESTRICT" json:"-"`
	Purpose        string          `gorm:"column:funding_purpose" json:"funding_purpose"`
	Goal           decimal.Decimal `gorm:"column:funding_goal;type:decimal(18,2);not null" json:"-"`
	CurrentFunding decimal.Decimal `gorm:"column:current_funding;type:decimal(18,2);not null;default:0" json:"-"`
	Currency       Currency        `gorm:"column:currency;type:varchar(10);not null" json:"currency"`
	Deadline       time.Time       `gorm:"column:funding_deadline;not null;index" json:"funding_deadline"`
	IsActive       bool            `gorm:"column:is_active;not null;default:true;index" json:"is_active"`
	IsFunded       bool            `gorm:"column:is_funded;not null;default:false" json:"is_funded"`
	FundedAt       *time.Time      `gorm:"column:funded_at" json:"funded_at"`
	ListingFee     decimal.Decimal `gorm:"column:listing_fee;type:decimal(18,2);not null;default:0" json:"-"`
	ListingFeeCur  Currency        `gorm:"column:listing_fee_currency;type:varchar(10)" json:"-"`
	CreatedAt      time.Time       `gorm:"column:created_at" json:"created_at"`
	UpdatedAt      time.Time       `gorm:"column:updated_at" json:"updated_at"`
}

func (FundingCampaign) TableName() string {
	return "project_funding"
}

func (f *FundingCampaign) BeforeCreate(tx *gorm.DB) error {
	if f.ID == uuid.Nil {
		f.ID = uuid.New()
	}
	return nil
}

func (f *FundingCampaign) GoalMoney() Money    { return NewMoney(f.Goal, f.Currency) }
func (f *FundingCampaign) CurrentMoney() Money { return NewMoney(f.CurrentFunding, f.Currency) }

// StatusAt derives the exposed status at instant now.
func (f *FundingCampaign) StatusAt(now time.Time) CampaignStatus {
	return CampaignStatusAt(f.IsActive, f.IsFunded, f.Deadline, now)
}

// AcceptsContributionsAt reports whether a contribution may be recorded at now.
func (f *FundingCampaign) AcceptsContributionsAt(now time.Time) bool {
	return f.StatusAt(now) == CampaignActive
}

// CampaignStatusAt: funded wins over everything, then a passed deadline means
// expired even when the stored is_active flag has not caught up yet. An
// inactive campaign that is neither funded nor past its deadline was closed
// administratively.
func CampaignStatusAt(isActive, isFunded bool, deadline, now time.Time) CampaignStatus {
	switch {
	case isFunded:
		return CampaignFunded
	case deadline.Before(now):
		return CampaignExpired
	case !isActive:
		return CampaignClosed
	default:
		return CampaignActive
	}
}

// Contribution is an append-only ledger entry owned by one campaign. The pair
// (campaign_id, tx_reference) is the idempotency key.
type Contribution struct {
	ID                  uuid.UUID        `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	CampaignID          uuid.UUID        `gorm:"column:project_funding_id;type:uuid;not null;uniqueIndex:idx_contribution_campaign_tx,priority:1" json:"project_funding_id"`
	Campaign            *FundingCampaign `gorm:"foreignKey:CampaignID;constraint:OnUpdate:CASCADE,OnDelete:RESTRICT" json:"-"`
	ContributorIdentity string           `gorm:"column:contributor_wallet;not null" json:"-"`
	Amount              decimal.Decimal  `gorm:"column:amount;type:decimal(18,2);not null" json:"-"`
	Currency            Currency         `gorm:"column:currency;type:varchar(10);not null" json:"currency"`
	TxReference         string           `gorm:"column:tx_hash;not null;uniqueIndex:idx_contribution_campaign_tx,priority:2" json:"tx_hash"`
	Message             *string          `gorm:"column:message" json:"message"`
	IsAnonymous         bool             `gorm:"column:is_anonymous;not null;default:false" json:"is_anonymous"`
	CreatedAt           time.Time        `gorm:"column:created_at" json:"created_at"`
}

func (Contribution) TableName() string {
	return "funding_contributions"
}

func (c *Contribution) BeforeCreate(tx *gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}

func (c *Contribution) AmountMoney() Money { return NewMoney(c.Amount, c.Currency) }

// DisplayName hides anonymous contributors and shortens wallet identities.
func (c *Contribution) DisplayName() string {
	if c.IsAnonymous {
		return "Anonymous"
	}
	id := c.ContributorIdentity
	if len(id) <= 14 {
		return id
	}
	return id[:8] + "..." + id[len(id)-6:]
}
