// Package ledger records contributions against funding campaigns and keeps each
// campaign's current_funding equal to the sum of its contributions.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"boneboard-backend/internal/domain"
	"boneboard-backend/internal/infrastructure/database"
	"boneboard-backend/internal/pkg/apperr"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Service struct {
	DB    *gorm.DB
	Clock database.Clock
}

type ContributionInput struct {
	CampaignID  uuid.UUID
	Contributor string
	Amount      domain.Money
	TxReference string
	Message     *string
	IsAnonymous bool
}

// RecordContribution appends a contribution and bumps the campaign total in one
// transaction. The campaign row lock serializes concurrent contributors.
func (s *Service) RecordContribution(ctx context.Context, in ContributionInput) (*domain.Contribution, error) {
	if !in.Amount.IsPositive() {
		return nil, ErrInvalidAmount
	}
	contributor := strings.TrimSpace(in.Contributor)
	if contributor == "" {
		return nil, ErrContributorRequired
	}
	txRef := strings.TrimSpace(in.TxReference)
	if txRef == "" {
		return nil, ErrTxReferenceRequired
	}

	var out *domain.Contribution
	var fundedNow bool
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now, err := s.Clock.Now(tx)
		if err != nil {
			return err
		}
		campaign, err := lockCampaign(tx, in.CampaignID, "UPDATE")
		if err != nil {
			return err
		}
		// a replayed tx is a duplicate even after it closed the campaign
		var dup int64
		if err := tx.Model(&domain.Contribution{}).
			Where("project_funding_id = ? AND tx_hash = ?", campaign.ID, txRef).
			Count(&dup).Error; err != nil {
			return err
		}
		if dup > 0 {
			return ErrDuplicateContribution
		}
		if in.Amount.Currency != campaign.Currency {
			return fmt.Errorf("%w: %s != %s", ErrCurrencyMismatch, in.Amount.Currency, campaign.Currency)
		}
		if campaign.IsFunded {
			return fmt.Errorf("%w: project is already fully funded", ErrCampaignClosed)
		}
		if !campaign.AcceptsContributionsAt(now) {
			return fmt.Errorf("%w: status %s", ErrCampaignClosed, campaign.StatusAt(now))
		}

		contribution := &domain.Contribution{
			CampaignID:          campaign.ID,
			ContributorIdentity: contributor,
			Amount:              in.Amount.Amount,
			Currency:            in.Amount.Currency,
			TxReference:         txRef,
			Message:             in.Message,
			IsAnonymous:         in.IsAnonymous,
		}
		if err := tx.Create(contribution).Error; err != nil {
			return err
		}

		total := campaign.CurrentMoney()
		total, err = total.Add(in.Amount)
		if err != nil {
			return err
		}
		updates := map[string]interface{}{"current_funding": total.Amount}
		if total.Amount.GreaterThanOrEqual(campaign.Goal) {
			updates["is_funded"] = true
			updates["funded_at"] = now
			fundedNow = true
		}
		if err := tx.Model(&domain.FundingCampaign{}).Where("id = ?", campaign.ID).Updates(updates).Error; err != nil {
			return err
		}

		if err := tx.Create(domain.NewLifecycleEvent(domain.SubjectCampaign, campaign.ID, domain.EventContribution, contributor, map[string]interface{}{
			"contribution_id": contribution.ID,
			"amount":          in.Amount.FormatMajor(),
			"currency":        in.Amount.Currency,
			"tx_hash":         txRef,
			"current_funding": total.FormatMajor(),
		})).Error; err != nil {
			return err
		}
		if fundedNow {
			if err := tx.Create(domain.NewLifecycleEvent(domain.SubjectCampaign, campaign.ID, domain.EventFunded, "", map[string]interface{}{
				"goal":            campaign.GoalMoney().FormatMajor(),
				"current_funding": total.FormatMajor(),
			})).Error; err != nil {
				return err
			}
		}
		out = contribution
		return nil
	})
	if err != nil {
		if !errors.Is(err, ErrDuplicateContribution) && apperr.IsUniqueViolation(err) {
			return nil, ErrDuplicateContribution
		}
		return nil, apperr.FromStorage(err)
	}

	log.Info().Str("campaign_id", in.CampaignID.String()).Str("amount", in.Amount.String()).
		Bool("funded", fundedNow).Msg("ledger: contribution recorded")
	return out, nil
}

// Reconciliation compares a campaign's stored total with the sum of its contributions.
type Reconciliation struct {
	CampaignID    uuid.UUID    `json:"campaign_id"`
	Stored        domain.Money `json:"stored"`
	Computed      domain.Money `json:"computed"`
	Contributions int          `json:"contributions"`
	Matches       bool         `json:"matches"`
}

// Err reports a mismatch as an integrity violation.
func (r Reconciliation) Err() error {
	if r.Matches {
		return nil
	}
	return fmt.Errorf("%w: campaign %s stored %s, computed %s", ErrIntegrityViolation, r.CampaignID, r.Stored, r.Computed)
}

// Reconcile is read-only. A mismatch is logged and returned, never corrected.
func (s *Service) Reconcile(ctx context.Context, campaignID uuid.UUID) (*Reconciliation, error) {
	var rec *Reconciliation
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		campaign, err := lockCampaign(tx, campaignID, "SHARE")
		if err != nil {
			return err
		}
		rec, err = reconcile(tx, campaign)
		return err
	})
	if err != nil {
		return nil, apperr.FromStorage(err)
	}
	if !rec.Matches {
		log.Warn().Str("campaign_id", campaignID.String()).Str("stored", rec.Stored.String()).
			Str("computed", rec.Computed.String()).Msg("ledger: reconciliation mismatch")
	}
	return rec, nil
}

// RepairResult holds the reconciliation taken before and after a repair.
type RepairResult struct {
	Before  Reconciliation `json:"before"`
	After   Reconciliation `json:"after"`
	Changed bool           `json:"changed"`
}

// Repair overwrites current_funding and is_funded from the contribution rows.
// Every change is written to ledger_audits.
func (s *Service) Repair(ctx context.Context, campaignID uuid.UUID, actor string) (*RepairResult, error) {
	actor = strings.TrimSpace(actor)
	if actor == "" {
		return nil, ErrActorRequired
	}
	var res *RepairResult
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now, err := s.Clock.Now(tx)
		if err != nil {
			return err
		}
		campaign, err := lockCampaign(tx, campaignID, "UPDATE")
		if err != nil {
			return err
		}
		before, err := reconcile(tx, campaign)
		if err != nil {
			return err
		}

		funded := before.Computed.Amount.GreaterThanOrEqual(campaign.Goal)
		res = &RepairResult{Before: *before, After: *before}
		if before.Matches && funded == campaign.IsFunded {
			return nil
		}

		updates := map[string]interface{}{
			"current_funding": before.Computed.Amount,
			"is_funded":       funded,
		}
		switch {
		case funded && campaign.FundedAt == nil:
			updates["funded_at"] = now
		case !funded:
			updates["funded_at"] = nil
		}
		if err := tx.Model(&domain.FundingCampaign{}).Where("id = ?", campaign.ID).Updates(updates).Error; err != nil {
			return err
		}

		after := *before
		after.Stored = before.Computed
		after.Matches = true
		res.After = after
		res.Changed = true

		beforeState := aggregateState(campaign.CurrentMoney(), campaign.IsFunded, before.Contributions)
		afterState := aggregateState(before.Computed, funded, before.Contributions)
		if err := writeAudit(tx, campaign.ID, domain.AuditRepair, actor, beforeState, afterState); err != nil {
			return err
		}
		return tx.Create(domain.NewLifecycleEvent(domain.SubjectCampaign, campaign.ID, domain.EventRepaired, actor, map[string]interface{}{
			"before": beforeState,
			"after":  afterState,
		})).Error
	})
	if err != nil {
		return nil, apperr.FromStorage(err)
	}
	if res.Changed {
		log.Warn().Str("campaign_id", campaignID.String()).Str("actor", actor).
			Str("before", res.Before.Stored.String()).Str("after", res.After.Stored.String()).
			Msg("ledger: campaign total repaired")
	}
	return res, nil
}

// PurgeContributions deletes every contribution of a campaign and zeroes its
// aggregate in the same transaction. It returns the number of rows removed.
func (s *Service) PurgeContributions(ctx context.Context, campaignID uuid.UUID, actor string) (int64, error) {
	actor = strings.TrimSpace(actor)
	if actor == "" {
		return 0, ErrActorRequired
	}
	var deleted int64
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		campaign, err := lockCampaign(tx, campaignID, "UPDATE")
		if err != nil {
			return err
		}
		del := tx.Where("project_funding_id = ?", campaign.ID).Delete(&domain.Contribution{})
		if del.Error != nil {
			return del.Error
		}
		deleted = del.RowsAffected

		if err := tx.Model(&domain.FundingCampaign{}).Where("id = ?", campaign.ID).Updates(map[string]interface{}{
			"current_funding": decimal.Zero,
			"is_funded":       false,
			"funded_at":       nil,
		}).Error; err != nil {
			return err
		}

		beforeState := aggregateState(campaign.CurrentMoney(), campaign.IsFunded, int(deleted))
		afterState := aggregateState(domain.ZeroMoney(campaign.Currency), false, 0)
		if err := writeAudit(tx, campaign.ID, domain.AuditPurge, actor, beforeState, afterState); err != nil {
			return err
		}
		return tx.Create(domain.NewLifecycleEvent(domain.SubjectCampaign, campaign.ID, domain.EventPurged, actor, map[string]interface{}{
			"deleted": deleted,
			"before":  beforeState,
		})).Error
	})
	if err != nil {
		return 0, apperr.FromStorage(err)
	}
	log.Warn().Str("campaign_id", campaignID.String()).Str("actor", actor).Int64("deleted", deleted).
		Msg("ledger: contributions purged")
	return deleted, nil
}

// ContributionView is a contribution as shown publicly.
type ContributionView struct {
	ID          uuid.UUID    `json:"id"`
	Contributor string       `json:"contributor"`
	Amount      domain.Money `json:"amount"`
	TxReference string       `json:"tx_hash"`
	Message     *string      `json:"message"`
	IsAnonymous bool         `json:"is_anonymous"`
	CreatedAt   time.Time    `json:"created_at"`
}

// ListContributions returns a campaign's contributions, newest first.
func (s *Service) ListContributions(ctx context.Context, campaignID uuid.UUID) ([]ContributionView, error) {
	db := s.DB.WithContext(ctx)
	if _, err := findCampaign(db, campaignID); err != nil {
		return nil, apperr.FromStorage(err)
	}
	var rows []domain.Contribution
	if err := db.Where("project_funding_id = ?", campaignID).Order("created_at DESC").Find(&rows).Error; err != nil {
		return nil, apperr.FromStorage(err)
	}
	out := make([]ContributionView, 0, len(rows))
	for i := range rows {
		c := &rows[i]
		out = append(out, ContributionView{
			ID:          c.ID,
			Contributor: c.DisplayName(),
			Amount:      c.AmountMoney(),
			TxReference: c.TxReference,
			Message:     c.Message,
			IsAnonymous: c.IsAnonymous,
			CreatedAt:   c.CreatedAt,
		})
	}
	return out, nil
}

// CampaignView is a freshly read campaign with its derived status.
type CampaignView struct {
	ID               uuid.UUID             `json:"id"`
	ProjectID        uuid.UUID             `json:"project_id"`
	Purpose          string                `json:"funding_purpose"`
	Goal             domain.Money          `json:"funding_goal"`
	CurrentFunding   domain.Money          `json:"current_funding"`
	Deadline         time.Time             `json:"funding_deadline"`
	Status           domain.CampaignStatus `json:"status"`
	IsActive         bool                  `json:"is_active"`
	IsFunded         bool                  `json:"is_funded"`
	FundedAt         *time.Time            `json:"funded_at"`
	ProgressPercent  float64               `json:"progress_percentage"`
	ContributorCount int64                 `json:"contributor_count"`
	ListingFee       domain.Money          `json:"listing_fee"`
	CreatedAt        time.Time             `json:"created_at"`
}

// GetCampaign reads the campaign from storage; nothing is cached.
func (s *Service) GetCampaign(ctx context.Context, campaignID uuid.UUID) (*CampaignView, error) {
	var view *CampaignView
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now, err := s.Clock.Now(tx)
		if err != nil {
			return err
		}
		campaign, err := findCampaign(tx, campaignID)
		if err != nil {
			return err
		}
		var contributors int64
		if err := tx.Model(&domain.Contribution{}).Where("project_funding_id = ?", campaign.ID).
			Distinct("contributor_wallet").Count(&contributors).Error; err != nil {
			return err
		}
		view = NewCampaignView(campaign, now)
		view.ContributorCount = contributors
		return nil
	})
	if err != nil {
		return nil, apperr.FromStorage(err)
	}
	return view, nil
}

// NewCampaignView derives status and progress at instant now.
func NewCampaignView(c *domain.FundingCampaign, now time.Time) *CampaignView {
	return &CampaignView{
		ID:              c.ID,
		ProjectID:       c.ProjectID,
		Purpose:         c.Purpose,
		Goal:            c.GoalMoney(),
		CurrentFunding:  c.CurrentMoney(),
		Deadline:        c.Deadline,
		Status:          c.StatusAt(now),
		IsActive:        c.IsActive,
		IsFunded:        c.IsFunded,
		FundedAt:        c.FundedAt,
		ProgressPercent: Progress(c.CurrentFunding, c.Goal),
		ListingFee:      domain.NewMoney(c.ListingFee, c.ListingFeeCur),
		CreatedAt:       c.CreatedAt,
	}
}

// Progress is current/goal as a percentage with two decimals, capped at 100.
func Progress(current, goal decimal.Decimal) float64 {
	if !goal.IsPositive() {
		return 0
	}
	hundred := decimal.NewFromInt(100)
	pct := current.Div(goal).Mul(hundred).Round(2)
	if pct.GreaterThan(hundred) {
		pct = hundred
	}
	return pct.InexactFloat64()
}

func findCampaign(tx *gorm.DB, id uuid.UUID) (*domain.FundingCampaign, error) {
	var c domain.FundingCampaign
	if err := tx.Where("id = ?", id).First(&c).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrCampaignNotFound
		}
		return nil, err
	}
	return &c, nil
}

// lockCampaign reads the campaign row with SELECT ... FOR <strength>.
// SQLite ignores the clause; its single writer serializes instead.
func lockCampaign(tx *gorm.DB, id uuid.UUID, strength string) (*domain.FundingCampaign, error) {
	return findCampaign(tx.Clauses(clause.Locking{Strength: strength}), id)
}

func reconcile(tx *gorm.DB, campaign *domain.FundingCampaign) (*Reconciliation, error) {
	var amounts []decimal.Decimal
	if err := tx.Model(&domain.Contribution{}).Where("project_funding_id = ?", campaign.ID).
		Pluck("amount", &amounts).Error; err != nil {
		return nil, err
	}
	sum := decimal.Zero
	for _, a := range amounts {
		sum = sum.Add(a)
	}
	stored := campaign.CurrentMoney()
	computed := domain.NewMoney(sum, campaign.Currency)
	return &Reconciliation{
		CampaignID:    campaign.ID,
		Stored:        stored,
		Computed:      computed,
		Contributions: len(amounts),
		Matches:       stored.Equal(computed),
	}, nil
}

func aggregateState(total domain.Money, funded bool, contributions int) map[string]interface{} {
	return map[string]interface{}{
		"current_funding": total.FormatMajor(),
		"currency":        total.Currency,
		"is_funded":       funded,
		"contributions":   contributions,
	}
}
