package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"boneboard-backend/internal/application/ledger"
	"boneboard-backend/internal/application/pricing"
	"boneboard-backend/internal/domain"
	"boneboard-backend/internal/pkg/apperr"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

type CreateCampaignInput struct {
	ProjectID uuid.UUID
	Goal      domain.Money
	Deadline  time.Time
	Purpose   string
	Featured  bool
	Actor     string
}

// CreateCampaign opens a funding campaign for a project. Campaigns of the same
// project whose deadline has passed are closed first; any campaign still
// running, funded or not, blocks the new one.
func (s *Service) CreateCampaign(ctx context.Context, in CreateCampaignInput) (*ledger.CampaignView, error) {
	if !in.Goal.IsPositive() {
		return nil, ErrInvalidGoal
	}
	deadline := in.Deadline.UTC()

	var view *ledger.CampaignView
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now, err := s.Clock.Now(tx)
		if err != nil {
			return err
		}
		if !deadline.After(now) {
			return ErrInvalidDeadline
		}
		project, err := findProject(tx, in.ProjectID, true)
		if err != nil {
			return err
		}
		if project.Status == domain.ProjectRejected {
			return ErrProjectRejected
		}

		if _, _, err := closeFinishedCampaigns(tx, now, project.ID); err != nil {
			return err
		}
		var open int64
		if err := tx.Model(&domain.FundingCampaign{}).
			Where("project_id = ? AND is_active = ?", project.ID, true).
			Count(&open).Error; err != nil {
			return err
		}
		if open > 0 {
			return ErrActiveCampaignExists
		}

		fee, err := s.Pricing.Quote(pricing.KindFunding, monthsUntil(now, deadline), in.Goal.Currency, in.Featured)
		if err != nil {
			return err
		}
		campaign := &domain.FundingCampaign{
			ProjectID:     project.ID,
			Purpose:       strings.TrimSpace(in.Purpose),
			Goal:          in.Goal.Amount,
			Currency:      in.Goal.Currency,
			Deadline:      deadline,
			IsActive:      true,
			ListingFee:    fee.Amount,
			ListingFeeCur: fee.Currency,
		}
		if err := tx.Create(campaign).Error; err != nil {
			return err
		}
		if err := tx.Create(domain.NewLifecycleEvent(domain.SubjectCampaign, campaign.ID, domain.EventCreated, in.Actor, map[string]interface{}{
			"project_id":  project.ID,
			"goal":        in.Goal.FormatMajor(),
			"currency":    in.Goal.Currency,
			"deadline":    deadline,
			"listing_fee": fee.FormatMajor(),
		})).Error; err != nil {
			return err
		}
		view = ledger.NewCampaignView(campaign, now)
		return nil
	})
	if err != nil {
		if !errors.Is(err, ErrActiveCampaignExists) && apperr.IsUniqueViolation(err) {
			return nil, ErrActiveCampaignExists
		}
		return nil, apperr.FromStorage(err)
	}
	log.Info().Str("campaign_id", view.ID.String()).Str("project_id", in.ProjectID.String()).
		Str("goal", in.Goal.String()).Msg("lifecycle: campaign created")
	return view, nil
}

// closeFinishedCampaigns flips is_active off for campaigns whose deadline has
// passed, counting unfunded ones as expired and funded ones as finalized.
// uuid.Nil covers every project.
func closeFinishedCampaigns(tx *gorm.DB, now time.Time, projectID uuid.UUID) (expired, finalized int64, err error) {
	expired, err = closeCampaigns(tx, now, projectID, false, domain.EventExpired)
	if err != nil {
		return 0, 0, err
	}
	finalized, err = closeCampaigns(tx, now, projectID, true, domain.EventFinalized)
	if err != nil {
		return 0, 0, err
	}
	return expired, finalized, nil
}

func closeCampaigns(tx *gorm.DB, now time.Time, projectID uuid.UUID, funded bool, eventType string) (int64, error) {
	q := tx.Model(&domain.FundingCampaign{}).Clauses(skipLocked()).
		Where("is_active = ? AND is_funded = ? AND funding_deadline < ?", true, funded, now)
	if projectID != uuid.Nil {
		q = q.Where("project_id = ?", projectID)
	}
	var ids []uuid.UUID
	if err := q.Pluck("id", &ids).Error; err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, nil
	}
	res := tx.Model(&domain.FundingCampaign{}).
		Where("id IN ? AND is_active = ? AND is_funded = ? AND funding_deadline < ?", ids, true, funded, now).
		Update("is_active", false)
	if res.Error != nil {
		return 0, res.Error
	}
	for _, id := range ids {
		if err := tx.Create(domain.NewLifecycleEvent(domain.SubjectCampaign, id, eventType, "", map[string]interface{}{
			"at": now,
		})).Error; err != nil {
			return 0, fmt.Errorf("campaign %s event: %w", id, err)
		}
	}
	return res.RowsAffected, nil
}
