// Package cascade removes a project together with everything that belongs to
// it, and reports rows whose parent is gone.
package cascade

import (
	"context"
	"errors"
	"strings"

	"boneboard-backend/internal/domain"
	"boneboard-backend/internal/pkg/apperr"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrProjectNotFound = apperr.NotFound("Project not found")
	ErrActorRequired   = apperr.Validation("Actor is required")
)

type Service struct {
	DB *gorm.DB
}

// DeleteResult counts the rows removed per table.
type DeleteResult struct {
	ProjectID       uuid.UUID `json:"project_id"`
	Contributions   int64     `json:"contributions"`
	Campaigns       int64     `json:"campaigns"`
	LifecycleEvents int64     `json:"lifecycle_events"`
	Jobs            int64     `json:"jobs"`
	Projects        int64     `json:"projects"`
}

// DeleteProject deletes the project's contributions, campaigns, events and
// jobs, then the project itself, in one transaction. Children go first so the
// RESTRICT foreign keys are never violated; any failure rolls back everything.
// A DELETED event naming the actor is written last and outlives the subtree.
func (s *Service) DeleteProject(ctx context.Context, projectID uuid.UUID, actor string) (*DeleteResult, error) {
	actor = strings.TrimSpace(actor)
	if actor == "" {
		return nil, ErrActorRequired
	}
	res := &DeleteResult{ProjectID: projectID}
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var project domain.Project
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("id = ?", projectID).First(&project).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrProjectNotFound
			}
			return err
		}

		var campaignIDs []uuid.UUID
		if err := tx.Model(&domain.FundingCampaign{}).Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("project_id = ?", projectID).Pluck("id", &campaignIDs).Error; err != nil {
			return err
		}
		var jobIDs []uuid.UUID
		if err := tx.Model(&domain.JobListing{}).Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("project_id = ?", projectID).Pluck("id", &jobIDs).Error; err != nil {
			return err
		}

		if len(campaignIDs) > 0 {
			del := tx.Where("project_funding_id IN ?", campaignIDs).Delete(&domain.Contribution{})
			if del.Error != nil {
				return del.Error
			}
			res.Contributions = del.RowsAffected

			del = tx.Where("id IN ?", campaignIDs).Delete(&domain.FundingCampaign{})
			if del.Error != nil {
				return del.Error
			}
			res.Campaigns = del.RowsAffected
		}

		subjects := append(append([]uuid.UUID{projectID}, campaignIDs...), jobIDs...)
		del := tx.Where("subject_id IN ?", subjects).Delete(&domain.LifecycleEvent{})
		if del.Error != nil {
			return del.Error
		}
		res.LifecycleEvents = del.RowsAffected

		if len(jobIDs) > 0 {
			del = tx.Where("id IN ?", jobIDs).Delete(&domain.JobListing{})
			if del.Error != nil {
				return del.Error
			}
			res.Jobs = del.RowsAffected
		}

		del = tx.Delete(&project)
		if del.Error != nil {
			return del.Error
		}
		res.Projects = del.RowsAffected

		return tx.Create(domain.NewLifecycleEvent(domain.SubjectProject, projectID, domain.EventDeleted, actor, map[string]interface{}{
			"title":            project.Title,
			"owner_identity":   project.OwnerIdentity,
			"status":           project.Status,
			"campaign_ids":     campaignIDs,
			"job_ids":          jobIDs,
			"contributions":    res.Contributions,
			"lifecycle_events": res.LifecycleEvents,
		})).Error
	})
	if err != nil {
		return nil, apperr.FromStorage(err)
	}
	log.Warn().Str("project_id", projectID.String()).Str("actor", actor).
		Int64("contributions", res.Contributions).Int64("campaigns", res.Campaigns).
		Int64("jobs", res.Jobs).Int64("events", res.LifecycleEvents).
		Msg("cascade: project deleted")
	return res, nil
}

// OrphanReport counts rows whose parent row no longer exists.
type OrphanReport struct {
	Jobs          int64 `json:"jobs"`
	Campaigns     int64 `json:"campaigns"`
	Contributions int64 `json:"contributions"`
}

// Clean reports whether no orphans were found.
func (r OrphanReport) Clean() bool {
	return r.Jobs == 0 && r.Campaigns == 0 && r.Contributions == 0
}

// Orphans scans the dependent tables for dangling parent references.
func (s *Service) Orphans(ctx context.Context) (*OrphanReport, error) {
	db := s.DB.WithContext(ctx)
	report := &OrphanReport{}
	if err := db.Model(&domain.JobListing{}).
		Where("project_id IS NOT NULL AND NOT EXISTS (SELECT 1 FROM projects p WHERE p.id = job_listings.project_id)").
		Count(&report.Jobs).Error; err != nil {
		return nil, apperr.FromStorage(err)
	}
	if err := db.Model(&domain.FundingCampaign{}).
		Where("NOT EXISTS (SELECT 1 FROM projects p WHERE p.id = project_funding.project_id)").
		Count(&report.Campaigns).Error; err != nil {
		return nil, apperr.FromStorage(err)
	}
	if err := db.Model(&domain.Contribution{}).
		Where("NOT EXISTS (SELECT 1 FROM project_funding f WHERE f.id = funding_contributions.project_funding_id)").
		Count(&report.Contributions).Error; err != nil {
		return nil, apperr.FromStorage(err)
	}
	if !report.Clean() {
		log.Warn().Int64("jobs", report.Jobs).Int64("campaigns", report.Campaigns).
			Int64("contributions", report.Contributions).Msg("cascade: orphaned rows found")
	}
	return report, nil
}
