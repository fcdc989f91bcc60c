// Package lifecycle moves projects, job listings and funding campaigns through
// their states, including time-based expiry.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"boneboard-backend/internal/application/pricing"
	"boneboard-backend/internal/domain"
	"boneboard-backend/internal/infrastructure/database"
	"boneboard-backend/internal/pkg/apperr"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// listingMonth is the length of one paid listing month.
const listingMonth = 30 * 24 * time.Hour

type Service struct {
	DB      *gorm.DB
	Pricing *pricing.Engine
	Clock   database.Clock
}

type CreateProjectInput struct {
	Title         string
	OwnerIdentity string
	ListingMonths int
	Currency      domain.Currency
	Featured      bool
}

// CreateProject stores a pending project together with its quoted listing fee.
func (s *Service) CreateProject(ctx context.Context, in CreateProjectInput) (*domain.Project, error) {
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return nil, ErrTitleRequired
	}
	owner := strings.TrimSpace(in.OwnerIdentity)
	if owner == "" {
		return nil, ErrOwnerRequired
	}
	fee, err := s.Pricing.Quote(pricing.KindProject, in.ListingMonths, in.Currency, in.Featured)
	if err != nil {
		return nil, err
	}

	project := &domain.Project{
		Title:         title,
		OwnerIdentity: owner,
		Status:        domain.ProjectPending,
		ListingMonths: in.ListingMonths,
		Featured:      in.Featured,
		ListingFee:    fee.Amount,
		ListingFeeCur: fee.Currency,
	}
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(project).Error; err != nil {
			return err
		}
		return tx.Create(domain.NewLifecycleEvent(domain.SubjectProject, project.ID, domain.EventCreated, owner, map[string]interface{}{
			"listing_fee": fee.FormatMajor(),
			"currency":    fee.Currency,
			"months":      in.ListingMonths,
			"featured":    in.Featured,
		})).Error
	})
	if err != nil {
		return nil, apperr.FromStorage(err)
	}
	log.Info().Str("project_id", project.ID.String()).Str("fee", fee.String()).Msg("lifecycle: project created")
	return project, nil
}

// ProjectView is a project as returned to callers, with its fee as Money.
type ProjectView struct {
	ID            uuid.UUID            `json:"id"`
	Title         string               `json:"title"`
	OwnerIdentity string               `json:"owner_identity"`
	Status        domain.ProjectStatus `json:"status"`
	VerifiedBy    *string              `json:"verified_by"`
	VerifiedAt    *time.Time           `json:"verified_at"`
	ListingMonths int                  `json:"listing_months"`
	Featured      bool                 `json:"is_featured"`
	ListingFee    domain.Money         `json:"listing_fee"`
	CreatedAt     time.Time            `json:"created_at"`
	UpdatedAt     time.Time            `json:"updated_at"`
}

func NewProjectView(p *domain.Project) *ProjectView {
	return &ProjectView{
		ID:            p.ID,
		Title:         p.Title,
		OwnerIdentity: p.OwnerIdentity,
		Status:        p.Status,
		VerifiedBy:    p.VerifiedBy,
		VerifiedAt:    p.VerifiedAt,
		ListingMonths: p.ListingMonths,
		Featured:      p.Featured,
		ListingFee:    p.Fee(),
		CreatedAt:     p.CreatedAt,
		UpdatedAt:     p.UpdatedAt,
	}
}

// GetProject reads one project.
func (s *Service) GetProject(ctx context.Context, id uuid.UUID) (*domain.Project, error) {
	p, err := findProject(s.DB.WithContext(ctx), id, false)
	if err != nil {
		return nil, apperr.FromStorage(err)
	}
	return p, nil
}

// VerifyProject moves a pending project to verified.
func (s *Service) VerifyProject(ctx context.Context, id uuid.UUID, actor string) (*domain.Project, error) {
	return s.reviewProject(ctx, id, actor, domain.ProjectVerified, domain.EventVerified)
}

// RejectProject moves a pending or verified project to rejected.
func (s *Service) RejectProject(ctx context.Context, id uuid.UUID, actor string) (*domain.Project, error) {
	return s.reviewProject(ctx, id, actor, domain.ProjectRejected, domain.EventRejected)
}

func (s *Service) reviewProject(ctx context.Context, id uuid.UUID, actor string, to domain.ProjectStatus, eventType string) (*domain.Project, error) {
	actor = strings.TrimSpace(actor)
	if actor == "" {
		return nil, ErrActorRequired
	}
	var project *domain.Project
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now, err := s.Clock.Now(tx)
		if err != nil {
			return err
		}
		p, err := findProject(tx, id, true)
		if err != nil {
			return err
		}
		from := p.Status
		allowed := from == domain.ProjectPending || (to == domain.ProjectRejected && from == domain.ProjectVerified)
		if !allowed {
			return fmt.Errorf("%w: project %s -> %s", ErrInvalidTransition, from, to)
		}
		updates := map[string]interface{}{"status": to}
		if to == domain.ProjectVerified {
			updates["verified_by"] = actor
			updates["verified_at"] = now
		}
		if err := tx.Model(p).Updates(updates).Error; err != nil {
			return err
		}
		if err := tx.Create(domain.NewLifecycleEvent(domain.SubjectProject, p.ID, eventType, actor, map[string]interface{}{
			"from": from,
			"to":   to,
		})).Error; err != nil {
			return err
		}
		project, err = findProject(tx, id, false)
		return err
	})
	if err != nil {
		return nil, apperr.FromStorage(err)
	}
	log.Info().Str("project_id", id.String()).Str("status", string(to)).Str("actor", actor).Msg("lifecycle: project reviewed")
	return project, nil
}

func findProject(tx *gorm.DB, id uuid.UUID, lock bool) (*domain.Project, error) {
	if lock {
		tx = tx.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var p domain.Project
	if err := tx.Where("id = ?", id).First(&p).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrProjectNotFound
		}
		return nil, err
	}
	return &p, nil
}

// monthsUntil rounds the span up to whole listing months, minimum one.
func monthsUntil(now, deadline time.Time) int {
	span := deadline.Sub(now)
	months := int(span / listingMonth)
	if span%listingMonth != 0 {
		months++
	}
	if months < 1 {
		months = 1
	}
	return months
}
