package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"boneboard-backend/internal/application/pricing"
	"boneboard-backend/internal/domain"
	"boneboard-backend/internal/pkg/apperr"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// JobView is a job listing with its status reconciled against the clock.
type JobView struct {
	ID             uuid.UUID        `json:"id"`
	ProjectID      *uuid.UUID       `json:"project_id"`
	Title          string           `json:"title"`
	Company        string           `json:"company"`
	OwnerIdentity  string           `json:"owner_identity"`
	Status         domain.JobStatus `json:"status"`
	DurationMonths int              `json:"listing_duration"`
	Featured       bool             `json:"is_featured"`
	Fee            domain.Money     `json:"payment"`
	TxReference    *string          `json:"tx_hash"`
	ExpiresAt      *time.Time       `json:"expires_at"`
	CreatedAt      time.Time        `json:"created_at"`
	UpdatedAt      time.Time        `json:"updated_at"`
}

func newJobView(j *domain.JobListing, now time.Time) *JobView {
	return &JobView{
		ID:             j.ID,
		ProjectID:      j.ProjectID,
		Title:          j.Title,
		Company:        j.Company,
		OwnerIdentity:  j.OwnerIdentity,
		Status:         j.StatusAt(now),
		DurationMonths: j.DurationMonths,
		Featured:       j.Featured,
		Fee:            j.Fee(),
		TxReference:    j.TxReference,
		ExpiresAt:      j.ExpiresAt,
		CreatedAt:      j.CreatedAt,
		UpdatedAt:      j.UpdatedAt,
	}
}

type CreateJobInput struct {
	ProjectID      *uuid.UUID
	Title          string
	Company        string
	OwnerIdentity  string
	DurationMonths int
	Currency       domain.Currency
	Featured       bool
}

// CreateJob stores a pending job listing with its quoted fee. Payment is
// confirmed separately with ConfirmJob.
func (s *Service) CreateJob(ctx context.Context, in CreateJobInput) (*JobView, error) {
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return nil, ErrTitleRequired
	}
	company := strings.TrimSpace(in.Company)
	if company == "" {
		return nil, ErrCompanyRequired
	}
	owner := strings.TrimSpace(in.OwnerIdentity)
	if owner == "" {
		return nil, ErrOwnerRequired
	}
	fee, err := s.Pricing.Quote(pricing.KindJob, in.DurationMonths, in.Currency, in.Featured)
	if err != nil {
		return nil, err
	}

	var view *JobView
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now, err := s.Clock.Now(tx)
		if err != nil {
			return err
		}
		if in.ProjectID != nil {
			p, err := findProject(tx, *in.ProjectID, false)
			if err != nil {
				return err
			}
			if p.Status == domain.ProjectRejected {
				return ErrProjectRejected
			}
		}
		job := &domain.JobListing{
			ProjectID:      in.ProjectID,
			Title:          title,
			Company:        company,
			OwnerIdentity:  owner,
			Status:         domain.JobPending,
			DurationMonths: in.DurationMonths,
			Featured:       in.Featured,
			FeeAmount:      fee.Amount,
			FeeCurrency:    fee.Currency,
		}
		if err := tx.Create(job).Error; err != nil {
			return err
		}
		if err := tx.Create(domain.NewLifecycleEvent(domain.SubjectJob, job.ID, domain.EventCreated, owner, map[string]interface{}{
			"fee":      fee.FormatMajor(),
			"currency": fee.Currency,
			"months":   in.DurationMonths,
			"featured": in.Featured,
		})).Error; err != nil {
			return err
		}
		view = newJobView(job, now)
		return nil
	})
	if err != nil {
		return nil, apperr.FromStorage(err)
	}
	log.Info().Str("job_id", view.ID.String()).Str("fee", fee.String()).Msg("lifecycle: job created")
	return view, nil
}

// ConfirmJob records the payment reference of a pending job and starts its
// listing period.
func (s *Service) ConfirmJob(ctx context.Context, id uuid.UUID, txRef string) (*JobView, error) {
	txRef = strings.TrimSpace(txRef)
	if txRef == "" {
		return nil, ErrTxReferenceRequired
	}
	return s.transitionJob(ctx, id, "", txRef, domain.EventConfirmed, func(j *domain.JobListing, current domain.JobStatus, now time.Time) (map[string]interface{}, map[string]interface{}, error) {
		if current != domain.JobPending {
			return nil, nil, fmt.Errorf("%w: job %s -> %s", ErrInvalidTransition, current, domain.JobConfirmed)
		}
		expires := now.Add(time.Duration(j.DurationMonths) * listingMonth)
		return map[string]interface{}{
			"status":     domain.JobConfirmed,
			"tx_hash":    txRef,
			"expires_at": expires,
		}, map[string]interface{}{
			"tx_hash":    txRef,
			"expires_at": expires,
		}, nil
	})
}

// RenewResult is a job after a renewal or reactivation together with the fee
// charged for the added months.
type RenewResult struct {
	Job *JobView     `json:"job"`
	Fee domain.Money `json:"fee"`
}

// RenewJob extends a live confirmed job by months, counted from its current expiry.
func (s *Service) RenewJob(ctx context.Context, id uuid.UUID, months int, txRef string) (*RenewResult, error) {
	txRef = strings.TrimSpace(txRef)
	if txRef == "" {
		return nil, ErrTxReferenceRequired
	}
	var fee domain.Money
	view, err := s.transitionJob(ctx, id, "", txRef, domain.EventRenewed, func(j *domain.JobListing, current domain.JobStatus, now time.Time) (map[string]interface{}, map[string]interface{}, error) {
		if current != domain.JobConfirmed {
			return nil, nil, fmt.Errorf("%w: job %s -> %s", ErrInvalidTransition, current, domain.JobConfirmed)
		}
		var err error
		fee, err = s.Pricing.Quote(pricing.KindJob, months, j.FeeCurrency, j.Featured)
		if err != nil {
			return nil, nil, err
		}
		from := now
		if j.ExpiresAt != nil && j.ExpiresAt.After(now) {
			from = *j.ExpiresAt
		}
		expires := from.Add(time.Duration(months) * listingMonth)
		return map[string]interface{}{
			"tx_hash":          txRef,
			"expires_at":       expires,
			"listing_duration": j.DurationMonths + months,
		}, map[string]interface{}{
			"tx_hash":    txRef,
			"months":     months,
			"fee":        fee.FormatMajor(),
			"currency":   fee.Currency,
			"expires_at": expires,
		}, nil
	})
	if err != nil {
		return nil, err
	}
	return &RenewResult{Job: view, Fee: fee}, nil
}

// ReactivateJob brings an expired job back for months, counted from now.
func (s *Service) ReactivateJob(ctx context.Context, id uuid.UUID, months int, txRef string) (*RenewResult, error) {
	txRef = strings.TrimSpace(txRef)
	if txRef == "" {
		return nil, ErrTxReferenceRequired
	}
	var fee domain.Money
	view, err := s.transitionJob(ctx, id, "", txRef, domain.EventReactivated, func(j *domain.JobListing, current domain.JobStatus, now time.Time) (map[string]interface{}, map[string]interface{}, error) {
		if current != domain.JobExpired {
			return nil, nil, fmt.Errorf("%w: job %s -> %s", ErrInvalidTransition, current, domain.JobConfirmed)
		}
		var err error
		fee, err = s.Pricing.Quote(pricing.KindJob, months, j.FeeCurrency, j.Featured)
		if err != nil {
			return nil, nil, err
		}
		expires := now.Add(time.Duration(months) * listingMonth)
		return map[string]interface{}{
			"status":           domain.JobConfirmed,
			"tx_hash":          txRef,
			"expires_at":       expires,
			"listing_duration": months,
		}, map[string]interface{}{
			"tx_hash":    txRef,
			"months":     months,
			"fee":        fee.FormatMajor(),
			"currency":   fee.Currency,
			"expires_at": expires,
		}, nil
	})
	if err != nil {
		return nil, err
	}
	return &RenewResult{Job: view, Fee: fee}, nil
}

// RejectJob takes a pending or live job off the board for good.
func (s *Service) RejectJob(ctx context.Context, id uuid.UUID, actor string) (*JobView, error) {
	actor = strings.TrimSpace(actor)
	if actor == "" {
		return nil, ErrActorRequired
	}
	return s.transitionJob(ctx, id, actor, "", domain.EventRejected, func(j *domain.JobListing, current domain.JobStatus, now time.Time) (map[string]interface{}, map[string]interface{}, error) {
		if !domain.IsJobTransitionAllowed(current, domain.JobRejected) {
			return nil, nil, fmt.Errorf("%w: job %s -> %s", ErrInvalidTransition, current, domain.JobRejected)
		}
		return map[string]interface{}{"status": domain.JobRejected}, map[string]interface{}{"from": current}, nil
	})
}

type jobTransitionFunc func(j *domain.JobListing, current domain.JobStatus, now time.Time) (updates, eventData map[string]interface{}, err error)

// transitionJob locks the job, derives its status at the transaction's now,
// applies fn's updates and writes the event. A non-empty txRef that was
// already applied to the job fails with ErrPaymentAlreadyUsed.
func (s *Service) transitionJob(ctx context.Context, id uuid.UUID, actor, txRef, eventType string, fn jobTransitionFunc) (*JobView, error) {
	var view *JobView
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now, err := s.Clock.Now(tx)
		if err != nil {
			return err
		}
		job, err := findJob(tx, id, true)
		if err != nil {
			return err
		}
		if txRef != "" {
			used, err := paymentUsed(tx, job, txRef)
			if err != nil {
				return err
			}
			if used {
				return ErrPaymentAlreadyUsed
			}
		}
		current := job.StatusAt(now)
		updates, data, err := fn(job, current, now)
		if err != nil {
			return err
		}
		if err := tx.Model(job).Updates(updates).Error; err != nil {
			return err
		}
		data["from"] = current
		if err := tx.Create(domain.NewLifecycleEvent(domain.SubjectJob, job.ID, eventType, actor, data)).Error; err != nil {
			return err
		}
		job, err = findJob(tx, id, false)
		if err != nil {
			return err
		}
		view = newJobView(job, now)
		return nil
	})
	if err != nil {
		return nil, apperr.FromStorage(err)
	}
	log.Info().Str("job_id", id.String()).Str("event", eventType).Str("status", string(view.Status)).Msg("lifecycle: job transition")
	return view, nil
}

// paymentUsed reports whether txRef already confirmed, renewed or reactivated
// the job, either as its current reference or in an earlier event.
func paymentUsed(tx *gorm.DB, job *domain.JobListing, txRef string) (bool, error) {
	if job.TxReference != nil && *job.TxReference == txRef {
		return true, nil
	}
	var n int64
	err := tx.Model(&domain.LifecycleEvent{}).
		Where("subject_type = ? AND subject_id = ?", domain.SubjectJob, job.ID).
		Where("event_type IN ?", []string{domain.EventConfirmed, domain.EventRenewed, domain.EventReactivated}).
		Where(datatypes.JSONQuery("event_data").Equals(txRef, "tx_hash")).
		Count(&n).Error
	return n > 0, err
}

// GetJob reads a job; the returned status is never stale.
func (s *Service) GetJob(ctx context.Context, id uuid.UUID) (*JobView, error) {
	var view *JobView
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now, err := s.Clock.Now(tx)
		if err != nil {
			return err
		}
		job, err := findJob(tx, id, false)
		if err != nil {
			return err
		}
		view = newJobView(job, now)
		return nil
	})
	if err != nil {
		return nil, apperr.FromStorage(err)
	}
	return view, nil
}

// JobFilter narrows ListJobs. Status filters on the derived status.
type JobFilter struct {
	Status        domain.JobStatus
	ProjectID     *uuid.UUID
	OwnerIdentity string
	Limit         int
}

// ListJobs returns jobs newest first. A job whose expiry has passed is listed
// as expired even before the sweep has written that status.
func (s *Service) ListJobs(ctx context.Context, f JobFilter) ([]JobView, error) {
	var out []JobView
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now, err := s.Clock.Now(tx)
		if err != nil {
			return err
		}
		q := tx.Model(&domain.JobListing{})
		switch f.Status {
		case "":
		case domain.JobExpired:
			q = q.Where("(status = ? OR (status IN ? AND expires_at IS NOT NULL AND expires_at < ?))",
				domain.JobExpired, []domain.JobStatus{domain.JobPending, domain.JobConfirmed}, now)
		case domain.JobPending, domain.JobConfirmed:
			q = q.Where("status = ? AND (expires_at IS NULL OR expires_at >= ?)", f.Status, now)
		default:
			q = q.Where("status = ?", f.Status)
		}
		if f.ProjectID != nil {
			q = q.Where("project_id = ?", *f.ProjectID)
		}
		if f.OwnerIdentity != "" {
			q = q.Where("owner_identity = ?", f.OwnerIdentity)
		}
		if f.Limit > 0 {
			q = q.Limit(f.Limit)
		}
		var jobs []domain.JobListing
		if err := q.Order("created_at DESC").Find(&jobs).Error; err != nil {
			return err
		}
		out = make([]JobView, 0, len(jobs))
		for i := range jobs {
			out = append(out, *newJobView(&jobs[i], now))
		}
		return nil
	})
	if err != nil {
		return nil, apperr.FromStorage(err)
	}
	return out, nil
}

func findJob(tx *gorm.DB, id uuid.UUID, lock bool) (*domain.JobListing, error) {
	if lock {
		tx = tx.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var j domain.JobListing
	if err := tx.Where("id = ?", id).First(&j).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrJobNotFound
		}
		return nil, err
	}
	return &j, nil
}
