package lifecycle

import (
	"context"
	"time"

	"boneboard-backend/internal/domain"
	"boneboard-backend/internal/pkg/apperr"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SweepResult counts the rows a sweep changed.
type SweepResult struct {
	JobsExpired        int64     `json:"jobs_expired"`
	CampaignsExpired   int64     `json:"campaigns_expired"`
	CampaignsFinalized int64     `json:"campaigns_finalized"`
	RanAt              time.Time `json:"ran_at"`
}

// Sweep writes the time-derived statuses back to storage. Every update is
// conditional on the current row state, so running it again, or concurrently,
// changes nothing twice.
func (s *Service) Sweep(ctx context.Context) (*SweepResult, error) {
	res := &SweepResult{}
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now, err := s.Clock.Now(tx)
		if err != nil {
			return err
		}
		res.RanAt = now
		if res.JobsExpired, err = expireJobs(tx, now); err != nil {
			return err
		}
		res.CampaignsExpired, res.CampaignsFinalized, err = closeFinishedCampaigns(tx, now, uuid.Nil)
		return err
	})
	if err != nil {
		return nil, apperr.FromStorage(err)
	}
	log.Info().Int64("jobs_expired", res.JobsExpired).Int64("campaigns_expired", res.CampaignsExpired).
		Int64("campaigns_finalized", res.CampaignsFinalized).Msg("lifecycle: sweep complete")
	return res, nil
}

func expireJobs(tx *gorm.DB, now time.Time) (int64, error) {
	live := []domain.JobStatus{domain.JobPending, domain.JobConfirmed}
	var ids []uuid.UUID
	if err := tx.Model(&domain.JobListing{}).Clauses(skipLocked()).
		Where("status IN ? AND expires_at IS NOT NULL AND expires_at < ?", live, now).
		Pluck("id", &ids).Error; err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, nil
	}
	res := tx.Model(&domain.JobListing{}).
		Where("id IN ? AND status IN ? AND expires_at < ?", ids, live, now).
		Update("status", domain.JobExpired)
	if res.Error != nil {
		return 0, res.Error
	}
	for _, id := range ids {
		if err := tx.Create(domain.NewLifecycleEvent(domain.SubjectJob, id, domain.EventExpired, "", map[string]interface{}{
			"at": now,
		})).Error; err != nil {
			return 0, err
		}
	}
	return res.RowsAffected, nil
}

// skipLocked lets a second sweeper pass over rows the first one holds.
func skipLocked() clause.Locking {
	return clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}
}
