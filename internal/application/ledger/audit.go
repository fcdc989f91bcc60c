package ledger

import (
	"context"
	"encoding/json"

	"boneboard-backend/internal/domain"
	"boneboard-backend/internal/pkg/apperr"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

func writeAudit(tx *gorm.DB, campaignID uuid.UUID, action, actor string, before, after map[string]interface{}) error {
	beforeBytes, _ := json.Marshal(before)
	afterBytes, _ := json.Marshal(after)
	return tx.Create(&domain.LedgerAudit{
		CampaignID: campaignID,
		Action:     action,
		Actor:      actor,
		Before:     datatypes.JSON(beforeBytes),
		After:      datatypes.JSON(afterBytes),
	}).Error
}

// AuditTrail returns the repair and purge history of a campaign, newest first.
func (s *Service) AuditTrail(ctx context.Context, campaignID uuid.UUID) ([]domain.LedgerAudit, error) {
	var rows []domain.LedgerAudit
	if err := s.DB.WithContext(ctx).Where("campaign_id = ?", campaignID).
		Order("created_at DESC").Find(&rows).Error; err != nil {
		return nil, apperr.FromStorage(err)
	}
	return rows, nil
}
