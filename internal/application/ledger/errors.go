package ledger

import "boneboard-backend/internal/pkg/apperr"

var (
	ErrInvalidAmount         = apperr.Validation("Contribution amount must be greater than zero")
	ErrCurrencyMismatch      = apperr.Validation("Contribution currency does not match the campaign currency")
	ErrTxReferenceRequired   = apperr.Validation("Transaction hash is required")
	ErrContributorRequired   = apperr.Validation("Contributor wallet is required")
	ErrActorRequired         = apperr.Validation("Actor is required")
	ErrCampaignNotFound      = apperr.NotFound("Funding project not found")
	ErrCampaignClosed        = apperr.Conflict("Funding campaign is closed")
	ErrDuplicateContribution = apperr.Conflict("Contribution already recorded for this transaction")
	ErrIntegrityViolation    = apperr.Integrity("Campaign funding total does not match its contributions")
)
