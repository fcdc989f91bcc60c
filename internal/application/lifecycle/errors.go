package lifecycle

import "boneboard-backend/internal/pkg/apperr"

var (
	ErrTitleRequired        = apperr.Validation("Title is required")
	ErrOwnerRequired        = apperr.Validation("Wallet address is required")
	ErrCompanyRequired      = apperr.Validation("Company is required")
	ErrTxReferenceRequired  = apperr.Validation("Transaction hash is required")
	ErrActorRequired        = apperr.Validation("Actor is required")
	ErrInvalidGoal          = apperr.Validation("Funding goal must be greater than zero")
	ErrInvalidDeadline      = apperr.Validation("Funding deadline must be in the future")
	ErrProjectNotFound      = apperr.NotFound("Project not found")
	ErrJobNotFound          = apperr.NotFound("Job listing not found")
	ErrInvalidTransition    = apperr.Conflict("Status transition not allowed")
	ErrPaymentAlreadyUsed   = apperr.Conflict("Payment already applied to this job")
	ErrProjectRejected      = apperr.Conflict("Project has been rejected")
	ErrActiveCampaignExists = apperr.Conflict("Project already has an active funding campaign")
)
