package pricing

import "boneboard-backend/internal/pkg/apperr"

var (
	ErrInvalidDuration  = apperr.Validation("Listing duration must be at least one month")
	ErrInvalidCurrency  = apperr.Validation("Currency not supported for this listing kind")
	ErrInvalidKind      = apperr.Validation("Unknown listing kind")
	ErrInvalidRateTable = apperr.Validation("Invalid rate table")
)
