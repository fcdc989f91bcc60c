package database

import (
	"time"

	"gorm.io/gorm"
)

// Clock overrides the storage clock. The zero value uses TxNow.
type Clock func() time.Time

// Now returns the instant a transaction should use for every comparison it makes.
func (c Clock) Now(tx *gorm.DB) (time.Time, error) {
	if c != nil {
		return c().UTC().Truncate(time.Microsecond), nil
	}
	return TxNow(tx)
}

// TxNow returns now() on Postgres, which is fixed at transaction start, and the
// process clock elsewhere. The result is always UTC.
func TxNow(tx *gorm.DB) (time.Time, error) {
	if IsPostgres(tx) {
		var now time.Time
		if err := tx.Raw("SELECT now()").Row().Scan(&now); err != nil {
			return time.Time{}, err
		}
		return now.UTC(), nil
	}
	return time.Now().UTC().Truncate(time.Microsecond), nil
}
