package repository

import (
	"errors"
	"fmt"

	"github.com/atinyakov/SiteKeeper/internal/models"
	"github.com/lib/pq"
)

// dbError wraps err with op and table and, for PostgreSQL errors, the
// matching models sentinel so callers can use errors.Is.
func dbError(op string, table models.Table, err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch {
		case pqErr.Code == "23505":
			return fmt.Errorf("%s %s: %w: %w", op, table, models.ErrDuplicate, err)
		case pqErr.Code == "23503":
			return fmt.Errorf("%s %s: %w: %w", op, table, models.ErrReference, err)
		case pqErr.Code.Class() == "22", pqErr.Code == "23502", pqErr.Code == "23514":
			return fmt.Errorf("%s %s: %w: %w", op, table, models.ErrInvalidValue, err)
		}
	}
	return fmt.Errorf("%s %s: %w", op, table, err)
}
