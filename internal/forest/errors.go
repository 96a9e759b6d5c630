package forest

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/EmpoweredVote/forestwatch/internal/apperrors"
	"github.com/jackc/pgx/v5/pgconn"
)

// Postgres SQLSTATE codes the store reacts to.
const (
	pgLockNotAvailable = "55P03"
	pgDeadlockDetected = "40P01"
	pgQueryCanceled    = "57014"
	pgAdminShutdown    = "57P01"
	pgCannotConnectNow = "57P03"
)

// classify maps driver errors onto the error taxonomy. Errors that already carry a kind pass
// through unchanged.
func classify(err error, op string) error {
	if err == nil {
		return nil
	}
	var ae *apperrors.Error
	if errors.As(err, &ae) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return apperrors.Transient(err, "%s timed out", op)
	}
	if errors.Is(err, driver.ErrBadConn) {
		return apperrors.Transient(err, "%s: database connection lost", op)
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case pgErr.Code == pgLockNotAvailable, pgErr.Code == pgDeadlockDetected:
			return apperrors.Conflict(err, "%s: row is locked by a concurrent change", op)
		case pgErr.Code == pgQueryCanceled:
			return apperrors.Transient(err, "%s exceeded the statement timeout", op)
		case pgErr.Code == pgAdminShutdown, pgErr.Code == pgCannotConnectNow, strings.HasPrefix(pgErr.Code, "08"):
			return apperrors.Transient(err, "%s: database unavailable", op)
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return apperrors.Transient(err, "%s: network error", op)
	}
	if pgconn.Timeout(err) {
		return apperrors.Transient(err, "%s timed out", op)
	}
	return fmt.Errorf("%s: %w", op, err)
}
