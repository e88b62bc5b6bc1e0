package db

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
)

// Not found Error
type NotFoundError struct {
	Key     string
	Message string
}

func (e *NotFoundError) Error() string {
	return e.Message
}

func IsNotFoundError(err error) bool {
	var notFound *NotFoundError
	return errors.As(err, &notFound)
}

// CursorRegressionError is returned when a caller tries to move the ingestion
// cursor behind its current position.
type CursorRegressionError struct {
	Current   uint32
	Requested uint32
}

func (e *CursorRegressionError) Error() string {
	return fmt.Sprintf("cursor regression: current sequence %d, requested %d", e.Current, e.Requested)
}

func IsCursorRegressionError(err error) bool {
	var regression *CursorRegressionError
	return errors.As(err, &regression)
}

// Error code references: https://www.postgresql.org/docs/current/errcodes-appendix.html
const (
	serializationFailure = "40001"
	deadlockDetected     = "40P01"
	tooManyConnections   = "53300"
	adminShutdown        = "57P01"
	crashShutdown        = "57P02"
	cannotConnectNow     = "57P03"
	connectionException  = "08"
)

// IsTransientError reports whether err is a network, timeout, conflict or
// server availability failure. Constraint violations, syntax errors and
// other deterministic failures are not transient.
func IsTransientError(err error) bool {
	if err == nil {
		return false
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case serializationFailure, deadlockDetected, tooManyConnections,
			adminShutdown, crashShutdown, cannotConnectNow:
			return true
		}
		return strings.HasPrefix(pgErr.Code, connectionException)
	}

	if pgconn.Timeout(err) || pgconn.SafeToRetry(err) {
		return true
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}

	var netErr net.Error
	return errors.As(err, &netErr)
}
