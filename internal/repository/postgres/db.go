package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/lib/pq"

	"communityevents/internal/domain"
)

// querier is satisfied by both *sql.DB and *sql.Tx so repositories run inside or outside a transaction.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Postgres error codes the repositories classify.
const (
	codeUniqueViolation      = "23505"
	codeForeignKeyViolation  = "23503"
	codeInvalidTextRepr      = "22P02"
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
	codeLockNotAvailable     = "55P03"
	codeQueryCanceled        = "57014"
)

// Open connects to Postgres with the lib/pq driver and verifies the connection.
func Open(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return db, nil
}

// classifyError maps lock and serialization failures to domain.ErrTransactionConflict,
// dangling references to domain.ErrNotFound and malformed identifiers to domain.ErrInvalidInput.
// Other errors are returned unchanged.
func classifyError(err error) error {
	if err == nil {
		return nil
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case codeSerializationFailure, codeDeadlockDetected, codeLockNotAvailable, codeQueryCanceled:
			return fmt.Errorf("%w: %s", domain.ErrTransactionConflict, pqErr.Message)
		case codeForeignKeyViolation:
			return fmt.Errorf("%w: referenced %s does not exist", domain.ErrNotFound, referencedEntity(pqErr.Constraint))
		case codeInvalidTextRepr:
			return fmt.Errorf("%w: malformed identifier", domain.ErrInvalidInput)
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", domain.ErrTransactionConflict, err)
	}
	return err
}

// referencedEntity names the row a foreign key constraint points at.
func referencedEntity(constraint string) string {
	switch {
	case strings.Contains(constraint, "user_id"):
		return "user"
	case strings.Contains(constraint, "subgroup_id"):
		return "subgroup"
	case strings.Contains(constraint, "event_id"):
		return "event"
	}
	return "row"
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == codeUniqueViolation
}
