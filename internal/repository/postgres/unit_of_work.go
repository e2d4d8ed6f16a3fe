package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"communityevents/internal/domain"
)

type unitOfWork struct {
	DB          *sql.DB
	lockTimeout time.Duration
}

// NewUnitOfWork returns a UnitOfWork that serializes mutations of one capacity pool by
// row-locking the pool's capacity row. The event row is locked FOR UPDATE for event-level
// scopes; for subgroup scopes the event row is locked FOR SHARE (so lifecycle changes still
// conflict) and the subgroup capacity row FOR UPDATE. A scope with an empty EventID opens a
// transaction without taking any lock; event creation uses it.
func NewUnitOfWork(db *sql.DB, lockTimeout time.Duration) domain.UnitOfWork {
	return &unitOfWork{DB: db, lockTimeout: lockTimeout}
}

type pgTx struct {
	events      domain.EventRepository
	enrollments domain.EnrollmentRepository
}

func (t *pgTx) Events() domain.EventRepository           { return t.events }
func (t *pgTx) Enrollments() domain.EnrollmentRepository { return t.enrollments }

func (u *unitOfWork) WithTransaction(ctx context.Context, scope domain.Scope, fn func(tx domain.Tx) error) (err error) {
	tx, err := u.DB.BeginTx(ctx, nil)
	if err != nil {
		return classifyError(fmt.Errorf("begin transaction: %w", err))
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if u.lockTimeout > 0 {
		// SET LOCAL does not accept bind parameters.
		stmt := fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", u.lockTimeout.Milliseconds())
		if _, err = tx.ExecContext(ctx, stmt); err != nil {
			return classifyError(fmt.Errorf("set lock timeout: %w", err))
		}
	}

	if err = lockScope(ctx, tx, scope); err != nil {
		return err
	}

	if err = fn(&pgTx{
		events:      &eventRepository{DB: tx},
		enrollments: &enrollmentRepository{DB: tx},
	}); err != nil {
		return err
	}

	if err = tx.Commit(); err != nil {
		return classifyError(fmt.Errorf("commit: %w", err))
	}
	return nil
}

func lockScope(ctx context.Context, tx *sql.Tx, scope domain.Scope) error {
	if scope.EventID == "" {
		return nil
	}
	var id string
	if scope.SubgroupID == nil {
		err := tx.QueryRowContext(ctx, `SELECT id FROM events WHERE id = $1 FOR UPDATE`, scope.EventID).Scan(&id)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return domain.ErrEventNotFound
			}
			return classifyError(fmt.Errorf("lock event: %w", err))
		}
		return nil
	}

	err := tx.QueryRowContext(ctx, `SELECT id FROM events WHERE id = $1 FOR SHARE`, scope.EventID).Scan(&id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ErrEventNotFound
		}
		return classifyError(fmt.Errorf("lock event: %w", err))
	}
	err = tx.QueryRowContext(ctx, `
		SELECT subgroup_id FROM event_subgroups
		WHERE event_id = $1 AND subgroup_id = $2
		FOR UPDATE
	`, scope.EventID, *scope.SubgroupID).Scan(&id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ErrSubgroupNotFound
		}
		return classifyError(fmt.Errorf("lock subgroup: %w", err))
	}
	return nil
}
