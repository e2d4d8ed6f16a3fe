package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"communityevents/internal/domain"
)

const enrollmentColumns = `id, event_id, user_id, subgroup_id, enrolled_at, is_alternate, alternate_order,
		promoted_at, residence, role, first_time, career, career_year, sender_name`

// scopeFilter matches one capacity pool; a NULL subgroup is the event-level pool.
const scopeFilter = `event_id = $1 AND subgroup_id IS NOT DISTINCT FROM $2`

type enrollmentRepository struct {
	DB querier
}

func NewEnrollmentRepository(db *sql.DB) domain.EnrollmentRepository {
	return &enrollmentRepository{
		DB: db,
	}
}

func scanEnrollment(row rowScanner) (*domain.Enrollment, error) {
	e := &domain.Enrollment{}
	var subgroupNull, careerNull, senderNull sql.NullString
	var orderNull, yearNull sql.NullInt64
	var promotedNull sql.NullTime
	err := row.Scan(
		&e.ID, &e.EventID, &e.UserID, &subgroupNull, &e.EnrolledAt, &e.IsAlternate, &orderNull,
		&promotedNull, &e.Residence, &e.Role, &e.FirstTime, &careerNull, &yearNull, &senderNull,
	)
	if err != nil {
		return nil, err
	}
	if subgroupNull.Valid {
		e.SubgroupID = &subgroupNull.String
	}
	if orderNull.Valid {
		o := int(orderNull.Int64)
		e.AlternateOrder = &o
	}
	if promotedNull.Valid {
		e.PromotedAt = &promotedNull.Time
	}
	if careerNull.Valid {
		e.Career = &careerNull.String
	}
	if yearNull.Valid {
		y := int(yearNull.Int64)
		e.CareerYear = &y
	}
	if senderNull.Valid {
		e.SenderName = &senderNull.String
	}
	return e, nil
}

func (r *enrollmentRepository) list(ctx context.Context, query string, args ...any) ([]*domain.Enrollment, error) {
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, classifyError(err)
	}
	defer rows.Close()
	out := make([]*domain.Enrollment, 0)
	for rows.Next() {
		e, err := scanEnrollment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (r *enrollmentRepository) Create(ctx context.Context, e *domain.Enrollment) error {
	query := `
		INSERT INTO enrollments (event_id, user_id, subgroup_id, enrolled_at, is_alternate, alternate_order,
			residence, role, first_time, career, career_year, sender_name)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING id
	`
	err := r.DB.QueryRowContext(ctx, query,
		e.EventID, e.UserID, e.SubgroupID, e.EnrolledAt, e.IsAlternate, e.AlternateOrder,
		e.Residence, e.Role, e.FirstTime, e.Career, e.CareerYear, e.SenderName,
	).Scan(&e.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrAlreadyEnrolled
		}
		return classifyError(err)
	}
	return nil
}

func (r *enrollmentRepository) GetByEventAndUser(ctx context.Context, eventID, userID string) (*domain.Enrollment, error) {
	query := `SELECT ` + enrollmentColumns + ` FROM enrollments WHERE event_id = $1 AND user_id = $2`
	e, err := scanEnrollment(r.DB.QueryRowContext(ctx, query, eventID, userID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, classifyError(err)
	}
	return e, nil
}

func (r *enrollmentRepository) Delete(ctx context.Context, id string) error {
	result, err := r.DB.ExecContext(ctx, `DELETE FROM enrollments WHERE id = $1`, id)
	if err != nil {
		return classifyError(err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *enrollmentRepository) CountByScope(ctx context.Context, scope domain.Scope) (int, int, error) {
	query := `
		SELECT
			COUNT(*) FILTER (WHERE NOT is_alternate),
			COUNT(*) FILTER (WHERE is_alternate)
		FROM enrollments
		WHERE ` + scopeFilter
	var titulars, alternates int
	if err := r.DB.QueryRowContext(ctx, query, scope.EventID, scope.SubgroupID).Scan(&titulars, &alternates); err != nil {
		return 0, 0, classifyError(err)
	}
	return titulars, alternates, nil
}

func (r *enrollmentRepository) NextAlternateOrder(ctx context.Context, scope domain.Scope) (int, error) {
	query := `
		SELECT COALESCE(MAX(alternate_order), 0) + 1
		FROM enrollments
		WHERE ` + scopeFilter + ` AND is_alternate`
	var next int
	if err := r.DB.QueryRowContext(ctx, query, scope.EventID, scope.SubgroupID).Scan(&next); err != nil {
		return 0, classifyError(err)
	}
	return next, nil
}

func (r *enrollmentRepository) FirstAlternate(ctx context.Context, scope domain.Scope) (*domain.Enrollment, error) {
	query := `SELECT ` + enrollmentColumns + ` FROM enrollments
		WHERE ` + scopeFilter + ` AND is_alternate
		ORDER BY alternate_order ASC
		LIMIT 1`
	e, err := scanEnrollment(r.DB.QueryRowContext(ctx, query, scope.EventID, scope.SubgroupID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, classifyError(err)
	}
	return e, nil
}

func (r *enrollmentRepository) Promote(ctx context.Context, id string, at time.Time) error {
	query := `
		UPDATE enrollments
		SET is_alternate = FALSE, alternate_order = NULL, promoted_at = $1
		WHERE id = $2 AND is_alternate
	`
	result, err := r.DB.ExecContext(ctx, query, at, id)
	if err != nil {
		return classifyError(err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *enrollmentRepository) ShiftAlternatesAfter(ctx context.Context, scope domain.Scope, order int) error {
	query := `
		UPDATE enrollments
		SET alternate_order = alternate_order - 1
		WHERE ` + scopeFilter + ` AND is_alternate AND alternate_order > $3`
	if _, err := r.DB.ExecContext(ctx, query, scope.EventID, scope.SubgroupID, order); err != nil {
		return classifyError(fmt.Errorf("renumber alternates: %w", err))
	}
	return nil
}

func (r *enrollmentRepository) ListAlternates(ctx context.Context, scope domain.Scope) ([]*domain.Enrollment, error) {
	query := `SELECT ` + enrollmentColumns + ` FROM enrollments
		WHERE ` + scopeFilter + ` AND is_alternate
		ORDER BY alternate_order ASC`
	return r.list(ctx, query, scope.EventID, scope.SubgroupID)
}

func (r *enrollmentRepository) ListTitulars(ctx context.Context, scope domain.Scope) ([]*domain.Enrollment, error) {
	query := `SELECT ` + enrollmentColumns + ` FROM enrollments
		WHERE ` + scopeFilter + ` AND NOT is_alternate
		ORDER BY enrolled_at ASC`
	return r.list(ctx, query, scope.EventID, scope.SubgroupID)
}

func (r *enrollmentRepository) ListByEvent(ctx context.Context, eventID string) ([]*domain.Enrollment, error) {
	query := `SELECT ` + enrollmentColumns + ` FROM enrollments
		WHERE event_id = $1
		ORDER BY enrolled_at ASC`
	return r.list(ctx, query, eventID)
}

func (r *enrollmentRepository) ListByUserID(ctx context.Context, userID string, p domain.PaginationParams) ([]*domain.Enrollment, int, error) {
	var total int
	if err := r.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM enrollments WHERE user_id = $1`, userID).Scan(&total); err != nil {
		return nil, 0, classifyError(err)
	}
	query := `SELECT ` + enrollmentColumns + ` FROM enrollments
		WHERE user_id = $1
		ORDER BY enrolled_at DESC`
	args := []any{userID}
	if limit := p.Limit(); limit > 0 {
		query += ` LIMIT $2 OFFSET $3`
		args = append(args, limit, p.Offset())
	}
	regs, err := r.list(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	return regs, total, nil
}
