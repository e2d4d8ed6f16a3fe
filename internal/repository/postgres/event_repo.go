package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"communityevents/internal/domain"
)

const eventColumns = `id, name, date, description, location, capacity, alternate_capacity,
		inscription_deadline, withdrawal_deadline, state, category, cost, destination_account,
		created_at, updated_at`

// listedEventColumns qualifies eventColumns for the joined listing query.
const listedEventColumns = `e.id, e.name, e.date, e.description, e.location, e.capacity, e.alternate_capacity,
		e.inscription_deadline, e.withdrawal_deadline, e.state, e.category, e.cost, e.destination_account,
		e.created_at, e.updated_at`

type eventRepository struct {
	DB querier
}

func NewEventRepository(db *sql.DB) domain.EventRepository {
	return &eventRepository{
		DB: db,
	}
}

type rowScanner interface {
	Scan(dest ...any) error
}

// scannerFunc adapts a function to rowScanner, letting callers scan extra trailing columns.
type scannerFunc func(dest ...any) error

func (f scannerFunc) Scan(dest ...any) error { return f(dest...) }

func scanEvent(row rowScanner) (*domain.Event, error) {
	e := &domain.Event{}
	var descNull, accountNull sql.NullString
	var inscNull, withdrawNull sql.NullTime
	var costNull sql.NullFloat64
	var state, category string
	err := row.Scan(
		&e.ID, &e.Name, &e.Date, &descNull, &e.Location, &e.Capacity, &e.AlternateCapacity,
		&inscNull, &withdrawNull, &state, &category, &costNull, &accountNull,
		&e.CreatedAt, &e.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	e.State = domain.EventState(state)
	e.Category = domain.EventCategory(category)
	if descNull.Valid {
		e.Description = &descNull.String
	}
	if accountNull.Valid {
		e.DestinationAccount = &accountNull.String
	}
	if inscNull.Valid {
		e.InscriptionDeadline = &inscNull.Time
	}
	if withdrawNull.Valid {
		e.WithdrawalDeadline = &withdrawNull.Time
	}
	if costNull.Valid {
		e.Cost = &costNull.Float64
	}
	return e, nil
}

func (r *eventRepository) Create(ctx context.Context, e *domain.Event) error {
	query := `
		INSERT INTO events (name, date, description, location, capacity, alternate_capacity,
			inscription_deadline, withdrawal_deadline, state, category, cost, destination_account,
			created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		RETURNING id
	`
	return r.DB.QueryRowContext(ctx, query,
		e.Name, e.Date, e.Description, e.Location, e.Capacity, e.AlternateCapacity,
		e.InscriptionDeadline, e.WithdrawalDeadline, string(e.State), string(e.Category), e.Cost, e.DestinationAccount,
		e.CreatedAt, e.UpdatedAt,
	).Scan(&e.ID)
}

func (r *eventRepository) GetByID(ctx context.Context, id string) (*domain.Event, error) {
	query := `SELECT ` + eventColumns + ` FROM events WHERE id = $1`
	e, err := scanEvent(r.DB.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, classifyError(err)
	}
	return e, nil
}

func (r *eventRepository) List(ctx context.Context, state *domain.EventState, p domain.PaginationParams) ([]*domain.EventSummary, int, error) {
	where := ""
	args := []any{}
	if state != nil {
		where = ` WHERE e.state = $1`
		args = append(args, string(*state))
	}

	var total int
	if err := r.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM events e`+where, args...).Scan(&total); err != nil {
		return nil, 0, classifyError(err)
	}

	query := `SELECT ` + listedEventColumns + `,
			COALESCE(sg.capacity, e.capacity), COALESCE(sg.alternate_capacity, e.alternate_capacity),
			COUNT(en.id) FILTER (WHERE NOT en.is_alternate),
			COUNT(en.id) FILTER (WHERE en.is_alternate)
		FROM events e
		LEFT JOIN (
			SELECT event_id, SUM(capacity) AS capacity, SUM(alternate_capacity) AS alternate_capacity
			FROM event_subgroups
			GROUP BY event_id
		) sg ON sg.event_id = e.id
		LEFT JOIN enrollments en ON en.event_id = e.id` + where + `
		GROUP BY e.id, sg.capacity, sg.alternate_capacity
		ORDER BY e.date, e.id`
	if limit := p.Limit(); limit > 0 {
		query += fmt.Sprintf(` LIMIT $%d OFFSET $%d`, len(args)+1, len(args)+2)
		args = append(args, limit, p.Offset())
	}

	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, classifyError(err)
	}
	defer rows.Close()
	out := make([]*domain.EventSummary, 0)
	for rows.Next() {
		var capacity, alternateCapacity, titulars, alternates int
		e, err := scanEvent(scannerFunc(func(dest ...any) error {
			return rows.Scan(append(dest, &capacity, &alternateCapacity, &titulars, &alternates)...)
		}))
		if err != nil {
			return nil, 0, err
		}
		out = append(out, &domain.EventSummary{
			Event:        e,
			Availability: domain.NewCapacityStats(capacity, alternateCapacity, titulars, alternates),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, 0, classifyError(err)
	}
	return out, total, nil
}

func (r *eventRepository) Update(ctx context.Context, e *domain.Event) error {
	query := `
		UPDATE events SET
			date = $1, description = $2, location = $3, capacity = $4, alternate_capacity = $5,
			inscription_deadline = $6, withdrawal_deadline = $7, cost = $8, destination_account = $9,
			updated_at = $10
		WHERE id = $11
	`
	result, err := r.DB.ExecContext(ctx, query,
		e.Date, e.Description, e.Location, e.Capacity, e.AlternateCapacity,
		e.InscriptionDeadline, e.WithdrawalDeadline, e.Cost, e.DestinationAccount,
		e.UpdatedAt, e.ID,
	)
	if err != nil {
		return classifyError(err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *eventRepository) UpdateState(ctx context.Context, id string, state domain.EventState) error {
	query := `UPDATE events SET state = $1, updated_at = NOW() WHERE id = $2`
	result, err := r.DB.ExecContext(ctx, query, string(state), id)
	if err != nil {
		return classifyError(err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *eventRepository) MarkElapsed(ctx context.Context, now time.Time) ([]string, error) {
	query := `
		UPDATE events SET state = $1, updated_at = $2
		WHERE state = $3 AND date < $2
		RETURNING id
	`
	rows, err := r.DB.QueryContext(ctx, query, string(domain.EventStateElapsed), now, string(domain.EventStateActive))
	if err != nil {
		return nil, classifyError(err)
	}
	defer rows.Close()
	ids := make([]string, 0)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *eventRepository) CreateSubgroupCapacity(ctx context.Context, sc *domain.SubgroupCapacity) error {
	query := `
		INSERT INTO event_subgroups (event_id, subgroup_id, capacity, alternate_capacity)
		VALUES ($1, $2, $3, $4)
	`
	_, err := r.DB.ExecContext(ctx, query, sc.EventID, sc.SubgroupID, sc.Capacity, sc.AlternateCapacity)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: subgroup %s listed twice", domain.ErrInvalidInput, sc.SubgroupID)
		}
		return classifyError(err)
	}
	return nil
}

func (r *eventRepository) GetSubgroupCapacity(ctx context.Context, eventID, subgroupID string) (*domain.SubgroupCapacity, error) {
	query := `
		SELECT event_id, subgroup_id, capacity, alternate_capacity
		FROM event_subgroups
		WHERE event_id = $1 AND subgroup_id = $2
	`
	sc := &domain.SubgroupCapacity{}
	err := r.DB.QueryRowContext(ctx, query, eventID, subgroupID).
		Scan(&sc.EventID, &sc.SubgroupID, &sc.Capacity, &sc.AlternateCapacity)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrSubgroupNotFound
		}
		return nil, classifyError(err)
	}
	return sc, nil
}

func (r *eventRepository) ListSubgroupCapacities(ctx context.Context, eventID string) ([]*domain.SubgroupCapacity, error) {
	query := `
		SELECT event_id, subgroup_id, capacity, alternate_capacity
		FROM event_subgroups
		WHERE event_id = $1
		ORDER BY subgroup_id
	`
	rows, err := r.DB.QueryContext(ctx, query, eventID)
	if err != nil {
		return nil, classifyError(err)
	}
	defer rows.Close()
	out := make([]*domain.SubgroupCapacity, 0)
	for rows.Next() {
		sc := &domain.SubgroupCapacity{}
		if err := rows.Scan(&sc.EventID, &sc.SubgroupID, &sc.Capacity, &sc.AlternateCapacity); err != nil {
			return nil, err
		}
		out = append(out, sc)
	}
	return out, rows.Err()
}

func (r *eventRepository) UpdateSubgroupCapacity(ctx context.Context, sc *domain.SubgroupCapacity) error {
	query := `
		UPDATE event_subgroups SET capacity = $1, alternate_capacity = $2
		WHERE event_id = $3 AND subgroup_id = $4
	`
	result, err := r.DB.ExecContext(ctx, query, sc.Capacity, sc.AlternateCapacity, sc.EventID, sc.SubgroupID)
	if err != nil {
		return classifyError(err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return domain.ErrSubgroupNotFound
	}
	return nil
}
