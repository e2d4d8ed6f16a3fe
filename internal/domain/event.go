package domain

import (
	"context"
	"time"
)

// EventState is the lifecycle state of an event.
type EventState string

const (
	EventStateActive    EventState = "vigente"
	EventStateElapsed   EventState = "transcurrido"
	EventStateCancelled EventState = "cancelado"
)

// Valid reports whether s is a known lifecycle state.
func (s EventState) Valid() bool {
	switch s {
	case EventStateActive, EventStateElapsed, EventStateCancelled:
		return true
	}
	return false
}

// CanTransitionTo reports whether the lifecycle allows moving from s to next.
// Only vigente has outgoing transitions.
func (s EventState) CanTransitionTo(next EventState) bool {
	if s != EventStateActive {
		return false
	}
	return next == EventStateElapsed || next == EventStateCancelled
}

// EventCategory classifies an event.
type EventCategory string

const (
	EventCategoryOuting EventCategory = "salida"
	EventCategoryNormal EventCategory = "normal"
	EventCategoryPaid   EventCategory = "pago"
)

// Valid reports whether c is a known category.
func (c EventCategory) Valid() bool {
	switch c {
	case EventCategoryOuting, EventCategoryNormal, EventCategoryPaid:
		return true
	}
	return false
}

// Event represents a community event with titular and alternate capacity.
// swagger:model Event
type Event struct {
	ID                  string        `json:"id"`
	Name                string        `json:"name"`
	Date                time.Time     `json:"date"`
	Description         *string       `json:"description,omitempty"`
	Location            string        `json:"location"`
	Capacity            int           `json:"capacity"`
	AlternateCapacity   int           `json:"alternate_capacity"`
	InscriptionDeadline *time.Time    `json:"inscription_deadline,omitempty"`
	WithdrawalDeadline  *time.Time    `json:"withdrawal_deadline,omitempty"`
	State               EventState    `json:"state"`
	Category            EventCategory `json:"category"`
	Cost                *float64      `json:"cost,omitempty"`
	DestinationAccount  *string       `json:"destination_account,omitempty"`
	CreatedAt           time.Time     `json:"created_at"`
	UpdatedAt           time.Time     `json:"updated_at"`
}

// InscriptionOpen reports whether now is at or before the inscription deadline.
// An event without a deadline is always open.
func (e *Event) InscriptionOpen(now time.Time) bool {
	return e.InscriptionDeadline == nil || !now.After(*e.InscriptionDeadline)
}

// WithdrawalOpen reports whether now is at or before the withdrawal deadline.
func (e *Event) WithdrawalOpen(now time.Time) bool {
	return e.WithdrawalDeadline == nil || !now.After(*e.WithdrawalDeadline)
}

// EventSummary is a listed event with the availability of all its pools combined.
// For an event split into subgroups the capacity is the current sum across subgroups.
// swagger:model EventSummary
type EventSummary struct {
	Event        *Event         `json:"event"`
	Availability *CapacityStats `json:"availability"`
}

// SubgroupCapacity is the capacity an event delegates to one subgroup.
// swagger:model SubgroupCapacity
type SubgroupCapacity struct {
	EventID           string `json:"event_id"`
	SubgroupID        string `json:"subgroup_id"`
	Capacity          int    `json:"capacity"`
	AlternateCapacity int    `json:"alternate_capacity"`
}

// EventUpdate carries a partial update of an event. Nil fields are left unchanged.
type EventUpdate struct {
	Date                *time.Time
	Description         *string
	Location            *string
	Capacity            *int
	AlternateCapacity   *int
	InscriptionDeadline *time.Time
	WithdrawalDeadline  *time.Time
	Cost                *float64
	DestinationAccount  *string
}

// CapacityUpdate carries a partial update of a subgroup's capacity.
type CapacityUpdate struct {
	Capacity          *int
	AlternateCapacity *int
}

// EventRepository defines the interface for event storage
type EventRepository interface {
	Create(ctx context.Context, event *Event) error
	GetByID(ctx context.Context, id string) (*Event, error)
	// List returns events ordered by date, optionally filtered by state, with their occupancy.
	List(ctx context.Context, state *EventState, p PaginationParams) ([]*EventSummary, int, error)
	Update(ctx context.Context, event *Event) error
	UpdateState(ctx context.Context, id string, state EventState) error
	// MarkElapsed moves every vigente event dated before now to transcurrido and returns their IDs.
	MarkElapsed(ctx context.Context, now time.Time) ([]string, error)
	CreateSubgroupCapacity(ctx context.Context, sc *SubgroupCapacity) error
	GetSubgroupCapacity(ctx context.Context, eventID, subgroupID string) (*SubgroupCapacity, error)
	ListSubgroupCapacities(ctx context.Context, eventID string) ([]*SubgroupCapacity, error)
	UpdateSubgroupCapacity(ctx context.Context, sc *SubgroupCapacity) error
}

// EventService defines event lifecycle and capacity administration.
type EventService interface {
	CreateEvent(ctx context.Context, event *Event, subgroups []*SubgroupCapacity) error
	GetEvent(ctx context.Context, eventID string) (*Event, error)
	ListEvents(ctx context.Context, state *EventState, p PaginationParams) ([]*EventSummary, int, error)
	ListSubgroupCapacities(ctx context.Context, eventID string) ([]*SubgroupCapacity, error)
	// UpdateEvent applies changes and promotes alternates if titular capacity grew.
	UpdateEvent(ctx context.Context, eventID string, changes *EventUpdate) (*Event, []*Promotion, error)
	UpdateSubgroupCapacity(ctx context.Context, eventID, subgroupID string, changes *CapacityUpdate) (*SubgroupCapacity, []*Promotion, error)
	CancelEvent(ctx context.Context, eventID string) (*Event, error)
	MarkElapsed(ctx context.Context) (int, error)
}
