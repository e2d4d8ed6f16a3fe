package domain

import (
	"context"
	"time"
)

// Scope identifies one capacity pool: an event, or one subgroup of an event.
type Scope struct {
	EventID    string
	SubgroupID *string
}

// EventScope returns the event-level scope for eventID.
func EventScope(eventID string) Scope {
	return Scope{EventID: eventID}
}

// SubgroupScope returns the scope for a subgroup pool. An empty subgroupID yields the event scope.
func SubgroupScope(eventID, subgroupID string) Scope {
	if subgroupID == "" {
		return Scope{EventID: eventID}
	}
	return Scope{EventID: eventID, SubgroupID: &subgroupID}
}

// Key returns a string usable as a lock or map key for the scope.
func (s Scope) Key() string {
	if s.SubgroupID == nil {
		return s.EventID
	}
	return s.EventID + "/" + *s.SubgroupID
}

// Contains reports whether the enrollment belongs to this capacity pool.
func (s Scope) Contains(e *Enrollment) bool {
	if e.EventID != s.EventID {
		return false
	}
	if s.SubgroupID == nil {
		return e.SubgroupID == nil
	}
	return e.SubgroupID != nil && *e.SubgroupID == *s.SubgroupID
}

// RegistrationDetails is the free-form metadata a member provides when enrolling.
// swagger:model RegistrationDetails
type RegistrationDetails struct {
	Residence  string  `json:"residence"`
	Role       string  `json:"role"`
	FirstTime  bool    `json:"first_time"`
	Career     *string `json:"career,omitempty"`
	CareerYear *int    `json:"career_year,omitempty"`
	SenderName *string `json:"sender_name,omitempty"`
}

// Enrollment is a user's seat (titular) or waitlist position (alternate) in an event.
// AlternateOrder is set iff IsAlternate is true.
// swagger:model Enrollment
type Enrollment struct {
	ID             string     `json:"id"`
	EventID        string     `json:"event_id"`
	UserID         string     `json:"user_id"`
	SubgroupID     *string    `json:"subgroup_id,omitempty"`
	EnrolledAt     time.Time  `json:"enrolled_at"`
	IsAlternate    bool       `json:"is_alternate"`
	AlternateOrder *int       `json:"alternate_order,omitempty"`
	PromotedAt     *time.Time `json:"promoted_at,omitempty"`
	RegistrationDetails
}

// Scope returns the capacity pool this enrollment counts against.
func (e *Enrollment) Scope() Scope {
	return Scope{EventID: e.EventID, SubgroupID: e.SubgroupID}
}

// CapacityStats is the derived occupancy of a capacity pool.
// swagger:model CapacityStats
type CapacityStats struct {
	Capacity           int `json:"capacity"`
	AlternateCapacity  int `json:"alternate_capacity"`
	TitularOccupied    int `json:"titular_occupied"`
	TitularAvailable   int `json:"titular_available"`
	AlternateOccupied  int `json:"alternate_occupied"`
	AlternateAvailable int `json:"alternate_available"`
}

// NewCapacityStats derives available seats from configured capacity and current occupancy.
func NewCapacityStats(capacity, alternateCapacity, titulars, alternates int) *CapacityStats {
	return &CapacityStats{
		Capacity:           capacity,
		AlternateCapacity:  alternateCapacity,
		TitularOccupied:    titulars,
		TitularAvailable:   capacity - titulars,
		AlternateOccupied:  alternates,
		AlternateAvailable: alternateCapacity - alternates,
	}
}

// Placement is the outcome of a successful enrollment.
type Placement string

const (
	PlacementTitular   Placement = "titular"
	PlacementAlternate Placement = "alternate"
)

// EnrollmentRequest is the input to the enrollment engine.
type EnrollmentRequest struct {
	EventID    string
	UserID     string
	SubgroupID *string
	Details    RegistrationDetails
}

// EnrollmentResult reports where a user was placed.
// swagger:model EnrollmentResult
type EnrollmentResult struct {
	Placement  Placement   `json:"placement"`
	Order      *int        `json:"order,omitempty"`
	Enrollment *Enrollment `json:"enrollment"`
}

// Promotion records an alternate moved to titular.
// swagger:model Promotion
type Promotion struct {
	EventID       string    `json:"event_id"`
	SubgroupID    *string   `json:"subgroup_id,omitempty"`
	UserID        string    `json:"user_id"`
	PreviousOrder int       `json:"previous_order"`
	PromotedAt    time.Time `json:"promoted_at"`
}

// WithdrawalResult reports the removed enrollment and the promotion it caused, if any.
// swagger:model WithdrawalResult
type WithdrawalResult struct {
	Withdrawn *Enrollment `json:"withdrawn"`
	Promotion *Promotion  `json:"promotion,omitempty"`
}

// EnrollmentWithEvent bundles an enrollment with its related event.
type EnrollmentWithEvent struct {
	Enrollment *Enrollment `json:"enrollment"`
	Event      *Event      `json:"event"`
}

// EnrollmentRepository defines storage operations for enrollments.
// Methods that read or write alternates are scoped to one capacity pool.
type EnrollmentRepository interface {
	Create(ctx context.Context, e *Enrollment) error
	GetByEventAndUser(ctx context.Context, eventID, userID string) (*Enrollment, error)
	Delete(ctx context.Context, id string) error
	CountByScope(ctx context.Context, scope Scope) (titulars, alternates int, err error)
	NextAlternateOrder(ctx context.Context, scope Scope) (int, error)
	// FirstAlternate returns the alternate with the lowest order, or ErrNotFound.
	FirstAlternate(ctx context.Context, scope Scope) (*Enrollment, error)
	Promote(ctx context.Context, id string, at time.Time) error
	// ShiftAlternatesAfter decrements the order of every alternate whose order is greater than order.
	ShiftAlternatesAfter(ctx context.Context, scope Scope, order int) error
	ListAlternates(ctx context.Context, scope Scope) ([]*Enrollment, error)
	ListTitulars(ctx context.Context, scope Scope) ([]*Enrollment, error)
	ListByEvent(ctx context.Context, eventID string) ([]*Enrollment, error)
	ListByUserID(ctx context.Context, userID string, p PaginationParams) ([]*Enrollment, int, error)
}

// Tx exposes repositories bound to one open transaction.
type Tx interface {
	Events() EventRepository
	Enrollments() EnrollmentRepository
}

// UnitOfWork runs fn inside one transaction holding the lock for scope.
// The transaction commits if fn returns nil and rolls back otherwise.
// A zero Scope opens a transaction without locking any capacity pool.
type UnitOfWork interface {
	WithTransaction(ctx context.Context, scope Scope, fn func(tx Tx) error) error
}

// EnrollmentService defines the enrollment engine, waitlist promoter and read queries.
type EnrollmentService interface {
	Enroll(ctx context.Context, req *EnrollmentRequest) (*EnrollmentResult, error)
	Withdraw(ctx context.Context, scope Scope, userID string) (*WithdrawalResult, error)
	RemoveAlternate(ctx context.Context, scope Scope, userID string) error
	// RemoveEnrollment is the administrative removal of any enrollment, titular or alternate.
	RemoveEnrollment(ctx context.Context, scope Scope, userID string) (*WithdrawalResult, error)
	GetCapacityStats(ctx context.Context, scope Scope) (*CapacityStats, error)
	ListAlternates(ctx context.Context, scope Scope) ([]*Enrollment, error)
	ListTitulars(ctx context.Context, scope Scope) ([]*Enrollment, error)
	GetMyEnrollment(ctx context.Context, eventID, userID string) (*Enrollment, error)
	ListMyEnrollments(ctx context.Context, userID string, p PaginationParams) ([]*EnrollmentWithEvent, int, error)
}
