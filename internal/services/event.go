package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"communityevents/internal/domain"
)

type eventService struct {
	eventRepo      domain.EventRepository
	enrollmentRepo domain.EnrollmentRepository
	uow            domain.UnitOfWork
	hooks          postCommit
	contextTimeout time.Duration
	now            func() time.Time
}

// NewEventService returns the EventService that owns the event lifecycle and capacity edits.
func NewEventService(
	eventRepo domain.EventRepository,
	enrollmentRepo domain.EnrollmentRepository,
	uow domain.UnitOfWork,
	notifier domain.Notifier,
	publisher domain.StateChangePublisher,
	logger *slog.Logger,
	timeout time.Duration,
) domain.EventService {
	return newEventService(eventRepo, enrollmentRepo, uow, notifier, publisher, logger, timeout)
}

func newEventService(
	eventRepo domain.EventRepository,
	enrollmentRepo domain.EnrollmentRepository,
	uow domain.UnitOfWork,
	notifier domain.Notifier,
	publisher domain.StateChangePublisher,
	logger *slog.Logger,
	timeout time.Duration,
) *eventService {
	return &eventService{
		eventRepo:      eventRepo,
		enrollmentRepo: enrollmentRepo,
		uow:            uow,
		hooks:          postCommit{notifier: notifier, publisher: publisher, logger: logger},
		contextTimeout: timeout,
		now:            time.Now,
	}
}

func (s *eventService) CreateEvent(ctx context.Context, event *domain.Event, subgroups []*domain.SubgroupCapacity) error {
	if event == nil {
		return fmt.Errorf("%w: event is required", domain.ErrInvalidInput)
	}
	event.Name = strings.TrimSpace(event.Name)
	event.Location = strings.TrimSpace(event.Location)
	if event.Name == "" || event.Location == "" {
		return fmt.Errorf("%w: name and location are required", domain.ErrInvalidInput)
	}
	if event.Category == "" {
		event.Category = domain.EventCategoryNormal
	}
	if len(subgroups) > 0 {
		seen := make(map[string]bool, len(subgroups))
		event.Capacity, event.AlternateCapacity = 0, 0
		for _, sc := range subgroups {
			if sc == nil || strings.TrimSpace(sc.SubgroupID) == "" {
				return fmt.Errorf("%w: subgroup id is required", domain.ErrInvalidInput)
			}
			if seen[sc.SubgroupID] {
				return fmt.Errorf("%w: duplicate subgroup %s", domain.ErrInvalidInput, sc.SubgroupID)
			}
			seen[sc.SubgroupID] = true
			if sc.Capacity < 0 || sc.AlternateCapacity < 0 {
				return fmt.Errorf("%w: capacities must not be negative", domain.ErrInvalidInput)
			}
			event.Capacity += sc.Capacity
			event.AlternateCapacity += sc.AlternateCapacity
		}
	}
	if err := validateEvent(event); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, s.contextTimeout)
	defer cancel()

	now := s.now()
	event.State = domain.EventStateActive
	event.CreatedAt = now
	event.UpdatedAt = now
	return s.uow.WithTransaction(ctx, domain.Scope{}, func(tx domain.Tx) error {
		if err := tx.Events().Create(ctx, event); err != nil {
			return fmt.Errorf("create event: %w", err)
		}
		for _, sc := range subgroups {
			sc.EventID = event.ID
			if err := tx.Events().CreateSubgroupCapacity(ctx, sc); err != nil {
				return fmt.Errorf("create subgroup capacity: %w", err)
			}
		}
		return nil
	})
}

func (s *eventService) GetEvent(ctx context.Context, eventID string) (*domain.Event, error) {
	ctx, cancel := context.WithTimeout(ctx, s.contextTimeout)
	defer cancel()
	return loadEvent(ctx, s.eventRepo, eventID)
}

// ListEvents returns one page of events ordered by date, each with its combined availability.
func (s *eventService) ListEvents(ctx context.Context, state *domain.EventState, p domain.PaginationParams) ([]*domain.EventSummary, int, error) {
	if state != nil && !state.Valid() {
		return nil, 0, fmt.Errorf("%w: unknown event state %q", domain.ErrInvalidInput, *state)
	}
	ctx, cancel := context.WithTimeout(ctx, s.contextTimeout)
	defer cancel()

	list, total, err := s.eventRepo.List(ctx, state, p)
	if err != nil {
		return nil, 0, fmt.Errorf("list events: %w", err)
	}
	return list, total, nil
}

func (s *eventService) ListSubgroupCapacities(ctx context.Context, eventID string) ([]*domain.SubgroupCapacity, error) {
	ctx, cancel := context.WithTimeout(ctx, s.contextTimeout)
	defer cancel()

	if _, err := loadEvent(ctx, s.eventRepo, eventID); err != nil {
		return nil, err
	}
	list, err := s.eventRepo.ListSubgroupCapacities(ctx, eventID)
	if err != nil {
		return nil, fmt.Errorf("list subgroup capacities: %w", err)
	}
	return list, nil
}

func (s *eventService) UpdateEvent(ctx context.Context, eventID string, changes *domain.EventUpdate) (*domain.Event, []*domain.Promotion, error) {
	if changes == nil {
		return nil, nil, fmt.Errorf("%w: no changes", domain.ErrInvalidInput)
	}
	ctx, cancel := context.WithTimeout(ctx, s.contextTimeout)
	defer cancel()

	scope := domain.EventScope(eventID)
	var (
		updated    *domain.Event
		promotions []*domain.Promotion
	)
	err := s.uow.WithTransaction(ctx, scope, func(tx domain.Tx) error {
		event, err := loadEvent(ctx, tx.Events(), eventID)
		if err != nil {
			return err
		}
		if event.State != domain.EventStateActive {
			return fmt.Errorf("%w: event is %s", domain.ErrEventNotActive, event.State)
		}
		previousCapacity := event.Capacity
		applyEventUpdate(event, changes)
		if err := validateEvent(event); err != nil {
			return err
		}
		if err := checkCapacityEdit(ctx, tx.Enrollments(), scope, event.Capacity, event.AlternateCapacity); err != nil {
			return err
		}

		now := s.now()
		event.UpdatedAt = now
		if err := tx.Events().Update(ctx, event); err != nil {
			return fmt.Errorf("update event: %w", err)
		}
		if event.Capacity > previousCapacity {
			promotions, err = promoteForCapacity(ctx, tx.Enrollments(), scope, event.Capacity, now)
			if err != nil {
				return err
			}
		}
		updated = event
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	s.hooks.run(ctx, eventID, promotionNotes(promotions))
	return updated, promotions, nil
}

func (s *eventService) UpdateSubgroupCapacity(ctx context.Context, eventID, subgroupID string, changes *domain.CapacityUpdate) (*domain.SubgroupCapacity, []*domain.Promotion, error) {
	if changes == nil || subgroupID == "" {
		return nil, nil, fmt.Errorf("%w: subgroup and changes are required", domain.ErrInvalidInput)
	}
	ctx, cancel := context.WithTimeout(ctx, s.contextTimeout)
	defer cancel()

	scope := domain.SubgroupScope(eventID, subgroupID)
	var (
		updated    *domain.SubgroupCapacity
		promotions []*domain.Promotion
	)
	err := s.uow.WithTransaction(ctx, scope, func(tx domain.Tx) error {
		event, err := loadEvent(ctx, tx.Events(), eventID)
		if err != nil {
			return err
		}
		if event.State != domain.EventStateActive {
			return fmt.Errorf("%w: event is %s", domain.ErrEventNotActive, event.State)
		}
		sc, err := tx.Events().GetSubgroupCapacity(ctx, eventID, subgroupID)
		if err != nil {
			return err
		}
		previousCapacity := sc.Capacity
		if changes.Capacity != nil {
			sc.Capacity = *changes.Capacity
		}
		if changes.AlternateCapacity != nil {
			sc.AlternateCapacity = *changes.AlternateCapacity
		}
		if sc.Capacity < 0 || sc.AlternateCapacity < 0 {
			return fmt.Errorf("%w: capacities must not be negative", domain.ErrInvalidInput)
		}
		if err := checkCapacityEdit(ctx, tx.Enrollments(), scope, sc.Capacity, sc.AlternateCapacity); err != nil {
			return err
		}
		if err := tx.Events().UpdateSubgroupCapacity(ctx, sc); err != nil {
			return fmt.Errorf("update subgroup capacity: %w", err)
		}
		if sc.Capacity > previousCapacity {
			promotions, err = promoteForCapacity(ctx, tx.Enrollments(), scope, sc.Capacity, s.now())
			if err != nil {
				return err
			}
		}
		updated = sc
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	s.hooks.run(ctx, eventID, promotionNotes(promotions))
	return updated, promotions, nil
}

func (s *eventService) CancelEvent(ctx context.Context, eventID string) (*domain.Event, error) {
	ctx, cancel := context.WithTimeout(ctx, s.contextTimeout)
	defer cancel()

	var (
		cancelled *domain.Event
		enrollees []*domain.Enrollment
	)
	err := s.uow.WithTransaction(ctx, domain.EventScope(eventID), func(tx domain.Tx) error {
		event, err := loadEvent(ctx, tx.Events(), eventID)
		if err != nil {
			return err
		}
		if !event.State.CanTransitionTo(domain.EventStateCancelled) {
			return fmt.Errorf("%w: event is %s", domain.ErrEventNotActive, event.State)
		}
		if err := tx.Events().UpdateState(ctx, eventID, domain.EventStateCancelled); err != nil {
			return fmt.Errorf("update event state: %w", err)
		}
		enrollees, err = tx.Enrollments().ListByEvent(ctx, eventID)
		if err != nil {
			return fmt.Errorf("list enrollments: %w", err)
		}
		event.State = domain.EventStateCancelled
		cancelled = event
		return nil
	})
	if err != nil {
		return nil, err
	}

	notes := make([]domain.Notification, 0, len(enrollees))
	for _, e := range enrollees {
		notes = append(notes, domain.Notification{Kind: domain.NotifyCancellation, UserID: e.UserID, EventID: eventID})
	}
	s.hooks.run(ctx, eventID, notes)
	return cancelled, nil
}

func (s *eventService) MarkElapsed(ctx context.Context) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, s.contextTimeout)
	defer cancel()

	ids, err := s.eventRepo.MarkElapsed(ctx, s.now())
	if err != nil {
		return 0, fmt.Errorf("mark elapsed: %w", err)
	}
	for _, id := range ids {
		s.hooks.run(ctx, id, nil)
	}
	return len(ids), nil
}

func applyEventUpdate(e *domain.Event, c *domain.EventUpdate) {
	if c.Date != nil {
		e.Date = *c.Date
	}
	if c.Description != nil {
		e.Description = c.Description
	}
	if c.Location != nil {
		e.Location = strings.TrimSpace(*c.Location)
	}
	if c.Capacity != nil {
		e.Capacity = *c.Capacity
	}
	if c.AlternateCapacity != nil {
		e.AlternateCapacity = *c.AlternateCapacity
	}
	if c.InscriptionDeadline != nil {
		e.InscriptionDeadline = c.InscriptionDeadline
	}
	if c.WithdrawalDeadline != nil {
		e.WithdrawalDeadline = c.WithdrawalDeadline
	}
	if c.Cost != nil {
		e.Cost = c.Cost
	}
	if c.DestinationAccount != nil {
		e.DestinationAccount = c.DestinationAccount
	}
}

func validateEvent(e *domain.Event) error {
	if !e.Category.Valid() {
		return fmt.Errorf("%w: unknown category %q", domain.ErrInvalidInput, e.Category)
	}
	if e.Date.IsZero() {
		return fmt.Errorf("%w: date is required", domain.ErrInvalidInput)
	}
	if e.Location == "" {
		return fmt.Errorf("%w: location is required", domain.ErrInvalidInput)
	}
	if e.Capacity < 0 || e.AlternateCapacity < 0 {
		return fmt.Errorf("%w: capacities must not be negative", domain.ErrInvalidInput)
	}
	if e.InscriptionDeadline != nil && e.InscriptionDeadline.After(e.Date) {
		return fmt.Errorf("%w: inscription deadline after event date", domain.ErrInvalidInput)
	}
	if e.WithdrawalDeadline != nil && e.WithdrawalDeadline.After(e.Date) {
		return fmt.Errorf("%w: withdrawal deadline after event date", domain.ErrInvalidInput)
	}
	if e.Category == domain.EventCategoryPaid && (e.Cost == nil || *e.Cost <= 0) {
		return fmt.Errorf("%w: paid events need a positive cost", domain.ErrInvalidInput)
	}
	return nil
}

// checkCapacityEdit rejects capacities below the current occupancy of scope.
func checkCapacityEdit(ctx context.Context, enrollments domain.EnrollmentRepository, scope domain.Scope, capacity, alternateCapacity int) error {
	titulars, alternates, err := enrollments.CountByScope(ctx, scope)
	if err != nil {
		return fmt.Errorf("count enrollments: %w", err)
	}
	if capacity < titulars {
		return fmt.Errorf("%w: capacity %d below %d titulars", domain.ErrInvalidCapacityEdit, capacity, titulars)
	}
	if alternateCapacity < alternates {
		return fmt.Errorf("%w: alternate capacity %d below %d alternates", domain.ErrInvalidCapacityEdit, alternateCapacity, alternates)
	}
	return nil
}
