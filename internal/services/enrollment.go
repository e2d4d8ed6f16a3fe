package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"communityevents/internal/domain"
)

type enrollmentService struct {
	eventRepo      domain.EventRepository
	enrollmentRepo domain.EnrollmentRepository
	uow            domain.UnitOfWork
	hooks          postCommit
	contextTimeout time.Duration
	now            func() time.Time
}

// NewEnrollmentService returns the EnrollmentService. All seat mutations run inside a
// UnitOfWork transaction scoped to the affected capacity pool.
func NewEnrollmentService(
	eventRepo domain.EventRepository,
	enrollmentRepo domain.EnrollmentRepository,
	uow domain.UnitOfWork,
	notifier domain.Notifier,
	publisher domain.StateChangePublisher,
	logger *slog.Logger,
	timeout time.Duration,
) domain.EnrollmentService {
	return newEnrollmentService(eventRepo, enrollmentRepo, uow, notifier, publisher, logger, timeout)
}

func newEnrollmentService(
	eventRepo domain.EventRepository,
	enrollmentRepo domain.EnrollmentRepository,
	uow domain.UnitOfWork,
	notifier domain.Notifier,
	publisher domain.StateChangePublisher,
	logger *slog.Logger,
	timeout time.Duration,
) *enrollmentService {
	return &enrollmentService{
		eventRepo:      eventRepo,
		enrollmentRepo: enrollmentRepo,
		uow:            uow,
		hooks:          postCommit{notifier: notifier, publisher: publisher, logger: logger},
		contextTimeout: timeout,
		now:            time.Now,
	}
}

func (s *enrollmentService) Enroll(ctx context.Context, req *domain.EnrollmentRequest) (*domain.EnrollmentResult, error) {
	if req == nil || req.EventID == "" || req.UserID == "" {
		return nil, fmt.Errorf("%w: event and user are required", domain.ErrInvalidInput)
	}
	ctx, cancel := context.WithTimeout(ctx, s.contextTimeout)
	defer cancel()

	scope := domain.Scope{EventID: req.EventID, SubgroupID: req.SubgroupID}
	if scope.SubgroupID != nil && *scope.SubgroupID == "" {
		scope.SubgroupID = nil
	}

	var result *domain.EnrollmentResult
	err := s.uow.WithTransaction(ctx, scope, func(tx domain.Tx) error {
		event, err := loadEvent(ctx, tx.Events(), scope.EventID)
		if err != nil {
			return err
		}
		if event.State != domain.EventStateActive {
			return fmt.Errorf("%w: event is %s", domain.ErrEventNotActive, event.State)
		}
		if scope.SubgroupID == nil {
			// An event split into subgroups has no event-level pool of its own.
			subgroups, err := tx.Events().ListSubgroupCapacities(ctx, scope.EventID)
			if err != nil {
				return fmt.Errorf("list subgroup capacities: %w", err)
			}
			if len(subgroups) > 0 {
				return fmt.Errorf("%w: subgroup_id is required for this event", domain.ErrInvalidInput)
			}
		}

		if _, err := tx.Enrollments().GetByEventAndUser(ctx, scope.EventID, req.UserID); err == nil {
			return domain.ErrAlreadyEnrolled
		} else if !errors.Is(err, domain.ErrNotFound) {
			return fmt.Errorf("get enrollment: %w", err)
		}

		now := s.now()
		if !event.InscriptionOpen(now) {
			return fmt.Errorf("%w: inscription closed", domain.ErrDeadlinePassed)
		}

		stats, err := readLedger(ctx, tx.Events(), tx.Enrollments(), event, scope)
		if err != nil {
			return err
		}

		e := &domain.Enrollment{
			EventID:             scope.EventID,
			UserID:              req.UserID,
			SubgroupID:          scope.SubgroupID,
			EnrolledAt:          now,
			RegistrationDetails: req.Details,
		}
		switch {
		case stats.TitularAvailable > 0:
			result = &domain.EnrollmentResult{Placement: domain.PlacementTitular, Enrollment: e}
		case !event.WithdrawalOpen(now):
			// Past the withdrawal deadline nobody can leave, so a waitlist seat could never turn titular.
			return fmt.Errorf("%w: waitlist closed after withdrawal deadline", domain.ErrCapacityExhausted)
		case stats.AlternateAvailable > 0:
			order, err := tx.Enrollments().NextAlternateOrder(ctx, scope)
			if err != nil {
				return fmt.Errorf("next alternate order: %w", err)
			}
			e.IsAlternate = true
			e.AlternateOrder = &order
			result = &domain.EnrollmentResult{Placement: domain.PlacementAlternate, Order: &order, Enrollment: e}
		default:
			return domain.ErrCapacityExhausted
		}

		if err := tx.Enrollments().Create(ctx, e); err != nil {
			if errors.Is(err, domain.ErrAlreadyEnrolled) {
				return err
			}
			return fmt.Errorf("create enrollment: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	note := domain.Notification{Kind: domain.NotifyTitularConfirmation, UserID: req.UserID, EventID: scope.EventID}
	if result.Placement == domain.PlacementAlternate {
		note.Kind = domain.NotifyAlternateConfirmation
		note.Order = *result.Order
	}
	s.hooks.run(ctx, scope.EventID, []domain.Notification{note})
	return result, nil
}

func (s *enrollmentService) GetCapacityStats(ctx context.Context, scope domain.Scope) (*domain.CapacityStats, error) {
	ctx, cancel := context.WithTimeout(ctx, s.contextTimeout)
	defer cancel()

	event, err := loadEvent(ctx, s.eventRepo, scope.EventID)
	if err != nil {
		return nil, err
	}
	return readLedger(ctx, s.eventRepo, s.enrollmentRepo, event, scope)
}

func (s *enrollmentService) ListAlternates(ctx context.Context, scope domain.Scope) ([]*domain.Enrollment, error) {
	ctx, cancel := context.WithTimeout(ctx, s.contextTimeout)
	defer cancel()

	if err := s.checkScope(ctx, scope); err != nil {
		return nil, err
	}
	list, err := s.enrollmentRepo.ListAlternates(ctx, scope)
	if err != nil {
		return nil, fmt.Errorf("list alternates: %w", err)
	}
	return list, nil
}

func (s *enrollmentService) ListTitulars(ctx context.Context, scope domain.Scope) ([]*domain.Enrollment, error) {
	ctx, cancel := context.WithTimeout(ctx, s.contextTimeout)
	defer cancel()

	if err := s.checkScope(ctx, scope); err != nil {
		return nil, err
	}
	list, err := s.enrollmentRepo.ListTitulars(ctx, scope)
	if err != nil {
		return nil, fmt.Errorf("list titulars: %w", err)
	}
	return list, nil
}

func (s *enrollmentService) GetMyEnrollment(ctx context.Context, eventID, userID string) (*domain.Enrollment, error) {
	ctx, cancel := context.WithTimeout(ctx, s.contextTimeout)
	defer cancel()

	if _, err := loadEvent(ctx, s.eventRepo, eventID); err != nil {
		return nil, err
	}
	e, err := s.enrollmentRepo.GetByEventAndUser(ctx, eventID, userID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.ErrNotEnrolled
		}
		return nil, fmt.Errorf("get enrollment: %w", err)
	}
	return e, nil
}

func (s *enrollmentService) ListMyEnrollments(ctx context.Context, userID string, p domain.PaginationParams) ([]*domain.EnrollmentWithEvent, int, error) {
	ctx, cancel := context.WithTimeout(ctx, s.contextTimeout)
	defer cancel()

	list, total, err := s.enrollmentRepo.ListByUserID(ctx, userID, p)
	if err != nil {
		return nil, 0, fmt.Errorf("list enrollments: %w", err)
	}
	events := make(map[string]*domain.Event)
	out := make([]*domain.EnrollmentWithEvent, 0, len(list))
	for _, e := range list {
		event, ok := events[e.EventID]
		if !ok {
			event, err = loadEvent(ctx, s.eventRepo, e.EventID)
			if err != nil {
				return nil, 0, err
			}
			events[e.EventID] = event
		}
		out = append(out, &domain.EnrollmentWithEvent{Enrollment: e, Event: event})
	}
	return out, total, nil
}

// checkScope verifies that the event, and the subgroup when named, exist.
func (s *enrollmentService) checkScope(ctx context.Context, scope domain.Scope) error {
	event, err := loadEvent(ctx, s.eventRepo, scope.EventID)
	if err != nil {
		return err
	}
	_, _, err = poolCapacity(ctx, s.eventRepo, event, scope)
	return err
}
