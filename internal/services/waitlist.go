package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"communityevents/internal/domain"
)

// promoteHead promotes the lowest-ordered alternate of scope to titular and closes the
// gap it leaves in the waitlist. It returns nil when the waitlist is empty.
func promoteHead(ctx context.Context, enrollments domain.EnrollmentRepository, scope domain.Scope, at time.Time) (*domain.Promotion, error) {
	head, err := enrollments.FirstAlternate(ctx, scope)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get first alternate: %w", err)
	}
	if head.AlternateOrder == nil {
		return nil, fmt.Errorf("alternate %s has no order", head.ID)
	}
	order := *head.AlternateOrder
	if err := enrollments.Promote(ctx, head.ID, at); err != nil {
		return nil, fmt.Errorf("promote alternate: %w", err)
	}
	if err := enrollments.ShiftAlternatesAfter(ctx, scope, order); err != nil {
		return nil, err
	}
	return &domain.Promotion{
		EventID:       head.EventID,
		SubgroupID:    head.SubgroupID,
		UserID:        head.UserID,
		PreviousOrder: order,
		PromotedAt:    at,
	}, nil
}

// promoteForCapacity pops the waitlist head until titular seats up to capacity are
// filled or the waitlist is empty.
func promoteForCapacity(ctx context.Context, enrollments domain.EnrollmentRepository, scope domain.Scope, capacity int, at time.Time) ([]*domain.Promotion, error) {
	titulars, alternates, err := enrollments.CountByScope(ctx, scope)
	if err != nil {
		return nil, fmt.Errorf("count enrollments: %w", err)
	}
	n := min(capacity-titulars, alternates)
	promotions := make([]*domain.Promotion, 0, max(n, 0))
	for i := 0; i < n; i++ {
		p, err := promoteHead(ctx, enrollments, scope, at)
		if err != nil {
			return nil, err
		}
		if p == nil {
			break
		}
		promotions = append(promotions, p)
	}
	return promotions, nil
}

func (s *enrollmentService) Withdraw(ctx context.Context, scope domain.Scope, userID string) (*domain.WithdrawalResult, error) {
	return s.removeEnrollment(ctx, scope, userID, true)
}

// RemoveEnrollment deletes any enrollment on behalf of an administrator. The withdrawal
// deadline does not apply; a freed titular seat promotes the waitlist head.
func (s *enrollmentService) RemoveEnrollment(ctx context.Context, scope domain.Scope, userID string) (*domain.WithdrawalResult, error) {
	return s.removeEnrollment(ctx, scope, userID, false)
}

// removeEnrollment deletes the user's enrollment and either closes the waitlist gap or
// promotes the head into the freed seat. Withdrawals are allowed in any event state.
func (s *enrollmentService) removeEnrollment(ctx context.Context, scope domain.Scope, userID string, enforceDeadline bool) (*domain.WithdrawalResult, error) {
	ctx, cancel := context.WithTimeout(ctx, s.contextTimeout)
	defer cancel()

	existing, err := s.lookupEnrollment(ctx, scope, userID)
	if err != nil {
		return nil, err
	}

	// Lock the pool the enrollment actually belongs to, whatever scope the caller named.
	pool := existing.Scope()
	var result *domain.WithdrawalResult
	err = s.uow.WithTransaction(ctx, pool, func(tx domain.Tx) error {
		event, err := loadEvent(ctx, tx.Events(), pool.EventID)
		if err != nil {
			return err
		}

		e, err := tx.Enrollments().GetByEventAndUser(ctx, pool.EventID, userID)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return domain.ErrNotEnrolled
			}
			return fmt.Errorf("get enrollment: %w", err)
		}
		if !pool.Contains(e) {
			return domain.ErrNotEnrolled
		}

		now := s.now()
		if enforceDeadline && !event.WithdrawalOpen(now) {
			return fmt.Errorf("%w: withdrawal window closed", domain.ErrDeadlinePassed)
		}

		if err := tx.Enrollments().Delete(ctx, e.ID); err != nil {
			return fmt.Errorf("delete enrollment: %w", err)
		}

		result = &domain.WithdrawalResult{Withdrawn: e}
		if e.IsAlternate {
			if e.AlternateOrder == nil {
				return fmt.Errorf("alternate %s has no order", e.ID)
			}
			return tx.Enrollments().ShiftAlternatesAfter(ctx, pool, *e.AlternateOrder)
		}
		promotion, err := promoteHead(ctx, tx.Enrollments(), pool, now)
		if err != nil {
			return err
		}
		result.Promotion = promotion
		return nil
	})
	if err != nil {
		return nil, err
	}

	var notes []domain.Notification
	if result.Promotion != nil {
		notes = promotionNotes([]*domain.Promotion{result.Promotion})
	}
	s.hooks.run(ctx, pool.EventID, notes)
	return result, nil
}

func (s *enrollmentService) RemoveAlternate(ctx context.Context, scope domain.Scope, userID string) error {
	ctx, cancel := context.WithTimeout(ctx, s.contextTimeout)
	defer cancel()

	existing, err := s.lookupEnrollment(ctx, scope, userID)
	if err != nil {
		return err
	}
	if !existing.IsAlternate {
		return domain.ErrNotEnrolled
	}

	pool := existing.Scope()
	err = s.uow.WithTransaction(ctx, pool, func(tx domain.Tx) error {
		e, err := tx.Enrollments().GetByEventAndUser(ctx, pool.EventID, userID)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return domain.ErrNotEnrolled
			}
			return fmt.Errorf("get enrollment: %w", err)
		}
		if !pool.Contains(e) || !e.IsAlternate || e.AlternateOrder == nil {
			return domain.ErrNotEnrolled
		}
		if err := tx.Enrollments().Delete(ctx, e.ID); err != nil {
			return fmt.Errorf("delete enrollment: %w", err)
		}
		return tx.Enrollments().ShiftAlternatesAfter(ctx, pool, *e.AlternateOrder)
	})
	if err != nil {
		return err
	}
	s.hooks.run(ctx, pool.EventID, nil)
	return nil
}

// lookupEnrollment resolves the caller's enrollment before locking, so the transaction
// can lock the pool it belongs to. A named subgroup must match the enrollment's.
func (s *enrollmentService) lookupEnrollment(ctx context.Context, scope domain.Scope, userID string) (*domain.Enrollment, error) {
	if scope.EventID == "" || userID == "" {
		return nil, fmt.Errorf("%w: event and user are required", domain.ErrInvalidInput)
	}
	if _, err := loadEvent(ctx, s.eventRepo, scope.EventID); err != nil {
		return nil, err
	}
	existing, err := s.enrollmentRepo.GetByEventAndUser(ctx, scope.EventID, userID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.ErrNotEnrolled
		}
		return nil, fmt.Errorf("get enrollment: %w", err)
	}
	if scope.SubgroupID != nil && !scope.Contains(existing) {
		return nil, domain.ErrNotEnrolled
	}
	return existing, nil
}
