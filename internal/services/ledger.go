package services

import (
	"context"
	"errors"
	"fmt"

	"communityevents/internal/domain"
)

// poolCapacity returns the configured titular and alternate capacity of scope.
// Subgroup pools are independent of the event-level pool.
func poolCapacity(ctx context.Context, events domain.EventRepository, event *domain.Event, scope domain.Scope) (int, int, error) {
	if scope.SubgroupID == nil {
		return event.Capacity, event.AlternateCapacity, nil
	}
	sc, err := events.GetSubgroupCapacity(ctx, scope.EventID, *scope.SubgroupID)
	if err != nil {
		if errors.Is(err, domain.ErrSubgroupNotFound) || errors.Is(err, domain.ErrNotFound) {
			return 0, 0, domain.ErrSubgroupNotFound
		}
		return 0, 0, fmt.Errorf("get subgroup capacity: %w", err)
	}
	return sc.Capacity, sc.AlternateCapacity, nil
}

// readLedger computes the capacity stats of scope. Inside a transaction the
// repositories are the transaction's, so the read is serialized with writers.
func readLedger(ctx context.Context, events domain.EventRepository, enrollments domain.EnrollmentRepository, event *domain.Event, scope domain.Scope) (*domain.CapacityStats, error) {
	capacity, alternateCapacity, err := poolCapacity(ctx, events, event, scope)
	if err != nil {
		return nil, err
	}
	titulars, alternates, err := enrollments.CountByScope(ctx, scope)
	if err != nil {
		return nil, fmt.Errorf("count enrollments: %w", err)
	}
	return domain.NewCapacityStats(capacity, alternateCapacity, titulars, alternates), nil
}

// loadEvent maps a missing event to domain.ErrEventNotFound.
func loadEvent(ctx context.Context, events domain.EventRepository, eventID string) (*domain.Event, error) {
	event, err := events.GetByID(ctx, eventID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.ErrEventNotFound
		}
		return nil, fmt.Errorf("get event: %w", err)
	}
	return event, nil
}
