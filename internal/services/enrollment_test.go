package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"communityevents/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnrollmentService_Enroll(t *testing.T) {
	past := fixedNow.Add(-time.Hour)
	future := fixedNow.Add(time.Hour)

	tests := []struct {
		name          string
		capacity      int
		altCapacity   int
		mutate        func(*domain.Event)
		preEnrolled   []string
		userID        string
		wantPlacement domain.Placement
		wantOrder     int
		wantErr       error
	}{
		{
			name:          "free titular seat",
			capacity:      2,
			altCapacity:   1,
			userID:        "u-a",
			wantPlacement: domain.PlacementTitular,
		},
		{
			name:          "titulars full goes to waitlist",
			capacity:      1,
			altCapacity:   2,
			preEnrolled:   []string{"u-a"},
			userID:        "u-b",
			wantPlacement: domain.PlacementAlternate,
			wantOrder:     1,
		},
		{
			name:        "everything full",
			capacity:    1,
			altCapacity: 1,
			preEnrolled: []string{"u-a", "u-b"},
			userID:      "u-c",
			wantErr:     domain.ErrCapacityExhausted,
		},
		{
			name:        "already enrolled",
			capacity:    5,
			altCapacity: 0,
			preEnrolled: []string{"u-a"},
			userID:      "u-a",
			wantErr:     domain.ErrAlreadyEnrolled,
		},
		{
			name:     "cancelled event",
			capacity: 5,
			mutate:   func(e *domain.Event) { e.State = domain.EventStateCancelled },
			userID:   "u-a",
			wantErr:  domain.ErrEventNotActive,
		},
		{
			name:     "elapsed event",
			capacity: 5,
			mutate:   func(e *domain.Event) { e.State = domain.EventStateElapsed },
			userID:   "u-a",
			wantErr:  domain.ErrEventNotActive,
		},
		{
			name:     "inscription closed",
			capacity: 5,
			mutate:   func(e *domain.Event) { e.InscriptionDeadline = &past },
			userID:   "u-a",
			wantErr:  domain.ErrDeadlinePassed,
		},
		{
			name:          "inscription deadline still ahead",
			capacity:      5,
			mutate:        func(e *domain.Event) { e.InscriptionDeadline = &future },
			userID:        "u-a",
			wantPlacement: domain.PlacementTitular,
		},
		{
			name:        "waitlist closed after withdrawal deadline",
			capacity:    1,
			altCapacity: 3,
			mutate:      func(e *domain.Event) { e.WithdrawalDeadline = &past },
			preEnrolled: []string{"u-a"},
			userID:      "u-b",
			wantErr:     domain.ErrCapacityExhausted,
		},
		{
			name:          "titular seat still free after withdrawal deadline",
			capacity:      2,
			altCapacity:   3,
			mutate:        func(e *domain.Event) { e.WithdrawalDeadline = &past },
			preEnrolled:   []string{"u-a"},
			userID:        "u-b",
			wantPlacement: domain.PlacementTitular,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness()
			eventID := h.seedEvent(tt.capacity, tt.altCapacity)
			for _, u := range tt.preEnrolled {
				_, err := h.enroll(eventID, u)
				require.NoError(t, err)
			}
			if tt.mutate != nil {
				h.store.mu.Lock()
				tt.mutate(h.store.events[eventID])
				h.store.mu.Unlock()
			}
			before := len(h.notifier.sent())

			got, err := h.enroll(eventID, tt.userID)
			if tt.wantErr != nil {
				require.Error(t, err)
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Len(t, h.notifier.sent(), before, "rejections must not notify")
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantPlacement, got.Placement)
			require.NotNil(t, got.Enrollment)
			assert.Equal(t, tt.userID, got.Enrollment.UserID)
			if tt.wantPlacement == domain.PlacementAlternate {
				require.NotNil(t, got.Order)
				assert.Equal(t, tt.wantOrder, *got.Order)
			} else {
				assert.Nil(t, got.Order)
			}
		})
	}
}

func TestEnrollmentService_Enroll_InvalidRequest(t *testing.T) {
	h := newHarness()
	_, err := h.enrollments.Enroll(context.Background(), &domain.EnrollmentRequest{EventID: "", UserID: "u"})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = h.enroll("missing", "u")
	assert.ErrorIs(t, err, domain.ErrEventNotFound)
}

func TestEnrollmentService_Enroll_Notifies(t *testing.T) {
	h := newHarness()
	eventID := h.seedEvent(1, 1)

	_, err := h.enroll(eventID, "u-a")
	require.NoError(t, err)
	_, err = h.enroll(eventID, "u-b")
	require.NoError(t, err)

	assert.Equal(t, []domain.Notification{
		{Kind: domain.NotifyTitularConfirmation, UserID: "u-a", EventID: eventID},
		{Kind: domain.NotifyAlternateConfirmation, UserID: "u-b", EventID: eventID, Order: 1},
	}, h.notifier.sent())
	assert.Equal(t, []string{eventID, eventID}, h.publisher.published())
}

func TestEnrollmentService_Enroll_NotifierFailureDoesNotFail(t *testing.T) {
	h := newHarness()
	h.notifier.err = errors.New("smtp down")
	h.publisher.err = errors.New("redis down")
	eventID := h.seedEvent(1, 0)

	got, err := h.enroll(eventID, "u-a")
	require.NoError(t, err)
	assert.Equal(t, domain.PlacementTitular, got.Placement)
	assert.NotNil(t, h.store.enrollmentOf(eventID, "u-a"))
}

func TestEnrollmentService_Enroll_SubgroupPoolsAreIndependent(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	eventID := h.seedEvent(2, 1)
	h.seedSubgroup(eventID, "sg-1", 1, 1)
	h.seedSubgroup(eventID, "sg-2", 1, 0)
	sg1, sg2 := "sg-1", "sg-2"

	res, err := h.enrollments.Enroll(ctx, &domain.EnrollmentRequest{EventID: eventID, UserID: "u-a", SubgroupID: &sg1})
	require.NoError(t, err)
	assert.Equal(t, domain.PlacementTitular, res.Placement)

	// sg-2 keeps its own seat while sg-1 is full.
	res, err = h.enrollments.Enroll(ctx, &domain.EnrollmentRequest{EventID: eventID, UserID: "u-b", SubgroupID: &sg2})
	require.NoError(t, err)
	assert.Equal(t, domain.PlacementTitular, res.Placement)

	res, err = h.enrollments.Enroll(ctx, &domain.EnrollmentRequest{EventID: eventID, UserID: "u-c", SubgroupID: &sg1})
	require.NoError(t, err)
	assert.Equal(t, domain.PlacementAlternate, res.Placement)

	other := "sg-missing"
	_, err = h.enrollments.Enroll(ctx, &domain.EnrollmentRequest{EventID: eventID, UserID: "u-d", SubgroupID: &other})
	assert.ErrorIs(t, err, domain.ErrSubgroupNotFound)

	stats, err := h.enrollments.GetCapacityStats(ctx, domain.SubgroupScope(eventID, "sg-1"))
	require.NoError(t, err)
	assert.Equal(t, &domain.CapacityStats{
		Capacity: 1, AlternateCapacity: 1,
		TitularOccupied: 1, TitularAvailable: 0,
		AlternateOccupied: 1, AlternateAvailable: 0,
	}, stats)
}

func TestEnrollmentService_Enroll_SplitEventRequiresSubgroup(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	eventID := h.seedEvent(2, 2)
	h.seedSubgroup(eventID, "sg-1", 1, 1)
	h.seedSubgroup(eventID, "sg-2", 1, 1)
	for i, sg := range []string{"sg-1", "sg-2"} {
		_, err := h.enrollments.Enroll(ctx, &domain.EnrollmentRequest{EventID: eventID, UserID: fmt.Sprintf("u-%d", i), SubgroupID: &sg})
		require.NoError(t, err)
	}

	empty := ""
	for _, subgroup := range []*string{nil, &empty} {
		_, err := h.enrollments.Enroll(ctx, &domain.EnrollmentRequest{EventID: eventID, UserID: "u-late", SubgroupID: subgroup})
		require.ErrorIs(t, err, domain.ErrInvalidInput)
	}
	assert.Nil(t, h.store.enrollmentOf(eventID, "u-late"))

	// Titular occupancy never exceeds the summed subgroup capacity.
	titulars, _, err := (&memEnrollmentRepo{store: h.store}).CountByScope(ctx, domain.EventScope(eventID))
	require.NoError(t, err)
	assert.Zero(t, titulars, "no event-level titulars on a split event")
}

func TestEnrollmentService_LastSeatRace(t *testing.T) {
	for round := 0; round < 20; round++ {
		h := newHarness()
		eventID := h.seedEvent(1, 5)

		const users = 6
		var wg sync.WaitGroup
		results := make([]*domain.EnrollmentResult, users)
		errs := make([]error, users)
		for i := 0; i < users; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				results[i], errs[i] = h.enroll(eventID, fmt.Sprintf("u-%d", i))
			}(i)
		}
		wg.Wait()

		titulars := 0
		orders := map[int]bool{}
		for i := 0; i < users; i++ {
			require.NoError(t, errs[i])
			if results[i].Placement == domain.PlacementTitular {
				titulars++
				continue
			}
			require.NotNil(t, results[i].Order)
			assert.False(t, orders[*results[i].Order], "duplicate alternate order %d", *results[i].Order)
			orders[*results[i].Order] = true
		}
		assert.Equal(t, 1, titulars)
		assert.Equal(t, []int{1, 2, 3, 4, 5}, h.store.alternateOrders(domain.EventScope(eventID)))
	}
}

func TestEnrollmentService_DuplicateEnrollRace(t *testing.T) {
	h := newHarness()
	eventID := h.seedEvent(10, 0)

	var wg sync.WaitGroup
	errs := make([]error, 4)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = h.enroll(eventID, "u-same")
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.ErrorIs(t, err, domain.ErrAlreadyEnrolled)
	}
	assert.Equal(t, 1, succeeded)
}

func TestEnrollmentService_Reads(t *testing.T) {
	h := newHarness()
	eventID := h.seedEvent(1, 2)
	for _, u := range []string{"u-a", "u-b", "u-c"} {
		_, err := h.enroll(eventID, u)
		require.NoError(t, err)
	}
	ctx := context.Background()
	scope := domain.EventScope(eventID)

	stats, err := h.enrollments.GetCapacityStats(ctx, scope)
	require.NoError(t, err)
	assert.Equal(t, 0, stats.TitularAvailable)
	assert.Equal(t, 0, stats.AlternateAvailable)
	assert.Equal(t, 2, stats.AlternateOccupied)

	alternates, err := h.enrollments.ListAlternates(ctx, scope)
	require.NoError(t, err)
	require.Len(t, alternates, 2)
	assert.Equal(t, "u-b", alternates[0].UserID)
	assert.Equal(t, 1, *alternates[0].AlternateOrder)
	assert.Equal(t, "u-c", alternates[1].UserID)

	titulars, err := h.enrollments.ListTitulars(ctx, scope)
	require.NoError(t, err)
	require.Len(t, titulars, 1)
	assert.Equal(t, "u-a", titulars[0].UserID)

	mine, err := h.enrollments.GetMyEnrollment(ctx, eventID, "u-c")
	require.NoError(t, err)
	assert.True(t, mine.IsAlternate)

	_, err = h.enrollments.GetMyEnrollment(ctx, eventID, "u-z")
	assert.ErrorIs(t, err, domain.ErrNotEnrolled)

	_, err = h.enrollments.GetCapacityStats(ctx, domain.EventScope("missing"))
	assert.ErrorIs(t, err, domain.ErrEventNotFound)

	_, err = h.enrollments.ListAlternates(ctx, domain.SubgroupScope(eventID, "nope"))
	assert.ErrorIs(t, err, domain.ErrSubgroupNotFound)
}

func TestEnrollmentService_ListMyEnrollments(t *testing.T) {
	h := newHarness()
	first := h.seedEvent(5, 0)
	second := h.seedEvent(5, 0)

	_, err := h.enroll(first, "u-a")
	require.NoError(t, err)
	h.now = fixedNow.Add(time.Minute)
	_, err = h.enroll(second, "u-a")
	require.NoError(t, err)

	list, total, err := h.enrollments.ListMyEnrollments(context.Background(), "u-a", domain.PaginationParams{Page: 1, PageSize: 1})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	require.Len(t, list, 1)
	assert.Equal(t, second, list[0].Event.ID)
	assert.Equal(t, second, list[0].Enrollment.EventID)

	list, _, err = h.enrollments.ListMyEnrollments(context.Background(), "u-a", domain.PaginationParams{Page: 2, PageSize: 1})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, first, list[0].Event.ID)
}
