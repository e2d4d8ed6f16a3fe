package controllers

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http/httptest"
	"testing"

	"communityevents/internal/delivery/http/helpers"
	"communityevents/internal/domain"

	"github.com/stretchr/testify/require"
)

// testLogger is a no-op logger for controller tests so we don't assert on log output.
var testLogger = slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))

const (
	testEventID = "6f1c2a4e-8d0b-4a53-9c55-1f3e2b7a9d10"
	testUserID  = "0b8e6c9a-2f41-4d7e-b1a3-5c6d7e8f9a01"
)

func decodeEnvelope(t *testing.T, rr *httptest.ResponseRecorder) helpers.APIResponse {
	t.Helper()
	var envelope helpers.APIResponse
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&envelope), "response must be valid JSON envelope")
	return envelope
}

// decodeData re-marshals envelope.Data into dest.
func decodeData(t *testing.T, envelope helpers.APIResponse, dest any) {
	t.Helper()
	require.Nil(t, envelope.Error, "success response must have error nil")
	raw, err := json.Marshal(envelope.Data)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(raw, dest))
}

// fakeEnrollmentService implements domain.EnrollmentService for handler tests.
type fakeEnrollmentService struct {
	err           error
	enrollResult  *domain.EnrollmentResult
	withdrawal    *domain.WithdrawalResult
	stats         *domain.CapacityStats
	list          []*domain.Enrollment
	enrollment    *domain.Enrollment
	mine          []*domain.EnrollmentWithEvent
	mineTotal     int
	lastRequest   *domain.EnrollmentRequest
	lastScope     domain.Scope
	lastUserID    string
	lastEventID   string
	lastPage      domain.PaginationParams
	removeCalled  bool
	withdrawCalls int
}

func (f *fakeEnrollmentService) Enroll(_ context.Context, req *domain.EnrollmentRequest) (*domain.EnrollmentResult, error) {
	f.lastRequest = req
	return f.enrollResult, f.err
}

func (f *fakeEnrollmentService) Withdraw(_ context.Context, scope domain.Scope, userID string) (*domain.WithdrawalResult, error) {
	f.withdrawCalls++
	f.lastScope, f.lastUserID = scope, userID
	return f.withdrawal, f.err
}

func (f *fakeEnrollmentService) RemoveAlternate(_ context.Context, scope domain.Scope, userID string) error {
	f.removeCalled = true
	f.lastScope, f.lastUserID = scope, userID
	return f.err
}

func (f *fakeEnrollmentService) RemoveEnrollment(_ context.Context, scope domain.Scope, userID string) (*domain.WithdrawalResult, error) {
	f.removeCalled = true
	f.lastScope, f.lastUserID = scope, userID
	return f.withdrawal, f.err
}

func (f *fakeEnrollmentService) GetCapacityStats(_ context.Context, scope domain.Scope) (*domain.CapacityStats, error) {
	f.lastScope = scope
	return f.stats, f.err
}

func (f *fakeEnrollmentService) ListAlternates(_ context.Context, scope domain.Scope) ([]*domain.Enrollment, error) {
	f.lastScope = scope
	return f.list, f.err
}

func (f *fakeEnrollmentService) ListTitulars(_ context.Context, scope domain.Scope) ([]*domain.Enrollment, error) {
	f.lastScope = scope
	return f.list, f.err
}

func (f *fakeEnrollmentService) GetMyEnrollment(_ context.Context, eventID, userID string) (*domain.Enrollment, error) {
	f.lastEventID, f.lastUserID = eventID, userID
	return f.enrollment, f.err
}

func (f *fakeEnrollmentService) ListMyEnrollments(_ context.Context, userID string, p domain.PaginationParams) ([]*domain.EnrollmentWithEvent, int, error) {
	f.lastUserID, f.lastPage = userID, p
	return f.mine, f.mineTotal, f.err
}

// fakeEventService implements domain.EventService for handler tests.
type fakeEventService struct {
	err          error
	event        *domain.Event
	subgroups    []*domain.SubgroupCapacity
	subgroup     *domain.SubgroupCapacity
	promotions   []*domain.Promotion
	lastCreated  *domain.Event
	lastGroups   []*domain.SubgroupCapacity
	lastUpdate   *domain.EventUpdate
	lastCapacity *domain.CapacityUpdate
	lastEventID  string
	lastGroupID  string
	summaries    []*domain.EventSummary
	total        int
	lastState    *domain.EventState
	lastPage     domain.PaginationParams
	listCalled   bool
}

func (f *fakeEventService) CreateEvent(_ context.Context, event *domain.Event, subgroups []*domain.SubgroupCapacity) error {
	f.lastCreated, f.lastGroups = event, subgroups
	if f.err != nil {
		return f.err
	}
	event.ID = testEventID
	event.State = domain.EventStateActive
	return nil
}

func (f *fakeEventService) GetEvent(_ context.Context, eventID string) (*domain.Event, error) {
	f.lastEventID = eventID
	return f.event, f.err
}

func (f *fakeEventService) ListEvents(_ context.Context, state *domain.EventState, p domain.PaginationParams) ([]*domain.EventSummary, int, error) {
	f.listCalled = true
	f.lastState, f.lastPage = state, p
	return f.summaries, f.total, f.err
}

func (f *fakeEventService) ListSubgroupCapacities(_ context.Context, eventID string) ([]*domain.SubgroupCapacity, error) {
	f.lastEventID = eventID
	return f.subgroups, nil
}

func (f *fakeEventService) UpdateEvent(_ context.Context, eventID string, changes *domain.EventUpdate) (*domain.Event, []*domain.Promotion, error) {
	f.lastEventID, f.lastUpdate = eventID, changes
	return f.event, f.promotions, f.err
}

func (f *fakeEventService) UpdateSubgroupCapacity(_ context.Context, eventID, subgroupID string, changes *domain.CapacityUpdate) (*domain.SubgroupCapacity, []*domain.Promotion, error) {
	f.lastEventID, f.lastGroupID, f.lastCapacity = eventID, subgroupID, changes
	return f.subgroup, f.promotions, f.err
}

func (f *fakeEventService) CancelEvent(_ context.Context, eventID string) (*domain.Event, error) {
	f.lastEventID = eventID
	return f.event, f.err
}

func (f *fakeEventService) MarkElapsed(_ context.Context) (int, error) {
	return 0, f.err
}

// fakePaymentService implements domain.PaymentService for handler tests.
type fakePaymentService struct {
	outcome domain.PaymentOutcome
	result  *domain.EnrollmentResult
	err     error
	last    *domain.PaymentConfirmation
	calls   int
}

func (f *fakePaymentService) HandlePayment(_ context.Context, p *domain.PaymentConfirmation) (domain.PaymentOutcome, *domain.EnrollmentResult, error) {
	f.calls++
	f.last = p
	return f.outcome, f.result, f.err
}
