package services

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"communityevents/internal/domain"
)

// memStore is an in-memory backing store shared by the fake repositories. The fake unit
// of work serializes transactions on mu and restores a snapshot when fn fails.
type memStore struct {
	mu          sync.Mutex
	events      map[string]*domain.Event
	subgroups   map[string]*domain.SubgroupCapacity
	enrollments map[string]*domain.Enrollment
	users       map[string]*domain.User
	nextID      int
}

func newMemStore() *memStore {
	return &memStore{
		events:      make(map[string]*domain.Event),
		subgroups:   make(map[string]*domain.SubgroupCapacity),
		enrollments: make(map[string]*domain.Enrollment),
		users:       make(map[string]*domain.User),
		nextID:      1,
	}
}

func (s *memStore) id(prefix string) string {
	id := fmt.Sprintf("%s-%d", prefix, s.nextID)
	s.nextID++
	return id
}

func copyEvent(e *domain.Event) *domain.Event {
	c := *e
	return &c
}

func copyEnrollment(e *domain.Enrollment) *domain.Enrollment {
	c := *e
	if e.AlternateOrder != nil {
		o := *e.AlternateOrder
		c.AlternateOrder = &o
	}
	return &c
}

func copySubgroup(sc *domain.SubgroupCapacity) *domain.SubgroupCapacity {
	c := *sc
	return &c
}

type memSnapshot struct {
	events      map[string]*domain.Event
	subgroups   map[string]*domain.SubgroupCapacity
	enrollments map[string]*domain.Enrollment
}

func (s *memStore) snapshot() memSnapshot {
	snap := memSnapshot{
		events:      make(map[string]*domain.Event, len(s.events)),
		subgroups:   make(map[string]*domain.SubgroupCapacity, len(s.subgroups)),
		enrollments: make(map[string]*domain.Enrollment, len(s.enrollments)),
	}
	for k, v := range s.events {
		snap.events[k] = copyEvent(v)
	}
	for k, v := range s.subgroups {
		snap.subgroups[k] = copySubgroup(v)
	}
	for k, v := range s.enrollments {
		snap.enrollments[k] = copyEnrollment(v)
	}
	return snap
}

func (s *memStore) restore(snap memSnapshot) {
	s.events = snap.events
	s.subgroups = snap.subgroups
	s.enrollments = snap.enrollments
}

// scoped returns the enrollments of scope sorted by alternate order, then enrollment time.
func (s *memStore) scoped(scope domain.Scope) []*domain.Enrollment {
	var out []*domain.Enrollment
	for _, e := range s.enrollments {
		if scope.Contains(e) {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.IsAlternate && b.IsAlternate {
			return *a.AlternateOrder < *b.AlternateOrder
		}
		if a.IsAlternate != b.IsAlternate {
			return !a.IsAlternate
		}
		return a.EnrolledAt.Before(b.EnrolledAt) || (a.EnrolledAt.Equal(b.EnrolledAt) && a.ID < b.ID)
	})
	return out
}

// alternateOrders returns the alternate orders of scope in waitlist order.
func (s *memStore) alternateOrders(scope domain.Scope) []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []int
	for _, e := range s.scoped(scope) {
		if e.IsAlternate {
			out = append(out, *e.AlternateOrder)
		}
	}
	return out
}

func (s *memStore) enrollmentOf(eventID, userID string) *domain.Enrollment {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.enrollments {
		if e.EventID == eventID && e.UserID == userID {
			return copyEnrollment(e)
		}
	}
	return nil
}

// memEventRepo implements domain.EventRepository. Outside a transaction every call takes
// the store lock; inside one the unit of work already holds it.
type memEventRepo struct {
	store *memStore
	inTx  bool
	err   error
}

func (r *memEventRepo) lock() func() {
	if r.inTx {
		return func() {}
	}
	r.store.mu.Lock()
	return r.store.mu.Unlock
}

func (r *memEventRepo) Create(ctx context.Context, e *domain.Event) error {
	defer r.lock()()
	if r.err != nil {
		return r.err
	}
	e.ID = r.store.id("ev")
	r.store.events[e.ID] = copyEvent(e)
	return nil
}

func (r *memEventRepo) GetByID(ctx context.Context, id string) (*domain.Event, error) {
	defer r.lock()()
	e, ok := r.store.events[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return copyEvent(e), nil
}

func (r *memEventRepo) List(ctx context.Context, state *domain.EventState, p domain.PaginationParams) ([]*domain.EventSummary, int, error) {
	defer r.lock()()
	if r.err != nil {
		return nil, 0, r.err
	}
	var events []*domain.Event
	for _, e := range r.store.events {
		if state == nil || e.State == *state {
			events = append(events, e)
		}
	}
	sort.Slice(events, func(i, j int) bool {
		if !events[i].Date.Equal(events[j].Date) {
			return events[i].Date.Before(events[j].Date)
		}
		return events[i].ID < events[j].ID
	})
	total := len(events)
	if limit := p.Limit(); limit > 0 {
		events = events[min(p.Offset(), total):min(p.Offset()+limit, total)]
	}

	out := make([]*domain.EventSummary, 0, len(events))
	for _, e := range events {
		capacity, alternateCapacity := e.Capacity, e.AlternateCapacity
		var split bool
		for _, sc := range r.store.subgroups {
			if sc.EventID != e.ID {
				continue
			}
			if !split {
				capacity, alternateCapacity, split = 0, 0, true
			}
			capacity += sc.Capacity
			alternateCapacity += sc.AlternateCapacity
		}
		var titulars, alternates int
		for _, en := range r.store.enrollments {
			switch {
			case en.EventID != e.ID:
			case en.IsAlternate:
				alternates++
			default:
				titulars++
			}
		}
		out = append(out, &domain.EventSummary{
			Event:        copyEvent(e),
			Availability: domain.NewCapacityStats(capacity, alternateCapacity, titulars, alternates),
		})
	}
	return out, total, nil
}

func (r *memEventRepo) Update(ctx context.Context, e *domain.Event) error {
	defer r.lock()()
	if _, ok := r.store.events[e.ID]; !ok {
		return domain.ErrNotFound
	}
	r.store.events[e.ID] = copyEvent(e)
	return nil
}

func (r *memEventRepo) UpdateState(ctx context.Context, id string, state domain.EventState) error {
	defer r.lock()()
	e, ok := r.store.events[id]
	if !ok {
		return domain.ErrNotFound
	}
	e.State = state
	return nil
}

func (r *memEventRepo) MarkElapsed(ctx context.Context, now time.Time) ([]string, error) {
	defer r.lock()()
	var ids []string
	for id, e := range r.store.events {
		if e.State == domain.EventStateActive && e.Date.Before(now) {
			e.State = domain.EventStateElapsed
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (r *memEventRepo) CreateSubgroupCapacity(ctx context.Context, sc *domain.SubgroupCapacity) error {
	defer r.lock()()
	r.store.subgroups[sc.EventID+"/"+sc.SubgroupID] = copySubgroup(sc)
	return nil
}

func (r *memEventRepo) GetSubgroupCapacity(ctx context.Context, eventID, subgroupID string) (*domain.SubgroupCapacity, error) {
	defer r.lock()()
	sc, ok := r.store.subgroups[eventID+"/"+subgroupID]
	if !ok {
		return nil, domain.ErrSubgroupNotFound
	}
	return copySubgroup(sc), nil
}

func (r *memEventRepo) ListSubgroupCapacities(ctx context.Context, eventID string) ([]*domain.SubgroupCapacity, error) {
	defer r.lock()()
	var out []*domain.SubgroupCapacity
	for _, sc := range r.store.subgroups {
		if sc.EventID == eventID {
			out = append(out, copySubgroup(sc))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SubgroupID < out[j].SubgroupID })
	return out, nil
}

func (r *memEventRepo) UpdateSubgroupCapacity(ctx context.Context, sc *domain.SubgroupCapacity) error {
	defer r.lock()()
	key := sc.EventID + "/" + sc.SubgroupID
	if _, ok := r.store.subgroups[key]; !ok {
		return domain.ErrSubgroupNotFound
	}
	r.store.subgroups[key] = copySubgroup(sc)
	return nil
}

// memEnrollmentRepo implements domain.EnrollmentRepository on memStore.
type memEnrollmentRepo struct {
	store *memStore
	inTx  bool
}

func (r *memEnrollmentRepo) lock() func() {
	if r.inTx {
		return func() {}
	}
	r.store.mu.Lock()
	return r.store.mu.Unlock
}

func (r *memEnrollmentRepo) Create(ctx context.Context, e *domain.Enrollment) error {
	defer r.lock()()
	for _, existing := range r.store.enrollments {
		if existing.EventID == e.EventID && existing.UserID == e.UserID {
			return domain.ErrAlreadyEnrolled
		}
	}
	e.ID = r.store.id("enr")
	r.store.enrollments[e.ID] = copyEnrollment(e)
	return nil
}

func (r *memEnrollmentRepo) GetByEventAndUser(ctx context.Context, eventID, userID string) (*domain.Enrollment, error) {
	defer r.lock()()
	for _, e := range r.store.enrollments {
		if e.EventID == eventID && e.UserID == userID {
			return copyEnrollment(e), nil
		}
	}
	return nil, domain.ErrNotFound
}

func (r *memEnrollmentRepo) Delete(ctx context.Context, id string) error {
	defer r.lock()()
	if _, ok := r.store.enrollments[id]; !ok {
		return domain.ErrNotFound
	}
	delete(r.store.enrollments, id)
	return nil
}

func (r *memEnrollmentRepo) CountByScope(ctx context.Context, scope domain.Scope) (int, int, error) {
	defer r.lock()()
	var titulars, alternates int
	for _, e := range r.store.scoped(scope) {
		if e.IsAlternate {
			alternates++
		} else {
			titulars++
		}
	}
	return titulars, alternates, nil
}

func (r *memEnrollmentRepo) NextAlternateOrder(ctx context.Context, scope domain.Scope) (int, error) {
	defer r.lock()()
	next := 1
	for _, e := range r.store.scoped(scope) {
		if e.IsAlternate && *e.AlternateOrder >= next {
			next = *e.AlternateOrder + 1
		}
	}
	return next, nil
}

func (r *memEnrollmentRepo) FirstAlternate(ctx context.Context, scope domain.Scope) (*domain.Enrollment, error) {
	defer r.lock()()
	for _, e := range r.store.scoped(scope) {
		if e.IsAlternate {
			return copyEnrollment(e), nil
		}
	}
	return nil, domain.ErrNotFound
}

func (r *memEnrollmentRepo) Promote(ctx context.Context, id string, at time.Time) error {
	defer r.lock()()
	e, ok := r.store.enrollments[id]
	if !ok || !e.IsAlternate {
		return domain.ErrNotFound
	}
	e.IsAlternate = false
	e.AlternateOrder = nil
	e.PromotedAt = &at
	return nil
}

func (r *memEnrollmentRepo) ShiftAlternatesAfter(ctx context.Context, scope domain.Scope, order int) error {
	defer r.lock()()
	for _, e := range r.store.scoped(scope) {
		if e.IsAlternate && *e.AlternateOrder > order {
			*e.AlternateOrder--
		}
	}
	return nil
}

func (r *memEnrollmentRepo) list(scope domain.Scope, alternates bool) []*domain.Enrollment {
	var out []*domain.Enrollment
	for _, e := range r.store.scoped(scope) {
		if e.IsAlternate == alternates {
			out = append(out, copyEnrollment(e))
		}
	}
	return out
}

func (r *memEnrollmentRepo) ListAlternates(ctx context.Context, scope domain.Scope) ([]*domain.Enrollment, error) {
	defer r.lock()()
	return r.list(scope, true), nil
}

func (r *memEnrollmentRepo) ListTitulars(ctx context.Context, scope domain.Scope) ([]*domain.Enrollment, error) {
	defer r.lock()()
	return r.list(scope, false), nil
}

func (r *memEnrollmentRepo) ListByEvent(ctx context.Context, eventID string) ([]*domain.Enrollment, error) {
	defer r.lock()()
	var out []*domain.Enrollment
	for _, e := range r.store.enrollments {
		if e.EventID == eventID {
			out = append(out, copyEnrollment(e))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *memEnrollmentRepo) ListByUserID(ctx context.Context, userID string, p domain.PaginationParams) ([]*domain.Enrollment, int, error) {
	defer r.lock()()
	var all []*domain.Enrollment
	for _, e := range r.store.enrollments {
		if e.UserID == userID {
			all = append(all, copyEnrollment(e))
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].EnrolledAt.After(all[j].EnrolledAt) })
	total := len(all)
	start := min(p.Offset(), total)
	end := total
	if p.Limit() > 0 {
		end = min(start+p.Limit(), total)
	}
	return all[start:end], total, nil
}

type memUserRepo struct {
	store *memStore
}

func (r *memUserRepo) GetByID(ctx context.Context, id string) (*domain.User, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	u, ok := r.store.users[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	c := *u
	return &c, nil
}

type memTx struct {
	events      *memEventRepo
	enrollments *memEnrollmentRepo
}

func (t *memTx) Events() domain.EventRepository           { return t.events }
func (t *memTx) Enrollments() domain.EnrollmentRepository { return t.enrollments }

// memUnitOfWork serializes every transaction on the store mutex, a coarser lock than the
// per-pool row locks of the Postgres implementation.
type memUnitOfWork struct {
	store  *memStore
	scopes []domain.Scope
}

func (u *memUnitOfWork) WithTransaction(ctx context.Context, scope domain.Scope, fn func(tx domain.Tx) error) error {
	u.store.mu.Lock()
	defer u.store.mu.Unlock()
	u.scopes = append(u.scopes, scope)
	if scope.EventID != "" {
		if _, ok := u.store.events[scope.EventID]; !ok {
			return domain.ErrEventNotFound
		}
		if scope.SubgroupID != nil {
			if _, ok := u.store.subgroups[scope.Key()]; !ok {
				return domain.ErrSubgroupNotFound
			}
		}
	}
	snap := u.store.snapshot()
	err := fn(&memTx{
		events:      &memEventRepo{store: u.store, inTx: true},
		enrollments: &memEnrollmentRepo{store: u.store, inTx: true},
	})
	if err != nil {
		u.store.restore(snap)
	}
	return err
}

type recordingNotifier struct {
	mu    sync.Mutex
	notes []domain.Notification
	err   error
}

func (n *recordingNotifier) Notify(ctx context.Context, note domain.Notification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notes = append(n.notes, note)
	return n.err
}

func (n *recordingNotifier) sent() []domain.Notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]domain.Notification(nil), n.notes...)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []string
	err    error
}

func (p *recordingPublisher) PublishStateChanged(ctx context.Context, eventID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, eventID)
	return p.err
}

func (p *recordingPublisher) published() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.events...)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

var fixedNow = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

// harness wires both services over one memStore.
type harness struct {
	store       *memStore
	uow         *memUnitOfWork
	notifier    *recordingNotifier
	publisher   *recordingPublisher
	enrollments *enrollmentService
	events      *eventService
	now         time.Time
}

func newHarness() *harness {
	store := newMemStore()
	h := &harness{
		store:     store,
		uow:       &memUnitOfWork{store: store},
		notifier:  &recordingNotifier{},
		publisher: &recordingPublisher{},
		now:       fixedNow,
	}
	eventRepo := &memEventRepo{store: store}
	enrollmentRepo := &memEnrollmentRepo{store: store}
	h.enrollments = newEnrollmentService(eventRepo, enrollmentRepo, h.uow, h.notifier, h.publisher, discardLogger(), 5*time.Second)
	h.enrollments.now = func() time.Time { return h.now }
	h.events = newEventService(eventRepo, enrollmentRepo, h.uow, h.notifier, h.publisher, discardLogger(), 5*time.Second)
	h.events.now = func() time.Time { return h.now }
	return h
}

// seedEvent stores an active event with the given capacities and returns its ID.
func (h *harness) seedEvent(capacity, alternateCapacity int, mutate ...func(*domain.Event)) string {
	h.store.mu.Lock()
	defer h.store.mu.Unlock()
	e := &domain.Event{
		ID:                h.store.id("ev"),
		Name:              "Salida al cerro",
		Date:              fixedNow.Add(7 * 24 * time.Hour),
		Location:          "Cerro Catedral",
		Capacity:          capacity,
		AlternateCapacity: alternateCapacity,
		State:             domain.EventStateActive,
		Category:          domain.EventCategoryOuting,
	}
	for _, m := range mutate {
		m(e)
	}
	h.store.events[e.ID] = e
	return e.ID
}

func (h *harness) seedSubgroup(eventID, subgroupID string, capacity, alternateCapacity int) {
	h.store.mu.Lock()
	defer h.store.mu.Unlock()
	h.store.subgroups[eventID+"/"+subgroupID] = &domain.SubgroupCapacity{
		EventID: eventID, SubgroupID: subgroupID, Capacity: capacity, AlternateCapacity: alternateCapacity,
	}
}

func (h *harness) enroll(eventID, userID string) (*domain.EnrollmentResult, error) {
	return h.enrollments.Enroll(context.Background(), &domain.EnrollmentRequest{EventID: eventID, UserID: userID})
}
