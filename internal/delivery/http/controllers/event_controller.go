package controllers

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"communityevents/internal/delivery/http/helpers"
	"communityevents/internal/domain"
)

// SubgroupCapacityRequest is one subgroup pool in CreateEventRequest.
type SubgroupCapacityRequest struct {
	SubgroupID        string `json:"subgroup_id" validate:"required,max=64"`
	Capacity          int    `json:"capacity" validate:"gte=0"`
	AlternateCapacity int    `json:"alternate_capacity" validate:"gte=0"`
}

// CreateEventRequest is the request body for POST /events. When subgroups are given the
// event capacities are their sums.
type CreateEventRequest struct {
	Name                string                    `json:"name" validate:"required,max=200"`
	Date                time.Time                 `json:"date" validate:"required"`
	Description         *string                   `json:"description"`
	Location            string                    `json:"location" validate:"required,max=200"`
	Capacity            int                       `json:"capacity" validate:"gte=0"`
	AlternateCapacity   int                       `json:"alternate_capacity" validate:"gte=0"`
	InscriptionDeadline *time.Time                `json:"inscription_deadline"`
	WithdrawalDeadline  *time.Time                `json:"withdrawal_deadline"`
	Category            string                    `json:"category" validate:"omitempty,oneof=salida normal pago"`
	Cost                *float64                  `json:"cost" validate:"omitempty,gt=0"`
	DestinationAccount  *string                   `json:"destination_account" validate:"omitempty,max=120"`
	Subgroups           []SubgroupCapacityRequest `json:"subgroups" validate:"omitempty,dive"`
}

// Validate implements Validator.
func (c CreateEventRequest) Validate() []string {
	errs := helpers.ValidateStruct(c)
	if c.Category == string(domain.EventCategoryPaid) && c.Cost == nil {
		errs = append(errs, "cost is required for paid events")
	}
	return errs
}

// UpdateEventRequest is the request body for PATCH /events/{eventID}. All fields optional; omitted fields are unchanged.
type UpdateEventRequest struct {
	Date                *time.Time `json:"date"`
	Description         *string    `json:"description"`
	Location            *string    `json:"location" validate:"omitempty,min=1,max=200"`
	Capacity            *int       `json:"capacity" validate:"omitempty,gte=0"`
	AlternateCapacity   *int       `json:"alternate_capacity" validate:"omitempty,gte=0"`
	InscriptionDeadline *time.Time `json:"inscription_deadline"`
	WithdrawalDeadline  *time.Time `json:"withdrawal_deadline"`
	Cost                *float64   `json:"cost" validate:"omitempty,gt=0"`
	DestinationAccount  *string    `json:"destination_account" validate:"omitempty,max=120"`
}

// Validate implements Validator.
func (u UpdateEventRequest) Validate() []string {
	return helpers.ValidateStruct(u)
}

// UpdateSubgroupCapacityRequest is the request body for PATCH /events/{eventID}/subgroups/{subgroupID}.
type UpdateSubgroupCapacityRequest struct {
	Capacity          *int `json:"capacity" validate:"omitempty,gte=0"`
	AlternateCapacity *int `json:"alternate_capacity" validate:"omitempty,gte=0"`
}

// Validate implements Validator.
func (u UpdateSubgroupCapacityRequest) Validate() []string {
	errs := helpers.ValidateStruct(u)
	if u.Capacity == nil && u.AlternateCapacity == nil {
		errs = append(errs, "capacity or alternate_capacity is required")
	}
	return errs
}

// EventDetail is the body of GET /events/{eventID}.
type EventDetail struct {
	Event     *domain.Event              `json:"event"`
	Subgroups []*domain.SubgroupCapacity `json:"subgroups"`
}

// EventUpdateResult is the body of PATCH /events/{eventID}.
type EventUpdateResult struct {
	Event      *domain.Event       `json:"event"`
	Promotions []*domain.Promotion `json:"promotions"`
}

// SubgroupUpdateResult is the body of PATCH /events/{eventID}/subgroups/{subgroupID}.
type SubgroupUpdateResult struct {
	Subgroup   *domain.SubgroupCapacity `json:"subgroup"`
	Promotions []*domain.Promotion      `json:"promotions"`
}

// EventSuccessResponse is the success response envelope for endpoints returning one event.
type EventSuccessResponse struct {
	Data  *domain.Event     `json:"data"`
	Error *helpers.APIError `json:"error"`
}

// ListEventsResponse is the paginated body of GET /events.
type ListEventsResponse struct {
	Items      []*domain.EventSummary `json:"items"`
	Pagination helpers.PaginationMeta `json:"pagination"`
}

type EventController struct {
	Logger  *slog.Logger
	Service domain.EventService
}

func NewEventController(logger *slog.Logger, svc domain.EventService) *EventController {
	return &EventController{
		Logger:  logger,
		Service: svc,
	}
}

// CreateEvent godoc
// @Summary Create an event
// @Description Creates an active event, optionally split into subgroup capacity pools. Admin only.
// @Tags events
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param event body CreateEventRequest true "Event data"
// @Success 201 {object} controllers.EventSuccessResponse "data contains the created event"
// @Failure 400 {object} helpers.APIResponse "error.code: bad_request"
// @Failure 401 {object} helpers.APIResponse "error.code: unauthorized"
// @Failure 403 {object} helpers.APIResponse "error.code: forbidden"
// @Router /events [post]
func (c *EventController) CreateEvent(w http.ResponseWriter, r *http.Request) {
	var req CreateEventRequest
	if !helpers.DecodeAndValidate(w, r, &req) {
		return
	}
	category := domain.EventCategory(req.Category)
	event := &domain.Event{
		Name:                strings.TrimSpace(req.Name),
		Date:                req.Date,
		Description:         req.Description,
		Location:            strings.TrimSpace(req.Location),
		Capacity:            req.Capacity,
		AlternateCapacity:   req.AlternateCapacity,
		InscriptionDeadline: req.InscriptionDeadline,
		WithdrawalDeadline:  req.WithdrawalDeadline,
		Category:            category,
		Cost:                req.Cost,
		DestinationAccount:  req.DestinationAccount,
	}
	subgroups := make([]*domain.SubgroupCapacity, 0, len(req.Subgroups))
	for _, sg := range req.Subgroups {
		subgroups = append(subgroups, &domain.SubgroupCapacity{
			SubgroupID:        strings.TrimSpace(sg.SubgroupID),
			Capacity:          sg.Capacity,
			AlternateCapacity: sg.AlternateCapacity,
		})
	}
	if err := c.Service.CreateEvent(r.Context(), event, subgroups); err != nil {
		helpers.WriteServiceError(w, r, c.Logger, err)
		return
	}
	helpers.WriteJSONSuccess(w, http.StatusCreated, event)
}

// ListEvents godoc
// @Summary List events
// @Description Events ordered by date with combined titular and alternate availability.
// @Tags events
// @Produce json
// @Param state query string false "Lifecycle state filter" Enums(vigente, transcurrido, cancelado)
// @Param page query int false "Page number (default 1)"
// @Param page_size query int false "Page size (default 20, max 100)"
// @Success 200 {object} helpers.APIResponse "data contains items and pagination"
// @Failure 400 {object} helpers.APIResponse "error.code: bad_request"
// @Router /events [get]
func (c *EventController) ListEvents(w http.ResponseWriter, r *http.Request) {
	var state *domain.EventState
	if raw := strings.TrimSpace(r.URL.Query().Get("state")); raw != "" {
		s := domain.EventState(raw)
		if !s.Valid() {
			helpers.WriteJSONError(w, http.StatusBadRequest, helpers.ErrCodeBadRequest, "state must be one of vigente, transcurrido, cancelado")
			return
		}
		state = &s
	}
	params := helpers.ParsePagination(r)
	items, total, err := c.Service.ListEvents(r.Context(), state, params)
	if err != nil {
		helpers.WriteServiceError(w, r, c.Logger, err)
		return
	}
	if items == nil {
		items = []*domain.EventSummary{}
	}
	meta := helpers.NewPaginationMeta(params.Page, params.PageSize, total)
	helpers.WriteJSONSuccess(w, http.StatusOK, ListEventsResponse{Items: items, Pagination: meta})
}

// GetEvent godoc
// @Summary Get an event
// @Description Returns the event and its subgroup capacity pools.
// @Tags events
// @Produce json
// @Param eventID path string true "Event ID (UUID)"
// @Success 200 {object} helpers.APIResponse "data contains event and subgroups"
// @Failure 404 {object} helpers.APIResponse "error.code: event_not_found"
// @Router /events/{eventID} [get]
func (c *EventController) GetEvent(w http.ResponseWriter, r *http.Request) {
	eventID, ok := helpers.PathUUID(w, r, "eventID")
	if !ok {
		return
	}
	event, err := c.Service.GetEvent(r.Context(), eventID)
	if err != nil {
		helpers.WriteServiceError(w, r, c.Logger, err)
		return
	}
	subgroups, err := c.Service.ListSubgroupCapacities(r.Context(), eventID)
	if err != nil {
		helpers.WriteServiceError(w, r, c.Logger, err)
		return
	}
	if subgroups == nil {
		subgroups = []*domain.SubgroupCapacity{}
	}
	helpers.WriteJSONSuccess(w, http.StatusOK, EventDetail{Event: event, Subgroups: subgroups})
}

// UpdateEvent godoc
// @Summary Update an event
// @Description Partial update of an active event. Raising capacity promotes alternates in waitlist order. Admin only.
// @Tags events
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param eventID path string true "Event ID (UUID)"
// @Param body body UpdateEventRequest true "Fields to update (all optional)"
// @Success 200 {object} helpers.APIResponse "data contains event and promotions"
// @Failure 400 {object} helpers.APIResponse "error.code: bad_request"
// @Failure 404 {object} helpers.APIResponse "error.code: event_not_found"
// @Failure 409 {object} helpers.APIResponse "error.code: event_not_active"
// @Failure 422 {object} helpers.APIResponse "error.code: invalid_capacity_edit"
// @Router /events/{eventID} [patch]
func (c *EventController) UpdateEvent(w http.ResponseWriter, r *http.Request) {
	eventID, ok := helpers.PathUUID(w, r, "eventID")
	if !ok {
		return
	}
	var req UpdateEventRequest
	if !helpers.DecodeAndValidate(w, r, &req) {
		return
	}
	event, promotions, err := c.Service.UpdateEvent(r.Context(), eventID, &domain.EventUpdate{
		Date:                req.Date,
		Description:         req.Description,
		Location:            req.Location,
		Capacity:            req.Capacity,
		AlternateCapacity:   req.AlternateCapacity,
		InscriptionDeadline: req.InscriptionDeadline,
		WithdrawalDeadline:  req.WithdrawalDeadline,
		Cost:                req.Cost,
		DestinationAccount:  req.DestinationAccount,
	})
	if err != nil {
		helpers.WriteServiceError(w, r, c.Logger, err)
		return
	}
	if promotions == nil {
		promotions = []*domain.Promotion{}
	}
	helpers.WriteJSONSuccess(w, http.StatusOK, EventUpdateResult{Event: event, Promotions: promotions})
}

// UpdateSubgroupCapacity godoc
// @Summary Update a subgroup capacity pool
// @Tags events
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param eventID path string true "Event ID (UUID)"
// @Param subgroupID path string true "Subgroup ID"
// @Param body body UpdateSubgroupCapacityRequest true "New capacities"
// @Success 200 {object} helpers.APIResponse "data contains subgroup and promotions"
// @Failure 404 {object} helpers.APIResponse "error.code: event_not_found, not_found"
// @Failure 409 {object} helpers.APIResponse "error.code: event_not_active"
// @Failure 422 {object} helpers.APIResponse "error.code: invalid_capacity_edit"
// @Router /events/{eventID}/subgroups/{subgroupID} [patch]
func (c *EventController) UpdateSubgroupCapacity(w http.ResponseWriter, r *http.Request) {
	eventID, ok := helpers.PathUUID(w, r, "eventID")
	if !ok {
		return
	}
	subgroupID := strings.TrimSpace(r.PathValue("subgroupID"))
	if subgroupID == "" {
		helpers.WriteJSONError(w, http.StatusBadRequest, helpers.ErrCodeBadRequest, "missing subgroupID")
		return
	}
	var req UpdateSubgroupCapacityRequest
	if !helpers.DecodeAndValidate(w, r, &req) {
		return
	}
	sc, promotions, err := c.Service.UpdateSubgroupCapacity(r.Context(), eventID, subgroupID, &domain.CapacityUpdate{
		Capacity:          req.Capacity,
		AlternateCapacity: req.AlternateCapacity,
	})
	if err != nil {
		helpers.WriteServiceError(w, r, c.Logger, err)
		return
	}
	if promotions == nil {
		promotions = []*domain.Promotion{}
	}
	helpers.WriteJSONSuccess(w, http.StatusOK, SubgroupUpdateResult{Subgroup: sc, Promotions: promotions})
}

// CancelEvent godoc
// @Summary Cancel an event
// @Description Moves an active event to cancelado and notifies every enrollee. Admin only.
// @Tags events
// @Produce json
// @Security BearerAuth
// @Param eventID path string true "Event ID (UUID)"
// @Success 200 {object} controllers.EventSuccessResponse
// @Failure 404 {object} helpers.APIResponse "error.code: event_not_found"
// @Failure 409 {object} helpers.APIResponse "error.code: event_not_active"
// @Router /events/{eventID}/cancel [post]
func (c *EventController) CancelEvent(w http.ResponseWriter, r *http.Request) {
	eventID, ok := helpers.PathUUID(w, r, "eventID")
	if !ok {
		return
	}
	event, err := c.Service.CancelEvent(r.Context(), eventID)
	if err != nil {
		helpers.WriteServiceError(w, r, c.Logger, err)
		return
	}
	helpers.WriteJSONSuccess(w, http.StatusOK, event)
}
