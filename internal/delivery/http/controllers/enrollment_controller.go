package controllers

import (
	"log/slog"
	"net/http"
	"strings"

	"communityevents/internal/delivery/http/helpers"
	"communityevents/internal/delivery/http/middleware"
	"communityevents/internal/domain"
)

// EnrollRequest is the request body for POST /events/{eventID}/enrollments.
type EnrollRequest struct {
	SubgroupID *string `json:"subgroup_id" validate:"omitempty,min=1,max=64"`
	Residence  string  `json:"residence" validate:"required,max=120"`
	Role       string  `json:"role" validate:"required,max=60"`
	FirstTime  bool    `json:"first_time"`
	Career     *string `json:"career" validate:"omitempty,max=120"`
	CareerYear *int    `json:"career_year" validate:"omitempty,min=1,max=10"`
	SenderName *string `json:"sender_name" validate:"omitempty,max=120"`
}

// Validate implements Validator.
func (e EnrollRequest) Validate() []string {
	return helpers.ValidateStruct(e)
}

// EnrollSuccessResponse is the success response envelope for POST /events/{eventID}/enrollments (201).
type EnrollSuccessResponse struct {
	Data  *domain.EnrollmentResult `json:"data"`
	Error *helpers.APIError        `json:"error"`
}

// WithdrawSuccessResponse is the success response envelope for DELETE /events/{eventID}/enrollments/me (200).
type WithdrawSuccessResponse struct {
	Data  *domain.WithdrawalResult `json:"data"`
	Error *helpers.APIError        `json:"error"`
}

// CapacitySuccessResponse is the success response envelope for GET /events/{eventID}/capacity (200).
type CapacitySuccessResponse struct {
	Data  *domain.CapacityStats `json:"data"`
	Error *helpers.APIError     `json:"error"`
}

// EnrollmentListSuccessResponse is the success response envelope for alternate and titular lists (200).
type EnrollmentListSuccessResponse struct {
	Data  []*domain.Enrollment `json:"data"`
	Error *helpers.APIError    `json:"error"`
}

// ListMyEnrollmentsResponse is the paginated body of GET /me/enrollments.
type ListMyEnrollmentsResponse struct {
	Items      []*domain.EnrollmentWithEvent `json:"items"`
	Pagination helpers.PaginationMeta        `json:"pagination"`
}

type EnrollmentController struct {
	Logger  *slog.Logger
	Service domain.EnrollmentService
}

func NewEnrollmentController(logger *slog.Logger, svc domain.EnrollmentService) *EnrollmentController {
	return &EnrollmentController{
		Logger:  logger,
		Service: svc,
	}
}

// Enroll godoc
// @Summary Enroll in an event
// @Description Enrolls the authenticated user as titular when a seat is free, otherwise at the end of the waitlist.
// @Tags enrollments
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param eventID path string true "Event ID (UUID)"
// @Param body body EnrollRequest true "Registration details"
// @Success 201 {object} controllers.EnrollSuccessResponse "data.placement is titular or alternate"
// @Failure 400 {object} helpers.APIResponse "error.code: bad_request"
// @Failure 401 {object} helpers.APIResponse "error.code: unauthorized"
// @Failure 404 {object} helpers.APIResponse "error.code: event_not_found"
// @Failure 409 {object} helpers.APIResponse "error.code: event_not_active, deadline_passed, already_enrolled, capacity_exhausted"
// @Failure 503 {object} helpers.APIResponse "error.code: transaction_conflict"
// @Router /events/{eventID}/enrollments [post]
func (c *EnrollmentController) Enroll(w http.ResponseWriter, r *http.Request) {
	eventID, ok := helpers.PathUUID(w, r, "eventID")
	if !ok {
		return
	}
	var req EnrollRequest
	if !helpers.DecodeAndValidate(w, r, &req) {
		return
	}
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		helpers.WriteJSONError(w, http.StatusUnauthorized, helpers.ErrCodeUnauthorized, "unauthorized")
		return
	}
	result, err := c.Service.Enroll(r.Context(), &domain.EnrollmentRequest{
		EventID:    eventID,
		UserID:     userID,
		SubgroupID: req.SubgroupID,
		Details: domain.RegistrationDetails{
			Residence:  strings.TrimSpace(req.Residence),
			Role:       strings.TrimSpace(req.Role),
			FirstTime:  req.FirstTime,
			Career:     req.Career,
			CareerYear: req.CareerYear,
			SenderName: req.SenderName,
		},
	})
	if err != nil {
		helpers.WriteServiceError(w, r, c.Logger, err)
		return
	}
	helpers.WriteJSONSuccess(w, http.StatusCreated, result)
}

// Withdraw godoc
// @Summary Withdraw from an event
// @Description Removes the authenticated user's enrollment. A titular leaving promotes the head of the waitlist.
// @Tags enrollments
// @Produce json
// @Security BearerAuth
// @Param eventID path string true "Event ID (UUID)"
// @Param subgroup_id query string false "Subgroup the enrollment belongs to"
// @Success 200 {object} controllers.WithdrawSuccessResponse "data.promotion is set when an alternate was promoted"
// @Failure 401 {object} helpers.APIResponse "error.code: unauthorized"
// @Failure 404 {object} helpers.APIResponse "error.code: event_not_found, not_enrolled"
// @Failure 409 {object} helpers.APIResponse "error.code: deadline_passed"
// @Failure 503 {object} helpers.APIResponse "error.code: transaction_conflict"
// @Router /events/{eventID}/enrollments/me [delete]
func (c *EnrollmentController) Withdraw(w http.ResponseWriter, r *http.Request) {
	eventID, ok := helpers.PathUUID(w, r, "eventID")
	if !ok {
		return
	}
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		helpers.WriteJSONError(w, http.StatusUnauthorized, helpers.ErrCodeUnauthorized, "unauthorized")
		return
	}
	result, err := c.Service.Withdraw(r.Context(), helpers.ScopeFromQuery(r, eventID), userID)
	if err != nil {
		helpers.WriteServiceError(w, r, c.Logger, err)
		return
	}
	helpers.WriteJSONSuccess(w, http.StatusOK, result)
}

// GetMyEnrollment godoc
// @Summary Get my enrollment in an event
// @Tags enrollments
// @Produce json
// @Security BearerAuth
// @Param eventID path string true "Event ID (UUID)"
// @Success 200 {object} helpers.APIResponse "data contains the enrollment"
// @Failure 401 {object} helpers.APIResponse "error.code: unauthorized"
// @Failure 404 {object} helpers.APIResponse "error.code: event_not_found, not_enrolled"
// @Router /events/{eventID}/enrollments/me [get]
func (c *EnrollmentController) GetMyEnrollment(w http.ResponseWriter, r *http.Request) {
	eventID, ok := helpers.PathUUID(w, r, "eventID")
	if !ok {
		return
	}
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		helpers.WriteJSONError(w, http.StatusUnauthorized, helpers.ErrCodeUnauthorized, "unauthorized")
		return
	}
	e, err := c.Service.GetMyEnrollment(r.Context(), eventID, userID)
	if err != nil {
		helpers.WriteServiceError(w, r, c.Logger, err)
		return
	}
	helpers.WriteJSONSuccess(w, http.StatusOK, e)
}

// ListMyEnrollments godoc
// @Summary List my enrollments
// @Description Enrollments of the authenticated user with their events, newest first.
// @Tags enrollments
// @Produce json
// @Security BearerAuth
// @Param page query int false "Page number (default 1)"
// @Param page_size query int false "Page size (default 20, max 100)"
// @Success 200 {object} helpers.APIResponse "data contains items and pagination"
// @Failure 401 {object} helpers.APIResponse "error.code: unauthorized"
// @Router /me/enrollments [get]
func (c *EnrollmentController) ListMyEnrollments(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		helpers.WriteJSONError(w, http.StatusUnauthorized, helpers.ErrCodeUnauthorized, "unauthorized")
		return
	}
	params := helpers.ParsePagination(r)
	items, total, err := c.Service.ListMyEnrollments(r.Context(), userID, params)
	if err != nil {
		helpers.WriteServiceError(w, r, c.Logger, err)
		return
	}
	if items == nil {
		items = []*domain.EnrollmentWithEvent{}
	}
	meta := helpers.NewPaginationMeta(params.Page, params.PageSize, total)
	helpers.WriteJSONSuccess(w, http.StatusOK, ListMyEnrollmentsResponse{Items: items, Pagination: meta})
}

// GetCapacity godoc
// @Summary Capacity of an event or subgroup
// @Tags enrollments
// @Produce json
// @Param eventID path string true "Event ID (UUID)"
// @Param subgroup_id query string false "Subgroup capacity pool"
// @Success 200 {object} controllers.CapacitySuccessResponse
// @Failure 404 {object} helpers.APIResponse "error.code: event_not_found, not_found"
// @Router /events/{eventID}/capacity [get]
func (c *EnrollmentController) GetCapacity(w http.ResponseWriter, r *http.Request) {
	eventID, ok := helpers.PathUUID(w, r, "eventID")
	if !ok {
		return
	}
	stats, err := c.Service.GetCapacityStats(r.Context(), helpers.ScopeFromQuery(r, eventID))
	if err != nil {
		helpers.WriteServiceError(w, r, c.Logger, err)
		return
	}
	helpers.WriteJSONSuccess(w, http.StatusOK, stats)
}

// ListAlternates godoc
// @Summary List the waitlist
// @Description Alternates ordered by waitlist position.
// @Tags enrollments
// @Produce json
// @Security BearerAuth
// @Param eventID path string true "Event ID (UUID)"
// @Param subgroup_id query string false "Subgroup capacity pool"
// @Success 200 {object} controllers.EnrollmentListSuccessResponse
// @Failure 404 {object} helpers.APIResponse "error.code: event_not_found, not_found"
// @Router /events/{eventID}/alternates [get]
func (c *EnrollmentController) ListAlternates(w http.ResponseWriter, r *http.Request) {
	eventID, ok := helpers.PathUUID(w, r, "eventID")
	if !ok {
		return
	}
	list, err := c.Service.ListAlternates(r.Context(), helpers.ScopeFromQuery(r, eventID))
	if err != nil {
		helpers.WriteServiceError(w, r, c.Logger, err)
		return
	}
	if list == nil {
		list = []*domain.Enrollment{}
	}
	helpers.WriteJSONSuccess(w, http.StatusOK, list)
}

// ListTitulars godoc
// @Summary List titulars
// @Tags enrollments
// @Produce json
// @Security BearerAuth
// @Param eventID path string true "Event ID (UUID)"
// @Param subgroup_id query string false "Subgroup capacity pool"
// @Success 200 {object} controllers.EnrollmentListSuccessResponse
// @Failure 403 {object} helpers.APIResponse "error.code: forbidden"
// @Failure 404 {object} helpers.APIResponse "error.code: event_not_found, not_found"
// @Router /events/{eventID}/titulars [get]
func (c *EnrollmentController) ListTitulars(w http.ResponseWriter, r *http.Request) {
	eventID, ok := helpers.PathUUID(w, r, "eventID")
	if !ok {
		return
	}
	list, err := c.Service.ListTitulars(r.Context(), helpers.ScopeFromQuery(r, eventID))
	if err != nil {
		helpers.WriteServiceError(w, r, c.Logger, err)
		return
	}
	if list == nil {
		list = []*domain.Enrollment{}
	}
	helpers.WriteJSONSuccess(w, http.StatusOK, list)
}

// RemoveAlternate godoc
// @Summary Remove an alternate from the waitlist
// @Description Admin removal of one alternate. Remaining alternates are renumbered; nobody is promoted.
// @Tags enrollments
// @Security BearerAuth
// @Param eventID path string true "Event ID (UUID)"
// @Param userID path string true "User ID (UUID)"
// @Param subgroup_id query string false "Subgroup capacity pool"
// @Success 204 "No Content"
// @Failure 403 {object} helpers.APIResponse "error.code: forbidden"
// @Failure 404 {object} helpers.APIResponse "error.code: event_not_found, not_enrolled"
// @Router /events/{eventID}/alternates/{userID} [delete]
func (c *EnrollmentController) RemoveAlternate(w http.ResponseWriter, r *http.Request) {
	eventID, ok := helpers.PathUUID(w, r, "eventID")
	if !ok {
		return
	}
	userID, ok := helpers.PathUUID(w, r, "userID")
	if !ok {
		return
	}
	if err := c.Service.RemoveAlternate(r.Context(), helpers.ScopeFromQuery(r, eventID), userID); err != nil {
		helpers.WriteServiceError(w, r, c.Logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// RemoveEnrollment godoc
// @Summary Remove a user's enrollment
// @Description Admin removal of a titular or alternate, ignoring the withdrawal deadline. A freed titular seat promotes the head of the waitlist.
// @Tags enrollments
// @Produce json
// @Security BearerAuth
// @Param eventID path string true "Event ID (UUID)"
// @Param userID path string true "User ID (UUID)"
// @Param subgroup_id query string false "Subgroup capacity pool"
// @Success 200 {object} controllers.WithdrawSuccessResponse "data.promotion is set when an alternate was promoted"
// @Failure 403 {object} helpers.APIResponse "error.code: forbidden"
// @Failure 404 {object} helpers.APIResponse "error.code: event_not_found, not_enrolled"
// @Failure 503 {object} helpers.APIResponse "error.code: transaction_conflict"
// @Router /events/{eventID}/enrollments/{userID} [delete]
func (c *EnrollmentController) RemoveEnrollment(w http.ResponseWriter, r *http.Request) {
	eventID, ok := helpers.PathUUID(w, r, "eventID")
	if !ok {
		return
	}
	userID, ok := helpers.PathUUID(w, r, "userID")
	if !ok {
		return
	}
	result, err := c.Service.RemoveEnrollment(r.Context(), helpers.ScopeFromQuery(r, eventID), userID)
	if err != nil {
		helpers.WriteServiceError(w, r, c.Logger, err)
		return
	}
	helpers.WriteJSONSuccess(w, http.StatusOK, result)
}
