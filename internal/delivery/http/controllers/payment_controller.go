package controllers

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"communityevents/internal/delivery/http/helpers"
	"communityevents/internal/domain"
)

// SignatureHeader carries the hex HMAC-SHA256 of the raw webhook body.
const SignatureHeader = "X-Signature"

const maxWebhookBody = 64 << 10

// PaymentConfirmationRequest is the request body for POST /webhooks/payments.
type PaymentConfirmationRequest struct {
	PaymentID  string                `json:"payment_id" validate:"required,max=120"`
	Status     string                `json:"status" validate:"required"`
	Kind       string                `json:"kind" validate:"required"`
	UserID     string                `json:"user_id" validate:"required,uuid"`
	EventID    string                `json:"event_id" validate:"required,uuid"`
	SubgroupID *string               `json:"subgroup_id" validate:"omitempty,min=1,max=64"`
	Details    PaymentDetailsRequest `json:"details"`
}

// PaymentDetailsRequest is the registration form captured at checkout.
type PaymentDetailsRequest struct {
	Residence  string  `json:"residence" validate:"max=120"`
	Role       string  `json:"role" validate:"max=60"`
	FirstTime  bool    `json:"first_time"`
	Career     *string `json:"career" validate:"omitempty,max=120"`
	CareerYear *int    `json:"career_year" validate:"omitempty,min=1,max=10"`
	SenderName *string `json:"sender_name" validate:"omitempty,max=120"`
}

// Validate implements Validator.
func (p PaymentConfirmationRequest) Validate() []string {
	return helpers.ValidateStruct(p)
}

// PaymentResult is the body of POST /webhooks/payments.
type PaymentResult struct {
	Outcome domain.PaymentOutcome    `json:"outcome"`
	Result  *domain.EnrollmentResult `json:"result,omitempty"`
}

type PaymentController struct {
	Logger  *slog.Logger
	Service domain.PaymentService
	Secret  []byte
}

// NewPaymentController returns a controller for the payment webhook. An empty secret
// disables signature verification.
func NewPaymentController(logger *slog.Logger, svc domain.PaymentService, secret string) *PaymentController {
	return &PaymentController{
		Logger:  logger,
		Service: svc,
		Secret:  []byte(secret),
	}
}

// HandleWebhook godoc
// @Summary Payment confirmation webhook
// @Description Enrolls the payer when an approved paid-event payment arrives. Repeated deliveries report already_processed.
// @Tags payments
// @Accept json
// @Produce json
// @Param X-Signature header string false "Hex HMAC-SHA256 of the body"
// @Param body body PaymentConfirmationRequest true "Payment confirmation"
// @Success 200 {object} helpers.APIResponse "data.outcome is enrolled, already_processed or ignored"
// @Failure 400 {object} helpers.APIResponse "error.code: bad_request"
// @Failure 401 {object} helpers.APIResponse "error.code: unauthorized"
// @Failure 409 {object} helpers.APIResponse "error.code: event_not_active, deadline_passed, capacity_exhausted"
// @Router /webhooks/payments [post]
func (c *PaymentController) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		helpers.WriteJSONError(w, http.StatusBadRequest, helpers.ErrCodeBadRequest, "cannot read body")
		return
	}
	if !c.validSignature(r.Header.Get(SignatureHeader), body) {
		c.Logger.WarnContext(r.Context(), "payment webhook signature mismatch", "remote", r.RemoteAddr)
		helpers.WriteJSONError(w, http.StatusUnauthorized, helpers.ErrCodeUnauthorized, "invalid signature")
		return
	}
	r.Body = io.NopCloser(bytes.NewReader(body))
	var req PaymentConfirmationRequest
	if !helpers.DecodeAndValidate(w, r, &req) {
		return
	}
	outcome, result, err := c.Service.HandlePayment(r.Context(), &domain.PaymentConfirmation{
		PaymentID:  req.PaymentID,
		Status:     strings.ToLower(strings.TrimSpace(req.Status)),
		Kind:       strings.TrimSpace(req.Kind),
		UserID:     req.UserID,
		EventID:    req.EventID,
		SubgroupID: req.SubgroupID,
		Details: domain.RegistrationDetails{
			Residence:  strings.TrimSpace(req.Details.Residence),
			Role:       strings.TrimSpace(req.Details.Role),
			FirstTime:  req.Details.FirstTime,
			Career:     req.Details.Career,
			CareerYear: req.Details.CareerYear,
			SenderName: req.Details.SenderName,
		},
	})
	if err != nil {
		helpers.WriteServiceError(w, r, c.Logger, err)
		return
	}
	c.Logger.InfoContext(r.Context(), "payment webhook handled", "payment_id", req.PaymentID, "outcome", outcome)
	helpers.WriteJSONSuccess(w, http.StatusOK, PaymentResult{Outcome: outcome, Result: result})
}

func (c *PaymentController) validSignature(header string, body []byte) bool {
	if len(c.Secret) == 0 {
		return true
	}
	got, err := hex.DecodeString(strings.TrimSpace(header))
	if err != nil || len(got) == 0 {
		return false
	}
	mac := hmac.New(sha256.New, c.Secret)
	mac.Write(body)
	return hmac.Equal(got, mac.Sum(nil))
}
