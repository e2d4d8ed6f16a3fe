package http

import (
	"log/slog"
	"net/http"

	httpSwagger "github.com/swaggo/http-swagger"

	"communityevents/internal/delivery/http/controllers"
	"communityevents/internal/delivery/http/helpers"
	"communityevents/internal/delivery/http/middleware"
	"communityevents/internal/domain"
)

// NewRouter initializes the HTTP router with all application routes
func NewRouter(
	enrollments *controllers.EnrollmentController,
	events *controllers.EventController,
	payments *controllers.PaymentController,
	verifier domain.TokenVerifier,
	logger *slog.Logger,
) *http.ServeMux {
	mux := http.NewServeMux()
	auth := middleware.RequireAuth(verifier, logger)
	admin := func(next http.HandlerFunc) http.HandlerFunc {
		return auth(middleware.RequireRole(domain.RoleAdmin)(next))
	}

	// Events
	mux.HandleFunc("POST /events", admin(events.CreateEvent))
	mux.HandleFunc("GET /events", events.ListEvents)
	mux.HandleFunc("GET /events/{eventID}", events.GetEvent)
	mux.HandleFunc("PATCH /events/{eventID}", admin(events.UpdateEvent))
	mux.HandleFunc("PATCH /events/{eventID}/subgroups/{subgroupID}", admin(events.UpdateSubgroupCapacity))
	mux.HandleFunc("POST /events/{eventID}/cancel", admin(events.CancelEvent))

	// Enrollments
	mux.HandleFunc("POST /events/{eventID}/enrollments", auth(enrollments.Enroll))
	mux.HandleFunc("GET /events/{eventID}/enrollments/me", auth(enrollments.GetMyEnrollment))
	mux.HandleFunc("DELETE /events/{eventID}/enrollments/me", auth(enrollments.Withdraw))
	mux.HandleFunc("DELETE /events/{eventID}/enrollments/{userID}", admin(enrollments.RemoveEnrollment))
	mux.HandleFunc("GET /me/enrollments", auth(enrollments.ListMyEnrollments))
	mux.HandleFunc("GET /events/{eventID}/capacity", enrollments.GetCapacity)
	mux.HandleFunc("GET /events/{eventID}/alternates", auth(enrollments.ListAlternates))
	mux.HandleFunc("DELETE /events/{eventID}/alternates/{userID}", admin(enrollments.RemoveAlternate))
	mux.HandleFunc("GET /events/{eventID}/titulars", admin(enrollments.ListTitulars))

	// Payments
	mux.HandleFunc("POST /webhooks/payments", payments.HandleWebhook)

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, _ *http.Request) {
		helpers.WriteJSONSuccess(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	// Swagger
	mux.Handle("/swagger/", httpSwagger.WrapHandler)

	return mux
}
