package routes

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/chartsync/chartsync-api/internal/handlers"
)

// NewRouter sets up the API routes
func NewRouter(auth *handlers.AuthHandler, run *handlers.RunHandler, notif *handlers.NotificationHandler) *mux.Router {
	router := mux.NewRouter()

	// Health check route
	router.HandleFunc("/health", handlers.HealthCheck).Methods(http.MethodGet)

	// Public auth endpoints
	router.HandleFunc("/api/signup", auth.SignUp).Methods(http.MethodPost)
	router.HandleFunc("/api/login", auth.Login).Methods(http.MethodPost)

	// Everything below requires a valid token.
	api := router.PathPrefix("/api").Subrouter()
	api.Use(auth.JWTMiddleware)

	api.HandleFunc("/runs", run.CreateRun).Methods(http.MethodPost)
	api.HandleFunc("/runs", run.ListRuns).Methods(http.MethodGet)
	api.HandleFunc("/runs/{runID}", run.GetRun).Methods(http.MethodGet)
	api.HandleFunc("/runs/{runID}/failed-records", run.FailedRecords).Methods(http.MethodGet)

	api.HandleFunc("/notifications", notif.List).Methods(http.MethodGet)
	api.HandleFunc("/notifications/{notificationID}/read", notif.MarkRead).Methods(http.MethodPost)

	return router
}
