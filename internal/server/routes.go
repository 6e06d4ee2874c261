// Package server wires HTTP handlers into a gorilla/mux router for the
// WanderChat application via routing helpers.
package server

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// SetupRoutes configures and returns the router with all application routes.
func SetupRoutes(a *App) *mux.Router {
	r := mux.NewRouter()
	r.Use(requestLogger(a.log.Named("http")))

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/health", a.APIHealthHandler).Methods(http.MethodGet)
	api.HandleFunc("/log", a.ClientLogHandler).Methods(http.MethodPost)
	api.HandleFunc("/register", a.auth.Register).Methods(http.MethodPost)
	api.HandleFunc("/login", a.auth.Login).Methods(http.MethodPost)
	api.HandleFunc("/guest-login", a.auth.GuestLogin).Methods(http.MethodPost)
	api.HandleFunc("/logout", a.auth.Logout).Methods(http.MethodPost)
	api.HandleFunc("/user", a.auth.CurrentUser).Methods(http.MethodGet)

	r.HandleFunc(a.cfg.Paths.Messaging, a.MessagingWebSocketHandler)
	r.HandleFunc(a.cfg.Paths.Room, a.RoomWebSocketHandler)
	r.HandleFunc("/test", a.TestPageHandler).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	r.HandleFunc("/", HealthHandler)

	return r
}
