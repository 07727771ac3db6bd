package api

import (
	"net/http"

	"github.com/gorilla/mux"
)

// NewRouter builds the full HTTP surface: public auth endpoints, the
// authenticated API, and the WebSocket feed bridge.
func NewRouter(h *Handler) *mux.Router {
	router := mux.NewRouter()
	router.Use(LoggingMiddleware)

	router.HandleFunc("/health", h.Health).Methods(http.MethodGet)
	router.HandleFunc("/api/auth/register", h.Register).Methods(http.MethodPost)
	router.HandleFunc("/api/auth/login", h.Login).Methods(http.MethodPost)

	authed := router.PathPrefix("/api").Subrouter()
	authed.Use(AuthMiddleware)

	authed.HandleFunc("/profile", h.GetProfile).Methods(http.MethodGet)
	authed.HandleFunc("/profile/username", h.UpdateUsername).Methods(http.MethodPatch)

	authed.HandleFunc("/messages", h.SendMessage).Methods(http.MethodPost)
	authed.HandleFunc("/messages", h.Thread).Methods(http.MethodGet)
	authed.HandleFunc("/messages/history", h.MessageHistory).Methods(http.MethodGet)
	authed.HandleFunc("/messages/unread", h.UnreadMessages).Methods(http.MethodGet)
	authed.HandleFunc("/messages/read", h.MarkMessagesRead).Methods(http.MethodPost)
	authed.HandleFunc("/messages/{id}", h.EditMessage).Methods(http.MethodPatch)
	authed.HandleFunc("/messages/{id}", h.DeleteMessage).Methods(http.MethodDelete)

	authed.HandleFunc("/notifications", h.ListNotifications).Methods(http.MethodGet)
	authed.HandleFunc("/notifications", h.ClearNotifications).Methods(http.MethodDelete)
	authed.HandleFunc("/notifications/{id}/read", h.MarkNotificationRead).Methods(http.MethodPost)
	authed.HandleFunc("/notifications/{id}", h.DeleteNotification).Methods(http.MethodDelete)

	authed.HandleFunc("/todos", h.CreateTodo).Methods(http.MethodPost)
	authed.HandleFunc("/todos", h.ListTodos).Methods(http.MethodGet)
	authed.HandleFunc("/todos/{id}", h.UpdateTodo).Methods(http.MethodPatch)
	authed.HandleFunc("/todos/{id}", h.DeleteTodo).Methods(http.MethodDelete)

	authedWS := router.PathPrefix("/ws").Subrouter()
	authedWS.Use(AuthMiddleware)
	authedWS.HandleFunc("", h.StreamFeed).Methods(http.MethodGet)

	return router
}
