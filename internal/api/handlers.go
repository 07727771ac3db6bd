package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"taskhub/internal/backend"
	"taskhub/internal/common"
	"taskhub/internal/notif"
	"taskhub/internal/store"
)

// Handler wires the HTTP surface to the backend service. The four client
// state managers live in the browser (or in internal/client for Go
// consumers); this layer only exposes the store and feed they run against.
type Handler struct {
	svc      *backend.Service
	profiles store.ProfileRepository
	todos    store.TodoRepository
}

func NewHandler(svc *backend.Service, profiles store.ProfileRepository, todos store.TodoRepository) *Handler {
	return &Handler{svc: svc, profiles: profiles, todos: todos}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	if n, ok := common.AsNotice(err); ok {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": n.Message})
		return
	}
	writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
}

type registerRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Username string `json:"username"`
	FullName string `json:"full_name"`
}

type authResponse struct {
	Token  string `json:"token"`
	UserID string `json:"user_id"`
}

func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	if err := common.ValidatePassword(req.Password); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.Username != "" {
		if err := common.ValidateUsername(req.Username); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
	}

	hash, err := common.HashPassword(req.Password)
	if err != nil {
		writeError(w, err)
		return
	}

	profile := &store.Profile{
		Email:        req.Email,
		PasswordHash: hash,
		Username:     req.Username,
		FullName:     req.FullName,
	}
	if err := h.profiles.Create(r.Context(), profile); err != nil {
		writeError(w, err)
		return
	}

	token, err := common.GenerateToken(profile.UserID, profile.Username)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, authResponse{Token: token, UserID: profile.UserID})
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	profile, err := h.profiles.ByEmail(r.Context(), req.Email)
	if err != nil {
		http.Error(w, "invalid email or password", http.StatusUnauthorized)
		return
	}
	if err := common.CheckPassword(req.Password, profile.PasswordHash); err != nil {
		http.Error(w, "invalid email or password", http.StatusUnauthorized)
		return
	}

	token, err := common.GenerateToken(profile.UserID, profile.Username)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, authResponse{Token: token, UserID: profile.UserID})
}

func (h *Handler) GetProfile(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserID(r.Context())
	profile, err := h.profiles.ByID(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

func (h *Handler) UpdateUsername(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserID(r.Context())

	var req struct {
		Username string `json:"username"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if err := common.ValidateUsername(req.Username); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := h.profiles.UpdateUsername(r.Context(), userID, req.Username); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"username": req.Username})
}

func (h *Handler) MessageHistory(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserID(r.Context())
	msgs, err := h.svc.MessageHistory(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, msgs)
}

func (h *Handler) Thread(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserID(r.Context())
	counterpart := r.URL.Query().Get("counterpart")
	if counterpart == "" {
		http.Error(w, "counterpart is required", http.StatusBadRequest)
		return
	}

	msgs, err := h.svc.MessagesBetween(r.Context(), userID, counterpart)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, msgs)
}

func (h *Handler) UnreadMessages(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserID(r.Context())
	msgs, err := h.svc.UnreadMessages(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, msgs)
}

func (h *Handler) SendMessage(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserID(r.Context())

	// Username is a precondition for messaging, enforced here and in the
	// client store, not at the database.
	if Username(r.Context()) == "" {
		http.Error(w, "set a username before sending messages", http.StatusBadRequest)
		return
	}

	var req struct {
		ReceiverID string `json:"receiver_id"`
		Content    string `json:"content"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if err := common.ValidateMessageText(req.Content); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	msg, err := h.svc.SendMessage(r.Context(), userID, req.ReceiverID, req.Content)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, msg)
}

func (h *Handler) EditMessage(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserID(r.Context())
	id := mux.Vars(r)["id"]

	var req struct {
		Content string `json:"content"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	msg, err := h.svc.EditMessage(r.Context(), id, userID, req.Content)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, msg)
}

func (h *Handler) DeleteMessage(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserID(r.Context())
	id := mux.Vars(r)["id"]
	if err := h.svc.DeleteMessage(r.Context(), id, userID); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) MarkMessagesRead(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserID(r.Context())
	var req struct {
		IDs []string `json:"ids"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	if err := h.svc.MarkMessagesRead(r.Context(), req.IDs, userID); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) ListNotifications(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserID(r.Context())
	notifications, err := h.svc.RecentNotifications(r.Context(), userID, notif.NotificationFetchLimit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, notifications)
}

func (h *Handler) MarkNotificationRead(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserID(r.Context())
	id := mux.Vars(r)["id"]

	if err := h.svc.MarkNotificationRead(r.Context(), id, userID); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) DeleteNotification(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserID(r.Context())
	id := mux.Vars(r)["id"]

	if err := h.svc.DeleteNotification(r.Context(), id, userID); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) ClearNotifications(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserID(r.Context())
	if err := h.svc.ClearNotifications(r.Context(), userID); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type todoRequest struct {
	Text                  string     `json:"text"`
	Completed             bool       `json:"completed"`
	DueDate               *time.Time `json:"due_date"`
	ReminderMinutesBefore *int       `json:"reminder_minutes_before"`
}

func (h *Handler) CreateTodo(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserID(r.Context())

	var req todoRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Text == "" {
		http.Error(w, "todo text cannot be empty", http.StatusBadRequest)
		return
	}

	todo, err := h.todos.Create(r.Context(), &store.Todo{
		UserID:                userID,
		Text:                  req.Text,
		DueDate:               req.DueDate,
		ReminderMinutesBefore: req.ReminderMinutesBefore,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, todo)
}

func (h *Handler) ListTodos(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserID(r.Context())
	todos, err := h.todos.ForUser(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, todos)
}

func (h *Handler) UpdateTodo(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserID(r.Context())
	id := mux.Vars(r)["id"]

	var req todoRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	todo := &store.Todo{
		ID:                    id,
		UserID:                userID,
		Text:                  req.Text,
		Completed:             req.Completed,
		DueDate:               req.DueDate,
		ReminderMinutesBefore: req.ReminderMinutesBefore,
	}
	if err := h.todos.Update(r.Context(), todo); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, todo)
}

func (h *Handler) DeleteTodo(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserID(r.Context())
	id := mux.Vars(r)["id"]

	if err := h.todos.Delete(r.Context(), id, userID); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}
