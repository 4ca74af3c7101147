package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/jnst/chat-backend/internal/model"
	"github.com/jnst/chat-backend/internal/service"
)

const (
	contentTypeJSON        = "Content-Type"
	applicationJSON        = "application/json"
	failedToEncodeResponse = "failed to encode response"
)

// PendingCounter reports the outbox backlog for the health endpoint.
type PendingCounter interface {
	PendingCount(ctx context.Context) (int64, error)
}

// APIServer handles HTTP requests for conversations and messages.
type APIServer struct {
	conversationService service.ConversationService
	messageService      service.MessageService
	viewService         service.ViewService
	outbox              PendingCounter
}

// NewAPIServer creates a new API server instance.
func NewAPIServer(
	conversationService service.ConversationService,
	messageService service.MessageService,
	viewService service.ViewService,
	outbox PendingCounter,
) *APIServer {
	return &APIServer{
		conversationService: conversationService,
		messageService:      messageService,
		viewService:         viewService,
		outbox:              outbox,
	}
}

// Routes registers every endpoint on a new mux.
func (s *APIServer) Routes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/conversations", s.CreateConversation)
	mux.HandleFunc("/conversations/rename", s.RenameConversation)
	mux.HandleFunc("/conversations/participants/add", s.AddParticipant)
	mux.HandleFunc("/conversations/participants/remove", s.RemoveParticipant)
	mux.HandleFunc("/conversations/summary", s.GetConversationSummary)
	mux.HandleFunc("/messages", s.SendMessage)
	mux.HandleFunc("/messages/edit", s.EditMessage)
	mux.HandleFunc("/messages/delete", s.DeleteMessage)
	mux.HandleFunc("/messages/delivered", s.MarkDelivered)
	mux.HandleFunc("/messages/read", s.MarkRead)
	mux.HandleFunc("/messages/status", s.GetMessageStatus)
	mux.HandleFunc("/health", s.HealthCheck)

	return mux
}

type renameRequest struct {
	ConversationID uuid.UUID `json:"conversation_id"`
	ActorID        uuid.UUID `json:"actor_id"`
	Title          string    `json:"title"`
}

type participantRequest struct {
	ConversationID uuid.UUID `json:"conversation_id"`
	ActorID        uuid.UUID `json:"actor_id"`
	UserID         uuid.UUID `json:"user_id"`
}

type editRequest struct {
	MessageID uuid.UUID `json:"message_id"`
	ActorID   uuid.UUID `json:"actor_id"`
	Body      string    `json:"body"`
}

type deleteRequest struct {
	MessageID uuid.UUID `json:"message_id"`
	ActorID   uuid.UUID `json:"actor_id"`
}

type receiptRequest struct {
	MessageID uuid.UUID `json:"message_id"`
	UserID    uuid.UUID `json:"user_id"`
}

// CreateConversation handles POST /conversations.
func (s *APIServer) CreateConversation(w http.ResponseWriter, r *http.Request) {
	var params model.CreateConversationParams
	if !decodePost(w, r, &params) {
		return
	}

	conv, err := s.conversationService.CreateConversation(r.Context(), &params)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, conv)
}

// RenameConversation handles POST /conversations/rename.
func (s *APIServer) RenameConversation(w http.ResponseWriter, r *http.Request) {
	var req renameRequest
	if !decodePost(w, r, &req) {
		return
	}

	conv, err := s.conversationService.RenameConversation(r.Context(), req.ConversationID, req.ActorID, req.Title)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, conv)
}

// AddParticipant handles POST /conversations/participants/add.
func (s *APIServer) AddParticipant(w http.ResponseWriter, r *http.Request) {
	var req participantRequest
	if !decodePost(w, r, &req) {
		return
	}

	conv, err := s.conversationService.AddParticipant(r.Context(), req.ConversationID, req.ActorID, req.UserID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, conv)
}

// RemoveParticipant handles POST /conversations/participants/remove.
func (s *APIServer) RemoveParticipant(w http.ResponseWriter, r *http.Request) {
	var req participantRequest
	if !decodePost(w, r, &req) {
		return
	}

	conv, err := s.conversationService.RemoveParticipant(r.Context(), req.ConversationID, req.ActorID, req.UserID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, conv)
}

// GetConversationSummary handles GET /conversations/summary?id=.
func (s *APIServer) GetConversationSummary(w http.ResponseWriter, r *http.Request) {
	id, ok := queryID(w, r)
	if !ok {
		return
	}

	view, err := s.viewService.GetConversationSummary(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, view)
}

// SendMessage handles POST /messages.
func (s *APIServer) SendMessage(w http.ResponseWriter, r *http.Request) {
	var params model.SendMessageParams
	if !decodePost(w, r, &params) {
		return
	}

	msg, err := s.messageService.SendMessage(r.Context(), &params)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, msg)
}

// EditMessage handles POST /messages/edit.
func (s *APIServer) EditMessage(w http.ResponseWriter, r *http.Request) {
	var req editRequest
	if !decodePost(w, r, &req) {
		return
	}

	msg, err := s.messageService.EditMessage(r.Context(), req.MessageID, req.ActorID, req.Body)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, msg)
}

// DeleteMessage handles POST /messages/delete.
func (s *APIServer) DeleteMessage(w http.ResponseWriter, r *http.Request) {
	var req deleteRequest
	if !decodePost(w, r, &req) {
		return
	}

	if err := s.messageService.DeleteMessage(r.Context(), req.MessageID, req.ActorID); err != nil {
		writeError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// MarkDelivered handles POST /messages/delivered.
func (s *APIServer) MarkDelivered(w http.ResponseWriter, r *http.Request) {
	var req receiptRequest
	if !decodePost(w, r, &req) {
		return
	}

	if err := s.messageService.MarkDelivered(r.Context(), req.MessageID, req.UserID); err != nil {
		writeError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// MarkRead handles POST /messages/read.
func (s *APIServer) MarkRead(w http.ResponseWriter, r *http.Request) {
	var req receiptRequest
	if !decodePost(w, r, &req) {
		return
	}

	if err := s.messageService.MarkRead(r.Context(), req.MessageID, req.UserID); err != nil {
		writeError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// GetMessageStatus handles GET /messages/status?id=.
func (s *APIServer) GetMessageStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := queryID(w, r)
	if !ok {
		return
	}

	view, err := s.viewService.GetMessageStatus(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, view)
}

// HealthCheck handles GET /health endpoint for service health check.
func (s *APIServer) HealthCheck(w http.ResponseWriter, r *http.Request) {
	pending, err := s.outbox.PendingCount(r.Context())
	if err != nil {
		slog.Error("failed to count pending outbox records", slog.String("error", err.Error()))
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})

		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "outbox_pending": pending})
}

func decodePost(w http.ResponseWriter, r *http.Request, dst any) bool {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return false
	}

	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return false
	}

	return true
}

func queryID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return uuid.Nil, false
	}

	idStr := r.URL.Query().Get("id")
	if idStr == "" {
		http.Error(w, "ID parameter is required", http.StatusBadRequest)
		return uuid.Nil, false
	}

	id, err := uuid.Parse(idStr)
	if err != nil {
		http.Error(w, "Invalid ID parameter", http.StatusBadRequest)
		return uuid.Nil, false
	}

	return id, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set(contentTypeJSON, applicationJSON)
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error(failedToEncodeResponse, slog.String("error", err.Error()))
	}
}

func writeError(w http.ResponseWriter, err error) {
	http.Error(w, err.Error(), statusFor(err))
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, model.ErrInvalidTitle),
		errors.Is(err, model.ErrInvalidBody),
		errors.Is(err, model.ErrInvalidUserID):
		return http.StatusBadRequest
	case errors.Is(err, model.ErrNotParticipant),
		errors.Is(err, model.ErrNotSender),
		errors.Is(err, model.ErrOwnMessage):
		return http.StatusForbidden
	case errors.Is(err, model.ErrConversationNotFound),
		errors.Is(err, model.ErrMessageNotFound),
		errors.Is(err, model.ErrViewNotFound):
		return http.StatusNotFound
	case errors.Is(err, model.ErrAlreadyParticipant),
		errors.Is(err, model.ErrLastParticipant),
		errors.Is(err, model.ErrMessageDeleted):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
