package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
	"gwi.com/chat-threads/internal/core"
	"gwi.com/chat-threads/internal/store"
)

type APIHandler struct {
	userService    *core.UserService
	chatService    *core.ChatService
	messageService *core.MessageService
	logger         *zap.Logger
	production     bool // hides error detail in 500 responses
}

func NewAPIHandler(us *core.UserService, cs *core.ChatService, ms *core.MessageService, logger *zap.Logger, production bool) *APIHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &APIHandler{
		userService:    us,
		chatService:    cs,
		messageService: ms,
		logger:         logger.Named("http"),
		production:     production,
	}
}

type healthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
}

func (h *APIHandler) HealthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{
		Status:    "ok",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

type CreateUserRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
}

func (h *APIHandler) CreateUserHandler(w http.ResponseWriter, r *http.Request) {
	var req CreateUserRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	user, err := h.userService.CreateUser(r.Context(), req.Username, req.Email)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, user)
}

func (h *APIHandler) GetUserHandler(w http.ResponseWriter, r *http.Request) {
	user, err := h.userService.GetUser(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

type CreateChatRequest struct {
	UserID string `json:"user_id"`
	Title  string `json:"title"`
}

func (h *APIHandler) CreateChatHandler(w http.ResponseWriter, r *http.Request) {
	var req CreateChatRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	chat, err := h.chatService.CreateChat(r.Context(), req.UserID, req.Title)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, chat)
}

func (h *APIHandler) ListChatsHandler(w http.ResponseWriter, r *http.Request) {
	chats, err := h.chatService.ListChatsForUser(r.Context(), r.URL.Query().Get("user_id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, chats)
}

type GetChatDetailsResponse struct {
	*store.Chat
	Messages []store.Message `json:"messages"`
}

func (h *APIHandler) GetChatDetailsHandler(w http.ResponseWriter, r *http.Request) {
	chat, messages, err := h.chatService.GetChatWithMessages(r.Context(), chi.URLParam(r, "chatID"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	resp := GetChatDetailsResponse{
		Chat:     chat,
		Messages: messages,
	}
	writeJSON(w, http.StatusOK, resp)
}

type UpdateChatRequest struct {
	Title string `json:"title"`
}

func (h *APIHandler) UpdateChatHandler(w http.ResponseWriter, r *http.Request) {
	var req UpdateChatRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	chat, err := h.chatService.UpdateChatTitle(r.Context(), chi.URLParam(r, "chatID"), req.Title)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, chat)
}

type DeleteChatResponse struct {
	Message string `json:"message"`
	ID      string `json:"id"`
}

func (h *APIHandler) DeleteChatHandler(w http.ResponseWriter, r *http.Request) {
	id, err := h.chatService.DeleteChat(r.Context(), chi.URLParam(r, "chatID"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, DeleteChatResponse{Message: "Chat deleted", ID: id})
}

type PostMessageRequest struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

func (h *APIHandler) PostMessageHandler(w http.ResponseWriter, r *http.Request) {
	var req PostMessageRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	msg, err := h.messageService.AddMessage(r.Context(), chi.URLParam(r, "chatID"), req.Role, req.Content)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, msg)
}

func (h *APIHandler) ListMessagesHandler(w http.ResponseWriter, r *http.Request) {
	messages, err := h.messageService.ListMessages(r.Context(), chi.URLParam(r, "chatID"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, messages)
}
