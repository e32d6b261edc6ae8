package rest

import (
	"chat-relay/domain"
	"chat-relay/domain/api"
	"chat-relay/errors"
	"chat-relay/services"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/samber/lo"
)

type MessageHandler struct {
	chat services.IChatService
	log  *slog.Logger
}

func NewMessageHandler(chat services.IChatService, log *slog.Logger) *MessageHandler {
	return &MessageHandler{chat: chat, log: log.With("handler", "messages")}
}

func (h *MessageHandler) RegisterRoutes(r chi.Router) {
	r.Post("/addmsg", h.handleAddMessage)
	r.Post("/getmsg", h.handleGetMessages)
}

// handleAddMessage stores a message. It never notifies the recipient,
// clients follow up with a send-msg event carrying the returned id.
func (h *MessageHandler) handleAddMessage(w http.ResponseWriter, r *http.Request) {
	body, err := decode[api.AddMessageRequest](w, r)
	if err == nil {
		err = actingAs(r, body.From)
	}
	if err != nil {
		writeJSON(w, errors.MapToHTTPStatus(err), api.AddMessageResponse{Success: false, Error: err.Error()})
		return
	}
	message, err := h.chat.SendMessage(r.Context(), domain.SendMessageCommand{
		From: domain.UserIdentity(body.From),
		To:   domain.UserIdentity(body.To),
		Body: body.Message,
	})
	if err != nil {
		h.log.Error("add message failed", "from", body.From, "to", body.To, "error", err)
		writeJSON(w, errors.MapToHTTPStatus(err), api.AddMessageResponse{Success: false, Error: errors.Code(err)})
		return
	}
	writeJSON(w, http.StatusOK, api.AddMessageResponse{Success: true, ID: message.ID.String()})
}

func (h *MessageHandler) handleGetMessages(w http.ResponseWriter, r *http.Request) {
	body, err := decode[api.GetMessagesRequest](w, r)
	if err == nil {
		err = actingAs(r, body.From)
	}
	if err != nil {
		writeError(w, err)
		return
	}
	requester := domain.UserIdentity(body.From)
	messages, err := h.chat.GetHistory(r.Context(), domain.GetHistoryCommand{
		From:  requester,
		To:    domain.UserIdentity(body.To),
		Limit: body.Limit,
	})
	if err != nil {
		h.log.Error("get messages failed", "from", body.From, "to", body.To, "error", err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, api.GetMessagesResponse{
		Messages: lo.Map(messages, func(m domain.Message, _ int) api.Message {
			return toAPIMessage(m, requester)
		}),
	})
}

func toAPIMessage(m domain.Message, requester domain.UserIdentity) api.Message {
	return api.Message{
		ID:        m.ID.String(),
		From:      string(m.From),
		To:        string(m.To),
		Message:   m.Body,
		FromSelf:  m.FromSelf(requester),
		CreatedAt: m.CreatedAt,
		Delivered: m.Delivered,
	}
}
