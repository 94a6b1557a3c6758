package http

import (
	"log/slog"
	"net/http"
	"strconv"

	"dmcore/internal/dto"
	"dmcore/internal/service"
)

func (a *api) sendMessage(w http.ResponseWriter, r *http.Request) {
	var req dto.SendMessageRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, "send message", err)
		return
	}
	convID, err := optionalUUID(req.ConversationID, "conversationId")
	if err != nil {
		writeError(w, r, "send message", err)
		return
	}
	recipientID, err := optionalUUID(req.RecipientID, "recipientId")
	if err != nil {
		writeError(w, r, "send message", err)
		return
	}
	env, err := envelopeFrom(req)
	if err != nil {
		writeError(w, r, "send message", err)
		return
	}

	msg, err := a.svc.SendMessage(r.Context(), service.SendRequest{
		SenderID:       caller(r),
		ConversationID: convID,
		RecipientID:    recipientID,
		Envelope:       env,
	})
	if err != nil {
		writeError(w, r, "send message", err)
		return
	}
	slog.Info("message stored", logAttrs(r, "message_id", msg.ID, "conversation_id", msg.ConversationID)...)
	writeJSON(w, http.StatusCreated, messageResponse(*msg))
}

func (a *api) listMessages(w http.ResponseWriter, r *http.Request) {
	convID, err := uuidParam(r, "id")
	if err != nil {
		writeError(w, r, "list messages", err)
		return
	}
	page, err := intQuery(r, "page")
	if err != nil {
		writeError(w, r, "list messages", err)
		return
	}
	pageSize, err := intQuery(r, "pageSize")
	if err != nil {
		writeError(w, r, "list messages", err)
		return
	}

	msgs, err := a.svc.ListMessages(r.Context(), caller(r), convID, page, pageSize)
	if err != nil {
		writeError(w, r, "list messages", err)
		return
	}
	page, pageSize = a.svc.PageBounds(page, pageSize)
	slog.Debug("history fetched", logAttrs(r, "conversation_id", convID, "page", page, "count", len(msgs))...)
	writeJSON(w, http.StatusOK, dto.MessagePageResponse{
		ConversationID: convID.String(),
		Page:           page,
		PageSize:       pageSize,
		Messages:       messageResponses(msgs),
	})
}

func (a *api) getMessage(w http.ResponseWriter, r *http.Request) {
	msgID, err := uuidParam(r, "id")
	if err != nil {
		writeError(w, r, "get message", err)
		return
	}
	msg, err := a.svc.GetMessage(r.Context(), caller(r), msgID)
	if err != nil {
		writeError(w, r, "get message", err)
		return
	}
	writeJSON(w, http.StatusOK, messageResponse(*msg))
}

func (a *api) markMessageSeen(w http.ResponseWriter, r *http.Request) {
	msgID, err := uuidParam(r, "id")
	if err != nil {
		writeError(w, r, "mark message seen", err)
		return
	}
	msg, err := a.svc.MarkMessageSeen(r.Context(), caller(r), msgID)
	if err != nil {
		writeError(w, r, "mark message seen", err)
		return
	}
	writeJSON(w, http.StatusOK, messageResponse(*msg))
}

// intQuery returns 0 when the parameter is absent so the service default
// applies.
func intQuery(r *http.Request, name string) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return 0, invalid(name + " must be a positive integer")
	}
	return n, nil
}
