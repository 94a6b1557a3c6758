package http

import (
	"log/slog"
	"net/http"

	"dmcore/internal/dto"
)

func (a *api) listConversations(w http.ResponseWriter, r *http.Request) {
	list, err := a.svc.ListConversations(r.Context(), caller(r))
	if err != nil {
		writeError(w, r, "list conversations", err)
		return
	}
	resp := dto.ConversationListResponse{Conversations: make([]dto.ConversationResponse, 0, len(list))}
	for _, s := range list {
		resp.Conversations = append(resp.Conversations, conversationResponse(s))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *api) resolveConversation(w http.ResponseWriter, r *http.Request) {
	var req dto.ResolveConversationRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, "resolve conversation", err)
		return
	}
	peer, err := optionalUUID(req.PeerID, "peerId")
	if err != nil {
		writeError(w, r, "resolve conversation", err)
		return
	}
	me := caller(r)
	conv, created, err := a.svc.ResolveConversation(r.Context(), me, peer)
	if err != nil {
		writeError(w, r, "resolve conversation", err)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
		slog.Info("conversation created", logAttrs(r, "conversation_id", conv.ID)...)
	}
	summary, err := a.svc.SummarizeConversation(r.Context(), me, conv.ID)
	if err != nil {
		writeError(w, r, "resolve conversation", err)
		return
	}
	writeJSON(w, status, conversationResponse(summary))
}

func (a *api) markConversationSeen(w http.ResponseWriter, r *http.Request) {
	convID, err := uuidParam(r, "id")
	if err != nil {
		writeError(w, r, "mark conversation seen", err)
		return
	}
	n, err := a.svc.MarkConversationSeen(r.Context(), caller(r), convID)
	if err != nil {
		writeError(w, r, "mark conversation seen", err)
		return
	}
	slog.Debug("conversation marked seen", logAttrs(r, "conversation_id", convID, "updated", n)...)
	writeJSON(w, http.StatusOK, dto.MarkSeenResponse{Updated: n})
}

func (a *api) unreadCount(w http.ResponseWriter, r *http.Request) {
	n, err := a.svc.UnreadCount(r.Context(), caller(r))
	if err != nil {
		writeError(w, r, "unread count", err)
		return
	}
	writeJSON(w, http.StatusOK, dto.UnreadCountResponse{Unread: n})
}
