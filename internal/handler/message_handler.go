package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"dmchat/internal/app/message"
	"dmchat/internal/pkg/auth/jwt"
	"dmchat/internal/pkg/req"
	"dmchat/internal/pkg/resp"
)

// HandleGetMessages returns the conversation between the caller and {peerId}, oldest first.
func HandleGetMessages(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity := jwt.GetPayloadFromContext(r)
		peerID := chi.URLParam(r, "peerId")

		msgs, err := deps.Messages.History(r.Context(), identity.ID, peerID)
		if err != nil {
			resp.RespondErr(w, r, err)
			return
		}

		resp.RespondSuccess(w, r, msgs)
	}
}

// HandleSendMessage persists a message to {peerId} and pushes it to the receiver's live connections.
// The response carries the stored message, including its server-assigned id and timestamp.
func HandleSendMessage(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity := jwt.GetPayloadFromContext(r)
		peerID := chi.URLParam(r, "peerId")

		var input message.SendInput
		if customErr := req.BindJSON(w, r, &input); customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		msg, err := deps.Messages.Send(r.Context(), identity.ID, peerID, input)
		if err != nil {
			resp.RespondErr(w, r, err)
			return
		}

		resp.RespondSuccess(w, r, msg)
	}
}

// HandleListContacts returns the caller's conversation partners, most recent first.
func HandleListContacts(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity := jwt.GetPayloadFromContext(r)

		users, err := deps.Users.Contacts(r.Context(), identity.ID)
		if err != nil {
			resp.RespondErr(w, r, err)
			return
		}

		resp.RespondSuccess(w, r, users)
	}
}
