package handler

import (
	"net/http"

	"dmchat/internal/pkg/auth/jwt"
	"dmchat/internal/pkg/resp"
)

// HandleSearchUsers matches ?q= against usernames and display names.
// Queries under three characters yield an empty list.
func HandleSearchUsers(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity := jwt.GetPayloadFromContext(r)

		users, err := deps.Users.Search(r.Context(), identity.ID, r.URL.Query().Get("q"))
		if err != nil {
			resp.RespondErr(w, r, err)
			return
		}

		resp.RespondSuccess(w, r, users)
	}
}

// HandleGetPresence returns the ids of all users with at least one live connection.
func HandleGetPresence(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp.RespondSuccess(w, r, map[string]any{
			"userIds": deps.Hub.OnlineUserIDs(),
		})
	}
}
