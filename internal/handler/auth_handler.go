/*
Package handler provides HTTP handler functions for user authentication and management.
*/
package handler

import (
	"net/http"
	"time"

	"dmchat/internal/app/user"
	"dmchat/internal/pkg/auth/jwt"
	"dmchat/internal/pkg/errs"
	"dmchat/internal/pkg/logx"
	"dmchat/internal/pkg/req"
	"dmchat/internal/pkg/resp"
)

type LoginInput struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// HandleRegister processes the request to create a new account and signs the new user in.
func HandleRegister(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if payload := jwt.GetPayloadFromContext(r); payload != nil {
			resp.RespondError(w, r, errs.NewError(errs.ErrAlreadyLoggedIn))
			return
		}

		var input user.RegisterInput
		if customErr := req.BindJSON(w, r, &input); customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		u, err := deps.Users.Register(r.Context(), input)
		if err != nil {
			if errs.Is(err, errs.ErrUserAlreadyExists) {
				logx.Warn("registration conflict: username already exists", "username", input.Username)
			}
			resp.RespondErr(w, r, err)
			return
		}

		issueSession(w, r, deps, u)
	}
}

// HandleLogin verifies user credentials and issues a JWT token.
func HandleLogin(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if identity := jwt.GetPayloadFromContext(r); identity != nil {
			resp.RespondError(w, r, errs.NewError(errs.ErrAlreadyLoggedIn))
			return
		}

		var input LoginInput
		if customErr := req.BindJSON(w, r, &input); customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		u, err := deps.Users.Authenticate(r.Context(), input.Username, input.Password)
		if err != nil {
			if errs.Is(err, errs.ErrInvalidCredentials) {
				logx.Warn("login: invalid credentials", "username", input.Username)
			}
			resp.RespondErr(w, r, err)
			return
		}

		issueSession(w, r, deps, u)
	}
}

// HandleLogout clears the identity cookie. Bearer tokens simply expire.
func HandleLogout(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		http.SetCookie(w, &http.Cookie{
			Name:     jwt.CookieName,
			Value:    "",
			Path:     "/",
			MaxAge:   -1,
			HttpOnly: true,
			Secure:   !deps.Config.IsDevelopment(),
			SameSite: http.SameSiteStrictMode,
		})

		resp.RespondSuccess(w, r, nil)
	}
}

// HandleMe returns the current authenticated user's profile.
func HandleMe(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity := jwt.GetPayloadFromContext(r)

		u, err := deps.Users.Get(r.Context(), identity.ID)
		if err != nil {
			if errs.Is(err, errs.ErrUserNotFound) {
				logx.Warn("me: user in token no longer exists", "user_id", identity.ID)
				resp.RespondError(w, r, errs.NewError(errs.ErrUnauthorized))
				return
			}
			resp.RespondErr(w, r, err)
			return
		}

		resp.RespondSuccess(w, r, map[string]any{
			"user": u,
		})
	}
}

// issueSession signs a token for u, sets it as the identity cookie, and returns it with the user.
func issueSession(w http.ResponseWriter, r *http.Request, deps *AppDeps, u user.User) {
	payload := &jwt.Payload{
		ID:       u.ID,
		Username: u.Username,
		FullName: u.FullName,
		Avatar:   u.Avatar,
	}

	token, err := jwt.GenerateToken(payload, deps.Config.JWTSecret, jwt.IdentityExpiration)
	if err != nil {
		resp.RespondError(w, r, errs.NewError(errs.ErrUnknown, err))
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     jwt.CookieName,
		Value:    token,
		Path:     "/",
		Expires:  time.Now().Add(jwt.IdentityExpiration),
		MaxAge:   int(jwt.IdentityExpiration / time.Second),
		HttpOnly: true,
		Secure:   !deps.Config.IsDevelopment(),
		SameSite: http.SameSiteStrictMode,
	})

	resp.RespondSuccess(w, r, map[string]any{
		"token": token,
		"user":  u,
	})
}
