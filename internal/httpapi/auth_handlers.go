package httpapi

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"rfphub.org/internal/audit"
	"rfphub.org/internal/auth"
)

type tokenRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type tokenResponse struct {
	Token     string    `json:"token"`
	Role      string    `json:"role"`
	ExpiresAt time.Time `json:"expires_at"`
}

const tokenTTL = 15 * time.Minute

func (a *API) handleAuthToken(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}

	var req tokenRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.Email) == "" || req.Password == "" {
		writeError(w, r, http.StatusBadRequest, "email and password are required")
		return
	}

	user, err := a.users.FindUserByEmail(r.Context(), req.Email)
	if err != nil {
		if errors.Is(err, auth.ErrNotFound) {
			writeError(w, r, http.StatusUnauthorized, "invalid credentials")
			return
		}
		writeError(w, r, http.StatusInternalServerError, "authentication error")
		return
	}
	if user.Status != auth.UserStatusActive {
		writeError(w, r, http.StatusUnauthorized, "invalid credentials")
		return
	}
	match, err := auth.VerifyPassword(req.Password, user.PasswordHash)
	if err != nil || !match {
		writeError(w, r, http.StatusUnauthorized, "invalid credentials")
		return
	}

	token, err := auth.GenerateToken(user.ID, user.Role, tokenTTL)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "token generation failed")
		return
	}

	expiresAt := time.Now().UTC().Add(tokenTTL)
	audit.Emit(r.Context(), a.rec, audit.Entry{
		ActorID:    user.ID,
		Action:     "auth.token.issued",
		TargetKind: "user",
		TargetID:   user.ID,
		Details: map[string]string{
			"role":       user.Role,
			"expires_at": expiresAt.Format(time.RFC3339),
		},
	})

	writeJSON(w, http.StatusOK, tokenResponse{
		Token:     token,
		Role:      user.Role,
		ExpiresAt: expiresAt,
	})
}
