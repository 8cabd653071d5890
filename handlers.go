package main

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"
)

func isoTime(t time.Time) string { return t.UTC().Format(time.RFC3339) }

type registerRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (a *App) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	user, err := a.Auth.Register(RegisterInput{Name: req.Name, Email: req.Email, Password: req.Password})
	if err != nil {
		var ve *ValidationError
		if errors.As(err, &ve) {
			writeValidationError(w, http.StatusBadRequest, ve)
			return
		}
		writeInternalError(w, "An error occurred during registration", err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"success": true,
		"message": "User registered successfully",
		"user": map[string]interface{}{
			"id":        user.ID,
			"name":      user.Name,
			"email":     user.Email,
			"createdAt": isoTime(user.CreatedAt),
		},
	})
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (a *App) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	pair, user, err := a.Auth.Login(LoginInput{Email: req.Email, Password: req.Password})
	if err != nil {
		var ve *ValidationError
		switch {
		case errors.As(err, &ve):
			writeValidationError(w, http.StatusUnprocessableEntity, ve)
		case errors.Is(err, ErrInvalidCredentials):
			writeError(w, http.StatusUnauthorized, "Invalid email or password")
		default:
			writeInternalError(w, "An unexpected error occurred", err)
		}
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":               true,
		"accessToken":           pair.AccessToken,
		"accessTokenExpiresAt":  isoTime(pair.AccessExpiresAt),
		"refreshToken":          pair.RefreshToken,
		"refreshTokenExpiresAt": isoTime(pair.RefreshExpiresAt),
		"user": map[string]interface{}{
			"id":    user.ID,
			"name":  user.Name,
			"email": user.Email,
		},
	})
}

type googleSignInRequest struct {
	Credential string  `json:"credential"`
	Name       string  `json:"name"`
	Email      string  `json:"email"`
	GoogleID   string  `json:"googleId"`
	Avatar     *string `json:"avatar"`
}

func (a *App) HandleGoogleSignIn(w http.ResponseWriter, r *http.Request) {
	var req googleSignInRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	pair, user, isNew, err := a.Auth.GoogleSignIn(r.Context(), GoogleSignInInput{
		Credential: req.Credential,
		Name:       req.Name,
		Email:      req.Email,
		GoogleID:   req.GoogleID,
		Avatar:     req.Avatar,
	})
	if err != nil {
		var ve *ValidationError
		switch {
		case errors.As(err, &ve):
			writeValidationError(w, http.StatusUnprocessableEntity, ve)
		case errors.Is(err, ErrInvalidGoogleCredential):
			writeError(w, http.StatusUnauthorized, "Invalid Google credential")
		default:
			writeInternalError(w, "An error occurred during Google authentication", err)
		}
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":               true,
		"accessToken":           pair.AccessToken,
		"accessTokenExpiresAt":  isoTime(pair.AccessExpiresAt),
		"refreshToken":          pair.RefreshToken,
		"refreshTokenExpiresAt": isoTime(pair.RefreshExpiresAt),
		"user": map[string]interface{}{
			"id":       user.ID,
			"name":     user.Name,
			"email":    user.Email,
			"avatar":   user.Avatar,
			"provider": user.Provider,
		},
		"isNewUser": isNew,
	})
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

func (a *App) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	pair, err := a.Auth.Refresh(req.RefreshToken)
	if err != nil {
		var ve *ValidationError
		switch {
		case errors.As(err, &ve):
			writeValidationError(w, http.StatusUnprocessableEntity, ve)
		case errors.Is(err, ErrInvalidOrExpiredToken):
			writeError(w, http.StatusUnauthorized, "Invalid or expired refresh token")
		default:
			writeInternalError(w, "An unexpected error occurred", err)
		}
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":              true,
		"accessToken":          pair.AccessToken,
		"accessTokenExpiresAt": isoTime(pair.AccessExpiresAt),
	})
}

func (a *App) HandleLogout(w http.ResponseWriter, r *http.Request) {
	// The body is optional; a logout with neither secret is still a success.
	var req refreshRequest
	_ = json.NewDecoder(r.Body).Decode(&req)

	if err := a.Auth.Logout(bearerToken(r), req.RefreshToken); err != nil {
		writeInternalError(w, "An unexpected error occurred", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": "Logged out",
	})
}

func (a *App) HandleMe(w http.ResponseWriter, r *http.Request) {
	user := userFromContext(r.Context())
	if user == nil {
		unauthorized(w)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"id":    user.ID,
		"name":  user.Name,
		"email": user.Email,
	})
}
