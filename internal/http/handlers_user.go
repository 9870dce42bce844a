package http

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"wealthwise/internal/auth"
	"wealthwise/internal/core"
	"wealthwise/internal/log"
	"wealthwise/internal/storage"
)

// handleRegister creates a new user account. Uniqueness of email and
// username is enforced here, before insert; the store itself does not.
func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	logger := log.FromContext(r.Context())

	body, ok := decodeBody(r)
	if !ok {
		writeJSON(w, http.StatusNotFound, notFound)
		return
	}
	if msg, ok := requireFields(body, "first_name", "last_name", "email", "username", "password"); !ok {
		writeError(w, http.StatusBadRequest, msg)
		return
	}

	ctx, cancel := requestScope(r)
	defer cancel()

	for _, field := range []string{"email", "username"} {
		if taken, err := s.fieldTaken(r, field, stringValue(body, field)); err != nil {
			writeStoreError(w, err)
			return
		} else if taken {
			writeError(w, http.StatusConflict, fmt.Sprintf("%s already present, change your %s", field, field))
			return
		}
	}

	hash, err := auth.HashPassword(stringValue(body, "password"))
	if err != nil {
		logger.ErrorContext(ctx, "Failed to hash password", log.FieldError, err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	user := core.NewUser(time.Now(),
		stringValue(body, "first_name"),
		stringValue(body, "last_name"),
		stringValue(body, "email"),
		stringValue(body, "username"),
		hash)

	if err := s.store.Create(ctx, user); err != nil {
		logger.ErrorContext(ctx, "Failed to create user", log.FieldError, err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	logger.InfoContext(ctx, "User registered",
		log.FieldUserID, user.ID,
		log.FieldOperation, log.OpRegister)
	writeJSON(w, http.StatusOK, user.View())
}

// fieldTaken reports whether another user already holds this field value.
func (s *Server) fieldTaken(r *http.Request, field, value string) (bool, error) {
	ctx, cancel := requestScope(r)
	defer cancel()

	_, err := s.store.FindUserBy(ctx, field, value)
	if errors.Is(err, storage.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// handleLogin checks credentials and issues an access token.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	logger := log.FromContext(r.Context())

	body, ok := decodeBody(r)
	if !ok {
		writeJSON(w, http.StatusNotFound, notFound)
		return
	}

	ctx, cancel := requestScope(r)
	defer cancel()

	user, err := s.store.FindUserBy(ctx, "email", stringValue(body, "email"))
	if errors.Is(err, storage.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Email is not found")
		return
	}
	if err != nil {
		writeStoreError(w, err)
		return
	}

	if !auth.CheckPassword(stringValue(body, "password"), user.Password) {
		writeError(w, http.StatusUnauthorized, "Password is not correct")
		return
	}

	token, err := s.issuer.Issue(user.ID, time.Now())
	if err != nil {
		logger.ErrorContext(ctx, "Failed to issue token", log.FieldError, err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	logger.InfoContext(ctx, "User logged in",
		log.FieldUserID, user.ID,
		log.FieldOperation, log.OpLogin)
	writeJSON(w, http.StatusOK, map[string]string{"token": token})
}
