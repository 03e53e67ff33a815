package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/scioly/teamy/internal/audit"
	"github.com/scioly/teamy/internal/exam"
	"github.com/scioly/teamy/internal/metrics"
	"github.com/scioly/teamy/internal/rbac"
)

// Student-facing attempt flow: start, save responses, submit. Attempts are
// always created for the authenticated subject; there is no taking a test on
// someone else's behalf.

func CreateAttemptHandler(store exam.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		testID := strings.TrimSpace(chi.URLParam(r, "testID"))
		ident := identityFromContext(r.Context())
		if ident.UserID == "" {
			writeErr(w, http.StatusUnauthorized, "Unauthorized")
			return
		}
		a, err := store.NewAttempt(r.Context(), testID, ident.UserID)
		if err != nil {
			if errors.Is(err, exam.ErrTestNotFound) {
				writeErr(w, http.StatusNotFound, "Test not found")
				return
			}
			writeErr(w, http.StatusInternalServerError, "internal server error")
			return
		}
		writeJSON(w, http.StatusCreated, a)
	}
}

func SaveResponsesHandler(store exam.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		attemptID := chi.URLParam(r, "attemptID")
		var resp map[string]interface{}
		if err := json.NewDecoder(r.Body).Decode(&resp); err != nil {
			writeInvalidInput(w, []string{"invalid json: " + err.Error()})
			return
		}
		a, err := requireOwnAttempt(w, r, store, attemptID)
		if err != nil {
			return
		}
		if a.TestID != chi.URLParam(r, "testID") {
			writeErr(w, http.StatusBadRequest, "Attempt does not belong to this test")
			return
		}
		updated, err := store.SaveResponses(r.Context(), attemptID, resp)
		if err != nil {
			if errors.Is(err, exam.ErrAlreadySubmitted) {
				writeErr(w, http.StatusConflict, "Attempt already submitted")
				return
			}
			writeErr(w, http.StatusInternalServerError, "internal server error")
			return
		}
		writeJSON(w, http.StatusOK, updated)
	}
}

func SubmitAttemptHandler(store exam.Store, auditLog *audit.Log) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		attemptID := chi.URLParam(r, "attemptID")
		a, err := requireOwnAttempt(w, r, store, attemptID)
		if err != nil {
			return
		}
		if a.TestID != chi.URLParam(r, "testID") {
			writeErr(w, http.StatusBadRequest, "Attempt does not belong to this test")
			return
		}
		submitted, err := store.Submit(r.Context(), attemptID)
		if err != nil {
			writeErr(w, http.StatusInternalServerError, "internal server error")
			return
		}
		metrics.AttemptsSubmitted.Inc()
		_ = auditLog.Append(r.Context(), audit.TypeAttemptSubmitted, attemptID, map[string]interface{}{
			"test_id": submitted.TestID,
			"user_id": submitted.UserID,
			"score":   submitted.Score,
		})
		writeJSON(w, http.StatusOK, submitted)
	}
}

// GET /api/es/tests/{testID}/attempts/{attemptID}
// Students see their own attempts; roles with attempt:view-all see any.
func GetAttemptHandler(store exam.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		attemptID := chi.URLParam(r, "attemptID")
		ident := identityFromContext(r.Context())
		if ident.UserID == "" {
			writeErr(w, http.StatusUnauthorized, "Unauthorized")
			return
		}
		a, err := store.GetAttempt(r.Context(), attemptID)
		if err != nil {
			if errors.Is(err, exam.ErrAttemptNotFound) {
				writeErr(w, http.StatusNotFound, "Attempt not found")
				return
			}
			writeErr(w, http.StatusInternalServerError, "internal server error")
			return
		}
		role := rbac.RoleFromContext(r.Context())
		if a.UserID != ident.UserID && !rbac.Has(role, "attempt:view-all") {
			writeErr(w, http.StatusForbidden, "forbidden")
			return
		}
		writeJSON(w, http.StatusOK, a)
	}
}

// GET /api/es/tests/{testID}/attempts?status=...&limit=50&offset=0
// Roles with attempt:view-all can list anyone's; others are scoped to self.
func ListAttemptsHandler(store exam.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		testID := chi.URLParam(r, "testID")
		ident := identityFromContext(r.Context())
		role := rbac.RoleFromContext(r.Context())

		userID := strings.TrimSpace(r.URL.Query().Get("user_id"))
		if !rbac.Has(role, "attempt:view-all") {
			userID = ident.UserID
		}
		list, err := store.ListAttempts(r.Context(), exam.AttemptListOpts{
			TestID: testID,
			UserID: userID,
			Status: strings.TrimSpace(r.URL.Query().Get("status")),
			Limit:  parseIntDefault(r.URL.Query().Get("limit"), 50),
			Offset: parseIntDefault(r.URL.Query().Get("offset"), 0),
		})
		if err != nil {
			writeErr(w, http.StatusInternalServerError, "internal server error")
			return
		}
		writeJSON(w, http.StatusOK, list)
	}
}

// requireOwnAttempt loads the attempt and enforces that the caller owns it.
// On failure it writes the response and returns a non-nil error.
func requireOwnAttempt(w http.ResponseWriter, r *http.Request, store exam.Store, attemptID string) (exam.Attempt, error) {
	ident := identityFromContext(r.Context())
	if ident.UserID == "" {
		writeErr(w, http.StatusUnauthorized, "Unauthorized")
		return exam.Attempt{}, errors.New("unauthorized")
	}
	a, err := store.GetAttempt(r.Context(), attemptID)
	if err != nil {
		if errors.Is(err, exam.ErrAttemptNotFound) {
			writeErr(w, http.StatusNotFound, "Attempt not found")
		} else {
			writeErr(w, http.StatusInternalServerError, "internal server error")
		}
		return exam.Attempt{}, err
	}
	if a.UserID != ident.UserID {
		writeErr(w, http.StatusForbidden, "forbidden")
		return exam.Attempt{}, errors.New("forbidden")
	}
	return a, nil
}
