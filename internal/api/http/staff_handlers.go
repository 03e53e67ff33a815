package http

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/scioly/teamy/internal/tournament"
)

type inviteStaffReq struct {
	Email           string   `json:"email" validate:"required,email"`
	UserID          *string  `json:"user_id,omitempty"`
	EventIDs        []string `json:"event_ids,omitempty"`
	TrialEventNames []string `json:"trial_event_names,omitempty"`
}

// POST /api/tournaments/{tournamentID}/staff
// Invites are keyed by email so people without accounts can be assigned
// before they register; the row is claimed by user id when they respond.
func InviteStaffHandler(store tournament.Store, authz Authz) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tournamentID := chi.URLParam(r, "tournamentID")
		ident := identityFromContext(r.Context())
		if ident.UserID == "" {
			writeErr(w, http.StatusUnauthorized, "Unauthorized")
			return
		}
		ok, err := authz.CanManageTournament(r.Context(), ident, tournamentID)
		if err != nil {
			log.Printf("manage check: %v", err)
			writeErr(w, http.StatusInternalServerError, "internal server error")
			return
		}
		if !ok {
			writeErr(w, http.StatusForbidden, "Not authorized to manage this tournament")
			return
		}
		var req inviteStaffReq
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeInvalidInput(w, []string{"invalid json: " + err.Error()})
			return
		}
		if err := validate.Struct(req); err != nil {
			writeInvalidInput(w, validationDetails(err))
			return
		}
		sa := tournament.StaffAssignment{
			ID:              uuid.NewString(),
			TournamentID:    tournamentID,
			UserID:          req.UserID,
			Email:           strings.ToLower(strings.TrimSpace(req.Email)),
			Status:          tournament.StaffPending,
			EventIDs:        req.EventIDs,
			TrialEventNames: req.TrialEventNames,
		}
		if err := store.CreateStaff(r.Context(), sa); err != nil {
			log.Printf("create staff: %v", err)
			writeErr(w, http.StatusInternalServerError, "internal server error")
			return
		}
		writeJSON(w, http.StatusCreated, sa)
	}
}

func ListStaffHandler(store tournament.Store, authz Authz) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tournamentID := chi.URLParam(r, "tournamentID")
		ident := identityFromContext(r.Context())
		if ident.UserID == "" {
			writeErr(w, http.StatusUnauthorized, "Unauthorized")
			return
		}
		ok, err := authz.CanManageTournament(r.Context(), ident, tournamentID)
		if err != nil {
			log.Printf("manage check: %v", err)
			writeErr(w, http.StatusInternalServerError, "internal server error")
			return
		}
		if !ok {
			writeErr(w, http.StatusForbidden, "Not authorized to manage this tournament")
			return
		}
		list, err := store.ListStaff(r.Context(), tournamentID)
		if err != nil {
			log.Printf("list staff: %v", err)
			writeErr(w, http.StatusInternalServerError, "internal server error")
			return
		}
		writeJSON(w, http.StatusOK, list)
	}
}

type respondStaffReq struct {
	Status string `json:"status" validate:"required,oneof=ACCEPTED DECLINED"`
}

// POST /api/tournaments/{tournamentID}/staff/{staffID}/respond
// Only the invitee may respond: the caller must match the assignment's user id
// or email. Accepting binds the row to the caller's user id.
func RespondStaffHandler(store tournament.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		staffID := chi.URLParam(r, "staffID")
		ident := identityFromContext(r.Context())
		if ident.UserID == "" || ident.Email == "" {
			writeErr(w, http.StatusUnauthorized, "Unauthorized")
			return
		}
		var req respondStaffReq
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeInvalidInput(w, []string{"invalid json: " + err.Error()})
			return
		}
		if err := validate.Struct(req); err != nil {
			writeInvalidInput(w, validationDetails(err))
			return
		}
		sa, err := store.GetStaff(r.Context(), staffID)
		if err != nil {
			if errors.Is(err, tournament.ErrStaffNotFound) {
				writeErr(w, http.StatusNotFound, "Staff assignment not found")
				return
			}
			log.Printf("get staff: %v", err)
			writeErr(w, http.StatusInternalServerError, "internal server error")
			return
		}
		mine := (sa.UserID != nil && *sa.UserID == ident.UserID) ||
			strings.EqualFold(sa.Email, ident.Email)
		if !mine {
			writeErr(w, http.StatusForbidden, "forbidden")
			return
		}
		if err := store.UpdateStaffStatus(r.Context(), staffID, req.Status, ident.UserID); err != nil {
			if errors.Is(err, tournament.ErrInvalidStatus) {
				writeInvalidInput(w, []string{err.Error()})
				return
			}
			log.Printf("update staff: %v", err)
			writeErr(w, http.StatusInternalServerError, "internal server error")
			return
		}
		sa, err = store.GetStaff(r.Context(), staffID)
		if err != nil {
			log.Printf("reload staff: %v", err)
			writeErr(w, http.StatusInternalServerError, "internal server error")
			return
		}
		writeJSON(w, http.StatusOK, sa)
	}
}
