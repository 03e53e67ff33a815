package http

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/scioly/teamy/internal/rbac"
	"github.com/scioly/teamy/internal/tournament"
)

type createHostingReq struct {
	DirectorEmail string `json:"director_email" validate:"required,email"`
}

// POST /api/tournaments/{tournamentID}/hosting-requests
// Anyone signed in may file one; it grants nothing until an admin or the
// tournament creator approves it.
func CreateHostingRequestHandler(store tournament.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tournamentID := chi.URLParam(r, "tournamentID")
		ident := identityFromContext(r.Context())
		if ident.UserID == "" {
			writeErr(w, http.StatusUnauthorized, "Unauthorized")
			return
		}
		var req createHostingReq
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeInvalidInput(w, []string{"invalid json: " + err.Error()})
			return
		}
		if err := validate.Struct(req); err != nil {
			writeInvalidInput(w, validationDetails(err))
			return
		}
		if _, err := store.GetTournament(r.Context(), tournamentID); err != nil {
			if errors.Is(err, tournament.ErrTournamentNotFound) {
				writeErr(w, http.StatusNotFound, "Tournament not found")
				return
			}
			log.Printf("get tournament: %v", err)
			writeErr(w, http.StatusInternalServerError, "internal server error")
			return
		}
		hr := tournament.HostingRequest{
			ID:            uuid.NewString(),
			TournamentID:  tournamentID,
			DirectorEmail: strings.ToLower(strings.TrimSpace(req.DirectorEmail)),
			Status:        tournament.HostingPending,
		}
		if err := store.CreateHostingRequest(r.Context(), hr); err != nil {
			log.Printf("create hosting request: %v", err)
			writeErr(w, http.StatusInternalServerError, "internal server error")
			return
		}
		writeJSON(w, http.StatusCreated, hr)
	}
}

type resolveHostingReq struct {
	Status string `json:"status" validate:"required,oneof=APPROVED REJECTED"`
}

// PATCH /api/tournaments/{tournamentID}/hosting-requests/{requestID}
// Approval is reserved for platform admins and the tournament creator; an
// approved director must not be able to approve further directors.
func ResolveHostingRequestHandler(store tournament.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tournamentID := chi.URLParam(r, "tournamentID")
		requestID := chi.URLParam(r, "requestID")
		ident := identityFromContext(r.Context())
		if ident.UserID == "" {
			writeErr(w, http.StatusUnauthorized, "Unauthorized")
			return
		}
		t, err := store.GetTournament(r.Context(), tournamentID)
		if err != nil {
			if errors.Is(err, tournament.ErrTournamentNotFound) {
				writeErr(w, http.StatusNotFound, "Tournament not found")
				return
			}
			log.Printf("get tournament: %v", err)
			writeErr(w, http.StatusInternalServerError, "internal server error")
			return
		}
		admin, err := store.IsAdmin(r.Context(), tournamentID, ident.UserID)
		if err != nil {
			log.Printf("admin check: %v", err)
			writeErr(w, http.StatusInternalServerError, "internal server error")
			return
		}
		platformAdmin := rbac.Has(rbac.RoleFromContext(r.Context()), "hosting:approve")
		if !admin && !platformAdmin && t.CreatorID != ident.UserID {
			writeErr(w, http.StatusForbidden, "Not authorized to manage this tournament")
			return
		}
		var req resolveHostingReq
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeInvalidInput(w, []string{"invalid json: " + err.Error()})
			return
		}
		if err := validate.Struct(req); err != nil {
			writeInvalidInput(w, validationDetails(err))
			return
		}
		hr, err := store.GetHostingRequest(r.Context(), requestID)
		if err != nil {
			if errors.Is(err, tournament.ErrHostingRequestNotFound) {
				writeErr(w, http.StatusNotFound, "Hosting request not found")
				return
			}
			log.Printf("get hosting request: %v", err)
			writeErr(w, http.StatusInternalServerError, "internal server error")
			return
		}
		if hr.TournamentID != tournamentID {
			writeErr(w, http.StatusBadRequest, "Hosting request does not belong to this tournament")
			return
		}
		if err := store.SetHostingRequestStatus(r.Context(), requestID, req.Status); err != nil {
			if errors.Is(err, tournament.ErrInvalidStatus) {
				writeInvalidInput(w, []string{err.Error()})
				return
			}
			log.Printf("resolve hosting request: %v", err)
			writeErr(w, http.StatusInternalServerError, "internal server error")
			return
		}
		hr.Status = req.Status
		writeJSON(w, http.StatusOK, hr)
	}
}
