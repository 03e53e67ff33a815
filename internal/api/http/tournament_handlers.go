package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/scioly/teamy/internal/tournament"
)

type createTournamentReq struct {
	Name     string `json:"name" validate:"required"`
	Division string `json:"division,omitempty" validate:"omitempty,oneof=A B C"`
}

func CreateTournamentHandler(store tournament.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ident := identityFromContext(r.Context())
		if ident.UserID == "" {
			writeErr(w, http.StatusUnauthorized, "Unauthorized")
			return
		}
		var req createTournamentReq
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeInvalidInput(w, []string{"invalid json: " + err.Error()})
			return
		}
		if err := validate.Struct(req); err != nil {
			writeInvalidInput(w, validationDetails(err))
			return
		}
		t := tournament.Tournament{
			ID:        uuid.NewString(),
			Name:      req.Name,
			Division:  req.Division,
			CreatorID: ident.UserID,
		}
		if err := store.CreateTournament(r.Context(), t); err != nil {
			writeErr(w, http.StatusInternalServerError, "internal server error")
			return
		}
		writeJSON(w, http.StatusCreated, t)
	}
}

func GetTournamentHandler(store tournament.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "tournamentID")
		t, err := store.GetTournament(r.Context(), id)
		if err != nil {
			if errors.Is(err, tournament.ErrTournamentNotFound) {
				writeErr(w, http.StatusNotFound, "Tournament not found")
				return
			}
			writeErr(w, http.StatusInternalServerError, "internal server error")
			return
		}
		writeJSON(w, http.StatusOK, t)
	}
}

type addEventReq struct {
	Name string `json:"name" validate:"required"`
}

func AddEventHandler(store tournament.Store, authz Authz) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tournamentID := chi.URLParam(r, "tournamentID")
		ident := identityFromContext(r.Context())
		if ident.UserID == "" {
			writeErr(w, http.StatusUnauthorized, "Unauthorized")
			return
		}
		ok, err := authz.CanManageTournament(r.Context(), ident, tournamentID)
		if err != nil {
			writeErr(w, http.StatusInternalServerError, "internal server error")
			return
		}
		if !ok {
			writeErr(w, http.StatusForbidden, "Not authorized to manage this tournament")
			return
		}
		var req addEventReq
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeInvalidInput(w, []string{"invalid json: " + err.Error()})
			return
		}
		if err := validate.Struct(req); err != nil {
			writeInvalidInput(w, validationDetails(err))
			return
		}
		e := tournament.Event{ID: uuid.NewString(), TournamentID: tournamentID, Name: req.Name}
		if err := store.AddEvent(r.Context(), e); err != nil {
			writeErr(w, http.StatusInternalServerError, "internal server error")
			return
		}
		writeJSON(w, http.StatusCreated, e)
	}
}

func ListEventsHandler(store tournament.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list, err := store.ListEvents(r.Context(), chi.URLParam(r, "tournamentID"))
		if err != nil {
			writeErr(w, http.StatusInternalServerError, "internal server error")
			return
		}
		writeJSON(w, http.StatusOK, list)
	}
}

type addAdminReq struct {
	UserID string `json:"user_id" validate:"required"`
}

func AddAdminHandler(store tournament.Store, authz Authz) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tournamentID := chi.URLParam(r, "tournamentID")
		ident := identityFromContext(r.Context())
		if ident.UserID == "" {
			writeErr(w, http.StatusUnauthorized, "Unauthorized")
			return
		}
		ok, err := authz.CanManageTournament(r.Context(), ident, tournamentID)
		if err != nil {
			writeErr(w, http.StatusInternalServerError, "internal server error")
			return
		}
		if !ok {
			writeErr(w, http.StatusForbidden, "Not authorized to manage this tournament")
			return
		}
		var req addAdminReq
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeInvalidInput(w, []string{"invalid json: " + err.Error()})
			return
		}
		if err := validate.Struct(req); err != nil {
			writeInvalidInput(w, validationDetails(err))
			return
		}
		if err := store.AddAdmin(r.Context(), tournamentID, req.UserID); err != nil {
			writeErr(w, http.StatusInternalServerError, "internal server error")
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
