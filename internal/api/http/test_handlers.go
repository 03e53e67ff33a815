package http

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/scioly/teamy/internal/exam"
	"github.com/scioly/teamy/internal/rbac"
)

type questionInput struct {
	ID        string        `json:"id,omitempty"`
	Type      string        `json:"type" validate:"required,oneof=mcq_single mcq_multi true_false short_answer numeric frq"`
	Prompt    string        `json:"prompt,omitempty"`
	Points    float64       `json:"points" validate:"gte=0"`
	Options   []exam.Option `json:"options,omitempty"`
	AnswerKey []string      `json:"answer_key,omitempty"`
}

type putTestReq struct {
	TournamentID   string          `json:"tournament_id" validate:"required"`
	EventID        *string         `json:"event_id,omitempty"`
	TrialEventName *string         `json:"trial_event_name,omitempty"`
	Division       string          `json:"division,omitempty" validate:"omitempty,oneof=A B C"`
	Title          string          `json:"title" validate:"required"`
	Status         string          `json:"status,omitempty" validate:"omitempty,oneof=DRAFT PUBLISHED"`
	Questions      []questionInput `json:"questions" validate:"required,min=1,dive"`
}

// POST /api/es/tests (and PUT /api/es/tests/{testID} for replacement).
// A test binds to exactly one of event_id or trial_event_name; supplying both
// or neither is rejected before anything touches the store.
func PutTestHandler(store exam.Store, authz Authz) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ident := identityFromContext(r.Context())
		if ident.UserID == "" {
			writeErr(w, http.StatusUnauthorized, "Unauthorized")
			return
		}
		var req putTestReq
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeInvalidInput(w, []string{"invalid json: " + err.Error()})
			return
		}
		if err := validate.Struct(req); err != nil {
			writeInvalidInput(w, validationDetails(err))
			return
		}
		if (req.EventID == nil) == (req.TrialEventName == nil) {
			writeInvalidInput(w, []string{"exactly one of event_id or trial_event_name is required"})
			return
		}

		ok, err := authz.CanManageTournament(r.Context(), ident, req.TournamentID)
		if err != nil {
			log.Printf("manage check: %v", err)
			writeErr(w, http.StatusInternalServerError, "internal server error")
			return
		}
		if !ok {
			writeErr(w, http.StatusForbidden, "Not authorized to manage this tournament")
			return
		}

		id := strings.TrimSpace(chi.URLParam(r, "testID"))
		created := id == ""
		if created {
			id = uuid.NewString()
		}
		t := exam.Test{
			ID:             id,
			TournamentID:   req.TournamentID,
			EventID:        req.EventID,
			TrialEventName: req.TrialEventName,
			Division:       req.Division,
			Title:          req.Title,
			Status:         req.Status,
			CreatedBy:      ident.UserID,
		}
		if t.Status == "" {
			t.Status = "DRAFT"
		}
		for i, q := range req.Questions {
			qid := q.ID
			if qid == "" {
				qid = uuid.NewString()
			}
			t.Questions = append(t.Questions, exam.Question{
				ID:        qid,
				Ord:       i,
				Type:      q.Type,
				Prompt:    q.Prompt,
				Points:    q.Points,
				Options:   q.Options,
				AnswerKey: q.AnswerKey,
			})
		}
		if err := store.PutTest(r.Context(), t); err != nil {
			log.Printf("put test: %v", err)
			writeErr(w, http.StatusInternalServerError, "internal server error")
			return
		}
		status := http.StatusOK
		if created {
			status = http.StatusCreated
		}
		writeJSON(w, status, t)
	}
}

// GET /api/es/tests/{testID}
// Students get the key-stripped view. Callers authorized to grade the test
// (or holding test:view-keys) get the full test with answer keys.
func GetTestHandler(store exam.Store, authz Authz) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		testID := strings.TrimSpace(chi.URLParam(r, "testID"))
		ident := identityFromContext(r.Context())
		if ident.UserID == "" {
			writeErr(w, http.StatusUnauthorized, "Unauthorized")
			return
		}

		full := rbac.Has(rbac.RoleFromContext(r.Context()), "test:view-keys")
		if !full {
			ok, err := authz.CanGradeTest(r.Context(), ident, testID)
			if err != nil {
				log.Printf("grading access check: %v", err)
				writeErr(w, http.StatusInternalServerError, "internal server error")
				return
			}
			full = ok
		}

		var (
			t   exam.Test
			err error
		)
		if full {
			t, err = store.GetTestAdmin(r.Context(), testID)
		} else {
			t, err = store.GetTest(r.Context(), testID)
		}
		if err != nil {
			if errors.Is(err, exam.ErrTestNotFound) {
				writeErr(w, http.StatusNotFound, "Test not found")
				return
			}
			log.Printf("get test: %v", err)
			writeErr(w, http.StatusInternalServerError, "internal server error")
			return
		}
		writeJSON(w, http.StatusOK, t)
	}
}

// GET /api/es/tests?tournament_id=...&event_id=...&limit=50&offset=0
func ListTestsHandler(store exam.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		list, err := store.ListTests(r.Context(), exam.TestListOpts{
			TournamentID: strings.TrimSpace(q.Get("tournament_id")),
			EventID:      strings.TrimSpace(q.Get("event_id")),
			Limit:        parseIntDefault(q.Get("limit"), 50),
			Offset:       parseIntDefault(q.Get("offset"), 0),
		})
		if err != nil {
			log.Printf("list tests: %v", err)
			writeErr(w, http.StatusInternalServerError, "internal server error")
			return
		}
		writeJSON(w, http.StatusOK, list)
	}
}
