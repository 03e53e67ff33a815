package http

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/scioly/teamy/internal/audit"
	"github.com/scioly/teamy/internal/exam"
	"github.com/scioly/teamy/internal/metrics"
)

type gradeEntry struct {
	AnswerID      string   `json:"answerId" validate:"required"`
	PointsAwarded *float64 `json:"pointsAwarded" validate:"required,gte=0"`
	GraderNote    *string  `json:"graderNote,omitempty"`
}

type gradeReq struct {
	Grades []gradeEntry `json:"grades" validate:"required,min=1,dive"`
}

type gradeResp struct {
	Success bool               `json:"success"`
	Attempt exam.AttemptDetail `json:"attempt"`
}

// GET /api/es/tests/{testID}/attempts/{attemptID}/grading
// Grader view: every answer of the attempt joined with its full question,
// answer keys included. Gated by the same predicate as grading itself.
func GetAttemptGradingHandler(store exam.Store, authz Authz) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		testID := strings.TrimSpace(chi.URLParam(r, "testID"))
		attemptID := strings.TrimSpace(chi.URLParam(r, "attemptID"))

		ident := identityFromContext(r.Context())
		if ident.UserID == "" || ident.Email == "" {
			writeErr(w, http.StatusUnauthorized, "Unauthorized")
			return
		}
		ok, err := authz.CanGradeTest(r.Context(), ident, testID)
		if err != nil {
			log.Printf("grading access check: %v", err)
			writeErr(w, http.StatusInternalServerError, "internal server error")
			return
		}
		if !ok {
			writeErr(w, http.StatusForbidden, "Not authorized to grade test attempts")
			return
		}

		a, err := store.GetAttempt(r.Context(), attemptID)
		if err != nil {
			if errors.Is(err, exam.ErrAttemptNotFound) {
				writeErr(w, http.StatusNotFound, "Attempt not found")
				return
			}
			log.Printf("grading items: %v", err)
			writeErr(w, http.StatusInternalServerError, "internal server error")
			return
		}
		if a.TestID != testID {
			writeErr(w, http.StatusBadRequest, "Attempt does not belong to this test")
			return
		}

		items, err := store.GetAttemptItems(r.Context(), attemptID)
		if err != nil {
			log.Printf("grading items: %v", err)
			writeErr(w, http.StatusInternalServerError, "internal server error")
			return
		}
		writeJSON(w, http.StatusOK, items)
	}
}

// PATCH /api/es/tests/{testID}/attempts/{attemptID}/grade
//
// Applies a batch of per-answer grades atomically. Precondition checks run in
// order, each short-circuiting: identity, body shape, grading authorization,
// attempt existence, attempt/test binding. Business-rule failures inside the
// transaction (unknown answer, over-award) reject the whole batch with a
// controlled message; no partial writes survive.
func GradeAttemptHandler(store exam.Store, authz Authz, auditLog *audit.Log) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		testID := strings.TrimSpace(chi.URLParam(r, "testID"))
		attemptID := strings.TrimSpace(chi.URLParam(r, "attemptID"))

		ident := identityFromContext(r.Context())
		if ident.UserID == "" || ident.Email == "" {
			writeErr(w, http.StatusUnauthorized, "Unauthorized")
			return
		}

		var req gradeReq
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeInvalidInput(w, []string{"invalid json: " + err.Error()})
			return
		}
		if err := validate.Struct(req); err != nil {
			writeInvalidInput(w, validationDetails(err))
			return
		}

		ok, err := authz.CanGradeTest(r.Context(), ident, testID)
		if err != nil {
			log.Printf("grading access check: %v", err)
			writeErr(w, http.StatusInternalServerError, "internal server error")
			return
		}
		if !ok {
			writeErr(w, http.StatusForbidden, "Not authorized to grade test attempts")
			return
		}

		a, err := store.GetAttempt(r.Context(), attemptID)
		if err != nil {
			if errors.Is(err, exam.ErrAttemptNotFound) {
				writeErr(w, http.StatusNotFound, "Attempt not found")
				return
			}
			log.Printf("load attempt: %v", err)
			writeErr(w, http.StatusInternalServerError, "internal server error")
			return
		}
		if a.TestID != testID {
			writeErr(w, http.StatusBadRequest, "Attempt does not belong to this test")
			return
		}

		grades := make([]exam.GradeInput, 0, len(req.Grades))
		for _, g := range req.Grades {
			grades = append(grades, exam.GradeInput{
				AnswerID:      g.AnswerID,
				PointsAwarded: *g.PointsAwarded,
				GraderNote:    g.GraderNote,
			})
		}

		updated, err := store.ApplyGrades(r.Context(), attemptID, grades, ident.UserID)
		if err != nil {
			switch {
			case errors.Is(err, exam.ErrAttemptNotFound):
				writeErr(w, http.StatusNotFound, "Attempt not found")
			case errors.Is(err, exam.ErrAnswerNotFound),
				errors.Is(err, exam.ErrPointsExceedMaximum),
				errors.Is(err, exam.ErrNegativePoints):
				metrics.GradeSubmissions.WithLabelValues("rejected").Inc()
				writeErr(w, http.StatusBadRequest, err.Error())
			default:
				metrics.GradeSubmissions.WithLabelValues("error").Inc()
				log.Printf("apply grades: %v", err)
				writeErr(w, http.StatusInternalServerError, "internal server error")
			}
			return
		}
		metrics.GradeSubmissions.WithLabelValues("applied").Inc()
		_ = auditLog.Append(r.Context(), audit.TypeGradesApplied, attemptID, map[string]interface{}{
			"graded_by": ident.UserID,
			"count":     len(grades),
			"status":    updated.Status,
			"score":     updated.Score,
		})
		if updated.Status == exam.StatusGraded {
			metrics.AttemptsFullyGraded.Inc()
			_ = auditLog.Append(r.Context(), audit.TypeAttemptGraded, attemptID, map[string]interface{}{
				"graded_by": ident.UserID,
				"score":     updated.Score,
			})
		}

		// reload after commit so the body reflects exactly what is durable
		detail, err := store.GetAttemptDetail(r.Context(), attemptID)
		if err != nil {
			log.Printf("reload attempt: %v", err)
			writeErr(w, http.StatusInternalServerError, "internal server error")
			return
		}
		writeJSON(w, http.StatusOK, gradeResp{Success: true, Attempt: detail})
	}
}
