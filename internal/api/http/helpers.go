package http

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-playground/validator/v10"

	authmw "github.com/scioly/teamy/internal/auth/middleware"
	"github.com/scioly/teamy/internal/tournament"
)

// validate is shared across handlers; validator instances cache struct metadata.
var validate = validator.New()

// Authz is the slice of the tournament Authorizer handlers need.
type Authz interface {
	CanGradeTest(ctx context.Context, ident tournament.Identity, testID string) (bool, error)
	CanManageTournament(ctx context.Context, ident tournament.Identity, tournamentID string) (bool, error)
}

func identityFromContext(ctx context.Context) tournament.Identity {
	return tournament.Identity{
		UserID: authmw.SubjectFromContext(ctx),
		Email:  authmw.EmailFromContext(ctx),
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type errResp struct {
	Error   string   `json:"error"`
	Details []string `json:"details,omitempty"`
}

func writeErr(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errResp{Error: msg})
}

func writeInvalidInput(w http.ResponseWriter, details []string) {
	writeJSON(w, http.StatusBadRequest, errResp{Error: "Invalid input", Details: details})
}

// validationDetails flattens validator errors into client-safe strings.
func validationDetails(err error) []string {
	if verrs, ok := err.(validator.ValidationErrors); ok {
		out := make([]string, 0, len(verrs))
		for _, fe := range verrs {
			out = append(out, fe.Namespace()+": failed "+fe.Tag())
		}
		return out
	}
	return []string{err.Error()}
}

func parseIntDefault(s string, def int) int {
	if s == "" {
		return def
	}
	if v, err := strconv.Atoi(s); err == nil && v >= 0 {
		return v
	}
	return def
}
