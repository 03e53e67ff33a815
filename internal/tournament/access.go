package tournament

import (
	"context"
	"errors"
	"strings"
)

// AccessStore is the read surface the authorization predicate needs. The SQL
// store implements it; tests substitute fakes.
type AccessStore interface {
	GetTestRef(ctx context.Context, testID string) (TestRef, error)
	GetTournament(ctx context.Context, id string) (Tournament, error)
	IsAdmin(ctx context.Context, tournamentID, userID string) (bool, error)
	HasApprovedDirector(ctx context.Context, tournamentID, email string) (bool, error)
	ListAcceptedStaffFor(ctx context.Context, tournamentID string, ident Identity) ([]StaffAssignment, error)
}

// Authorizer is the single authorization predicate shared by every endpoint
// that gates on tournament roles. Keeping it in one place prevents the
// per-endpoint drift this check is prone to.
type Authorizer struct {
	store AccessStore
}

func NewAuthorizer(store AccessStore) *Authorizer {
	return &Authorizer{store: store}
}

// CanGradeTest decides whether ident may grade attempts of the given test.
// A missing test yields (false, nil), not an error: the caller cannot learn
// whether the test exists from this check.
//
// Authorized when ident is a tournament admin, the tournament's creator, or
// an approved hosting-request director (email matched case-insensitively);
// otherwise when ident holds an ACCEPTED staff assignment that lists the
// test's event. Trial-event tests (no event id) are gradable by any accepted
// staff member of the tournament; that broad policy is deliberate.
func (a *Authorizer) CanGradeTest(ctx context.Context, ident Identity, testID string) (bool, error) {
	ref, err := a.store.GetTestRef(ctx, testID)
	if err != nil {
		if errors.Is(err, ErrTestNotFound) {
			return false, nil
		}
		return false, err
	}

	ok, err := a.CanManageTournament(ctx, ident, ref.TournamentID)
	if err != nil {
		return false, err
	}
	if ok {
		return true, nil
	}

	staff, err := a.store.ListAcceptedStaffFor(ctx, ref.TournamentID, ident)
	if err != nil {
		return false, err
	}
	if ref.EventID == nil {
		return len(staff) > 0, nil
	}
	for _, s := range staff {
		for _, ev := range s.EventIDs {
			if ev == *ref.EventID {
				return true, nil
			}
		}
	}
	return false, nil
}

// CanManageTournament is the admin ∨ creator ∨ approved-director predicate,
// reused by staff, event, and test management handlers.
func (a *Authorizer) CanManageTournament(ctx context.Context, ident Identity, tournamentID string) (bool, error) {
	if ident.UserID != "" {
		ok, err := a.store.IsAdmin(ctx, tournamentID, ident.UserID)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
		t, err := a.store.GetTournament(ctx, tournamentID)
		if err != nil {
			if errors.Is(err, ErrTournamentNotFound) {
				return false, nil
			}
			return false, err
		}
		if t.CreatorID == ident.UserID {
			return true, nil
		}
	}
	if ident.Email == "" {
		return false, nil
	}
	return a.store.HasApprovedDirector(ctx, tournamentID, strings.ToLower(ident.Email))
}
