package tournament

import (
	"context"
	"strings"
	"testing"
)

type fakeAccessStore struct {
	tests       map[string]TestRef
	tournaments map[string]Tournament
	admins      map[string]map[string]bool // tournamentID -> userID
	directors   map[string]map[string]bool // tournamentID -> lowercased email
	staff       map[string][]StaffAssignment
}

func (f *fakeAccessStore) GetTestRef(_ context.Context, testID string) (TestRef, error) {
	ref, ok := f.tests[testID]
	if !ok {
		return TestRef{}, ErrTestNotFound
	}
	return ref, nil
}

func (f *fakeAccessStore) GetTournament(_ context.Context, id string) (Tournament, error) {
	t, ok := f.tournaments[id]
	if !ok {
		return Tournament{}, ErrTournamentNotFound
	}
	return t, nil
}

func (f *fakeAccessStore) IsAdmin(_ context.Context, tournamentID, userID string) (bool, error) {
	return f.admins[tournamentID][userID], nil
}

func (f *fakeAccessStore) HasApprovedDirector(_ context.Context, tournamentID, email string) (bool, error) {
	return f.directors[tournamentID][strings.ToLower(email)], nil
}

func (f *fakeAccessStore) ListAcceptedStaffFor(_ context.Context, tournamentID string, ident Identity) ([]StaffAssignment, error) {
	var out []StaffAssignment
	for _, sa := range f.staff[tournamentID] {
		if sa.Status != StaffAccepted {
			continue
		}
		if (sa.UserID != nil && *sa.UserID == ident.UserID) ||
			strings.EqualFold(sa.Email, ident.Email) {
			out = append(out, sa)
		}
	}
	return out, nil
}

func sp(s string) *string { return &s }

func newFixture() *fakeAccessStore {
	return &fakeAccessStore{
		tests: map[string]TestRef{
			"test-anat":  {TestID: "test-anat", TournamentID: "t1", EventID: sp("ev-anat")},
			"test-trial": {TestID: "test-trial", TournamentID: "t1", EventID: nil},
		},
		tournaments: map[string]Tournament{
			"t1": {ID: "t1", Name: "Regionals", CreatorID: "creator"},
		},
		admins:    map[string]map[string]bool{"t1": {"admin": true}},
		directors: map[string]map[string]bool{"t1": {"director@school.edu": true}},
		staff: map[string][]StaffAssignment{
			"t1": {
				{ID: "s1", TournamentID: "t1", UserID: sp("es-anat"), Email: "anat@x.org",
					Status: StaffAccepted, EventIDs: []string{"ev-anat"}},
				{ID: "s2", TournamentID: "t1", UserID: sp("es-other"), Email: "other@x.org",
					Status: StaffAccepted, EventIDs: []string{"ev-fossils"}},
				{ID: "s3", TournamentID: "t1", UserID: nil, Email: "Pending@x.org",
					Status: StaffPending, EventIDs: []string{"ev-anat"}},
			},
		},
	}
}

func TestCanGradeTest(t *testing.T) {
	a := NewAuthorizer(newFixture())
	ctx := context.Background()

	cases := []struct {
		name   string
		ident  Identity
		testID string
		want   bool
	}{
		{"admin", Identity{UserID: "admin", Email: "a@x.org"}, "test-anat", true},
		{"creator", Identity{UserID: "creator", Email: "c@x.org"}, "test-anat", true},
		{"approved director", Identity{UserID: "u9", Email: "director@school.edu"}, "test-anat", true},
		{"director email case-insensitive", Identity{UserID: "u9", Email: "Director@School.EDU"}, "test-anat", true},
		{"staff assigned to event", Identity{UserID: "es-anat", Email: "anat@x.org"}, "test-anat", true},
		{"staff by email only", Identity{UserID: "someone", Email: "ANAT@x.org"}, "test-anat", true},
		{"staff wrong event", Identity{UserID: "es-other", Email: "other@x.org"}, "test-anat", false},
		{"pending staff", Identity{UserID: "u3", Email: "pending@x.org"}, "test-anat", false},
		{"stranger", Identity{UserID: "nobody", Email: "n@x.org"}, "test-anat", false},
		{"trial test any accepted staff", Identity{UserID: "es-other", Email: "other@x.org"}, "test-trial", true},
		{"trial test stranger", Identity{UserID: "nobody", Email: "n@x.org"}, "test-trial", false},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got, err := a.CanGradeTest(ctx, c.ident, c.testID)
			if err != nil {
				t.Fatalf("CanGradeTest: %v", err)
			}
			if got != c.want {
				t.Fatalf("CanGradeTest(%+v, %s) = %v, want %v", c.ident, c.testID, got, c.want)
			}
		})
	}
}

func TestCanGradeTestMissingTest(t *testing.T) {
	a := NewAuthorizer(newFixture())
	ok, err := a.CanGradeTest(context.Background(), Identity{UserID: "admin", Email: "a@x.org"}, "no-such-test")
	if err != nil {
		t.Fatalf("missing test must not surface an error, got %v", err)
	}
	if ok {
		t.Fatal("missing test must deny")
	}
}

func TestCanManageTournament(t *testing.T) {
	a := NewAuthorizer(newFixture())
	ctx := context.Background()

	cases := []struct {
		name  string
		ident Identity
		want  bool
	}{
		{"admin", Identity{UserID: "admin"}, true},
		{"creator", Identity{UserID: "creator"}, true},
		{"director by email", Identity{Email: "DIRECTOR@school.edu"}, true},
		{"accepted staff cannot manage", Identity{UserID: "es-anat", Email: "anat@x.org"}, false},
		{"empty identity", Identity{}, false},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got, err := a.CanManageTournament(ctx, c.ident, "t1")
			if err != nil {
				t.Fatalf("CanManageTournament: %v", err)
			}
			if got != c.want {
				t.Fatalf("CanManageTournament(%+v) = %v, want %v", c.ident, got, c.want)
			}
		})
	}
}

func TestCanManageMissingTournament(t *testing.T) {
	a := NewAuthorizer(newFixture())
	ok, err := a.CanManageTournament(context.Background(), Identity{UserID: "creator"}, "no-such")
	if err != nil {
		t.Fatalf("missing tournament must not surface an error, got %v", err)
	}
	if ok {
		t.Fatal("missing tournament must deny")
	}
}
