package tournament

import "errors"

// Staff assignment status values.
const (
	StaffPending  = "PENDING"
	StaffAccepted = "ACCEPTED"
	StaffDeclined = "DECLINED"
)

// Hosting request status values.
const (
	HostingPending  = "PENDING"
	HostingApproved = "APPROVED"
	HostingRejected = "REJECTED"
)

var (
	ErrTournamentNotFound     = errors.New("tournament not found")
	ErrTestNotFound           = errors.New("test not found")
	ErrStaffNotFound          = errors.New("staff assignment not found")
	ErrHostingRequestNotFound = errors.New("hosting request not found")
	ErrInvalidStatus          = errors.New("invalid status value")
)

// Identity is the authenticated caller as seen by authorization checks. Both
// keys matter: staff assignments can be keyed by user id or, for invitees who
// have not registered yet, by email alone.
type Identity struct {
	UserID string
	Email  string
}

type Tournament struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Division  string `json:"division,omitempty"`
	CreatorID string `json:"creator_id"`
	CreatedAt int64  `json:"created_at,omitempty"`
}

type Event struct {
	ID           string `json:"id"`
	TournamentID string `json:"tournament_id"`
	Name         string `json:"name"`
}

// StaffAssignment associates a user (by id or case-insensitive email) with a
// tournament and the events they supervise. Trial events are assigned by name
// since they have no catalog row.
type StaffAssignment struct {
	ID              string   `json:"id"`
	TournamentID    string   `json:"tournament_id"`
	UserID          *string  `json:"user_id,omitempty"`
	Email           string   `json:"email"`
	Status          string   `json:"status"`
	EventIDs        []string `json:"event_ids"`
	TrialEventNames []string `json:"trial_event_names,omitempty"`
	CreatedAt       int64    `json:"created_at,omitempty"`
}

type HostingRequest struct {
	ID            string `json:"id"`
	TournamentID  string `json:"tournament_id"`
	DirectorEmail string `json:"director_email"`
	Status        string `json:"status"`
	CreatedAt     int64  `json:"created_at,omitempty"`
}

// TestRef is the slice of a test that authorization needs: its tournament and
// its event binding. A nil EventID marks a trial-event test.
type TestRef struct {
	TestID       string
	TournamentID string
	EventID      *string
}
