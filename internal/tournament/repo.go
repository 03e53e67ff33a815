package tournament

import "context"

// Store is the full tournament-side persistence surface. AccessStore is the
// read slice authorization needs; the rest backs the management handlers.
type Store interface {
	AccessStore

	CreateTournament(ctx context.Context, t Tournament) error
	AddAdmin(ctx context.Context, tournamentID, userID string) error
	AddEvent(ctx context.Context, e Event) error
	ListEvents(ctx context.Context, tournamentID string) ([]Event, error)

	CreateStaff(ctx context.Context, sa StaffAssignment) error
	GetStaff(ctx context.Context, id string) (StaffAssignment, error)
	UpdateStaffStatus(ctx context.Context, id, status, claimUserID string) error
	ListStaff(ctx context.Context, tournamentID string) ([]StaffAssignment, error)

	CreateHostingRequest(ctx context.Context, r HostingRequest) error
	GetHostingRequest(ctx context.Context, id string) (HostingRequest, error)
	SetHostingRequestStatus(ctx context.Context, id, status string) error
}
