package tournament

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"
)

type SQLStore struct {
	db *sql.DB
}

func NewSQLStore(db *sql.DB) *SQLStore {
	return &SQLStore{db: db}
}

func (s *SQLStore) CreateTournament(ctx context.Context, t Tournament) error {
	if t.CreatedAt == 0 {
		t.CreatedAt = time.Now().Unix()
	}
	_, err := s.db.ExecContext(ctx, `INSERT INTO tournaments (id,name,division,creator_id,created_at)
		VALUES ($1,$2,$3,$4,$5)`, t.ID, t.Name, t.Division, t.CreatorID, t.CreatedAt)
	return err
}

func (s *SQLStore) GetTournament(ctx context.Context, id string) (Tournament, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id,name,division,creator_id,created_at FROM tournaments WHERE id=$1`, id)
	var t Tournament
	if err := row.Scan(&t.ID, &t.Name, &t.Division, &t.CreatorID, &t.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Tournament{}, ErrTournamentNotFound
		}
		return Tournament{}, err
	}
	return t, nil
}

func (s *SQLStore) AddAdmin(ctx context.Context, tournamentID, userID string) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO tournament_admins (tournament_id,user_id)
		VALUES ($1,$2) ON CONFLICT DO NOTHING`, tournamentID, userID)
	return err
}

func (s *SQLStore) IsAdmin(ctx context.Context, tournamentID, userID string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM tournament_admins WHERE tournament_id=$1 AND user_id=$2`,
		tournamentID, userID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *SQLStore) AddEvent(ctx context.Context, e Event) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO events (id,tournament_id,name) VALUES ($1,$2,$3)`,
		e.ID, e.TournamentID, e.Name)
	return err
}

func (s *SQLStore) ListEvents(ctx context.Context, tournamentID string) ([]Event, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id,tournament_id,name FROM events WHERE tournament_id=$1 ORDER BY name`, tournamentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Event
	for rows.Next() {
		var e Event
		if err := rows.Scan(&e.ID, &e.TournamentID, &e.Name); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *SQLStore) CreateStaff(ctx context.Context, sa StaffAssignment) error {
	if sa.CreatedAt == 0 {
		sa.CreatedAt = time.Now().Unix()
	}
	ej, err := json.Marshal(sa.EventIDs)
	if err != nil {
		return err
	}
	tj, err := json.Marshal(sa.TrialEventNames)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO staff (id,tournament_id,user_id,email,status,events_json,trial_events_json,created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		sa.ID, sa.TournamentID, sa.UserID, sa.Email, sa.Status, string(ej), string(tj), sa.CreatedAt)
	return err
}

func (s *SQLStore) GetStaff(ctx context.Context, id string) (StaffAssignment, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id,tournament_id,user_id,email,status,events_json,trial_events_json,created_at
		FROM staff WHERE id=$1`, id)
	sa, err := scanStaff(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return StaffAssignment{}, ErrStaffNotFound
		}
		return StaffAssignment{}, err
	}
	return sa, nil
}

// UpdateStaffStatus records an invitee's response. When the responder is an
// authenticated account matched by email, claimUserID binds the assignment to
// that user id for future id-based matches.
func (s *SQLStore) UpdateStaffStatus(ctx context.Context, id, status, claimUserID string) error {
	if status != StaffAccepted && status != StaffDeclined {
		return ErrInvalidStatus
	}
	var res sql.Result
	var err error
	if claimUserID != "" {
		res, err = s.db.ExecContext(ctx, `UPDATE staff SET status=$1, user_id=$2 WHERE id=$3`, status, claimUserID, id)
	} else {
		res, err = s.db.ExecContext(ctx, `UPDATE staff SET status=$1 WHERE id=$2`, status, id)
	}
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrStaffNotFound
	}
	return nil
}

func (s *SQLStore) ListStaff(ctx context.Context, tournamentID string) ([]StaffAssignment, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id,tournament_id,user_id,email,status,events_json,trial_events_json,created_at
		FROM staff WHERE tournament_id=$1 ORDER BY created_at`, tournamentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectStaff(rows)
}

// ListAcceptedStaffFor returns the ACCEPTED assignments in the tournament
// matching ident by user id or case-insensitive email.
func (s *SQLStore) ListAcceptedStaffFor(ctx context.Context, tournamentID string, ident Identity) ([]StaffAssignment, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id,tournament_id,user_id,email,status,events_json,trial_events_json,created_at
		FROM staff WHERE tournament_id=$1 AND status=$2 AND (user_id=$3 OR LOWER(email)=LOWER($4))`,
		tournamentID, StaffAccepted, ident.UserID, ident.Email)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectStaff(rows)
}

func (s *SQLStore) CreateHostingRequest(ctx context.Context, r HostingRequest) error {
	if r.CreatedAt == 0 {
		r.CreatedAt = time.Now().Unix()
	}
	_, err := s.db.ExecContext(ctx, `INSERT INTO hosting_requests (id,tournament_id,director_email,status,created_at)
		VALUES ($1,$2,$3,$4,$5)`, r.ID, r.TournamentID, r.DirectorEmail, r.Status, r.CreatedAt)
	return err
}

func (s *SQLStore) GetHostingRequest(ctx context.Context, id string) (HostingRequest, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id,tournament_id,director_email,status,created_at FROM hosting_requests WHERE id=$1`, id)
	var r HostingRequest
	if err := row.Scan(&r.ID, &r.TournamentID, &r.DirectorEmail, &r.Status, &r.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return HostingRequest{}, ErrHostingRequestNotFound
		}
		return HostingRequest{}, err
	}
	return r, nil
}

func (s *SQLStore) SetHostingRequestStatus(ctx context.Context, id, status string) error {
	if status != HostingApproved && status != HostingRejected {
		return ErrInvalidStatus
	}
	res, err := s.db.ExecContext(ctx, `UPDATE hosting_requests SET status=$1 WHERE id=$2`, status, id)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrHostingRequestNotFound
	}
	return nil
}

func (s *SQLStore) HasApprovedDirector(ctx context.Context, tournamentID, email string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM hosting_requests
		WHERE tournament_id=$1 AND status=$2 AND LOWER(director_email)=LOWER($3)`,
		tournamentID, HostingApproved, email).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *SQLStore) GetTestRef(ctx context.Context, testID string) (TestRef, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id,tournament_id,event_id FROM tests WHERE id=$1`, testID)
	var ref TestRef
	var eventID sql.NullString
	if err := row.Scan(&ref.TestID, &ref.TournamentID, &eventID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return TestRef{}, ErrTestNotFound
		}
		return TestRef{}, err
	}
	if eventID.Valid {
		ref.EventID = &eventID.String
	}
	return ref, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanStaff(row rowScanner) (StaffAssignment, error) {
	var sa StaffAssignment
	var userID sql.NullString
	var ej, tj string
	if err := row.Scan(&sa.ID, &sa.TournamentID, &userID, &sa.Email, &sa.Status, &ej, &tj, &sa.CreatedAt); err != nil {
		return StaffAssignment{}, err
	}
	if userID.Valid {
		sa.UserID = &userID.String
	}
	if err := json.Unmarshal([]byte(ej), &sa.EventIDs); err != nil {
		return StaffAssignment{}, err
	}
	if err := json.Unmarshal([]byte(tj), &sa.TrialEventNames); err != nil {
		return StaffAssignment{}, err
	}
	return sa, nil
}

func collectStaff(rows *sql.Rows) ([]StaffAssignment, error) {
	var out []StaffAssignment
	for rows.Next() {
		sa, err := scanStaff(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sa)
	}
	return out, rows.Err()
}
