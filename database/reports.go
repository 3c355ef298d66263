package database

import (
	"context"
	"database/sql"
	"time"

	"roadalert/lifecycle"
	"roadalert/models"

	"github.com/apex/log"
)

// ReportService implements lifecycle.ReportStore on MySQL.
type ReportService struct {
	db      *sql.DB
	timeout time.Duration
}

func NewReportService(db *sql.DB, timeout time.Duration) *ReportService {
	return &ReportService{db: db, timeout: timeout}
}

func (s *ReportService) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.timeout)
}

func (s *ReportService) KindByName(ctx context.Context, name string) (*models.IncidentType, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var it models.IncidentType
	err := q(ctx, s.db).QueryRowContext(ctx,
		`SELECT id, type_name, icon_url FROM incident_types WHERE type_name = ?`, name).
		Scan(&it.ID, &it.TypeName, &it.IconURL)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, storeErr("lookup incident type", err)
	}
	return &it, nil
}

// ListKinds returns the whole incident type lookup table.
func (s *ReportService) ListKinds(ctx context.Context) ([]models.IncidentType, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	rows, err := q(ctx, s.db).QueryContext(ctx,
		`SELECT id, type_name, icon_url FROM incident_types ORDER BY id`)
	if err != nil {
		return nil, storeErr("list incident types", err)
	}
	defer rows.Close()

	kinds := make([]models.IncidentType, 0, 8)
	for rows.Next() {
		var it models.IncidentType
		if err := rows.Scan(&it.ID, &it.TypeName, &it.IconURL); err != nil {
			return nil, storeErr("scan incident type", err)
		}
		kinds = append(kinds, it)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("list incident types", err)
	}
	return kinds, nil
}

func (s *ReportService) Create(ctx context.Context, r *models.Report) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	result, err := q(ctx, s.db).ExecContext(ctx, `INSERT
		INTO reports (user_id, type_id, latitude, longitude, description, status, created_at, expires_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		r.AuthorID, r.TypeID, r.Latitude, r.Longitude, nullString(r.Description),
		string(r.Status), r.CreatedAt, r.ExpiresAt)
	if err != nil {
		log.Errorf("Error inserting report: %v", err)
		return storeErr("insert report", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return storeErr("insert report", err)
	}
	r.ID = id
	return nil
}

func (s *ReportService) Get(ctx context.Context, id int64) (*models.Report, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var (
		r       models.Report
		desc    sql.NullString
		expires sql.NullTime
	)
	err := q(ctx, s.db).QueryRowContext(ctx, `SELECT
		r.id, r.user_id, u.username, r.type_id, it.type_name,
		r.latitude, r.longitude, r.description, r.status, r.created_at, r.expires_at
		FROM reports AS r
		JOIN users AS u ON u.id = r.user_id
		JOIN incident_types AS it ON it.id = r.type_id
		WHERE r.id = ?`, id).
		Scan(&r.ID, &r.AuthorID, &r.AuthorName, &r.TypeID, &r.TypeName,
			&r.Latitude, &r.Longitude, &desc, &r.Status, &r.CreatedAt, &expires)
	if err != nil {
		return nil, storeErr("get report", err)
	}
	r.Description = desc.String
	if expires.Valid {
		t := expires.Time
		r.ExpiresAt = &t
	}
	return &r, nil
}

func (s *ReportService) ListActive(ctx context.Context, callerID int64, now time.Time) ([]models.ActiveReport, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	rows, err := q(ctx, s.db).QueryContext(ctx, `SELECT
		r.id, r.user_id, u.username, r.type_id, it.type_name,
		r.latitude, r.longitude, r.description, r.status, r.created_at, r.expires_at,
		COALESCE(SUM(v.vote_type = 'keep'), 0) AS keep_votes,
		COALESCE(SUM(v.vote_type = 'remove'), 0) AS remove_votes,
		cv.vote_type AS caller_vote
		FROM reports AS r
		JOIN users AS u ON u.id = r.user_id
		JOIN incident_types AS it ON it.id = r.type_id
		LEFT JOIN votes AS v ON v.report_id = r.id
		LEFT JOIN votes AS cv ON cv.report_id = r.id AND cv.user_id = ?
		WHERE r.status = 'active' AND (r.expires_at IS NULL OR r.expires_at >= ?)
		GROUP BY r.id, cv.vote_type
		ORDER BY r.created_at DESC`, callerID, now)
	if err != nil {
		log.Errorf("Could not retrieve active reports: %v", err)
		return nil, storeErr("list active reports", err)
	}
	defer rows.Close()

	out := make([]models.ActiveReport, 0, 100)
	for rows.Next() {
		var (
			ar         models.ActiveReport
			desc       sql.NullString
			expires    sql.NullTime
			callerVote sql.NullString
		)
		if err := rows.Scan(&ar.ID, &ar.AuthorID, &ar.AuthorName, &ar.TypeID, &ar.TypeName,
			&ar.Latitude, &ar.Longitude, &desc, &ar.Status, &ar.CreatedAt, &expires,
			&ar.Votes.Keep, &ar.Votes.Remove, &callerVote); err != nil {
			return nil, storeErr("scan active report", err)
		}
		ar.Description = desc.String
		if expires.Valid {
			t := expires.Time
			ar.ExpiresAt = &t
		}
		if callerVote.Valid {
			c := models.VoteChoice(callerVote.String)
			ar.CallerVote = &c
		}
		out = append(out, ar)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("list active reports", err)
	}
	return out, nil
}

// ActivePoints returns the coordinates of visible reports inside the
// viewport, for map clustering. Not part of the engine contract.
func (s *ReportService) ActivePoints(ctx context.Context, vp models.ViewPort, now time.Time) ([]models.ReportPoint, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	rows, err := q(ctx, s.db).QueryContext(ctx, `SELECT
		r.id, r.latitude, r.longitude, it.type_name
		FROM reports AS r
		JOIN incident_types AS it ON it.id = r.type_id
		WHERE r.status = 'active' AND (r.expires_at IS NULL OR r.expires_at >= ?)
		AND r.latitude > ? AND r.latitude <= ?
		AND r.longitude > ? AND r.longitude <= ?`,
		now, vp.LatMin, vp.LatMax, vp.LonMin, vp.LonMax)
	if err != nil {
		log.Errorf("Could not retrieve report points: %v", err)
		return nil, storeErr("list report points", err)
	}
	defer rows.Close()

	pts := make([]models.ReportPoint, 0, 100)
	for rows.Next() {
		var p models.ReportPoint
		if err := rows.Scan(&p.ID, &p.Latitude, &p.Longitude, &p.TypeName); err != nil {
			return nil, storeErr("scan report point", err)
		}
		pts = append(pts, p)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("list report points", err)
	}
	return pts, nil
}

func (s *ReportService) Renew(ctx context.Context, id int64, expiresAt time.Time) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	result, err := q(ctx, s.db).ExecContext(ctx,
		`UPDATE reports SET expires_at = ? WHERE id = ? AND status = 'active'`, expiresAt, id)
	if err != nil {
		return storeErr("renew report", err)
	}
	if n, _ := result.RowsAffected(); n != 1 {
		return lifecycle.ErrConflict
	}
	return nil
}

func (s *ReportService) Delete(ctx context.Context, id int64) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	result, err := q(ctx, s.db).ExecContext(ctx, `DELETE FROM reports WHERE id = ?`, id)
	if err != nil {
		return storeErr("delete report", err)
	}
	if n, _ := result.RowsAffected(); n != 1 {
		return lifecycle.ErrConflict
	}
	return nil
}

func (s *ReportService) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	result, err := q(ctx, s.db).ExecContext(ctx,
		`DELETE FROM reports WHERE status = 'active' AND expires_at IS NOT NULL AND expires_at < ?`, now)
	if err != nil {
		return 0, storeErr("delete expired reports", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, storeErr("delete expired reports", err)
	}
	return n, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
