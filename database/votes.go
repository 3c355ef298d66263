package database

import (
	"context"
	"database/sql"
	"time"

	"roadalert/models"
)

// VoteService implements lifecycle.VoteLedger on MySQL. The
// UNIQUE(report_id, user_id) key is what enforces one live vote per
// pair; Upsert leans on it.
type VoteService struct {
	db      *sql.DB
	timeout time.Duration
}

func NewVoteService(db *sql.DB, timeout time.Duration) *VoteService {
	return &VoteService{db: db, timeout: timeout}
}

func (s *VoteService) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.timeout)
}

func (s *VoteService) Find(ctx context.Context, reportID, voterID int64) (*models.Vote, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	v := models.Vote{ReportID: reportID, UserID: voterID}
	err := q(ctx, s.db).QueryRowContext(ctx,
		`SELECT vote_type, created_at FROM votes WHERE report_id = ? AND user_id = ?`,
		reportID, voterID).Scan(&v.Choice, &v.CastAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, storeErr("find vote", err)
	}
	return &v, nil
}

func (s *VoteService) Upsert(ctx context.Context, reportID, voterID int64, choice models.VoteChoice) (bool, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	// MySQL reports 1 affected row for an insert and 2 for an
	// ON DUPLICATE KEY overwrite, which is exactly the created signal.
	result, err := q(ctx, s.db).ExecContext(ctx, `INSERT
		INTO votes (report_id, user_id, vote_type, created_at)
		VALUES (?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE vote_type = VALUES(vote_type), created_at = VALUES(created_at)`,
		reportID, voterID, string(choice), time.Now())
	if err != nil {
		return false, storeErr("upsert vote", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, storeErr("upsert vote", err)
	}
	return n == 1, nil
}

func (s *VoteService) CountByChoice(ctx context.Context, reportID int64) (models.Tally, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	rows, err := q(ctx, s.db).QueryContext(ctx,
		`SELECT vote_type, COUNT(*) FROM votes WHERE report_id = ? GROUP BY vote_type`, reportID)
	if err != nil {
		return models.Tally{}, storeErr("count votes", err)
	}
	defer rows.Close()

	var tally models.Tally
	for rows.Next() {
		var (
			choice string
			n      int
		)
		if err := rows.Scan(&choice, &n); err != nil {
			return models.Tally{}, storeErr("scan vote count", err)
		}
		switch models.VoteChoice(choice) {
		case models.VoteKeep:
			tally.Keep = n
		case models.VoteRemove:
			tally.Remove = n
		}
	}
	if err := rows.Err(); err != nil {
		return models.Tally{}, storeErr("count votes", err)
	}
	return tally, nil
}

func (s *VoteService) DeleteAllForReport(ctx context.Context, reportID int64) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	_, err := q(ctx, s.db).ExecContext(ctx, `DELETE FROM votes WHERE report_id = ?`, reportID)
	if err != nil {
		return storeErr("delete votes", err)
	}
	return nil
}
