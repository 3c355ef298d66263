package lifecycle

import (
	"context"
	"time"

	"roadalert/models"
)

// ReportStore is the durable storage the engine operates on. The
// MySQL implementation lives in the database package; tests supply
// in-memory fakes.
type ReportStore interface {
	// KindByName resolves an incident type from the lookup table.
	// Returns (nil, nil) when the name is not recognized.
	KindByName(ctx context.Context, name string) (*models.IncidentType, error)

	// Create inserts the report and fills in its assigned ID.
	Create(ctx context.Context, r *models.Report) error

	// Get loads one report with its resolved type and author names.
	// Returns ErrNotFound when absent.
	Get(ctx context.Context, id int64) (*models.Report, error)

	// ListActive returns reports with status=active and expiry in the
	// future (or unset), newest first, each carrying its tally and the
	// caller's live vote if any.
	ListActive(ctx context.Context, callerID int64, now time.Time) ([]models.ActiveReport, error)

	// Renew moves the report's expiry forward.
	Renew(ctx context.Context, id int64, expiresAt time.Time) error

	// Delete removes the report; votes cascade.
	Delete(ctx context.Context, id int64) error

	// DeleteExpired removes all active reports whose expiry has passed
	// and reports how many were swept.
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// VoteLedger enforces one live vote per (report, user) pair.
type VoteLedger interface {
	// Find returns the caller's live vote on the report, or (nil, nil)
	// when none exists.
	Find(ctx context.Context, reportID, voterID int64) (*models.Vote, error)

	// Upsert inserts the vote or overwrites an existing one in place.
	// created is true only for a first vote on this (report, user)
	// pair; an overwrite, no-op or otherwise, yields false.
	Upsert(ctx context.Context, reportID, voterID int64, choice models.VoteChoice) (created bool, err error)

	// CountByChoice tallies live vote rows per choice.
	CountByChoice(ctx context.Context, reportID int64) (models.Tally, error)

	// DeleteAllForReport clears the tally, used on renewal.
	DeleteAllForReport(ctx context.Context, reportID int64) error
}

// ReputationSink credits users for participation. Failures are
// logged and never fail the enclosing vote.
type ReputationSink interface {
	IncrementReputation(ctx context.Context, userID int64, delta int) error
}

// Transactor scopes a function to one storage transaction so a vote,
// its tally check and the resulting transition apply all-or-nothing.
type Transactor interface {
	InTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// nopTransactor runs the function directly. Used when the store has
// no transaction support (tests, single-statement deployments).
type nopTransactor struct{}

func (nopTransactor) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}
