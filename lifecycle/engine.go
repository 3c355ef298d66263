// Package lifecycle owns the report lifecycle: creation with TTL,
// the crowd-voting protocol that can remove or renew a report early,
// and time-based expiry. Everything else (identity, reputation,
// storage) is an injected collaborator.
package lifecycle

import (
	"context"
	"fmt"
	"math"
	"time"

	"roadalert/models"

	"github.com/apex/log"
)

// Config carries the externally tunable lifecycle constants.
type Config struct {
	// TTL is how long a fresh or renewed report stays visible.
	TTL time.Duration
	// Threshold is the number of same-choice votes that triggers a
	// removal or renewal. Must be at least 1.
	Threshold int
}

// Engine drives report state transitions against the injected stores.
type Engine struct {
	reports    ReportStore
	votes      VoteLedger
	reputation ReputationSink
	tx         Transactor

	ttl       time.Duration
	threshold int

	locks *keyedMutex
	now   func() time.Time
}

// New builds an Engine. tx may be nil when the store needs no
// transaction scope (in-memory implementations).
func New(cfg Config, reports ReportStore, votes VoteLedger, reputation ReputationSink, tx Transactor) (*Engine, error) {
	if cfg.TTL <= 0 {
		return nil, fmt.Errorf("lifecycle: TTL must be positive, got %v", cfg.TTL)
	}
	if cfg.Threshold < 1 {
		return nil, fmt.Errorf("lifecycle: vote threshold must be at least 1, got %d", cfg.Threshold)
	}
	if tx == nil {
		tx = nopTransactor{}
	}
	return &Engine{
		reports:    reports,
		votes:      votes,
		reputation: reputation,
		tx:         tx,
		ttl:        cfg.TTL,
		threshold:  cfg.Threshold,
		locks:      newKeyedMutex(),
		now:        time.Now,
	}, nil
}

// CreateReport validates the input, inserts an active report expiring
// at now+TTL and returns the persisted entity with its resolved type
// and author names.
func (e *Engine) CreateReport(ctx context.Context, authorID int64, kind string, lat, lng float64, description string) (*models.Report, error) {
	if err := validateCoords(lat, lng); err != nil {
		return nil, err
	}

	it, err := e.reports.KindByName(ctx, kind)
	if err != nil {
		return nil, err
	}
	if it == nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidKind, kind)
	}

	now := e.now()
	expires := now.Add(e.ttl)
	r := &models.Report{
		AuthorID:    authorID,
		TypeID:      it.ID,
		TypeName:    it.TypeName,
		Latitude:    lat,
		Longitude:   lng,
		Description: description,
		Status:      models.ReportStatusActive,
		CreatedAt:   now,
		ExpiresAt:   &expires,
	}
	if err := e.reports.Create(ctx, r); err != nil {
		return nil, err
	}
	return e.reports.Get(ctx, r.ID)
}

// ListActive returns the visible reports, newest first, with tallies
// and the caller's own vote. Pure read path.
func (e *Engine) ListActive(ctx context.Context, callerID int64) ([]models.ActiveReport, error) {
	return e.reports.ListActive(ctx, callerID, e.now())
}

// CastVote applies one user's vote on a report and evaluates the
// remove/renew thresholds. The whole sequence runs under the report's
// mutex and inside one storage transaction, so two simultaneous
// voters can never both observe threshold-1 and double-trigger a
// transition.
func (e *Engine) CastVote(ctx context.Context, reportID, voterID int64, choice models.VoteChoice) (*models.VoteResult, error) {
	if choice != models.VoteKeep && choice != models.VoteRemove {
		return nil, &ValidationError{Field: "choice", Reason: fmt.Sprintf("must be %q or %q", models.VoteKeep, models.VoteRemove)}
	}

	unlock := e.locks.Lock(reportID)
	defer unlock()

	var (
		res       *models.VoteResult
		firstVote bool
	)
	err := e.tx.InTx(ctx, func(ctx context.Context) error {
		now := e.now()

		r, err := e.reports.Get(ctx, reportID)
		if err != nil {
			return err
		}
		if !visible(r, now) {
			return ErrNotFound
		}

		prior, err := e.votes.Find(ctx, reportID, voterID)
		if err != nil {
			return err
		}

		if prior != nil && prior.Choice == choice {
			// Idempotent repeat: report the current state, touch
			// nothing, and in particular do not re-run the threshold
			// check.
			tally, err := e.votes.CountByChoice(ctx, reportID)
			if err != nil {
				return err
			}
			res = &models.VoteResult{
				Action:       models.VoteActionVoted,
				AlreadyVoted: true,
				Votes:        tally,
				ExpiresAt:    r.ExpiresAt,
				Message:      fmt.Sprintf("you already voted %s on this report", choice),
			}
			return nil
		}

		created, err := e.votes.Upsert(ctx, reportID, voterID, choice)
		if err != nil {
			return err
		}
		firstVote = created

		tally, err := e.votes.CountByChoice(ctx, reportID)
		if err != nil {
			return err
		}

		// Removal is evaluated first: a report that hits both
		// thresholds in the same call is treated as untrustworthy.
		switch {
		case tally.Remove >= e.threshold:
			if err := e.reports.Delete(ctx, reportID); err != nil {
				return err
			}
			res = &models.VoteResult{
				Action:  models.VoteActionRemoved,
				Votes:   tally,
				Message: "report removed by community vote",
			}
		case tally.Keep >= e.threshold:
			expires := now.Add(e.ttl)
			if err := e.reports.Renew(ctx, reportID, expires); err != nil {
				return err
			}
			if err := e.votes.DeleteAllForReport(ctx, reportID); err != nil {
				return err
			}
			res = &models.VoteResult{
				Action:    models.VoteActionRenewed,
				Votes:     models.Tally{},
				ExpiresAt: &expires,
				Message:   "report confirmed and renewed by community vote",
			}
		default:
			res = &models.VoteResult{
				Action:    models.VoteActionVoted,
				Votes:     tally,
				ExpiresAt: r.ExpiresAt,
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	// Reputation is a secondary signal: credited exactly once per
	// (report, voter) pair, after the vote committed, and a sink
	// failure never rolls the vote back.
	if firstVote {
		if err := e.reputation.IncrementReputation(ctx, voterID, 1); err != nil {
			log.Errorf("reputation credit for user %d on report %d failed: %v", voterID, reportID, err)
		}
	}
	return res, nil
}

// DeleteReport removes the report if callerID is its author. Votes
// cascade with the report.
func (e *Engine) DeleteReport(ctx context.Context, reportID, callerID int64) error {
	// Lock before reading: a vote-triggered removal racing this call
	// must surface as not-found, never as a stale-read conflict.
	unlock := e.locks.Lock(reportID)
	defer unlock()

	r, err := e.reports.Get(ctx, reportID)
	if err != nil {
		return err
	}
	if !visible(r, e.now()) {
		return ErrNotFound
	}
	if r.AuthorID != callerID {
		return fmt.Errorf("%w: only the author may delete a report", ErrForbidden)
	}
	return e.reports.Delete(ctx, reportID)
}

// SweepExpired deletes active reports past their expiry. It is an
// optimization to bound storage growth: every read and vote path
// already treats expired reports as gone.
func (e *Engine) SweepExpired(ctx context.Context) (int64, error) {
	n, err := e.reports.DeleteExpired(ctx, e.now())
	if err != nil {
		return 0, err
	}
	if n > 0 {
		log.Infof("expiry sweep deleted %d report(s)", n)
	}
	return n, nil
}

// visible reports whether r may be served or voted on at time now.
func visible(r *models.Report, now time.Time) bool {
	if r.Status != models.ReportStatusActive {
		return false
	}
	return r.ExpiresAt == nil || now.Before(*r.ExpiresAt) || now.Equal(*r.ExpiresAt)
}

func validateCoords(lat, lng float64) error {
	if math.IsNaN(lat) || math.IsInf(lat, 0) || lat < -90 || lat > 90 {
		return &ValidationError{Field: "latitude", Reason: "must be a finite number between -90 and 90"}
	}
	if math.IsNaN(lng) || math.IsInf(lng, 0) || lng < -180 || lng > 180 {
		return &ValidationError{Field: "longitude", Reason: "must be a finite number between -180 and 180"}
	}
	return nil
}
