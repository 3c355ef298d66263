package lifecycle

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"roadalert/models"
)

// memStore is an in-memory ReportStore + VoteLedger for engine tests.
// All methods are guarded by one mutex; the engine's own per-report
// lock is what the concurrency tests exercise.
type memStore struct {
	mu      sync.Mutex
	nextID  int64
	reports map[int64]*models.Report
	votes   map[int64]map[int64]models.Vote
	kinds   map[string]models.IncidentType

	deleteCalls int
}

func newMemStore() *memStore {
	return &memStore{
		reports: map[int64]*models.Report{},
		votes:   map[int64]map[int64]models.Vote{},
		kinds: map[string]models.IncidentType{
			"POLICE":   {ID: 1, TypeName: "POLICE"},
			"ACCIDENT": {ID: 2, TypeName: "ACCIDENT"},
		},
	}
}

func (m *memStore) KindByName(_ context.Context, name string) (*models.IncidentType, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if it, ok := m.kinds[name]; ok {
		return &it, nil
	}
	return nil, nil
}

func (m *memStore) Create(_ context.Context, r *models.Report) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	r.ID = m.nextID
	cp := *r
	m.reports[r.ID] = &cp
	return nil
}

func (m *memStore) Get(_ context.Context, id int64) (*models.Report, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.reports[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (m *memStore) ListActive(_ context.Context, callerID int64, now time.Time) ([]models.ActiveReport, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []models.ActiveReport{}
	for _, r := range m.reports {
		if r.Status != models.ReportStatusActive {
			continue
		}
		if r.ExpiresAt != nil && now.After(*r.ExpiresAt) {
			continue
		}
		ar := models.ActiveReport{Report: *r, Votes: m.tallyLocked(r.ID)}
		if v, ok := m.votes[r.ID][callerID]; ok {
			c := v.Choice
			ar.CallerVote = &c
		}
		out = append(out, ar)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (m *memStore) Renew(_ context.Context, id int64, expiresAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.reports[id]
	if !ok {
		return ErrConflict
	}
	t := expiresAt
	r.ExpiresAt = &t
	return nil
}

func (m *memStore) Delete(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.reports[id]; !ok {
		return ErrConflict
	}
	m.deleteCalls++
	delete(m.reports, id)
	delete(m.votes, id)
	return nil
}

func (m *memStore) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, r := range m.reports {
		if r.Status == models.ReportStatusActive && r.ExpiresAt != nil && now.After(*r.ExpiresAt) {
			delete(m.reports, id)
			delete(m.votes, id)
			n++
		}
	}
	return n, nil
}

func (m *memStore) Find(_ context.Context, reportID, voterID int64) (*models.Vote, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if v, ok := m.votes[reportID][voterID]; ok {
		cp := v
		return &cp, nil
	}
	return nil, nil
}

func (m *memStore) Upsert(_ context.Context, reportID, voterID int64, choice models.VoteChoice) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.votes[reportID] == nil {
		m.votes[reportID] = map[int64]models.Vote{}
	}
	_, existed := m.votes[reportID][voterID]
	m.votes[reportID][voterID] = models.Vote{
		ReportID: reportID, UserID: voterID, Choice: choice, CastAt: time.Now(),
	}
	return !existed, nil
}

func (m *memStore) CountByChoice(_ context.Context, reportID int64) (models.Tally, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tallyLocked(reportID), nil
}

func (m *memStore) DeleteAllForReport(_ context.Context, reportID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.votes, reportID)
	return nil
}

func (m *memStore) tallyLocked(reportID int64) models.Tally {
	var t models.Tally
	for _, v := range m.votes[reportID] {
		switch v.Choice {
		case models.VoteKeep:
			t.Keep++
		case models.VoteRemove:
			t.Remove++
		}
	}
	return t
}

// seedVote injects a vote row directly, bypassing the engine.
func (m *memStore) seedVote(reportID, voterID int64, choice models.VoteChoice) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.votes[reportID] == nil {
		m.votes[reportID] = map[int64]models.Vote{}
	}
	m.votes[reportID][voterID] = models.Vote{ReportID: reportID, UserID: voterID, Choice: choice}
}

type memSink struct {
	mu      sync.Mutex
	credits map[int64]int
	fail    bool
}

func newMemSink() *memSink { return &memSink{credits: map[int64]int{}} }

func (s *memSink) IncrementReputation(_ context.Context, userID int64, delta int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return errors.New("sink down")
	}
	s.credits[userID] += delta
	return nil
}

func (s *memSink) total(userID int64) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.credits[userID]
}

func newTestEngine(t *testing.T, threshold int) (*Engine, *memStore, *memSink) {
	t.Helper()
	store := newMemStore()
	sink := newMemSink()
	e, err := New(Config{TTL: 4 * time.Hour, Threshold: threshold}, store, store, sink, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return e, store, sink
}

func mustCreate(t *testing.T, e *Engine, authorID int64) *models.Report {
	t.Helper()
	r, err := e.CreateReport(context.Background(), authorID, "POLICE", 44.4268, 26.1025, "speed trap")
	if err != nil {
		t.Fatalf("CreateReport: %v", err)
	}
	return r
}

func TestNewValidatesConfig(t *testing.T) {
	store := newMemStore()
	if _, err := New(Config{TTL: 0, Threshold: 2}, store, store, newMemSink(), nil); err == nil {
		t.Error("expected error for zero TTL")
	}
	if _, err := New(Config{TTL: time.Hour, Threshold: 0}, store, store, newMemSink(), nil); err == nil {
		t.Error("expected error for zero threshold")
	}
}

func TestCreateReport(t *testing.T) {
	e, _, _ := newTestEngine(t, 2)
	start := e.now()

	r := mustCreate(t, e, 7)
	if r.ID == 0 {
		t.Error("expected assigned ID")
	}
	if r.Status != models.ReportStatusActive {
		t.Errorf("status = %q, want active", r.Status)
	}
	if r.TypeName != "POLICE" {
		t.Errorf("type = %q, want POLICE", r.TypeName)
	}
	if r.ExpiresAt == nil {
		t.Fatal("expected expiry to be set")
	}
	ttl := r.ExpiresAt.Sub(start)
	if ttl < 4*time.Hour-time.Second || ttl > 4*time.Hour+time.Second {
		t.Errorf("expiry %v from creation, want ~4h", ttl)
	}
}

func TestCreateReportRejectsBadInput(t *testing.T) {
	e, _, _ := newTestEngine(t, 2)
	ctx := context.Background()

	if _, err := e.CreateReport(ctx, 7, "UFO_SIGHTING", 44.0, 26.0, ""); !errors.Is(err, ErrInvalidKind) {
		t.Errorf("unknown kind: got %v, want ErrInvalidKind", err)
	}

	var verr *ValidationError
	if _, err := e.CreateReport(ctx, 7, "POLICE", 91.0, 26.0, ""); !errors.As(err, &verr) {
		t.Errorf("out-of-range latitude: got %v, want ValidationError", err)
	}
	if _, err := e.CreateReport(ctx, 7, "POLICE", 44.0, -200.0, ""); !errors.As(err, &verr) {
		t.Errorf("out-of-range longitude: got %v, want ValidationError", err)
	}
}

func TestListActiveOrderAndExpiry(t *testing.T) {
	e, store, _ := newTestEngine(t, 2)
	ctx := context.Background()

	older := mustCreate(t, e, 1)
	// Creation timestamps come from the engine clock; nudge it so the
	// second report is strictly newer.
	e.now = func() time.Time { return time.Now().Add(time.Minute) }
	newer := mustCreate(t, e, 1)
	expired := mustCreate(t, e, 1)
	past := time.Now().Add(-time.Minute)
	store.reports[expired.ID].ExpiresAt = &past
	e.now = time.Now

	list, err := e.ListActive(ctx, 1)
	if err != nil {
		t.Fatalf("ListActive: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("got %d reports, want 2", len(list))
	}
	if list[0].ID != newer.ID || list[1].ID != older.ID {
		t.Errorf("order = [%d, %d], want [%d, %d]", list[0].ID, list[1].ID, newer.ID, older.ID)
	}
}

func TestCastVoteRecordsAndCredits(t *testing.T) {
	e, _, sink := newTestEngine(t, 3)
	ctx := context.Background()
	r := mustCreate(t, e, 1)

	res, err := e.CastVote(ctx, r.ID, 2, models.VoteRemove)
	if err != nil {
		t.Fatalf("CastVote: %v", err)
	}
	if res.Action != models.VoteActionVoted {
		t.Errorf("action = %q, want voted", res.Action)
	}
	if res.Votes.Remove != 1 || res.Votes.Keep != 0 {
		t.Errorf("tally = %+v, want {0 1}", res.Votes)
	}
	if got := sink.total(2); got != 1 {
		t.Errorf("reputation credits = %d, want 1", got)
	}
}

func TestCastVoteIdempotentRepeat(t *testing.T) {
	e, _, sink := newTestEngine(t, 3)
	ctx := context.Background()
	r := mustCreate(t, e, 1)

	first, err := e.CastVote(ctx, r.ID, 2, models.VoteKeep)
	if err != nil {
		t.Fatalf("first vote: %v", err)
	}
	second, err := e.CastVote(ctx, r.ID, 2, models.VoteKeep)
	if err != nil {
		t.Fatalf("second vote: %v", err)
	}
	third, err := e.CastVote(ctx, r.ID, 2, models.VoteKeep)
	if err != nil {
		t.Fatalf("third vote: %v", err)
	}

	if first.AlreadyVoted {
		t.Error("first vote flagged alreadyVoted")
	}
	for i, res := range []*models.VoteResult{second, third} {
		if !res.AlreadyVoted {
			t.Errorf("repeat %d not flagged alreadyVoted", i+2)
		}
		if res.Votes != first.Votes {
			t.Errorf("repeat %d changed tally: %+v vs %+v", i+2, res.Votes, first.Votes)
		}
	}
	if got := sink.total(2); got != 1 {
		t.Errorf("reputation credits = %d, want exactly 1", got)
	}
}

func TestCastVoteChoiceChange(t *testing.T) {
	e, _, sink := newTestEngine(t, 3)
	ctx := context.Background()
	r := mustCreate(t, e, 1)

	if _, err := e.CastVote(ctx, r.ID, 2, models.VoteKeep); err != nil {
		t.Fatalf("keep vote: %v", err)
	}
	res, err := e.CastVote(ctx, r.ID, 2, models.VoteRemove)
	if err != nil {
		t.Fatalf("remove vote: %v", err)
	}

	if res.AlreadyVoted {
		t.Error("choice change flagged alreadyVoted")
	}
	if res.Votes.Keep != 0 || res.Votes.Remove != 1 {
		t.Errorf("tally = %+v, want vote migrated to {0 1}", res.Votes)
	}
	if got := sink.total(2); got != 1 {
		t.Errorf("reputation credits = %d, want 1 despite choice change", got)
	}
}

func TestRemoveThresholdDeletesReport(t *testing.T) {
	e, store, _ := newTestEngine(t, 2)
	ctx := context.Background()
	r := mustCreate(t, e, 1)

	if _, err := e.CastVote(ctx, r.ID, 2, models.VoteRemove); err != nil {
		t.Fatalf("vote 1: %v", err)
	}
	res, err := e.CastVote(ctx, r.ID, 3, models.VoteRemove)
	if err != nil {
		t.Fatalf("vote 2: %v", err)
	}
	if res.Action != models.VoteActionRemoved {
		t.Fatalf("action = %q, want removed", res.Action)
	}

	// No resurrection: gone from the listing and from votes, forever.
	list, err := e.ListActive(ctx, 1)
	if err != nil {
		t.Fatalf("ListActive: %v", err)
	}
	if len(list) != 0 {
		t.Errorf("removed report still listed: %+v", list)
	}
	if _, err := e.CastVote(ctx, r.ID, 4, models.VoteRemove); !errors.Is(err, ErrNotFound) {
		t.Errorf("vote on removed report: got %v, want ErrNotFound", err)
	}
	if store.deleteCalls != 1 {
		t.Errorf("delete calls = %d, want 1", store.deleteCalls)
	}
}

func TestKeepThresholdRenewsAndResets(t *testing.T) {
	e, store, _ := newTestEngine(t, 2)
	ctx := context.Background()
	r := mustCreate(t, e, 1)

	// Age the report so a renewal visibly advances the expiry.
	soon := time.Now().Add(time.Minute)
	store.reports[r.ID].ExpiresAt = &soon

	if _, err := e.CastVote(ctx, r.ID, 2, models.VoteKeep); err != nil {
		t.Fatalf("vote 1: %v", err)
	}
	res, err := e.CastVote(ctx, r.ID, 3, models.VoteKeep)
	if err != nil {
		t.Fatalf("vote 2: %v", err)
	}

	if res.Action != models.VoteActionRenewed {
		t.Fatalf("action = %q, want renewed", res.Action)
	}
	if res.Votes.Keep != 0 || res.Votes.Remove != 0 {
		t.Errorf("tally after renewal = %+v, want zeroes", res.Votes)
	}
	if res.ExpiresAt == nil || !res.ExpiresAt.After(soon) {
		t.Errorf("expiry = %v, want advanced past %v", res.ExpiresAt, soon)
	}

	// Prior voters may vote again: the ledger was reset.
	again, err := e.CastVote(ctx, r.ID, 2, models.VoteKeep)
	if err != nil {
		t.Fatalf("vote after renewal: %v", err)
	}
	if again.AlreadyVoted {
		t.Error("stale alreadyVoted after renewal reset")
	}
	if again.Votes.Keep != 1 {
		t.Errorf("tally = %+v, want fresh {1 0}", again.Votes)
	}
}

func TestTieBreakRemovalWins(t *testing.T) {
	e, store, _ := newTestEngine(t, 2)
	ctx := context.Background()
	r := mustCreate(t, e, 1)

	// Both thresholds met in the same triggering call: seed two keep
	// votes and one remove, then cast the second remove.
	store.seedVote(r.ID, 2, models.VoteKeep)
	store.seedVote(r.ID, 3, models.VoteKeep)
	store.seedVote(r.ID, 4, models.VoteRemove)

	res, err := e.CastVote(ctx, r.ID, 5, models.VoteRemove)
	if err != nil {
		t.Fatalf("CastVote: %v", err)
	}
	if res.Action != models.VoteActionRemoved {
		t.Errorf("action = %q, want removed to win the tie", res.Action)
	}
	if _, err := e.reports.Get(ctx, r.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("report still present after tie-break removal")
	}
}

func TestRepeatVoteNeverRetriggersThreshold(t *testing.T) {
	e, store, _ := newTestEngine(t, 2)
	ctx := context.Background()
	r := mustCreate(t, e, 1)

	// Tally already at threshold (e.g. a lost race left rows behind);
	// a repeated identical vote must not evaluate thresholds.
	store.seedVote(r.ID, 2, models.VoteRemove)
	store.seedVote(r.ID, 3, models.VoteRemove)

	res, err := e.CastVote(ctx, r.ID, 2, models.VoteRemove)
	if err != nil {
		t.Fatalf("CastVote: %v", err)
	}
	if !res.AlreadyVoted {
		t.Error("expected alreadyVoted")
	}
	if store.deleteCalls != 0 {
		t.Errorf("repeated vote triggered %d deletion(s)", store.deleteCalls)
	}
}

func TestExpiredReportIsGone(t *testing.T) {
	e, store, _ := newTestEngine(t, 2)
	ctx := context.Background()
	r := mustCreate(t, e, 1)

	past := time.Now().Add(-time.Minute)
	store.reports[r.ID].ExpiresAt = &past

	// No sweep has run; lazy expiry alone must hide the report.
	list, err := e.ListActive(ctx, 1)
	if err != nil {
		t.Fatalf("ListActive: %v", err)
	}
	if len(list) != 0 {
		t.Errorf("expired report still listed")
	}
	if _, err := e.CastVote(ctx, r.ID, 2, models.VoteRemove); !errors.Is(err, ErrNotFound) {
		t.Errorf("vote on expired report: got %v, want ErrNotFound", err)
	}
}

func TestReportVisibleAtExpiryInstant(t *testing.T) {
	e, store, _ := newTestEngine(t, 3)
	ctx := context.Background()
	r := mustCreate(t, e, 1)
	expiry := *store.reports[r.ID].ExpiresAt

	// Expiry begins strictly after the deadline: at the instant
	// itself the report is still listed and votable.
	e.now = func() time.Time { return expiry }

	list, err := e.ListActive(ctx, 2)
	if err != nil {
		t.Fatalf("ListActive: %v", err)
	}
	if len(list) != 1 {
		t.Errorf("report missing at its expiry instant")
	}
	if _, err := e.CastVote(ctx, r.ID, 2, models.VoteKeep); err != nil {
		t.Errorf("vote at expiry instant: %v", err)
	}

	e.now = func() time.Time { return expiry.Add(time.Nanosecond) }
	if _, err := e.CastVote(ctx, r.ID, 3, models.VoteKeep); !errors.Is(err, ErrNotFound) {
		t.Errorf("vote past expiry: got %v, want ErrNotFound", err)
	}
}

func TestSweepExpired(t *testing.T) {
	e, store, _ := newTestEngine(t, 2)
	ctx := context.Background()
	keep := mustCreate(t, e, 1)
	gone := mustCreate(t, e, 1)
	past := time.Now().Add(-time.Minute)
	store.reports[gone.ID].ExpiresAt = &past

	n, err := e.SweepExpired(ctx)
	if err != nil {
		t.Fatalf("SweepExpired: %v", err)
	}
	if n != 1 {
		t.Errorf("swept %d, want 1", n)
	}
	if _, err := e.reports.Get(ctx, keep.ID); err != nil {
		t.Errorf("live report swept: %v", err)
	}
}

func TestDeleteReportAuthorization(t *testing.T) {
	e, _, _ := newTestEngine(t, 2)
	ctx := context.Background()
	r := mustCreate(t, e, 1)

	if err := e.DeleteReport(ctx, r.ID, 99); !errors.Is(err, ErrForbidden) {
		t.Errorf("non-author delete: got %v, want ErrForbidden", err)
	}
	if err := e.DeleteReport(ctx, r.ID, 1); err != nil {
		t.Errorf("author delete: %v", err)
	}
	if err := e.DeleteReport(ctx, r.ID, 1); !errors.Is(err, ErrNotFound) {
		t.Errorf("double delete: got %v, want ErrNotFound", err)
	}
}

func TestDeleteReportAfterConcurrentRemoval(t *testing.T) {
	e, store, _ := newTestEngine(t, 2)
	ctx := context.Background()
	r := mustCreate(t, e, 1)

	// Hold the report's lock so the author delete queues up behind a
	// removal in flight, then pull the report out from under it. The
	// delete must observe the removal and answer not-found, not a
	// stale-read conflict.
	unlock := e.locks.Lock(r.ID)
	done := make(chan error, 1)
	go func() {
		done <- e.DeleteReport(ctx, r.ID, 1)
	}()

	time.Sleep(10 * time.Millisecond)
	if err := store.Delete(ctx, r.ID); err != nil {
		t.Fatalf("store delete: %v", err)
	}
	unlock()

	if err := <-done; !errors.Is(err, ErrNotFound) {
		t.Errorf("delete racing removal: got %v, want ErrNotFound", err)
	}
}

func TestReputationSinkFailureDoesNotFailVote(t *testing.T) {
	e, _, sink := newTestEngine(t, 3)
	ctx := context.Background()
	r := mustCreate(t, e, 1)

	sink.fail = true
	res, err := e.CastVote(ctx, r.ID, 2, models.VoteKeep)
	if err != nil {
		t.Fatalf("CastVote with failing sink: %v", err)
	}
	if res.Votes.Keep != 1 {
		t.Errorf("tally = %+v, want the vote recorded", res.Votes)
	}
}

func TestConcurrentRemovalSingleTransition(t *testing.T) {
	const threshold = 8
	e, store, sink := newTestEngine(t, threshold)
	ctx := context.Background()
	r := mustCreate(t, e, 1)

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		removed int
	)
	for i := 0; i < threshold; i++ {
		voterID := int64(100 + i)
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := e.CastVote(ctx, r.ID, voterID, models.VoteRemove)
			if err != nil {
				if !errors.Is(err, ErrNotFound) {
					t.Errorf("voter %d: %v", voterID, err)
				}
				return
			}
			if res.Action == models.VoteActionRemoved {
				mu.Lock()
				removed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if removed != 1 {
		t.Errorf("observed %d removal transitions, want exactly 1", removed)
	}
	if store.deleteCalls != 1 {
		t.Errorf("delete calls = %d, want exactly 1", store.deleteCalls)
	}
	// Each voter that got a vote in was credited once, none twice.
	for i := 0; i < threshold; i++ {
		if got := sink.total(int64(100 + i)); got > 1 {
			t.Errorf("voter %d credited %d times", 100+i, got)
		}
	}
}

func TestConcurrentVotesOnDifferentReports(t *testing.T) {
	e, _, _ := newTestEngine(t, 3)
	ctx := context.Background()

	reports := make([]*models.Report, 10)
	for i := range reports {
		reports[i] = mustCreate(t, e, 1)
	}

	var wg sync.WaitGroup
	for _, r := range reports {
		r := r
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := e.CastVote(ctx, r.ID, 42, models.VoteKeep); err != nil {
				t.Errorf("report %d: %v", r.ID, err)
			}
		}()
	}
	wg.Wait()

	list, err := e.ListActive(ctx, 42)
	if err != nil {
		t.Fatalf("ListActive: %v", err)
	}
	for _, ar := range list {
		if ar.Votes.Keep != 1 {
			t.Errorf("report %d tally = %+v, want {1 0}", ar.ID, ar.Votes)
		}
		if ar.CallerVote == nil || *ar.CallerVote != models.VoteKeep {
			t.Errorf("report %d caller vote not surfaced", ar.ID)
		}
	}
}
