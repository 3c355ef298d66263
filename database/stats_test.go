package database

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
)

func TestCollectStatistics(t *testing.T) {
	it(func() {
		mock.ExpectQuery("SELECT \\(SELECT COUNT\\(\\*\\) FROM reports\\)").
			WithArgs(sqlmock.AnyArg()).
			WillReturnRows(sqlmock.NewRows([]string{"total", "active", "users", "votes"}).
				AddRow(120, 30, 40, 85))
		mock.ExpectQuery("SELECT HOUR\\(created_at\\) AS hr FROM reports GROUP BY hr ORDER BY COUNT").
			WillReturnRows(sqlmock.NewRows([]string{"hr"}).AddRow(8))

		mock.ExpectQuery("SELECT it.type_name, COUNT\\(\\*\\) AS cnt").
			WillReturnRows(sqlmock.NewRows([]string{"type_name", "cnt"}).
				AddRow("POLICE", 70).AddRow("POTHOLE", 50))
		mock.ExpectQuery("SELECT DATE_FORMAT\\(created_at, '%Y-%m-%d'\\) AS day, COUNT\\(\\*\\)").
			WillReturnRows(sqlmock.NewRows([]string{"day", "count"}).
				AddRow("2026-08-30", 4))
		mock.ExpectQuery("SELECT DATE_FORMAT\\(r.created_at, '%Y-%m-%d'\\) AS day, it.type_name, COUNT\\(\\*\\)").
			WillReturnRows(sqlmock.NewRows([]string{"day", "type_name", "count"}).
				AddRow("2026-08-29", "POLICE", 2).
				AddRow("2026-08-30", "POLICE", 3).
				AddRow("2026-08-30", "ACCIDENT", 1))
		mock.ExpectQuery("SELECT HOUR\\(created_at\\) AS hr, COUNT\\(\\*\\)").
			WillReturnRows(sqlmock.NewRows([]string{"hr", "count"}).
				AddRow(8, 15).AddRow(17, 22))
		mock.ExpectQuery("SELECT DATE_FORMAT\\(created_at, '%Y-%m'\\) AS mon, COUNT\\(\\*\\)").
			WillReturnRows(sqlmock.NewRows([]string{"mon", "count"}).
				AddRow("2026-08", 120))
		mock.ExpectQuery("SELECT u.username, COUNT\\(r.id\\) AS cnt, u.reputation_score").
			WillReturnRows(sqlmock.NewRows([]string{"username", "cnt", "reputation_score"}).
				AddRow("alice", 33, 45).AddRow("bob", 20, 19))

		svc := NewStatsService(db)
		stats, err := svc.Collect(context.Background(), time.Now())
		if err != nil {
			t.Fatalf("Collect: %v", err)
		}

		s := stats.Summary
		if s.TotalReports != 120 || s.ActiveReports != 30 || s.TotalUsers != 40 || s.TotalVotes != 85 {
			t.Errorf("summary = %+v", s)
		}
		if s.PeakHour != 8 {
			t.Errorf("peak hour = %d, want 8", s.PeakHour)
		}
		if s.AvgReportsPerUser != 3.0 {
			t.Errorf("avg reports per user = %v, want 3.0", s.AvgReportsPerUser)
		}
		if len(stats.ReportsByType) != 2 || stats.ReportsByType[0].Type != "POLICE" {
			t.Errorf("reports by type = %+v", stats.ReportsByType)
		}
		if len(stats.ReportsPerDay) != 1 || stats.ReportsPerDay[0].Date != "2026-08-30" {
			t.Errorf("reports per day = %+v", stats.ReportsPerDay)
		}

		// Daily-by-type rows pivot into one object per date with the
		// type counts as keys, in date order.
		daily := stats.ReportsByTypeDaily
		if len(daily) != 2 {
			t.Fatalf("reports by type daily = %+v", daily)
		}
		if daily[0]["date"] != "2026-08-29" || daily[0]["POLICE"] != 2 {
			t.Errorf("first day = %+v", daily[0])
		}
		if daily[1]["date"] != "2026-08-30" || daily[1]["POLICE"] != 3 || daily[1]["ACCIDENT"] != 1 {
			t.Errorf("second day = %+v", daily[1])
		}

		if len(stats.TopReporters) != 2 || stats.TopReporters[0].Username != "alice" {
			t.Errorf("top reporters = %+v", stats.TopReporters)
		}

		// The chart frontend reads date, pivoted type keys and
		// reputation; pin the wire names.
		payload, err := json.Marshal(stats)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		for _, key := range []string{`"date":"2026-08-30"`, `"reputation":45`} {
			if !strings.Contains(string(payload), key) {
				t.Errorf("payload missing %s", key)
			}
		}
		for _, key := range []string{`"day"`, `"reputation_score"`} {
			if strings.Contains(string(payload), key) {
				t.Errorf("payload carries stale key %s", key)
			}
		}
	})
}

func TestCollectStatisticsEmptyDatabase(t *testing.T) {
	it(func() {
		mock.ExpectQuery("SELECT \\(SELECT COUNT\\(\\*\\) FROM reports\\)").
			WithArgs(sqlmock.AnyArg()).
			WillReturnRows(sqlmock.NewRows([]string{"total", "active", "users", "votes"}).
				AddRow(0, 0, 0, 0))
		mock.ExpectQuery("SELECT HOUR\\(created_at\\) AS hr FROM reports GROUP BY hr ORDER BY COUNT").
			WillReturnRows(sqlmock.NewRows([]string{"hr"}))
		for i := 0; i < 6; i++ {
			mock.ExpectQuery("SELECT").WillReturnRows(sqlmock.NewRows([]string{"a", "b"}))
		}

		svc := NewStatsService(db)
		stats, err := svc.Collect(context.Background(), time.Now())
		if err != nil {
			t.Fatalf("Collect: %v", err)
		}
		if stats.Summary.AvgReportsPerUser != 0 {
			t.Errorf("avg = %v, want 0 with no users", stats.Summary.AvgReportsPerUser)
		}
		if stats.ReportsByType == nil || stats.TopReporters == nil {
			t.Error("slices must be non-nil for JSON encoding")
		}
	})
}
