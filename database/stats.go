package database

import (
	"context"
	"database/sql"
	"math"
	"time"

	"roadalert/models"

	"github.com/apex/log"
)

// StatsService serves the read-only aggregation queries behind
// GET /api/statistics. Pure reads, no lifecycle involvement.
type StatsService struct {
	db *sql.DB
}

func NewStatsService(db *sql.DB) *StatsService {
	return &StatsService{db: db}
}

func (s *StatsService) Collect(ctx context.Context, now time.Time) (*models.Statistics, error) {
	stats := &models.Statistics{
		ReportsByType:      []models.TypeCount{},
		ReportsPerDay:      []models.DayCount{},
		ReportsByTypeDaily: []models.TypeDayPivot{},
		ReportsByHour:      []models.HourCount{},
		ReportsPerMonth:    []models.MonthCount{},
		TopReporters:       []models.TopReporter{},
	}

	if err := s.summary(ctx, now, &stats.Summary); err != nil {
		return nil, err
	}

	if err := s.collectRows(ctx, `SELECT it.type_name, COUNT(*) AS cnt
		FROM reports AS r JOIN incident_types AS it ON it.id = r.type_id
		GROUP BY it.type_name ORDER BY cnt DESC`,
		func(rows *sql.Rows) error {
			var tc models.TypeCount
			if err := rows.Scan(&tc.Type, &tc.Count); err != nil {
				return err
			}
			stats.ReportsByType = append(stats.ReportsByType, tc)
			return nil
		}); err != nil {
		return nil, err
	}

	if err := s.collectRows(ctx, `SELECT DATE_FORMAT(created_at, '%Y-%m-%d') AS day, COUNT(*)
		FROM reports WHERE created_at >= DATE_SUB(CURDATE(), INTERVAL 30 DAY)
		GROUP BY day ORDER BY day`,
		func(rows *sql.Rows) error {
			var dc models.DayCount
			if err := rows.Scan(&dc.Date, &dc.Count); err != nil {
				return err
			}
			stats.ReportsPerDay = append(stats.ReportsPerDay, dc)
			return nil
		}); err != nil {
		return nil, err
	}

	// The daily-by-type chart wants one object per date with the type
	// counts pivoted into keys, not flat (date, type, count) rows.
	dayIndex := map[string]int{}
	if err := s.collectRows(ctx, `SELECT DATE_FORMAT(r.created_at, '%Y-%m-%d') AS day, it.type_name, COUNT(*)
		FROM reports AS r JOIN incident_types AS it ON it.id = r.type_id
		WHERE r.created_at >= DATE_SUB(CURDATE(), INTERVAL 7 DAY)
		GROUP BY day, it.type_name ORDER BY day`,
		func(rows *sql.Rows) error {
			var (
				day, typeName string
				count         int
			)
			if err := rows.Scan(&day, &typeName, &count); err != nil {
				return err
			}
			i, ok := dayIndex[day]
			if !ok {
				i = len(stats.ReportsByTypeDaily)
				dayIndex[day] = i
				stats.ReportsByTypeDaily = append(stats.ReportsByTypeDaily, models.TypeDayPivot{"date": day})
			}
			stats.ReportsByTypeDaily[i][typeName] = count
			return nil
		}); err != nil {
		return nil, err
	}

	if err := s.collectRows(ctx, `SELECT HOUR(created_at) AS hr, COUNT(*)
		FROM reports GROUP BY hr ORDER BY hr`,
		func(rows *sql.Rows) error {
			var hc models.HourCount
			if err := rows.Scan(&hc.Hour, &hc.Count); err != nil {
				return err
			}
			stats.ReportsByHour = append(stats.ReportsByHour, hc)
			return nil
		}); err != nil {
		return nil, err
	}

	if err := s.collectRows(ctx, `SELECT DATE_FORMAT(created_at, '%Y-%m') AS mon, COUNT(*)
		FROM reports WHERE created_at >= DATE_SUB(CURDATE(), INTERVAL 12 MONTH)
		GROUP BY mon ORDER BY mon`,
		func(rows *sql.Rows) error {
			var mc models.MonthCount
			if err := rows.Scan(&mc.Month, &mc.Count); err != nil {
				return err
			}
			stats.ReportsPerMonth = append(stats.ReportsPerMonth, mc)
			return nil
		}); err != nil {
		return nil, err
	}

	if err := s.collectRows(ctx, `SELECT u.username, COUNT(r.id) AS cnt, u.reputation_score
		FROM users AS u JOIN reports AS r ON r.user_id = u.id
		GROUP BY u.id ORDER BY cnt DESC LIMIT 10`,
		func(rows *sql.Rows) error {
			var tr models.TopReporter
			if err := rows.Scan(&tr.Username, &tr.Reports, &tr.ReputationScore); err != nil {
				return err
			}
			stats.TopReporters = append(stats.TopReporters, tr)
			return nil
		}); err != nil {
		return nil, err
	}

	return stats, nil
}

func (s *StatsService) summary(ctx context.Context, now time.Time, out *models.StatsSummary) error {
	err := s.db.QueryRowContext(ctx, `SELECT
		(SELECT COUNT(*) FROM reports),
		(SELECT COUNT(*) FROM reports WHERE status = 'active' AND (expires_at IS NULL OR expires_at >= ?)),
		(SELECT COUNT(*) FROM users),
		(SELECT COUNT(*) FROM votes)`, now).
		Scan(&out.TotalReports, &out.ActiveReports, &out.TotalUsers, &out.TotalVotes)
	if err != nil {
		log.Errorf("Could not compute statistics summary: %v", err)
		return storeErr("statistics summary", err)
	}

	err = s.db.QueryRowContext(ctx, `SELECT HOUR(created_at) AS hr
		FROM reports GROUP BY hr ORDER BY COUNT(*) DESC, hr LIMIT 1`).Scan(&out.PeakHour)
	if err != nil && err != sql.ErrNoRows {
		return storeErr("statistics peak hour", err)
	}

	if out.TotalUsers > 0 {
		avg := float64(out.TotalReports) / float64(out.TotalUsers)
		out.AvgReportsPerUser = math.Round(avg*10) / 10
	}
	return nil
}

func (s *StatsService) collectRows(ctx context.Context, query string, scan func(*sql.Rows) error) error {
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		log.Errorf("Statistics query failed: %v", err)
		return storeErr("statistics query", err)
	}
	defer rows.Close()

	for rows.Next() {
		if err := scan(rows); err != nil {
			return storeErr("scan statistics row", err)
		}
	}
	if err := rows.Err(); err != nil {
		return storeErr("statistics query", err)
	}
	return nil
}
