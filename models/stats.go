package models

// StatsSummary holds the headline numbers of the statistics page.
type StatsSummary struct {
	TotalReports      int     `json:"total_reports"`
	ActiveReports     int     `json:"active_reports"`
	TotalUsers        int     `json:"total_users"`
	TotalVotes        int     `json:"total_votes"`
	PeakHour          int     `json:"peak_hour"`
	AvgReportsPerUser float64 `json:"avg_reports_per_user"`
}

type TypeCount struct {
	Type  string `json:"type"`
	Count int    `json:"count"`
}

type DayCount struct {
	Date  string `json:"date"`
	Count int    `json:"count"`
}

// TypeDayPivot is one calendar day of the stacked daily chart: a
// "date" key plus one count per incident type name.
type TypeDayPivot map[string]any

type HourCount struct {
	Hour  int `json:"hour"`
	Count int `json:"count"`
}

type MonthCount struct {
	Month string `json:"month"`
	Count int    `json:"count"`
}

type TopReporter struct {
	Username        string `json:"username"`
	Reports         int    `json:"reports"`
	ReputationScore int    `json:"reputation"`
}

// Statistics is the full aggregation payload for GET /api/statistics.
type Statistics struct {
	Summary            StatsSummary   `json:"summary"`
	ReportsByType      []TypeCount    `json:"reports_by_type"`
	ReportsPerDay      []DayCount     `json:"reports_per_day"`
	ReportsByTypeDaily []TypeDayPivot `json:"reports_by_type_daily"`
	ReportsByHour      []HourCount    `json:"reports_by_hour"`
	ReportsPerMonth    []MonthCount   `json:"reports_per_month"`
	TopReporters       []TopReporter  `json:"top_reporters"`
}

type StatisticsResponse struct {
	Success    bool        `json:"success"`
	Statistics *Statistics `json:"statistics"`
}
