package models

import "time"

// User represents a registered user.
type User struct {
	ID              int64     `json:"id"`
	Username        string    `json:"username"`
	Email           string    `json:"email"`
	ReputationScore int       `json:"reputation_score"`
	CreatedAt       time.Time `json:"created_at"`
}

// IncidentType is a row of the incident_types lookup table.
type IncidentType struct {
	ID       int    `json:"id"`
	TypeName string `json:"type_name"`
	IconURL  string `json:"icon_url,omitempty"`
}

// ReportStatus enumerates the report lifecycle states.
type ReportStatus string

const (
	ReportStatusActive  ReportStatus = "active"
	ReportStatusRemoved ReportStatus = "removed"
)

// VoteChoice enumerates the vote options on a report.
type VoteChoice string

const (
	VoteKeep   VoteChoice = "keep"
	VoteRemove VoteChoice = "remove"
)

// Report is a geolocated road condition report.
type Report struct {
	ID          int64        `json:"id"`
	AuthorID    int64        `json:"user_id"`
	AuthorName  string       `json:"username,omitempty"`
	TypeID      int          `json:"type_id"`
	TypeName    string       `json:"type_name"`
	Latitude    float64      `json:"latitude"`
	Longitude   float64      `json:"longitude"`
	Description string       `json:"description,omitempty"`
	Status      ReportStatus `json:"status"`
	CreatedAt   time.Time    `json:"created_at"`
	ExpiresAt   *time.Time   `json:"expires_at,omitempty"`
}

// Vote is one user's live vote on a report. At most one exists
// per (report, user) pair; changing choice overwrites in place.
type Vote struct {
	ReportID int64      `json:"report_id"`
	UserID   int64      `json:"user_id"`
	Choice   VoteChoice `json:"vote_type"`
	CastAt   time.Time  `json:"created_at"`
}

// Tally holds the live vote counts per choice for one report.
type Tally struct {
	Keep   int `json:"keep"`
	Remove int `json:"remove"`
}

// ActiveReport is a report as served to map clients: the report
// itself, its current tally and the caller's own vote if any.
type ActiveReport struct {
	Report
	Votes      Tally       `json:"votes"`
	CallerVote *VoteChoice `json:"user_vote,omitempty"`
}

// VoteAction enumerates the outcomes of casting a vote.
type VoteAction string

const (
	VoteActionVoted   VoteAction = "voted"
	VoteActionRemoved VoteAction = "removed"
	VoteActionRenewed VoteAction = "renewed"
)

// VoteResult describes what a CastVote call did.
type VoteResult struct {
	Action       VoteAction `json:"action"`
	AlreadyVoted bool       `json:"already_voted"`
	Votes        Tally      `json:"votes"`
	ExpiresAt    *time.Time `json:"expires_at,omitempty"`
	Message      string     `json:"message,omitempty"`
}

// ViewPort is the visible map rectangle.
type ViewPort struct {
	LatMin float64 `json:"latmin"`
	LonMin float64 `json:"lonmin"`
	LatMax float64 `json:"latmax"`
	LonMax float64 `json:"lonmax"`
}

// Point is a single coordinate pair.
type Point struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// MapMarker is one clustered marker on the map. ReportID is only
// meaningful when Count == 1.
type MapMarker struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Count     int64   `json:"count"`
	ReportID  int64   `json:"report_id,omitempty"`
	TypeName  string  `json:"type_name,omitempty"`
}

// ReportPoint is the minimal projection of an active report used
// for map aggregation.
type ReportPoint struct {
	ID        int64
	Latitude  float64
	Longitude float64
	TypeName  string
}
