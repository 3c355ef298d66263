package models

// RegisterRequest is the payload for /api/auth/register.
type RegisterRequest struct {
	Username string `json:"username" binding:"required,max=64"`
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=6"`
}

// LoginRequest is the payload for /api/auth/login.
type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// CreateReportRequest is the payload for POST /api/reports.
// Coordinates are pointers so a missing field is distinguishable
// from a legitimate zero value.
type CreateReportRequest struct {
	Type        string   `json:"type" binding:"required"`
	Latitude    *float64 `json:"latitude" binding:"required"`
	Longitude   *float64 `json:"longitude" binding:"required"`
	Description string   `json:"description" binding:"max=1024"`
}

// VoteRequest is the payload for POST /api/reports/:id/vote.
type VoteRequest struct {
	Choice VoteChoice `json:"choice" binding:"required,oneof=keep remove"`
}

// MapRequest is the payload for POST /api/reports/map.
type MapRequest struct {
	VPort  ViewPort `json:"vport" binding:"required"`
	Center Point    `json:"center"`
}

// AuthResponse is returned by register and login.
type AuthResponse struct {
	Success bool   `json:"success"`
	Token   string `json:"token,omitempty"`
	User    *User  `json:"user,omitempty"`
	Message string `json:"message,omitempty"`
}

// ReportsResponse wraps the active report listing.
type ReportsResponse struct {
	Success bool           `json:"success"`
	Reports []ActiveReport `json:"reports"`
}

// ReportResponse wraps a single created report.
type ReportResponse struct {
	Success bool    `json:"success"`
	Report  *Report `json:"report"`
}

// VoteResponse wraps a vote outcome.
type VoteResponse struct {
	Success bool `json:"success"`
	*VoteResult
}

// MapResponse wraps clustered map markers.
type MapResponse struct {
	Success bool        `json:"success"`
	Markers []MapMarker `json:"markers"`
}

// ErrorResponse is the uniform failure envelope.
type ErrorResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// MessageResponse is the uniform success-with-message envelope.
type MessageResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}
