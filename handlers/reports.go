package handlers

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"roadalert/mapview"
	"roadalert/middleware"
	"roadalert/models"

	"github.com/apex/log"
	"github.com/gin-gonic/gin"
)

// Lifecycle is the slice of the engine the report handlers need.
type Lifecycle interface {
	CreateReport(ctx context.Context, authorID int64, kind string, lat, lng float64, description string) (*models.Report, error)
	ListActive(ctx context.Context, callerID int64) ([]models.ActiveReport, error)
	CastVote(ctx context.Context, reportID, voterID int64, choice models.VoteChoice) (*models.VoteResult, error)
	DeleteReport(ctx context.Context, reportID, callerID int64) error
}

// PointSource supplies active report coordinates for map clustering.
type PointSource interface {
	ActivePoints(ctx context.Context, vp models.ViewPort, now time.Time) ([]models.ReportPoint, error)
	ListKinds(ctx context.Context) ([]models.IncidentType, error)
}

// ReportsHandler serves the report lifecycle endpoints.
type ReportsHandler struct {
	engine Lifecycle
	points PointSource
}

func NewReportsHandler(engine Lifecycle, points PointSource) *ReportsHandler {
	return &ReportsHandler{engine: engine, points: points}
}

func (h *ReportsHandler) List(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, models.ErrorResponse{Message: "unauthorized"})
		return
	}

	reports, err := h.engine.ListActive(c.Request.Context(), userID)
	if err != nil {
		log.Errorf("Failed to list active reports: %v", err)
		failWith(c, err)
		return
	}

	c.JSON(http.StatusOK, models.ReportsResponse{Success: true, Reports: reports})
}

func (h *ReportsHandler) Create(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, models.ErrorResponse{Message: "unauthorized"})
		return
	}

	var req models.CreateReportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Message: err.Error()})
		return
	}

	report, err := h.engine.CreateReport(c.Request.Context(), userID,
		req.Type, *req.Latitude, *req.Longitude, req.Description)
	if err != nil {
		log.Errorf("Failed to create report: %v", err)
		failWith(c, err)
		return
	}

	c.JSON(http.StatusCreated, models.ReportResponse{Success: true, Report: report})
}

func (h *ReportsHandler) Vote(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, models.ErrorResponse{Message: "unauthorized"})
		return
	}

	reportID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Message: "bad report id"})
		return
	}

	var req models.VoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Message: err.Error()})
		return
	}

	result, err := h.engine.CastVote(c.Request.Context(), reportID, userID, req.Choice)
	if err != nil {
		log.Errorf("Failed to cast vote on report %d: %v", reportID, err)
		failWith(c, err)
		return
	}

	c.JSON(http.StatusOK, models.VoteResponse{Success: true, VoteResult: result})
}

func (h *ReportsHandler) Delete(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, models.ErrorResponse{Message: "unauthorized"})
		return
	}

	reportID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Message: "bad report id"})
		return
	}

	if err := h.engine.DeleteReport(c.Request.Context(), reportID, userID); err != nil {
		log.Errorf("Failed to delete report %d: %v", reportID, err)
		failWith(c, err)
		return
	}

	c.JSON(http.StatusOK, models.MessageResponse{Success: true, Message: "report deleted"})
}

func (h *ReportsHandler) Map(c *gin.Context) {
	if _, ok := middleware.UserID(c); !ok {
		c.JSON(http.StatusUnauthorized, models.ErrorResponse{Message: "unauthorized"})
		return
	}

	var req models.MapRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Message: err.Error()})
		return
	}

	points, err := h.points.ActivePoints(c.Request.Context(), req.VPort, time.Now())
	if err != nil {
		log.Errorf("Failed to load report points: %v", err)
		failWith(c, err)
		return
	}

	aggr := mapview.New(req.VPort, req.Center)
	for _, p := range points {
		aggr.Add(p)
	}

	c.JSON(http.StatusOK, models.MapResponse{Success: true, Markers: aggr.Markers()})
}

func (h *ReportsHandler) IncidentTypes(c *gin.Context) {
	kinds, err := h.points.ListKinds(c.Request.Context())
	if err != nil {
		log.Errorf("Failed to list incident types: %v", err)
		failWith(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "incident_types": kinds})
}
