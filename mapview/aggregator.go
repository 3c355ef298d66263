// Package mapview clusters report markers into S2 cells sized to the
// client's viewport, so a zoomed-out map gets counts instead of
// thousands of individual pins.
package mapview

import (
	"github.com/golang/geo/r1"
	"github.com/golang/geo/s1"
	"github.com/golang/geo/s2"

	"roadalert/models"
)

type cluster struct {
	cnt      int64
	origCell s2.CellID
	reportID int64
	typeName string
}

// Aggregator buckets points into S2 cells at a level chosen from the
// viewport size.
type Aggregator struct {
	level    int
	clusters map[s2.CellID]*cluster
}

const (
	expectedCells = 160
	minLevel      = 6
	maxLevel      = 16
)

func cellBaseLevel(vp models.ViewPort, center models.Point) int {
	minLL := s2.LatLngFromDegrees(vp.LatMin, vp.LonMin)
	maxLL := s2.LatLngFromDegrees(vp.LatMax, vp.LonMax)

	rect := s2.Rect{
		Lat: r1.Interval{
			Lo: minLL.Lat.Radians(),
			Hi: maxLL.Lat.Radians()},
		Lng: s1.Interval{
			Lo: minLL.Lng.Radians(),
			Hi: maxLL.Lng.Radians()},
	}

	vpArea := rect.Area()

	centerCell := s2.CellIDFromLatLng(s2.LatLngFromDegrees(center.Lat, center.Lon))

	for lv := maxLevel; lv >= minLevel; lv-- {
		cc := s2.CellFromCellID(centerCell.Parent(lv))
		if vpArea/cc.ApproxArea() < expectedCells {
			return lv
		}
	}
	return minLevel // Large enough level
}

func New(vp models.ViewPort, center models.Point) *Aggregator {
	return &Aggregator{
		level:    cellBaseLevel(vp, center),
		clusters: make(map[s2.CellID]*cluster),
	}
}

func (a *Aggregator) Add(p models.ReportPoint) {
	pc := s2.CellIDFromLatLng(s2.LatLngFromDegrees(p.Latitude, p.Longitude))
	parent := pc.Parent(a.level)
	c, ok := a.clusters[parent]
	if !ok {
		c = &cluster{}
		a.clusters[parent] = c
	}
	c.cnt++
	c.origCell = pc
	c.reportID = p.ID
	c.typeName = p.TypeName
}

// Markers flattens the clusters. A singleton keeps its original
// position, report ID and type; a multi-point cluster sits at its
// cell center and carries only the count.
func (a *Aggregator) Markers() []models.MapMarker {
	out := make([]models.MapMarker, 0, len(a.clusters))
	for cell, c := range a.clusters {
		ll := cell.LatLng()
		m := models.MapMarker{Count: c.cnt}
		if c.cnt == 1 {
			ll = c.origCell.LatLng()
			m.ReportID = c.reportID
			m.TypeName = c.typeName
		}
		m.Latitude = ll.Lat.Degrees()
		m.Longitude = ll.Lng.Degrees()
		out = append(out, m)
	}
	return out
}
