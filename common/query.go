package common

import (
	"fmt"
	"time"
)

// BoundingBox is a rectangular geographic area of interest (WGS84).
type BoundingBox struct {
	MinLon float64 `json:"min_lon"`
	MinLat float64 `json:"min_lat"`
	MaxLon float64 `json:"max_lon"`
	MaxLat float64 `json:"max_lat"`
}

// Validate checks coordinate ranges and min<max on both axes
func (b BoundingBox) Validate() error {
	if b.MinLon < -180 || b.MaxLon > 180 || b.MinLat < -90 || b.MaxLat > 90 {
		return fmt.Errorf("bounding box out of WGS84 range: %v", b)
	}
	if b.MinLon >= b.MaxLon || b.MinLat >= b.MaxLat {
		return fmt.Errorf("bounding box must satisfy min<max on both axes: %v", b)
	}
	return nil
}

// Query describes what to search for in the catalog. It is read-only to the
// pipeline once constructed.
type Query struct {
	Area          BoundingBox `json:"area"`
	StartDate     time.Time   `json:"start_date"`
	EndDate       time.Time   `json:"end_date"`
	MaxCloudCover float64     `json:"max_cloud_cover"`
	Sensors       []Sensor    `json:"sensors"`
	// Bands is the list of spectral bands to download (e.g. "B2").
	// Empty means the full scene product bundle.
	Bands []string `json:"bands,omitempty"`
}

// Validate checks the query invariants
func (q Query) Validate() error {
	if err := q.Area.Validate(); err != nil {
		return fmt.Errorf("query: %w", err)
	}
	if q.EndDate.Before(q.StartDate) {
		return fmt.Errorf("query: start date %s after end date %s", q.StartDate.Format("2006-01-02"), q.EndDate.Format("2006-01-02"))
	}
	if q.MaxCloudCover < 0 || q.MaxCloudCover > 100 {
		return fmt.Errorf("query: max cloud cover must be in [0,100]: %g", q.MaxCloudCover)
	}
	if len(q.Sensors) == 0 {
		return fmt.Errorf("query: at least one sensor is required")
	}
	for _, s := range q.Sensors {
		if s.Dataset() == "" {
			return fmt.Errorf("query: unknown sensor '%s'", s)
		}
	}
	return nil
}

// HasSensor returns true if the sensor belongs to the query sensor set
func (q Query) HasSensor(s Sensor) bool {
	for _, qs := range q.Sensors {
		if qs == s {
			return true
		}
	}
	return false
}
