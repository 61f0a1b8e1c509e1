package common

import (
	"testing"
	"time"
)

func validQuery() Query {
	return Query{
		Area:          BoundingBox{MinLon: 1.2, MinLat: 43.4, MaxLon: 1.6, MaxLat: 43.8},
		StartDate:     time.Date(2022, 1, 1, 0, 0, 0, 0, time.UTC),
		EndDate:       time.Date(2022, 3, 1, 0, 0, 0, 0, time.UTC),
		MaxCloudCover: 20,
		Sensors:       []Sensor{L8, L9},
	}
}

func TestQueryValidate(t *testing.T) {
	if err := validQuery().Validate(); err != nil {
		t.Errorf("valid query rejected: %v", err)
	}

	q := validQuery()
	q.Area.MaxLon = 181
	if q.Validate() == nil {
		t.Error("out-of-range bounding box accepted")
	}

	q = validQuery()
	q.Area.MinLat, q.Area.MaxLat = q.Area.MaxLat, q.Area.MinLat
	if q.Validate() == nil {
		t.Error("inverted bounding box accepted")
	}

	q = validQuery()
	q.StartDate, q.EndDate = q.EndDate, q.StartDate
	if q.Validate() == nil {
		t.Error("inverted date range accepted")
	}

	q = validQuery()
	q.MaxCloudCover = 120
	if q.Validate() == nil {
		t.Error("cloud cover above 100 accepted")
	}

	q = validQuery()
	q.Sensors = nil
	if q.Validate() == nil {
		t.Error("empty sensor list accepted")
	}

	q = validQuery()
	q.Sensors = []Sensor{"L12"}
	if q.Validate() == nil {
		t.Error("unknown sensor accepted")
	}
}

func TestQueryHasSensor(t *testing.T) {
	q := validQuery()
	if !q.HasSensor(L8) || !q.HasSensor(L9) {
		t.Fail()
	}
	if q.HasSensor(L7) {
		t.Fail()
	}
}
