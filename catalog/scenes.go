package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/araddon/dateparse"
	"github.com/go-spatial/geom"
	"github.com/go-spatial/geom/encoding/geojson"
	"github.com/go-spatial/geom/encoding/wkt"

	"github.com/airbusgeo/landsat-fetcher/common"
	"github.com/airbusgeo/landsat-fetcher/interface/m2m"
	"github.com/airbusgeo/landsat-fetcher/service"
	"github.com/airbusgeo/landsat-fetcher/service/log"
)

const DefaultPageLimit = 1000

// SearchError is fatal: without an inventory there is nothing to download.
type SearchError struct {
	Err error
}

func (e SearchError) Error() string { return fmt.Sprintf("scene search failed: %v", e.Err) }
func (e SearchError) Unwrap() error { return e.Err }

type Options struct {
	// PageLimit is the maximum number of scenes requested per catalog page.
	PageLimit int
}

// SearchScenes makes an inventory of the scenes matching the query. Each
// sensor dataset is searched with paginated scene-search requests; the merged
// results are filtered on cloud cover and sensor (the remote filters are not
// trusted to be exact) and deduplicated by entity id across pages and
// datasets, last-seen metadata winning. The returned slice is materialized
// and re-traversable.
func SearchScenes(ctx context.Context, client *m2m.Client, query common.Query, opts Options) ([]common.SceneRecord, error) {
	if err := query.Validate(); err != nil {
		return nil, SearchError{Err: err}
	}
	if opts.PageLimit <= 0 {
		opts.PageLimit = DefaultPageLimit
	}

	// L8 and L9 share a dataset: search each dataset once.
	datasets := service.StringSet{}
	for _, sensor := range query.Sensors {
		datasets.Push(sensor.Dataset())
	}

	var records []common.SceneRecord
	byEntity := map[string]int{}
	for _, dataset := range datasets.Slice() {
		results, err := searchDataset(ctx, client, dataset, query, opts.PageLimit)
		if err != nil {
			return nil, SearchError{Err: fmt.Errorf("dataset %s: %w", dataset, err)}
		}
		for _, result := range results {
			record, ok := toRecord(result, dataset, query)
			if !ok {
				continue
			}
			if i, seen := byEntity[record.EntityID]; seen {
				records[i] = record
				continue
			}
			byEntity[record.EntityID] = len(records)
			records = append(records, record)
		}
	}

	log.Logger(ctx).Sugar().Debugf("%d scenes found", len(records))
	return records, nil
}

// searchDataset pages through scene-search for one dataset. Pagination stops
// on the service-reported end of results or on a page that brings nothing new
// (guards against a misbehaving service looping forever).
func searchDataset(ctx context.Context, client *m2m.Client, dataset string, query common.Query, pageLimit int) ([]m2m.SceneResult, error) {
	req := m2m.SceneSearchRequest{
		DatasetName: dataset,
		MaxResults:  pageLimit,
		SceneFilter: m2m.SceneFilter{
			SpatialFilter: &m2m.SpatialFilter{
				FilterType: "geojson",
				GeoJSON:    geojson.Geometry{Geometry: bboxPolygon(query.Area)},
			},
			AcquisitionFilter: &m2m.AcquisitionFilter{
				Start: query.StartDate.Format("2006-01-02"),
				End:   query.EndDate.Format("2006-01-02"),
			},
			CloudCoverFilter: &m2m.CloudCoverFilter{Min: 0, Max: int(query.MaxCloudCover)},
		},
	}

	var results []m2m.SceneResult
	seen := service.StringSet{}
	for starting := 1; ; {
		req.StartingNumber = starting
		var page m2m.SceneSearchResponse
		if err := service.Retriable(ctx, func() error {
			return client.Do(ctx, "scene-search", req, &page)
		}, time.Second, 4); err != nil {
			return nil, err
		}
		log.Logger(ctx).Sugar().Debugf("[%s] page at %d: %d/%d scenes", dataset, starting, page.RecordsReturned, page.TotalHits)

		newUnique := 0
		for _, result := range page.Results {
			if !seen.Exists(result.EntityID) {
				seen.Push(result.EntityID)
				newUnique++
			}
			results = append(results, result)
		}

		if newUnique == 0 || page.NextRecord == 0 || page.NextRecord <= starting || page.NextRecord > page.TotalHits {
			break
		}
		starting = page.NextRecord
	}
	return results, nil
}

// toRecord converts one raw result, applying the defensive client-side
// filters. ok is false when the result is filtered out.
func toRecord(result m2m.SceneResult, dataset string, query common.Query) (common.SceneRecord, bool) {
	sensor, ok := common.SensorFromDisplayID(result.DisplayID)
	if !ok || !query.HasSensor(sensor) {
		return common.SceneRecord{}, false
	}
	if result.CloudCover > query.MaxCloudCover {
		return common.SceneRecord{}, false
	}
	if result.EntityID == "" || result.DisplayID == "" {
		return common.SceneRecord{}, false
	}
	return common.SceneRecord{
		EntityID:     result.EntityID,
		DisplayID:    result.DisplayID,
		Sensor:       sensor,
		Dataset:      dataset,
		Date:         parseDate(result.TemporalCoverage.StartDate),
		CloudCover:   result.CloudCover,
		FootprintWKT: footprintWKT(result.SpatialFootprint),
	}, true
}

func parseDate(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := dateparse.ParseAny(s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func footprintWKT(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var g geojson.Geometry
	if err := json.Unmarshal(raw, &g); err != nil || g.Geometry == nil {
		return ""
	}
	return wkt.MustEncode(g.Geometry)
}

// bboxPolygon builds the closed ring of the bounding box
func bboxPolygon(b common.BoundingBox) geom.Polygon {
	return geom.Polygon{{
		{b.MinLon, b.MinLat},
		{b.MaxLon, b.MinLat},
		{b.MaxLon, b.MaxLat},
		{b.MinLon, b.MaxLat},
		{b.MinLon, b.MinLat},
	}}
}
