package m2m

import (
	"encoding/json"

	"github.com/go-spatial/geom/encoding/geojson"
)

// Payloads of the USGS M2M JSON API (stable).
// See https://m2m.cr.usgs.gov/api/docs/json/

type loginTokenRequest struct {
	Username string `json:"username"`
	Token    string `json:"token"`
}

type SpatialFilter struct {
	FilterType string           `json:"filterType"`
	GeoJSON    geojson.Geometry `json:"geoJson"`
}

type AcquisitionFilter struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

type CloudCoverFilter struct {
	Min int `json:"min"`
	Max int `json:"max"`
}

type SceneFilter struct {
	SpatialFilter     *SpatialFilter     `json:"spatialFilter,omitempty"`
	AcquisitionFilter *AcquisitionFilter `json:"acquisitionFilter,omitempty"`
	CloudCoverFilter  *CloudCoverFilter  `json:"cloudCoverFilter,omitempty"`
}

type SceneSearchRequest struct {
	DatasetName    string      `json:"datasetName"`
	MaxResults     int         `json:"maxResults,omitempty"`
	StartingNumber int         `json:"startingNumber,omitempty"`
	SceneFilter    SceneFilter `json:"sceneFilter"`
}

type SceneResult struct {
	EntityID         string  `json:"entityId"`
	DisplayID        string  `json:"displayId"`
	CloudCover       float64 `json:"cloudCover"`
	TemporalCoverage struct {
		StartDate string `json:"startDate"`
		EndDate   string `json:"endDate"`
	} `json:"temporalCoverage"`
	SpatialFootprint json.RawMessage `json:"spatialFootprint,omitempty"`
}

type SceneSearchResponse struct {
	Results         []SceneResult `json:"results"`
	RecordsReturned int           `json:"recordsReturned"`
	TotalHits       int           `json:"totalHits"`
	StartingNumber  int           `json:"startingNumber"`
	NextRecord      int           `json:"nextRecord"`
}

type DownloadOptionsRequest struct {
	DatasetName string   `json:"datasetName"`
	EntityIDs   []string `json:"entityIds"`
}

type DownloadOption struct {
	ID                 string           `json:"id"`
	EntityID           string           `json:"entityId"`
	DisplayID          string           `json:"displayId"`
	Available          bool             `json:"available"`
	Filesize           int64            `json:"filesize"`
	DownloadSystem     string           `json:"downloadSystem"`
	SecondaryDownloads []DownloadOption `json:"secondaryDownloads"`
}

// DownloadOptionsResponse accepts both shapes returned by the service: a bare
// list of options or an object wrapping it under "options".
type DownloadOptionsResponse struct {
	Options []DownloadOption
}

// UnmarshalJSON implements the json.Unmarshaler interface
func (r *DownloadOptionsResponse) UnmarshalJSON(data []byte) error {
	if err := json.Unmarshal(data, &r.Options); err == nil {
		return nil
	}
	wrapped := struct {
		Options []DownloadOption `json:"options"`
	}{}
	if err := json.Unmarshal(data, &wrapped); err != nil {
		return err
	}
	r.Options = wrapped.Options
	return nil
}

type ProductDownload struct {
	EntityID  string `json:"entityId"`
	ProductID string `json:"productId"`
}

type DownloadRequest struct {
	Downloads []ProductDownload `json:"downloads"`
	Label     string            `json:"label"`
}

type DownloadEntry struct {
	EntityID string `json:"entityId"`
	URL      string `json:"url"`
	FileName string `json:"fileName,omitempty"`
	Filesize int64  `json:"filesize,omitempty"`
}

type DownloadRequestResponse struct {
	AvailableDownloads []DownloadEntry `json:"availableDownloads"`
	PreparingDownloads []DownloadEntry `json:"preparingDownloads"`
}

type DownloadRetrieveRequest struct {
	Label string `json:"label"`
}

type DownloadRetrieveResponse struct {
	Available []DownloadEntry `json:"available"`
	Requested []DownloadEntry `json:"requested"`
}
