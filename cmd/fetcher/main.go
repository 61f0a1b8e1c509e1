package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/airbusgeo/landsat-fetcher/common"
	"github.com/airbusgeo/landsat-fetcher/downloader"
	"github.com/airbusgeo/landsat-fetcher/interface/m2m"
	"github.com/airbusgeo/landsat-fetcher/service/log"
	"github.com/airbusgeo/landsat-fetcher/workflow"
)

type config struct {
	OutputDir              string
	StartDate              time.Time
	EndDate                time.Time
	MaxCloudCover          float64
	Sensors                []common.Sensor
	Bands                  []string
	BBox                   common.BoundingBox
	DeleteArchive          bool
	MaxConcurrentDownloads int
	M2MEndpoint            string
	MonitoringAddr         string
}

func newAppConfig() (*config, error) {
	config := config{}
	var startDate, endDate, sensors, bands, bbox string

	flag.StringVar(&config.OutputDir, "output-dir", "", "directory to store downloaded and extracted scenes (created if absent)")
	flag.StringVar(&startDate, "start-date", "", "start of the acquisition period (YYYY-MM-DD, inclusive)")
	flag.StringVar(&endDate, "end-date", "", "end of the acquisition period (YYYY-MM-DD, inclusive)")
	flag.Float64Var(&config.MaxCloudCover, "max-cloud-cover", 20, "maximum cloud cover percentage (0-100)")
	flag.StringVar(&sensors, "sensors", "L8,L9", "comma-separated Landsat sensors among L5,L7,L8,L9")
	flag.StringVar(&bands, "bands", "", "comma-separated bands to download (e.g. B2,B3,B4). Empty downloads the full product bundle.")
	flag.StringVar(&bbox, "bbox", "", "bounding box of the area of interest: min_lon,min_lat,max_lon,max_lat (WGS84)")
	flag.BoolVar(&config.DeleteArchive, "delete-archive", true, "delete product archives after extraction")
	flag.IntVar(&config.MaxConcurrentDownloads, "max-concurrent-downloads", 5, "maximum number of concurrent downloads")
	flag.StringVar(&config.M2MEndpoint, "m2m-endpoint", "", "M2M API root url (defaults to the USGS production endpoint)")
	flag.StringVar(&config.MonitoringAddr, "monitoring-addr", ":9000", "address of the local monitoring endpoints (empty disables)")

	flag.Parse()

	if config.OutputDir == "" {
		return nil, fmt.Errorf("missing output-dir config flag")
	}
	if bbox == "" {
		return nil, fmt.Errorf("missing bbox config flag")
	}
	var err error
	if config.StartDate, err = time.Parse("2006-01-02", startDate); err != nil {
		return nil, fmt.Errorf("invalid start-date: %w", err)
	}
	if config.EndDate, err = time.Parse("2006-01-02", endDate); err != nil {
		return nil, fmt.Errorf("invalid end-date: %w", err)
	}
	for _, s := range strings.Split(sensors, ",") {
		sensor, ok := common.SensorFromString(s)
		if !ok {
			return nil, fmt.Errorf("invalid sensor '%s'", s)
		}
		config.Sensors = append(config.Sensors, sensor)
	}
	if bands != "" {
		for _, b := range strings.Split(bands, ",") {
			config.Bands = append(config.Bands, strings.ToUpper(strings.TrimSpace(b)))
		}
	}
	if config.BBox, err = parseBBox(bbox); err != nil {
		return nil, err
	}
	return &config, nil
}

func parseBBox(s string) (common.BoundingBox, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return common.BoundingBox{}, fmt.Errorf("invalid bbox format, use 'min_lon,min_lat,max_lon,max_lat'")
	}
	coords := make([]float64, 4)
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return common.BoundingBox{}, fmt.Errorf("invalid bbox coordinate '%s': %w", p, err)
		}
		coords[i] = v
	}
	return common.BoundingBox{MinLon: coords[0], MinLat: coords[1], MaxLon: coords[2], MaxLat: coords[3]}, nil
}

func main() {
	ctx := context.Background()
	if err := run(ctx); err != nil {
		log.Fatal("error", zap.Error(err))
	}
}

func run(ctx context.Context) error {
	config, err := newAppConfig()
	if err != nil {
		return err
	}

	username := os.Getenv("EARTHDATA_USER")
	token := os.Getenv("EARTHDATA_TOKEN")
	if username == "" || token == "" {
		return fmt.Errorf("EARTHDATA_USER and EARTHDATA_TOKEN environment variables must be set")
	}

	progress := &downloader.Progress{}
	if config.MonitoringAddr != "" {
		router := mux.NewRouter()
		router.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, "ok")
		}).Methods("GET")
		router.HandleFunc("/progress", func(w http.ResponseWriter, r *http.Request) {
			done, total, bytes := progress.Snapshot()
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(map[string]int64{"done": done, "total": total, "bytes": bytes})
		}).Methods("GET")
		go http.ListenAndServe(config.MonitoringAddr, router)
	}

	query := common.Query{
		Area:          config.BBox,
		StartDate:     config.StartDate,
		EndDate:       config.EndDate,
		MaxCloudCover: config.MaxCloudCover,
		Sensors:       config.Sensors,
		Bands:         config.Bands,
	}
	client := m2m.NewClient(config.M2MEndpoint, m2m.Credentials{Username: username, Token: token})

	log.Logger(ctx).Sugar().Infof("fetcher starts: %d sensor(s), %s to %s, output %s",
		len(config.Sensors), config.StartDate.Format("2006-01-02"), config.EndDate.Format("2006-01-02"), config.OutputDir)

	outcomes, err := workflow.Run(ctx, client, query, workflow.Config{
		OutputDir:              config.OutputDir,
		MaxConcurrentDownloads: config.MaxConcurrentDownloads,
		DeleteArchive:          config.DeleteArchive,
		Progress:               progress,
	})
	if err != nil {
		return err
	}

	succeeded := 0
	for _, outcome := range outcomes {
		if outcome.Status == common.OutcomeSuccess {
			succeeded++
		}
	}
	log.Logger(ctx).Sugar().Infof("downloaded %d of %d scenes to %s", succeeded, len(outcomes), config.OutputDir)
	return json.NewEncoder(os.Stdout).Encode(outcomes)
}
