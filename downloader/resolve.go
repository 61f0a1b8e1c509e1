package downloader

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/airbusgeo/landsat-fetcher/common"
	"github.com/airbusgeo/landsat-fetcher/interface/m2m"
	"github.com/airbusgeo/landsat-fetcher/service"
	"github.com/airbusgeo/landsat-fetcher/service/log"
)

// ResolutionError is scene-local: the affected scenes are reported failed but
// the run continues.
type ResolutionError struct {
	Err error
}

func (e ResolutionError) Error() string { return fmt.Sprintf("asset resolution failed: %v", e.Err) }
func (e ResolutionError) Unwrap() error { return e.Err }

type ResolveOptions struct {
	// RetrievePolls is the number of download-retrieve polls for products the
	// service is still preparing.
	RetrievePolls int
	// RetrieveWait is the pause between two polls.
	RetrieveWait time.Duration
}

func (o *ResolveOptions) setDefaults() {
	if o.RetrievePolls <= 0 {
		o.RetrievePolls = 10
	}
	if o.RetrieveWait <= 0 {
		o.RetrieveWait = 20 * time.Second
	}
}

// Resolution is the outcome of an asset resolution pass.
type Resolution struct {
	Assets []common.AssetRef
	// Warnings records per-scene resolution anomalies (requested band missing,
	// product never ready) that did not fail the scene outright.
	Warnings []string
}

// pendingAsset is a requested product waiting for its download URL.
type pendingAsset struct {
	sceneID  string
	kind     common.AssetKind
	size     int64
	fileName string // default file name if the service does not provide one
	sceneDir string
}

// ResolveAssets turns scene records into download-ready asset references.
// With an empty band set each scene resolves to its full product bundle; with
// bands, to one file per requested band present among the scene secondary
// downloads. A band absent for a scene is a recorded warning, not an error. A
// scene resolving to zero assets is left out and reported failed downstream.
func ResolveAssets(ctx context.Context, client *m2m.Client, scenes []common.SceneRecord, bands []string, outputDir string, opts ResolveOptions) (Resolution, error) {
	opts.setDefaults()
	res := Resolution{}

	byDataset := map[string][]common.SceneRecord{}
	for _, scene := range scenes {
		byDataset[scene.Dataset] = append(byDataset[scene.Dataset], scene)
	}

	var products []m2m.ProductDownload
	pending := map[string]pendingAsset{}
	for dataset, datasetScenes := range byDataset {
		entityIDs := make([]string, len(datasetScenes))
		byEntity := map[string]common.SceneRecord{}
		for i, scene := range datasetScenes {
			entityIDs[i] = scene.EntityID
			byEntity[scene.EntityID] = scene
		}

		var options m2m.DownloadOptionsResponse
		if err := service.Retriable(ctx, func() error {
			return client.Do(ctx, "download-options", m2m.DownloadOptionsRequest{DatasetName: dataset, EntityIDs: entityIDs}, &options)
		}, time.Second, 4); err != nil {
			// scene-local: these scenes resolve to nothing
			log.Logger(ctx).Sugar().Warnf("download-options failed for dataset %s: %v", dataset, err)
			res.Warnings = append(res.Warnings, fmt.Sprintf("dataset %s: download options unavailable: %v", dataset, err))
			continue
		}

		optionByEntity := map[string]m2m.DownloadOption{}
		for _, opt := range options.Options {
			if opt.Available && opt.EntityID != "" {
				if _, ok := optionByEntity[opt.EntityID]; !ok {
					optionByEntity[opt.EntityID] = opt
				}
			}
		}

		for _, scene := range datasetScenes {
			opt, ok := optionByEntity[scene.EntityID]
			if !ok {
				res.Warnings = append(res.Warnings, fmt.Sprintf("scene %s: no available download option", scene.DisplayID))
				continue
			}
			if len(bands) == 0 {
				products = append(products, m2m.ProductDownload{EntityID: scene.EntityID, ProductID: opt.ID})
				pending[scene.EntityID] = pendingAsset{
					sceneID:  scene.EntityID,
					kind:     common.AssetArchive,
					size:     opt.Filesize,
					fileName: scene.DisplayID + ".tar.gz",
					sceneDir: outputDir,
				}
				continue
			}
			for _, band := range bands {
				secondary, found := findBandDownload(opt.SecondaryDownloads, band)
				if !found {
					if !scene.Sensor.HasBand(band) {
						res.Warnings = append(res.Warnings, fmt.Sprintf("scene %s: band %s is not part of the %s band catalog, skipped", scene.DisplayID, band, scene.Sensor))
					} else {
						res.Warnings = append(res.Warnings, fmt.Sprintf("scene %s: band %s has no available download, skipped", scene.DisplayID, band))
					}
					continue
				}
				products = append(products, m2m.ProductDownload{EntityID: secondary.EntityID, ProductID: secondary.ID})
				pending[secondary.EntityID] = pendingAsset{
					sceneID:  scene.EntityID,
					kind:     common.AssetBand,
					size:     secondary.Filesize,
					fileName: secondary.EntityID + ".TIF",
					sceneDir: filepath.Join(outputDir, scene.DisplayID),
				}
			}
		}
	}

	for _, w := range res.Warnings {
		log.Logger(ctx).Warn(w)
	}
	if len(products) == 0 {
		return res, nil
	}

	entries, err := requestDownloads(ctx, client, products, opts)
	if err != nil {
		return res, ResolutionError{Err: err}
	}

	got := service.StringSet{}
	for _, entry := range entries {
		asset, ok := pending[entry.EntityID]
		if !ok || entry.URL == "" || got.Exists(entry.EntityID) {
			continue
		}
		got.Push(entry.EntityID)
		fileName := entry.FileName
		if fileName == "" || asset.kind == common.AssetArchive {
			fileName = asset.fileName
		}
		size := asset.size
		if entry.Filesize > 0 {
			size = entry.Filesize
		}
		res.Assets = append(res.Assets, common.AssetRef{
			SceneID:      asset.sceneID,
			EntityID:     entry.EntityID,
			URL:          entry.URL,
			Kind:         asset.kind,
			ExpectedSize: size,
			TargetPath:   filepath.Join(asset.sceneDir, fileName),
		})
	}
	for entityID, asset := range pending {
		if !got.Exists(entityID) {
			warning := fmt.Sprintf("scene %s: download not ready after %d polls, skipped", asset.sceneID, opts.RetrievePolls)
			res.Warnings = append(res.Warnings, warning)
			log.Logger(ctx).Warn(warning)
		}
	}

	return res, nil
}

// requestDownloads submits the batch download-request and polls
// download-retrieve for products the service is still preparing.
func requestDownloads(ctx context.Context, client *m2m.Client, products []m2m.ProductDownload, opts ResolveOptions) ([]m2m.DownloadEntry, error) {
	label := uuid.New().String()
	var resp m2m.DownloadRequestResponse
	if err := service.Retriable(ctx, func() error {
		return client.Do(ctx, "download-request", m2m.DownloadRequest{Downloads: products, Label: label}, &resp)
	}, time.Second, 4); err != nil {
		return nil, fmt.Errorf("download-request: %w", err)
	}

	seen := service.StringSet{}
	var entries []m2m.DownloadEntry
	merge := func(more []m2m.DownloadEntry) {
		for _, entry := range more {
			if entry.EntityID == "" || seen.Exists(entry.EntityID) {
				continue
			}
			seen.Push(entry.EntityID)
			entries = append(entries, entry)
		}
	}
	merge(resp.AvailableDownloads)
	if len(resp.PreparingDownloads) == 0 {
		return entries, nil
	}

	log.Logger(ctx).Sugar().Infof("%d downloads are being prepared, polling download-retrieve", len(resp.PreparingDownloads))
	for poll := 0; poll < opts.RetrievePolls && len(entries) < len(products); poll++ {
		select {
		case <-ctx.Done():
			return entries, ctx.Err()
		case <-time.After(opts.RetrieveWait):
		}
		var ret m2m.DownloadRetrieveResponse
		if err := client.Do(ctx, "download-retrieve", m2m.DownloadRetrieveRequest{Label: label}, &ret); err != nil {
			log.Logger(ctx).Sugar().Warnf("download-retrieve poll %d: %v", poll+1, err)
			continue
		}
		merge(ret.Available)
		log.Logger(ctx).Sugar().Debugf("download-retrieve poll %d: %d/%d urls", poll+1, len(entries), len(products))
	}
	return entries, nil
}

// findBandDownload matches a secondary download on the _<BAND>.TIF suffix
func findBandDownload(secondaries []m2m.DownloadOption, band string) (m2m.DownloadOption, bool) {
	suffix := "_" + strings.ToUpper(band) + ".TIF"
	for _, secondary := range secondaries {
		if secondary.Available && strings.HasSuffix(strings.ToUpper(secondary.DisplayID), suffix) {
			return secondary, true
		}
	}
	return m2m.DownloadOption{}, false
}
