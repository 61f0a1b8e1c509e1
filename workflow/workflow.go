package workflow

import (
	"context"
	"fmt"
	"os"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/airbusgeo/landsat-fetcher/catalog"
	"github.com/airbusgeo/landsat-fetcher/common"
	"github.com/airbusgeo/landsat-fetcher/downloader"
	"github.com/airbusgeo/landsat-fetcher/interface/m2m"
	"github.com/airbusgeo/landsat-fetcher/processor"
	"github.com/airbusgeo/landsat-fetcher/service/log"
)

// Config tunes one orchestrator run. Zero values select the defaults of each
// stage.
type Config struct {
	OutputDir              string
	MaxConcurrentDownloads int
	DeleteArchive          bool

	// MaxAttempts and Backoff tune the per-asset retry policy.
	MaxAttempts int
	Backoff     time.Duration

	// PageLimit tunes catalog pagination.
	PageLimit int

	// RetrievePolls and RetrieveWait tune the download-retrieve polling.
	RetrievePolls int
	RetrieveWait  time.Duration

	// Progress, when set, receives live download counters.
	Progress *downloader.Progress
}

// Run executes the whole pipeline: authenticate, search, resolve, download
// with a single global concurrency cap, post-process, and report one outcome
// per scene. Authentication and search failures are fatal and abort before
// any download; every later failure is scene-local and folded into the
// outcome list.
func Run(ctx context.Context, client *m2m.Client, query common.Query, cfg Config) ([]common.SceneOutcome, error) {
	if err := query.Validate(); err != nil {
		return nil, err
	}
	if cfg.MaxConcurrentDownloads < 1 {
		return nil, fmt.Errorf("max concurrent downloads must be >= 1: %d", cfg.MaxConcurrentDownloads)
	}
	if err := os.MkdirAll(cfg.OutputDir, 0755); err != nil {
		return nil, fmt.Errorf("create output directory %s: %w", cfg.OutputDir, err)
	}

	if err := client.Authenticate(ctx); err != nil {
		return nil, err
	}
	defer func() {
		if err := client.Logout(ctx); err != nil {
			log.Logger(ctx).Warn("logout failed", zap.Error(err))
		}
	}()

	scenes, err := catalog.SearchScenes(ctx, client, query, catalog.Options{PageLimit: cfg.PageLimit})
	if err != nil {
		return nil, err
	}
	if len(scenes) == 0 {
		log.Logger(ctx).Info("no scenes found")
		return nil, nil
	}
	log.Logger(ctx).Sugar().Infof("found %d scenes", len(scenes))

	resolution, err := downloader.ResolveAssets(ctx, client, scenes, query.Bands, cfg.OutputDir, downloader.ResolveOptions{
		RetrievePolls: cfg.RetrievePolls,
		RetrieveWait:  cfg.RetrieveWait,
	})
	if err != nil {
		// scene-local: the affected scenes are reported failed below
		log.Logger(ctx).Warn("asset resolution incomplete", zap.Error(err))
	}

	results, err := downloader.DownloadAll(ctx, resolution.Assets, downloader.Options{
		MaxConcurrency: cfg.MaxConcurrentDownloads,
		MaxAttempts:    cfg.MaxAttempts,
		Backoff:        cfg.Backoff,
		Progress:       cfg.Progress,
	})
	if err != nil {
		log.Logger(ctx).Warn("download pool failed", zap.Error(err))
		results = failAll(resolution.Assets, err)
	}

	bySceneID := map[string][]common.DownloadResult{}
	for _, result := range results {
		bySceneID[result.Asset.SceneID] = append(bySceneID[result.Asset.SceneID], result)
	}

	outcomes := make([]common.SceneOutcome, 0, len(scenes))
	for _, scene := range scenes {
		outcome := processor.ProcessScene(ctx, scene, bySceneID[scene.EntityID], processor.Options{
			OutputDir:     cfg.OutputDir,
			DeleteArchive: cfg.DeleteArchive,
		})
		outcomes = append(outcomes, outcome)
	}
	sort.Slice(outcomes, func(i, j int) bool { return outcomes[i].SceneID < outcomes[j].SceneID })

	if err := ctx.Err(); err != nil {
		return outcomes, err
	}
	return outcomes, nil
}

// failAll synthesizes one failed result per asset when the pool itself could
// not start (e.g. the staging directory could not be created).
func failAll(assets []common.AssetRef, err error) []common.DownloadResult {
	results := make([]common.DownloadResult, len(assets))
	for i, asset := range assets {
		results[i] = common.DownloadResult{
			Asset:   asset,
			Status:  common.DownloadFailed,
			Message: err.Error(),
		}
	}
	return results
}
