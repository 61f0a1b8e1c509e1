package downloader

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/cavaliercoder/grab"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/airbusgeo/landsat-fetcher/common"
	"github.com/airbusgeo/landsat-fetcher/service"
	"github.com/airbusgeo/landsat-fetcher/service/log"
)

type Options struct {
	// MaxConcurrency caps the number of transfers in flight. Must be >= 1.
	MaxConcurrency int
	// MaxAttempts per asset; only temporary failures are retried.
	MaxAttempts int
	// Backoff before the second attempt, doubled after each retry.
	Backoff time.Duration
	// Progress, when set, receives transfer counters.
	Progress *Progress
}

func (o *Options) setDefaults() error {
	if o.MaxConcurrency < 1 {
		return fmt.Errorf("max concurrency must be >= 1: %d", o.MaxConcurrency)
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = 3
	}
	if o.Backoff <= 0 {
		o.Backoff = time.Second
	}
	return nil
}

// Progress carries live transfer counters, readable while DownloadAll runs.
type Progress struct {
	total int64
	done  int64
	bytes int64
}

func (p *Progress) start(total int) { atomic.StoreInt64(&p.total, int64(total)) }

func (p *Progress) complete(bytes int64) {
	atomic.AddInt64(&p.done, 1)
	atomic.AddInt64(&p.bytes, bytes)
}

// Snapshot returns completed assets, total assets and bytes written so far.
func (p *Progress) Snapshot() (done, total, bytes int64) {
	return atomic.LoadInt64(&p.done), atomic.LoadInt64(&p.total), atomic.LoadInt64(&p.bytes)
}

// DownloadAll drains the asset pool with a bounded worker pool. Every asset
// yields exactly one DownloadResult; one asset's failure never aborts its
// siblings. Transfers stream to a staging directory and are renamed onto
// their target path only after verified completion, so an interrupted run
// never leaves a half-written file at a final path.
func DownloadAll(ctx context.Context, assets []common.AssetRef, opts Options) ([]common.DownloadResult, error) {
	if err := opts.setDefaults(); err != nil {
		return nil, err
	}
	if opts.Progress != nil {
		opts.Progress.start(len(assets))
	}
	if len(assets) == 0 {
		return nil, nil
	}

	stagingDir, err := os.MkdirTemp("", "landsat-fetcher-")
	if err != nil {
		return nil, service.MakeTemporary(fmt.Errorf("create staging directory: %w", err))
	}
	defer os.RemoveAll(stagingDir)

	client := grab.NewClient()
	results := make([]common.DownloadResult, len(assets))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.MaxConcurrency)
	for i, asset := range assets {
		i, asset := i, asset
		g.Go(func() error {
			results[i] = downloadAsset(gctx, client, asset, stagingDir, opts)
			return nil
		})
	}
	g.Wait()

	return results, nil
}

// downloadAsset runs the bounded-attempt transfer of one asset. Attempts are
// strictly sequential; only temporary failures are retried.
func downloadAsset(ctx context.Context, client *grab.Client, asset common.AssetRef, stagingDir string, opts Options) common.DownloadResult {
	result := common.DownloadResult{Asset: asset}

	backoff := opts.Backoff
	retried := false
	var bytes int64
	var err error
	for attempt := 1; attempt <= opts.MaxAttempts; attempt++ {
		if attempt > 1 {
			log.Logger(ctx).Sugar().Debugf("retrying %s (attempt %d/%d)", asset.EntityID, attempt, opts.MaxAttempts)
			select {
			case <-ctx.Done():
				err = ctx.Err()
			case <-time.After(backoff):
				backoff *= 2
			}
			if err != nil {
				break
			}
			retried = true
		}
		if bytes, err = fetch(ctx, client, asset, stagingDir); err == nil || !service.Temporary(err) || ctx.Err() != nil {
			break
		}
		log.Logger(ctx).Sugar().Warnf("download %s attempt %d/%d: %v", asset.EntityID, attempt, opts.MaxAttempts, err)
	}

	switch {
	case err == nil:
		result.Status = common.DownloadSuccess
		result.BytesWritten = bytes
		result.LocalPath = asset.TargetPath
		if opts.Progress != nil {
			opts.Progress.complete(bytes)
		}
		log.Logger(ctx).Sugar().Infof("downloaded %s (%d bytes)", filepath.Base(asset.TargetPath), bytes)
	case service.Temporary(err) && retried:
		result.Status = common.DownloadRetriedThenFailed
		result.Message = fmt.Sprintf("gave up after %d attempts: %v", opts.MaxAttempts, err)
	default:
		result.Status = common.DownloadFailed
		result.Message = err.Error()
	}
	return result
}

// fetch streams the asset to a staging file and promotes it to the target
// path on verified completion. The staging file is removed on any failure.
func fetch(ctx context.Context, client *grab.Client, asset common.AssetRef, stagingDir string) (int64, error) {
	stagingPath := filepath.Join(stagingDir, uuid.New().String())

	req, err := grab.NewRequest(stagingPath, asset.URL)
	if err != nil {
		return 0, fmt.Errorf("fetch[%s].NewRequest: %w", asset.URL, err)
	}
	req = req.WithContext(ctx)

	resp := client.Do(req)
	displayProgress(ctx, filepath.Base(asset.TargetPath), resp, 0.05)

	if err := resp.Err(); err != nil {
		os.Remove(stagingPath)
		err = fmt.Errorf("fetch[%s]: %w", asset.URL, err)
		if resp.HTTPResponse == nil {
			return 0, service.MakeTemporary(err)
		}
		switch resp.HTTPResponse.StatusCode {
		case 408, 429, 500, 501, 502, 503, 504:
			return 0, service.MakeTemporary(err)
		default:
			return 0, err
		}
	}

	bytes := resp.BytesComplete()
	if asset.ExpectedSize > 0 && bytes != asset.ExpectedSize {
		os.Remove(stagingPath)
		return 0, service.MakeTemporary(fmt.Errorf("fetch[%s]: size mismatch: got %d, expected %d", asset.URL, bytes, asset.ExpectedSize))
	}
	if err := ctx.Err(); err != nil {
		// never promote a file after cancellation
		os.Remove(stagingPath)
		return 0, err
	}

	if err := os.MkdirAll(filepath.Dir(asset.TargetPath), 0755); err != nil {
		os.Remove(stagingPath)
		return 0, service.MakeTemporary(fmt.Errorf("fetch: make directory: %w", err))
	}
	if err := os.Rename(stagingPath, asset.TargetPath); err != nil {
		os.Remove(stagingPath)
		return 0, service.MakeTemporary(fmt.Errorf("fetch: promote %s: %w", asset.TargetPath, err))
	}
	return bytes, nil
}

func fmtBytes(bytes int64) string {
	v := float64(bytes)
	switch {
	case v > 1<<30:
		return fmt.Sprintf("%.2fGo", v/(1<<30))
	case v > 1<<20:
		return fmt.Sprintf("%.2fMo", v/(1<<20))
	case v > 1<<10:
		return fmt.Sprintf("%.2fko", v/(1<<10))
	default:
		return fmt.Sprintf("%.2fo", v)
	}
}

// displayProgress logs the transfer every progressPeriod of completion
func displayProgress(ctx context.Context, prefix string, resp *grab.Response, progressPeriod float64) {
	t := time.NewTicker(time.Second)
	defer t.Stop()

	progress, lastBytes, seconds := 0.0, int64(0), int64(0)
	for {
		select {
		case <-t.C:
			seconds++
			if resp.Progress() > progress {
				log.Logger(ctx).Sugar().Debugf("%s: %.2f%% %s/%s (%s/s)", prefix, 100*resp.Progress(), fmtBytes(resp.BytesComplete()), fmtBytes(resp.Size), fmtBytes((resp.BytesComplete()-lastBytes)/seconds))
				seconds = 0
				progress += progressPeriod
				lastBytes = resp.BytesComplete()
			}

		case <-resp.Done:
			return
		}
	}
}
