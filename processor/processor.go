package processor

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/mholt/archiver"

	"github.com/airbusgeo/landsat-fetcher/common"
	"github.com/airbusgeo/landsat-fetcher/service/log"
)

// ExtractionError demotes a single archive asset; sibling assets of the same
// scene keep their status.
type ExtractionError struct {
	Archive string
	Err     error
}

func (e ExtractionError) Error() string { return fmt.Sprintf("extract %s: %v", e.Archive, e.Err) }
func (e ExtractionError) Unwrap() error { return e.Err }

type Options struct {
	OutputDir string
	// DeleteArchive removes a product archive after its extraction completed.
	// An archive whose extraction failed is always kept.
	DeleteArchive bool
}

// ProcessScene post-processes the download results of one scene and folds
// them into the scene outcome. Archive assets are extracted into the scene
// subdirectory; band assets are already at their final path.
func ProcessScene(ctx context.Context, scene common.SceneRecord, results []common.DownloadResult, opts Options) common.SceneOutcome {
	outcome := common.SceneOutcome{SceneID: scene.EntityID, DisplayID: scene.DisplayID}

	if len(results) == 0 {
		outcome.Status = common.OutcomeFailed
		outcome.Message = "no resolvable assets"
		return outcome
	}

	usable := 0
	var failures []string
	for _, result := range results {
		if result.Status != common.DownloadSuccess {
			failures = append(failures, fmt.Sprintf("%s: %s", result.Asset.EntityID, result.Message))
			continue
		}
		if result.Asset.Kind != common.AssetArchive {
			usable++
			outcome.Files = append(outcome.Files, result.LocalPath)
			continue
		}

		sceneDir := filepath.Join(opts.OutputDir, scene.DisplayID)
		if err := extract(result.LocalPath, sceneDir); err != nil {
			log.Logger(ctx).Sugar().Warnf("scene %s: %v", scene.DisplayID, err)
			failures = append(failures, err.Error())
			continue
		}
		usable++
		outcome.Files = append(outcome.Files, sceneDir)
		log.Logger(ctx).Sugar().Infof("extracted %s", filepath.Base(result.LocalPath))

		if opts.DeleteArchive {
			if err := os.Remove(result.LocalPath); err != nil {
				log.Logger(ctx).Sugar().Warnf("delete archive %s: %v", result.LocalPath, err)
			}
		}
	}

	switch {
	case usable == len(results):
		outcome.Status = common.OutcomeSuccess
	case usable > 0:
		outcome.Status = common.OutcomePartial
	default:
		outcome.Status = common.OutcomeFailed
	}
	outcome.Message = strings.Join(failures, "; ")
	return outcome
}

// extract unarchives into a temporary directory and moves the entries into
// destDir, so a corrupt archive never leaves a partial extraction behind.
func extract(archivePath, destDir string) error {
	if err := os.MkdirAll(destDir, 0755); err != nil {
		return ExtractionError{Archive: filepath.Base(archivePath), Err: err}
	}
	tmpdir, err := os.MkdirTemp(destDir, ".extract-")
	if err != nil {
		return ExtractionError{Archive: filepath.Base(archivePath), Err: err}
	}
	defer os.RemoveAll(tmpdir)

	if err := archiver.Unarchive(archivePath, tmpdir); err != nil {
		return ExtractionError{Archive: filepath.Base(archivePath), Err: err}
	}
	entries, err := os.ReadDir(tmpdir)
	if err != nil {
		return ExtractionError{Archive: filepath.Base(archivePath), Err: err}
	}
	if len(entries) == 0 {
		return ExtractionError{Archive: filepath.Base(archivePath), Err: fmt.Errorf("empty archive")}
	}
	for _, entry := range entries {
		if err := os.Rename(filepath.Join(tmpdir, entry.Name()), filepath.Join(destDir, entry.Name())); err != nil {
			return ExtractionError{Archive: filepath.Base(archivePath), Err: err}
		}
	}
	return nil
}
