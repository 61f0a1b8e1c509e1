package processor

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mholt/archiver"

	"github.com/airbusgeo/landsat-fetcher/common"
)

const testDisplayID = "LC08_L2SP_042034_20220104_20220113_02_T1"

func testScene() common.SceneRecord {
	return common.SceneRecord{EntityID: "E1", DisplayID: testDisplayID, Sensor: common.L8}
}

// makeArchive builds a real product archive holding one band file.
func makeArchive(t *testing.T, dir string) (archivePath, bandName string) {
	t.Helper()
	bandName = testDisplayID + "_SR_B4.TIF"
	srcDir := t.TempDir()
	bandPath := filepath.Join(srcDir, bandName)
	if err := os.WriteFile(bandPath, []byte("not really a tiff"), 0644); err != nil {
		t.Fatal(err)
	}
	archivePath = filepath.Join(dir, testDisplayID+".tar.gz")
	if err := archiver.Archive([]string{bandPath}, archivePath); err != nil {
		t.Fatalf("archive: %v", err)
	}
	return archivePath, bandName
}

func TestProcessSceneArchive(t *testing.T) {
	outputDir := t.TempDir()
	archivePath, bandName := makeArchive(t, outputDir)

	results := []common.DownloadResult{{
		Asset:     common.AssetRef{SceneID: "E1", EntityID: "E1", Kind: common.AssetArchive},
		Status:    common.DownloadSuccess,
		LocalPath: archivePath,
	}}
	outcome := ProcessScene(context.Background(), testScene(), results, Options{OutputDir: outputDir, DeleteArchive: true})

	if outcome.Status != common.OutcomeSuccess {
		t.Fatalf("expecting success, got %s (%s)", outcome.Status, outcome.Message)
	}
	sceneDir := filepath.Join(outputDir, testDisplayID)
	if len(outcome.Files) != 1 || outcome.Files[0] != sceneDir {
		t.Errorf("unexpected files %v", outcome.Files)
	}
	if _, err := os.Stat(filepath.Join(sceneDir, bandName)); err != nil {
		t.Errorf("band file not extracted: %v", err)
	}
	if _, err := os.Stat(archivePath); !os.IsNotExist(err) {
		t.Error("archive must be deleted after a successful extraction")
	}
}

func TestProcessSceneKeepArchive(t *testing.T) {
	outputDir := t.TempDir()
	archivePath, _ := makeArchive(t, outputDir)

	results := []common.DownloadResult{{
		Asset:     common.AssetRef{SceneID: "E1", EntityID: "E1", Kind: common.AssetArchive},
		Status:    common.DownloadSuccess,
		LocalPath: archivePath,
	}}
	outcome := ProcessScene(context.Background(), testScene(), results, Options{OutputDir: outputDir})

	if outcome.Status != common.OutcomeSuccess {
		t.Fatalf("expecting success, got %s (%s)", outcome.Status, outcome.Message)
	}
	if _, err := os.Stat(archivePath); err != nil {
		t.Errorf("archive must be kept: %v", err)
	}
}

func TestProcessSceneCorruptArchive(t *testing.T) {
	outputDir := t.TempDir()
	archivePath := filepath.Join(outputDir, testDisplayID+".tar.gz")
	if err := os.WriteFile(archivePath, []byte("garbage"), 0644); err != nil {
		t.Fatal(err)
	}

	results := []common.DownloadResult{{
		Asset:     common.AssetRef{SceneID: "E1", EntityID: "E1", Kind: common.AssetArchive},
		Status:    common.DownloadSuccess,
		LocalPath: archivePath,
	}}
	outcome := ProcessScene(context.Background(), testScene(), results, Options{OutputDir: outputDir, DeleteArchive: true})

	if outcome.Status != common.OutcomeFailed {
		t.Fatalf("expecting failed, got %s", outcome.Status)
	}
	// a corrupt archive is kept for inspection
	if _, err := os.Stat(archivePath); err != nil {
		t.Errorf("failed archive must not be deleted: %v", err)
	}
	if entries, err := os.ReadDir(filepath.Join(outputDir, testDisplayID)); err == nil {
		for _, entry := range entries {
			if !strings.HasPrefix(entry.Name(), ".extract-") {
				t.Errorf("partial extraction left behind: %s", entry.Name())
			}
		}
	}
}

func TestProcessScenePartial(t *testing.T) {
	outputDir := t.TempDir()
	results := []common.DownloadResult{
		{
			Asset:     common.AssetRef{SceneID: "E1", EntityID: "SEC4", Kind: common.AssetBand},
			Status:    common.DownloadSuccess,
			LocalPath: filepath.Join(outputDir, testDisplayID, "B4.TIF"),
		},
		{
			Asset:   common.AssetRef{SceneID: "E1", EntityID: "SEC5", Kind: common.AssetBand},
			Status:  common.DownloadRetriedThenFailed,
			Message: "gave up after 3 attempts",
		},
	}
	outcome := ProcessScene(context.Background(), testScene(), results, Options{OutputDir: outputDir})

	if outcome.Status != common.OutcomePartial {
		t.Fatalf("expecting partial, got %s", outcome.Status)
	}
	if len(outcome.Files) != 1 {
		t.Errorf("unexpected files %v", outcome.Files)
	}
	if !strings.Contains(outcome.Message, "SEC5") {
		t.Errorf("message must name the failed asset: %s", outcome.Message)
	}
}

func TestProcessSceneAllFailed(t *testing.T) {
	results := []common.DownloadResult{{
		Asset:   common.AssetRef{SceneID: "E1", EntityID: "SEC4", Kind: common.AssetBand},
		Status:  common.DownloadFailed,
		Message: "404",
	}}
	outcome := ProcessScene(context.Background(), testScene(), results, Options{OutputDir: t.TempDir()})
	if outcome.Status != common.OutcomeFailed {
		t.Errorf("expecting failed, got %s", outcome.Status)
	}
}

func TestProcessSceneNoAssets(t *testing.T) {
	outcome := ProcessScene(context.Background(), testScene(), nil, Options{OutputDir: t.TempDir()})
	if outcome.Status != common.OutcomeFailed {
		t.Errorf("expecting failed, got %s", outcome.Status)
	}
	if !strings.Contains(outcome.Message, "no resolvable assets") {
		t.Errorf("unexpected message %s", outcome.Message)
	}
}
