package workflow_test

import (
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/airbusgeo/landsat-fetcher/common"
	"github.com/airbusgeo/landsat-fetcher/downloader"
	"github.com/airbusgeo/landsat-fetcher/interface/m2m"
	"github.com/airbusgeo/landsat-fetcher/workflow"
)

var _ = Describe("Workflow", func() {
	var outputDir string
	var query common.Query
	var cfg workflow.Config

	newClient := func(token string) *m2m.Client {
		return m2m.NewClient(server.URL+"/api/", m2m.Credentials{Username: "user", Token: token})
	}

	BeforeEach(func() {
		var err error
		outputDir, err = os.MkdirTemp("", "fetcher-out-")
		Expect(err).NotTo(HaveOccurred())

		query = common.Query{
			Area:          common.BoundingBox{MinLon: 1.2, MinLat: 43.4, MaxLon: 1.6, MaxLat: 43.8},
			StartDate:     time.Date(2022, 1, 1, 0, 0, 0, 0, time.UTC),
			EndDate:       time.Date(2022, 3, 1, 0, 0, 0, 0, time.UTC),
			MaxCloudCover: 20,
			Sensors:       []common.Sensor{common.L8, common.L9},
		}
		cfg = workflow.Config{
			OutputDir:              outputDir,
			MaxConcurrentDownloads: 2,
			DeleteArchive:          true,
			MaxAttempts:            2,
			Backoff:                time.Millisecond,
		}
	})

	AfterEach(func() {
		os.RemoveAll(outputDir)
	})

	It("downloads, extracts and reports every scene", func() {
		progress := &downloader.Progress{}
		cfg.Progress = progress
		logoutsBefore := atomic.LoadInt32(&logouts)

		outcomes, err := workflow.Run(ctx, newClient("goodtoken"), query, cfg)
		Expect(err).NotTo(HaveOccurred())
		Expect(outcomes).To(HaveLen(2))

		// outcomes are sorted by scene id
		Expect(outcomes[0].SceneID).To(Equal(goodEntityID))
		Expect(outcomes[1].SceneID).To(Equal(deadEntityID))

		good := outcomes[0]
		Expect(good.Status).To(Equal(common.OutcomeSuccess))
		sceneDir := filepath.Join(outputDir, goodDisplayID)
		Expect(good.Files).To(ConsistOf(sceneDir))
		Expect(filepath.Join(sceneDir, bandFileName)).To(BeAnExistingFile())
		Expect(filepath.Join(outputDir, goodDisplayID+".tar.gz")).NotTo(BeAnExistingFile())

		dead := outcomes[1]
		Expect(dead.Status).To(Equal(common.OutcomeFailed))
		Expect(dead.Message).NotTo(BeEmpty())

		done, total, _ := progress.Snapshot()
		Expect(total).To(Equal(int64(2)))
		Expect(done).To(Equal(int64(1)))

		Expect(atomic.LoadInt32(&logouts)).To(Equal(logoutsBefore + 1))
	})

	It("fails fast on bad credentials", func() {
		outcomes, err := workflow.Run(ctx, newClient("badtoken"), query, cfg)
		Expect(outcomes).To(BeEmpty())
		var authErr m2m.AuthError
		Expect(errors.As(err, &authErr)).To(BeTrue())
	})

	It("returns no outcome when the catalog is empty", func() {
		query.Sensors = []common.Sensor{common.L5}
		outcomes, err := workflow.Run(ctx, newClient("goodtoken"), query, cfg)
		Expect(err).NotTo(HaveOccurred())
		Expect(outcomes).To(BeEmpty())
	})

	It("rejects an invalid concurrency", func() {
		cfg.MaxConcurrentDownloads = 0
		_, err := workflow.Run(ctx, newClient("goodtoken"), query, cfg)
		Expect(err).To(HaveOccurred())
	})
})
