package orchestrator_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/offerscan/catalogue-parser/internal/assembler"
	"github.com/offerscan/catalogue-parser/internal/fetcher"
	"github.com/offerscan/catalogue-parser/internal/listing"
	"github.com/offerscan/catalogue-parser/internal/ocr"
	"github.com/offerscan/catalogue-parser/internal/orchestrator"
	"github.com/offerscan/catalogue-parser/internal/platform"
	"github.com/offerscan/catalogue-parser/internal/platform/models"
	"github.com/offerscan/catalogue-parser/internal/platform/models/modelstesting"
)

const (
	catalogueURL = "https://example.com/catalogues/week-48"
	listingURL   = "https://example.com/markets/kazyon-market"
	pageText     = "حليب المراعي 25.99 جنيه"
)

var errFake = errors.New("fake error")

type fakeClock struct{ now time.Time }

func (c fakeClock) Now() time.Time { return c.now }

type fakeValidator struct {
	rejected map[string]error
}

func (v *fakeValidator) Validate(rawURL string) error {
	if v.rejected == nil {
		return nil
	}
	return v.rejected[rawURL]
}

type fakeResolver struct {
	links  []listing.CatalogueLink
	assets map[string]*listing.Assets
}

func (r *fakeResolver) ResolveListing(ctx context.Context, url string) ([]listing.CatalogueLink, error) {
	if r.links == nil {
		return nil, errFake
	}
	return r.links, nil
}

func (r *fakeResolver) ResolveAssets(ctx context.Context, url string) (*listing.Assets, error) {
	assets, ok := r.assets[url]
	if !ok {
		return nil, fmt.Errorf("no assets for %q: %w", url, errFake)
	}
	return assets, nil
}

type fakeFetcher struct {
	failAll bool
	block   bool
}

func (f *fakeFetcher) FetchAll(ctx context.Context, urls []string) (*fetcher.Result, error) {
	if f.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}

	result := fetcher.Result{}
	for _, url := range urls {
		if f.failAll {
			result.Failed = append(result.Failed, fetcher.FailedAsset{URL: url, Err: errFake})
			continue
		}
		result.Assets = append(result.Assets, fetcher.Asset{URL: url, Body: []byte("asset"), ContentType: "image/jpeg"})
	}
	return &result, nil
}

type fakeAssembler struct {
	pageCount   int
	gotInputs   []string
	assembleErr error
}

func (a *fakeAssembler) Assemble(ctx context.Context, workDir string, inputs []assembler.Input) (*assembler.Catalogue, error) {
	for _, input := range inputs {
		a.gotInputs = append(a.gotInputs, input.Name)
	}
	if a.assembleErr != nil {
		return nil, a.assembleErr
	}

	pdfPath := filepath.Join(workDir, assembler.CanonicalPDFName)
	if err := os.WriteFile(pdfPath, []byte("%PDF-1.4 fake"), 0o644); err != nil {
		return nil, err
	}

	pagesDir := filepath.Join(workDir, "pages")
	if err := os.MkdirAll(pagesDir, 0o755); err != nil {
		return nil, err
	}

	pages := make([]assembler.Page, 0, a.pageCount)
	for ix := 1; ix <= a.pageCount; ix++ {
		path := filepath.Join(pagesDir, fmt.Sprintf("page_%03d.jpg", ix))
		if err := os.WriteFile(path, []byte("raw"), 0o644); err != nil {
			return nil, err
		}
		pages = append(pages, assembler.Page{Index: ix, Path: path})
	}

	return &assembler.Catalogue{
		Pages:    pages,
		PDFPath:  pdfPath,
		FileType: "images",
		PDFSize:  13,
	}, nil
}

type fakeNormalizer struct {
	failPages map[string]bool // keyed by raw file base name
}

func (n *fakeNormalizer) NormalizeFile(ctx context.Context, rawPath, outPath string, keepColor bool) error {
	if n.failPages[filepath.Base(rawPath)] {
		return errFake
	}
	return os.WriteFile(outPath, []byte("normalized"), 0o644)
}

type fakeOCR struct {
	failPages map[string]bool // keyed by image file base name
}

func (o *fakeOCR) ProcessPageFile(ctx context.Context, imagePath string) (ocr.Result, error) {
	if o.failPages[filepath.Base(imagePath)] {
		return ocr.Result{}, errFake
	}
	return ocr.Result{Text: pageText, Confidence: 81.5, Pass: "dense", Language: "ara+eng"}, nil
}

type fakeExtractor struct{}

func (fakeExtractor) Extract(text, catalogueID string, pageIndex int) []models.Product {
	return []models.Product{modelstesting.FakeProduct(func(p *models.Product) {
		p.CatalogueID = catalogueID
		p.PageIndex = pageIndex
	})}
}

type fakeStorage struct {
	mu       sync.Mutex
	jobs     map[string]models.ScrapeJob
	statuses []models.JobStatus
	saved    *models.Catalogue
	products []models.Product
	saveErr  error
}

func newFakeStorage() *fakeStorage {
	return &fakeStorage{jobs: map[string]models.ScrapeJob{}}
}

func (s *fakeStorage) CreateJob(ctx context.Context, job *models.ScrapeJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.ID] = *job
	s.statuses = append(s.statuses, job.Status)
	return nil
}

func (s *fakeStorage) UpdateJob(ctx context.Context, job *models.ScrapeJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.ID] = *job
	s.statuses = append(s.statuses, job.Status)
	return nil
}

func (s *fakeStorage) SaveResult(ctx context.Context, catalogue *models.Catalogue, products []models.Product) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saveErr != nil {
		return s.saveErr
	}
	s.saved = catalogue
	s.products = products
	return nil
}

// distinctStatuses collapses consecutive duplicates from progress updates.
func (s *fakeStorage) distinctStatuses() []models.JobStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	var distinct []models.JobStatus
	for _, status := range s.statuses {
		if len(distinct) == 0 || distinct[len(distinct)-1] != status {
			distinct = append(distinct, status)
		}
	}
	return distinct
}

type testEnv struct {
	orch      *orchestrator.Orchestrator
	storage   *fakeStorage
	fetcher   *fakeFetcher
	assembler *fakeAssembler
	resolver  *fakeResolver
	validator *fakeValidator
	norm      *fakeNormalizer
	ocr       *fakeOCR
	dataDir   string
}

func newTestEnv(t *testing.T, ops ...func(*orchestrator.Config)) *testEnv {
	t.Helper()

	env := &testEnv{
		storage:   newFakeStorage(),
		fetcher:   &fakeFetcher{},
		assembler: &fakeAssembler{pageCount: 2},
		validator: &fakeValidator{},
		norm:      &fakeNormalizer{},
		ocr:       &fakeOCR{},
		dataDir:   t.TempDir(),
		resolver: &fakeResolver{
			assets: map[string]*listing.Assets{
				catalogueURL: {ImageURLs: []string{
					"https://example.com/pages/1.jpg",
					"https://example.com/pages/2.jpg",
				}},
			},
		},
	}

	cfg := orchestrator.Config{
		DataDir:         env.dataDir,
		JobTimeout:      time.Minute,
		PageParallelism: 2,
	}
	for _, op := range ops {
		op(&cfg)
	}

	logger := zerolog.Nop()
	env.orch = orchestrator.NewOrchestrator(
		env.fetcher,
		env.assembler,
		env.norm,
		env.ocr,
		fakeExtractor{},
		env.resolver,
		env.validator,
		env.storage,
		&logger,
		cfg,
		orchestrator.WithClock(fakeClock{now: time.Date(2025, 11, 20, 12, 0, 0, 0, time.UTC)}),
	)

	return env
}

func TestRun(t *testing.T) {
	env := newTestEnv(t)

	job, err := env.orch.Run(context.TODO(), models.IngestionRequest{
		Kind:  models.KindURL,
		URL:   catalogueURL,
		Store: "kazyon",
	})

	require.NoError(t, err, "shouldn't return error")
	require.NotNil(t, job, "should return job")

	assert.Equal(t, models.StatusCompleted, job.Status, "job should complete")
	assert.Equal(t, 2, job.TotalPages, "should count assembled pages")
	assert.Equal(t, 2, job.PagesDownloaded, "should count downloaded pages")
	assert.Equal(t, 2, job.PagesProcessed, "should count processed pages")
	assert.Equal(t, 2, job.ProductsFound, "should count products")
	assert.NotNil(t, job.CatalogueID, "should link catalogue")
	assert.NotNil(t, job.CompletedAt, "should set completion time")

	wantStatuses := []models.JobStatus{
		models.StatusPending,
		models.StatusFetching,
		models.StatusAssembling,
		models.StatusNormalizing,
		models.StatusOCR,
		models.StatusExtracting,
		models.StatusCompleted,
	}
	assert.Equal(t, wantStatuses, env.storage.distinctStatuses(), "should pass through every stage in order")

	require.NotNil(t, env.storage.saved, "should persist catalogue")
	saved := env.storage.saved
	assert.Equal(t, catalogueURL, saved.SourceURL, "should record source url")
	assert.Equal(t, "kazyon", *saved.StoreID, "should record store")
	assert.Equal(t, 2, saved.PageCount, "should record page count")
	assert.Equal(t, 2, saved.OfferCount, "should record offer count")
	assert.True(t, saved.OCRProcessed, "should mark catalogue processed")
	require.Len(t, saved.Pages, 2, "should persist pages")
	assert.Equal(t, pageText, saved.Pages[0].Text, "should persist page text")
	require.Len(t, env.storage.products, 2, "should persist products")
	assert.Equal(t, 1, env.storage.products[0].PageIndex, "products should keep page order")
	assert.Equal(t, 2, env.storage.products[1].PageIndex, "products should keep page order")

	// canonical PDF moved out of the temp work dir
	assert.FileExists(t, filepath.Join(env.dataDir, "catalogues", saved.ID+".pdf"))
}

func TestRunValidationRejected(t *testing.T) {
	env := newTestEnv(t)
	env.validator.rejected = map[string]error{catalogueURL: fetcher.ErrHostNotAllowed}

	job, err := env.orch.Run(context.TODO(), models.IngestionRequest{
		Kind: models.KindURL,
		URL:  catalogueURL,
	})

	require.Error(t, err, "should return error")
	assert.Nil(t, job, "shouldn't create job")
	assert.Equal(t, platform.KindValidation, platform.KindOf(err), "should classify as validation failure")
	assert.Empty(t, env.storage.jobs, "shouldn't persist any job")
}

func TestRunFetchFailure(t *testing.T) {
	env := newTestEnv(t)
	env.fetcher.failAll = true

	job, err := env.orch.Run(context.TODO(), models.IngestionRequest{
		Kind: models.KindURL,
		URL:  catalogueURL,
	})

	require.Error(t, err, "should return error")
	require.NotNil(t, job, "should still return the failed job")

	assert.Equal(t, platform.KindFetch, platform.KindOf(err), "should classify as fetch failure")
	assert.Equal(t, models.StatusFailed, job.Status, "job should fail")
	assert.ErrorIs(t, err, fetcher.ErrAllAssetsFailed, "should report all assets failed")
	require.NotNil(t, job.ErrorMessage, "should record error message")
	assert.Contains(t, *job.ErrorMessage, "fetch_failure", "error message should carry failure kind")
	assert.Nil(t, env.storage.saved, "shouldn't persist catalogue")
}

func TestRunTimeout(t *testing.T) {
	env := newTestEnv(t, func(cfg *orchestrator.Config) {
		cfg.JobTimeout = 50 * time.Millisecond
	})
	env.fetcher.block = true

	job, err := env.orch.Run(context.TODO(), models.IngestionRequest{
		Kind: models.KindURL,
		URL:  catalogueURL,
	})

	require.Error(t, err, "should return error")
	require.NotNil(t, job, "should still return the failed job")

	assert.Equal(t, platform.KindTimeout, platform.KindOf(err), "deadline expiry during fetch should classify as timeout")
	assert.Equal(t, models.StatusFailed, job.Status, "job should fail")
	require.NotNil(t, job.ErrorMessage, "should record error message")
	assert.Contains(t, *job.ErrorMessage, "timeout", "error message should carry failure kind")
}

func TestRunEmptyCatalogue(t *testing.T) {
	env := newTestEnv(t)
	env.assembler.assembleErr = assembler.ErrEmptyCatalogue

	job, err := env.orch.Run(context.TODO(), models.IngestionRequest{
		Kind: models.KindURL,
		URL:  catalogueURL,
	})

	require.Error(t, err, "should return error")
	assert.Equal(t, platform.KindEmptyCatalogue, platform.KindOf(err), "should classify as empty catalogue")
	assert.Equal(t, models.StatusFailed, job.Status, "job should fail")
}

func TestRunPageFailuresDegrade(t *testing.T) {
	env := newTestEnv(t)
	env.norm.failPages = map[string]bool{"page_002.jpg": true}
	env.ocr.failPages = map[string]bool{"norm_001.jpg": true}

	job, err := env.orch.Run(context.TODO(), models.IngestionRequest{
		Kind: models.KindURL,
		URL:  catalogueURL,
	})

	require.NoError(t, err, "page failures shouldn't fail the job")
	assert.Equal(t, models.StatusCompleted, job.Status, "job should complete")
	assert.Equal(t, 2, job.PagesProcessed, "failed pages still count as processed")

	require.NotNil(t, env.storage.saved, "should persist catalogue")
	pages := env.storage.saved.Pages
	require.Len(t, pages, 2)

	assert.True(t, pages[0].OCRFailed, "first page OCR should be marked failed")
	assert.Empty(t, pages[0].Text, "failed page should have no text")
	assert.True(t, pages[1].NormalizeFailed, "second page normalization should be marked failed")
	assert.Equal(t, pageText, pages[1].Text, "degraded page should still be recognized from raw image")

	// only the page which produced text yields products
	require.Len(t, env.storage.products, 1)
	assert.Equal(t, 2, env.storage.products[0].PageIndex)

	require.NotNil(t, job.ErrorMessage, "completed job should carry the degraded page summary")
	assert.Contains(t, *job.ErrorMessage, "ocr_failure (page 1)", "summary should name the OCR failure")
	assert.Contains(t, *job.ErrorMessage, "page_normalization (page 2)", "summary should name the normalization failure")
}

func TestRunSaveFailure(t *testing.T) {
	env := newTestEnv(t)
	env.storage.saveErr = errFake

	job, err := env.orch.Run(context.TODO(), models.IngestionRequest{
		Kind: models.KindURL,
		URL:  catalogueURL,
	})

	require.Error(t, err, "should return error")
	assert.Equal(t, platform.KindPersistence, platform.KindOf(err), "should classify as persistence failure")
	assert.Equal(t, models.StatusFailed, job.Status, "job should fail")

	// moved artifacts are rolled back together with the transaction
	pdfs, readErr := os.ReadDir(filepath.Join(env.dataDir, "catalogues"))
	require.NoError(t, readErr)
	assert.Empty(t, pdfs, "failed save should leave no orphan pdf")
	pages, readErr := os.ReadDir(filepath.Join(env.dataDir, "pages"))
	require.NoError(t, readErr)
	assert.Empty(t, pages, "failed save should leave no orphan page files")
}

func TestRunUpload(t *testing.T) {
	env := newTestEnv(t)
	env.assembler.pageCount = 5

	dir := t.TempDir()
	names := []string{"c.jpg", "a.jpg", "e.jpg", "b.jpg", "d.jpg"}
	files := make([]models.UploadedFile, 0, len(names))
	for _, name := range names {
		path := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(path, []byte(name), 0o644))
		files = append(files, models.UploadedFile{Name: name, Path: path})
	}

	catalogue, err := env.orch.RunUpload(context.TODO(), models.IngestionRequest{
		Kind:  models.KindUpload,
		Files: files,
	})

	require.NoError(t, err, "shouldn't return error")
	require.NotNil(t, catalogue, "should return catalogue")

	assert.Equal(t, names, env.assembler.gotInputs, "upload order is the authoritative page order")
	assert.Equal(t, models.ManualUploadSource, catalogue.SourceURL, "should mark manual upload source")
	assert.Equal(t, 5, catalogue.PageCount, "should count pages")
	assert.Empty(t, env.storage.jobs, "upload path shouldn't create a job")
	require.NotNil(t, env.storage.saved, "should persist catalogue")
}

func TestRunUploadRejectsUnsupportedFile(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.orch.RunUpload(context.TODO(), models.IngestionRequest{
		Kind:  models.KindUpload,
		Files: []models.UploadedFile{{Name: "notes.txt", Path: "/tmp/notes.txt"}},
	})

	require.Error(t, err, "should return error")
	assert.Equal(t, platform.KindValidation, platform.KindOf(err), "should classify as validation failure")
}

func TestRunListing(t *testing.T) {
	env := newTestEnv(t)

	okURL := "https://example.com/catalogues/week-48"
	brokenURL := "https://example.com/catalogues/gone"
	otherURL := "https://example.com/catalogues/week-47"

	env.resolver.links = []listing.CatalogueLink{
		{URL: okURL, Title: "Weekly offers", Store: "kazyon"},
		{URL: brokenURL, Title: "Removed offers", Store: "kazyon"},
		{URL: otherURL, Title: "عروض الاسبوع", Store: "kazyon"},
	}
	env.resolver.assets[otherURL] = &listing.Assets{PDFURL: "https://example.com/catalogues/week-47.pdf"}

	result, err := env.orch.RunListing(context.TODO(), models.IngestionRequest{
		Kind:     models.KindStoreListing,
		StoreURL: listingURL,
	})

	require.NoError(t, err, "fan-out itself shouldn't fail")
	assert.Equal(t, 3, result.Total, "should count all discovered catalogues")
	assert.Equal(t, 2, result.Succeeded, "should count succeeded sub-jobs")
	assert.Equal(t, 1, result.Failed, "should count failed sub-jobs")
	assert.Len(t, result.JobIDs, 3, "every sub-run should get a job")

	// every discovered catalogue got its own tracked job
	statuses := map[models.JobStatus]int{}
	for _, job := range env.storage.jobs {
		statuses[job.Status]++
	}
	assert.Equal(t, 2, statuses[models.StatusCompleted], "should complete two jobs")
	assert.Equal(t, 1, statuses[models.StatusFailed], "should fail one job")
}

func TestRunListingNoCatalogues(t *testing.T) {
	env := newTestEnv(t)
	env.resolver.links = []listing.CatalogueLink{}

	_, err := env.orch.RunListing(context.TODO(), models.IngestionRequest{
		Kind:     models.KindStoreListing,
		StoreURL: listingURL,
	})

	require.Error(t, err, "should return error")
	assert.Equal(t, platform.KindFetch, platform.KindOf(err), "should classify as fetch failure")
}
