// Package orchestrator drives one catalogue ingestion through the stage
// pipeline (fetch, assemble, normalize, OCR, extract) as an explicit state
// machine with partial-failure semantics. It is the only component allowed
// to mark a job failed; lower components return typed failures.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"github.com/offerscan/catalogue-parser/internal/assembler"
	"github.com/offerscan/catalogue-parser/internal/fetcher"
	"github.com/offerscan/catalogue-parser/internal/listing"
	"github.com/offerscan/catalogue-parser/internal/ocr"
	"github.com/offerscan/catalogue-parser/internal/platform"
	"github.com/offerscan/catalogue-parser/internal/platform/models"
)

// AssetFetcher downloads page assets with retries and a failure manifest.
type AssetFetcher interface {
	FetchAll(ctx context.Context, urls []string) (*fetcher.Result, error)
}

// PageAssembler builds the ordered page sequence and canonical PDF.
type PageAssembler interface {
	Assemble(ctx context.Context, workDir string, inputs []assembler.Input) (*assembler.Catalogue, error)
}

// PageNormalizer prepares one raw page image for OCR.
type PageNormalizer interface {
	NormalizeFile(ctx context.Context, rawPath, outPath string, keepColor bool) error
}

// OCRAdapter extracts text from one normalized page image.
type OCRAdapter interface {
	ProcessPageFile(ctx context.Context, imagePath string) (ocr.Result, error)
}

// ProductExtractor parses product candidates from page text.
type ProductExtractor interface {
	Extract(text, catalogueID string, pageIndex int) []models.Product
}

// SourceResolver resolves listing and catalogue pages into asset URLs.
type SourceResolver interface {
	ResolveListing(ctx context.Context, listingURL string) ([]listing.CatalogueLink, error)
	ResolveAssets(ctx context.Context, catalogueURL string) (*listing.Assets, error)
}

// URLValidator rejects disallowed source URLs before any work starts.
type URLValidator interface {
	Validate(rawURL string) error
}

// Storage persists jobs and catalogue results.
type Storage interface {
	CreateJob(ctx context.Context, job *models.ScrapeJob) error
	UpdateJob(ctx context.Context, job *models.ScrapeJob) error
	SaveResult(ctx context.Context, catalogue *models.Catalogue, products []models.Product) error
}

// Config holds orchestration limits and artifact locations.
type Config struct {
	DataDir         string
	JobTimeout      time.Duration
	PageParallelism int
}

// Orchestrator coordinates the ingestion pipeline.
type Orchestrator struct {
	fetcher    AssetFetcher
	assembler  PageAssembler
	normalizer PageNormalizer
	ocr        OCRAdapter
	extractor  ProductExtractor
	resolver   SourceResolver
	validator  URLValidator
	storage    Storage
	logger     *zerolog.Logger
	clock      Clock
	config     Config
}

// Option is custom configuration of Orchestrator.
type Option func(o *Orchestrator)

// NewOrchestrator returns new Orchestrator.
func NewOrchestrator(
	assetFetcher AssetFetcher,
	pageAssembler PageAssembler,
	pageNormalizer PageNormalizer,
	ocrAdapter OCRAdapter,
	productExtractor ProductExtractor,
	resolver SourceResolver,
	validator URLValidator,
	storage Storage,
	logger *zerolog.Logger,
	config Config,
	ops ...Option,
) *Orchestrator {
	orch := &Orchestrator{
		fetcher:    assetFetcher,
		assembler:  pageAssembler,
		normalizer: pageNormalizer,
		ocr:        ocrAdapter,
		extractor:  productExtractor,
		resolver:   resolver,
		validator:  validator,
		storage:    storage,
		logger:     logger,
		clock:      systemClock{},
		config:     config,
	}

	if orch.config.PageParallelism <= 0 {
		orch.config.PageParallelism = 2
	}

	for _, op := range ops {
		op(orch)
	}

	return orch
}

// WithClock sets Orchestrator's custom Clock.
func WithClock(clock Clock) Option {
	return func(o *Orchestrator) {
		o.clock = clock
	}
}

// Handle dispatches one ingestion request by kind.
func (o *Orchestrator) Handle(ctx context.Context, req models.IngestionRequest) error {
	switch req.Kind {
	case models.KindURL:
		_, err := o.Run(ctx, req)
		return err
	case models.KindStoreListing:
		_, err := o.RunListing(ctx, req)
		return err
	case models.KindUpload:
		_, err := o.RunUpload(ctx, req)
		return err
	default:
		return platform.NewFailure(platform.KindValidation,
			fmt.Errorf("unknown request kind %q", req.Kind))
	}
}

// Run ingests one catalogue URL as a tracked scrape job. The returned job
// carries final counters and, on failure, the classified error message.
func (o *Orchestrator) Run(ctx context.Context, req models.IngestionRequest) (*models.ScrapeJob, error) {
	if req.Kind != models.KindURL {
		return nil, platform.NewFailure(platform.KindValidation,
			fmt.Errorf("expected kind %q, got %q", models.KindURL, req.Kind))
	}
	if err := o.validator.Validate(req.URL); err != nil {
		return nil, platform.NewFailure(platform.KindValidation, err)
	}

	store := req.Store
	if store == "" {
		store = listing.StoreFromURL(req.URL)
	}

	now := o.clock.Now()
	job := &models.ScrapeJob{
		ID:        uuid.NewString(),
		SourceURL: req.URL,
		Store:     store,
		Status:    models.StatusPending,
		CreatedAt: now,
		StartedAt: &now,
	}

	if err := o.storage.CreateJob(ctx, job); err != nil {
		return nil, platform.NewFailure(platform.KindPersistence, err)
	}

	o.logger.Info().
		Str("jobId", job.ID).
		Str("sourceUrl", job.SourceURL).
		Msg("ingestion started")

	jobCtx, cancel := context.WithTimeout(ctx, o.config.JobTimeout)
	defer cancel()

	pipelineRun := newRun(o, job, req)
	catalogue, _, err := pipelineRun.execute(jobCtx)

	return job, o.finishJob(ctx, job, catalogue, err)
}

// finishJob records the terminal state of a job. It uses the parent context
// so a result survives job-timeout cancellation.
func (o *Orchestrator) finishJob(ctx context.Context, job *models.ScrapeJob, catalogue *models.Catalogue, runErr error) error {
	now := o.clock.Now()
	job.CompletedAt = &now
	job.DurationSeconds = lo.ToPtr(now.Sub(job.CreatedAt).Seconds())

	if runErr != nil {
		failure := classifyFailure(runErr)
		job.Status = models.StatusFailed
		job.ErrorMessage = lo.ToPtr(failure.Error())

		if err := o.storage.UpdateJob(ctx, job); err != nil {
			o.logger.Error().Err(err).Str("jobId", job.ID).Msg("can't persist failed job")
		}

		o.logger.Warn().
			Str("jobId", job.ID).
			Str("kind", string(failure.Kind)).
			Err(failure.Err).
			Msg("ingestion failed")

		return failure
	}

	if err := checkTransition(job.Status, models.StatusCompleted); err != nil {
		return platform.NewFailure(platform.KindPersistence, err)
	}
	job.Status = models.StatusCompleted
	if catalogue != nil {
		job.CatalogueID = lo.ToPtr(catalogue.ID)
		job.PDFPath = lo.ToPtr(catalogue.PDFPath)
	}

	if err := o.storage.UpdateJob(ctx, job); err != nil {
		return platform.NewFailure(platform.KindPersistence, err)
	}

	o.logger.Info().
		Str("jobId", job.ID).
		Int("pages", job.PagesProcessed).
		Int("products", job.ProductsFound).
		Msg("ingestion completed")

	return nil
}

// RunListing resolves a store-listing page into catalogue URLs and ingests
// each as its own scrape job. Sub-job failures do not abort the fan-out.
func (o *Orchestrator) RunListing(ctx context.Context, req models.IngestionRequest) (*models.ListingResult, error) {
	if req.Kind != models.KindStoreListing {
		return nil, platform.NewFailure(platform.KindValidation,
			fmt.Errorf("expected kind %q, got %q", models.KindStoreListing, req.Kind))
	}
	if err := o.validator.Validate(req.StoreURL); err != nil {
		return nil, platform.NewFailure(platform.KindValidation, err)
	}

	links, err := o.resolver.ResolveListing(ctx, req.StoreURL)
	if err != nil {
		return nil, platform.NewFailure(platform.KindFetch, err)
	}
	if len(links) == 0 {
		return nil, platform.NewFailure(platform.KindFetch,
			fmt.Errorf("no catalogues found on %q", req.StoreURL))
	}

	result := &models.ListingResult{Total: len(links)}

	for _, link := range links {
		subReq := req
		subReq.Kind = models.KindURL
		subReq.URL = link.URL
		subReq.Title = link.Title
		if subReq.Store == "" {
			subReq.Store = link.Store
		}

		job, err := o.Run(ctx, subReq)
		if job != nil {
			result.JobIDs = append(result.JobIDs, job.ID)
		}
		if err != nil {
			result.Failed++
			continue
		}
		result.Succeeded++
	}

	o.logger.Info().
		Str("storeUrl", req.StoreURL).
		Int("total", result.Total).
		Int("succeeded", result.Succeeded).
		Int("failed", result.Failed).
		Msg("listing fan-out finished")

	return result, nil
}

// RunUpload ingests user-uploaded files synchronously through the same stage
// pipeline, producing a Catalogue without a ScrapeJob.
func (o *Orchestrator) RunUpload(ctx context.Context, req models.IngestionRequest) (*models.Catalogue, error) {
	if req.Kind != models.KindUpload {
		return nil, platform.NewFailure(platform.KindValidation,
			fmt.Errorf("expected kind %q, got %q", models.KindUpload, req.Kind))
	}
	if len(req.Files) == 0 {
		return nil, platform.NewFailure(platform.KindValidation, errors.New("no files uploaded"))
	}
	for _, file := range req.Files {
		if !supportedUploadName(file.Name) {
			return nil, platform.NewFailure(platform.KindValidation,
				fmt.Errorf("unsupported file type: %q", file.Name))
		}
	}

	jobCtx, cancel := context.WithTimeout(ctx, o.config.JobTimeout)
	defer cancel()

	pipelineRun := newRun(o, nil, req)
	catalogue, _, err := pipelineRun.execute(jobCtx)
	if err != nil {
		return nil, classifyFailure(err)
	}

	o.logger.Info().
		Str("catalogueId", catalogue.ID).
		Int("pages", catalogue.PageCount).
		Int("products", catalogue.OfferCount).
		Msg("upload ingestion completed")

	return catalogue, nil
}

// classifyFailure maps an arbitrary pipeline error to a typed Failure.
// Deadline expiry wins over any stage classification wrapped around it: the
// stage an expired context surfaces in is incidental.
func classifyFailure(err error) *platform.Failure {
	if errors.Is(err, context.DeadlineExceeded) {
		return platform.NewFailure(platform.KindTimeout, err)
	}
	var failure *platform.Failure
	if errors.As(err, &failure) {
		return failure
	}
	if errors.Is(err, assembler.ErrEmptyCatalogue) {
		return platform.NewFailure(platform.KindEmptyCatalogue, err)
	}
	return platform.NewFailure(platform.KindFetch, err)
}

func supportedUploadName(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".pdf", ".jpg", ".jpeg", ".png", ".webp", ".tiff", ".bmp":
		return true
	default:
		return false
	}
}

func containsArabic(s string) bool {
	for _, r := range s {
		if unicode.Is(unicode.Arabic, r) {
			return true
		}
	}
	return false
}
