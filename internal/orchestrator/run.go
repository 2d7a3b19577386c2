package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"

	"github.com/offerscan/catalogue-parser/internal/assembler"
	"github.com/offerscan/catalogue-parser/internal/fetcher"
	"github.com/offerscan/catalogue-parser/internal/platform"
	"github.com/offerscan/catalogue-parser/internal/platform/models"
)

// run is the per-invocation pipeline state. job is nil on the synchronous
// upload path, which shares the stages but skips job tracking.
type run struct {
	o           *Orchestrator
	job         *models.ScrapeJob
	req         models.IngestionRequest
	catalogueID string
	workDir     string

	mu         sync.Mutex
	pageErrors []*platform.Failure
}

func newRun(o *Orchestrator, job *models.ScrapeJob, req models.IngestionRequest) *run {
	return &run{
		o:           o,
		job:         job,
		req:         req,
		catalogueID: uuid.NewString(),
	}
}

// execute drives the stage pipeline. The returned error is always fatal to
// the whole run; page-level failures accumulate in pageErrors instead.
func (r *run) execute(ctx context.Context) (*models.Catalogue, []models.Product, error) {
	workDir, err := os.MkdirTemp("", "catalogue-*")
	if err != nil {
		return nil, nil, platform.NewFailure(platform.KindPersistence,
			fmt.Errorf("can't create working directory: %w", err))
	}
	r.workDir = workDir
	defer os.RemoveAll(workDir)

	if err := r.transition(ctx, models.StatusFetching); err != nil {
		return nil, nil, err
	}
	inputs, err := r.acquire(ctx)
	if err != nil {
		return nil, nil, err
	}

	if err := r.transition(ctx, models.StatusAssembling); err != nil {
		return nil, nil, err
	}
	assembled, err := r.o.assembler.Assemble(ctx, workDir, inputs)
	if err != nil {
		if ctx.Err() != nil {
			return nil, nil, ctx.Err()
		}
		if errors.Is(err, assembler.ErrEmptyCatalogue) {
			return nil, nil, platform.NewFailure(platform.KindEmptyCatalogue, err)
		}
		return nil, nil, platform.NewFailure(platform.KindValidation, err)
	}

	// local raster pages are the page-count source of truth from here on
	r.progress(ctx, func(job *models.ScrapeJob) {
		job.TotalPages = len(assembled.Pages)
		job.PagesDownloaded = len(assembled.Pages)
	})

	if err := r.transition(ctx, models.StatusNormalizing); err != nil {
		return nil, nil, err
	}
	pages := r.normalizePages(ctx, assembled.Pages)
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	if err := r.transition(ctx, models.StatusOCR); err != nil {
		return nil, nil, err
	}
	r.recognizePages(ctx, pages)
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	if err := r.transition(ctx, models.StatusExtracting); err != nil {
		return nil, nil, err
	}
	products := r.extractProducts(pages)

	r.progress(ctx, func(job *models.ScrapeJob) {
		job.ProductsFound = len(products)
	})

	if summary := r.degradedSummary(); summary != "" {
		r.o.logger.Warn().
			Str("catalogueId", r.catalogueID).
			Str("pageFailures", summary).
			Msg("catalogue completed with degraded pages")
		r.progress(ctx, func(job *models.ScrapeJob) {
			job.ErrorMessage = lo.ToPtr(summary)
		})
	}

	catalogue, err := r.buildCatalogue(assembled, pages, len(products))
	if err != nil {
		return nil, nil, err
	}

	if err := r.o.storage.SaveResult(ctx, catalogue, products); err != nil {
		r.removeArtifacts(catalogue)
		return nil, nil, platform.NewFailure(platform.KindPersistence, err)
	}

	return catalogue, products, nil
}

// acquire resolves and downloads the run's inputs in authoritative order.
func (r *run) acquire(ctx context.Context) ([]assembler.Input, error) {
	if r.req.Kind == models.KindUpload {
		return r.readUploads()
	}

	assets, err := r.o.resolver.ResolveAssets(ctx, r.req.URL)
	if err != nil {
		return nil, platform.NewFailure(platform.KindFetch, err)
	}

	urls := assets.ImageURLs
	if assets.PDFURL != "" {
		urls = []string{assets.PDFURL}
	}
	if len(urls) == 0 {
		return nil, platform.NewFailure(platform.KindFetch,
			fmt.Errorf("no downloadable assets found at %q", r.req.URL))
	}

	r.progress(ctx, func(job *models.ScrapeJob) {
		job.TotalPages = len(urls)
	})

	result, err := r.o.fetcher.FetchAll(ctx, urls)
	if err != nil {
		return nil, platform.NewFailure(platform.KindFetch, err)
	}

	for _, failed := range result.Failed {
		r.o.logger.Warn().
			Str("url", failed.URL).
			Err(failed.Err).
			Msg("asset download failed")
	}

	// partial success policy: proceed when at least one asset arrived
	if len(result.Assets) == 0 {
		return nil, platform.NewFailure(platform.KindFetch,
			fmt.Errorf("%w: %d of %d", fetcher.ErrAllAssetsFailed, len(result.Failed), len(urls)))
	}

	r.progress(ctx, func(job *models.ScrapeJob) {
		job.PagesDownloaded = len(result.Assets)
	})

	inputs := make([]assembler.Input, 0, len(result.Assets))
	for _, asset := range result.Assets {
		inputs = append(inputs, assembler.Input{Name: asset.URL, Body: asset.Body})
	}

	return inputs, nil
}

func (r *run) readUploads() ([]assembler.Input, error) {
	inputs := make([]assembler.Input, 0, len(r.req.Files))
	for _, file := range r.req.Files {
		body, err := os.ReadFile(file.Path)
		if err != nil {
			return nil, platform.NewFailure(platform.KindValidation,
				fmt.Errorf("can't read uploaded file %q: %w", file.Name, err))
		}
		inputs = append(inputs, assembler.Input{Name: file.Name, Body: body})
	}
	return inputs, nil
}

// normalizePages runs the normalizer over all pages with bounded
// parallelism. A page failing normalization degrades to its raw image.
func (r *run) normalizePages(ctx context.Context, assembled []assembler.Page) []models.CataloguePage {
	pages := make([]models.CataloguePage, len(assembled))

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(r.o.config.PageParallelism)

	for ix, page := range assembled {
		group.Go(func() error {
			normalizedPath := filepath.Join(filepath.Dir(page.Path), fmt.Sprintf("norm_%03d.jpg", page.Index))

			record := models.CataloguePage{
				CatalogueID:    r.catalogueID,
				Index:          page.Index,
				RawPath:        page.Path,
				NormalizedPath: normalizedPath,
			}

			err := r.o.normalizer.NormalizeFile(groupCtx, page.Path, normalizedPath, r.req.KeepColor)
			if err != nil && groupCtx.Err() == nil {
				record.NormalizeFailed = true
				record.NormalizedPath = page.Path
				r.recordPageFailure(platform.NewPageFailure(platform.KindPageNormalization, page.Index, err))
			}

			pages[ix] = record
			return groupCtx.Err()
		})
	}

	_ = group.Wait()
	return pages
}

// recognizePages runs OCR over all pages with bounded parallelism,
// recording per-page failures and advancing the processed counter.
func (r *run) recognizePages(ctx context.Context, pages []models.CataloguePage) {
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(r.o.config.PageParallelism)

	for ix := range pages {
		group.Go(func() error {
			page := &pages[ix]

			result, err := r.o.ocr.ProcessPageFile(groupCtx, page.NormalizedPath)
			if err != nil {
				if groupCtx.Err() != nil {
					return groupCtx.Err()
				}
				page.OCRFailed = true
				r.recordPageFailure(platform.NewPageFailure(platform.KindOCR, page.Index, err))
			} else {
				page.Text = result.Text
				page.OCRConfidence = result.Confidence
				page.OCRPass = result.Pass
				page.OCRLanguage = result.Language
			}

			r.progress(groupCtx, func(job *models.ScrapeJob) {
				job.PagesProcessed++
			})

			return nil
		})
	}

	_ = group.Wait()
}

// extractProducts walks pages in index order so product back-references are
// ordered independently of OCR completion order.
func (r *run) extractProducts(pages []models.CataloguePage) []models.Product {
	var products []models.Product
	for ix := range pages {
		if pages[ix].Text == "" {
			continue
		}
		products = append(products, r.o.extractor.Extract(pages[ix].Text, r.catalogueID, pages[ix].Index)...)
	}
	return products
}

// buildCatalogue materializes the Catalogue record and moves artifacts from
// the working directory to their stable locations under DataDir.
func (r *run) buildCatalogue(assembled *assembler.Catalogue, pages []models.CataloguePage, productCount int) (*models.Catalogue, error) {
	finalPDF := filepath.Join(r.o.config.DataDir, "catalogues", r.catalogueID+".pdf")
	if err := moveFile(assembled.PDFPath, finalPDF); err != nil {
		return nil, platform.NewFailure(platform.KindPersistence, err)
	}

	var thumbnailPath *string
	if assembled.ThumbnailPath != "" {
		finalThumb := filepath.Join(r.o.config.DataDir, "thumbnails", r.catalogueID+".jpg")
		if err := moveFile(assembled.ThumbnailPath, finalThumb); err == nil {
			thumbnailPath = &finalThumb
		}
	}

	pagesDir := filepath.Join(r.o.config.DataDir, "pages", r.catalogueID)
	for ix := range pages {
		finalRaw := filepath.Join(pagesDir, filepath.Base(pages[ix].RawPath))
		if err := moveFile(pages[ix].RawPath, finalRaw); err == nil {
			if pages[ix].NormalizedPath == pages[ix].RawPath {
				pages[ix].NormalizedPath = finalRaw
			}
			pages[ix].RawPath = finalRaw
		}
		if pages[ix].NormalizedPath != pages[ix].RawPath {
			finalNorm := filepath.Join(pagesDir, filepath.Base(pages[ix].NormalizedPath))
			if err := moveFile(pages[ix].NormalizedPath, finalNorm); err == nil {
				pages[ix].NormalizedPath = finalNorm
			}
		}
	}

	sourceURL := r.req.URL
	if r.req.Kind == models.KindUpload {
		sourceURL = models.ManualUploadSource
	}

	now := r.o.clock.Now()
	catalogue := &models.Catalogue{
		ID:            r.catalogueID,
		ValidFrom:     r.req.ValidFrom,
		ValidUntil:    r.req.ValidUntil,
		Latitude:      r.req.Latitude,
		Longitude:     r.req.Longitude,
		Status:        models.StatusCompleted,
		FileType:      assembled.FileType,
		PageCount:     len(pages),
		OfferCount:    productCount,
		FileSize:      assembled.PDFSize,
		PDFPath:       finalPDF,
		ThumbnailPath: thumbnailPath,
		OCRProcessed:  true,
		SourceURL:     sourceURL,
		CreatedAt:     now,
		ProcessedAt:   &now,
		Pages:         pages,
	}

	if r.req.Store != "" {
		catalogue.StoreID = lo.ToPtr(r.req.Store)
	} else if r.job != nil && r.job.Store != "" {
		catalogue.StoreID = lo.ToPtr(r.job.Store)
	}

	if r.req.Title != "" {
		if containsArabic(r.req.Title) {
			catalogue.TitleAr = lo.ToPtr(r.req.Title)
		} else {
			catalogue.TitleEn = lo.ToPtr(r.req.Title)
		}
	}

	return catalogue, nil
}

// transition moves the tracked job to the next lifecycle state,
// validating against the transition table.
func (r *run) transition(ctx context.Context, next models.JobStatus) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if r.job == nil {
		return nil
	}
	if err := checkTransition(r.job.Status, next); err != nil {
		return err
	}

	r.job.Status = next
	if err := r.o.storage.UpdateJob(ctx, r.job); err != nil {
		return platform.NewFailure(platform.KindPersistence, err)
	}

	r.o.logger.Debug().
		Str("jobId", r.job.ID).
		Str("status", string(next)).
		Msg("job stage started")

	return nil
}

// progress applies a counter mutation and persists it for external polling.
// Progress persistence is best effort; a failed update never fails the job.
func (r *run) progress(ctx context.Context, mutate func(job *models.ScrapeJob)) {
	if r.job == nil {
		return
	}

	r.mu.Lock()
	mutate(r.job)
	jobCopy := *r.job
	r.mu.Unlock()

	if err := r.o.storage.UpdateJob(ctx, &jobCopy); err != nil && ctx.Err() == nil {
		r.o.logger.Warn().Err(err).Str("jobId", r.job.ID).Msg("can't persist job progress")
	}
}

func (r *run) recordPageFailure(failure *platform.Failure) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pageErrors = append(r.pageErrors, failure)
}

// degradedSummary renders the recorded non-fatal page failures for the job
// record, ordered by page index. Empty when every page processed cleanly.
func (r *run) degradedSummary() string {
	r.mu.Lock()
	defer r.mu.Unlock()

	degraded := lo.Filter(r.pageErrors, func(failure *platform.Failure, _ int) bool {
		return !failure.Fatal()
	})
	if len(degraded) == 0 {
		return ""
	}

	sort.Slice(degraded, func(i, j int) bool { return degraded[i].Page < degraded[j].Page })

	parts := make([]string, len(degraded))
	for ix, failure := range degraded {
		parts[ix] = failure.Error()
	}

	return "degraded pages: " + strings.Join(parts, "; ")
}

// removeArtifacts deletes the catalogue's files under DataDir so a failed
// save leaves no orphans behind the rolled-back transaction.
func (r *run) removeArtifacts(catalogue *models.Catalogue) {
	_ = os.Remove(catalogue.PDFPath)
	if catalogue.ThumbnailPath != nil {
		_ = os.Remove(*catalogue.ThumbnailPath)
	}
	_ = os.RemoveAll(filepath.Join(r.o.config.DataDir, "pages", catalogue.ID))
}

// moveFile renames src into dst, falling back to copy across filesystems.
func moveFile(src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("can't create artifact directory: %w", err)
	}
	if err := os.Rename(src, dst); err == nil {
		return nil
	}

	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("can't open artifact: %w", err)
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("can't create artifact: %w", err)
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return fmt.Errorf("can't copy artifact: %w", err)
	}

	return os.Remove(src)
}
