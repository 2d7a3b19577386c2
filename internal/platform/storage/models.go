package storage

import (
	"time"

	"github.com/offerscan/catalogue-parser/internal/platform/models"
)

type dbScrapeJob struct {
	ID              string     `db:"id"`
	SourceURL       string     `db:"source_url"`
	Store           string     `db:"store"`
	Status          string     `db:"status"`
	TotalPages      int        `db:"total_pages"`
	PagesDownloaded int        `db:"pages_downloaded"`
	PagesProcessed  int        `db:"pages_processed"`
	ProductsFound   int        `db:"products_found"`
	PDFPath         *string    `db:"pdf_path"`
	ErrorMessage    *string    `db:"error_message"`
	CreatedAt       time.Time  `db:"created_at"`
	StartedAt       *time.Time `db:"started_at"`
	CompletedAt     *time.Time `db:"completed_at"`
	DurationSeconds *float64   `db:"duration_seconds"`
	CatalogueID     *string    `db:"catalogue_id"`
}

type dbCatalogue struct {
	ID             string     `db:"id"`
	StoreID        *string    `db:"store_id"`
	MarketCategory *string    `db:"market_category"`
	MarketName     *string    `db:"market_name"`
	TitleAr        *string    `db:"title_ar"`
	TitleEn        *string    `db:"title_en"`
	ValidFrom      *time.Time `db:"valid_from"`
	ValidUntil     *time.Time `db:"valid_until"`
	Latitude       *float64   `db:"latitude"`
	Longitude      *float64   `db:"longitude"`
	Status         string     `db:"status"`
	FileType       string     `db:"file_type"`
	PageCount      int        `db:"page_count"`
	OfferCount     int        `db:"offer_count"`
	FileSize       int64      `db:"file_size"`
	PDFPath        string     `db:"pdf_path"`
	ThumbnailPath  *string    `db:"thumbnail_path"`
	OCRProcessed   bool       `db:"ocr_processed"`
	SourceURL      string     `db:"source_url"`
	CreatedAt      time.Time  `db:"created_at"`
	ProcessedAt    *time.Time `db:"processed_at"`
}

type dbCataloguePage struct {
	CatalogueID     string  `db:"catalogue_id"`
	PageIndex       int     `db:"page_index"`
	RawPath         string  `db:"raw_path"`
	NormalizedPath  string  `db:"normalized_path"`
	Text            string  `db:"ocr_text"`
	OCRConfidence   float64 `db:"ocr_confidence"`
	OCRPass         string  `db:"ocr_pass"`
	OCRLanguage     string  `db:"ocr_language"`
	NormalizeFailed bool    `db:"normalize_failed"`
	OCRFailed       bool    `db:"ocr_failed"`
}

type dbProduct struct {
	CatalogueID        string    `db:"catalogue_id"`
	PageIndex          int       `db:"page_index"`
	NameAr             *string   `db:"name_ar"`
	NameEn             *string   `db:"name_en"`
	Price              float64   `db:"price"`
	OriginalPrice      *float64  `db:"original_price"`
	DiscountPercentage *float64  `db:"discount_percentage"`
	Currency           string    `db:"currency"`
	Size               *string   `db:"size"`
	InStock            bool      `db:"in_stock"`
	ScrapedAt          time.Time `db:"scraped_at"`
}

func toDBJob(job *models.ScrapeJob) dbScrapeJob {
	return dbScrapeJob{
		ID:              job.ID,
		SourceURL:       job.SourceURL,
		Store:           job.Store,
		Status:          string(job.Status),
		TotalPages:      job.TotalPages,
		PagesDownloaded: job.PagesDownloaded,
		PagesProcessed:  job.PagesProcessed,
		ProductsFound:   job.ProductsFound,
		PDFPath:         job.PDFPath,
		ErrorMessage:    job.ErrorMessage,
		CreatedAt:       job.CreatedAt,
		StartedAt:       job.StartedAt,
		CompletedAt:     job.CompletedAt,
		DurationSeconds: job.DurationSeconds,
		CatalogueID:     job.CatalogueID,
	}
}

func toAppJob(job *dbScrapeJob) *models.ScrapeJob {
	return &models.ScrapeJob{
		ID:              job.ID,
		SourceURL:       job.SourceURL,
		Store:           job.Store,
		Status:          models.JobStatus(job.Status),
		TotalPages:      job.TotalPages,
		PagesDownloaded: job.PagesDownloaded,
		PagesProcessed:  job.PagesProcessed,
		ProductsFound:   job.ProductsFound,
		PDFPath:         job.PDFPath,
		ErrorMessage:    job.ErrorMessage,
		CreatedAt:       job.CreatedAt,
		StartedAt:       job.StartedAt,
		CompletedAt:     job.CompletedAt,
		DurationSeconds: job.DurationSeconds,
		CatalogueID:     job.CatalogueID,
	}
}

func toDBCatalogue(catalogue *models.Catalogue) dbCatalogue {
	return dbCatalogue{
		ID:             catalogue.ID,
		StoreID:        catalogue.StoreID,
		MarketCategory: catalogue.MarketCategory,
		MarketName:     catalogue.MarketName,
		TitleAr:        catalogue.TitleAr,
		TitleEn:        catalogue.TitleEn,
		ValidFrom:      catalogue.ValidFrom,
		ValidUntil:     catalogue.ValidUntil,
		Latitude:       catalogue.Latitude,
		Longitude:      catalogue.Longitude,
		Status:         string(catalogue.Status),
		FileType:       catalogue.FileType,
		PageCount:      catalogue.PageCount,
		OfferCount:     catalogue.OfferCount,
		FileSize:       catalogue.FileSize,
		PDFPath:        catalogue.PDFPath,
		ThumbnailPath:  catalogue.ThumbnailPath,
		OCRProcessed:   catalogue.OCRProcessed,
		SourceURL:      catalogue.SourceURL,
		CreatedAt:      catalogue.CreatedAt,
		ProcessedAt:    catalogue.ProcessedAt,
	}
}

func toDBPage(page *models.CataloguePage) dbCataloguePage {
	return dbCataloguePage{
		CatalogueID:     page.CatalogueID,
		PageIndex:       page.Index,
		RawPath:         page.RawPath,
		NormalizedPath:  page.NormalizedPath,
		Text:            page.Text,
		OCRConfidence:   page.OCRConfidence,
		OCRPass:         page.OCRPass,
		OCRLanguage:     page.OCRLanguage,
		NormalizeFailed: page.NormalizeFailed,
		OCRFailed:       page.OCRFailed,
	}
}

func toDBProduct(product *models.Product) dbProduct {
	return dbProduct{
		CatalogueID:        product.CatalogueID,
		PageIndex:          product.PageIndex,
		NameAr:             product.NameAr,
		NameEn:             product.NameEn,
		Price:              product.Price,
		OriginalPrice:      product.OriginalPrice,
		DiscountPercentage: product.DiscountPercentage,
		Currency:           product.Currency,
		Size:               product.Size,
		InStock:            product.InStock,
		ScrapedAt:          product.ScrapedAt,
	}
}

func toAppProduct(product *dbProduct) models.Product {
	return models.Product{
		CatalogueID:        product.CatalogueID,
		PageIndex:          product.PageIndex,
		NameAr:             product.NameAr,
		NameEn:             product.NameEn,
		Price:              product.Price,
		OriginalPrice:      product.OriginalPrice,
		DiscountPercentage: product.DiscountPercentage,
		Currency:           product.Currency,
		Size:               product.Size,
		InStock:            product.InStock,
		ScrapedAt:          product.ScrapedAt,
	}
}
