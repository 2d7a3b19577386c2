package models

import "time"

// RequestKind discriminates the source of an ingestion request.
type RequestKind string

// Supported ingestion request kinds.
const (
	KindURL          RequestKind = "url"
	KindStoreListing RequestKind = "store_listing"
	KindUpload       RequestKind = "upload"
)

// IngestionRequest describes one catalogue ingestion.
// Exactly one of URL, StoreURL or Files is set, selected by Kind.
type IngestionRequest struct {
	Kind       RequestKind
	URL        string
	StoreURL   string
	Files      []UploadedFile
	Store      string
	Title      string
	ValidFrom  *time.Time
	ValidUntil *time.Time
	Latitude   *float64
	Longitude  *float64
	// KeepColor skips binarization so color-coded price badges survive into OCR input.
	KeepColor bool
}

// UploadedFile is one user-provided catalogue file.
// Order of Files in the request is the authoritative page order.
type UploadedFile struct {
	Name string
	Path string
}

// JobStatus is the lifecycle state of a ScrapeJob.
type JobStatus string

// ScrapeJob lifecycle states.
const (
	StatusPending     JobStatus = "pending"
	StatusFetching    JobStatus = "fetching"
	StatusAssembling  JobStatus = "assembling"
	StatusNormalizing JobStatus = "normalizing"
	StatusOCR         JobStatus = "ocr_processing"
	StatusExtracting  JobStatus = "extracting"
	StatusCompleted   JobStatus = "completed"
	StatusFailed      JobStatus = "failed"
)

// IsTerminal reports whether no further transitions are allowed from s.
func (s JobStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// ScrapeJob tracks one asynchronous ingestion run.
type ScrapeJob struct {
	ID              string
	SourceURL       string
	Store           string
	Status          JobStatus
	TotalPages      int
	PagesDownloaded int
	PagesProcessed  int
	ProductsFound   int
	PDFPath         *string
	ErrorMessage    *string
	CreatedAt       time.Time
	StartedAt       *time.Time
	CompletedAt     *time.Time
	DurationSeconds *float64
	CatalogueID     *string
}

// Catalogue is the durable result of one ingestion.
type Catalogue struct {
	ID             string
	StoreID        *string
	MarketCategory *string
	MarketName     *string
	TitleAr        *string
	TitleEn        *string
	ValidFrom      *time.Time
	ValidUntil     *time.Time
	Latitude       *float64
	Longitude      *float64
	Status         JobStatus
	FileType       string
	PageCount      int
	OfferCount     int
	FileSize       int64
	PDFPath        string
	ThumbnailPath  *string
	OCRProcessed   bool
	// SourceURL is the catalogue origin or "manual_upload" for the upload path.
	SourceURL   string
	CreatedAt   time.Time
	ProcessedAt *time.Time

	Pages []CataloguePage
}

// ManualUploadSource marks catalogues created from uploaded files.
const ManualUploadSource = "manual_upload"

// CataloguePage is one page of a Catalogue. Index is 1-based and
// contiguous within the catalogue.
type CataloguePage struct {
	CatalogueID     string
	Index           int
	RawPath         string
	NormalizedPath  string
	Text            string
	OCRConfidence   float64
	OCRPass         string
	OCRLanguage     string
	NormalizeFailed bool
	OCRFailed       bool
}

// Product is one extracted product candidate. Immutable once persisted.
type Product struct {
	CatalogueID        string
	PageIndex          int
	NameAr             *string
	NameEn             *string
	Price              float64
	OriginalPrice      *float64
	DiscountPercentage *float64
	Currency           string
	Size               *string
	InStock            bool
	ScrapedAt          time.Time
}

// Name returns the best available display name, preferring Arabic.
func (p Product) Name() string {
	if p.NameAr != nil && *p.NameAr != "" {
		return *p.NameAr
	}
	if p.NameEn != nil {
		return *p.NameEn
	}
	return ""
}

// ListingResult aggregates the outcome of a store-listing fan-out.
type ListingResult struct {
	Total     int
	Succeeded int
	Failed    int
	JobIDs    []string
}
