// Package storage persists scrape jobs, catalogues, pages and products in
// Postgres. Each catalogue result commits in one transaction: either the
// whole catalogue with its pages and products persists or none of it does.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/offerscan/catalogue-parser/internal/platform/models"
)

// ErrJobNotFound is returned when no scrape job exists for an identifier.
var ErrJobNotFound = errors.New("scrape job not found")

// Postgres is storage for scrape jobs, catalogues, pages and products.
type Postgres struct {
	db *sqlx.DB
}

// NewPostgres returns new Postgres.
func NewPostgres(db *sqlx.DB) Postgres {
	return Postgres{db: db}
}

// CreateJob inserts a new scrape job.
func (p Postgres) CreateJob(ctx context.Context, job *models.ScrapeJob) error {
	const query = `
		INSERT INTO scrape_jobs (
			id, source_url, store, status, total_pages, pages_downloaded,
			pages_processed, products_found, pdf_path, error_message,
			created_at, started_at, completed_at, duration_seconds, catalogue_id
		) VALUES (
			:id, :source_url, :store, :status, :total_pages, :pages_downloaded,
			:pages_processed, :products_found, :pdf_path, :error_message,
			:created_at, :started_at, :completed_at, :duration_seconds, :catalogue_id
		)`

	if _, err := p.db.NamedExecContext(ctx, query, toDBJob(job)); err != nil {
		return fmt.Errorf("can't insert scrape job: %w", err)
	}

	return nil
}

// UpdateJob updates all mutable fields of a scrape job.
func (p Postgres) UpdateJob(ctx context.Context, job *models.ScrapeJob) error {
	const query = `
		UPDATE scrape_jobs SET
			store = :store,
			status = :status,
			total_pages = :total_pages,
			pages_downloaded = :pages_downloaded,
			pages_processed = :pages_processed,
			products_found = :products_found,
			pdf_path = :pdf_path,
			error_message = :error_message,
			started_at = :started_at,
			completed_at = :completed_at,
			duration_seconds = :duration_seconds,
			catalogue_id = :catalogue_id
		WHERE id = :id`

	result, err := p.db.NamedExecContext(ctx, query, toDBJob(job))
	if err != nil {
		return fmt.Errorf("can't update scrape job: %w", err)
	}
	if rowsAffected, err := result.RowsAffected(); err != nil || rowsAffected == 0 {
		return fmt.Errorf("can't update scrape job %q: %w", job.ID, ErrJobNotFound)
	}

	return nil
}

// GetJob returns the scrape job with the provided identifier.
func (p Postgres) GetJob(ctx context.Context, jobID string) (*models.ScrapeJob, error) {
	var job dbScrapeJob
	err := p.db.GetContext(ctx, &job, `SELECT * FROM scrape_jobs WHERE id = $1`, jobID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("can't get scrape job: %w", err)
	}

	return toAppJob(&job), nil
}

// SaveResult persists a completed catalogue with its pages and products in
// one transaction.
func (p Postgres) SaveResult(ctx context.Context, catalogue *models.Catalogue, products []models.Product) error {
	err := runInTransaction(ctx, p.db, func(tx *sqlx.Tx) error {
		const catalogueQuery = `
			INSERT INTO catalogues (
				id, store_id, market_category, market_name, title_ar, title_en,
				valid_from, valid_until, latitude, longitude, status, file_type,
				page_count, offer_count, file_size, pdf_path, thumbnail_path,
				ocr_processed, source_url, created_at, processed_at
			) VALUES (
				:id, :store_id, :market_category, :market_name, :title_ar, :title_en,
				:valid_from, :valid_until, :latitude, :longitude, :status, :file_type,
				:page_count, :offer_count, :file_size, :pdf_path, :thumbnail_path,
				:ocr_processed, :source_url, :created_at, :processed_at
			)`

		if _, err := tx.NamedExecContext(ctx, catalogueQuery, toDBCatalogue(catalogue)); err != nil {
			return fmt.Errorf("can't insert catalogue: %w", err)
		}

		const pageQuery = `
			INSERT INTO catalogue_pages (
				catalogue_id, page_index, raw_path, normalized_path, ocr_text,
				ocr_confidence, ocr_pass, ocr_language, normalize_failed, ocr_failed
			) VALUES (
				:catalogue_id, :page_index, :raw_path, :normalized_path, :ocr_text,
				:ocr_confidence, :ocr_pass, :ocr_language, :normalize_failed, :ocr_failed
			)`

		for ix := range catalogue.Pages {
			if _, err := tx.NamedExecContext(ctx, pageQuery, toDBPage(&catalogue.Pages[ix])); err != nil {
				return fmt.Errorf("can't insert catalogue page %d: %w", catalogue.Pages[ix].Index, err)
			}
		}

		const productQuery = `
			INSERT INTO products (
				catalogue_id, page_index, name_ar, name_en, price, original_price,
				discount_percentage, currency, size, in_stock, scraped_at
			) VALUES (
				:catalogue_id, :page_index, :name_ar, :name_en, :price, :original_price,
				:discount_percentage, :currency, :size, :in_stock, :scraped_at
			)`

		for ix := range products {
			if _, err := tx.NamedExecContext(ctx, productQuery, toDBProduct(&products[ix])); err != nil {
				return fmt.Errorf("can't insert product: %w", err)
			}
		}

		return nil
	})
	if err != nil {
		return fmt.Errorf("can't save catalogue result: %w", err)
	}

	return nil
}

// ListProducts returns the flat product list of one catalogue ordered by
// page index.
func (p Postgres) ListProducts(ctx context.Context, catalogueID string) ([]models.Product, error) {
	var rows []dbProduct
	err := p.db.SelectContext(ctx, &rows,
		`SELECT catalogue_id, page_index, name_ar, name_en, price, original_price,
			discount_percentage, currency, size, in_stock, scraped_at
		FROM products WHERE catalogue_id = $1 ORDER BY page_index`,
		catalogueID,
	)
	if err != nil {
		return nil, fmt.Errorf("can't list products: %w", err)
	}

	products := make([]models.Product, 0, len(rows))
	for ix := range rows {
		products = append(products, toAppProduct(&rows[ix]))
	}

	return products, nil
}

func runInTransaction(ctx context.Context, db *sqlx.DB, txFunc func(tx *sqlx.Tx) error) error {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("can't begin transaction: %w", err)
	}

	if err := txFunc(tx); err != nil {
		if rollbackErr := tx.Rollback(); rollbackErr != nil {
			return fmt.Errorf("can't rollback transaction: %w (rollback reason: %w)", rollbackErr, err)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("can't commit transaction: %w", err)
	}

	return nil
}
