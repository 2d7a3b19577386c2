// Package assembler normalizes heterogeneous catalogue inputs (page images,
// PDFs or a mix) into one ordered page-image sequence plus a single canonical
// PDF artifact under the job working directory.
package assembler

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png" // register png decoder for image inputs

	"os"
	"path/filepath"

	_ "golang.org/x/image/webp" // flyer CDNs commonly serve webp

	"github.com/pdfcpu/pdfcpu/pkg/api"
)

const (
	// CanonicalPDFName is the canonical PDF artifact name inside a work dir.
	CanonicalPDFName = "catalogue.pdf"
	// ThumbnailName is the first-page thumbnail artifact name.
	ThumbnailName = "thumb.jpg"

	pagesDirName  = "pages"
	pageJPEGQual  = 90
	thumbnailQual = 80
)

// Input is one ordered catalogue input. The position in the input slice is
// the authoritative page order; filenames are never trusted for ordering.
type Input struct {
	Name string
	Body []byte
}

// Page is one assembled raster page.
type Page struct {
	Index int // 1-based
	Path  string
}

// Catalogue is the result of assembling one catalogue's inputs.
type Catalogue struct {
	Pages         []Page
	PDFPath       string
	ThumbnailPath string
	FileType      string // "images" or "pdf"
	PDFSize       int64
}

// Rasterizer renders PDF pages into images.
type Rasterizer interface {
	Rasterize(ctx context.Context, pdfPath string, outDir string) ([]Page, error)
}

// Assembler builds page sequences and canonical PDF artifacts.
type Assembler struct {
	rasterizer Rasterizer
}

// NewAssembler returns new Assembler.
func NewAssembler(rasterizer Rasterizer) *Assembler {
	return &Assembler{rasterizer: rasterizer}
}

// Assemble turns ordered inputs into page images and one canonical PDF in
// workDir. Inputs are classified by content sniffing; PDF inputs are used
// directly (merged when multiple), images are merged into a PDF. Zero usable
// pages is reported as ErrEmptyCatalogue.
func (a *Assembler) Assemble(ctx context.Context, workDir string, inputs []Input) (*Catalogue, error) {
	if len(inputs) == 0 {
		return nil, ErrEmptyCatalogue
	}

	hasPDF := false
	for ix := range inputs {
		kind, err := classify(inputs[ix].Body)
		if err != nil {
			return nil, fmt.Errorf("can't classify input %q: %w", inputs[ix].Name, err)
		}
		if kind == kindPDF {
			hasPDF = true
		}
	}

	pagesDir := filepath.Join(workDir, pagesDirName)
	if err := os.MkdirAll(pagesDir, 0o755); err != nil {
		return nil, fmt.Errorf("can't create pages dir: %w", err)
	}

	pdfPath := filepath.Join(workDir, CanonicalPDFName)

	var (
		catalogue *Catalogue
		err       error
	)
	if hasPDF {
		catalogue, err = a.assembleWithPDFs(ctx, workDir, pagesDir, pdfPath, inputs)
	} else {
		catalogue, err = a.assembleImages(ctx, pagesDir, pdfPath, inputs)
	}
	if err != nil {
		return nil, err
	}

	if len(catalogue.Pages) == 0 {
		return nil, ErrEmptyCatalogue
	}

	thumbPath := filepath.Join(workDir, ThumbnailName)
	if err := writeThumbnail(catalogue.Pages[0].Path, thumbPath); err != nil {
		// a missing thumbnail never fails the catalogue
		thumbPath = ""
	}
	catalogue.ThumbnailPath = thumbPath

	if info, err := os.Stat(catalogue.PDFPath); err == nil {
		catalogue.PDFSize = info.Size()
	}

	return catalogue, nil
}

// assembleImages writes every image input as an ordered page JPEG and merges
// them into the canonical PDF.
func (a *Assembler) assembleImages(ctx context.Context, pagesDir, pdfPath string, inputs []Input) (*Catalogue, error) {
	pages := make([]Page, 0, len(inputs))
	imagePaths := make([]string, 0, len(inputs))

	for ix := range inputs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		pagePath := filepath.Join(pagesDir, pageFileName(ix+1))
		if err := writeJPEG(inputs[ix].Body, pagePath); err != nil {
			return nil, fmt.Errorf("can't write page %d: %w", ix+1, err)
		}

		pages = append(pages, Page{Index: ix + 1, Path: pagePath})
		imagePaths = append(imagePaths, pagePath)
	}

	if err := api.ImportImagesFile(imagePaths, pdfPath, nil, nil); err != nil {
		return nil, fmt.Errorf("can't merge images into pdf: %w", err)
	}

	return &Catalogue{Pages: pages, PDFPath: pdfPath, FileType: "images"}, nil
}

// assembleWithPDFs converts image inputs to single-page PDFs, merges all
// inputs in order into the canonical PDF and rasterizes it back into page
// images so the downstream pipeline always sees raster pages.
func (a *Assembler) assembleWithPDFs(ctx context.Context, workDir, pagesDir, pdfPath string, inputs []Input) (*Catalogue, error) {
	partsDir := filepath.Join(workDir, "parts")
	if err := os.MkdirAll(partsDir, 0o755); err != nil {
		return nil, fmt.Errorf("can't create parts dir: %w", err)
	}
	defer os.RemoveAll(partsDir)

	parts := make([]string, 0, len(inputs))

	for ix := range inputs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		kind, err := classify(inputs[ix].Body)
		if err != nil {
			return nil, fmt.Errorf("can't classify input %q: %w", inputs[ix].Name, err)
		}

		partPath := filepath.Join(partsDir, fmt.Sprintf("part_%03d.pdf", ix+1))

		switch kind {
		case kindPDF:
			if err := os.WriteFile(partPath, inputs[ix].Body, 0o644); err != nil {
				return nil, fmt.Errorf("can't write pdf part %d: %w", ix+1, err)
			}
			if err := api.ValidateFile(partPath, nil); err != nil {
				return nil, fmt.Errorf("invalid pdf input %q: %w", inputs[ix].Name, err)
			}
		case kindImage:
			imgPath := filepath.Join(partsDir, fmt.Sprintf("part_%03d.jpg", ix+1))
			if err := writeJPEG(inputs[ix].Body, imgPath); err != nil {
				return nil, fmt.Errorf("can't write image part %d: %w", ix+1, err)
			}
			if err := api.ImportImagesFile([]string{imgPath}, partPath, nil, nil); err != nil {
				return nil, fmt.Errorf("can't convert image part %d to pdf: %w", ix+1, err)
			}
		}

		parts = append(parts, partPath)
	}

	if len(parts) == 1 {
		data, err := os.ReadFile(parts[0])
		if err != nil {
			return nil, fmt.Errorf("can't read pdf part: %w", err)
		}
		if err := os.WriteFile(pdfPath, data, 0o644); err != nil {
			return nil, fmt.Errorf("can't write canonical pdf: %w", err)
		}
	} else if err := api.MergeCreateFile(parts, pdfPath, false, nil); err != nil {
		return nil, fmt.Errorf("can't merge pdfs: %w", err)
	}

	pageCount, err := api.PageCountFile(pdfPath)
	if err != nil {
		return nil, fmt.Errorf("can't count pdf pages: %w", err)
	}
	if pageCount == 0 {
		return nil, ErrEmptyCatalogue
	}

	pages, err := a.rasterizer.Rasterize(ctx, pdfPath, pagesDir)
	if err != nil {
		return nil, fmt.Errorf("can't rasterize pdf: %w", err)
	}

	return &Catalogue{Pages: pages, PDFPath: pdfPath, FileType: "pdf"}, nil
}

type inputKind int

const (
	kindImage inputKind = iota
	kindPDF
)

func classify(body []byte) (inputKind, error) {
	if bytes.HasPrefix(body, []byte("%PDF-")) {
		return kindPDF, nil
	}
	if _, _, err := image.DecodeConfig(bytes.NewReader(body)); err == nil {
		return kindImage, nil
	}
	return 0, ErrUnsupportedInput
}

func writeJPEG(body []byte, path string) error {
	img, _, err := image.Decode(bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("can't decode image: %w", err)
	}

	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("can't create file: %w", err)
	}
	defer file.Close()

	if err := jpeg.Encode(file, img, &jpeg.Options{Quality: pageJPEGQual}); err != nil {
		return fmt.Errorf("can't encode jpeg: %w", err)
	}

	return nil
}

func pageFileName(index int) string {
	return fmt.Sprintf("page_%03d.jpg", index)
}
