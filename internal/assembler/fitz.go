package assembler

import (
	"context"
	"fmt"
	"image/jpeg"
	"os"
	"path/filepath"

	"github.com/gen2brain/go-fitz"
)

// FitzRasterizer renders PDF pages into JPEG page images using MuPDF.
type FitzRasterizer struct{}

// NewFitzRasterizer returns new FitzRasterizer.
func NewFitzRasterizer() FitzRasterizer {
	return FitzRasterizer{}
}

// Rasterize renders every page of the PDF at pdfPath into outDir and returns
// the ordered pages.
func (FitzRasterizer) Rasterize(ctx context.Context, pdfPath string, outDir string) ([]Page, error) {
	doc, err := fitz.New(pdfPath)
	if err != nil {
		return nil, fmt.Errorf("can't open pdf: %w", err)
	}
	defer doc.Close()

	pageCount := doc.NumPage()
	pages := make([]Page, 0, pageCount)

	for pageIx := 0; pageIx < pageCount; pageIx++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		img, err := doc.Image(pageIx)
		if err != nil {
			return nil, fmt.Errorf("can't render page %d: %w", pageIx+1, err)
		}

		pagePath := filepath.Join(outDir, pageFileName(pageIx+1))
		file, err := os.Create(pagePath)
		if err != nil {
			return nil, fmt.Errorf("can't create page file: %w", err)
		}

		err = jpeg.Encode(file, img, &jpeg.Options{Quality: pageJPEGQual})
		if closeErr := file.Close(); err == nil {
			err = closeErr
		}
		if err != nil {
			return nil, fmt.Errorf("can't encode page %d: %w", pageIx+1, err)
		}

		pages = append(pages, Page{Index: pageIx + 1, Path: pagePath})
	}

	return pages, nil
}
