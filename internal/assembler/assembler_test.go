package assembler_test

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/offerscan/catalogue-parser/internal/assembler"
)

// fakeRasterizer records the rasterized PDF and emits canned page files.
type fakeRasterizer struct {
	pdfPath   string
	pageCount int
}

func (r *fakeRasterizer) Rasterize(ctx context.Context, pdfPath string, outDir string) ([]assembler.Page, error) {
	r.pdfPath = pdfPath

	pages := make([]assembler.Page, 0, r.pageCount)
	for ix := 1; ix <= r.pageCount; ix++ {
		path := filepath.Join(outDir, fmt.Sprintf("page_%03d.jpg", ix))
		if err := os.WriteFile(path, encodeJPEG(color.White), 0o644); err != nil {
			return nil, err
		}
		pages = append(pages, assembler.Page{Index: ix, Path: path})
	}
	return pages, nil
}

func encodeJPEG(fill color.Color) []byte {
	img := image.NewRGBA(image.Rect(0, 0, 40, 60))
	for y := 0; y < 60; y++ {
		for x := 0; x < 40; x++ {
			img.Set(x, y, fill)
		}
	}
	var buf bytes.Buffer
	jpeg.Encode(&buf, img, nil)
	return buf.Bytes()
}

func encodePNG(fill color.Color) []byte {
	img := image.NewRGBA(image.Rect(0, 0, 40, 60))
	for y := 0; y < 60; y++ {
		for x := 0; x < 40; x++ {
			img.Set(x, y, fill)
		}
	}
	var buf bytes.Buffer
	png.Encode(&buf, img)
	return buf.Bytes()
}

func TestAssembleImages(t *testing.T) {
	workDir := t.TempDir()
	asm := assembler.NewAssembler(&fakeRasterizer{})

	inputs := []assembler.Input{
		{Name: "cover.jpg", Body: encodeJPEG(color.White)},
		{Name: "middle.png", Body: encodePNG(color.Black)},
		{Name: "back.jpg", Body: encodeJPEG(color.White)},
	}

	catalogue, err := asm.Assemble(context.TODO(), workDir, inputs)

	require.NoError(t, err, "shouldn't return error")
	assert.Equal(t, "images", catalogue.FileType, "should report images file type")
	require.Len(t, catalogue.Pages, 3, "should keep one page per input")

	for ix, page := range catalogue.Pages {
		assert.Equal(t, ix+1, page.Index, "pages should keep input order")
		assert.FileExists(t, page.Path, "page image should exist")
	}

	assert.FileExists(t, catalogue.PDFPath, "canonical pdf should exist")
	assert.Positive(t, catalogue.PDFSize, "should record pdf size")
	assert.FileExists(t, catalogue.ThumbnailPath, "thumbnail should exist")

	pageCount, err := api.PageCountFile(catalogue.PDFPath)
	require.NoError(t, err)
	assert.Equal(t, 3, pageCount, "canonical pdf should have one page per image")
}

func TestAssembleWithPDF(t *testing.T) {
	workDir := t.TempDir()

	// build a real single-page PDF input
	imgPath := filepath.Join(workDir, "input.jpg")
	require.NoError(t, os.WriteFile(imgPath, encodeJPEG(color.White), 0o644))
	inputPDF := filepath.Join(workDir, "input.pdf")
	require.NoError(t, api.ImportImagesFile([]string{imgPath}, inputPDF, nil, nil))
	pdfBody, err := os.ReadFile(inputPDF)
	require.NoError(t, err)

	rasterizer := &fakeRasterizer{pageCount: 2}
	asm := assembler.NewAssembler(rasterizer)

	inputs := []assembler.Input{
		{Name: "cover.jpg", Body: encodeJPEG(color.White)},
		{Name: "catalogue.pdf", Body: pdfBody},
	}

	catalogue, err := asm.Assemble(context.TODO(), workDir, inputs)

	require.NoError(t, err, "shouldn't return error")
	assert.Equal(t, "pdf", catalogue.FileType, "should report pdf file type")
	assert.Equal(t, catalogue.PDFPath, rasterizer.pdfPath, "should rasterize the merged canonical pdf")
	require.Len(t, catalogue.Pages, 2, "should use rasterized pages")
	assert.FileExists(t, catalogue.PDFPath, "canonical pdf should exist")

	pageCount, err := api.PageCountFile(catalogue.PDFPath)
	require.NoError(t, err)
	assert.Equal(t, 2, pageCount, "image part and pdf part should merge into two pages")
}

func TestAssembleEmpty(t *testing.T) {
	asm := assembler.NewAssembler(&fakeRasterizer{})

	_, err := asm.Assemble(context.TODO(), t.TempDir(), nil)

	assert.ErrorIs(t, err, assembler.ErrEmptyCatalogue, "should report empty catalogue")
}

func TestAssembleUnsupportedInput(t *testing.T) {
	asm := assembler.NewAssembler(&fakeRasterizer{})

	_, err := asm.Assemble(context.TODO(), t.TempDir(), []assembler.Input{
		{Name: "notes.txt", Body: []byte("not an image")},
	})

	assert.ErrorIs(t, err, assembler.ErrUnsupportedInput, "should reject unclassifiable input")
}
