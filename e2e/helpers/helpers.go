// Package helpers holds shared setup for the end to end suite.
package helpers

import (
	"database/sql"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/require"
	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// CatalogueRow is the subset of catalogue columns the suite asserts on.
type CatalogueRow struct {
	ID           string  `db:"id"`
	Status       string  `db:"status"`
	TitleEn      *string `db:"title_en"`
	PageCount    int     `db:"page_count"`
	OfferCount   int     `db:"offer_count"`
	PDFPath      string  `db:"pdf_path"`
	OCRProcessed bool    `db:"ocr_processed"`
	SourceURL    string  `db:"source_url"`
}

// WaitForCatalogue is blocking helper function, returns the newest catalogue
// for sourceURL. Results are saved in one transaction, so a visible row means
// the pipeline has finished.
func WaitForCatalogue(t *testing.T, db *sqlx.DB, sourceURL string) *CatalogueRow {
	t.Helper()

	for {
		<-time.After(time.Millisecond * 500)

		var row CatalogueRow
		err := db.Get(&row,
			`SELECT id, status, title_en, page_count, offer_count, pdf_path, ocr_processed, source_url
			 FROM catalogues WHERE source_url = $1 ORDER BY created_at DESC LIMIT 1`,
			sourceURL,
		)
		if errors.Is(err, sql.ErrNoRows) {
			continue
		}
		if err != nil {
			require.FailNow(t, "can't query catalogues", err)
		}

		return &row
	}
}

// CountPages is helper function returning the number of stored pages of one catalogue.
func CountPages(t *testing.T, db *sqlx.DB, catalogueID string) int {
	t.Helper()

	var count int
	if err := db.Get(&count, "SELECT COUNT(*) FROM catalogue_pages WHERE catalogue_id = $1", catalogueID); err != nil {
		require.FailNow(t, "can't count catalogue pages", err)
	}

	return count
}

// WriteCataloguePages renders one JPEG page file per line group and returns
// the file paths in page order.
func WriteCataloguePages(t *testing.T, dir string, pages [][]string) []string {
	t.Helper()

	paths := make([]string, len(pages))
	for ix, lines := range pages {
		path := filepath.Join(dir, fmt.Sprintf("page_%02d.jpg", ix+1))
		writePage(t, path, lines)
		paths[ix] = path
	}

	return paths
}

// writePage draws the lines with the bitmap face on a small canvas and
// upscales it, so the glyphs end up large enough for recognition.
func writePage(t *testing.T, path string, lines []string) {
	t.Helper()

	small := image.NewRGBA(image.Rect(0, 0, 200, 280))
	draw.Draw(small, small.Bounds(), image.White, image.Point{}, draw.Src)

	drawer := font.Drawer{
		Dst:  small,
		Src:  image.Black,
		Face: basicfont.Face7x13,
	}
	for ix, line := range lines {
		drawer.Dot = fixed.P(10, 30+ix*20)
		drawer.DrawString(line)
	}

	page := image.NewRGBA(image.Rect(0, 0, 1600, 2240))
	draw.NearestNeighbor.Scale(page, page.Bounds(), small, small.Bounds(), draw.Src, nil)

	file, err := os.Create(path)
	if err != nil {
		require.FailNow(t, "can't create page file", path, err)
	}
	defer func() {
		if err := file.Close(); err != nil {
			require.FailNow(t, "can't close page file", path, err)
		}
	}()

	if err := jpeg.Encode(file, page, &jpeg.Options{Quality: 90}); err != nil {
		require.FailNow(t, "can't encode page file", path, err)
	}
}

// DeclareRMQExchange is helper function for declaring RMQ exchange.
func DeclareRMQExchange(t *testing.T, ch *amqp.Channel, exchange string) {
	t.Helper()

	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		require.FailNow(t, "can't declare exchange", exchange, err)
	}
}

// DeclareRMQQueue is helper function for declaring RMQ queue and binding and cleaning them after test is finished.
func DeclareRMQQueue(t *testing.T, channel *amqp.Channel, queueName, exchange, routingKey string) {
	t.Helper()

	_, err := channel.QueueDeclare(queueName, true, false, false, false, nil)
	if err != nil {
		require.FailNow(t, "can't declare queue", queueName, err)
	}

	err = channel.QueueBind(queueName, routingKey, exchange, false, nil)
	if err != nil {
		require.FailNow(t, "can't bind queue", queueName, routingKey, err)
	}

	t.Cleanup(func() {
		_, err := channel.QueueDelete(queueName, false, false, true)
		if err != nil {
			require.FailNow(t, "can't delete queue", queueName, err)
		}
	})
}
