package modelstesting

import (
	"math/rand"
	"time"

	"github.com/go-faker/faker/v4"
	"github.com/google/uuid"
	"github.com/samber/lo"

	"github.com/offerscan/catalogue-parser/internal/platform/models"
)

// FakeProduct returns models.Product with fake data.
func FakeProduct(ops ...func(p *models.Product)) models.Product {
	product := models.Product{
		CatalogueID:   uuid.NewString(),
		PageIndex:     1 + rand.Intn(20),
		NameAr:        lo.ToPtr(faker.Word()),
		NameEn:        lo.ToPtr(faker.Word()),
		Price:         1 + rand.Float64()*999,
		OriginalPrice: lo.ToPtr(1000 + rand.Float64()*100),
		Currency:      "EGP",
		Size:          lo.ToPtr(faker.Word()),
		InStock:       true,
		ScrapedAt:     time.Now().UTC(),
	}

	for _, op := range ops {
		op(&product)
	}

	return product
}

// FakeJob returns models.ScrapeJob with fake data in pending state.
func FakeJob(ops ...func(j *models.ScrapeJob)) models.ScrapeJob {
	now := time.Now().UTC()
	job := models.ScrapeJob{
		ID:        uuid.NewString(),
		SourceURL: faker.URL(),
		Store:     faker.Word(),
		Status:    models.StatusPending,
		CreatedAt: now,
		StartedAt: &now,
	}

	for _, op := range ops {
		op(&job)
	}

	return job
}

// FakeCatalogue returns models.Catalogue with fake data and random number of fake pages.
func FakeCatalogue(ops ...func(c *models.Catalogue)) models.Catalogue {
	now := time.Now().UTC()
	catalogue := models.Catalogue{
		ID:           uuid.NewString(),
		StoreID:      lo.ToPtr(faker.Word()),
		TitleEn:      lo.ToPtr(faker.Sentence()),
		Status:       models.StatusCompleted,
		FileType:     "pdf",
		FileSize:     rand.Int63n(1 << 20),
		PDFPath:      faker.Word() + ".pdf",
		OCRProcessed: true,
		SourceURL:    faker.URL(),
		CreatedAt:    now,
		ProcessedAt:  &now,
		Pages:        fakePages(),
	}
	catalogue.PageCount = len(catalogue.Pages)
	for ix := range catalogue.Pages {
		catalogue.Pages[ix].CatalogueID = catalogue.ID
	}

	for _, op := range ops {
		op(&catalogue)
	}

	return catalogue
}

// FakePage returns models.CataloguePage with fake data.
func FakePage(ops ...func(p *models.CataloguePage)) models.CataloguePage {
	page := models.CataloguePage{
		CatalogueID:    uuid.NewString(),
		Index:          1 + rand.Intn(20),
		RawPath:        faker.Word() + ".jpg",
		NormalizedPath: faker.Word() + ".jpg",
		Text:           faker.Paragraph(),
		OCRConfidence:  rand.Float64() * 100,
		OCRPass:        "dense",
		OCRLanguage:    "ara+eng",
	}

	for _, op := range ops {
		op(&page)
	}

	return page
}

func fakePages() []models.CataloguePage {
	pagesLen := 1 + rand.Intn(5)
	pages := make([]models.CataloguePage, 0, pagesLen)
	for ix := 0; ix < pagesLen; ix++ {
		pages = append(pages, FakePage(func(p *models.CataloguePage) {
			p.Index = ix + 1
		}))
	}

	return pages
}
