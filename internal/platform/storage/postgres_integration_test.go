package storage_test

import (
	"context"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/samber/lo"
	"github.com/stretchr/testify/suite"

	"github.com/offerscan/catalogue-parser/internal/platform/models"
	"github.com/offerscan/catalogue-parser/internal/platform/models/modelstesting"
	"github.com/offerscan/catalogue-parser/internal/platform/storage"
	"github.com/offerscan/catalogue-parser/internal/platform/storage/storagetesting"
)

func TestPostgresIntegration(t *testing.T) {
	suite.Run(t, new(PostgresTestSuite))
}

type PostgresTestSuite struct {
	suite.Suite
	DB *sqlx.DB
}

func (s *PostgresTestSuite) SetupSuite() {
	s.DB = storagetesting.Open(s.T())
	storagetesting.CleanupData(s.T(), s.DB)
}

func (s *PostgresTestSuite) TearDownSuite() {
	storagetesting.CleanupData(s.T(), s.DB)
	if err := s.DB.Close(); err != nil {
		s.FailNow("close DB", err)
	}
}

func (s *PostgresTestSuite) TestIntegrationCreateAndGetJob() {
	defer storagetesting.CleanupData(s.T(), s.DB)

	post := storage.NewPostgres(s.DB)
	job := modelstesting.FakeJob()

	s.Require().NoError(post.CreateJob(context.TODO(), &job), "should insert job")

	got, err := post.GetJob(context.TODO(), job.ID)
	s.Require().NoError(err, "should get job")

	s.Equal(job.ID, got.ID)
	s.Equal(job.SourceURL, got.SourceURL)
	s.Equal(job.Store, got.Store)
	s.Equal(models.StatusPending, got.Status)
	s.WithinDuration(job.CreatedAt, got.CreatedAt, time.Millisecond)

	_, err = post.GetJob(context.TODO(), "7c1f0e9a-0000-0000-0000-000000000000")
	s.ErrorIs(err, storage.ErrJobNotFound, "unknown job should return not found")
}

func (s *PostgresTestSuite) TestIntegrationUpdateJob() {
	defer storagetesting.CleanupData(s.T(), s.DB)

	post := storage.NewPostgres(s.DB)
	job := modelstesting.FakeJob()
	s.Require().NoError(post.CreateJob(context.TODO(), &job))

	job.Status = models.StatusFailed
	job.TotalPages = 12
	job.PagesDownloaded = 10
	job.ErrorMessage = lo.ToPtr("fetch_failure: boom")
	s.Require().NoError(post.UpdateJob(context.TODO(), &job), "should update job")

	got, err := post.GetJob(context.TODO(), job.ID)
	s.Require().NoError(err)
	s.Equal(models.StatusFailed, got.Status)
	s.Equal(12, got.TotalPages)
	s.Equal(10, got.PagesDownloaded)
	s.Equal("fetch_failure: boom", *got.ErrorMessage)

	missing := modelstesting.FakeJob()
	s.ErrorIs(post.UpdateJob(context.TODO(), &missing), storage.ErrJobNotFound,
		"updating unknown job should return not found")
}

func (s *PostgresTestSuite) TestIntegrationSaveResult() {
	defer storagetesting.CleanupData(s.T(), s.DB)

	post := storage.NewPostgres(s.DB)
	catalogue := modelstesting.FakeCatalogue()

	products := []models.Product{
		modelstesting.FakeProduct(func(p *models.Product) {
			p.CatalogueID = catalogue.ID
			p.PageIndex = 2
		}),
		modelstesting.FakeProduct(func(p *models.Product) {
			p.CatalogueID = catalogue.ID
			p.PageIndex = 1
		}),
	}

	s.Require().NoError(post.SaveResult(context.TODO(), &catalogue, products), "should save result")

	s.Equal(1, storagetesting.CountRows(s.T(), s.DB, "catalogues"))
	s.Equal(len(catalogue.Pages), storagetesting.CountRows(s.T(), s.DB, "catalogue_pages"))

	got, err := post.ListProducts(context.TODO(), catalogue.ID)
	s.Require().NoError(err, "should list products")
	s.Require().Len(got, 2)

	s.Equal(1, got[0].PageIndex, "products should come back ordered by page")
	s.Equal(2, got[1].PageIndex)
	s.Equal(*products[1].NameAr, *got[0].NameAr)
	s.Equal(products[1].Price, got[0].Price)
	s.Equal("EGP", got[0].Currency)
}
