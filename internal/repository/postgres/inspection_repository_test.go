package postgres_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/mineguard-service/internal/domain/repository"
	"github.com/mineguard-service/internal/repository/postgres/testhelpers"
)

// InspectionRepositorySuite tests the inspection repository with real database
type InspectionRepositorySuite struct {
	suite.Suite
	testDB *testhelpers.TestDB
	repo   repository.InspectionRepository
	ctx    context.Context
}

// SetupSuite runs once before all tests
func (s *InspectionRepositorySuite) SetupSuite() {
	s.testDB = testhelpers.SetupTestDB(s.T())
	s.ctx = context.Background()

	err := testhelpers.ApplyMigrations(s.testDB.DB.DB, "../../../migrations")
	s.Require().NoError(err, "Failed to apply migrations")

	s.repo = testhelpers.NewInspectionRepositoryForTest(s.testDB.DB, s.testDB.Logger)
}

// TearDownSuite runs once after all tests
func (s *InspectionRepositorySuite) TearDownSuite() {
	if s.testDB != nil {
		s.testDB.Close()
	}
}

// SetupTest runs before each test
func (s *InspectionRepositorySuite) SetupTest() {
	s.Require().NoError(s.testDB.Cleanup(s.ctx))
}

func (s *InspectionRepositorySuite) TestSaveAndGetByJobID() {
	fixture := testhelpers.NewInspectionFixture("a1b2c3d4", time.Now())
	s.Require().NoError(s.repo.Save(s.ctx, fixture))

	got, err := s.repo.GetByJobID(s.ctx, "a1b2c3d4")
	s.Require().NoError(err)
	s.Require().NotNil(got)

	s.Equal(fixture.ID, got.ID)
	s.Equal(fixture.JobID, got.JobID)
	s.Equal(fixture.Filename, got.Filename)
	s.Equal(fixture.Status, got.Status)
	s.Equal(fixture.GeometrySource, got.GeometrySource)
	s.InDelta(fixture.IllegalAreaM2, got.IllegalAreaM2, 1e-6)
	s.InDelta(fixture.VolumeM3, got.VolumeM3, 1e-6)
	s.Equal(fixture.Truckloads, got.Truckloads)
	s.Equal(fixture.LeaseRing, got.LeaseRing)

	s.Require().NotNil(got.MapURL)
	s.Equal(*fixture.MapURL, *got.MapURL)
	s.Nil(got.ModelURL)
}

func (s *InspectionRepositorySuite) TestGetByJobID_NotFound() {
	got, err := s.repo.GetByJobID(s.ctx, "missing1")

	s.NoError(err)
	s.Nil(got)
}

func (s *InspectionRepositorySuite) TestListRecent_OrderAndLimit() {
	base := time.Now().Add(-time.Hour)
	for i, jobID := range []string{"job00001", "job00002", "job00003"} {
		fixture := testhelpers.NewInspectionFixture(jobID, base.Add(time.Duration(i)*time.Minute))
		s.Require().NoError(s.repo.Save(s.ctx, fixture))
	}

	got, err := s.repo.ListRecent(s.ctx, 2)
	s.Require().NoError(err)
	s.Require().Len(got, 2)

	// Новые записи первыми
	s.Equal("job00003", got[0].JobID)
	s.Equal("job00002", got[1].JobID)
}

func (s *InspectionRepositorySuite) TestListRecent_Empty() {
	got, err := s.repo.ListRecent(s.ctx, 10)

	s.NoError(err)
	s.Empty(got)
}

func (s *InspectionRepositorySuite) TestSave_DuplicateJobID() {
	fixture := testhelpers.NewInspectionFixture("a1b2c3d4", time.Now())
	s.Require().NoError(s.repo.Save(s.ctx, fixture))

	dup := testhelpers.NewInspectionFixture("a1b2c3d4", time.Now())
	s.Error(s.repo.Save(s.ctx, dup))
}

func TestInspectionRepositorySuite(t *testing.T) {
	suite.Run(t, new(InspectionRepositorySuite))
}
