package testhelpers

import (
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/mineguard-service/internal/domain/repository"
	"github.com/mineguard-service/internal/repository/postgres"
)

// NewDBForTest creates a postgres.DB with test database and logger
func NewDBForTest(db *sqlx.DB, logger *zap.Logger) *postgres.DB {
	return postgres.NewDBForTest(db, logger)
}

// NewInspectionRepositoryForTest creates an inspection repository with test database and logger
func NewInspectionRepositoryForTest(db *sqlx.DB, logger *zap.Logger) repository.InspectionRepository {
	pgDB := NewDBForTest(db, logger)
	return postgres.NewInspectionRepository(pgDB, logger)
}
