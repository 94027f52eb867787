package repositories

import (
	"context"
	"fmt"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"analysis-worker/models"
)

// RunRepository keeps an audit trail of analysis runs
type RunRepository interface {
	StartRun(ctx context.Context, run *models.AnalysisRun) error
	RecordFrames(ctx context.Context, runID string, indices []int) error
	FinishRun(ctx context.Context, runID, status, errMsg string) error
}

type PostgresDBRepository struct {
	db        *gorm.DB
	batchSize int
}

func NewDBRepository(db *gorm.DB, batchSize int) RunRepository {
	if batchSize <= 0 {
		batchSize = 100 // Default
	}
	return &PostgresDBRepository{
		db:        db,
		batchSize: batchSize,
	}
}

// OpenPostgres connects to the ledger database and migrates its tables.
func OpenPostgres(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to db: %w", err)
	}
	if err := db.AutoMigrate(&models.AnalysisRun{}, &models.AnalysisFrame{}); err != nil {
		return nil, fmt.Errorf("failed to migrate ledger tables: %w", err)
	}
	return db, nil
}

func (repo *PostgresDBRepository) StartRun(ctx context.Context, run *models.AnalysisRun) error {
	if err := repo.db.WithContext(ctx).Create(run).Error; err != nil {
		return fmt.Errorf("failed to insert analysis run: %w", err)
	}
	return nil
}

func (repo *PostgresDBRepository) RecordFrames(ctx context.Context, runID string, indices []int) error {
	if len(indices) == 0 {
		return nil
	}

	frames := make([]models.AnalysisFrame, 0, len(indices))
	for _, idx := range indices {
		frames = append(frames, models.AnalysisFrame{RunID: runID, FrameIndex: idx})
	}

	if err := repo.db.WithContext(ctx).CreateInBatches(frames, repo.batchSize).Error; err != nil {
		return fmt.Errorf("failed to insert sampled frames: %w", err)
	}
	return nil
}

func (repo *PostgresDBRepository) FinishRun(ctx context.Context, runID, status, errMsg string) error {
	result := repo.db.WithContext(ctx).
		Model(&models.AnalysisRun{}).
		Where("id = ?", runID).
		Updates(map[string]interface{}{
			"status":      status,
			"error":       errMsg,
			"finished_at": gorm.Expr("NOW()"),
		})
	if result.Error != nil {
		return fmt.Errorf("failed to finish analysis run: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("no analysis run found with id %s", runID)
	}
	return nil
}
