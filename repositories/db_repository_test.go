package repositories

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"analysis-worker/domain"
	"analysis-worker/models"
)

func newMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("an error '%s' was not expected when opening a stub database connection", err)
	}

	dialector := postgres.New(postgres.Config{
		DSN:                  "sqlmock_db_0",
		DriverName:           "postgres",
		Conn:                 db,
		PreferSimpleProtocol: true,
	})

	gormDB, err := gorm.Open(dialector, &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open gorm db: %v", err)
	}

	return gormDB, mock
}

func TestNewDBRepository_Default(t *testing.T) {
	repo := NewDBRepository(nil, 0).(*PostgresDBRepository)
	assert.Equal(t, 100, repo.batchSize)
}

func TestStartRun_Success(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewDBRepository(db, 25)

	run := &models.AnalysisRun{
		ID:          "7f1c2d4e-0000-4000-8000-000000000001",
		MessageID:   "msg-1",
		VideoURI:    "s3://videos/clip.mp4",
		TargetField: domain.FieldPromptResult,
		Status:      domain.StatusProcessing,
		StartedAt:   time.Now(),
	}

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO "analysis_runs"`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	assert.NoError(t, repo.StartRun(context.Background(), run))
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("there were unfulfilled expectations: %s", err)
	}
}

func TestStartRun_Error(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewDBRepository(db, 25)

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO "analysis_runs"`).
		WillReturnError(errors.New("db error"))
	mock.ExpectRollback()

	err := repo.StartRun(context.Background(), &models.AnalysisRun{ID: "run-1", StartedAt: time.Now()})
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "failed to insert analysis run")
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("there were unfulfilled expectations: %s", err)
	}
}

func TestRecordFrames_Success(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewDBRepository(db, 25)

	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO "analysis_frames"`).
		WithArgs("run-1", 0, "run-1", 49, "run-1", 99).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1).AddRow(2).AddRow(3))
	mock.ExpectCommit()

	assert.NoError(t, repo.RecordFrames(context.Background(), "run-1", []int{0, 49, 99}))
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("there were unfulfilled expectations: %s", err)
	}
}

func TestRecordFrames_Empty(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewDBRepository(db, 25)

	assert.NoError(t, repo.RecordFrames(context.Background(), "run-1", nil))
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("there were unfulfilled expectations: %s", err)
	}
}

func TestFinishRun_Success(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewDBRepository(db, 25)

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE "analysis_runs" SET`).
		WithArgs("inference failure: timeout", domain.StatusFailed, "run-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := repo.FinishRun(context.Background(), "run-1", domain.StatusFailed, "inference failure: timeout")
	assert.NoError(t, err)
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("there were unfulfilled expectations: %s", err)
	}
}

func TestFinishRun_NoRows(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewDBRepository(db, 25)

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE "analysis_runs" SET`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	err := repo.FinishRun(context.Background(), "missing", domain.StatusCompleted, "")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "no analysis run found")
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("there were unfulfilled expectations: %s", err)
	}
}
